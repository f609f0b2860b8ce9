// Package eventlog persists durable session lifecycle events. The
// canonical store is Postgres; Nop keeps sessions usable without a
// database.
package eventlog

import (
	"context"
	"time"
)

// Entry is one durable event row.
type Entry struct {
	AssistantID string
	EventType   string
	Metadata    map[string]any
	At          time.Time
}

// Store appends event entries to durable storage.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	Close()
}

// Nop is a Store that discards everything.
type Nop struct{}

func (Nop) Append(context.Context, Entry) error { return nil }
func (Nop) Close()                              {}
