package eventlog

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const appendTimeout = 5 * time.Second

// Sink adapts a Store to the session's fire-and-forget event contract.
// Appends run in the background; failures are logged and never surface to
// the caller.
type Sink struct {
	store  Store
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewSink wraps store.
func NewSink(store Store, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{store: store, logger: logger}
}

// LogEvent appends asynchronously. The assistant_id metadata key, when
// present, is lifted into the entry's own column.
func (s *Sink) LogEvent(_ context.Context, eventType string, metadata map[string]any) {
	entry := Entry{
		EventType: eventType,
		Metadata:  metadata,
		At:        time.Now().UTC(),
	}
	if id, ok := metadata["assistant_id"].(string); ok {
		entry.AssistantID = id
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		defer cancel()
		if err := s.store.Append(ctx, entry); err != nil {
			s.logger.Warn("failed to record session event", "event_type", eventType, "error", err)
		}
	}()
}

// Flush waits for in-flight appends. Call before process exit.
func (s *Sink) Flush() {
	s.wg.Wait()
}
