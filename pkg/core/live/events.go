package live

import (
	"context"
	"time"

	"github.com/auralis-ai/auralis/pkg/core/audio"
)

// ServerMessage is one inbound transport message. Fields are optional and
// independent; a single message may carry any combination. Messages are
// delivered in arrival order on one logical stream.
type ServerMessage struct {
	// InputTranscription is an incremental transcript fragment of the
	// user's speech.
	InputTranscription string

	// OutputTranscription is an incremental transcript fragment of the
	// assistant's speech.
	OutputTranscription string

	// TurnComplete signals the end of one user/assistant exchange.
	TurnComplete bool

	// Audio is raw PCM s16le reply audio at the playback rate.
	Audio []byte

	// ToolCalls are function invocations requested by the model.
	ToolCalls []ToolCall

	// Interrupted signals the user started speaking over the assistant;
	// pending playback must be discarded immediately.
	Interrupted bool
}

// ToolCall is one requested function invocation. It exists only between
// receipt and the corresponding tool result.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult acknowledges one tool call. Exactly one result must be sent
// per received call id.
type ToolResult struct {
	CallID  string
	Name    string
	Output  string
	IsError bool
}

// ToolDecl declares one callable tool to the speech model.
type ToolDecl struct {
	Name        string
	Description string
	Args        []ArgDecl
}

// ArgDecl declares one string argument of a tool.
type ArgDecl struct {
	Name        string
	Description string
	Required    bool
}

// ToolHandler executes one tool call and returns the result text reported
// back to the model.
type ToolHandler func(ctx context.Context, args map[string]any) (string, error)

// ConnectConfig is handed to the transport dialer when a session starts.
type ConnectConfig struct {
	Voice               string
	SystemInstruction   string
	Tools               []ToolDecl
	InputTranscription  bool
	OutputTranscription bool
}

// Transport is one open bidirectional streaming connection to the speech
// model.
type Transport interface {
	// SendFrame queues one capture frame. It must not block on remote
	// readiness beyond the connection's own write path.
	SendFrame(blob audio.Blob) error

	// SendToolResult reports one tool invocation outcome.
	SendToolResult(res ToolResult) error

	// Messages yields inbound messages in arrival order. The channel is
	// closed when the connection ends; Err reports why.
	Messages() <-chan ServerMessage

	// Err returns the terminal connection error, or nil after a clean
	// close. Valid once Messages is closed.
	Err() error

	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// Dialer opens transports. Implementations: pkg/transport/geminilive (the
// hosted speech API) and pkg/transport/relay (self-hosted relay gateway).
type Dialer interface {
	Dial(ctx context.Context, cfg ConnectConfig) (Transport, error)
}

// Source is a live microphone. Open acquires the device (permission
// failures surface here); Frames then yields fixed-size normalized sample
// frames until Close, which also closes the channel. Close is safe to call
// without a prior Open and safe to call twice.
type Source interface {
	Open(ctx context.Context) error
	Frames() <-chan []float32
	Close() error
}

// Sink is an output audio pipeline with its own playback clock.
//
// Schedule begins playing chunk when the clock reaches at (immediately if
// already past) and invokes onEnded asynchronously after natural playback
// end. A stopped handle never fires onEnded.
type Sink interface {
	Now() time.Duration
	Schedule(chunk *audio.Chunk, at time.Duration, onEnded func()) (PlaybackHandle, error)
	Close() error
}

// PlaybackHandle is one scheduled, not-yet-finished playback.
type PlaybackHandle interface {
	Stop()
}

// EventSink receives durable session lifecycle events. Implementations are
// fire-and-forget: failures are logged locally and never affect the
// session.
type EventSink interface {
	LogEvent(ctx context.Context, eventType string, metadata map[string]any)
}

// Event types emitted to the EventSink.
const (
	EventSessionStart = "SESSION_START"
	EventSessionEnd   = "SESSION_END"
	EventAPIError     = "API_ERROR"
)
