package live

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/auralis-ai/auralis/pkg/core"
	"github.com/auralis-ai/auralis/pkg/core/audio"
)

// MemoryToolName is the tool the model invokes to persist information the
// user explicitly asked to be remembered.
const MemoryToolName = "save_to_memory"

// Config configures one Session.
type Config struct {
	// AssistantID tags durable events with the persona being spoken to.
	AssistantID string

	// Voice is the prebuilt voice identifier for reply speech.
	Voice string

	// SystemInstruction is the composed persona instruction text.
	SystemInstruction string

	// SpeakingDebounce overrides the speaking-signal debounce. Optional.
	SpeakingDebounce time.Duration

	// OnTurnComplete receives one finalized (user, assistant) pair per
	// completed turn. Pairs with both sides blank are suppressed. Optional.
	OnTurnComplete func(userText, assistantText string)

	// OnSaveToMemory persists one piece of information on behalf of the
	// save_to_memory tool. Optional; when nil the tool is not declared.
	OnSaveToMemory func(ctx context.Context, info string) error

	// OnUpdate is invoked with a fresh snapshot on every relevant internal
	// transition. Optional.
	OnUpdate func(Snapshot)
}

// Deps are the session's collaborators, passed in by the composition root.
type Deps struct {
	Dialer Dialer
	Source Source
	Sink   Sink

	// Events receives durable lifecycle events. Optional.
	Events EventSink

	Logger *slog.Logger

	// now is a test seam for duration measurement.
	now func() time.Time
}

// Snapshot is the reactive view exposed to the UI layer.
type Snapshot struct {
	Status              Status
	IsSpeaking          bool
	UserTranscript      string
	AssistantTranscript string
	Err                 string
}

// Session is the voice-session state machine. It owns the connection
// lifecycle, wires capture output to the transport, routes transport
// messages to the playback scheduler, transcript accumulator and tool
// dispatcher, and exposes status to the UI.
//
// Exactly one session (one transport, one microphone, one playback
// pipeline) is open at a time; Start while connecting or active is a
// no-op.
type Session struct {
	cfg  Config
	deps Deps

	scheduler *Scheduler
	turns     *TurnAccumulator

	toolMu    sync.Mutex
	tools     map[string]ToolHandler
	toolDecls []ToolDecl

	mu        sync.Mutex
	status    Status
	errText   string
	speaking  bool
	transport Transport
	capture   *capturePump
	startedAt time.Time
	loopDone  chan struct{}
}

// NewSession creates a session. Dialer, Source and Sink are required.
func NewSession(cfg Config, deps Deps) (*Session, error) {
	if deps.Dialer == nil {
		return nil, core.NewConfigurationError("session dialer must not be nil")
	}
	if deps.Source == nil {
		return nil, core.NewConfigurationError("session microphone source must not be nil")
	}
	if deps.Sink == nil {
		return nil, core.NewConfigurationError("session playback sink must not be nil")
	}
	if strings.TrimSpace(cfg.Voice) == "" {
		return nil, core.NewConfigurationError("session voice must not be empty")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.now == nil {
		deps.now = time.Now
	}

	s := &Session{
		cfg:    cfg,
		deps:   deps,
		turns:  &TurnAccumulator{},
		tools:  make(map[string]ToolHandler),
		status: StatusIdle,
	}
	s.scheduler = NewScheduler(deps.Sink, SchedulerConfig{
		SpeakingDebounce: cfg.SpeakingDebounce,
		OnSpeaking:       s.setSpeaking,
		Logger:           deps.Logger,
	})

	if cfg.OnSaveToMemory != nil {
		decl := ToolDecl{
			Name:        MemoryToolName,
			Description: "Saves a piece of information that the user explicitly asks to be remembered. Only use this when the user says \"remember that\", \"save this\", or a similar direct command.",
			Args: []ArgDecl{{
				Name:        "info",
				Description: "The specific piece of information to save.",
				Required:    true,
			}},
		}
		if err := s.RegisterTool(decl, s.saveToMemory); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// RegisterTool declares a tool to the model and installs its handler.
// Tools must be registered before Start.
func (s *Session) RegisterTool(decl ToolDecl, handler ToolHandler) error {
	name := strings.TrimSpace(decl.Name)
	if name == "" {
		return core.NewConfigurationError("tool name must not be empty")
	}
	if handler == nil {
		return core.NewConfigurationError("tool handler must not be nil")
	}
	s.toolMu.Lock()
	defer s.toolMu.Unlock()
	if _, exists := s.tools[name]; exists {
		return core.NewConfigurationError(fmt.Sprintf("tool %q is already registered", name))
	}
	s.tools[name] = handler
	s.toolDecls = append(s.toolDecls, decl)
	return nil
}

func (s *Session) saveToMemory(ctx context.Context, args map[string]any) (string, error) {
	info, _ := args["info"].(string)
	if strings.TrimSpace(info) == "" {
		return "", core.NewToolCallError("failed to save to memory, info was not provided")
	}
	if err := s.cfg.OnSaveToMemory(ctx, info); err != nil {
		return "", core.NewToolCallError("failed to save to memory")
	}
	return "Successfully saved to memory.", nil
}

// Start opens the session: acquires the microphone, dials the transport
// and begins capture. Accepted only from Idle or Error; otherwise a no-op.
// Failure at any step tears everything down and leaves status Error with a
// descriptive message.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if !s.status.canStart() {
		s.mu.Unlock()
		return nil
	}
	s.status = StatusConnecting
	s.errText = ""
	s.mu.Unlock()
	s.turns.Reset()
	s.scheduler.Interrupt()
	s.publish()

	if err := s.deps.Source.Open(ctx); err != nil {
		failure := core.NewPermissionError("failed to start the microphone: " + err.Error())
		s.failStart(failure)
		return failure
	}

	transport, err := s.deps.Dialer.Dial(ctx, s.connectConfig())
	if err != nil {
		failure := err
		if _, ok := err.(*core.Error); !ok {
			failure = core.NewTransportError("failed to open the conversation connection", err)
		}
		s.failStart(failure)
		return failure
	}

	loopDone := make(chan struct{})
	s.mu.Lock()
	s.transport = transport
	s.status = StatusActive
	s.startedAt = s.deps.now()
	s.loopDone = loopDone
	s.capture = startCapturePump(s.deps.Source.Frames(), audio.CaptureConfig(), transport.SendFrame, s.deps.Logger)
	s.mu.Unlock()
	s.publish()

	s.logEvent(EventSessionStart, nil)
	s.deps.Logger.Info("voice session started", "assistant_id", s.cfg.AssistantID, "voice", s.cfg.Voice)

	go s.messageLoop(transport, loopDone)
	return nil
}

func (s *Session) connectConfig() ConnectConfig {
	s.toolMu.Lock()
	decls := append([]ToolDecl(nil), s.toolDecls...)
	s.toolMu.Unlock()
	return ConnectConfig{
		Voice:               s.cfg.Voice,
		SystemInstruction:   s.cfg.SystemInstruction,
		Tools:               decls,
		InputTranscription:  true,
		OutputTranscription: true,
	}
}

// Stop tears the session down: closes the transport, releases capture and
// the microphone, discards pending playback and resets the next start
// time. Idempotent and safe from any state. A normal stop emits a
// SessionEnd event and resets to Idle; an error stop leaves the Error
// status and message visible.
func (s *Session) Stop(isError bool) {
	s.stop(isError, true)
}

// Close runs an unconditional normal stop; for teardown of the owning
// view.
func (s *Session) Close() error {
	s.Stop(false)
	return s.scheduler.Close()
}

func (s *Session) stop(isError, waitLoop bool) {
	s.mu.Lock()
	transport := s.transport
	s.transport = nil
	capture := s.capture
	s.capture = nil
	startedAt := s.startedAt
	s.startedAt = time.Time{}
	loopDone := s.loopDone
	s.loopDone = nil
	s.mu.Unlock()

	if transport != nil {
		_ = transport.Close()
	}
	if loopDone != nil && waitLoop {
		<-loopDone
	}
	_ = s.deps.Source.Close()
	capture.Stop()
	s.scheduler.Interrupt()

	if transport != nil && !isError && !startedAt.IsZero() {
		duration := s.deps.now().Sub(startedAt)
		s.logEvent(EventSessionEnd, map[string]any{"duration_ms": duration.Milliseconds()})
		s.deps.Logger.Info("voice session ended", "assistant_id", s.cfg.AssistantID, "duration_ms", duration.Milliseconds())
	}

	if !isError {
		s.mu.Lock()
		s.status = StatusIdle
		s.errText = ""
		s.mu.Unlock()
		s.turns.Reset()
	}
	s.publish()
}

// failStart handles a failure before the session reached Active.
func (s *Session) failStart(err error) {
	s.handleError(err)
	s.stop(true, true)
}

// handleError surfaces a fatal session error: sets the user-visible error
// text, transitions to Error and logs an API_ERROR event.
func (s *Session) handleError(err error) {
	message := core.UserMessage(err)
	s.deps.Logger.Error("voice session error", "error", err)

	s.mu.Lock()
	s.errText = message
	s.status = StatusError
	s.mu.Unlock()
	s.publish()

	s.logEvent(EventAPIError, map[string]any{"error_message": message})
}

// messageLoop processes inbound transport messages strictly in arrival
// order. It exits when the transport closes; a terminal transport error
// forces an error stop.
func (s *Session) messageLoop(transport Transport, done chan struct{}) {
	defer close(done)

	for msg := range transport.Messages() {
		s.handleMessage(context.Background(), msg)
	}

	if err := transport.Err(); err != nil {
		s.handleError(core.NewTransportError("a connection error occurred", err))
		s.stop(true, false)
	}
}

func (s *Session) handleMessage(ctx context.Context, msg ServerMessage) {
	if msg.InputTranscription != "" {
		s.turns.AppendUser(msg.InputTranscription)
		s.publish()
	}
	if msg.OutputTranscription != "" {
		s.turns.AppendAssistant(msg.OutputTranscription)
		s.publish()
	}

	if msg.TurnComplete {
		user, assistant, emit := s.turns.Flush()
		if emit && s.cfg.OnTurnComplete != nil {
			s.cfg.OnTurnComplete(user, assistant)
		}
		s.publish()
	}

	for _, call := range msg.ToolCalls {
		s.handleToolCall(ctx, call)
	}

	if len(msg.Audio) > 0 {
		chunk, err := audio.DecodeChunk(msg.Audio, audio.PlaybackConfig())
		if err != nil {
			// Malformed chunks are dropped; the session keeps going.
			s.deps.Logger.Warn("skipping undecodable reply audio chunk", "error", err, "bytes", len(msg.Audio))
		} else if err := s.scheduler.Enqueue(chunk); err != nil {
			s.deps.Logger.Warn("failed to schedule reply audio chunk", "error", err)
		}
	}

	if msg.Interrupted {
		s.scheduler.Interrupt()
	}
}

// handleToolCall runs the registered handler and reports exactly one
// result for the call id, success or failure, so the remote turn never
// stalls.
func (s *Session) handleToolCall(ctx context.Context, call ToolCall) {
	s.toolMu.Lock()
	handler := s.tools[call.Name]
	s.toolMu.Unlock()

	res := ToolResult{CallID: call.ID, Name: call.Name}
	switch {
	case handler == nil:
		res.IsError = true
		res.Output = fmt.Sprintf("tool %q is not available", call.Name)
	default:
		output, err := handler(ctx, call.Args)
		if err != nil {
			res.IsError = true
			res.Output = core.UserMessage(err)
		} else {
			res.Output = output
		}
	}

	s.mu.Lock()
	transport := s.transport
	s.mu.Unlock()
	if transport == nil {
		return
	}
	if err := transport.SendToolResult(res); err != nil {
		s.deps.Logger.Warn("failed to send tool result", "call_id", call.ID, "error", err)
	}
}

func (s *Session) setSpeaking(speaking bool) {
	s.mu.Lock()
	s.speaking = speaking
	s.mu.Unlock()
	s.publish()
}

// Snapshot returns the current reactive view for the UI layer.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Status:     s.status,
		IsSpeaking: s.speaking,
		Err:        s.errText,
	}
	s.mu.Unlock()
	snap.UserTranscript = s.turns.User()
	snap.AssistantTranscript = s.turns.Assistant()
	return snap
}

func (s *Session) publish() {
	if s.cfg.OnUpdate == nil {
		return
	}
	s.cfg.OnUpdate(s.Snapshot())
}

func (s *Session) logEvent(eventType string, metadata map[string]any) {
	if s.deps.Events == nil {
		return
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	if s.cfg.AssistantID != "" {
		metadata["assistant_id"] = s.cfg.AssistantID
	}
	s.deps.Events.LogEvent(context.Background(), eventType, metadata)
}
