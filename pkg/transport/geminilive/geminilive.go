package geminilive

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/auralis-ai/auralis/pkg/core"
	"github.com/auralis-ai/auralis/pkg/core/audio"
	"github.com/auralis-ai/auralis/pkg/core/live"
)

// DefaultModel is the native-audio Live model used when none is given.
const DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"

const defaultConnectTimeout = 15 * time.Second

// Options configures a Dialer.
type Options struct {
	// APIKey authenticates against the Gemini API. Required.
	APIKey string

	// Model overrides DefaultModel.
	Model string

	// ConnectTimeout bounds Dial when the caller's context has no
	// deadline. Default: 15s.
	ConnectTimeout time.Duration

	Logger *slog.Logger
}

// Dialer opens Live API connections.
type Dialer struct {
	opts Options
}

// NewDialer validates options and returns a dialer.
func NewDialer(opts Options) (*Dialer, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, core.NewConfigurationError("gemini api key must not be empty")
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Dialer{opts: opts}, nil
}

// Dial opens a Live session configured for bidirectional audio with
// transcription on both directions.
func (d *Dialer) Dial(ctx context.Context, cfg live.ConnectConfig) (live.Transport, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.ConnectTimeout)
		defer cancel()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  d.opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, core.NewTransportError("failed to create the speech api client", err)
	}

	session, err := client.Live.Connect(ctx, d.opts.Model, liveConnectConfig(cfg))
	if err != nil {
		return nil, core.NewTransportError("failed to open the live speech connection", err)
	}

	t := &transport{
		session: session,
		msgs:    make(chan live.ServerMessage, 32),
		done:    make(chan struct{}),
		logger:  d.opts.Logger,
	}
	go t.readLoop()
	return t, nil
}

// liveConnectConfig maps the session contract onto the SDK's setup message.
func liveConnectConfig(cfg live.ConnectConfig) *genai.LiveConnectConfig {
	out := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
	}
	if cfg.Voice != "" {
		out.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if cfg.SystemInstruction != "" {
		out.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: cfg.SystemInstruction}},
		}
	}
	if cfg.InputTranscription {
		out.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if cfg.OutputTranscription {
		out.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if len(cfg.Tools) > 0 {
		tool := &genai.Tool{}
		for _, decl := range cfg.Tools {
			tool.FunctionDeclarations = append(tool.FunctionDeclarations, functionDeclaration(decl))
		}
		out.Tools = []*genai.Tool{tool}
	}
	return out
}

func functionDeclaration(decl live.ToolDecl) *genai.FunctionDeclaration {
	props := make(map[string]*genai.Schema, len(decl.Args))
	var required []string
	for _, arg := range decl.Args {
		props[arg.Name] = &genai.Schema{
			Type:        genai.TypeString,
			Description: arg.Description,
		}
		if arg.Required {
			required = append(required, arg.Name)
		}
	}
	return &genai.FunctionDeclaration{
		Name:        decl.Name,
		Description: decl.Description,
		Parameters: &genai.Schema{
			Type:       genai.TypeObject,
			Properties: props,
			Required:   required,
		},
	}
}

type transport struct {
	session *genai.Session
	msgs    chan live.ServerMessage
	logger  *slog.Logger

	done      chan struct{}
	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

func (t *transport) SendFrame(blob audio.Blob) error {
	err := t.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{Data: blob.Data, MIMEType: blob.MIMEType},
	})
	if err != nil {
		return core.NewTransportError("failed to send audio frame", err)
	}
	return nil
}

func (t *transport) SendToolResult(res live.ToolResult) error {
	response := map[string]any{"output": res.Output}
	if res.IsError {
		response = map[string]any{"error": res.Output}
	}
	err := t.session.SendToolResponse(genai.LiveToolResponseInput{
		FunctionResponses: []*genai.FunctionResponse{{
			ID:       res.CallID,
			Name:     res.Name,
			Response: response,
		}},
	})
	if err != nil {
		return core.NewTransportError("failed to send tool response", err)
	}
	return nil
}

func (t *transport) Messages() <-chan live.ServerMessage { return t.msgs }

func (t *transport) Err() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.err
}

func (t *transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		if err := t.session.Close(); err != nil {
			t.logger.Debug("live session close", "error", err)
		}
	})
	return nil
}

func (t *transport) setErr(err error) {
	t.errMu.Lock()
	if t.err == nil {
		t.err = err
	}
	t.errMu.Unlock()
}

// readLoop converts SDK messages to session messages until the stream
// ends. A receive error after a local Close is a normal shutdown, not a
// transport failure.
func (t *transport) readLoop() {
	defer close(t.msgs)
	for {
		raw, err := t.session.Receive()
		if err != nil {
			select {
			case <-t.done:
			default:
				t.setErr(err)
			}
			return
		}
		msg, ok := convertMessage(raw)
		if !ok {
			continue
		}
		select {
		case t.msgs <- msg:
		case <-t.done:
			return
		}
	}
}

// convertMessage flattens one SDK server message. Returns ok=false for
// messages with nothing the session acts on (e.g. setup completion).
func convertMessage(raw *genai.LiveServerMessage) (live.ServerMessage, bool) {
	var msg live.ServerMessage
	var acted bool

	if sc := raw.ServerContent; sc != nil {
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			msg.InputTranscription = sc.InputTranscription.Text
			acted = true
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			msg.OutputTranscription = sc.OutputTranscription.Text
			acted = true
		}
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.InlineData != nil && len(part.InlineData.Data) > 0 {
					msg.Audio = append(msg.Audio, part.InlineData.Data...)
					acted = true
				}
			}
		}
		if sc.Interrupted {
			msg.Interrupted = true
			acted = true
		}
		if sc.TurnComplete {
			msg.TurnComplete = true
			acted = true
		}
	}

	if tc := raw.ToolCall; tc != nil {
		for _, fc := range tc.FunctionCalls {
			msg.ToolCalls = append(msg.ToolCalls, live.ToolCall{
				ID:   fc.ID,
				Name: fc.Name,
				Args: fc.Args,
			})
			acted = true
		}
	}

	return msg, acted
}
