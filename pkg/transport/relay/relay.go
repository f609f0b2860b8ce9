package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/auralis-ai/auralis/pkg/core"
	"github.com/auralis-ai/auralis/pkg/core/audio"
	"github.com/auralis-ai/auralis/pkg/core/live"
)

const defaultConnectTimeout = 15 * time.Second

// Options configures a Dialer.
type Options struct {
	// URL is the relay websocket endpoint. http(s) schemes are rewritten
	// to ws(s). Required.
	URL string

	// Token is an optional bearer token presented during the handshake.
	Token string

	// ConnectTimeout bounds Dial when the caller's context has no
	// deadline. Default: 15s.
	ConnectTimeout time.Duration

	Logger *slog.Logger
}

// Dialer opens relay gateway connections.
type Dialer struct {
	endpoint string
	opts     Options
}

// NewDialer validates options and returns a dialer.
func NewDialer(opts Options) (*Dialer, error) {
	endpoint, err := websocketEndpoint(opts.URL)
	if err != nil {
		return nil, err
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Dialer{endpoint: endpoint, opts: opts}, nil
}

func websocketEndpoint(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", core.NewConfigurationError("relay url must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", core.NewConfigurationError("invalid relay url")
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", core.NewConfigurationError("relay url must use http(s) or ws(s)")
	}
	return u.String(), nil
}

// Dial connects, sends the hello frame and waits for the relay's ack.
func (d *Dialer) Dial(ctx context.Context, cfg live.ConnectConfig) (live.Transport, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.ConnectTimeout)
		defer cancel()
	}

	headers := make(http.Header)
	if d.opts.Token != "" {
		headers.Set("Authorization", "Bearer "+d.opts.Token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, d.endpoint, headers)
	if err != nil {
		if resp != nil {
			return nil, core.NewTransportError(fmt.Sprintf("relay dial failed (status %d)", resp.StatusCode), err)
		}
		return nil, core.NewTransportError("relay dial failed", err)
	}

	if err := conn.WriteJSON(buildHello(cfg)); err != nil {
		_ = conn.Close()
		return nil, core.NewTransportError("failed to send relay hello", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(d.opts.ConnectTimeout))
	messageType, payload, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, core.NewTransportError("failed to read relay hello_ack", err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	if messageType != websocket.TextMessage {
		_ = conn.Close()
		return nil, core.NewTransportError(fmt.Sprintf("unexpected first relay frame type %d", messageType), nil)
	}

	typ, err := frameType(payload)
	if err != nil {
		_ = conn.Close()
		return nil, core.NewTransportError("malformed relay handshake frame", err)
	}
	switch typ {
	case "hello_ack":
		t := &transport{
			conn:   conn,
			msgs:   make(chan live.ServerMessage, 256),
			done:   make(chan struct{}),
			logger: d.opts.Logger,
		}
		go t.readLoop()
		return t, nil
	case "error":
		var serverErr ServerError
		_ = json.Unmarshal(payload, &serverErr)
		_ = conn.Close()
		return nil, &core.Error{
			Type:    core.ErrTransport,
			Message: strings.TrimSpace(serverErr.Message),
			Code:    strings.TrimSpace(serverErr.Code),
		}
	default:
		_ = conn.Close()
		return nil, core.NewTransportError(fmt.Sprintf("unexpected first relay frame %q", typ), nil)
	}
}

// buildHello maps the session contract onto the hello frame.
func buildHello(cfg live.ConnectConfig) ClientHello {
	hello := ClientHello{
		Type:            "hello",
		ProtocolVersion: ProtocolVersion1,
		Voice:           cfg.Voice,
		System:          strings.TrimSpace(cfg.SystemInstruction),
		AudioIn: AudioFormat{
			Encoding:     "pcm_s16le",
			SampleRateHz: audio.CaptureConfig().SampleRate,
			Channels:     1,
		},
		AudioOut: AudioFormat{
			Encoding:     "pcm_s16le",
			SampleRateHz: audio.PlaybackConfig().SampleRate,
			Channels:     1,
		},
		InTranscripts:  cfg.InputTranscription,
		OutTranscripts: cfg.OutputTranscription,
	}
	for _, decl := range cfg.Tools {
		tool := HelloTool{Name: decl.Name, Description: decl.Description}
		for _, arg := range decl.Args {
			tool.Args = append(tool.Args, HelloArg{
				Name:        arg.Name,
				Description: arg.Description,
				Required:    arg.Required,
			})
		}
		hello.Tools = append(hello.Tools, tool)
	}
	return hello
}

type transport struct {
	conn   *websocket.Conn
	msgs   chan live.ServerMessage
	logger *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	writeMu sync.Mutex

	errMu sync.Mutex
	err   error
}

func (t *transport) SendFrame(blob audio.Blob) error {
	frame := ClientAudioFrame{
		Type:    "audio_frame",
		DataB64: base64.StdEncoding.EncodeToString(blob.Data),
	}
	return t.sendJSON(frame)
}

func (t *transport) SendToolResult(res live.ToolResult) error {
	msg := ClientToolResult{
		Type:    "tool_result",
		ID:      strings.TrimSpace(res.CallID),
		Name:    res.Name,
		Output:  res.Output,
		IsError: res.IsError,
	}
	return t.sendJSON(msg)
}

func (t *transport) sendJSON(v any) error {
	if t.closed.Load() {
		return core.NewTransportError("relay connection is closed", nil)
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.WriteJSON(v); err != nil {
		return core.NewTransportError("relay write failed", err)
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
		t.closed.Store(true)
		close(t.done)
		t.writeMu.Lock()
		_ = t.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		t.writeMu.Unlock()
		_ = t.conn.Close()
	})
	return nil
}

func (t *transport) setErr(err error) {
	if err == nil {
		return
	}
	t.errMu.Lock()
	if t.err == nil {
		t.err = err
	}
	t.errMu.Unlock()
}

func (t *transport) readLoop() {
	defer close(t.msgs)
	for {
		messageType, data, err := t.conn.ReadMessage()
		if err != nil {
			if t.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			t.setErr(err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		msg, terminal, err := decodeServerFrame(data)
		if err != nil {
			t.setErr(err)
			return
		}
		if terminal != nil {
			t.setErr(terminal)
			return
		}
		if msg == nil {
			continue
		}

		// Delivery blocks rather than drops: message order is the
		// session's only sequencing guarantee.
		select {
		case t.msgs <- *msg:
		case <-t.done:
			return
		}
	}
}

// decodeServerFrame decodes one text frame. Returns a nil message for
// frames the session does not act on, and a terminal error for relay
// error frames.
func decodeServerFrame(data []byte) (*live.ServerMessage, error, error) {
	typ, err := frameType(data)
	if err != nil {
		return nil, nil, err
	}

	switch typ {
	case "transcript_delta":
		var delta ServerTranscriptDelta
		if err := json.Unmarshal(data, &delta); err != nil {
			return nil, nil, fmt.Errorf("decode transcript_delta: %w", err)
		}
		msg := &live.ServerMessage{}
		switch delta.Speaker {
		case "user":
			msg.InputTranscription = delta.Text
		case "assistant":
			msg.OutputTranscription = delta.Text
		default:
			return nil, nil, fmt.Errorf("transcript_delta has unknown speaker %q", delta.Speaker)
		}
		return msg, nil, nil
	case "turn_complete":
		return &live.ServerMessage{TurnComplete: true}, nil, nil
	case "assistant_audio":
		var chunk ServerAssistantAudio
		if err := json.Unmarshal(data, &chunk); err != nil {
			return nil, nil, fmt.Errorf("decode assistant_audio: %w", err)
		}
		pcm, err := base64.StdEncoding.DecodeString(chunk.DataB64)
		if err != nil {
			return nil, nil, fmt.Errorf("decode assistant audio payload: %w", err)
		}
		return &live.ServerMessage{Audio: pcm}, nil, nil
	case "tool_call":
		var call ServerToolCall
		if err := json.Unmarshal(data, &call); err != nil {
			return nil, nil, fmt.Errorf("decode tool_call: %w", err)
		}
		return &live.ServerMessage{ToolCalls: []live.ToolCall{{
			ID:   call.ID,
			Name: call.Name,
			Args: call.Args,
		}}}, nil, nil
	case "interrupted":
		return &live.ServerMessage{Interrupted: true}, nil, nil
	case "error":
		var serverErr ServerError
		if err := json.Unmarshal(data, &serverErr); err != nil {
			return nil, nil, fmt.Errorf("decode error frame: %w", err)
		}
		return nil, &core.Error{
			Type:    core.ErrTransport,
			Message: strings.TrimSpace(serverErr.Message),
			Code:    strings.TrimSpace(serverErr.Code),
		}, nil
	case "hello_ack":
		// Duplicate ack after the handshake; nothing to do.
		return nil, nil, nil
	default:
		// Unknown frames are skipped for forward compatibility.
		return nil, nil, nil
	}
}
