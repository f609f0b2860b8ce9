// Package relay connects voice sessions to a self-hosted relay gateway
// over WebSocket. The relay holds the upstream speech-model credentials
// so clients never carry an API key.
package relay

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ProtocolVersion1 is the only relay protocol version.
const ProtocolVersion1 = 1

// AudioFormat describes one direction of the PCM stream.
type AudioFormat struct {
	Encoding     string `json:"encoding"`
	SampleRateHz int    `json:"sample_rate_hz"`
	Channels     int    `json:"channels"`
}

// HelloTool declares one client tool in the hello frame.
type HelloTool struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Args        []HelloArg `json:"args,omitempty"`
}

// HelloArg declares one string argument of a hello tool.
type HelloArg struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// ClientHello is the first frame on every connection. The relay answers
// with hello_ack or error.
type ClientHello struct {
	Type            string      `json:"type"`
	ProtocolVersion int         `json:"protocol_version"`
	Voice           string      `json:"voice"`
	System          string      `json:"system,omitempty"`
	Tools           []HelloTool `json:"tools,omitempty"`
	AudioIn         AudioFormat `json:"audio_in"`
	AudioOut        AudioFormat `json:"audio_out"`
	InTranscripts   bool        `json:"in_transcripts,omitempty"`
	OutTranscripts  bool        `json:"out_transcripts,omitempty"`
}

// ClientAudioFrame carries one base64 capture frame upstream.
type ClientAudioFrame struct {
	Type    string `json:"type"`
	DataB64 string `json:"data_b64"`
}

// ClientToolResult reports one tool invocation outcome upstream.
type ClientToolResult struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Name    string `json:"name"`
	Output  string `json:"output"`
	IsError bool   `json:"is_error,omitempty"`
}

// ServerHelloAck confirms the session is established.
type ServerHelloAck struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
}

// ServerTranscriptDelta is one incremental transcript fragment.
// Speaker is "user" or "assistant".
type ServerTranscriptDelta struct {
	Type    string `json:"type"`
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// ServerTurnComplete marks the end of one exchange.
type ServerTurnComplete struct {
	Type string `json:"type"`
}

// ServerAssistantAudio carries one base64 reply audio chunk.
type ServerAssistantAudio struct {
	Type    string `json:"type"`
	DataB64 string `json:"data_b64"`
}

// ServerToolCall requests one client tool invocation.
type ServerToolCall struct {
	Type string         `json:"type"`
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ServerInterrupted signals the user spoke over the assistant.
type ServerInterrupted struct {
	Type string `json:"type"`
}

// ServerError is a terminal relay-side failure.
type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// frameType extracts the type discriminator from a raw text frame.
func frameType(data []byte) (string, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", fmt.Errorf("decode relay frame envelope: %w", err)
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return "", fmt.Errorf("relay frame missing type")
	}
	return typ, nil
}
