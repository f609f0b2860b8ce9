package geminilive

import (
	"testing"

	"google.golang.org/genai"

	"github.com/auralis-ai/auralis/pkg/core/live"
)

func TestNewDialerRequiresAPIKey(t *testing.T) {
	if _, err := NewDialer(Options{APIKey: "  "}); err == nil {
		t.Fatal("NewDialer accepted a blank api key")
	}
	d, err := NewDialer(Options{APIKey: "key"})
	if err != nil {
		t.Fatalf("NewDialer error: %v", err)
	}
	if d.opts.Model != DefaultModel {
		t.Errorf("model = %q, want default", d.opts.Model)
	}
	if d.opts.ConnectTimeout != defaultConnectTimeout {
		t.Errorf("connect timeout = %v, want default", d.opts.ConnectTimeout)
	}
}

func TestLiveConnectConfig(t *testing.T) {
	cfg := liveConnectConfig(live.ConnectConfig{
		Voice:               "Puck",
		SystemInstruction:   "You are terse.",
		InputTranscription:  true,
		OutputTranscription: true,
		Tools: []live.ToolDecl{{
			Name:        "save_to_memory",
			Description: "Saves information.",
			Args: []live.ArgDecl{
				{Name: "info", Description: "What to save.", Required: true},
				{Name: "tag", Description: "Optional tag."},
			},
		}},
	})

	if len(cfg.ResponseModalities) != 1 || cfg.ResponseModalities[0] != genai.ModalityAudio {
		t.Errorf("modalities = %v, want audio only", cfg.ResponseModalities)
	}
	if cfg.SpeechConfig == nil || cfg.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Puck" {
		t.Error("voice not carried into speech config")
	}
	if cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != "You are terse." {
		t.Error("system instruction not carried")
	}
	if cfg.InputAudioTranscription == nil || cfg.OutputAudioTranscription == nil {
		t.Error("transcription not enabled on both directions")
	}

	if len(cfg.Tools) != 1 || len(cfg.Tools[0].FunctionDeclarations) != 1 {
		t.Fatalf("tools = %+v", cfg.Tools)
	}
	fd := cfg.Tools[0].FunctionDeclarations[0]
	if fd.Name != "save_to_memory" {
		t.Errorf("tool name = %q", fd.Name)
	}
	if fd.Parameters.Type != genai.TypeObject {
		t.Errorf("parameters type = %v", fd.Parameters.Type)
	}
	if got := fd.Parameters.Properties["info"]; got == nil || got.Type != genai.TypeString {
		t.Error("info argument not declared as string")
	}
	if len(fd.Parameters.Required) != 1 || fd.Parameters.Required[0] != "info" {
		t.Errorf("required = %v, want [info]", fd.Parameters.Required)
	}
}

func TestConvertMessage(t *testing.T) {
	t.Run("setup complete is dropped", func(t *testing.T) {
		_, ok := convertMessage(&genai.LiveServerMessage{
			SetupComplete: &genai.LiveServerSetupComplete{},
		})
		if ok {
			t.Error("setup completion produced a session message")
		}
	})

	t.Run("server content", func(t *testing.T) {
		msg, ok := convertMessage(&genai.LiveServerMessage{
			ServerContent: &genai.LiveServerContent{
				InputTranscription:  &genai.Transcription{Text: "hello "},
				OutputTranscription: &genai.Transcription{Text: "hi there"},
				ModelTurn: &genai.Content{Parts: []*genai.Part{
					{InlineData: &genai.Blob{Data: []byte{1, 2}, MIMEType: "audio/pcm;rate=24000"}},
					{InlineData: &genai.Blob{Data: []byte{3, 4}, MIMEType: "audio/pcm;rate=24000"}},
				}},
				TurnComplete: true,
			},
		})
		if !ok {
			t.Fatal("server content dropped")
		}
		if msg.InputTranscription != "hello " || msg.OutputTranscription != "hi there" {
			t.Errorf("transcriptions = %q / %q", msg.InputTranscription, msg.OutputTranscription)
		}
		if string(msg.Audio) != string([]byte{1, 2, 3, 4}) {
			t.Errorf("audio = %v, want concatenated parts", msg.Audio)
		}
		if !msg.TurnComplete {
			t.Error("turn completion lost")
		}
	})

	t.Run("interrupted", func(t *testing.T) {
		msg, ok := convertMessage(&genai.LiveServerMessage{
			ServerContent: &genai.LiveServerContent{Interrupted: true},
		})
		if !ok || !msg.Interrupted {
			t.Error("interruption lost")
		}
	})

	t.Run("tool call", func(t *testing.T) {
		msg, ok := convertMessage(&genai.LiveServerMessage{
			ToolCall: &genai.LiveServerToolCall{
				FunctionCalls: []*genai.FunctionCall{{
					ID:   "call-1",
					Name: "save_to_memory",
					Args: map[string]any{"info": "likes jazz"},
				}},
			},
		})
		if !ok || len(msg.ToolCalls) != 1 {
			t.Fatalf("tool calls = %+v", msg.ToolCalls)
		}
		call := msg.ToolCalls[0]
		if call.ID != "call-1" || call.Name != "save_to_memory" || call.Args["info"] != "likes jazz" {
			t.Errorf("call = %+v", call)
		}
	})
}
