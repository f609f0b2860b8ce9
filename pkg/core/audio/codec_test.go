package audio

import (
	"encoding/base64"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/auralis-ai/auralis/pkg/core"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		samples []float32
	}{
		{"silence", []float32{0, 0, 0, 0}},
		{"full scale", []float32{1, -1, 1, -1}},
		{"mixed", []float32{0.5, -0.25, 0.125, -0.0625, 0.9999}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pcm := EncodePCM16(tt.samples)
			got, err := DecodePCM16(pcm)
			if err != nil {
				t.Fatalf("DecodePCM16 error: %v", err)
			}
			if len(got) != len(tt.samples) {
				t.Fatalf("decoded %d samples, want %d", len(got), len(tt.samples))
			}
			for i := range got {
				if diff := math.Abs(float64(got[i] - tt.samples[i])); diff > 1.0/32768.0+1e-4 {
					t.Errorf("sample %d: got %f, want %f (diff %f)", i, got[i], tt.samples[i], diff)
				}
			}
		})
	}
}

func TestEncodePCM16Clamps(t *testing.T) {
	pcm := EncodePCM16([]float32{2.0, -3.0})
	got, err := DecodePCM16(pcm)
	if err != nil {
		t.Fatalf("DecodePCM16 error: %v", err)
	}
	if got[0] < 0.999 {
		t.Errorf("positive overdrive decoded to %f, want ~1.0", got[0])
	}
	if got[1] > -0.999 {
		t.Errorf("negative overdrive decoded to %f, want ~-1.0", got[1])
	}
}

func TestDecodePCM16OddLength(t *testing.T) {
	_, err := DecodePCM16([]byte{0x01, 0x02, 0x03})
	if err == nil {
		t.Fatal("expected decode error for odd byte length")
	}
	var typed *core.Error
	if !errors.As(err, &typed) || typed.Type != core.ErrDecode {
		t.Fatalf("got %v, want a decode_error", err)
	}
}

func TestDecodeChunkDuration(t *testing.T) {
	cfg := PlaybackConfig()
	// One second of 24 kHz mono s16.
	pcm := make([]byte, cfg.BytesPerSecond())
	chunk, err := DecodeChunk(pcm, cfg)
	if err != nil {
		t.Fatalf("DecodeChunk error: %v", err)
	}
	if chunk.Duration != time.Second {
		t.Errorf("duration = %v, want 1s", chunk.Duration)
	}
	if len(chunk.Samples) != 24000 {
		t.Errorf("samples = %d, want 24000", len(chunk.Samples))
	}
}

func TestDecodeBase64Chunk(t *testing.T) {
	cfg := PlaybackConfig()
	samples := []float32{0.25, -0.5, 0.75}
	encoded := base64.StdEncoding.EncodeToString(EncodePCM16(samples))

	chunk, err := DecodeBase64Chunk(encoded, cfg)
	if err != nil {
		t.Fatalf("DecodeBase64Chunk error: %v", err)
	}
	if len(chunk.Samples) != len(samples) {
		t.Fatalf("decoded %d samples, want %d", len(chunk.Samples), len(samples))
	}

	if _, err := DecodeBase64Chunk("not base64!!", cfg); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestEncodeFrameEnvelope(t *testing.T) {
	blob := EncodeFrame([]float32{0, 0.5}, CaptureConfig())
	if blob.MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("MIMEType = %q", blob.MIMEType)
	}
	if len(blob.Data) != 4 {
		t.Errorf("payload = %d bytes, want 4", len(blob.Data))
	}
}

func TestConfigMath(t *testing.T) {
	cfg := CaptureConfig()
	if got := cfg.BytesPerSecond(); got != 32000 {
		t.Errorf("BytesPerSecond = %d, want 32000", got)
	}
	if got := cfg.DurationFor(32000); got != time.Second {
		t.Errorf("DurationFor(32000) = %v, want 1s", got)
	}
	if got := cfg.BytesFor(250 * time.Millisecond); got != 8000 {
		t.Errorf("BytesFor(250ms) = %d, want 8000", got)
	}
	// One 4096-sample capture frame is 256 ms of audio.
	if got := cfg.DurationFor(FrameSamples * 2); got != 256*time.Millisecond {
		t.Errorf("frame duration = %v, want 256ms", got)
	}
}

func TestRMSEnergy(t *testing.T) {
	tests := []struct {
		name    string
		samples []float32
		want    float64
	}{
		{"silence", []float32{0, 0, 0, 0}, 0.0},
		{"half amplitude", []float32{0.5, 0.5, 0.5, 0.5}, 0.5},
		{"alternating", []float32{0.5, -0.5, 0.5, -0.5}, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RMSEnergy(tt.samples); math.Abs(got-tt.want) > 0.01 {
				t.Errorf("RMSEnergy = %.3f, want %.3f", got, tt.want)
			}
		})
	}
}
