// Package audio converts between raw float samples and the PCM s16le wire
// format used by the speech transport, and carries the fixed capture and
// playback format parameters.
package audio

import (
	"fmt"
	"time"
)

const (
	// FrameSamples is the fixed capture frame size in sample-frames.
	FrameSamples = 4096

	bytesPerSample = 2
)

// Config specifies audio format parameters.
type Config struct {
	// SampleRate in Hz. Capture runs at 16000, playback at 24000.
	SampleRate int `json:"sample_rate"`

	// Channels: 1 for mono, 2 for stereo.
	Channels int `json:"channels"`

	// BitsPerSample: 16 for PCM s16le.
	BitsPerSample int `json:"bits_per_sample"`
}

// CaptureConfig returns the microphone format: 16 kHz mono s16.
func CaptureConfig() Config {
	return Config{SampleRate: 16000, Channels: 1, BitsPerSample: 16}
}

// PlaybackConfig returns the reply audio format: 24 kHz mono s16.
func PlaybackConfig() Config {
	return Config{SampleRate: 24000, Channels: 1, BitsPerSample: 16}
}

// BytesPerSecond returns the audio byte rate.
func (c Config) BytesPerSecond() int {
	return c.SampleRate * c.Channels * (c.BitsPerSample / 8)
}

// DurationFor returns the playback duration of the given byte count.
func (c Config) DurationFor(bytes int) time.Duration {
	bps := c.BytesPerSecond()
	if bps <= 0 || bytes <= 0 {
		return 0
	}
	return time.Duration(bytes) * time.Second / time.Duration(bps)
}

// BytesFor returns the byte count covering the given duration.
func (c Config) BytesFor(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(int64(c.BytesPerSecond()) * int64(d) / int64(time.Second))
}

// MIMEType returns the transport media type for raw PCM at this rate.
func (c Config) MIMEType() string {
	return fmt.Sprintf("audio/pcm;rate=%d", c.SampleRate)
}
