package audio

import (
	"encoding/base64"
	"math"
	"time"

	"github.com/auralis-ai/auralis/pkg/core"
)

// Blob is an encoded audio payload plus its declared media type, ready for
// the transport send path.
type Blob struct {
	Data     []byte
	MIMEType string
}

// Chunk is one decoded unit of reply audio ready for playback. Ownership
// transfers to the playback scheduler on decode.
type Chunk struct {
	Samples  []float32
	Config   Config
	Duration time.Duration
}

// EncodePCM16 quantizes normalized float samples to signed 16-bit
// little-endian PCM. Samples outside [-1, 1] are clamped.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, v := range samples {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		s := int16(v * math.MaxInt16)
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// DecodePCM16 reinterprets signed 16-bit little-endian PCM as normalized
// float samples. Fails when the byte length is not a multiple of the
// sample width.
func DecodePCM16(pcm []byte) ([]float32, error) {
	if len(pcm)%bytesPerSample != 0 {
		return nil, core.NewDecodeError("pcm byte length is not a multiple of the sample width")
	}
	out := make([]float32, len(pcm)/bytesPerSample)
	for i := range out {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float32(s) / 32768.0
	}
	return out, nil
}

// EncodeFrame packs one capture frame into the transport envelope.
func EncodeFrame(samples []float32, cfg Config) Blob {
	return Blob{
		Data:     EncodePCM16(samples),
		MIMEType: cfg.MIMEType(),
	}
}

// DecodeChunk builds a playable chunk from raw PCM s16le reply bytes.
func DecodeChunk(pcm []byte, cfg Config) (*Chunk, error) {
	samples, err := DecodePCM16(pcm)
	if err != nil {
		return nil, err
	}
	return &Chunk{
		Samples:  samples,
		Config:   cfg,
		Duration: cfg.DurationFor(len(pcm)),
	}, nil
}

// DecodeBase64Chunk decodes a base64 reply payload and builds a playable
// chunk from it.
func DecodeBase64Chunk(data string, cfg Config) (*Chunk, error) {
	pcm, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, core.NewDecodeError("reply audio payload is not valid base64")
	}
	return DecodeChunk(pcm, cfg)
}

// RMSEnergy computes the root-mean-square energy of normalized samples.
// Returns a value between 0.0 and 1.0, used for level metering.
func RMSEnergy(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
