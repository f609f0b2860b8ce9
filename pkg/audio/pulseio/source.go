package pulseio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"

	"github.com/auralis-ai/auralis/pkg/core/audio"
)

// Source captures 16kHz mono s16 microphone audio and yields normalized
// fixed-size sample frames. It satisfies the voice session's source
// contract: Open acquires the device, Frames streams until Close, and a
// closed source can be opened again for the next session.
type Source struct {
	requested string
	logger    *slog.Logger
	cfg       audio.Config
	frameLen  int // bytes per emitted frame

	mu      sync.Mutex
	client  *pulse.Client
	stream  *pulse.RecordStream
	frames  chan []float32
	stopCh  chan struct{}
	pending []byte
	open    bool

	inflight sync.WaitGroup
}

// NewSource creates an unopened source. requested selects the device by
// id or description substring; empty means the server default.
func NewSource(requested string, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := audio.CaptureConfig()
	return &Source{
		requested: requested,
		logger:    logger,
		cfg:       cfg,
		frameLen:  audio.FrameSamples * 2,
	}
}

// Open resolves the device and starts the record stream.
func (s *Source) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		return fmt.Errorf("microphone source is already open")
	}

	selection, err := SelectDevice(ctx, s.requested)
	if err != nil {
		return err
	}
	if selection.Warning != "" {
		s.logger.Warn(selection.Warning)
	}

	client, err := pulse.NewClient(
		pulse.ClientApplicationName(clientName),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}

	source, err := client.SourceByID(selection.Device.ID)
	if err != nil {
		client.Close()
		return fmt.Errorf("resolve source %q: %w", selection.Device.ID, err)
	}

	s.client = client
	s.frames = make(chan []float32, 64)
	s.stopCh = make(chan struct{})
	s.pending = nil

	writer := pulse.NewWriter(writerFunc(s.onPCM), pulseproto.FormatInt16LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(s.cfg.SampleRate),
		pulse.RecordBufferFragmentSize(uint32(s.frameLen)),
		pulse.RecordMediaName("auralis voice session"),
	)
	if err != nil {
		client.Close()
		s.client = nil
		return fmt.Errorf("create pulse record stream: %w", err)
	}

	s.stream = stream
	s.open = true
	stream.Start()
	s.logger.Info("microphone capture started", "device", selection.Device.ID, "sample_rate", s.cfg.SampleRate)
	return nil
}

// Frames yields normalized sample frames. The channel is closed by Close.
func (s *Source) Frames() <-chan []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Close stops the stream, releases the device and closes the frame
// channel. Safe without a prior Open and safe to call twice; the source
// may be opened again afterward.
func (s *Source) Close() error {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil
	}
	s.open = false
	close(s.stopCh)
	stream := s.stream
	client := s.client
	frames := s.frames
	s.stream = nil
	s.client = nil
	s.pending = nil
	s.mu.Unlock()

	if stream != nil {
		stream.Stop()
		stream.Close()
	}
	if client != nil {
		client.Close()
	}

	s.inflight.Wait()
	close(frames)
	return nil
}

// onPCM receives raw bytes from Pulse, cuts them into full frames and
// converts to normalized samples. Residual bytes stay pending for the
// next callback.
func (s *Source) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return 0, io.EOF
	}
	// Add is guarded by the same mutex as s.open so Close's Wait cannot
	// race a late Add.
	s.inflight.Add(1)

	s.pending = append(s.pending, buffer...)
	var cut [][]byte
	for len(s.pending) >= s.frameLen {
		frame := make([]byte, s.frameLen)
		copy(frame, s.pending[:s.frameLen])
		s.pending = s.pending[s.frameLen:]
		cut = append(cut, frame)
	}
	frames := s.frames
	stopCh := s.stopCh
	s.mu.Unlock()
	defer s.inflight.Done()

	for _, raw := range cut {
		samples, err := audio.DecodePCM16(raw)
		if err != nil {
			return 0, err
		}
		select {
		case <-stopCh:
			return 0, io.EOF
		case frames <- samples:
		}
	}
	return len(buffer), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
