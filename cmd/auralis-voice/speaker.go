package main

import (
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/auralis-ai/auralis/pkg/core/audio"
	"github.com/auralis-ai/auralis/pkg/core/live"
)

// ffplaySpeaker pipes raw PCM to an ffplay child process. ffplay keeps
// the device open for the whole session so chunk boundaries stay
// inaudible.
type ffplaySpeaker struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

func startFFplaySpeaker(path string, cfg audio.Config, volume int) (*ffplaySpeaker, error) {
	if path == "" {
		path = "ffplay"
	}
	cmd := exec.Command(path,
		"-f", "s16le",
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-ch_layout", "mono",
		"-nodisp",
		"-loglevel", "error",
		"-volume", strconv.Itoa(volume),
		"-i", "-",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffplay stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffplay: %w", err)
	}
	return &ffplaySpeaker{cmd: cmd, stdin: stdin}, nil
}

func (f *ffplaySpeaker) Write(p []byte) (int, error) {
	return f.stdin.Write(p)
}

func (f *ffplaySpeaker) Close() error {
	_ = f.stdin.Close()
	return f.cmd.Wait()
}

// speakerSink adapts a raw PCM writer to the playback sink contract. Its
// clock starts at construction; scheduled chunks are written when the
// clock reaches their start offset and onEnded fires after the chunk's
// play duration unless the handle was stopped.
type speakerSink struct {
	w      io.Writer
	epoch  time.Time
	closer io.Closer

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

func newSpeakerSink(w io.Writer, closer io.Closer) *speakerSink {
	return &speakerSink{w: w, epoch: time.Now(), closer: closer}
}

func (s *speakerSink) Now() time.Duration {
	return time.Since(s.epoch)
}

func (s *speakerSink) Schedule(chunk *audio.Chunk, at time.Duration, onEnded func()) (live.PlaybackHandle, error) {
	h := &speakerPlayback{stop: make(chan struct{})}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if delay := at - s.Now(); delay > 0 {
			select {
			case <-time.After(delay):
			case <-h.stop:
				return
			}
		}
		select {
		case <-h.stop:
			return
		default:
		}

		pcm := audio.EncodePCM16(chunk.Samples)
		s.writeMu.Lock()
		_, err := s.w.Write(pcm)
		s.writeMu.Unlock()
		if err != nil {
			// The speaker process died; the session notices through the
			// transport, not through playback.
			return
		}

		select {
		case <-time.After(chunk.Duration):
			onEnded()
		case <-h.stop:
		}
	}()
	return h, nil
}

func (s *speakerSink) Close() error {
	s.wg.Wait()
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

type speakerPlayback struct {
	once sync.Once
	stop chan struct{}
}

func (p *speakerPlayback) Stop() {
	p.once.Do(func() { close(p.stop) })
}
