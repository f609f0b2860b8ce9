package live

import (
	"sync"
	"testing"
	"time"

	"github.com/auralis-ai/auralis/pkg/core/audio"
)

// fakeSink records scheduled playbacks against a manually advanced clock.
type fakeSink struct {
	mu        sync.Mutex
	now       time.Duration
	scheduled []*fakePlayback
}

type fakePlayback struct {
	chunk   *audio.Chunk
	at      time.Duration
	onEnded func()

	mu      sync.Mutex
	stopped bool
}

func (h *fakePlayback) Stop() {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
}

func (h *fakePlayback) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// finish simulates natural playback end.
func (h *fakePlayback) finish() {
	h.mu.Lock()
	stopped := h.stopped
	h.mu.Unlock()
	if !stopped {
		h.onEnded()
	}
}

func (s *fakeSink) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *fakeSink) advance(d time.Duration) {
	s.mu.Lock()
	s.now += d
	s.mu.Unlock()
}

func (s *fakeSink) Schedule(chunk *audio.Chunk, at time.Duration, onEnded func()) (PlaybackHandle, error) {
	h := &fakePlayback{chunk: chunk, at: at, onEnded: onEnded}
	s.mu.Lock()
	s.scheduled = append(s.scheduled, h)
	s.mu.Unlock()
	return h, nil
}

func (s *fakeSink) Close() error { return nil }

func (s *fakeSink) entries() []*fakePlayback {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakePlayback(nil), s.scheduled...)
}

func chunkOf(d time.Duration) *audio.Chunk {
	cfg := audio.PlaybackConfig()
	return &audio.Chunk{
		Samples:  make([]float32, cfg.BytesFor(d)/2),
		Config:   cfg,
		Duration: d,
	}
}

func TestSchedulerGaplessStartTimes(t *testing.T) {
	sink := &fakeSink{}
	p := NewScheduler(sink, SchedulerConfig{})

	// Three chunks arrive before any playback finished.
	durations := []time.Duration{100 * time.Millisecond, 250 * time.Millisecond, 40 * time.Millisecond}
	for _, d := range durations {
		if err := p.Enqueue(chunkOf(d)); err != nil {
			t.Fatalf("Enqueue error: %v", err)
		}
	}

	entries := sink.entries()
	if len(entries) != 3 {
		t.Fatalf("scheduled %d playbacks, want 3", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		minStart := entries[i-1].at + entries[i-1].chunk.Duration
		if entries[i].at < minStart {
			t.Errorf("playback %d starts at %v, overlaps previous ending at %v", i, entries[i].at, minStart)
		}
		if entries[i].at < entries[i-1].at {
			t.Errorf("start times not non-decreasing: %v after %v", entries[i].at, entries[i-1].at)
		}
	}
	if got := p.NextStart(); got != 390*time.Millisecond {
		t.Errorf("NextStart = %v, want 390ms", got)
	}
}

func TestSchedulerStartsAtClockAfterGap(t *testing.T) {
	sink := &fakeSink{}
	p := NewScheduler(sink, SchedulerConfig{})

	if err := p.Enqueue(chunkOf(50 * time.Millisecond)); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	// Playback finished long ago; the clock is past nextStart.
	sink.entries()[0].finish()
	sink.advance(500 * time.Millisecond)

	if err := p.Enqueue(chunkOf(50 * time.Millisecond)); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	second := sink.entries()[1]
	if second.at != 500*time.Millisecond {
		t.Errorf("second chunk starts at %v, want clock now (500ms)", second.at)
	}
}

func TestSchedulerInterrupt(t *testing.T) {
	sink := &fakeSink{}
	p := NewScheduler(sink, SchedulerConfig{})

	for i := 0; i < 3; i++ {
		if err := p.Enqueue(chunkOf(time.Second)); err != nil {
			t.Fatalf("Enqueue error: %v", err)
		}
	}
	if !p.IsSpeaking() {
		t.Fatal("expected speaking after enqueue")
	}

	p.Interrupt()

	if p.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d after interrupt, want 0", p.ActiveCount())
	}
	if p.IsSpeaking() {
		t.Error("still speaking after interrupt")
	}
	if p.NextStart() != 0 {
		t.Errorf("NextStart = %v after interrupt, want 0", p.NextStart())
	}
	for i, h := range sink.entries() {
		if !h.Stopped() {
			t.Errorf("playback %d not stopped by interrupt", i)
		}
	}

	// Interrupt is idempotent, as is Close.
	p.Interrupt()
	if err := p.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if p.ActiveCount() != 0 || p.IsSpeaking() || p.NextStart() != 0 {
		t.Error("state changed by second interrupt")
	}
}

func TestSchedulerSpeakingDebounce(t *testing.T) {
	var mu sync.Mutex
	var transitions []bool
	sink := &fakeSink{}
	p := NewScheduler(sink, SchedulerConfig{
		SpeakingDebounce: 10 * time.Millisecond,
		OnSpeaking: func(speaking bool) {
			mu.Lock()
			transitions = append(transitions, speaking)
			mu.Unlock()
		},
	})

	if err := p.Enqueue(chunkOf(20 * time.Millisecond)); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	sink.entries()[0].finish()

	deadline := time.Now().Add(time.Second)
	for p.IsSpeaking() {
		if time.Now().After(deadline) {
			t.Fatal("speaking never flipped false after debounce")
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	got := append([]bool(nil), transitions...)
	mu.Unlock()
	if len(got) != 2 || !got[0] || got[1] {
		t.Errorf("transitions = %v, want [true false]", got)
	}
}

func TestSchedulerEnqueueCancelsDebounce(t *testing.T) {
	sink := &fakeSink{}
	p := NewScheduler(sink, SchedulerConfig{SpeakingDebounce: 30 * time.Millisecond})

	if err := p.Enqueue(chunkOf(20 * time.Millisecond)); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	sink.entries()[0].finish()

	// New audio arrives inside the debounce window.
	if err := p.Enqueue(chunkOf(20 * time.Millisecond)); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	time.Sleep(60 * time.Millisecond)
	if !p.IsSpeaking() {
		t.Error("speaking flipped false despite new enqueue cancelling the debounce")
	}
}

func TestSchedulerIgnoresLateEndAfterInterrupt(t *testing.T) {
	sink := &fakeSink{}
	p := NewScheduler(sink, SchedulerConfig{SpeakingDebounce: 5 * time.Millisecond})

	if err := p.Enqueue(chunkOf(time.Second)); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	h := sink.entries()[0]
	p.Interrupt()

	// A racing natural-end callback for an already-cleared handle must not
	// disturb the interrupted state.
	h.onEnded()
	if p.ActiveCount() != 0 || p.NextStart() != 0 {
		t.Error("late onEnded changed scheduler state")
	}
}
