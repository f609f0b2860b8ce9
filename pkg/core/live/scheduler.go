package live

import (
	"log/slog"
	"sync"
	"time"

	"github.com/auralis-ai/auralis/pkg/core/audio"
)

const defaultSpeakingDebounce = 200 * time.Millisecond

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	// SpeakingDebounce is how long the active-source set must stay empty
	// before the speaking signal flips to false. Default: 200ms.
	SpeakingDebounce time.Duration

	// OnSpeaking is invoked on every speaking transition. Optional.
	OnSpeaking func(speaking bool)

	Logger *slog.Logger
}

// Scheduler serializes arrival-ordered reply chunks into gapless playback
// on a single sink and derives the "is speaking" signal.
//
// Chunks arrive at irregular intervals shorter or longer than their own
// playback duration; scheduling each against max(now, nextStart) instead
// of now keeps playback seamless without a jitter buffer.
type Scheduler struct {
	sink       Sink
	debounce   time.Duration
	onSpeaking func(bool)
	logger     *slog.Logger

	mu        sync.Mutex
	nextStart time.Duration
	active    map[int64]PlaybackHandle
	nextID    int64
	timer     *time.Timer
	speaking  bool
}

// NewScheduler creates a scheduler over the given sink.
func NewScheduler(sink Sink, cfg SchedulerConfig) *Scheduler {
	if cfg.SpeakingDebounce <= 0 {
		cfg.SpeakingDebounce = defaultSpeakingDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{
		sink:       sink,
		debounce:   cfg.SpeakingDebounce,
		onSpeaking: cfg.OnSpeaking,
		logger:     cfg.Logger,
		active:     make(map[int64]PlaybackHandle),
	}
}

// Enqueue schedules chunk to begin at max(clock now, next start time),
// back-to-back with previously queued audio. Any pending speaking debounce
// is cancelled and speaking becomes true.
func (p *Scheduler) Enqueue(chunk *audio.Chunk) error {
	if p == nil || chunk == nil || len(chunk.Samples) == 0 {
		return nil
	}

	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}

	startAt := p.sink.Now()
	if p.nextStart > startAt {
		startAt = p.nextStart
	}

	id := p.nextID
	p.nextID++
	handle, err := p.sink.Schedule(chunk, startAt, func() { p.onEnded(id) })
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.active[id] = handle
	p.nextStart = startAt + chunk.Duration

	wasSpeaking := p.speaking
	p.speaking = true
	p.mu.Unlock()

	if !wasSpeaking {
		p.emitSpeaking(true)
	}
	return nil
}

// onEnded removes one naturally finished playback from the active set and
// arms the speaking debounce when the set empties. A handle is removed
// exactly once; late callbacks after an interrupt are ignored.
func (p *Scheduler) onEnded(id int64) {
	p.mu.Lock()
	if _, ok := p.active[id]; !ok {
		p.mu.Unlock()
		return
	}
	delete(p.active, id)
	if len(p.active) == 0 && p.timer == nil {
		p.timer = time.AfterFunc(p.debounce, p.debounceFired)
	}
	p.mu.Unlock()
}

func (p *Scheduler) debounceFired() {
	p.mu.Lock()
	p.timer = nil
	if len(p.active) != 0 || !p.speaking {
		p.mu.Unlock()
		return
	}
	p.speaking = false
	p.mu.Unlock()

	p.emitSpeaking(false)
}

// Interrupt stops every active playback immediately, clears the set,
// cancels the debounce, flips speaking to false and resets the next start
// time to zero. Also used to reset scheduler state on session start.
func (p *Scheduler) Interrupt() {
	if p == nil {
		return
	}

	p.mu.Lock()
	handles := make([]PlaybackHandle, 0, len(p.active))
	for _, h := range p.active {
		handles = append(handles, h)
	}
	p.active = make(map[int64]PlaybackHandle)
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	wasSpeaking := p.speaking
	p.speaking = false
	p.nextStart = 0
	p.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}
	if wasSpeaking {
		p.emitSpeaking(false)
	}
}

// Close stops all scheduled playback and cancels the debounce. The sink's
// lifetime is owned by the caller. Idempotent.
func (p *Scheduler) Close() error {
	p.Interrupt()
	return nil
}

// IsSpeaking reports whether reply audio is playing or queued (with the
// debounce window counted as still speaking).
func (p *Scheduler) IsSpeaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speaking
}

// NextStart returns the scheduled start offset for the next queued chunk.
// Monotonically non-decreasing between resets.
func (p *Scheduler) NextStart() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextStart
}

// ActiveCount returns the number of scheduled, not-yet-finished playbacks.
func (p *Scheduler) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

func (p *Scheduler) emitSpeaking(speaking bool) {
	if p.onSpeaking != nil {
		p.onSpeaking(speaking)
	}
}
