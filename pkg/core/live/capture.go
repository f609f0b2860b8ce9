package live

import (
	"log/slog"
	"sync"

	"github.com/auralis-ai/auralis/pkg/core/audio"
)

// capturePump cuts the microphone stream into encoded frames and pushes
// them to the transport send path. Frames are queued in capture order
// against the transport's own backpressure: a slow transport grows the
// local queue instead of stalling the source.
type capturePump struct {
	cfg    audio.Config
	send   func(audio.Blob) error
	logger *slog.Logger

	mu      sync.Mutex
	queue   []audio.Blob
	stopped bool

	wake   chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup

	stopOnce sync.Once
}

// startCapturePump begins pumping frames. The pump exits when frames is
// closed or Stop is called, whichever comes first.
func startCapturePump(frames <-chan []float32, cfg audio.Config, send func(audio.Blob) error, logger *slog.Logger) *capturePump {
	if logger == nil {
		logger = slog.Default()
	}
	c := &capturePump{
		cfg:    cfg,
		send:   send,
		logger: logger,
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
	c.wg.Add(2)
	go c.pumpLoop(frames)
	go c.sendLoop()
	return c
}

// levelLogInterval is how many frames pass between capture level logs.
const levelLogInterval = 64

func (c *capturePump) pumpLoop(frames <-chan []float32) {
	defer c.wg.Done()
	var count int
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				c.closeQueue()
				return
			}
			if len(frame) == 0 {
				continue
			}
			count++
			if count%levelLogInterval == 0 {
				c.logger.Debug("capture level", "rms", audio.RMSEnergy(frame), "frames", count)
			}
			c.enqueue(audio.EncodeFrame(frame, c.cfg))
		case <-c.stopCh:
			c.closeQueue()
			return
		}
	}
}

func (c *capturePump) enqueue(blob audio.Blob) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.queue = append(c.queue, blob)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *capturePump) closeQueue() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *capturePump) sendLoop() {
	defer c.wg.Done()
	for {
		c.mu.Lock()
		batch := c.queue
		c.queue = nil
		stopped := c.stopped
		c.mu.Unlock()

		for _, blob := range batch {
			if err := c.send(blob); err != nil {
				// Transport failures surface through the message loop;
				// the pump just keeps local capture order intact.
				c.logger.Debug("capture frame send failed", "error", err)
			}
		}

		if stopped && len(batch) == 0 {
			return
		}
		if len(batch) == 0 {
			<-c.wake
		}
	}
}

// queuedFrames reports the number of frames waiting on the transport.
func (c *capturePump) queuedFrames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Stop halts the pump and waits for in-flight sends to drain. Safe to call
// more than once and safe when the source already closed.
func (c *capturePump) Stop() {
	if c == nil {
		return
	}
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
}
