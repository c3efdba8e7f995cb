package supervisor

import (
	"strings"
	"sync"
	"time"

	"github.com/charliek/catview/internal/clock"
)

// Coalescer batches text and emits it at most once per window, or
// immediately once the batch reaches the size threshold.
//
// Calls must be serialized by the owner. The owner's lock is passed as
// guard and is held when the window timer fires; emit always runs with the
// guard held.
type Coalescer struct {
	clock     clock.Clock
	window    time.Duration
	threshold int
	guard     sync.Locker
	emit      func(string)

	buf   strings.Builder
	timer clock.Timer
}

// NewCoalescer creates a coalescer. guard may be nil when the caller is
// single threaded.
func NewCoalescer(clk clock.Clock, window time.Duration, threshold int, guard sync.Locker, emit func(string)) *Coalescer {
	return &Coalescer{
		clock:     clk,
		window:    window,
		threshold: threshold,
		guard:     guard,
		emit:      emit,
	}
}

// Add queues text, arming the window timer if needed
func (c *Coalescer) Add(text string) {
	if text == "" {
		return
	}
	c.buf.WriteString(text)
	if c.buf.Len() >= c.threshold {
		c.Flush()
		return
	}
	if c.timer == nil {
		c.timer = c.clock.AfterFunc(c.window, c.due)
	}
}

// Flush emits everything queued and disarms the timer
func (c *Coalescer) Flush() {
	c.cancel()
	if c.buf.Len() == 0 {
		return
	}
	text := c.buf.String()
	c.buf.Reset()
	c.emit(text)
}

// Take removes and returns queued text without emitting it
func (c *Coalescer) Take() string {
	c.cancel()
	text := c.buf.String()
	c.buf.Reset()
	return text
}

// Len returns the queued size in bytes
func (c *Coalescer) Len() int {
	return c.buf.Len()
}

// Armed reports whether the window timer is pending
func (c *Coalescer) Armed() bool {
	return c.timer != nil
}

func (c *Coalescer) cancel() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Coalescer) due() {
	if c.guard != nil {
		c.guard.Lock()
		defer c.guard.Unlock()
	}
	c.Flush()
}
