// ABOUTME: Adaptive ring buffer sizing driven by how far behind clients read
// ABOUTME: Periodically shrinks capacity when no session used the oldest chunks
package server

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/lanaudio/internal/ringbuf"
)

// lagMark records the deepest buffer position any session read from
type lagMark struct {
	highest atomic.Int64
}

// Observe raises the mark to pos if it is higher
func (m *lagMark) Observe(pos int) {
	for {
		cur := m.highest.Load()
		if int64(pos) <= cur || m.highest.CompareAndSwap(cur, int64(pos)) {
			return
		}
	}
}

// Reset returns the mark and starts a new observation window
func (m *lagMark) Reset() int {
	return int(m.highest.Swap(0))
}

func (m *lagMark) Load() int {
	return int(m.highest.Load())
}

// BufferController shrinks the ring when sessions stay close to the newest
// chunk. Sessions grow it themselves when they fall off the end.
type BufferController struct {
	ring      *ringbuf.Buffer
	lag       *lagMark
	increment int
	min       int
	interval  time.Duration
	debug     bool
}

func newBufferController(ring *ringbuf.Buffer, lag *lagMark, increment, min int, interval time.Duration, debug bool) *BufferController {
	return &BufferController{
		ring:      ring,
		lag:       lag,
		increment: increment,
		min:       min,
		interval:  interval,
		debug:     debug,
	}
}

// Run checks the buffer every interval until ctx is cancelled
func (c *BufferController) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Check()
		}
	}
}

// Check runs one sizing cycle and reports whether the capacity changed
func (c *BufferController) Check() bool {
	highest := c.lag.Reset()
	capacity := c.ring.Cap()

	if c.debug {
		log.Printf("[DEBUG] Buffer check: highest position %d, capacity %d, length %d",
			highest, capacity, c.ring.Len())
	}

	if highest > capacity-c.increment {
		return false
	}
	// Shrink floors the capacity at min
	if !c.ring.Shrink(c.increment, c.min) {
		return false
	}
	log.Printf("Buffer shrunk to %d chunks (highest position used: %d)", c.ring.Cap(), highest)
	return true
}
