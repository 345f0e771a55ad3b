// ABOUTME: Rolling chunk buffer shared by one producer and many senders
// ABOUTME: Assigns monotonic chunk ids and supports lookups by distance from the newest chunk
package ringbuf

import (
	"context"
	"sync"
)

// Buffer holds the most recent chunks up to a runtime-adjustable capacity.
// Chunks must not be modified after Append.
type Buffer struct {
	mu     sync.RWMutex
	cond   *sync.Cond
	slots  [][]byte
	head   int // index of the oldest chunk
	count  int
	newest int64
}

// New creates an empty buffer. Capacity is clamped to at least 1.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	b := &Buffer{
		slots:  make([][]byte, capacity),
		newest: -1,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Append stores chunk under the next id, evicting the oldest chunk when
// full, and returns the id.
func (b *Buffer) Append(chunk []byte) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.slots)
	if b.count < capacity {
		b.slots[(b.head+b.count)%capacity] = chunk
		b.count++
	} else {
		b.slots[b.head] = chunk
		b.head = (b.head + 1) % capacity
	}
	b.newest++
	b.cond.Broadcast()
	return b.newest
}

// Peek returns the chunk pos places back from the newest (1 = newest) and
// its id. pos is clamped to [1, Len()]. An empty buffer yields nil, -1.
func (b *Buffer) Peek(pos int) ([]byte, int64) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.count == 0 {
		return nil, -1
	}
	if pos < 1 {
		pos = 1
	}
	if pos > b.count {
		pos = b.count
	}
	idx := (b.head + b.count - pos) % len(b.slots)
	return b.slots[idx], b.newest - int64(pos) + 1
}

// At returns the chunk with the given id if it is still held
func (b *Buffer) At(id int64) ([]byte, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	pos := int(b.newest-id) + 1
	if b.count == 0 || pos < 1 || pos > b.count {
		return nil, false
	}
	return b.slots[(b.head+b.count-pos)%len(b.slots)], true
}

// Locate returns the chunk with the given id, its id and its position
// (1 = newest) from one snapshot. An evicted id resolves to the oldest chunk
// held and an id past the newest to the newest. An empty buffer yields
// nil, -1, 0.
func (b *Buffer) Locate(id int64) ([]byte, int64, int) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.count == 0 {
		return nil, -1, 0
	}
	pos := b.newest - id + 1
	if pos < 1 {
		pos = 1
	}
	if pos > int64(b.count) {
		pos = int64(b.count)
	}
	idx := (b.head + b.count - int(pos)) % len(b.slots)
	return b.slots[idx], b.newest - pos + 1, int(pos)
}

// SetCapacity resizes the buffer, dropping the oldest chunks that no longer fit
func (b *Buffer) SetCapacity(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resize(capacity)
}

func (b *Buffer) resize(capacity int) {
	if capacity == len(b.slots) {
		return
	}
	keep := b.count
	if keep > capacity {
		keep = capacity
	}
	slots := make([][]byte, capacity)
	for i := 0; i < keep; i++ {
		slots[i] = b.slots[(b.head+b.count-keep+i)%len(b.slots)]
	}
	b.slots = slots
	b.head = 0
	b.count = keep
}

// Grow raises the capacity by step without exceeding max. It reports
// whether the capacity changed.
func (b *Buffer) Grow(step, max int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.slots)
	if capacity >= max || step <= 0 {
		return false
	}
	next := capacity + step
	if next > max {
		next = max
	}
	b.resize(next)
	return true
}

// Shrink lowers the capacity by step without going under min. It reports
// whether the capacity changed.
func (b *Buffer) Shrink(step, min int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.slots)
	if min < 1 {
		min = 1
	}
	if capacity <= min || step <= 0 {
		return false
	}
	next := capacity - step
	if next < min {
		next = min
	}
	b.resize(next)
	return true
}

// Len returns the number of chunks held
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Cap returns the current capacity
func (b *Buffer) Cap() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.slots)
}

// Newest returns the id of the most recent chunk, or -1 if none was appended
func (b *Buffer) Newest() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.newest
}

// WaitFor blocks until the buffer holds at least n chunks
func (b *Buffer) WaitFor(ctx context.Context, n int) error {
	return b.wait(ctx, func() bool { return b.count >= n })
}

// WaitNewer blocks until a chunk with an id greater than id is appended
func (b *Buffer) WaitNewer(ctx context.Context, id int64) error {
	return b.wait(ctx, func() bool { return b.newest > id })
}

func (b *Buffer) wait(ctx context.Context, ready func() bool) error {
	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		b.cond.Broadcast()
		b.mu.Unlock()
	})
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()
	for !ready() {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.cond.Wait()
	}
	return nil
}
