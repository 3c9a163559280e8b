package journal

import (
	"context"
	"sync"
)

// Buffer is a goroutine-safe FIFO ring that doubles its capacity once it is 70% full,
// up to a maximum. At the maximum, Send drops the item.
//
// Receive is meant for a single consumer.
type Buffer[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	count  int
	max    int
	closed bool

	ready chan struct{}
	done  chan struct{}

	stats BufferStats
}

// BufferStats contains buffer statistics.
type BufferStats struct {
	Count    int
	Capacity int
	Received int64 // accepted by Send
	Sent     int64 // handed to consumers
	Dropped  int64 // rejected at maximum capacity
	Resizes  int
}

// NewBuffer creates a buffer with the given initial capacity. maxCapacity <= 0 means
// unbounded.
func NewBuffer[T any](initialCapacity, maxCapacity int) *Buffer[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	if maxCapacity > 0 && maxCapacity < initialCapacity {
		maxCapacity = initialCapacity
	}
	return &Buffer[T]{
		items: make([]T, initialCapacity),
		max:   maxCapacity,
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Send appends item. It returns false if the buffer is closed or full at its maximum.
func (b *Buffer[T]) Send(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	threshold := max(len(b.items)*70/100, 1)
	if b.count+1 >= threshold && b.canGrow() {
		b.grow()
	}
	if b.count == len(b.items) {
		b.stats.Dropped++
		return false
	}

	b.items[(b.head+b.count)%len(b.items)] = item
	b.count++
	b.stats.Received++

	select {
	case b.ready <- struct{}{}:
	default:
	}
	return true
}

// Receive blocks until an item is available, the buffer is closed and empty, or ctx is
// done. The bool is false when no item was returned.
func (b *Buffer[T]) Receive(ctx context.Context) (T, bool) {
	for {
		if item, ok := b.TryReceive(); ok {
			return item, true
		}

		b.mu.Lock()
		closed := b.closed
		b.mu.Unlock()
		if closed {
			var zero T
			return zero, false
		}

		select {
		case <-b.ready:
		case <-b.done:
		case <-ctx.Done():
			var zero T
			return zero, false
		}
	}
}

// TryReceive removes the oldest item without blocking.
func (b *Buffer[T]) TryReceive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.pop(), true
}

// DrainTo removes up to limit items (all when limit <= 0) in FIFO order.
func (b *Buffer[T]) DrainTo(limit int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}

	n := b.count
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]T, n)
	for i := range out {
		out[i] = b.pop()
	}
	return out
}

// Close stops accepting items and wakes a blocked Receive. Buffered items can still be
// received.
func (b *Buffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
}

// Len returns the number of buffered items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the current capacity.
func (b *Buffer[T]) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Stats returns buffer statistics.
func (b *Buffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.stats
	s.Count = b.count
	s.Capacity = len(b.items)
	return s
}

// pop removes the head item. Must be called with mu held and count > 0.
func (b *Buffer[T]) pop() T {
	item := b.items[b.head]
	var zero T
	b.items[b.head] = zero
	b.head = (b.head + 1) % len(b.items)
	b.count--
	b.stats.Sent++
	return item
}

func (b *Buffer[T]) canGrow() bool {
	return b.max <= 0 || len(b.items) < b.max
}

// grow doubles capacity, capped at max, and unwraps the ring. Must be called with mu held.
func (b *Buffer[T]) grow() {
	newCap := len(b.items) * 2
	if b.max > 0 && newCap > b.max {
		newCap = b.max
	}

	items := make([]T, newCap)
	for i := 0; i < b.count; i++ {
		items[i] = b.items[(b.head+i)%len(b.items)]
	}

	b.items = items
	b.head = 0
	b.stats.Resizes++
}
