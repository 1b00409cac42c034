package console

import "sync"

// Buffer is a thread-safe FIFO ring that doubles its capacity when it
// reaches 70% occupancy. Receivers block until data arrives or the
// buffer is closed.
type Buffer[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	head   int
	count  int
	closed bool

	// Stats
	received int64
	drained  int64
	grows    int
}

// BufferStats contains buffer statistics.
type BufferStats struct {
	Len      int
	Cap      int
	Received int64
	Drained  int64
	Grows    int
}

// NewBuffer creates a buffer with the given initial capacity.
func NewBuffer[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	b := &Buffer[T]{items: make([]T, capacity)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Send appends an item, growing the ring ahead of saturation. Returns
// false once the buffer is closed.
func (b *Buffer[T]) Send(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	// Grow at 70% occupancy so bursts land without back-to-back
	// reallocations.
	threshold := len(b.items) * 70 / 100
	if threshold < 1 {
		threshold = 1
	}
	if b.count+1 >= threshold {
		b.grow()
	}

	b.items[(b.head+b.count)%len(b.items)] = item
	b.count++
	b.received++

	b.cond.Signal()
	return true
}

// Receive blocks until an item is available or the buffer is closed
// and empty, in which case ok is false.
func (b *Buffer[T]) Receive() (item T, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}
	if b.count == 0 {
		return item, false
	}
	return b.pop(), true
}

// TryReceive is Receive without blocking.
func (b *Buffer[T]) TryReceive() (item T, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return item, false
	}
	return b.pop(), true
}

// Close stops the buffer. Receivers drain remaining items, then get
// ok=false. Safe to call more than once.
func (b *Buffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.cond.Broadcast()
}

// Len returns the number of buffered items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Stats returns buffer statistics.
func (b *Buffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Len:      b.count,
		Cap:      len(b.items),
		Received: b.received,
		Drained:  b.drained,
		Grows:    b.grows,
	}
}

// pop removes the head item. Lock must be held.
func (b *Buffer[T]) pop() T {
	item := b.items[b.head]
	var zero T
	b.items[b.head] = zero // release for GC
	b.head = (b.head + 1) % len(b.items)
	b.count--
	b.drained++
	return item
}

// grow doubles capacity, unwrapping the ring. Lock must be held.
func (b *Buffer[T]) grow() {
	next := make([]T, len(b.items)*2)
	for i := 0; i < b.count; i++ {
		next[i] = b.items[(b.head+i)%len(b.items)]
	}
	b.items = next
	b.head = 0
	b.grows++
}
