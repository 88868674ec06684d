package store

import "sync"

// ring is a fixed-capacity FIFO. Pushing onto a full ring evicts the oldest item.
type ring[T any] struct {
	mu      sync.Mutex
	buf     []T
	head    int // oldest item
	count   int
	evicted int64
}

func newRing[T any](capacity int) *ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ring[T]{buf: make([]T, capacity)}
}

// push appends item. When the ring is full the oldest item is evicted and
// returned with ok=true.
func (r *ring[T]) push(item T) (old T, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == len(r.buf) {
		old, ok = r.buf[r.head], true
		r.buf[r.head] = item
		r.head = (r.head + 1) % len(r.buf)
		r.evicted++
		return old, ok
	}

	r.buf[(r.head+r.count)%len(r.buf)] = item
	r.count++
	return old, false
}

// drain removes and returns up to max items, oldest first. max <= 0 drains all.
func (r *ring[T]) drain(max int) []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.count
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}

	out := make([]T, n)
	var zero T
	for i := range out {
		out[i] = r.buf[r.head]
		r.buf[r.head] = zero
		r.head = (r.head + 1) % len(r.buf)
	}
	r.count -= n
	return out
}

// newest returns up to max items without removing them, newest first.
func (r *ring[T]) newest(max int) []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.count
	if max > 0 && max < n {
		n = max
	}
	out := make([]T, n)
	for i := range out {
		out[i] = r.buf[(r.head+r.count-1-i)%len(r.buf)]
	}
	return out
}

func (r *ring[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (r *ring[T]) evictions() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evicted
}
