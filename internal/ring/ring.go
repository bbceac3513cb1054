// Package ring provides a growable sequence that optionally evicts its
// oldest element once a fixed capacity is reached.
package ring

// Ring holds values oldest first. A capacity of zero or less never evicts.
// Ring is not safe for concurrent use.
type Ring[T any] struct {
	buf   []T
	start int
	limit int
}

// New returns an empty ring bounded to capacity elements.
func New[T any](capacity int) *Ring[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Ring[T]{limit: capacity}
}

// Push appends v. When the ring is full the oldest value is overwritten and
// returned with evicted set.
func (r *Ring[T]) Push(v T) (old T, evicted bool) {
	if r.limit == 0 || len(r.buf) < r.limit {
		r.buf = append(r.buf, v)
		return old, false
	}
	old = r.buf[r.start]
	r.buf[r.start] = v
	r.start = (r.start + 1) % r.limit
	return old, true
}

// Len returns the number of values held.
func (r *Ring[T]) Len() int { return len(r.buf) }

// Cap returns the configured capacity, zero when unbounded.
func (r *Ring[T]) Cap() int { return r.limit }

// At returns the i-th value, 0 being the oldest.
func (r *Ring[T]) At(i int) T {
	return r.buf[r.index(i)]
}

// Set replaces the i-th value, 0 being the oldest.
func (r *Ring[T]) Set(i int, v T) {
	r.buf[r.index(i)] = v
}

// Reset drops every value.
func (r *Ring[T]) Reset() {
	clear(r.buf)
	r.buf = r.buf[:0]
	r.start = 0
}

func (r *Ring[T]) index(i int) int {
	if i < 0 || i >= len(r.buf) {
		panic("ring: index out of range")
	}
	return (r.start + i) % len(r.buf)
}
