package stream

// compactThreshold is the number of consumed slots tolerated before the
// backing slice is compacted.
const compactThreshold = 64

// Queue is a FIFO with O(1) push and amortized O(1) shift. It is not safe for
// concurrent use; the stream buffer guards it.
type Queue[T any] struct {
	items []T
	head  int
}

// Push appends v.
func (q *Queue[T]) Push(v T) {
	q.items = append(q.items, v)
}

// Shift removes and returns the oldest value.
func (q *Queue[T]) Shift() (T, bool) {
	var zero T
	if q.head >= len(q.items) {
		return zero, false
	}
	v := q.items[q.head]
	q.items[q.head] = zero
	q.head++

	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head >= compactThreshold && q.head*2 >= len(q.items):
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return v, true
}

// Peek returns the oldest value without removing it.
func (q *Queue[T]) Peek() (T, bool) {
	if q.head >= len(q.items) {
		var zero T
		return zero, false
	}
	return q.items[q.head], true
}

// Len returns the number of queued values.
func (q *Queue[T]) Len() int {
	return len(q.items) - q.head
}

// Drain removes and returns every queued value in order.
func (q *Queue[T]) Drain() []T {
	out := make([]T, q.Len())
	copy(out, q.items[q.head:])
	clear(q.items)
	q.items = q.items[:0]
	q.head = 0
	return out
}
