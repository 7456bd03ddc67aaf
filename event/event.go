// Package event provides the small observable primitives used by contexts and
// streams: a Latch that remembers its terminal value and replays it to late
// subscribers, and an Emitter for repeated notifications.
package event

import "sync"

// Latch fires at most once. Listeners added after it fired are invoked
// immediately with the stored value, so no transition is ever missed.
type Latch[T any] struct {
	mu        sync.Mutex
	fired     bool
	value     T
	listeners []func(T)
	done      chan struct{}
}

// NewLatch returns an unfired latch.
func NewLatch[T any]() *Latch[T] {
	return &Latch[T]{done: make(chan struct{})}
}

// Fire stores v and notifies listeners. Only the first call wins; later calls
// return false and change nothing.
func (l *Latch[T]) Fire(v T) bool {
	l.mu.Lock()
	if l.fired {
		l.mu.Unlock()
		return false
	}
	l.fired = true
	l.value = v
	listeners := l.listeners
	l.listeners = nil
	close(l.done)
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(v)
	}
	return true
}

// Subscribe registers fn. If the latch already fired, fn runs synchronously
// before Subscribe returns.
func (l *Latch[T]) Subscribe(fn func(T)) {
	l.mu.Lock()
	if l.fired {
		v := l.value
		l.mu.Unlock()
		fn(v)
		return
	}
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// Value returns the stored value and whether the latch fired.
func (l *Latch[T]) Value() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.fired
}

// Fired reports whether the latch fired.
func (l *Latch[T]) Fired() bool {
	_, ok := l.Value()
	return ok
}

// Done is closed once the latch fires.
func (l *Latch[T]) Done() <-chan struct{} {
	return l.done
}

// Emitter delivers every emitted value to the current listeners.
type Emitter[T any] struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]func(T)
	order     []int
}

// Subscribe registers fn and returns a function removing it again.
func (e *Emitter[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[int]func(T))
	}
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	e.order = append(e.order, id)

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.listeners, id)
		for i, v := range e.order {
			if v == id {
				e.order = append(e.order[:i], e.order[i+1:]...)
				break
			}
		}
	}
}

// Emit calls every listener, in subscription order, outside the lock.
func (e *Emitter[T]) Emit(v T) {
	e.mu.Lock()
	fns := make([]func(T), 0, len(e.order))
	for _, id := range e.order {
		fns = append(fns, e.listeners[id])
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len returns the number of listeners.
func (e *Emitter[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.order)
}
