// Package stream implements flow-controlled single producer, single consumer
// channels carrying arbitrary values between commands and file system entries.
//
// A [MemoryStreamBuffer] owns one queue and exposes two views: a [Readable] end
// and a [Writable] end. Readables start paused; Read pulls one value at a time.
// Resume switches to flowing mode where every value is pushed to OnData
// listeners synchronously and in write order.
package stream

import (
	"context"
	"io"
	"sync"

	"github.com/chromium/axiom-sub003/event"
	"github.com/chromium/axiom-sub003/fserr"
)

type pending struct {
	value    any
	consumed func()
}

type buffer struct {
	mu        sync.Mutex
	queue     Queue[pending]
	highWater int
	flowing   bool
	draining  bool
	ended     bool
	closed    bool
	closeErr  error
	changed   chan struct{}

	data    event.Emitter[any]
	end     *event.Latch[struct{}]
	closing *event.Latch[error]
}

func newBuffer(highWater int) *buffer {
	return &buffer{
		highWater: highWater,
		changed:   make(chan struct{}),
		end:       event.NewLatch[struct{}](),
		closing:   event.NewLatch[error](),
	}
}

// broadcastLocked wakes every goroutine blocked on the buffer. Caller holds mu.
func (b *buffer) broadcastLocked() {
	close(b.changed)
	b.changed = make(chan struct{})
}

// endDueLocked reports whether the terminal "end" notification should fire.
func (b *buffer) endDueLocked() bool {
	return b.ended && !b.draining && b.queue.Len() == 0
}

// flush delivers queued values to data listeners while flowing. Only one
// goroutine drains at a time, which keeps delivery in write order even when a
// listener writes back into the same stream.
func (b *buffer) flush() {
	b.mu.Lock()
	if b.draining {
		b.mu.Unlock()
		return
	}
	b.draining = true
	for b.flowing && b.queue.Len() > 0 {
		p, _ := b.queue.Shift()
		b.broadcastLocked()
		b.mu.Unlock()

		b.data.Emit(p.value)
		if p.consumed != nil {
			p.consumed()
		}

		b.mu.Lock()
	}
	b.draining = false
	fireEnd := b.endDueLocked()
	b.mu.Unlock()

	if fireEnd {
		b.end.Fire(struct{}{})
	}
}

func (b *buffer) close(err error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.closeErr = err
	b.broadcastLocked()
	b.mu.Unlock()

	b.closing.Fire(err)
}

// MemoryStreamBuffer pairs the two ends of one in-memory stream.
type MemoryStreamBuffer struct {
	Readable *Readable
	Writable *Writable
}

// NewMemoryStreamBuffer creates a stream. highWater bounds the queue for
// WriteContext; zero means unbounded.
func NewMemoryStreamBuffer(highWater int) *MemoryStreamBuffer {
	b := newBuffer(highWater)
	return &MemoryStreamBuffer{
		Readable: &Readable{b: b},
		Writable: &Writable{b: b},
	}
}

// NewPipe returns both ends of a new unbounded stream.
func NewPipe() (*Readable, *Writable) {
	m := NewMemoryStreamBuffer(0)
	return m.Readable, m.Writable
}

// Readable is the consumer end of a stream.
type Readable struct {
	b *buffer
}

// Read pulls the next value. ok is false when nothing is available. Once the
// stream has ended and the queue is drained, the "end" notification fires.
func (r *Readable) Read() (value any, ok bool) {
	b := r.b
	b.mu.Lock()
	p, ok := b.queue.Shift()
	if ok {
		b.broadcastLocked()
	}
	fireEnd := b.endDueLocked()
	b.mu.Unlock()

	if ok && p.consumed != nil {
		p.consumed()
	}
	if fireEnd {
		b.end.Fire(struct{}{})
	}
	return p.value, ok
}

// ReadContext blocks until a value is available. It returns io.EOF after the
// stream ended and a Runtime error if the stream was closed before ending.
func (r *Readable) ReadContext(ctx context.Context) (any, error) {
	b := r.b
	for {
		if v, ok := r.Read(); ok {
			return v, nil
		}

		b.mu.Lock()
		switch {
		case b.ended && b.queue.Len() == 0:
			b.mu.Unlock()
			return nil, io.EOF
		case b.closed && b.queue.Len() == 0:
			err := b.closeErr
			b.mu.Unlock()
			return nil, fserr.Wrap(orClosed(err), fserr.Runtime, "stream closed before end")
		}
		changed := b.changed
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, fserr.Wrap(ctx.Err(), fserr.Runtime, "read interrupted")
		case <-changed:
		}
	}
}

// Pause switches to paused mode. Idempotent.
func (r *Readable) Pause() {
	r.b.mu.Lock()
	r.b.flowing = false
	r.b.mu.Unlock()
}

// Resume switches to flowing mode and delivers anything already queued.
// Idempotent.
func (r *Readable) Resume() {
	r.b.mu.Lock()
	r.b.flowing = true
	r.b.mu.Unlock()
	r.b.flush()
}

// IsFlowing reports the current mode.
func (r *Readable) IsFlowing() bool {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	return r.b.flowing
}

// OnData subscribes to values delivered in flowing mode.
func (r *Readable) OnData(fn func(any)) (unsubscribe func()) {
	return r.b.data.Subscribe(fn)
}

// OnEnd subscribes to the terminal "end" notification. Subscribing after the
// stream ended invokes fn immediately.
func (r *Readable) OnEnd(fn func()) {
	r.b.end.Subscribe(func(struct{}) { fn() })
}

// OnClose subscribes to the "close" notification.
func (r *Readable) OnClose(fn func(error)) {
	r.b.closing.Subscribe(fn)
}

// Ended reports whether the "end" notification fired.
func (r *Readable) Ended() bool {
	return r.b.end.Fired()
}

// Len returns the number of queued values.
func (r *Readable) Len() int {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	return r.b.queue.Len()
}

// Close tears the stream down from the consumer side.
func (r *Readable) Close(err error) {
	r.b.close(err)
}

// Writable is the producer end of a stream.
type Writable struct {
	b *buffer
}

// Write enqueues value. consumed, if non-nil, fires once the value has been
// read or delivered. Writing after End or Close fails with a Runtime error.
func (w *Writable) Write(value any, consumed func()) error {
	b := w.b
	b.mu.Lock()
	if b.ended {
		b.mu.Unlock()
		return fserr.New(fserr.Runtime, "write after end")
	}
	if b.closed {
		b.mu.Unlock()
		return fserr.New(fserr.Runtime, "write after close")
	}
	b.queue.Push(pending{value: value, consumed: consumed})
	b.broadcastLocked()
	flowing := b.flowing
	b.mu.Unlock()

	if flowing {
		b.flush()
	}
	return nil
}

// WriteContext is Write with backpressure: on a bounded stream it blocks while
// the queue is at its high-water mark.
func (w *Writable) WriteContext(ctx context.Context, value any) error {
	b := w.b
	for {
		b.mu.Lock()
		if b.highWater <= 0 || b.queue.Len() < b.highWater || b.ended || b.closed {
			b.mu.Unlock()
			return w.Write(value, nil)
		}
		changed := b.changed
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return fserr.Wrap(ctx.Err(), fserr.Runtime, "write interrupted")
		case <-changed:
		}
	}
}

// End marks that no more values will be written. The readable end fires "end"
// once drained. A second End is a no-op.
func (w *Writable) End() {
	b := w.b
	b.mu.Lock()
	if b.ended || b.closed {
		b.mu.Unlock()
		return
	}
	b.ended = true
	b.broadcastLocked()
	fireEnd := b.endDueLocked()
	b.mu.Unlock()

	if fireEnd {
		b.end.Fire(struct{}{})
	}
}

// Close tears the stream down from the producer side.
func (w *Writable) Close(err error) {
	w.b.close(err)
}

// OnClose subscribes to the "close" notification.
func (w *Writable) OnClose(fn func(error)) {
	w.b.closing.Subscribe(fn)
}

// Ended reports whether End was called.
func (w *Writable) Ended() bool {
	w.b.mu.Lock()
	defer w.b.mu.Unlock()
	return w.b.ended
}

func orClosed(err error) error {
	if err != nil {
		return err
	}
	return io.ErrClosedPipe
}
