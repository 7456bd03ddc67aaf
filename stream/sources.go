package stream

import (
	"context"
)

// NewEventStream returns a readable fed by an external event source.
// subscribe receives an emit function and returns a stop function, which is
// called when the stream is closed. The stream stays paused until resumed.
func NewEventStream(subscribe func(emit func(any)) (stop func())) *Readable {
	r, w := NewPipe()
	stop := subscribe(func(v any) {
		_ = w.Write(v, nil)
	})
	r.OnClose(func(error) {
		if stop != nil {
			stop()
		}
	})
	return r
}

// NewSink returns a writable end whose values are handed to fn as they are
// written, e.g. a terminal output device.
func NewSink(fn func(any)) *Writable {
	r, w := NewPipe()
	r.OnData(fn)
	r.Resume()
	return w
}

// NewBufferedReadable loads every value eagerly, queues them and ends the
// stream. It is buffered, not chunked: the whole payload is in memory before
// the first value is read. If load fails the stream is closed with the error
// and the error is returned.
func NewBufferedReadable(ctx context.Context, load func(ctx context.Context) ([]any, error)) (*Readable, error) {
	r, w := NewPipe()
	values, err := load(ctx)
	if err != nil {
		w.Close(err)
		return r, err
	}
	for _, v := range values {
		if err := w.Write(v, nil); err != nil {
			return r, err
		}
	}
	w.End()
	return r, nil
}

// FromValues returns an ended readable holding values.
func FromValues(values ...any) *Readable {
	r, w := NewPipe()
	for _, v := range values {
		_ = w.Write(v, nil)
	}
	w.End()
	return r
}
