package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ReadAll pulls values until the stream ends.
func ReadAll(ctx context.Context, r *Readable) ([]any, error) {
	var out []any
	for {
		v, err := r.ReadContext(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
}

// Copy forwards every value from src to dst until src ends. dst is not ended.
func Copy(ctx context.Context, dst *Writable, src *Readable) (int, error) {
	n := 0
	for {
		v, err := src.ReadContext(ctx)
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if err := dst.WriteContext(ctx, v); err != nil {
			return n, err
		}
		n++
	}
}

// Collector is a writable end that keeps everything written to it. It is the
// usual sink for captured stdout/stderr.
type Collector struct {
	*Writable
	mu     sync.Mutex
	values []any
	ended  chan struct{}
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	r, w := NewPipe()
	c := &Collector{Writable: w, ended: make(chan struct{})}
	r.OnData(func(v any) {
		c.mu.Lock()
		c.values = append(c.values, v)
		c.mu.Unlock()
	})
	r.OnEnd(func() { close(c.ended) })
	r.Resume()
	return c
}

// Values returns a copy of the collected values.
func (c *Collector) Values() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, len(c.values))
	copy(out, c.values)
	return out
}

// String concatenates the text form of every collected value.
func (c *Collector) String() string {
	var b strings.Builder
	for _, v := range c.Values() {
		b.WriteString(Text(v))
	}
	return b.String()
}

// Done is closed when the writer ends the stream.
func (c *Collector) Done() <-chan struct{} {
	return c.ended
}

// Text renders a stream value as text.
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// Lines splits a text value into lines without their terminators.
func Lines(v any) []any {
	s := Text(v)
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	parts := strings.Split(s, "\n")
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out
}

type ioWriter struct {
	w *Writable
}

// AsWriter adapts a writable end to io.Writer; each Write becomes one string
// value.
func AsWriter(w *Writable) io.Writer {
	return ioWriter{w: w}
}

func (iw ioWriter) Write(p []byte) (int, error) {
	if err := iw.w.Write(string(p), nil); err != nil {
		return 0, err
	}
	return len(p), nil
}
