package axiom

import (
	"github.com/chromium/axiom-sub003/stream"
)

// Stdio is the stream bundle handed to an executable: readable stdin and
// signal, writable stdout, stderr and tty.
type Stdio struct {
	Stdin  *stream.Readable
	Signal *stream.Readable
	Stdout *stream.Writable
	Stderr *stream.Writable
	Tty    *stream.Writable
}

// NullStdio returns a bundle whose inputs are empty and ended and whose
// outputs discard everything.
func NullStdio() Stdio {
	return Stdio{
		Stdin:  stream.FromValues(),
		Signal: stream.FromValues(),
		Stdout: stream.NewSink(func(any) {}),
		Stderr: stream.NewSink(func(any) {}),
		Tty:    stream.NewSink(func(any) {}),
	}
}

// WithDefaults fills unset streams from NullStdio.
func (s Stdio) WithDefaults() Stdio {
	null := NullStdio()
	if s.Stdin == nil {
		s.Stdin = null.Stdin
	}
	if s.Signal == nil {
		s.Signal = null.Signal
	}
	if s.Stdout == nil {
		s.Stdout = null.Stdout
	}
	if s.Stderr == nil {
		s.Stderr = null.Stderr
	}
	if s.Tty == nil {
		s.Tty = null.Tty
	}
	return s
}

// StdioPipes holds a Stdio for the executable together with the opposite
// ends the caller drives.
type StdioPipes struct {
	Stdio Stdio

	Stdin  *stream.Writable
	Signal *stream.Writable
	Stdout *stream.Readable
	Stderr *stream.Readable
	Tty    *stream.Readable
}

// NewStdioPipes creates five fresh pipes whose queues are bounded by
// highWater; zero leaves them unbounded.
func NewStdioPipes(highWater int) *StdioPipes {
	pipe := func() (*stream.Readable, *stream.Writable) {
		b := stream.NewMemoryStreamBuffer(highWater)
		return b.Readable, b.Writable
	}
	p := &StdioPipes{}
	p.Stdio.Stdin, p.Stdin = pipe()
	p.Stdio.Signal, p.Signal = pipe()
	p.Stdout, p.Stdio.Stdout = pipe()
	p.Stderr, p.Stdio.Stderr = pipe()
	p.Tty, p.Stdio.Tty = pipe()
	return p
}

// CloseInputs ends stdin and signal.
func (p *StdioPipes) CloseInputs() {
	p.Stdin.End()
	p.Signal.End()
}
