package axiom

import (
	"context"
	"sync"

	"github.com/chromium/axiom-sub003/event"
	"github.com/chromium/axiom-sub003/fserr"
	"github.com/google/uuid"
)

// State is the lifecycle state of an [Ephemeral].
type State int

const (
	StateWait State = iota
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateWait:
		return "WAIT"
	case StateReady:
		return "READY"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Outcome is the terminal value of a closed lifecycle: either a success value
// or an error.
type Outcome struct {
	Value any
	Err   error
}

// OK reports a successful close.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Lifecycle is the contract shared by every long-lived operation.
type Lifecycle interface {
	ID() string
	State() State
	// Ready arms the lifecycle. Only valid in WAIT.
	Ready() error
	// CloseOk closes successfully. Only valid in READY.
	CloseOk(value any) error
	// CloseError closes with err. Valid in WAIT and READY.
	CloseError(err error) error
	OnReady(fn func())
	OnClose(fn func(Outcome))
	Done() <-chan struct{}
	Outcome() (Outcome, bool)
	// Wait blocks until closed. If ctx ends first the lifecycle is closed
	// with a Runtime error.
	Wait(ctx context.Context) (any, error)
}

// Ephemeral is the WAIT -> READY -> CLOSED state machine embedded by
// contexts. Transitions are serialized; the first terminal value wins and
// listeners subscribed after a transition are replayed immediately.
type Ephemeral struct {
	id    string
	mu    sync.Mutex
	state State

	ready  *event.Latch[struct{}]
	closed *event.Latch[Outcome]
}

var _ Lifecycle = (*Ephemeral)(nil)

// NewEphemeral returns a lifecycle in WAIT with a fresh ID.
func NewEphemeral() *Ephemeral {
	return &Ephemeral{
		id:     uuid.NewString(),
		ready:  event.NewLatch[struct{}](),
		closed: event.NewLatch[Outcome](),
	}
}

func (e *Ephemeral) ID() string {
	return e.id
}

func (e *Ephemeral) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Ephemeral) Ready() error {
	e.mu.Lock()
	if e.state != StateWait {
		state := e.state
		e.mu.Unlock()
		return fserr.Newf(fserr.Invalid, "ready called in state %s", state).WithContext("id", e.id)
	}
	e.state = StateReady
	e.mu.Unlock()

	e.ready.Fire(struct{}{})
	return nil
}

func (e *Ephemeral) CloseOk(value any) error {
	e.mu.Lock()
	if e.state != StateReady {
		state := e.state
		e.mu.Unlock()
		return fserr.Newf(fserr.Invalid, "closeOk called in state %s", state).WithContext("id", e.id)
	}
	e.state = StateClosed
	e.mu.Unlock()

	e.closed.Fire(Outcome{Value: value})
	return nil
}

func (e *Ephemeral) CloseError(err error) error {
	if err == nil {
		err = fserr.New(fserr.Runtime, "closed with unspecified error")
	}
	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return fserr.New(fserr.Invalid, "already closed").WithContext("id", e.id)
	}
	e.state = StateClosed
	e.mu.Unlock()

	e.closed.Fire(Outcome{Err: err})
	return nil
}

func (e *Ephemeral) OnReady(fn func()) {
	e.ready.Subscribe(func(struct{}) { fn() })
}

func (e *Ephemeral) OnClose(fn func(Outcome)) {
	e.closed.Subscribe(fn)
}

func (e *Ephemeral) Done() <-chan struct{} {
	return e.closed.Done()
}

func (e *Ephemeral) Outcome() (Outcome, bool) {
	return e.closed.Value()
}

func (e *Ephemeral) Wait(ctx context.Context) (any, error) {
	select {
	case <-e.closed.Done():
	case <-ctx.Done():
		// Losing the race to a concurrent close is fine; that outcome wins.
		_ = e.CloseError(fserr.Wrap(ctx.Err(), fserr.Runtime, "timed out waiting for close"))
		<-e.closed.Done()
	}
	o, _ := e.closed.Value()
	return o.Value, o.Err
}

// Fail closes with err if the lifecycle is still open and returns err. It
// keeps error paths in context implementations short.
func (e *Ephemeral) Fail(err error) error {
	_ = e.CloseError(err)
	return err
}
