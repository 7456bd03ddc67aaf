package filesystem

import (
	axiom "github.com/chromium/axiom-sub003"
)

// Executable is an entry that runs fn when invoked through an execute context.
type Executable struct {
	node
	fn        axiom.ExecFunc
	signature axiom.Signature
}

// NewExecutable wraps fn. A nil signature accepts any argument.
func NewExecutable(fn axiom.ExecFunc, signature axiom.Signature) *Executable {
	return &Executable{node: newNode(axiom.ModeExecutable), fn: fn, signature: signature}
}

// Signature returns the declared arguments.
func (e *Executable) Signature() axiom.Signature {
	return e.signature
}
