// Package fserr defines the error taxonomy shared by every file system backend.
//
// Every operational failure surfaced by the VFS carries exactly one [Kind].
// Errors keep an optional cause and a small context map so callers (shell
// commands in particular) can format "kind + context" for users and keep going.
package fserr

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"
)

// Kind identifies the class of a failure.
type Kind string

const (
	// Invalid indicates a malformed input value (e.g. an ill-formed path) or an
	// operation attempted in the wrong lifecycle state.
	Invalid Kind = "Invalid"

	// Missing indicates a required argument or field was not supplied.
	Missing Kind = "Missing"

	// NotFound indicates a path, command or service lookup failed to resolve.
	NotFound Kind = "NotFound"

	// Duplicate indicates an attempt to create something that already exists.
	Duplicate Kind = "Duplicate"

	// TypeMismatch indicates the entry lacks the required capability, or the
	// argument shape does not match a declared signature.
	TypeMismatch Kind = "TypeMismatch"

	// NotImplemented indicates the backend knows the entry but does not support
	// the requested operation.
	NotImplemented Kind = "NotImplemented"

	// Incompatible indicates an environment precondition is unmet (e.g. the
	// wrong transport scheme).
	Incompatible Kind = "Incompatible"

	// Runtime is the catch-all for host and backend failures.
	Runtime Kind = "Runtime"
)

// Kinds lists every kind in declaration order.
var Kinds = []Kind{Invalid, Missing, NotFound, Duplicate, TypeMismatch, NotImplemented, Incompatible, Runtime}

// Error is the concrete error type returned by VFS operations.
type Error struct {
	kind    Kind
	message string
	context map[string]any
	cause   error
}

// Error renders "Kind: message" plus the cause when present.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.kind))
	if e.message != "" {
		b.WriteString(": ")
		b.WriteString(e.message)
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

// Kind returns the error kind.
func (e *Error) Kind() Kind {
	return e.kind
}

// Message returns the human readable message without kind or cause.
func (e *Error) Message() string {
	return e.message
}

// Context returns a copy of the attached metadata, or nil.
func (e *Error) Context() map[string]any {
	if e.context == nil {
		return nil
	}
	return maps.Clone(e.context)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches another *Error of the same kind when the target carries no
// message, so `errors.Is(err, fserr.New(fserr.NotFound, ""))` works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.kind == e.kind && t.message == "" && t.cause == nil
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with a kind and message. Returns nil if err is nil.
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, message: message, cause: err}
}

// Wrapf wraps err with a kind and a formatted message. Returns nil if err is nil.
func Wrapf(err error, kind Kind, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return Wrap(err, kind, fmt.Sprintf(format, args...))
}

// WithContext returns a copy of e with key set in its context map.
func (e *Error) WithContext(key string, value any) *Error {
	cp := *e
	cp.context = maps.Clone(e.context)
	if cp.context == nil {
		cp.context = make(map[string]any, 1)
	}
	cp.context[key] = value
	return &cp
}

// KindOf extracts the kind of the outermost *Error in err's chain.
// Errors that never passed through this package report Runtime; nil reports "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.kind
	}
	return Runtime
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Format renders err for users as "Kind: message {k=v ...}".
func Format(err error) string {
	if err == nil {
		return ""
	}
	var fe *Error
	if !errors.As(err, &fe) {
		return string(Runtime) + ": " + err.Error()
	}
	out := fe.Error()
	if len(fe.context) == 0 {
		return out
	}
	keys := make([]string, 0, len(fe.context))
	for k := range fe.context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fe.context[k]))
	}
	return out + " {" + strings.Join(parts, " ") + "}"
}
