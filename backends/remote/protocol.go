// Package remote exposes a file system to other nodes over a websocket and
// mounts such a node as a local backend.
//
// Every message is one JSON object. A client sends a Request tagged with a
// fresh ID; the server answers with a Response carrying the same ID. Requests
// on one connection are served concurrently, so responses may arrive out of
// order.
package remote

import (
	"encoding/json"
	"errors"
	"slices"
	"strings"

	axiom "github.com/chromium/axiom-sub003"
	"github.com/chromium/axiom-sub003/fserr"
)

// Op names a remote operation.
type Op string

const (
	OpResolve         Op = "resolve"
	OpStat            Op = "stat"
	OpList            Op = "list"
	OpMkdir           Op = "mkdir"
	OpUnlink          Op = "unlink"
	OpUnlinkRecursive Op = "unlink_recursive"
	OpRead            Op = "read"
	OpWrite           Op = "write"
	OpExec            Op = "exec"
)

// Request is a client message.
type Request struct {
	ID     string         `json:"id"`
	Op     Op             `json:"op"`
	Path   string         `json:"path"`
	Value  *Value         `json:"value,omitempty"`
	Append bool           `json:"append,omitempty"`
	Arg    any            `json:"arg,omitempty"`
	Env    map[string]any `json:"env,omitempty"`
}

// Response is a server message.
type Response struct {
	ID      string                `json:"id"`
	Error   *WireError            `json:"error,omitempty"`
	Stat    *axiom.Stat           `json:"stat,omitempty"`
	List    map[string]axiom.Stat `json:"list,omitempty"`
	Resolve *ResolveReply         `json:"resolve,omitempty"`
	Value   *Value                `json:"value,omitempty"`
	Stdout  []Value               `json:"stdout,omitempty"`
	Stderr  []Value               `json:"stderr,omitempty"`
}

// ResolveReply is the wire form of a resolve result. Found is false for a
// structurally invalid path.
type ResolveReply struct {
	Prefix []string   `json:"prefix"`
	Suffix []string   `json:"suffix"`
	Found  bool       `json:"found"`
	Mode   axiom.Mode `json:"mode"`
	MTime  int64      `json:"mtime"`
}

// WireError carries an error kind across the connection.
type WireError struct {
	Kind    fserr.Kind `json:"kind"`
	Message string     `json:"message"`
}

func toWireError(err error) *WireError {
	if err == nil {
		return nil
	}
	kind := fserr.KindOf(err)
	return &WireError{Kind: kind, Message: strings.TrimPrefix(err.Error(), string(kind)+": ")}
}

func (w *WireError) err() error {
	kind := w.Kind
	if !slices.Contains(fserr.Kinds, kind) {
		kind = fserr.Runtime
	}
	return fserr.New(kind, w.Message)
}

// Value is a data value on the wire. Byte values travel base64 encoded in
// Bytes; everything else as JSON.
type Value struct {
	Bytes []byte          `json:"bytes,omitempty"`
	JSON  json.RawMessage `json:"json,omitempty"`
}

func encodeValue(v any) (*Value, error) {
	if b, ok := v.([]byte); ok {
		if b == nil {
			b = []byte{}
		}
		return &Value{Bytes: b}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fserr.Wrapf(err, fserr.TypeMismatch, "value of type %T cannot cross the wire", v)
	}
	return &Value{JSON: raw}, nil
}

var errNoValue = errors.New("missing value")

func decodeValue(v *Value) (any, error) {
	if v == nil {
		return nil, fserr.Wrap(errNoValue, fserr.Missing, "decode value")
	}
	if v.JSON == nil {
		if v.Bytes == nil {
			return []byte{}, nil
		}
		return v.Bytes, nil
	}
	var out any
	if err := json.Unmarshal(v.JSON, &out); err != nil {
		return nil, fserr.Wrap(err, fserr.Invalid, "decode value")
	}
	return out, nil
}
