package filesystem

import (
	"context"
	"fmt"
	"io"
	"sync"

	axiom "github.com/chromium/axiom-sub003"
	"github.com/chromium/axiom-sub003/fserr"
	"github.com/chromium/axiom-sub003/fspath"
	"github.com/chromium/axiom-sub003/internal/util"
	"github.com/chromium/axiom-sub003/stream"
)

// OpenContext mediates access to one local entry. The mutex serializes
// operations on the same context; callers are still expected to issue them
// one at a time.
type OpenContext struct {
	*axiom.Ephemeral
	path  fspath.Path
	entry axiom.Entry

	mu        sync.Mutex
	mode      axiom.OpenMode
	offset    int64
	delivered bool
	src       *stream.Readable
	logger    util.Logger
}

var _ axiom.OpenContext = (*OpenContext)(nil)

func newOpenContext(fs *FileSystem, p fspath.Path, entry axiom.Entry) *OpenContext {
	e := axiom.NewEphemeral()
	return &OpenContext{
		Ephemeral: e,
		path:      p,
		entry:     entry,
		logger: util.GetLogger("FS.OpenContext").With().
			Str("fs", fs.Name()).Str("path", p.Spec()).Str("id", e.ID()).Logger(),
	}
}

func (cx *OpenContext) Path() fspath.Path {
	return cx.path
}

func (cx *OpenContext) Entry() axiom.Entry {
	return cx.entry
}

// Open checks that the entry grants every capability mode asks for and arms
// the context. A refused open closes the context with the error.
func (cx *OpenContext) Open(ctx context.Context, mode axiom.OpenMode) error {
	cx.mu.Lock()
	defer cx.mu.Unlock()

	need := mode.Requires()
	if need == 0 {
		return cx.Fail(fserr.New(fserr.Invalid, "open mode must request read or write"))
	}
	if !cx.entry.Mode().Has(need) {
		return cx.Fail(fserr.Newf(fserr.TypeMismatch, "%s is not %s", cx.path.Spec(), describeNeed(need)).
			WithContext("mode", cx.entry.Mode().String()))
	}

	if d, ok := cx.entry.(*Data); ok && mode&axiom.OpenRead != 0 {
		v, err := d.Load(ctx)
		if err != nil {
			return cx.Fail(err)
		}
		if sv, ok := v.(axiom.StreamValue); ok {
			r, err := sv.OpenStream(ctx)
			if err != nil {
				return cx.Fail(fserr.Wrap(err, fserr.Runtime, "open stream"))
			}
			cx.src = r
		}
	}

	if err := cx.Ready(); err != nil {
		return err
	}
	cx.mode = mode
	cx.logger.Trace().Str("mode", mode.String()).Msg("Opened")
	return nil
}

func describeNeed(need axiom.Mode) string {
	switch need {
	case axiom.ModeReadable:
		return "readable"
	case axiom.ModeWritable:
		return "writable"
	default:
		return "readable and writable"
	}
}

// checkLocked verifies the entry supports want and the context is armed
// with it. Caller holds mu.
func (cx *OpenContext) checkLocked(want axiom.OpenMode) error {
	if need := want.Requires(); !cx.entry.Mode().Has(need) {
		return fserr.Newf(fserr.TypeMismatch, "%s is not %s", cx.path.Spec(), describeNeed(need))
	}
	if state := cx.State(); state != axiom.StateReady {
		return fserr.Newf(fserr.Invalid, "context is %s, not READY", state)
	}
	if cx.mode&want == 0 {
		return fserr.Newf(fserr.Invalid, "context not opened for %s", want)
	}
	return nil
}

func (cx *OpenContext) Seek(ctx context.Context, offset int64, whence int) (int64, error) {
	cx.mu.Lock()
	defer cx.mu.Unlock()

	if state := cx.State(); state != axiom.StateReady {
		return 0, fserr.Newf(fserr.Invalid, "context is %s, not READY", state)
	}
	d, ok := cx.entry.(*Data)
	if !ok || !d.Mode().Has(axiom.ModeSeekable) {
		return 0, fserr.Newf(fserr.TypeMismatch, "%s is not seekable", cx.path.Spec())
	}
	v, err := d.Load(ctx)
	if err != nil {
		return 0, err
	}
	next, err := axiom.SeekOffset(cx.offset, sizeOf(v), offset, whence)
	if err != nil {
		return 0, err
	}
	cx.offset = next
	cx.delivered = next > 0
	return next, nil
}

// Read returns the next value. Directories yield their sorted names. Text and
// byte values are read from the current offset, Count at a time, and io.EOF
// is returned once exhausted. Other values are returned whole on every read.
// Stream-backed values yield one stream value per read.
func (cx *OpenContext) Read(ctx context.Context, req axiom.ReadRequest) (any, error) {
	cx.mu.Lock()
	defer cx.mu.Unlock()

	if err := cx.checkLocked(axiom.OpenRead); err != nil {
		return nil, err
	}

	switch e := cx.entry.(type) {
	case *Directory:
		return e.Names(), nil
	case *Data:
		if cx.src != nil {
			return cx.src.ReadContext(ctx)
		}
		v, err := e.Load(ctx)
		if err != nil {
			return nil, err
		}
		return cx.sliceLocked(v, req.Count)
	default:
		return nil, fserr.Newf(fserr.TypeMismatch, "cannot read a %T", cx.entry)
	}
}

func (cx *OpenContext) sliceLocked(v any, count int) (any, error) {
	var n int64
	switch t := v.(type) {
	case string:
		n = int64(len(t))
	case []byte:
		n = int64(len(t))
	default:
		return v, nil
	}

	if cx.offset >= n && cx.delivered {
		return nil, io.EOF
	}
	end := n
	if count > 0 && cx.offset+int64(count) < n {
		end = cx.offset + int64(count)
	}
	start := min(cx.offset, n)
	cx.offset = end
	cx.delivered = true

	switch t := v.(type) {
	case string:
		return t[start:end], nil
	default:
		b := v.([]byte)
		out := make([]byte, end-start)
		copy(out, b[start:end])
		return out, nil
	}
}

// Write replaces or appends to a data value. A data entry holding a writable
// stream (a device) receives the value as one stream write instead.
func (cx *OpenContext) Write(ctx context.Context, req axiom.WriteRequest) error {
	cx.mu.Lock()
	defer cx.mu.Unlock()

	if err := cx.checkLocked(axiom.OpenWrite); err != nil {
		return err
	}
	d, ok := cx.entry.(*Data)
	if !ok {
		return fserr.Newf(fserr.TypeMismatch, "cannot write to a %s", kindName(cx.entry))
	}

	if len(d.Sources()) == 0 {
		d.mu.RLock()
		sink, isSink := d.value.(*stream.Writable)
		d.mu.RUnlock()
		if isSink {
			return sink.WriteContext(ctx, req.Value)
		}
	}
	if err := d.Store(ctx, req.Value, req.Append); err != nil {
		return err
	}
	if !req.Append {
		cx.offset = 0
		cx.delivered = false
	}
	return nil
}

// Close closes the context ok. Closing before Open closes it with an error.
func (cx *OpenContext) Close() error {
	cx.mu.Lock()
	src := cx.src
	cx.mu.Unlock()
	if src != nil {
		src.Close(nil)
	}

	if cx.State() == axiom.StateWait {
		err := fserr.New(fserr.Invalid, "closed before open")
		if cerr := cx.CloseError(err); cerr != nil {
			return cerr
		}
		return err
	}
	return cx.CloseOk(nil)
}

func kindName(e axiom.Entry) string {
	switch e.(type) {
	case *Directory:
		return "directory"
	case *Executable:
		return "executable"
	case *Data:
		return "data entry"
	default:
		return fmt.Sprintf("%T", e)
	}
}

// ExecuteContext runs one local executable.
type ExecuteContext struct {
	*axiom.Ephemeral
	path   fspath.Path
	entry  axiom.Entry
	arg    axiom.Arg
	opts   axiom.ExecOptions
	logger util.Logger
}

var _ axiom.ExecuteContext = (*ExecuteContext)(nil)

func newExecuteContext(p fspath.Path, entry axiom.Entry, arg axiom.Arg, opts axiom.ExecOptions) *ExecuteContext {
	e := axiom.NewEphemeral()
	return &ExecuteContext{
		Ephemeral: e,
		path:      p,
		entry:     entry,
		arg:       arg,
		opts:      opts,
		logger:    util.GetLogger("FS.ExecuteContext").With().Str("path", p.Spec()).Str("id", e.ID()).Logger(),
	}
}

func (cx *ExecuteContext) Path() fspath.Path {
	return cx.path
}

func (cx *ExecuteContext) Entry() axiom.Entry {
	return cx.entry
}

func (cx *ExecuteContext) Arg() axiom.Arg {
	return cx.arg
}

func (cx *ExecuteContext) GetArg(name string, def any) any {
	if v, ok := cx.arg[name]; ok {
		return v
	}
	return def
}

// Ready arms the context. Execute arms it before the callback runs, so a
// callback calling Ready on the armed context gets nil.
func (cx *ExecuteContext) Ready() error {
	if cx.State() == axiom.StateReady {
		return nil
	}
	return cx.Ephemeral.Ready()
}

func (cx *ExecuteContext) Env() axiom.Env {
	return cx.opts.Env
}

func (cx *ExecuteContext) GetEnv(name string, def any) any {
	if v, ok := cx.opts.Env[name]; ok {
		return v
	}
	return def
}

func (cx *ExecuteContext) Stdio() axiom.Stdio {
	return cx.opts.Stdio
}

func (cx *ExecuteContext) FileSystem() axiom.FileSystem {
	return cx.opts.Namespace
}

// Execute validates the entry and the argument, arms the context and runs the
// executable. It returns the terminal outcome.
func (cx *ExecuteContext) Execute(ctx context.Context) (any, error) {
	exe, ok := cx.entry.(*Executable)
	if !ok || !cx.entry.Mode().Has(axiom.ModeExecutable) {
		return nil, cx.Fail(fserr.Newf(fserr.TypeMismatch, "%s is not executable", cx.path.Spec()))
	}
	if err := exe.Signature().Validate(cx.arg); err != nil {
		return nil, cx.Fail(err)
	}
	if err := cx.Ready(); err != nil {
		return nil, err
	}

	cx.logger.Debug().Msg("Executing")
	if err := cx.run(ctx, exe); err != nil {
		_ = cx.CloseError(err)
	} else if cx.State() != axiom.StateClosed {
		_ = cx.CloseOk(nil)
	}

	v, err := cx.Wait(ctx)
	if err != nil {
		cx.logger.Debug().Err(err).Msg("Execution failed")
	}
	return v, err
}

func (cx *ExecuteContext) run(ctx context.Context, exe *Executable) (err error) {
	defer func() {
		if r := recover(); r != nil {
			cx.logger.Error().Interface("panic", r).Msg("Executable panicked")
			err = fserr.Newf(fserr.Runtime, "executable panicked: %v", r)
		}
	}()
	return exe.fn(ctx, cx)
}
