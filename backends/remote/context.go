package remote

import (
	"context"
	"io"
	"sync"

	axiom "github.com/chromium/axiom-sub003"
	"github.com/chromium/axiom-sub003/fserr"
	"github.com/chromium/axiom-sub003/fspath"
	"github.com/chromium/axiom-sub003/internal/util"
)

// openContext proxies reads and writes of one remote entry. Each Read fetches
// the whole value once; the next Read reports io.EOF.
type openContext struct {
	*axiom.Ephemeral
	client *Client
	path   fspath.Path
	entry  entry

	mu        sync.Mutex
	mode      axiom.OpenMode
	delivered bool
	logger    util.Logger
}

var _ axiom.OpenContext = (*openContext)(nil)

func newOpenContext(c *Client, p fspath.Path, e entry) *openContext {
	eph := axiom.NewEphemeral()
	return &openContext{
		Ephemeral: eph,
		client:    c,
		path:      p,
		entry:     e,
		logger: util.GetLogger("Remote.OpenContext").With().
			Str("fs", c.name).Str("path", p.Spec()).Str("id", eph.ID()).Logger(),
	}
}

func (cx *openContext) Path() fspath.Path  { return cx.path }
func (cx *openContext) Entry() axiom.Entry { return cx.entry }

func (cx *openContext) Open(_ context.Context, mode axiom.OpenMode) error {
	cx.mu.Lock()
	defer cx.mu.Unlock()

	need := mode.Requires()
	if need == 0 {
		return cx.Fail(fserr.New(fserr.Invalid, "open mode must request read or write"))
	}
	if !cx.entry.mode.Has(need) {
		return cx.Fail(fserr.Newf(fserr.TypeMismatch, "%s does not allow %s", cx.path.Spec(), mode))
	}
	if err := cx.Ready(); err != nil {
		return err
	}
	cx.mode = mode
	cx.logger.Trace().Str("mode", mode.String()).Msg("Opened")
	return nil
}

func (cx *openContext) checkLocked(want axiom.OpenMode) error {
	if !cx.entry.mode.Has(want.Requires()) {
		return fserr.Newf(fserr.TypeMismatch, "%s does not allow %s", cx.path.Spec(), want)
	}
	if state := cx.State(); state != axiom.StateReady {
		return fserr.Newf(fserr.Invalid, "context is %s, not READY", state)
	}
	if cx.mode&want == 0 {
		return fserr.Newf(fserr.Invalid, "context not opened for %s", want)
	}
	return nil
}

func (cx *openContext) Seek(context.Context, int64, int) (int64, error) {
	return 0, fserr.Newf(fserr.TypeMismatch, "%s is not seekable", cx.path.Spec())
}

func (cx *openContext) Read(ctx context.Context, _ axiom.ReadRequest) (any, error) {
	cx.mu.Lock()
	defer cx.mu.Unlock()

	if err := cx.checkLocked(axiom.OpenRead); err != nil {
		return nil, err
	}
	if cx.delivered {
		return nil, io.EOF
	}
	v, err := cx.client.read(ctx, cx.path)
	if err != nil {
		return nil, err
	}
	cx.delivered = true
	return v, nil
}

func (cx *openContext) Write(ctx context.Context, req axiom.WriteRequest) error {
	cx.mu.Lock()
	defer cx.mu.Unlock()

	if err := cx.checkLocked(axiom.OpenWrite); err != nil {
		return err
	}
	if err := cx.client.write(ctx, cx.path, req.Value, req.Append); err != nil {
		return err
	}
	cx.delivered = false
	return nil
}

func (cx *openContext) Close() error {
	if cx.State() == axiom.StateWait {
		err := fserr.New(fserr.Invalid, "closed before open")
		if cerr := cx.CloseError(err); cerr != nil {
			return cerr
		}
		return err
	}
	return cx.CloseOk(nil)
}

// executeContext runs a remote executable. The remote command sees an empty
// stdin; its captured stdout and stderr are replayed onto the local streams
// when it finishes.
type executeContext struct {
	*axiom.Ephemeral
	client *Client
	path   fspath.Path
	entry  entry
	arg    axiom.Arg
	opts   axiom.ExecOptions
	logger util.Logger
}

var _ axiom.ExecuteContext = (*executeContext)(nil)

func newExecuteContext(c *Client, p fspath.Path, e entry, arg axiom.Arg, opts axiom.ExecOptions) *executeContext {
	eph := axiom.NewEphemeral()
	return &executeContext{
		Ephemeral: eph,
		client:    c,
		path:      p,
		entry:     e,
		arg:       arg,
		opts:      opts,
		logger: util.GetLogger("Remote.ExecuteContext").With().
			Str("fs", c.name).Str("path", p.Spec()).Str("id", eph.ID()).Logger(),
	}
}

// Ready is a no-op once Execute has armed the context.
func (cx *executeContext) Ready() error {
	if cx.State() == axiom.StateReady {
		return nil
	}
	return cx.Ephemeral.Ready()
}

func (cx *executeContext) Path() fspath.Path            { return cx.path }
func (cx *executeContext) Entry() axiom.Entry           { return cx.entry }
func (cx *executeContext) Arg() axiom.Arg               { return cx.arg }
func (cx *executeContext) Env() axiom.Env               { return cx.opts.Env }
func (cx *executeContext) Stdio() axiom.Stdio           { return cx.opts.Stdio }
func (cx *executeContext) FileSystem() axiom.FileSystem { return cx.opts.Namespace }

func (cx *executeContext) GetArg(name string, def any) any {
	if v, ok := cx.arg[name]; ok {
		return v
	}
	return def
}

func (cx *executeContext) GetEnv(name string, def any) any {
	if v, ok := cx.opts.Env[name]; ok {
		return v
	}
	return def
}

func (cx *executeContext) Execute(ctx context.Context) (any, error) {
	if !cx.entry.mode.Has(axiom.ModeExecutable) {
		return nil, cx.Fail(fserr.Newf(fserr.TypeMismatch, "%s is not executable", cx.path.Spec()))
	}
	if err := cx.Ready(); err != nil {
		return nil, err
	}

	cx.logger.Debug().Msg("Executing remotely")
	v, err := cx.run(ctx)
	if err != nil {
		_ = cx.CloseError(err)
	} else {
		_ = cx.CloseOk(v)
	}
	return cx.Wait(ctx)
}

func (cx *executeContext) run(ctx context.Context) (any, error) {
	rp, err := cx.client.remotePath(cx.path)
	if err != nil {
		return nil, err
	}
	resp, callErr := cx.client.call(ctx, &Request{Op: OpExec, Path: rp, Arg: cx.arg, Env: cx.opts.Env})
	if resp == nil {
		return nil, callErr
	}
	if err := replay(ctx, cx.opts.Stdio, resp); err != nil {
		return nil, err
	}
	if callErr != nil {
		return nil, callErr
	}
	if resp.Value == nil {
		return nil, nil
	}
	return decodeValue(resp.Value)
}

func replay(ctx context.Context, stdio axiom.Stdio, resp *Response) error {
	for _, out := range []struct {
		values []Value
		w      func(context.Context, any) error
	}{
		{resp.Stdout, stdio.Stdout.WriteContext},
		{resp.Stderr, stdio.Stderr.WriteContext},
	} {
		for i := range out.values {
			v, err := decodeValue(&out.values[i])
			if err != nil {
				return err
			}
			if err := out.w(ctx, v); err != nil {
				return err
			}
		}
	}
	return nil
}
