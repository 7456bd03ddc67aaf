// Package blobctx implements the open context shared by byte-oriented
// backends (host storage, object stores). A backend supplies a Target for one
// file or directory; the context adds the lifecycle, capability checks and
// the read offset.
package blobctx

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	axiom "github.com/chromium/axiom-sub003"
	"github.com/chromium/axiom-sub003/fserr"
	"github.com/chromium/axiom-sub003/fspath"
	"github.com/chromium/axiom-sub003/internal/util"
	"github.com/chromium/axiom-sub003/stream"
)

// Mode bits of stored entries.
const (
	FileMode = axiom.ModeReadable | axiom.ModeWritable | axiom.ModeSeekable
	DirMode  = axiom.ModeDirectory | axiom.ModeReadable
)

// Entry describes a stored file or directory.
type Entry struct {
	EntryMode axiom.Mode
	ModTime   time.Time
	Size      int64
}

func (e Entry) Mode() axiom.Mode { return e.EntryMode }
func (e Entry) MTime() time.Time { return e.ModTime }
func (e Entry) IsDir() bool      { return e.EntryMode.Has(axiom.ModeDirectory) }
func (e Entry) Stat() axiom.Stat {
	st := axiom.Stat{Mode: e.EntryMode, MTime: e.ModTime.UnixMilli(), Size: e.Size}
	if st.MTime < 0 {
		st.MTime = 0
	}
	return st
}

// Target is the backend side of one context.
type Target interface {
	// Size returns the current size of the file.
	Size(ctx context.Context) (int64, error)
	// ReadAt reads up to n bytes at off; n <= 0 reads to the end.
	ReadAt(ctx context.Context, off int64, n int) ([]byte, error)
	// List returns the names of a directory's children.
	List(ctx context.Context) ([]string, error)
	// Write replaces the file, or appends to it, creating it when missing.
	Write(ctx context.Context, data []byte, appendData bool) error
}

// Context is an axiom.OpenContext over a Target.
type Context struct {
	*axiom.Ephemeral
	path   fspath.Path
	entry  Entry
	exists bool
	target Target

	mu        sync.Mutex
	mode      axiom.OpenMode
	offset    int64
	delivered bool
	logger    util.Logger
}

var _ axiom.OpenContext = (*Context)(nil)

// New returns a context for entry. exists is false for a file that will be
// created by its first write; such a context can only be opened for writing.
func New(backend string, p fspath.Path, entry Entry, exists bool, target Target) *Context {
	e := axiom.NewEphemeral()
	return &Context{
		Ephemeral: e,
		path:      p,
		entry:     entry,
		exists:    exists,
		target:    target,
		logger: util.GetLogger("Blob.OpenContext").With().
			Str("fs", backend).Str("path", p.Spec()).Str("id", e.ID()).Logger(),
	}
}

func (cx *Context) Path() fspath.Path  { return cx.path }
func (cx *Context) Entry() axiom.Entry { return cx.entry }

func (cx *Context) Open(_ context.Context, mode axiom.OpenMode) error {
	cx.mu.Lock()
	defer cx.mu.Unlock()

	need := mode.Requires()
	if need == 0 {
		return cx.Fail(fserr.New(fserr.Invalid, "open mode must request read or write"))
	}
	if !cx.entry.EntryMode.Has(need) {
		return cx.Fail(fserr.Newf(fserr.TypeMismatch, "%s does not allow %s", cx.path.Spec(), mode))
	}
	if !cx.exists && mode&axiom.OpenRead != 0 {
		return cx.Fail(fserr.Newf(fserr.NotFound, "%s: no such entry", cx.path.Spec()))
	}
	if err := cx.Ready(); err != nil {
		return err
	}
	cx.mode = mode
	cx.logger.Trace().Str("mode", mode.String()).Msg("Opened")
	return nil
}

func (cx *Context) checkLocked(want axiom.OpenMode) error {
	if !cx.entry.EntryMode.Has(want.Requires()) {
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

func (cx *Context) Seek(ctx context.Context, offset int64, whence int) (int64, error) {
	cx.mu.Lock()
	defer cx.mu.Unlock()

	if state := cx.State(); state != axiom.StateReady {
		return 0, fserr.Newf(fserr.Invalid, "context is %s, not READY", state)
	}
	if !cx.entry.EntryMode.Has(axiom.ModeSeekable) {
		return 0, fserr.Newf(fserr.TypeMismatch, "%s is not seekable", cx.path.Spec())
	}
	size, err := cx.target.Size(ctx)
	if err != nil {
		return 0, err
	}
	next, err := axiom.SeekOffset(cx.offset, size, offset, whence)
	if err != nil {
		return 0, err
	}
	cx.offset = next
	cx.delivered = next > 0
	return next, nil
}

// Read returns a directory's sorted names, or the file's bytes from the
// current offset, Count at a time. io.EOF is returned once the file is
// exhausted; an empty file is delivered once.
func (cx *Context) Read(ctx context.Context, req axiom.ReadRequest) (any, error) {
	cx.mu.Lock()
	defer cx.mu.Unlock()

	if err := cx.checkLocked(axiom.OpenRead); err != nil {
		return nil, err
	}
	if cx.entry.IsDir() {
		names, err := cx.target.List(ctx)
		if err != nil {
			return nil, err
		}
		sort.Strings(names)
		return names, nil
	}

	size, err := cx.target.Size(ctx)
	if err != nil {
		return nil, err
	}
	if cx.offset >= size && cx.delivered {
		return nil, io.EOF
	}
	data, err := cx.target.ReadAt(ctx, cx.offset, req.Count)
	if err != nil {
		return nil, err
	}
	cx.offset += int64(len(data))
	cx.delivered = true
	return data, nil
}

// Write stores the value. Non-byte values are written as their text form.
func (cx *Context) Write(ctx context.Context, req axiom.WriteRequest) error {
	cx.mu.Lock()
	defer cx.mu.Unlock()

	if err := cx.checkLocked(axiom.OpenWrite); err != nil {
		return err
	}
	if cx.entry.IsDir() {
		return fserr.Newf(fserr.TypeMismatch, "cannot write to directory %s", cx.path.Spec())
	}
	data, ok := req.Value.([]byte)
	if !ok {
		data = []byte(stream.Text(req.Value))
	}
	if err := cx.target.Write(ctx, data, req.Append); err != nil {
		return err
	}
	cx.exists = true
	if !req.Append {
		cx.offset = 0
		cx.delivered = false
	}
	return nil
}

func (cx *Context) Close() error {
	if cx.State() == axiom.StateWait {
		err := fserr.New(fserr.Invalid, "closed before open")
		if cerr := cx.CloseError(err); cerr != nil {
			return cerr
		}
		return err
	}
	return cx.CloseOk(nil)
}
