// Package filesystem is the in-memory file system: a tree of directories,
// data values and executables that other backends can be mounted into.
package filesystem

import (
	"context"
	"time"

	axiom "github.com/chromium/axiom-sub003"
	"github.com/chromium/axiom-sub003/config"
	"github.com/chromium/axiom-sub003/fserr"
	"github.com/chromium/axiom-sub003/fspath"
	"github.com/chromium/axiom-sub003/internal/util"
)

// FileSystem is the in-memory backend. Operations on a path that crosses a
// mount point are forwarded to the mounted backend with the remaining
// elements.
type FileSystem struct {
	name string
	cfg  *config.Config
	root *Directory
}

var _ axiom.FileSystem = (*FileSystem)(nil)

// NewFS creates an empty file system. A nil cfg uses the defaults.
func NewFS(name string, cfg *config.Config) *FileSystem {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	return &FileSystem{name: name, cfg: cfg, root: NewDirectory()}
}

func (fs *FileSystem) Name() string {
	return fs.name
}

// Root returns the root directory.
func (fs *FileSystem) Root() *Directory {
	return fs.root
}

// route is a resolved path together with the backend that must serve it.
type route struct {
	walkResult
	elements []string
}

// forward reports whether the operation belongs to a mounted backend, and
// the path relative to it.
func (r route) forward() (axiom.FileSystem, fspath.Path, bool) {
	if r.mount == nil {
		return nil, fspath.Path{}, false
	}
	return r.mount, fspath.FromElements("", r.elements[r.consumed:]...), true
}

func (r route) final() bool {
	return r.walkResult.final(len(r.elements))
}

func (fs *FileSystem) route(p fspath.Path) (route, error) {
	if !p.IsValid() {
		return route{}, fserr.Newf(fserr.Invalid, "invalid path %q", p.OriginalSpec())
	}
	elements := p.Elements()
	return route{walkResult: fs.root.walk(elements), elements: elements}, nil
}

func (fs *FileSystem) Resolve(ctx context.Context, p fspath.Path) axiom.ResolveResult {
	if !p.IsValid() {
		return axiom.ResolveResult{Suffix: p.Elements()}
	}
	res := fs.root.Resolve(ctx, p.Elements())
	if res.Owner == nil && res.Entry != nil {
		res.Owner = fs
	}
	return res
}

func (fs *FileSystem) Stat(ctx context.Context, p fspath.Path) (axiom.Stat, error) {
	r, err := fs.route(p)
	if err != nil {
		return axiom.Stat{}, err
	}
	if backend, rel, ok := r.forward(); ok {
		return backend.Stat(ctx, rel)
	}
	if !r.final() {
		return axiom.Stat{}, notFound(p)
	}
	return StatEntry(ctx, r.entry), nil
}

// StatEntry describes a local entry.
func StatEntry(ctx context.Context, e axiom.Entry) axiom.Stat {
	st := axiom.Stat{Mode: e.Mode(), MTime: e.MTime().UnixMilli()}
	switch t := e.(type) {
	case *Directory:
		st.Size = int64(t.Len())
	case *Data:
		st.Size = t.Size(ctx)
	case *Executable:
		st.Signature = t.Signature()
	}
	return st
}

func (fs *FileSystem) List(ctx context.Context, p fspath.Path) (map[string]axiom.Stat, error) {
	r, err := fs.route(p)
	if err != nil {
		return nil, err
	}
	if backend, rel, ok := r.forward(); ok {
		return backend.List(ctx, rel)
	}
	if !r.final() {
		return nil, notFound(p)
	}
	dir, ok := r.entry.(*Directory)
	if !ok {
		return nil, fserr.Newf(fserr.TypeMismatch, "%s is not a directory", p.Spec())
	}

	out := make(map[string]axiom.Stat, dir.Len())
	dir.children.Range(func(name string, e axiom.Entry) bool {
		out[name] = StatEntry(ctx, e)
		return true
	})
	dir.mounts.Range(func(name string, mounted axiom.FileSystem) bool {
		st, err := mounted.Stat(ctx, fspath.FromElements(""))
		if err != nil {
			st = axiom.Stat{Mode: axiom.ModeDirectory | axiom.ModeReadable}
		}
		out[name] = st
		return true
	})
	return out, nil
}

func (fs *FileSystem) Mkdir(ctx context.Context, p fspath.Path) error {
	logger := util.GetLogger("FS.Mkdir")

	dir, name, err := fs.parentFor(ctx, p, func(backend axiom.FileSystem, rel fspath.Path) error {
		return backend.Mkdir(ctx, rel)
	})
	if dir == nil {
		return err
	}
	if _, err := dir.Link(name, NewDirectory()); err != nil {
		return fserr.Wrapf(err, fserr.KindOf(err), "mkdir %s", p.Spec())
	}
	logger.Debug().Str("path", p.Spec()).Msg("Created directory")
	return nil
}

// MkdirAll creates every missing directory along p. Existing directories are
// left alone; an existing non-directory fails with TypeMismatch.
func (fs *FileSystem) MkdirAll(ctx context.Context, p fspath.Path) error {
	return axiom.MkdirAll(ctx, fs, p)
}

// parentFor locates the directory that will hold p's last element. When p
// lies beyond a mount point, fwd is invoked instead and a nil directory is
// returned with fwd's error. Existing terminal entries fail with Duplicate.
func (fs *FileSystem) parentFor(
	_ context.Context, p fspath.Path, fwd func(axiom.FileSystem, fspath.Path) error,
) (*Directory, string, error) {
	r, err := fs.route(p)
	if err != nil {
		return nil, "", err
	}
	if p.IsRoot() {
		return nil, "", fserr.New(fserr.Duplicate, "root already exists")
	}
	n := len(r.elements)
	if r.mount != nil {
		if r.consumed == n {
			return nil, "", fserr.Newf(fserr.Duplicate, "%s is a mount point", p.Spec())
		}
		backend, rel, _ := r.forward()
		return nil, "", fwd(backend, rel)
	}
	if r.consumed == n {
		return nil, "", fserr.Newf(fserr.Duplicate, "%s already exists", p.Spec()).WithContext("path", p.Spec())
	}
	if r.consumed < n-1 {
		return nil, "", notFound(p)
	}
	dir, ok := r.entry.(*Directory)
	if !ok {
		return nil, "", fserr.Newf(fserr.TypeMismatch, "parent of %s is not a directory", p.Spec())
	}
	return dir, r.elements[n-1], nil
}

func (fs *FileSystem) Unlink(ctx context.Context, p fspath.Path) error {
	return fs.unlink(ctx, p, false)
}

// UnlinkRecursive removes p and, for a directory, everything below it.
func (fs *FileSystem) UnlinkRecursive(ctx context.Context, p fspath.Path) error {
	return fs.unlink(ctx, p, true)
}

func (fs *FileSystem) unlink(ctx context.Context, p fspath.Path, recursive bool) error {
	logger := util.GetLogger("FS.Unlink")

	r, err := fs.route(p)
	if err != nil {
		return err
	}
	if p.IsRoot() {
		return fserr.New(fserr.Invalid, "cannot unlink the root")
	}
	if r.mount != nil {
		if r.consumed == len(r.elements) {
			return fserr.Newf(fserr.Invalid, "%s is a mount point, use unmount", p.Spec())
		}
		backend, rel, _ := r.forward()
		if recursive {
			return axiom.RemoveAll(ctx, backend, rel)
		}
		return backend.Unlink(ctx, rel)
	}
	if !r.final() {
		return notFound(p)
	}
	if dir, ok := r.entry.(*Directory); ok && !recursive && dir.Len() > 0 {
		return fserr.Newf(fserr.Invalid, "%s: directory not empty", p.Spec()).WithContext("path", p.Spec())
	}
	if _, err := r.parent.Unlink(p.BaseName()); err != nil {
		return err
	}
	logger.Debug().Str("path", p.Spec()).Bool("recursive", recursive).Msg("Unlinked")
	return nil
}

// Link binds entry at p. The parent directory must exist.
func (fs *FileSystem) Link(ctx context.Context, p fspath.Path, entry axiom.Entry) error {
	dir, name, err := fs.parentFor(ctx, p, func(axiom.FileSystem, fspath.Path) error {
		return fserr.Newf(fserr.NotImplemented, "cannot link %s into a mounted file system", p.Spec())
	})
	if dir == nil {
		return err
	}
	_, err = dir.Link(name, entry)
	return err
}

// Install binds every command into the directory at p, atomically.
func (fs *FileSystem) Install(ctx context.Context, p fspath.Path, commands map[string]*Executable) error {
	dir, err := fs.localDir(p)
	if err != nil {
		return err
	}
	if err := dir.Install(commands); err != nil {
		return err
	}
	util.GetLogger("FS.Install").Debug().Str("path", p.Spec()).Int("commands", len(commands)).Msg("Installed commands")
	return nil
}

// Mount attaches backend at p. p's parent must be a local directory and p
// itself must be free.
func (fs *FileSystem) Mount(ctx context.Context, p fspath.Path, backend axiom.FileSystem) error {
	dir, name, err := fs.parentFor(ctx, p, func(axiom.FileSystem, fspath.Path) error {
		return fserr.Newf(fserr.NotImplemented, "cannot mount %s inside a mounted file system", p.Spec())
	})
	if dir == nil {
		return err
	}
	if err := dir.Mount(name, backend); err != nil {
		return err
	}
	util.GetLogger("FS.Mount").Info().Str("path", p.Spec()).Str("backend", backend.Name()).Msg("Mounted file system")
	return nil
}

// Unmount detaches the backend mounted at p and returns it.
func (fs *FileSystem) Unmount(_ context.Context, p fspath.Path) (axiom.FileSystem, error) {
	parent, ok := p.Parent()
	if !ok {
		return nil, fserr.New(fserr.Invalid, "cannot unmount the root")
	}
	dir, err := fs.localDir(parent)
	if err != nil {
		return nil, err
	}
	return dir.Unmount(p.BaseName())
}

func (fs *FileSystem) localDir(p fspath.Path) (*Directory, error) {
	r, err := fs.route(p)
	if err != nil {
		return nil, err
	}
	if r.mount != nil {
		return nil, fserr.Newf(fserr.NotImplemented, "%s is inside a mounted file system", p.Spec())
	}
	if !r.final() {
		return nil, notFound(p)
	}
	dir, ok := r.entry.(*Directory)
	if !ok {
		return nil, fserr.Newf(fserr.TypeMismatch, "%s is not a directory", p.Spec())
	}
	return dir, nil
}

func (fs *FileSystem) CreateOpenContext(ctx context.Context, p fspath.Path) (axiom.OpenContext, error) {
	r, err := fs.route(p)
	if err != nil {
		return nil, err
	}
	if backend, rel, ok := r.forward(); ok {
		return backend.CreateOpenContext(ctx, rel)
	}
	if !r.final() {
		return nil, notFound(p)
	}
	return newOpenContext(fs, p, r.entry), nil
}

func (fs *FileSystem) CreateExecuteContext(
	ctx context.Context, p fspath.Path, arg any, opts ...axiom.ExecOption,
) (axiom.ExecuteContext, error) {
	r, err := fs.route(p)
	if err != nil {
		return nil, err
	}
	if backend, rel, ok := r.forward(); ok {
		return backend.CreateExecuteContext(ctx, rel, arg, opts...)
	}
	if !r.final() {
		return nil, notFound(p)
	}
	a, err := axiom.NormalizeArg(arg)
	if err != nil {
		return nil, err
	}
	return newExecuteContext(p, r.entry, a, axiom.ApplyExecOptions(fs, opts...)), nil
}

// CacheTTL is the lifetime given to values loaded from data sources.
func (fs *FileSystem) CacheTTL() time.Duration {
	return fs.cfg.CacheTTLDuration()
}

func notFound(p fspath.Path) error {
	return fserr.Newf(fserr.NotFound, "%s: no such entry", p.Spec()).WithContext("path", p.Spec())
}
