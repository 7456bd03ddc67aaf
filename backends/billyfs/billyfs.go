// Package billyfs is a host-storage backend over a go-billy file system,
// either the local disk (osfs) or process memory (memfs).
package billyfs

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	axiom "github.com/chromium/axiom-sub003"
	"github.com/chromium/axiom-sub003/backends/blobctx"
	"github.com/chromium/axiom-sub003/fserr"
	"github.com/chromium/axiom-sub003/fspath"
	logutil "github.com/chromium/axiom-sub003/internal/util"
)

// FileSystem adapts a billy.Filesystem to the axiom backend contract.
type FileSystem struct {
	name string
	bfs  billy.Filesystem
}

var (
	_ axiom.FileSystem       = (*FileSystem)(nil)
	_ axiom.RecursiveRemover = (*FileSystem)(nil)
)

// New wraps bfs.
func New(name string, bfs billy.Filesystem) *FileSystem {
	return &FileSystem{name: name, bfs: bfs}
}

// NewLocal serves the host directory root.
func NewLocal(name, root string) *FileSystem {
	return New(name, osfs.New(root))
}

// NewMemory serves an initially empty in-memory tree.
func NewMemory(name string) *FileSystem {
	return New(name, memfs.New())
}

// Unwrap returns the underlying billy.Filesystem.
func (b *FileSystem) Unwrap() billy.Filesystem {
	return b.bfs
}

func (b *FileSystem) Name() string {
	return b.name
}

// hostPath maps a VFS path onto billy's slash-separated namespace.
func hostPath(p fspath.Path) string {
	return "/" + strings.Join(p.Elements(), "/")
}

func entryOf(info os.FileInfo) blobctx.Entry {
	if info.IsDir() {
		return blobctx.Entry{EntryMode: blobctx.DirMode, ModTime: info.ModTime()}
	}
	return blobctx.Entry{EntryMode: blobctx.FileMode, ModTime: info.ModTime(), Size: info.Size()}
}

func (b *FileSystem) stat(p fspath.Path) (os.FileInfo, error) {
	if !p.IsValid() {
		return nil, fserr.Newf(fserr.Invalid, "invalid path %q", p.OriginalSpec())
	}
	info, err := b.bfs.Stat(hostPath(p))
	if err != nil {
		return nil, fserr.FromHost(err, p.Spec())
	}
	return info, nil
}

// Resolve stats each prefix in turn, stopping at the first missing element
// or non-directory.
func (b *FileSystem) Resolve(_ context.Context, p fspath.Path) axiom.ResolveResult {
	if !p.IsValid() {
		return axiom.ResolveResult{Suffix: p.Elements()}
	}
	elements := p.Elements()
	info, err := b.bfs.Stat("/")
	if err != nil {
		return axiom.ResolveResult{Suffix: elements}
	}
	var current axiom.Entry = entryOf(info)
	for i := range elements {
		if !info.IsDir() {
			return axiom.ResolveResult{Prefix: elements[:i:i], Suffix: elements[i:], Entry: current, Owner: b}
		}
		next, err := b.bfs.Stat("/" + strings.Join(elements[:i+1], "/"))
		if err != nil {
			return axiom.ResolveResult{Prefix: elements[:i:i], Suffix: elements[i:], Entry: current, Owner: b}
		}
		info, current = next, entryOf(next)
	}
	return axiom.ResolveResult{Prefix: elements, Entry: current, Owner: b}
}

func (b *FileSystem) Stat(_ context.Context, p fspath.Path) (axiom.Stat, error) {
	info, err := b.stat(p)
	if err != nil {
		return axiom.Stat{}, err
	}
	st := entryOf(info).Stat()
	if info.IsDir() {
		if infos, err := b.bfs.ReadDir(hostPath(p)); err == nil {
			st.Size = int64(len(infos))
		}
	}
	return st, nil
}

func (b *FileSystem) List(_ context.Context, p fspath.Path) (map[string]axiom.Stat, error) {
	info, err := b.stat(p)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fserr.Newf(fserr.TypeMismatch, "%s is not a directory", p.Spec())
	}
	infos, err := b.bfs.ReadDir(hostPath(p))
	if err != nil {
		return nil, fserr.FromHost(err, "read dir "+p.Spec())
	}
	out := make(map[string]axiom.Stat, len(infos))
	for _, fi := range infos {
		out[fi.Name()] = entryOf(fi).Stat()
	}
	return out, nil
}

func (b *FileSystem) Mkdir(_ context.Context, p fspath.Path) error {
	logger := logutil.GetLogger("Billy.Mkdir")

	if p.IsRoot() {
		return fserr.New(fserr.Duplicate, "root already exists")
	}
	if _, err := b.stat(p); err == nil {
		return fserr.Newf(fserr.Duplicate, "%s already exists", p.Spec())
	} else if !fserr.Is(err, fserr.NotFound) {
		return err
	}
	if err := b.requireDir(mustParent(p)); err != nil {
		return err
	}
	if err := b.bfs.MkdirAll(hostPath(p), 0o755); err != nil {
		return fserr.FromHost(err, "mkdir "+p.Spec())
	}
	logger.Debug().Str("fs", b.name).Str("path", p.Spec()).Msg("Created directory")
	return nil
}

func (b *FileSystem) requireDir(p fspath.Path) error {
	info, err := b.stat(p)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fserr.Newf(fserr.TypeMismatch, "%s is not a directory", p.Spec())
	}
	return nil
}

func mustParent(p fspath.Path) fspath.Path {
	parent, ok := p.Parent()
	if !ok {
		return p
	}
	return parent
}

// Unlink removes a file or an empty directory.
func (b *FileSystem) Unlink(_ context.Context, p fspath.Path) error {
	if p.IsRoot() {
		return fserr.New(fserr.Invalid, "cannot unlink the root")
	}
	info, err := b.stat(p)
	if err != nil {
		return err
	}
	if info.IsDir() {
		infos, err := b.bfs.ReadDir(hostPath(p))
		if err != nil {
			return fserr.FromHost(err, "read dir "+p.Spec())
		}
		if len(infos) > 0 {
			return fserr.Newf(fserr.Invalid, "%s: directory not empty", p.Spec()).WithContext("path", p.Spec())
		}
	}
	if err := b.bfs.Remove(hostPath(p)); err != nil {
		return fserr.FromHost(err, "remove "+p.Spec())
	}
	logutil.GetLogger("Billy.Unlink").Debug().Str("fs", b.name).Str("path", p.Spec()).Msg("Unlinked")
	return nil
}

func (b *FileSystem) UnlinkRecursive(_ context.Context, p fspath.Path) error {
	if p.IsRoot() {
		return fserr.New(fserr.Invalid, "cannot unlink the root")
	}
	if _, err := b.stat(p); err != nil {
		return err
	}
	if err := util.RemoveAll(b.bfs, hostPath(p)); err != nil {
		return fserr.FromHost(err, "remove "+p.Spec())
	}
	return nil
}

// CreateOpenContext accepts a missing file whose parent directory exists; the
// file is created by the first write.
func (b *FileSystem) CreateOpenContext(_ context.Context, p fspath.Path) (axiom.OpenContext, error) {
	info, err := b.stat(p)
	switch {
	case err == nil:
		return blobctx.New(b.name, p, entryOf(info), true, &target{bfs: b.bfs, path: hostPath(p)}), nil
	case !fserr.Is(err, fserr.NotFound) || p.IsRoot():
		return nil, err
	}
	if err := b.requireDir(mustParent(p)); err != nil {
		return nil, err
	}
	return blobctx.New(b.name, p, blobctx.Entry{EntryMode: blobctx.FileMode}, false, &target{bfs: b.bfs, path: hostPath(p)}), nil
}

// CreateExecuteContext always fails: host files are never executable.
func (b *FileSystem) CreateExecuteContext(
	_ context.Context, p fspath.Path, _ any, _ ...axiom.ExecOption,
) (axiom.ExecuteContext, error) {
	if _, err := b.stat(p); err != nil {
		return nil, err
	}
	return nil, fserr.Newf(fserr.NotImplemented, "%s: host storage cannot execute", p.Spec())
}

// target implements blobctx.Target over one billy path.
type target struct {
	bfs  billy.Filesystem
	path string
}

func (t *target) Size(context.Context) (int64, error) {
	info, err := t.bfs.Stat(t.path)
	if err != nil {
		return 0, fserr.FromHost(err, "stat "+t.path)
	}
	return info.Size(), nil
}

func (t *target) ReadAt(_ context.Context, off int64, n int) ([]byte, error) {
	f, err := t.bfs.Open(t.path)
	if err != nil {
		return nil, fserr.FromHost(err, "open "+t.path)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Seek(off, io.SeekStart); err != nil {
		return nil, fserr.FromHost(err, "seek "+t.path)
	}
	var r io.Reader = f
	if n > 0 {
		r = io.LimitReader(f, int64(n))
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fserr.FromHost(err, "read "+t.path)
	}
	return data, nil
}

func (t *target) List(context.Context) ([]string, error) {
	infos, err := t.bfs.ReadDir(t.path)
	if err != nil {
		return nil, fserr.FromHost(err, "read dir "+t.path)
	}
	names := make([]string, 0, len(infos))
	for _, fi := range infos {
		names = append(names, fi.Name())
	}
	return names, nil
}

func (t *target) Write(_ context.Context, data []byte, appendData bool) error {
	flag := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if appendData {
		flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	f, err := t.bfs.OpenFile(t.path, flag, 0o644)
	if err != nil {
		return fserr.FromHost(err, "open "+t.path)
	}
	_, werr := f.Write(data)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		return fserr.FromHost(err, "write "+t.path)
	}
	return nil
}

// WriteFile creates or replaces the file at p.
func (b *FileSystem) WriteFile(_ context.Context, p fspath.Path, data []byte) error {
	if !p.IsValid() || p.IsRoot() {
		return fserr.Newf(fserr.Invalid, "invalid file path %q", p.OriginalSpec())
	}
	err := util.WriteFile(b.bfs, hostPath(p), data, 0o644)
	return fserr.FromHost(err, "write "+p.Spec())
}
