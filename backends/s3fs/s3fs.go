// Package s3fs is a cloud-drive backend over an S3 compatible bucket.
//
// Files are objects keyed by their slash-joined path under an optional
// prefix. Directories are key prefixes: Mkdir stores a zero-length marker
// object "dir/", and a prefix with objects below it is a directory even
// without a marker. The root always exists.
package s3fs

import (
	"context"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	axiom "github.com/chromium/axiom-sub003"
	"github.com/chromium/axiom-sub003/backends/blobctx"
	"github.com/chromium/axiom-sub003/fserr"
	"github.com/chromium/axiom-sub003/fspath"
	"github.com/chromium/axiom-sub003/internal/util"
)

// FileSystem serves a bucket through the axiom backend contract.
type FileSystem struct {
	name        string
	store       Store
	prefix      string
	concurrency int
}

var (
	_ axiom.FileSystem       = (*FileSystem)(nil)
	_ axiom.RecursiveRemover = (*FileSystem)(nil)
)

// New serves store. prefix namespaces every key.
func New(name string, store Store, prefix string) *FileSystem {
	return &FileSystem{
		name:        name,
		store:       store,
		prefix:      strings.Trim(prefix, "/"),
		concurrency: DefaultConcurrency,
	}
}

// Open connects to the bucket described by cfg.
func Open(name string, cfg Config) (*FileSystem, error) {
	store, err := NewMinioStore(cfg)
	if err != nil {
		return nil, err
	}
	s := New(name, store, cfg.Prefix)
	if cfg.Concurrency > 0 {
		s.concurrency = cfg.Concurrency
	}
	return s, nil
}

func (s *FileSystem) Name() string {
	return s.name
}

// key returns the object key of p; the root maps to the prefix itself.
func (s *FileSystem) key(elements []string) string {
	rel := strings.Join(elements, "/")
	switch {
	case s.prefix == "":
		return rel
	case rel == "":
		return s.prefix
	default:
		return s.prefix + "/" + rel
	}
}

// dirKey is the listing prefix of a directory, ending in "/" unless it is the
// bucket root.
func (s *FileSystem) dirKey(elements []string) string {
	k := s.key(elements)
	if k == "" {
		return ""
	}
	return k + "/"
}

// lookup stats the entry at elements.
func (s *FileSystem) lookup(ctx context.Context, elements []string) (blobctx.Entry, error) {
	if len(elements) == 0 {
		return blobctx.Entry{EntryMode: blobctx.DirMode}, nil
	}
	info, err := s.store.StatObject(ctx, s.key(elements))
	if err == nil {
		return blobctx.Entry{EntryMode: blobctx.FileMode, ModTime: info.LastModified, Size: info.Size}, nil
	}
	if !fserr.Is(err, fserr.NotFound) {
		return blobctx.Entry{}, err
	}

	prefix := s.dirKey(elements)
	objects, err := s.store.ListObjects(ctx, prefix, false)
	if err != nil {
		return blobctx.Entry{}, err
	}
	if len(objects) == 0 {
		return blobctx.Entry{}, fserr.Newf(fserr.NotFound, "/%s: no such entry", strings.Join(elements, "/"))
	}
	var mtime time.Time
	for _, o := range objects {
		if o.Key == prefix {
			mtime = o.LastModified
		}
	}
	return blobctx.Entry{EntryMode: blobctx.DirMode, ModTime: mtime}, nil
}

func (s *FileSystem) stat(ctx context.Context, p fspath.Path) (blobctx.Entry, error) {
	if !p.IsValid() {
		return blobctx.Entry{}, fserr.Newf(fserr.Invalid, "invalid path %q", p.OriginalSpec())
	}
	return s.lookup(ctx, p.Elements())
}

func (s *FileSystem) Resolve(ctx context.Context, p fspath.Path) axiom.ResolveResult {
	if !p.IsValid() {
		return axiom.ResolveResult{Suffix: p.Elements()}
	}
	elements := p.Elements()
	current, _ := s.lookup(ctx, nil)
	for i := range elements {
		if !current.IsDir() {
			return axiom.ResolveResult{Prefix: elements[:i:i], Suffix: elements[i:], Entry: current, Owner: s}
		}
		next, err := s.lookup(ctx, elements[:i+1])
		if err != nil {
			return axiom.ResolveResult{Prefix: elements[:i:i], Suffix: elements[i:], Entry: current, Owner: s}
		}
		current = next
	}
	return axiom.ResolveResult{Prefix: elements, Entry: current, Owner: s}
}

// children lists the direct children of a directory by name.
func (s *FileSystem) children(ctx context.Context, elements []string) (map[string]blobctx.Entry, error) {
	prefix := s.dirKey(elements)
	objects, err := s.store.ListObjects(ctx, prefix, false)
	if err != nil {
		return nil, err
	}
	out := make(map[string]blobctx.Entry, len(objects))
	for _, o := range objects {
		if o.Key == prefix {
			continue
		}
		name := strings.TrimPrefix(o.Key, prefix)
		if dir, ok := strings.CutSuffix(name, "/"); ok {
			if dir != "" {
				out[dir] = blobctx.Entry{EntryMode: blobctx.DirMode, ModTime: o.LastModified}
			}
			continue
		}
		if name != "" {
			out[name] = blobctx.Entry{EntryMode: blobctx.FileMode, ModTime: o.LastModified, Size: o.Size}
		}
	}
	return out, nil
}

func (s *FileSystem) Stat(ctx context.Context, p fspath.Path) (axiom.Stat, error) {
	entry, err := s.stat(ctx, p)
	if err != nil {
		return axiom.Stat{}, err
	}
	st := entry.Stat()
	if entry.IsDir() {
		if children, err := s.children(ctx, p.Elements()); err == nil {
			st.Size = int64(len(children))
		}
	}
	return st, nil
}

func (s *FileSystem) List(ctx context.Context, p fspath.Path) (map[string]axiom.Stat, error) {
	entry, err := s.stat(ctx, p)
	if err != nil {
		return nil, err
	}
	if !entry.IsDir() {
		return nil, fserr.Newf(fserr.TypeMismatch, "%s is not a directory", p.Spec())
	}
	children, err := s.children(ctx, p.Elements())
	if err != nil {
		return nil, err
	}
	out := make(map[string]axiom.Stat, len(children))
	for name, e := range children {
		out[name] = e.Stat()
	}
	return out, nil
}

func (s *FileSystem) requireDir(ctx context.Context, elements []string) error {
	entry, err := s.lookup(ctx, elements)
	if err != nil {
		return err
	}
	if !entry.IsDir() {
		return fserr.Newf(fserr.TypeMismatch, "/%s is not a directory", strings.Join(elements, "/"))
	}
	return nil
}

func (s *FileSystem) Mkdir(ctx context.Context, p fspath.Path) error {
	if p.IsRoot() {
		return fserr.New(fserr.Duplicate, "root already exists")
	}
	if _, err := s.stat(ctx, p); err == nil {
		return fserr.Newf(fserr.Duplicate, "%s already exists", p.Spec())
	} else if !fserr.Is(err, fserr.NotFound) {
		return err
	}
	elements := p.Elements()
	if err := s.requireDir(ctx, elements[:len(elements)-1]); err != nil {
		return err
	}
	if err := s.store.PutObject(ctx, s.dirKey(elements), nil); err != nil {
		return err
	}
	util.GetLogger("S3.Mkdir").Debug().Str("fs", s.name).Str("path", p.Spec()).Msg("Created directory")
	return nil
}

// Unlink removes a file or an empty directory.
func (s *FileSystem) Unlink(ctx context.Context, p fspath.Path) error {
	if p.IsRoot() {
		return fserr.New(fserr.Invalid, "cannot unlink the root")
	}
	entry, err := s.stat(ctx, p)
	if err != nil {
		return err
	}
	if !entry.IsDir() {
		return s.store.RemoveObject(ctx, s.key(p.Elements()))
	}
	children, err := s.children(ctx, p.Elements())
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return fserr.Newf(fserr.Invalid, "%s: directory not empty", p.Spec()).WithContext("path", p.Spec())
	}
	return s.store.RemoveObject(ctx, s.dirKey(p.Elements()))
}

// UnlinkRecursive deletes every object under p concurrently.
func (s *FileSystem) UnlinkRecursive(ctx context.Context, p fspath.Path) error {
	logger := util.GetLogger("S3.UnlinkRecursive")

	if p.IsRoot() {
		return fserr.New(fserr.Invalid, "cannot unlink the root")
	}
	entry, err := s.stat(ctx, p)
	if err != nil {
		return err
	}
	if !entry.IsDir() {
		return s.store.RemoveObject(ctx, s.key(p.Elements()))
	}
	prefix := s.dirKey(p.Elements())
	objects, err := s.store.ListObjects(ctx, prefix, true)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(objects)+1)
	for _, o := range objects {
		keys = append(keys, o.Key)
	}
	if !slices.Contains(keys, prefix) {
		keys = append(keys, prefix)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, key := range keys {
		g.Go(func() error {
			err := s.store.RemoveObject(gctx, key)
			if fserr.Is(err, fserr.NotFound) {
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Str("path", p.Spec()).Msg("Recursive unlink failed")
		return err
	}
	logger.Debug().Str("fs", s.name).Str("path", p.Spec()).Int("objects", len(keys)).Msg("Removed tree")
	return nil
}

// CreateOpenContext accepts a missing file whose parent directory exists; the
// object is created by the first write.
func (s *FileSystem) CreateOpenContext(ctx context.Context, p fspath.Path) (axiom.OpenContext, error) {
	entry, err := s.stat(ctx, p)
	t := &target{fs: s, elements: p.Elements()}
	switch {
	case err == nil:
		return blobctx.New(s.name, p, entry, true, t), nil
	case !fserr.Is(err, fserr.NotFound) || p.IsRoot():
		return nil, err
	}
	elements := p.Elements()
	if err := s.requireDir(ctx, elements[:len(elements)-1]); err != nil {
		return nil, err
	}
	return blobctx.New(s.name, p, blobctx.Entry{EntryMode: blobctx.FileMode}, false, t), nil
}

// CreateExecuteContext always fails: objects are never executable.
func (s *FileSystem) CreateExecuteContext(
	ctx context.Context, p fspath.Path, _ any, _ ...axiom.ExecOption,
) (axiom.ExecuteContext, error) {
	if _, err := s.stat(ctx, p); err != nil {
		return nil, err
	}
	return nil, fserr.Newf(fserr.NotImplemented, "%s: bucket objects cannot execute", p.Spec())
}

// target implements blobctx.Target over one key.
type target struct {
	fs       *FileSystem
	elements []string
}

func (t *target) Size(ctx context.Context) (int64, error) {
	info, err := t.fs.store.StatObject(ctx, t.fs.key(t.elements))
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

func (t *target) ReadAt(ctx context.Context, off int64, n int) ([]byte, error) {
	return t.fs.store.ReadObject(ctx, t.fs.key(t.elements), off, n)
}

func (t *target) List(ctx context.Context) ([]string, error) {
	children, err := t.fs.children(ctx, t.elements)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(children))
	for name := range children {
		names = append(names, name)
	}
	return names, nil
}

// Write replaces the object. Objects cannot be appended to in place, so an
// append reads the current body and stores the concatenation.
func (t *target) Write(ctx context.Context, data []byte, appendData bool) error {
	key := t.fs.key(t.elements)
	if appendData {
		current, err := t.fs.store.ReadObject(ctx, key, 0, 0)
		switch {
		case err == nil:
			data = append(current, data...)
		case !fserr.Is(err, fserr.NotFound):
			return err
		}
	}
	return t.fs.store.PutObject(ctx, key, data)
}
