package filesystem

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	axiom "github.com/chromium/axiom-sub003"
	"github.com/chromium/axiom-sub003/fserr"
	"github.com/chromium/axiom-sub003/fspath"
	"github.com/puzpuzpuz/xsync/v4"
)

// node holds the state shared by every entry variant.
type node struct {
	mode  axiom.Mode
	mtime atomic.Int64 // unix ms
}

func newNode(mode axiom.Mode) node {
	n := node{mode: mode}
	n.touch()
	return n
}

func (n *node) Mode() axiom.Mode {
	return n.mode
}

func (n *node) MTime() time.Time {
	return time.UnixMilli(n.mtime.Load())
}

func (n *node) touch() {
	n.mtime.Store(time.Now().UnixMilli())
}

// Directory maps names to child entries and to mounted foreign file systems.
// Lookups are lock-free; mutations are serialized by mu so that the
// "name is free" check and the bind happen atomically across both maps.
type Directory struct {
	node
	mu       sync.Mutex
	children *xsync.Map[string, axiom.Entry]
	mounts   *xsync.Map[string, axiom.FileSystem]
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		node:     newNode(axiom.ModeDirectory | axiom.ModeReadable),
		children: xsync.NewMap[string, axiom.Entry](),
		mounts:   xsync.NewMap[string, axiom.FileSystem](),
	}
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !containsSeparator(name)
}

func containsSeparator(name string) bool {
	for i := 0; i < len(name); i++ {
		if name[i] == '/' || name[i] == 0 {
			return true
		}
	}
	return false
}

// Link binds entry under name. It fails with Duplicate if the name is bound
// to a child or a mount.
func (d *Directory) Link(name string, entry axiom.Entry) (axiom.Entry, error) {
	if !validName(name) {
		return nil, fserr.Newf(fserr.Invalid, "invalid entry name %q", name)
	}
	if entry == nil {
		return nil, fserr.New(fserr.Invalid, "cannot link a nil entry")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.boundLocked(name) {
		return nil, fserr.Newf(fserr.Duplicate, "%q already exists", name).WithContext("name", name)
	}
	d.children.Store(name, entry)
	d.touch()
	return entry, nil
}

// Unlink removes the child bound to name and returns it. Mount points are not
// touched; see Unmount.
func (d *Directory) Unlink(name string) (axiom.Entry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.mounts.Load(name); ok {
		return nil, fserr.Newf(fserr.Invalid, "%q is a mount point", name).WithContext("name", name)
	}
	entry, ok := d.children.LoadAndDelete(name)
	if !ok {
		return nil, fserr.Newf(fserr.NotFound, "%q not found", name).WithContext("name", name)
	}
	d.touch()
	return entry, nil
}

// Install binds every executable in commands. Either all names are free and
// all are bound, or nothing changes and Duplicate is returned.
func (d *Directory) Install(commands map[string]*Executable) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		if !validName(name) {
			return fserr.Newf(fserr.Invalid, "invalid command name %q", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, name := range names {
		if d.boundLocked(name) {
			return fserr.Newf(fserr.Duplicate, "%q already exists", name).WithContext("name", name)
		}
	}
	for _, name := range names {
		d.children.Store(name, commands[name])
	}
	d.touch()
	return nil
}

// Mount binds a foreign file system under name.
func (d *Directory) Mount(name string, fs axiom.FileSystem) error {
	if !validName(name) {
		return fserr.Newf(fserr.Invalid, "invalid mount name %q", name)
	}
	if fs == nil {
		return fserr.New(fserr.Invalid, "cannot mount a nil file system")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.boundLocked(name) {
		return fserr.Newf(fserr.Duplicate, "%q already exists", name).WithContext("name", name)
	}
	d.mounts.Store(name, fs)
	d.touch()
	return nil
}

// Unmount removes the mount bound to name and returns the file system.
func (d *Directory) Unmount(name string) (axiom.FileSystem, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fs, ok := d.mounts.LoadAndDelete(name)
	if !ok {
		return nil, fserr.Newf(fserr.NotFound, "%q is not a mount point", name).WithContext("name", name)
	}
	d.touch()
	return fs, nil
}

// boundLocked reports whether name is taken. Caller holds mu.
func (d *Directory) boundLocked(name string) bool {
	if _, ok := d.mounts.Load(name); ok {
		return true
	}
	_, ok := d.children.Load(name)
	return ok
}

// Child returns the local child bound to name.
func (d *Directory) Child(name string) (axiom.Entry, bool) {
	return d.children.Load(name)
}

// Mounted returns the file system mounted under name.
func (d *Directory) Mounted(name string) (axiom.FileSystem, bool) {
	return d.mounts.Load(name)
}

// Names returns every bound name, children and mounts, sorted.
func (d *Directory) Names() []string {
	names := make([]string, 0, d.Len())
	d.children.Range(func(name string, _ axiom.Entry) bool {
		names = append(names, name)
		return true
	})
	d.mounts.Range(func(name string, _ axiom.FileSystem) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// Len returns the number of bound names.
func (d *Directory) Len() int {
	return d.children.Size() + d.mounts.Size()
}

// Resolve walks elements from d. Bound children are descended; a mount point
// hands the remaining elements to the mounted file system and the result is
// relabeled with the prefix consumed so far. An unbound name or a
// non-directory stops the walk with the rest left in Suffix. Owner is left nil
// for entries local to d's file system.
func (d *Directory) Resolve(ctx context.Context, elements []string) axiom.ResolveResult {
	w := d.walk(elements)
	if w.mount == nil {
		return axiom.ResolveResult{
			Prefix: elements[:w.consumed:w.consumed],
			Suffix: elements[w.consumed:],
			Entry:  w.entry,
		}
	}

	sub := w.mount.Resolve(ctx, fspath.FromElements("", elements[w.consumed:]...))
	prefix := make([]string, 0, w.consumed+len(sub.Prefix))
	prefix = append(prefix, elements[:w.consumed]...)
	prefix = append(prefix, sub.Prefix...)
	owner := sub.Owner
	if owner == nil {
		owner = w.mount
	}
	return axiom.ResolveResult{Prefix: prefix, Suffix: sub.Suffix, Entry: sub.Entry, Owner: owner}
}

// walkResult is the local part of a resolution.
type walkResult struct {
	entry    axiom.Entry
	parent   *Directory
	consumed int
	// mount is set when elements[consumed-1] names a mount point.
	mount axiom.FileSystem
}

func (w walkResult) final(n int) bool {
	return w.mount == nil && w.consumed == n
}

func (d *Directory) walk(elements []string) walkResult {
	w := walkResult{entry: d}
	for _, name := range elements {
		dir, ok := w.entry.(*Directory)
		if !ok {
			return w
		}
		if fs, ok := dir.mounts.Load(name); ok {
			w.parent = dir
			w.consumed++
			w.mount = fs
			return w
		}
		child, ok := dir.children.Load(name)
		if !ok {
			return w
		}
		w.parent = dir
		w.entry = child
		w.consumed++
	}
	return w
}
