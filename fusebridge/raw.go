// Package fusebridge exposes a namespace on a host mount point over the FUSE
// wire protocol. The bridge is read only: directories can be listed and data
// entries read, everything else is refused.
package fusebridge

import (
	"context"
	"sort"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/puzpuzpuz/xsync/v4"

	axiom "github.com/chromium/axiom-sub003"
	"github.com/chromium/axiom-sub003/config"
	"github.com/chromium/axiom-sub003/fserr"
	"github.com/chromium/axiom-sub003/fspath"
	"github.com/chromium/axiom-sub003/internal/util"
)

// handle is the snapshot taken when a file or directory is opened.
type handle struct {
	data    []byte
	entries []fuse.DirEntry
}

// Raw implements the low-level FUSE protocol on top of an axiom.FileSystem.
// See https://www.man7.org/linux//man-pages/man4/fuse.4.html
type Raw struct {
	fuse.RawFileSystem
	fs           axiom.FileSystem
	nodes        *nodeTable
	handles      *xsync.Map[uint64, *handle]
	nextFh       atomic.Uint64
	attrTimeout  time.Duration
	entryTimeout time.Duration
	server       *fuse.Server
}

// NewRaw serves fs below root, e.g. the "/" of the default backend or
// "node:/" of a mounted one.
func NewRaw(fs axiom.FileSystem, root fspath.Path, opts config.MountOptions) *Raw {
	return &Raw{
		RawFileSystem: fuse.NewDefaultRawFileSystem(),
		fs:            fs,
		nodes:         newNodeTable(root),
		handles:       xsync.NewMap[uint64, *handle](),
		attrTimeout:   seconds(opts.AttrTimeout),
		entryTimeout:  seconds(opts.EntryTimeout),
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (r *Raw) Init(s *fuse.Server) {
	logger := util.GetLogger("Fuse.Init")
	logger.Debug().Msg("FUSE initialized")
	r.server = s
}

func (r *Raw) OnUnmount() {
	logger := util.GetLogger("Fuse.OnUnmount")
	logger.Info().Msg("FUSE unmounted")
}

func (r *Raw) String() string {
	return "axiom"
}

// context ties a request to the kernel's cancel channel.
func (r *Raw) context(cancel <-chan struct{}) (context.Context, context.CancelFunc) {
	ctx, stop := context.WithCancel(context.Background())
	go func() {
		select {
		case <-cancel:
			stop()
		case <-ctx.Done():
		}
	}()
	return ctx, stop
}

// Access allows everything; modes are enforced by Open.
func (r *Raw) Access(cancel <-chan struct{}, input *fuse.AccessIn) fuse.Status {
	return fuse.OK
}

func (r *Raw) StatFs(cancel <-chan struct{}, input *fuse.InHeader, out *fuse.StatfsOut) fuse.Status {
	*out = fuse.StatfsOut{Bsize: 4096, Frsize: 4096, NameLen: 255}
	return fuse.OK
}

// Lookup stats parent/name and registers a reference to it.
func (r *Raw) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	logger := util.GetLogger("Fuse.Lookup")

	parent, ok := r.nodes.path(header.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	ctx, stop := r.context(cancel)
	defer stop()

	p := parent.Join(name)
	st, err := r.fs.Stat(ctx, p)
	if err != nil {
		logger.Trace().Err(err).Str("path", p.Spec()).Msg("Lookup failed")
		return status(err)
	}
	id := r.nodes.lookup(p)
	out.NodeId = id
	toAttr(id, st, &out.Attr)
	out.SetAttrTimeout(r.attrTimeout)
	out.SetEntryTimeout(r.entryTimeout)
	return fuse.OK
}

// Forget does no I/O; it only drops references.
func (r *Raw) Forget(nodeid, nlookup uint64) {
	r.nodes.forget(nodeid, nlookup)
}

func (r *Raw) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	p, ok := r.nodes.path(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	ctx, stop := r.context(cancel)
	defer stop()

	st, err := r.fs.Stat(ctx, p)
	if err != nil {
		return status(err)
	}
	toAttr(input.NodeId, st, &out.Attr)
	out.SetTimeout(r.attrTimeout)
	return fuse.OK
}

// Open reads the whole value into a handle. Write access is refused.
func (r *Raw) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	logger := util.GetLogger("Fuse.Open")

	if input.Flags&syscall.O_ACCMODE != syscall.O_RDONLY {
		return fuse.EROFS
	}
	p, ok := r.nodes.path(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	ctx, stop := r.context(cancel)
	defer stop()

	v, err := axiom.ReadValue(ctx, r.fs, p)
	if err != nil {
		logger.Debug().Err(err).Str("path", p.Spec()).Msg("Open failed")
		return status(err)
	}
	data, err := render(v)
	if err != nil {
		return status(err)
	}
	out.Fh = r.store(&handle{data: data})
	out.OpenFlags = fuse.FOPEN_DIRECT_IO
	return fuse.OK
}

func (r *Raw) store(h *handle) uint64 {
	fh := r.nextFh.Add(1)
	r.handles.Store(fh, h)
	return fh
}

func (r *Raw) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	h, ok := r.handles.Load(input.Fh)
	if !ok {
		return nil, fuse.EBADF
	}
	off := min(input.Offset, uint64(len(h.data)))
	end := min(off+uint64(input.Size), uint64(len(h.data)))
	return fuse.ReadResultData(h.data[off:end]), fuse.OK
}

func (r *Raw) Release(cancel <-chan struct{}, input *fuse.ReleaseIn) {
	r.handles.Delete(input.Fh)
}

// OpenDir snapshots the listing so offsets stay stable across ReadDir calls.
func (r *Raw) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	p, ok := r.nodes.path(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	ctx, stop := r.context(cancel)
	defer stop()

	list, err := r.fs.List(ctx, p)
	if fserr.Is(err, fserr.TypeMismatch) {
		return fuse.ENOTDIR
	}
	if err != nil {
		return status(err)
	}
	names := make([]string, 0, len(list))
	for name := range list {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]fuse.DirEntry, 0, len(names)+2)
	entries = append(entries,
		fuse.DirEntry{Name: ".", Mode: syscall.S_IFDIR, Ino: input.NodeId},
		fuse.DirEntry{Name: "..", Mode: syscall.S_IFDIR, Ino: r.parentIno(p)},
	)
	for _, name := range names {
		entries = append(entries, fuse.DirEntry{
			Name: name,
			Mode: fileMode(list[name].Mode),
			Ino:  r.nodes.ino(p.Join(name)),
		})
	}
	out.Fh = r.store(&handle{entries: entries})
	return fuse.OK
}

func (r *Raw) parentIno(p fspath.Path) uint64 {
	if parent, ok := p.Parent(); ok {
		if id := r.nodes.ino(parent); id != 0 {
			return id
		}
	}
	return fuse.FUSE_ROOT_ID
}

func (r *Raw) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	h, ok := r.handles.Load(input.Fh)
	if !ok {
		return fuse.EBADF
	}
	for i := int(input.Offset); i < len(h.entries); i++ {
		if !out.AddDirEntry(h.entries[i]) {
			// Buffer full; the kernel asks again from the next offset.
			break
		}
	}
	return fuse.OK
}

func (r *Raw) ReleaseDir(input *fuse.ReleaseIn) {
	r.handles.Delete(input.Fh)
}
