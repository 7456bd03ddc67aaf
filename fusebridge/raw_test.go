package fusebridge

import (
	"context"
	"syscall"
	"testing"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	axiom "github.com/chromium/axiom-sub003"
	"github.com/chromium/axiom-sub003/config"
	"github.com/chromium/axiom-sub003/filesystem"
	"github.com/chromium/axiom-sub003/fspath"
	"github.com/chromium/axiom-sub003/internal/util"
)

func path(s string) fspath.Path {
	return fspath.MustParse(s)
}

func createTestRaw(t *testing.T) *Raw {
	t.Helper()
	ctx := context.Background()

	fs := filesystem.NewFS("mem", nil)
	require.NoError(t, fs.MkdirAll(ctx, path("/docs/old")))
	require.NoError(t, fs.Link(ctx, path("/docs/readme"), filesystem.NewData("hello fuse")))
	require.NoError(t, fs.Link(ctx, path("/docs/conf"), filesystem.NewData(map[string]any{"port": 80})))
	require.NoError(t, fs.Install(ctx, path("/docs"), map[string]*filesystem.Executable{
		"run": filesystem.NewExecutable(func(context.Context, axiom.ExecuteContext) error { return nil }, nil),
	}))
	return NewRaw(fs, path("/"), config.NewDefaultConfig().MountOptions)
}

func lookup(t *testing.T, r *Raw, parent uint64, name string) (*fuse.EntryOut, fuse.Status) {
	t.Helper()
	out := &fuse.EntryOut{}
	st := r.Lookup(nil, &fuse.InHeader{NodeId: parent}, name, out)
	return out, st
}

func TestFileMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		mode axiom.Mode
		want uint32
	}{
		{"directory", axiom.ModeDirectory | axiom.ModeReadable, syscall.S_IFDIR | 0o555},
		{"data", filesystem.DefaultDataMode, syscall.S_IFREG | 0o444},
		{"executable", axiom.ModeExecutable, syscall.S_IFREG | 0o111},
		{"nothing", 0, syscall.S_IFREG},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, fileMode(tt.mode))
		})
	}
}

func TestLookupAndGetAttr(t *testing.T) {
	t.Parallel()

	r := createTestRaw(t)

	docs, st := lookup(t, r, fuse.FUSE_ROOT_ID, "docs")
	require.Equal(t, fuse.OK, st)
	assert.NotEqual(t, uint64(fuse.FUSE_ROOT_ID), docs.NodeId)
	assert.Equal(t, uint32(syscall.S_IFDIR|0o555), docs.Attr.Mode)

	readme, st := lookup(t, r, docs.NodeId, "readme")
	require.Equal(t, fuse.OK, st)
	assert.EqualValues(t, len("hello fuse"), readme.Attr.Size)

	again, st := lookup(t, r, docs.NodeId, "readme")
	require.Equal(t, fuse.OK, st)
	assert.Equal(t, readme.NodeId, again.NodeId)

	_, st = lookup(t, r, docs.NodeId, "ghost")
	assert.Equal(t, fuse.ENOENT, st)
	_, st = lookup(t, r, 999, "x")
	assert.Equal(t, fuse.ENOENT, st)

	attr := &fuse.AttrOut{}
	require.Equal(t, fuse.OK, r.GetAttr(nil, &fuse.GetAttrIn{InHeader: fuse.InHeader{NodeId: readme.NodeId}}, attr))
	assert.Equal(t, readme.NodeId, attr.Attr.Ino)

	// Two lookups need two forgets.
	nodes := r.nodes.count()
	r.Forget(readme.NodeId, 1)
	assert.Equal(t, nodes, r.nodes.count())
	r.Forget(readme.NodeId, 1)
	assert.Equal(t, nodes-1, r.nodes.count())
	r.Forget(fuse.FUSE_ROOT_ID, 1)
	_, ok := r.nodes.path(fuse.FUSE_ROOT_ID)
	assert.True(t, ok)
}

func TestOpenRead(t *testing.T) {
	t.Parallel()

	r := createTestRaw(t)
	docs, _ := lookup(t, r, fuse.FUSE_ROOT_ID, "docs")
	readme, _ := lookup(t, r, docs.NodeId, "readme")

	open := &fuse.OpenOut{}
	in := &fuse.OpenIn{InHeader: fuse.InHeader{NodeId: readme.NodeId}, Flags: syscall.O_RDONLY}
	require.Equal(t, fuse.OK, r.Open(nil, in, open))

	res, st := r.Read(nil, &fuse.ReadIn{Fh: open.Fh, Offset: 6, Size: 100}, nil)
	require.Equal(t, fuse.OK, st)
	data, st := res.Bytes(nil)
	require.Equal(t, fuse.OK, st)
	assert.Equal(t, "fuse", string(data))

	res, _ = r.Read(nil, &fuse.ReadIn{Fh: open.Fh, Offset: 50, Size: 10}, nil)
	data, _ = res.Bytes(nil)
	assert.Empty(t, data)

	r.Release(nil, &fuse.ReleaseIn{Fh: open.Fh})
	_, st = r.Read(nil, &fuse.ReadIn{Fh: open.Fh, Size: 1}, nil)
	assert.Equal(t, fuse.EBADF, st)

	in.Flags = syscall.O_RDWR
	assert.Equal(t, fuse.EROFS, r.Open(nil, in, open))
}

func TestOpen_StructuredAndExecutable(t *testing.T) {
	t.Parallel()

	r := createTestRaw(t)
	docs, _ := lookup(t, r, fuse.FUSE_ROOT_ID, "docs")

	conf, _ := lookup(t, r, docs.NodeId, "conf")
	open := &fuse.OpenOut{}
	require.Equal(t, fuse.OK, r.Open(nil, &fuse.OpenIn{InHeader: fuse.InHeader{NodeId: conf.NodeId}}, open))
	res, _ := r.Read(nil, &fuse.ReadIn{Fh: open.Fh, Size: 100}, nil)
	data, _ := res.Bytes(nil)
	assert.Equal(t, "port: 80\n", string(data))

	run, st := lookup(t, r, docs.NodeId, "run")
	require.Equal(t, fuse.OK, st)
	assert.Equal(t, uint32(syscall.S_IFREG|0o111), run.Attr.Mode)
	assert.Equal(t, fuse.EACCES, r.Open(nil, &fuse.OpenIn{InHeader: fuse.InHeader{NodeId: run.NodeId}}, open))
}

func TestReadDir(t *testing.T) {
	t.Parallel()

	r := createTestRaw(t)
	docs, _ := lookup(t, r, fuse.FUSE_ROOT_ID, "docs")

	open := &fuse.OpenOut{}
	require.Equal(t, fuse.OK, r.OpenDir(nil, &fuse.OpenIn{InHeader: fuse.InHeader{NodeId: docs.NodeId}}, open))
	h, ok := r.handles.Load(open.Fh)
	require.True(t, ok)

	names := make([]string, 0, len(h.entries))
	for _, e := range h.entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{".", "..", "conf", "old", "readme", "run"}, names)
	assert.Equal(t, docs.NodeId, h.entries[0].Ino)
	assert.Equal(t, uint64(fuse.FUSE_ROOT_ID), h.entries[1].Ino)

	list := fuse.NewDirEntryList(make([]byte, 4096), 0)
	assert.Equal(t, fuse.OK, r.ReadDir(nil, &fuse.ReadIn{Fh: open.Fh}, list))

	r.ReleaseDir(&fuse.ReleaseIn{Fh: open.Fh})
	assert.Equal(t, fuse.EBADF, r.ReadDir(nil, &fuse.ReadIn{Fh: open.Fh}, list))

	readme, _ := lookup(t, r, docs.NodeId, "readme")
	assert.Equal(t, fuse.ENOTDIR, r.OpenDir(nil, &fuse.OpenIn{InHeader: fuse.InHeader{NodeId: readme.NodeId}}, open))
}

func TestMain(m *testing.M) {
	util.InitializeLogger(util.ErrorLevel)
	m.Run()
}
