package billyfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	axiom "github.com/chromium/axiom-sub003"
	"github.com/chromium/axiom-sub003/filesystem"
	"github.com/chromium/axiom-sub003/fserr"
	"github.com/chromium/axiom-sub003/fspath"
)

func path(s string) fspath.Path {
	return fspath.MustParse(s)
}

func TestMkdirStatList(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := NewMemory("mem")

	require.NoError(t, b.Mkdir(ctx, path("/docs")))
	assert.Equal(t, fserr.Duplicate, fserr.KindOf(b.Mkdir(ctx, path("/docs"))))
	assert.Equal(t, fserr.NotFound, fserr.KindOf(b.Mkdir(ctx, path("/missing/child"))))

	require.NoError(t, b.WriteFile(ctx, path("/docs/a.txt"), []byte("alpha")))
	assert.Equal(t, fserr.TypeMismatch, fserr.KindOf(b.Mkdir(ctx, path("/docs/a.txt/sub"))))

	st, err := b.Stat(ctx, path("/docs"))
	require.NoError(t, err)
	assert.True(t, st.Mode.Has(axiom.ModeDirectory))
	assert.Equal(t, int64(1), st.Size)

	list, err := b.List(ctx, path("/docs"))
	require.NoError(t, err)
	require.Contains(t, list, "a.txt")
	assert.Equal(t, int64(5), list["a.txt"].Size)
	assert.True(t, list["a.txt"].Mode.Has(axiom.ModeSeekable))

	_, err = b.List(ctx, path("/docs/a.txt"))
	assert.Equal(t, fserr.TypeMismatch, fserr.KindOf(err))
}

func TestResolve(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := NewMemory("mem")
	require.NoError(t, b.Mkdir(ctx, path("/a")))
	require.NoError(t, b.WriteFile(ctx, path("/a/f"), []byte("x")))

	res := b.Resolve(ctx, path("/a/f"))
	assert.True(t, res.IsFinal())
	assert.Same(t, b, res.Owner)

	res = b.Resolve(ctx, path("/a/b/c"))
	assert.False(t, res.IsFinal())
	assert.Equal(t, []string{"a"}, res.Prefix)
	assert.Equal(t, []string{"b", "c"}, res.Suffix)

	res = b.Resolve(ctx, path("/a/f/deeper"))
	assert.Equal(t, []string{"a", "f"}, res.Prefix)
	assert.Equal(t, []string{"deeper"}, res.Suffix)
}

func TestOpenContext_ReadWriteSeek(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := NewMemory("mem")

	// A missing file is created by its first write.
	require.NoError(t, axiom.WriteValue(ctx, b, path("/new.txt"), "hello", false))
	require.NoError(t, axiom.WriteValue(ctx, b, path("/new.txt"), " world", true))

	cx, err := b.CreateOpenContext(ctx, path("/new.txt"))
	require.NoError(t, err)
	require.NoError(t, cx.Open(ctx, axiom.OpenRead))

	v, err := cx.Read(ctx, axiom.ReadRequest{Count: 5})
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), v)

	pos, err := cx.Seek(ctx, -5, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(6), pos)
	v, err = cx.Read(ctx, axiom.ReadRequest{})
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), v)

	_, err = cx.Read(ctx, axiom.ReadRequest{})
	assert.ErrorIs(t, err, io.EOF)
	require.NoError(t, cx.Close())

	// Reading a file that does not exist yet fails on open.
	cx, err = b.CreateOpenContext(ctx, path("/ghost"))
	require.NoError(t, err)
	assert.Equal(t, fserr.NotFound, fserr.KindOf(cx.Open(ctx, axiom.OpenRead)))
	assert.Equal(t, axiom.StateClosed, cx.State())

	_, err = b.CreateOpenContext(ctx, path("/nodir/ghost"))
	assert.Equal(t, fserr.NotFound, fserr.KindOf(err))
}

func TestOpenContext_Directory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := NewMemory("mem")
	require.NoError(t, b.Mkdir(ctx, path("/d")))
	require.NoError(t, b.WriteFile(ctx, path("/d/z"), nil))
	require.NoError(t, b.WriteFile(ctx, path("/d/a"), nil))

	v, err := axiom.ReadValue(ctx, b, path("/d"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "z"}, v)

	err = axiom.WriteValue(ctx, b, path("/d"), "x", false)
	assert.Equal(t, fserr.TypeMismatch, fserr.KindOf(err))

	// Directories lack the writable bit even on a context opened for reading.
	cx, err := b.CreateOpenContext(ctx, path("/d"))
	require.NoError(t, err)
	require.NoError(t, cx.Open(ctx, axiom.OpenRead))
	assert.Equal(t, fserr.TypeMismatch, fserr.KindOf(cx.Write(ctx, axiom.WriteRequest{Value: "x"})))
	require.NoError(t, cx.Close())

	// An empty file is delivered once.
	v, err = axiom.ReadValue(ctx, b, path("/d/a"))
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestUnlink(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := NewMemory("mem")
	require.NoError(t, b.Mkdir(ctx, path("/d")))
	require.NoError(t, b.WriteFile(ctx, path("/d/f"), []byte("x")))

	assert.Equal(t, fserr.Invalid, fserr.KindOf(b.Unlink(ctx, path("/d"))))
	assert.Equal(t, fserr.NotFound, fserr.KindOf(b.Unlink(ctx, path("/nope"))))
	require.NoError(t, axiom.RemoveAll(ctx, b, path("/d")))
	_, err := b.Stat(ctx, path("/d"))
	assert.Equal(t, fserr.NotFound, fserr.KindOf(err))
}

func TestExecuteIsNotImplemented(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := NewMemory("mem")
	require.NoError(t, b.WriteFile(ctx, path("/run.sh"), []byte("echo")))

	_, err := b.CreateExecuteContext(ctx, path("/run.sh"), nil)
	assert.Equal(t, fserr.NotImplemented, fserr.KindOf(err))
	_, err = b.CreateExecuteContext(ctx, path("/missing"), nil)
	assert.Equal(t, fserr.NotFound, fserr.KindOf(err))
}

func TestLocal_MountedInMemoryFS(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "host.txt"), []byte("from disk"), 0o644))

	vfs := filesystem.NewFS("root", nil)
	require.NoError(t, vfs.Mount(ctx, path("/host"), NewLocal("disk", dir)))

	v, err := axiom.ReadValue(ctx, vfs, path("/host/host.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("from disk"), v)

	require.NoError(t, vfs.Mkdir(ctx, path("/host/made")))
	info, err := os.Stat(filepath.Join(dir, "made"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
