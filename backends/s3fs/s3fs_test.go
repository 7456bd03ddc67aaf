package s3fs

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	axiom "github.com/chromium/axiom-sub003"
	"github.com/chromium/axiom-sub003/config"
	"github.com/chromium/axiom-sub003/fserr"
	"github.com/chromium/axiom-sub003/fspath"
)

// memStore is an in-memory bucket.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	removed []string
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (m *memStore) StatObject(_ context.Context, key string) (ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok || key == "" {
		return ObjectInfo{}, fserr.Newf(fserr.NotFound, "stat %s", key)
	}
	return ObjectInfo{Key: key, Size: int64(len(data)), LastModified: time.Unix(1700000000, 0)}, nil
}

func (m *memStore) ReadObject(_ context.Context, key string, off int64, n int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fserr.Newf(fserr.NotFound, "read %s", key)
	}
	if off >= int64(len(data)) {
		return []byte{}, nil
	}
	data = data[off:]
	if n > 0 && n < len(data) {
		data = data[:n]
	}
	return append([]byte(nil), data...), nil
}

func (m *memStore) PutObject(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *memStore) ListObjects(_ context.Context, prefix string, recursive bool) ([]ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	var out []ObjectInfo
	for key, data := range m.objects {
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok {
			continue
		}
		if i := strings.Index(rest, "/"); !recursive && i >= 0 && i < len(rest)-1 {
			common := prefix + rest[:i+1]
			if !seen[common] {
				seen[common] = true
				out = append(out, ObjectInfo{Key: common})
			}
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, ObjectInfo{Key: key, Size: int64(len(data))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memStore) RemoveObject(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	m.removed = append(m.removed, key)
	return nil
}

func path(s string) fspath.Path {
	return fspath.MustParse(s)
}

func createTestFS(t *testing.T, prefix string) (*FileSystem, *memStore) {
	t.Helper()
	store := newMemStore()
	return New("bucket", store, prefix), store
}

func TestMkdirAndList(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, store := createTestFS(t, "tree")

	require.NoError(t, s.Mkdir(ctx, path("/docs")))
	assert.Contains(t, store.objects, "tree/docs/")
	assert.Equal(t, fserr.Duplicate, fserr.KindOf(s.Mkdir(ctx, path("/docs"))))
	assert.Equal(t, fserr.NotFound, fserr.KindOf(s.Mkdir(ctx, path("/a/b"))))

	require.NoError(t, store.PutObject(ctx, "tree/docs/readme", []byte("hi")))
	require.NoError(t, store.PutObject(ctx, "tree/implicit/deep/file", []byte("x")))
	assert.Equal(t, fserr.TypeMismatch, fserr.KindOf(s.Mkdir(ctx, path("/docs/readme/x"))))

	root, err := s.List(ctx, path("/"))
	require.NoError(t, err)
	assert.Len(t, root, 2)
	assert.True(t, root["docs"].Mode.Has(axiom.ModeDirectory))
	assert.True(t, root["implicit"].Mode.Has(axiom.ModeDirectory))

	docs, err := s.List(ctx, path("/docs"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), docs["readme"].Size)

	st, err := s.Stat(ctx, path("/implicit/deep"))
	require.NoError(t, err)
	assert.True(t, st.Mode.Has(axiom.ModeDirectory))
	assert.Equal(t, int64(1), st.Size)

	_, err = s.List(ctx, path("/docs/readme"))
	assert.Equal(t, fserr.TypeMismatch, fserr.KindOf(err))
	_, err = s.Stat(ctx, path("/nothing"))
	assert.Equal(t, fserr.NotFound, fserr.KindOf(err))
}

func TestResolve(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, store := createTestFS(t, "")
	require.NoError(t, store.PutObject(ctx, "a/f", []byte("x")))

	res := s.Resolve(ctx, path("/a/f"))
	assert.True(t, res.IsFinal())
	assert.False(t, res.Entry.Mode().Has(axiom.ModeDirectory))

	res = s.Resolve(ctx, path("/a/missing/x"))
	assert.Equal(t, []string{"a"}, res.Prefix)
	assert.Equal(t, []string{"missing", "x"}, res.Suffix)
}

func TestReadWriteAppend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, store := createTestFS(t, "")
	require.NoError(t, s.Mkdir(ctx, path("/logs")))

	require.NoError(t, axiom.WriteValue(ctx, s, path("/logs/today"), "one", false))
	require.NoError(t, axiom.WriteValue(ctx, s, path("/logs/today"), []byte(",two"), true))
	assert.Equal(t, []byte("one,two"), store.objects["logs/today"])

	cx, err := s.CreateOpenContext(ctx, path("/logs/today"))
	require.NoError(t, err)
	require.NoError(t, cx.Open(ctx, axiom.OpenRead))
	v, err := cx.Read(ctx, axiom.ReadRequest{Count: 3})
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), v)
	v, err = cx.Read(ctx, axiom.ReadRequest{})
	require.NoError(t, err)
	assert.Equal(t, []byte(",two"), v)
	require.NoError(t, cx.Close())

	names, err := axiom.ReadValue(ctx, s, path("/logs"))
	require.NoError(t, err)
	assert.Equal(t, []string{"today"}, names)

	_, err = s.CreateOpenContext(ctx, path("/nodir/file"))
	assert.Equal(t, fserr.NotFound, fserr.KindOf(err))
}

func TestUnlink(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, store := createTestFS(t, "")
	require.NoError(t, axiom.MkdirAll(ctx, s, path("/a/b")))
	for _, key := range []string{"a/b/1", "a/b/2", "a/3"} {
		require.NoError(t, store.PutObject(ctx, key, []byte(key)))
	}

	assert.Equal(t, fserr.Invalid, fserr.KindOf(s.Unlink(ctx, path("/a"))))
	require.NoError(t, s.Unlink(ctx, path("/a/3")))
	assert.NotContains(t, store.objects, "a/3")

	require.NoError(t, axiom.RemoveAll(ctx, s, path("/a")))
	assert.Empty(t, store.objects)
	assert.ElementsMatch(t, []string{"a/3", "a/", "a/b/", "a/b/1", "a/b/2"}, store.removed)

	assert.Equal(t, fserr.Invalid, fserr.KindOf(s.Unlink(ctx, path("/"))))
}

func TestExecuteIsNotImplemented(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, store := createTestFS(t, "")
	require.NoError(t, store.PutObject(ctx, "tool", []byte("#!")))
	_, err := s.CreateExecuteContext(ctx, path("/tool"), nil)
	assert.Equal(t, fserr.NotImplemented, fserr.KindOf(err))
}

func TestConfigFromMount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		options map[string]string
		kind    fserr.Kind
	}{
		{
			name: "complete",
			options: map[string]string{
				"endpoint": "localhost:9000", "bucket": "b", "access_key": "k", "secret_key": "s",
				"secure": "true", "concurrency": "4",
			},
		},
		{
			name:    "missing bucket",
			options: map[string]string{"endpoint": "localhost:9000", "access_key": "k", "secret_key": "s"},
			kind:    fserr.Missing,
		},
		{
			name:    "missing secret",
			options: map[string]string{"endpoint": "localhost:9000", "bucket": "b", "access_key": "k"},
			kind:    fserr.Missing,
		},
		{
			name: "bad secure",
			options: map[string]string{
				"endpoint": "localhost:9000", "bucket": "b", "access_key": "k", "secret_key": "s", "secure": "maybe",
			},
			kind: fserr.Invalid,
		},
		{
			name: "bad concurrency",
			options: map[string]string{
				"endpoint": "localhost:9000", "bucket": "b", "access_key": "k", "secret_key": "s", "concurrency": "0",
			},
			kind: fserr.Invalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := ConfigFromMount(config.MountConfig{Type: config.MountS3, Name: "cloud", Options: tt.options})
			if tt.kind == "" {
				require.NoError(t, err)
				assert.True(t, cfg.Secure)
				assert.Equal(t, 4, cfg.Concurrency)

				s, err := Open("cloud", cfg)
				require.NoError(t, err)
				assert.Equal(t, 4, s.concurrency)
				return
			}
			assert.Equal(t, tt.kind, fserr.KindOf(err))
		})
	}
}
