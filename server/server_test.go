package server

import (
	"context"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	axiom "github.com/chromium/axiom-sub003"
	"github.com/chromium/axiom-sub003/backends/remote"
	"github.com/chromium/axiom-sub003/config"
	"github.com/chromium/axiom-sub003/filesystem"
	"github.com/chromium/axiom-sub003/fserr"
	"github.com/chromium/axiom-sub003/fspath"
	"github.com/chromium/axiom-sub003/internal/util"
	"github.com/chromium/axiom-sub003/stream"
)

func path(s string) fspath.Path {
	return fspath.MustParse(s)
}

func createTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	s, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func run(t *testing.T, s *Server, argv ...string) (any, string, error) {
	t.Helper()
	stdout := stream.NewCollector()
	v, err := s.Run(context.Background(), argv, axiom.Stdio{Stdout: stdout.Writable})
	return v, stdout.String(), err
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	s := createTestServer(t, nil)
	assert.Equal(t, []string{config.DefaultRoot}, s.Manager().Names())

	st, err := s.Manager().Stat(context.Background(), path(config.DefaultHomeDir))
	require.NoError(t, err)
	assert.True(t, st.Mode.Has(axiom.ModeDirectory))

	_, out, err := run(t, s, "pwd")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultHomeDir+"\n", out)
}

func TestRun(t *testing.T) {
	t.Parallel()

	s := createTestServer(t, nil)

	_, _, err := run(t, s, "mkdir", "-p", "notes/today")
	require.NoError(t, err)
	_, out, err := run(t, s, "ls")
	require.NoError(t, err)
	assert.Equal(t, "notes\n", out)

	_, out, err = run(t, s, "/exe/echo", "-n", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", out)

	_, _, err = run(t, s, "frobnicate")
	assert.Equal(t, fserr.NotFound, fserr.KindOf(err))
	_, _, err = run(t, s)
	assert.Equal(t, fserr.Missing, fserr.KindOf(err))
}

func TestBackend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := createTestServer(t, nil)

	tests := []struct {
		name string
		mc   config.MountConfig
		kind fserr.Kind
	}{
		{name: "memory", mc: config.MountConfig{Type: config.MountMemory, Name: "scratch"}},
		{name: "billy memory", mc: config.MountConfig{Type: config.MountBilly, Name: "b"}},
		{name: "billy host", mc: config.MountConfig{Type: config.MountBilly, Name: "h",
			Options: map[string]string{"root": t.TempDir()}}},
		{name: "s3 without bucket", mc: config.MountConfig{Type: config.MountS3, Name: "s"}, kind: fserr.Missing},
		{name: "remote without url", mc: config.MountConfig{Type: config.MountRemote, Name: "r"}, kind: fserr.Missing},
		{name: "unknown", mc: config.MountConfig{Type: "tape", Name: "t"}, kind: fserr.Incompatible},
		{name: "no name", mc: config.MountConfig{Type: config.MountMemory}, kind: fserr.Missing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fs, err := s.Backend(ctx, tt.mc)
			if tt.kind != "" {
				assert.Equal(t, tt.kind, fserr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.mc.Name, fs.Name())
		})
	}
}

func TestNew_MountsAndSeed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	// A second node reachable over the remote transport.
	node := filesystem.NewFS("node", nil)
	require.NoError(t, node.Link(ctx, path("/greeting"), filesystem.NewData("hello from node")))
	srv := httptest.NewServer(remote.NewServer(node, nil).Handler())
	t.Cleanup(srv.Close)

	hostDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(hostDir, "host.txt"), []byte("on disk"), 0o644))

	seed := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(seed, []byte(`
- type: data
  path: /etc/motd
  value: welcome
- type: mount
  path: /mnt/scratch
  backend: memory
`), 0o644))

	cfg := config.NewDefaultConfig()
	cfg.SeedFile = seed
	cfg.Mounts = []config.MountConfig{
		{Type: config.MountRemote, Name: "node",
			Options: map[string]string{"url": "ws" + strings.TrimPrefix(srv.URL, "http") + remote.Endpoint}},
		{Type: config.MountBilly, Name: "host", Path: "/mnt/host", Options: map[string]string{"root": hostDir}},
	}
	s := createTestServer(t, cfg)

	assert.Equal(t, []string{config.DefaultRoot, "node"}, s.Manager().Names())

	_, out, err := run(t, s, "cat", "node:/greeting", "/mnt/host/host.txt", "/etc/motd")
	require.NoError(t, err)
	assert.Equal(t, "hello from nodeon diskwelcome", out)

	_, _, err = run(t, s, "mkdir", "/mnt/scratch/tmp")
	require.NoError(t, err)
}

func TestNew_BadMount(t *testing.T) {
	t.Parallel()

	cfg := config.NewDefaultConfig()
	cfg.Mounts = []config.MountConfig{{Type: "tape", Name: "t"}}
	_, err := New(context.Background(), cfg)
	assert.Equal(t, fserr.Incompatible, fserr.KindOf(err))
}

func TestServe(t *testing.T) {
	t.Parallel()

	cfg := config.NewDefaultConfig()
	cfg.Metrics = true
	s := createTestServer(t, cfg)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	client, err := remote.Dial(context.Background(), "peer", "ws://"+ln.Addr().String()+remote.Endpoint, "")
	require.NoError(t, err)
	list, err := client.List(context.Background(), path(config.DefaultExeDir))
	require.NoError(t, err)
	assert.Contains(t, list, "ls")
	require.NoError(t, client.Close())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestMain(m *testing.M) {
	util.InitializeLogger(util.ErrorLevel)
	m.Run()
}
