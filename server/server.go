// Package server assembles a running node: the in-memory root with the
// built-in commands, the configured backends, the remote endpoint and the
// optional FUSE mount.
package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	axiom "github.com/chromium/axiom-sub003"
	"github.com/chromium/axiom-sub003/adapters"
	"github.com/chromium/axiom-sub003/backends/billyfs"
	"github.com/chromium/axiom-sub003/backends/remote"
	"github.com/chromium/axiom-sub003/backends/s3fs"
	"github.com/chromium/axiom-sub003/commands"
	"github.com/chromium/axiom-sub003/config"
	"github.com/chromium/axiom-sub003/filesystem"
	"github.com/chromium/axiom-sub003/fserr"
	"github.com/chromium/axiom-sub003/fspath"
	"github.com/chromium/axiom-sub003/fusebridge"
	"github.com/chromium/axiom-sub003/internal/metrics"
	"github.com/chromium/axiom-sub003/internal/util"
	"github.com/chromium/axiom-sub003/manager"
	"github.com/chromium/axiom-sub003/requests"
)

// Server holds the node state shared by the CLI subcommands.
type Server struct {
	cfg     *config.Config
	metrics *metrics.Metrics
	manager *manager.Manager
	root    *filesystem.FileSystem

	mu      sync.Mutex
	closers []io.Closer
	fuse    *fusebridge.Server
}

// New builds the namespace described by cfg: the default root with the
// commands installed, every configured mount and the seed file.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	logger := util.GetLogger("Server.New")

	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	var m *metrics.Metrics
	if cfg.Metrics {
		m = metrics.New()
	}
	s := &Server{
		cfg:     cfg,
		metrics: m,
		manager: manager.New(cfg, m),
		root:    filesystem.NewFS(cfg.DefaultRoot, cfg),
	}

	if err := s.init(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	logger.Info().Strs("roots", s.manager.Names()).Msg("Node ready")
	return s, nil
}

func (s *Server) init(ctx context.Context) error {
	if err := s.manager.Mount(s.cfg.DefaultRoot, s.root); err != nil {
		return err
	}
	if err := commands.Install(ctx, s.root, fspath.MustParse(s.cfg.ExeDir)); err != nil {
		return err
	}
	if err := s.root.MkdirAll(ctx, fspath.MustParse(s.cfg.HomeDir)); err != nil {
		return err
	}
	for _, mc := range s.cfg.Mounts {
		if err := s.attach(ctx, mc); err != nil {
			return fserr.Wrapf(err, fserr.KindOf(err), "mount %s", mc.Name)
		}
	}
	if s.cfg.SeedFile != "" {
		reqs, err := requests.LoadFile(s.cfg.SeedFile, adapters.NewDefaultRegistry())
		if err != nil {
			return err
		}
		if err := requests.Apply(ctx, s.root, reqs, s.Backend); err != nil {
			return err
		}
	}
	return nil
}

// attach mounts a configured backend as a root, or at its path inside the
// default root.
func (s *Server) attach(ctx context.Context, mc config.MountConfig) error {
	backend, err := s.Backend(ctx, mc)
	if err != nil {
		return err
	}
	if mc.Path == "" {
		return s.manager.Mount(mc.Name, backend)
	}
	p := fspath.Parse(mc.Path)
	if !p.IsValid() {
		return fserr.Newf(fserr.Invalid, "invalid mount path %q", mc.Path)
	}
	if parent, ok := p.Parent(); ok && !parent.IsRoot() {
		if err := s.root.MkdirAll(ctx, parent); err != nil {
			return err
		}
	}
	return s.root.Mount(ctx, p, backend)
}

// Backend builds the backend mc describes. It is also the mount builder for
// seed files.
func (s *Server) Backend(ctx context.Context, mc config.MountConfig) (axiom.FileSystem, error) {
	logger := util.GetLogger("Server.Backend")

	if mc.Name == "" {
		return nil, fserr.New(fserr.Missing, "mount name is required")
	}
	var backend axiom.FileSystem
	switch mc.Type {
	case config.MountMemory:
		backend = filesystem.NewFS(mc.Name, s.cfg)
	case config.MountBilly:
		if root := mc.Option("root", ""); root != "" {
			backend = billyfs.NewLocal(mc.Name, root)
		} else {
			backend = billyfs.NewMemory(mc.Name)
		}
	case config.MountS3:
		cfg, err := s3fs.ConfigFromMount(mc)
		if err != nil {
			return nil, err
		}
		fs, err := s3fs.Open(mc.Name, cfg)
		if err != nil {
			return nil, err
		}
		backend = fs
	case config.MountRemote:
		client, err := remote.Dial(ctx, mc.Name, mc.Option("url", ""), mc.Option("root", ""))
		if err != nil {
			return nil, err
		}
		s.track(client)
		backend = client
	default:
		return nil, fserr.Newf(fserr.Incompatible, "unknown mount type %q", mc.Type).WithContext("name", mc.Name)
	}
	logger.Debug().Str("type", mc.Type).Str("name", mc.Name).Msg("Built backend")
	return backend, nil
}

func (s *Server) track(c io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closers = append(s.closers, c)
}

// Config returns the configuration the node runs with.
func (s *Server) Config() *config.Config {
	return s.cfg
}

// Manager returns the namespace.
func (s *Server) Manager() *manager.Manager {
	return s.manager
}

// Root returns the default in-memory root.
func (s *Server) Root() *filesystem.FileSystem {
	return s.root
}

// Env is the environment commands start with.
func (s *Server) Env() axiom.Env {
	return axiom.Env{
		axiom.EnvPwd:  s.cfg.HomeDir,
		axiom.EnvHome: s.cfg.HomeDir,
		axiom.EnvPath: []string{s.cfg.ExeDir},
	}
}

// LookPath finds the executable a command word names. Words holding a "/"
// or a root are resolved against the home directory, bare names are looked
// up in @PATH.
func (s *Server) LookPath(ctx context.Context, name string) (fspath.Path, error) {
	home := fspath.Parse(s.cfg.HomeDir)
	if strings.ContainsAny(name, "/:") {
		p := fspath.Absolute(home, name)
		if !p.IsValid() {
			return p, fserr.Newf(fserr.Invalid, "invalid command path %q", name)
		}
		return p, nil
	}
	for _, dir := range s.Env().List(axiom.EnvPath) {
		p := fspath.Absolute(home, dir).Join(name)
		st, err := s.manager.Stat(ctx, p)
		if err == nil && st.Mode.Has(axiom.ModeExecutable) {
			return p, nil
		}
	}
	return fspath.Path{}, fserr.Newf(fserr.NotFound, "%s: command not found", name).WithContext("command", name)
}

// Run executes one command line, e.g. ["ls", "-l", "/home"].
func (s *Server) Run(ctx context.Context, argv []string, stdio axiom.Stdio) (any, error) {
	logger := util.GetLogger("Server.Run")

	if len(argv) == 0 {
		return nil, fserr.New(fserr.Missing, "empty command line")
	}
	p, err := s.LookPath(ctx, argv[0])
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("command", p.Spec()).Strs("args", argv[1:]).Msg("Running")
	return s.manager.Exec(ctx, p, commands.ParseArgv(argv[1:]),
		axiom.WithStdio(stdio), axiom.WithEnv(s.Env()))
}

// Handler serves the namespace to remote nodes, plus /metrics when enabled.
func (s *Server) Handler() http.Handler {
	return remote.NewServer(s.manager, s.metrics).AllowOrigins(s.cfg.RemoteOrigins...).Handler()
}

// ListenAndServe serves Handler on the configured address until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.RemoteListen)
	if err != nil {
		return fserr.Wrapf(err, fserr.Runtime, "listen on %s", s.cfg.RemoteListen)
	}
	return s.Serve(ctx, ln)
}

// Serve serves Handler on ln until ctx ends.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	logger := util.GetLogger("Server.Serve")

	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	logger.Info().Str("addr", ln.Addr().String()).Str("endpoint", remote.Endpoint).Msg("Serving")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Shutdown incomplete")
		}
		return nil
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fserr.Wrap(err, fserr.Runtime, "serve")
	}
}

// Mount exposes the namespace, starting at root, on a host mount point.
func (s *Server) Mount(root, mountPoint string) (*fusebridge.Server, error) {
	p := fspath.Parse(root)
	if !p.IsValid() {
		return nil, fserr.Newf(fserr.Invalid, "invalid root %q", root)
	}
	srv, err := fusebridge.Mount(s.manager, p, mountPoint, s.cfg)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.fuse = srv
	s.mu.Unlock()
	return srv, nil
}

// Close unmounts the FUSE bridge, every backend and the remote sessions.
func (s *Server) Close() error {
	logger := util.GetLogger("Server.Close")

	s.mu.Lock()
	fuse, closers := s.fuse, s.closers
	s.fuse, s.closers = nil, nil
	s.mu.Unlock()

	var errs []error
	if err := fuse.Unmount(); err != nil {
		errs = append(errs, err)
	}
	_ = s.manager.Close()
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warn().Err(err).Msg("Close incomplete")
		return err
	}
	return nil
}
