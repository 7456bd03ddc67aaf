package fusebridge

import (
	"sync/atomic"

	"github.com/hanwen/go-fuse/v2/fuse"

	axiom "github.com/chromium/axiom-sub003"
	"github.com/chromium/axiom-sub003/config"
	"github.com/chromium/axiom-sub003/fserr"
	"github.com/chromium/axiom-sub003/fspath"
	"github.com/chromium/axiom-sub003/internal/util"
)

// Server wraps the underlying fuse.Server.
type Server struct {
	server     *fuse.Server
	mountPoint string
	mounted    atomic.Bool
}

// Mount mounts fs, starting at root, on mountPoint and waits until the
// kernel has accepted it.
func Mount(fs axiom.FileSystem, root fspath.Path, mountPoint string, cfg *config.Config) (*Server, error) {
	logger := util.GetLogger("Fuse.Mount")

	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	opts := cfg.MountOptions
	raw := NewRaw(fs, root, opts)
	srv, err := fuse.NewServer(raw, mountPoint, &fuse.MountOptions{
		Name:   opts.Name,
		FsName: opts.FsName,
		Debug:  opts.Debug || cfg.LogLvl == util.TraceLevel,
		Logger: util.NewLogLogger("Fuse.Server", util.TraceLevel),
	})
	if err != nil {
		logger.Error().Err(err).Str("mountPoint", mountPoint).Msg("Failed to mount")
		return nil, fserr.Wrapf(err, fserr.Runtime, "mount %s", mountPoint)
	}

	go srv.Serve()
	if err := srv.WaitMount(); err != nil {
		_ = srv.Unmount()
		return nil, fserr.Wrapf(err, fserr.Runtime, "mount %s", mountPoint)
	}
	logger.Info().Str("mountPoint", mountPoint).Str("root", root.Spec()).Msg("Mounted")
	s := &Server{server: srv, mountPoint: mountPoint}
	s.mounted.Store(true)
	return s, nil
}

// Wait blocks until the file system is unmounted.
func (s *Server) Wait() {
	s.server.Wait()
}

// Unmount cleanly unmounts the file system. Only the first call does
// anything.
func (s *Server) Unmount() error {
	if s == nil || !s.mounted.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.server.Unmount(); err != nil {
		return fserr.Wrapf(err, fserr.Runtime, "unmount %s", s.mountPoint)
	}
	return nil
}
