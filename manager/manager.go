// Package manager aggregates independently implemented backends into one
// namespace. A path's explicit root ("name:/a/b") selects the backend; paths
// without a root go to the default backend.
package manager

import (
	"context"
	"io"
	"slices"
	"sort"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	axiom "github.com/chromium/axiom-sub003"
	"github.com/chromium/axiom-sub003/config"
	"github.com/chromium/axiom-sub003/fserr"
	"github.com/chromium/axiom-sub003/fspath"
	"github.com/chromium/axiom-sub003/internal/metrics"
	"github.com/chromium/axiom-sub003/internal/util"
)

// Manager routes every operation to the backend owning the path's root.
type Manager struct {
	cfg      *config.Config
	backends *xsync.Map[string, axiom.FileSystem]
	metrics  *metrics.Metrics
}

var (
	_ axiom.FileSystem       = (*Manager)(nil)
	_ axiom.RecursiveRemover = (*Manager)(nil)
)

// New creates an empty manager. A nil cfg uses the defaults; m may be nil.
func New(cfg *config.Config, m *metrics.Metrics) *Manager {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	return &Manager{
		cfg:      cfg,
		backends: xsync.NewMap[string, axiom.FileSystem](),
		metrics:  m,
	}
}

func (m *Manager) Name() string {
	return "manager"
}

// Config returns the configuration the manager was created with.
func (m *Manager) Config() *config.Config {
	return m.cfg
}

// Mount registers fs as the root backend called name.
func (m *Manager) Mount(name string, fs axiom.FileSystem) error {
	if name == "" || fs == nil {
		return fserr.New(fserr.Invalid, "mount needs a name and a file system")
	}
	if _, loaded := m.backends.LoadOrStore(name, fs); loaded {
		return fserr.Newf(fserr.Duplicate, "file system %q already mounted", name)
	}
	m.metrics.SetBackends(m.backends.Size())
	util.GetLogger("Manager.Mount").Info().Str("root", name).Str("backend", fs.Name()).Msg("Mounted root file system")
	return nil
}

// Unmount removes the root backend called name and closes it when it holds
// resources.
func (m *Manager) Unmount(name string) (axiom.FileSystem, error) {
	logger := util.GetLogger("Manager.Unmount")

	fs, ok := m.backends.LoadAndDelete(name)
	if !ok {
		return nil, fserr.Newf(fserr.NotFound, "no file system named %q", name)
	}
	m.metrics.SetBackends(m.backends.Size())
	if c, ok := fs.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.Warn().Err(err).Str("root", name).Msg("Closing backend failed")
		}
	}
	logger.Info().Str("root", name).Msg("Unmounted root file system")
	return fs, nil
}

// Close unmounts every backend.
func (m *Manager) Close() error {
	for _, name := range m.Names() {
		_, _ = m.Unmount(name)
	}
	return nil
}

// Names lists the mounted roots, sorted.
func (m *Manager) Names() []string {
	names := make([]string, 0, m.backends.Size())
	m.backends.Range(func(name string, _ axiom.FileSystem) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// Backend returns the root backend called name.
func (m *Manager) Backend(name string) (axiom.FileSystem, bool) {
	return m.backends.Load(name)
}

// Default returns the backend serving root-less paths, or nil.
func (m *Manager) Default() axiom.FileSystem {
	fs, _ := m.backends.Load(m.cfg.DefaultRoot)
	return fs
}

// route picks the backend for p and rewrites p relative to it.
func (m *Manager) route(p fspath.Path) (axiom.FileSystem, string, fspath.Path, error) {
	if !p.IsValid() {
		return nil, "", fspath.Path{}, fserr.Newf(fserr.Invalid, "invalid path %q", p.OriginalSpec())
	}
	root := p.Root()
	if root == "" {
		root = m.cfg.DefaultRoot
	}
	fs, ok := m.backends.Load(root)
	if !ok {
		return nil, root, fspath.Path{}, fserr.Newf(fserr.NotFound, "no file system named %q", root).
			WithContext("path", p.Spec())
	}
	return fs, root, fspath.FromElements("", p.Elements()...), nil
}

func (m *Manager) observe(root, op string, start time.Time, err error) {
	m.metrics.ObserveOp(root, op, start, err)
	if err != nil {
		util.GetLogger("Manager."+op).Debug().Err(err).Str("root", root).Msg("Operation failed")
	}
}

// Resolve reports the prefix relative to the backend's root. A path whose
// root is unknown resolves to no entry.
func (m *Manager) Resolve(ctx context.Context, p fspath.Path) axiom.ResolveResult {
	fs, _, rel, err := m.route(p)
	if err != nil {
		return axiom.ResolveResult{Suffix: p.Elements()}
	}
	return fs.Resolve(ctx, rel)
}

func (m *Manager) Stat(ctx context.Context, p fspath.Path) (st axiom.Stat, err error) {
	fs, root, rel, err := m.route(p)
	if err != nil {
		return axiom.Stat{}, err
	}
	defer func(start time.Time) { m.observe(root, "Stat", start, err) }(time.Now())
	return fs.Stat(ctx, rel)
}

func (m *Manager) List(ctx context.Context, p fspath.Path) (list map[string]axiom.Stat, err error) {
	fs, root, rel, err := m.route(p)
	if err != nil {
		return nil, err
	}
	defer func(start time.Time) { m.observe(root, "List", start, err) }(time.Now())
	return fs.List(ctx, rel)
}

func (m *Manager) Mkdir(ctx context.Context, p fspath.Path) (err error) {
	fs, root, rel, err := m.route(p)
	if err != nil {
		return err
	}
	defer func(start time.Time) { m.observe(root, "Mkdir", start, err) }(time.Now())
	return fs.Mkdir(ctx, rel)
}

// MkdirAll creates every missing directory along p.
func (m *Manager) MkdirAll(ctx context.Context, p fspath.Path) error {
	return axiom.MkdirAll(ctx, m, p)
}

func (m *Manager) Unlink(ctx context.Context, p fspath.Path) (err error) {
	fs, root, rel, err := m.route(p)
	if err != nil {
		return err
	}
	defer func(start time.Time) { m.observe(root, "Unlink", start, err) }(time.Now())
	return fs.Unlink(ctx, rel)
}

// UnlinkRecursive removes p and everything below it on the owning backend.
func (m *Manager) UnlinkRecursive(ctx context.Context, p fspath.Path) (err error) {
	fs, root, rel, err := m.route(p)
	if err != nil {
		return err
	}
	defer func(start time.Time) { m.observe(root, "UnlinkRecursive", start, err) }(time.Now())
	return axiom.RemoveAll(ctx, fs, rel)
}

func (m *Manager) CreateOpenContext(ctx context.Context, p fspath.Path) (cx axiom.OpenContext, err error) {
	fs, root, rel, err := m.route(p)
	if err != nil {
		return nil, err
	}
	defer func(start time.Time) { m.observe(root, "CreateOpenContext", start, err) }(time.Now())
	return fs.CreateOpenContext(ctx, rel)
}

// CreateExecuteContext forwards to the owning backend. The context reports
// the manager as its namespace unless opts name another one.
func (m *Manager) CreateExecuteContext(
	ctx context.Context, p fspath.Path, arg any, opts ...axiom.ExecOption,
) (cx axiom.ExecuteContext, err error) {
	fs, root, rel, err := m.route(p)
	if err != nil {
		return nil, err
	}
	defer func(start time.Time) { m.observe(root, "CreateExecuteContext", start, err) }(time.Now())
	opts = slices.Insert(opts, 0, axiom.WithNamespace(m))
	return fs.CreateExecuteContext(ctx, rel, arg, opts...)
}

// Exec runs the executable at p to completion. The configured exec timeout,
// when set, bounds the run.
func (m *Manager) Exec(ctx context.Context, p fspath.Path, arg any, opts ...axiom.ExecOption) (v any, err error) {
	if timeout := m.cfg.ExecTimeoutDuration(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() { m.metrics.ObserveExec(err) }()
	return axiom.Exec(ctx, m, p, arg, opts...)
}
