package axiom

import (
	"context"
	"time"

	"github.com/chromium/axiom-sub003/fspath"
	"github.com/chromium/axiom-sub003/stream"
)

// FileSystem is the contract every backend implements, the in-memory file
// system as well as host, remote and cloud backends. Paths handed to a backend
// are relative to its own root; the root name, if any, is ignored.
//
// Resolution failures are structural and reported through ResolveResult.
// Operational failures are returned as fserr errors.
type FileSystem interface {
	// Name identifies the backend in logs and listings.
	Name() string
	Resolve(ctx context.Context, p fspath.Path) ResolveResult
	Stat(ctx context.Context, p fspath.Path) (Stat, error)
	// List returns the stat of every child of a directory keyed by name.
	List(ctx context.Context, p fspath.Path) (map[string]Stat, error)
	Mkdir(ctx context.Context, p fspath.Path) error
	Unlink(ctx context.Context, p fspath.Path) error
	CreateOpenContext(ctx context.Context, p fspath.Path) (OpenContext, error)
	CreateExecuteContext(ctx context.Context, p fspath.Path, arg any, opts ...ExecOption) (ExecuteContext, error)
}

// OpenContext mediates read, write and seek access to one entry. It starts in
// WAIT; Open validates the requested mode against the entry and arms it.
type OpenContext interface {
	Lifecycle
	Path() fspath.Path
	Entry() Entry
	Open(ctx context.Context, mode OpenMode) error
	// Seek moves the read offset of a seekable entry.
	Seek(ctx context.Context, offset int64, whence int) (int64, error)
	Read(ctx context.Context, req ReadRequest) (any, error)
	Write(ctx context.Context, req WriteRequest) error
	// Close closes ok. Closing an unopened context closes it with an error.
	Close() error
}

// ExecuteContext mediates one invocation of an executable.
type ExecuteContext interface {
	Lifecycle
	Path() fspath.Path
	Entry() Entry
	// Execute validates the entry and the argument, runs the executable and
	// blocks until the context closes.
	Execute(ctx context.Context) (any, error)
	Arg() Arg
	GetArg(name string, def any) any
	Env() Env
	GetEnv(name string, def any) any
	Stdio() Stdio
	// FileSystem is the namespace the context was created through. Commands
	// resolve their operands against it.
	FileSystem() FileSystem
}

// ExecOptions carries the optional parts of an execute context.
type ExecOptions struct {
	Stdio     Stdio
	Env       Env
	Namespace FileSystem
}

// ExecOption configures CreateExecuteContext.
type ExecOption func(*ExecOptions)

// WithStdio sets the stream bundle.
func WithStdio(s Stdio) ExecOption {
	return func(o *ExecOptions) { o.Stdio = s }
}

// WithEnv sets the environment.
func WithEnv(env Env) ExecOption {
	return func(o *ExecOptions) { o.Env = env }
}

// WithNamespace sets the file system reported by ExecuteContext.FileSystem.
func WithNamespace(fs FileSystem) ExecOption {
	return func(o *ExecOptions) { o.Namespace = fs }
}

// ApplyExecOptions folds opts over defaults. Unset streams are filled with
// NullStdio and a nil env becomes empty.
func ApplyExecOptions(self FileSystem, opts ...ExecOption) ExecOptions {
	o := ExecOptions{Namespace: self}
	for _, opt := range opts {
		opt(&o)
	}
	o.Stdio = o.Stdio.WithDefaults()
	if o.Env == nil {
		o.Env = Env{}
	}
	return o
}

// ExecFunc is the body of an executable. It may close the context itself; if
// it returns nil without closing, the context is closed ok with a nil value.
// A returned error closes the context with that error.
type ExecFunc func(ctx context.Context, cx ExecuteContext) error

// DataSource supplies and stores the value of a data entry backed by an
// external location (a URL, an object). Implementations are 1:1 with the entry.
type DataSource interface {
	// Load returns the current value.
	Load(ctx context.Context) (any, error)
	// Store replaces the value. Read-only sources return NotImplemented.
	Store(ctx context.Context, value any) error
	Meta(ctx context.Context) (*SourceMeta, error)
}

// SourceMeta is the metadata a source knows about its value.
type SourceMeta struct {
	Size         int64
	LastModified *time.Time
	Version      string
	// TTL is how long a loaded value may be served from cache: nil uses the
	// default policy, 0 disables caching.
	TTL *time.Duration
}

// StreamValue is a data value that is produced lazily as a stream, e.g. a
// device. Reading such an entry returns a fresh Readable per open context.
type StreamValue interface {
	OpenStream(ctx context.Context) (*stream.Readable, error)
}
