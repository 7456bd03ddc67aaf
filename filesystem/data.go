package filesystem

import (
	"context"
	"errors"
	"sync"
	"time"

	axiom "github.com/chromium/axiom-sub003"
	"github.com/chromium/axiom-sub003/fserr"
	"github.com/chromium/axiom-sub003/internal/util"
	"github.com/chromium/axiom-sub003/stream"
)

// DefaultDataMode is the mode of plain in-memory data.
const DefaultDataMode = axiom.ModeReadable | axiom.ModeWritable | axiom.ModeSeekable

// Data holds an opaque value. The value is either kept in memory or loaded
// from one or more sources tried in order, with the loaded value cached for
// the source's TTL.
type Data struct {
	node
	mu    sync.RWMutex
	value any

	sources    []axiom.DataSource
	defaultTTL time.Duration
	cached     bool
	cachedAt   time.Time
	ttl        time.Duration
	size       int64
}

// NewData returns in-memory data holding value.
func NewData(value any) *Data {
	return NewDataMode(value, DefaultDataMode)
}

// NewDataMode returns in-memory data with an explicit mode.
func NewDataMode(value any, mode axiom.Mode) *Data {
	return &Data{node: newNode(mode), value: value, size: sizeOf(value)}
}

// NewSourceData returns data backed by sources, tried in order until one
// succeeds. ttl is the cache lifetime used when a source's metadata does not
// set one.
func NewSourceData(mode axiom.Mode, ttl time.Duration, sources ...axiom.DataSource) *Data {
	return &Data{node: newNode(mode), sources: sources, defaultTTL: ttl}
}

// Load returns the current value, loading from the sources when the cache is
// empty or stale.
func (d *Data) Load(ctx context.Context) (any, error) {
	if len(d.sources) == 0 {
		d.mu.RLock()
		defer d.mu.RUnlock()
		return d.value, nil
	}

	d.mu.RLock()
	if d.cached && (d.ttl < 0 || time.Since(d.cachedAt) < d.ttl) {
		v := d.value
		d.mu.RUnlock()
		return v, nil
	}
	d.mu.RUnlock()

	return d.refresh(ctx)
}

func (d *Data) refresh(ctx context.Context) (any, error) {
	logger := util.GetLogger("Data.Load")

	var errs []error
	for i, src := range d.sources {
		v, err := src.Load(ctx)
		if err != nil {
			logger.Debug().Err(err).Int("source", i).Msg("Source failed, trying next")
			errs = append(errs, err)
			continue
		}

		ttl := d.defaultTTL
		if meta, err := src.Meta(ctx); err == nil && meta != nil && meta.TTL != nil {
			ttl = *meta.TTL
		}
		d.mu.Lock()
		d.value = v
		d.size = sizeOf(v)
		d.cached = ttl != 0
		d.cachedAt = time.Now()
		d.ttl = ttl
		d.mu.Unlock()
		return v, nil
	}

	logger.Error().Err(errors.Join(errs...)).Int("sources", len(d.sources)).Msg("All sources failed")
	return nil, fserr.Wrap(errors.Join(errs...), fserr.Runtime, "all data sources failed")
}

// ClearCache forces the next Load to hit the sources again.
func (d *Data) ClearCache() {
	d.mu.Lock()
	d.cached = false
	d.mu.Unlock()
}

// Store replaces the value, or appends to a text or byte value. Source backed
// data stores through its primary source.
func (d *Data) Store(ctx context.Context, value any, appendValue bool) error {
	if appendValue {
		current, err := d.Load(ctx)
		if err != nil {
			return err
		}
		merged, err := appendTo(current, value)
		if err != nil {
			return err
		}
		value = merged
	}

	if len(d.sources) > 0 {
		if err := d.sources[0].Store(ctx, value); err != nil {
			return err
		}
	}

	d.mu.Lock()
	d.value = value
	d.size = sizeOf(value)
	if len(d.sources) > 0 {
		d.cached = d.ttl != 0 || d.defaultTTL != 0
		d.cachedAt = time.Now()
	}
	d.mu.Unlock()
	d.touch()
	return nil
}

// Size is the size of the last known value. Source backed data that was never
// loaded asks the primary source for its metadata.
func (d *Data) Size(ctx context.Context) int64 {
	d.mu.RLock()
	size, loaded := d.size, d.cached || len(d.sources) == 0
	d.mu.RUnlock()
	if loaded {
		return size
	}
	for _, src := range d.sources {
		if meta, err := src.Meta(ctx); err == nil && meta != nil {
			return meta.Size
		}
	}
	return size
}

// Sources returns the sources backing the data.
func (d *Data) Sources() []axiom.DataSource {
	return d.sources
}

func appendTo(current, value any) (any, error) {
	switch c := current.(type) {
	case nil:
		return value, nil
	case string:
		return c + stream.Text(value), nil
	case []byte:
		out := make([]byte, 0, len(c)+len(stream.Text(value)))
		out = append(out, c...)
		return append(out, stream.Text(value)...), nil
	case []any:
		out := make([]any, 0, len(c)+1)
		out = append(out, c...)
		return append(out, value), nil
	default:
		return nil, fserr.Newf(fserr.TypeMismatch, "cannot append to a %T value", current)
	}
}

func sizeOf(v any) int64 {
	switch t := v.(type) {
	case string:
		return int64(len(t))
	case []byte:
		return int64(len(t))
	case []any:
		return int64(len(t))
	case []string:
		return int64(len(t))
	default:
		return 0
	}
}
