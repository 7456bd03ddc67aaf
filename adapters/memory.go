package adapters

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	axiom "github.com/chromium/axiom-sub003"
	"github.com/chromium/axiom-sub003/fserr"
)

// MemorySource definition fields. TTL is in seconds; omitted means the
// entry's default cache policy.
type MemorySource struct {
	Value any      `json:"value"`
	TTL   *float64 `json:"ttl,omitempty"`
}

type MemoryProvider struct{}

func RegisterMemory(r *Registry) {
	r.Register(MemorySourceType, &MemoryProvider{})
}

func (p *MemoryProvider) NewSource(raw []byte) (axiom.DataSource, error) {
	var cfg MemorySource
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fserr.Wrap(err, fserr.Invalid, "malformed memory source")
	}
	return NewMemoryAdapter(cfg), nil
}

// MemoryAdapter keeps a value in process memory. It is writable and versions
// every store.
type MemoryAdapter struct {
	mu      sync.RWMutex
	value   any
	ttl     *time.Duration
	version int
	mtime   time.Time
}

func NewMemoryAdapter(cfg MemorySource) *MemoryAdapter {
	a := &MemoryAdapter{value: cfg.Value, mtime: time.Now()}
	if cfg.TTL != nil {
		ttl := time.Duration(*cfg.TTL * float64(time.Second))
		a.ttl = &ttl
	}
	return a
}

func (a *MemoryAdapter) Load(context.Context) (any, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.value, nil
}

func (a *MemoryAdapter) Store(_ context.Context, value any) error {
	a.mu.Lock()
	a.value = value
	a.version++
	a.mtime = time.Now()
	a.mu.Unlock()
	return nil
}

func (a *MemoryAdapter) Meta(context.Context) (*axiom.SourceMeta, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	mtime := a.mtime
	var size int64
	switch v := a.value.(type) {
	case string:
		size = int64(len(v))
	case []byte:
		size = int64(len(v))
	}
	return &axiom.SourceMeta{
		Size:         size,
		LastModified: &mtime,
		Version:      strconv.Itoa(a.version),
		TTL:          a.ttl,
	}, nil
}
