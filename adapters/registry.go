package adapters

import (
	"encoding/json"

	axiom "github.com/chromium/axiom-sub003"
	"github.com/chromium/axiom-sub003/fserr"
	"github.com/chromium/axiom-sub003/internal/util"
	"github.com/puzpuzpuz/xsync/v4"
)

// SourceProvider builds a data source from its raw JSON definition. The
// definition always carries a "type" field naming the provider.
type SourceProvider interface {
	NewSource(raw []byte) (axiom.DataSource, error)
}

// Registry maps source types to their providers.
type Registry struct {
	providers *xsync.Map[string, SourceProvider]
}

func NewRegistry() *Registry {
	return &Registry{providers: xsync.NewMap[string, SourceProvider]()}
}

// Register ties a provider to a "type" key. The first registration of a type
// wins; later ones are ignored.
func (r *Registry) Register(sourceType string, provider SourceProvider) {
	logger := util.GetLogger("Adapters.Register")
	if _, loaded := r.providers.LoadOrStore(sourceType, provider); loaded {
		logger.Warn().Str("type", sourceType).Msg("Source type already registered, ignoring")
		return
	}
	logger.Debug().Str("type", sourceType).Msg("Registered source provider")
}

// GetProvider returns the provider registered for sourceType.
func (r *Registry) GetProvider(sourceType string) (SourceProvider, error) {
	p, ok := r.providers.Load(sourceType)
	if !ok {
		return nil, fserr.Newf(fserr.NotFound, "no provider for source type %q", sourceType)
	}
	return p, nil
}

// NewSource picks the provider from raw's "type" field and builds the source.
func (r *Registry) NewSource(raw []byte) (axiom.DataSource, error) {
	sourceType, err := SourceType(raw)
	if err != nil {
		return nil, err
	}
	p, err := r.GetProvider(sourceType)
	if err != nil {
		return nil, err
	}
	return p.NewSource(raw)
}

// SourceType extracts the "type" field without fully unmarshaling raw.
func SourceType(raw []byte) (string, error) {
	var meta struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return "", fserr.Wrap(err, fserr.Invalid, "malformed source definition")
	}
	if meta.Type == "" {
		return "", fserr.New(fserr.Missing, "source definition has no type")
	}
	return meta.Type, nil
}
