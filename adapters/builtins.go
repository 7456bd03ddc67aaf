package adapters

// NOTE: If build bloat becomes a concern for unused sources
// look into build tags i.e. +build !nohttp

type BuiltInSourceType = string

const (
	HTTPSourceType   BuiltInSourceType = "http"
	MemorySourceType BuiltInSourceType = "memory"
)

// RegisterBuiltins registers all built-in source providers by default
// or only the specific ones if keys are provided
func RegisterBuiltins(r *Registry, sources ...BuiltInSourceType) {
	if len(sources) == 0 {
		sources = append(sources, HTTPSourceType, MemorySourceType)
	}

	for _, key := range sources {
		switch key {
		case HTTPSourceType:
			RegisterHTTP(r)
		case MemorySourceType:
			RegisterMemory(r)
		}
	}
}

// NewDefaultRegistry returns a registry holding every built-in provider.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	RegisterBuiltins(r)
	return r
}
