package broker

import (
	"strings"
	"sync"

	"tradefan/internal/logger"
	"tradefan/internal/types"
)

// Factory builds a gateway bound to one credential set.
type Factory func(cred types.Credential) (Gateway, error)

// Registry maps venue names to adapter factories. Resolution never fails
// hard: venues without a registered adapter fall back to the paper
// gateway so one unsupported broker cannot take down a fan-out.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	fallback  Factory
}

func NewRegistry(fallback Factory) *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		fallback:  fallback,
	}
}

func normalizeVenue(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", ""))
}

// Register binds a venue name (case- and space-insensitive) to a factory.
func (r *Registry) Register(name string, factory Factory) {
	key := normalizeVenue(name)
	if key == "" || factory == nil {
		return
	}
	r.mu.Lock()
	r.factories[key] = factory
	r.mu.Unlock()
}

// Resolve returns a gateway for the credential's broker. Unknown venues
// resolve to the fallback with a warning rather than an error.
func (r *Registry) Resolve(cred types.Credential) (Gateway, error) {
	key := normalizeVenue(cred.Broker)
	r.mu.RLock()
	factory, ok := r.factories[key]
	fallback := r.fallback
	r.mu.RUnlock()
	if !ok {
		logger.Warnf("broker: unsupported venue %q, using paper adapter", cred.Broker)
		factory = fallback
	}
	return factory(cred)
}

// Venues lists registered venue keys, mainly for startup logging.
func (r *Registry) Venues() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	return out
}
