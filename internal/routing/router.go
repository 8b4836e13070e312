package routing

import (
	"sort"
	"sync"

	"github.com/ai-gateway/chat-gateway/internal/provider"
)

// Factory builds a provider bound to a session key.
type Factory func(sessionKey string) provider.Provider

// Router maps active-provider identifiers to provider factories.
type Router struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func New() *Router {
	return &Router{factories: make(map[string]Factory)}
}

// Register associates a provider identifier with a factory. A later call
// with the same name replaces the earlier factory.
func (r *Router) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// ProviderFor builds the provider registered under name.
func (r *Router) ProviderFor(name, sessionKey string) (provider.Provider, bool) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return f(sessionKey), true
}

// Providers returns the registered identifiers in sorted order.
func (r *Router) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
