package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/wonny/canslim/internal/contracts"
)

// Registry resolves providers by name
type Registry struct {
	mu        sync.RWMutex
	providers map[string]contracts.MarketDataProvider
	def       string
}

// NewRegistry creates a registry; defaultName is used for empty lookups
func NewRegistry(defaultName string) *Registry {
	return &Registry{
		providers: make(map[string]contracts.MarketDataProvider),
		def:       defaultName,
	}
}

// Register adds or replaces a provider under its Name()
func (r *Registry) Register(p contracts.MarketDataProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns the named provider; an empty name selects the default
func (r *Registry) Get(name string) (contracts.MarketDataProvider, error) {
	if name == "" {
		name = r.def
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownProvider)
	}
	return p, nil
}

// Default returns the default provider name
func (r *Registry) Default() string {
	return r.def
}

// Names lists registered providers alphabetically
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
