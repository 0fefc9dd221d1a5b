package strategy

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	scrapper "github.com/rahulsharmaah/content-scrapper"
)

// Registry maps strategy names to implementations.
// It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds s under s.Name(), replacing any previous registration.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
}

// Get returns the strategy registered under name.
func (r *Registry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	return s, ok
}

// Resolve is Get with a scrapper.ErrUnknownStrategy error.
func (r *Registry) Resolve(name string) (Strategy, error) {
	s, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", scrapper.ErrUnknownStrategy, name)
	}
	return s, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateParams runs the strategy's own parameter check when it has one.
func (r *Registry) ValidateParams(name string, params json.RawMessage) error {
	s, err := r.Resolve(name)
	if err != nil {
		return err
	}
	if v, ok := s.(Validator); ok {
		return v.ValidateParams(params)
	}
	return nil
}
