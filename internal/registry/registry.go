// Package registry holds the static catalog of supported providers and models.
package registry

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/xiaot623/dualchat/internal/domain"
)

// Registry is an immutable provider catalog. It is safe for concurrent use.
type Registry struct {
	providers []domain.ProviderDescriptor
	byID      map[string]int
}

// New builds a registry from the given descriptors. Duplicate provider ids are rejected.
func New(providers []domain.ProviderDescriptor) (*Registry, error) {
	r := &Registry{byID: make(map[string]int, len(providers))}
	for _, p := range providers {
		if p.ID == "" {
			return nil, fmt.Errorf("provider with empty id")
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate provider %q", p.ID)
		}
		r.byID[p.ID] = len(r.providers)
		r.providers = append(r.providers, clone(p))
	}
	return r, nil
}

// Default returns the built-in catalog.
func Default() *Registry {
	r, err := New(builtin)
	if err != nil {
		panic(err)
	}
	return r
}

type catalogFile struct {
	Providers []domain.ProviderDescriptor `toml:"providers"`
}

// LoadFile reads a TOML catalog. Every provider id must be one of supported,
// since a catalog entry without an adapter could never be relayed.
func LoadFile(path string, supported []string) (*Registry, error) {
	var file catalogFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("failed to decode provider catalog: %w", err)
	}
	if len(file.Providers) == 0 {
		return nil, fmt.Errorf("provider catalog %s is empty", path)
	}

	known := make(map[string]bool, len(supported))
	for _, id := range supported {
		known[id] = true
	}
	for _, p := range file.Providers {
		if !known[p.ID] {
			return nil, fmt.Errorf("provider %q has no adapter", p.ID)
		}
	}
	return New(file.Providers)
}

// List returns a copy of the catalog in declaration order.
func (r *Registry) List() []domain.ProviderDescriptor {
	out := make([]domain.ProviderDescriptor, len(r.providers))
	for i, p := range r.providers {
		out[i] = clone(p)
	}
	return out
}

// Lookup finds a provider by id.
func (r *Registry) Lookup(provider string) (domain.ProviderDescriptor, bool) {
	i, ok := r.byID[provider]
	if !ok {
		return domain.ProviderDescriptor{}, false
	}
	return clone(r.providers[i]), true
}

// Validate checks that every model is selectable for provider.
func (r *Registry) Validate(provider string, models ...string) error {
	i, ok := r.byID[provider]
	if !ok {
		return &domain.UnsupportedProviderError{Provider: provider}
	}
	for _, m := range models {
		if !r.providers[i].HasModel(m) {
			return &domain.UnsupportedProviderError{Provider: provider, Model: m}
		}
	}
	return nil
}

func clone(p domain.ProviderDescriptor) domain.ProviderDescriptor {
	p.Models = append([]domain.ModelDescriptor(nil), p.Models...)
	return p
}
