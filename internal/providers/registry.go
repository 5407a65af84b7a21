// internal/providers/registry.go

package providers

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"agentManager/internal/utils"
)

// OverridesFile is the provider override file name inside the app directory.
const OverridesFile = "providers.yaml"

// Registry is the set of known providers in registration order.
type Registry struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]Provider
}

// NewRegistry builds a registry from ps. Later duplicates replace earlier ones.
func NewRegistry(ps []Provider) *Registry {
	r := &Registry{byID: make(map[string]Provider)}
	for _, p := range ps {
		r.put(p)
	}
	return r
}

// Default returns the built-in registry.
func Default() *Registry {
	return NewRegistry(Builtin())
}

func (r *Registry) put(p Provider) {
	if _, ok := r.byID[p.ID]; !ok {
		r.order = append(r.order, p.ID)
	}
	r.byID[p.ID] = p
}

// Get looks up a provider by id.
func (r *Registry) Get(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	return p, ok
}

// All returns every provider in registration order.
func (r *Registry) All() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// IDs returns every provider id in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Detectable returns the providers probed by agent detection.
func (r *Registry) Detectable() []Provider {
	var out []Provider
	for _, p := range r.All() {
		if p.Detectable {
			out = append(out, p)
		}
	}
	return out
}

type overrideFile struct {
	Providers []yaml.Node `yaml:"providers"`
}

// ApplyOverrides merges YAML provider definitions over the registry. Fields
// present in an entry replace the existing provider's fields; unknown ids are
// added.
func (r *Registry) ApplyOverrides(data []byte) error {
	var f overrideFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse provider overrides: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range f.Providers {
		node := &f.Providers[i]
		var head struct {
			ID string `yaml:"id"`
		}
		if err := node.Decode(&head); err != nil {
			return fmt.Errorf("provider override %d: %w", i, err)
		}
		if head.ID == "" {
			return fmt.Errorf("provider override %d: missing id", i)
		}
		base := r.byID[head.ID]
		if err := node.Decode(&base); err != nil {
			return fmt.Errorf("provider override %s: %w", head.ID, err)
		}
		r.put(base)
	}
	return nil
}

// LoadOverrides applies the overrides file at path if it exists.
func (r *Registry) LoadOverrides(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read provider overrides: %w", err)
	}
	return r.ApplyOverrides(data)
}

// DefaultOverridesPath returns the overrides location in the app directory.
func DefaultOverridesPath() (string, error) {
	return utils.AppFile(OverridesFile)
}
