// Package provider holds the registry of cloud inventory listers.
package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/yairfalse/warden/internal/config"
	"github.com/yairfalse/warden/internal/inventory"
)

// Factory builds a lister from provider configuration.
type Factory func(ctx context.Context, cfg config.ProviderConfig) (inventory.Lister, error)

// Registry holds registered provider factories.
var (
	registry = make(map[string]Factory)
	mu       sync.RWMutex
)

// Register adds a provider factory. Providers register themselves from init.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = f
}

// New builds the lister named by cfg.Name.
func New(ctx context.Context, cfg config.ProviderConfig) (inventory.Lister, error) {
	mu.RLock()
	f, ok := registry[cfg.Name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("provider %q is not registered (have %v)", cfg.Name, Names())
	}
	lister, err := f(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s provider: %w", cfg.Name, err)
	}
	return lister, nil
}

// Names returns all registered provider names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clear removes all providers from the registry. Used for testing.
func Clear() {
	mu.Lock()
	defer mu.Unlock()
	registry = make(map[string]Factory)
}
