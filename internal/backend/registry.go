package backend

import (
	"fmt"
	"sync"

	"github.com/andywolf/beadbridge/internal/credentials"
)

// Factory constructs a backend adapter. repo is the external repository
// the adapter is bound to; backends without repository scoping ignore it.
type Factory func(repo string, creds *credentials.Cache) Backend

var (
	registry     = make(map[string]Factory)
	registryLock sync.RWMutex
)

// Register adds a backend factory to the registry
func Register(name string, factory Factory) {
	registryLock.Lock()
	defer registryLock.Unlock()
	registry[name] = factory
}

// Get constructs a backend by name from the registry
func Get(name, repo string, creds *credentials.Cache) (Backend, error) {
	registryLock.RLock()
	defer registryLock.RUnlock()

	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown backend: %s", name)
	}

	return factory(repo, creds), nil
}

// List returns all registered backend names
func List() []string {
	registryLock.RLock()
	defer registryLock.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// Exists checks if a backend is registered
func Exists(name string) bool {
	registryLock.RLock()
	defer registryLock.RUnlock()
	_, ok := registry[name]
	return ok
}
