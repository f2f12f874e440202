package credentials

import (
	"context"
	"fmt"
	"sync"
)

// Resolved is a Record with its secret references replaced by material.
type Resolved struct {
	Kind           string
	Token          string
	AppID          string
	InstallationID int64
	PrivateKey     []byte
}

// Cache is the process-scoped, read-mostly credential cache. It is created
// once and passed by reference into every component that authenticates, so
// test instances stay isolated. Clear drops all resolved material.
type Cache struct {
	mu       sync.RWMutex
	store    Store
	resolver Resolver
	resolved map[string]*Resolved
}

// NewCache creates a cache over the given store and resolver.
func NewCache(store Store, resolver Resolver) *Cache {
	return &Cache{
		store:    store,
		resolver: resolver,
		resolved: make(map[string]*Resolved),
	}
}

// Get returns the resolved credential for a backend, resolving and caching
// it on first use.
func (c *Cache) Get(ctx context.Context, backendName string) (*Resolved, error) {
	c.mu.RLock()
	if cred, ok := c.resolved[backendName]; ok {
		c.mu.RUnlock()
		return cred, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Re-check under the write lock; a concurrent Get may have resolved it.
	if cred, ok := c.resolved[backendName]; ok {
		return cred, nil
	}

	records, err := c.store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}

	rec, ok := records[backendName]
	if !ok {
		return nil, fmt.Errorf("no credential configured for backend %s", backendName)
	}

	cred := &Resolved{
		Kind:           rec.Kind,
		AppID:          rec.AppID,
		InstallationID: rec.InstallationID,
	}

	if rec.TokenRef != "" {
		token, err := c.resolver.Resolve(ctx, rec.TokenRef)
		if err != nil {
			return nil, fmt.Errorf("resolving token for %s: %w", backendName, err)
		}
		cred.Token = token
	}

	if rec.PrivateKeyRef != "" {
		key, err := c.resolver.Resolve(ctx, rec.PrivateKeyRef)
		if err != nil {
			return nil, fmt.Errorf("resolving private key for %s: %w", backendName, err)
		}
		cred.PrivateKey = []byte(key)
	}

	c.resolved[backendName] = cred
	return cred, nil
}

// Clear drops every resolved credential. The next Get re-resolves.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolved = make(map[string]*Resolved)
}
