package syncer

import (
	"context"
	"sync"

	"github.com/andywolf/beadbridge/internal/backend"
	"github.com/andywolf/beadbridge/internal/credentials"

	// Adapter registration.
	_ "github.com/andywolf/beadbridge/internal/backend/github"
	_ "github.com/andywolf/beadbridge/internal/backend/shortcut"
)

// CachingResolver constructs backend adapters through the registry on
// demand and reuses them for the lifetime of the process. GitHub adapters
// are keyed per repository, the shortcut adapter is a singleton.
type CachingResolver struct {
	creds *credentials.Cache

	mu       sync.Mutex
	backends map[string]backend.Backend
}

// NewCachingResolver creates a resolver backed by the given credential cache.
func NewCachingResolver(creds *credentials.Cache) *CachingResolver {
	return &CachingResolver{creds: creds, backends: make(map[string]backend.Backend)}
}

// BackendFor returns the backend owning the referenced issue.
func (r *CachingResolver) BackendFor(ctx context.Context, ref Ref) (backend.Backend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := ref.Backend + "/" + ref.Repository
	if b, ok := r.backends[key]; ok {
		return b, nil
	}

	b, err := backend.Get(ref.Backend, ref.Repository, r.creds)
	if err != nil {
		return nil, err
	}

	r.backends[key] = b
	return b, nil
}
