// Package credentials manages backend credential records. Persisted records
// carry secret references (environment variable names or Secret Manager
// paths), never the secret material itself; resolution happens at runtime
// through a Resolver and is cached per process.
package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Record describes how to authenticate against one backend. All secret
// fields are references, resolved lazily via a Resolver.
type Record struct {
	// Kind is the credential flavor: "token" or "github_app".
	Kind string `json:"kind"`

	// TokenRef references an API token ("env:NAME" or a Secret Manager path).
	TokenRef string `json:"token_ref,omitempty"`

	// GitHub App fields, used when Kind is "github_app".
	AppID          string `json:"app_id,omitempty"`
	InstallationID int64  `json:"installation_id,omitempty"`
	PrivateKeyRef  string `json:"private_key_ref,omitempty"`
}

// Store persists the backendName -> Record mapping.
type Store interface {
	Load() (map[string]Record, error)
	Save(records map[string]Record) error
	Clear() error
}

// FileStore persists records as JSON on disk with 0600 permissions.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the given file path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the record mapping. A missing file yields an empty mapping.
func (s *FileStore) Load() (map[string]Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Record{}, nil
		}
		return nil, fmt.Errorf("reading credential store: %w", err)
	}

	records := map[string]Record{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing credential store: %w", err)
	}
	return records, nil
}

// Save writes the record mapping. Records whose reference fields look like
// raw secret material are rejected before anything touches disk.
func (s *FileStore) Save(records map[string]Record) error {
	for name, rec := range records {
		if looksLikeSecret(rec.TokenRef) {
			return fmt.Errorf("credential %s: token_ref appears to contain a raw secret; use env:NAME or a Secret Manager path", name)
		}
		if looksLikeSecret(rec.PrivateKeyRef) || strings.Contains(rec.PrivateKeyRef, "PRIVATE KEY") {
			return fmt.Errorf("credential %s: private_key_ref appears to contain raw key material", name)
		}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling credential store: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("writing credential store: %w", err)
	}
	return nil
}

// Clear removes the persisted store. Clearing an absent store is a no-op.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clearing credential store: %w", err)
	}
	return nil
}

// looksLikeSecret flags values carrying well-known token prefixes.
func looksLikeSecret(ref string) bool {
	for _, prefix := range []string{"ghp_", "github_pat_", "ghs_", "sk-", "xoxb-"} {
		if strings.HasPrefix(ref, prefix) {
			return true
		}
	}
	return false
}
