package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/andywolf/beadbridge/internal/config"
	"github.com/andywolf/beadbridge/internal/credentials"
	"github.com/andywolf/beadbridge/internal/tracker"
)

// buildTracker creates the file tracker over the configured repositories.
func buildTracker(cfg *config.Config) *tracker.FileTracker {
	return tracker.NewFileTracker(cfg.Repositories)
}

// buildCredentialCache wires the credential cache: a file store overlaid
// with config-declared records, resolved through Secret Manager when a GCP
// project is configured, environment variables otherwise. The returned
// cleanup releases the resolver.
func buildCredentialCache(ctx context.Context, cfg *config.Config) (*credentials.Cache, func(), error) {
	var resolver credentials.Resolver
	if cfg.Cloud.Project != "" {
		smr, err := credentials.NewSecretManagerResolver(ctx, cfg.Cloud.Project)
		if err != nil {
			return nil, nil, fmt.Errorf("creating secret resolver: %w", err)
		}
		resolver = smr
	} else {
		resolver = credentials.EnvResolver{}
	}

	store := &configOverlayStore{
		base: credentials.NewFileStore(cfg.Credentials.Path),
		cfg:  cfg,
	}
	cache := credentials.NewCache(store, resolver)
	cleanup := func() { _ = resolver.Close() }
	return cache, cleanup, nil
}

// configOverlayStore layers credential records declared in the config file
// over the persisted store. Config records win; both carry references only.
type configOverlayStore struct {
	base credentials.Store
	cfg  *config.Config
}

func (s *configOverlayStore) Load() (map[string]credentials.Record, error) {
	records, err := s.base.Load()
	if err != nil {
		return nil, err
	}

	gh := s.cfg.GitHub
	switch {
	case gh.AppID != 0:
		records["github"] = credentials.Record{
			Kind:           "github_app",
			AppID:          strconv.FormatInt(gh.AppID, 10),
			InstallationID: gh.InstallationID,
			PrivateKeyRef:  gh.PrivateKeySecret,
		}
	case gh.TokenSecret != "":
		records["github"] = credentials.Record{Kind: "token", TokenRef: gh.TokenSecret}
	}

	if s.cfg.Shortcut.TokenSecret != "" {
		records["shortcut"] = credentials.Record{Kind: "token", TokenRef: s.cfg.Shortcut.TokenSecret}
	}

	return records, nil
}

func (s *configOverlayStore) Save(records map[string]credentials.Record) error {
	return s.base.Save(records)
}

func (s *configOverlayStore) Clear() error {
	return s.base.Clear()
}
