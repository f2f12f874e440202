package cli

import (
	"path/filepath"
	"testing"

	"github.com/andywolf/beadbridge/internal/config"
	"github.com/andywolf/beadbridge/internal/credentials"
)

func TestConfigOverlayStore_GitHubApp(t *testing.T) {
	cfg := &config.Config{
		GitHub: config.GitHubConfig{
			AppID:            1234,
			InstallationID:   5678,
			PrivateKeySecret: "projects/p/secrets/key",
		},
	}
	store := &configOverlayStore{
		base: credentials.NewFileStore(filepath.Join(t.TempDir(), "creds.json")),
		cfg:  cfg,
	}

	records, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	rec, ok := records["github"]
	if !ok {
		t.Fatal("missing github record")
	}
	if rec.Kind != "github_app" || rec.AppID != "1234" || rec.InstallationID != 5678 {
		t.Errorf("record = %+v", rec)
	}
	if rec.PrivateKeyRef != "projects/p/secrets/key" {
		t.Errorf("private key ref = %q", rec.PrivateKeyRef)
	}
}

func TestConfigOverlayStore_TokenFallback(t *testing.T) {
	cfg := &config.Config{
		GitHub:   config.GitHubConfig{TokenSecret: "env:GITHUB_TOKEN"},
		Shortcut: config.ShortcutConfig{TokenSecret: "env:SHORTCUT_API_TOKEN"},
	}
	store := &configOverlayStore{
		base: credentials.NewFileStore(filepath.Join(t.TempDir(), "creds.json")),
		cfg:  cfg,
	}

	records, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if records["github"].Kind != "token" || records["github"].TokenRef != "env:GITHUB_TOKEN" {
		t.Errorf("github record = %+v", records["github"])
	}
	if records["shortcut"].TokenRef != "env:SHORTCUT_API_TOKEN" {
		t.Errorf("shortcut record = %+v", records["shortcut"])
	}
}

func TestConfigOverlayStore_ConfigWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	base := credentials.NewFileStore(path)
	if err := base.Save(map[string]credentials.Record{
		"github": {Kind: "token", TokenRef: "env:OLD_TOKEN"},
	}); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{GitHub: config.GitHubConfig{TokenSecret: "env:NEW_TOKEN"}}
	store := &configOverlayStore{base: base, cfg: cfg}

	records, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if records["github"].TokenRef != "env:NEW_TOKEN" {
		t.Errorf("config-declared record must win, got %+v", records["github"])
	}
}
