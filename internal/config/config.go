package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the full bridge configuration
type Config struct {
	Repositories map[string]string `mapstructure:"repositories"` // repo name -> beads JSONL path
	GitHub       GitHubConfig      `mapstructure:"github"`
	Shortcut     ShortcutConfig    `mapstructure:"shortcut"`
	Cloud        CloudConfig       `mapstructure:"cloud"`
	Poll         PollConfig        `mapstructure:"poll"`
	Web          WebConfig         `mapstructure:"web"`
	Credentials  CredentialsConfig `mapstructure:"credentials"`
}

// GitHubConfig contains GitHub authentication settings. Token and private
// key fields are secret references (env:NAME or Secret Manager paths),
// never secret values.
type GitHubConfig struct {
	AppID            int64  `mapstructure:"app_id"`
	InstallationID   int64  `mapstructure:"installation_id"`
	PrivateKeySecret string `mapstructure:"private_key_secret"`
	TokenSecret      string `mapstructure:"token_secret"`
}

// ShortcutConfig contains Shortcut API settings
type ShortcutConfig struct {
	TokenSecret string `mapstructure:"token_secret"`
}

// CloudConfig contains Google Cloud settings
type CloudConfig struct {
	Project string `mapstructure:"project"` // GCP project ID, empty disables cloud logging
	LogID   string `mapstructure:"log_id"`
}

// PollConfig contains polling loop settings
type PollConfig struct {
	Interval string `mapstructure:"interval"`
}

// WebConfig contains dashboard server settings
type WebConfig struct {
	Addr string `mapstructure:"addr"`
}

// CredentialsConfig locates the on-disk credential reference store
type CredentialsConfig struct {
	Path string `mapstructure:"path"`
}

// Load loads configuration from file and environment
func Load() (*Config, error) {
	cfg := &Config{}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.Poll.Interval == "" {
		cfg.Poll.Interval = "60s"
	}

	if cfg.Web.Addr == "" {
		cfg.Web.Addr = ":8080"
	}

	if cfg.Credentials.Path == "" {
		cfg.Credentials.Path = ".beadbridge/credentials.json"
	}

	if cfg.Cloud.LogID == "" {
		cfg.Cloud.LogID = "beadbridge"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	for name, path := range c.Repositories {
		if path == "" {
			return fmt.Errorf("repository %s has no beads path", name)
		}
	}

	if c.Poll.Interval != "" {
		d, err := time.ParseDuration(c.Poll.Interval)
		if err != nil {
			return fmt.Errorf("invalid poll interval: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("poll interval must be positive, got %s", c.Poll.Interval)
		}
	}

	if c.GitHub.AppID != 0 {
		if c.GitHub.InstallationID == 0 {
			return fmt.Errorf("github installation_id is required when app_id is set")
		}
		if c.GitHub.PrivateKeySecret == "" {
			return fmt.Errorf("github private_key_secret is required when app_id is set")
		}
	}

	return nil
}

// ValidateForSync performs additional validation required before syncing
func (c *Config) ValidateForSync() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if len(c.Repositories) == 0 {
		return fmt.Errorf("at least one repository is required")
	}

	return nil
}

// PollInterval returns the parsed poll interval.
func (c *Config) PollInterval() time.Duration {
	d, err := time.ParseDuration(c.Poll.Interval)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}
