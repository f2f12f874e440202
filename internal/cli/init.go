package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize project configuration",
	Long: `Initialize beadbridge configuration for the current project.

This creates a .beadbridge.yaml file with sensible defaults that you can
customize. Secret fields hold references (env var names or Secret Manager
paths), never secret values.

Example:
  bridge init
  bridge init --repo frontend=.beads/issues.jsonl`,
	RunE: initProject,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringToString("repo", nil, "Repository mapping name=beads-path (repeatable)")
	initCmd.Flags().Int64("app-id", 0, "GitHub App ID")
	initCmd.Flags().Int64("installation-id", 0, "GitHub App Installation ID")
	initCmd.Flags().String("gcp-project", "", "GCP project for Secret Manager and Cloud Logging")
	initCmd.Flags().Bool("force", false, "Overwrite existing config")
}

type projectConfig struct {
	Repositories map[string]string `yaml:"repositories"`
	GitHub       struct {
		AppID            int64  `yaml:"app_id,omitempty"`
		InstallationID   int64  `yaml:"installation_id,omitempty"`
		PrivateKeySecret string `yaml:"private_key_secret,omitempty"`
		TokenSecret      string `yaml:"token_secret,omitempty"`
	} `yaml:"github"`
	Shortcut struct {
		TokenSecret string `yaml:"token_secret"`
	} `yaml:"shortcut"`
	Cloud struct {
		Project string `yaml:"project,omitempty"`
	} `yaml:"cloud,omitempty"`
	Poll struct {
		Interval string `yaml:"interval"`
	} `yaml:"poll"`
	Web struct {
		Addr string `yaml:"addr"`
	} `yaml:"web"`
}

func initProject(cmd *cobra.Command, args []string) error {
	configPath := filepath.Join(".", ".beadbridge.yaml")

	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
	}

	cfg := projectConfig{}
	cfg.Repositories, _ = cmd.Flags().GetStringToString("repo")
	if len(cfg.Repositories) == 0 {
		cwd, _ := os.Getwd()
		cfg.Repositories = map[string]string{
			filepath.Base(cwd): ".beads/issues.jsonl",
		}
	}

	cfg.GitHub.AppID, _ = cmd.Flags().GetInt64("app-id")
	cfg.GitHub.InstallationID, _ = cmd.Flags().GetInt64("installation-id")
	cfg.Cloud.Project, _ = cmd.Flags().GetString("gcp-project")

	if cfg.GitHub.AppID != 0 {
		if cfg.Cloud.Project != "" {
			cfg.GitHub.PrivateKeySecret = fmt.Sprintf("projects/%s/secrets/beadbridge-github-key", cfg.Cloud.Project)
		} else {
			cfg.GitHub.PrivateKeySecret = "env:BEADBRIDGE_GITHUB_KEY"
		}
	} else {
		cfg.GitHub.TokenSecret = "env:GITHUB_TOKEN"
	}
	cfg.Shortcut.TokenSecret = "env:SHORTCUT_API_TOKEN"
	cfg.Poll.Interval = "60s"
	cfg.Web.Addr = ":8080"

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Created %s\n", configPath)
	fmt.Println("Edit the repository paths and secret references, then run: bridge sync")
	return nil
}
