package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andywolf/beadbridge/internal/config"
	"github.com/andywolf/beadbridge/internal/orchestrator"
	"github.com/andywolf/beadbridge/internal/resolver"
	"github.com/andywolf/beadbridge/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync [bead-id]",
	Short: "Push local bead state to external trackers",
	Long: `Reconcile local beads with the external issues they reference.

Without arguments, syncs every bead in the repository named by --repo.
With a bead ID, syncs only that bead. Beads without an external reference
are skipped and reported.

Examples:
  bridge sync --repo frontend
  bridge sync front-42 --repo frontend --dry-run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().String("repo", "", "Local repository to sync")
	syncCmd.Flags().Bool("dry-run", false, "Compute the plan without external writes")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateForSync(); err != nil {
		return err
	}

	repo, _ := cmd.Flags().GetString("repo")
	if repo == "" {
		if len(cfg.Repositories) == 1 {
			for name := range cfg.Repositories {
				repo = name
			}
		} else {
			return fmt.Errorf("--repo is required when more than one repository is configured")
		}
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")

	creds, cleanup, err := buildCredentialCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	tr := buildTracker(cfg)
	svc := syncer.New(tr, syncer.NewCachingResolver(creds),
		syncer.WithProgress(orchestrator.New(resolver.New(tr))))

	var report *syncer.Report
	if len(args) == 1 {
		report = svc.SyncBead(ctx, repo, args[0], dryRun)
	} else {
		report, err = svc.SyncRepository(ctx, repo, dryRun)
		if err != nil {
			return err
		}
	}

	printReport(report, dryRun)

	if report.Errors > 0 {
		return fmt.Errorf("%d bead(s) failed to sync", report.Errors)
	}
	return nil
}

func printReport(report *syncer.Report, dryRun bool) {
	if dryRun {
		fmt.Println("Dry run; no external writes were made.")
	}
	for _, d := range report.Details {
		if d.Message != "" {
			fmt.Printf("%-10s %s: %s\n", d.Status, d.BeadID, d.Message)
		} else {
			fmt.Printf("%-10s %s\n", d.Status, d.BeadID)
		}
	}
	fmt.Printf("\nSynced: %d  Errors: %d  Skipped: %d\n", report.Synced, report.Errors, report.Skipped)
}
