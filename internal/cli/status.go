package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andywolf/beadbridge/internal/config"
	"github.com/andywolf/beadbridge/internal/resolver"
)

var statusCmd = &cobra.Command{
	Use:   "status <ref>",
	Short: "Show aggregate progress for an external reference",
	Long: `Resolve an external reference to local epics and show the summed
progress rollup across every repository that tracks it.

The ref may be canonical (github:org/repo#123, shortcut:456) or given as
a repository and issue number pair.

Examples:
  bridge status github:org/app#123
  bridge status --repo org/app --issue 123`,
	Args: cobra.MaximumNArgs(1),
	RunE: showStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().String("repo", "", "External repository (with --issue)")
	statusCmd.Flags().String("issue", "", "External issue number (with --repo)")
}

func showStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateForSync(); err != nil {
		return err
	}

	req := resolver.Request{}
	if len(args) == 1 {
		req.Ref = args[0]
	} else {
		req.Repository, _ = cmd.Flags().GetString("repo")
		req.IssueNumber, _ = cmd.Flags().GetString("issue")
	}

	res := resolver.New(buildTracker(cfg))
	agg, err := res.Resolve(req)
	if err != nil {
		return err
	}

	fmt.Printf("Ref: %s\n", agg.Ref)
	if len(agg.Epics) == 0 {
		fmt.Println("No local epics track this reference.")
		return nil
	}

	epics := make([]string, 0, len(agg.Epics))
	for _, e := range agg.Epics {
		epics = append(epics, fmt.Sprintf("%s/%s", e.Repository, e.EpicID))
	}
	fmt.Printf("Epics: %s\n\n", strings.Join(epics, ", "))

	m := agg.Metrics
	fmt.Printf("Progress: %d%% (%d/%d completed)\n", m.PercentComplete, m.Completed, m.Total)
	fmt.Printf("In progress: %d  Blocked: %d  Not started: %d\n", m.InProgress, m.Blocked, m.NotStarted)

	if len(m.Blockers) > 0 {
		fmt.Println("\nBlockers:")
		for _, b := range m.Blockers {
			fmt.Println("  - " + b)
		}
	}
	if len(m.Discovered) > 0 {
		fmt.Println("\nDiscovered during work:")
		for _, d := range m.Discovered {
			fmt.Println("  - " + d)
		}
	}

	return nil
}
