package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/andywolf/beadbridge/internal/broadcast"
	"github.com/andywolf/beadbridge/internal/config"
	"github.com/andywolf/beadbridge/internal/orchestrator"
	"github.com/andywolf/beadbridge/internal/poll"
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Continuously refresh progress snapshots",
	Long: `Run the polling loop: recompute aggregate progress for every
externally-referenced epic on a fixed interval. The first cycle runs
immediately; a failing cycle is reported and the loop continues.

Example:
  bridge poll --interval 30s`,
	RunE: runPoll,
}

func init() {
	rootCmd.AddCommand(pollCmd)

	pollCmd.Flags().Duration("interval", 0, "Poll interval (overrides config)")
}

func runPoll(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateForSync(); err != nil {
		return err
	}

	interval := cfg.PollInterval()
	if flagInterval, _ := cmd.Flags().GetDuration("interval"); flagInterval > 0 {
		interval = flagInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := broadcast.NewStateStore()
	refresher := orchestrator.NewStateRefresher(buildTracker(cfg), store)

	poller := poll.New(interval, refresher.Refresh, poll.WithErrorObserver(func(err error) {
		fmt.Fprintf(os.Stderr, "poll cycle failed: %v\n", err)
	}))
	poller.Start(ctx)
	defer poller.Stop()

	fmt.Printf("Polling every %s. Press Ctrl-C to stop.\n", interval)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	fmt.Println("Stopping poller.")
	return nil
}
