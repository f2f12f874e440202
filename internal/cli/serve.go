package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/andywolf/beadbridge/internal/broadcast"
	"github.com/andywolf/beadbridge/internal/cloud/gcp"
	"github.com/andywolf/beadbridge/internal/config"
	"github.com/andywolf/beadbridge/internal/orchestrator"
	"github.com/andywolf/beadbridge/internal/poll"
	"github.com/andywolf/beadbridge/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the live dashboard",
	Long: `Run the dashboard server together with the polling loop. Snapshots
are served over HTTP and pushed to subscribers as server-sent events.

Example:
  bridge serve --addr :8080`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateForSync(); err != nil {
		return err
	}

	addr := cfg.Web.Addr
	if flagAddr, _ := cmd.Flags().GetString("addr"); flagAddr != "" {
		addr = flagAddr
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger, err := gcp.NewLogger(ctx, gcp.Config{
		ProjectID: cfg.Cloud.Project,
		LogID:     cfg.Cloud.LogID,
		Labels:    map[string]string{"component": "beadbridge-dashboard"},
	})
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Close()

	store := broadcast.NewStateStore()
	bc := broadcast.NewChannelBroadcaster()
	store.AttachBroadcaster(bc)
	defer bc.Close()

	refresher := orchestrator.NewStateRefresher(buildTracker(cfg), store)
	poller := poll.New(cfg.PollInterval(), refresher.Refresh, poll.WithErrorObserver(func(err error) {
		logger.Errorf("poll cycle failed: %v", err)
	}))
	poller.Start(ctx)
	defer poller.Stop()

	srv := web.NewServer(store, bc, log.New(os.Stderr, "web: ", log.LstdFlags))

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("dashboard listening on %s", addr)
		errCh <- srv.ListenAndServe(addr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("dashboard server: %w", err)
	case s := <-sig:
		logger.Infof("received %s, shutting down", s)
		return nil
	}
}
