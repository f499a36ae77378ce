// Package cmd implements the lorekeep command line interface.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lorekeep/lorekeep/internal/app"
	"github.com/lorekeep/lorekeep/internal/config"
	"github.com/lorekeep/lorekeep/internal/log"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "lorekeep",
	Short: "Lorekeep - content ingestion and grounded answers for your site",
	Long: `Lorekeep keeps a vector index in sync with a document store and
answers questions grounded in the indexed content.

Typical workflow:

  lorekeep ingest          # pull changed documents into the index
  lorekeep ask "..."       # ask a question against the index
  lorekeep search "..."    # inspect raw similarity matches`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Commands inherit a context that is
// cancelled on SIGINT/SIGTERM so in-flight work can be abandoned
// cleanly instead of killed mid-stream.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// setupApp loads configuration and wires the application.
// Callers own the returned App and must Close it.
func setupApp(ctx context.Context) (*app.App, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level})
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing application: %w", err)
	}
	return a, nil
}
