package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/R1cK-ChaN/doc-parser/internal/config"
	"github.com/R1cK-ChaN/doc-parser/internal/logger"
	"github.com/R1cK-ChaN/doc-parser/internal/pipeline"
)

var version = "1.0.0"

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "docparser",
	Short: "Parse financial research documents into structured Markdown",
	Long: `docparser converts financial research PDFs and scans into Markdown
with structural detail, optional chart and table descriptions from a
vision model, and extracted document metadata.

Documents come from local files or Google Drive folders. Results are
stored under DATA_DIR keyed by content hash, and optionally recorded
in PostgreSQL when DATABASE_URL is set.`,
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			cfg := logger.DefaultConfig()
			cfg.Level = "debug"
			_ = logger.Setup(cfg)
		}
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// loadConfig loads and validates configuration for a command run.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newPipeline builds the processing pipeline from configuration.
func newPipeline(cfg *config.Config) (*pipeline.Pipeline, error) {
	return pipeline.New(cfg)
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
