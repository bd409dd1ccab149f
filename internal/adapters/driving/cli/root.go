// Package cli provides the docrag command line.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docrag/internal/app"
	"github.com/custodia-labs/docrag/internal/config"
	"github.com/custodia-labs/docrag/internal/logger"
)

var (
	// version is set at build time via Execute.
	version = "dev"

	cfgFile   string
	verbose   bool
	quiet     bool
	logFormat string

	// loadConfig and newApp are replaced in tests.
	loadConfig = config.Load
	newApp     = app.Build
)

var rootCmd = &cobra.Command{
	Use:   "docrag",
	Short: "Ask questions of your own documents",
	Long: `docrag ingests documents, embeds them into a vector index and answers
questions grounded in the retrieved chunks.

Configuration is read from docrag.toml in the working directory or
~/.docrag, then from a .env file, then from DOCRAG_* environment variables.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: configureLogging,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./docrag.toml or ~/.docrag/docrag.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only log warnings and errors")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: console or json (default from config)")
}

// Execute runs the root command.
func Execute(ctx context.Context, v string) error {
	if v != "" {
		version = v
	}
	return rootCmd.ExecuteContext(ctx)
}

func configureLogging(_ *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	logger.SetQuiet(quiet && !verbose)
	if logFormat != "" {
		return logger.SetFormat(logFormat)
	}
	return nil
}

// withApp loads configuration, builds the service graph and closes it
// once fn returns.
func withApp(cmd *cobra.Command, fn func(a *app.App) error) error {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}
	if logFormat == "" && cfg.Log.Format != "" {
		if err := logger.SetFormat(cfg.Log.Format); err != nil {
			return err
		}
	}
	if !verbose && cfg.Log.Level == "debug" {
		logger.SetVerbose(true)
	}

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("initialising: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("Shutdown: %v", err)
		}
	}()
	return fn(a)
}
