package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"PerspectiveLens/internal/app"
	"PerspectiveLens/internal/config"
	"PerspectiveLens/internal/logging"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:           "perspectivelens",
	Short:         "Compare how different outlets cover the same story",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.AddCommand(analyzeCmd, modelsCmd, probeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, userMessage(err))
		os.Exit(1)
	}
}

// withApplication loads configuration, builds the application and runs fn.
func withApplication(ctx context.Context, fn func(ctx context.Context, application *app.Application) error) error {
	cfg := config.Load()
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error("close application", "error", err)
		}
	}()

	return fn(ctx, application)
}
