// Package cmd implements the holdfast CLI.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/holdfast/internal/config"
)

const defaultConfigPath = "holdfast.json5"

var flagConfig string

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "holdfast",
		Short: "Resilient browser automation for flaky web applications",
		Long: "holdfast drives a browser through the flakiness of a live web\n" +
			"application: stale elements, shifting frames, surprise dialogs.",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file (default holdfast.json5)")

	cmd.AddCommand(runCmd())
	cmd.AddCommand(doctorCmd())
	cmd.AddCommand(configCmd())
	return cmd
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath picks the config file: --config flag, then
// HOLDFAST_CONFIG, then holdfast.json5 in the working directory.
func resolveConfigPath() string {
	if flagConfig != "" {
		return flagConfig
	}
	if env := os.Getenv("HOLDFAST_CONFIG"); env != "" {
		return env
	}
	return defaultConfigPath
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, err
	}
	setupLogging(cfg)
	return cfg, nil
}

// logLevel backs the installed handler so a config reload can adjust
// verbosity without replacing the logger.
var logLevel = new(slog.LevelVar)

func setupLogging(cfg *config.Config) {
	applyLogLevel(cfg)
	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func applyLogLevel(cfg *config.Config) {
	logLevel.Set(cfg.LogLevel())
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
