// Command portalheal detects the layout of a NetSapiens portal page and keeps
// its navigation aligned.
//
// Usage:
//
//	portalheal run --config portalheal.yaml     # correct a live portal page
//	portalheal detect --html saved.html         # resolve a saved page offline
//	portalheal catalog show --db catalog.db     # print the stored catalog
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "portalheal",
	Short: "Portal context detection and layout self-healing",
	Long: `portalheal fingerprints a NetSapiens portal page, resolves semantic role
selectors from a catalog of known layouts, computes layout flags and
repairs a misaligned navigation container by cascading CSS strategies.

Logs go to stderr; stdout carries command output and the MCP stdio stream.`,
	Version:       portalheal.Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to portalheal.yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default from config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: json, text (default from config)")
}

// loadConfig reads --config and applies the logging flag overrides.
func loadConfig() (*portalheal.Config, *slog.Logger, error) {
	cfg, err := portalheal.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	logger := portalheal.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	return cfg, logger, nil
}
