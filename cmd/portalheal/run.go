package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal"
)

var (
	runURL      string
	runAddr     string
	runMCP      bool
	runHeadless bool
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runURL, "url", "", "portal URL (overrides portal.url)")
	runCmd.Flags().StringVar(&runAddr, "addr", "", "HTTP diagnostics address (overrides server.addr)")
	runCmd.Flags().BoolVar(&runMCP, "mcp", false, "serve MCP tools over stdio")
	runCmd.Flags().BoolVar(&runHeadless, "headless", true, "run Chrome headless (overrides browser.headless)")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Open the portal in Chrome and keep its layout corrected",
	Long: `Open the configured portal page in Chrome, detect its layout, run the
probes and the navigation corrector, and keep them current on resize and
content mutations until interrupted. The catalog file or database and the
config file are watched and reloaded on change.

Examples:
  # Run from a config file with the HTTP diagnostics API
  portalheal run --config portalheal.yaml --addr :8089

  # Quick run against one URL with a visible browser
  portalheal run --url https://portal.example.com/portal/home --headless=false

  # Expose the engine to an MCP client over stdio
  portalheal run --config portalheal.yaml --mcp`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if runURL != "" {
		cfg.Portal.URL = runURL
	}
	if runAddr != "" {
		cfg.Server.Addr = runAddr
	}
	if runMCP {
		cfg.Server.MCP = true
	}
	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless = &runHeadless
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := portalheal.NewService(cfg, configPath, logger)
	defer svc.Close()
	if err := svc.Start(ctx); err != nil {
		logger.Error("portalheal: start", "error", err)
		return err
	}
	if err := svc.Run(ctx); err != nil {
		logger.Error("portalheal: fatal", "error", err)
		return err
	}
	logger.Info("portalheal: stopped")
	return nil
}
