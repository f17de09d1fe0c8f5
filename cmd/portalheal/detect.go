package main

import (
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal"
)

var (
	detectHTML   string
	detectURL    string
	detectWidth  float64
	detectHeight float64
	detectDump   string
)

func init() {
	rootCmd.AddCommand(detectCmd)
	detectCmd.Flags().StringVar(&detectHTML, "html", "", "saved HTML page to resolve offline")
	detectCmd.Flags().StringVar(&detectURL, "url", "", "portal URL to resolve in Chrome")
	detectCmd.Flags().Float64Var(&detectWidth, "width", 1280, "viewport width for --html")
	detectCmd.Flags().Float64Var(&detectHeight, "height", 800, "viewport height for --html")
	detectCmd.Flags().StringVar(&detectDump, "dump", "", "write the rendered HTML of --url to this file")
	detectCmd.MarkFlagsMutuallyExclusive("html", "url")
}

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Resolve the portal context once and print it as JSON",
	Long: `Fingerprint a page, match it against the catalog and print the resolved
roles and layout flags. No correction is applied.

A saved page has no layout, so the geometric flags are false; the viewport
flags use --width and --height.

Examples:
  # Resolve a saved page as a phone would see it
  portalheal detect --html home.html --width 375 --height 812

  # Resolve a live page and keep its markup for offline runs
  portalheal detect --url https://portal.example.com/portal/home --dump home.html`,
	RunE: runDetect,
}

func runDetect(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	cat, err := portalheal.LoadCatalog(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	opts := []portalheal.Option{
		portalheal.WithCatalog(cat),
		portalheal.WithLogger(logger),
		portalheal.WithThreshold(cfg.Detection.Threshold),
		portalheal.WithTolerance(cfg.Probes.TolerancePx),
		portalheal.WithMarkers(cfg.Probes.MarkerClass, cfg.Probes.MarkerLink),
	}

	var info portalheal.Info
	switch {
	case detectHTML != "":
		f, err := os.Open(detectHTML)
		if err != nil {
			return err
		}
		defer f.Close()
		info, err = portalheal.DetectHTML(cmd.Context(), f, detectWidth, detectHeight, opts...)
		if err != nil {
			return err
		}
	case detectURL != "":
		var dump io.Writer
		if detectDump != "" {
			f, err := os.Create(detectDump)
			if err != nil {
				return err
			}
			defer f.Close()
			dump = f
		}
		info, err = portalheal.DetectURL(cmd.Context(), cfg, detectURL, dump, opts...)
		if err != nil {
			return err
		}
	default:
		return errors.New("one of --html or --url is required")
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}
