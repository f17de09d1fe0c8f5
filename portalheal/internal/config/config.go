// Package config loads the portalheal YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Browser   BrowserConfig   `yaml:"browser"`
	Portal    PortalConfig    `yaml:"portal"`
	Detection DetectionConfig `yaml:"detection"`
	Probes    ProbesConfig    `yaml:"probes"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Healer    HealerConfig    `yaml:"healer"`
	Notify    NotifyConfig    `yaml:"notify"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

// BrowserConfig controls Chrome.
type BrowserConfig struct {
	// Remote is a DevTools websocket URL; empty launches a local Chrome.
	Remote           string   `yaml:"remote"`
	Headless         *bool    `yaml:"headless"`
	Stealth          bool     `yaml:"stealth"`
	ResourceBlocking []string `yaml:"resource_blocking"`
	ViewportWidth    int      `yaml:"viewport_width"`
	ViewportHeight   int      `yaml:"viewport_height"`
}

// PortalConfig names the page to correct.
type PortalConfig struct {
	URL string `yaml:"url"`
	// ReadySelector is awaited before detection. Default: body.
	ReadySelector string        `yaml:"ready_selector"`
	LoadTimeout   time.Duration `yaml:"load_timeout"`
}

// DetectionConfig controls the resolver and where the catalog comes from.
// CatalogDB wins over CatalogFile; with neither the built-in catalog is used.
type DetectionConfig struct {
	Threshold   float64 `yaml:"threshold"`
	CatalogFile string  `yaml:"catalog_file"`
	CatalogDB   string  `yaml:"catalog_db"`
}

// ProbesConfig controls layout probes.
type ProbesConfig struct {
	TolerancePx float64 `yaml:"tolerance_px"`
	MarkerClass string  `yaml:"marker_class"`
	MarkerLink  string  `yaml:"marker_link"`
}

// MonitorConfig sets the debounce windows.
type MonitorConfig struct {
	ResizeWindow   time.Duration `yaml:"resize_window"`
	MutationWindow time.Duration `yaml:"mutation_window"`
}

// HealerConfig controls the correction cascade.
type HealerConfig struct {
	Disabled    bool          `yaml:"disabled"`
	MaxRetries  int           `yaml:"max_retries"`
	SettleDelay time.Duration `yaml:"settle_delay"`
	Strategies  []string      `yaml:"strategies"`
}

// NotifyConfig selects notification sinks. Log is always on.
type NotifyConfig struct {
	Toast          bool          `yaml:"toast"`
	WebhookURL     string        `yaml:"webhook_url"`
	WebhookRetries int           `yaml:"webhook_retries"`
	WebhookBackoff time.Duration `yaml:"webhook_backoff"`
}

// ServerConfig controls the diagnostics surfaces.
type ServerConfig struct {
	// Addr of the HTTP diagnostics server; empty disables it.
	Addr string `yaml:"addr"`
	// MCP serves the MCP tools over stdio.
	MCP bool `yaml:"mcp"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | text
}

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Default returns a configuration with every default applied.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Browser.Headless == nil {
		t := true
		c.Browser.Headless = &t
	}
	if c.Browser.ViewportWidth <= 0 {
		c.Browser.ViewportWidth = 1366
	}
	if c.Browser.ViewportHeight <= 0 {
		c.Browser.ViewportHeight = 768
	}
	if c.Portal.ReadySelector == "" {
		c.Portal.ReadySelector = "body"
	}
	if c.Portal.LoadTimeout <= 0 {
		c.Portal.LoadTimeout = 30 * time.Second
	}
	if c.Detection.Threshold <= 0 {
		c.Detection.Threshold = 0.8
	}
	if c.Probes.TolerancePx <= 0 {
		c.Probes.TolerancePx = 3
	}
	if c.Probes.MarkerClass == "" {
		c.Probes.MarkerClass = "grid4-enhanced"
	}
	if c.Probes.MarkerLink == "" {
		c.Probes.MarkerLink = "link[href*='grid4']"
	}
	if c.Monitor.ResizeWindow <= 0 {
		c.Monitor.ResizeWindow = 250 * time.Millisecond
	}
	if c.Monitor.MutationWindow <= 0 {
		c.Monitor.MutationWindow = 100 * time.Millisecond
	}
	if c.Healer.MaxRetries <= 0 {
		c.Healer.MaxRetries = 3
	}
	if c.Healer.SettleDelay <= 0 {
		c.Healer.SettleDelay = 100 * time.Millisecond
	}
	if len(c.Healer.Strategies) == 0 {
		c.Healer.Strategies = []string{"flexbox", "grid", "transform", "table-cell"}
	}
	if c.Notify.WebhookRetries <= 0 {
		c.Notify.WebhookRetries = 3
	}
	if c.Notify.WebhookBackoff <= 0 {
		c.Notify.WebhookBackoff = time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// Validate checks ranges and enumerations. Strategy names are checked by
// the corrector when the engine is built.
func (c *Config) Validate() error {
	if c.Detection.Threshold > 1 {
		return fmt.Errorf("%w: detection.threshold %v > 1", ErrInvalid, c.Detection.Threshold)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log.level %q", ErrInvalid, c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalid, c.Log.Format)
	}
	if c.Healer.MaxRetries > 10 {
		return fmt.Errorf("%w: healer.max_retries %d > 10", ErrInvalid, c.Healer.MaxRetries)
	}
	return nil
}

// Files returns the files whose change should trigger a reload.
func (c *Config) Files() []string {
	var out []string
	if c.Detection.CatalogFile != "" {
		out = append(out, c.Detection.CatalogFile)
	}
	if c.Detection.CatalogDB != "" {
		// WAL mode writes land in the -wal file first.
		out = append(out, c.Detection.CatalogDB, c.Detection.CatalogDB+"-wal")
	}
	return out
}
