package portalheal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/browser"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/catalog"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/config"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/heal"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/metrics"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/notify"
)

// Version is reported by the MCP server and the CLI.
var Version = "dev"

// Config is the service configuration.
type Config = config.Config

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config { return config.Default() }

// LoadConfig reads a YAML configuration. An empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadFile(path)
}

// NewLogger builds the slog logger described by level and format.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// LoadCatalog returns the catalog named by cfg: the SQLite database if
// set, else the YAML file, else the built-in catalog.
func LoadCatalog(ctx context.Context, cfg *Config) (*Catalog, error) {
	switch {
	case cfg.Detection.CatalogDB != "":
		db, err := catalog.OpenDB(cfg.Detection.CatalogDB)
		if err != nil {
			return nil, fmt.Errorf("portalheal: catalog db: %w", err)
		}
		defer db.Close()
		return catalog.LoadDB(ctx, db)
	case cfg.Detection.CatalogFile != "":
		return catalog.LoadFile(cfg.Detection.CatalogFile)
	default:
		return catalog.Default(), nil
	}
}

// ReadCatalogFile parses a YAML catalog file.
func ReadCatalogFile(path string) (*Catalog, error) { return catalog.LoadFile(path) }

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog { return catalog.Default() }

// ImportCatalog replaces the catalog stored in the database at dbPath.
func ImportCatalog(ctx context.Context, dbPath string, c *Catalog) error {
	db, err := catalog.OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("portalheal: catalog db: %w", err)
	}
	defer db.Close()
	return catalog.SaveDB(ctx, db, c)
}

// EngineOptions translates the detection, probe, monitor and healer
// sections of cfg.
func EngineOptions(cfg *Config) ([]Option, error) {
	strategies, err := heal.ParseStrategies(cfg.Healer.Strategies)
	if err != nil {
		return nil, fmt.Errorf("portalheal: healer.strategies: %w", err)
	}
	opts := []Option{
		WithThreshold(cfg.Detection.Threshold),
		WithTolerance(cfg.Probes.TolerancePx),
		WithMarkers(cfg.Probes.MarkerClass, cfg.Probes.MarkerLink),
		WithDebounce(cfg.Monitor.ResizeWindow, cfg.Monitor.MutationWindow),
		WithMaxRetries(cfg.Healer.MaxRetries),
		WithSettleDelay(cfg.Healer.SettleDelay),
		WithStrategies(strategies...),
	}
	return append(opts, withHealerDisabled(cfg.Healer.Disabled)), nil
}

// Service runs one engine against a live portal page in Chrome, with the
// HTTP and MCP surfaces and catalog hot reload.
type Service struct {
	cfg        *Config
	configPath string
	logger     *slog.Logger
	registry   *prometheus.Registry
	metrics    *metrics.Metrics

	mu     sync.Mutex
	mgr    *browser.Manager
	tab    *browser.Tab
	engine *Engine
}

// NewService creates a Service. configPath, when set, is watched along
// with the catalog files.
func NewService(cfg *Config, configPath string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &Service{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		registry:   reg,
		metrics:    metrics.New(reg),
	}
}

// Engine returns the running engine, or nil before Start.
func (s *Service) Engine() *Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

// Start launches Chrome, opens the portal and initializes the engine.
func (s *Service) Start(ctx context.Context) error {
	if s.cfg.Portal.URL == "" {
		return errors.New("portalheal: portal.url is required")
	}
	cat, err := LoadCatalog(ctx, s.cfg)
	if err != nil {
		return err
	}
	opts, err := EngineOptions(s.cfg)
	if err != nil {
		return err
	}

	mgr := browser.NewManager(browser.Config{
		RemoteURL:        s.cfg.Browser.Remote,
		Headless:         *s.cfg.Browser.Headless,
		ResourceBlocking: s.cfg.Browser.ResourceBlocking,
		Logger:           s.logger,
	})
	if _, err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("portalheal: start browser: %w", err)
	}
	tab, err := browser.OpenTab(ctx, mgr, s.cfg.Portal.URL, browser.TabOptions{
		Stealth:       s.cfg.Browser.Stealth,
		Width:         s.cfg.Browser.ViewportWidth,
		Height:        s.cfg.Browser.ViewportHeight,
		ReadySelector: s.cfg.Portal.ReadySelector,
		LoadTimeout:   s.cfg.Portal.LoadTimeout,
	})
	if err != nil {
		mgr.Close()
		return fmt.Errorf("portalheal: open portal: %w", err)
	}

	doc := tab.Document()
	opts = append(opts,
		WithCatalog(cat),
		WithLogger(s.logger),
		WithMetrics(s.metrics),
		WithNotifier(s.notifier(s.cfg, doc)),
	)
	eng := New(doc, tab.Events(), opts...)
	if err := eng.Init(ctx); err != nil {
		tab.Close()
		mgr.Close()
		return err
	}

	s.mu.Lock()
	s.mgr, s.tab, s.engine = mgr, tab, eng
	s.mu.Unlock()
	return nil
}

func (s *Service) notifier(cfg *Config, page notify.ToastPage) Notifier {
	var primary notify.Notifier = notify.Log{Logger: s.logger}
	if cfg.Notify.Toast {
		primary = notify.NewToast(page, primary)
	}
	sinks := []notify.Notifier{primary}
	if cfg.Notify.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhook(cfg.Notify.WebhookURL,
			notify.WithWebhookRetries(cfg.Notify.WebhookRetries),
			notify.WithWebhookBackoff(cfg.Notify.WebhookBackoff),
			notify.WithWebhookSource(cfg.Portal.URL),
			notify.WithWebhookLogger(s.logger),
		))
	}
	return notify.NewRouter(s.logger, s.metrics, sinks...)
}

// Run serves the configured surfaces and watches the catalog until ctx is
// done. Start must have succeeded.
func (s *Service) Run(ctx context.Context) error {
	eng := s.Engine()
	if eng == nil {
		return ErrNotReady
	}
	g, ctx := errgroup.WithContext(ctx)

	if s.cfg.Server.Addr != "" {
		srv := &http.Server{
			Addr:              s.cfg.Server.Addr,
			Handler:           NewHandler(eng, s.registry),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			s.logger.Info("portalheal: http listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("portalheal: http: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if s.cfg.Server.MCP {
		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "portalheal", Version: Version}, nil)
		eng.RegisterMCP(mcpSrv)
		g.Go(func() error {
			s.logger.Info("portalheal: mcp on stdio")
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				return fmt.Errorf("portalheal: mcp: %w", err)
			}
			return nil
		})
	}

	if files := s.watchedFiles(); len(files) > 0 {
		w, err := config.NewWatcher(files, 0, s.logger)
		if err != nil {
			s.logger.Warn("portalheal: hot reload disabled", "error", err)
		} else {
			g.Go(func() error { return w.Run(ctx, func() { s.reload(ctx) }) })
		}
	}

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})
	return g.Wait()
}

func (s *Service) watchedFiles() []string {
	files := s.cfg.Files()
	if s.configPath != "" {
		files = append(files, s.configPath)
	}
	return files
}

// reload re-reads the configuration file and re-initializes the engine
// with the resulting catalog and the detection, probe, monitor, healer and
// notify sections. Browser, portal and server settings apply on restart.
// Failures keep the running engine.
func (s *Service) reload(ctx context.Context) {
	cfg := s.cfg
	if s.configPath != "" {
		next, err := config.LoadFile(s.configPath)
		if err != nil {
			s.logger.Warn("portalheal: reload config", "error", err)
			return
		}
		cfg = next
	}
	cat, err := LoadCatalog(ctx, cfg)
	if err != nil {
		s.logger.Warn("portalheal: reload catalog", "error", err)
		return
	}
	opts, err := EngineOptions(cfg)
	if err != nil {
		s.logger.Warn("portalheal: reload options", "error", err)
		return
	}

	s.mu.Lock()
	eng, tab := s.engine, s.tab
	s.mu.Unlock()
	if eng == nil {
		return
	}
	if tab != nil {
		opts = append(opts, WithNotifier(s.notifier(cfg, tab.Document())))
	}
	if err := eng.Reload(ctx, cat, opts...); err != nil {
		s.logger.Warn("portalheal: reload engine", "error", err)
	}
}

// Close destroys the engine and shuts Chrome down.
func (s *Service) Close() error {
	s.mu.Lock()
	eng, tab, mgr := s.engine, s.tab, s.mgr
	s.engine, s.tab, s.mgr = nil, nil, nil
	s.mu.Unlock()

	if eng != nil {
		eng.Destroy()
	}
	if tab != nil {
		tab.Close()
	}
	if mgr != nil {
		return mgr.Close()
	}
	return nil
}
