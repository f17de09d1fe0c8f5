package portalheal

import (
	"log/slog"
	"time"

	"github.com/paulhshort/grid4-netsapiens-skin-sub000/idgen"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/catalog"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/heal"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/metrics"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/notify"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/sched"
)

type options struct {
	catalog        *catalog.Catalog
	threshold      float64
	tolerance      float64
	markerClass    string
	markerLink     string
	resizeWindow   time.Duration
	mutationWindow time.Duration
	maxRetries     int
	settleDelay    time.Duration
	strategies     []heal.Strategy
	healerDisabled bool
	notifier       notify.Notifier
	scheduler      sched.Scheduler
	ids            idgen.Generator
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

// Option configures an Engine.
type Option func(*options)

// WithCatalog sets the selector catalog. The built-in catalog is used
// otherwise.
func WithCatalog(c *Catalog) Option {
	return func(o *options) { o.catalog = c }
}

// WithThreshold sets the key-role coverage a profile needs to match.
func WithThreshold(t float64) Option {
	return func(o *options) { o.threshold = t }
}

// WithTolerance sets the centering tolerance in pixels.
func WithTolerance(px float64) Option {
	return func(o *options) { o.tolerance = px }
}

// WithMarkers sets the enhancement marker class and stylesheet link selector
// used by the hasGrid4Styles probe.
func WithMarkers(class, link string) Option {
	return func(o *options) { o.markerClass, o.markerLink = class, link }
}

// WithDebounce sets the quiet windows for resize and mutation bursts.
func WithDebounce(resize, mutation time.Duration) Option {
	return func(o *options) { o.resizeWindow, o.mutationWindow = resize, mutation }
}

// WithMaxRetries bounds the correction cascade.
func WithMaxRetries(n int) Option {
	return func(o *options) { o.maxRetries = n }
}

// WithSettleDelay sets the wait between injecting a strategy and validating it.
func WithSettleDelay(d time.Duration) Option {
	return func(o *options) { o.settleDelay = d }
}

// WithStrategies sets the cascade order.
func WithStrategies(s ...Strategy) Option {
	return func(o *options) { o.strategies = s }
}

// WithoutHealer disables the self-healing corrector. Detection, probes and
// monitoring still run.
func WithoutHealer() Option {
	return func(o *options) { o.healerDisabled = true }
}

func withHealerDisabled(off bool) Option {
	return func(o *options) { o.healerDisabled = off }
}

// WithNotifier sets the sink for user-visible correction messages.
func WithNotifier(n Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithScheduler replaces the timer source.
func WithScheduler(s sched.Scheduler) Option {
	return func(o *options) { o.scheduler = s }
}

// WithIDs sets the context ID generator.
func WithIDs(g idgen.Generator) Option {
	return func(o *options) { o.ids = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}
