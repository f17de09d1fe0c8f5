// Package probe evaluates named layout facts against the resolved context.
//
// Full runs replace the published Flags snapshot in one pointer swap;
// single-probe revalidation copies the snapshot and overwrites one entry.
// Runs are serialized, so resize- and mutation-triggered runs cannot
// interleave their writes. A failing probe degrades to false (or 0) and is
// logged as ProbeExecutionError; nothing propagates to callers.
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/dom"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/metrics"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/resolver"
)

// Breakpoints in CSS pixels.
const (
	TabletMinWidth  = 768
	DesktopMinWidth = 1024
)

// Defaults.
const (
	DefaultTolerancePx = 3
	DefaultMarkerClass = "grid4-enhanced"
	DefaultMarkerLink  = "link[href*='grid4']"
)

// Trigger labels what caused a full run.
type Trigger string

const (
	TriggerInit     Trigger = "init"
	TriggerResize   Trigger = "resize"
	TriggerMutation Trigger = "mutation"
	TriggerManual   Trigger = "manual"
)

// Config parameterizes an Engine.
type Config struct {
	Doc         dom.Document
	TolerancePx float64
	// MarkerClass on the root container signals active enhancements.
	MarkerClass string
	// MarkerLink selects the enhancement stylesheet link.
	MarkerLink string
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	// OnRun is called after every full run with the new snapshot.
	OnRun func(Trigger, Flags)
}

func (c *Config) defaults() {
	if c.TolerancePx <= 0 {
		c.TolerancePx = DefaultTolerancePx
	}
	if c.MarkerClass == "" {
		c.MarkerClass = DefaultMarkerClass
	}
	if c.MarkerLink == "" {
		c.MarkerLink = DefaultMarkerLink
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type handler func(ctx context.Context, e *Engine, rc *resolver.Context) (Value, error)

var table = map[Name]handler{
	NavVerticallyCentered: navVerticallyCentered,
	SidebarLayout:         sidebarLayout,
	Mobile:                viewportClass(func(w float64) bool { return w < TabletMinWidth }),
	Tablet:                viewportClass(func(w float64) bool { return w >= TabletMinWidth && w < DesktopMinWidth }),
	Desktop:               viewportClass(func(w float64) bool { return w >= DesktopMinWidth }),
	ViewportWidth:         viewportWidth,
	Grid4Styles:           grid4Styles,
}

// Engine runs probes and holds the latest Flags.
type Engine struct {
	cfg   Config
	runMu sync.Mutex
	flags atomic.Pointer[Flags]
}

// New creates an Engine.
func New(cfg Config) *Engine {
	cfg.defaults()
	e := &Engine{cfg: cfg}
	empty := Flags{}
	e.flags.Store(&empty)
	return e
}

// Tolerance returns the centering tolerance in pixels.
func (e *Engine) Tolerance() float64 { return e.cfg.TolerancePx }

// RunAll evaluates every probe and publishes the result.
func (e *Engine) RunAll(ctx context.Context, rc *resolver.Context) Flags {
	return e.Run(ctx, rc, TriggerManual)
}

// Run is RunAll with an explicit trigger label.
func (e *Engine) Run(ctx context.Context, rc *resolver.Context, trigger Trigger) Flags {
	e.runMu.Lock()
	start := time.Now()
	next := make(Flags, len(table))
	for _, name := range Names() {
		next[name] = e.exec(ctx, rc, name)
	}
	if ctx.Err() != nil {
		// The owner was torn down mid-run; keep the reset snapshot.
		e.runMu.Unlock()
		e.cfg.Logger.Debug("probe: run discarded", "trigger", trigger, "error", ctx.Err())
		return next
	}
	e.flags.Store(&next)
	e.runMu.Unlock()

	e.cfg.Metrics.ObserveProbeRun(string(trigger), time.Since(start))
	e.cfg.Logger.Debug("probe: run complete", "trigger", trigger, "flags", len(next))
	if e.cfg.OnRun != nil {
		e.cfg.OnRun(trigger, next)
	}
	return next
}

// Revalidate re-runs one probe and overwrites only its entry.
func (e *Engine) Revalidate(ctx context.Context, rc *resolver.Context, name Name) bool {
	return e.RevalidateValue(ctx, rc, name).Bool()
}

// RevalidateValue is Revalidate returning the raw value.
func (e *Engine) RevalidateValue(ctx context.Context, rc *resolver.Context, name Name) Value {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	v := e.exec(ctx, rc, name)
	if ctx.Err() != nil {
		return v
	}
	next := (*e.flags.Load()).clone()
	next[name] = v
	e.flags.Store(&next)
	return v
}

// Flag returns the latest value of one probe.
func (e *Engine) Flag(name Name) (Value, bool) {
	v, ok := (*e.flags.Load())[name]
	return v, ok
}

// Flags returns the latest snapshot. Callers must not modify it.
func (e *Engine) Flags() Flags {
	return *e.flags.Load()
}

// Reset drops every flag.
func (e *Engine) Reset() {
	e.runMu.Lock()
	empty := Flags{}
	e.flags.Store(&empty)
	e.runMu.Unlock()
}

// exec runs one probe behind a panic and error guard.
func (e *Engine) exec(ctx context.Context, rc *resolver.Context, name Name) (v Value) {
	fallback := Bool(false)
	if name == ViewportWidth {
		fallback = Number(0)
	}
	defer func() {
		if r := recover(); r != nil {
			e.fail(name, fmt.Errorf("panic: %v", r))
			v = fallback
		}
	}()

	h, ok := table[name]
	if !ok {
		e.fail(name, ErrUnknownProbe)
		return fallback
	}
	v, err := h(ctx, e, rc)
	if err != nil {
		e.fail(name, err)
		return fallback
	}
	return v
}

func (e *Engine) fail(name Name, err error) {
	e.cfg.Logger.Warn("probe: execution failed", "kind", "ProbeExecutionError", "probe", name, "error", err)
	e.cfg.Metrics.IncProbeError(string(name))
}
