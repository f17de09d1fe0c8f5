// Package portalheal detects which variant of the portal markup is rendered,
// keeps a set of layout facts about it current, and corrects navigation
// misalignment with a bounded cascade of CSS strategies.
//
// An Engine is built once per page with New and driven through Init and
// Destroy. Everything it reads comes from a dom.Document; change events come
// from a monitor.Source.
package portalheal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/catalog"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/dom"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/heal"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/monitor"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/notify"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/probe"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/resolver"
)

// Types re-exported for callers outside this module.
type (
	Document  = dom.Document
	Source    = monitor.Source
	Catalog   = catalog.Catalog
	Resolved  = resolver.Context
	Role      = catalog.Role
	ProbeName = probe.Name
	Value     = probe.Value
	Flags     = probe.Flags
	Strategy  = heal.Strategy
	Status    = heal.Status
	Notifier  = notify.Notifier
	Level     = notify.Level
)

var (
	ErrNoDocument  = errors.New("portalheal: no document")
	ErrNotReady    = errors.New("portalheal: context not ready")
	ErrInitialized = errors.New("portalheal: already initialized")
)

// Info is the diagnostic view of the resolved context.
type Info struct {
	ID             string          `json:"id,omitempty"`
	Fingerprint    string          `json:"fingerprint"`
	MatchedProfile string          `json:"matchedProfile,omitempty"`
	Coverage       float64         `json:"coverage"`
	Roles          map[Role]string `json:"roles"`
	Flags          Flags           `json:"flags"`
	Ready          bool            `json:"ready"`
}

// Engine wires the resolver, probe engine, change monitor and corrector
// for one document.
//
// Init, Destroy and Reload are serialized. Signal callbacks run on the
// goroutine that completed the work and must not call them.
type Engine struct {
	doc    Document
	src    Source
	logger *slog.Logger

	parts atomic.Pointer[components]

	lifeMu   sync.Mutex
	opts     options
	resolver *resolver.Resolver

	stateMu sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
	rc      *resolver.Context

	subMu        sync.RWMutex
	onReady      []func(*Engine)
	onRevalidate []func(Flags)
}

// components are rebuilt together whenever the options change.
type components struct {
	probes  *probe.Engine
	monitor *monitor.Monitor
	healer  *heal.Corrector
}

// New builds an Engine over doc. src may be nil, in which case flags are
// only refreshed on demand.
func New(doc Document, src Source, opts ...Option) *Engine {
	e := &Engine{doc: doc, src: src, ctx: context.Background()}
	e.configure(options{}, opts)
	e.logger = e.opts.logger
	return e
}

// configure applies opts over base and rebuilds the resolver and every
// component. The engine must not be initialized. The engine's own logger
// is fixed by New.
func (e *Engine) configure(base options, opts []Option) {
	o := base
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.notifier == nil {
		o.notifier = notify.Log{Logger: o.logger}
	}
	e.opts = o
	e.resolver = e.newResolver(o.catalog)

	c := &components{}
	c.probes = probe.New(probe.Config{
		Doc:         e.doc,
		TolerancePx: o.tolerance,
		MarkerClass: o.markerClass,
		MarkerLink:  o.markerLink,
		Logger:      o.logger,
		Metrics:     o.metrics,
		OnRun:       e.onRun,
	})
	c.monitor = monitor.New(monitor.Config{
		Source:         e.src,
		Probes:         c.probes,
		Scheduler:      o.scheduler,
		ResizeWindow:   o.resizeWindow,
		MutationWindow: o.mutationWindow,
		Logger:         o.logger,
	})
	if !o.healerDisabled {
		c.healer = heal.New(heal.Config{
			Doc:         e.doc,
			Probes:      c.probes,
			Scheduler:   o.scheduler,
			Notifier:    o.notifier,
			Strategies:  o.strategies,
			MaxRetries:  o.maxRetries,
			SettleDelay: o.settleDelay,
			Logger:      o.logger,
			Metrics:     o.metrics,
		})
	}
	e.parts.Store(c)
}

func (e *Engine) newResolver(c *Catalog) *resolver.Resolver {
	return resolver.New(resolver.Config{
		Catalog:   c,
		Threshold: e.opts.threshold,
		IDs:       e.opts.ids,
		Logger:    e.opts.logger,
		Metrics:   e.opts.metrics,
	})
}

// OnReady registers fn to run after each successful Init.
func (e *Engine) OnReady(fn func(*Engine)) {
	e.subMu.Lock()
	e.onReady = append(e.onReady, fn)
	e.subMu.Unlock()
}

// OnRevalidate registers fn to run after every full probe run.
func (e *Engine) OnRevalidate(fn func(Flags)) {
	e.subMu.Lock()
	e.onRevalidate = append(e.onRevalidate, fn)
	e.subMu.Unlock()
}

// Init detects the context, runs every probe, starts change monitoring and
// hands the context to the corrector. The readiness signal follows.
func (e *Engine) Init(ctx context.Context) error {
	if e.doc == nil {
		return ErrNoDocument
	}
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	return e.initLocked(ctx)
}

func (e *Engine) initLocked(ctx context.Context) error {
	if e.current() != nil {
		return ErrInitialized
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("portalheal: init: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	rc := e.resolver.Detect(runCtx, e.doc)

	e.stateMu.Lock()
	e.ctx, e.cancel, e.rc = runCtx, cancel, rc
	e.stateMu.Unlock()

	c := e.parts.Load()
	c.probes.Run(runCtx, rc, probe.TriggerInit)
	if err := c.monitor.Start(runCtx, rc); err != nil {
		e.logger.Warn("portalheal: change monitor unavailable", "error", err)
	}
	if c.healer != nil {
		c.healer.OnReady(runCtx, rc)
	}

	e.logger.Info("portalheal: ready",
		"context", rc.ID,
		"profile", rc.MatchedProfile,
		"fingerprint", rc.Fingerprint,
		"coverage", rc.Coverage)

	e.subMu.RLock()
	subs := make([]func(*Engine), len(e.onReady))
	copy(subs, e.onReady)
	e.subMu.RUnlock()
	for _, fn := range subs {
		fn(e)
	}
	return nil
}

// Destroy stops monitoring, removes any injected correction and forgets the
// context. It is a no-op on an engine that is not initialized.
func (e *Engine) Destroy() {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	e.destroyLocked()
}

func (e *Engine) destroyLocked() {
	e.stateMu.Lock()
	rc, cancel := e.rc, e.cancel
	e.rc, e.cancel, e.ctx = nil, nil, context.Background()
	e.stateMu.Unlock()
	if rc == nil {
		return
	}

	c := e.parts.Load()
	c.monitor.Stop()
	if c.healer != nil {
		c.healer.Detach()
	}
	cancel()
	c.probes.Reset()
	e.logger.Info("portalheal: destroyed", "context", rc.ID)
}

// Reload swaps the catalog and applies opts over the options the engine
// was built with. The probe engine, change monitor and corrector are
// rebuilt. An initialized engine is destroyed and initialized again.
func (e *Engine) Reload(ctx context.Context, c *Catalog, opts ...Option) error {
	if c == nil {
		c = catalog.Default()
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("portalheal: reload: %w", err)
	}

	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	wasReady := e.current() != nil
	e.destroyLocked()
	e.configure(e.opts, append(append([]Option(nil), opts...), WithCatalog(c)))
	e.logger.Info("portalheal: reloaded", "profiles", len(c.Profiles))
	if !wasReady {
		return nil
	}
	return e.initLocked(ctx)
}

func (e *Engine) onRun(_ probe.Trigger, flags probe.Flags) {
	if h := e.parts.Load().healer; h != nil {
		h.ObserveFlags(flags)
	}
	e.subMu.RLock()
	subs := make([]func(Flags), len(e.onRevalidate))
	copy(subs, e.onRevalidate)
	e.subMu.RUnlock()
	for _, fn := range subs {
		fn(flags)
	}
}

func (e *Engine) current() *resolver.Context {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.rc
}

func (e *Engine) snapshot() (context.Context, *resolver.Context) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.ctx, e.rc
}

// Context returns the resolved context, or nil before Init.
func (e *Engine) Context() *Resolved { return e.current() }

// Ready reports whether detection has completed for the current lifetime.
func (e *Engine) Ready() bool {
	rc := e.current()
	return rc != nil && rc.Ready
}

// Selector returns the resolved selector for role. Before Init, or for a
// role the context does not map, it returns ("", false).
func (e *Engine) Selector(role Role) (string, bool) {
	rc := e.current()
	if rc == nil {
		e.logger.Warn("portalheal: selector requested before ready", "role", role)
		return "", false
	}
	sel, ok := rc.Selector(role)
	if !ok {
		e.logger.Debug("portalheal: element not found", "role", role)
	}
	return sel, ok
}

// LayoutFlag returns the latest value of a probe.
func (e *Engine) LayoutFlag(name ProbeName) (Value, bool) {
	return e.parts.Load().probes.Flag(name)
}

// ContextInfo returns the fingerprint, resolved roles, current flags and
// readiness.
func (e *Engine) ContextInfo() Info {
	info := Info{Roles: map[Role]string{}, Flags: Flags{}}
	for name, v := range e.parts.Load().probes.Flags() {
		info.Flags[name] = v
	}
	rc := e.current()
	if rc == nil {
		return info
	}
	info.ID = rc.ID
	info.Fingerprint = rc.Fingerprint
	info.MatchedProfile = rc.MatchedProfile
	info.Coverage = rc.Coverage
	info.Ready = rc.Ready
	for role, sel := range rc.Selectors {
		info.Roles[role] = sel
	}
	return info
}

// RevalidateProbe re-runs one probe and returns its boolean result. Before
// Init it returns false.
func (e *Engine) RevalidateProbe(name ProbeName) bool {
	return e.RevalidateValue(name).Bool()
}

// RevalidateValue is RevalidateProbe returning the raw value.
func (e *Engine) RevalidateValue(name ProbeName) Value {
	ctx, rc := e.snapshot()
	if rc == nil {
		e.logger.Warn("portalheal: revalidate before ready", "probe", name)
		return probe.Bool(false)
	}
	return e.parts.Load().probes.RevalidateValue(ctx, rc, name)
}

// RefreshFlags runs every probe and emits the re-validation signal.
func (e *Engine) RefreshFlags() (Flags, error) {
	ctx, rc := e.snapshot()
	if rc == nil {
		return nil, ErrNotReady
	}
	return e.parts.Load().probes.RunAll(ctx, rc), nil
}

// ForceReapply restarts the correction cascade from scratch.
func (e *Engine) ForceReapply() {
	h := e.parts.Load().healer
	if h == nil {
		e.logger.Warn("portalheal: force reapply with healer disabled")
		return
	}
	h.ForceReapply()
}

// Status reports the correction state and whether the key elements are
// present.
func (e *Engine) Status() Status {
	ctx, rc := e.snapshot()
	if h := e.parts.Load().healer; h != nil {
		return h.Status(ctx)
	}
	st := Status{State: "disabled", ContextReady: rc != nil && rc.Ready}
	if st.ContextReady {
		nav, _ := rc.Selector(catalog.RoleNavigationContainer)
		main, _ := rc.Selector(catalog.RoleMainContent)
		st.KeyElementsPresent = dom.Present(ctx, e.doc, nav) && dom.Present(ctx, e.doc, main)
	}
	return st
}
