// Package monitor keeps layout flags live. Viewport resizes and child-list
// mutations under the main-content element are debounced into full probe
// runs.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/catalog"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/probe"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/resolver"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/sched"
)

// Default quiet windows.
const (
	DefaultResizeWindow   = 250 * time.Millisecond
	DefaultMutationWindow = 100 * time.Millisecond
)

// ErrRunning is returned by Start on a started monitor.
var ErrRunning = errors.New("monitor: already started")

// Config parameterizes a Monitor.
type Config struct {
	Source         Source
	Probes         *probe.Engine
	Scheduler      sched.Scheduler
	ResizeWindow   time.Duration
	MutationWindow time.Duration
	Logger         *slog.Logger
}

func (c *Config) defaults() {
	if c.Source == nil {
		c.Source = NopSource{}
	}
	if c.Scheduler == nil {
		c.Scheduler = sched.Real{}
	}
	if c.ResizeWindow <= 0 {
		c.ResizeWindow = DefaultResizeWindow
	}
	if c.MutationWindow <= 0 {
		c.MutationWindow = DefaultMutationWindow
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Monitor owns one resize listener, one mutation observer and their
// debounce timers.
type Monitor struct {
	cfg Config

	mu         sync.Mutex
	running    bool
	ctx        context.Context
	rc         *resolver.Context
	resize     *debouncer
	mutation   *debouncer
	stopResize func()
	disconnect func()
}

// New creates a Monitor.
func New(cfg Config) *Monitor {
	cfg.defaults()
	m := &Monitor{cfg: cfg}
	m.resize = newDebouncer(cfg.Scheduler, cfg.ResizeWindow, func() { m.run(probe.TriggerResize) })
	m.mutation = newDebouncer(cfg.Scheduler, cfg.MutationWindow, func() { m.run(probe.TriggerMutation) })
	return m
}

// Start registers the listeners for rc. The mutation observer is scoped to
// the main-content element only; if that role is unresolved only resizes
// are watched.
func (m *Monitor) Start(ctx context.Context, rc *resolver.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrRunning
	}

	stopResize, err := m.cfg.Source.OnResize(ctx, m.resize.trigger)
	if err != nil {
		return fmt.Errorf("monitor: resize listener: %w", err)
	}

	disconnect := func() {}
	if sel, ok := rc.Selector(catalog.RoleMainContent); ok {
		disconnect, err = m.cfg.Source.ObserveChildList(ctx, sel, m.mutation.trigger)
		if err != nil {
			stopResize()
			return fmt.Errorf("monitor: mutation observer: %w", err)
		}
	} else {
		m.cfg.Logger.Warn("monitor: main content unresolved, mutations not observed")
	}

	m.ctx = ctx
	m.rc = rc
	m.stopResize = stopResize
	m.disconnect = disconnect
	m.running = true
	m.cfg.Logger.Debug("monitor: started",
		"resize_window", m.cfg.ResizeWindow, "mutation_window", m.cfg.MutationWindow)
	return nil
}

// Stop removes the resize listener, disconnects the observer and cancels
// both pending debounce timers. It is idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.stopResize()
	m.disconnect()
	m.resize.cancel()
	m.mutation.cancel()
	m.stopResize, m.disconnect = nil, nil
	m.rc = nil
	m.running = false
	m.cfg.Logger.Debug("monitor: stopped")
}

// Running reports whether the monitor is started.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Pending reports which debounce timers are armed.
func (m *Monitor) Pending() (resize, mutation bool) {
	return m.resize.pending(), m.mutation.pending()
}

func (m *Monitor) run(trigger probe.Trigger) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	ctx, rc := m.ctx, m.rc
	m.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	m.cfg.Probes.Run(ctx, rc, trigger)
}
