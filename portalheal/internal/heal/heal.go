// Package heal corrects navigation vertical misalignment. When the
// centering probe reports false it injects one strategy at a time under a
// single marker style element, waits for layout to settle, revalidates
// the probe, and either stops on success or advances. The cascade is
// bounded by MaxRetries and terminal until ForceReapply.
package heal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/catalog"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/dom"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/metrics"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/notify"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/probe"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/resolver"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/sched"
)

// Defaults.
const (
	DefaultMaxRetries  = 3
	DefaultSettleDelay = 100 * time.Millisecond
)

// ErrNotReady is logged when ForceReapply runs before detection.
var ErrNotReady = errors.New("heal: context not ready")

// Config parameterizes a Corrector.
type Config struct {
	Doc         dom.Document
	Probes      *probe.Engine
	Scheduler   sched.Scheduler
	Notifier    notify.Notifier
	Strategies  []Strategy
	MaxRetries  int
	SettleDelay time.Duration
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

func (c *Config) defaults() {
	if c.Scheduler == nil {
		c.Scheduler = sched.Real{}
	}
	if len(c.Strategies) == 0 {
		c.Strategies = Strategies()
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Notifier == nil {
		c.Notifier = notify.Log{Logger: c.Logger}
	}
}

// Status is a diagnostic snapshot.
type Status struct {
	State              string `json:"state"`
	IsApplied          bool   `json:"isApplied"`
	AppliedMethod      string `json:"appliedMethod,omitempty"`
	RetryCount         int    `json:"retryCount"`
	MethodIndex        int    `json:"methodIndex"`
	ContextReady       bool   `json:"contextReady"`
	KeyElementsPresent bool   `json:"keyElementsPresent"`
}

// Corrector runs the cascade. Every entry point (readiness, flag updates,
// timer firings, ForceReapply) is serialized on one mutex.
type Corrector struct {
	cfg    Config
	policy policy

	mu    sync.Mutex
	ctx   context.Context
	rc    *resolver.Context
	state State
	corr  *Correction
	timer sched.Timer
}

// New creates a Corrector in Idle.
func New(cfg Config) *Corrector {
	cfg.defaults()
	return &Corrector{
		cfg:    cfg,
		policy: policy{strategies: cfg.Strategies, maxRetries: cfg.MaxRetries},
		ctx:    context.Background(),
	}
}

// OnReady binds the corrector to a resolved context and checks the current
// centering flag, starting the cascade when it is false.
func (c *Corrector) OnReady(ctx context.Context, rc *resolver.Context) {
	c.mu.Lock()
	c.ctx, c.rc = ctx, rc
	c.mu.Unlock()

	v, ok := c.cfg.Probes.Flag(probe.NavVerticallyCentered)
	if !ok {
		c.dispatch(measured{centered: c.cfg.Probes.Revalidate(ctx, rc, probe.NavVerticallyCentered)})
		return
	}
	c.dispatch(measured{centered: v.Bool()})
}

// ObserveFlags reacts to a full probe run. Only Idle acts on it.
func (c *Corrector) ObserveFlags(flags probe.Flags) {
	v, ok := flags[probe.NavVerticallyCentered]
	if !ok {
		return
	}
	c.mu.Lock()
	ready := c.rc != nil && c.rc.Ready
	idle := c.state.Phase == Idle
	c.mu.Unlock()
	if ready && idle {
		c.dispatch(measured{centered: v.Bool()})
	}
}

// ForceReapply cancels any pending attempt, removes the marker, resets the
// correction and restarts from Idle. Without a ready context it only logs.
func (c *Corrector) ForceReapply() {
	c.mu.Lock()
	ready := c.rc != nil && c.rc.Ready
	c.mu.Unlock()
	if !ready {
		c.cfg.Logger.Warn("heal: force reapply ignored", "error", ErrNotReady)
		return
	}
	c.cfg.Logger.Info("heal: force reapply")
	c.dispatch(reset{})
}

// Detach cancels pending timers, removes the marker and forgets the
// context. The corrector returns to Idle with no correction.
func (c *Corrector) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelTimerLocked()
	if c.rc != nil {
		if err := c.cfg.Doc.RemoveStyle(c.ctx, MarkerID); err != nil {
			c.cfg.Logger.Debug("heal: remove marker on detach", "error", err)
		}
	}
	c.state = State{Phase: Idle, Epoch: c.state.Epoch + 1}
	c.corr = nil
	c.rc = nil
}

// Phase returns the current state tag.
func (c *Corrector) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Phase
}

// Correction returns a copy of the correction progress, or nil.
func (c *Corrector) Correction() *Correction {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.corr == nil {
		return nil
	}
	cp := *c.corr
	return &cp
}

// Status returns a diagnostic snapshot.
func (c *Corrector) Status(ctx context.Context) Status {
	c.mu.Lock()
	st := Status{State: c.state.Phase.String()}
	if c.corr != nil {
		st.IsApplied = c.corr.IsApplied
		st.AppliedMethod = c.corr.AppliedMethod
		st.RetryCount = c.corr.RetryCount
		st.MethodIndex = c.corr.MethodIndex
	}
	rc := c.rc
	c.mu.Unlock()

	st.ContextReady = rc != nil && rc.Ready
	if st.ContextReady {
		nav, _ := rc.Selector(catalog.RoleNavigationContainer)
		main, _ := rc.Selector(catalog.RoleMainContent)
		st.KeyElementsPresent = dom.Present(ctx, c.cfg.Doc, nav) && dom.Present(ctx, c.cfg.Doc, main)
	}
	return st
}

// dispatch feeds ev through the reducer and runs the effects. A measure
// effect produces the next event, so one dispatch may walk several
// transitions. Events arriving without a ready context are dropped.
// Notifications are delivered after the lock is released.
func (c *Corrector) dispatch(ev event) {
	var notices []notice
	func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		defer func() {
			if r := recover(); r != nil {
				c.cfg.Logger.Error("heal: recovered", "state", c.state.Phase.String(), "panic", fmt.Sprint(r))
			}
		}()
		if c.rc == nil || !c.rc.Ready {
			// Detached between the caller's readiness check and here.
			c.cfg.Logger.Debug("heal: event dropped without a context", "event", fmt.Sprintf("%T", ev))
			return
		}

		queue := []event{ev}
		for len(queue) > 0 {
			next := queue[0]
			queue = queue[1:]

			before := c.state.Phase
			var fx []effect
			c.state, c.corr, fx = reduce(c.state, c.corr, next, c.policy)
			if c.state.Phase != before {
				c.cfg.Logger.Debug("heal: transition", "from", before.String(), "to", c.state.Phase.String())
			}
			for _, e := range fx {
				if follow := c.execLocked(e, &notices); follow != nil {
					queue = append(queue, follow)
				}
			}
		}
	}()

	ctx := c.context()
	for _, n := range notices {
		notify.Deliver(ctx, c.cfg.Notifier, c.cfg.Logger, n.msg, n.level)
	}
}

func (c *Corrector) execLocked(e effect, notices *[]notice) event {
	switch e := e.(type) {
	case cancelTimer:
		c.cancelTimerLocked()

	case inject:
		nav, _ := c.rc.Selector(catalog.RoleNavigationContainer)
		main, _ := c.rc.Selector(catalog.RoleMainContent)
		c.cfg.Logger.Info("heal: trying strategy", "method", e.strategy, "retry", c.corr.RetryCount)
		if err := c.cfg.Doc.InjectStyle(c.ctx, MarkerID, string(e.strategy), e.strategy.CSS(nav, main)); err != nil {
			// validation after the settle delay decides the attempt
			c.cfg.Logger.Warn("heal: inject failed", "method", e.strategy, "error", err)
		}

	case removeMarker:
		if err := c.cfg.Doc.RemoveStyle(c.ctx, MarkerID); err != nil {
			c.cfg.Logger.Warn("heal: remove marker failed", "error", err)
		}

	case scheduleSettle:
		epoch := e.epoch
		c.timer = c.cfg.Scheduler.AfterFunc(c.cfg.SettleDelay, func() {
			c.dispatch(settled{epoch: epoch})
		})

	case measure:
		return measured{centered: c.cfg.Probes.Revalidate(c.ctx, c.rc, probe.NavVerticallyCentered)}

	case attempted:
		result := "failure"
		if e.ok {
			result = "success"
		} else {
			c.cfg.Logger.Warn("heal: strategy did not center navigation",
				"kind", "CorrectionMethodFailure", "method", e.strategy, "retry", c.corr.RetryCount)
		}
		c.cfg.Metrics.IncAttempt(string(e.strategy), result)

	case notice:
		c.cfg.Metrics.IncOutcome(e.final)
		if e.final == "exhausted" {
			c.cfg.Logger.Error("heal: all strategies failed",
				"kind", "CorrectionExhausted", "retries", c.corr.RetryCount)
		} else {
			c.cfg.Logger.Info("heal: navigation centered", "method", c.corr.AppliedMethod)
		}
		*notices = append(*notices, e)
	}
	return nil
}

func (c *Corrector) cancelTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Corrector) context() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}
