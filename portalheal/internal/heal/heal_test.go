package heal

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/dom"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/metrics"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/notify"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/probe"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/resolver"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/sched"
)

const page = `<html><head></head><body><div class="container-fluid">
<div class="navbar"></div><div class="content"></div></div></body></html>`

type notes struct {
	mu     sync.Mutex
	msgs   []string
	levels []notify.Level
}

func (n *notes) Notify(_ context.Context, msg string, level notify.Level) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	n.levels = append(n.levels, level)
	return nil
}

func (n *notes) count(level notify.Level) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, l := range n.levels {
		if l == level {
			c++
		}
	}
	return c
}

type rig struct {
	doc     *dom.Static
	clock   *sched.Manual
	probes  *probe.Engine
	corr    *Corrector
	rc      *resolver.Context
	notes   *notes
	metrics *metrics.Metrics
	// injected records every strategy written to the marker.
	injected []string
}

// newRig places nav 10px above content. fixes lists methods that center
// the navigation once injected.
func newRig(t *testing.T, fixes ...Strategy) *rig {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := &rig{doc: dom.NewStatic(page), clock: sched.NewManual(), notes: &notes{},
		metrics: metrics.New(prometheus.NewRegistry())}

	offset := func(navMid float64) {
		_ = r.doc.SetRect(".navbar", dom.Rect{Top: navMid - 20, Height: 40, Width: 900})
	}
	offset(400)
	_ = r.doc.SetRect(".content", dom.Rect{Top: 310, Height: 200, Width: 900})
	r.doc.OnStyleChange(func(s *dom.Static) {
		st, ok := s.Style(MarkerID)
		if !ok {
			offset(400)
			return
		}
		r.injected = append(r.injected, st.Method)
		for _, f := range fixes {
			if string(f) == st.Method {
				offset(410)
				return
			}
		}
		offset(400)
	})

	r.rc = resolver.New(resolver.Config{Logger: logger}).Detect(context.Background(), r.doc)
	r.probes = probe.New(probe.Config{Doc: r.doc, Logger: logger})
	r.corr = New(Config{
		Doc: r.doc, Probes: r.probes, Scheduler: r.clock, Notifier: r.notes,
		Logger: logger, Metrics: r.metrics,
	})
	return r
}

func (r *rig) start() {
	r.probes.Run(context.Background(), r.rc, probe.TriggerInit)
	r.corr.OnReady(context.Background(), r.rc)
}

func (r *rig) settle() { r.clock.Advance(DefaultSettleDelay) }

func TestCorrector_SecondStrategySucceeds(t *testing.T) {
	r := newRig(t, Grid)
	r.start()

	if v, _ := r.probes.Flag(probe.NavVerticallyCentered); v.Bool() {
		t.Fatal("fixture should start misaligned")
	}
	if r.corr.Phase() != Trying {
		t.Fatalf("phase = %s, want trying", r.corr.Phase())
	}
	st, _ := r.doc.Style(MarkerID)
	if st.Method != "flexbox" {
		t.Fatalf("first method = %q", st.Method)
	}

	r.clock.Advance(DefaultSettleDelay - time.Millisecond)
	if r.corr.Phase() != Trying {
		t.Fatal("validated before the settle delay")
	}
	r.clock.Advance(time.Millisecond)
	if r.corr.Phase() != Trying {
		t.Fatalf("phase = %s after flexbox failed", r.corr.Phase())
	}
	st, _ = r.doc.Style(MarkerID)
	if st.Method != "grid" {
		t.Fatalf("second method = %q", st.Method)
	}

	r.settle()
	if r.corr.Phase() != Succeeded {
		t.Fatalf("phase = %s, want succeeded", r.corr.Phase())
	}
	s := r.corr.Status(context.Background())
	if !s.IsApplied || s.AppliedMethod != "grid" || s.RetryCount != 0 {
		t.Fatalf("status = %+v", s)
	}
	if !s.ContextReady || !s.KeyElementsPresent {
		t.Fatalf("status = %+v", s)
	}
	if r.notes.count(notify.LevelSuccess) != 1 || r.notes.count(notify.LevelError) != 0 {
		t.Fatalf("notes = %v", r.notes.msgs)
	}
	if !strings.Contains(r.notes.msgs[0], "grid") {
		t.Fatalf("success message = %q", r.notes.msgs[0])
	}
	if styles := r.doc.Styles(); len(styles) != 1 || styles[0].Method != "grid" {
		t.Fatalf("styles = %+v", styles)
	}
	if got := testutil.ToFloat64(r.metrics.CorrectionAttempts.WithLabelValues("flexbox", "failure")); got != 1 {
		t.Errorf("flexbox failures = %v", got)
	}

	// Terminal: nothing else is scheduled or injected.
	r.clock.Advance(time.Second)
	if len(r.injected) != 2 {
		t.Fatalf("injected = %v", r.injected)
	}
}

func TestCorrector_ExhaustsAfterMaxRetries(t *testing.T) {
	r := newRig(t)
	r.start()
	for i := 0; i < 10; i++ {
		r.settle()
	}

	if r.corr.Phase() != Exhausted {
		t.Fatalf("phase = %s, want exhausted", r.corr.Phase())
	}
	want := []string{"flexbox", "grid", "transform", "table-cell"}
	if strings.Join(r.injected, ",") != strings.Join(want, ",") {
		t.Fatalf("injected = %v, want %v", r.injected, want)
	}
	s := r.corr.Status(context.Background())
	if s.IsApplied || s.AppliedMethod != "" || s.RetryCount != DefaultMaxRetries {
		t.Fatalf("status = %+v", s)
	}
	if r.notes.count(notify.LevelError) != 1 || r.notes.count(notify.LevelSuccess) != 0 {
		t.Fatalf("notes = %v", r.notes.msgs)
	}
	if len(r.doc.Styles()) != 0 {
		t.Fatalf("marker left behind: %+v", r.doc.Styles())
	}
	if r.clock.Pending() != 0 {
		t.Fatalf("timers pending after exhaustion: %d", r.clock.Pending())
	}

	// New negative flags do not restart a terminal cascade.
	r.corr.ObserveFlags(r.probes.RunAll(context.Background(), r.rc))
	r.settle()
	if len(r.injected) != 4 {
		t.Fatalf("cascade restarted: %v", r.injected)
	}
}

func TestCorrector_MaxRetriesBoundsShorterThanList(t *testing.T) {
	r := newRig(t)
	r.corr = New(Config{Doc: r.doc, Probes: r.probes, Scheduler: r.clock, Notifier: r.notes,
		MaxRetries: 1, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	r.start()
	for i := 0; i < 5; i++ {
		r.settle()
	}
	if r.corr.Phase() != Exhausted || len(r.injected) != 2 {
		t.Fatalf("phase=%s injected=%v", r.corr.Phase(), r.injected)
	}
	if c := r.corr.Correction(); c.RetryCount != 1 {
		t.Fatalf("retryCount = %d", c.RetryCount)
	}
}

func TestCorrector_ForceReapplyAfterExhausted(t *testing.T) {
	var fixed bool
	r := newRig(t)
	r.doc.OnStyleChange(func(s *dom.Static) {
		st, ok := s.Style(MarkerID)
		if ok {
			r.injected = append(r.injected, st.Method)
		}
		mid := 400.0
		if ok && fixed && st.Method == "transform" {
			mid = 410
		}
		_ = s.SetRect(".navbar", dom.Rect{Top: mid - 20, Height: 40, Width: 900})
	})
	r.start()
	for i := 0; i < 10; i++ {
		r.settle()
	}
	if r.corr.Phase() != Exhausted {
		t.Fatalf("phase = %s", r.corr.Phase())
	}

	fixed = true
	r.injected = nil
	r.corr.ForceReapply()
	if c := r.corr.Correction(); c.RetryCount != 0 || c.MethodIndex != 0 {
		t.Fatalf("correction not reset: %+v", c)
	}
	if r.corr.Phase() != Trying {
		t.Fatalf("phase = %s, want a fresh cascade", r.corr.Phase())
	}
	for i := 0; i < 3; i++ {
		r.settle()
	}
	if r.corr.Phase() != Succeeded {
		t.Fatalf("phase = %s", r.corr.Phase())
	}
	if strings.Join(r.injected, ",") != "flexbox,grid,transform" {
		t.Fatalf("injected = %v", r.injected)
	}
}

func TestCorrector_ForceReapplyCancelsPendingSettle(t *testing.T) {
	r := newRig(t, Grid)
	r.start()
	if r.clock.Pending() != 1 {
		t.Fatalf("pending = %d", r.clock.Pending())
	}

	// Layout got fixed externally in the meantime.
	r.doc.OnStyleChange(nil)
	_ = r.doc.SetRect(".navbar", dom.Rect{Top: 390, Height: 40, Width: 900})
	r.corr.ForceReapply()

	if r.corr.Phase() != Idle {
		t.Fatalf("phase = %s, want idle when already centered", r.corr.Phase())
	}
	if r.clock.Pending() != 0 {
		t.Fatalf("stale settle timer still pending")
	}
	if _, ok := r.doc.Style(MarkerID); ok {
		t.Fatal("marker not removed")
	}
	r.clock.Advance(time.Second)
	if r.corr.Phase() != Idle || len(r.notes.msgs) != 0 {
		t.Fatalf("late validation fired: phase=%s notes=%v", r.corr.Phase(), r.notes.msgs)
	}
}

func TestCorrector_ForceReapplyBeforeReady(t *testing.T) {
	r := newRig(t)
	r.corr.ForceReapply()
	if r.corr.Phase() != Idle || r.corr.Correction() != nil {
		t.Fatal("force reapply acted without a context")
	}
	if s := r.corr.Status(context.Background()); s.ContextReady || s.KeyElementsPresent {
		t.Fatalf("status = %+v", s)
	}
}

func TestCorrector_CenteredPageStaysIdle(t *testing.T) {
	r := newRig(t)
	_ = r.doc.SetRect(".navbar", dom.Rect{Top: 392, Height: 40, Width: 900})
	r.start()
	if r.corr.Phase() != Idle || r.corr.Correction() != nil {
		t.Fatalf("phase = %s correction = %+v", r.corr.Phase(), r.corr.Correction())
	}

	// A later run reporting misalignment starts the cascade.
	_ = r.doc.SetRect(".navbar", dom.Rect{Top: 380, Height: 40, Width: 900})
	r.corr.ObserveFlags(r.probes.RunAll(context.Background(), r.rc))
	if r.corr.Phase() != Trying {
		t.Fatalf("phase = %s", r.corr.Phase())
	}
}

func TestCorrector_Detach(t *testing.T) {
	r := newRig(t)
	r.start()
	r.corr.Detach()
	if r.clock.Pending() != 0 {
		t.Fatal("timer survived detach")
	}
	if _, ok := r.doc.Style(MarkerID); ok {
		t.Fatal("marker survived detach")
	}
	r.clock.Advance(time.Second)
	if r.corr.Phase() != Idle {
		t.Fatalf("phase = %s", r.corr.Phase())
	}
}

type explodingNotifier struct{}

func (explodingNotifier) Notify(context.Context, string, notify.Level) error {
	panic("sink blew up")
}

func TestCorrector_NotifierPanicIsContained(t *testing.T) {
	r := newRig(t, Flexbox)
	r.corr.cfg.Notifier = explodingNotifier{}
	r.start()

	func() {
		defer func() {
			if p := recover(); p != nil {
				t.Fatalf("panic escaped the corrector: %v", p)
			}
		}()
		r.settle()
	}()
	if r.corr.Phase() != Succeeded {
		t.Fatalf("phase = %s, want succeeded", r.corr.Phase())
	}
}

func TestCorrector_ResetAfterDetachIsDropped(t *testing.T) {
	r := newRig(t)
	r.start()
	r.corr.Detach()

	// A reset racing with Detach finds no bound context.
	r.corr.dispatch(reset{})
	if len(r.doc.Styles()) != 0 {
		t.Fatalf("style injected into a detached page: %+v", r.doc.Styles())
	}
	if r.corr.Phase() != Idle || r.corr.Correction() != nil {
		t.Fatalf("phase = %s, correction = %+v", r.corr.Phase(), r.corr.Correction())
	}
	if r.clock.Pending() != 0 {
		t.Fatalf("timers pending: %d", r.clock.Pending())
	}
}
