package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncDetection("")
	m.IncDetection("bootstrap")
	m.IncDetection("bootstrap")
	m.ObserveProbeRun("resize", 3*time.Millisecond)
	m.IncAttempt("grid", "success")

	if got := testutil.ToFloat64(m.Detections.WithLabelValues("fallback")); got != 1 {
		t.Errorf("fallback detections = %v", got)
	}
	if got := testutil.ToFloat64(m.Detections.WithLabelValues("bootstrap")); got != 2 {
		t.Errorf("bootstrap detections = %v", got)
	}
	if got := testutil.ToFloat64(m.ProbeRuns.WithLabelValues("resize")); got != 1 {
		t.Errorf("resize runs = %v", got)
	}
	if n := testutil.CollectAndCount(m.ProbeRunDuration); n != 1 {
		t.Errorf("histogram series = %d", n)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.IncDetection("x")
	m.ObserveProbeRun("init", time.Second)
	m.IncProbeError("isMobile")
	m.IncAttempt("grid", "failure")
	m.IncOutcome("exhausted")
	m.IncNotification("log", "info")
}

func TestNew_SeparateRegistries(t *testing.T) {
	// Two engines in one process must not collide.
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
}
