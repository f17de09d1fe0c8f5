// Package metrics holds the Prometheus instruments of the engine. All
// methods are nil-safe so components run unchanged without metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for detection, probing and correction.
type Metrics struct {
	// Detections by matched profile ("fallback" when none matched).
	Detections *prometheus.CounterVec

	// Full probe runs by trigger: init, resize, mutation, manual.
	ProbeRuns *prometheus.CounterVec

	// Probes that failed and were degraded to false/0.
	ProbeErrors *prometheus.CounterVec

	ProbeRunDuration prometheus.Histogram

	// Strategy attempts by method and result (success, failure, error).
	CorrectionAttempts *prometheus.CounterVec

	// Terminal cascade outcomes: succeeded, exhausted.
	CorrectionOutcomes *prometheus.CounterVec

	// Notifications delivered by sink and level.
	Notifications *prometheus.CounterVec
}

// New registers every instrument with reg. A nil reg means the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Detections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "portalheal_detections_total",
			Help: "Context resolutions by matched profile",
		}, []string{"profile"}),

		ProbeRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "portalheal_probe_runs_total",
			Help: "Full probe runs by trigger",
		}, []string{"trigger"}),

		ProbeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "portalheal_probe_errors_total",
			Help: "Probe executions that failed and were degraded",
		}, []string{"probe"}),

		ProbeRunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "portalheal_probe_run_duration_seconds",
			Help:    "Duration of a full probe run",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		CorrectionAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "portalheal_correction_attempts_total",
			Help: "Correction strategy attempts by method and result",
		}, []string{"method", "result"}),

		CorrectionOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "portalheal_correction_outcomes_total",
			Help: "Terminal correction cascade outcomes",
		}, []string{"outcome"}),

		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "portalheal_notifications_total",
			Help: "Notifications delivered by sink and level",
		}, []string{"sink", "level"}),
	}
}

// IncDetection records one context resolution.
func (m *Metrics) IncDetection(profile string) {
	if m != nil {
		if profile == "" {
			profile = "fallback"
		}
		m.Detections.WithLabelValues(profile).Inc()
	}
}

// ObserveProbeRun records one full probe run.
func (m *Metrics) ObserveProbeRun(trigger string, d time.Duration) {
	if m != nil {
		m.ProbeRuns.WithLabelValues(trigger).Inc()
		m.ProbeRunDuration.Observe(d.Seconds())
	}
}

// IncProbeError records a degraded probe.
func (m *Metrics) IncProbeError(probe string) {
	if m != nil {
		m.ProbeErrors.WithLabelValues(probe).Inc()
	}
}

// IncAttempt records one strategy attempt.
func (m *Metrics) IncAttempt(method, result string) {
	if m != nil {
		m.CorrectionAttempts.WithLabelValues(method, result).Inc()
	}
}

// IncOutcome records a terminal cascade outcome.
func (m *Metrics) IncOutcome(outcome string) {
	if m != nil {
		m.CorrectionOutcomes.WithLabelValues(outcome).Inc()
	}
}

// IncNotification records a delivered notification.
func (m *Metrics) IncNotification(sink, level string) {
	if m != nil {
		m.Notifications.WithLabelValues(sink, level).Inc()
	}
}
