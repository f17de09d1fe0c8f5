// Package notify delivers user-visible feedback about correction outcomes.
// Delivery is best-effort: callers log a returned error and move on.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/metrics"
)

// Level is the severity of a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// ParseLevel validates a level name.
func ParseLevel(s string) (Level, error) {
	switch l := Level(s); l {
	case LevelInfo, LevelSuccess, LevelWarning, LevelError:
		return l, nil
	}
	return "", fmt.Errorf("notify: unknown level %q", s)
}

// Notifier is a notification sink.
type Notifier interface {
	Notify(ctx context.Context, msg string, level Level) error
}

// Named is implemented by sinks that label their metrics.
type Named interface {
	Name() string
}

func nameOf(n Notifier) string {
	if nn, ok := n.(Named); ok {
		return nn.Name()
	}
	return fmt.Sprintf("%T", n)
}

// Log writes notifications to a slog.Logger. It is the default sink and
// never fails.
type Log struct {
	Logger *slog.Logger
}

// Name implements Named.
func (Log) Name() string { return "log" }

// Notify implements Notifier.
func (l Log) Notify(ctx context.Context, msg string, level Level) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lvl := slog.LevelInfo
	switch level {
	case LevelWarning:
		lvl = slog.LevelWarn
	case LevelError:
		lvl = slog.LevelError
	}
	logger.Log(ctx, lvl, "notify: "+msg, "level", string(level))
	return nil
}

// Router fans a notification out to every sink. One failing sink does not
// block the others; the first error is returned.
type Router struct {
	sinks   []Notifier
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRouter creates a fan-out router.
func NewRouter(logger *slog.Logger, m *metrics.Metrics, sinks ...Notifier) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger, metrics: m}
}

// Name implements Named.
func (r *Router) Name() string { return "router" }

// Notify implements Notifier.
func (r *Router) Notify(ctx context.Context, msg string, level Level) error {
	var firstErr error
	for _, s := range r.sinks {
		name := nameOf(s)
		if err := notifySafe(ctx, s, msg, level); err != nil {
			r.logger.Warn("notify: sink failed", "sink", name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		r.metrics.IncNotification(name, string(level))
	}
	return firstErr
}

// Deliver sends through n and logs any error or panic. A nil n falls back
// to Log.
func Deliver(ctx context.Context, n Notifier, logger *slog.Logger, msg string, level Level) {
	if logger == nil {
		logger = slog.Default()
	}
	if n == nil {
		n = Log{Logger: logger}
	}
	if err := notifySafe(ctx, n, msg, level); err != nil {
		logger.Warn("notify: delivery failed", "level", level, "error", err)
	}
}

// notifySafe turns a panicking sink into an error.
func notifySafe(ctx context.Context, n Notifier, msg string, level Level) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notify: %s panicked: %v", nameOf(n), r)
		}
	}()
	return n.Notify(ctx, msg, level)
}
