package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ToastPage is the page capability Toast needs: the portal's own toast
// function, if the page defines one.
type ToastPage interface {
	// HasToast reports whether window.showToast exists.
	HasToast(ctx context.Context) (bool, error)
	// ShowToast calls window.showToast(message, level).
	ShowToast(ctx context.Context, message string, level Level) error
}

// Toast shows notifications through the portal's toast UI, falling back
// when the page has none.
type Toast struct {
	page     ToastPage
	fallback Notifier
	policy   *bluemonday.Policy
}

// NewToast creates a Toast. A nil fallback means Log.
func NewToast(page ToastPage, fallback Notifier) *Toast {
	if fallback == nil {
		fallback = Log{}
	}
	return &Toast{page: page, fallback: fallback, policy: bluemonday.StrictPolicy()}
}

// Name implements Named.
func (t *Toast) Name() string { return "toast" }

// Notify implements Notifier. Messages are stripped of markup before they
// reach the page.
func (t *Toast) Notify(ctx context.Context, msg string, level Level) error {
	ok, err := t.page.HasToast(ctx)
	if err != nil || !ok {
		return t.fallback.Notify(ctx, msg, level)
	}
	clean := strings.TrimSpace(t.policy.Sanitize(msg))
	if clean == "" {
		return nil
	}
	if err := t.page.ShowToast(ctx, clean, level); err != nil {
		return fmt.Errorf("toast: show: %w", err)
	}
	return nil
}
