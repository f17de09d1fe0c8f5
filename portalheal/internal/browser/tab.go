package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// TabOptions controls how the portal page is opened.
type TabOptions struct {
	Stealth bool
	// Width and Height fix the viewport; zero leaves Chrome's default.
	Width, Height int
	// ReadySelector is awaited after load. Empty skips the wait.
	ReadySelector string
	LoadTimeout   time.Duration
}

// Tab is an open portal page.
type Tab struct {
	Page   *rod.Page
	URL    string
	router *rod.HijackRouter
	events *PageEvents
}

// OpenTab creates a tab, applies viewport and resource blocking, navigates
// to pageURL and waits for the ready selector.
func OpenTab(ctx context.Context, mgr *Manager, pageURL string, opts TabOptions) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = 30 * time.Second
	}

	var page *rod.Page
	var err error
	if opts.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	tab := &Tab{Page: page, URL: pageURL}
	tab.router = blockResources(page, mgr.cfg.ResourceBlocking)

	if opts.Width > 0 && opts.Height > 0 {
		if err := tab.Resize(ctx, opts.Width, opts.Height); err != nil {
			tab.Close()
			return nil, err
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, opts.LoadTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		tab.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}
	if opts.ReadySelector != "" {
		if _, err := page.Context(navCtx).Element(opts.ReadySelector); err != nil {
			tab.Close()
			return nil, fmt.Errorf("browser: wait for %q: %w", opts.ReadySelector, err)
		}
	}

	mgr.cfg.Logger.Info("browser: tab ready", "url", pageURL, "stealth", opts.Stealth)
	return tab, nil
}

// Resize overrides the viewport. Pages see a resize event.
func (t *Tab) Resize(ctx context.Context, width, height int) error {
	err := proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
	}.Call(t.Page.Context(ctx))
	if err != nil {
		return fmt.Errorf("browser: resize %dx%d: %w", width, height, err)
	}
	return nil
}

// Document returns the live element tree of the tab.
func (t *Tab) Document() *PageDocument {
	return NewPageDocument(t.Page)
}

// Events returns the change-event source of the tab. The same instance is
// returned on every call.
func (t *Tab) Events() *PageEvents {
	if t.events == nil {
		t.events = NewPageEvents(t.Page, nil)
	}
	return t.events
}

// HTML returns the serialized document.
func (t *Tab) HTML(ctx context.Context) (string, error) {
	res, err := t.Page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: get DOM: %w", err)
	}
	return res.Value.Str(), nil
}

// Close stops event delivery and closes the tab.
func (t *Tab) Close() {
	if t.events != nil {
		t.events.Close()
	}
	if t.router != nil {
		_ = t.router.Stop()
	}
	_ = t.Page.Close()
}
