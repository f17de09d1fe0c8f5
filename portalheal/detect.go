package portalheal

import (
	"context"
	"fmt"
	"io"

	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/browser"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/dom"
)

// DetectHTML resolves a saved page offline. Layout is not computed, so the
// geometric probes report false; viewport probes use width and height.
func DetectHTML(ctx context.Context, r io.Reader, width, height float64, opts ...Option) (Info, error) {
	doc, err := dom.ParseStatic(r)
	if err != nil {
		return Info{}, fmt.Errorf("portalheal: detect: %w", err)
	}
	if width > 0 && height > 0 {
		doc.SetViewport(width, height)
	}
	return detectOnce(ctx, doc, nil, opts)
}

// DetectURL opens url in Chrome as configured by cfg and resolves the live
// page without correcting it. When html is non-nil the rendered markup is
// written to it for later offline runs.
func DetectURL(ctx context.Context, cfg *Config, url string, html io.Writer, opts ...Option) (Info, error) {
	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		Headless:         *cfg.Browser.Headless,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
	})
	if _, err := mgr.Start(ctx); err != nil {
		return Info{}, fmt.Errorf("portalheal: start browser: %w", err)
	}
	defer mgr.Close()

	tab, err := browser.OpenTab(ctx, mgr, url, browser.TabOptions{
		Stealth:       cfg.Browser.Stealth,
		Width:         cfg.Browser.ViewportWidth,
		Height:        cfg.Browser.ViewportHeight,
		ReadySelector: cfg.Portal.ReadySelector,
		LoadTimeout:   cfg.Portal.LoadTimeout,
	})
	if err != nil {
		return Info{}, fmt.Errorf("portalheal: open %s: %w", url, err)
	}
	defer tab.Close()

	info, err := detectOnce(ctx, tab.Document(), nil, opts)
	if err != nil {
		return Info{}, err
	}
	if html != nil {
		src, err := tab.HTML(ctx)
		if err != nil {
			return info, fmt.Errorf("portalheal: dump html: %w", err)
		}
		if _, err := io.WriteString(html, src); err != nil {
			return info, fmt.Errorf("portalheal: dump html: %w", err)
		}
	}
	return info, nil
}

func detectOnce(ctx context.Context, doc Document, src Source, opts []Option) (Info, error) {
	eng := New(doc, src, append(opts, WithoutHealer())...)
	if err := eng.Init(ctx); err != nil {
		return Info{}, err
	}
	info := eng.ContextInfo()
	eng.Destroy()
	return info, nil
}
