// Package browser drives the portal page in Chrome through go-rod. It
// provides the live Document, the change-event Source and the toast hook
// the engine consumes.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty launches a local Chrome.
	RemoteURL string

	// Headless runs a local Chrome without a window.
	Headless bool

	// ResourceBlocking lists resource types to block (images, fonts, media).
	ResourceBlocking []string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns one Chrome connection.
type Manager struct {
	cfg     Config
	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// NewManager creates a Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Start launches Chrome (or connects to a remote instance). A second call
// returns the running browser.
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("browser: manager is closed")
	}
	if m.browser != nil {
		return m.browser, nil
	}

	wsURL := m.cfg.RemoteURL
	if wsURL != "" {
		m.cfg.Logger.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().
			Headless(m.cfg.Headless).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		m.cfg.Logger.Info("browser: launched local chrome", "url", wsURL, "headless", m.cfg.Headless)
	}

	b := rod.New().ControlURL(wsURL).Context(ctx)
	if err := b.Connect(); err != nil {
		m.cleanupLocked()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	m.browser = b
	return b, nil
}

// Browser returns the current rod handle, or nil before Start.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// Close shuts Chrome down. It is idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.cleanupLocked()
}

func (m *Manager) cleanupLocked() error {
	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	return err
}
