package config

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestDefault(t *testing.T) {
	c := Default()
	if c.Detection.Threshold != 0.8 || c.Probes.TolerancePx != 3 {
		t.Fatalf("detection/probes = %+v %+v", c.Detection, c.Probes)
	}
	if c.Monitor.ResizeWindow != 250*time.Millisecond || c.Monitor.MutationWindow != 100*time.Millisecond {
		t.Fatalf("monitor = %+v", c.Monitor)
	}
	if c.Healer.MaxRetries != 3 || c.Healer.SettleDelay != 100*time.Millisecond || len(c.Healer.Strategies) != 4 {
		t.Fatalf("healer = %+v", c.Healer)
	}
	if !*c.Browser.Headless {
		t.Fatal("headless by default")
	}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestParse_Overrides(t *testing.T) {
	c, err := Parse([]byte(`
browser:
  headless: false
  resource_blocking: [image, font]
portal:
  url: https://portal.example.net/portal/home
detection:
  threshold: 0.5
  catalog_file: /etc/portalheal/catalog.yaml
healer:
  strategies: [grid, flexbox]
  settle_delay: 250ms
monitor:
  resize_window: 1s
log:
  level: debug
  format: text
`))
	if err != nil {
		t.Fatal(err)
	}
	if *c.Browser.Headless || len(c.Browser.ResourceBlocking) != 2 {
		t.Fatalf("browser = %+v", c.Browser)
	}
	if c.Detection.Threshold != 0.5 || c.Healer.SettleDelay != 250*time.Millisecond {
		t.Fatalf("config = %+v", c)
	}
	if c.Monitor.ResizeWindow != time.Second || c.Monitor.MutationWindow != 100*time.Millisecond {
		t.Fatalf("monitor = %+v", c.Monitor)
	}
	if got := c.Files(); len(got) != 1 || got[0] != "/etc/portalheal/catalog.yaml" {
		t.Fatalf("files = %v", got)
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, src := range []string{
		"detection: {threshold: 1.5}",
		"log: {level: loud}",
		"log: {format: xml}",
		"healer: {max_retries: 50}",
	} {
		if _, err := Parse([]byte(src)); !errors.Is(err, ErrInvalid) {
			t.Errorf("%q: err = %v", src, err)
		}
	}
	if _, err := Parse([]byte("browser: [")); err == nil {
		t.Error("broken yaml accepted")
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error")
	}
}

func TestWatcher_DebouncesBurst(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	other := filepath.Join(dir, "unrelated.txt")
	if err := os.WriteFile(path, []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher([]string{path}, 50*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, func() { calls.Add(1) }) }()

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte{byte('a' + i)}, 0o644); err != nil {
			t.Fatal(err)
		}
		_ = os.WriteFile(other, []byte{byte(i)}, 0o644)
	}

	deadline := time.Now().Add(3 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(200 * time.Millisecond)
	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("onChange calls = %d, want 1", n)
	}
}
