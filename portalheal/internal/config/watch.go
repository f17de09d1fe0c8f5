package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports changes to a set of files, debounced. Parent directories
// are watched so editors that replace files by rename are seen.
type Watcher struct {
	w        *fsnotify.Watcher
	files    map[string]bool
	debounce time.Duration
	logger   *slog.Logger
}

// NewWatcher watches paths. A zero debounce means 500ms.
func NewWatcher(paths []string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: watcher: %w", err)
	}
	w := &Watcher{w: fw, files: make(map[string]bool), debounce: debounce, logger: logger}
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fw.Close()
			return nil, fmt.Errorf("config: watch %s: %w", p, err)
		}
		w.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for d := range dirs {
		if err := fw.Add(d); err != nil {
			fw.Close()
			return nil, fmt.Errorf("config: watch %s: %w", d, err)
		}
	}
	return w, nil
}

// Run calls onChange once per burst of changes until ctx is done. It
// closes the underlying watcher on return.
func (w *Watcher) Run(ctx context.Context, onChange func()) error {
	defer w.w.Close()

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.w.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.Debug("config: file changed", "path", ev.Name, "op", ev.Op.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			timerC = timer.C

		case err, ok := <-w.w.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config: watch error", "error", err)

		case <-timerC:
			timer, timerC = nil, nil
			onChange()
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	abs, err := filepath.Abs(ev.Name)
	if err != nil {
		return false
	}
	return w.files[abs]
}
