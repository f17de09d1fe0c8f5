package monitor

import (
	"sync"
	"time"

	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/sched"
)

// debouncer collapses a burst of triggers into one call to fire, window
// after the last trigger. Each trigger resets the timer.
type debouncer struct {
	sched  sched.Scheduler
	window time.Duration
	fire   func()

	mu    sync.Mutex
	timer sched.Timer
	gen   uint64
}

func newDebouncer(s sched.Scheduler, window time.Duration, fire func()) *debouncer {
	return &debouncer{sched: s, window: window, fire: fire}
}

func (d *debouncer) trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.sched.AfterFunc(d.window, func() {
		d.mu.Lock()
		if gen != d.gen {
			// superseded or cancelled after the runtime already fired it
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		d.fire()
	})
}

// cancel drops any pending call.
func (d *debouncer) cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

func (d *debouncer) pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
