// Package sched is the timer primitive used by the monitor and the
// corrector. Production code uses Real (time.AfterFunc); tests drive a
// Manual clock so debounce windows and settle delays are deterministic.
package sched

import (
	"sort"
	"sync"
	"time"
)

// Timer is a pending callback.
type Timer interface {
	// Stop cancels the callback. It reports whether the call stopped the
	// timer before it fired.
	Stop() bool
}

// Scheduler schedules f to run once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Real schedules with the runtime timer heap.
type Real struct{}

// AfterFunc implements Scheduler.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Manual is a virtual clock. Callbacks only run inside Advance, on the
// caller's goroutine, in deadline order (ties in scheduling order).
type Manual struct {
	mu     sync.Mutex
	now    time.Duration
	seq    uint64
	timers []*manualTimer
}

type manualTimer struct {
	m       *Manual
	at      time.Duration
	seq     uint64
	fn      func()
	stopped bool
	fired   bool
}

// NewManual returns a Manual clock positioned at zero.
func NewManual() *Manual {
	return &Manual{}
}

// AfterFunc implements Scheduler.
func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{m: m, at: m.now + d, seq: m.seq, fn: f}
	m.timers = append(m.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Now returns the virtual time elapsed since creation.
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending returns the number of timers that are neither stopped nor fired.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, firing every timer that falls due.
// Timers scheduled by a firing callback run in the same call if they fall
// inside the window.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextDueLocked(target)
		if next == nil {
			m.now = target
			m.compactLocked()
			m.mu.Unlock()
			return
		}
		next.fired = true
		m.now = next.at
		fn := next.fn
		m.mu.Unlock()

		fn()
	}
}

func (m *Manual) nextDueLocked(target time.Duration) *manualTimer {
	var due []*manualTimer
	for _, t := range m.timers {
		if !t.stopped && !t.fired && t.at <= target {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].at != due[j].at {
			return due[i].at < due[j].at
		}
		return due[i].seq < due[j].seq
	})
	return due[0]
}

func (m *Manual) compactLocked() {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	m.timers = live
}
