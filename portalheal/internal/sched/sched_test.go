package sched

import (
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestManual_FiresInDeadlineOrder(t *testing.T) {
	m := NewManual()
	var order []string
	m.AfterFunc(200*time.Millisecond, func() { order = append(order, "b") })
	m.AfterFunc(100*time.Millisecond, func() { order = append(order, "a") })
	m.AfterFunc(300*time.Millisecond, func() { order = append(order, "c") })

	m.Advance(250 * time.Millisecond)
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("order after 250ms = %v, want [a b]", order)
	}
	if m.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", m.Pending())
	}

	m.Advance(50 * time.Millisecond)
	if len(order) != 3 || order[2] != "c" {
		t.Fatalf("order after 300ms = %v", order)
	}
}

func TestManual_StopPreventsFiring(t *testing.T) {
	m := NewManual()
	fired := false
	tm := m.AfterFunc(10*time.Millisecond, func() { fired = true })
	if !tm.Stop() {
		t.Fatal("Stop on pending timer should report true")
	}
	if tm.Stop() {
		t.Error("second Stop should report false")
	}
	m.Advance(time.Second)
	if fired {
		t.Error("stopped timer fired")
	}
}

func TestManual_CallbackSchedulesWithinWindow(t *testing.T) {
	m := NewManual()
	var at []time.Duration
	m.AfterFunc(100*time.Millisecond, func() {
		at = append(at, m.Now())
		m.AfterFunc(100*time.Millisecond, func() { at = append(at, m.Now()) })
	})

	m.Advance(250 * time.Millisecond)
	if len(at) != 2 {
		t.Fatalf("fired %d callbacks, want 2", len(at))
	}
	if at[0] != 100*time.Millisecond || at[1] != 200*time.Millisecond {
		t.Errorf("fire times = %v", at)
	}
	if m.Now() != 250*time.Millisecond {
		t.Errorf("Now = %v, want 250ms", m.Now())
	}
}

func TestReal_StopLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)

	var fired atomic.Bool
	tm := Real{}.AfterFunc(time.Hour, func() { fired.Store(true) })
	if !tm.Stop() {
		t.Fatal("Stop should cancel a pending real timer")
	}
	if fired.Load() {
		t.Error("timer fired after Stop")
	}
}
