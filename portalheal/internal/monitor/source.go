package monitor

import (
	"context"
	"sync"
)

// Source delivers change events from the page.
type Source interface {
	// OnResize calls fn on every viewport resize until cancel is called.
	OnResize(ctx context.Context, fn func()) (cancel func(), err error)
	// ObserveChildList calls fn whenever the child list of the first element
	// matching selector, or of any of its descendants, changes.
	ObserveChildList(ctx context.Context, selector string, fn func()) (disconnect func(), err error)
}

// NopSource never emits events. Static documents use it.
type NopSource struct{}

// OnResize implements Source.
func (NopSource) OnResize(context.Context, func()) (func(), error) { return func() {}, nil }

// ObserveChildList implements Source.
func (NopSource) ObserveChildList(context.Context, string, func()) (func(), error) {
	return func() {}, nil
}

// ManualSource is a Source driven by explicit calls to Resize and Mutate.
type ManualSource struct {
	mu        sync.Mutex
	seq       int
	resize    map[int]func()
	observers map[int]observer
}

type observer struct {
	selector string
	fn       func()
}

// NewManualSource returns an empty ManualSource.
func NewManualSource() *ManualSource {
	return &ManualSource{resize: make(map[int]func()), observers: make(map[int]observer)}
}

// OnResize implements Source.
func (m *ManualSource) OnResize(_ context.Context, fn func()) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := m.seq
	m.resize[id] = fn
	return func() {
		m.mu.Lock()
		delete(m.resize, id)
		m.mu.Unlock()
	}, nil
}

// ObserveChildList implements Source.
func (m *ManualSource) ObserveChildList(_ context.Context, selector string, fn func()) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := m.seq
	m.observers[id] = observer{selector: selector, fn: fn}
	return func() {
		m.mu.Lock()
		delete(m.observers, id)
		m.mu.Unlock()
	}, nil
}

// Resize fires every resize listener.
func (m *ManualSource) Resize() {
	for _, fn := range m.snapshotResize() {
		fn()
	}
}

// Mutate fires the observers registered for selector.
func (m *ManualSource) Mutate(selector string) {
	m.mu.Lock()
	var fns []func()
	for _, o := range m.observers {
		if o.selector == selector {
			fns = append(fns, o.fn)
		}
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Listeners returns the number of live resize listeners and observers.
func (m *ManualSource) Listeners() (resize, observers int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.resize), len(m.observers)
}

// Observed returns the selectors currently observed.
func (m *ManualSource) Observed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.observers))
	for _, o := range m.observers {
		out = append(out, o.selector)
	}
	return out
}

func (m *ManualSource) snapshotResize() []func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]func(), 0, len(m.resize))
	for _, fn := range m.resize {
		out = append(out, fn)
	}
	return out
}
