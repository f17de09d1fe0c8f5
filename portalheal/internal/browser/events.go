package browser

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/monitor"
)

//go:embed events.js
var eventsJS string

const bindingName = "__portalheal_event"

// PageEvents implements monitor.Source. A resize listener and a
// MutationObserver are injected into the page and report back through a
// CDP runtime binding.
type PageEvents struct {
	page   *rod.Page
	logger *slog.Logger

	mu        sync.Mutex
	installed bool
	seq       int
	handlers  map[int]func()
	cancel    context.CancelFunc
	done      chan struct{}
}

var _ monitor.Source = (*PageEvents)(nil)

// NewPageEvents creates an event source for page.
func NewPageEvents(page *rod.Page, logger *slog.Logger) *PageEvents {
	if logger == nil {
		logger = slog.Default()
	}
	return &PageEvents{page: page, logger: logger, handlers: make(map[int]func())}
}

// OnResize implements monitor.Source.
func (p *PageEvents) OnResize(ctx context.Context, fn func()) (func(), error) {
	id, err := p.register(ctx, fn)
	if err != nil {
		return nil, err
	}
	if _, err := p.page.Context(ctx).Eval(`(id) => window.__portalheal.onResize(id)`, id); err != nil {
		p.forget(id)
		return nil, fmt.Errorf("browser: resize listener: %w", err)
	}
	return p.releaser(id), nil
}

// ObserveChildList implements monitor.Source.
func (p *PageEvents) ObserveChildList(ctx context.Context, selector string, fn func()) (func(), error) {
	id, err := p.register(ctx, fn)
	if err != nil {
		return nil, err
	}
	res, err := p.page.Context(ctx).Eval(`(id, sel) => window.__portalheal.observe(id, sel)`, id, selector)
	if err != nil {
		p.forget(id)
		return nil, fmt.Errorf("browser: observe %q: %w", selector, err)
	}
	if !res.Value.Bool() {
		p.forget(id)
		return nil, fmt.Errorf("browser: observe %q: no such element", selector)
	}
	return p.releaser(id), nil
}

// Close stops the binding listener. Registered handlers are dropped.
func (p *PageEvents) Close() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.installed = false
	p.handlers = make(map[int]func())
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (p *PageEvents) register(ctx context.Context, fn func()) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.installLocked(ctx); err != nil {
		return 0, err
	}
	p.seq++
	p.handlers[p.seq] = fn
	return p.seq, nil
}

func (p *PageEvents) forget(id int) {
	p.mu.Lock()
	delete(p.handlers, id)
	p.mu.Unlock()
}

func (p *PageEvents) releaser(id int) func() {
	return func() {
		p.forget(id)
		if _, err := p.page.Eval(`(id) => window.__portalheal && window.__portalheal.release(id)`, id); err != nil {
			p.logger.Debug("browser: release listener", "id", id, "error", err)
		}
	}
}

// installLocked adds the binding, starts the listener goroutine and
// injects the page script. It runs once.
func (p *PageEvents) installLocked(ctx context.Context) error {
	if p.installed {
		return nil
	}
	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(p.page); err != nil {
		return fmt.Errorf("browser: add binding: %w", err)
	}

	lctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	wait := p.page.Context(lctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name == bindingName {
			p.deliver(e.Payload)
		}
	})
	go func() {
		defer close(done)
		wait()
	}()

	if _, err := p.page.Context(ctx).Eval(eventsJS); err != nil {
		cancel()
		<-done
		return fmt.Errorf("browser: inject events script: %w", err)
	}
	p.cancel, p.done = cancel, done
	p.installed = true
	return nil
}

func (p *PageEvents) deliver(payload string) {
	var msg struct {
		Kind string `json:"kind"`
		ID   int    `json:"id"`
	}
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		p.logger.Warn("browser: bad event payload", "error", err)
		return
	}
	p.mu.Lock()
	fn := p.handlers[msg.ID]
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}
