package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod"

	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/dom"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/notify"
)

const (
	jsCount = `(sel) => document.querySelectorAll(sel).length`

	jsMeasure = `(sel) => {
	const el = document.querySelector(sel);
	if (!el) return {found: false, displayed: false, rect: {top: 0, left: 0, width: 0, height: 0}};
	const r = el.getBoundingClientRect();
	const vis = getComputedStyle(el).visibility;
	let displayed = vis !== 'hidden' && vis !== 'collapse';
	for (let n = el; displayed && n && n.nodeType === 1; n = n.parentElement) {
		if (getComputedStyle(n).display === 'none') displayed = false;
	}
	return {found: true, displayed, rect: {top: r.top, left: r.left, width: r.width, height: r.height}};
}`

	jsHasClass = `(sel, cls) => {
	const el = document.querySelector(sel);
	return !!el && el.classList.contains(cls);
}`

	jsViewport = `() => ({width: window.innerWidth, height: window.innerHeight})`

	jsInjectStyle = `(id, method, css) => {
	let el = document.getElementById(id);
	if (!el) {
		el = document.createElement('style');
		el.id = id;
		(document.head || document.documentElement).appendChild(el);
	}
	el.setAttribute('data-method', method);
	el.textContent = css;
}`

	jsRemoveStyle = `(id) => {
	const el = document.getElementById(id);
	if (el) el.remove();
}`

	jsHasToast = `() => typeof window.showToast === 'function'`

	jsShowToast = `(msg, level) => { window.showToast(msg, level); }`
)

// PageDocument implements dom.Document and notify.ToastPage over a rod
// page. Script exceptions, such as an invalid selector, come back as
// errors.
type PageDocument struct {
	page *rod.Page
}

var (
	_ dom.Document     = (*PageDocument)(nil)
	_ notify.ToastPage = (*PageDocument)(nil)
)

// NewPageDocument wraps page.
func NewPageDocument(page *rod.Page) *PageDocument {
	return &PageDocument{page: page}
}

// Count implements dom.Document.
func (d *PageDocument) Count(ctx context.Context, selector string) (int, error) {
	res, err := d.page.Context(ctx).Eval(jsCount, selector)
	if err != nil {
		return 0, fmt.Errorf("browser: count %q: %w", selector, err)
	}
	return res.Value.Int(), nil
}

// Measure implements dom.Document.
func (d *PageDocument) Measure(ctx context.Context, selector string) (dom.Box, error) {
	res, err := d.page.Context(ctx).Eval(jsMeasure, selector)
	if err != nil {
		return dom.Box{}, fmt.Errorf("browser: measure %q: %w", selector, err)
	}
	var box dom.Box
	if err := json.Unmarshal([]byte(res.Value.JSON("", "")), &box); err != nil {
		return dom.Box{}, fmt.Errorf("browser: decode box: %w", err)
	}
	return box, nil
}

// HasClass implements dom.Document.
func (d *PageDocument) HasClass(ctx context.Context, selector, class string) (bool, error) {
	res, err := d.page.Context(ctx).Eval(jsHasClass, selector, class)
	if err != nil {
		return false, fmt.Errorf("browser: has class %q: %w", selector, err)
	}
	return res.Value.Bool(), nil
}

// Viewport implements dom.Document.
func (d *PageDocument) Viewport(ctx context.Context) (dom.Viewport, error) {
	res, err := d.page.Context(ctx).Eval(jsViewport)
	if err != nil {
		return dom.Viewport{}, fmt.Errorf("browser: viewport: %w", err)
	}
	var vp dom.Viewport
	if err := json.Unmarshal([]byte(res.Value.JSON("", "")), &vp); err != nil {
		return dom.Viewport{}, fmt.Errorf("browser: decode viewport: %w", err)
	}
	return vp, nil
}

// InjectStyle implements dom.Document.
func (d *PageDocument) InjectStyle(ctx context.Context, id, method, css string) error {
	if _, err := d.page.Context(ctx).Eval(jsInjectStyle, id, method, css); err != nil {
		return fmt.Errorf("browser: inject style %s: %w", id, err)
	}
	return nil
}

// RemoveStyle implements dom.Document.
func (d *PageDocument) RemoveStyle(ctx context.Context, id string) error {
	if _, err := d.page.Context(ctx).Eval(jsRemoveStyle, id); err != nil {
		return fmt.Errorf("browser: remove style %s: %w", id, err)
	}
	return nil
}

// HasToast implements notify.ToastPage.
func (d *PageDocument) HasToast(ctx context.Context) (bool, error) {
	res, err := d.page.Context(ctx).Eval(jsHasToast)
	if err != nil {
		return false, fmt.Errorf("browser: probe toast: %w", err)
	}
	return res.Value.Bool(), nil
}

// ShowToast implements notify.ToastPage.
func (d *PageDocument) ShowToast(ctx context.Context, message string, level notify.Level) error {
	if _, err := d.page.Context(ctx).Eval(jsShowToast, message, string(level)); err != nil {
		return fmt.Errorf("browser: show toast: %w", err)
	}
	return nil
}
