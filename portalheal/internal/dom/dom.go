// Package dom defines the element-tree capability the engine consumes:
// selector queries, first-match geometry, viewport size and a keyed style
// injection slot. browser.PageDocument implements it over a live Chrome
// tab; Static implements it over parsed HTML.
package dom

import (
	"context"
	"errors"
	"math"
)

// ErrInvalidSelector is returned when a selector cannot be parsed.
var ErrInvalidSelector = errors.New("dom: invalid selector")

// Rect is a bounding box in viewport coordinates.
type Rect struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// MidY is the vertical midpoint.
func (r Rect) MidY() float64 { return r.Top + r.Height/2 }

// Empty reports a zero or negative rendered size.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0 || math.IsNaN(r.Width) || math.IsNaN(r.Height)
}

// Box is the measurement of the first element matching a selector.
type Box struct {
	Found bool `json:"found"`
	Rect  Rect `json:"rect"`
	// Displayed is false when the element or an ancestor is display:none
	// or visibility:hidden.
	Displayed bool `json:"displayed"`
}

// Visible reports a found, displayed element with a non-empty rect.
func (b Box) Visible() bool {
	return b.Found && b.Displayed && !b.Rect.Empty()
}

// Viewport is the layout viewport size in CSS pixels.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Document is a queryable, measurable element tree. Selectors may be
// comma-separated lists.
type Document interface {
	// Count returns the number of elements matching selector.
	Count(ctx context.Context, selector string) (int, error)
	// Measure returns geometry for the first element matching selector.
	Measure(ctx context.Context, selector string) (Box, error)
	// HasClass reports whether the first element matching selector has class.
	HasClass(ctx context.Context, selector, class string) (bool, error)
	// Viewport returns the current viewport size.
	Viewport(ctx context.Context) (Viewport, error)
	// InjectStyle creates or replaces the style block keyed by id, tagging it
	// with method.
	InjectStyle(ctx context.Context, id, method, css string) error
	// RemoveStyle removes the style block keyed by id. Missing ids are not
	// an error.
	RemoveStyle(ctx context.Context, id string) error
}

// Present reports whether selector matches at least one element. Errors
// count as absent.
func Present(ctx context.Context, doc Document, selector string) bool {
	if selector == "" {
		return false
	}
	n, err := doc.Count(ctx, selector)
	return err == nil && n > 0
}
