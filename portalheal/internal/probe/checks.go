package probe

import (
	"context"
	"math"

	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/catalog"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/dom"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/resolver"
)

// Centered reports whether the vertical midpoints of a and b are within
// tolerance. Empty boxes are never centered.
func Centered(a, b dom.Rect, tolerance float64) bool {
	if a.Empty() || b.Empty() {
		return false
	}
	return math.Abs(a.MidY()-b.MidY()) <= tolerance
}

func navVerticallyCentered(ctx context.Context, e *Engine, rc *resolver.Context) (Value, error) {
	nav, err := e.measureRole(ctx, rc, catalog.RoleNavigationContainer)
	if err != nil {
		return Value{}, err
	}
	main, err := e.measureRole(ctx, rc, catalog.RoleMainContent)
	if err != nil {
		return Value{}, err
	}
	if !nav.Found || !main.Found {
		return Bool(false), nil
	}
	return Bool(Centered(nav.Rect, main.Rect, e.cfg.TolerancePx)), nil
}

func sidebarLayout(ctx context.Context, e *Engine, rc *resolver.Context) (Value, error) {
	box, err := e.measureRole(ctx, rc, catalog.RoleSidebar)
	if err != nil {
		return Value{}, err
	}
	return Bool(box.Visible()), nil
}

func viewportClass(match func(width float64) bool) handler {
	return func(ctx context.Context, e *Engine, _ *resolver.Context) (Value, error) {
		vp, err := e.cfg.Doc.Viewport(ctx)
		if err != nil {
			return Value{}, err
		}
		return Bool(match(vp.Width)), nil
	}
}

func viewportWidth(ctx context.Context, e *Engine, _ *resolver.Context) (Value, error) {
	vp, err := e.cfg.Doc.Viewport(ctx)
	if err != nil {
		return Value{}, err
	}
	return Number(vp.Width), nil
}

func grid4Styles(ctx context.Context, e *Engine, rc *resolver.Context) (Value, error) {
	if root, ok := rc.Selector(catalog.RoleRootContainer); ok {
		has, err := e.cfg.Doc.HasClass(ctx, root, e.cfg.MarkerClass)
		if err != nil {
			return Value{}, err
		}
		if has {
			return Bool(true), nil
		}
	}
	n, err := e.cfg.Doc.Count(ctx, e.cfg.MarkerLink)
	if err != nil {
		return Value{}, err
	}
	return Bool(n > 0), nil
}

// measureRole measures the first element of role. An unresolved role
// yields a zero Box.
func (e *Engine) measureRole(ctx context.Context, rc *resolver.Context, role catalog.Role) (dom.Box, error) {
	sel, ok := rc.Selector(role)
	if !ok {
		return dom.Box{}, nil
	}
	return e.cfg.Doc.Measure(ctx, sel)
}
