package dom

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// CompileSelector parses a CSS selector group as a browser would. Failures
// wrap ErrInvalidSelector.
func CompileSelector(s string) (cascadia.Selector, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty selector", ErrInvalidSelector)
	}
	sel, err := cascadia.Compile(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSelector, s, err)
	}
	return sel, nil
}

// ValidSelector reports why s cannot be compiled, or nil.
func ValidSelector(s string) error {
	_, err := CompileSelector(s)
	return err
}

// find returns the elements under root matching selector, in document order.
func find(root *html.Node, selector string) (*goquery.Selection, error) {
	sel, err := CompileSelector(selector)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromNode(root).FindMatcher(sel), nil
}

// displayed reports whether neither n nor an ancestor is hidden by the
// hidden attribute or an inline display:none / visibility:hidden.
func displayed(n *goquery.Selection) bool {
	visibility := ""
	for cur := n; cur.Length() > 0; cur = cur.Parent() {
		if _, ok := cur.Attr("hidden"); ok {
			return false
		}
		decl := inlineStyle(cur.AttrOr("style", ""))
		if decl["display"] == "none" {
			return false
		}
		// visibility inherits: the nearest declaration wins.
		if v, ok := decl["visibility"]; ok && visibility == "" {
			visibility = v
		}
	}
	return visibility != "hidden" && visibility != "collapse"
}

func inlineStyle(attr string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(attr, ";") {
		k, v, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		v = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "!important"))
		out[strings.ToLower(strings.TrimSpace(k))] = strings.ToLower(v)
	}
	return out
}
