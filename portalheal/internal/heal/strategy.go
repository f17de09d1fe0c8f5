package heal

import (
	"fmt"
	"strings"
)

// MarkerID is the id of the one style element the corrector owns.
const MarkerID = "grid4-nav-centering-fix"

// Strategy is a navigation centering approach.
type Strategy string

const (
	Flexbox   Strategy = "flexbox"
	Grid      Strategy = "grid"
	Transform Strategy = "transform"
	TableCell Strategy = "table-cell"
)

// Strategies returns the default cascade order.
func Strategies() []Strategy {
	return []Strategy{Flexbox, Grid, Transform, TableCell}
}

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	if _, ok := rules[Strategy(s)]; ok {
		return Strategy(s), nil
	}
	return "", fmt.Errorf("heal: unknown strategy %q", s)
}

// ParseStrategies validates an ordered, duplicate-free list.
func ParseStrategies(names []string) ([]Strategy, error) {
	out := make([]Strategy, 0, len(names))
	seen := make(map[Strategy]bool)
	for _, n := range names {
		s, err := ParseStrategy(n)
		if err != nil {
			return nil, err
		}
		if seen[s] {
			return nil, fmt.Errorf("heal: duplicate strategy %q", s)
		}
		seen[s] = true
		out = append(out, s)
	}
	return out, nil
}

type rule func(nav, main string) string

// Only Transform touches the main content element; the others reposition
// the navigation container alone.
var rules = map[Strategy]rule{
	Flexbox: func(nav, _ string) string {
		return block(nav, "display: flex !important", "flex-direction: column !important",
			"justify-content: center !important", "align-self: center !important",
			"margin-top: auto !important", "margin-bottom: auto !important")
	},
	Grid: func(nav, _ string) string {
		return block(nav, "display: grid !important", "align-content: center !important",
			"align-self: center !important", "margin-top: auto !important", "margin-bottom: auto !important")
	},
	Transform: func(nav, main string) string {
		return block(main, "position: relative !important") +
			block(nav, "position: relative !important", "top: 50% !important",
				"transform: translateY(-50%) !important", "margin-top: 0 !important")
	},
	TableCell: func(nav, _ string) string {
		return block(nav, "display: table-cell !important", "vertical-align: middle !important",
			"float: none !important")
	},
}

// CSS renders the rule block of s for the given nav and main selectors.
func (s Strategy) CSS(nav, main string) string {
	r, ok := rules[s]
	if !ok {
		return ""
	}
	return fmt.Sprintf("/* %s: %s */\n", MarkerID, s) + r(nav, main)
}

func block(sel string, decls ...string) string {
	var b strings.Builder
	b.WriteString(sel)
	b.WriteString(" {\n")
	for _, d := range decls {
		b.WriteString("  ")
		b.WriteString(d)
		b.WriteString(";\n")
	}
	b.WriteString("}\n")
	return b.String()
}
