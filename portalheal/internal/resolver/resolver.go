// Package resolver matches a live document against the selector catalog
// and produces the resolved context the other components read.
package resolver

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/paulhshort/grid4-netsapiens-skin-sub000/idgen"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/catalog"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/dom"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/metrics"
)

// DefaultThreshold is the minimum key-role coverage for a profile match.
const DefaultThreshold = 0.8

// Unknown is the fingerprint when no signature matches.
const Unknown = "unknown"

// FingerprintSep joins matching signature keys.
const FingerprintSep = "|"

// Context is the result of one detection. It is immutable once returned.
type Context struct {
	ID          string                  `json:"id"`
	Selectors   map[catalog.Role]string `json:"selectors"`
	Fingerprint string                  `json:"fingerprint"`
	// MatchedProfile is empty when the fallback union was synthesized.
	MatchedProfile string    `json:"matchedProfile,omitempty"`
	Coverage       float64   `json:"coverage"`
	Ready          bool      `json:"ready"`
	ResolvedAt     time.Time `json:"resolvedAt"`
}

// Selector returns the selector for role. A nil or unready context yields
// ("", false).
func (c *Context) Selector(role catalog.Role) (string, bool) {
	if c == nil || !c.Ready {
		return "", false
	}
	sel, ok := c.Selectors[role]
	if !ok || sel == "" {
		return "", false
	}
	return sel, true
}

// Fallback reports whether no profile reached the threshold.
func (c *Context) Fallback() bool {
	return c != nil && c.MatchedProfile == ""
}

// Config parameterizes a Resolver.
type Config struct {
	Catalog   *catalog.Catalog
	Threshold float64
	IDs       idgen.Generator
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

func (c *Config) defaults() {
	if c.Catalog == nil {
		c.Catalog = catalog.Default()
	}
	if c.Threshold <= 0 || c.Threshold > 1 {
		c.Threshold = DefaultThreshold
	}
	if c.IDs == nil {
		c.IDs = idgen.Context
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Resolver runs detection. It holds no per-page state.
type Resolver struct {
	cfg   Config
	union map[catalog.Role]string
}

// New creates a Resolver.
func New(cfg Config) *Resolver {
	cfg.defaults()
	return &Resolver{cfg: cfg, union: cfg.Catalog.Union()}
}

// Catalog returns the catalog in use.
func (r *Resolver) Catalog() *catalog.Catalog { return r.cfg.Catalog }

// Detect resolves doc against the catalog. It never fails: selector errors
// count as absent elements and an unmatched tree yields the fallback union.
func (r *Resolver) Detect(ctx context.Context, doc dom.Document) *Context {
	out := &Context{
		ID:          r.cfg.IDs(),
		Fingerprint: r.fingerprint(ctx, doc),
		Ready:       true,
		ResolvedAt:  r.cfg.Now(),
	}

	for _, p := range r.cfg.Catalog.Profiles {
		cov := r.coverage(ctx, doc, p)
		if cov >= r.cfg.Threshold {
			out.MatchedProfile = p.Name
			out.Coverage = cov
			out.Selectors = r.withFallback(p.Selectors)
			r.cfg.Logger.Info("resolver: profile matched",
				"profile", p.Name, "coverage", cov, "fingerprint", out.Fingerprint)
			r.cfg.Metrics.IncDetection(p.Name)
			return out
		}
		r.cfg.Logger.Debug("resolver: profile below threshold", "profile", p.Name, "coverage", cov)
	}

	out.Selectors = copySelectors(r.union)
	r.cfg.Logger.Warn("resolver: no profile reached threshold, using fallback selectors",
		"kind", "DetectionFallback", "threshold", r.cfg.Threshold, "fingerprint", out.Fingerprint)
	r.cfg.Metrics.IncDetection("")
	return out
}

func (r *Resolver) coverage(ctx context.Context, doc dom.Document, p catalog.Profile) float64 {
	keys := catalog.KeyRoles()
	present := 0
	for _, role := range keys {
		sel := p.Selectors[role]
		if sel == "" {
			continue
		}
		n, err := doc.Count(ctx, sel)
		if err != nil {
			r.cfg.Logger.Debug("resolver: selector failed", "profile", p.Name, "role", role, "selector", sel, "error", err)
			continue
		}
		if n > 0 {
			present++
		}
	}
	return float64(present) / float64(len(keys))
}

func (r *Resolver) fingerprint(ctx context.Context, doc dom.Document) string {
	var keys []string
	for _, s := range r.cfg.Catalog.Signatures {
		if dom.Present(ctx, doc, s.Selector) {
			keys = append(keys, s.Key)
		}
	}
	if len(keys) == 0 {
		return Unknown
	}
	return strings.Join(keys, FingerprintSep)
}

// withFallback fills roles the matched profile leaves empty from the union
// so every role resolves to something.
func (r *Resolver) withFallback(sel map[catalog.Role]string) map[catalog.Role]string {
	out := make(map[catalog.Role]string, len(r.union))
	for _, role := range catalog.Roles() {
		if s := strings.TrimSpace(sel[role]); s != "" {
			out[role] = s
		} else {
			out[role] = r.union[role]
		}
	}
	return out
}

func copySelectors(m map[catalog.Role]string) map[catalog.Role]string {
	out := make(map[catalog.Role]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
