package probe

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/dom"
	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/resolver"
)

const bootstrapPage = `<html><head></head><body>
<div class="container-fluid grid4-enhanced">
  <div class="navbar"></div>
  <div class="content"></div>
  <div class="sidebar"></div>
</div></body></html>`

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func setup(t *testing.T, src string) (*dom.Static, *resolver.Context) {
	t.Helper()
	doc := dom.NewStatic(src)
	rc := resolver.New(resolver.Config{Logger: quiet()}).Detect(context.Background(), doc)
	if rc.MatchedProfile != "bootstrap" {
		t.Fatalf("fixture matched %q", rc.MatchedProfile)
	}
	return doc, rc
}

func place(t *testing.T, doc *dom.Static, navMid, mainMid float64) {
	t.Helper()
	if err := doc.SetRect(".navbar", dom.Rect{Top: navMid - 20, Height: 40, Width: 200}); err != nil {
		t.Fatal(err)
	}
	if err := doc.SetRect(".content", dom.Rect{Top: mainMid - 100, Height: 200, Width: 800}); err != nil {
		t.Fatal(err)
	}
}

func TestCentered_Monotonic(t *testing.T) {
	a := dom.Rect{Top: 380, Height: 40, Width: 10}
	b := dom.Rect{Top: 310, Height: 200, Width: 10}
	// offset is exactly 10
	for _, tol := range []float64{10, 11, 50} {
		if !Centered(a, b, tol) {
			t.Errorf("tolerance %v: want centered", tol)
		}
	}
	for _, tol := range []float64{9.99, 3, 0} {
		if Centered(a, b, tol) {
			t.Errorf("tolerance %v: want not centered", tol)
		}
	}
	if Centered(dom.Rect{}, b, 1000) {
		t.Error("empty rect must not be centered")
	}
}

func TestRunAll_NavOffBySomePixels(t *testing.T) {
	doc, rc := setup(t, bootstrapPage)
	place(t, doc, 400, 410)

	e := New(Config{Doc: doc, Logger: quiet()})
	flags := e.RunAll(context.Background(), rc)
	if flags[NavVerticallyCentered].Bool() {
		t.Fatal("10px offset with tolerance 3 must not be centered")
	}

	place(t, doc, 400, 402)
	if !e.Revalidate(context.Background(), rc, NavVerticallyCentered) {
		t.Fatal("2px offset must be centered")
	}
}

func TestRunAll_MissingElementsAreFalse(t *testing.T) {
	doc, rc := setup(t, bootstrapPage)
	// nav and content were never laid out
	e := New(Config{Doc: doc, Logger: quiet()})
	flags := e.RunAll(context.Background(), rc)
	if flags[NavVerticallyCentered].Bool() || flags[SidebarLayout].Bool() {
		t.Fatalf("flags = %v", flags)
	}

	if got := e.Revalidate(context.Background(), nil, NavVerticallyCentered); got {
		t.Fatal("nil context must yield false")
	}
}

func TestRunAll_Sidebar(t *testing.T) {
	doc, rc := setup(t, bootstrapPage)
	if err := doc.SetRect(".sidebar", dom.Rect{Width: 250, Height: 600}); err != nil {
		t.Fatal(err)
	}
	e := New(Config{Doc: doc, Logger: quiet()})
	if !e.RunAll(context.Background(), rc)[SidebarLayout].Bool() {
		t.Fatal("visible sidebar not detected")
	}

	hidden, rc2 := setup(t, `<html><body><div class="container-fluid"><div class="navbar"></div>
		<div class="content"></div><div class="sidebar" style="display:none"></div></div></body></html>`)
	_ = hidden.SetRect(".sidebar", dom.Rect{Width: 250, Height: 600})
	e2 := New(Config{Doc: hidden, Logger: quiet()})
	if e2.RunAll(context.Background(), rc2)[SidebarLayout].Bool() {
		t.Fatal("display:none sidebar reported visible")
	}
}

func TestRunAll_BreakpointsExclusive(t *testing.T) {
	doc, rc := setup(t, bootstrapPage)
	e := New(Config{Doc: doc, Logger: quiet()})

	cases := []struct {
		width float64
		want  Name
	}{
		{320, Mobile}, {767, Mobile}, {768, Tablet}, {1023, Tablet}, {1024, Desktop}, {1920, Desktop},
	}
	for _, tc := range cases {
		doc.SetViewport(tc.width, 900)
		flags := e.RunAll(context.Background(), rc)
		set := 0
		for _, n := range []Name{Mobile, Tablet, Desktop} {
			if flags[n].Bool() {
				set++
				if n != tc.want {
					t.Errorf("width %v: %s set, want %s", tc.width, n, tc.want)
				}
			}
		}
		if set != 1 {
			t.Errorf("width %v: %d classes set", tc.width, set)
		}
		if w := flags[ViewportWidth]; !w.IsNumber() || w.Number() != tc.width {
			t.Errorf("viewportWidth = %v", w)
		}
	}
}

func TestRunAll_Grid4Styles(t *testing.T) {
	doc, rc := setup(t, bootstrapPage)
	e := New(Config{Doc: doc, Logger: quiet()})
	if !e.RunAll(context.Background(), rc)[Grid4Styles].Bool() {
		t.Fatal("marker class on root not detected")
	}

	linked, rc2 := setup(t, `<html><head><link rel="stylesheet" href="https://cdn.example/grid4-portal.css"></head>
		<body><div class="container-fluid"><div class="navbar"></div><div class="content"></div></div></body></html>`)
	if !New(Config{Doc: linked, Logger: quiet()}).RunAll(context.Background(), rc2)[Grid4Styles].Bool() {
		t.Fatal("marker stylesheet not detected")
	}

	bare, rc3 := setup(t, `<html><body><div class="container-fluid"><div class="navbar"></div><div class="content"></div></div></body></html>`)
	if New(Config{Doc: bare, Logger: quiet()}).RunAll(context.Background(), rc3)[Grid4Styles].Bool() {
		t.Fatal("no markers, yet enhancements reported")
	}
}

func TestRevalidate_OverwritesOnlyOneEntry(t *testing.T) {
	doc, rc := setup(t, bootstrapPage)
	place(t, doc, 400, 400)
	e := New(Config{Doc: doc, Logger: quiet()})
	before := e.RunAll(context.Background(), rc)

	doc.SetViewport(500, 900)
	place(t, doc, 400, 450)
	if e.Revalidate(context.Background(), rc, NavVerticallyCentered) {
		t.Fatal("moved nav still centered")
	}
	after := e.Flags()
	if v, _ := e.Flag(Desktop); !v.Bool() {
		t.Error("desktop flag recomputed by single revalidation")
	}
	if after[ViewportWidth].Number() != 1280 {
		t.Errorf("viewportWidth changed to %v", after[ViewportWidth])
	}
	if !before[NavVerticallyCentered].Bool() {
		t.Error("published snapshot was mutated in place")
	}
}

type faultyDoc struct {
	*dom.Static
}

func (faultyDoc) Viewport(context.Context) (dom.Viewport, error) {
	return dom.Viewport{}, errors.New("target closed")
}

func (faultyDoc) Measure(context.Context, string) (dom.Box, error) {
	panic("renderer crashed")
}

func TestRunAll_GuardsErrorsAndPanics(t *testing.T) {
	static, rc := setup(t, bootstrapPage)
	e := New(Config{Doc: faultyDoc{static}, Logger: quiet()})

	flags := e.RunAll(context.Background(), rc)
	if len(flags) != len(Names()) {
		t.Fatalf("flags = %v", flags)
	}
	if flags[NavVerticallyCentered].Bool() || flags[SidebarLayout].Bool() || flags[Mobile].Bool() {
		t.Fatalf("failed probes must be false: %v", flags)
	}
	if w := flags[ViewportWidth]; !w.IsNumber() || w.Number() != 0 {
		t.Fatalf("viewportWidth = %v, want 0", w)
	}
	if !flags[Grid4Styles].Bool() {
		t.Fatal("healthy probe affected by failing ones")
	}
}

func TestRun_OnRunSignal(t *testing.T) {
	doc, rc := setup(t, bootstrapPage)
	var got []Trigger
	e := New(Config{Doc: doc, Logger: quiet(), OnRun: func(tr Trigger, f Flags) {
		got = append(got, tr)
		if len(f) != len(Names()) {
			t.Errorf("signal carried %d flags", len(f))
		}
	}})
	e.Run(context.Background(), rc, TriggerResize)
	e.Revalidate(context.Background(), rc, Mobile)
	e.Run(context.Background(), rc, TriggerMutation)
	if len(got) != 2 || got[0] != TriggerResize || got[1] != TriggerMutation {
		t.Fatalf("signals = %v", got)
	}
}

func TestParseName(t *testing.T) {
	for _, n := range Names() {
		got, err := ParseName(string(n))
		if err != nil || got != n {
			t.Errorf("ParseName(%q) = %q, %v", n, got, err)
		}
	}
	if _, err := ParseName("isFancy"); !errors.Is(err, ErrUnknownProbe) {
		t.Fatalf("err = %v", err)
	}
}

func TestFlags_JSON(t *testing.T) {
	data, err := json.Marshal(Flags{Mobile: Bool(true), ViewportWidth: Number(375)})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"isMobile":true,"viewportWidth":375}` {
		t.Fatalf("json = %s", data)
	}
	var back Flags
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !back[Mobile].Bool() || back[ViewportWidth].Number() != 375 {
		t.Fatalf("decoded = %v", back)
	}
}

func TestEngine_Reset(t *testing.T) {
	doc, rc := setup(t, bootstrapPage)
	e := New(Config{Doc: doc, Logger: quiet()})
	e.RunAll(context.Background(), rc)
	e.Reset()
	if _, ok := e.Flag(Desktop); ok {
		t.Fatal("flags survived reset")
	}
}

func TestRun_CanceledContextKeepsReset(t *testing.T) {
	doc, rc := setup(t, bootstrapPage)
	signals := 0
	e := New(Config{Doc: doc, Logger: quiet(), OnRun: func(Trigger, Flags) { signals++ }})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.Reset()
	e.Run(ctx, rc, TriggerResize)
	if _, ok := e.Flag(Desktop); ok {
		t.Fatal("canceled run stored flags")
	}
	if signals != 0 {
		t.Fatalf("canceled run signaled %d times", signals)
	}
	e.Revalidate(ctx, rc, Desktop)
	if len(e.Flags()) != 0 {
		t.Fatalf("canceled revalidate stored %v", e.Flags())
	}

	e.Run(context.Background(), rc, TriggerResize)
	if v, ok := e.Flag(Desktop); !ok || !v.Bool() {
		t.Fatalf("desktop = %v, %v", v, ok)
	}
}
