package heal

import (
	"strings"
	"testing"
)

func testPolicy() policy { return policy{strategies: Strategies(), maxRetries: DefaultMaxRetries} }

func TestReduce_StaleSettleIgnored(t *testing.T) {
	s, c, _ := reduce(State{}, nil, measured{centered: false}, testPolicy())
	if s.Phase != Trying || s.Epoch != 1 {
		t.Fatalf("state = %+v", s)
	}
	s2, _, fx := reduce(s, c, settled{epoch: 0}, testPolicy())
	if s2 != s || fx != nil {
		t.Fatalf("stale settle moved state to %+v", s2)
	}
	s3, _, fx := reduce(s, c, settled{epoch: 1}, testPolicy())
	if s3.Phase != Validating || len(fx) != 1 {
		t.Fatalf("state = %+v effects = %v", s3, fx)
	}
}

func TestReduce_MethodIndexOnlyAdvances(t *testing.T) {
	p := testPolicy()
	s, c, _ := reduce(State{}, nil, measured{}, p)
	last := c.MethodIndex
	for s.Phase == Trying {
		s, c, _ = reduce(s, c, settled{epoch: s.Epoch}, p)
		s, c, _ = reduce(s, c, measured{centered: false}, p)
		if c.MethodIndex < last {
			t.Fatalf("method index went back: %d -> %d", last, c.MethodIndex)
		}
		if c.RetryCount > p.maxRetries {
			t.Fatalf("retryCount %d exceeds max", c.RetryCount)
		}
		last = c.MethodIndex
	}
	if s.Phase != Exhausted {
		t.Fatalf("phase = %s", s.Phase)
	}
}

func TestReduce_EachTryCancelsFirst(t *testing.T) {
	_, _, fx := reduce(State{}, nil, measured{}, testPolicy())
	if _, ok := fx[0].(cancelTimer); !ok {
		t.Fatalf("first effect = %T, want cancelTimer", fx[0])
	}
	if _, ok := fx[len(fx)-1].(scheduleSettle); !ok {
		t.Fatalf("last effect = %T, want scheduleSettle", fx[len(fx)-1])
	}
}

func TestReduce_TerminalStatesIgnoreMeasurements(t *testing.T) {
	for _, ph := range []Phase{Succeeded, Exhausted} {
		s, _, fx := reduce(State{Phase: ph}, &Correction{}, measured{centered: false}, testPolicy())
		if s.Phase != ph || fx != nil {
			t.Errorf("%s: moved to %s", ph, s.Phase)
		}
	}
}

func TestStrategy_CSS(t *testing.T) {
	css := Transform.CSS(".navbar", ".content")
	if !strings.Contains(css, ".navbar {") || !strings.Contains(css, "translateY(-50%)") || !strings.Contains(css, ".content {") {
		t.Fatalf("css = %s", css)
	}
	if Strategy("zigzag").CSS("a", "b") != "" {
		t.Fatal("unknown strategy rendered css")
	}
	if _, err := ParseStrategies([]string{"grid", "grid"}); err == nil {
		t.Fatal("duplicate accepted")
	}
	got, err := ParseStrategies([]string{"table-cell", "flexbox"})
	if err != nil || got[0] != TableCell || got[1] != Flexbox {
		t.Fatalf("parsed = %v, %v", got, err)
	}
}
