package idgen

import (
	"testing"
)

func TestUUIDv7_Unique(t *testing.T) {
	gen := UUIDv7()
	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		id := gen()
		if len(id) != 36 {
			t.Fatalf("UUIDv7: length %d in %q", len(id), id)
		}
		if _, ok := seen[id]; ok {
			t.Fatalf("UUIDv7: duplicate at iteration %d", i)
		}
		seen[id] = struct{}{}
	}
}

func TestContext_RoundTrip(t *testing.T) {
	id := Context()
	u, err := ParseUUID(id, "ctx_")
	if err != nil {
		t.Fatalf("ParseUUID(%q): %v", id, err)
	}
	if u.Version() != 7 {
		t.Fatalf("version = %d, want 7", u.Version())
	}
}

func TestParseUUID_Rejects(t *testing.T) {
	if _, err := ParseUUID("run_0190", "ctx_"); err == nil {
		t.Fatal("wrong prefix accepted")
	}
	if _, err := ParseUUID("ctx_not-a-uuid", "ctx_"); err == nil {
		t.Fatal("garbage accepted")
	}
}

func TestSequence(t *testing.T) {
	gen := Sequence("ctx_")
	if a, b := gen(), gen(); a != "ctx_1" || b != "ctx_2" {
		t.Fatalf("sequence = %q, %q", a, b)
	}
}
