package probe

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Name identifies a probe. The set is closed; see Names.
type Name string

const (
	NavVerticallyCentered Name = "isNavVerticallyCentered"
	SidebarLayout         Name = "hasSidebarLayout"
	Mobile                Name = "isMobile"
	Tablet                Name = "isTablet"
	Desktop               Name = "isDesktop"
	ViewportWidth         Name = "viewportWidth"
	Grid4Styles           Name = "hasGrid4Styles"
)

// Names lists every probe in run order.
func Names() []Name {
	return []Name{
		NavVerticallyCentered,
		SidebarLayout,
		Mobile,
		Tablet,
		Desktop,
		ViewportWidth,
		Grid4Styles,
	}
}

// ErrUnknownProbe is returned by ParseName for names outside the set.
var ErrUnknownProbe = errors.New("probe: unknown probe")

// ParseName validates a probe name.
func ParseName(s string) (Name, error) {
	for _, n := range Names() {
		if string(n) == s {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProbe, s)
}

// Value is a probe result: a boolean or a number.
type Value struct {
	num bool
	b   bool
	n   float64
}

// Bool wraps a boolean result.
func Bool(b bool) Value { return Value{b: b} }

// Number wraps a numeric result.
func Number(n float64) Value { return Value{num: true, n: n} }

// IsNumber reports whether v holds a number.
func (v Value) IsNumber() bool { return v.num }

// Bool returns the boolean result; numbers are true when non-zero.
func (v Value) Bool() bool {
	if v.num {
		return v.n != 0
	}
	return v.b
}

// Number returns the numeric result; booleans map to 0 and 1.
func (v Value) Number() float64 {
	if v.num {
		return v.n
	}
	if v.b {
		return 1
	}
	return 0
}

// Any returns the bare bool or float64.
func (v Value) Any() any {
	if v.num {
		return v.n
	}
	return v.b
}

func (v Value) String() string {
	if v.num {
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	}
	return strconv.FormatBool(v.b)
}

// MarshalJSON encodes the bare value.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

// UnmarshalJSON accepts a JSON boolean or number.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case bool:
		*v = Bool(x)
	case float64:
		*v = Number(x)
	default:
		return fmt.Errorf("probe: value must be bool or number, got %s", data)
	}
	return nil
}

// Flags is a snapshot of probe results. Snapshots are never mutated after
// publication.
type Flags map[Name]Value

func (f Flags) clone() Flags {
	out := make(Flags, len(f)+1)
	for k, v := range f {
		out[k] = v
	}
	return out
}
