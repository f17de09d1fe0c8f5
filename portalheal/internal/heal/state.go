package heal

import "github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/notify"

// Phase is the corrector state tag.
type Phase int

const (
	Idle Phase = iota
	Trying
	Validating
	Succeeded
	Exhausted
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Trying:
		return "trying"
	case Validating:
		return "validating"
	case Succeeded:
		return "succeeded"
	case Exhausted:
		return "exhausted"
	}
	return "unknown"
}

// State is the tagged union. Method is meaningful in Trying and Validating.
// Epoch identifies the current attempt; settle events from older attempts
// are ignored.
type State struct {
	Phase  Phase
	Method int
	Epoch  uint64
}

// Correction is the progress of one cascade. It is nil until the first
// negative centering observation.
type Correction struct {
	MethodIndex   int    `json:"methodIndex"`
	RetryCount    int    `json:"retryCount"`
	AppliedMethod string `json:"appliedMethod,omitempty"`
	IsApplied     bool   `json:"isApplied"`
}

// events

type event interface{ isEvent() }

// measured carries a centering observation. In Idle it may start a
// cascade; in Validating it decides the attempt.
type measured struct{ centered bool }

// settled is delivered by the settle timer of attempt epoch.
type settled struct{ epoch uint64 }

// reset is ForceReapply.
type reset struct{}

func (measured) isEvent() {}
func (settled) isEvent()  {}
func (reset) isEvent()    {}

// effects

type effect interface{ isEffect() }

type cancelTimer struct{}
type inject struct{ strategy Strategy }
type removeMarker struct{}
type scheduleSettle struct{ epoch uint64 }

// measure asks the executor for a fresh centering observation, fed back
// as a measured event.
type measure struct{}

type attempted struct {
	strategy Strategy
	ok       bool
}

type notice struct {
	msg   string
	level notify.Level
	final string
}

func (cancelTimer) isEffect()    {}
func (inject) isEffect()         {}
func (removeMarker) isEffect()   {}
func (scheduleSettle) isEffect() {}
func (measure) isEffect()        {}
func (attempted) isEffect()      {}
func (notice) isEffect()         {}

// policy is the reducer's read-only configuration.
type policy struct {
	strategies []Strategy
	maxRetries int
}

// reduce is the single transition function. It does no I/O: every side
// effect is returned for the executor.
func reduce(s State, c *Correction, ev event, p policy) (State, *Correction, []effect) {
	switch ev := ev.(type) {
	case reset:
		return State{Phase: Idle, Epoch: s.Epoch + 1}, &Correction{},
			[]effect{cancelTimer{}, removeMarker{}, measure{}}

	case settled:
		if s.Phase != Trying || ev.epoch != s.Epoch {
			return s, c, nil
		}
		s.Phase = Validating
		return s, c, []effect{measure{}}

	case measured:
		switch s.Phase {
		case Idle:
			if ev.centered {
				return s, c, nil
			}
			if c == nil {
				c = &Correction{}
			}
			if c.MethodIndex >= len(p.strategies) {
				return exhaust(s, c)
			}
			return try(s, c, c.MethodIndex, p)

		case Validating:
			strategy := p.strategies[s.Method]
			if ev.centered {
				next := *c
				next.AppliedMethod = string(strategy)
				next.IsApplied = true
				next.RetryCount = 0
				s.Phase = Succeeded
				return s, &next, []effect{
					cancelTimer{},
					attempted{strategy: strategy, ok: true},
					notice{
						msg:   "Navigation alignment corrected using the " + string(strategy) + " method",
						level: notify.LevelSuccess,
						final: "succeeded",
					},
				}
			}

			next := *c
			fx := []effect{removeMarker{}, attempted{strategy: strategy, ok: false}}
			if next.RetryCount < p.maxRetries && s.Method+1 < len(p.strategies) {
				next.RetryCount++
				ns, nc, more := try(s, &next, s.Method+1, p)
				return ns, nc, append(fx, more...)
			}
			ns, nc, more := exhaust(s, &next)
			return ns, nc, append(fx, more...)
		}
		return s, c, nil
	}
	return s, c, nil
}

func try(s State, c *Correction, i int, p policy) (State, *Correction, []effect) {
	next := *c
	next.MethodIndex = i
	next.IsApplied = false
	next.AppliedMethod = ""
	ns := State{Phase: Trying, Method: i, Epoch: s.Epoch + 1}
	return ns, &next, []effect{
		cancelTimer{},
		inject{strategy: p.strategies[i]},
		scheduleSettle{epoch: ns.Epoch},
	}
}

func exhaust(s State, c *Correction) (State, *Correction, []effect) {
	s.Phase = Exhausted
	next := *c
	next.IsApplied = false
	next.AppliedMethod = ""
	return s, &next, []effect{
		cancelTimer{},
		notice{
			msg:   "Navigation alignment could not be corrected automatically",
			level: notify.LevelError,
			final: "exhausted",
		},
	}
}
