package trigger

import (
	"iq-scope/internal/model"
)

// =============================================================================
// TRIGGER CHAIN STATE MACHINE
// =============================================================================
//
//   Idle ──match, delay>0──▶ Delaying ──countdown==0──▶ advance
//   Idle ──match, delay=0──────────────────────────────▶ advance
//
//   advance:
//     repeatCount < repeat   → repeatCount++, stay on link, Idle
//     else                   → repeatCount=0, next link, Idle
//     past the last link     → Captured, back to link 0
//
// Links are evaluated strictly in order. Only the current link is looked at,
// so a match on a later link while an earlier one is pending is ignored.
// The comparator is reset on every advance: the first sample after it only
// primes the edge detector.
// =============================================================================

// State of the chain.
type State int

const (
	Idle State = iota
	Delaying
	Captured
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Delaying:
		return "delaying"
	case Captured:
		return "captured"
	}
	return "unknown"
}

// Chain is the ordered list of trigger conditions and the state machine
// running over it. Not safe for concurrent use; the engine serializes access.
type Chain struct {
	conds   []*Condition
	current int
	focused int
	state   State
	cmp     Comparator
}

// NewChain returns an empty chain.
func NewChain() *Chain {
	return &Chain{}
}

// Len returns the number of links.
func (ch *Chain) Len() int { return len(ch.conds) }

// State returns the state of the machine.
func (ch *Chain) State() State { return ch.state }

// Index returns the link currently being evaluated.
func (ch *Chain) Index() int { return ch.current }

// Focused returns the index of the link that has display focus.
func (ch *Chain) Focused() int { return ch.focused }

// Current returns the link being evaluated, nil for an empty chain.
func (ch *Chain) Current() *Condition {
	if len(ch.conds) == 0 {
		return nil
	}
	return ch.conds[ch.current]
}

// At returns link i.
func (ch *Chain) At(i int) (*Condition, bool) {
	if i < 0 || i >= len(ch.conds) {
		return nil, false
	}
	return ch.conds[i], true
}

// FocusedSpec returns the spec of the focused link.
func (ch *Chain) FocusedSpec() (Spec, bool) {
	c, ok := ch.At(ch.focused)
	if !ok {
		return Spec{}, false
	}
	return c.spec, true
}

// Specs returns a copy of every link's spec in chain order.
func (ch *Chain) Specs() []Spec {
	out := make([]Spec, len(ch.conds))
	for i, c := range ch.conds {
		out[i] = c.spec
	}
	return out
}

// Add appends a link.
func (ch *Chain) Add(spec Spec) {
	ch.conds = append(ch.conds, NewCondition(spec))
	ch.Rearm()
}

// Change replaces the spec of link i.
func (ch *Chain) Change(i int, spec Spec) bool {
	c, ok := ch.At(i)
	if !ok {
		return false
	}
	c.SetSpec(spec)
	ch.Rearm()
	return true
}

// Remove deletes link i.
func (ch *Chain) Remove(i int) bool {
	if i < 0 || i >= len(ch.conds) {
		return false
	}
	ch.conds = append(ch.conds[:i], ch.conds[i+1:]...)
	if i < ch.focused {
		ch.focused--
	}
	ch.focused = min(ch.focused, max(0, len(ch.conds)-1))
	ch.Rearm()
	return true
}

// Set replaces every link with specs, focuses the first and rearms.
func (ch *Chain) Set(specs []Spec) {
	ch.conds = make([]*Condition, 0, len(specs))
	for _, s := range specs {
		ch.conds = append(ch.conds, NewCondition(s))
	}
	ch.focused = 0
	ch.Rearm()
}

// Move swaps link i with its successor (up, wrapping to the first link) or
// its predecessor (down). Moving the first link down is a no-op.
func (ch *Chain) Move(i int, up bool) bool {
	if i < 0 || i >= len(ch.conds) {
		return false
	}
	if !up && i == 0 {
		return true
	}
	j := i - 1
	if up {
		j = (i + 1) % len(ch.conds)
	}
	ch.conds[i], ch.conds[j] = ch.conds[j], ch.conds[i]
	ch.Rearm()
	return true
}

// Focus gives display focus to link i.
func (ch *Chain) Focus(i int) bool {
	if i < 0 || i >= len(ch.conds) {
		return false
	}
	ch.focused = i
	return true
}

// Rearm returns the machine to Idle on the first link with every counter
// cleared.
func (ch *Chain) Rearm() {
	for _, c := range ch.conds {
		c.clear()
	}
	ch.current = 0
	ch.state = Idle
	ch.cmp.Reset()
}

// Step feeds one sample of the current link's source. It returns true when
// the sample completes the chain; the machine is then Captured until Rearm.
// An empty chain never captures through Step.
func (ch *Chain) Step(s model.Sample) bool {
	c := ch.Current()
	if c == nil || ch.state == Captured {
		return false
	}

	if ch.state == Delaying {
		c.delayCount--
		if c.delayCount > 0 {
			return false
		}
		return ch.advance()
	}

	if !ch.cmp.Triggered(s, c) {
		return false
	}
	if c.spec.Delay > 0 {
		c.delayCount = c.spec.Delay
		ch.state = Delaying
		return false
	}
	return ch.advance()
}

func (ch *Chain) advance() bool {
	c := ch.conds[ch.current]
	ch.cmp.Reset()
	ch.state = Idle

	if c.repeatCount < c.spec.Repeat {
		c.repeatCount++
		return false
	}
	c.repeatCount = 0

	if ch.current < len(ch.conds)-1 {
		ch.current++
		return false
	}

	ch.current = 0
	ch.state = Captured
	return true
}
