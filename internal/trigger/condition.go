package trigger

import (
	"fmt"

	"iq-scope/internal/model"
	"iq-scope/internal/projector"
)

// Edge selects which transitions across the level count as a match.
type Edge int

const (
	Rising Edge = iota
	Falling
	Both
)

func (e Edge) String() string {
	switch e {
	case Rising:
		return "rising"
	case Falling:
		return "falling"
	case Both:
		return "both"
	}
	return fmt.Sprintf("edge(%d)", int(e))
}

// ParseEdge is the inverse of Edge.String.
func ParseEdge(s string) (Edge, error) {
	switch s {
	case "rising", "":
		return Rising, nil
	case "falling":
		return Falling, nil
	case "both":
		return Both, nil
	}
	return 0, fmt.Errorf("unknown edge %q", s)
}

// Spec is the configured part of one link of the trigger chain.
type Spec struct {
	Source     int
	Projection projector.Kind
	Level      float32 // in projected units
	Edge       Edge
	Delay      int // samples swallowed after the match before it counts
	Repeat     int // additional matches required before advancing
}

// Condition is a Spec plus the counters mutated while the chain runs.
type Condition struct {
	spec Spec
	proj projector.Projector

	prevCondition bool
	delayCount    int
	repeatCount   int
}

// NewCondition builds a condition in its initial state.
func NewCondition(spec Spec) *Condition {
	return &Condition{spec: spec, proj: projector.New(spec.Projection)}
}

// Spec returns the configured part of the condition.
func (c *Condition) Spec() Spec { return c.spec }

// SetSpec replaces the configuration and clears all counters.
func (c *Condition) SetSpec(spec Spec) {
	c.spec = spec
	c.proj.SetKind(spec.Projection)
	c.clear()
}

func (c *Condition) clear() {
	c.prevCondition = false
	c.delayCount = 0
	c.repeatCount = 0
	c.proj.Reset()
}

// Comparator applies a condition's level and edge rule to one sample.
//
// After a reset the next sample only primes the previous-state of the
// condition and never matches: an edge needs two samples.
type Comparator struct {
	primed bool
}

// Reset forces the next sample to prime the condition.
func (cmp *Comparator) Reset() {
	cmp.primed = false
}

// Triggered reports whether s completes an edge of c.
func (cmp *Comparator) Triggered(s model.Sample, c *Condition) bool {
	cond := c.proj.Run(s) > c.spec.Level

	if !cmp.primed {
		c.prevCondition = cond
		cmp.primed = true
		return false
	}

	var hit bool
	switch c.spec.Edge {
	case Both:
		hit = c.prevCondition != cond
	case Falling:
		hit = c.prevCondition && !cond
	default:
		hit = !c.prevCondition && cond
	}
	c.prevCondition = cond
	return hit
}
