package trace

import (
	"iq-scope/internal/projector"
	"iq-scope/internal/trigger"
)

// OffScale is the display trigger level of a trace the focused trigger does
// not apply to.
const OffScale = 2.0

// Spec is the configuration of one displayed trace.
type Spec struct {
	Source     int
	Projection projector.Kind
	Amp        float32
	Offset     float32
	Delay      int // traceback samples consumed before the trigger
}

// state is mutated while a capture is extracted and reset every pass.
type state struct {
	proj    projector.Projector
	cursor  int
	stats   projector.PowerStats
	overlay string

	triggerLevel float32
}

// List is the ordered set of traces. Not safe for concurrent use; the
// engine guards it with its configuration lock.
type List struct {
	specs   []Spec
	states  []state
	focused int
}

// Len returns the number of traces.
func (l *List) Len() int { return len(l.specs) }

// At returns the spec of trace i.
func (l *List) At(i int) (Spec, bool) {
	if i < 0 || i >= len(l.specs) {
		return Spec{}, false
	}
	return l.specs[i], true
}

// Specs returns a copy of all specs in display order.
func (l *List) Specs() []Spec {
	out := make([]Spec, len(l.specs))
	copy(out, l.specs)
	return out
}

// Focused returns the index of the focused trace.
func (l *List) Focused() int { return l.focused }

// Add appends a trace and returns its index.
func (l *List) Add(spec Spec) int {
	l.specs = append(l.specs, spec)
	l.states = append(l.states, state{
		proj:         projector.New(spec.Projection),
		triggerLevel: OffScale,
	})
	return len(l.specs) - 1
}

// Change replaces the spec of trace i.
func (l *List) Change(i int, spec Spec) bool {
	if i < 0 || i >= len(l.specs) {
		return false
	}
	l.specs[i] = spec
	l.states[i].proj.SetKind(spec.Projection)
	return true
}

// Remove deletes trace i.
func (l *List) Remove(i int) bool {
	if i < 0 || i >= len(l.specs) {
		return false
	}
	l.specs = append(l.specs[:i], l.specs[i+1:]...)
	l.states = append(l.states[:i], l.states[i+1:]...)
	if i < l.focused {
		l.focused--
	}
	l.focused = min(l.focused, max(0, len(l.specs)-1))
	return true
}

// Set replaces every trace with specs and moves focus to the first.
func (l *List) Set(specs []Spec) {
	l.specs, l.states, l.focused = nil, nil, 0
	for _, s := range specs {
		l.Add(s)
	}
}

// Move swaps trace i with its upper neighbour (wrapping to 0 past the end)
// or its lower neighbour. Moving index 0 down is a no-op.
func (l *List) Move(i int, up bool) bool {
	n := len(l.specs)
	if i < 0 || i >= n {
		return false
	}
	j := i - 1
	if up {
		j = (i + 1) % n
	} else if i == 0 {
		return true
	}
	l.specs[i], l.specs[j] = l.specs[j], l.specs[i]
	l.states[i], l.states[j] = l.states[j], l.states[i]
	return true
}

// Focus selects trace i.
func (l *List) Focus(i int) bool {
	if i < 0 || i >= len(l.specs) {
		return false
	}
	l.focused = i
	return true
}

// MaxDelay returns the largest trace delay, 0 for an empty list.
func (l *List) MaxDelay() int {
	m := 0
	for _, s := range l.specs {
		m = max(m, s.Delay)
	}
	return m
}

// Sources returns the distinct source indices referenced by traces, in
// first-use order.
func (l *List) Sources() []int {
	var out []int
	seen := map[int]bool{}
	for _, s := range l.specs {
		if !seen[s.Source] {
			seen[s.Source] = true
			out = append(out, s.Source)
		}
	}
	return out
}

// SetTriggerLevels recomputes the display trigger level of every trace for
// the focused trigger, nil meaning no trigger.
func (l *List) SetTriggerLevels(focused *trigger.Spec) {
	for i, s := range l.specs {
		l.states[i].triggerLevel = DisplayLevel(s, focused)
	}
}

// TriggerLevel returns the display trigger level of trace i.
func (l *List) TriggerLevel(i int) float32 {
	if i < 0 || i >= len(l.states) {
		return OffScale
	}
	return l.states[i].triggerLevel
}

// DisplayLevel maps a trigger level into a trace's display units.
func DisplayLevel(s Spec, t *trigger.Spec) float32 {
	if t == nil || t.Projection != s.Projection {
		return OffScale
	}
	return clamp((t.Level - s.Offset) * s.Amp)
}

func clamp(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
