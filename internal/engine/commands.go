package engine

import (
	"iq-scope/internal/trace"
	"iq-scope/internal/trigger"
)

// Command is one configuration change delivered through the worker's
// command queue. Commands map 1:1 onto Engine methods, so replaying the
// same list restores the same state.
type Command interface {
	Apply(e *Engine) error
}

// Configure sets the acquisition parameters.
type Configure struct{ Settings Settings }

func (c Configure) Apply(e *Engine) error { e.Configure(c.Settings); return nil }

type AddTrace struct{ Spec trace.Spec }

func (c AddTrace) Apply(e *Engine) error { return e.AddTrace(c.Spec) }

type ChangeTrace struct {
	Index int
	Spec  trace.Spec
}

func (c ChangeTrace) Apply(e *Engine) error { return e.ChangeTrace(c.Index, c.Spec) }

type RemoveTrace struct{ Index int }

func (c RemoveTrace) Apply(e *Engine) error { return e.RemoveTrace(c.Index) }

type MoveTrace struct {
	Index int
	Up    bool
}

func (c MoveTrace) Apply(e *Engine) error { return e.MoveTrace(c.Index, c.Up) }

type FocusTrace struct{ Index int }

func (c FocusTrace) Apply(e *Engine) error { return e.FocusTrace(c.Index) }

// SetTraces replaces the trace list; used to restore a saved state.
type SetTraces struct{ Specs []trace.Spec }

func (c SetTraces) Apply(e *Engine) error { return e.SetTraces(c.Specs) }

type AddTrigger struct{ Spec trigger.Spec }

func (c AddTrigger) Apply(e *Engine) error { return e.AddTrigger(c.Spec) }

type ChangeTrigger struct {
	Index int
	Spec  trigger.Spec
}

func (c ChangeTrigger) Apply(e *Engine) error { return e.ChangeTrigger(c.Index, c.Spec) }

type RemoveTrigger struct{ Index int }

func (c RemoveTrigger) Apply(e *Engine) error { return e.RemoveTrigger(c.Index) }

type MoveTrigger struct {
	Index int
	Up    bool
}

func (c MoveTrigger) Apply(e *Engine) error { return e.MoveTrigger(c.Index, c.Up) }

type FocusTrigger struct{ Index int }

func (c FocusTrigger) Apply(e *Engine) error { return e.FocusTrigger(c.Index) }

// SetTriggers replaces the trigger chain; used to restore a saved state.
type SetTriggers struct{ Specs []trigger.Spec }

func (c SetTriggers) Apply(e *Engine) error { return e.SetTriggers(c.Specs) }

type SetOneShot struct{ On bool }

func (c SetOneShot) Apply(e *Engine) error { e.SetOneShot(c.On); return nil }

type SetMemoryIndex struct{ Index int }

func (c SetMemoryIndex) Apply(e *Engine) error { return e.SetMemoryIndex(c.Index) }

// Rearm is the manual reset after a one-shot capture.
type Rearm struct{}

func (Rearm) Apply(e *Engine) error { e.Rearm(); return nil }

type SetSampleRate struct{ Hz int }

func (c SetSampleRate) Apply(e *Engine) error { e.SetSampleRate(c.Hz); return nil }
