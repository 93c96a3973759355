package engine

import (
	"fmt"

	"iq-scope/internal/history"
	"iq-scope/internal/trace"
	"iq-scope/internal/trigger"
)

// Configuration operations. Every exported method here takes cfgMu and
// leaves state untouched when it returns an error. Configure, SetTraces,
// SetTriggers, the Change and Focus edits and the policy setters give the
// same state when applied twice with the same values; Add, Remove and Move
// are incremental edits and do not.

// ringCapacity is the history size needed to keep four traces of headroom
// behind the search position.
func (e *Engine) ringCapacity() int {
	return 4*e.settings.TraceSize + e.traces.MaxDelay() + e.settings.PreTrigger
}

func (e *Engine) applySettings(s Settings) {
	e.settings = s
	for i := 0; i < s.Sources; i++ {
		e.ensureSource(i)
	}
	e.resizeHistories()
}

func (e *Engine) ensureSource(i int) {
	if e.sources[i] == nil {
		e.sources[i] = history.NewSource(e.ringCapacity(), e.memoryDepth)
	}
}

func (e *Engine) resizeHistories() {
	c := e.ringCapacity()
	for _, h := range e.sources {
		if h != nil {
			h.Resize(c)
		}
	}
}

// afterEdit runs the bookkeeping shared by every configuration change.
func (e *Engine) afterEdit() {
	var focused *trigger.Spec
	if s, ok := e.chain.FocusedSpec(); ok {
		focused = &s
	}
	e.traces.SetTriggerLevels(focused)
	e.resizeHistories()
	if e.memory > 0 {
		e.replay()
	}
	e.publishStatus()
}

// abandon drops any capture in progress and rearms the trigger chain.
func (e *Engine) abandon() {
	e.pending = false
	e.chain.Rearm()
}

// skipStale moves the search past every sample already in the rings, so
// that only samples fed from now on can trigger. Used when triggering
// resumes after a one-shot wait or a memory replay.
func (e *Engine) skipStale() {
	for _, h := range e.sources {
		if h != nil {
			e.searchPos = max(e.searchPos, h.Written())
		}
	}
	e.abandon()
}

// Configure sets the acquisition parameters. Out-of-range values are
// clamped. A trace size change reallocates the output buffers.
func (e *Engine) Configure(s Settings) {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()

	s = s.clamped()
	resize := s.TraceSize != e.settings.TraceSize
	e.applySettings(s)
	if resize {
		e.out.Resize(e.traces.Len(), s.TraceSize)
	}
	e.abandon()
	e.afterEdit()
}

// Settings returns the current acquisition parameters.
func (e *Engine) Settings() Settings {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	return e.settings
}

func checkSource(i int) error {
	if i < 0 || i >= MaxSources {
		return fmt.Errorf("%w: %d", ErrSourceIndex, i)
	}
	return nil
}

func checkTrace(s trace.Spec) error {
	if err := checkSource(s.Source); err != nil {
		return err
	}
	if !s.Projection.Valid() {
		return fmt.Errorf("%w: %d", ErrProjection, s.Projection)
	}
	return nil
}

func checkTrigger(s trigger.Spec) error {
	if err := checkSource(s.Source); err != nil {
		return err
	}
	if !s.Projection.Valid() {
		return fmt.Errorf("%w: %d", ErrProjection, s.Projection)
	}
	return nil
}

func normTrace(s trace.Spec) trace.Spec {
	s.Delay = max(s.Delay, 0)
	return s
}

func normTrigger(s trigger.Spec) trigger.Spec {
	s.Delay = max(s.Delay, 0)
	s.Repeat = max(s.Repeat, 0)
	return s
}

// ─── Traces ───

// AddTrace appends a trace.
func (e *Engine) AddTrace(s trace.Spec) error {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()

	if e.traces.Len() >= MaxTraces {
		return ErrTooManyTraces
	}
	if err := checkTrace(s); err != nil {
		return err
	}
	e.ensureSource(s.Source)
	e.traces.Add(normTrace(s))
	e.out.Resize(e.traces.Len(), e.settings.TraceSize)
	e.afterEdit()
	return nil
}

// ChangeTrace replaces trace i.
func (e *Engine) ChangeTrace(i int, s trace.Spec) error {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()

	if _, ok := e.traces.At(i); !ok {
		return fmt.Errorf("%w: %d", ErrTraceIndex, i)
	}
	if err := checkTrace(s); err != nil {
		return err
	}
	e.ensureSource(s.Source)
	e.traces.Change(i, normTrace(s))
	e.afterEdit()
	return nil
}

// RemoveTrace deletes trace i.
func (e *Engine) RemoveTrace(i int) error {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()

	if !e.traces.Remove(i) {
		return fmt.Errorf("%w: %d", ErrTraceIndex, i)
	}
	e.out.Resize(e.traces.Len(), e.settings.TraceSize)
	e.afterEdit()
	return nil
}

// MoveTrace swaps trace i with its upper or lower neighbour.
func (e *Engine) MoveTrace(i int, up bool) error {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()

	if !e.traces.Move(i, up) {
		return fmt.Errorf("%w: %d", ErrTraceIndex, i)
	}
	e.afterEdit()
	return nil
}

// FocusTrace selects trace i.
func (e *Engine) FocusTrace(i int) error {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()

	if !e.traces.Focus(i) {
		return fmt.Errorf("%w: %d", ErrTraceIndex, i)
	}
	e.afterEdit()
	return nil
}

// SetTraces replaces the whole trace list. Focus moves to the first trace.
func (e *Engine) SetTraces(specs []trace.Spec) error {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()

	if len(specs) > MaxTraces {
		return ErrTooManyTraces
	}
	norm := make([]trace.Spec, len(specs))
	for i, s := range specs {
		if err := checkTrace(s); err != nil {
			return fmt.Errorf("trace %d: %w", i, err)
		}
		norm[i] = normTrace(s)
	}
	for _, s := range norm {
		e.ensureSource(s.Source)
	}
	e.traces.Set(norm)
	e.out.Resize(e.traces.Len(), e.settings.TraceSize)
	e.afterEdit()
	return nil
}

// Traces returns the trace specs in display order.
func (e *Engine) Traces() []trace.Spec {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	return e.traces.Specs()
}

// ─── Trigger chain ───
// Every structural edit of the chain rearms it.

// AddTrigger appends a link to the trigger chain.
func (e *Engine) AddTrigger(s trigger.Spec) error {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()

	if e.chain.Len() >= MaxTriggers {
		return ErrTooManyTriggers
	}
	if err := checkTrigger(s); err != nil {
		return err
	}
	e.ensureSource(s.Source)
	e.chain.Add(normTrigger(s))
	e.abandon()
	e.afterEdit()
	return nil
}

// ChangeTrigger replaces link i.
func (e *Engine) ChangeTrigger(i int, s trigger.Spec) error {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()

	if _, ok := e.chain.At(i); !ok {
		return fmt.Errorf("%w: %d", ErrTriggerIndex, i)
	}
	if err := checkTrigger(s); err != nil {
		return err
	}
	e.ensureSource(s.Source)
	e.chain.Change(i, normTrigger(s))
	e.abandon()
	e.afterEdit()
	return nil
}

// RemoveTrigger deletes link i.
func (e *Engine) RemoveTrigger(i int) error {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()

	if !e.chain.Remove(i) {
		return fmt.Errorf("%w: %d", ErrTriggerIndex, i)
	}
	e.abandon()
	e.afterEdit()
	return nil
}

// MoveTrigger swaps link i with its successor or predecessor.
func (e *Engine) MoveTrigger(i int, up bool) error {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()

	if !e.chain.Move(i, up) {
		return fmt.Errorf("%w: %d", ErrTriggerIndex, i)
	}
	e.abandon()
	e.afterEdit()
	return nil
}

// FocusTrigger gives display focus to link i.
func (e *Engine) FocusTrigger(i int) error {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()

	if !e.chain.Focus(i) {
		return fmt.Errorf("%w: %d", ErrTriggerIndex, i)
	}
	e.afterEdit()
	return nil
}

// SetTriggers replaces the whole trigger chain and rearms it.
func (e *Engine) SetTriggers(specs []trigger.Spec) error {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()

	if len(specs) > MaxTriggers {
		return ErrTooManyTriggers
	}
	norm := make([]trigger.Spec, len(specs))
	for i, s := range specs {
		if err := checkTrigger(s); err != nil {
			return fmt.Errorf("trigger %d: %w", i, err)
		}
		norm[i] = normTrigger(s)
	}
	for _, s := range norm {
		e.ensureSource(s.Source)
	}
	e.chain.Set(norm)
	e.abandon()
	e.afterEdit()
	return nil
}

// Triggers returns the trigger chain specs in order.
func (e *Engine) Triggers() []trigger.Spec {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	return e.chain.Specs()
}

// ─── Capture policy ───

// SetOneShot enables or disables one-shot mode. Disabling it also clears a
// pending manual reset; samples fed during the wait never trigger.
func (e *Engine) SetOneShot(on bool) {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()

	e.oneShot = on
	if !on && e.waitReset {
		e.waitReset = false
		e.skipStale()
	}
	e.publishStatus()
}

// Rearm is the manual reset: it clears the wait after a one-shot capture
// and restarts the search from the next sample fed.
func (e *Engine) Rearm() {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()

	e.waitReset = false
	e.skipStale()
	e.publishStatus()
}

// SetMemoryIndex selects what the output shows: 0 is the live capture, k > 0
// the k-th most recent snapshot, which is extracted and published at once.
// Live captures resume when 0 is selected again, from the samples fed after
// that point.
func (e *Engine) SetMemoryIndex(k int) error {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()

	if k < 0 || k > e.snapshots() {
		return fmt.Errorf("%w: %d", ErrMemoryIndex, k)
	}
	if k == 0 && e.memory > 0 {
		e.skipStale()
	}
	e.memory = k
	if k > 0 {
		e.replay()
	}
	e.publishStatus()
	return nil
}

// snapshots is the number of snapshots replayable from the reference source.
func (e *Engine) snapshots() int {
	h := e.sources[e.refSource()]
	if h == nil {
		return 0
	}
	return h.Snapshots()
}

// SetSampleRate records the stream sample rate carried in published frames.
func (e *Engine) SetSampleRate(hz int) {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	e.sampleRate = hz
}
