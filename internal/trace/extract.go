package trace

import (
	"iq-scope/internal/model"
	"iq-scope/internal/projector"
)

// =============================================================================
// TRACE EXTRACTION
// =============================================================================
//
// One capture is extracted in a pass over up to three windows per source:
//
//   traceback  [T - pre - maxDelay, T - pre)   only if maxDelay > 0
//   pre        [T - pre, T)                    only if pre > 0
//   main       [T, T + traceSize)
//
// In the traceback window a trace only takes the last Delay samples, so a
// trace with Delay d starts d samples before the others. Every trace writes
// (cursor - shift, clamp((v - offset) * amp)) and stops at traceSize.
// =============================================================================

// Layout is the horizontal geometry of a capture.
type Layout struct {
	TraceSize int
	Shift     int // cursor value displayed at x = 0
	Length    int // number of displayed samples
}

// NewLayout derives the layout from the trace size, the time base and the
// time offset in 1/1000 of the trace size.
func NewLayout(traceSize, timeBase, timeOfsPerMille int) Layout {
	timeBase = max(timeBase, 1)
	return Layout{
		TraceSize: traceSize,
		Shift:     timeOfsPerMille * traceSize / 1000,
		Length:    traceSize / timeBase,
	}
}

// Begin starts a pass: cursors, statistics and stateful projectors are
// reset and the output buffers are stamped with the trace metadata. out
// must hold one buffer per trace.
func (l *List) Begin(out []model.TraceBuffer) {
	for i := range l.states {
		st := &l.states[i]
		st.cursor = 0
		st.overlay = ""
		st.stats.Reset()
		st.proj.Reset()

		b := &out[i]
		b.Source = l.specs[i].Source
		b.Projection = l.specs[i].Projection.String()
		b.Count = 0
		b.Overlay = ""
		b.TriggerLevel = st.triggerLevel
	}
}

// Extract runs one window of one source through every trace bound to it.
// base is the absolute position of window[0]; it keys the projection cache.
func (l *List) Extract(out []model.TraceBuffer, source int, window []model.Sample, base int64, traceback bool, lay Layout, cache *projector.Cache) {
	if cache != nil {
		cache.Invalidate()
	}
	end := lay.Shift + lay.Length

	for i, s := range window {
		if cache != nil {
			cache.Load(base + int64(i))
		}
		remaining := len(window) - i

		for ti := range l.specs {
			spec := &l.specs[ti]
			if spec.Source != source {
				continue
			}
			if traceback && remaining > spec.Delay {
				continue
			}
			st := &l.states[ti]
			if st.cursor >= lay.TraceSize {
				continue
			}
			b := &out[ti]
			if st.cursor >= len(b.Points) {
				continue
			}

			v := st.proj.RunCached(s, cache)

			if spec.Projection == projector.MagDB && st.cursor >= lay.Shift && st.cursor < end {
				if st.cursor == lay.Shift {
					st.stats.Reset()
				}
				st.stats.Add(v)
				if st.cursor == end-1 {
					if text, ok := st.stats.Text(); ok {
						st.overlay = text
						b.Overlay = text
					}
				}
			}

			b.Points[st.cursor] = model.Point{
				X: float32(st.cursor - lay.Shift),
				Y: clamp((v - spec.Offset) * spec.Amp),
			}
			st.cursor++
			b.Count = st.cursor
		}
	}
}

// Complete reports whether every trace has reached traceSize.
func (l *List) Complete(traceSize int) bool {
	for i := range l.states {
		if l.states[i].cursor < traceSize {
			return false
		}
	}
	return true
}

// Cursor returns the write cursor of trace i.
func (l *List) Cursor(i int) int {
	if i < 0 || i >= len(l.states) {
		return 0
	}
	return l.states[i].cursor
}

// Overlay returns the last finalized overlay text of trace i.
func (l *List) Overlay(i int) string {
	if i < 0 || i >= len(l.states) {
		return ""
	}
	return l.states[i].overlay
}
