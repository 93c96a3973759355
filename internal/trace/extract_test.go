package trace

import (
	"testing"

	"iq-scope/internal/model"
	"iq-scope/internal/projector"
	"iq-scope/internal/trigger"
)

func constant(v float32, n int) []model.Sample {
	out := make([]model.Sample, n)
	for i := range out {
		out[i] = complex(v, 0)
	}
	return out
}

func buffers(n, size int) []model.TraceBuffer {
	out := make([]model.TraceBuffer, n)
	for i := range out {
		out[i].Points = make([]model.Point, size)
	}
	return out
}

// TestTracebackByDelay verifies each trace only takes its own delay from
// the traceback window.
func TestTracebackByDelay(t *testing.T) {
	var l List
	l.Add(Spec{Source: 0, Projection: projector.Real, Amp: 1, Delay: 100})
	l.Add(Spec{Source: 0, Projection: projector.Real, Amp: 1, Delay: 0})
	lay := NewLayout(200, 1, 0)
	out := buffers(2, 200)
	var cache projector.Cache

	l.Begin(out)
	l.Extract(out, 0, constant(-0.5, 100), 0, true, lay, &cache)
	if l.Cursor(0) != 100 || l.Cursor(1) != 0 {
		t.Fatalf("after traceback cursors = %d,%d; want 100,0", l.Cursor(0), l.Cursor(1))
	}
	l.Extract(out, 0, constant(0.5, 200), 100, false, lay, &cache)

	if !l.Complete(200) {
		t.Fatal("pass should be complete")
	}
	if out[0].Points[99].Y != -0.5 || out[0].Points[100].Y != 0.5 {
		t.Fatalf("delayed trace boundary = %v,%v", out[0].Points[99].Y, out[0].Points[100].Y)
	}
	for i, p := range out[1].Points {
		if p.Y != 0.5 {
			t.Fatalf("undelayed trace point %d = %v", i, p.Y)
		}
	}
}

// TestPartialTraceback verifies a delay below the window length takes only
// the tail of the window.
func TestPartialTraceback(t *testing.T) {
	var l List
	l.Add(Spec{Projection: projector.Real, Amp: 1, Delay: 3})
	lay := NewLayout(8, 1, 0)
	out := buffers(1, 8)

	window := make([]model.Sample, 10)
	for i := range window {
		window[i] = complex(float32(i)/10, 0)
	}
	l.Begin(out)
	l.Extract(out, 0, window, 0, true, lay, nil)
	if l.Cursor(0) != 3 {
		t.Fatalf("cursor = %d, want 3", l.Cursor(0))
	}
	if out[0].Points[0].Y != float32(7)/10 {
		t.Fatalf("first point = %v, want 0.7", out[0].Points[0].Y)
	}
}

func TestClampAndScale(t *testing.T) {
	var l List
	l.Add(Spec{Projection: projector.Real, Amp: 2, Offset: 0.25})
	lay := NewLayout(4, 1, 0)
	out := buffers(1, 4)

	l.Begin(out)
	l.Extract(out, 0, []model.Sample{complex(0.5, 0), complex(2, 0), complex(-3, 0), 0}, 0, false, lay, nil)
	want := []float32{0.5, 1, -1, -0.5}
	for i, w := range want {
		if out[0].Points[i].Y != w {
			t.Errorf("point %d = %v, want %v", i, out[0].Points[i].Y, w)
		}
	}
}

// TestShiftAndStop verifies x coordinates and that writing stops at traceSize.
func TestShiftAndStop(t *testing.T) {
	var l List
	l.Add(Spec{Projection: projector.Real, Amp: 1})
	lay := NewLayout(10, 1, 500)
	if lay.Shift != 5 || lay.Length != 10 {
		t.Fatalf("layout = %+v", lay)
	}
	out := buffers(1, 10)

	l.Begin(out)
	l.Extract(out, 0, constant(0.1, 25), 0, false, lay, nil)
	if out[0].Count != 10 {
		t.Fatalf("count = %d, want 10", out[0].Count)
	}
	if out[0].Points[0].X != -5 || out[0].Points[9].X != 4 {
		t.Fatalf("x range = %v..%v", out[0].Points[0].X, out[0].Points[9].X)
	}
}

func TestOtherSourceIgnored(t *testing.T) {
	var l List
	l.Add(Spec{Source: 1, Projection: projector.Real, Amp: 1})
	out := buffers(1, 4)
	l.Begin(out)
	l.Extract(out, 0, constant(0.1, 4), 0, false, NewLayout(4, 1, 0), nil)
	if l.Cursor(0) != 0 {
		t.Fatalf("cursor = %d, want 0", l.Cursor(0))
	}
}

// TestMagDBOverlay verifies the overlay covers the displayed window only.
func TestMagDBOverlay(t *testing.T) {
	var l List
	l.Add(Spec{Projection: projector.MagDB, Amp: 0.01})
	// Displayed window is cursors [0, 2) with time base 2.
	lay := NewLayout(4, 2, 0)
	out := buffers(1, 4)

	// |s|² of 0.1 is -20 dB, of 1 is 0 dB.
	samples := []model.Sample{complex(0.1, 0), complex(1, 0), complex(1, 0), complex(1, 0)}
	l.Begin(out)
	l.Extract(out, 0, samples, 0, false, lay, nil)

	want := "0.0  -10.0  10.0"
	if out[0].Overlay != want {
		t.Fatalf("overlay = %q, want %q", out[0].Overlay, want)
	}
	if l.Overlay(0) != want {
		t.Fatalf("state overlay = %q", l.Overlay(0))
	}

	l.Begin(out)
	if out[0].Overlay != "" {
		t.Fatal("Begin should clear the overlay")
	}
}

// TestCacheShared verifies traces of the same kind share one evaluation.
func TestCacheShared(t *testing.T) {
	var l List
	l.Add(Spec{Projection: projector.MagLin, Amp: 1})
	l.Add(Spec{Projection: projector.MagLin, Amp: 0.5})
	l.Add(Spec{Projection: projector.Phase, Amp: 1})
	out := buffers(3, 5)
	var cache projector.Cache

	l.Begin(out)
	l.Extract(out, 0, constant(0.4, 5), 0, false, NewLayout(5, 1, 0), &cache)
	if cache.Hits() != 5 {
		t.Fatalf("hits = %d, want 5", cache.Hits())
	}
	if out[1].Points[0].Y != float32(0.4)*0.5 {
		t.Fatalf("scaled point = %v", out[1].Points[0].Y)
	}
}

func TestListEdits(t *testing.T) {
	var l List
	l.Add(Spec{Delay: 5})
	l.Add(Spec{Delay: 20, Source: 2})
	l.Add(Spec{Delay: 10})
	if l.MaxDelay() != 20 {
		t.Fatalf("max delay = %d", l.MaxDelay())
	}
	if got := l.Sources(); len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Fatalf("sources = %v", got)
	}

	l.Focus(2)
	if !l.Remove(1) {
		t.Fatal("remove failed")
	}
	if l.MaxDelay() != 10 || l.Focused() != 1 {
		t.Fatalf("max delay=%d focused=%d", l.MaxDelay(), l.Focused())
	}
	if l.Remove(2) || l.Change(-1, Spec{}) || l.Focus(5) || l.Move(9, true) {
		t.Fatal("out of range edits must fail")
	}

	l.Move(1, true)
	first, _ := l.At(0)
	if first.Delay != 10 {
		t.Fatalf("after move first delay = %d", first.Delay)
	}
}

func TestRemoveKeepsFocusedTrace(t *testing.T) {
	var l List
	for d := 1; d <= 3; d++ {
		l.Add(Spec{Delay: d})
	}
	l.Focus(2)
	l.Remove(0)
	if s, _ := l.At(l.Focused()); l.Focused() != 1 || s.Delay != 3 {
		t.Fatalf("focused = %d (delay %d), want 1 (delay 3)", l.Focused(), s.Delay)
	}

	l.Set([]Spec{{Delay: 7}})
	if l.Len() != 1 || l.Focused() != 0 || l.MaxDelay() != 7 {
		t.Fatalf("after Set: len %d focused %d max delay %d", l.Len(), l.Focused(), l.MaxDelay())
	}
}

func TestDisplayLevels(t *testing.T) {
	var l List
	l.Add(Spec{Projection: projector.MagLin, Amp: 2, Offset: 0.25})
	l.Add(Spec{Projection: projector.Real, Amp: 1})

	l.SetTriggerLevels(&trigger.Spec{Projection: projector.MagLin, Level: 0.5})
	if l.TriggerLevel(0) != 0.5 {
		t.Fatalf("level 0 = %v, want 0.5", l.TriggerLevel(0))
	}
	if l.TriggerLevel(1) != OffScale {
		t.Fatalf("level 1 = %v, want off scale", l.TriggerLevel(1))
	}

	l.SetTriggerLevels(nil)
	if l.TriggerLevel(0) != OffScale {
		t.Fatal("no trigger should put every level off scale")
	}
}
