package history

import (
	"errors"
	"testing"

	"iq-scope/internal/model"
)

func ramp(from, n int) []model.Sample {
	out := make([]model.Sample, n)
	for i := range out {
		out[i] = complex(float32(from+i), 0)
	}
	return out
}

func checkRamp(t *testing.T, got []model.Sample, from int) {
	t.Helper()
	for i, v := range got {
		if real(v) != float32(from+i) {
			t.Fatalf("sample %d: got %v, want %d", i, real(v), from+i)
		}
	}
}

// TestPushWraps verifies absolute addressing across ring wrap-around.
func TestPushWraps(t *testing.T) {
	s := NewSource(8, 4)
	s.Push(ramp(0, 5))
	s.Push(ramp(5, 6))

	if s.Written() != 11 {
		t.Fatalf("written = %d, want 11", s.Written())
	}
	if s.Oldest() != 3 {
		t.Fatalf("oldest = %d, want 3", s.Oldest())
	}
	if _, ok := s.At(2); ok {
		t.Fatal("position 2 should have been overwritten")
	}
	if v, ok := s.At(10); !ok || real(v) != 10 {
		t.Fatalf("At(10) = %v, %v", v, ok)
	}

	w, err := s.WindowBack(nil, 11, 8)
	if err != nil {
		t.Fatalf("WindowBack: %v", err)
	}
	checkRamp(t, w, 3)
}

// TestPushLargerThanCapacity verifies only the tail of an oversized batch is kept.
func TestPushLargerThanCapacity(t *testing.T) {
	s := NewSource(4, 1)
	s.Push(ramp(0, 10))
	if s.Written() != 10 || s.Oldest() != 6 {
		t.Fatalf("written=%d oldest=%d", s.Written(), s.Oldest())
	}
	w, err := s.WindowBack(nil, 10, 4)
	if err != nil {
		t.Fatal(err)
	}
	checkRamp(t, w, 6)
}

// TestWindowBackBounds verifies unavailable windows are reported.
func TestWindowBackBounds(t *testing.T) {
	s := NewSource(8, 1)
	s.Push(ramp(0, 12))

	if _, err := s.WindowBack(nil, 13, 2); !errors.Is(err, ErrShortRead) {
		t.Fatalf("future window: err = %v", err)
	}
	if _, err := s.WindowBack(nil, 6, 4); !errors.Is(err, ErrShortRead) {
		t.Fatalf("overwritten window: err = %v", err)
	}
	w, err := s.WindowBack(make([]model.Sample, 0, 2), 8, 4)
	if err != nil {
		t.Fatal(err)
	}
	checkRamp(t, w, 4)
}

// TestResizeKeepsRecent verifies resizing preserves positions and newest data.
func TestResizeKeepsRecent(t *testing.T) {
	s := NewSource(8, 1)
	s.Push(ramp(0, 10))

	s.Resize(4)
	if s.Oldest() != 6 {
		t.Fatalf("oldest after shrink = %d, want 6", s.Oldest())
	}
	w, _ := s.WindowBack(nil, 10, 4)
	checkRamp(t, w, 6)

	s.Resize(16)
	if s.Oldest() != 6 || s.Capacity() != 16 {
		t.Fatalf("oldest=%d cap=%d", s.Oldest(), s.Capacity())
	}
	// Positions lost by the shrink stay unreadable.
	if _, err := s.WindowBack(nil, 10, 5); !errors.Is(err, ErrShortRead) {
		t.Fatalf("err = %v, want ErrShortRead", err)
	}
	s.Push(ramp(10, 3))
	w, _ = s.WindowBack(nil, 13, 7)
	checkRamp(t, w, 6)
}

// TestSnapshotsFrozen verifies snapshots survive ring overwrite.
func TestSnapshotsFrozen(t *testing.T) {
	s := NewSource(16, 3)
	s.Push(ramp(0, 10))
	s.MarkSnapshot(10, 2, 1, 4)

	s.Push(ramp(10, 40))

	snap, err := s.ReplaySnapshot(1)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Trigger() != 6 {
		t.Fatalf("trigger = %d, want 6", snap.Trigger())
	}
	tb, pre, main := snap.Regions()
	checkRamp(t, tb, 3)
	checkRamp(t, pre, 5)
	checkRamp(t, main, 6)
	if len(main) != 4 {
		t.Fatalf("main len = %d", len(main))
	}
}

// TestSnapshotOrdering verifies index 1 is the latest and depth is bounded.
func TestSnapshotOrdering(t *testing.T) {
	s := NewSource(64, 2)
	s.Push(ramp(0, 30))
	s.MarkSnapshot(10, 0, 0, 1)
	s.MarkSnapshot(20, 0, 0, 1)
	s.MarkSnapshot(30, 0, 0, 1)

	if s.Snapshots() != 2 {
		t.Fatalf("snapshots = %d, want 2", s.Snapshots())
	}
	latest, _ := s.ReplaySnapshot(1)
	prev, _ := s.ReplaySnapshot(2)
	if latest.End != 30 || prev.End != 20 {
		t.Fatalf("ends = %d,%d", latest.End, prev.End)
	}
	if _, err := s.ReplaySnapshot(3); !errors.Is(err, ErrSnapshotIndex) {
		t.Fatalf("err = %v", err)
	}
	if _, err := s.ReplaySnapshot(0); !errors.Is(err, ErrSnapshotIndex) {
		t.Fatalf("err = %v", err)
	}
}

// TestEmptySnapshot verifies an unavailable window still occupies a slot.
func TestEmptySnapshot(t *testing.T) {
	s := NewSource(8, 4)
	s.MarkSnapshot(5, 0, 0, 5)
	snap, err := s.ReplaySnapshot(1)
	if err != nil {
		t.Fatal(err)
	}
	if !snap.Empty() {
		t.Fatal("expected empty snapshot")
	}
}

func TestSnapshotRingSetCapacity(t *testing.T) {
	r := NewSnapshotRing(4)
	for i := 0; i < 6; i++ {
		r.Add(Snapshot{End: int64(i)})
	}
	r.SetCapacity(2)
	all := r.All()
	if len(all) != 2 || all[0].End != 4 || all[1].End != 5 {
		t.Fatalf("all = %+v", all)
	}
	r.SetCapacity(3)
	r.Add(Snapshot{End: 6})
	if s, _ := r.Back(3); s.End != 4 {
		t.Fatalf("Back(3) = %d", s.End)
	}
}
