package history

import (
	"errors"

	"iq-scope/internal/model"
)

// =============================================================================
// SOURCE HISTORY — absolute-position ring
// =============================================================================
//
// Every sample ever pushed for a source has an absolute position: the first
// sample is 0, the n-th is n-1. Written() is one past the newest position.
// The ring keeps the most recent Capacity() samples:
//
//   oldest = max(floor, written - capacity)
//   pos p is readable  ⇔  oldest ≤ p < written
//   ring index of p    =  p mod capacity
//
// Push never fails: once full, the oldest samples are silently overwritten.
// =============================================================================

var (
	// ErrShortRead is returned when part of a requested window was never
	// written or has already been overwritten.
	ErrShortRead = errors.New("history: window not available")

	// ErrSnapshotIndex is returned for a snapshot index outside the list.
	ErrSnapshotIndex = errors.New("history: snapshot index out of range")
)

// Source is the history of one sample stream. Not safe for concurrent use.
type Source struct {
	ring    []model.Sample
	written int64
	floor   int64 // positions below floor were dropped by a shrink

	snapshots *SnapshotRing
}

// NewSource returns a history holding capacity samples and up to depth
// snapshots.
func NewSource(capacity, depth int) *Source {
	return &Source{
		ring:      make([]model.Sample, max(capacity, 1)),
		snapshots: NewSnapshotRing(depth),
	}
}

// Capacity returns the number of samples the ring holds.
func (s *Source) Capacity() int { return len(s.ring) }

// Written returns one past the newest absolute position.
func (s *Source) Written() int64 { return s.written }

// Oldest returns the oldest readable absolute position.
func (s *Source) Oldest() int64 {
	return max(s.floor, s.written-int64(len(s.ring)))
}

// Push appends samples, overwriting the oldest ones past capacity.
func (s *Source) Push(samples []model.Sample) {
	n := len(s.ring)
	if len(samples) >= n {
		// Only the tail survives.
		skip := len(samples) - n
		s.written += int64(skip)
		samples = samples[skip:]
	}
	head := int(s.written % int64(n))
	c := copy(s.ring[head:], samples)
	copy(s.ring, samples[c:])
	s.written += int64(len(samples))
}

// At returns the sample at absolute position pos.
func (s *Source) At(pos int64) (model.Sample, bool) {
	if pos < s.Oldest() || pos >= s.written {
		return 0, false
	}
	return s.ring[pos%int64(len(s.ring))], true
}

// WindowBack copies the window [end-length, end) into dst (reusing its
// storage) and returns it.
func (s *Source) WindowBack(dst []model.Sample, end int64, length int) ([]model.Sample, error) {
	dst = dst[:0]
	if length <= 0 {
		return dst, nil
	}
	begin := end - int64(length)
	if begin < s.Oldest() || end > s.written {
		return dst, ErrShortRead
	}
	n := int64(len(s.ring))
	b := int(begin % n)
	e := b + length
	if e <= len(s.ring) {
		return append(dst, s.ring[b:e]...), nil
	}
	dst = append(dst, s.ring[b:]...)
	return append(dst, s.ring[:e-len(s.ring)]...), nil
}

// Resize changes the ring capacity, keeping the most recent samples that fit.
// Absolute positions are preserved.
func (s *Source) Resize(capacity int) {
	capacity = max(capacity, 1)
	if capacity == len(s.ring) {
		return
	}
	keep := int(min(int64(capacity), s.written-s.Oldest()))
	kept, _ := s.WindowBack(make([]model.Sample, 0, keep), s.written, keep)

	s.ring = make([]model.Sample, capacity)
	s.floor = s.written - int64(keep)
	for i, v := range kept {
		pos := s.written - int64(keep) + int64(i)
		s.ring[pos%int64(capacity)] = v
	}
}

// MarkSnapshot freezes the capture window ending at end: traceBack + pre +
// size samples, with the trigger instant at end - size. If the window is not
// fully available the snapshot is kept empty so that snapshot indices stay
// aligned across sources.
func (s *Source) MarkSnapshot(end int64, traceBack, pre, size int) {
	snap := Snapshot{
		End:       end,
		TraceBack: traceBack,
		Pre:       pre,
		Size:      size,
	}
	w, err := s.WindowBack(nil, end, traceBack+pre+size)
	if err == nil {
		snap.Samples = w
	}
	s.snapshots.Add(snap)
}

// Snapshots returns the number of retained snapshots.
func (s *Source) Snapshots() int { return s.snapshots.Len() }

// ReplaySnapshot returns the k-th most recent snapshot (1 = latest).
func (s *Source) ReplaySnapshot(k int) (Snapshot, error) {
	snap, ok := s.snapshots.Back(k)
	if !ok {
		return Snapshot{}, ErrSnapshotIndex
	}
	return snap, nil
}

// SetDepth changes the number of retained snapshots, dropping the oldest
// ones that no longer fit.
func (s *Source) SetDepth(depth int) {
	s.snapshots.SetCapacity(depth)
}
