package history

import (
	"iq-scope/internal/model"
)

// Snapshot is one frozen capture window of a source.
//
// Samples holds [End-TraceBack-Pre-Size, End): the traceback region, the
// pre-trigger region and the main trace, in that order. It is nil when the
// window was not available at capture time.
type Snapshot struct {
	End       int64
	TraceBack int
	Pre       int
	Size      int
	Samples   []model.Sample
}

// Trigger returns the absolute position of the trigger instant.
func (s *Snapshot) Trigger() int64 { return s.End - int64(s.Size) }

// Empty reports whether the snapshot holds no samples.
func (s *Snapshot) Empty() bool { return len(s.Samples) == 0 }

// Regions splits Samples into traceback, pre-trigger and main windows.
func (s *Snapshot) Regions() (traceBack, pre, main []model.Sample) {
	if s.Empty() {
		return nil, nil, nil
	}
	tb := s.TraceBack
	p := tb + s.Pre
	return s.Samples[:tb], s.Samples[tb:p], s.Samples[p:]
}

// SnapshotRing is a fixed-capacity circular list of snapshots; adding past
// capacity evicts the oldest. O(1) add and indexed access.
type SnapshotRing struct {
	data     []Snapshot
	capacity int
	head     int // index of the next write
	size     int
}

// NewSnapshotRing creates a ring of fixed capacity (at least 1).
func NewSnapshotRing(capacity int) *SnapshotRing {
	capacity = max(capacity, 1)
	return &SnapshotRing{
		data:     make([]Snapshot, capacity),
		capacity: capacity,
	}
}

// Add inserts a snapshot, evicting the oldest one when full.
func (r *SnapshotRing) Add(s Snapshot) {
	r.data[r.head] = s
	r.head = (r.head + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
}

// Len returns the number of snapshots held.
func (r *SnapshotRing) Len() int { return r.size }

// Cap returns the capacity.
func (r *SnapshotRing) Cap() int { return r.capacity }

// Back returns the k-th most recent snapshot, 1 being the latest.
func (r *SnapshotRing) Back(k int) (Snapshot, bool) {
	if k < 1 || k > r.size {
		return Snapshot{}, false
	}
	i := (r.head - k + r.capacity) % r.capacity
	return r.data[i], true
}

// All returns the snapshots in chronological order.
func (r *SnapshotRing) All() []Snapshot {
	out := make([]Snapshot, 0, r.size)
	for k := r.size; k >= 1; k-- {
		s, _ := r.Back(k)
		out = append(out, s)
	}
	return out
}

// SetCapacity resizes the ring, keeping the most recent snapshots.
func (r *SnapshotRing) SetCapacity(capacity int) {
	capacity = max(capacity, 1)
	if capacity == r.capacity {
		return
	}
	all := r.All()
	if len(all) > capacity {
		all = all[len(all)-capacity:]
	}
	r.data = make([]Snapshot, capacity)
	r.capacity = capacity
	r.head = 0
	r.size = 0
	for _, s := range all {
		r.Add(s)
	}
}
