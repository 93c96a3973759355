package state

import (
	"sync"

	"iq-scope/internal/model"
)

// FrameRing keeps the most recently published frames for clients that
// connect late. One writer (the frame dispatcher), many readers.
type FrameRing struct {
	mu     sync.RWMutex
	frames []model.Frame
	next   int // slot of the next write
	count  int
}

// NewFrameRing returns a ring holding at most capacity frames.
func NewFrameRing(capacity int) *FrameRing {
	return &FrameRing{frames: make([]model.Frame, max(capacity, 1))}
}

// Add stores f, evicting the oldest frame when full.
func (r *FrameRing) Add(f model.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.frames[r.next] = f
	r.next = (r.next + 1) % len(r.frames)
	r.count = min(r.count+1, len(r.frames))
}

// Since returns the stored frames with Seq > seq, oldest first. Since(0)
// returns everything. Frames share their point slices with the ring, so
// callers must treat them as read-only.
func (r *FrameRing) Since(seq uint64) []model.Frame {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Frame
	first := r.next - r.count + len(r.frames)
	for i := 0; i < r.count; i++ {
		f := r.frames[(first+i)%len(r.frames)]
		if f.Seq > seq {
			out = append(out, f)
		}
	}
	return out
}

// Latest returns the newest frame.
func (r *FrameRing) Latest() (model.Frame, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.count == 0 {
		return model.Frame{}, false
	}
	return r.frames[(r.next-1+len(r.frames))%len(r.frames)], true
}

// Len returns the number of stored frames.
func (r *FrameRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}
