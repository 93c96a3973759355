package trace

import (
	"sync"
	"sync/atomic"

	"iq-scope/internal/model"
)

// Slot names one half of the double buffer.
type Slot int32

const (
	SlotA Slot = iota
	SlotB
)

// Other returns the opposite slot.
func (s Slot) Other() Slot { return 1 - s }

func (s Slot) String() string {
	if s == SlotA {
		return "A"
	}
	return "B"
}

type slot struct {
	mu     sync.RWMutex
	traces []model.TraceBuffer
}

// DoubleBuffer holds two sets of trace buffers. The engine writes the back
// slot while renderers read the front one; the front index is flipped only
// after a complete write.
//
// Writers take the back slot with TryLock so a renderer still reading it
// never blocks the sample path: the write is simply retried later.
type DoubleBuffer struct {
	slots [2]slot
	front atomic.Int32
}

// NewDoubleBuffer allocates both slots.
func NewDoubleBuffer(traces, traceSize int) *DoubleBuffer {
	d := &DoubleBuffer{}
	d.Resize(traces, traceSize)
	return d
}

// Resize reallocates both slots for the given trace count and size. It
// waits for readers, so it is only used from the configuration path.
func (d *DoubleBuffer) Resize(traces, traceSize int) {
	for i := range d.slots {
		s := &d.slots[i]
		s.mu.Lock()
		s.traces = make([]model.TraceBuffer, traces)
		for t := range s.traces {
			s.traces[t].Points = make([]model.Point, traceSize)
		}
		s.mu.Unlock()
	}
}

// Front returns the slot renderers currently read.
func (d *DoubleBuffer) Front() Slot { return Slot(d.front.Load()) }

// BeginWrite locks the back slot and returns its buffers. With block false
// it fails instead of waiting for a reader. Every successful BeginWrite must
// be paired with EndWrite.
func (d *DoubleBuffer) BeginWrite(block bool) ([]model.TraceBuffer, bool) {
	s := &d.slots[d.Front().Other()]
	if block {
		s.mu.Lock()
	} else if !s.mu.TryLock() {
		return nil, false
	}
	return s.traces, true
}

// EndWrite unlocks the back slot and, if publish is set, makes it the front.
func (d *DoubleBuffer) EndWrite(publish bool) {
	back := d.Front().Other()
	d.slots[back].mu.Unlock()
	if publish {
		d.front.Store(int32(back))
	}
}

// View calls fn with the front buffers under a read lock. fn must not keep
// the slice.
func (d *DoubleBuffer) View(fn func(traces []model.TraceBuffer)) {
	for {
		f := d.Front()
		s := &d.slots[f]
		s.mu.RLock()
		// A writer may have abandoned a write into this slot between the
		// load and the lock; only read it if it is still the front.
		if d.Front() != f {
			s.mu.RUnlock()
			continue
		}
		fn(s.traces)
		s.mu.RUnlock()
		return
	}
}

// Copy returns a deep copy of the front buffers.
func (d *DoubleBuffer) Copy() []model.TraceBuffer {
	var out []model.TraceBuffer
	d.View(func(traces []model.TraceBuffer) {
		out = make([]model.TraceBuffer, len(traces))
		for i := range traces {
			out[i] = traces[i].Clone()
		}
	})
	return out
}
