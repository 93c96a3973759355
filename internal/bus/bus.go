package bus

import (
	"sync"
	"sync/atomic"

	"iq-scope/internal/metrics"
	"iq-scope/internal/model"
)

// Bus fans sample batches out from producers to subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan model.Batch
	dropped     atomic.Uint64
}

func NewBus() *Bus {
	return &Bus{
		subscribers: make([]chan model.Batch, 0),
	}
}

// Subscribe returns a read-only channel for batches.
func (b *Bus) Subscribe(bufferSize int) <-chan model.Batch {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan model.Batch, bufferSize)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Publish hands the batch to every subscriber.
// Non-blocking: a full subscriber loses the batch.
func (b *Bus) Publish(batch model.Batch) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- batch:
		default:
			b.dropped.Add(1)
			metrics.QueueDrops.WithLabelValues("samples").Inc()
		}
	}
}

// Dropped returns the number of batches lost to full subscribers.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Close closes every subscriber channel. Publish must not be called after.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
}
