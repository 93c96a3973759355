package bus

import (
	"testing"

	"iq-scope/internal/model"
)

func TestPublishFanOut(t *testing.T) {
	b := NewBus()
	a := b.Subscribe(4)
	c := b.Subscribe(4)

	b.Publish(model.Batch{Source: 1, Samples: []model.Sample{1, 2}})

	for i, ch := range []<-chan model.Batch{a, c} {
		got := <-ch
		if got.Source != 1 || len(got.Samples) != 2 {
			t.Fatalf("subscriber %d got %+v", i, got)
		}
	}
}

// TestPublishDropsWhenFull verifies a slow subscriber never blocks Publish.
func TestPublishDropsWhenFull(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe(2)

	for i := 0; i < 5; i++ {
		b.Publish(model.Batch{Source: i})
	}
	if b.Dropped() != 3 {
		t.Fatalf("dropped = %d, want 3", b.Dropped())
	}
	if got := <-ch; got.Source != 0 {
		t.Fatalf("first batch source = %d, want 0", got.Source)
	}

	b.Close()
	<-ch
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
}
