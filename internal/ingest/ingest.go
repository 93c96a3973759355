package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"iq-scope/internal/bus"
	"iq-scope/internal/model"
)

const (
	reconnectDelay    = 1 * time.Second
	maxReconnectDelay = 30 * time.Second
)

var ErrOddIQ = errors.New("ingest: odd number of I/Q values")

// iqMessage is one binary websocket message from a remote channelizer.
// Example (msgpack map): {"source":0,"time":1672515782136,"iq":[I0,Q0,I1,Q1,...]}
type iqMessage struct {
	Source int       `msgpack:"source"`
	Time   int64     `msgpack:"time"` // unix ms of the first sample
	IQ     []float32 `msgpack:"iq"`   // interleaved I, Q
}

// DecodeBatch parses one I/Q message.
func DecodeBatch(b []byte) (model.Batch, error) {
	var m iqMessage
	if err := msgpack.Unmarshal(b, &m); err != nil {
		return model.Batch{}, fmt.Errorf("decode batch: %w", err)
	}
	if len(m.IQ)%2 != 0 {
		return model.Batch{}, ErrOddIQ
	}
	samples := make([]model.Sample, len(m.IQ)/2)
	for k := range samples {
		samples[k] = complex(m.IQ[2*k], m.IQ[2*k+1])
	}
	return model.Batch{Source: m.Source, Samples: samples, Time: m.Time}, nil
}

// EncodeBatch is the inverse of DecodeBatch.
func EncodeBatch(b model.Batch) ([]byte, error) {
	m := iqMessage{Source: b.Source, Time: b.Time, IQ: make([]float32, 2*len(b.Samples))}
	for k, s := range b.Samples {
		m.IQ[2*k] = real(s)
		m.IQ[2*k+1] = imag(s)
	}
	return msgpack.Marshal(&m)
}

// Ingester reads I/Q batches from a websocket endpoint and publishes them
// on the bus, reconnecting with exponential backoff.
type Ingester struct {
	url string
	bus *bus.Bus
}

func NewIngester(url string, b *bus.Bus) *Ingester {
	return &Ingester{
		url: url,
		bus: b,
	}
}

func (i *Ingester) Start(ctx context.Context) {
	go i.loop(ctx)
}

func (i *Ingester) loop(ctx context.Context) {
	delay := reconnectDelay

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := i.connectAndConsume(ctx)
		if err != nil {
			log.Printf("[Ingest] %v. Reconnecting in %v...", err, delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
		} else {
			delay = reconnectDelay
		}
	}
}

func (i *Ingester) connectAndConsume(ctx context.Context) error {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, i.url, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	// Unblock ReadMessage on shutdown.
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	log.Printf("[Ingest] connected to %s", i.url)

	for {
		kind, data, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		batch, err := DecodeBatch(data)
		if err != nil {
			log.Printf("[Ingest] dropping message: %v", err)
			continue
		}
		i.bus.Publish(batch)
	}
}
