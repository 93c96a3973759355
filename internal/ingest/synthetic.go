package ingest

import (
	"context"
	"log"
	"math"
	"math/rand"
	"time"

	"iq-scope/internal/bus"
	"iq-scope/internal/model"
)

// SyntheticConfig describes the simulated signal. Every source carries the
// same tone with a per-source phase shift of π/8, plus a burst of higher
// amplitude every BurstPeriod samples so triggers have something to catch.
type SyntheticConfig struct {
	Sources     int
	SampleRate  float64 // Hz
	BatchSize   int     // samples per batch and source
	ToneHz      float64
	Amplitude   float64
	Noise       float64 // peak dither added to I and Q
	BurstPeriod int     // samples; 0 disables bursts
	BurstLength int     // samples
	BurstGain   float64
}

// Synthetic generates batches in real time.
type Synthetic struct {
	cfg SyntheticConfig
	bus *bus.Bus
	rng *rand.Rand

	phase float64
	pos   int64
}

func NewSynthetic(cfg SyntheticConfig, b *bus.Bus) *Synthetic {
	cfg.Sources = max(cfg.Sources, 1)
	cfg.BatchSize = max(cfg.BatchSize, 1)
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	return &Synthetic{
		cfg: cfg,
		bus: b,
		rng: rand.New(rand.NewSource(1)),
	}
}

func (s *Synthetic) Start(ctx context.Context) {
	go s.loop(ctx)
}

func (s *Synthetic) loop(ctx context.Context) {
	interval := time.Duration(float64(s.cfg.BatchSize) / s.cfg.SampleRate * float64(time.Second))
	ticker := time.NewTicker(max(interval, time.Millisecond))
	defer ticker.Stop()

	log.Printf("[SIM] %d sources, %.0f Hz, %d samples per batch every %v",
		s.cfg.Sources, s.cfg.SampleRate, s.cfg.BatchSize, interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, b := range s.Next() {
				s.bus.Publish(b)
			}
		}
	}
}

// Next generates the next batch of every source.
func (s *Synthetic) Next() []model.Batch {
	n := s.cfg.BatchSize
	out := make([]model.Batch, s.cfg.Sources)
	now := time.Now().UnixMilli()
	for c := range out {
		out[c] = model.Batch{Source: c, Samples: make([]model.Sample, n), Time: now}
	}

	step := 2 * math.Pi * s.cfg.ToneHz / s.cfg.SampleRate
	for k := 0; k < n; k++ {
		amp := s.cfg.Amplitude
		if s.inBurst(s.pos) {
			amp *= s.cfg.BurstGain
		}
		for c := range out {
			ph := s.phase + float64(c)*(math.Pi/8)
			i := amp*math.Cos(ph) + s.dither()
			q := amp*math.Sin(ph) + s.dither()
			out[c].Samples[k] = complex(float32(i), float32(q))
		}
		s.phase += step
		if s.phase > 2*math.Pi {
			s.phase -= 2 * math.Pi
		}
		s.pos++
	}
	return out
}

func (s *Synthetic) inBurst(pos int64) bool {
	p := int64(s.cfg.BurstPeriod)
	return p > 0 && pos%p < int64(s.cfg.BurstLength)
}

func (s *Synthetic) dither() float64 {
	if s.cfg.Noise == 0 {
		return 0
	}
	return (s.rng.Float64()*2 - 1) * s.cfg.Noise
}
