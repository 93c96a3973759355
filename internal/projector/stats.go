package projector

import (
	"fmt"
)

// PowerStats accumulates peak and average power in dB over one displayed
// trace window, for the "peak  avg  peak-avg" overlay of MagDB traces.
// Values at or below DBFloor are ignored.
type PowerStats struct {
	max float64
	sum float64
	n   int
}

// Reset starts a new window.
func (p *PowerStats) Reset() {
	p.max = DBFloor
	p.sum = 0
	p.n = 0
}

// Add accumulates one dB value.
func (p *PowerStats) Add(db float32) {
	v := float64(db)
	if v <= DBFloor {
		return
	}
	if v > p.max {
		p.max = v
	}
	p.sum += v
	p.n++
}

// Count returns the number of accumulated values.
func (p *PowerStats) Count() int { return p.n }

// Peak returns the maximum accumulated value.
func (p *PowerStats) Peak() float64 { return p.max }

// Avg returns the mean of the accumulated values.
func (p *PowerStats) Avg() float64 {
	if p.n == 0 {
		return DBFloor
	}
	return p.sum / float64(p.n)
}

// Text formats the overlay. ok is false when nothing was accumulated.
func (p *PowerStats) Text() (text string, ok bool) {
	if p.n == 0 {
		return "", false
	}
	avg := p.Avg()
	return fmt.Sprintf("%.1f  %.1f  %4.1f", p.max, avg, p.max-avg), true
}
