package model

import (
	"math"
)

// Sample is one complex baseband sample: I in the real part, Q in the
// imaginary part, normalized so that full scale is 1.0.
type Sample = complex64

// Batch is a contiguous run of samples delivered by a producer for one source.
// Positions are implicit: the n-th sample ever delivered for a source is at
// position n of that source's stream.
type Batch struct {
	Source  int
	Samples []Sample
	Time    int64 // unix ms, producer side
}

// MagSq returns |s|² in float64.
func MagSq(s Sample) float64 {
	re := float64(real(s))
	im := float64(imag(s))
	return re*re + im*im
}

// Mag returns |s| in float64.
func Mag(s Sample) float64 {
	return math.Hypot(float64(real(s)), float64(imag(s)))
}

// Arg returns the phase of s in radians, in [-π, π].
func Arg(s Sample) float64 {
	return math.Atan2(float64(imag(s)), float64(real(s)))
}
