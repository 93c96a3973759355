package projector

import (
	"fmt"
	"math"

	"iq-scope/internal/model"
)

// =============================================================================
// COMPLEX → REAL PROJECTIONS
// =============================================================================
//
// Every trace and every trigger condition looks at a source through one
// projection of the complex sample s = I + jQ:
//
//   Real    I
//   Imag    Q
//   MagLin  |s|              = sqrt(I² + Q²)
//   MagSq   |s|²             (linear power)
//   MagDB   10·log10(|s|²)   floored at DBFloor so silence never yields -Inf
//   Phase   atan2(Q, I)      radians in [-π, π]
//   DPhase  Δ atan2 / π      wrapped to [-1, 1], i.e. instantaneous frequency
//                            normalized to the sample rate. Stateful.
//
// All kinds except DPhase are pure functions of one sample, which is what
// allows traces sharing a kind on the same sample to share one evaluation.
// =============================================================================

// Kind selects a projection.
type Kind int

const (
	Real Kind = iota
	Imag
	MagLin
	MagSq
	MagDB
	Phase
	DPhase
	NumKinds
)

// DBFloor is the lowest value MagDB ever returns.
const DBFloor = -200.0

var kindNames = [NumKinds]string{
	Real:   "real",
	Imag:   "imag",
	MagLin: "mag_lin",
	MagSq:  "mag_sq",
	MagDB:  "mag_db",
	Phase:  "phase",
	DPhase: "dphase",
}

func (k Kind) String() string {
	if k < 0 || k >= NumKinds {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Valid reports whether k names a known projection.
func (k Kind) Valid() bool {
	return k >= 0 && k < NumKinds
}

// Stateful reports whether the projection depends on previous samples.
func (k Kind) Stateful() bool {
	return k == DPhase
}

// ParseKind maps a name as printed by Kind.String back to its Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown projection %q", s)
}

// Project evaluates a stateless projection. DPhase has no meaning for a
// single sample and yields 0; use a Projector for it.
func Project(s model.Sample, k Kind) float32 {
	switch k {
	case Real:
		return real(s)
	case Imag:
		return imag(s)
	case MagLin:
		return float32(model.Mag(s))
	case MagSq:
		return float32(model.MagSq(s))
	case MagDB:
		return float32(toDB(model.MagSq(s)))
	case Phase:
		return float32(model.Arg(s))
	}
	return 0
}

func toDB(magsq float64) float64 {
	if magsq <= 0 {
		return DBFloor
	}
	db := 10 * math.Log10(magsq)
	if db < DBFloor {
		return DBFloor
	}
	return db
}

// Projector evaluates one Kind for one consumer (a trace or a trigger
// condition) and carries the state stateful kinds need.
type Projector struct {
	kind    Kind
	prevArg float64
}

// New returns a projector for k.
func New(k Kind) Projector {
	return Projector{kind: k}
}

// Kind returns the projection kind.
func (p *Projector) Kind() Kind { return p.kind }

// SetKind changes the projection and clears its state.
func (p *Projector) SetKind(k Kind) {
	p.kind = k
	p.prevArg = 0
}

// Reset clears the state of stateful kinds.
func (p *Projector) Reset() {
	p.prevArg = 0
}

// Run projects s.
func (p *Projector) Run(s model.Sample) float32 {
	if p.kind != DPhase {
		return Project(s, p.kind)
	}
	arg := model.Arg(s)
	d := (arg - p.prevArg) / math.Pi
	p.prevArg = arg
	if d < -1 {
		d += 2
	} else if d > 1 {
		d -= 2
	}
	return float32(d)
}

// RunCached projects s through the shared cache when the kind allows it.
func (p *Projector) RunCached(s model.Sample, c *Cache) float32 {
	if c == nil || p.kind.Stateful() {
		return p.Run(s)
	}
	return c.Value(s, p.kind)
}
