package projector

import (
	"iq-scope/internal/model"
)

// Cache memoizes stateless projections of the sample currently being
// extracted, so N traces of the same kind on the same sample cost one
// evaluation. Call Load before each new sample.
type Cache struct {
	pos   int64
	valid uint32 // bit k set when vals[k] holds the projection of pos
	vals  [NumKinds]float32
	hits  uint64
}

// Load makes pos the current sample. Entries of a different position are
// discarded.
func (c *Cache) Load(pos int64) {
	if c.pos != pos {
		c.pos = pos
		c.valid = 0
	}
}

// Invalidate drops every entry.
func (c *Cache) Invalidate() {
	c.valid = 0
}

// Value returns the projection k of s, evaluating it at most once per
// position.
func (c *Cache) Value(s model.Sample, k Kind) float32 {
	bit := uint32(1) << uint(k)
	if c.valid&bit != 0 {
		c.hits++
		return c.vals[k]
	}
	v := Project(s, k)
	c.vals[k] = v
	c.valid |= bit
	return v
}

// Hits returns how many evaluations the cache saved.
func (c *Cache) Hits() uint64 { return c.hits }
