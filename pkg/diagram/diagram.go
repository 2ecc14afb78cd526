package diagram

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// Pair is one point of a persistence diagram. It encodes to JSON as the
// two-element array [birth, death].
type Pair struct {
	Birth float64
	Death float64
}

// MarshalJSON implements json.Marshaler.
func (p Pair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.Birth, p.Death})
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Pair) UnmarshalJSON(data []byte) error {
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if len(v) != 2 {
		return fmt.Errorf("diagram point must have 2 values, got %d", len(v))
	}
	p.Birth, p.Death = v[0], v[1]
	return nil
}

// Persistence returns death - birth.
func (p Pair) Persistence() float64 {
	return p.Death - p.Birth
}

// Diagram is an ordered sequence of (birth, death) pairs of one homological
// dimension. An empty diagram is valid.
type Diagram []Pair

// Len returns the number of points in d.
func (d Diagram) Len() int { return len(d) }

// Collection is an ordered sequence of diagrams sharing one homological
// dimension. Index i is the i-th observation.
type Collection struct {
	Dimension int
	Diagrams  []Diagram
}

// Len returns the number of diagrams in c.
func (c Collection) Len() int { return len(c.Diagrams) }

// Points returns the total number of pairs across all diagrams.
func (c Collection) Points() int {
	n := 0
	for _, d := range c.Diagrams {
		n += len(d)
	}
	return n
}

// MaxPoints returns the size of the largest diagram.
func (c Collection) MaxPoints() int {
	m := 0
	for _, d := range c.Diagrams {
		m = max(m, len(d))
	}
	return m
}

// Interval is a single feature reported by a persistence engine.
type Interval struct {
	Dimension int
	Pair      Pair
}

// FromIntervals keeps the intervals of dimension dim, in engine order.
// The result is never nil so that empty diagrams serialize as [].
func FromIntervals(intervals []Interval, dim int) Diagram {
	out := Diagram{}
	for _, iv := range intervals {
		if iv.Dimension == dim {
			out = append(out, iv.Pair)
		}
	}
	return out
}

// MarshalBinary encodes c into a canonical byte form. Two collections with
// the same dimension, diagram order and pair values encode identically, which
// makes the output suitable for content hashing.
func (c Collection) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 16+8*len(c.Diagrams)+16*c.Points())
	buf = binary.LittleEndian.AppendUint64(buf, uint64(int64(c.Dimension)))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(c.Diagrams)))
	for _, d := range c.Diagrams {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(len(d)))
		for _, p := range d {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(p.Birth))
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(p.Death))
		}
	}
	return buf, nil
}
