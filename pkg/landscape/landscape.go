package landscape

import (
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/matzehuels/topofeat/pkg/diagram"
)

// Compute samples the first layers persistence landscapes of dgm on g.
//
// The result always has shape [layers, g.Nodes]. Layers beyond the number
// of diagram points are zero. Pairs are assumed valid (see diagram.Validate);
// zero-persistence pairs contribute nothing.
func Compute(dgm diagram.Diagram, g Grid, layers int) (*mat.Dense, error) {
	if err := Validate(g, layers); err != nil {
		return nil, err
	}
	data := make([]float64, layers*g.Nodes)
	computeInto(data, dgm, g.Points(), layers, newScratch(len(dgm), g.Nodes))
	return mat.NewDense(layers, g.Nodes, data), nil
}

// Flatten returns the row-major concatenation of the rows of l.
func Flatten(l mat.Matrix) []float64 {
	r, c := l.Dims()
	out := make([]float64, r*c)
	for i := 0; i < r; i++ {
		mat.Row(out[i*c:(i+1)*c], i, l)
	}
	return out
}

// scratch holds per-diagram working buffers so that workers can reuse them.
type scratch struct {
	tents []float64 // [points, nodes] row-major tent values
	col   []float64 // one grid column
}

func newScratch(points, nodes int) *scratch {
	return &scratch{
		tents: make([]float64, points*nodes),
		col:   make([]float64, points),
	}
}

func (s *scratch) grow(points, nodes int) {
	if cap(s.tents) < points*nodes {
		s.tents = make([]float64, points*nodes)
	}
	if cap(s.col) < points {
		s.col = make([]float64, points)
	}
	s.tents = s.tents[:points*nodes]
	s.col = s.col[:points]
}

// computeInto writes the [layers, len(grid)] landscape of dgm into dst,
// which must be zeroed and have length layers*len(grid).
func computeInto(dst []float64, dgm diagram.Diagram, grid []float64, layers int, s *scratch) {
	n, nodes := len(dgm), len(grid)
	if n == 0 {
		return
	}
	s.grow(n, nodes)
	for i, p := range dgm {
		TentInto(s.tents[i*nodes:(i+1)*nodes], grid, p.Birth, p.Death)
	}

	keep := min(layers, n)
	for j := 0; j < nodes; j++ {
		for i := 0; i < n; i++ {
			s.col[i] = s.tents[i*nodes+j]
		}
		slices.Sort(s.col)
		for k := 0; k < keep; k++ {
			dst[k*nodes+j] = s.col[n-1-k]
		}
	}
}
