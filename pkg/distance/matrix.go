package distance

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// IsMissing reports whether d is the sentinel written for a failed pair.
func IsMissing(d float64) bool {
	return math.IsNaN(d)
}

// PairError records a failed distance evaluation for the pair (I, J), I < J.
type PairError struct {
	I, J int
	Err  error
}

func (e *PairError) Error() string {
	return fmt.Sprintf("pair (%d, %d): %v", e.I, e.J, e.Err)
}

func (e *PairError) Unwrap() error { return e.Err }

// Matrix is a symmetric n×n distance matrix with a zero diagonal.
type Matrix struct {
	sym *mat.SymDense

	// Failures lists the pairs that could not be evaluated in best-effort
	// mode, ordered by (I, J). Their cells hold NaN.
	Failures []PairError
}

// NewMatrix wraps an n×n row-major buffer whose upper triangle holds the
// distances. The lower triangle and diagonal are ignored.
func NewMatrix(n int, upper []float64) *Matrix {
	for i := 0; i < n; i++ {
		upper[i*n+i] = 0
	}
	return &Matrix{sym: mat.NewSymDense(n, upper)}
}

// Size returns n.
func (m *Matrix) Size() int { return m.sym.SymmetricDim() }

// At returns D[i][j].
func (m *Matrix) At(i, j int) float64 { return m.sym.At(i, j) }

// Symmetric exposes the matrix as a gonum symmetric matrix.
func (m *Matrix) Symmetric() mat.Symmetric { return m.sym }

// Complete reports whether every pair was evaluated.
func (m *Matrix) Complete() bool { return len(m.Failures) == 0 }

// Rows returns the full matrix as row slices, with both triangles filled.
func (m *Matrix) Rows() [][]float64 {
	n := m.Size()
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		for j := range out[i] {
			out[i][j] = m.sym.At(i, j)
		}
	}
	return out
}
