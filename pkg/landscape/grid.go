package landscape

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/matzehuels/topofeat/pkg/errors"
)

// Default sampling parameters.
const (
	DefaultXMin   = 0.0
	DefaultXMax   = 0.4
	DefaultNodes  = 200
	DefaultLayers = 5

	// DefaultMaxWidth bounds layers*nodes for sizes taken from requests
	// and config files.
	DefaultMaxWidth = 1 << 20
)

// Grid describes Nodes evenly spaced sample values over [XMin, XMax].
type Grid struct {
	XMin  float64 `json:"xmin" toml:"xmin" yaml:"xmin"`
	XMax  float64 `json:"xmax" toml:"xmax" yaml:"xmax"`
	Nodes int     `json:"n_nodes" toml:"n_nodes" yaml:"n_nodes"`
}

// DefaultGrid returns the grid [0, 0.4] sampled at 200 nodes.
func DefaultGrid() Grid {
	return Grid{XMin: DefaultXMin, XMax: DefaultXMax, Nodes: DefaultNodes}
}

// Validate checks xmin < xmax (both finite) and nodes >= 2.
func (g Grid) Validate() error {
	if math.IsNaN(g.XMin) || math.IsInf(g.XMin, 0) || math.IsNaN(g.XMax) || math.IsInf(g.XMax, 0) {
		return errors.New(errors.ErrCodeInvalidGrid, "grid bounds must be finite (xmin=%g, xmax=%g)", g.XMin, g.XMax)
	}
	if g.XMin >= g.XMax {
		return errors.New(errors.ErrCodeInvalidGrid, "xmin (%g) must be < xmax (%g)", g.XMin, g.XMax)
	}
	if g.Nodes < 2 {
		return errors.New(errors.ErrCodeInvalidGrid, "n_nodes must be >= 2, got %d", g.Nodes)
	}
	return nil
}

// Points returns the sample values. The first is XMin and the last is XMax.
// The grid must be valid.
func (g Grid) Points() []float64 {
	return floats.Span(make([]float64, g.Nodes), g.XMin, g.XMax)
}

// Step returns the spacing between consecutive sample values.
func (g Grid) Step() float64 {
	return (g.XMax - g.XMin) / float64(g.Nodes-1)
}

// ValidateLayers checks that at least one landscape layer is requested.
func ValidateLayers(layers int) error {
	if layers < 1 {
		return errors.New(errors.ErrCodeInvalidGrid, "n_layers must be >= 1, got %d", layers)
	}
	return nil
}

// Validate checks both the grid and the layer count, and that the
// landscape width layers*g.Nodes is representable.
func Validate(g Grid, layers int) error {
	if err := g.Validate(); err != nil {
		return err
	}
	if err := ValidateLayers(layers); err != nil {
		return err
	}
	if layers > math.MaxInt/g.Nodes {
		return errors.New(errors.ErrCodeInvalidGrid, "n_layers (%d) * n_nodes (%d) overflows", layers, g.Nodes)
	}
	return nil
}

// CheckWidth validates g and layers and rejects landscapes wider than limit
// samples. A limit <= 0 disables the bound.
func CheckWidth(g Grid, layers, limit int) error {
	if err := Validate(g, layers); err != nil {
		return err
	}
	if w := Width(g, layers); limit > 0 && w > limit {
		return errors.New(errors.ErrCodeInvalidGrid,
			"landscape width n_layers*n_nodes = %d exceeds the limit of %d", w, limit)
	}
	return nil
}
