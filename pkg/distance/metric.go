package distance

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/matzehuels/topofeat/pkg/diagram"
	"github.com/matzehuels/topofeat/pkg/errors"
	"github.com/matzehuels/topofeat/pkg/landscape"
)

// Metric computes a symmetric, non-negative distance between two diagrams.
// Implementations must be safe for concurrent use.
type Metric interface {
	Distance(ctx context.Context, a, b diagram.Diagram) (float64, error)
}

// MetricFunc adapts a plain function to Metric.
type MetricFunc func(ctx context.Context, a, b diagram.Diagram) (float64, error)

// Distance calls f(ctx, a, b).
func (f MetricFunc) Distance(ctx context.Context, a, b diagram.Diagram) (float64, error) {
	return f(ctx, a, b)
}

// Identifier is implemented by metrics whose results may be cached. ID must
// change whenever the metric would return different values.
type Identifier interface {
	ID() string
}

// LandscapeMetric is the L^P distance between the persistence landscapes of
// two diagrams sampled on Grid with Layers layers. For finite P the integral
// is approximated by the Riemann sum (step * sum |Δ|^P)^(1/P); P = +Inf is
// the sup norm over all sample values.
type LandscapeMetric struct {
	Grid   landscape.Grid
	Layers int
	P      float64
}

// NewLandscapeMetric returns a validated LandscapeMetric.
func NewLandscapeMetric(g landscape.Grid, layers int, p float64) (*LandscapeMetric, error) {
	m := &LandscapeMetric{Grid: g, Layers: layers, P: p}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the grid, the layer count and P >= 1.
func (m *LandscapeMetric) Validate() error {
	if err := landscape.Validate(m.Grid, m.Layers); err != nil {
		return err
	}
	if math.IsNaN(m.P) || m.P < 1 {
		return errors.New(errors.ErrCodeUnsupportedMetric, "landscape metric requires p >= 1, got %g", m.P)
	}
	return nil
}

// Distance implements Metric.
func (m *LandscapeMetric) Distance(_ context.Context, a, b diagram.Diagram) (float64, error) {
	la, err := landscape.Compute(a, m.Grid, m.Layers)
	if err != nil {
		return 0, err
	}
	lb, err := landscape.Compute(b, m.Grid, m.Layers)
	if err != nil {
		return 0, err
	}
	d := floats.Distance(la.RawMatrix().Data, lb.RawMatrix().Data, m.P)
	if math.IsInf(m.P, 1) {
		return d, nil
	}
	return d * math.Pow(m.Grid.Step(), 1/m.P), nil
}

// ID implements Identifier.
func (m *LandscapeMetric) ID() string {
	return fmt.Sprintf("landscape:p=%g:xmin=%g:xmax=%g:nodes=%d:layers=%d",
		m.P, m.Grid.XMin, m.Grid.XMax, m.Grid.Nodes, m.Layers)
}

var (
	_ Metric     = (*LandscapeMetric)(nil)
	_ Identifier = (*LandscapeMetric)(nil)
)
