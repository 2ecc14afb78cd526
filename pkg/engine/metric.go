package engine

import (
	"context"
	"time"

	"github.com/matzehuels/topofeat/pkg/diagram"
	"github.com/matzehuels/topofeat/pkg/distance"
)

// ExecMetric is a distance.Metric backed by an external command, typically
// a bottleneck distance implementation.
//
// Cached matrices are keyed by ID, which covers the command line and
// Version only. Set Version to the solver's release so that upgrading it
// invalidates earlier results.
type ExecMetric struct {
	Command Command
	Timeout time.Duration // per pair, zero for none
	Version string
}

type metricRequest struct {
	A diagram.Diagram `json:"a"`
	B diagram.Diagram `json:"b"`
}

// Distance implements distance.Metric.
func (m *ExecMetric) Distance(ctx context.Context, a, b diagram.Diagram) (float64, error) {
	if a == nil {
		a = diagram.Diagram{}
	}
	if b == nil {
		b = diagram.Diagram{}
	}
	var d number
	if err := m.Command.run(ctx, m.Timeout, metricRequest{A: a, B: b}, &d); err != nil {
		return 0, err
	}
	return float64(d), nil
}

// ID implements distance.Identifier.
func (m *ExecMetric) ID() string {
	id := "exec:" + m.Command.String()
	if m.Version != "" {
		id += "@" + m.Version
	}
	return id
}

var (
	_ distance.Metric     = (*ExecMetric)(nil)
	_ distance.Identifier = (*ExecMetric)(nil)
)
