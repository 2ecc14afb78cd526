package landscape

import (
	"context"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/matzehuels/topofeat/pkg/diagram"
	"github.com/matzehuels/topofeat/pkg/errors"
)

// ExtractOption configures Extract.
type ExtractOption func(*extractConfig)

type extractConfig struct {
	workers int
	onRow   func(i int)
}

// WithWorkers bounds the number of diagrams processed concurrently.
// Values < 1 select runtime.GOMAXPROCS(0).
func WithWorkers(n int) ExtractOption {
	return func(c *extractConfig) { c.workers = n }
}

// WithRowCallback registers fn to be called after row i is written.
// fn may be called concurrently from several workers.
func WithRowCallback(fn func(i int)) ExtractOption {
	return func(c *extractConfig) { c.onRow = fn }
}

// Extract computes the landscape features of every diagram in dgms and
// returns them as a [len(dgms), layers*g.Nodes] matrix whose row i is the
// flattened landscape of dgms[i].
//
// Extract does not validate diagram pairs; callers load collections through
// diagram.Validate first. An empty input is rejected because the matrix
// would have no rows.
func Extract(ctx context.Context, dgms []diagram.Diagram, g Grid, layers int, opts ...ExtractOption) (*mat.Dense, error) {
	if err := Validate(g, layers); err != nil {
		return nil, err
	}
	if len(dgms) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no diagrams to extract features from")
	}

	cfg := extractConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.workers < 1 {
		cfg.workers = runtime.GOMAXPROCS(0)
	}

	width := Width(g, layers)
	if len(dgms) > math.MaxInt/width {
		return nil, errors.New(errors.ErrCodeInvalidInput, "%d diagrams of width %d overflow the feature matrix", len(dgms), width)
	}
	features := mat.NewDense(len(dgms), width, nil)
	grid := g.Points()

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(cfg.workers)
	for i, dgm := range dgms {
		if gctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			// Rows are disjoint, so workers write without locking.
			computeInto(features.RawRowView(i), dgm, grid, layers, newScratch(len(dgm), g.Nodes))
			if cfg.onRow != nil {
				cfg.onRow(i)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return features, nil
}

// Width returns the feature vector length for g and layers.
func Width(g Grid, layers int) int {
	return layers * g.Nodes
}
