package engine

import (
	"context"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/topofeat/pkg/diagram"
	"github.com/matzehuels/topofeat/pkg/errors"
)

// DefaultMaxAlphaSquare bounds the alpha filtration of the diagram tool.
const DefaultMaxAlphaSquare = 60.0

// Point is a point in 3D space.
type Point [3]float64

// PointCloud is the raw observation a persistence engine consumes.
type PointCloud []Point

// PersistenceEngine computes the persistence intervals of every homological
// dimension for one point cloud. Intervals whose persistence is below
// minPersistence are omitted. Implementations must be safe for concurrent use.
type PersistenceEngine interface {
	Persistence(ctx context.Context, cloud PointCloud, minPersistence float64) ([]diagram.Interval, error)
}

// Request describes a diagram generation run over a set of point clouds.
type Request struct {
	Dimension      int
	MinPersistence float64
	Workers        int

	// OnCloud, if set, is called after each cloud has been processed.
	// It may be called concurrently.
	OnCloud func(i int)
}

// Diagrams runs eng on every cloud and keeps the intervals of
// req.Dimension. The result preserves the order of clouds. The first engine
// failure cancels the remaining work.
func Diagrams(ctx context.Context, eng PersistenceEngine, clouds []PointCloud, req Request) (diagram.Collection, error) {
	if eng == nil {
		return diagram.Collection{}, errors.New(errors.ErrCodeInvalidInput, "no persistence engine configured")
	}
	if err := errors.ValidateDimension(req.Dimension); err != nil {
		return diagram.Collection{}, err
	}
	if len(clouds) == 0 {
		return diagram.Collection{}, errors.New(errors.ErrCodeInvalidInput, "no point clouds to process")
	}
	if math.IsNaN(req.MinPersistence) || req.MinPersistence < 0 {
		return diagram.Collection{}, errors.New(errors.ErrCodeInvalidInput, "min_persistence must be >= 0, got %g", req.MinPersistence)
	}
	workers := req.Workers
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}

	out := make([]diagram.Diagram, len(clouds))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, cloud := range clouds {
		if gctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			intervals, err := eng.Persistence(gctx, cloud, req.MinPersistence)
			if err != nil {
				return errors.Wrap(errors.ErrCodeEngine, err, "point cloud %d", i)
			}
			out[i] = diagram.FromIntervals(intervals, req.Dimension)
			if req.OnCloud != nil {
				req.OnCloud(i)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return diagram.Collection{}, err
	}
	if err := ctx.Err(); err != nil {
		return diagram.Collection{}, err
	}
	return diagram.Collection{Dimension: req.Dimension, Diagrams: out}, nil
}
