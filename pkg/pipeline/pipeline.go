// Package pipeline provides the feature pipeline shared by the topofeat CLI
// and HTTP service.
//
// This package wires storage, computation and caching together so that
// every entry point behaves the same way. By centralizing this logic, the
// CLI and the service cannot drift apart in how they validate inputs, name
// outputs or use the cache.
//
// # Stages
//
// Three independent stages are provided:
//
//  1. Diagrams: point clouds → persistence engine → diagram file
//  2. Features: diagram file → persistence landscapes → feature matrix (.npy)
//  3. Distances: diagram file → pairwise metric → distance matrix (.csv)
//
// Each file-based stage loads and validates its whole input before
// computing and writes its output atomically.
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	opts := pipeline.DefaultOptions()
//	opts.Dimension = 1
//	opts.DiagramsDir = "data"
//	opts.SaveDir = "out"
//	result, err := runner.Features(ctx, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Path)
//
// The in-memory variants ([Runner.ComputeFeatures],
// [Runner.ComputeDistances]) skip the file layer and are used by the HTTP
// service.
package pipeline

import (
	"io"
	"math"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/mat"

	"github.com/matzehuels/topofeat/pkg/cache"
	"github.com/matzehuels/topofeat/pkg/diagram"
	"github.com/matzehuels/topofeat/pkg/distance"
	"github.com/matzehuels/topofeat/pkg/engine"
	"github.com/matzehuels/topofeat/pkg/errors"
	"github.com/matzehuels/topofeat/pkg/landscape"
)

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options contains all configuration for the pipeline stages. Fields that
// a stage does not use are ignored by it.
type Options struct {
	// Common options
	Dimension int    `json:"dimension"`
	SaveDir   string `json:"save_dir,omitempty"`
	Workers   int    `json:"workers,omitempty"` // 0 = GOMAXPROCS
	NoCache   bool   `json:"no_cache,omitempty"`

	// Features and distances input
	DiagramsDir string `json:"diagrams_dir,omitempty"`

	// Features options
	Grid   landscape.Grid `json:"grid"`
	Layers int            `json:"n_layers"`

	// MaxWidth bounds n_layers*n_nodes of the feature grid and of a
	// landscape distance metric. 0 selects landscape.DefaultMaxWidth;
	// negative disables the bound.
	MaxWidth int `json:"-"`

	// Distance options
	Policy      distance.Policy `json:"-"`
	PairTimeout time.Duration   `json:"pair_timeout,omitempty"`

	// Diagram options
	RawData        string  `json:"raw_data,omitempty"`
	MinPersistence float64 `json:"min_persistence,omitempty"`

	// Runtime options (not serialized)
	Metric distance.Metric          `json:"-"`
	Engine engine.PersistenceEngine `json:"-"`
	Logger *log.Logger              `json:"-"`

	// Progress, if set, is called with the number of finished work items
	// (diagrams, pairs or point clouds) and their total. It may be called
	// concurrently and out of order.
	Progress func(done, total int) `json:"-"`
}

// DefaultOptions returns options with the default grid and layer count.
func DefaultOptions() Options {
	return Options{
		Grid:   landscape.DefaultGrid(),
		Layers: landscape.DefaultLayers,
	}
}

// Stats contains stage execution statistics.
type Stats struct {
	Diagrams    int
	LoadTime    time.Duration
	ComputeTime time.Duration
}

// FeaturesResult is the output of the features stage.
type FeaturesResult struct {
	RunID    string
	Path     string
	Features *mat.Dense
	CacheHit bool
	Stats    Stats
}

// DistancesResult is the output of the distances stage.
type DistancesResult struct {
	RunID    string
	Path     string
	Matrix   *distance.Matrix
	CacheHit bool
	Stats    Stats
}

// DiagramsResult is the output of the diagrams stage.
type DiagramsResult struct {
	RunID      string
	Path       string
	Collection diagram.Collection
	Stats      Stats
}

// =============================================================================
// Options Methods
// =============================================================================

// setDefaults fills runtime defaults.
func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	if o.Workers < 0 {
		o.Workers = 0
	}
}

// ValidateForCompute checks the options used by the in-memory feature
// computation.
func (o *Options) ValidateForCompute() error {
	o.setDefaults()
	return landscape.CheckWidth(o.Grid, o.Layers, o.maxWidth())
}

func (o *Options) maxWidth() int {
	if o.MaxWidth == 0 {
		return landscape.DefaultMaxWidth
	}
	return o.MaxWidth
}

// validateMetric checks that a metric is configured and, for landscape
// metrics, that its grid respects MaxWidth.
func (o *Options) validateMetric() error {
	if o.Metric == nil {
		return errors.New(errors.ErrCodeInvalidInput, "no distance metric configured")
	}
	if m, ok := o.Metric.(*distance.LandscapeMetric); ok {
		return landscape.CheckWidth(m.Grid, m.Layers, o.maxWidth())
	}
	return nil
}

// ValidateForFeatures checks required fields for the features stage.
func (o *Options) ValidateForFeatures() error {
	if err := o.validateFiles(); err != nil {
		return err
	}
	return o.ValidateForCompute()
}

// ValidateForDistances checks required fields for the distances stage.
func (o *Options) ValidateForDistances() error {
	if err := o.validateFiles(); err != nil {
		return err
	}
	o.setDefaults()
	if err := o.validateMetric(); err != nil {
		return err
	}
	if o.PairTimeout < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "pair timeout must not be negative")
	}
	return nil
}

// ValidateForDiagrams checks required fields for the diagrams stage.
func (o *Options) ValidateForDiagrams() error {
	if err := errors.ValidateDimension(o.Dimension); err != nil {
		return err
	}
	if err := errors.ValidateInputFile(o.RawData); err != nil {
		return err
	}
	if err := errors.ValidatePath(o.SaveDir); err != nil {
		return err
	}
	o.setDefaults()
	if o.Engine == nil {
		return errors.New(errors.ErrCodeInvalidInput, "no persistence engine configured")
	}
	if math.IsNaN(o.MinPersistence) || o.MinPersistence < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "min_persistence must be >= 0, got %g", o.MinPersistence)
	}
	return nil
}

func (o *Options) validateFiles() error {
	if err := errors.ValidateDimension(o.Dimension); err != nil {
		return err
	}
	if err := errors.ValidateInputDir(o.DiagramsDir); err != nil {
		return err
	}
	return errors.ValidatePath(o.SaveDir)
}

// tracker returns a callback counting finished items toward total, or nil
// when no Progress function is set.
func (o *Options) tracker(total int) func() {
	if o.Progress == nil {
		return nil
	}
	var done atomic.Int64
	return func() { o.Progress(int(done.Add(1)), total) }
}

// FeaturesKeyOpts returns cache key options for the feature matrix.
func (o *Options) FeaturesKeyOpts() cache.FeaturesKeyOpts {
	return cache.FeaturesKeyOpts{
		XMin:   o.Grid.XMin,
		XMax:   o.Grid.XMax,
		Nodes:  o.Grid.Nodes,
		Layers: o.Layers,
	}
}
