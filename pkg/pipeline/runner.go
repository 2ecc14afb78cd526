package pipeline

import (
	"bytes"
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/matzehuels/topofeat/pkg/cache"
	"github.com/matzehuels/topofeat/pkg/diagram"
	"github.com/matzehuels/topofeat/pkg/distance"
	"github.com/matzehuels/topofeat/pkg/engine"
	"github.com/matzehuels/topofeat/pkg/errors"
	"github.com/matzehuels/topofeat/pkg/io"
	"github.com/matzehuels/topofeat/pkg/landscape"
	"github.com/matzehuels/topofeat/pkg/observability"
)

// Cache key types reported to observability hooks.
const (
	keyTypeFeatures  = "features"
	keyTypeDistances = "distances"
)

// Runner encapsulates pipeline execution with caching.
// Both CLI and HTTP service use this to avoid duplicating caching logic.
//
// The Runner is stateless except for the cache and logger - it doesn't
// store pipeline results. Multiple goroutines can safely use the same
// Runner with different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger

	// TTL overrides the per-stage cache lifetimes when positive.
	TTL time.Duration
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
}

// =============================================================================
// Features
// =============================================================================

// Features loads the diagrams of opts.Dimension from opts.DiagramsDir,
// computes their landscape features and saves them to opts.SaveDir.
func (r *Runner) Features(ctx context.Context, opts Options) (*FeaturesResult, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateForFeatures(); err != nil {
		return nil, err
	}
	result := &FeaturesResult{RunID: uuid.NewString()}
	logger := opts.Logger.With("run", result.RunID)

	coll, loadTime, err := r.load(ctx, opts)
	if err != nil {
		return nil, err
	}
	result.Stats.Diagrams = coll.Len()
	result.Stats.LoadTime = loadTime

	start := time.Now()
	features, hit, err := r.ComputeFeaturesWithCacheInfo(ctx, coll, opts)
	if err != nil {
		return nil, err
	}
	result.Features = features
	result.CacheHit = hit
	result.Stats.ComputeTime = time.Since(start)

	rows, cols := features.Dims()
	logger.Info("computed landscapes",
		"diagrams", rows,
		"width", cols,
		"cached", hit,
		"duration", result.Stats.ComputeTime)

	path, err := io.SaveFeatures(opts.SaveDir, opts.Dimension, features)
	if err != nil {
		return nil, err
	}
	result.Path = path
	logger.Debug("saved features", "path", path)
	return result, nil
}

// ComputeFeatures computes the feature matrix of coll, consulting the cache.
func (r *Runner) ComputeFeatures(ctx context.Context, coll diagram.Collection, opts Options) (*mat.Dense, error) {
	features, _, err := r.ComputeFeaturesWithCacheInfo(ctx, coll, opts)
	return features, err
}

// ComputeFeaturesWithCacheInfo computes the feature matrix of coll and
// reports whether it came from the cache.
func (r *Runner) ComputeFeaturesWithCacheInfo(ctx context.Context, coll diagram.Collection, opts Options) (*mat.Dense, bool, error) {
	if err := opts.ValidateForCompute(); err != nil {
		return nil, false, err
	}
	if err := diagram.Validate(coll); err != nil {
		return nil, false, err
	}
	width := landscape.Width(opts.Grid, opts.Layers)

	var key string
	if !opts.NoCache {
		key = r.Keyer.FeaturesKey(cache.CollectionHash(coll), opts.FeaturesKeyOpts())
		if data, ok := r.cacheGet(ctx, key, keyTypeFeatures); ok {
			if m, err := io.ReadMatrixNPY(bytes.NewReader(data)); err == nil {
				if rows, cols := m.Dims(); rows == coll.Len() && cols == width {
					return m, true, nil
				}
			}
			// Undecodable or mismatched entry: recompute.
		}
	}

	hooks := observability.Pipeline()
	hooks.OnLandscapeStart(ctx, coll.Len(), width)
	start := time.Now()
	extractOpts := []landscape.ExtractOption{landscape.WithWorkers(opts.Workers)}
	if tick := opts.tracker(coll.Len()); tick != nil {
		extractOpts = append(extractOpts, landscape.WithRowCallback(func(int) { tick() }))
	}
	features, err := landscape.Extract(ctx, coll.Diagrams, opts.Grid, opts.Layers, extractOpts...)
	hooks.OnLandscapeComplete(ctx, coll.Len(), time.Since(start), err)
	if err != nil {
		return nil, false, err
	}

	if key != "" {
		var buf bytes.Buffer
		if err := io.WriteMatrixNPY(&buf, features); err == nil {
			r.cacheSet(ctx, key, keyTypeFeatures, buf.Bytes(), cache.TTLFeatures)
		}
	}
	return features, false, nil
}

// =============================================================================
// Distances
// =============================================================================

// Distances loads the diagrams of opts.Dimension from opts.DiagramsDir,
// builds their pairwise distance matrix and saves it to opts.SaveDir.
func (r *Runner) Distances(ctx context.Context, opts Options) (*DistancesResult, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateForDistances(); err != nil {
		return nil, err
	}
	result := &DistancesResult{RunID: uuid.NewString()}
	logger := opts.Logger.With("run", result.RunID)

	coll, loadTime, err := r.load(ctx, opts)
	if err != nil {
		return nil, err
	}
	result.Stats.Diagrams = coll.Len()
	result.Stats.LoadTime = loadTime

	start := time.Now()
	m, hit, err := r.ComputeDistancesWithCacheInfo(ctx, coll, opts)
	if err != nil {
		return nil, err
	}
	result.Matrix = m
	result.CacheHit = hit
	result.Stats.ComputeTime = time.Since(start)

	logger.Info("computed distances",
		"diagrams", m.Size(),
		"pairs", distance.Pairs(m.Size()),
		"failures", len(m.Failures),
		"cached", hit,
		"duration", result.Stats.ComputeTime)
	for _, f := range m.Failures {
		logger.Warn("distance unavailable", "i", f.I, "j", f.J, "err", f.Err)
	}

	path, err := io.SaveDistances(opts.SaveDir, opts.Dimension, m)
	if err != nil {
		return nil, err
	}
	result.Path = path
	logger.Debug("saved distances", "path", path)
	return result, nil
}

// ComputeDistances builds the distance matrix of coll, consulting the cache.
func (r *Runner) ComputeDistances(ctx context.Context, coll diagram.Collection, opts Options) (*distance.Matrix, error) {
	m, _, err := r.ComputeDistancesWithCacheInfo(ctx, coll, opts)
	return m, err
}

// ComputeDistancesWithCacheInfo builds the distance matrix of coll and
// reports whether it came from the cache. Only metrics implementing
// distance.Identifier are cached, and only complete matrices are stored.
func (r *Runner) ComputeDistancesWithCacheInfo(ctx context.Context, coll diagram.Collection, opts Options) (*distance.Matrix, bool, error) {
	opts.setDefaults()
	if err := opts.validateMetric(); err != nil {
		return nil, false, err
	}
	if err := diagram.Validate(coll); err != nil {
		return nil, false, err
	}
	n := coll.Len()

	metricID := "anonymous"
	var key string
	if id, ok := opts.Metric.(distance.Identifier); ok {
		metricID = id.ID()
		if !opts.NoCache {
			key = r.Keyer.DistancesKey(cache.CollectionHash(coll), cache.DistancesKeyOpts{Metric: metricID})
		}
	}
	if key != "" {
		if data, ok := r.cacheGet(ctx, key, keyTypeDistances); ok {
			if m, err := decodeDistances(data, n); err == nil {
				return m, true, nil
			}
		}
	}

	hooks := observability.Pipeline()
	hooks.OnDistanceStart(ctx, n, distance.Pairs(n), metricID)
	start := time.Now()
	tick := opts.tracker(distance.Pairs(n))
	m, err := distance.Build(ctx, coll.Diagrams, opts.Metric,
		distance.WithWorkers(opts.Workers),
		distance.WithPolicy(opts.Policy),
		distance.WithPairTimeout(opts.PairTimeout),
		distance.WithPairCallback(func(i, j int, _ float64, err error) {
			if err != nil {
				hooks.OnPairFailed(ctx, i, j, err)
			}
			if tick != nil {
				tick()
			}
		}))
	failures := 0
	if m != nil {
		failures = len(m.Failures)
	}
	hooks.OnDistanceComplete(ctx, n, failures, time.Since(start), err)
	if err != nil {
		return nil, false, err
	}

	if key != "" && m.Complete() {
		var buf bytes.Buffer
		if err := io.WriteMatrixNPY(&buf, mat.DenseCopyOf(m.Symmetric())); err == nil {
			r.cacheSet(ctx, key, keyTypeDistances, buf.Bytes(), cache.TTLDistances)
		}
	}
	return m, false, nil
}

func decodeDistances(data []byte, n int) (*distance.Matrix, error) {
	d, err := io.ReadMatrixNPY(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if rows, cols := d.Dims(); rows != n || cols != n {
		return nil, errors.New(errors.ErrCodeInternal, "cached matrix is %dx%d, want %dx%d", rows, cols, n, n)
	}
	upper := make([]float64, n*n)
	for i := 0; i < n; i++ {
		mat.Row(upper[i*n:(i+1)*n], i, d)
	}
	return distance.NewMatrix(n, upper), nil
}

// =============================================================================
// Diagrams
// =============================================================================

// Diagrams runs opts.Engine over the point clouds in opts.RawData and saves
// the diagrams of opts.Dimension to opts.SaveDir.
func (r *Runner) Diagrams(ctx context.Context, opts Options) (*DiagramsResult, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateForDiagrams(); err != nil {
		return nil, err
	}
	result := &DiagramsResult{RunID: uuid.NewString()}
	logger := opts.Logger.With("run", result.RunID)

	start := time.Now()
	clouds, err := io.LoadClouds(opts.RawData)
	if err != nil {
		return nil, err
	}
	result.Stats.LoadTime = time.Since(start)
	logger.Debug("loaded point clouds", "clouds", len(clouds), "duration", result.Stats.LoadTime)

	hooks := observability.Pipeline()
	hooks.OnDiagramsStart(ctx, len(clouds), opts.Dimension)
	start = time.Now()
	coll, err := engine.Diagrams(ctx, opts.Engine, clouds, engine.Request{
		Dimension:      opts.Dimension,
		MinPersistence: opts.MinPersistence,
		Workers:        opts.Workers,
		OnCloud:        onCloud(opts.tracker(len(clouds))),
	})
	if err == nil {
		err = diagram.Validate(coll)
	}
	hooks.OnDiagramsComplete(ctx, len(clouds), time.Since(start), err)
	if err != nil {
		return nil, err
	}
	result.Collection = coll
	result.Stats.Diagrams = coll.Len()
	result.Stats.ComputeTime = time.Since(start)

	logger.Info("computed persistence diagrams",
		"clouds", len(clouds),
		"dimension", opts.Dimension,
		"points", coll.Points(),
		"duration", result.Stats.ComputeTime)

	path, err := io.SaveDiagrams(opts.SaveDir, coll)
	if err != nil {
		return nil, err
	}
	result.Path = path
	return result, nil
}

// =============================================================================
// Helpers
// =============================================================================

// load reads and validates the input collection of a file-based stage.
func (r *Runner) load(ctx context.Context, opts Options) (diagram.Collection, time.Duration, error) {
	start := time.Now()
	coll, err := io.LoadDiagrams(opts.DiagramsDir, opts.Dimension)
	elapsed := time.Since(start)
	observability.Pipeline().OnLoad(ctx, opts.Dimension, coll.Len(), elapsed, err)
	if err != nil {
		return diagram.Collection{}, elapsed, err
	}
	opts.Logger.Debug("loaded diagrams",
		"dimension", opts.Dimension,
		"diagrams", coll.Len(),
		"max_points", coll.MaxPoints(),
		"duration", elapsed)
	return coll, elapsed, nil
}

// cacheGet reads key, treating backend errors as misses.
func (r *Runner) cacheGet(ctx context.Context, key, keyType string) ([]byte, bool) {
	data, hit, err := r.Cache.Get(ctx, key)
	if err != nil {
		r.Logger.Warn("cache read failed", "err", err)
	}
	if err != nil || !hit {
		observability.Cache().OnCacheMiss(ctx, keyType)
		return nil, false
	}
	observability.Cache().OnCacheHit(ctx, keyType)
	return data, true
}

// cacheSet stores data under key. Failures only cost a future recomputation.
func (r *Runner) cacheSet(ctx context.Context, key, keyType string, data []byte, ttl time.Duration) {
	if r.TTL > 0 {
		ttl = r.TTL
	}
	if err := r.Cache.Set(ctx, key, data, ttl); err != nil {
		r.Logger.Warn("cache write failed", "err", err)
		return
	}
	observability.Cache().OnCacheSet(ctx, keyType, len(data))
}

func onCloud(tick func()) func(int) {
	if tick == nil {
		return nil
	}
	return func(int) { tick() }
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}
