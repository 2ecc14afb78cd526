package pipeline

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matzehuels/topofeat/pkg/cache"
	"github.com/matzehuels/topofeat/pkg/diagram"
	"github.com/matzehuels/topofeat/pkg/distance"
	"github.com/matzehuels/topofeat/pkg/engine"
	"github.com/matzehuels/topofeat/pkg/errors"
	"github.com/matzehuels/topofeat/pkg/io"
	"github.com/matzehuels/topofeat/pkg/landscape"
	"github.com/matzehuels/topofeat/pkg/observability"
)

// memCache is an in-memory Cache for tests.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.data[key]
	return d, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, data []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *memCache) Close() error { return nil }

func (c *memCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// countingMetric is an identifiable metric that counts evaluations.
type countingMetric struct {
	calls atomic.Int32
	fail  bool
}

func (m *countingMetric) Distance(_ context.Context, a, b diagram.Diagram) (float64, error) {
	m.calls.Add(1)
	if m.fail && (len(a) == 0 || len(b) == 0) {
		return 0, errors.New(errors.ErrCodeEngine, "empty diagram")
	}
	return math.Abs(float64(len(a) - len(b))), nil
}

func (m *countingMetric) ID() string { return "counting" }

func writeDiagrams(t *testing.T, dir string, c diagram.Collection) {
	t.Helper()
	if _, err := io.SaveDiagrams(dir, c); err != nil {
		t.Fatalf("SaveDiagrams: %v", err)
	}
}

func sampleCollection() diagram.Collection {
	return diagram.Collection{
		Dimension: 1,
		Diagrams: []diagram.Diagram{
			{{Birth: 0.1, Death: 0.3}},
			{{Birth: 0.0, Death: 0.2}, {Birth: 0.1, Death: 0.4}},
			{},
		},
	}
}

func testOptions(t *testing.T) Options {
	t.Helper()
	in := t.TempDir()
	writeDiagrams(t, in, sampleCollection())
	opts := DefaultOptions()
	opts.Dimension = 1
	opts.DiagramsDir = in
	opts.SaveDir = filepath.Join(t.TempDir(), "out")
	return opts
}

func TestFeatures(t *testing.T) {
	opts := testOptions(t)
	runner := NewRunner(newMemCache(), nil, nil)

	result, err := runner.Features(context.Background(), opts)
	if err != nil {
		t.Fatalf("Features() error: %v", err)
	}
	if result.Path != filepath.Join(opts.SaveDir, "persistence_landscapes_1dim.npy") {
		t.Errorf("Path = %q", result.Path)
	}
	rows, cols := result.Features.Dims()
	if rows != 3 || cols != landscape.Width(opts.Grid, opts.Layers) {
		t.Errorf("features are %dx%d", rows, cols)
	}
	if result.CacheHit {
		t.Error("first run should not hit the cache")
	}
	if result.RunID == "" {
		t.Error("RunID should be set")
	}
	if _, err := os.Stat(result.Path); err != nil {
		t.Errorf("output not written: %v", err)
	}

	// The empty diagram yields a zero row.
	for j := 0; j < cols; j++ {
		if result.Features.At(2, j) != 0 {
			t.Fatalf("row 2 col %d = %g, want 0", j, result.Features.At(2, j))
		}
	}

	again, err := runner.Features(context.Background(), opts)
	if err != nil {
		t.Fatalf("second Features() error: %v", err)
	}
	if !again.CacheHit {
		t.Error("second run should hit the cache")
	}
}

func TestFeaturesCacheKeyIncludesGrid(t *testing.T) {
	opts := testOptions(t)
	mc := newMemCache()
	runner := NewRunner(mc, nil, nil)

	if _, err := runner.Features(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	opts.Layers = 2
	result, err := runner.Features(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if result.CacheHit {
		t.Error("changing n_layers should miss the cache")
	}
	if mc.len() != 2 {
		t.Errorf("cache holds %d entries, want 2", mc.len())
	}
}

func TestFeaturesNoCache(t *testing.T) {
	opts := testOptions(t)
	opts.NoCache = true
	mc := newMemCache()
	runner := NewRunner(mc, nil, nil)

	if _, err := runner.Features(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	if mc.len() != 0 {
		t.Errorf("NoCache run stored %d entries", mc.len())
	}
}

func TestFeaturesErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Options)
		code   errors.Code
	}{
		{"invalid dimension", func(o *Options) { o.Dimension = 2 }, errors.ErrCodeInvalidDimension},
		{"missing dimension", func(o *Options) { o.Dimension = 0 }, errors.ErrCodeDimensionMismatch},
		{"missing input dir", func(o *Options) { o.DiagramsDir = "/does/not/exist" }, errors.ErrCodeFileNotFound},
		{"empty save dir", func(o *Options) { o.SaveDir = "" }, errors.ErrCodeInvalidPath},
		{"inverted grid", func(o *Options) { o.Grid.XMin, o.Grid.XMax = 1, 0 }, errors.ErrCodeInvalidGrid},
		{"no layers", func(o *Options) { o.Layers = 0 }, errors.ErrCodeInvalidGrid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions(t)
			tt.modify(&opts)
			_, err := NewRunner(nil, nil, nil).Features(context.Background(), opts)
			if !errors.Is(err, tt.code) {
				t.Errorf("error = %v, want code %s", err, tt.code)
			}
			if opts.SaveDir != "" {
				if _, statErr := os.Stat(filepath.Join(opts.SaveDir, io.FeaturesFile(opts.Dimension))); statErr == nil {
					t.Error("no output should be written on failure")
				}
			}
		})
	}
}

func TestFeaturesInvalidDiagram(t *testing.T) {
	opts := testOptions(t)
	writeDiagrams(t, opts.DiagramsDir, diagram.Collection{
		Dimension: 1,
		Diagrams:  []diagram.Diagram{{{Birth: 0.5, Death: 0.1}}},
	})
	_, err := NewRunner(nil, nil, nil).Features(context.Background(), opts)
	if !errors.Is(err, errors.ErrCodeInvalidDiagram) {
		t.Errorf("error = %v, want INVALID_DIAGRAM", err)
	}
}

func TestDistances(t *testing.T) {
	opts := testOptions(t)
	metric := &countingMetric{}
	opts.Metric = metric
	runner := NewRunner(newMemCache(), nil, nil)

	result, err := runner.Distances(context.Background(), opts)
	if err != nil {
		t.Fatalf("Distances() error: %v", err)
	}
	if result.Path != filepath.Join(opts.SaveDir, "pairwise_btnck_dist_dim1.csv") {
		t.Errorf("Path = %q", result.Path)
	}
	want := [][]float64{{0, 1, 1}, {1, 0, 2}, {1, 2, 0}}
	got := result.Matrix.Rows()
	for i := range want {
		for j := range want[i] {
			if got[i][j] != want[i][j] {
				t.Errorf("D[%d][%d] = %g, want %g", i, j, got[i][j], want[i][j])
			}
		}
	}
	if metric.calls.Load() != 3 {
		t.Errorf("metric called %d times, want 3", metric.calls.Load())
	}

	data, err := os.ReadFile(result.Path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), ",0,1,2\n0,0.0,1.0,1.0\n") {
		t.Errorf("unexpected csv:\n%s", data)
	}

	again, err := runner.Distances(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if !again.CacheHit || metric.calls.Load() != 3 {
		t.Errorf("second run: cache hit %v, metric calls %d", again.CacheHit, metric.calls.Load())
	}
	if again.Matrix.At(1, 2) != 2 {
		t.Errorf("cached D[1][2] = %g", again.Matrix.At(1, 2))
	}
}

func TestDistancesBestEffortNotCached(t *testing.T) {
	opts := testOptions(t)
	opts.Metric = &countingMetric{fail: true}
	opts.Policy = distance.BestEffort
	mc := newMemCache()

	result, err := NewRunner(mc, nil, nil).Distances(context.Background(), opts)
	if err != nil {
		t.Fatalf("Distances() error: %v", err)
	}
	if len(result.Matrix.Failures) != 2 {
		t.Errorf("failures = %d, want 2", len(result.Matrix.Failures))
	}
	if mc.len() != 0 {
		t.Error("incomplete matrices must not be cached")
	}
	data, _ := os.ReadFile(result.Path)
	if !strings.Contains(string(data), "NaN") {
		t.Errorf("csv should contain NaN cells:\n%s", data)
	}
}

func TestDistancesFailFast(t *testing.T) {
	opts := testOptions(t)
	opts.Metric = &countingMetric{fail: true}

	_, err := NewRunner(nil, nil, nil).Distances(context.Background(), opts)
	if !errors.Is(err, errors.ErrCodeDistanceEvaluation) {
		t.Fatalf("error = %v, want DISTANCE_EVALUATION", err)
	}
	if _, statErr := os.Stat(filepath.Join(opts.SaveDir, io.DistancesFile(1))); statErr == nil {
		t.Error("no output should be written on failure")
	}
}

func TestDistancesRequiresMetric(t *testing.T) {
	opts := testOptions(t)
	_, err := NewRunner(nil, nil, nil).Distances(context.Background(), opts)
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("error = %v, want INVALID_INPUT", err)
	}
}

func TestMaxWidth(t *testing.T) {
	wide := landscape.Grid{XMin: 0, XMax: 1, Nodes: 1000}
	coll := sampleCollection()
	r := NewRunner(nil, nil, nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		maxWidth int
		layers   int
		wantErr  bool
	}{
		{"default bound", 0, landscape.DefaultMaxWidth/1000 + 1, true},
		{"within default", 0, 5, false},
		{"explicit bound", 4000, 5, true},
		{"disabled", -1, 5, false},
		{"overflow even when disabled", -1, math.MaxInt / 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.Grid = wide
			opts.Layers = tt.layers
			opts.MaxWidth = tt.maxWidth
			_, err := r.ComputeFeatures(ctx, coll, opts)
			if tt.wantErr != (err != nil) {
				t.Fatalf("ComputeFeatures error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errors.ErrCodeInvalidGrid) {
				t.Errorf("error = %v, want INVALID_GRID", err)
			}
		})
	}
}

func TestMaxWidthAppliesToLandscapeMetric(t *testing.T) {
	metric, err := distance.NewLandscapeMetric(landscape.Grid{XMin: 0, XMax: 1, Nodes: 1000}, 5, 2)
	if err != nil {
		t.Fatalf("NewLandscapeMetric: %v", err)
	}
	opts := DefaultOptions()
	opts.Metric = metric
	opts.MaxWidth = 4000

	r := NewRunner(nil, nil, nil)
	_, err = r.ComputeDistances(context.Background(), sampleCollection(), opts)
	if !errors.Is(err, errors.ErrCodeInvalidGrid) {
		t.Errorf("error = %v, want INVALID_GRID", err)
	}

	opts.MaxWidth = 5000
	if _, err := r.ComputeDistances(context.Background(), sampleCollection(), opts); err != nil {
		t.Errorf("ComputeDistances within bound: %v", err)
	}
}

// fixedEngine reports one interval per point in both dimensions.
type fixedEngine struct{}

func (fixedEngine) Persistence(_ context.Context, cloud engine.PointCloud, _ float64) ([]diagram.Interval, error) {
	var out []diagram.Interval
	for i := range cloud {
		out = append(out,
			diagram.Interval{Dimension: 0, Pair: diagram.Pair{Birth: 0, Death: float64(i + 1)}},
			diagram.Interval{Dimension: 1, Pair: diagram.Pair{Birth: 0.5, Death: 1}})
	}
	return out, nil
}

func TestDiagrams(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "clouds.json")
	if err := os.WriteFile(raw, []byte(`{"clouds": [[[0,0,0],[1,0,0]], [[0,0,1]]]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	opts := Options{Dimension: 0, RawData: raw, SaveDir: dir, Engine: fixedEngine{}}
	result, err := NewRunner(nil, nil, nil).Diagrams(context.Background(), opts)
	if err != nil {
		t.Fatalf("Diagrams() error: %v", err)
	}
	if result.Path != filepath.Join(dir, "persistence_diagrams_0dim.json") {
		t.Errorf("Path = %q", result.Path)
	}

	loaded, err := io.LoadDiagrams(dir, 0)
	if err != nil {
		t.Fatalf("LoadDiagrams: %v", err)
	}
	if loaded.Len() != 2 || len(loaded.Diagrams[0]) != 2 || len(loaded.Diagrams[1]) != 1 {
		t.Errorf("loaded diagrams = %v", loaded.Diagrams)
	}
}

func TestDiagramsValidation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		code errors.Code
	}{
		{"missing raw data", Options{RawData: "x.json", SaveDir: "out"}, errors.ErrCodeFileNotFound},
		{"bad dimension", Options{Dimension: 5}, errors.ErrCodeInvalidDimension},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRunner(nil, nil, nil).Diagrams(context.Background(), tt.opts)
			if !errors.Is(err, tt.code) {
				t.Errorf("error = %v, want %s", err, tt.code)
			}
		})
	}

	raw := filepath.Join(t.TempDir(), "clouds.json")
	_ = os.WriteFile(raw, []byte(`{"clouds": []}`), 0o644)
	_, err := NewRunner(nil, nil, nil).Diagrams(context.Background(), Options{RawData: raw, SaveDir: t.TempDir()})
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("missing engine: error = %v", err)
	}
}

type recordingHooks struct {
	observability.NoopPipelineHooks
	mu     sync.Mutex
	events []string
}

func (h *recordingHooks) record(e string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
}

func (h *recordingHooks) OnLoad(context.Context, int, int, time.Duration, error) { h.record("load") }
func (h *recordingHooks) OnLandscapeStart(context.Context, int, int)             { h.record("landscape") }
func (h *recordingHooks) OnPairFailed(context.Context, int, int, error)          { h.record("pair") }

func TestPipelineHooks(t *testing.T) {
	hooks := &recordingHooks{}
	observability.SetPipelineHooks(hooks)
	defer observability.Reset()

	opts := testOptions(t)
	runner := NewRunner(nil, nil, nil)
	if _, err := runner.Features(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	opts.Metric = &countingMetric{fail: true}
	opts.Policy = distance.BestEffort
	if _, err := runner.Distances(context.Background(), opts); err != nil {
		t.Fatal(err)
	}

	got := strings.Join(hooks.events, ",")
	if got != "load,landscape,load,pair,pair" {
		t.Errorf("events = %s", got)
	}
}

func TestNewRunnerDefaults(t *testing.T) {
	r := NewRunner(nil, nil, nil)
	if _, ok := r.Cache.(*cache.NullCache); !ok {
		t.Errorf("Cache = %T, want *cache.NullCache", r.Cache)
	}
	if r.Keyer == nil || r.Logger == nil {
		t.Error("Keyer and Logger should default")
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestProgress(t *testing.T) {
	opts := testOptions(t)
	var (
		mu    sync.Mutex
		calls int
		last  [2]int
	)
	opts.Progress = func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if done > last[0] {
			last = [2]int{done, total}
		}
	}

	runner := NewRunner(nil, nil, nil)
	if _, err := runner.Features(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	if calls != 3 || last != [2]int{3, 3} {
		t.Errorf("features progress: %d calls, last %v", calls, last)
	}

	calls, last = 0, [2]int{}
	opts.Metric = &countingMetric{}
	if _, err := runner.Distances(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	if calls != 3 || last != [2]int{3, 3} {
		t.Errorf("distances progress: %d calls, last %v", calls, last)
	}
}

type ttlCache struct {
	memCache
	ttls []time.Duration
}

func (c *ttlCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	c.ttls = append(c.ttls, ttl)
	return c.memCache.Set(ctx, key, data, ttl)
}

func TestRunnerTTL(t *testing.T) {
	opts := testOptions(t)
	c := &ttlCache{memCache: memCache{data: map[string][]byte{}}}
	runner := NewRunner(c, nil, nil)

	if _, err := runner.Features(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	runner.TTL = time.Hour
	opts.Layers = 1
	if _, err := runner.Features(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	if len(c.ttls) != 2 || c.ttls[0] != cache.TTLFeatures || c.ttls[1] != time.Hour {
		t.Errorf("ttls = %v", c.ttls)
	}
}
