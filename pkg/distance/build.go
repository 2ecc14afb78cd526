package distance

import (
	"context"
	"math"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/topofeat/pkg/diagram"
	"github.com/matzehuels/topofeat/pkg/errors"
)

// Policy selects how Build reacts to a failing pair.
type Policy int

const (
	// FailFast aborts the build on the first failing pair.
	FailFast Policy = iota
	// BestEffort records failing pairs as NaN cells and continues.
	BestEffort
)

// String returns the policy name used in configuration files.
func (p Policy) String() string {
	if p == BestEffort {
		return "best-effort"
	}
	return "fail-fast"
}

// ParsePolicy parses "fail-fast" or "best-effort". The empty string is FailFast.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "fail-fast":
		return FailFast, nil
	case "best-effort":
		return BestEffort, nil
	}
	return FailFast, errors.New(errors.ErrCodeInvalidInput, "invalid policy: %q (must be fail-fast or best-effort)", s)
}

// Option configures Build.
type Option func(*buildConfig)

type buildConfig struct {
	workers     int
	policy      Policy
	pairTimeout time.Duration
	onPair      func(i, j int, d float64, err error)
}

// WithWorkers bounds the number of rows evaluated concurrently.
// Values < 1 select runtime.GOMAXPROCS(0).
func WithWorkers(n int) Option {
	return func(c *buildConfig) { c.workers = n }
}

// WithPolicy sets the failure policy.
func WithPolicy(p Policy) Option {
	return func(c *buildConfig) { c.policy = p }
}

// WithPairTimeout bounds every metric call. Zero means no bound.
func WithPairTimeout(d time.Duration) Option {
	return func(c *buildConfig) { c.pairTimeout = d }
}

// WithPairCallback registers fn to be called after every pair evaluation,
// successful or not. fn may be called concurrently.
func WithPairCallback(fn func(i, j int, d float64, err error)) Option {
	return func(c *buildConfig) { c.onPair = fn }
}

// Pairs returns the number of unordered pairs of n diagrams.
func Pairs(n int) int { return n * (n - 1) / 2 }

// Build evaluates metric on every unordered pair of dgms and returns the
// symmetric distance matrix. D[i][i] is 0.
//
// Under FailFast the first failure cancels the remaining work and Build
// returns an ErrCodeDistanceEvaluation error wrapping a *PairError. Under
// BestEffort the failed cells are NaN and listed in Matrix.Failures. A
// negative or non-finite metric result counts as a failure. Cancelling ctx
// aborts the build under both policies.
func Build(ctx context.Context, dgms []diagram.Diagram, metric Metric, opts ...Option) (*Matrix, error) {
	if metric == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no distance metric configured")
	}
	n := len(dgms)
	if n == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no diagrams to compare")
	}

	cfg := buildConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.workers < 1 {
		cfg.workers = runtime.GOMAXPROCS(0)
	}

	upper := make([]float64, n*n)
	failures := make([][]PairError, n)

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(cfg.workers)
	for i := 0; i < n-1; i++ {
		if gctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			for j := i + 1; j < n; j++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				d, err := evaluate(gctx, metric, dgms[i], dgms[j], cfg.pairTimeout)
				if err != nil && gctx.Err() != nil {
					return gctx.Err()
				}
				if cfg.onPair != nil {
					cfg.onPair(i, j, d, err)
				}
				if err == nil {
					upper[i*n+j] = d
					continue
				}
				pe := PairError{I: i, J: j, Err: err}
				if cfg.policy == FailFast {
					return errors.Wrap(errors.ErrCodeDistanceEvaluation, &pe, "distance evaluation failed for pair (%d, %d)", i, j)
				}
				upper[i*n+j] = math.NaN()
				failures[i] = append(failures[i], pe)
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

	m := NewMatrix(n, upper)
	for _, row := range failures {
		m.Failures = append(m.Failures, row...)
	}
	return m, nil
}

func evaluate(ctx context.Context, metric Metric, a, b diagram.Diagram, timeout time.Duration) (float64, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	d, err := metric.Distance(ctx, a, b)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return 0, errors.New(errors.ErrCodeDistanceEvaluation, "metric returned invalid distance %g", d)
	}
	return d, nil
}
