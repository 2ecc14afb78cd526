// Package distance assembles symmetric pairwise distance matrices over
// collections of persistence diagrams.
//
// The metric is injected through the [Metric] interface; [Build] assumes
// only that it is symmetric and non-negative. In production it is bound to
// an external bottleneck-distance primitive (see package engine); the
// in-process [LandscapeMetric] compares persistence landscapes instead.
//
//	m, err := distance.Build(ctx, dgms, metric,
//	    distance.WithWorkers(8),
//	    distance.WithPairTimeout(30*time.Second),
//	)
//
// # Failure Policy
//
// With [FailFast] (the default) the first failing pair aborts the build and
// the returned error identifies it. With [BestEffort] a failing cell holds
// NaN (see [IsMissing]), which can never be confused with a true zero
// distance, and the failure is listed in [Matrix.Failures].
//
// # Concurrency
//
// Pairs are evaluated on a bounded worker pool. Row i of the upper triangle
// is owned by exactly one task, so workers write disjoint cells of a shared
// buffer without locking. Metrics must be safe for concurrent use.
package distance
