// Package engine connects topofeat to external topology tools.
//
// Persistent homology and the bottleneck distance are computed by
// dedicated engines (for example a GUDHI script). This package defines the
// capability the diagram tool depends on, [PersistenceEngine], and adapters
// that delegate to an external command speaking JSON on stdin/stdout:
//
//   - [Exec] runs a persistence engine on one point cloud at a time
//   - [ExecMetric] evaluates a diagram distance and implements distance.Metric
//
// # Wire format
//
// The engine command reads
//
//	{"points": [[x, y, z], ...], "min_persistence": p, "max_alpha_square": a}
//
// and writes the intervals of every dimension as
//
//	[[dim, [birth, death]], ...]
//
// Infinite deaths may be written as "inf" or null; they are clipped to the
// filtration bound max_alpha_square. The metric command reads
// {"a": [[b, d], ...], "b": [[b, d], ...]} and writes a single JSON number.
package engine
