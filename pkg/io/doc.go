// Package io reads persistence diagrams and point clouds and writes the
// feature, distance and diagram outputs of topofeat.
//
// # File Layout
//
// Diagrams of one homological dimension live in a single file inside a
// diagrams directory, named after the dimension:
//
//	persistence_diagrams_0dim.npy   (or .json)
//	persistence_diagrams_1dim.npy   (or .json)
//
// Outputs follow the same convention:
//
//	persistence_landscapes_{dim}dim.npy   feature matrix [n_obs, n_layers*n_nodes]
//	pairwise_btnck_dist_dim{dim}.csv      distance matrix
//	persistence_diagrams_{dim}dim.json    diagrams produced by the engine
//
// # NPY Format
//
// A diagram file is a float64 array of shape [n_obs, max_points, 2] in C
// order. Observations with fewer points are padded with rows where both
// values are NaN. A row with a single NaN is kept and rejected by
// validation, so the error names the offending diagram and point.
//
// Point clouds use the same layout with 3 columns: [n_obs, n_points, 3].
//
// # JSON Format
//
//	{"dimension": 1, "diagrams": [[[0.1, 0.3], [0.2, 0.25]], []]}
//	{"clouds": [[[0, 0, 0], [1, 0, 0]], ...]}
//
// # CSV Format
//
// Distance matrices are written in the layout of pandas.DataFrame.to_csv:
// a header row ",0,1,...,n-1" and one row per observation starting with its
// index. Cells of pairs that could not be evaluated are written as NaN.
//
// # Atomic Writes
//
// Every Save function writes to a temporary file in the target directory
// and renames it into place only once the content is complete, so a failed
// run never leaves a truncated output behind.
package io
