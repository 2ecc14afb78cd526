// Package landscape converts persistence diagrams into persistence
// landscapes and fixed-width feature matrices.
//
// # Tent Functions
//
// Each diagram point (b, d) induces a triangular bump ("tent") that is zero
// outside [b, d] and peaks at height (d-b)/2 at the midpoint (b+d)/2.
// [Tent] evaluates it at a single value; [TentVec] and [TentInto] evaluate it
// over a whole grid in one call.
//
// # Landscapes
//
// The k-th persistence landscape at a grid value t is the k-th largest tent
// value among all diagram points at t. [Compute] samples the first n_layers
// landscapes on a regular [Grid] and returns a gonum matrix of shape
// [n_layers, n_nodes]:
//
//	g := landscape.Grid{XMin: 0, XMax: 0.4, Nodes: 200}
//	l, err := landscape.Compute(dgm, g, 5)
//
// The shape never depends on the diagram: when the diagram has fewer points
// than layers the missing layers are zero, and an empty diagram yields an
// all-zero matrix. Rows are pointwise non-increasing (layer k dominates
// layer k+1) and every entry is non-negative.
//
// # Feature Matrices
//
// [Extract] applies [Compute] to every diagram of a collection and stacks
// the row-major flattened landscapes into a [len(diagrams), n_layers*n_nodes]
// matrix, in input order. Diagrams are processed concurrently by a bounded
// pool of workers, each writing only its own output rows.
package landscape
