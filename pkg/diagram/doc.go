// Package diagram defines persistence diagrams and the collections they are
// stored and processed in.
//
// # Overview
//
// A persistence diagram is a finite multiset of (birth, death) pairs that
// summarizes the topological features of a shape at one homological
// dimension. A [Collection] is an ordered sequence of diagrams, one per
// observation (subject, trial, ...). Its order drives the row order of every
// output produced from it and is preserved end-to-end.
//
// # Invariants
//
// Every [Pair] must satisfy birth <= death with both values finite. Use
// [Validate] before computing anything on a collection: it inspects every
// pair of every diagram and reports all offending indices at once, so input
// data can be fixed in a single pass.
//
//	coll := diagram.Collection{Dimension: 1, Diagrams: dgms}
//	if err := diagram.Validate(coll); err != nil {
//	    var verr *diagram.ValidationError
//	    if errors.As(err, &verr) {
//	        for _, issue := range verr.Issues {
//	            fmt.Println(issue)
//	        }
//	    }
//	}
//
// # Engine Output
//
// Persistence engines report intervals tagged with their dimension.
// [FromIntervals] keeps the intervals of one dimension and drops the rest.
//
// Values in this package are immutable by convention: no function mutates
// its input diagrams.
package diagram
