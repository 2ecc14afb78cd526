// Package pkg provides the core libraries of topofeat, which turns
// persistence diagrams from topological data analysis into fixed-size
// features and pairwise distances for machine learning.
//
// # Overview
//
// The pkg directory is organized into three areas:
//
//  1. Domain: [diagram] (data model and validation), [landscape] (tent
//     functions, landscapes, feature matrices), [distance] (pairwise
//     matrix builder and metrics), [engine] (external persistence engines)
//  2. Infrastructure: [io] (diagram and output files), [cache] (result
//     cache), [config] (config files), [observability] (hooks),
//     [errors] (error codes), [buildinfo]
//  3. Orchestration: [pipeline] (load → compute → save, shared by the CLI
//     and the HTTP service)
//
// # Architecture
//
// The typical data flow:
//
//	Point clouds
//	     ↓
//	[engine] package (persistence intervals per cloud)
//	     ↓
//	[diagram] collection of one homological dimension
//	     ↓                         ↓
//	[landscape] features      [distance] matrix
//	     ↓                         ↓
//	.npy feature matrix       .csv distance matrix
//
// # Quick Start
//
//	coll, err := io.LoadDiagrams("data", 1)
//	if err != nil {
//	    return err
//	}
//	features, err := landscape.Extract(ctx, coll.Diagrams, landscape.DefaultGrid(), landscape.DefaultLayers)
//	if err != nil {
//	    return err
//	}
//	_, err = io.SaveFeatures("out", 1, features)
package pkg
