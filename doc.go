// Package cellgraph is an embedded pipeline for single-cell neighborhood
// analysis: dimensionality reduction, k-nearest-neighbor graph construction,
// graph clustering, and force-directed layout, all in-process.
//
// The pipeline runs over a [store.Store], an annotated observation matrix
// whose derived artifacts ("layers") are versioned by parameter fingerprint:
//
//   - Reduce: truncated SVD of the centered matrix (PCA scores)
//   - Neighbors: exact or approximate k-NN plus fuzzy-set connectivities
//   - Cluster: seeded Louvain community detection with a resolution knob
//   - Layout: 2D/3D force-directed embedding of the connectivity graph
//
// # Quick Start (Fluent API)
//
//	ctx := context.Background()
//	s := store.New(m) // m is a *matrix.Dense, observations x features
//
//	res, err := cellgraph.New(s).
//	    Components(50).
//	    K(15).
//	    Resolution(1.0).
//	    Seed(42).
//	    Run(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Clusters.Count, "clusters")
//
// # Determinism
//
// Every stochastic step is driven by the single Seed parameter. Two runs
// with identical matrix content, parameters, and worker count produce
// identical cluster labels and identical layout coordinates.
//
// # Caching
//
// Each stage hashes its parameters together with the fingerprint of its
// input artifact. When the store already carries a layer under the same
// name with a matching fingerprint, the stage is served from cache and its
// cost is not re-paid; change any upstream parameter and everything
// downstream recomputes. WithoutCache disables the shortcut.
//
// # Errors and Warnings
//
// Fatal conditions are classified under three sentinels: ErrInvalidInput,
// ErrDimensionality, and ErrGraph, each wrapped in a StageError naming the
// stage that failed. Recoverable conditions (isolated observations,
// clustering that stopped at the sweep limit) never abort the run; they
// surface as Warning fields on the artifacts and as store metadata.
package cellgraph
