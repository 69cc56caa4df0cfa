// Package pipeline runs the feature discovery stages in order for one
// manifest: pooling, quality filtering, dereplication, denoising or
// clustering, chimera partitioning, feature table construction and
// statistics aggregation.
//
// Each run gets its own workspace and engine clients; a Runner holds no
// per-run state, so concurrent runs with different requests are safe.
package pipeline
