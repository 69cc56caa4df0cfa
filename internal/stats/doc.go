// Package stats assembles the per-sample provenance table of a run.
//
// Stages emit Fragments (one count column keyed by sample); Aggregate
// left-joins them onto the first fragment's sample order, fills unresolved
// cells with zero, and derives percentage columns. Restore maps surrogate
// sample identifiers back to the declared ones across every sample-keyed
// output in a single all-or-nothing step.
package stats
