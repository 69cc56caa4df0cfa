// Package main hosts the ampliconflow CLI entrypoint and command graph.
//
// The Cobra command tree loads configuration once, runs preflight checks,
// drives the feature discovery pipeline, publishes results and records every
// run in the ledger. Keep this package lean: pipeline behaviour lives in the
// internal packages and commands here only wire them together.
package main
