// Package services defines shared utilities consumed by the pipeline stages
// and the engine adapter.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, and sample identifiers
//     for logging and tracing.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures with errors.Is and map them onto CLI exit codes.
//   - ToolError, which carries the captured output of a failed engine call.
//
// Use these helpers when wiring new stage logic so error handling and
// observability stay uniform across the pipeline.
package services
