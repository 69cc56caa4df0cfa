// Package logging builds the slog loggers used across ampliconflow.
//
// Output is either a console line format, with the stage and component
// lifted into the line header, or JSON lines that the logs command can
// filter by run and stage. Per-stage level overrides let one noisy stage
// run at debug while the rest stays at the configured level.
package logging
