package logging

import (
	"context"
	"log/slog"

	"ampliconflow/internal/services"
)

// Structured field keys shared by every package.
const (
	FieldComponent = "component"
	FieldRunID     = "run_id"
	FieldStage     = "stage"
	FieldSample    = "sample"
	// FieldEventType classifies lifecycle events such as stage_start.
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
	// FieldImpact says what a warning means for the run's results.
	FieldImpact = "impact"
)

// WithContext adds run, stage and sample fields found on ctx to logger.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if ctx == nil {
		return logger
	}
	var args []any
	if id, ok := services.RunIDFromContext(ctx); ok {
		args = append(args, slog.String(FieldRunID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		args = append(args, slog.String(FieldStage, stage))
	}
	if sample, ok := services.SampleFromContext(ctx); ok {
		args = append(args, slog.String(FieldSample, sample))
	}
	if len(args) == 0 {
		return logger
	}
	return logger.With(args...)
}

// WithStage annotates ctx with the stage name used by WithContext.
func WithStage(ctx context.Context, stage string) context.Context {
	return services.WithStage(ctx, stage)
}
