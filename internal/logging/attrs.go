package logging

import (
	"context"
	"log/slog"
	"time"
)

// Attr is re-exported so callers need not import log/slog for fields.
type Attr = slog.Attr

func String(key, value string) Attr { return slog.String(key, value) }

func Strings(key string, values []string) Attr { return slog.Any(key, values) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func Int64(key string, value int64) Attr { return slog.Int64(key, value) }

func Float64(key string, value float64) Attr { return slog.Float64(key, value) }

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

// Error renders err under the "error" key; nil becomes "<nil>".
func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.String("error", err.Error())
}

// NewNop returns a logger that drops everything.
func NewNop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// NewComponentLogger tags logger with a component name. A nil logger yields
// a no-op logger.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

const defaultErrorHint = "check logs for details"

// WarnWithContext logs a warning that always carries event_type, error_hint
// and impact. Values already present in attrs win over the defaults.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	emit(logger, slog.LevelWarn, msg, attrs, map[string]string{
		FieldEventType: eventType,
		FieldErrorHint: defaultErrorHint,
		FieldImpact:    "run continues with reduced reporting",
	})
}

// ErrorWithContext logs an error that always carries event_type and
// error_hint.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	emit(logger, slog.LevelError, msg, attrs, map[string]string{
		FieldEventType: eventType,
		FieldErrorHint: defaultErrorHint,
	})
}

var requiredOrder = []string{FieldEventType, FieldErrorHint, FieldImpact}

func emit(logger *slog.Logger, level slog.Level, msg string, attrs []Attr, defaults map[string]string) {
	if logger == nil {
		return
	}
	present := make(map[string]bool, len(attrs))
	args := make([]any, 0, len(attrs)+len(defaults))
	for _, attr := range attrs {
		present[attr.Key] = true
		args = append(args, attr)
	}
	for _, key := range requiredOrder {
		value, ok := defaults[key]
		if !ok || present[key] {
			continue
		}
		args = append(args, slog.String(key, value))
	}
	logger.Log(context.Background(), level, msg, args...)
}
