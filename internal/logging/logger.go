package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"ampliconflow/internal/config"
)

// LogFileName is the file written under paths.log_dir.
const LogFileName = "ampliconflow.log"

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string
	// Outputs lists destinations: "stdout", "stderr" or file paths. Empty
	// means stderr.
	Outputs []string
	// AddSource forces file:line on every record. Debug level implies it.
	AddSource      bool
	StageOverrides map[string]string
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	base := parseLevel(opts.Level)

	// The shared handler runs at the most verbose level any stage asks for.
	floor := base
	for _, raw := range opts.StageOverrides {
		floor = min(floor, parseLevel(raw))
	}

	w, err := openOutputs(opts.Outputs)
	if err != nil {
		return nil, err
	}
	addSource := opts.AddSource || base <= slog.LevelDebug

	var handler slog.Handler
	switch format := strings.ToLower(strings.TrimSpace(opts.Format)); format {
	case "", "console":
		handler = newConsoleHandler(w, floor, addSource)
	case "json":
		handler = newJSONHandler(w, floor, addSource)
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	if floor != base {
		handler = withMinLevel(handler, base)
	}
	return slog.New(handler), nil
}

// NewFromConfig logs to stderr and, when paths.log_dir is set, appends to
// LogFileName there.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{})
	}
	outputs := []string{"stderr"}
	if cfg.Paths.LogDir != "" {
		outputs = append(outputs, filepath.Join(cfg.Paths.LogDir, LogFileName))
	}
	return New(Options{
		Level:          cfg.Logging.Level,
		Format:         cfg.Logging.Format,
		Outputs:        outputs,
		StageOverrides: cfg.Logging.StageOverrides,
	})
}

// ForStage applies the configured level override for stage, if any.
func ForStage(logger *slog.Logger, stage string, overrides map[string]string) *slog.Logger {
	if logger == nil {
		return NewNop()
	}
	raw := strings.TrimSpace(overrides[stage])
	if raw == "" {
		return logger
	}
	return slog.New(withMinLevel(logger.Handler(), parseLevel(raw)))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openOutputs(outputs []string) (io.Writer, error) {
	var writers []io.Writer
	seen := make(map[string]bool, len(outputs))
	for _, raw := range outputs {
		target := strings.TrimSpace(raw)
		if target == "" || seen[target] {
			continue
		}
		seen[target] = true

		switch target {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return nil, fmt.Errorf("ensure log directory: %w", err)
			}
			file, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", target, err)
			}
			writers = append(writers, file)
		}
	}

	switch len(writers) {
	case 0:
		return os.Stderr, nil
	case 1:
		return writers[0], nil
	default:
		return io.MultiWriter(writers...), nil
	}
}
