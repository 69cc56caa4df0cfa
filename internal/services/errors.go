package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool     = errors.New("external tool error")
	ErrValidation       = errors.New("validation error")
	ErrConfiguration    = errors.New("configuration error")
	ErrIntegrity        = errors.New("integrity error")
	ErrStatsUnavailable = errors.New("stats unavailable")
	ErrNotFound         = errors.New("not found")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ToolError records a failed engine invocation together with the output it
// produced before exiting.
type ToolError struct {
	Stage    string
	Binary   string
	Args     []string
	ExitCode int
	Stderr   string
	Stdout   string
	Err      error
}

func (e *ToolError) Error() string {
	var b strings.Builder
	b.WriteString(ErrExternalTool.Error())
	if e.Stage != "" {
		b.WriteString(": ")
		b.WriteString(e.Stage)
	}
	fmt.Fprintf(&b, ": %s exited", e.Binary)
	if e.ExitCode >= 0 {
		fmt.Fprintf(&b, " with status %d", e.ExitCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if tail := lastLine(e.Stderr); tail != "" {
		b.WriteString(" (")
		b.WriteString(tail)
		b.WriteString(")")
	}
	return b.String()
}

func (e *ToolError) Unwrap() error { return e.Err }

// Is reports ToolError as an ErrExternalTool so callers can classify it with
// errors.Is without unwrapping the concrete type.
func (e *ToolError) Is(target error) bool { return target == ErrExternalTool }

// Exit codes returned by the CLI for each failure class.
const (
	ExitFailure       = 1
	ExitValidation    = 2
	ExitConfiguration = 3
	ExitExternalTool  = 4
	ExitIntegrity     = 5
)

// ExitCode maps an error onto the process exit status reported by the CLI.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound):
		return ExitValidation
	case errors.Is(err, ErrConfiguration):
		return ExitConfiguration
	case errors.Is(err, ErrExternalTool):
		return ExitExternalTool
	case errors.Is(err, ErrIntegrity):
		return ExitIntegrity
	default:
		return ExitFailure
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

func lastLine(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if idx := strings.LastIndexByte(text, '\n'); idx >= 0 {
		text = text[idx+1:]
	}
	return strings.TrimSpace(text)
}
