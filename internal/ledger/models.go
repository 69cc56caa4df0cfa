package ledger

import (
	"errors"
	"time"

	"ampliconflow/internal/services"
	"ampliconflow/internal/stats"
)

// Status is the lifecycle state of a recorded run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	// StatusAbandoned marks a run whose process exited without finalizing it.
	StatusAbandoned Status = "abandoned"
)

// Run is one row of the runs table.
type Run struct {
	ID           string
	Mode         string
	Backend      string
	Manifest     string
	OutputDir    string
	Status       Status
	StartedAt    time.Time
	FinishedAt   time.Time
	ErrorKind    string
	ErrorMessage string
	// Summary is nil until the run completes.
	Summary *stats.Summary
}

// Start describes a run as it begins.
type Start struct {
	ID        string
	Mode      string
	Backend   string
	Manifest  string
	OutputDir string
	StartedAt time.Time
}

// SampleStats are the final per-sample read counts of a completed run.
type SampleStats struct {
	SampleID string
	Initial  int64
	Passed   int64
	Mapped   int64
	Chimera  int64
}

// Log is the recorded output of one engine invocation.
type Log struct {
	Stage    string
	Command  string
	Duration time.Duration
	Text     string
}

// Completion is everything stored when a run finishes successfully.
type Completion struct {
	FinishedAt time.Time
	Summary    stats.Summary
	Samples    []SampleStats
	Logs       []Log
}

// ErrorKind classifies err by its service marker.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, services.ErrValidation):
		return "validation"
	case errors.Is(err, services.ErrConfiguration):
		return "configuration"
	case errors.Is(err, services.ErrNotFound):
		return "not_found"
	case errors.Is(err, services.ErrExternalTool):
		return "external_tool"
	case errors.Is(err, services.ErrIntegrity):
		return "integrity"
	default:
		return "failure"
	}
}
