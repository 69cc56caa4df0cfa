package preflight

import (
	"context"
	"fmt"
	"strings"

	"ampliconflow/internal/config"
	"ampliconflow/internal/deps"
	"ampliconflow/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Detail   string
	Optional bool
}

// RunAll executes every preflight check for cfg. Directories are expected to
// exist already (config.EnsureDirectories creates them).
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
	}
	results = append(results, CheckEngines(ctx, cfg)...)
	return results
}

// Err folds failed required checks into one configuration error, or nil
// when every required check passed.
func Err(results []Result) error {
	var failed []string
	for _, r := range results {
		if r.Passed || r.Optional {
			continue
		}
		failed = append(failed, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	if len(failed) == 0 {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "preflight", "", strings.Join(failed, "; "), nil)
}

func fromStatus(status deps.Status) Result {
	result := Result{Name: status.Name, Passed: status.Available, Optional: status.Optional}
	switch {
	case !status.Available:
		result.Detail = status.Detail
	case status.Version != "":
		result.Detail = fmt.Sprintf("%s (%s)", status.Command, status.Version)
	default:
		result.Detail = status.Command
	}
	return result
}
