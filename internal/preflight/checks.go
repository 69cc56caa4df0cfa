package preflight

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"ampliconflow/internal/config"
	"ampliconflow/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckEngines resolves the engine binaries cfg needs and probes their versions.
func CheckEngines(ctx context.Context, cfg *config.Config) []Result {
	statuses := deps.ProbeVersions(ctx, deps.CheckBinaries(deps.EngineRequirements(cfg)))
	results := make([]Result, 0, len(statuses))
	for _, status := range statuses {
		results = append(results, fromStatus(status))
	}
	return results
}
