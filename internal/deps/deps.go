// Package deps reports whether the external sequence engines are installed.
package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"ampliconflow/internal/config"
)

// Requirement defines an external dependency the pipeline relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
	// Version is the first line the binary printed for --version, when probed.
	Version string
}

// versionTimeout bounds a --version probe.
const versionTimeout = 5 * time.Second

// EngineRequirements lists the engine binaries cfg needs: the main backend
// and, when it differs, the chimera search backend. The backend not in use
// is reported as optional.
func EngineRequirements(cfg *config.Config) []Requirement {
	needed := map[string]bool{cfg.Engine.Backend: true, cfg.ChimeraBackend(): true}
	reqs := make([]Requirement, 0, 2)
	for _, backend := range []string{config.BackendUsearch, config.BackendVsearch} {
		desc := "Sequence engine"
		switch {
		case backend == cfg.Engine.Backend:
			desc = "Required for filtering, dereplication, denoising and mapping"
		case needed[backend]:
			desc = "Required for the chimera accounting search"
		}
		reqs = append(reqs, Requirement{
			Name:        backend,
			Command:     cfg.EngineBinary(backend),
			Description: desc,
			Optional:    !needed[backend],
		})
	}
	return reqs
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// ProbeVersions fills Version for every available status by running the
// binary with --version. Probe failures are recorded in Detail and never
// flip Available.
func ProbeVersions(ctx context.Context, statuses []Status) []Status {
	out := make([]Status, len(statuses))
	for i, status := range statuses {
		out[i] = status
		if !status.Available {
			continue
		}
		version, err := probeVersion(ctx, status.Command)
		if err != nil {
			out[i].Detail = fmt.Sprintf("version probe failed: %v", err)
			continue
		}
		out[i].Version = version
	}
	return out
}

func probeVersion(ctx context.Context, binary string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	// usearch writes the banner to stdout, vsearch to stderr.
	output, err := exec.CommandContext(ctx, binary, "--version").CombinedOutput()
	if err != nil && len(output) == 0 {
		return "", err
	}
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return line, nil
		}
	}
	return "", fmt.Errorf("%s printed no version", binary)
}
