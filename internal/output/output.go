// Package output publishes a finished run into its results directory.
//
// Artifacts are rendered into a staging directory first and then copied
// into place with size and checksum verification, so a failed write never
// leaves a half-written table next to a complete one. An advisory lock on
// the results directory keeps two runs from publishing into it at once.
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"ampliconflow/internal/fileutil"
	"ampliconflow/internal/logging"
	"ampliconflow/internal/pipeline"
	"ampliconflow/internal/seqio"
	"ampliconflow/internal/services"
	"ampliconflow/internal/stats"
)

// Published file names.
const (
	FeatureTableFile = "feature-table.tsv"
	RepSeqsFile      = "rep-seqs.fasta"
	StatsFile        = "stats.tsv"
	ChimeraTableFile = "chimera-table.tsv"
	RunSummaryFile   = "run.json"
	ManifestFile     = "MANIFEST"

	lockFileName = ".ampliconflow.lock"
)

// Invocation is the run.json form of one engine call.
type Invocation struct {
	Stage      string   `json:"stage"`
	Binary     string   `json:"binary"`
	Args       []string `json:"args"`
	DurationMS int64    `json:"duration_ms"`
}

// RunSummary is written to run.json.
type RunSummary struct {
	RunID           string        `json:"run_id"`
	Mode            string        `json:"mode"`
	Backend         string        `json:"backend"`
	Manifest        string        `json:"manifest,omitempty"`
	Samples         []string      `json:"samples"`
	Features        int           `json:"features"`
	Chimeras        int64         `json:"chimeric_features"`
	Summary         stats.Summary `json:"summary"`
	SummaryText     string        `json:"summary_text"`
	IdentifierPairs [][2]string   `json:"identifier_surrogates,omitempty"`
	Invocations     []Invocation  `json:"engine_invocations"`
	Workspace       string        `json:"workspace,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      time.Time     `json:"finished_at"`
	Files           []string      `json:"files"`
}

// Options control where a run is published.
type Options struct {
	// Dir is the results directory.
	Dir string
	// StagingDir holds the staging area; empty uses the system temp dir.
	StagingDir string
	// ManifestPath is copied next to the results when set.
	ManifestPath string
	Logger       *slog.Logger
}

// Published describes what was written.
type Published struct {
	Dir   string
	Files []string
	// Checksums maps each published file name to its SHA-256 hex digest.
	Checksums map[string]string
	Summary   RunSummary
}

// Write publishes out into opts.Dir.
func Write(ctx context.Context, out *pipeline.Outputs, opts Options) (Published, error) {
	if out == nil || out.Table == nil || out.Stats == nil {
		return Published{}, services.Wrap(services.ErrValidation, "output", "write", "run produced no outputs", nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.Dir == "" {
		return Published{}, services.Wrap(services.ErrConfiguration, "output", "write", "results directory required", nil)
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return Published{}, services.Wrap(services.ErrConfiguration, "output", "mkdir", "create results directory", err)
	}

	lock := flock.New(filepath.Join(opts.Dir, lockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return Published{}, fmt.Errorf("acquire output lock: %w", err)
	}
	if !ok {
		return Published{}, services.Wrap(services.ErrConfiguration, "output", "lock",
			fmt.Sprintf("another run is writing to %s", opts.Dir), nil)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release output lock", logging.Error(err))
		}
	}()

	if opts.StagingDir != "" {
		if err := os.MkdirAll(opts.StagingDir, 0o755); err != nil {
			return Published{}, services.Wrap(services.ErrConfiguration, "output", "mkdir", "create staging directory", err)
		}
	}
	staging, err := os.MkdirTemp(opts.StagingDir, "publish-"+out.RunID+"-")
	if err != nil {
		return Published{}, fmt.Errorf("create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	files, err := render(staging, out, opts)
	if err != nil {
		return Published{}, err
	}
	summary := buildSummary(out, opts.ManifestPath, files)
	if err := writeJSON(filepath.Join(staging, RunSummaryFile), summary); err != nil {
		return Published{}, err
	}
	files = append(files, RunSummaryFile)

	checksums := make(map[string]string, len(files))
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return Published{}, err
		}
		digest, err := fileutil.PublishFile(filepath.Join(staging, name), filepath.Join(opts.Dir, name))
		if err != nil {
			return Published{}, services.Wrap(services.ErrIntegrity, "output", "publish", name, err)
		}
		checksums[name] = digest
	}
	logger.Info("results published",
		logging.String("dir", opts.Dir),
		logging.Strings("files", files),
		logging.String(logging.FieldEventType, "results_published"),
	)
	return Published{Dir: opts.Dir, Files: files, Checksums: checksums, Summary: summary}, nil
}

func render(dir string, out *pipeline.Outputs, opts Options) ([]string, error) {
	var files []string
	if err := out.Table.WriteFile(filepath.Join(dir, FeatureTableFile)); err != nil {
		return nil, fmt.Errorf("write feature table: %w", err)
	}
	files = append(files, FeatureTableFile)

	if err := seqio.WriteFASTA(filepath.Join(dir, RepSeqsFile), &out.Features); err != nil {
		return nil, fmt.Errorf("write representative sequences: %w", err)
	}
	files = append(files, RepSeqsFile)

	statsFile, err := os.Create(filepath.Join(dir, StatsFile))
	if err != nil {
		return nil, fmt.Errorf("create stats: %w", err)
	}
	if err := out.Stats.WriteTSV(statsFile); err != nil {
		statsFile.Close()
		return nil, fmt.Errorf("write stats: %w", err)
	}
	if err := statsFile.Close(); err != nil {
		return nil, fmt.Errorf("close stats: %w", err)
	}
	files = append(files, StatsFile)

	if out.ChimeraTable != nil && out.ChimeraTable.Len() > 0 {
		if err := out.ChimeraTable.WriteFile(filepath.Join(dir, ChimeraTableFile)); err != nil {
			return nil, fmt.Errorf("write chimera table: %w", err)
		}
		files = append(files, ChimeraTableFile)
	}

	if opts.ManifestPath != "" {
		if err := fileutil.CopyFile(opts.ManifestPath, filepath.Join(dir, ManifestFile)); err != nil {
			return nil, fmt.Errorf("copy manifest: %w", err)
		}
		files = append(files, ManifestFile)
	}
	return files, nil
}

func buildSummary(out *pipeline.Outputs, manifestPath string, files []string) RunSummary {
	invocations := make([]Invocation, 0, len(out.Invocations))
	for _, inv := range out.Invocations {
		invocations = append(invocations, Invocation{
			Stage:      inv.Stage,
			Binary:     inv.Binary,
			Args:       inv.Args,
			DurationMS: inv.Duration.Milliseconds(),
		})
	}
	return RunSummary{
		RunID:           out.RunID,
		Mode:            string(out.Mode),
		Backend:         out.Backend,
		Manifest:        manifestPath,
		Samples:         out.Table.SampleIDs(),
		Features:        out.Table.Len(),
		Chimeras:        out.Summary.Chimeras,
		Summary:         out.Summary,
		SummaryText:     out.Summary.String(),
		IdentifierPairs: out.IdentifierPairs,
		Invocations:     invocations,
		Workspace:       out.Workspace,
		StartedAt:       out.StartedAt,
		FinishedAt:      out.FinishedAt,
		Files:           append(append([]string(nil), files...), RunSummaryFile),
	}
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// ReadSummary loads a published run.json.
func ReadSummary(dir string) (RunSummary, error) {
	var summary RunSummary
	data, err := os.ReadFile(filepath.Join(dir, RunSummaryFile))
	if err != nil {
		return summary, services.Wrap(services.ErrNotFound, "output", "read summary", dir, err)
	}
	if err := json.Unmarshal(data, &summary); err != nil {
		return summary, services.Wrap(services.ErrIntegrity, "output", "read summary", "decode run.json", err)
	}
	return summary, nil
}
