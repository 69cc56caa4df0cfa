// Package qc runs the engine's expected-error quality filter over the pooled
// reads and recounts survivors per sample from the output labels.
package qc

import (
	"context"
	"log/slog"

	"ampliconflow/internal/engine"
	"ampliconflow/internal/logging"
	"ampliconflow/internal/samples"
	"ampliconflow/internal/seqio"
	"ampliconflow/internal/services"
	"ampliconflow/internal/stats"
	"ampliconflow/internal/workspace"
)

// Stage names the filter in logs and errors.
const Stage = "quality_filter"

const (
	filteredFileName = "filtered.fasta"
	logFileName      = "fastq_filter.log"
)

// Thresholds are the filter options. Nil fields are omitted from the
// invocation so the engine default applies.
type Thresholds struct {
	MaxExpectedError *float64
	MinLength        *int
	TrimLeft         *int
	TruncateRight    *int
	MaxN             *int
	// TruncQual truncates each read at the first base below this score.
	TruncQual *int
	// ASCIIOffset is the quality encoding offset; only 64 is forwarded.
	ASCIIOffset int
}

// FilteredReadSet is the FASTA of reads that passed the filter.
type FilteredReadSet struct {
	Path  string
	Reads int64
}

// Filter runs the quality filter and returns per-sample passed counts keyed
// by the pooled sample labels.
func Filter(ctx context.Context, eng *engine.Client, ws *workspace.Workspace, pooled samples.PooledReadSet, th Thresholds, logger *slog.Logger) (FilteredReadSet, *stats.Fragment, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	out := ws.Path(filteredFileName)
	cmd := eng.Command(Stage, "fastq_filter", pooled.Path).Option("fastaout", out)
	if th.TruncQual != nil {
		cmd.Int("fastq_truncqual", *th.TruncQual)
	}
	if th.MaxExpectedError != nil {
		cmd.Float("fastq_maxee", *th.MaxExpectedError)
	}
	if th.TrimLeft != nil {
		cmd.Int("fastq_stripleft", *th.TrimLeft)
	}
	if th.TruncateRight != nil {
		cmd.Int("fastq_trunclen", *th.TruncateRight)
	}
	if th.MinLength != nil {
		cmd.Int("fastq_minlen", *th.MinLength)
	}
	if th.MaxN != nil {
		cmd.Int("fastq_maxns", *th.MaxN)
	}
	if th.ASCIIOffset == 64 {
		cmd.Int("fastq_ascii", 64)
	}
	cmd.Threads().Log(ws.Path(logFileName))

	if _, err := eng.Run(ctx, cmd); err != nil {
		return FilteredReadSet{}, nil, err
	}

	counts, total, err := seqio.CountReadsBySample(out)
	if err != nil {
		return FilteredReadSet{}, nil, services.Wrap(services.ErrIntegrity, Stage, "count", "read filtered reads", err)
	}
	fragment := stats.NewFragment(stats.ColumnPassed)
	for _, id := range pooled.Samples {
		fragment.Set(id, counts[id])
	}
	for id, n := range counts {
		if _, ok := fragment.Get(id); !ok {
			logging.WarnWithContext(logger, "filtered reads carry an undeclared sample label", "unknown_sample_label",
				logging.String(logging.FieldSample, id),
				logging.Int64("reads", n),
			)
		}
	}
	logger.Info("quality filter finished",
		logging.Int64("reads_in", pooled.Reads),
		logging.Int64("reads_passed", total),
	)
	return FilteredReadSet{Path: out, Reads: total}, fragment, nil
}
