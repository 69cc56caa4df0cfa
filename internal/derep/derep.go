// Package derep collapses filtered reads into abundance-annotated unique
// sequences.
package derep

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"ampliconflow/internal/engine"
	"ampliconflow/internal/logging"
	"ampliconflow/internal/qc"
	"ampliconflow/internal/services"
	"ampliconflow/internal/stats"
	"ampliconflow/internal/workspace"
)

// Stage names dereplication in logs and errors.
const Stage = "dereplicate"

const (
	uniquesFileName = "uniques.fasta"
	logFileName     = "fastx_uniques.log"
)

// Options tunes dereplication.
type Options struct {
	// MinUniqueSize drops uniques below this abundance; zero keeps all.
	MinUniqueSize int
	BothStrands   bool
}

// Stats are the dereplication totals. Any value may be stats.Unknown.
type Stats struct {
	Total      int64
	Unique     int64
	Singletons int64
}

// UniqueReadSet is the dereplicated FASTA with ";size=N" labels.
type UniqueReadSet struct {
	Path  string
	Stats Stats
}

// Dereplicate runs full-length dereplication on the filtered reads. Failure
// to read the summary from the engine output is logged and never fatal.
func Dereplicate(ctx context.Context, eng *engine.Client, ws *workspace.Workspace, filtered qc.FilteredReadSet, opts Options, logger *slog.Logger) (UniqueReadSet, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	out := ws.Path(uniquesFileName)
	cmd := eng.Command(Stage, "fastx_uniques", filtered.Path).
		Option("fastaout", out).
		Switch("sizeout")
	if opts.MinUniqueSize > 0 {
		cmd.Int("minuniquesize", opts.MinUniqueSize)
	}
	if opts.BothStrands {
		cmd.Option("strand", "both")
	}
	cmd.Threads().Log(ws.Path(logFileName))

	result, err := eng.Run(ctx, cmd)
	if err != nil {
		return UniqueReadSet{}, err
	}

	lines := append(strings.Split(result.Log, "\n"), result.Stderr...)
	lines = append(lines, result.Stdout...)
	st, err := ParseLog(lines)
	if err != nil {
		logging.WarnWithContext(logger, "dereplication summary unavailable", "derep_stats_unavailable",
			logging.Error(err),
			logging.String(logging.FieldImpact, "unique and singleton counts reported as unknown"),
			logging.String(logging.FieldErrorHint, "check the engine version writes a uniques summary"),
		)
	} else {
		logger.Info("dereplication finished",
			logging.Int64("reads", st.Total),
			logging.Int64("uniques", st.Unique),
			logging.Int64("singletons", st.Singletons),
		)
	}
	return UniqueReadSet{Path: out, Stats: st}, nil
}

var countBefore = regexp.MustCompile(`([0-9][0-9,]*)\s+(seqs|uniques|singletons)\b`)

// ParseLog extracts totals from the engine summary line, the one naming both
// "uniques" and "singletons". When no such line parses, all three values are
// stats.Unknown and the error wraps services.ErrStatsUnavailable.
func ParseLog(lines []string) (Stats, error) {
	unknown := Stats{Total: stats.Unknown, Unique: stats.Unknown, Singletons: stats.Unknown}
	for _, line := range lines {
		if !strings.Contains(line, "uniques") || !strings.Contains(line, "singletons") {
			continue
		}
		found := make(map[string]int64, 3)
		for _, m := range countBefore.FindAllStringSubmatch(line, -1) {
			n, err := strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64)
			if err != nil {
				continue
			}
			found[m[2]] = n
		}
		total, okTotal := found["seqs"]
		unique, okUnique := found["uniques"]
		singles, okSingles := found["singletons"]
		if okTotal && okUnique && okSingles {
			return Stats{Total: total, Unique: unique, Singletons: singles}, nil
		}
		return unknown, services.Wrap(services.ErrStatsUnavailable, Stage, "parse log",
			fmt.Sprintf("summary line missing counts: %q", strings.TrimSpace(line)), nil)
	}
	return unknown, services.Wrap(services.ErrStatsUnavailable, Stage, "parse log", "no summary line found", nil)
}
