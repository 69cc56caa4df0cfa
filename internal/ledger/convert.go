package ledger

import (
	"strings"

	"ampliconflow/internal/pipeline"
	"ampliconflow/internal/stats"
)

// CompletionFromOutputs extracts the ledger record of a finished run.
func CompletionFromOutputs(out *pipeline.Outputs) Completion {
	c := Completion{FinishedAt: out.FinishedAt, Summary: out.Summary}
	if out.Stats != nil {
		mapped := stats.MappedColumn(out.Kind)
		for _, sample := range out.Stats.SampleIDs() {
			c.Samples = append(c.Samples, SampleStats{
				SampleID: sample,
				Initial:  out.Stats.Count(sample, stats.ColumnInitial),
				Passed:   out.Stats.Count(sample, stats.ColumnPassed),
				Mapped:   out.Stats.Count(sample, mapped),
				Chimera:  out.Stats.Count(sample, stats.ColumnChimeraMapped),
			})
		}
	}
	for _, inv := range out.Invocations {
		c.Logs = append(c.Logs, Log{
			Stage:    inv.Stage,
			Command:  strings.Join(append([]string{inv.Binary}, inv.Args...), " "),
			Duration: inv.Duration,
			Text:     inv.Log,
		})
	}
	return c
}
