package stats_test

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"ampliconflow/internal/services"
	"ampliconflow/internal/stats"
)

func fragment(column string, pairs ...any) *stats.Fragment {
	f := stats.NewFragment(column)
	for i := 0; i+1 < len(pairs); i += 2 {
		f.Set(pairs[i].(string), int64(pairs[i+1].(int)))
	}
	return f
}

func buildScenario(t *testing.T) *stats.Table {
	t.Helper()
	table, err := stats.Aggregate(
		fragment(stats.ColumnInitial, "S1", 100, "S2", 50),
		fragment(stats.ColumnPassed, "S1", 90, "S2", 45),
		fragment(stats.MappedColumn("zotus"), "S1", 85, "S2", 40),
		stats.NewFragment(stats.ColumnChimeraMapped),
	)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	for _, p := range [][3]string{
		{stats.ColumnPercentPassed, stats.ColumnPassed, stats.ColumnInitial},
		{stats.PercentMappedColumn("zotus"), stats.MappedColumn("zotus"), stats.ColumnInitial},
		{stats.ColumnPercentChimera, stats.ColumnChimeraMapped, stats.ColumnInitial},
	} {
		if err := table.AddPercent(p[0], p[1], p[2]); err != nil {
			t.Fatalf("AddPercent %s: %v", p[0], err)
		}
	}
	return table
}

func TestAggregateTwoSampleRun(t *testing.T) {
	table := buildScenario(t)

	checks := []struct {
		sample, column string
		want           float64
	}{
		{"S1", stats.ColumnInitial, 100},
		{"S2", stats.ColumnInitial, 50},
		{"S1", stats.ColumnPassed, 90},
		{"S2", stats.ColumnPassed, 45},
		{"S1", stats.MappedColumn("zotus"), 85},
		{"S2", stats.MappedColumn("zotus"), 40},
		{"S1", stats.ColumnChimeraMapped, 0},
		{"S2", stats.ColumnChimeraMapped, 0},
		{"S1", stats.ColumnPercentPassed, 90},
		{"S2", stats.ColumnPercentPassed, 90},
		{"S1", stats.PercentMappedColumn("zotus"), 85},
		{"S2", stats.PercentMappedColumn("zotus"), 80},
		{"S1", stats.ColumnPercentChimera, 0},
	}
	for _, c := range checks {
		got, ok := table.Value(c.sample, c.column)
		if !ok {
			t.Fatalf("missing cell %s/%s", c.sample, c.column)
		}
		if math.Abs(got-c.want) > 1e-9 {
			t.Fatalf("%s/%s = %v, want %v", c.sample, c.column, got, c.want)
		}
	}
}

func TestAggregateLeftJoinsOnInitialSamples(t *testing.T) {
	table, err := stats.Aggregate(
		fragment(stats.ColumnInitial, "S2", 10, "S1", 5),
		fragment(stats.ColumnPassed, "S1", 4, "S9", 3),
	)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if diff := cmp.Diff([]string{"S2", "S1"}, table.SampleIDs()); diff != "" {
		t.Fatalf("sample order mismatch (-want +got):\n%s", diff)
	}
	if got := table.Count("S2", stats.ColumnPassed); got != 0 {
		t.Fatalf("expected zero fill for S2, got %d", got)
	}
	if _, ok := table.Value("S9", stats.ColumnPassed); ok {
		t.Fatal("samples outside the initial fragment must be dropped")
	}
}

func TestAggregateTreatsUnknownAsZero(t *testing.T) {
	table, err := stats.Aggregate(
		fragment(stats.ColumnInitial, "S1", 10),
		fragment(stats.ColumnPassed, "S1", int(stats.Unknown)),
	)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if got := table.Count("S1", stats.ColumnPassed); got != 0 {
		t.Fatalf("expected unknown to render as zero, got %d", got)
	}
}

func TestAggregateRejectsDuplicateColumns(t *testing.T) {
	_, err := stats.Aggregate(
		fragment(stats.ColumnInitial, "S1", 1),
		fragment(stats.ColumnInitial, "S1", 1),
	)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAddPercentZeroDenominator(t *testing.T) {
	table, err := stats.Aggregate(
		fragment(stats.ColumnInitial, "S1", 0),
		fragment(stats.ColumnPassed, "S1", 0),
	)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if err := table.AddPercent(stats.ColumnPercentPassed, stats.ColumnPassed, stats.ColumnInitial); err != nil {
		t.Fatalf("AddPercent: %v", err)
	}
	got, _ := table.Value("S1", stats.ColumnPercentPassed)
	if got != 0 || math.IsNaN(got) {
		t.Fatalf("expected 0 for empty sample, got %v", got)
	}
}

type mapResolver map[string]string

func (m mapResolver) Original(id string) (string, bool) {
	v, ok := m[id]
	return v, ok
}

type relabelRecorder struct {
	ids     []string
	applied map[string]string
}

func (r *relabelRecorder) SampleIDs() []string { return r.ids }

func (r *relabelRecorder) RelabelSamples(m map[string]string) { r.applied = m }

func TestRestoreIsAllOrNothing(t *testing.T) {
	table := buildScenario(t)
	other := &relabelRecorder{ids: []string{"S1", "S3"}}

	err := stats.Restore(mapResolver{"S1": "S-1", "S2": "S.2"}, table, other)
	if !errors.Is(err, services.ErrIntegrity) {
		t.Fatalf("expected integrity error, got %v", err)
	}
	if other.applied != nil {
		t.Fatal("no target should be relabelled when a mapping is missing")
	}
	if diff := cmp.Diff([]string{"S1", "S2"}, table.SampleIDs()); diff != "" {
		t.Fatalf("table modified despite failure (-want +got):\n%s", diff)
	}
}

func TestRestoreRelabelsTable(t *testing.T) {
	table := buildScenario(t)
	if err := stats.Restore(mapResolver{"S1": "S-1", "S2": "S.2"}, table); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if diff := cmp.Diff([]string{"S-1", "S.2"}, table.SampleIDs()); diff != "" {
		t.Fatalf("restored ids mismatch (-want +got):\n%s", diff)
	}
	if got := table.Count("S.2", stats.ColumnPassed); got != 45 {
		t.Fatalf("expected values to follow relabel, got %d", got)
	}
	if err := stats.Restore(mapResolver{"S-1": "x", "S.2": "y"}, table); !errors.Is(err, services.ErrIntegrity) {
		t.Fatalf("expected second restore to fail, got %v", err)
	}
}

func TestRestoreWithoutResolverIsNoop(t *testing.T) {
	table := buildScenario(t)
	if err := stats.Restore(nil, table); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if table.Restored() {
		t.Fatal("nil resolver must not mark table restored")
	}
}

func TestWriteTSV(t *testing.T) {
	table := buildScenario(t)
	table.SetSummary(stats.Summary{TotalReads: 135, UniqueReads: 12, Singletons: 4, Amplicons: 3, Features: 3, FeatureLabel: "ZOTUs"}.String())

	var buf bytes.Buffer
	if err := table.WriteTSV(&buf); err != nil {
		t.Fatalf("WriteTSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got %d lines", len(lines))
	}
	header := strings.Split(lines[0], "\t")
	if header[0] != "sample-id" || header[len(header)-1] != stats.ColumnSummary {
		t.Fatalf("unexpected header %v", header)
	}
	row := strings.Split(lines[1], "\t")
	if row[0] != "S1" || row[1] != "100" || row[2] != "90" {
		t.Fatalf("unexpected row %v", row)
	}
	if !strings.Contains(lines[2], "Total Reads: 135 ;Unique Reads: 12") {
		t.Fatalf("summary not rendered: %q", lines[2])
	}
}

func TestSummaryString(t *testing.T) {
	s := stats.Summary{TotalReads: 100, UniqueReads: stats.Unknown, Singletons: 2, Amplicons: 5, Features: 4, FeatureLabel: "ZOTUs"}
	want := "Total Reads: 100 ;Unique Reads: unknown ;Singletons: 2 ;Amplicons: 5 ;ZOTUs: 4"
	if got := s.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}
