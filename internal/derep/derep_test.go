package derep_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"ampliconflow/internal/derep"
	"ampliconflow/internal/engine"
	"ampliconflow/internal/qc"
	"ampliconflow/internal/seqio"
	"ampliconflow/internal/services"
	"ampliconflow/internal/stats"
	"ampliconflow/internal/testsupport"
	"ampliconflow/internal/workspace"
)

func TestParseLog(t *testing.T) {
	tests := []struct {
		name    string
		lines   []string
		want    derep.Stats
		wantErr bool
	}{
		{
			name:  "usearch summary",
			lines: []string{"00:01 48Mb  100.0% Reading filtered.fasta", "12,345 seqs, 1,234 uniques, 987 singletons (80.0%)"},
			want:  derep.Stats{Total: 12345, Unique: 1234, Singletons: 987},
		},
		{
			name:    "missing tokens",
			lines:   []string{"1234 uniques and some singletons"},
			want:    derep.Stats{Total: stats.Unknown, Unique: stats.Unknown, Singletons: stats.Unknown},
			wantErr: true,
		},
		{
			name:    "no summary",
			lines:   []string{"320 unique sequences, avg cluster 3.1"},
			want:    derep.Stats{Total: stats.Unknown, Unique: stats.Unknown, Singletons: stats.Unknown},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := derep.ParseLog(tt.lines)
			if tt.wantErr != (err != nil) {
				t.Fatalf("ParseLog err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, services.ErrStatsUnavailable) {
				t.Fatalf("expected ErrStatsUnavailable, got %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("stats mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func run(t *testing.T, backend engine.Backend, fake *testsupport.FakeEngine, opts derep.Options) (derep.UniqueReadSet, error) {
	t.Helper()
	ws, err := workspace.Acquire(t.TempDir(), "derep", false, nil)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	t.Cleanup(func() { _ = ws.Release() })
	path := ws.Path("filtered.fasta")
	testsupport.WriteFASTA(t, path,
		[2]string{"S1.1", "ACGTACGT"},
		[2]string{"S1.2", "ACGTACGT"},
		[2]string{"S2.1", "ACGTACGT"},
		[2]string{"S2.2", "TTTTGGGG"},
		[2]string{"S2.3", "CCCCAAAA"},
		[2]string{"S2.4", "CCCCAAAA"},
	)
	eng, err := engine.New(backend, string(backend), engine.WithExecutor(fake))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return derep.Dereplicate(context.Background(), eng, ws, qc.FilteredReadSet{Path: path, Reads: 6}, opts, nil)
}

func TestDereplicateParsesEngineSummary(t *testing.T) {
	fake := &testsupport.FakeEngine{}
	uniques, err := run(t, engine.Usearch, fake, derep.Options{BothStrands: true})
	if err != nil {
		t.Fatalf("Dereplicate: %v", err)
	}
	if diff := cmp.Diff(derep.Stats{Total: 6, Unique: 3, Singletons: 1}, uniques.Stats); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}
	features, err := seqio.ReadFeatures(uniques.Path)
	if err != nil {
		t.Fatalf("ReadFeatures: %v", err)
	}
	var sizes []int64
	for _, f := range features.Features {
		sizes = append(sizes, f.Abundance)
	}
	if diff := cmp.Diff([]int64{3, 2, 1}, sizes); diff != "" {
		t.Fatalf("sizes mismatch (-want +got):\n%s", diff)
	}
	args := fake.Calls()[0]
	if !contains(args, "-sizeout") || !contains(args, "both") {
		t.Fatalf("expected sizeout and strand both in %v", args)
	}
}

func TestDereplicateToleratesMissingSummary(t *testing.T) {
	uniques, err := run(t, engine.Vsearch, &testsupport.FakeEngine{}, derep.Options{MinUniqueSize: 2})
	if err != nil {
		t.Fatalf("missing summary must not fail the stage: %v", err)
	}
	if uniques.Stats.Unique != stats.Unknown || uniques.Stats.Total != stats.Unknown {
		t.Fatalf("expected unknown stats, got %+v", uniques.Stats)
	}
	features, err := seqio.ReadFeatures(uniques.Path)
	if err != nil {
		t.Fatalf("ReadFeatures: %v", err)
	}
	if features.Len() != 2 {
		t.Fatalf("expected minuniquesize to drop the singleton, got %d uniques", features.Len())
	}
}

func contains(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}
