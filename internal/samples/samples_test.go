package samples_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"ampliconflow/internal/manifest"
	"ampliconflow/internal/samples"
	"ampliconflow/internal/services"
	"ampliconflow/internal/stats"
	"ampliconflow/internal/testsupport"
	"ampliconflow/internal/workspace"
)

func TestAssignKeepsValidIdentifiers(t *testing.T) {
	active, idmap := samples.Assign([]string{"gut_1", "Soil2"})
	if idmap != nil {
		t.Fatal("expected no identifier map for valid ids")
	}
	if diff := cmp.Diff([]string{"gut_1", "Soil2"}, active); diff != "" {
		t.Fatalf("active ids mismatch (-want +got):\n%s", diff)
	}
}

func TestAssignSurrogatesRoundTrip(t *testing.T) {
	declared := []string{"S-1", "S.2", "S3"}
	active, idmap := samples.Assign(declared)
	if diff := cmp.Diff([]string{"S1", "S2", "S3"}, active); diff != "" {
		t.Fatalf("surrogates mismatch (-want +got):\n%s", diff)
	}
	for i, surrogate := range active {
		original, ok := idmap.Original(surrogate)
		if !ok || original != declared[i] {
			t.Fatalf("Original(%q) = %q, %v; want %q", surrogate, original, ok, declared[i])
		}
	}
	if _, ok := idmap.Original("S4"); ok {
		t.Fatal("unknown surrogate must not resolve")
	}
}

func TestAssignIsIdempotent(t *testing.T) {
	first, _ := samples.Assign([]string{"a-b", "c"})
	second, idmap := samples.Assign(first)
	if idmap != nil {
		t.Fatal("normalized identifiers must not be remapped again")
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("second pass changed identifiers (-want +got):\n%s", diff)
	}
}

func TestNilIdentifierMapResolvesIdentity(t *testing.T) {
	var idmap *samples.IdentifierMap
	if got, ok := idmap.Original("S1"); !ok || got != "S1" {
		t.Fatalf("nil map should resolve to itself, got %q %v", got, ok)
	}
}

func newWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	ws, err := workspace.Acquire(t.TempDir(), "test", false, nil)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	t.Cleanup(func() { _ = ws.Release() })
	return ws
}

func TestNormalizeAndPool(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := testsupport.WriteManifest(t, dir,
		testsupport.ManifestEntry{ID: "S-1", Reads: testsupport.Reads("a", "ACGT", "ACGA", "ACGC")},
		testsupport.ManifestEntry{ID: "S.2", Reads: testsupport.Reads("b", "TTTT")},
		testsupport.ManifestEntry{ID: "S3", Reads: nil},
	)
	m, err := manifest.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	pooled, fragment, idmap, err := samples.NormalizeAndPool(context.Background(), m, newWorkspace(t), samples.Options{Workers: 2})
	if err != nil {
		t.Fatalf("NormalizeAndPool: %v", err)
	}
	if idmap == nil || idmap.Len() != 3 {
		t.Fatalf("expected surrogate map for 3 samples, got %v", idmap)
	}
	if fragment.Column != stats.ColumnInitial {
		t.Fatalf("unexpected fragment column %q", fragment.Column)
	}
	if diff := cmp.Diff([]string{"S1", "S2", "S3"}, fragment.Samples()); diff != "" {
		t.Fatalf("fragment samples mismatch (-want +got):\n%s", diff)
	}
	for id, want := range map[string]int64{"S1": 3, "S2": 1, "S3": 0} {
		if got, _ := fragment.Get(id); got != want {
			t.Fatalf("initial[%s] = %d, want %d", id, got, want)
		}
	}
	if pooled.Reads != 4 {
		t.Fatalf("expected 4 pooled reads, got %d", pooled.Reads)
	}

	data, err := os.ReadFile(pooled.Path)
	if err != nil {
		t.Fatalf("read pooled: %v", err)
	}
	var headers []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "@") {
			headers = append(headers, line)
		}
	}
	want := []string{"@S1.1", "@S1.2", "@S1.3", "@S2.1"}
	if diff := cmp.Diff(want, headers); diff != "" {
		t.Fatalf("pooled labels mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeAndPoolKeepsAnnotations(t *testing.T) {
	dir := t.TempDir()
	path := testsupport.WriteManifest(t, dir,
		testsupport.ManifestEntry{ID: "gut", Reads: []testsupport.Read{{ID: "r1 barcode=ACGT", Seq: "ACGTACGT"}}},
	)
	m, err := manifest.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	pooled, _, idmap, err := samples.NormalizeAndPool(context.Background(), m, newWorkspace(t), samples.Options{KeepAnnotations: true})
	if err != nil {
		t.Fatalf("NormalizeAndPool: %v", err)
	}
	if idmap != nil {
		t.Fatal("valid ids should not be remapped")
	}
	data, err := os.ReadFile(pooled.Path)
	if err != nil {
		t.Fatalf("read pooled: %v", err)
	}
	if !strings.HasPrefix(string(data), "@gut.1 barcode=ACGT\n") {
		t.Fatalf("annotation not kept: %q", string(data))
	}
}

func TestNormalizeAndPoolRejectsUnreadableInput(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.fastq")
	testsupport.WriteFASTQ(t, good, testsupport.Reads("g", "ACGT")...)
	m := &manifest.Manifest{Samples: []manifest.Sample{
		{ID: "good", Forward: good},
		{ID: "missing", Forward: filepath.Join(dir, "missing.fastq")},
	}}
	ws := newWorkspace(t)

	_, _, _, err := samples.NormalizeAndPool(context.Background(), m, ws, samples.Options{Workers: 1})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, statErr := os.Stat(ws.Path(samples.PooledFileName)); !os.IsNotExist(statErr) {
		t.Fatal("no pooled file should be left behind")
	}
}

func TestNormalizeAndPoolRejectsDuplicateIDs(t *testing.T) {
	m := &manifest.Manifest{Samples: []manifest.Sample{{ID: "a", Forward: "x"}, {ID: "a", Forward: "y"}}}
	_, _, _, err := samples.NormalizeAndPool(context.Background(), m, newWorkspace(t), samples.Options{})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNormalizeAndPoolHonoursCancellation(t *testing.T) {
	dir := t.TempDir()
	path := testsupport.WriteManifest(t, dir,
		testsupport.ManifestEntry{ID: "a", Reads: testsupport.Reads("a", "ACGT")},
	)
	m, err := manifest.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, _, err := samples.NormalizeAndPool(ctx, m, newWorkspace(t), samples.Options{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
