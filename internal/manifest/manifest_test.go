package manifest_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"ampliconflow/internal/manifest"
	"ampliconflow/internal/services"
)

func TestParseResolvesRelativePaths(t *testing.T) {
	input := strings.Join([]string{
		"# declared samples",
		"sample-id,filename,direction",
		"S-1,s1_R1.fastq.gz,forward",
		"S.2,/data/s2.fastq,forward",
		"S-1,s1_R2.fastq.gz,reverse",
		"",
	}, "\n")
	m, err := manifest.Parse(strings.NewReader(input), "/runs/demux")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []manifest.Sample{
		{ID: "S-1", Forward: "/runs/demux/s1_R1.fastq.gz", Reverse: "/runs/demux/s1_R2.fastq.gz"},
		{ID: "S.2", Forward: "/data/s2.fastq"},
	}
	if diff := cmp.Diff(want, m.Samples); diff != "" {
		t.Fatalf("samples mismatch (-want +got):\n%s", diff)
	}
	if !m.Paired() {
		t.Fatal("expected manifest to report paired input")
	}
	if m.PhredOffset != manifest.DefaultPhredOffset {
		t.Fatalf("expected default offset, got %d", m.PhredOffset)
	}
}

func TestParseWithoutDirectionColumn(t *testing.T) {
	m, err := manifest.Parse(strings.NewReader("sample-id,absolute-filepath\nA,/x/a.fq\nB,/x/b.fq\n"), "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if diff := cmp.Diff([]string{"A", "B"}, m.IDs()); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRejectsInvalidManifests(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"no id column":   "name,filename\nA,a.fq\n",
		"no path column": "sample-id,direction\nA,forward\n",
		"duplicate":      "sample-id,filename\nA,a.fq\nA,b.fq\n",
		"blank id":       "sample-id,filename\n,a.fq\n",
		"bad direction":  "sample-id,filename,direction\nA,a.fq,sideways\n",
		"reverse only":   "sample-id,filename,direction\nA,a.fq,reverse\n",
		"no samples":     "sample-id,filename\n",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := manifest.Parse(strings.NewReader(input), "")
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestLoadDirectoryReadsMetadata(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, manifest.FileName), "sample-id,filename,direction\nA,a.fastq,forward\n")
	writeFile(t, filepath.Join(dir, manifest.MetadataFileName), "phred-offset: 64\n")

	m, err := manifest.Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.PhredOffset != 64 {
		t.Fatalf("expected phred offset 64, got %d", m.PhredOffset)
	}
	if m.Samples[0].Forward != filepath.Join(dir, "a.fastq") {
		t.Fatalf("unexpected forward path %q", m.Samples[0].Forward)
	}
}

func TestLoadRejectsUnsupportedOffset(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, manifest.FileName), "sample-id,filename\nA,a.fastq\n")
	writeFile(t, filepath.Join(dir, manifest.MetadataFileName), "phred-offset: 42\n")

	if _, err := manifest.Load(dir); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLoadMissingPath(t *testing.T) {
	if _, err := manifest.Load(filepath.Join(t.TempDir(), "missing.csv")); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
