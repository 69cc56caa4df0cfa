package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Read is a FASTQ fixture record. An empty Qual is filled with high scores.
type Read struct {
	ID   string
	Seq  string
	Qual string
}

// Reads builds fixture reads named prefix_1..n for the given sequences.
func Reads(prefix string, seqs ...string) []Read {
	out := make([]Read, len(seqs))
	for i, s := range seqs {
		out[i] = Read{ID: fmt.Sprintf("%s_%d", prefix, i+1), Seq: s}
	}
	return out
}

// Repeat returns n copies of seq.
func Repeat(seq string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = seq
	}
	return out
}

// WriteFASTQ writes reads to path, creating parent directories.
func WriteFASTQ(t testing.TB, path string, reads ...Read) {
	t.Helper()
	var b strings.Builder
	for _, r := range reads {
		qual := r.Qual
		if qual == "" {
			qual = strings.Repeat("I", len(r.Seq))
		}
		fmt.Fprintf(&b, "@%s\n%s\n+\n%s\n", r.ID, r.Seq, qual)
	}
	writeText(t, path, b.String())
}

// WriteFASTA writes id/sequence pairs to path.
func WriteFASTA(t testing.TB, path string, pairs ...[2]string) {
	t.Helper()
	var b strings.Builder
	for _, p := range pairs {
		fmt.Fprintf(&b, ">%s\n%s\n", p[0], p[1])
	}
	writeText(t, path, b.String())
}

// ManifestEntry declares one sample of a fixture manifest.
type ManifestEntry struct {
	ID    string
	Reads []Read
}

// WriteManifest writes each sample's reads and a MANIFEST CSV into dir and
// returns the manifest path.
func WriteManifest(t testing.TB, dir string, entries ...ManifestEntry) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("sample-id,filename,direction\n")
	for i, e := range entries {
		name := fmt.Sprintf("sample_%d_R1.fastq", i+1)
		WriteFASTQ(t, filepath.Join(dir, name), e.Reads...)
		fmt.Fprintf(&b, "%s,%s,forward\n", e.ID, name)
	}
	path := filepath.Join(dir, "MANIFEST")
	writeText(t, path, b.String())
	return path
}

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	writeText(t, path, strings.Repeat("B", int(size)))
}

func writeText(t testing.TB, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
