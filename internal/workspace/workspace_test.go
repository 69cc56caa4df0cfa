package workspace

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ampliconflow/internal/logging"
)

func TestAcquireAndRelease(t *testing.T) {
	base := t.TempDir()
	ws, err := Acquire(base, "abc", false, logging.NewNop())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(ws.Root()), DirPrefix+"abc-") {
		t.Fatalf("unexpected workspace name %q", ws.Root())
	}
	if ws.Path("pooled.fastq") != filepath.Join(ws.Root(), "pooled.fastq") {
		t.Fatalf("unexpected path join")
	}
	parts, err := ws.Mkdir("parts")
	if err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if info, err := os.Stat(parts); err != nil || !info.IsDir() {
		t.Fatalf("expected parts directory, err=%v", err)
	}
	if err := ws.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(ws.Root()); !os.IsNotExist(err) {
		t.Fatal("workspace should be removed")
	}
}

func TestReleaseKeepsWorkspace(t *testing.T) {
	ws, err := Acquire(t.TempDir(), "keep", true, nil)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := ws.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(ws.Root()); err != nil {
		t.Fatalf("workspace should be retained: %v", err)
	}
}

func TestCleanStaleInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := CleanStale(context.Background(), dir, time.Hour, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanStaleRemovesOnlyOldRunDirectories(t *testing.T) {
	base := t.TempDir()
	oldTime := time.Now().Add(-2 * time.Hour)

	oldRun := filepath.Join(base, DirPrefix+"old")
	foreign := filepath.Join(base, "unrelated")
	recent := filepath.Join(base, DirPrefix+"recent")
	for _, dir := range []string{oldRun, foreign, recent} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	for _, dir := range []string{oldRun, foreign} {
		if err := os.Chtimes(dir, oldTime, oldTime); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	result := CleanStale(context.Background(), base, time.Hour, logging.NewNop())
	if len(result.Removed) != 1 || result.Removed[0] != oldRun {
		t.Fatalf("expected only %s removed, got %v", oldRun, result.Removed)
	}
	for _, dir := range []string{foreign, recent} {
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("%s should still exist", dir)
		}
	}
}
