package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ampliconflow/internal/config"
	"ampliconflow/internal/services"
	"ampliconflow/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestRunAllPassesWithStubbedEngine(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.StubEngines(t, cfg)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	results := RunAll(context.Background(), cfg)
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d: %#v", len(results), results)
	}
	if err := Err(results); err != nil {
		t.Fatalf("unexpected preflight failure: %v", err)
	}
	for _, r := range results {
		if r.Name == config.BackendUsearch && !strings.Contains(r.Detail, "v0.0.0_test") {
			t.Fatalf("expected probed version in detail, got %q", r.Detail)
		}
	}
}

func TestRunAllReportsMissingEngine(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBackend(config.BackendVsearch))
	cfg.Engine.VsearchBinary = "definitely-not-vsearch"
	cfg.Engine.UsearchBinary = "definitely-not-usearch"
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	err := Err(RunAll(context.Background(), cfg))
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !strings.Contains(err.Error(), "definitely-not-vsearch") {
		t.Fatalf("error should name the missing engine: %v", err)
	}
	if strings.Contains(err.Error(), "definitely-not-usearch") {
		t.Fatalf("optional engine must not fail preflight: %v", err)
	}
}
