package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"ampliconflow/internal/config"
)

// ConfigOption adjusts the config built by NewConfig.
type ConfigOption func(*config.Config)

// NewConfig returns the default config with every path under a fresh temp
// directory, one engine thread and two pooling workers.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.OutputDir = filepath.Join(base, "results")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.LedgerPath = filepath.Join(base, "ledger", "ledger.db")
	cfg.Engine.Threads = 1
	cfg.Pooling.Workers = 2

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithBackend selects the engine backend.
func WithBackend(backend string) ConfigOption {
	return func(cfg *config.Config) { cfg.Engine.Backend = backend }
}

// WithKeepWorkspace retains the run workspace after the run.
func WithKeepWorkspace() ConfigOption {
	return func(cfg *config.Config) { cfg.Paths.KeepWorkspace = true }
}

// StubEngines writes shell stubs for usearch and vsearch that print a
// version banner, and points cfg at them.
func StubEngines(t testing.TB, cfg *config.Config) {
	t.Helper()
	binDir := filepath.Join(filepath.Dir(cfg.Paths.WorkDir), "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	for _, name := range []string{config.BackendUsearch, config.BackendVsearch} {
		target := filepath.Join(binDir, name)
		script := fmt.Sprintf("#!/bin/sh\necho '%s v0.0.0_test'\n", name)
		if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
			t.Fatalf("write stub %s: %v", name, err)
		}
	}
	cfg.Engine.UsearchBinary = filepath.Join(binDir, config.BackendUsearch)
	cfg.Engine.VsearchBinary = filepath.Join(binDir, config.BackendVsearch)
}
