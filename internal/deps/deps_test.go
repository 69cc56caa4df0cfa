package deps

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"ampliconflow/internal/config"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank"},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected blank command result %#v", results[2])
	}
}

func TestEngineRequirements(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.Backend = config.BackendVsearch
	reqs := EngineRequirements(&cfg)
	if len(reqs) != 2 {
		t.Fatalf("expected two requirements, got %d", len(reqs))
	}
	if !reqs[0].Optional || reqs[1].Optional {
		t.Fatalf("only vsearch should be required: %#v", reqs)
	}

	cfg.Engine.ChimeraSearchBackend = config.BackendUsearch
	reqs = EngineRequirements(&cfg)
	if reqs[0].Optional || reqs[1].Optional {
		t.Fatalf("both engines should be required with a distinct chimera backend: %#v", reqs)
	}
	if reqs[0].Command != cfg.Engine.UsearchBinary {
		t.Fatalf("unexpected usearch command %q", reqs[0].Command)
	}
}

func TestProbeVersions(t *testing.T) {
	binDir := t.TempDir()
	stub := filepath.Join(binDir, "vsearch")
	script := []byte("#!/bin/sh\necho 'vsearch v2.28.1_linux_x86_64' >&2\nexit 0\n")
	if err := os.WriteFile(stub, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	statuses := ProbeVersions(context.Background(), []Status{
		{Name: "vsearch", Command: stub, Available: true},
		{Name: "usearch", Command: "missing", Available: false},
	})
	if statuses[0].Version != "vsearch v2.28.1_linux_x86_64" {
		t.Fatalf("unexpected version %q (detail %q)", statuses[0].Version, statuses[0].Detail)
	}
	if statuses[1].Version != "" {
		t.Fatalf("unavailable binaries must not be probed, got %q", statuses[1].Version)
	}
}
