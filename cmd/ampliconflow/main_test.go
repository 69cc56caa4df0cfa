package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ampliconflow/internal/config"
	"ampliconflow/internal/engine"
	"ampliconflow/internal/ledger"
	"ampliconflow/internal/logging"
	"ampliconflow/internal/output"
	"ampliconflow/internal/services"
	"ampliconflow/internal/testsupport"
)

const (
	seqA = "ACGTACGTAACCGGTTACGT"
	seqB = "TTTTGGGGCCAAAACCCCGG"
	seqC = "CCCCAAAAGGTTGGAACCTT"
)

type cliTestEnv struct {
	baseDir    string
	configPath string
	outputDir  string
	ledgerPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	t.Setenv(config.EnvEngineBackend, "")

	base := t.TempDir()
	binDir := filepath.Join(base, "bin")
	makeStubExecutables(t, binDir, "usearch", "vsearch")

	env := &cliTestEnv{
		baseDir:    base,
		configPath: filepath.Join(base, "config.toml"),
		outputDir:  filepath.Join(base, "results"),
		ledgerPath: filepath.Join(base, "ledger", "ledger.db"),
	}
	content := fmt.Sprintf(`[paths]
work_dir = %q
output_dir = %q
log_dir = %q
ledger_path = %q

[engine]
usearch_binary = %q
vsearch_binary = %q
threads = 1

[pooling]
workers = 2

[filter]
min_length = 10

[denoise]
min_size = 2

[logging]
level = "error"
`,
		filepath.Join(base, "work"),
		env.outputDir,
		filepath.Join(base, "logs"),
		env.ledgerPath,
		filepath.Join(binDir, "usearch"),
		filepath.Join(binDir, "vsearch"),
	)
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func makeStubExecutables(t *testing.T, dir string, names ...string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("create stub bin dir: %v", err)
	}
	for _, name := range names {
		script := fmt.Sprintf("#!/bin/sh\necho '%s v0.0.0_test'\nexit 0\n", name)
		if err := os.WriteFile(filepath.Join(dir, name), []byte(script), 0o755); err != nil {
			t.Fatalf("write stub %s: %v", name, err)
		}
	}
}

func writeFixtureManifest(t *testing.T) string {
	t.Helper()
	var first, second []string
	first = append(first, testsupport.Repeat(seqA, 10)...)
	first = append(first, testsupport.Repeat(seqB, 3)...)
	first = append(first, testsupport.Repeat(seqC, 2)...)
	second = append(second, testsupport.Repeat(seqA, 4)...)
	second = append(second, testsupport.Repeat(seqB, 6)...)
	second = append(second, seqC)
	return testsupport.WriteManifest(t, t.TempDir(),
		testsupport.ManifestEntry{ID: "gut-1", Reads: testsupport.Reads("r", first...)},
		testsupport.ManifestEntry{ID: "gut_2", Reads: testsupport.Reads("r", second...)},
	)
}

func runCLI(t *testing.T, executor engine.Executor, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := buildRootCommand(executor)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, nil, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "Engine: usearch")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, nil, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	if _, _, err := runCLI(t, nil, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
}

func TestRunPublishesAndRecordsRun(t *testing.T) {
	env := setupCLITestEnv(t)
	manifestPath := writeFixtureManifest(t)
	outDir := filepath.Join(env.baseDir, "published")
	fake := &testsupport.FakeEngine{Chimeras: []string{seqC}}

	out, _, err := runCLI(t, fake, []string{"run", "--manifest", manifestPath, "--mode", "denoise", "--out", outDir}, env.configPath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, out, "Features: 2 ZOTUs, 1 chimeric amplicons")
	requireContains(t, out, "Results: "+outDir)

	for _, name := range []string{output.FeatureTableFile, output.RepSeqsFile, output.StatsFile, output.ChimeraTableFile, output.RunSummaryFile} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Fatalf("missing published %s: %v", name, err)
		}
	}
	summary, err := output.ReadSummary(outDir)
	if err != nil {
		t.Fatalf("ReadSummary: %v", err)
	}

	out, _, err = runCLI(t, nil, []string{"runs", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("runs list: %v", err)
	}
	requireContains(t, out, summary.RunID)
	requireContains(t, out, "Completed")

	out, _, err = runCLI(t, nil, []string{"runs", "show", summary.RunID, "--logs"}, env.configPath)
	if err != nil {
		t.Fatalf("runs show: %v", err)
	}
	requireContains(t, out, "gut-1")
	requireContains(t, out, "gut_2")
	requireContains(t, out, "ZOTUs: 2")
	requireContains(t, out, "-unoise3")
}

func TestRunFailureIsRecorded(t *testing.T) {
	env := setupCLITestEnv(t)
	manifestPath := writeFixtureManifest(t)
	fake := &testsupport.FakeEngine{FailOn: map[string]int{"fastx_uniques": 2}}

	_, _, err := runCLI(t, fake, []string{"run", "--manifest", manifestPath}, env.configPath)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if code := services.ExitCode(err); code != services.ExitExternalTool {
		t.Fatalf("exit code = %d, want %d", code, services.ExitExternalTool)
	}

	out, _, err := runCLI(t, nil, []string{"runs", "list", "--status", "failed", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("runs list: %v", err)
	}
	var runs []ledger.Run
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("decode runs: %v\n%s", err, out)
	}
	if len(runs) != 1 || runs[0].ErrorKind != "external_tool" {
		t.Fatalf("unexpected failed runs %+v", runs)
	}
}

func TestRunRejectsUnknownMode(t *testing.T) {
	env := setupCLITestEnv(t)
	manifestPath := writeFixtureManifest(t)
	_, _, err := runCLI(t, &testsupport.FakeEngine{}, []string{"run", "--manifest", manifestPath, "--mode", "swarm"}, env.configPath)
	if code := services.ExitCode(err); code != services.ExitConfiguration {
		t.Fatalf("exit code = %d (%v), want %d", code, err, services.ExitConfiguration)
	}
}

func TestRunsShowUnknownRun(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, nil, []string{"runs", "show", "missing"}, env.configPath)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDepsReportsEngines(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, nil, []string{"deps"}, env.configPath)
	if err != nil {
		t.Fatalf("deps: %v", err)
	}
	requireContains(t, out, "usearch v0.0.0_test")
	requireContains(t, out, "Work directory")
}

func TestFormatCount(t *testing.T) {
	if got := formatCount(1234567); got != "1,234,567" {
		t.Fatalf("formatCount = %q", got)
	}
	if got := formatCount(-1); got != "unknown" {
		t.Fatalf("formatCount(unknown) = %q", got)
	}
	if got := formatPercent(1, 3); got != "33.3%" {
		t.Fatalf("formatPercent = %q", got)
	}
}

func TestLogsFiltersByRun(t *testing.T) {
	env := setupCLITestEnv(t)
	logDir := filepath.Join(env.baseDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		t.Fatalf("mkdir logs: %v", err)
	}
	content := `{"msg":"stage started","run_id":"run-a","stage":"pool"}
{"msg":"stage started","run_id":"run-b","stage":"pool"}
{"msg":"stage completed","run_id":"run-a","stage":"denoise"}
`
	if err := os.WriteFile(filepath.Join(logDir, logging.LogFileName), []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, _, err := runCLI(t, nil, []string{"logs", "--run", "run-a", "-n", "1"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, `"stage":"denoise"`)
	if strings.Contains(out, "run-b") || strings.Contains(out, `"stage":"pool"`) {
		t.Fatalf("unexpected lines in output:\n%s", out)
	}
}
