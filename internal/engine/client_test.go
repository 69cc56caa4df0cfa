package engine_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"ampliconflow/internal/engine"
	"ampliconflow/internal/services"
)

type stubExecutor struct {
	stdout []string
	stderr []string
	err    error
	calls  int
	args   [][]string
	onRun  func(args []string)
}

func (s *stubExecutor) Run(ctx context.Context, binary string, args []string, onStdout, onStderr func(string)) error {
	s.calls++
	s.args = append(s.args, append([]string(nil), args...))
	if s.onRun != nil {
		s.onRun(args)
	}
	for _, line := range s.stdout {
		onStdout(line)
	}
	for _, line := range s.stderr {
		onStderr(line)
	}
	return s.err
}

func TestCommandRendersUsearchDialect(t *testing.T) {
	stub := &stubExecutor{}
	client, err := engine.New(engine.Usearch, "usearch", engine.WithExecutor(stub), engine.WithThreads(6))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	cmd := client.Command("quality_filter", "fastq_filter", "pooled.fastq").
		Option("fastaout", "filtered.fasta").
		Float("fastq_maxee", 1).
		Int("fastq_minlen", 50).
		Threads()
	if _, err := client.Run(context.Background(), cmd); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	want := []string{"-fastq_filter", "pooled.fastq", "-fastaout", "filtered.fasta", "-fastq_maxee", "1.0", "-fastq_minlen", "50", "-threads", "6"}
	if diff := cmp.Diff(want, stub.args[0]); diff != "" {
		t.Fatalf("unexpected args (-want +got):\n%s", diff)
	}
}

func TestCommandRendersVsearchDialect(t *testing.T) {
	stub := &stubExecutor{}
	client, err := engine.New(engine.Vsearch, "vsearch", engine.WithExecutor(stub))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	cmd := client.Command("cluster", "cluster_unoise", "uniques.fasta").Option("centroids", "amps.fasta").Switch("sizeout")
	if _, err := client.Run(context.Background(), cmd); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	want := []string{"--cluster_unoise", "uniques.fasta", "--centroids", "amps.fasta", "--sizeout"}
	if diff := cmp.Diff(want, stub.args[0]); diff != "" {
		t.Fatalf("unexpected args (-want +got):\n%s", diff)
	}
}

func TestRunReturnsToolErrorWithCapturedOutput(t *testing.T) {
	stub := &stubExecutor{
		stdout: []string{"00:00 reading"},
		stderr: []string{"---Fatal error---", "Invalid FASTQ"},
		err:    &engine.ExitError{Code: 1, Err: errors.New("exit status 1")},
	}
	var observed []engine.Invocation
	client, err := engine.New(engine.Usearch, "usearch", engine.WithExecutor(stub), engine.WithObserver(func(inv engine.Invocation) {
		observed = append(observed, inv)
	}))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	_, err = client.Run(context.Background(), client.Command("quality_filter", "fastq_filter", "in.fastq"))
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
	var toolErr *services.ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("expected ToolError, got %T", err)
	}
	if toolErr.Stage != "quality_filter" || toolErr.ExitCode != 1 {
		t.Fatalf("unexpected tool error: %+v", toolErr)
	}
	if !strings.Contains(toolErr.Stderr, "Invalid FASTQ") {
		t.Fatalf("expected stderr captured, got %q", toolErr.Stderr)
	}
	if len(observed) != 1 || observed[0].Err == nil {
		t.Fatalf("expected observer to see the failed invocation, got %+v", observed)
	}
}

func TestRunReadsEngineLog(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "derep.log")
	stub := &stubExecutor{onRun: func(args []string) {
		_ = os.WriteFile(logPath, []byte("1,000 seqs, 100 uniques, 40 singletons (40.0%)\n"), 0o644)
	}}
	client, err := engine.New(engine.Usearch, "usearch", engine.WithExecutor(stub))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	res, err := client.Run(context.Background(), client.Command("dereplicate", "fastx_uniques", "in.fasta").Log(logPath))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !strings.Contains(res.Log, "uniques") {
		t.Fatalf("expected log contents, got %q", res.Log)
	}
	args := stub.args[0]
	if args[len(args)-2] != "-log" || args[len(args)-1] != logPath {
		t.Fatalf("expected -log flag, got %v", args)
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stub := &stubExecutor{onRun: func([]string) { cancel() }, err: errors.New("signal: killed")}
	client, err := engine.New(engine.Usearch, "usearch", engine.WithExecutor(stub))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	_, err = client.Run(ctx, client.Command("cluster", "unoise3", "u.fasta"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewValidatesInputs(t *testing.T) {
	if _, err := engine.New(engine.Usearch, " "); err == nil {
		t.Fatal("expected error for missing binary")
	}
	if _, err := engine.New(engine.Backend("blast"), "blast"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for unknown backend, got %v", err)
	}
	if _, err := engine.ParseBackend("VSEARCH"); err != nil {
		t.Fatalf("ParseBackend: %v", err)
	}
}

func TestCommandExecutorReportsExitCode(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	client, err := engine.New(engine.Usearch, "sh")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	cmd := client.Command("probe", "c")
	// "-c" is the rendered flag; the script follows as an operand.
	args := cmd.Args()
	if args[0] != "-c" {
		t.Fatalf("unexpected rendered flag %q", args[0])
	}
	_, err = client.Run(context.Background(), client.Command("probe", "c", "echo out; echo boom >&2; exit 3"))
	var toolErr *services.ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("expected ToolError, got %v", err)
	}
	if toolErr.ExitCode != 3 || !strings.Contains(toolErr.Stderr, "boom") || !strings.Contains(toolErr.Stdout, "out") {
		t.Fatalf("unexpected tool error: %+v", toolErr)
	}
}

func TestClampThreads(t *testing.T) {
	cases := []struct {
		requested, available, want int
	}{
		{0, 16, 13},
		{0, 2, 1},
		{4, 16, 4},
		{32, 16, 16},
	}
	for _, tc := range cases {
		if got := engine.ClampThreads(tc.requested, tc.available); got != tc.want {
			t.Fatalf("ClampThreads(%d, %d) = %d, want %d", tc.requested, tc.available, got, tc.want)
		}
	}
	if engine.ResolveThreads(0) < 1 {
		t.Fatal("expected at least one thread")
	}
}

func TestFormatFloat(t *testing.T) {
	for in, want := range map[float64]string{1: "1.0", 0.97: "0.97", 2: "2.0", 0.5: "0.5"} {
		if got := engine.FormatFloat(in); got != want {
			t.Fatalf("FormatFloat(%v) = %q, want %q", in, got, want)
		}
	}
}
