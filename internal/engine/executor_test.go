package engine

import (
	"bufio"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestScanProgressLinesSplitsCarriageReturns(t *testing.T) {
	input := "00:00 10% Reading\r00:01 100% Reading\n\n1,234 uniques\r\nlast"
	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Split(scanProgressLines)
	var got []string
	for scanner.Scan() {
		got = append(got, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	want := []string{"00:00 10% Reading", "00:01 100% Reading", "1,234 uniques", "last"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("lines mismatch (-want +got):\n%s", diff)
	}
}

func TestCommandExecutorReportsExitCode(t *testing.T) {
	var (
		mu     sync.Mutex
		stdout []string
		stderr []string
	)
	err := commandExecutor{}.Run(context.Background(), "/bin/sh",
		[]string{"-c", `printf 'out\n'; printf 'progress\rdone\n' >&2; exit 3`},
		func(line string) { mu.Lock(); stdout = append(stdout, line); mu.Unlock() },
		func(line string) { mu.Lock(); stderr = append(stderr, line); mu.Unlock() },
	)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 3 {
		t.Fatalf("expected exit status 3, got %v", err)
	}
	if diff := cmp.Diff([]string{"out"}, stdout); diff != "" {
		t.Fatalf("stdout mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"progress", "done"}, stderr); diff != "" {
		t.Fatalf("stderr mismatch (-want +got):\n%s", diff)
	}
}
