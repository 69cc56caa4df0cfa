package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"golang.org/x/sync/errgroup"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStdout, onStderr func(string)) error
}

// ExitError reports the exit status of a command that ran but failed.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

type commandExecutor struct{}

// lineBufferMax caps one line of engine output; progress bars stay well under it.
const lineBufferMax = 1024 * 1024

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onStdout, onStderr func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	// Both pipes must drain before Wait closes them.
	var streams errgroup.Group
	streams.Go(func() error { return forwardLines(stdout, onStdout) })
	streams.Go(func() error { return forwardLines(stderr, onStderr) })
	if scanErr := streams.Wait(); scanErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("scan output: %w", scanErr)
	}

	waitErr := cmd.Wait()
	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		return nil
	case errors.As(waitErr, &exitErr):
		return &ExitError{Code: exitErr.ExitCode(), Err: waitErr}
	default:
		return fmt.Errorf("wait command: %w", waitErr)
	}
}

// forwardLines hands each line of r to forward; engines print progress with
// carriage returns, which are split into separate lines.
func forwardLines(r io.Reader, forward func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), lineBufferMax)
	scanner.Split(scanProgressLines)
	for scanner.Scan() {
		if forward != nil {
			forward(scanner.Text())
		}
	}
	return scanner.Err()
}

// scanProgressLines splits on '\n' or '\r', dropping empty tokens.
func scanProgressLines(data []byte, atEOF bool) (int, []byte, error) {
	start := 0
	for start < len(data) && (data[start] == '\n' || data[start] == '\r') {
		start++
	}
	if i := bytes.IndexAny(data[start:], "\r\n"); i >= 0 {
		return start + i + 1, data[start : start+i], nil
	}
	if atEOF && start < len(data) {
		return len(data), data[start:], nil
	}
	return start, nil, nil
}
