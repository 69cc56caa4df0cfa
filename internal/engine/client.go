package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"ampliconflow/internal/logging"
	"ampliconflow/internal/services"
)

// Backend identifies the engine dialect.
type Backend string

const (
	Usearch Backend = "usearch"
	Vsearch Backend = "vsearch"
)

// ParseBackend validates a backend name.
func ParseBackend(name string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(name))) {
	case Usearch:
		return Usearch, nil
	case Vsearch:
		return Vsearch, nil
	default:
		return "", services.Wrap(services.ErrConfiguration, "engine", "backend", fmt.Sprintf("unsupported backend %q", name), nil)
	}
}

const outputTailLines = 200

// Invocation summarizes a completed engine call for observers.
type Invocation struct {
	Stage    string
	Binary   string
	Args     []string
	Log      string
	Duration time.Duration
	Err      error
}

// Result captures what an engine call produced besides its output files.
type Result struct {
	Stdout   []string
	Stderr   []string
	Log      string
	Duration time.Duration
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithLogger sets the logger used for command tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithThreads sets the thread count forwarded to multi-threaded commands.
func WithThreads(threads int) Option {
	return func(c *Client) {
		if threads > 0 {
			c.threads = threads
		}
	}
}

// WithObserver registers a callback invoked after every engine call.
func WithObserver(fn func(Invocation)) Option {
	return func(c *Client) {
		c.observer = fn
	}
}

// Client wraps engine CLI interactions.
type Client struct {
	backend  Backend
	binary   string
	threads  int
	exec     Executor
	logger   *slog.Logger
	observer func(Invocation)
}

// New constructs an engine client.
func New(backend Backend, binary string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("engine binary required")
	}
	if backend != Usearch && backend != Vsearch {
		return nil, services.Wrap(services.ErrConfiguration, "engine", "new", fmt.Sprintf("unsupported backend %q", backend), nil)
	}
	client := &Client{
		backend: backend,
		binary:  binary,
		threads: 1,
		exec:    commandExecutor{},
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Backend reports the engine dialect.
func (c *Client) Backend() Backend { return c.backend }

// Binary reports the executable invoked by the client.
func (c *Client) Binary() string { return c.binary }

// Threads reports the thread count forwarded to the engine.
func (c *Client) Threads() int { return c.threads }

// Flag renders an option name in the backend's dialect.
func (c *Client) Flag(name string) string {
	if c.backend == Vsearch {
		return "--" + name
	}
	return "-" + name
}

// Command starts building an invocation of op on the given operands.
func (c *Client) Command(stage, op string, operands ...string) *Command {
	cmd := &Command{stage: stage, client: c}
	cmd.args = append(cmd.args, c.Flag(op))
	cmd.args = append(cmd.args, operands...)
	return cmd
}

// Run executes cmd and returns the captured output. A non-zero exit is
// reported as a *services.ToolError.
func (c *Client) Run(ctx context.Context, cmd *Command) (Result, error) {
	args := cmd.Args()
	logger := logging.WithContext(ctx, c.logger)
	logger.Debug("engine command",
		logging.String("binary", c.binary),
		logging.String("command", strings.Join(args, " ")),
	)

	stdout := newTail(outputTailLines)
	stderr := newTail(outputTailLines)
	start := time.Now()
	runErr := c.exec.Run(ctx, c.binary, args, stdout.add, stderr.add)
	duration := time.Since(start)

	result := Result{
		Stdout:   stdout.lines(),
		Stderr:   stderr.lines(),
		Duration: duration,
	}
	if cmd.logPath != "" {
		if data, err := os.ReadFile(cmd.logPath); err == nil {
			result.Log = string(data)
		} else if !errors.Is(err, os.ErrNotExist) {
			logger.Debug("engine log unreadable", logging.String("path", cmd.logPath), logging.Error(err))
		}
	}

	var err error
	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%s: %w", cmd.stage, ctxErr)
		} else {
			code := -1
			var exitErr *ExitError
			if errors.As(runErr, &exitErr) {
				code = exitErr.Code
			}
			err = &services.ToolError{
				Stage:    cmd.stage,
				Binary:   c.binary,
				Args:     args,
				ExitCode: code,
				Stderr:   strings.Join(result.Stderr, "\n"),
				Stdout:   strings.Join(result.Stdout, "\n"),
				Err:      runErr,
			}
		}
	}

	if c.observer != nil {
		c.observer(Invocation{
			Stage:    cmd.stage,
			Binary:   c.binary,
			Args:     args,
			Log:      result.Log,
			Duration: duration,
			Err:      err,
		})
	}
	if err != nil {
		return result, err
	}

	logger.Debug("engine command finished",
		logging.String("binary", c.binary),
		logging.Duration("duration", duration),
	)
	return result, nil
}

// tail keeps the last n lines written to it.
type tail struct {
	mu    sync.Mutex
	max   int
	buf   []string
	start int
	full  bool
}

func newTail(max int) *tail {
	return &tail{max: max, buf: make([]string, 0, max)}
}

func (t *tail) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.buf) < t.max {
		t.buf = append(t.buf, line)
		return
	}
	t.buf[t.start] = line
	t.start = (t.start + 1) % t.max
	t.full = true
}

func (t *tail) lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.full {
		return append([]string(nil), t.buf...)
	}
	out := make([]string, 0, t.max)
	out = append(out, t.buf[t.start:]...)
	out = append(out, t.buf[:t.start]...)
	return out
}
