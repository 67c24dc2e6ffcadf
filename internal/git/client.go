// Package git drives the git binary as a subprocess on behalf of conductor.
//
// Every invocation takes a context, is bounded by a per-call timeout, and has
// its exit code and stderr classified into the conductor error taxonomy
// (see [Classify]) instead of being passed through raw. The [CommandExecutor]
// interface allows tests to replace the subprocess with a scripted fake.
package git

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/logging"
)

// DefaultTimeout bounds a single git invocation when none is configured.
const DefaultTimeout = 30 * time.Second

// -----------------------------------------------------------------------------
// Command Executor
// -----------------------------------------------------------------------------

// Result is the raw outcome of one subprocess invocation.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// CommandExecutor abstracts command execution for testability.
type CommandExecutor interface {
	// Run executes name with args in dir. A non-nil error means the process
	// could not be started, was killed, or exited non-zero; Result is filled
	// in as far as possible in every case.
	Run(ctx context.Context, dir string, name string, args ...string) (Result, error)
}

// CLICommandExecutor executes commands using os/exec.
type CLICommandExecutor struct{}

// NewCLICommandExecutor creates a new CLI command executor.
func NewCLICommandExecutor() *CLICommandExecutor {
	return &CLICommandExecutor{}
}

// Run executes a command with a non-interactive environment.
func (e *CLICommandExecutor) Run(ctx context.Context, dir string, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"LC_ALL=C",
		"GIT_TERMINAL_PROMPT=0",
		"GIT_EDITOR=true",
		"GIT_MERGE_AUTOEDIT=no",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), ExitCode: -1}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	return res, err
}

// -----------------------------------------------------------------------------
// Client
// -----------------------------------------------------------------------------

// Observer is notified after every git invocation.
type Observer func(subcommand string, elapsed time.Duration, err error)

// Client runs git commands in one working directory.
type Client struct {
	dir      string
	binary   string
	timeout  time.Duration
	executor CommandExecutor
	logger   *logging.Logger
	observer Observer
}

// Option configures a Client.
type Option func(*Client)

// WithBinary sets the git executable.
func WithBinary(binary string) Option {
	return func(c *Client) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithTimeout sets the per-invocation timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithExecutor replaces the subprocess executor.
func WithExecutor(e CommandExecutor) Option {
	return func(c *Client) { c.executor = e }
}

// WithLogger sets the logger used for failed invocations.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver registers a callback invoked after every command.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// New creates a Client rooted at dir.
func New(dir string, opts ...Option) *Client {
	c := &Client{
		dir:      dir,
		binary:   "git",
		timeout:  DefaultTimeout,
		executor: NewCLICommandExecutor(),
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dir returns the working directory commands run in.
func (c *Client) Dir() string {
	return c.dir
}

// At returns a copy of the client that runs commands in dir.
func (c *Client) At(dir string) *Client {
	cp := *c
	cp.dir = dir
	return &cp
}

// Run executes git with args and returns stdout. Failures are classified.
func (c *Client) Run(ctx context.Context, args ...string) (string, error) {
	res, err := c.exec(ctx, args)
	if err != nil {
		return string(res.Stdout), err
	}
	return string(res.Stdout), nil
}

// RunLines executes git with args and returns the non-empty stdout lines.
func (c *Client) RunLines(ctx context.Context, args ...string) ([]string, error) {
	out, err := c.Run(ctx, args...)
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// probe runs a command whose non-zero exit is an answer rather than a
// failure (e.g. rev-parse --verify). It returns the exit code; an error is
// returned only when the command could not answer at all.
func (c *Client) probe(ctx context.Context, args ...string) (string, int, error) {
	res, err := c.exec(ctx, args)
	if err == nil {
		return string(res.Stdout), 0, nil
	}
	var gitErr *errors.GitError
	if errors.As(err, &gitErr) && res.ExitCode > 0 && !errors.IsFatal(err) &&
		!errors.Is(err, errors.ErrTimeout) && !errors.Is(err, errors.ErrCanceled) {
		return string(res.Stdout), res.ExitCode, nil
	}
	return "", -1, err
}

func (c *Client) exec(ctx context.Context, args []string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	res, runErr := c.executor.Run(ctx, c.dir, c.binary, args...)
	elapsed := time.Since(start)

	var err error
	if runErr != nil {
		err = Classify(args, res, runErr, ctx.Err(), c.timeout).WithDir(c.dir)
		c.logger.Debug("git command failed",
			"args", strings.Join(args, " "),
			"dir", c.dir,
			"exit_code", res.ExitCode,
			"stderr", strings.TrimSpace(string(res.Stderr)),
			"duration_ms", elapsed.Milliseconds(),
		)
	}
	if c.observer != nil {
		sub := ""
		if len(args) > 0 {
			sub = args[0]
		}
		c.observer(sub, elapsed, err)
	}
	return res, err
}

func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
