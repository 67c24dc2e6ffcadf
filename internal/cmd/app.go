package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Iron-Ham/conductor/internal/config"
	"github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/git"
	"github.com/Iron-Ham/conductor/internal/logging"
	"github.com/Iron-Ham/conductor/internal/metrics"
	"github.com/Iron-Ham/conductor/internal/plan"
	"github.com/Iron-Ham/conductor/internal/tui"
	"github.com/Iron-Ham/conductor/internal/tui/view"
)

const defaultWidth = 100

// app is the environment shared by every command: configuration, the
// repository, the git client and the observability sinks.
type app struct {
	ctx      context.Context
	cfg      *config.Config
	root     string
	stateDir string
	git      *git.Client
	logger   *logging.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	start, _ := cmd.Flags().GetString("repo")
	if start == "" {
		start = "."
	}
	root, err := git.FindGitRoot(start)
	if err != nil {
		return nil, err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	probe := git.New(root, git.WithBinary(cfg.Git.Binary), git.WithTimeout(cfg.Git.Timeout))
	stateDir, err := probe.StateDir(ctx)
	if err != nil {
		return nil, err
	}

	logStderr, _ := cmd.Flags().GetBool("log-stderr")
	logger, err := openLogger(cfg.Logging, stateDir, logStderr, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	reg, m := metrics.NewRegistry()
	client := git.New(root,
		git.WithBinary(cfg.Git.Binary),
		git.WithTimeout(cfg.Git.Timeout),
		git.WithLogger(logger),
		git.WithObserver(m.GitObserver()),
	)

	return &app{
		ctx:      ctx,
		cfg:      cfg,
		root:     root,
		stateDir: stateDir,
		git:      client,
		logger:   logger,
		registry: reg,
		metrics:  m,
		in:       cmd.InOrStdin(),
		out:      cmd.OutOrStdout(),
		errOut:   cmd.ErrOrStderr(),
	}, nil
}

// openLogger writes JSON logs to debug.log in the state directory. With
// logging disabled only warnings and errors are written, to stderr.
func openLogger(c config.LoggingConfig, stateDir string, toStderr bool, stderr io.Writer) (*logging.Logger, error) {
	switch {
	case toStderr:
		return logging.NewLoggerWithWriter(stderr, c.Level), nil
	case !c.Enabled:
		return logging.NewLoggerWithWriter(stderr, logging.LevelWarn), nil
	}
	return logging.NewLogger(stateDir, c.Level, logging.RotationConfig{
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		Compress:   c.Compress,
	})
}

func (a *app) close() {
	_ = a.logger.Close()
}

// withApp builds the environment, runs fn as the named command and tears
// the environment down again.
func withApp(cmd *cobra.Command, name, attempted string, fn func(a *app) error) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()
	return a.run(name, attempted, func() error { return fn(a) })
}

// run records the command's metrics and, on failure, prints what was
// attempted, why it failed and what state the repository was left in.
func (a *app) run(name, attempted string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	a.metrics.ObserveCommand(name, elapsed, err)
	if werr := metrics.WriteTextfile(a.cfg.Metrics.Textfile, a.registry); werr != nil {
		a.logger.Warn("failed to write metrics textfile", "path", a.cfg.Metrics.Textfile, "error", werr)
	}

	if err != nil {
		a.logger.Error("command failed",
			"command", name,
			"duration_ms", elapsed.Milliseconds(),
			"repo_state", errors.StateOf(err).String(),
			"error", err)
		fmt.Fprintln(a.errOut, view.RenderError(attempted, err))
		return reportedError{err}
	}
	a.logger.Debug("command finished", "command", name, "duration_ms", elapsed.Milliseconds())
	return nil
}

// reportedError marks an error whose report was already printed.
type reportedError struct {
	error
}

func (e reportedError) Unwrap() error {
	return e.error
}

// Reported reports whether err was already printed to the user.
func Reported(err error) bool {
	var re reportedError
	return errors.As(err, &re)
}

// store returns the plan store of a track.
func (a *app) store(trackID string) *plan.Store {
	return plan.NewStore(
		a.cfg.Paths.PlanPath(a.root, trackID),
		a.cfg.Paths.MetadataPath(a.root, trackID),
		trackID,
		plan.WithRegistry(a.cfg.Paths.RegistryPath(a.root)),
		plan.WithStoreLogger(a.logger),
	)
}

// load reads a track and looks up ref in it. An empty ref selects the
// track itself.
func (a *app) load(trackID, ref string) (*plan.Store, *plan.Tree, *plan.Item, error) {
	s := a.store(trackID)
	tree, err := s.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	if ref == "" {
		return s, tree, tree.Root, nil
	}
	it, err := tree.Lookup(ref)
	if err != nil {
		return nil, nil, nil, err
	}
	return s, tree, it, nil
}

// rel returns path relative to the repository root.
func (a *app) rel(path string) string {
	r, err := filepath.Rel(a.root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(r)
}

func (a *app) width() int {
	if f, ok := a.out.(*os.File); ok {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			return w
		}
	}
	return defaultWidth
}

// interactive reports whether a human can answer a prompt.
func (a *app) interactive() bool {
	in, ok := a.in.(*os.File)
	if !ok || !term.IsTerminal(int(in.Fd())) {
		return false
	}
	out, ok := a.out.(*os.File)
	return ok && term.IsTerminal(int(out.Fd()))
}

// confirm asks the user to type expected (or y/yes when expected is
// empty). yes skips the prompt. Without a terminal the answer is no.
func (a *app) confirm(yes bool, title, expected string) (bool, error) {
	if yes {
		return true, nil
	}
	if !a.interactive() {
		return false, nil
	}
	return tui.Confirm(a.in, a.out, title, "", expected)
}

func (a *app) print(s string) {
	if s != "" {
		fmt.Fprintln(a.out, s)
	}
}
