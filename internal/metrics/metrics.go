// Package metrics defines the Prometheus metrics conductor records and the
// adapters that feed them from the git client, correlator, revert executor,
// workspace manager and checkpoint recorder.
//
// conductor is a short-lived CLI, so metrics are not served over HTTP;
// WriteTextfile dumps them for the node_exporter textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Iron-Ham/conductor/internal/checkpoint"
	"github.com/Iron-Ham/conductor/internal/correlate"
	"github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/git"
	"github.com/Iron-Ham/conductor/internal/revert"
	"github.com/Iron-Ham/conductor/internal/worktree"
)

// Metrics holds every conductor metric.
type Metrics struct {
	// Git subprocess metrics
	GitCommands        *prometheus.CounterVec
	GitCommandDuration *prometheus.HistogramVec

	// Correlation metrics
	RefResolutions *prometheus.CounterVec

	// Revert metrics
	RevertTransitions *prometheus.CounterVec
	RevertOutcomes    *prometheus.CounterVec

	// Workspace metrics
	WorkspaceEvents *prometheus.CounterVec

	// Checkpoint metrics
	Checkpoints *prometheus.CounterVec

	// Command metrics
	CommandExecutions *prometheus.CounterVec
	CommandDuration   *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers them with registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		GitCommands: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_git_commands_total",
				Help: "Total number of git subprocess invocations",
			},
			[]string{"subcommand", "result"},
		),
		GitCommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conductor_git_command_duration_seconds",
				Help:    "Duration of git subprocess invocations in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"subcommand"},
		),

		RefResolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_ref_resolutions_total",
				Help: "Recorded commit refs by resolution outcome (exact, rebound, unresolved)",
			},
			[]string{"outcome"},
		),

		RevertTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_revert_transitions_total",
				Help: "Revert session state transitions",
			},
			[]string{"from", "to"},
		),
		RevertOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_revert_outcomes_total",
				Help: "Revert sessions by terminal or halting state",
			},
			[]string{"state"},
		),

		WorkspaceEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_workspace_events_total",
				Help: "Workspace lifecycle events",
			},
			[]string{"event"},
		),

		Checkpoints: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_checkpoints_total",
				Help: "Checkpoint attempts by outcome",
			},
			[]string{"outcome"},
		),

		CommandExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_command_executions_total",
				Help: "Total number of CLI command executions",
			},
			[]string{"command", "success", "repo_state"},
		),
		CommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conductor_command_duration_seconds",
				Help:    "CLI command duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),
	}
}

// NewRegistry creates a registry holding a fresh set of metrics.
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	return reg, NewMetrics(reg)
}

// GitObserver records every git invocation.
func (m *Metrics) GitObserver() git.Observer {
	return func(subcommand string, elapsed time.Duration, err error) {
		result := "ok"
		switch {
		case err == nil:
		case errors.Is(err, errors.ErrConflicted):
			result = "conflict"
		case errors.Is(err, errors.ErrTimeout):
			result = "timeout"
		default:
			result = "error"
		}
		m.GitCommands.WithLabelValues(subcommand, result).Inc()
		m.GitCommandDuration.WithLabelValues(subcommand).Observe(elapsed.Seconds())
	}
}

// CorrelateObserver records ref resolution outcomes.
func (m *Metrics) CorrelateObserver() correlate.Observer {
	return func(outcome string) {
		m.RefResolutions.WithLabelValues(outcome).Inc()
	}
}

// RevertObserver records revert session transitions. Sessions reaching
// completed, conflicted or aborted also count as outcomes.
func (m *Metrics) RevertObserver() revert.TransitionObserver {
	return func(s *revert.Session, from revert.State) {
		m.RevertTransitions.WithLabelValues(string(from), string(s.State)).Inc()
		switch s.State {
		case revert.StateCompleted, revert.StateConflicted, revert.StateAborted:
			m.RevertOutcomes.WithLabelValues(string(s.State)).Inc()
		}
	}
}

// WorkspaceObserver records workspace lifecycle events.
func (m *Metrics) WorkspaceObserver() worktree.EventObserver {
	return func(event string, _ *worktree.Workspace) {
		m.WorkspaceEvents.WithLabelValues(event).Inc()
	}
}

// CheckpointObserver records checkpoint outcomes.
func (m *Metrics) CheckpointObserver() checkpoint.Observer {
	return func(outcome string) {
		m.Checkpoints.WithLabelValues(outcome).Inc()
	}
}

// ObserveCommand records one CLI command and the repository state its
// error left behind.
func (m *Metrics) ObserveCommand(command string, elapsed time.Duration, err error) {
	success, state := "true", "none"
	if err != nil {
		success = "false"
		state = errors.StateOf(err).String()
	}
	m.CommandExecutions.WithLabelValues(command, success, state).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

// WriteTextfile writes every metric gathered from g to path in the text
// exposition format. An empty path is a no-op.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, g)
}
