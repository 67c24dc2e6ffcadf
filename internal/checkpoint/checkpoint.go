// Package checkpoint closes phases with an audit commit and a git note
// carrying the verification evidence.
package checkpoint

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/git"
	"github.com/Iron-Ham/conductor/internal/logging"
	"github.com/Iron-Ham/conductor/internal/plan"
)

// DefaultNotesRef is the notes namespace used when none is configured.
const DefaultNotesRef = "conductor"

// Evidence is what the caller verified before closing a phase.
type Evidence struct {
	TestCommand       string   `yaml:"test_command"`
	TestResult        string   `yaml:"test_result"`
	VerificationSteps []string `yaml:"verification_steps"`
	// UserConfirmed must be set by the caller after an explicit positive
	// confirmation. Without it no checkpoint is recorded.
	UserConfirmed bool `yaml:"user_confirmed"`
}

// Note is the body attached to a checkpoint commit.
type Note struct {
	Phase    string `yaml:"phase"`
	Title    string `yaml:"title"`
	Track    string `yaml:"track"`
	Evidence `yaml:",inline"`
	RecordedAt time.Time `yaml:"recorded_at"`
}

// Result describes a recorded checkpoint.
type Result struct {
	PhaseID string
	// Commit is the checkpoint commit the note is attached to.
	Commit string
	// PlanCommit records the phase as complete in the plan.
	PlanCommit string
	Note       Note
}

// Repo is the git surface the Recorder needs. *git.Client implements it.
type Repo interface {
	Add(ctx context.Context, paths ...string) error
	Commit(ctx context.Context, message string, opts git.CommitOptions) (string, error)
	AddNote(ctx context.Context, ref, sha, body string) error
	ReadNote(ctx context.Context, ref, sha string) (string, error)
}

var _ Repo = (*git.Client)(nil)

// Observer is told the outcome of every checkpoint attempt: recorded,
// unconfirmed, rejected or failed.
type Observer func(outcome string)

// Recorder records phase checkpoints for one track.
type Recorder struct {
	store    *plan.Store
	repo     Repo
	notesRef string
	logger   *logging.Logger
	now      func() time.Time
	observer Observer
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithNotesRef sets the notes namespace.
func WithNotesRef(ref string) Option {
	return func(r *Recorder) {
		if ref != "" {
			r.notesRef = ref
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock sets the time source for the note timestamp.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithObserver sets a callback for checkpoint outcomes.
func WithObserver(o Observer) Option {
	return func(r *Recorder) { r.observer = o }
}

// NewRecorder creates a Recorder for the plan behind store.
func NewRecorder(store *plan.Store, repo Repo, opts ...Option) *Recorder {
	r := &Recorder{
		store:    store,
		repo:     repo,
		notesRef: DefaultNotesRef,
		logger:   logging.NopLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Checkpoint closes a phase. It commits the index (empty commits allowed),
// attaches a note with ev to that commit, marks the phase complete with the
// checkpoint ref and commits the plan change.
//
// It fails with errors.ErrNoConfirmation, before touching the repository,
// unless ev.UserConfirmed is set, and with errors.ErrInvalidTransition when
// the phase has open children or already carries a checkpoint.
func (r *Recorder) Checkpoint(ctx context.Context, phaseRef string, ev Evidence) (*Result, error) {
	trackID := r.store.TrackID()
	logger := r.logger.WithTrack(trackID).WithPhase(phaseRef)

	if !ev.UserConfirmed {
		r.observe("unconfirmed")
		return nil, errors.NewCheckpointError("checkpoint requires explicit user confirmation", errors.ErrNoConfirmation).
			WithPhase(trackID, phaseRef).
			WithRepoState(errors.RepoUnchanged)
	}

	tree, err := r.store.Load()
	if err != nil {
		r.observe("failed")
		return nil, err
	}
	trackID = r.store.TrackID()
	logger = r.logger.WithTrack(trackID).WithPhase(phaseRef)
	phase, err := tree.Lookup(phaseRef)
	if err != nil {
		r.observe("rejected")
		return nil, err
	}
	if err := canClose(phase); err != nil {
		r.observe("rejected")
		return nil, errors.NewCheckpointError(err.Error(), errors.ErrInvalidTransition).
			WithPhase(trackID, phase.ID).
			WithRepoState(errors.RepoUnchanged)
	}

	note := Note{
		Phase:      phase.ID,
		Title:      phase.Title,
		Track:      trackID,
		Evidence:   ev,
		RecordedAt: r.now().UTC().Truncate(time.Second),
	}
	body, err := yaml.Marshal(note)
	if err != nil {
		r.observe("failed")
		return nil, errors.NewCheckpointError("failed to encode checkpoint note", err).
			WithPhase(trackID, phase.ID).
			WithRepoState(errors.RepoUnchanged)
	}

	sha, err := r.repo.Commit(ctx, checkpointMessage(phase, ev), git.CommitOptions{AllowEmpty: true})
	if err != nil {
		r.observe("failed")
		return nil, errors.NewCheckpointError("failed to create checkpoint commit", err).
			WithPhase(trackID, phase.ID).
			WithRepoState(errors.RepoUnchanged)
	}
	logger.Info("checkpoint commit created", "commit", sha)

	if err := r.repo.AddNote(ctx, r.notesRef, sha, string(body)); err != nil {
		r.observe("failed")
		return nil, partial("checkpoint commit created but the note could not be attached", err, trackID, phase.ID, sha)
	}

	err = r.store.Update(func(tx *plan.Tx) error {
		if err := tx.SetStatus(phase.ID, plan.StatusComplete); err != nil {
			return err
		}
		return tx.SetCheckpoint(phase.ID, sha)
	})
	if err != nil {
		r.observe("failed")
		return nil, partial("checkpoint commit created but the plan could not be updated", err, trackID, phase.ID, sha)
	}

	paths := r.store.Files()
	if err := r.repo.Add(ctx, paths...); err != nil {
		r.observe("failed")
		return nil, partial("checkpoint recorded but the plan change could not be staged", err, trackID, phase.ID, sha)
	}
	planSHA, err := r.repo.Commit(ctx, planMessage(phase), git.CommitOptions{Paths: paths})
	if err != nil {
		r.observe("failed")
		return nil, partial("checkpoint recorded but the plan change could not be committed", err, trackID, phase.ID, sha)
	}

	logger.Info("phase checkpointed", "commit", sha, "plan_commit", planSHA, "test_result", ev.TestResult)
	r.observe("recorded")
	return &Result{PhaseID: phase.ID, Commit: sha, PlanCommit: planSHA, Note: note}, nil
}

// Note reads the checkpoint note attached to sha. It returns nil when the
// commit has none.
func (r *Recorder) Note(ctx context.Context, sha string) (*Note, error) {
	body, err := r.repo.ReadNote(ctx, r.notesRef, sha)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(body) == "" {
		return nil, nil
	}
	var n Note
	if err := yaml.Unmarshal([]byte(body), &n); err != nil {
		return nil, fmt.Errorf("parse checkpoint note of %s: %w", sha, err)
	}
	return &n, nil
}

func (r *Recorder) observe(outcome string) {
	if r.observer != nil {
		r.observer(outcome)
	}
}

// canClose reports why phase cannot be checkpointed, if it cannot.
func canClose(phase *plan.Item) error {
	if phase.Kind != plan.KindPhase {
		return fmt.Errorf("%s is a %s; only phases are checkpointed", phase.ID, phase.Kind)
	}
	if phase.CheckpointRef != "" {
		return fmt.Errorf("phase %s already has checkpoint %s", phase.ID, phase.CheckpointRef)
	}
	if phase.Status == plan.StatusBlocked {
		return fmt.Errorf("phase %s is blocked", phase.ID)
	}
	var open []string
	for _, child := range phase.Children {
		if child.Status != plan.StatusComplete {
			open = append(open, fmt.Sprintf("%s (%s)", child.ID, child.Status))
		}
	}
	if len(open) > 0 {
		return fmt.Errorf("phase %s has unfinished tasks: %s", phase.ID, strings.Join(open, ", "))
	}
	return nil
}

func partial(msg string, err error, trackID, phaseID, sha string) error {
	return errors.NewCheckpointError(fmt.Sprintf("%s (checkpoint commit %s)", msg, sha), err).
		WithPhase(trackID, phaseID).
		WithRepoState(errors.RepoPartiallyApplied)
}

func checkpointMessage(phase *plan.Item, ev Evidence) string {
	var b strings.Builder
	fmt.Fprintf(&b, "conductor(checkpoint): Checkpoint end of Phase '%s'\n", phase.Title)
	if ev.TestCommand != "" {
		fmt.Fprintf(&b, "\nTests: %s (%s)\n", ev.TestCommand, ev.TestResult)
	}
	return b.String()
}

func planMessage(phase *plan.Item) string {
	return fmt.Sprintf("conductor(plan): Mark phase '%s' as complete [checkpoint]", phase.Title)
}
