package revert

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/git"
	"github.com/Iron-Ham/conductor/internal/logging"
)

// Repo is the part of the git client the executor drives. *git.Client
// implements it.
type Repo interface {
	Dir() string
	IsClean(ctx context.Context) (bool, error)
	HeadSHA(ctx context.Context) (string, error)
	Revert(ctx context.Context, sha string, mainline int) error
	RevertContinue(ctx context.Context) error
	RevertAbort(ctx context.Context) error
	RevertInProgress(ctx context.Context) (bool, error)
	ConflictingFiles(ctx context.Context) ([]string, error)
	WorkingDiff(ctx context.Context) (string, error)
	Add(ctx context.Context, paths ...string) error
	ResetHard(ctx context.Context, ref string) error
}

// Reconciler updates the plan once every queued commit is reverted and
// commits the change, returning the new commit's sha.
type Reconciler interface {
	Reconcile(ctx context.Context, s *Session) (string, error)
}

// TransitionObserver is called after every session state change.
type TransitionObserver func(s *Session, from State)

// Executor applies revert plans as persisted sessions.
//
// A session moves Planned -> Reverting -> Completed, halting in Conflicted
// when a commit cannot be reverted (or a git call times out) and ending in
// Aborted when the caller aborts or cancels. Abort and cancellation restore
// HEAD and the working tree to where they were before the first revert.
type Executor struct {
	repo       Repo
	sessions   *SessionStore
	reconciler Reconciler
	logger     *logging.Logger
	now        func() time.Time
	observer   TransitionObserver
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithReconciler sets the step run after the last commit is reverted.
func WithReconciler(r Reconciler) ExecutorOption {
	return func(e *Executor) {
		e.reconciler = r
	}
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(l *logging.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithExecutorClock sets the time source for session timestamps.
func WithExecutorClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		e.now = now
	}
}

// WithTransitionObserver sets a callback for state changes.
func WithTransitionObserver(o TransitionObserver) ExecutorOption {
	return func(e *Executor) {
		e.observer = o
	}
}

// NewExecutor creates an Executor.
func NewExecutor(repo Repo, sessions *SessionStore, opts ...ExecutorOption) *Executor {
	e := &Executor{
		repo:     repo,
		sessions: sessions,
		logger:   logging.NopLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Status returns the current or last session.
func (e *Executor) Status() (*Session, error) {
	return e.sessions.Load()
}

// Begin creates a Planned session for p. It fails with
// errors.ErrDirtyWorkingTree before touching history when the working tree
// has uncommitted changes, and with errors.ErrSessionActive when another
// session has not finished.
func (e *Executor) Begin(ctx context.Context, p *Plan) (*Session, error) {
	cur, err := e.sessions.Load()
	switch {
	case err == nil && cur.State.Active():
		return nil, errors.NewRevertError(
			fmt.Sprintf("revert of %s is %s; continue or abort it first", cur.TargetID, cur.State),
			errors.ErrSessionActive,
		).WithSession(cur.ID, string(cur.State)).WithRepoState(errors.RepoUnchanged)
	case err != nil && !errors.Is(err, errors.ErrNoSession):
		return nil, errors.NewRevertError("failed to read revert session", err).WithRepoState(errors.RepoUnchanged)
	}

	clean, err := e.repo.IsClean(ctx)
	if err != nil {
		return nil, errors.NewRevertError("failed to inspect working tree", err).WithRepoState(errors.RepoUnchanged)
	}
	halted, err := e.repo.RevertInProgress(ctx)
	if err != nil {
		return nil, errors.NewRevertError("failed to inspect working tree", err).WithRepoState(errors.RepoUnchanged)
	}
	if !clean || halted {
		return nil, errors.NewRevertError("working tree has uncommitted changes; commit or stash them first",
			errors.ErrDirtyWorkingTree).WithRepoState(errors.RepoUnchanged)
	}

	head, err := e.repo.HeadSHA(ctx)
	if err != nil {
		return nil, errors.NewRevertError("failed to read HEAD", err).WithRepoState(errors.RepoUnchanged)
	}

	now := e.now().UTC()
	s := &Session{
		ID:        uuid.NewString(),
		TrackID:   p.TrackID,
		TargetID:  p.TargetID,
		State:     StatePlanned,
		StartHead: head,
		Head:      head,
		Items:     append([]string(nil), p.Items...),
		Covered:   p.Covered(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, en := range p.Queue() {
		s.Queue = append(s.Queue, Step{SHA: en.SHA, Subject: en.Subject, Mainline: en.Mainline, ItemIDs: en.ItemIDs})
	}
	if err := e.sessions.Save(s); err != nil {
		return nil, errors.NewRevertError("failed to save revert session", err).WithRepoState(errors.RepoUnchanged)
	}

	e.logger.WithSession(s.ID).Info("revert session planned",
		"track", s.TrackID, "target", s.TargetID, "commits", len(s.Queue), "head", head)
	return s, nil
}

// Execute begins a session for p and runs it.
func (e *Executor) Execute(ctx context.Context, p *Plan) (*Session, error) {
	s, err := e.Begin(ctx, p)
	if err != nil {
		return nil, err
	}
	return s, e.Run(ctx, s)
}

// Run reverts the queued commits newest first, then reconciles the plan.
func (e *Executor) Run(ctx context.Context, s *Session) error {
	if s.State != StatePlanned && s.State != StateReverting {
		return errors.NewRevertError(fmt.Sprintf("session is %s and cannot run", s.State), errors.ErrInvalidTransition).
			WithSession(s.ID, string(s.State))
	}
	if err := e.transition(s, StateReverting); err != nil {
		return err
	}
	return e.drain(ctx, s)
}

// Continue resumes a Conflicted session after the conflicts were resolved
// by hand, then reverts the rest of the queue.
func (e *Executor) Continue(ctx context.Context) (*Session, error) {
	s, err := e.active()
	if err != nil {
		return nil, err
	}
	if s.State == StateConflicted {
		if err := e.resume(ctx, s); err != nil {
			return s, err
		}
		if err := e.transition(s, StateReverting); err != nil {
			return s, err
		}
	}
	return s, e.Run(ctx, s)
}

// Abort restores HEAD and the working tree to their state before the
// session's first revert. The returned session lists the commits that had
// been reverted before the abort.
func (e *Executor) Abort(ctx context.Context) (*Session, error) {
	s, err := e.active()
	if err != nil {
		return nil, err
	}
	if err := e.restore(ctx, s); err != nil {
		return s, errors.NewRevertError("failed to restore the pre-revert state", err).
			WithSession(s.ID, string(s.State)).
			WithProgress(s.Applied, s.RemainingSHAs()).
			WithRepoState(errors.RepoPartiallyApplied)
	}
	if err := e.transition(s, StateAborted); err != nil {
		return s, err
	}
	e.logger.WithSession(s.ID).Info("revert session aborted", "already_reverted", len(s.Applied))
	return s, nil
}

func (e *Executor) active() (*Session, error) {
	s, err := e.sessions.Load()
	if err != nil {
		if errors.Is(err, errors.ErrNoSession) {
			return nil, errors.NewRevertError("nothing to continue or abort", errors.ErrNoSession).WithRepoState(errors.RepoUnchanged)
		}
		return nil, errors.NewRevertError("failed to read revert session", err)
	}
	if !s.State.Active() {
		return nil, errors.NewRevertError(fmt.Sprintf("last revert session is %s", s.State), errors.ErrNoSession).
			WithSession(s.ID, string(s.State)).
			WithRepoState(errors.RepoUnchanged)
	}
	return s, nil
}

func (e *Executor) drain(ctx context.Context, s *Session) error {
	logger := e.logger.WithSession(s.ID)
	for {
		step, ok := s.Current()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.Canceled) {
				return e.cancel(ctx, s, errors.ErrCanceled)
			}
			return e.halt(ctx, s, step, errors.ErrTimeout)
		}

		logger.Info("reverting commit", "sha", step.SHA, "subject", step.Subject, "mainline", step.Mainline)
		if err := e.repo.Revert(ctx, step.SHA, step.Mainline); err != nil {
			if errors.Is(err, errors.ErrCanceled) || errors.Is(ctx.Err(), context.Canceled) {
				return e.cancel(ctx, s, err)
			}
			return e.halt(ctx, s, step, err)
		}
		head, err := e.repo.HeadSHA(ctx)
		if err != nil {
			return e.halt(ctx, s, step, err)
		}
		if err := e.applied(s, step, head); err != nil {
			return err
		}
	}
	return e.complete(ctx, s)
}

func (e *Executor) applied(s *Session, step Step, head string) error {
	s.Applied = append(s.Applied, step.SHA)
	s.Reverts = append(s.Reverts, head)
	s.Head = head
	s.ConflictPaths = nil
	return e.save(s)
}

// halt moves the session to Conflicted and reports the conflict.
func (e *Executor) halt(ctx context.Context, s *Session, step Step, cause error) error {
	bg := context.WithoutCancel(ctx)
	paths, err := e.repo.ConflictingFiles(bg)
	if err != nil {
		e.logger.WithSession(s.ID).Warn("failed to list conflicting files", "error", err)
	}
	diff, err := e.repo.WorkingDiff(bg)
	if err != nil {
		e.logger.WithSession(s.ID).Warn("failed to read conflict diff", "error", err)
	}
	s.ConflictPaths = paths
	if err := e.transition(s, StateConflicted); err != nil {
		return err
	}

	state := errors.RepoPartiallyApplied
	if len(s.Applied) == 0 && len(paths) == 0 {
		state = errors.RepoUnchanged
	}
	msg := fmt.Sprintf("revert of %s halted; resolve and continue, or abort", short(step.SHA))
	if errors.Is(cause, errors.ErrTimeout) {
		msg = fmt.Sprintf("revert of %s timed out; inspect and continue, or abort", short(step.SHA))
	}
	e.logger.WithSession(s.ID).Warn("revert session conflicted",
		"sha", step.SHA, "conflicts", paths, "applied", len(s.Applied), "error", cause)
	return errors.NewRevertError(msg, errors.Join(errors.ErrConflicted, cause)).
		WithSession(s.ID, string(s.State)).
		WithProgress(s.Applied, s.RemainingSHAs()).
		WithConflicts(paths, diff).
		WithRepoState(state)
}

// cancel restores the pre-revert state on a context that outlives the
// canceled one and moves the session to Aborted.
func (e *Executor) cancel(ctx context.Context, s *Session, cause error) error {
	bg := context.WithoutCancel(ctx)
	applied := append([]string(nil), s.Applied...)
	if err := e.restore(bg, s); err != nil {
		return errors.NewRevertError("revert canceled and the pre-revert state could not be restored",
			errors.Join(errors.ErrCanceled, err)).
			WithSession(s.ID, string(s.State)).
			WithProgress(applied, s.RemainingSHAs()).
			WithRepoState(errors.RepoPartiallyApplied)
	}
	if err := e.transition(s, StateAborted); err != nil {
		return err
	}
	e.logger.WithSession(s.ID).Warn("revert session canceled", "already_reverted", len(applied))
	return errors.NewRevertError("revert canceled; repository restored", errors.Join(errors.ErrCanceled, cause)).
		WithSession(s.ID, string(s.State)).
		WithProgress(applied, s.RemainingSHAs()).
		WithRepoState(errors.RepoUnchanged)
}

func (e *Executor) restore(ctx context.Context, s *Session) error {
	halted, err := e.repo.RevertInProgress(ctx)
	if err != nil {
		return err
	}
	if halted {
		if err := e.repo.RevertAbort(ctx); err != nil {
			e.logger.WithSession(s.ID).Warn("git revert --abort failed, resetting", "error", err)
		}
	}
	if err := e.repo.ResetHard(ctx, s.StartHead); err != nil {
		return err
	}
	s.Head = s.StartHead
	return nil
}

// resume finishes the step a Conflicted session halted on.
func (e *Executor) resume(ctx context.Context, s *Session) error {
	step, ok := s.Current()
	if !ok {
		// every commit was reverted; only the reconcile step is left
		return nil
	}

	halted, err := e.repo.RevertInProgress(ctx)
	if err != nil {
		return errors.NewRevertError("failed to inspect working tree", err).WithSession(s.ID, string(s.State))
	}
	if halted {
		unresolved, err := git.UnresolvedConflicts(e.repo.Dir(), s.ConflictPaths)
		if err != nil {
			return errors.NewRevertError("failed to check conflict resolution", err).WithSession(s.ID, string(s.State))
		}
		if len(unresolved) > 0 {
			return errors.NewRevertError("conflict markers remain; resolve them before continuing", errors.ErrConflicted).
				WithSession(s.ID, string(s.State)).
				WithProgress(s.Applied, s.RemainingSHAs()).
				WithConflicts(unresolved, "").
				WithRepoState(errors.RepoPartiallyApplied)
		}
		if len(s.ConflictPaths) > 0 {
			if err := e.repo.Add(ctx, s.ConflictPaths...); err != nil {
				return e.halt(ctx, s, step, err)
			}
		}
		if err := e.repo.RevertContinue(ctx); err != nil {
			return e.halt(ctx, s, step, err)
		}
	}

	head, err := e.repo.HeadSHA(ctx)
	if err != nil {
		return e.halt(ctx, s, step, err)
	}
	if !halted && head == s.Head {
		// the halted revert was abandoned by hand; Run retries the step
		e.logger.WithSession(s.ID).Info("retrying abandoned revert", "sha", step.SHA)
		return nil
	}
	e.logger.WithSession(s.ID).Info("conflict resolved", "sha", step.SHA, "revert", head)
	return e.applied(s, step, head)
}

func (e *Executor) complete(ctx context.Context, s *Session) error {
	if e.reconciler != nil && s.Reconcile == "" {
		sha, err := e.reconciler.Reconcile(ctx, s)
		if err != nil {
			if serr := e.save(s); serr != nil {
				e.logger.WithSession(s.ID).Error("failed to save revert session", "error", serr)
			}
			return errors.NewRevertError("all commits reverted but the plan could not be reconciled; continue to retry", err).
				WithSession(s.ID, string(s.State)).
				WithProgress(s.Applied, nil).
				WithRepoState(errors.RepoFullyApplied)
		}
		s.Reconcile = sha
	}
	if err := e.transition(s, StateCompleted); err != nil {
		return err
	}
	e.logger.WithSession(s.ID).Info("revert session completed",
		"reverted", len(s.Applied), "reconcile_commit", s.Reconcile)
	return nil
}

func (e *Executor) transition(s *Session, to State) error {
	from := s.State
	s.State = to
	if err := e.save(s); err != nil {
		return err
	}
	if from != to {
		e.logger.WithSession(s.ID).Debug("revert session transition", "from", string(from), "to", string(to))
		if e.observer != nil {
			e.observer(s, from)
		}
	}
	return nil
}

func (e *Executor) save(s *Session) error {
	s.UpdatedAt = e.now().UTC()
	if err := e.sessions.Save(s); err != nil {
		return errors.NewRevertError("failed to save revert session", err).
			WithSession(s.ID, string(s.State)).
			WithProgress(s.Applied, s.RemainingSHAs()).
			WithRepoState(errors.RepoPartiallyApplied)
	}
	return nil
}
