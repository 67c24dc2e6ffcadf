package revert

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/git"
	"github.com/Iron-Ham/conductor/internal/logging"
	"github.com/Iron-Ham/conductor/internal/plan"
)

// Committer records the reconcile commit. *git.Client implements it.
type Committer interface {
	Add(ctx context.Context, paths ...string) error
	Commit(ctx context.Context, message string, opts git.CommitOptions) (string, error)
}

// PlanReconciler resets the plan after a completed revert and commits the
// result as one change.
type PlanReconciler struct {
	store  *plan.Store
	repo   Committer
	logger *logging.Logger
}

// NewPlanReconciler creates a reconciler for the plan behind store.
func NewPlanReconciler(store *plan.Store, repo Committer, logger *logging.Logger) *PlanReconciler {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &PlanReconciler{store: store, repo: repo, logger: logger}
}

// Reconcile implements Reconciler. Every item of the reverted target, and
// every other item whose only recorded commits were reverted, goes back to
// pending; reverted refs and checkpoints are dropped. The commit is made
// even when the plan needed no change so the revert leaves an audit entry.
func (r *PlanReconciler) Reconcile(ctx context.Context, s *Session) (string, error) {
	var (
		paths []string
		reset []string
	)

	if _, err := os.Stat(r.store.PlanPath()); err == nil {
		if _, err := r.store.Load(); err != nil {
			return "", err
		}
		err := r.store.Update(func(tx *plan.Tx) error {
			var err error
			reset, err = Reconcile(tx, s.Items, s.Covered)
			return err
		})
		if err != nil {
			return "", err
		}
		paths = r.store.Files()
	} else if !os.IsNotExist(err) {
		return "", errors.Wrap(err, "stat plan document")
	}

	if len(paths) > 0 {
		if err := r.repo.Add(ctx, paths...); err != nil {
			return "", errors.Wrap(err, "stage reconciled plan")
		}
	}
	sha, err := r.repo.Commit(ctx, reconcileMessage(s, reset), git.CommitOptions{AllowEmpty: true, Paths: paths})
	if err != nil {
		return "", errors.Wrap(err, "commit reconciled plan")
	}

	r.logger.WithSession(s.ID).Info("plan reconciled", "reset", reset, "commit", sha)
	return sha, nil
}

// Reconcile applies the post-revert plan update inside tx and returns the
// ids of items whose status changed. items is the reverted target and its
// descendants; covered lists every ref the revert accounted for.
func Reconcile(tx *plan.Tx, items, covered []string) ([]string, error) {
	target := make(map[string]bool, len(items))
	for _, id := range items {
		target[id] = true
	}

	before := make(map[string]plan.Status)
	var resets []string
	for _, it := range tx.Tree().Items() {
		before[it.ID] = it.Status

		evidence := len(it.CommitRefs) > 0
		for _, ref := range append([]string(nil), it.CommitRefs...) {
			if !coveredBy(covered, ref) {
				continue
			}
			if _, err := tx.RemoveCommit(it.ID, ref); err != nil {
				return nil, err
			}
		}
		if it.CheckpointRef != "" && coveredBy(covered, it.CheckpointRef) {
			if err := tx.SetCheckpoint(it.ID, ""); err != nil {
				return nil, err
			}
		}

		if target[it.ID] || (evidence && len(it.CommitRefs) == 0) {
			resets = append(resets, it.ID)
		}
	}

	for _, id := range resets {
		if err := tx.Reset(id); err != nil {
			return nil, err
		}
	}

	var changed []string
	for _, it := range tx.Tree().Items() {
		if before[it.ID] != it.Status {
			changed = append(changed, it.ID)
		}
	}
	return changed, nil
}

func coveredBy(covered []string, ref string) bool {
	for _, c := range covered {
		if plan.SameSHA(c, ref) {
			return true
		}
	}
	return false
}

func reconcileMessage(s *Session, reset []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "conductor(revert): Revert %s in track %s\n\n", s.TargetID, s.TrackID)
	if len(s.Applied) > 0 {
		b.WriteString("Reverted commits:\n")
		for _, sha := range s.Applied {
			fmt.Fprintf(&b, "- %s\n", short(sha))
		}
	}
	if len(reset) > 0 {
		fmt.Fprintf(&b, "Status changed: %s\n", strings.Join(reset, ", "))
	}
	fmt.Fprintf(&b, "Session: %s\n", s.ID)
	return b.String()
}
