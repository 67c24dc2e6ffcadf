package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/git"
	"github.com/Iron-Ham/conductor/internal/plan"
	"github.com/Iron-Ham/conductor/internal/tui/styles"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Change the status of a work item",
	Long: `Change the status of a task, sub-task or phase in a track's plan.

Items are named by id (p1, p1.t2, p1.t2.s1) or by title. Parents follow
their children: a phase becomes in progress when one of its tasks starts
and complete when all of them are.`,
}

var (
	taskCommit     string
	taskKind       string
	taskUnblockTo  string
	taskCommitPlan bool
)

func init() {
	rootCmd.AddCommand(taskCmd)

	unblock := newTaskCmd("unblock", "Clear a blocked item", "")
	unblock.Flags().StringVar(&taskUnblockTo, "to", string(plan.StatusPending), "status after unblocking (pending or in_progress)")

	for _, c := range []*cobra.Command{
		newTaskCmd("start", "Mark an item in progress", plan.StatusInProgress),
		newTaskCmd("done", "Mark an item complete", plan.StatusComplete),
		newTaskCmd("block", "Mark an item blocked", plan.StatusBlocked),
		unblock,
	} {
		c.Flags().StringVar(&taskCommit, "commit", "", "record this commit on the item")
		c.Flags().StringVar(&taskKind, "kind", "", "kind of the recorded commit (default implementation)")
		c.Flags().BoolVar(&taskCommitPlan, "commit-plan", false, "commit the plan change")
		taskCmd.AddCommand(c)
	}
}

func newTaskCmd(name, short string, status plan.Status) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <track> <item>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd, name, status, args[0], args[1])
		},
	}
}

func runTask(cmd *cobra.Command, name string, status plan.Status, trackID, ref string) error {
	attempted := fmt.Sprintf("%s %s in track %s", name, ref, trackID)
	return withApp(cmd, "task_"+name, attempted, func(a *app) error {
		kind, err := plan.ParseCommitKind(taskKind)
		if err != nil {
			return errors.NewValidationError(err.Error()).WithField("kind")
		}
		unblockTo := status
		if status == "" {
			if unblockTo, err = plan.ParseStatus(taskUnblockTo); err != nil {
				return errors.NewValidationError(err.Error()).WithField("to")
			}
		}

		s, _, item, err := a.load(trackID, ref)
		if err != nil {
			return err
		}

		var commit *git.Commit
		if taskCommit != "" {
			c, err := a.resolveCommit(taskCommit)
			if err != nil {
				return err
			}
			commit = &c
		}

		err = s.Update(func(tx *plan.Tx) error {
			if commit != nil {
				if err := tx.RecordCommit(item.ID, shortSHA(commit.SHA), kind, commit.Message()); err != nil {
					return err
				}
			}
			if status == "" {
				return tx.Unblock(item.ID, unblockTo)
			}
			return tx.SetStatus(item.ID, status)
		})
		if err != nil {
			return err
		}

		final := unblockTo
		msg := fmt.Sprintf("%s %s is %s", item.Kind, item.ID, final)
		if commit != nil {
			msg += fmt.Sprintf(" (recorded %s)", shortSHA(commit.SHA))
		}
		a.print(styles.SuccessMsg.Render(msg))

		if taskCommitPlan {
			sha, err := a.commitPlan(s, fmt.Sprintf("conductor(plan): Mark %s '%s' as %s", item.Kind, item.Title, final))
			if err != nil {
				return err
			}
			a.print(styles.Muted.Render("plan committed in " + shortSHA(sha)))
		}
		return nil
	})
}

func (a *app) resolveCommit(ref string) (git.Commit, error) {
	sha, ok, err := a.git.ResolveCommit(a.ctx, ref)
	if err != nil {
		return git.Commit{}, err
	}
	if !ok {
		return git.Commit{}, errors.NewGitError(fmt.Sprintf("%s does not name a commit", ref), errors.ErrUnknownRevision)
	}
	return a.git.CommitInfo(a.ctx, sha)
}

// commitPlan commits only the files the plan store of s writes.
func (a *app) commitPlan(s *plan.Store, message string) (string, error) {
	paths := s.Files()
	if err := a.git.Add(a.ctx, paths...); err != nil {
		return "", err
	}
	return a.git.Commit(a.ctx, message, git.CommitOptions{Paths: paths})
}
