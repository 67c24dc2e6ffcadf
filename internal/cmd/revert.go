package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/conductor/internal/correlate"
	"github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/fingerprint"
	"github.com/Iron-Ham/conductor/internal/plan"
	"github.com/Iron-Ham/conductor/internal/revert"
	"github.com/Iron-Ham/conductor/internal/tui/view"
)

var correlateCmd = &cobra.Command{
	Use:   "correlate <track> [item]",
	Short: "Resolve the commits recorded on a work item",
	Long: `Resolve every commit recorded on a track or one of its items against the
current history. Commits that no longer exist (after a rebase or squash) are
matched by their recorded message; the rest are reported as unresolved.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCorrelate,
}

var planCmd = &cobra.Command{
	Use:   "plan <track> [item]",
	Short: "Show what reverting a work item would undo",
	Long: `Compute and print the revert plan of a track, phase or task without
changing anything: the commits to revert newest first, merges and duplicates
that need confirmation, and recorded commits that no longer exist.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPlan,
}

var revertCmd = &cobra.Command{
	Use:   "revert <track> [item]",
	Short: "Revert the commits of a work item",
	Long: `Revert every commit recorded on a track, phase or task, newest first, then
reset the reverted items to pending in the plan.

A conflicting revert halts the session. Resolve the files and run
'conductor revert --continue', or restore the pre-revert state with
'conductor revert --abort'.

Recorded commits that no longer exist must be confirmed before anything runs:
  conductor revert auth p1 --confirm-ghost a1b2c3d=9f8e7d6
  conductor revert auth p1 --confirm-ghost a1b2c3d=skip

A commit that was matched by its message is confirmed by typing the target id,
or with --confirm-ghost when --yes is given.`,
	Args: cobra.MaximumNArgs(2),
	RunE: runRevert,
}

var (
	planConfirmGhosts []string
	planStat          bool

	revertYes           bool
	revertContinue      bool
	revertAbort         bool
	revertStatus        bool
	revertConfirmGhosts []string
)

func init() {
	rootCmd.AddCommand(correlateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(revertCmd)

	planCmd.Flags().StringArrayVar(&planConfirmGhosts, "confirm-ghost", nil, "confirm a missing commit: sha=replacement or sha=skip")
	planCmd.Flags().BoolVar(&planStat, "stat", false, "list the files each queued commit touches")

	revertCmd.Flags().BoolVarP(&revertYes, "yes", "y", false, "do not ask for confirmation")
	revertCmd.Flags().BoolVar(&revertContinue, "continue", false, "continue a conflicted revert after resolving the files")
	revertCmd.Flags().BoolVar(&revertAbort, "abort", false, "abort the revert in progress and restore the pre-revert state")
	revertCmd.Flags().BoolVar(&revertStatus, "status", false, "show the revert in progress")
	revertCmd.Flags().StringArrayVar(&revertConfirmGhosts, "confirm-ghost", nil, "confirm a missing commit: sha=replacement or sha=skip")
	revertCmd.MarkFlagsMutuallyExclusive("continue", "abort", "status")
}

// parseGhostConfirmations parses sha=replacement pairs. A replacement of
// "skip" confirms there is nothing to revert for the missing commit.
func parseGhostConfirmations(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		sha, repl, ok := strings.Cut(p, "=")
		sha, repl = strings.TrimSpace(sha), strings.TrimSpace(repl)
		if !ok || !plan.IsSHA(sha) {
			return nil, errors.NewValidationError(fmt.Sprintf("invalid --confirm-ghost %q, want sha=replacement or sha=skip", p)).
				WithField("confirm-ghost")
		}
		if strings.EqualFold(repl, "skip") || repl == "" {
			repl = ""
		} else if !plan.IsSHA(repl) {
			return nil, errors.NewValidationError(fmt.Sprintf("invalid replacement %q for %s", repl, sha)).
				WithField("confirm-ghost")
		}
		out[sha] = repl
	}
	return out, nil
}

func targetName(trackID string, args []string) string {
	if len(args) > 1 {
		return fmt.Sprintf("%s in track %s", args[1], trackID)
	}
	return "track " + trackID
}

func itemArg(args []string) string {
	if len(args) > 1 {
		return args[1]
	}
	return ""
}

func (a *app) correlator() *correlate.Correlator {
	return correlate.New(a.git,
		correlate.WithStrategies(correlate.DefaultStrategies(a.cfg.Revert.SearchLimit)...),
		correlate.WithLogger(a.logger),
		correlate.WithObserver(a.metrics.CorrelateObserver()),
	)
}

func (a *app) planner() (*revert.Planner, error) {
	cl, err := revert.NewClassifier(a.cfg.Conventions)
	if err != nil {
		return nil, err
	}
	return revert.NewPlanner(a.git,
		revert.WithCorrelator(a.correlator()),
		revert.WithClassifier(cl),
		revert.WithMainline(a.cfg.Git.Mainline),
		revert.WithPlanUpdates(a.cfg.Revert.IncludePlanUpdates),
		revert.WithPlannerLogger(a.logger),
	), nil
}

// executor returns an executor whose reconciler updates the plan of
// trackID once a session completes.
func (a *app) executor(trackID string) *revert.Executor {
	return revert.NewExecutor(a.git, revert.NewSessionStore(a.stateDir),
		revert.WithReconciler(revert.NewPlanReconciler(a.store(trackID), a.git, a.logger)),
		revert.WithExecutorLogger(a.logger),
		revert.WithTransitionObserver(a.metrics.RevertObserver()),
	)
}

// revertPlan loads the target and computes its revert plan.
func (a *app) revertPlan(trackID, ref string, confirmed map[string]string) (*revert.Plan, error) {
	s, tree, item, err := a.load(trackID, ref)
	if err != nil {
		return nil, err
	}
	p, err := a.planner()
	if err != nil {
		return nil, err
	}
	target := revert.Target{
		Tree: tree,
		Meta: s.Metadata(),
		Item: item,
		Paths: revert.Paths{
			Plan:     a.rel(s.PlanPath()),
			TrackDir: a.rel(a.cfg.Paths.TrackDir(a.root, trackID)),
			Registry: a.rel(a.cfg.Paths.RegistryPath(a.root)),
		},
	}
	return p.Plan(a.ctx, target, revert.PlanOptions{ConfirmedGhosts: confirmed})
}

// explainGhosts prints the candidates for each unresolved commit so the
// user can pick a --confirm-ghost value.
func (a *app) explainGhosts(trackID, ref string) {
	s, _, item, err := a.load(trackID, ref)
	if err != nil {
		return
	}
	items := append([]*plan.Item{item}, item.Descendants()...)
	res, err := a.correlator().Resolve(a.ctx, items, s.Metadata())
	if err != nil || len(res.Unresolved()) == 0 {
		return
	}
	a.print((&view.ResolutionView{Resolution: &correlate.Resolution{Ghosts: res.Unresolved()}}).Render(a.width()))
}

func runCorrelate(cmd *cobra.Command, args []string) error {
	trackID := args[0]
	return withApp(cmd, "correlate", "resolve commits of "+targetName(trackID, args), func(a *app) error {
		s, _, item, err := a.load(trackID, itemArg(args))
		if err != nil {
			return err
		}
		items := append([]*plan.Item{item}, item.Descendants()...)
		res, err := a.correlator().Resolve(a.ctx, items, s.Metadata())
		if err != nil {
			return err
		}
		a.print((&view.ResolutionView{Resolution: res}).Render(a.width()))
		return nil
	})
}

func runPlan(cmd *cobra.Command, args []string) error {
	trackID := args[0]
	return withApp(cmd, "plan", "plan revert of "+targetName(trackID, args), func(a *app) error {
		confirmed, err := parseGhostConfirmations(planConfirmGhosts)
		if err != nil {
			return err
		}
		p, err := a.revertPlan(trackID, itemArg(args), confirmed)
		if err != nil {
			if errors.Is(err, errors.ErrUnresolvedHistory) {
				a.explainGhosts(trackID, itemArg(args))
			}
			return err
		}
		v := &view.PlanView{Plan: p}
		if planStat {
			if v.Stats, err = a.diffStats(p); err != nil {
				return err
			}
		}
		a.print(v.Render(a.width()))
		return nil
	})
}

// diffStats reads the per-file line counts of every queued commit.
func (a *app) diffStats(p *revert.Plan) (map[string][]fingerprint.FileStat, error) {
	stats := make(map[string][]fingerprint.FileStat)
	for _, e := range p.Queue() {
		patch, err := a.git.Patch(a.ctx, e.SHA)
		if err != nil {
			return nil, err
		}
		st, err := fingerprint.Stats(patch)
		if err != nil {
			a.logger.Warn("diffstat failed", "sha", e.SHA, "error", err)
			continue
		}
		stats[e.SHA] = st
	}
	return stats, nil
}

func runRevert(cmd *cobra.Command, args []string) error {
	switch {
	case revertStatus:
		return withApp(cmd, "revert_status", "show the revert in progress", func(a *app) error {
			s, err := revert.NewSessionStore(a.stateDir).Load()
			if err != nil && !errors.Is(err, errors.ErrNoSession) {
				return err
			}
			a.print((&view.SessionView{Session: s}).Render(a.width()))
			return nil
		})
	case revertContinue:
		return withApp(cmd, "revert_continue", "continue the revert in progress", func(a *app) error {
			return a.resumeRevert(func(e *revert.Executor) (*revert.Session, error) { return e.Continue(a.ctx) })
		})
	case revertAbort:
		return withApp(cmd, "revert_abort", "abort the revert in progress", func(a *app) error {
			return a.resumeRevert(func(e *revert.Executor) (*revert.Session, error) { return e.Abort(a.ctx) })
		})
	}

	if len(args) == 0 {
		return fmt.Errorf("revert needs a track, or one of --continue, --abort, --status")
	}
	trackID := args[0]
	return withApp(cmd, "revert", "revert "+targetName(trackID, args), func(a *app) error {
		confirmed, err := parseGhostConfirmations(revertConfirmGhosts)
		if err != nil {
			return err
		}
		p, err := a.revertPlan(trackID, itemArg(args), confirmed)
		if err != nil {
			if errors.Is(err, errors.ErrUnresolvedHistory) {
				a.explainGhosts(trackID, itemArg(args))
			}
			return err
		}
		a.print((&view.PlanView{Plan: p}).Render(a.width()))
		if len(p.Covered()) == 0 {
			return nil
		}
		if revertYes {
			if err := requireConfirmedRebounds(p); err != nil {
				return err
			}
		}

		// warnings must be acknowledged by typing the target id
		prompt := fmt.Sprintf("Revert %d commits of %s %s?", len(p.Queue()), p.TargetKind, p.TargetID)
		if len(p.Queue()) == 0 {
			// nothing to revert, but the plan still drops the covered refs
			prompt = fmt.Sprintf("Reset %s %s without reverting any commit?", p.TargetKind, p.TargetID)
		}
		expected := ""
		if p.NeedsConfirmation() {
			expected = p.TargetID
		}
		ok, err := a.confirm(revertYes, prompt, expected)
		if err != nil {
			return err
		}
		if !ok {
			return errors.NewRevertError("revert was not confirmed; run again in a terminal or pass --yes", errors.ErrNoConfirmation).
				WithRepoState(errors.RepoUnchanged)
		}

		s, err := a.executor(trackID).Execute(a.ctx, p)
		if s != nil {
			a.print((&view.SessionView{Session: s}).Render(a.width()))
		}
		return err
	})
}

// requireConfirmedRebounds refuses a plan whose heuristically matched
// commits were not confirmed with --confirm-ghost.
func requireConfirmedRebounds(p *revert.Plan) error {
	if len(p.Rebound) == 0 {
		return nil
	}
	ghosts := make([]string, 0, len(p.Rebound))
	flags := make([]string, 0, len(p.Rebound))
	for _, g := range p.Rebound {
		ghosts = append(ghosts, g.SHA)
		flags = append(flags, fmt.Sprintf("--confirm-ghost %s=%s", g.SHA, shortSHA(g.Replacement)))
	}
	return errors.NewHistoryError(
		fmt.Sprintf("%d recorded commit(s) were matched by message search and need confirmation even with --yes: %s",
			len(p.Rebound), strings.Join(flags, " ")),
		errors.ErrUnconfirmed,
	).WithItem(p.TargetID).WithGhosts(ghosts...)
}

// resumeRevert loads the persisted session to find its track, then hands
// an executor for that track to fn.
func (a *app) resumeRevert(fn func(*revert.Executor) (*revert.Session, error)) error {
	trackID := ""
	if cur, err := revert.NewSessionStore(a.stateDir).Load(); err == nil {
		trackID = cur.TrackID
	}
	s, err := fn(a.executor(trackID))
	if s != nil {
		a.print((&view.SessionView{Session: s}).Render(a.width()))
	}
	return err
}
