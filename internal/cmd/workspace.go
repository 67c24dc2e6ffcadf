package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/tui/styles"
	"github.com/Iron-Ham/conductor/internal/tui/view"
	"github.com/Iron-Ham/conductor/internal/worktree"
)

var workspaceCmd = &cobra.Command{
	Use:     "workspace",
	Aliases: []string{"ws"},
	Short:   "Manage isolated workspaces for parallel agents",
	Long: `Each agent works in its own git worktree on its own branch. Workspaces are
merged back into the branch checked out in the main working tree one at a
time, and removed once merged.`,
}

var workspaceCreateCmd = &cobra.Command{
	Use:   "create <owner>",
	Short: "Create a workspace for an owner",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkspaceCreate,
}

var workspaceMergeCmd = &cobra.Command{
	Use:   "merge <owner>",
	Short: "Merge a workspace branch into the main line",
	Long: `Merge the owner's branch into the branch checked out in the main working
tree with a merge commit. Merges are serialized by a lock shared by every
worktree of the repository.

Conflicts are never resolved automatically. Resolve them in the main working
tree and run 'conductor workspace merge <owner> --continue', or give up with
--abort.`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkspaceMerge,
}

var workspaceCleanupCmd = &cobra.Command{
	Use:   "cleanup [owner]",
	Short: "Remove workspaces and their branches",
	Long: `Remove a workspace directory and delete its branch.

With --match, every workspace whose owner matches the glob is removed, after
confirmation. Workspaces that were never merged need --force.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWorkspaceCleanup,
}

var workspaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workspaces",
	Args:  cobra.NoArgs,
	RunE:  runWorkspaceList,
}

var (
	wsBranch string
	wsBase   string
	wsPID    int

	wsMergeContinue bool
	wsMergeAbort    bool

	wsCleanupMatch string
	wsCleanupForce bool
	wsCleanupYes   bool

	wsListMatch string
)

func init() {
	rootCmd.AddCommand(workspaceCmd)
	workspaceCmd.AddCommand(workspaceCreateCmd)
	workspaceCmd.AddCommand(workspaceMergeCmd)
	workspaceCmd.AddCommand(workspaceCleanupCmd)
	workspaceCmd.AddCommand(workspaceListCmd)

	workspaceCreateCmd.Flags().StringVar(&wsBranch, "branch", "", "branch name (default <prefix>/<owner>)")
	workspaceCreateCmd.Flags().StringVar(&wsBase, "base", "", "start the branch from this ref (default HEAD)")
	workspaceCreateCmd.Flags().IntVar(&wsPID, "pid", 0, "owner process id (default the parent process)")

	workspaceMergeCmd.Flags().BoolVar(&wsMergeContinue, "continue", false, "conclude a merge after resolving conflicts")
	workspaceMergeCmd.Flags().BoolVar(&wsMergeAbort, "abort", false, "abort a conflicted merge")
	workspaceMergeCmd.MarkFlagsMutuallyExclusive("continue", "abort")

	workspaceCleanupCmd.Flags().StringVar(&wsCleanupMatch, "match", "", "remove every workspace whose owner matches this glob")
	workspaceCleanupCmd.Flags().BoolVar(&wsCleanupForce, "force", false, "remove unmerged or dirty workspaces")
	workspaceCleanupCmd.Flags().BoolVarP(&wsCleanupYes, "yes", "y", false, "do not ask for confirmation")

	workspaceListCmd.Flags().StringVar(&wsListMatch, "match", "", "only owners matching this glob (e.g. 'agent-*')")
}

func (a *app) workspaces() *worktree.Manager {
	return worktree.NewManager(worktree.ClientOpener(a.git), a.root, a.stateDir,
		worktree.WithWorktreeDir(a.cfg.Paths.ResolveWorktreeDir(a.root)),
		worktree.WithBranchPrefix(a.cfg.Branch.Prefix),
		worktree.WithMergeLock(a.cfg.Merge.LockTimeout, a.cfg.Merge.LockPoll),
		worktree.WithLogger(a.logger),
		worktree.WithEventObserver(a.metrics.WorkspaceObserver()),
	)
}

func runWorkspaceCreate(cmd *cobra.Command, args []string) error {
	owner := args[0]
	return withApp(cmd, "workspace_create", "create workspace for "+owner, func(a *app) error {
		var opts []worktree.CreateOption
		if wsBase != "" {
			opts = append(opts, worktree.FromBase(wsBase))
		}
		if wsPID > 0 {
			opts = append(opts, worktree.OwnedBy(wsPID))
		}
		ws, err := a.workspaces().Create(a.ctx, owner, wsBranch, opts...)
		if err != nil {
			return err
		}
		a.print(styles.SuccessMsg.Render(fmt.Sprintf("Created workspace for %s", ws.Owner)))
		fmt.Fprintf(a.out, "branch: %s\npath:   %s\n", ws.Branch, ws.Path)
		return nil
	})
}

func runWorkspaceMerge(cmd *cobra.Command, args []string) error {
	owner := args[0]
	switch {
	case wsMergeAbort:
		return withApp(cmd, "workspace_merge_abort", "abort merge of "+owner, func(a *app) error {
			ws, err := a.workspaces().MergeAbort(a.ctx, owner)
			if err != nil {
				return err
			}
			a.print(styles.WarningMsg.Render(fmt.Sprintf("Merge of %s aborted; workspace is %s", ws.Branch, ws.State)))
			return nil
		})
	case wsMergeContinue:
		return withApp(cmd, "workspace_merge_continue", "continue merge of "+owner, func(a *app) error {
			res, err := a.workspaces().MergeContinue(a.ctx, owner)
			return a.reportMerge(res, err)
		})
	}
	return withApp(cmd, "workspace_merge", "merge workspace of "+owner, func(a *app) error {
		res, err := a.workspaces().Merge(a.ctx, owner)
		return a.reportMerge(res, err)
	})
}

// reportMerge prints a completed merge, or the conflicting diff of a
// halted one.
func (a *app) reportMerge(res *worktree.MergeResult, err error) error {
	if err != nil {
		if errors.Is(err, errors.ErrMergeConflict) {
			if diff, derr := a.git.WorkingDiff(a.ctx); derr == nil && strings.TrimSpace(diff) != "" {
				a.print(view.RenderDiff(diff))
			}
		}
		return err
	}
	a.print(styles.SuccessMsg.Render(fmt.Sprintf("Merged %s into %s", res.Workspace.Branch, res.Into)))
	fmt.Fprintf(a.out, "merge commit: %s\n", shortSHA(res.Commit))
	return nil
}

func runWorkspaceCleanup(cmd *cobra.Command, args []string) error {
	if (len(args) == 0) == (wsCleanupMatch == "") {
		return fmt.Errorf("cleanup needs exactly one of an owner or --match")
	}
	target := wsCleanupMatch
	if len(args) > 0 {
		target = args[0]
	}
	return withApp(cmd, "workspace_cleanup", "clean up workspaces of "+target, func(a *app) error {
		m := a.workspaces()
		if len(args) > 0 {
			if err := m.Cleanup(a.ctx, args[0], wsCleanupForce); err != nil {
				return err
			}
			a.print(styles.SuccessMsg.Render("Removed workspace of " + args[0]))
			return nil
		}

		list, err := m.List(wsCleanupMatch)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			a.print(styles.Muted.Render("No workspaces match " + wsCleanupMatch + "."))
			return nil
		}
		a.print((&view.WorkspacesView{Workspaces: list}).Render(a.width()))
		ok, err := a.confirm(wsCleanupYes, fmt.Sprintf("Remove %d workspaces?", len(list)), "")
		if err != nil {
			return err
		}
		if !ok {
			return errors.NewWorkspaceError("cleanup was not confirmed; run again in a terminal or pass --yes", errors.ErrNoConfirmation).
				WithRepoState(errors.RepoUnchanged)
		}

		var errs []error
		for _, ws := range list {
			if err := m.Cleanup(a.ctx, ws.Owner, wsCleanupForce); err != nil {
				errs = append(errs, err)
				continue
			}
			a.print(styles.SuccessMsg.Render("Removed workspace of " + ws.Owner))
		}
		return errors.Join(errs...)
	})
}

func runWorkspaceList(cmd *cobra.Command, args []string) error {
	return withApp(cmd, "workspace_list", "list workspaces", func(a *app) error {
		list, err := a.workspaces().List(wsListMatch)
		if err != nil {
			return err
		}
		a.print((&view.WorkspacesView{Workspaces: list}).Render(a.width()))
		return nil
	})
}
