package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/conductor/internal/plan"
	"github.com/Iron-Ham/conductor/internal/tui/styles"
	"github.com/Iron-Ham/conductor/internal/tui/view"
)

var watchCmd = &cobra.Command{
	Use:   "watch <track>",
	Short: "Show a track and refresh it whenever its plan changes",
	Long: `Print the track's work items, then print them again every time the plan
document or metadata record changes on disk. Stop with Ctrl+C.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var (
	watchDebounce time.Duration
	watchCommits  bool
)

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", plan.DefaultDebounce, "wait this long after a change before reloading")
	watchCmd.Flags().BoolVar(&watchCommits, "commits", false, "list each item's recorded commits")
}

func runWatch(cmd *cobra.Command, args []string) error {
	trackID := args[0]
	return withApp(cmd, "watch", "watch track "+trackID, func(a *app) error {
		s := a.store(trackID)
		tree, err := s.Load()
		if err != nil {
			return err
		}
		render := func(tree *plan.Tree) {
			v := &view.TreeView{Tree: tree, Meta: s.Metadata(), ShowCommits: watchCommits}
			a.print(v.Render(a.width()))
		}
		render(tree)

		w, err := plan.NewWatcher(s, watchDebounce, a.logger.WithTrack(trackID))
		if err != nil {
			return err
		}
		return w.Run(a.ctx, func(tree *plan.Tree, err error) {
			a.print(styles.Muted.Render(fmt.Sprintf("--- %s", time.Now().Format("15:04:05"))))
			if err != nil {
				a.print(styles.ErrorMsg.Render(err.Error()))
				return
			}
			render(tree)
		})
	})
}
