package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/conductor/internal/plan"
	"github.com/Iron-Ham/conductor/internal/tui/styles"
	"github.com/Iron-Ham/conductor/internal/tui/view"
)

var statusCmd = &cobra.Command{
	Use:   "status [track]",
	Short: "Show tracks or the work items of one track",
	Long: `Without arguments, list the tracks in the registry.

With a track id, show its phases, tasks and sub-tasks with their status
markers, recorded commits and checkpoints.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

var statusCommits bool

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusCommits, "commits", false, "list each item's recorded commits")
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return withApp(cmd, "status", "list tracks", func(a *app) error {
			tracks, err := plan.LoadRegistry(a.cfg.Paths.RegistryPath(a.root))
			if err != nil {
				return err
			}
			a.print((&view.TracksView{Tracks: tracks}).Render(a.width()))
			return nil
		})
	}

	trackID := args[0]
	return withApp(cmd, "status", "show track "+trackID, func(a *app) error {
		s, tree, _, err := a.load(trackID, "")
		if err != nil {
			return err
		}
		v := &view.TreeView{Tree: tree, Meta: s.Metadata(), ShowCommits: statusCommits}
		a.print(v.Render(a.width()))
		for _, msg := range tree.Violations() {
			a.print(styles.WarningMsg.Render("warning: " + msg))
		}
		return nil
	})
}
