package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/conductor/internal/logging"
	"github.com/Iron-Ham/conductor/internal/tui/styles"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View the conductor debug log",
	Long: `View and filter the debug log kept in the repository's git directory.

Examples:
  # Show the last 50 entries
  conductor logs

  # Everything logged for one track in the last hour
  conductor logs --track auth --since 1h -n 0

  # Warnings and errors of a revert session
  conductor logs --session 3f2c... --level warn`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var (
	logsTail      int
	logsLevel     string
	logsSince     time.Duration
	logsGrep      string
	logsTrack     string
	logsSession   string
	logsWorkspace string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "number of entries to show (0 for all)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "minimum level (debug/info/warn/error)")
	logsCmd.Flags().DurationVar(&logsSince, "since", 0, "only entries newer than this (e.g. 1h, 30m)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "only entries whose message contains this text")
	logsCmd.Flags().StringVar(&logsTrack, "track", "", "only entries for this track")
	logsCmd.Flags().StringVar(&logsSession, "session", "", "only entries for this revert session")
	logsCmd.Flags().StringVar(&logsWorkspace, "workspace", "", "only entries for this workspace owner")
}

func runLogs(cmd *cobra.Command, args []string) error {
	if logsLevel != "" && !isValidLevel(logsLevel) {
		return fmt.Errorf("invalid level %q: must be one of %s", logsLevel, strings.Join(logging.ValidLevels(), ", "))
	}
	return withApp(cmd, "logs", "read the debug log", func(a *app) error {
		entries, err := logging.ReadEntries(a.stateDir)
		if err != nil {
			return err
		}
		f := logging.EntryFilter{
			Level:     logsLevel,
			TrackID:   logsTrack,
			SessionID: logsSession,
			Workspace: logsWorkspace,
			Contains:  logsGrep,
		}
		if logsSince > 0 {
			f.Since = time.Now().Add(-logsSince)
		}
		entries = logging.FilterEntries(entries, f)
		if logsTail > 0 && len(entries) > logsTail {
			entries = entries[len(entries)-logsTail:]
		}
		if len(entries) == 0 {
			a.print(styles.Muted.Render("No log entries."))
			return nil
		}
		for _, e := range entries {
			fmt.Fprintln(a.out, levelStyle(e.Level).Render(logging.FormatEntry(e)))
		}
		return nil
	})
}

func isValidLevel(level string) bool {
	for _, l := range logging.ValidLevels() {
		if strings.EqualFold(l, level) {
			return true
		}
	}
	return false
}

func levelStyle(level string) lipgloss.Style {
	switch strings.ToUpper(level) {
	case logging.LevelError:
		return styles.ErrorMsg
	case logging.LevelWarn:
		return styles.WarningMsg
	case logging.LevelDebug:
		return styles.Muted
	}
	return styles.Text
}
