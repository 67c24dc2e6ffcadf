package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/conductor/internal/checkpoint"
	"github.com/Iron-Ham/conductor/internal/tui/styles"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint <track> <phase>",
	Short: "Close a phase with a checkpoint commit",
	Long: `Record the end of a phase. Every task of the phase must be complete.

The checkpoint commit carries a git note with the verification evidence
(test command, result, manual steps). The phase is then marked complete with
the checkpoint sha and the plan change is committed.

Nothing is recorded without explicit confirmation: pass --confirmed, or
answer the prompt in a terminal.

Examples:
  conductor checkpoint auth p1 --test-cmd "go test ./..." --test-result pass \
      --step "logged in with a fresh account" --confirmed

  # Show the evidence recorded for a phase
  conductor checkpoint auth p1 --show`,
	Args: cobra.ExactArgs(2),
	RunE: runCheckpoint,
}

var (
	checkpointTestCmd    string
	checkpointTestResult string
	checkpointSteps      []string
	checkpointConfirmed  bool
	checkpointShow       bool
)

func init() {
	rootCmd.AddCommand(checkpointCmd)

	checkpointCmd.Flags().StringVar(&checkpointTestCmd, "test-cmd", "", "command that verified the phase")
	checkpointCmd.Flags().StringVar(&checkpointTestResult, "test-result", "", "outcome of the test command")
	checkpointCmd.Flags().StringArrayVar(&checkpointSteps, "step", nil, "manual verification step (repeatable)")
	checkpointCmd.Flags().BoolVar(&checkpointConfirmed, "confirmed", false, "the user confirmed the phase is done")
	checkpointCmd.Flags().BoolVar(&checkpointShow, "show", false, "print the evidence recorded for the phase")
}

func (a *app) recorder(trackID string) *checkpoint.Recorder {
	return checkpoint.NewRecorder(a.store(trackID), a.git,
		checkpoint.WithNotesRef(a.cfg.Git.NotesRef),
		checkpoint.WithLogger(a.logger),
		checkpoint.WithObserver(a.metrics.CheckpointObserver()),
	)
}

func runCheckpoint(cmd *cobra.Command, args []string) error {
	trackID, phaseRef := args[0], args[1]
	if checkpointShow {
		return withApp(cmd, "checkpoint_show", fmt.Sprintf("show checkpoint of %s in track %s", phaseRef, trackID), func(a *app) error {
			return a.showCheckpoint(trackID, phaseRef)
		})
	}

	return withApp(cmd, "checkpoint", fmt.Sprintf("checkpoint %s in track %s", phaseRef, trackID), func(a *app) error {
		ev := checkpoint.Evidence{
			TestCommand:       checkpointTestCmd,
			TestResult:        checkpointTestResult,
			VerificationSteps: checkpointSteps,
			UserConfirmed:     checkpointConfirmed,
		}
		if !ev.UserConfirmed && a.interactive() {
			ok, err := a.confirm(false, fmt.Sprintf("Close phase %s?\n%s", phaseRef, describeEvidence(ev)), "")
			if err != nil {
				return err
			}
			ev.UserConfirmed = ok
		}

		res, err := a.recorder(trackID).Checkpoint(a.ctx, phaseRef, ev)
		if err != nil {
			return err
		}
		a.print(styles.SuccessMsg.Render(fmt.Sprintf("Phase %s checkpointed at %s", res.PhaseID, shortSHA(res.Commit))))
		a.print(styles.Muted.Render("plan updated in " + shortSHA(res.PlanCommit)))
		return nil
	})
}

func (a *app) showCheckpoint(trackID, phaseRef string) error {
	_, _, phase, err := a.load(trackID, phaseRef)
	if err != nil {
		return err
	}
	if phase.CheckpointRef == "" {
		a.print(styles.Muted.Render(fmt.Sprintf("Phase %s has no checkpoint.", phase.ID)))
		return nil
	}
	note, err := a.recorder(trackID).Note(a.ctx, phase.CheckpointRef)
	if err != nil {
		return err
	}
	if note == nil {
		a.print(styles.Muted.Render(fmt.Sprintf("Checkpoint %s carries no note.", shortSHA(phase.CheckpointRef))))
		return nil
	}
	data, err := yaml.Marshal(note)
	if err != nil {
		return err
	}
	a.print(styles.Title.Render(fmt.Sprintf("Checkpoint %s of %s", shortSHA(phase.CheckpointRef), phase.ID)))
	a.print(strings.TrimRight(string(data), "\n"))
	return nil
}

func describeEvidence(ev checkpoint.Evidence) string {
	var b strings.Builder
	if ev.TestCommand != "" {
		fmt.Fprintf(&b, "  tests: %s", ev.TestCommand)
		if ev.TestResult != "" {
			fmt.Fprintf(&b, " (%s)", ev.TestResult)
		}
		b.WriteString("\n")
	}
	for _, s := range ev.VerificationSteps {
		fmt.Fprintf(&b, "  - %s\n", s)
	}
	if b.Len() == 0 {
		return "  no evidence given"
	}
	return strings.TrimRight(b.String(), "\n")
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
