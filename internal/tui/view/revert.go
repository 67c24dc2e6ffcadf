package view

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/conductor/internal/correlate"
	"github.com/Iron-Ham/conductor/internal/fingerprint"
	"github.com/Iron-Ham/conductor/internal/revert"
	"github.com/Iron-Ham/conductor/internal/tui/styles"
)

// PlanView renders a revert plan.
type PlanView struct {
	Plan *revert.Plan
	// Stats, keyed by full sha, adds the touched files under each entry.
	Stats map[string][]fingerprint.FileStat
}

// Render renders the queue newest first, then warnings and unresolved
// ghosts.
func (v *PlanView) Render(width int) string {
	p := v.Plan
	if p == nil {
		return ""
	}
	var b strings.Builder

	b.WriteString(styles.Title.Render(fmt.Sprintf("Revert plan: %s %s in track %s", p.TargetKind, p.TargetID, p.TrackID)))
	b.WriteString("\n")

	if len(p.Entries) == 0 {
		b.WriteString(styles.Muted.Render("Nothing to revert."))
		b.WriteString("\n")
	}
	n := 0
	for _, e := range p.Entries {
		prefix := "   "
		if !e.Skip {
			n++
			prefix = fmt.Sprintf("%2d.", n)
		}
		line := fmt.Sprintf("%s %s %-14s %s", prefix, styles.SHA.Render(e.Short()), string(e.Kind), truncate(e.Subject, width-30))
		var tags []string
		if e.Mainline > 0 {
			tags = append(tags, fmt.Sprintf("merge, -m %d", e.Mainline))
		}
		if e.DuplicateOf != "" {
			tags = append(tags, "duplicate of "+shortSHA(e.DuplicateOf))
		}
		if e.Source != revert.SourceRef {
			tags = append(tags, string(e.Source))
		}
		if e.Skip {
			tags = append(tags, "skipped")
		}
		if len(tags) > 0 {
			line += " " + styles.Muted.Render("["+strings.Join(tags, "; ")+"]")
		}
		if e.Skip {
			line = styles.Muted.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
		for _, st := range v.Stats[e.SHA] {
			fmt.Fprintf(&b, "      %s %s %s\n", st.Path,
				styles.DiffAdd.Render(fmt.Sprintf("+%d", st.Added)),
				styles.DiffRemove.Render(fmt.Sprintf("-%d", st.Deleted)))
		}
	}

	if len(p.Warnings) > 0 {
		b.WriteString("\n")
		b.WriteString(styles.WarningMsg.Render("Needs confirmation:"))
		b.WriteString("\n")
		for _, w := range p.Warnings {
			fmt.Fprintf(&b, "  %s %s %s\n", styles.Warning.Render("!"), styles.SHA.Render(shortSHA(w.SHA)), w.Message)
		}
	}

	if len(p.Skipped) > 0 {
		b.WriteString("\n")
		b.WriteString(styles.Muted.Render("Confirmed as nothing to revert: " + strings.Join(shortAll(p.Skipped), ", ")))
		b.WriteString("\n")
	}

	var unresolved []correlate.Ghost
	for _, g := range p.Ghosts {
		if !g.Resolved() {
			unresolved = append(unresolved, g)
		}
	}
	if len(unresolved) > 0 {
		b.WriteString("\n")
		b.WriteString(renderGhosts(unresolved))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// ResolutionView renders the outcome of correlating an item's refs.
type ResolutionView struct {
	Resolution *correlate.Resolution
}

// Render lists resolved commits, rebound ghosts and unresolved ghosts.
func (v *ResolutionView) Render(width int) string {
	r := v.Resolution
	if r == nil {
		return ""
	}
	var b strings.Builder

	b.WriteString(styles.Title.Render(fmt.Sprintf("Resolved %d commits", len(r.Records))))
	b.WriteString("\n")
	for _, rec := range r.Records {
		line := fmt.Sprintf("%s %s %s", styles.SHA.Render(shortSHA(rec.SHA)), styles.Muted.Render(strings.Join(rec.ItemIDs, ",")), truncate(rec.Subject, width-30))
		if rec.IsMerge() {
			line += " " + styles.Warning.Render("[merge]")
		}
		if rec.Confidence != correlate.ConfidenceExact {
			line += " " + styles.Warning.Render("["+string(rec.Confidence)+"]")
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	var rebound, unresolved []correlate.Ghost
	for _, g := range r.Ghosts {
		if g.Resolved() {
			rebound = append(rebound, g)
		} else {
			unresolved = append(unresolved, g)
		}
	}
	if len(rebound) > 0 {
		b.WriteString("\n")
		b.WriteString(styles.Section.Render("Rewritten history"))
		b.WriteString("\n")
		for _, g := range rebound {
			fmt.Fprintf(&b, "  %s -> %s %s %s\n",
				styles.SHA.Render(shortSHA(g.SHA)),
				styles.SHA.Render(shortSHA(g.Replacement)),
				styles.Muted.Render(fmt.Sprintf("(%s, %s)", g.Strategy, g.Confidence)),
				g.ItemID)
		}
	}
	if len(unresolved) > 0 {
		b.WriteString("\n")
		b.WriteString(renderGhosts(unresolved))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func renderGhosts(ghosts []correlate.Ghost) string {
	var b strings.Builder
	b.WriteString(styles.ErrorMsg.Render("Unresolved commits (confirm a replacement or skip):"))
	b.WriteString("\n")
	for _, g := range ghosts {
		fmt.Fprintf(&b, "  %s on %s", styles.SHA.Render(shortSHA(g.SHA)), g.ItemID)
		if msg := firstLine(g.Message); msg != "" {
			fmt.Fprintf(&b, " %q", msg)
		}
		b.WriteString("\n")
		if len(g.Candidates) > 0 {
			b.WriteString(styles.Muted.Render("    candidates: " + strings.Join(shortAll(g.Candidates), ", ")))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// SessionView renders a persisted revert session.
type SessionView struct {
	Session *revert.Session
}

// Render shows the session state, progress and any conflicts.
func (v *SessionView) Render(width int) string {
	s := v.Session
	if s == nil {
		return styles.Muted.Render("No revert in progress.")
	}
	var b strings.Builder

	b.WriteString(styles.Title.Render(fmt.Sprintf("Revert %s of %s in track %s", s.ID, s.TargetID, s.TrackID)))
	b.WriteString("\n")
	fmt.Fprintf(&b, "state:    %s\n", stateStyle(s.State).Render(string(s.State)))
	fmt.Fprintf(&b, "progress: %d/%d commits reverted\n", len(s.Applied), len(s.Queue))

	if len(s.Applied) > 0 {
		b.WriteString(styles.Section.Render("Reverted"))
		b.WriteString("\n")
		for i, sha := range s.Applied {
			line := "  " + styles.SHA.Render(shortSHA(sha))
			if i < len(s.Reverts) {
				line += styles.Muted.Render(" by " + shortSHA(s.Reverts[i]))
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	if rest := s.Remaining(); len(rest) > 0 {
		b.WriteString(styles.Section.Render("Remaining"))
		b.WriteString("\n")
		for _, step := range rest {
			fmt.Fprintf(&b, "  %s %s\n", styles.SHA.Render(shortSHA(step.SHA)), truncate(step.Subject, width-12))
		}
	}
	if len(s.ConflictPaths) > 0 {
		b.WriteString(styles.ConflictBanner.Render("Conflicts"))
		b.WriteString("\n")
		for _, p := range s.ConflictPaths {
			fmt.Fprintf(&b, "  %s\n", styles.Warning.Render(p))
		}
		b.WriteString(styles.HelpBar.Render("Resolve the files, then run " + styles.HelpKey.Render("conductor revert --continue") +
			" or " + styles.HelpKey.Render("conductor revert --abort")))
		b.WriteString("\n")
	}
	if s.Reconcile != "" {
		fmt.Fprintf(&b, "plan updated in %s\n", styles.SHA.Render(shortSHA(s.Reconcile)))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func stateStyle(s revert.State) lipgloss.Style {
	switch s {
	case revert.StateCompleted:
		return styles.SuccessMsg
	case revert.StateConflicted:
		return styles.WarningMsg
	case revert.StateAborted:
		return styles.ErrorMsg
	default:
		return styles.Primary
	}
}

func shortAll(shas []string) []string {
	out := make([]string, len(shas))
	for i, s := range shas {
		out[i] = shortSHA(s)
	}
	return out
}
