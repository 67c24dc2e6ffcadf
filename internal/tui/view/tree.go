package view

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/conductor/internal/plan"
	"github.com/Iron-Ham/conductor/internal/tui/styles"
)

// TreeView renders a track's work item tree.
type TreeView struct {
	Tree *plan.Tree
	// Meta supplies commit kinds and messages; it may be nil.
	Meta *plan.Metadata
	// ShowCommits lists each item's commit refs under it.
	ShowCommits bool
}

// Render renders the tree. Titles longer than width are truncated.
func (v *TreeView) Render(width int) string {
	if v.Tree == nil || v.Tree.Root == nil {
		return ""
	}
	var b strings.Builder

	root := v.Tree.Root
	b.WriteString(styles.StatusMarker(root.Status))
	b.WriteString(" ")
	b.WriteString(styles.Title.Render(fmt.Sprintf("%s (%s)", root.Title, root.ID)))
	b.WriteString("\n")

	for _, it := range root.Descendants() {
		depth := depthOf(it)
		indent := strings.Repeat("  ", depth)

		title := truncate(it.Title, width-len(indent)-len(it.ID)-8)
		if it.Kind == plan.KindPhase {
			title = styles.Section.Render(title)
		}
		fmt.Fprintf(&b, "%s%s %s %s", indent, styles.StatusMarker(it.Status), styles.Muted.Render(it.ID), title)
		if it.CheckpointRef != "" {
			b.WriteString(" ")
			b.WriteString(styles.SuccessMsg.Render("checkpoint " + shortSHA(it.CheckpointRef)))
		}
		if !v.ShowCommits && len(it.CommitRefs) > 0 {
			b.WriteString(" ")
			b.WriteString(styles.Muted.Render(fmt.Sprintf("(%d commits)", len(it.CommitRefs))))
		}
		b.WriteString("\n")

		if v.ShowCommits {
			for _, sha := range it.CommitRefs {
				b.WriteString(indent)
				b.WriteString("    ")
				b.WriteString(v.commitLine(it.ID, sha))
				b.WriteString("\n")
			}
		}
	}

	b.WriteString("\n")
	b.WriteString(styles.Muted.Render(summary(v.Tree)))
	return b.String()
}

func (v *TreeView) commitLine(id, sha string) string {
	line := styles.SHA.Render(shortSHA(sha))
	if v.Meta == nil {
		return line
	}
	rec := v.Meta.Record(id)
	if rec == nil {
		return line
	}
	if c, ok := rec.Commit(sha); ok {
		if c.Kind != "" {
			line += " " + styles.Muted.Render(string(c.Kind))
		}
		if msg := firstLine(c.Message); msg != "" {
			line += " " + msg
		}
	}
	return line
}

// summary counts leaf tasks by status.
func summary(t *plan.Tree) string {
	counts := map[plan.Status]int{}
	total := 0
	for _, it := range t.Items() {
		if it.Kind != plan.KindTask {
			continue
		}
		counts[it.Status]++
		total++
	}
	parts := []string{fmt.Sprintf("%d/%d tasks complete", counts[plan.StatusComplete], total)}
	if n := counts[plan.StatusInProgress]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d in progress", n))
	}
	if n := counts[plan.StatusBlocked]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d blocked", n))
	}
	return strings.Join(parts, ", ")
}

// TracksView renders the tracks listed in the registry.
type TracksView struct {
	Tracks []plan.TrackEntry
}

// Render renders one line per track.
func (v *TracksView) Render(width int) string {
	if len(v.Tracks) == 0 {
		return styles.Muted.Render("No tracks registered.")
	}
	var b strings.Builder
	b.WriteString(styles.Title.Render("Tracks"))
	b.WriteString("\n")
	for _, tr := range v.Tracks {
		fmt.Fprintf(&b, "%s %s %s\n",
			styles.StatusMarker(tr.Status),
			truncate(tr.Title, width-len(tr.ID)-8),
			styles.Muted.Render(tr.ID))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func depthOf(it *plan.Item) int {
	d := 0
	for p := it.Parent(); p != nil && p.Parent() != nil; p = p.Parent() {
		d++
	}
	return d
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

func truncate(s string, n int) string {
	if n < 10 {
		n = 10
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
