package view

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/conductor/internal/tui/styles"
	"github.com/Iron-Ham/conductor/internal/worktree"
)

// WorkspacesView renders registered workspaces.
type WorkspacesView struct {
	Workspaces []*worktree.Workspace
}

// Render renders one line per workspace: owner, state, branch and path.
func (v *WorkspacesView) Render(width int) string {
	if len(v.Workspaces) == 0 {
		return styles.Muted.Render("No workspaces.")
	}
	ownerW, branchW := len("OWNER"), len("BRANCH")
	for _, ws := range v.Workspaces {
		ownerW = max(ownerW, len(ws.Owner))
		branchW = max(branchW, len(ws.Branch))
	}

	var b strings.Builder
	b.WriteString(styles.Section.Render(fmt.Sprintf("%-*s  %-10s  %-*s  %s", ownerW, "OWNER", "STATE", branchW, "BRANCH", "PATH")))
	b.WriteString("\n")
	for _, ws := range v.Workspaces {
		state := workspaceStateStyle(ws.State).Render(fmt.Sprintf("%-10s", ws.State))
		path := truncate(ws.Path, width-ownerW-branchW-16)
		fmt.Fprintf(&b, "%-*s  %s  %-*s  %s\n", ownerW, ws.Owner, state, branchW, ws.Branch, styles.Muted.Render(path))
		if len(ws.ConflictPaths) > 0 {
			b.WriteString(styles.Warning.Render("    conflicts: " + strings.Join(ws.ConflictPaths, ", ")))
			b.WriteString("\n")
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func workspaceStateStyle(s worktree.State) lipgloss.Style {
	switch s {
	case worktree.StateActive:
		return styles.Primary
	case worktree.StateMerged:
		return styles.Secondary
	case worktree.StateConflicted, worktree.StateIncomplete:
		return styles.Warning
	case worktree.StateOrphaned:
		return styles.Error
	default:
		return styles.Muted
	}
}
