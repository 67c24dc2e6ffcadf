package view

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/tui/styles"
)

// RenderError renders a failure as what was attempted, why it failed and
// the state the repository was left in.
func RenderError(attempted string, err error) string {
	if err == nil {
		return ""
	}
	state := errors.StateOf(err)
	stateStyle := styles.Muted
	switch state {
	case errors.RepoUnchanged:
		stateStyle = styles.Secondary
	case errors.RepoPartiallyApplied, errors.RepoUnknown:
		stateStyle = styles.WarningMsg
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", styles.Muted.Render("attempted: "), attempted)
	fmt.Fprintf(&b, "%s %s\n", styles.ErrorMsg.Render("failed:    "), err)
	fmt.Fprintf(&b, "%s %s", styles.Muted.Render("repository:"), stateStyle.Render(state.String()))

	var we *errors.WorkspaceError
	if errors.As(err, &we) && we.Suggestion != "" {
		fmt.Fprintf(&b, "\n%s %s", styles.Muted.Render("suggestion:"), styles.HelpKey.Render(we.Suggestion))
	}
	return b.String()
}

// RenderDiff colorizes a unified or combined diff line by line.
func RenderDiff(diff string) string {
	lines := strings.Split(strings.TrimRight(diff, "\n"), "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "diff "), strings.HasPrefix(line, "index "),
			strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			lines[i] = styles.DiffHeader.Render(line)
		case strings.HasPrefix(line, "@@"):
			lines[i] = styles.DiffHunk.Render(line)
		case isConflictMarker(line):
			lines[i] = styles.ConflictBanner.Render(line)
		case strings.HasPrefix(line, "+"):
			lines[i] = styles.DiffAdd.Render(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = styles.DiffRemove.Render(line)
		default:
			lines[i] = styles.DiffContext.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}

// isConflictMarker matches marker lines in both plain and combined diffs,
// where they carry one or two leading +/- columns.
func isConflictMarker(line string) bool {
	trimmed := strings.TrimLeft(line, "+- ")
	for _, m := range []string{"<<<<<<<", "=======", ">>>>>>>"} {
		if strings.HasPrefix(trimmed, m) {
			return true
		}
	}
	return false
}
