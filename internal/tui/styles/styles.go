// Package styles holds the lipgloss palette and styles shared by conductor's
// terminal output.
package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/conductor/internal/plan"
)

var (
	// Colors - all colors meet WCAG AA contrast (4.5:1) on both black and dark surfaces
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
	SurfaceColor   = lipgloss.Color("#1F2937") // Dark surface
	TextColor      = lipgloss.Color("#F9FAFB") // Light text
	BorderColor    = lipgloss.Color("#6B7280") // Gray
	BlueColor      = lipgloss.Color("#60A5FA") // Blue

	// Convenience styles for colors
	Primary   = lipgloss.NewStyle().Foreground(PrimaryColor)
	Secondary = lipgloss.NewStyle().Foreground(SecondaryColor)
	Warning   = lipgloss.NewStyle().Foreground(WarningColor)
	Error     = lipgloss.NewStyle().Foreground(ErrorColor)
	Muted     = lipgloss.NewStyle().Foreground(MutedColor)
	Text      = lipgloss.NewStyle().Foreground(TextColor)

	// Work item status colors
	StatusPending    = lipgloss.Color("#9CA3AF") // Gray
	StatusInProgress = lipgloss.Color("#60A5FA") // Blue
	StatusComplete   = lipgloss.Color("#10B981") // Green
	StatusBlocked    = lipgloss.Color("#F87171") // Red

	// Base styles
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor).
		MarginBottom(1)

	Subtitle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true)

	// Section headings inside a report
	Section = lipgloss.NewStyle().
		Bold(true).
		Foreground(TextColor)

	// Commit shas
	SHA = lipgloss.NewStyle().
		Foreground(WarningColor)

	// Content area
	ContentBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(0, 1)

	// Error message
	ErrorMsg = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	// Success message
	SuccessMsg = lipgloss.NewStyle().
			Foreground(SecondaryColor).
			Bold(true)

	// Warning message
	WarningMsg = lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true)

	// Conflict warning banner
	ConflictBanner = lipgloss.NewStyle().
			Foreground(TextColor).
			Background(WarningColor).
			Bold(true).
			Padding(0, 1)

	// Help text under prompts
	HelpBar = lipgloss.NewStyle().
		Foreground(MutedColor).
		MarginTop(1)

	HelpKey = lipgloss.NewStyle().
		Bold(true).
		Foreground(SecondaryColor)

	// Diff syntax highlighting styles - all meet WCAG AA contrast
	DiffAdd = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#22C55E"))

	DiffRemove = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F87171"))

	DiffHeader = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#60A5FA")).
			Bold(true)

	DiffHunk = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A78BFA"))

	DiffContext = lipgloss.NewStyle().
			Foreground(MutedColor)
)

// StatusColor returns the color for a work item status.
func StatusColor(s plan.Status) lipgloss.Color {
	switch s {
	case plan.StatusInProgress:
		return StatusInProgress
	case plan.StatusComplete:
		return StatusComplete
	case plan.StatusBlocked:
		return StatusBlocked
	default:
		return StatusPending
	}
}

// StatusMarker renders the plan marker of a status, "[~]" for in progress.
func StatusMarker(s plan.Status) string {
	return lipgloss.NewStyle().
		Foreground(StatusColor(s)).
		Bold(s == plan.StatusInProgress).
		Render("[" + string(s.Marker()) + "]")
}
