// Package tui holds conductor's interactive terminal prompts.
package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/conductor/internal/tui/styles"
)

// ConfirmModel is the Bubbletea model of a confirmation prompt. The user
// confirms by typing the expected phrase (usually the id of the item about
// to be reverted); with no phrase, "y" or "yes" confirms.
type ConfirmModel struct {
	title     string
	details   string
	expected  string
	textInput textinput.Model
	confirmed bool
	done      bool
	errorMsg  string
}

// NewConfirmModel creates a prompt. details is shown above the input, for
// example a rendered revert plan.
func NewConfirmModel(title, details, expected string) ConfirmModel {
	ti := textinput.New()
	ti.Focus()
	ti.CharLimit = 200
	ti.Width = 40
	if expected != "" {
		ti.Placeholder = expected
	} else {
		ti.Placeholder = "y/N"
	}
	return ConfirmModel{title: title, details: details, expected: expected, textInput: ti}
}

// Confirmed reports whether the user confirmed.
func (m ConfirmModel) Confirmed() bool {
	return m.confirmed
}

// Done reports whether the prompt was answered or cancelled.
func (m ConfirmModel) Done() bool {
	return m.done
}

func (m ConfirmModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m ConfirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "ctrl+c", "esc":
			m.done = true
			return m, tea.Quit

		case "enter":
			answer := strings.TrimSpace(m.textInput.Value())
			if m.expected == "" {
				m.confirmed = strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes")
				m.done = true
				return m, tea.Quit
			}
			if answer == m.expected {
				m.confirmed = true
				m.done = true
				return m, tea.Quit
			}
			if answer == "" {
				m.done = true
				return m, tea.Quit
			}
			m.errorMsg = fmt.Sprintf("%q does not match; type %s or press esc", answer, m.expected)
			m.textInput.SetValue("")
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m ConfirmModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	b.WriteString(styles.Title.Render(m.title))
	b.WriteString("\n")
	if m.details != "" {
		b.WriteString(m.details)
		b.WriteString("\n\n")
	}
	if m.expected != "" {
		fmt.Fprintf(&b, "Type %s to confirm:\n", styles.HelpKey.Render(m.expected))
	} else {
		b.WriteString("Proceed?\n")
	}
	b.WriteString(m.textInput.View())
	if m.errorMsg != "" {
		b.WriteString("\n")
		b.WriteString(styles.ErrorMsg.Render(m.errorMsg))
	}
	b.WriteString("\n")
	b.WriteString(styles.HelpBar.Render(styles.HelpKey.Render("enter") + " confirm  " + styles.HelpKey.Render("esc") + " cancel"))
	return b.String()
}

// Confirm runs a confirmation prompt on in and out and reports the answer.
func Confirm(in io.Reader, out io.Writer, title, details, expected string) (bool, error) {
	p := tea.NewProgram(NewConfirmModel(title, details, expected), tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		return false, fmt.Errorf("confirmation prompt: %w", err)
	}
	return final.(ConfirmModel).Confirmed(), nil
}
