package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func typeText(m tea.Model, s string) tea.Model {
	for _, r := range s {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func press(m tea.Model, t tea.KeyType) (ConfirmModel, tea.Cmd) {
	next, cmd := m.Update(tea.KeyMsg{Type: t})
	return next.(ConfirmModel), cmd
}

func TestConfirmModel_ExpectedPhrase(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		confirmed bool
		done      bool
	}{
		{"matching id", "p1.t2", true, true},
		{"empty input cancels", "", false, true},
		{"wrong id asks again", "p1", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := typeText(NewConfirmModel("Revert", "", "p1.t2"), tt.input)
			got, cmd := press(m, tea.KeyEnter)

			if got.Confirmed() != tt.confirmed || got.Done() != tt.done {
				t.Errorf("confirmed=%v done=%v, want %v %v", got.Confirmed(), got.Done(), tt.confirmed, tt.done)
			}
			if tt.done && cmd == nil {
				t.Error("finished prompt did not quit")
			}
			if !tt.done && !strings.Contains(got.View(), "does not match") {
				t.Errorf("mismatch not reported:\n%s", got.View())
			}
		})
	}
}

func TestConfirmModel_YesNo(t *testing.T) {
	for input, want := range map[string]bool{"y": true, "YES": true, "n": false, "": false} {
		m := typeText(NewConfirmModel("Merge", "", ""), input)
		got, _ := press(m, tea.KeyEnter)
		if got.Confirmed() != want || !got.Done() {
			t.Errorf("input %q: confirmed=%v done=%v", input, got.Confirmed(), got.Done())
		}
	}
}

func TestConfirmModel_Cancel(t *testing.T) {
	m := typeText(NewConfirmModel("Revert", "", "p1"), "p1")
	got, cmd := press(m, tea.KeyEsc)
	if got.Confirmed() || !got.Done() || cmd == nil {
		t.Errorf("esc: confirmed=%v done=%v", got.Confirmed(), got.Done())
	}
}

func TestConfirmModel_View(t *testing.T) {
	m := NewConfirmModel("Revert phase p1", "1. abc1234 feat: schema", "p1")
	v := m.View()
	for _, want := range []string{"Revert phase p1", "abc1234", "to confirm"} {
		if !strings.Contains(v, want) {
			t.Errorf("View() missing %q:\n%s", want, v)
		}
	}
}
