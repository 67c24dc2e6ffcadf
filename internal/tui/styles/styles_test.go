package styles

import (
	"strings"
	"testing"

	"github.com/Iron-Ham/conductor/internal/plan"
)

func TestStatusColor(t *testing.T) {
	tests := []struct {
		status   plan.Status
		expected string // Expected color hex value
	}{
		{plan.StatusPending, "#9CA3AF"},
		{plan.StatusInProgress, "#60A5FA"},
		{plan.StatusComplete, "#10B981"},
		{plan.StatusBlocked, "#F87171"},
		{plan.Status("unknown"), "#9CA3AF"}, // Should fall back to pending
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			got := StatusColor(tt.status)
			if string(got) != tt.expected {
				t.Errorf("StatusColor(%q) = %q, want %q", tt.status, got, tt.expected)
			}
		})
	}
}

func TestStatusMarker(t *testing.T) {
	tests := []struct {
		status   plan.Status
		expected string
	}{
		{plan.StatusPending, "[ ]"},
		{plan.StatusInProgress, "[~]"},
		{plan.StatusComplete, "[x]"},
		{plan.StatusBlocked, "[!]"},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			// Styling may add escape sequences; the marker text must survive
			if got := StatusMarker(tt.status); !strings.Contains(got, tt.expected) {
				t.Errorf("StatusMarker(%q) = %q, want it to contain %q", tt.status, got, tt.expected)
			}
		})
	}
}
