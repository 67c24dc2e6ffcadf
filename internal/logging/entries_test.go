package logging

import (
	"strings"
	"testing"
	"time"
)

func TestReadEntries(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, LevelDebug, DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.WithTrack("auth").WithSession("s-1").Info("revert started", "commits", 2)
	logger.WithTrack("auth").WithSession("s-1").Warn("revert conflicted", "sha", "abc1234")
	logger.WithWorkspace("agent-1").Error("merge conflict")
	_ = logger.Close()

	entries, err := ReadEntries(dir)
	if err != nil {
		t.Fatalf("ReadEntries failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].TrackID != "auth" || entries[0].SessionID != "s-1" {
		t.Errorf("context not parsed: %+v", entries[0])
	}
	if entries[1].Attrs["sha"] != "abc1234" {
		t.Errorf("Attrs[sha] = %v, want abc1234", entries[1].Attrs["sha"])
	}
}

func TestReadEntries_MissingFile(t *testing.T) {
	entries, err := ReadEntries(t.TempDir())
	if err != nil {
		t.Fatalf("ReadEntries failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries, want 0", len(entries))
	}
}

func TestParseEntries_SkipsGarbage(t *testing.T) {
	input := `{"time":"2025-01-01T00:00:02Z","level":"INFO","msg":"second"}
not json
{"time":"2025-01-01T00:00:01Z","level":"WARN","msg":"first"}
`
	entries, err := parseEntries(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Message != "first" {
		t.Errorf("entries not sorted by time: %q first", entries[0].Message)
	}
}

func TestFilterEntries(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := []Entry{
		{Time: base, Level: "DEBUG", Message: "resolve ghost", TrackID: "auth"},
		{Time: base.Add(time.Minute), Level: "INFO", Message: "revert started", TrackID: "auth", SessionID: "s-1"},
		{Time: base.Add(2 * time.Minute), Level: "ERROR", Message: "Merge conflict", Workspace: "agent-1"},
	}

	tests := []struct {
		name   string
		filter EntryFilter
		want   int
	}{
		{"empty filter", EntryFilter{}, 3},
		{"min level", EntryFilter{Level: "info"}, 2},
		{"track", EntryFilter{TrackID: "auth"}, 2},
		{"session", EntryFilter{SessionID: "s-1"}, 1},
		{"workspace", EntryFilter{Workspace: "agent-1"}, 1},
		{"since", EntryFilter{Since: base.Add(90 * time.Second)}, 1},
		{"contains is case insensitive", EntryFilter{Contains: "merge"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(FilterEntries(entries, tt.filter)); got != tt.want {
				t.Errorf("FilterEntries() returned %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFormatEntry(t *testing.T) {
	e := Entry{
		Time:      time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		Level:     "WARN",
		Message:   "ghost rebound",
		TrackID:   "auth",
		SessionID: "s-1",
		Attrs:     map[string]any{"sha": "abc", "confidence": "message_match"},
	}
	got := FormatEntry(e)
	want := "2025-01-01 12:00:00 WARN  ghost rebound track=auth session=s-1 confidence=message_match sha=abc"
	if got != want {
		t.Errorf("FormatEntry() = %q, want %q", got, want)
	}
}
