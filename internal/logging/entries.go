package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Entry is one parsed line of the JSON log.
type Entry struct {
	Time      time.Time      `json:"time"`
	Level     string         `json:"level"`
	Message   string         `json:"msg"`
	TrackID   string         `json:"track_id,omitempty"`
	PhaseID   string         `json:"phase_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Workspace string         `json:"workspace,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// EntryFilter selects log entries. Zero-valued fields match everything.
type EntryFilter struct {
	Level     string // minimum level
	TrackID   string
	SessionID string
	Workspace string
	Since     time.Time
	Contains  string
}

var levelRank = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

var knownKeys = map[string]bool{
	"time": true, "level": true, "msg": true,
	"track_id": true, "phase_id": true, "session_id": true, "workspace": true,
}

// ReadEntries parses {stateDir}/debug.log, skipping lines that are not
// valid JSON. Entries are returned oldest first.
func ReadEntries(stateDir string) ([]Entry, error) {
	f, err := os.Open(filepath.Join(stateDir, LogFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()
	return parseEntries(f)
}

func parseEntries(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		e, err := parseEntry(line)
		if err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Time.Before(entries[j].Time)
	})
	return entries, nil
}

func parseEntry(line string) (Entry, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{}, err
	}

	var e Entry
	if err := json.Unmarshal([]byte(line), &e); err != nil {
		return Entry{}, err
	}
	for k, v := range raw {
		if knownKeys[k] {
			continue
		}
		if e.Attrs == nil {
			e.Attrs = make(map[string]any)
		}
		e.Attrs[k] = v
	}
	return e, nil
}

// FilterEntries returns the entries matching f.
func FilterEntries(entries []Entry, f EntryFilter) []Entry {
	var out []Entry
	for _, e := range entries {
		if f.matches(e) {
			out = append(out, e)
		}
	}
	return out
}

func (f EntryFilter) matches(e Entry) bool {
	if f.Level != "" && levelRank[strings.ToUpper(e.Level)] < levelRank[ParseLevel(f.Level)] {
		return false
	}
	if f.TrackID != "" && e.TrackID != f.TrackID {
		return false
	}
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	if f.Workspace != "" && e.Workspace != f.Workspace {
		return false
	}
	if !f.Since.IsZero() && e.Time.Before(f.Since) {
		return false
	}
	if f.Contains != "" && !strings.Contains(strings.ToLower(e.Message), strings.ToLower(f.Contains)) {
		return false
	}
	return true
}

// FormatEntry renders e as a single human-readable line.
func FormatEntry(e Entry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %-5s %s", e.Time.Format("2006-01-02 15:04:05"), e.Level, e.Message)

	ctx := []struct{ k, v string }{
		{"track", e.TrackID},
		{"phase", e.PhaseID},
		{"session", e.SessionID},
		{"workspace", e.Workspace},
	}
	for _, c := range ctx {
		if c.v != "" {
			fmt.Fprintf(&sb, " %s=%s", c.k, c.v)
		}
	}

	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, e.Attrs[k])
	}
	return sb.String()
}
