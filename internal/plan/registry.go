package plan

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/Iron-Ham/conductor/internal/errors"
)

var (
	registryHeadingRe = regexp.MustCompile(`^(##[ \t]+|[-*][ \t]+)\[(.)\][ \t]+(?:\*\*)?Track:[ \t]*(.*?)(?:\*\*)?[ \t]*$`)
	registryLinkRe    = regexp.MustCompile(`\]\((?:\./)?(?:[^)]*/)?tracks/([^/)]+)/?\)`)
)

// TrackEntry is one track listed in the registry file.
type TrackEntry struct {
	ID     string
	Title  string
	Status Status
	// Line is the 1-based line of the entry's heading.
	Line int
}

// LoadRegistry reads and parses the registry file. A missing file lists no
// tracks.
func LoadRegistry(path string) ([]TrackEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewPlanError("failed to read track registry", err).WithPath(path)
	}
	entries, err := ParseRegistry(data)
	if err != nil {
		var pe *errors.PlanError
		if errors.As(err, &pe) {
			pe.WithPath(path)
		}
		return nil, err
	}
	return entries, nil
}

// ParseRegistry lists the tracks of a registry document. Each entry is a
// "Track:" heading with a status marker followed by a link line naming the
// track directory.
func ParseRegistry(data []byte) ([]TrackEntry, error) {
	var entries []TrackEntry
	var pending *TrackEntry
	for i, raw := range splitKeepEOL(string(data)) {
		line := strings.TrimRight(raw, "\r\n")
		if m := registryHeadingRe.FindStringSubmatch(line); m != nil {
			status, ok := statusFromMarker(m[2][0])
			if !ok {
				return nil, malformed(i+1, fmt.Sprintf("unknown status marker [%s] in track registry", m[2]))
			}
			entries = append(entries, TrackEntry{Title: strings.TrimSpace(m[3]), Status: status, Line: i + 1})
			pending = &entries[len(entries)-1]
			continue
		}
		if pending == nil {
			continue
		}
		if m := registryLinkRe.FindStringSubmatch(line); m != nil {
			pending.ID = m[1]
			pending = nil
		}
	}

	out := entries[:0]
	for _, e := range entries {
		if e.ID != "" {
			out = append(out, e)
		}
	}
	return out, nil
}

// SetRegistryStatus rewrites the marker of one track's registry entry and
// reports whether the entry was found. Other lines are left untouched.
func SetRegistryStatus(data []byte, trackID string, status Status) ([]byte, bool, error) {
	entries, err := ParseRegistry(data)
	if err != nil {
		return nil, false, err
	}
	lines := splitKeepEOL(string(data))
	for _, e := range entries {
		if e.ID != trackID {
			continue
		}
		line := lines[e.Line-1]
		open := strings.IndexByte(line, '[')
		lines[e.Line-1] = line[:open+1] + string(status.Marker()) + line[open+2:]
		return []byte(strings.Join(lines, "")), true, nil
	}
	return data, false, nil
}
