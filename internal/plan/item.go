package plan

import (
	"fmt"
	"strings"
)

// Status is the progress state of a work item.
type Status string

// Work item statuses
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
	StatusBlocked    Status = "blocked"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusComplete, StatusBlocked:
		return true
	}
	return false
}

// Marker returns the character written between the brackets of a status
// marker.
func (s Status) Marker() byte {
	switch s {
	case StatusInProgress:
		return '~'
	case StatusComplete:
		return 'x'
	case StatusBlocked:
		return '!'
	default:
		return ' '
	}
}

// open reports whether an item in this status still has work outstanding.
func (s Status) open() bool {
	return s == StatusPending || s == StatusInProgress
}

// ParseStatus converts a user-supplied status name.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q (want pending, in_progress, complete or blocked)", s)
	}
	return st, nil
}

func statusFromMarker(c byte) (Status, bool) {
	switch c {
	case ' ':
		return StatusPending, true
	case '~':
		return StatusInProgress, true
	case 'x', 'X':
		return StatusComplete, true
	case '!':
		return StatusBlocked, true
	}
	return "", false
}

// Kind is the level of a work item in the tree.
type Kind string

// Work item kinds
const (
	KindTrack   Kind = "track"
	KindPhase   Kind = "phase"
	KindTask    Kind = "task"
	KindSubtask Kind = "subtask"
)

// Item is a node of the work item tree.
type Item struct {
	ID     string
	Title  string
	Kind   Kind
	Status Status
	// CommitRefs are the commits produced while completing the item, in
	// the order they were recorded.
	CommitRefs []string
	// CheckpointRef is the checkpoint commit of a completed phase.
	CheckpointRef string
	Children      []*Item

	parent *Item
	line   *itemLine
}

// Parent returns the enclosing item, or nil for the track.
func (it *Item) Parent() *Item {
	return it.parent
}

// Line returns the 1-based line of the item in the plan document, or 0 if
// the item has no line of its own.
func (it *Item) Line() int {
	if it.line == nil {
		return 0
	}
	return it.line.index + 1
}

// HasCommit reports whether sha is among the item's commit refs. Short and
// full forms of the same sha match.
func (it *Item) HasCommit(sha string) bool {
	return indexOfSHA(it.CommitRefs, sha) >= 0
}

// Walk calls fn for it and every descendant in document order. Returning
// false from fn skips the item's children.
func (it *Item) Walk(fn func(*Item) bool) {
	if !fn(it) {
		return
	}
	for _, child := range it.Children {
		child.Walk(fn)
	}
}

// Descendants returns every item below it in document order.
func (it *Item) Descendants() []*Item {
	var out []*Item
	for _, child := range it.Children {
		child.Walk(func(d *Item) bool {
			out = append(out, d)
			return true
		})
	}
	return out
}

func (it *Item) setStatus(s Status) {
	if it.Status == s {
		return
	}
	it.Status = s
	it.touch()
}

func (it *Item) touch() {
	if it.line != nil {
		it.line.dirty = true
	}
}

// SameSHA reports whether a and b name the same commit, treating an
// abbreviated sha as equal to the full sha it prefixes.
func SameSHA(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if len(a) > len(b) {
		a, b = b, a
	}
	return len(a) >= minSHALen && strings.HasPrefix(b, a)
}

func indexOfSHA(refs []string, sha string) int {
	for i, ref := range refs {
		if SameSHA(ref, sha) {
			return i
		}
	}
	return -1
}
