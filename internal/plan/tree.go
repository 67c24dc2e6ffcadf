package plan

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/Iron-Ham/conductor/internal/errors"
)

// Tree is a parsed plan document. Root is the track.
type Tree struct {
	Root *Item

	lines []string
	index map[string]*Item
}

// Item returns the item with the given id.
func (t *Tree) Item(id string) (*Item, bool) {
	it, ok := t.index[id]
	return it, ok
}

// Lookup finds an item by id or, failing that, by a case-insensitive
// title match. A title shared by several items is ambiguous.
func (t *Tree) Lookup(ref string) (*Item, error) {
	if it, ok := t.index[ref]; ok {
		return it, nil
	}
	var found []*Item
	t.Root.Walk(func(it *Item) bool {
		if strings.EqualFold(it.Title, strings.TrimSpace(ref)) {
			found = append(found, it)
		}
		return true
	})
	switch len(found) {
	case 0:
		return nil, notFound(ref)
	case 1:
		return found[0], nil
	}
	ids := make([]string, len(found))
	for i, it := range found {
		ids[i] = it.ID
	}
	return nil, errors.NewPlanError(
		fmt.Sprintf("title %q matches %s; use an id", ref, strings.Join(ids, ", ")),
		errors.ErrInvalidInput,
	).WithItem(ref)
}

// Items returns every item, track first, in document order.
func (t *Tree) Items() []*Item {
	return append([]*Item{t.Root}, t.Root.Descendants()...)
}

// Phases returns the track's phases in order.
func (t *Tree) Phases() []*Item {
	return t.Root.Children
}

// Render writes the document back out. Lines of items that were not
// mutated are emitted exactly as they were read.
func (t *Tree) Render() []byte {
	dirty := t.dirtyLines()
	var buf bytes.Buffer
	for i, raw := range t.lines {
		if it, ok := dirty[i]; ok {
			text, _ := it.line.rebuild(it)
			buf.WriteString(text)
			continue
		}
		buf.WriteString(raw)
	}
	return buf.Bytes()
}

// Dirty reports whether any item was mutated since the tree was parsed or
// last flushed.
func (t *Tree) Dirty() bool {
	return len(t.dirtyLines()) > 0
}

// flush folds mutated lines into the stored document so later renders
// treat them as original text.
func (t *Tree) flush() {
	for i, it := range t.dirtyLines() {
		text, brackets := it.line.rebuild(it)
		t.lines[i] = text
		it.line.brackets = brackets
		if it.line.status != it.Status {
			it.line.marker = it.Status.Marker()
			it.line.status = it.Status
		}
		it.line.dirty = false
	}
}

func (t *Tree) dirtyLines() map[int]*Item {
	dirty := make(map[int]*Item)
	t.Root.Walk(func(it *Item) bool {
		if it.line != nil && it.line.dirty {
			dirty[it.line.index] = it
		}
		return true
	})
	return dirty
}

// Clone returns a deep copy of the tree.
func (t *Tree) Clone() *Tree {
	c := &Tree{
		lines: append([]string(nil), t.lines...),
		index: make(map[string]*Item, len(t.index)),
	}
	c.Root = cloneItem(t.Root, nil, c.index)
	return c
}

func cloneItem(it, parent *Item, index map[string]*Item) *Item {
	cp := *it
	cp.parent = parent
	cp.CommitRefs = append([]string(nil), it.CommitRefs...)
	if it.line != nil {
		l := *it.line
		l.brackets = append([]bracket(nil), it.line.brackets...)
		cp.line = &l
	}
	cp.Children = make([]*Item, 0, len(it.Children))
	for _, child := range it.Children {
		cp.Children = append(cp.Children, cloneItem(child, &cp, index))
	}
	index[cp.ID] = &cp
	return &cp
}

// rebuild regenerates an item's line from its current state and returns
// the new text with the bracket list it was built from.
func (l *itemLine) rebuild(it *Item) (string, []bracket) {
	marker := l.marker
	if it.Status != l.status {
		marker = it.Status.Marker()
	}

	refs := bracket{sep: " ", text: strings.Join(it.CommitRefs, ", "), role: roleCommits}
	var out []bracket
	wroteRefs, wroteCheckpoint := false, false
	for _, br := range l.brackets {
		switch br.role {
		case roleCommits:
			if wroteRefs {
				continue
			}
			wroteRefs = true
			if len(it.CommitRefs) > 0 {
				refs.sep = br.sep
				out = append(out, refs)
			}
		case roleCheckpoint:
			wroteCheckpoint = true
			if !wroteRefs && len(it.CommitRefs) > 0 {
				wroteRefs = true
				out = append(out, refs)
			}
			if it.CheckpointRef != "" {
				out = append(out, bracket{sep: br.sep, text: "checkpoint: " + it.CheckpointRef, role: roleCheckpoint})
			}
		default:
			out = append(out, br)
		}
	}
	if !wroteRefs && len(it.CommitRefs) > 0 {
		out = append(out, refs)
	}
	if !wroteCheckpoint && it.CheckpointRef != "" {
		out = append(out, bracket{sep: " ", text: "checkpoint: " + it.CheckpointRef, role: roleCheckpoint})
	}

	var b strings.Builder
	b.WriteString(l.lead)
	b.WriteByte('[')
	b.WriteByte(marker)
	b.WriteByte(']')
	b.WriteString(l.head)
	for _, br := range out {
		b.WriteString(br.sep)
		b.WriteByte('[')
		b.WriteString(br.text)
		b.WriteByte(']')
	}
	b.WriteString(l.tail)
	return b.String(), out
}

// -----------------------------------------------------------------------------
// Mutations
// -----------------------------------------------------------------------------

// SetStatus changes an item's status. It fails with
// errors.ErrInvalidTransition when the change would leave a complete
// parent above an open child, or when the item is blocked.
func (t *Tree) SetStatus(id string, status Status) error {
	it, err := t.lookupID(id)
	if err != nil {
		return err
	}
	if !status.Valid() {
		return errors.NewPlanError(fmt.Sprintf("unknown status %q", status), errors.ErrInvalidInput).WithItem(id)
	}
	if it.Status == status {
		return nil
	}
	if it.Status == StatusBlocked {
		return invalidTransition(it, "item is blocked; unblock it before changing its status")
	}
	if err := checkTransition(it, status); err != nil {
		return err
	}
	it.setStatus(status)
	return nil
}

// Unblock clears a blocked item to pending or in_progress.
func (t *Tree) Unblock(id string, status Status) error {
	it, err := t.lookupID(id)
	if err != nil {
		return err
	}
	if it.Status != StatusBlocked {
		return invalidTransition(it, fmt.Sprintf("item is %s, not blocked", it.Status))
	}
	if !status.open() {
		return invalidTransition(it, fmt.Sprintf("a blocked item can only return to pending or in_progress, not %s", status))
	}
	if err := checkTransition(it, status); err != nil {
		return err
	}
	it.setStatus(status)
	return nil
}

func checkTransition(it *Item, status Status) error {
	if status == StatusComplete {
		for _, child := range it.Children {
			if child.Status.open() {
				return invalidTransition(it, fmt.Sprintf("child %s is %s", child.ID, child.Status))
			}
		}
	}
	if status.open() && it.parent != nil && it.parent.Status == StatusComplete {
		return invalidTransition(it, fmt.Sprintf("parent %s is complete", it.parent.ID))
	}
	return nil
}

// AddCommit appends sha to an item's commit refs. It reports whether the
// sha was added; a sha already present is left alone.
func (t *Tree) AddCommit(id, sha string) (bool, error) {
	it, err := t.lookupID(id)
	if err != nil {
		return false, err
	}
	if !IsSHA(sha) {
		return false, errors.NewPlanError(fmt.Sprintf("%q is not a commit sha", sha), errors.ErrInvalidInput).WithItem(id)
	}
	if it.HasCommit(sha) {
		return false, nil
	}
	it.CommitRefs = append(it.CommitRefs, sha)
	it.touch()
	return true, nil
}

// RemoveCommit drops sha from an item's commit refs and reports whether it
// was present.
func (t *Tree) RemoveCommit(id, sha string) (bool, error) {
	it, err := t.lookupID(id)
	if err != nil {
		return false, err
	}
	i := indexOfSHA(it.CommitRefs, sha)
	if i < 0 {
		return false, nil
	}
	it.CommitRefs = append(it.CommitRefs[:i:i], it.CommitRefs[i+1:]...)
	it.touch()
	return true, nil
}

// SetCheckpoint records the checkpoint commit of a phase. An empty sha
// clears it.
func (t *Tree) SetCheckpoint(phaseID, sha string) error {
	it, err := t.lookupID(phaseID)
	if err != nil {
		return err
	}
	if it.Kind != KindPhase {
		return errors.NewPlanError(fmt.Sprintf("%s is a %s; only phases carry checkpoints", it.ID, it.Kind), errors.ErrInvalidInput).WithItem(phaseID)
	}
	if sha != "" && !IsSHA(sha) {
		return errors.NewPlanError(fmt.Sprintf("%q is not a commit sha", sha), errors.ErrInvalidInput).WithItem(phaseID)
	}
	if it.CheckpointRef == sha {
		return nil
	}
	it.CheckpointRef = sha
	it.touch()
	return nil
}

// Reset returns an item to pending after the work it recorded was undone
// and reopens any complete ancestor. Blocked items stay blocked.
func (t *Tree) Reset(id string) error {
	it, err := t.lookupID(id)
	if err != nil {
		return err
	}
	if it.Status != StatusBlocked {
		it.setStatus(StatusPending)
	}
	for p := it.parent; p != nil; p = p.parent {
		if p.Status != StatusComplete {
			continue
		}
		reopened := StatusPending
		for _, child := range p.Children {
			if child.Status == StatusInProgress || child.Status == StatusComplete {
				reopened = StatusInProgress
				break
			}
		}
		p.setStatus(reopened)
	}
	return nil
}

// Violations lists complete items that still have open children. Parsed
// documents may carry such inconsistencies; mutations never add one.
func (t *Tree) Violations() []string {
	var out []string
	t.Root.Walk(func(it *Item) bool {
		if it.Status != StatusComplete {
			return true
		}
		for _, child := range it.Children {
			if child.Status.open() {
				out = append(out, fmt.Sprintf("%s is complete but %s is %s", it.ID, child.ID, child.Status))
			}
		}
		return true
	})
	return out
}

func (t *Tree) lookupID(id string) (*Item, error) {
	it, ok := t.index[id]
	if !ok {
		return nil, notFound(id)
	}
	return it, nil
}

func notFound(id string) error {
	return errors.NewPlanError(fmt.Sprintf("no work item %q", id), errors.ErrItemNotFound).WithItem(id)
}

func invalidTransition(it *Item, reason string) error {
	return errors.NewPlanError(reason, errors.ErrInvalidTransition).WithItem(it.ID)
}
