package plan

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Iron-Ham/conductor/internal/errors"
)

const (
	minSHALen = 7
	maxSHALen = 40
)

var (
	headingRe    = regexp.MustCompile(`^(#{1,6})[ \t]+`)
	listRe       = regexp.MustCompile(`^([ \t]*)[-*+][ \t]+`)
	shaRe        = regexp.MustCompile(`^[0-9a-fA-F]{7,40}$`)
	checkpointRe = regexp.MustCompile(`^checkpoint:[ \t]*([0-9a-fA-F]{7,40})$`)
	phasePrefix  = regexp.MustCompile(`(?i)^phase[ \t]+\d+[ \t]*[:.\-]?[ \t]*`)
	trackIDRe    = regexp.MustCompile(`[ \t]*\(([A-Za-z0-9][A-Za-z0-9_.\-]*)\)$`)
)

type bracketRole int

const (
	roleOpaque bracketRole = iota
	roleCommits
	roleCheckpoint
)

// bracket is one trailing [..] group of an item line. sep is the
// whitespace that preceded it.
type bracket struct {
	sep  string
	text string
	role bracketRole
}

// itemLine keeps the pieces of an item's source line so it can be
// regenerated without disturbing the text around the parts that changed.
type itemLine struct {
	index    int
	lead     string
	marker   byte
	status   Status
	head     string
	brackets []bracket
	tail     string
	dirty    bool
}

type parser struct {
	tree     *Tree
	phase    *Item
	task     *Item
	baseInd  int
	fence    string
	trackSet bool
}

// Parse builds a Tree from a plan document. trackID names the track when
// the track heading does not carry a parenthesised id. It fails with
// errors.ErrMalformedPlan when an item line has a missing, unknown or
// ambiguous status marker.
func Parse(data []byte, trackID string) (*Tree, error) {
	t := &Tree{
		lines: splitKeepEOL(string(data)),
		index: make(map[string]*Item),
	}
	t.Root = &Item{ID: trackID, Kind: KindTrack, Status: StatusPending}

	p := &parser{tree: t}
	for i, raw := range t.lines {
		if err := p.line(i, raw); err != nil {
			return nil, err
		}
	}
	t.Root.Walk(func(it *Item) bool {
		t.index[it.ID] = it
		return true
	})
	return t, nil
}

func (p *parser) line(i int, raw string) error {
	body := strings.TrimRight(raw, "\r\n")
	eol := raw[len(body):]
	trimmed := strings.TrimLeft(body, " \t")

	if fence := fenceOf(trimmed); fence != "" {
		switch {
		case p.fence == "":
			p.fence = fence
		case fence == p.fence:
			p.fence = ""
		}
		return nil
	}
	if p.fence != "" {
		return nil
	}

	if loc := headingRe.FindStringSubmatchIndex(body); loc != nil {
		level := loc[3] - loc[2]
		rest := body[loc[1]:]
		switch level {
		case 1:
			return p.trackHeading(i, body, eol, loc[1], rest)
		case 2:
			return p.phaseHeading(i, body, eol, loc[1], rest)
		}
		return nil
	}

	if p.phase == nil {
		return nil
	}
	loc := listRe.FindStringSubmatchIndex(body)
	if loc == nil {
		return nil
	}
	indent := indentWidth(body[loc[2]:loc[3]])
	rest := body[loc[1]:]
	if !hasMarker(rest) {
		return malformed(i+1, "list item in a phase has no status marker")
	}

	if p.task == nil || indent <= p.baseInd {
		if p.task == nil {
			p.baseInd = indent
		}
		line, err := parseItemLine(i, body, eol, loc[1])
		if err != nil {
			return err
		}
		task := &Item{
			ID:     fmt.Sprintf("%s.t%d", p.phase.ID, len(p.phase.Children)+1),
			Kind:   KindTask,
			parent: p.phase,
		}
		attach(task, line)
		p.phase.Children = append(p.phase.Children, task)
		p.task = task
		return nil
	}

	line, err := parseItemLine(i, body, eol, loc[1])
	if err != nil {
		return err
	}
	sub := &Item{
		ID:     fmt.Sprintf("%s.s%d", p.task.ID, len(p.task.Children)+1),
		Kind:   KindSubtask,
		parent: p.task,
	}
	attach(sub, line)
	p.task.Children = append(p.task.Children, sub)
	return nil
}

func (p *parser) trackHeading(i int, body, eol string, leadLen int, rest string) error {
	if !hasMarker(rest) {
		// unmarked title line
		return nil
	}
	if p.trackSet {
		return malformed(i+1, "more than one track heading")
	}
	line, err := parseItemLine(i, body, eol, leadLen)
	if err != nil {
		return err
	}
	p.trackSet = true
	root := p.tree.Root
	attach(root, line)
	if id := trackIDFrom(line.head); id != "" {
		root.ID = id
	}
	return nil
}

func (p *parser) phaseHeading(i int, body, eol string, leadLen int, rest string) error {
	if !hasMarker(rest) {
		if phasePrefix.MatchString(rest) {
			return malformed(i+1, "phase heading has no status marker")
		}
		// any other second-level heading starts a prose section
		p.phase, p.task = nil, nil
		return nil
	}
	line, err := parseItemLine(i, body, eol, leadLen)
	if err != nil {
		return err
	}
	root := p.tree.Root
	phase := &Item{
		ID:     fmt.Sprintf("p%d", len(root.Children)+1),
		Kind:   KindPhase,
		parent: root,
	}
	attach(phase, line)
	root.Children = append(root.Children, phase)
	p.phase, p.task = phase, nil
	return nil
}

// parseItemLine splits an item line whose marker starts at body[leadLen].
func parseItemLine(i int, body, eol string, leadLen int) (*itemLine, error) {
	rest := body[leadLen:]
	marker := rest[1]
	status, ok := statusFromMarker(marker)
	if !ok {
		return nil, malformed(i+1, fmt.Sprintf("unknown status marker [%c]", marker))
	}
	after := rest[3:]
	if hasMarker(strings.TrimLeft(after, " \t")) {
		return nil, malformed(i+1, "item has more than one status marker")
	}

	content := strings.TrimRight(after, " \t")
	head, brackets := splitBrackets(content)
	return &itemLine{
		index:    i,
		lead:     body[:leadLen],
		marker:   marker,
		status:   status,
		head:     head,
		brackets: brackets,
		tail:     after[len(content):] + eol,
	}, nil
}

// attach copies the parsed line state onto the item and classifies the
// line's brackets for the item's kind.
func attach(it *Item, line *itemLine) {
	it.line = line
	it.Status = line.status
	it.Title = titleOf(it.Kind, line.head)
	for j := range line.brackets {
		br := &line.brackets[j]
		switch {
		case isCommitList(br.text):
			br.role = roleCommits
			for _, sha := range strings.Split(br.text, ",") {
				sha = strings.TrimSpace(sha)
				if indexOfSHA(it.CommitRefs, sha) < 0 {
					it.CommitRefs = append(it.CommitRefs, sha)
				}
			}
		case it.Kind == KindPhase && checkpointRe.MatchString(br.text):
			br.role = roleCheckpoint
			it.CheckpointRef = checkpointRe.FindStringSubmatch(br.text)[1]
		}
	}
}

func splitBrackets(content string) (string, []bracket) {
	var out []bracket
	for strings.HasSuffix(content, "]") {
		open := strings.LastIndexByte(content, '[')
		if open < 0 {
			break
		}
		inner := content[open+1 : len(content)-1]
		if strings.ContainsRune(inner, ']') {
			break
		}
		before := content[:open]
		trimmed := strings.TrimRight(before, " \t")
		if trimmed == before && open > 0 {
			// glued to the preceding word, part of the title
			break
		}
		out = append([]bracket{{sep: before[len(trimmed):], text: inner}}, out...)
		content = trimmed
	}
	return content, out
}

func isCommitList(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	for _, f := range strings.Split(s, ",") {
		if !shaRe.MatchString(strings.TrimSpace(f)) {
			return false
		}
	}
	return true
}

// IsSHA reports whether s looks like an abbreviated or full commit sha.
func IsSHA(s string) bool {
	return shaRe.MatchString(s)
}

func hasMarker(s string) bool {
	return len(s) >= 3 && s[0] == '[' && s[2] == ']' &&
		(len(s) == 3 || s[3] == ' ' || s[3] == '\t')
}

func titleOf(kind Kind, head string) string {
	t := strings.TrimSpace(head)
	if len(t) > 4 && strings.HasPrefix(t, "**") && strings.HasSuffix(t, "**") {
		t = strings.TrimSpace(t[2 : len(t)-2])
	}
	switch kind {
	case KindTrack:
		if loc := trackIDRe.FindStringIndex(t); loc != nil {
			t = t[:loc[0]]
		}
		t = trimPrefixFold(t, "Track:")
	case KindPhase:
		t = phasePrefix.ReplaceAllString(t, "")
	case KindTask, KindSubtask:
		t = trimPrefixFold(t, "Task:")
	}
	return strings.TrimSpace(t)
}

func trackIDFrom(head string) string {
	m := trackIDRe.FindStringSubmatch(strings.TrimSpace(head))
	if m == nil {
		return ""
	}
	return m[1]
}

func trimPrefixFold(s, prefix string) string {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):]
	}
	return s
}

func fenceOf(trimmed string) string {
	for _, f := range []string{"```", "~~~"} {
		if strings.HasPrefix(trimmed, f) {
			return f
		}
	}
	return ""
}

func indentWidth(ws string) int {
	n := 0
	for _, r := range ws {
		if r == '\t' {
			n += 4
		} else {
			n++
		}
	}
	return n
}

// splitKeepEOL splits s into lines that keep their line endings, so
// joining them reproduces s exactly.
func splitKeepEOL(s string) []string {
	lines := strings.SplitAfter(s, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}

func malformed(line int, msg string) error {
	return errors.NewPlanError(msg, errors.ErrMalformedPlan).WithLine(line)
}
