package plan

import (
	"fmt"
	"math/rand"
	"reflect"
	"strings"
	"testing"
	"testing/quick"

	"github.com/Iron-Ham/conductor/internal/errors"
)

const sampleDoc = `# [~] Track: Add auth (auth_20250101)

Some intro prose.
- not an item

## [x] Phase 1: Schema [checkpoint: 9f8e7d6]
- [x] Task: Create users table [a1b2c3d]
    - [x] Write migration
    - [x] Add index [see ADR-7]
- [x] Task: Seed data [b2c3d4e, c3d4e5f]

## [ ] Phase 2: Handlers
- [~] Task: Login endpoint
- [ ] Task: Logout endpoint

## Notes
- free form
`

func mustParse(t *testing.T, doc string) *Tree {
	t.Helper()
	tree, err := Parse([]byte(doc), "fallback")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return tree
}

func TestParse_Structure(t *testing.T) {
	tree := mustParse(t, sampleDoc)

	if tree.Root.ID != "auth_20250101" || tree.Root.Title != "Add auth" {
		t.Errorf("root = %q %q", tree.Root.ID, tree.Root.Title)
	}
	if tree.Root.Status != StatusInProgress {
		t.Errorf("root status = %s", tree.Root.Status)
	}
	if len(tree.Phases()) != 2 {
		t.Fatalf("got %d phases, want 2", len(tree.Phases()))
	}

	tests := []struct {
		id         string
		title      string
		kind       Kind
		status     Status
		refs       []string
		checkpoint string
		line       int
	}{
		{"p1", "Schema", KindPhase, StatusComplete, nil, "9f8e7d6", 6},
		{"p1.t1", "Create users table", KindTask, StatusComplete, []string{"a1b2c3d"}, "", 7},
		{"p1.t1.s1", "Write migration", KindSubtask, StatusComplete, nil, "", 8},
		{"p1.t1.s2", "Add index", KindSubtask, StatusComplete, nil, "", 9},
		{"p1.t2", "Seed data", KindTask, StatusComplete, []string{"b2c3d4e", "c3d4e5f"}, "", 10},
		{"p2", "Handlers", KindPhase, StatusPending, nil, "", 12},
		{"p2.t1", "Login endpoint", KindTask, StatusInProgress, nil, "", 13},
		{"p2.t2", "Logout endpoint", KindTask, StatusPending, nil, "", 14},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			it, ok := tree.Item(tt.id)
			if !ok {
				t.Fatalf("item %s not found", tt.id)
			}
			if it.Title != tt.title || it.Kind != tt.kind || it.Status != tt.status {
				t.Errorf("got %q %s %s", it.Title, it.Kind, it.Status)
			}
			if !reflect.DeepEqual(it.CommitRefs, tt.refs) {
				t.Errorf("CommitRefs = %v, want %v", it.CommitRefs, tt.refs)
			}
			if it.CheckpointRef != tt.checkpoint {
				t.Errorf("CheckpointRef = %q, want %q", it.CheckpointRef, tt.checkpoint)
			}
			if it.Line() != tt.line {
				t.Errorf("Line() = %d, want %d", it.Line(), tt.line)
			}
		})
	}

	if _, ok := tree.Item("p3.t1"); ok {
		t.Error("prose list item under Notes should not be parsed as a task")
	}
}

func TestParse_TrackWithoutHeading(t *testing.T) {
	tree := mustParse(t, "# Implementation Plan\n\n## [ ] Phase 1: Setup\n- [ ] Task: Init\n")
	if tree.Root.ID != "fallback" {
		t.Errorf("root id = %q, want fallback", tree.Root.ID)
	}
	if tree.Root.Line() != 0 {
		t.Errorf("root line = %d, want 0", tree.Root.Line())
	}
	if len(tree.Phases()) != 1 || len(tree.Phases()[0].Children) != 1 {
		t.Error("expected one phase with one task")
	}
}

func TestParse_CodeFence(t *testing.T) {
	doc := "## [ ] Phase 1: A\n```\n- not a task\n## not a phase\n```\n- [ ] Task: real\n"
	tree := mustParse(t, doc)
	if len(tree.Phases()) != 1 {
		t.Fatalf("got %d phases, want 1", len(tree.Phases()))
	}
	if n := len(tree.Phases()[0].Children); n != 1 {
		t.Errorf("got %d tasks, want 1", n)
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		line int
	}{
		{"task without marker", "## [ ] Phase 1: A\n- Task: no marker\n", 2},
		{"unknown marker", "# [~] Track: T\n\n## [?] Phase 1: A\n", 3},
		{"phase without marker", "## Phase 1: A\n", 1},
		{"two markers", "## [ ] Phase 1: A\n- [x] [ ] Task: double\n", 2},
		{"two track headings", "# [ ] Track: A\n# [ ] Track: B\n", 2},
		{"subtask without marker", "## [ ] Phase 1: A\n- [ ] Task: T\n    - sub\n", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), "x")
			if !errors.Is(err, errors.ErrMalformedPlan) {
				t.Fatalf("Parse() = %v, want malformed plan", err)
			}
			var pe *errors.PlanError
			if !errors.As(err, &pe) || pe.Line != tt.line {
				t.Errorf("error line = %v, want %d", err, tt.line)
			}
		})
	}
}

func TestRender_Unmodified(t *testing.T) {
	docs := []string{
		sampleDoc,
		"",
		"no trailing newline\n## [ ] Phase 1: A\n- [ ] Task: B",
		"## [x] Phase 1: A   \r\n- [x] Task: B [abcdef1,1234567]  \r\n",
		"\t- tabbed prose\n## [ ] Phase 1: A\n\t- [ ] Task: tabbed\n\t\t- [ ] sub\n",
	}
	for i, doc := range docs {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			got := string(mustParse(t, doc).Render())
			if got != doc {
				t.Errorf("Render() mismatch\n got: %q\nwant: %q", got, doc)
			}
		})
	}
}

func TestRender_MutatedLinesOnly(t *testing.T) {
	tree := mustParse(t, sampleDoc)

	if _, err := tree.AddCommit("p2.t1", "d4e5f6a"); err != nil {
		t.Fatal(err)
	}
	if err := tree.SetStatus("p2.t1", StatusComplete); err != nil {
		t.Fatal(err)
	}
	for _, sha := range []string{"b2c3d4e", "c3d4e5f"} {
		if _, err := tree.RemoveCommit("p1.t2", sha); err != nil {
			t.Fatal(err)
		}
	}
	if err := tree.SetCheckpoint("p1", ""); err != nil {
		t.Fatal(err)
	}
	if err := tree.SetCheckpoint("p2", "abcdef1"); err != nil {
		t.Fatal(err)
	}

	want := strings.NewReplacer(
		"- [~] Task: Login endpoint\n", "- [x] Task: Login endpoint [d4e5f6a]\n",
		"- [x] Task: Seed data [b2c3d4e, c3d4e5f]\n", "- [x] Task: Seed data\n",
		"## [x] Phase 1: Schema [checkpoint: 9f8e7d6]\n", "## [x] Phase 1: Schema\n",
		"## [ ] Phase 2: Handlers\n", "## [ ] Phase 2: Handlers [checkpoint: abcdef1]\n",
	).Replace(sampleDoc)

	if got := string(tree.Render()); got != want {
		t.Errorf("Render() mismatch\n got:\n%s\nwant:\n%s", got, want)
	}
}

func TestRender_CommitsBeforeCheckpoint(t *testing.T) {
	tree := mustParse(t, "## [x] Phase 1: A [checkpoint: 9f8e7d6] [note]\n- [x] Task: B\n")
	if _, err := tree.AddCommit("p1", "1234567"); err != nil {
		t.Fatal(err)
	}
	want := "## [x] Phase 1: A [1234567] [checkpoint: 9f8e7d6] [note]\n- [x] Task: B\n"
	if got := string(tree.Render()); got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

func TestRender_FlushKeepsOutputStable(t *testing.T) {
	tree := mustParse(t, sampleDoc)
	if err := tree.SetStatus("p2.t2", StatusInProgress); err != nil {
		t.Fatal(err)
	}
	first := string(tree.Render())
	tree.flush()
	if tree.Dirty() {
		t.Error("tree should be clean after flush")
	}
	if second := string(tree.Render()); second != first {
		t.Errorf("render changed after flush\n got: %q\nwant: %q", second, first)
	}
}

// randomDoc is a syntactically valid plan document.
type randomDoc string

func (randomDoc) Generate(r *rand.Rand, size int) reflect.Value {
	markers := []string{"[ ]", "[~]", "[x]", "[X]", "[!]"}
	tails := []string{"", "", " [a1b2c3d]", " [a1b2c3d, 0123456789]", " [see ADR-7]", " [x1]", "  [deadbeef] [note]"}
	eols := []string{"\n", "\n", "\n", "\r\n"}
	pick := func(s []string) string { return s[r.Intn(len(s))] }

	var b strings.Builder
	if r.Intn(2) == 0 {
		fmt.Fprintf(&b, "# %s Track: Random (t_%d)%s", pick(markers), r.Intn(100), pick(eols))
	}
	inPhase, hasTask := false, false
	for i := 0; i < size; i++ {
		switch r.Intn(7) {
		case 0:
			b.WriteString(pick(eols))
		case 1:
			fmt.Fprintf(&b, "Prose line %d  %s", i, pick(eols))
		case 2:
			cp := ""
			if r.Intn(3) == 0 {
				cp = " [checkpoint: 9f8e7d6]"
			}
			fmt.Fprintf(&b, "## %s Phase %d: P%d%s%s%s", pick(markers), i, i, pick(tails), cp, pick(eols))
			inPhase, hasTask = true, false
		case 3, 4:
			if inPhase {
				fmt.Fprintf(&b, "- %s Task: T%d%s%s", pick(markers), i, pick(tails), pick(eols))
				hasTask = true
			}
		case 5:
			if hasTask {
				fmt.Fprintf(&b, "    - %s Sub %d%s%s", pick(markers), i, pick(tails), pick(eols))
			}
		case 6:
			fmt.Fprintf(&b, "```%s- [?] fenced%s```%s", pick(eols), pick(eols), pick(eols))
		}
	}
	s := b.String()
	if r.Intn(4) == 0 {
		s = strings.TrimRight(s, "\r\n")
	}
	return reflect.ValueOf(randomDoc(s))
}

func TestRender_RoundTripProperty(t *testing.T) {
	prop := func(doc randomDoc) bool {
		tree, err := Parse([]byte(doc), "t")
		if err != nil {
			t.Logf("Parse(%q) error = %v", doc, err)
			return false
		}
		return string(tree.Render()) == string(doc)
	}
	cfg := &quick.Config{MaxCount: 300, Rand: rand.New(rand.NewSource(7))}
	if err := quick.Check(prop, cfg); err != nil {
		t.Error(err)
	}
}

func TestRender_ReparseMatchesMutations(t *testing.T) {
	tree := mustParse(t, sampleDoc)
	steps := []func() error{
		func() error { return tree.SetStatus("p2.t2", StatusBlocked) },
		func() error { _, err := tree.AddCommit("p2.t1", "0123456789abcdef0123456789abcdef01234567"); return err },
		func() error { _, err := tree.AddCommit("p1.t1.s1", "fedcba9"); return err },
		func() error { return tree.Reset("p1.t1") },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	again := mustParse(t, string(tree.Render()))
	for _, it := range tree.Items() {
		other, ok := again.Item(it.ID)
		if !ok {
			t.Fatalf("%s missing after reparse", it.ID)
		}
		if other.Status != it.Status || !reflect.DeepEqual(other.CommitRefs, it.CommitRefs) || other.CheckpointRef != it.CheckpointRef {
			t.Errorf("%s: reparsed %s %v %q, want %s %v %q", it.ID,
				other.Status, other.CommitRefs, other.CheckpointRef,
				it.Status, it.CommitRefs, it.CheckpointRef)
		}
	}
}
