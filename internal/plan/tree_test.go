package plan

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"testing/quick"

	"github.com/Iron-Ham/conductor/internal/errors"
)

const transitionDoc = `## [~] Phase 1: A
- [x] Task: done
- [ ] Task: open
    - [ ] sub
## [x] Phase 2: B
- [x] Task: closed
## [ ] Phase 3: C
- [!] Task: stuck
`

func TestSetStatus(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		status  Status
		wantErr error
	}{
		{"complete leaf", "p1.t2.s1", StatusComplete, nil},
		{"complete parent with open child", "p1.t2", StatusComplete, errors.ErrInvalidTransition},
		{"complete phase with open task", "p1", StatusComplete, errors.ErrInvalidTransition},
		{"reopen child of complete parent", "p2.t1", StatusPending, errors.ErrInvalidTransition},
		{"start child of complete parent", "p2.t1", StatusInProgress, errors.ErrInvalidTransition},
		{"reopen complete phase", "p2", StatusInProgress, nil},
		{"change blocked item", "p3.t1", StatusComplete, errors.ErrInvalidTransition},
		{"complete phase with blocked child", "p3", StatusComplete, nil},
		{"block a task", "p1.t1", StatusBlocked, nil},
		{"same status", "p1.t1", StatusComplete, nil},
		{"unknown item", "p9", StatusPending, errors.ErrItemNotFound},
		{"unknown status", "p1", Status("done"), errors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := mustParse(t, transitionDoc)
			before := string(tree.Render())

			err := tree.SetStatus(tt.id, tt.status)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("SetStatus() error = %v", err)
				}
				it, _ := tree.Item(tt.id)
				if it.Status != tt.status {
					t.Errorf("status = %s, want %s", it.Status, tt.status)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("SetStatus() = %v, want %v", err, tt.wantErr)
			}
			if got := string(tree.Render()); got != before {
				t.Error("failed SetStatus changed the tree")
			}
		})
	}
}

func TestUnblock(t *testing.T) {
	tree := mustParse(t, transitionDoc)

	if err := tree.Unblock("p1.t1", StatusPending); !errors.Is(err, errors.ErrInvalidTransition) {
		t.Errorf("Unblock(not blocked) = %v, want invalid transition", err)
	}
	if err := tree.Unblock("p3.t1", StatusComplete); !errors.Is(err, errors.ErrInvalidTransition) {
		t.Errorf("Unblock(to complete) = %v, want invalid transition", err)
	}
	if err := tree.Unblock("p3.t1", StatusInProgress); err != nil {
		t.Fatalf("Unblock() error = %v", err)
	}
	if it, _ := tree.Item("p3.t1"); it.Status != StatusInProgress {
		t.Errorf("status = %s, want in_progress", it.Status)
	}
}

func TestAddCommit_Idempotent(t *testing.T) {
	tree := mustParse(t, sampleDoc)

	tests := []struct {
		sha   string
		added bool
	}{
		{"a1b2c3d", false},
		{"a1b2c3d4e5f60718293a4b5c6d7e8f9012345678", false},
		{"A1B2C3D", false},
		{"0000000", true},
		{"0000000", false},
	}
	for _, tt := range tests {
		added, err := tree.AddCommit("p1.t1", tt.sha)
		if err != nil {
			t.Fatalf("AddCommit(%s) error = %v", tt.sha, err)
		}
		if added != tt.added {
			t.Errorf("AddCommit(%s) added = %v, want %v", tt.sha, added, tt.added)
		}
	}
	it, _ := tree.Item("p1.t1")
	if len(it.CommitRefs) != 2 {
		t.Errorf("CommitRefs = %v, want two entries", it.CommitRefs)
	}

	if _, err := tree.AddCommit("p1.t1", "not-a-sha"); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("AddCommit(invalid) = %v, want invalid input", err)
	}
}

func TestReset_ReopensAncestors(t *testing.T) {
	tree := mustParse(t, sampleDoc)

	if err := tree.Reset("p1.t2"); err != nil {
		t.Fatal(err)
	}
	p1, _ := tree.Item("p1")
	if p1.Status != StatusInProgress {
		t.Errorf("p1 = %s, want in_progress (p1.t1 is still complete)", p1.Status)
	}

	if err := tree.Reset("p1.t1"); err != nil {
		t.Fatal(err)
	}
	if p1.Status != StatusInProgress {
		t.Errorf("p1 = %s, want unchanged in_progress", p1.Status)
	}
	if v := tree.Violations(); len(v) != 0 {
		t.Errorf("Violations() = %v", v)
	}
}

func TestReset_KeepsBlocked(t *testing.T) {
	tree := mustParse(t, transitionDoc)
	if err := tree.Reset("p3.t1"); err != nil {
		t.Fatal(err)
	}
	if it, _ := tree.Item("p3.t1"); it.Status != StatusBlocked {
		t.Errorf("status = %s, want blocked", it.Status)
	}
}

func TestLookup(t *testing.T) {
	tree := mustParse(t, sampleDoc)

	it, err := tree.Lookup("seed DATA")
	if err != nil || it.ID != "p1.t2" {
		t.Errorf("Lookup(title) = %v, %v", it, err)
	}
	it, err = tree.Lookup("p2")
	if err != nil || it.Title != "Handlers" {
		t.Errorf("Lookup(id) = %v, %v", it, err)
	}
	if _, err := tree.Lookup("nothing"); !errors.Is(err, errors.ErrItemNotFound) {
		t.Errorf("Lookup(missing) = %v", err)
	}
}

func TestViolations_FromDocument(t *testing.T) {
	tree := mustParse(t, "## [x] Phase 1: A\n- [ ] Task: open\n")
	v := tree.Violations()
	if len(v) != 1 || !strings.Contains(v[0], "p1.t1") {
		t.Errorf("Violations() = %v", v)
	}
}

// randomTreeDoc builds a document of pending items with the given shape.
func randomTreeDoc(r *rand.Rand) string {
	var b strings.Builder
	b.WriteString("# [ ] Track: Random (rnd)\n")
	for p := 1; p <= 1+r.Intn(3); p++ {
		fmt.Fprintf(&b, "## [ ] Phase %d: P\n", p)
		for task := 0; task < r.Intn(4); task++ {
			fmt.Fprintf(&b, "- [ ] Task: T%d\n", task)
			for s := 0; s < r.Intn(3); s++ {
				fmt.Fprintf(&b, "    - [ ] S%d\n", s)
			}
		}
	}
	return b.String()
}

func TestSetStatus_InvariantProperty(t *testing.T) {
	statuses := []Status{StatusPending, StatusInProgress, StatusComplete, StatusBlocked}

	prop := func(seed int64) bool {
		r := rand.New(rand.NewSource(seed))
		tree, err := Parse([]byte(randomTreeDoc(r)), "rnd")
		if err != nil {
			t.Logf("Parse() error = %v", err)
			return false
		}
		items := tree.Items()
		for step := 0; step < 60; step++ {
			it := items[r.Intn(len(items))]
			status := statuses[r.Intn(len(statuses))]
			switch r.Intn(5) {
			case 0:
				_ = tree.Unblock(it.ID, status)
			case 1:
				_ = tree.Reset(it.ID)
			default:
				_ = tree.SetStatus(it.ID, status)
			}
			if v := tree.Violations(); len(v) > 0 {
				t.Logf("seed %d step %d: %v", seed, step, v)
				return false
			}
		}
		return true
	}
	cfg := &quick.Config{MaxCount: 200, Rand: rand.New(rand.NewSource(42))}
	if err := quick.Check(prop, cfg); err != nil {
		t.Error(err)
	}
}
