package view

import (
	"regexp"
	"strings"
	"testing"

	"github.com/Iron-Ham/conductor/internal/correlate"
	"github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/fingerprint"
	"github.com/Iron-Ham/conductor/internal/plan"
	"github.com/Iron-Ham/conductor/internal/revert"
	"github.com/Iron-Ham/conductor/internal/worktree"
)

const doc = `# [~] Track: Add auth (auth)

## [x] Phase 1: Schema [checkpoint: 9f8e7d6]
- [x] Task: Create users table [a1b2c3d]
    - [x] Write migration

## [ ] Phase 2: Handlers
- [~] Task: Login endpoint
- [!] Task: Logout endpoint
`

const meta = `{
  "track_id": "auth",
  "items": {
    "p1.t1": {"id": "p1.t1", "kind": "task", "status": "complete", "commits": [
      {"sha": "a1b2c3d", "kind": "implementation", "message": "feat(auth): create users table"}
    ]}
  }
}`

var ansiRe = regexp.MustCompile("\x1b\\[[0-9;]*m")

func assertContains(t *testing.T, got string, want ...string) {
	t.Helper()
	got = ansiRe.ReplaceAllString(got, "")
	for _, w := range want {
		if !strings.Contains(got, w) {
			t.Errorf("output missing %q:\n%s", w, got)
		}
	}
}

func TestTreeView(t *testing.T) {
	tree, err := plan.Parse([]byte(doc), "auth")
	if err != nil {
		t.Fatal(err)
	}
	m, err := plan.ParseMetadata([]byte(meta), "auth")
	if err != nil {
		t.Fatal(err)
	}

	v := &TreeView{Tree: tree, Meta: m, ShowCommits: true}
	out := v.Render(80)
	assertContains(t, out,
		"Add auth (auth)",
		"p1.t1", "Create users table",
		"checkpoint 9f8e7d6",
		"a1b2c3d", "implementation", "feat(auth): create users table",
		"[!]",
		"1/3 tasks complete, 1 in progress, 1 blocked",
	)

	compact := (&TreeView{Tree: tree}).Render(80)
	assertContains(t, compact, "(1 commits)")
}

func TestTracksView(t *testing.T) {
	empty := (&TracksView{}).Render(80)
	assertContains(t, empty, "No tracks")

	out := (&TracksView{Tracks: []plan.TrackEntry{{ID: "auth", Title: "Add auth", Status: plan.StatusInProgress}}}).Render(80)
	assertContains(t, out, "[~]", "Add auth", "auth")
}

func TestPlanView(t *testing.T) {
	p := &revert.Plan{
		TrackID:    "auth",
		TargetID:   "p1",
		TargetKind: plan.KindPhase,
		Entries: []revert.Entry{
			{SHA: strings.Repeat("b", 40), Subject: "Merge branch 'x'", Kind: plan.CommitMerge, Source: revert.SourceRef, Mainline: 1},
			{SHA: strings.Repeat("a", 40), Subject: "feat: schema", Kind: plan.CommitImplementation, Source: revert.SourceRef},
			{SHA: strings.Repeat("c", 40), Subject: "feat: schema", Kind: plan.CommitCherryPickDuplicate, Source: revert.SourceRef, DuplicateOf: strings.Repeat("a", 40), Skip: true},
		},
		Warnings: []revert.Warning{{Kind: revert.WarnMerge, SHA: strings.Repeat("b", 40), Message: "merge commit reverted against parent 1"}},
		Ghosts:   []correlate.Ghost{{ItemID: "p1.t1", SHA: "dddddddd", Message: "feat: gone", Candidates: []string{strings.Repeat("e", 40)}}},
	}
	out := (&PlanView{Plan: p}).Render(100)
	assertContains(t, out,
		"Revert plan: phase p1 in track auth",
		" 1. bbbbbbb", "merge, -m 1",
		" 2. aaaaaaa",
		"duplicate of aaaaaaa", "skipped",
		"Needs confirmation", "merge commit reverted against parent 1",
		"Unresolved commits", "ddddddd on p1.t1", "candidates: eeeeeee",
	)

	stats := map[string][]fingerprint.FileStat{
		strings.Repeat("a", 40): {{Path: "db/schema.sql", Added: 12, Deleted: 3}},
	}
	out = (&PlanView{Plan: p, Stats: stats}).Render(100)
	assertContains(t, out, "db/schema.sql +12 -3")
}

func TestResolutionView(t *testing.T) {
	r := &correlate.Resolution{
		Records: []correlate.Record{
			{SHA: strings.Repeat("a", 40), Subject: "feat: one", ItemIDs: []string{"p1.t1"}, Confidence: correlate.ConfidenceExact},
			{SHA: strings.Repeat("b", 40), Subject: "feat: two", ItemIDs: []string{"p1.t2"}, Confidence: correlate.ConfidenceHigh, Parents: []string{"x", "y"}},
		},
		Ghosts: []correlate.Ghost{
			{ItemID: "p1.t2", SHA: "1234567", Replacement: strings.Repeat("b", 40), Confidence: correlate.ConfidenceHigh, Strategy: "message"},
			{ItemID: "p1.t3", SHA: "7654321"},
		},
	}
	out := (&ResolutionView{Resolution: r}).Render(100)
	assertContains(t, out, "Resolved 2 commits", "[merge]", "[high]", "1234567 -> bbbbbbb", "(message, high)", "7654321 on p1.t3")
}

func TestSessionView(t *testing.T) {
	assertContains(t, (&SessionView{}).Render(80), "No revert in progress")

	s := &revert.Session{
		ID:            "s-1",
		TrackID:       "auth",
		TargetID:      "p1",
		State:         revert.StateConflicted,
		Queue:         []revert.Step{{SHA: strings.Repeat("a", 40)}, {SHA: strings.Repeat("b", 40), Subject: "feat: two"}},
		Applied:       []string{strings.Repeat("a", 40)},
		Reverts:       []string{strings.Repeat("f", 40)},
		ConflictPaths: []string{"api.go"},
	}
	out := (&SessionView{Session: s}).Render(80)
	assertContains(t, out, "conflicted", "1/2 commits reverted", "aaaaaaa", "by fffffff", "bbbbbbb feat: two", "api.go", "revert --continue")
}

func TestWorkspacesView(t *testing.T) {
	assertContains(t, (&WorkspacesView{}).Render(80), "No workspaces")

	out := (&WorkspacesView{Workspaces: []*worktree.Workspace{
		{Owner: "agent-1", State: worktree.StateActive, Branch: "conductor/agent-1", Path: "/repo/.conductor/worktrees/agent-1"},
		{Owner: "agent-2", State: worktree.StateConflicted, Branch: "conductor/agent-2", ConflictPaths: []string{"api.go"}},
	}}).Render(120)
	assertContains(t, out, "OWNER", "agent-1", "active", "conductor/agent-1", "conflicted", "conflicts: api.go")
}

func TestRenderError(t *testing.T) {
	if RenderError("x", nil) != "" {
		t.Error("nil error rendered")
	}
	err := errors.NewWorkspaceError("branch already exists", errors.ErrBranchExists).
		WithBranch("feature/x").
		WithSuggestion("feature/x-2").
		WithRepoState(errors.RepoUnchanged)
	out := RenderError("create workspace for agent-1", err)
	assertContains(t, out, "create workspace for agent-1", "branch already exists", "unchanged", "feature/x-2")
}

func TestRenderDiff(t *testing.T) {
	diff := "diff --cc api.go\n@@@ -1,1 -1,1 +1,5 @@@\n++<<<<<<< HEAD\n +one\n++=======\n+ two\n++>>>>>>> theirs\n"
	out := RenderDiff(diff)
	if got := strings.Count(out, "\n"); got != 6 {
		t.Errorf("RenderDiff changed the line count: %d newlines", got)
	}
	assertContains(t, out, "<<<<<<< HEAD", "+one")

	for _, line := range []string{"++<<<<<<< HEAD", "<<<<<<< ours", "+ =======", "-->>>>>>> x"} {
		if !isConflictMarker(line) {
			t.Errorf("isConflictMarker(%q) = false", line)
		}
	}
	if isConflictMarker("+ordinary") {
		t.Error("ordinary line treated as a marker")
	}
}
