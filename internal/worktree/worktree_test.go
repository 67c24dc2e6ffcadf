package worktree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/filelock"
)

// fakeGit is an in-memory repository shared by every fakeRepo opened on it.
// Worktree directories are created on disk so the Manager's filesystem
// checks see them.
type fakeGit struct {
	root      string
	branches  map[string]string
	current   string
	head      string
	dirty     map[string]bool
	conflicts map[string][]string
	merging   string
	merged    map[string]bool   // commits HEAD contains beyond the base
	files     map[string]string // copied into every new worktree
	deleteErr error
	runErr    error
	calls     []string
	n         int
}

func newFakeGit(t *testing.T) *fakeGit {
	root := t.TempDir()
	head := strings.Repeat("a", 40)
	return &fakeGit{
		root:      root,
		branches:  map[string]string{"main": head},
		current:   "main",
		head:      head,
		dirty:     map[string]bool{},
		conflicts: map[string][]string{},
		merged:    map[string]bool{},
		files:     map[string]string{},
	}
}

func (g *fakeGit) open(dir string) Repo { return &fakeRepo{g: g, dir: dir} }

func (g *fakeGit) called(prefix string) bool {
	for _, c := range g.calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func (g *fakeGit) commit() {
	g.n++
	g.head = fmt.Sprintf("%040d", g.n)
	g.branches[g.current] = g.head
}

type fakeRepo struct {
	g   *fakeGit
	dir string
}

func gitErr(msg string, cause error) error {
	return errors.NewGitError(msg, cause).WithExitCode(1)
}

func (r *fakeRepo) Dir() string { return r.dir }

func (r *fakeRepo) Run(_ context.Context, args ...string) (string, error) {
	r.g.calls = append(r.g.calls, "run "+strings.Join(args, " "))
	return "", r.g.runErr
}

func (r *fakeRepo) BranchExists(_ context.Context, branch string) (bool, error) {
	_, ok := r.g.branches[branch]
	return ok, nil
}

func (r *fakeRepo) CurrentBranch(context.Context) (string, error) { return r.g.current, nil }

func (r *fakeRepo) HeadSHA(context.Context) (string, error) { return r.g.head, nil }

func (r *fakeRepo) ResolveCommit(_ context.Context, ref string) (string, bool, error) {
	if sha, ok := r.g.branches[ref]; ok {
		return sha, true, nil
	}
	if ref == "HEAD" {
		return r.g.head, true, nil
	}
	return "", false, nil
}

func (r *fakeRepo) IsAncestor(_ context.Context, ancestor, descendant string) (bool, error) {
	r.g.calls = append(r.g.calls, "merge-base --is-ancestor "+ancestor+" "+descendant)
	return r.g.merged[ancestor], nil
}

func (r *fakeRepo) DeleteBranch(_ context.Context, branch string, force bool) error {
	r.g.calls = append(r.g.calls, fmt.Sprintf("branch -D %s", branch))
	if r.g.deleteErr != nil {
		return r.g.deleteErr
	}
	delete(r.g.branches, branch)
	return nil
}

func (r *fakeRepo) WorktreeAdd(_ context.Context, path, branch, base string) error {
	r.g.calls = append(r.g.calls, "worktree add "+path)
	if _, ok := r.g.branches[branch]; ok {
		return gitErr("git worktree failed", errors.ErrBranchExists)
	}
	if err := os.Mkdir(path, 0755); err != nil {
		return gitErr("git worktree failed", errors.ErrPathConflict)
	}
	for name, content := range r.g.files {
		if err := os.WriteFile(filepath.Join(path, name), []byte(content), 0644); err != nil {
			return err
		}
	}
	r.g.branches[branch] = base
	return nil
}

func (r *fakeRepo) WorktreeRemove(_ context.Context, path string, force bool) error {
	r.g.calls = append(r.g.calls, fmt.Sprintf("worktree remove %s force=%t", path, force))
	return os.RemoveAll(path)
}

func (r *fakeRepo) WorktreePrune(context.Context) error {
	r.g.calls = append(r.g.calls, "worktree prune")
	return nil
}

func (r *fakeRepo) IsClean(context.Context) (bool, error) { return !r.g.dirty[r.dir], nil }

func (r *fakeRepo) HasUncommittedChanges(context.Context) (bool, error) { return r.g.dirty[r.dir], nil }

func (r *fakeRepo) ConflictingFiles(context.Context) ([]string, error) {
	if r.g.merging == "" {
		return nil, nil
	}
	return r.g.conflicts[r.g.merging], nil
}

func (r *fakeRepo) WorkingDiff(context.Context) (string, error) {
	if r.g.merging == "" {
		return "", nil
	}
	return "diff --cc api.go", nil
}

func (r *fakeRepo) Add(_ context.Context, paths ...string) error {
	r.g.calls = append(r.g.calls, "add "+strings.Join(paths, " "))
	return nil
}

func (r *fakeRepo) MergeNoFF(_ context.Context, branch, message string) error {
	r.g.calls = append(r.g.calls, "merge --no-ff "+branch)
	if paths, ok := r.g.conflicts[branch]; ok {
		r.g.merging = branch
		for _, p := range paths {
			content := "<<<<<<< HEAD\nours\n=======\ntheirs\n>>>>>>> " + branch + "\n"
			if err := os.WriteFile(filepath.Join(r.g.root, p), []byte(content), 0644); err != nil {
				return err
			}
		}
		return gitErr("git merge failed", errors.ErrConflicted)
	}
	r.g.merged[r.g.branches[branch]] = true
	r.g.commit()
	return nil
}

func (r *fakeRepo) MergeContinue(context.Context) error {
	if r.g.merging == "" {
		return gitErr("git commit failed", nil)
	}
	r.g.merging = ""
	r.g.commit()
	return nil
}

func (r *fakeRepo) MergeAbort(context.Context) error {
	r.g.calls = append(r.g.calls, "merge --abort")
	r.g.merging = ""
	return nil
}

func (r *fakeRepo) MergeInProgress(context.Context) (bool, error) { return r.g.merging != "", nil }

func newTestManager(t *testing.T, g *fakeGit, opts ...Option) *Manager {
	t.Helper()
	stateDir := filepath.Join(t.TempDir(), "state")
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	base := []Option{
		WithWorktreeDir(filepath.Join(g.root, ".conductor", "worktrees")),
		WithClock(func() time.Time { clock = clock.Add(time.Second); return clock }),
		WithMergeLock(time.Second, 10*time.Millisecond),
	}
	return NewManager(g.open, g.root, stateDir, append(base, opts...)...)
}

func workspaceError(t *testing.T, err error) *errors.WorkspaceError {
	t.Helper()
	var we *errors.WorkspaceError
	if !errors.As(err, &we) {
		t.Fatalf("error %v (%T) is not a WorkspaceError", err, err)
	}
	return we
}

func TestCreate(t *testing.T) {
	g := newFakeGit(t)
	var events []string
	m := newTestManager(t, g, WithEventObserver(func(event string, ws *Workspace) {
		events = append(events, event+":"+ws.Owner)
	}))

	ws, err := m.Create(context.Background(), "Agent 1", "", OwnedBy(os.Getpid()))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if ws.Branch != "conductor/agent-1" {
		t.Errorf("branch = %q", ws.Branch)
	}
	if want := filepath.Join(g.root, ".conductor", "worktrees", "agent-1"); ws.Path != want {
		t.Errorf("path = %q, want %q", ws.Path, want)
	}
	if _, err := os.Stat(ws.Path); err != nil {
		t.Errorf("workspace directory missing: %v", err)
	}
	if ws.Base != "main" || ws.BaseSHA != g.head || ws.State != StateActive || ws.PID != os.Getpid() {
		t.Errorf("workspace = %+v", ws)
	}
	if !reflect.DeepEqual(events, []string{"created:Agent 1"}) {
		t.Errorf("events = %v", events)
	}

	got, err := m.Get("Agent 1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != ws.ID {
		t.Errorf("registry id = %q, want %q", got.ID, ws.ID)
	}
	if g.called("run ") {
		t.Errorf("submodule update ran without .gitmodules: %v", g.calls)
	}
}

func TestCreate_BranchHintAndBase(t *testing.T) {
	g := newFakeGit(t)
	g.branches["release"] = strings.Repeat("b", 40)
	m := newTestManager(t, g)

	ws, err := m.Create(context.Background(), "agent-2", "feature/x", FromBase("release"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if ws.Branch != "feature/x" || ws.Base != "release" || ws.BaseSHA != strings.Repeat("b", 40) {
		t.Errorf("workspace = %+v", ws)
	}
	if g.branches["feature/x"] != ws.BaseSHA {
		t.Errorf("branch started at %q", g.branches["feature/x"])
	}
}

func TestCreate_BranchExists(t *testing.T) {
	g := newFakeGit(t)
	g.branches["feature/x"] = g.head
	g.branches["feature/x-2"] = g.head
	m := newTestManager(t, g)

	_, err := m.Create(context.Background(), "agent-1", "feature/x")
	if !errors.Is(err, errors.ErrBranchExists) {
		t.Fatalf("Create() error = %v, want ErrBranchExists", err)
	}
	we := workspaceError(t, err)
	if we.Suggestion != "feature/x-3" {
		t.Errorf("suggestion = %q, want feature/x-3", we.Suggestion)
	}
	if got := errors.StateOf(err); got != errors.RepoUnchanged {
		t.Errorf("repo state = %s", got)
	}
	if _, err := os.Stat(filepath.Join(g.root, ".conductor")); !os.IsNotExist(err) {
		t.Error("a directory was created for a refused workspace")
	}
	if g.called("worktree add") {
		t.Error("git worktree add was run")
	}
	if all, _ := m.Registry().Load(); len(all) != 0 {
		t.Errorf("registry = %v", all)
	}
}

func TestCreate_PathConflict(t *testing.T) {
	g := newFakeGit(t)
	m := newTestManager(t, g)
	dir := filepath.Join(g.root, ".conductor", "worktrees", "agent-1")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}

	_, err := m.Create(context.Background(), "agent-1", "")
	if !errors.Is(err, errors.ErrPathConflict) {
		t.Fatalf("Create() error = %v, want ErrPathConflict", err)
	}
	if s := workspaceError(t, err).Suggestion; s != "agent-1-2" {
		t.Errorf("suggestion = %q", s)
	}
	if _, ok := g.branches["conductor/agent-1"]; ok {
		t.Error("branch was created")
	}
}

func TestCreate_OwnerAlreadyHasWorkspace(t *testing.T) {
	g := newFakeGit(t)
	m := newTestManager(t, g)
	ctx := context.Background()

	if _, err := m.Create(ctx, "agent-1", ""); err != nil {
		t.Fatal(err)
	}
	_, err := m.Create(ctx, "agent-1", "other")
	if !errors.Is(err, errors.ErrPathConflict) {
		t.Errorf("second Create() error = %v, want ErrPathConflict", err)
	}
	if _, ok := g.branches["other"]; ok {
		t.Error("branch created for the second workspace")
	}
}

func TestCreate_Validation(t *testing.T) {
	g := newFakeGit(t)
	m := newTestManager(t, g)

	if _, err := m.Create(context.Background(), "  /// ", ""); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("empty owner error = %v", err)
	}
	if _, err := m.Create(context.Background(), "agent-1", "", FromBase("nope")); !errors.Is(err, errors.ErrUnknownRevision) {
		t.Errorf("unknown base error = %v", err)
	}
}

func TestCreate_Submodules(t *testing.T) {
	const gitmodules = "[submodule \"vendor/lib\"]\n\tpath = vendor/lib\n\turl = ../lib.git\n"

	t.Run("initialized", func(t *testing.T) {
		g := newFakeGit(t)
		g.files[".gitmodules"] = gitmodules
		m := newTestManager(t, g)

		if _, err := m.Create(context.Background(), "agent-1", ""); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if !g.called("run -c protocol.file.allow=always submodule update --init --recursive") {
			t.Errorf("calls = %v", g.calls)
		}
	})

	t.Run("critical failure rolls back", func(t *testing.T) {
		g := newFakeGit(t)
		g.files[".gitmodules"] = gitmodules
		g.runErr = fmt.Errorf("fatal: repository '../lib.git' not found")
		m := newTestManager(t, g)

		_, err := m.Create(context.Background(), "agent-1", "")
		if err == nil {
			t.Fatal("Create() succeeded")
		}
		if _, err := os.Stat(filepath.Join(g.root, ".conductor", "worktrees", "agent-1")); !os.IsNotExist(err) {
			t.Error("workspace directory left behind")
		}
		if _, ok := g.branches["conductor/agent-1"]; ok {
			t.Error("branch left behind")
		}
		if all, _ := m.Registry().Load(); len(all) != 0 {
			t.Errorf("registry = %v", all)
		}
	})

	t.Run("warning is ignored", func(t *testing.T) {
		g := newFakeGit(t)
		g.files[".gitmodules"] = gitmodules
		g.runErr = fmt.Errorf("warning: could not look up configuration")
		m := newTestManager(t, g)

		if _, err := m.Create(context.Background(), "agent-1", ""); err != nil {
			t.Errorf("Create() error = %v", err)
		}
	})
}

func TestMerge(t *testing.T) {
	g := newFakeGit(t)
	m := newTestManager(t, g)
	ctx := context.Background()

	ws, err := m.Create(ctx, "agent-1", "")
	if err != nil {
		t.Fatal(err)
	}
	res, err := m.Merge(ctx, "agent-1")
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if res.Into != "main" || res.Commit != g.head {
		t.Errorf("result = %+v, head %s", res, g.head)
	}
	if !g.called("merge --no-ff " + ws.Branch) {
		t.Errorf("calls = %v", g.calls)
	}
	got, _ := m.Get("agent-1")
	if got.State != StateMerged || got.MergeCommit != g.head {
		t.Errorf("registry entry = %+v", got)
	}
	if _, err := os.Stat(filelock.Path(m.stateDir, MainlineLock)); !os.IsNotExist(err) {
		t.Error("mainline lock not released")
	}
}

func TestMerge_Refusals(t *testing.T) {
	ctx := context.Background()

	t.Run("dirty workspace", func(t *testing.T) {
		g := newFakeGit(t)
		m := newTestManager(t, g)
		ws, err := m.Create(ctx, "agent-1", "")
		if err != nil {
			t.Fatal(err)
		}
		g.dirty[ws.Path] = true

		if _, err := m.Merge(ctx, "agent-1"); !errors.Is(err, errors.ErrDirtyWorkingTree) {
			t.Errorf("Merge() error = %v, want ErrDirtyWorkingTree", err)
		}
		if g.called("merge") {
			t.Error("merge was attempted")
		}
	})

	t.Run("dirty main working tree", func(t *testing.T) {
		g := newFakeGit(t)
		m := newTestManager(t, g)
		if _, err := m.Create(ctx, "agent-1", ""); err != nil {
			t.Fatal(err)
		}
		g.dirty[g.root] = true

		if _, err := m.Merge(ctx, "agent-1"); !errors.Is(err, errors.ErrDirtyWorkingTree) {
			t.Errorf("Merge() error = %v, want ErrDirtyWorkingTree", err)
		}
	})

	t.Run("unknown owner", func(t *testing.T) {
		m := newTestManager(t, newFakeGit(t))
		if _, err := m.Merge(ctx, "nobody"); !errors.Is(err, errors.ErrWorkspaceNotFound) {
			t.Errorf("Merge() error = %v, want ErrWorkspaceNotFound", err)
		}
	})

	t.Run("lock held", func(t *testing.T) {
		g := newFakeGit(t)
		m := newTestManager(t, g, WithMergeLock(50*time.Millisecond, 10*time.Millisecond))
		if _, err := m.Create(ctx, "agent-1", ""); err != nil {
			t.Fatal(err)
		}
		held, err := filelock.Acquire(m.stateDir, MainlineLock, "agent-2", nil)
		if err != nil {
			t.Fatal(err)
		}
		defer held.Release()

		if _, err := m.Merge(ctx, "agent-1"); !errors.Is(err, errors.ErrLocked) {
			t.Errorf("Merge() error = %v, want ErrLocked", err)
		}
		if g.called("merge") {
			t.Error("merged without the lock")
		}
	})
}

func TestMerge_ConflictContinue(t *testing.T) {
	g := newFakeGit(t)
	m := newTestManager(t, g)
	ctx := context.Background()

	ws, err := m.Create(ctx, "agent-1", "")
	if err != nil {
		t.Fatal(err)
	}
	g.conflicts[ws.Branch] = []string{"api.go"}

	_, err = m.Merge(ctx, "agent-1")
	if !errors.Is(err, errors.ErrMergeConflict) {
		t.Fatalf("Merge() error = %v, want ErrMergeConflict", err)
	}
	we := workspaceError(t, err)
	if !reflect.DeepEqual(we.ConflictPaths, []string{"api.go"}) {
		t.Errorf("conflicts = %v", we.ConflictPaths)
	}
	if got := errors.StateOf(err); got != errors.RepoPartiallyApplied {
		t.Errorf("repo state = %s", got)
	}
	if got, _ := m.Get("agent-1"); got.State != StateConflicted {
		t.Errorf("state = %s, want conflicted", got.State)
	}

	// a second merge attempt does not auto-resolve
	if _, err := m.Merge(ctx, "agent-1"); !errors.Is(err, errors.ErrMergeConflict) {
		t.Errorf("Merge() while halted error = %v", err)
	}

	if _, err := m.MergeContinue(ctx, "agent-1"); !errors.Is(err, errors.ErrMergeConflict) {
		t.Fatalf("MergeContinue() with markers error = %v", err)
	}

	if err := os.WriteFile(filepath.Join(g.root, "api.go"), []byte("resolved\n"), 0644); err != nil {
		t.Fatal(err)
	}
	res, err := m.MergeContinue(ctx, "agent-1")
	if err != nil {
		t.Fatalf("MergeContinue() error = %v", err)
	}
	if res.Commit != g.head || res.Workspace.State != StateMerged {
		t.Errorf("result = %+v", res)
	}
	if !g.called("add api.go") {
		t.Errorf("resolved file not staged: %v", g.calls)
	}
}

func TestMerge_ConflictAbort(t *testing.T) {
	g := newFakeGit(t)
	m := newTestManager(t, g)
	ctx := context.Background()

	ws, err := m.Create(ctx, "agent-1", "")
	if err != nil {
		t.Fatal(err)
	}
	g.conflicts[ws.Branch] = []string{"api.go"}
	if _, err := m.Merge(ctx, "agent-1"); err == nil {
		t.Fatal("expected conflict")
	}

	got, err := m.MergeAbort(ctx, "agent-1")
	if err != nil {
		t.Fatalf("MergeAbort() error = %v", err)
	}
	if got.State != StateActive || len(got.ConflictPaths) != 0 {
		t.Errorf("workspace = %+v", got)
	}
	if g.merging != "" {
		t.Error("merge still in progress")
	}
	if _, err := m.MergeAbort(ctx, "agent-1"); !errors.Is(err, errors.ErrInvalidTransition) {
		t.Errorf("second MergeAbort() error = %v", err)
	}
}

func TestCleanup(t *testing.T) {
	g := newFakeGit(t)
	var events []string
	m := newTestManager(t, g, WithEventObserver(func(event string, _ *Workspace) {
		events = append(events, event)
	}))
	ctx := context.Background()

	ws, err := m.Create(ctx, "agent-1", "")
	if err != nil {
		t.Fatal(err)
	}
	g.dirty[ws.Path] = true

	err = m.Cleanup(ctx, "agent-1", false)
	if !errors.Is(err, errors.ErrDirtyWorkingTree) {
		t.Fatalf("Cleanup() error = %v, want ErrDirtyWorkingTree", err)
	}
	if _, err := os.Stat(ws.Path); err != nil {
		t.Error("dirty workspace was removed")
	}
	if _, ok := g.branches[ws.Branch]; !ok {
		t.Error("branch of dirty workspace was deleted")
	}

	if err := m.Cleanup(ctx, "agent-1", true); err != nil {
		t.Fatalf("forced Cleanup() error = %v", err)
	}
	if _, err := os.Stat(ws.Path); !os.IsNotExist(err) {
		t.Error("directory still exists")
	}
	if _, ok := g.branches[ws.Branch]; ok {
		t.Error("branch still exists")
	}
	if _, err := m.Get("agent-1"); !errors.Is(err, errors.ErrWorkspaceNotFound) {
		t.Errorf("registry entry kept: %v", err)
	}
	if !reflect.DeepEqual(events, []string{"created", "cleaned"}) {
		t.Errorf("events = %v", events)
	}
}

func TestCleanup_UnmergedCommitsNeedForce(t *testing.T) {
	g := newFakeGit(t)
	m := newTestManager(t, g)
	ctx := context.Background()

	ws, err := m.Create(ctx, "agent-1", "")
	if err != nil {
		t.Fatal(err)
	}
	// the agent committed on its branch and never merged
	tip := strings.Repeat("b", 40)
	g.branches[ws.Branch] = tip

	err = m.Cleanup(ctx, "agent-1", false)
	if !errors.Is(err, errors.ErrUnmergedWork) {
		t.Fatalf("Cleanup() error = %v, want ErrUnmergedWork", err)
	}
	if got := errors.StateOf(err); got != errors.RepoUnchanged {
		t.Errorf("repo state = %s, want unchanged", got)
	}
	if _, err := os.Stat(ws.Path); err != nil {
		t.Error("unmerged workspace was removed")
	}
	if g.branches[ws.Branch] != tip {
		t.Error("unmerged branch was deleted")
	}
	if g.called("branch -D") || g.called("worktree remove") {
		t.Errorf("calls = %v", g.calls)
	}

	// merged by hand into main
	g.merged[tip] = true
	if err := m.Cleanup(ctx, "agent-1", false); err != nil {
		t.Fatalf("Cleanup() after merge error = %v", err)
	}
	if _, ok := g.branches[ws.Branch]; ok {
		t.Error("branch still exists")
	}
}

func TestCleanup_ForceDiscardsUnmergedCommits(t *testing.T) {
	g := newFakeGit(t)
	m := newTestManager(t, g)
	ctx := context.Background()

	ws, err := m.Create(ctx, "agent-1", "")
	if err != nil {
		t.Fatal(err)
	}
	g.branches[ws.Branch] = strings.Repeat("b", 40)

	if err := m.Cleanup(ctx, "agent-1", true); err != nil {
		t.Fatalf("forced Cleanup() error = %v", err)
	}
	if _, ok := g.branches[ws.Branch]; ok {
		t.Error("branch still exists")
	}
	if g.called("merge-base") {
		t.Error("forced cleanup inspected the branch")
	}
}

func TestCleanup_BranchDeleteFailsThenRetry(t *testing.T) {
	g := newFakeGit(t)
	m := newTestManager(t, g)
	ctx := context.Background()

	ws, err := m.Create(ctx, "agent-1", "")
	if err != nil {
		t.Fatal(err)
	}
	g.deleteErr = gitErr("git branch failed", nil)

	err = m.Cleanup(ctx, "agent-1", false)
	if err == nil {
		t.Fatal("Cleanup() succeeded")
	}
	if got := errors.StateOf(err); got != errors.RepoPartiallyApplied {
		t.Errorf("repo state = %s", got)
	}
	if got, _ := m.Get("agent-1"); got.State != StateIncomplete {
		t.Errorf("state = %s, want incomplete", got.State)
	}

	g.deleteErr = nil
	if err := m.Cleanup(ctx, "agent-1", false); err != nil {
		t.Fatalf("retry Cleanup() error = %v", err)
	}
	if _, ok := g.branches[ws.Branch]; ok {
		t.Error("branch still exists")
	}
	if !g.called("worktree prune") {
		t.Error("stale worktree data not pruned")
	}
}

func TestCleanup_ConflictedMerge(t *testing.T) {
	g := newFakeGit(t)
	m := newTestManager(t, g)
	ctx := context.Background()

	ws, err := m.Create(ctx, "agent-1", "")
	if err != nil {
		t.Fatal(err)
	}
	g.conflicts[ws.Branch] = []string{"api.go"}
	if _, err := m.Merge(ctx, "agent-1"); err == nil {
		t.Fatal("expected conflict")
	}

	if err := m.Cleanup(ctx, "agent-1", false); !errors.Is(err, errors.ErrMergeConflict) {
		t.Errorf("Cleanup() error = %v, want ErrMergeConflict", err)
	}
	if err := m.Cleanup(ctx, "agent-1", true); err != nil {
		t.Fatalf("forced Cleanup() error = %v", err)
	}
	if !g.called("merge --abort") {
		t.Error("halted merge not aborted")
	}
}

func TestList(t *testing.T) {
	g := newFakeGit(t)
	m := newTestManager(t, g)
	ctx := context.Background()

	if _, err := m.Create(ctx, "agent-1", "", OwnedBy(os.Getpid())); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Create(ctx, "reviewer", "", OwnedBy(os.Getpid())); err != nil {
		t.Fatal(err)
	}
	dead, err := m.Create(ctx, "agent-2", "", OwnedBy(999999))
	if err != nil {
		t.Fatal(err)
	}
	if filelock.IsProcessAlive(999999) {
		t.Skip("PID 999999 exists on this machine")
	}

	all, err := m.List("agent-*")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	states := map[string]State{}
	for _, ws := range all {
		states[ws.Owner] = ws.State
	}
	want := map[string]State{"agent-1": StateActive, dead.Owner: StateOrphaned}
	if !reflect.DeepEqual(states, want) {
		t.Errorf("List(agent-*) = %v, want %v", states, want)
	}

	// orphaned is reported, never stored
	stored, _ := m.Get("agent-2")
	if stored.State != StateActive {
		t.Errorf("stored state = %s", stored.State)
	}

	everything, err := m.List("")
	if err != nil {
		t.Fatal(err)
	}
	if len(everything) != 3 {
		t.Errorf("List(\"\") = %d workspaces", len(everything))
	}
}

func TestMatcher(t *testing.T) {
	match, err := Matcher("agent-?")
	if err != nil {
		t.Fatal(err)
	}
	if !match("agent-1") || match("agent-12") || match("reviewer") {
		t.Error("agent-? matched the wrong owners")
	}
	if _, err := Matcher("[a-"); err == nil {
		t.Error("invalid pattern accepted")
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		owner string
		want  string
	}{
		{"agent-1", "agent-1"},
		{"Agent 1", "agent-1"},
		{"  ui/Reviewer  ", "ui-reviewer"},
		{"a__b..c", "a__b..c"},
		{"--x--", "x"},
		{"///", ""},
	}
	for _, tt := range tests {
		if got := Slug(tt.owner); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.owner, got, tt.want)
		}
	}
}
