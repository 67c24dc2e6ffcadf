//go:build integration

package worktree

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/git"
	"github.com/Iron-Ham/conductor/internal/testutil"
)

func newIntegrationManager(t *testing.T, repo string) *Manager {
	t.Helper()
	return NewManager(ClientOpener(git.New(repo)), repo, filepath.Join(repo, ".git", "conductor"))
}

func TestIntegration_BranchExistsCreatesNothing(t *testing.T) {
	testutil.SkipIfNoGit(t)
	repo := testutil.SetupTestRepo(t)
	testutil.CreateBranch(t, repo, "feature/x")
	m := newIntegrationManager(t, repo)

	_, err := m.Create(context.Background(), "agent-1", "feature/x")
	if !errors.Is(err, errors.ErrBranchExists) {
		t.Fatalf("Create() error = %v, want ErrBranchExists", err)
	}
	var we *errors.WorkspaceError
	if errors.As(err, &we) && we.Suggestion != "feature/x-2" {
		t.Errorf("suggestion = %q", we.Suggestion)
	}
	if got := testutil.ListWorktrees(t, repo); len(got) != 1 {
		t.Errorf("worktrees = %v", got)
	}
	if _, err := os.Stat(filepath.Join(repo, ".conductor")); !os.IsNotExist(err) {
		t.Error("workspace directory created")
	}
}

func TestIntegration_MergeConflictResolveAndCleanup(t *testing.T) {
	testutil.SkipIfNoGit(t)
	ctx := context.Background()
	repo := testutil.SetupTestRepoWithContent(t, map[string]string{"api.go": "package api\n"})
	m := newIntegrationManager(t, repo)

	one, err := m.Create(ctx, "agent-1", "")
	if err != nil {
		t.Fatalf("Create(agent-1) error = %v", err)
	}
	two, err := m.Create(ctx, "agent-2", "")
	if err != nil {
		t.Fatalf("Create(agent-2) error = %v", err)
	}
	testutil.CommitFile(t, one.Path, "api.go", "package api\n\nconst One = 1\n", "feat: one")
	testutil.CommitFile(t, two.Path, "api.go", "package api\n\nconst Two = 2\n", "feat: two")

	res, err := m.Merge(ctx, "agent-1")
	if err != nil {
		t.Fatalf("Merge(agent-1) error = %v", err)
	}
	if res.Into != "main" || res.Commit != testutil.HeadSHA(t, repo) {
		t.Errorf("result = %+v", res)
	}

	_, err = m.Merge(ctx, "agent-2")
	if !errors.Is(err, errors.ErrMergeConflict) {
		t.Fatalf("Merge(agent-2) error = %v, want ErrMergeConflict", err)
	}
	if _, err := m.MergeContinue(ctx, "agent-2"); !errors.Is(err, errors.ErrMergeConflict) {
		t.Fatalf("MergeContinue() with markers error = %v", err)
	}

	testutil.WriteFile(t, repo, "api.go", "package api\n\nconst One = 1\n\nconst Two = 2\n")
	res, err = m.MergeContinue(ctx, "agent-2")
	if err != nil {
		t.Fatalf("MergeContinue() error = %v", err)
	}
	if res.Commit != testutil.HeadSHA(t, repo) {
		t.Errorf("merge commit = %s", res.Commit)
	}

	for _, owner := range []string{"agent-1", "agent-2"} {
		if err := m.Cleanup(ctx, owner, false); err != nil {
			t.Fatalf("Cleanup(%s) error = %v", owner, err)
		}
	}
	if testutil.BranchExists(t, repo, one.Branch) || testutil.BranchExists(t, repo, two.Branch) {
		t.Error("workspace branches left behind")
	}
	if got := testutil.ListWorktrees(t, repo); len(got) != 1 {
		t.Errorf("worktrees = %v", got)
	}
}

func TestIntegration_CleanupKeepsUnmergedWork(t *testing.T) {
	testutil.SkipIfNoGit(t)
	ctx := context.Background()
	repo := testutil.SetupTestRepo(t)
	m := newIntegrationManager(t, repo)

	ws, err := m.Create(ctx, "agent-1", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	testutil.CommitFile(t, ws.Path, "work.txt", "done\n", "feat: work")

	if err := m.Cleanup(ctx, "agent-1", false); !errors.Is(err, errors.ErrUnmergedWork) {
		t.Fatalf("Cleanup() error = %v, want ErrUnmergedWork", err)
	}
	if !testutil.BranchExists(t, repo, ws.Branch) {
		t.Fatal("unmerged branch was deleted")
	}
	if got := testutil.ReadFile(t, ws.Path, "work.txt"); got != "done\n" {
		t.Errorf("work.txt = %q", got)
	}

	if err := m.Cleanup(ctx, "agent-1", true); err != nil {
		t.Fatalf("forced Cleanup() error = %v", err)
	}
	if testutil.BranchExists(t, repo, ws.Branch) {
		t.Error("branch survived forced cleanup")
	}
}
