package worktree

import (
	"context"

	"github.com/Iron-Ham/conductor/internal/git"
)

// Repo is the set of git operations the Manager needs in one working tree.
// This interface abstracts the git client, enabling fakes in tests without
// actual repositories.
type Repo interface {
	Dir() string
	Run(ctx context.Context, args ...string) (string, error)

	// Branches and HEAD
	BranchExists(ctx context.Context, branch string) (bool, error)
	CurrentBranch(ctx context.Context) (string, error)
	HeadSHA(ctx context.Context) (string, error)
	ResolveCommit(ctx context.Context, ref string) (string, bool, error)
	IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error)
	DeleteBranch(ctx context.Context, branch string, force bool) error

	// Worktrees
	WorktreeAdd(ctx context.Context, path, branch, base string) error
	WorktreeRemove(ctx context.Context, path string, force bool) error
	WorktreePrune(ctx context.Context) error

	// Working tree state
	IsClean(ctx context.Context) (bool, error)
	HasUncommittedChanges(ctx context.Context) (bool, error)
	ConflictingFiles(ctx context.Context) ([]string, error)
	WorkingDiff(ctx context.Context) (string, error)
	Add(ctx context.Context, paths ...string) error

	// Merge
	MergeNoFF(ctx context.Context, branch, message string) error
	MergeContinue(ctx context.Context) error
	MergeAbort(ctx context.Context) error
	MergeInProgress(ctx context.Context) (bool, error)
}

// Opener returns a Repo that runs commands in dir.
type Opener func(dir string) Repo

// ClientOpener opens every directory with a copy of c.
func ClientOpener(c *git.Client) Opener {
	return func(dir string) Repo {
		return c.At(dir)
	}
}

// Ensure the git client implements Repo at compile time.
var _ Repo = (*git.Client)(nil)
