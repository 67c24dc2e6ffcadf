package git

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/Iron-Ham/conductor/internal/errors"
)

// FindGitRoot finds the root of the git repository by traversing up from startDir.
// It returns the directory containing .git (either a directory or a file for worktrees).
func FindGitRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.NewGitError("no repository found from "+startDir, errors.ErrNotGitRepository).
				WithRepository(startDir).
				WithSeverity(errors.SeverityCritical)
		}
		dir = parent
	}
}

// CommonDir returns the absolute path of the git directory shared by all
// worktrees of the repository.
func (c *Client) CommonDir(ctx context.Context) (string, error) {
	out, err := c.Run(ctx, "rev-parse", "--git-common-dir")
	if err != nil {
		return "", err
	}
	dir := strings.TrimSpace(out)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(c.dir, dir)
	}
	return filepath.Clean(dir), nil
}

// StateDir returns the directory conductor keeps process-local state in.
// It lives inside the git directory so it never dirties the working tree.
func (c *Client) StateDir(ctx context.Context) (string, error) {
	common, err := c.CommonDir(ctx)
	if err != nil {
		return "", err
	}
	return filepath.Join(common, "conductor"), nil
}

// HeadSHA returns the full sha of HEAD.
func (c *Client) HeadSHA(ctx context.Context) (string, error) {
	out, err := c.Run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// CurrentBranch returns the checked-out branch, or "HEAD" when detached.
func (c *Client) CurrentBranch(ctx context.Context) (string, error) {
	out, err := c.Run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// ResolveCommit reports whether ref names a commit object and returns its
// full sha.
func (c *Client) ResolveCommit(ctx context.Context, ref string) (string, bool, error) {
	out, code, err := c.probe(ctx, "rev-parse", "--verify", "--quiet", "--end-of-options", ref+"^{commit}")
	if err != nil {
		if errors.Is(err, errors.ErrUnknownRevision) {
			return "", false, nil
		}
		return "", false, err
	}
	if code != 0 {
		return "", false, nil
	}
	return strings.TrimSpace(out), true, nil
}

// Reachable reports whether sha is in the history of a branch, tag,
// remote-tracking branch or HEAD. A commit left behind by a rebase or amend
// still resolves until gc, but is no longer reachable.
func (c *Client) Reachable(ctx context.Context, sha string) (bool, error) {
	out, err := c.Run(ctx, "for-each-ref", "--count=1", "--format=%(refname)", "--contains", sha,
		"refs/heads", "refs/tags", "refs/remotes")
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(out) != "" {
		return true, nil
	}
	// detached HEAD
	return c.IsAncestor(ctx, sha, "HEAD")
}

// IsAncestor reports whether ancestor is in the history of descendant.
func (c *Client) IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error) {
	_, code, err := c.probe(ctx, "merge-base", "--is-ancestor", ancestor, descendant)
	if err != nil {
		return false, err
	}
	return code == 0, nil
}

// BranchExists reports whether a local branch exists.
func (c *Client) BranchExists(ctx context.Context, branch string) (bool, error) {
	_, code, err := c.probe(ctx, "rev-parse", "--verify", "--quiet", "refs/heads/"+branch)
	if err != nil {
		if errors.Is(err, errors.ErrUnknownRevision) {
			return false, nil
		}
		return false, err
	}
	return code == 0, nil
}

// Status returns the porcelain status lines. Untracked files are included
// only when includeUntracked is set.
func (c *Client) Status(ctx context.Context, includeUntracked bool) ([]string, error) {
	untracked := "--untracked-files=no"
	if includeUntracked {
		untracked = "--untracked-files=normal"
	}
	return c.RunLines(ctx, "status", "--porcelain", untracked)
}

// IsClean reports whether the working tree has no uncommitted changes to
// tracked files.
func (c *Client) IsClean(ctx context.Context) (bool, error) {
	lines, err := c.Status(ctx, false)
	if err != nil {
		return false, err
	}
	return len(lines) == 0, nil
}

// HasUncommittedChanges reports whether the working tree has any changes,
// untracked files included.
func (c *Client) HasUncommittedChanges(ctx context.Context) (bool, error) {
	lines, err := c.Status(ctx, true)
	if err != nil {
		return false, err
	}
	return len(lines) > 0, nil
}

// ConflictingFiles returns the paths with unresolved conflicts.
func (c *Client) ConflictingFiles(ctx context.Context) ([]string, error) {
	return c.RunLines(ctx, "diff", "--name-only", "--diff-filter=U")
}

// WorkingDiff returns the diff of the working tree against the index, which
// shows conflict markers while an operation is halted.
func (c *Client) WorkingDiff(ctx context.Context) (string, error) {
	return c.Run(ctx, "diff", "--no-color", "--no-ext-diff")
}

// ResetHard resets the index and working tree to ref.
func (c *Client) ResetHard(ctx context.Context, ref string) error {
	_, err := c.Run(ctx, "reset", "--hard", ref)
	return err
}

// Add stages the given paths.
func (c *Client) Add(ctx context.Context, paths ...string) error {
	args := append([]string{"add", "--"}, paths...)
	_, err := c.Run(ctx, args...)
	return err
}

// CommitOptions controls Commit.
type CommitOptions struct {
	AllowEmpty bool
	// Paths limits the commit to these paths; empty commits the index.
	Paths []string
}

// Commit records a commit and returns its sha.
func (c *Client) Commit(ctx context.Context, message string, opts CommitOptions) (string, error) {
	args := []string{"commit", "--no-verify", "-m", message}
	if opts.AllowEmpty {
		args = append(args, "--allow-empty")
	}
	if len(opts.Paths) > 0 {
		args = append(args, "--only", "--")
		args = append(args, opts.Paths...)
	}
	if _, err := c.Run(ctx, args...); err != nil {
		return "", err
	}
	return c.HeadSHA(ctx)
}

// refExists reports whether a pseudo-ref such as REVERT_HEAD is present.
func (c *Client) refExists(ctx context.Context, ref string) (bool, error) {
	_, code, err := c.probe(ctx, "rev-parse", "--verify", "--quiet", ref)
	if err != nil {
		if errors.Is(err, errors.ErrUnknownRevision) {
			return false, nil
		}
		return false, err
	}
	return code == 0, nil
}
