package git

import (
	"context"
	"strconv"
	"strings"
)

// -----------------------------------------------------------------------------
// Revert
// -----------------------------------------------------------------------------

// Revert applies the inverse of sha as a new commit. mainline selects the
// parent to diff against for merge commits; zero means a regular commit.
func (c *Client) Revert(ctx context.Context, sha string, mainline int) error {
	args := []string{"revert", "--no-edit"}
	if mainline > 0 {
		args = append(args, "-m", strconv.Itoa(mainline))
	}
	args = append(args, sha)
	_, err := c.Run(ctx, args...)
	return err
}

// RevertContinue commits a revert whose conflicts were resolved and staged.
// The executor's GIT_EDITOR=true keeps the generated message.
func (c *Client) RevertContinue(ctx context.Context) error {
	_, err := c.Run(ctx, "revert", "--continue")
	return err
}

// RevertAbort cancels an in-progress revert sequence.
func (c *Client) RevertAbort(ctx context.Context) error {
	_, err := c.Run(ctx, "revert", "--abort")
	return err
}

// RevertInProgress reports whether a revert is halted on a conflict.
func (c *Client) RevertInProgress(ctx context.Context) (bool, error) {
	return c.refExists(ctx, "REVERT_HEAD")
}

// -----------------------------------------------------------------------------
// Merge
// -----------------------------------------------------------------------------

// MergeNoFF merges branch into the current branch with a merge commit even
// when a fast-forward is possible.
func (c *Client) MergeNoFF(ctx context.Context, branch, message string) error {
	_, err := c.Run(ctx, "merge", "--no-ff", "--no-edit", "-m", message, branch)
	return err
}

// MergeContinue concludes a merge whose conflicts were resolved and staged.
func (c *Client) MergeContinue(ctx context.Context) error {
	_, err := c.Run(ctx, "commit", "--no-edit", "--no-verify")
	return err
}

// MergeAbort cancels an in-progress merge.
func (c *Client) MergeAbort(ctx context.Context) error {
	_, err := c.Run(ctx, "merge", "--abort")
	return err
}

// MergeInProgress reports whether a merge is halted on a conflict.
func (c *Client) MergeInProgress(ctx context.Context) (bool, error) {
	return c.refExists(ctx, "MERGE_HEAD")
}

// -----------------------------------------------------------------------------
// Worktrees and branches
// -----------------------------------------------------------------------------

// WorktreeEntry is one record of `git worktree list --porcelain`.
type WorktreeEntry struct {
	Path     string
	Head     string
	Branch   string
	Bare     bool
	Detached bool
}

// WorktreeAdd creates a worktree at path on a new branch started from base.
// An empty base starts from HEAD.
func (c *Client) WorktreeAdd(ctx context.Context, path, branch, base string) error {
	args := []string{"worktree", "add", "-b", branch, path}
	if base != "" {
		args = append(args, base)
	}
	_, err := c.Run(ctx, args...)
	return err
}

// WorktreeRemove removes the worktree at path. force discards local changes.
func (c *Client) WorktreeRemove(ctx context.Context, path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	_, err := c.Run(ctx, args...)
	return err
}

// WorktreePrune removes administrative data for vanished worktrees.
func (c *Client) WorktreePrune(ctx context.Context) error {
	_, err := c.Run(ctx, "worktree", "prune")
	return err
}

// WorktreeList returns all worktrees of the repository.
func (c *Client) WorktreeList(ctx context.Context) ([]WorktreeEntry, error) {
	out, err := c.Run(ctx, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parseWorktreeList(out), nil
}

func parseWorktreeList(out string) []WorktreeEntry {
	var entries []WorktreeEntry
	var cur *WorktreeEntry
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			entries = append(entries, WorktreeEntry{Path: strings.TrimPrefix(line, "worktree ")})
			cur = &entries[len(entries)-1]
		case cur == nil:
			continue
		case strings.HasPrefix(line, "HEAD "):
			cur.Head = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			cur.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		case line == "bare":
			cur.Bare = true
		case line == "detached":
			cur.Detached = true
		}
	}
	return entries
}

// DeleteBranch deletes a local branch. force deletes it even if unmerged.
func (c *Client) DeleteBranch(ctx context.Context, branch string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	_, err := c.Run(ctx, "branch", flag, branch)
	return err
}

// -----------------------------------------------------------------------------
// Notes
// -----------------------------------------------------------------------------

// AddNote attaches body to sha under refs/notes/<ref>, replacing any
// existing note.
func (c *Client) AddNote(ctx context.Context, ref, sha, body string) error {
	_, err := c.Run(ctx, "notes", "--ref="+ref, "add", "-f", "-m", body, sha)
	return err
}

// ReadNote returns the note attached to sha, or "" when there is none.
func (c *Client) ReadNote(ctx context.Context, ref, sha string) (string, error) {
	out, code, err := c.probe(ctx, "notes", "--ref="+ref, "show", sha)
	if err != nil {
		return "", err
	}
	if code != 0 {
		return "", nil
	}
	return out, nil
}
