package git

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Iron-Ham/conductor/internal/errors"
)

// Commit is a commit object as read from the graph.
type Commit struct {
	SHA     string
	Parents []string
	Time    time.Time
	Subject string
	Body    string
}

// Message returns the full commit message.
func (c Commit) Message() string {
	if c.Body == "" {
		return c.Subject
	}
	return c.Subject + "\n\n" + c.Body
}

// IsMerge reports whether the commit has more than one parent.
func (c Commit) IsMerge() bool {
	return len(c.Parents) > 1
}

const (
	fieldSep  = "\x1f"
	recordSep = "\x1e"
	// %H sha, %P parents, %ct commit time, %s subject, %b body
	logFormat = "--format=%H%x1f%P%x1f%ct%x1f%s%x1f%b%x1e"
)

// LogOptions selects commits for Log.
type LogOptions struct {
	// Revisions to walk from; empty means HEAD.
	Revisions []string
	// All walks every ref instead of Revisions.
	All bool
	// Paths limits the walk to commits touching these paths.
	Paths []string
	// Grep limits to commits whose message contains this text.
	Grep string
	// FixedStrings treats Grep as a literal string.
	FixedStrings bool
	// Pickaxe limits to commits that change the number of occurrences of this string.
	Pickaxe string
	// Limit caps the number of commits returned; zero is unlimited.
	Limit int
}

// Log returns commits newest first.
func (c *Client) Log(ctx context.Context, opts LogOptions) ([]Commit, error) {
	args := []string{"log", logFormat}
	if opts.Limit > 0 {
		args = append(args, "-n", strconv.Itoa(opts.Limit))
	}
	if opts.Grep != "" {
		args = append(args, "--grep="+opts.Grep)
		if opts.FixedStrings {
			args = append(args, "--fixed-strings")
		}
	}
	if opts.Pickaxe != "" {
		args = append(args, "-S"+opts.Pickaxe)
	}
	if opts.All {
		args = append(args, "--all")
	} else if len(opts.Revisions) > 0 {
		args = append(args, opts.Revisions...)
	}
	if len(opts.Paths) > 0 {
		args = append(args, "--")
		args = append(args, opts.Paths...)
	}

	out, err := c.Run(ctx, args...)
	if err != nil {
		// log on an unborn branch has no commits to show
		if errors.Is(err, errors.ErrUnknownRevision) && !opts.All && len(opts.Revisions) == 0 {
			return nil, nil
		}
		return nil, err
	}
	return parseLog(out)
}

// CommitInfo reads a single commit.
func (c *Client) CommitInfo(ctx context.Context, sha string) (Commit, error) {
	out, err := c.Run(ctx, "log", "-1", "--no-walk", logFormat, sha)
	if err != nil {
		return Commit{}, err
	}
	commits, err := parseLog(out)
	if err != nil {
		return Commit{}, err
	}
	if len(commits) != 1 {
		return Commit{}, errors.NewGitError("commit "+sha+" not found", errors.ErrUnknownRevision)
	}
	return commits[0], nil
}

func parseLog(out string) ([]Commit, error) {
	var commits []Commit
	for _, rec := range strings.Split(out, recordSep) {
		rec = strings.TrimLeft(rec, "\n")
		if strings.TrimSpace(rec) == "" {
			continue
		}
		fields := strings.SplitN(rec, fieldSep, 5)
		if len(fields) != 5 {
			return nil, fmt.Errorf("unexpected git log record: %q", rec)
		}
		secs, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("unexpected commit time %q: %w", fields[2], err)
		}
		commits = append(commits, Commit{
			SHA:     fields[0],
			Parents: strings.Fields(fields[1]),
			Time:    time.Unix(secs, 0).UTC(),
			Subject: fields[3],
			Body:    strings.TrimSpace(fields[4]),
		})
	}
	return commits, nil
}

// TopoOrder returns shas sorted children-before-parents, as git's
// --topo-order walk from those commits emits them. Commits are compared by
// full sha; input shas may be abbreviated but must already be resolved.
func (c *Client) TopoOrder(ctx context.Context, shas []string) ([]string, error) {
	if len(shas) == 0 {
		return nil, nil
	}
	want := make(map[string]bool, len(shas))
	for _, s := range shas {
		want[s] = true
	}

	args := append([]string{"rev-list", "--topo-order"}, shas...)
	lines, err := c.RunLines(ctx, args...)
	if err != nil {
		return nil, err
	}

	ordered := make([]string, 0, len(shas))
	for _, line := range lines {
		if want[line] {
			ordered = append(ordered, line)
			delete(want, line)
			if len(want) == 0 {
				break
			}
		}
	}
	if len(want) > 0 {
		return nil, errors.NewGitError(fmt.Sprintf("%d commits missing from topological walk", len(want)), errors.ErrUnknownRevision)
	}
	return ordered, nil
}

// Patch returns the diff a commit introduced relative to its first parent.
func (c *Client) Patch(ctx context.Context, sha string) (string, error) {
	return c.Run(ctx, "diff-tree", "-p", "--no-color", "--no-ext-diff", "--no-commit-id",
		"--root", "-m", "--first-parent", sha)
}
