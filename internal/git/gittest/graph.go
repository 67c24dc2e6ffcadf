// Package gittest provides an in-memory commit graph for tests of code that
// reads git history.
package gittest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/git"
)

// Commit is a commit in a Graph.
type Commit struct {
	git.Commit
	// Files are the paths the commit touches.
	Files []string
	// Patch is returned by Graph.Patch.
	Patch string
}

// Graph is an in-memory commit graph. Commits added later are newer.
// It is safe for concurrent use.
type Graph struct {
	mu      sync.Mutex
	commits map[string]*Commit
	seq     []string
	orphans map[string]bool
	clock   time.Time
	// Calls counts method invocations by name.
	Calls map[string]int
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		commits: make(map[string]*Commit),
		orphans: make(map[string]bool),
		clock:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Calls:   make(map[string]int),
	}
}

// Add appends a commit with the given subject and parents and returns it
// for further setup. With no parents the commit's parent is the previous
// commit added, if any.
func (g *Graph) Add(sha, subject string, parents ...string) *Commit {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(parents) == 0 && len(g.seq) > 0 {
		parents = []string{g.seq[len(g.seq)-1]}
	}
	g.clock = g.clock.Add(time.Minute)
	c := &Commit{Commit: git.Commit{
		SHA:     sha,
		Parents: parents,
		Time:    g.clock,
		Subject: subject,
	}}
	g.commits[sha] = c
	g.seq = append(g.seq, sha)
	return c
}

// Root appends a commit with no parents.
func (g *Graph) Root(sha, subject string) *Commit {
	c := g.Add(sha, subject)
	g.mu.Lock()
	c.Parents = nil
	g.mu.Unlock()
	return c
}

// Remove deletes a commit, as a history rewrite followed by gc would.
func (g *Graph) Remove(sha string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.commits, sha)
	for i, s := range g.seq {
		if s == sha {
			g.seq = append(g.seq[:i:i], g.seq[i+1:]...)
			break
		}
	}
}

// Orphan keeps a commit's object but drops it from every ref, as a rebase
// or amend does before gc. It still resolves but is not reachable and does
// not show up in Log.
func (g *Graph) Orphan(sha string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orphans[sha] = true
}

// Has reports whether sha is in the graph.
func (g *Graph) Has(sha string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.commits[sha]
	return ok
}

// ResolveCommit implements the resolver used by correlate.Graph. Refs of at
// least four characters resolve by unique prefix.
func (g *Graph) ResolveCommit(_ context.Context, ref string) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls["ResolveCommit"]++

	if _, ok := g.commits[ref]; ok {
		return ref, true, nil
	}
	if len(ref) < 4 {
		return "", false, nil
	}
	var found string
	for sha := range g.commits {
		if strings.HasPrefix(sha, ref) {
			if found != "" {
				return "", false, nil
			}
			found = sha
		}
	}
	return found, found != "", nil
}

// Reachable reports whether sha is in the graph and not orphaned.
func (g *Graph) Reachable(_ context.Context, sha string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls["Reachable"]++

	_, ok := g.commits[sha]
	return ok && !g.orphans[sha], nil
}

// CommitInfo returns a commit or an errors.ErrUnknownRevision GitError.
func (g *Graph) CommitInfo(_ context.Context, sha string) (git.Commit, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls["CommitInfo"]++

	c, ok := g.commits[sha]
	if !ok {
		return git.Commit{}, errors.NewGitError("commit "+sha+" not found", errors.ErrUnknownRevision)
	}
	return c.Commit, nil
}

// Log returns matching commits newest first. Grep is a substring match on
// the full message, Paths match file prefixes and Pickaxe is a substring
// match on the patch. Revisions are ignored.
func (g *Graph) Log(_ context.Context, opts git.LogOptions) ([]git.Commit, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls["Log"]++

	var out []git.Commit
	for i := len(g.seq) - 1; i >= 0; i-- {
		c := g.commits[g.seq[i]]
		if g.orphans[c.SHA] {
			continue
		}
		if opts.Grep != "" && !strings.Contains(c.Message(), opts.Grep) {
			continue
		}
		if opts.Pickaxe != "" && !strings.Contains(c.Patch, opts.Pickaxe) {
			continue
		}
		if len(opts.Paths) > 0 && !touches(c.Files, opts.Paths) {
			continue
		}
		out = append(out, c.Commit)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

// TopoOrder sorts shas children-before-parents. Among commits with no
// ordering constraint, the one added later comes first.
func (g *Graph) TopoOrder(_ context.Context, shas []string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls["TopoOrder"]++

	for _, sha := range shas {
		if _, ok := g.commits[sha]; !ok {
			return nil, errors.NewGitError("commit "+sha+" missing from topological walk", errors.ErrUnknownRevision)
		}
	}

	// count children per commit, then emit commits whose children are all out
	children := make(map[string]int)
	for _, c := range g.commits {
		for _, p := range c.Parents {
			children[p]++
		}
	}
	pos := make(map[string]int, len(g.seq))
	for i, sha := range g.seq {
		pos[sha] = i
	}
	var ready []string
	for sha := range g.commits {
		if children[sha] == 0 {
			ready = append(ready, sha)
		}
	}

	var full []string
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return pos[ready[i]] > pos[ready[j]] })
		sha := ready[0]
		ready = ready[1:]
		full = append(full, sha)
		for _, p := range g.commits[sha].Parents {
			children[p]--
			if children[p] == 0 {
				if _, ok := g.commits[p]; ok {
					ready = append(ready, p)
				}
			}
		}
	}

	want := make(map[string]bool, len(shas))
	for _, s := range shas {
		want[s] = true
	}
	ordered := make([]string, 0, len(shas))
	for _, sha := range full {
		if want[sha] {
			ordered = append(ordered, sha)
		}
	}
	return ordered, nil
}

// Patch returns the patch set on the commit.
func (g *Graph) Patch(_ context.Context, sha string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls["Patch"]++

	c, ok := g.commits[sha]
	if !ok {
		return "", errors.NewGitError("commit "+sha+" not found", errors.ErrUnknownRevision)
	}
	return c.Patch, nil
}

// IsAncestor reports whether a is reachable from b through parent edges.
func (g *Graph) IsAncestor(a, b string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	seen := make(map[string]bool)
	stack := []string{b}
	for len(stack) > 0 {
		sha := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[sha] {
			continue
		}
		seen[sha] = true
		c, ok := g.commits[sha]
		if !ok {
			continue
		}
		for _, p := range c.Parents {
			if p == a {
				return true
			}
			stack = append(stack, p)
		}
	}
	return false
}

// String lists the graph's commits oldest first, for failure messages.
func (g *Graph) String() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var b strings.Builder
	for _, sha := range g.seq {
		c := g.commits[sha]
		fmt.Fprintf(&b, "%s %v %s\n", sha, c.Parents, c.Subject)
	}
	return b.String()
}

func touches(files, paths []string) bool {
	for _, f := range files {
		for _, p := range paths {
			if f == p || strings.HasPrefix(f, strings.TrimSuffix(p, "/")+"/") {
				return true
			}
		}
	}
	return false
}
