// Package worktree manages isolated workspaces: a git worktree plus the
// branch checked out in it, one per owner, so concurrent agents never share
// a working tree.
//
// Workspaces are recorded in a registry in the repository's state
// directory. Merges into the main line take a lock file in the same
// directory and are therefore serialized across processes.
package worktree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"

	"github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/filelock"
	"github.com/Iron-Ham/conductor/internal/git"
	"github.com/Iron-Ham/conductor/internal/logging"
)

// MainlineLock is the lock name serializing merges into the main line.
const MainlineLock = "mainline"

// DefaultBranchPrefix is used for branch names when no hint is given.
const DefaultBranchPrefix = "conductor"

// maxSuggestions bounds the search for a free alternative name.
const maxSuggestions = 100

// MergeResult describes a completed merge.
type MergeResult struct {
	Workspace *Workspace
	// Into is the branch checked out in the main working tree.
	Into string
	// Commit is the merge commit.
	Commit string
}

// EventObserver is called after each workspace lifecycle event: created,
// merged, conflicted, merge_aborted, cleaned or cleanup_failed.
type EventObserver func(event string, ws *Workspace)

// Manager creates, merges and removes workspaces.
type Manager struct {
	open     Opener
	root     string
	dir      string
	stateDir string
	prefix   string

	lockTimeout time.Duration
	lockPoll    time.Duration

	registry *Registry
	logger   *logging.Logger
	now      func() time.Time
	observer EventObserver
}

// Option configures a Manager.
type Option func(*Manager)

// WithWorktreeDir sets the directory workspaces are created in.
func WithWorktreeDir(dir string) Option {
	return func(m *Manager) {
		if dir != "" {
			m.dir = dir
		}
	}
}

// WithBranchPrefix sets the prefix of generated branch names.
func WithBranchPrefix(prefix string) Option {
	return func(m *Manager) {
		if prefix != "" {
			m.prefix = prefix
		}
	}
}

// WithMergeLock sets how long Merge waits for the mainline lock and how
// often it polls.
func WithMergeLock(timeout, poll time.Duration) Option {
	return func(m *Manager) {
		m.lockTimeout = timeout
		m.lockPoll = poll
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock sets the time source for registry timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithEventObserver sets a callback for lifecycle events.
func WithEventObserver(o EventObserver) Option {
	return func(m *Manager) {
		m.observer = o
	}
}

// NewManager creates a Manager for the repository whose main working tree
// is root. stateDir holds the registry and the mainline lock.
func NewManager(open Opener, root, stateDir string, opts ...Option) *Manager {
	m := &Manager{
		open:        open,
		root:        root,
		dir:         filepath.Join(root, ".conductor", "worktrees"),
		stateDir:    stateDir,
		prefix:      DefaultBranchPrefix,
		lockTimeout: 2 * time.Minute,
		lockPoll:    250 * time.Millisecond,
		registry:    NewRegistry(stateDir),
		logger:      logging.NopLogger(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry returns the workspace registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// CreateOption configures Create.
type CreateOption func(*createOptions)

type createOptions struct {
	base string
	pid  int
}

// FromBase starts the workspace branch from ref instead of the main
// working tree's HEAD.
func FromBase(ref string) CreateOption {
	return func(o *createOptions) {
		o.base = ref
	}
}

// OwnedBy records pid as the owner process. The default is the parent of
// the current process, which is the agent that invoked conductor.
func OwnedBy(pid int) CreateOption {
	return func(o *createOptions) {
		o.pid = pid
	}
}

// Create adds a workspace for owner on a new branch. The branch is
// branchHint, or <prefix>/<owner> when the hint is empty.
//
// Create never reuses or overwrites anything: it fails with
// errors.ErrBranchExists when the branch exists and errors.ErrPathConflict
// when the directory exists or the owner already has a workspace, before
// anything is created. Both errors carry a suggested free name.
func (m *Manager) Create(ctx context.Context, owner, branchHint string, opts ...CreateOption) (*Workspace, error) {
	o := createOptions{pid: os.Getppid()}
	for _, opt := range opts {
		opt(&o)
	}

	slug := Slug(owner)
	if slug == "" {
		return nil, errors.NewWorkspaceError("owner must contain at least one letter or digit", errors.ErrInvalidInput).
			WithOwner(owner).
			WithRepoState(errors.RepoUnchanged)
	}
	branch := strings.TrimSpace(branchHint)
	if branch == "" {
		branch = m.prefix + "/" + slug
	}
	path := filepath.Join(m.dir, slug)
	logger := m.logger.WithWorkspace(owner)
	repo := m.open(m.root)

	if existing, err := m.registry.Find(owner); err == nil {
		return nil, errors.NewWorkspaceError(fmt.Sprintf("owner already has a %s workspace", existing.State), errors.ErrPathConflict).
			WithOwner(owner).
			WithPath(existing.Path).
			WithBranch(existing.Branch).
			WithSuggestion(m.suggestOwner(owner)).
			WithRepoState(errors.RepoUnchanged)
	} else if !errors.Is(err, errors.ErrWorkspaceNotFound) {
		return nil, err
	}

	exists, err := repo.BranchExists(ctx, branch)
	if err != nil {
		return nil, wrap("failed to check branch", err, owner).WithBranch(branch)
	}
	if exists {
		return nil, errors.NewWorkspaceError("branch already exists", errors.ErrBranchExists).
			WithOwner(owner).
			WithBranch(branch).
			WithSuggestion(m.suggestBranch(ctx, repo, branch)).
			WithRepoState(errors.RepoUnchanged)
	}
	if _, err := os.Stat(path); err == nil {
		return nil, errors.NewWorkspaceError("workspace directory already exists", errors.ErrPathConflict).
			WithOwner(owner).
			WithPath(path).
			WithSuggestion(m.suggestOwner(owner)).
			WithRepoState(errors.RepoUnchanged)
	}

	base := o.base
	if base == "" {
		if base, err = repo.CurrentBranch(ctx); err != nil {
			return nil, wrap("failed to read current branch", err, owner)
		}
	}
	baseSHA, ok, err := repo.ResolveCommit(ctx, base)
	if err != nil {
		return nil, wrap("failed to resolve base", err, owner)
	}
	if !ok {
		return nil, errors.NewWorkspaceError(fmt.Sprintf("base %q is not a commit", base), errors.ErrUnknownRevision).
			WithOwner(owner).
			WithRepoState(errors.RepoUnchanged)
	}

	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return nil, wrap("failed to create worktree directory", err, owner)
	}
	if err := repo.WorktreeAdd(ctx, path, branch, baseSHA); err != nil {
		// a racing Create surfaces here as ErrBranchExists or ErrPathConflict
		return nil, errors.NewWorkspaceError("failed to add worktree", err).
			WithOwner(owner).
			WithPath(path).
			WithBranch(branch).
			WithRepoState(errors.RepoUnchanged)
	}

	now := m.now().UTC()
	ws := &Workspace{
		ID:        uuid.NewString(),
		Owner:     owner,
		Path:      path,
		Branch:    branch,
		Base:      base,
		BaseSHA:   baseSHA,
		PID:       o.pid,
		State:     StateActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := m.initSubmodules(ctx, ws); err != nil {
		m.rollback(ctx, repo, ws)
		return nil, wrap("failed to initialize submodules", err, owner).WithPath(path)
	}
	if err := m.registry.Put(ws); err != nil {
		m.rollback(ctx, repo, ws)
		return nil, wrap("failed to record workspace", err, owner).WithPath(path)
	}

	logger.Info("workspace created", "path", path, "branch", branch, "base", base, "base_sha", baseSHA, "pid", ws.PID)
	m.emit("created", ws)
	return ws, nil
}

// rollback removes a half-created workspace so a failed Create leaves
// nothing behind.
func (m *Manager) rollback(ctx context.Context, repo Repo, ws *Workspace) {
	bg := context.WithoutCancel(ctx)
	logger := m.logger.WithWorkspace(ws.Owner)
	if err := repo.WorktreeRemove(bg, ws.Path, true); err != nil {
		logger.Warn("rollback: failed to remove worktree", "path", ws.Path, "error", err)
	}
	if err := repo.DeleteBranch(bg, ws.Branch, true); err != nil {
		logger.Warn("rollback: failed to delete branch", "branch", ws.Branch, "error", err)
	}
}

// Get returns the workspace of owner.
func (m *Manager) Get(owner string) (*Workspace, error) {
	return m.registry.Find(owner)
}

// List returns the recorded workspaces whose owner matches pattern (a glob;
// empty matches all). Active workspaces whose owner process died or whose
// directory vanished are reported as orphaned.
func (m *Manager) List(pattern string) ([]*Workspace, error) {
	match, err := Matcher(pattern)
	if err != nil {
		return nil, err
	}
	all, err := m.registry.Load()
	if err != nil {
		return nil, err
	}
	var out []*Workspace
	for _, ws := range all {
		if !match(ws.Owner) {
			continue
		}
		if ws.State == StateActive {
			if _, err := os.Stat(ws.Path); err != nil || !filelock.IsProcessAlive(ws.PID) {
				ws.State = StateOrphaned
			}
		}
		out = append(out, ws)
	}
	return out, nil
}

// Matcher compiles an owner glob such as "agent-*". The empty pattern
// matches everything.
func Matcher(pattern string) (func(string) bool, error) {
	if pattern == "" {
		return func(string) bool { return true }, nil
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, errors.NewValidationError(fmt.Sprintf("invalid owner pattern %q: %v", pattern, err)).
			WithField("match").
			WithValue(pattern)
	}
	return g.Match, nil
}

// Merge merges the workspace branch into the branch checked out in the main
// working tree with a merge commit, holding the mainline lock.
//
// Merge never resolves conflicts: it fails with errors.ErrMergeConflict,
// leaving the merge halted for MergeContinue or MergeAbort. It fails with
// errors.ErrDirtyWorkingTree when either working tree has uncommitted
// changes.
func (m *Manager) Merge(ctx context.Context, owner string) (*MergeResult, error) {
	ws, err := m.registry.Find(owner)
	if err != nil {
		return nil, err
	}
	logger := m.logger.WithWorkspace(owner)

	switch ws.State {
	case StateConflicted:
		return nil, errors.NewWorkspaceError("merge is halted on conflicts; continue or abort it", errors.ErrMergeConflict).
			WithOwner(owner).
			WithBranch(ws.Branch).
			WithConflicts(ws.ConflictPaths).
			WithRepoState(errors.RepoPartiallyApplied)
	case StateIncomplete:
		return nil, errors.NewWorkspaceError("workspace is being removed; run cleanup again", errors.ErrInvalidTransition).
			WithOwner(owner).
			WithRepoState(errors.RepoUnchanged)
	}

	dirty, err := m.open(ws.Path).HasUncommittedChanges(ctx)
	if err != nil {
		return nil, wrap("failed to inspect workspace", err, owner).WithPath(ws.Path)
	}
	if dirty {
		return nil, errors.NewWorkspaceError("workspace has uncommitted changes; commit them before merging", errors.ErrDirtyWorkingTree).
			WithOwner(owner).
			WithPath(ws.Path).
			WithRepoState(errors.RepoUnchanged)
	}

	lock, err := m.lock(ctx, owner)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release() }()

	root := m.open(m.root)
	if halted, err := root.MergeInProgress(ctx); err != nil {
		return nil, wrap("failed to inspect main working tree", err, owner)
	} else if halted {
		return nil, errors.NewWorkspaceError("another merge is halted in the main working tree", errors.ErrMergeConflict).
			WithOwner(owner).
			WithPath(m.root).
			WithRepoState(errors.RepoUnchanged)
	}
	clean, err := root.IsClean(ctx)
	if err != nil {
		return nil, wrap("failed to inspect main working tree", err, owner)
	}
	if !clean {
		return nil, errors.NewWorkspaceError("main working tree has uncommitted changes", errors.ErrDirtyWorkingTree).
			WithOwner(owner).
			WithPath(m.root).
			WithRepoState(errors.RepoUnchanged)
	}

	into, err := root.CurrentBranch(ctx)
	if err != nil {
		return nil, wrap("failed to read current branch", err, owner)
	}

	logger.Info("merging workspace", "branch", ws.Branch, "into", into)
	if err := root.MergeNoFF(ctx, ws.Branch, mergeMessage(ws, into)); err != nil {
		halted, herr := root.MergeInProgress(context.WithoutCancel(ctx))
		if herr != nil || !halted {
			return nil, wrap("merge failed", err, owner).WithBranch(ws.Branch)
		}
		return nil, m.halt(ctx, root, ws, err)
	}

	head, err := root.HeadSHA(ctx)
	if err != nil {
		return nil, wrap("failed to read merge commit", err, owner).WithRepoState(errors.RepoFullyApplied)
	}
	if err := m.finishMerge(ws, head); err != nil {
		return nil, err
	}
	logger.Info("workspace merged", "branch", ws.Branch, "into", into, "commit", head)
	return &MergeResult{Workspace: ws, Into: into, Commit: head}, nil
}

// MergeContinue concludes a halted merge once every conflicting file was
// resolved. It fails with errors.ErrMergeConflict while conflict markers
// remain.
func (m *Manager) MergeContinue(ctx context.Context, owner string) (*MergeResult, error) {
	ws, err := m.conflicted(owner)
	if err != nil {
		return nil, err
	}
	lock, err := m.lock(ctx, owner)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release() }()

	root := m.open(m.root)
	halted, err := root.MergeInProgress(ctx)
	if err != nil {
		return nil, wrap("failed to inspect main working tree", err, owner)
	}
	if !halted {
		// concluded or aborted by hand; the workspace can be merged again
		if err := m.setState(ws, StateActive); err != nil {
			return nil, err
		}
		return nil, errors.NewWorkspaceError("no merge is in progress; merge the workspace again", errors.ErrInvalidTransition).
			WithOwner(owner).
			WithRepoState(errors.RepoUnchanged)
	}

	unresolved, err := git.UnresolvedConflicts(m.root, ws.ConflictPaths)
	if err != nil {
		return nil, wrap("failed to check conflict resolution", err, owner)
	}
	if len(unresolved) > 0 {
		return nil, errors.NewWorkspaceError("conflict markers remain; resolve them before continuing", errors.ErrMergeConflict).
			WithOwner(owner).
			WithConflicts(unresolved).
			WithRepoState(errors.RepoPartiallyApplied)
	}
	if len(ws.ConflictPaths) > 0 {
		if err := root.Add(ctx, ws.ConflictPaths...); err != nil {
			return nil, wrap("failed to stage resolved files", err, owner).WithRepoState(errors.RepoPartiallyApplied)
		}
	}
	if err := root.MergeContinue(ctx); err != nil {
		return nil, m.halt(ctx, root, ws, err)
	}

	head, err := root.HeadSHA(ctx)
	if err != nil {
		return nil, wrap("failed to read merge commit", err, owner).WithRepoState(errors.RepoFullyApplied)
	}
	into, err := root.CurrentBranch(ctx)
	if err != nil {
		return nil, wrap("failed to read current branch", err, owner).WithRepoState(errors.RepoFullyApplied)
	}
	if err := m.finishMerge(ws, head); err != nil {
		return nil, err
	}
	m.logger.WithWorkspace(owner).Info("workspace merged after conflicts", "branch", ws.Branch, "commit", head)
	return &MergeResult{Workspace: ws, Into: into, Commit: head}, nil
}

// MergeAbort cancels a halted merge and restores the main working tree.
func (m *Manager) MergeAbort(ctx context.Context, owner string) (*Workspace, error) {
	ws, err := m.conflicted(owner)
	if err != nil {
		return nil, err
	}
	lock, err := m.lock(ctx, owner)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release() }()

	root := m.open(m.root)
	halted, err := root.MergeInProgress(ctx)
	if err != nil {
		return nil, wrap("failed to inspect main working tree", err, owner)
	}
	if halted {
		if err := root.MergeAbort(ctx); err != nil {
			return nil, wrap("git merge --abort failed", err, owner).WithRepoState(errors.RepoPartiallyApplied)
		}
	}
	ws.ConflictPaths = nil
	if err := m.setState(ws, StateActive); err != nil {
		return nil, err
	}
	m.logger.WithWorkspace(owner).Info("workspace merge aborted", "branch", ws.Branch)
	m.emit("merge_aborted", ws)
	return ws, nil
}

// Cleanup removes the workspace directory and its branch together and
// drops the registry entry.
//
// Without force it refuses (errors.ErrDirtyWorkingTree) when the workspace
// has uncommitted changes, (errors.ErrMergeConflict) when its merge is
// halted, and (errors.ErrUnmergedWork) when the branch has commits that are
// not in the main working tree's HEAD. With force, local changes and
// unmerged commits are discarded and a halted merge is aborted first. When the directory is removed but the branch cannot be
// deleted the entry is kept as incomplete and Cleanup can be run again.
func (m *Manager) Cleanup(ctx context.Context, owner string, force bool) error {
	ws, err := m.registry.Find(owner)
	if err != nil {
		return err
	}
	logger := m.logger.WithWorkspace(owner)
	root := m.open(m.root)

	if ws.State == StateConflicted {
		if !force {
			return errors.NewWorkspaceError("merge is halted on conflicts; continue or abort it first", errors.ErrMergeConflict).
				WithOwner(owner).
				WithConflicts(ws.ConflictPaths).
				WithRepoState(errors.RepoPartiallyApplied)
		}
		if _, err := m.MergeAbort(ctx, owner); err != nil {
			return err
		}
	}

	_, statErr := os.Stat(ws.Path)
	dirExists := statErr == nil
	if dirExists && !force {
		dirty, err := m.open(ws.Path).HasUncommittedChanges(ctx)
		if err != nil {
			return wrap("failed to inspect workspace", err, owner).WithPath(ws.Path)
		}
		if dirty {
			return errors.NewWorkspaceError("workspace has uncommitted changes; commit them or force cleanup", errors.ErrDirtyWorkingTree).
				WithOwner(owner).
				WithPath(ws.Path).
				WithRepoState(errors.RepoUnchanged)
		}
	}

	branchExists, err := root.BranchExists(ctx, ws.Branch)
	if err != nil {
		return wrap("failed to check branch", err, owner).WithBranch(ws.Branch)
	}
	if branchExists && !force {
		unmerged, err := m.unmerged(ctx, root, ws)
		if err != nil {
			return wrap("failed to inspect branch", err, owner).WithBranch(ws.Branch)
		}
		if unmerged {
			return errors.NewWorkspaceError("branch has commits that were never merged; merge the workspace or force cleanup", errors.ErrUnmergedWork).
				WithOwner(owner).
				WithBranch(ws.Branch).
				WithRepoState(errors.RepoUnchanged)
		}
	}

	if dirExists {
		if err := root.WorktreeRemove(ctx, ws.Path, force); err != nil {
			return wrap("failed to remove worktree", err, owner).WithPath(ws.Path)
		}
	} else if err := root.WorktreePrune(ctx); err != nil {
		logger.Warn("failed to prune worktrees", "error", err)
	}

	if branchExists {
		// the directory is gone; keeping the branch would orphan it
		if err := root.DeleteBranch(ctx, ws.Branch, true); err != nil {
			if serr := m.setState(ws, StateIncomplete); serr != nil {
				logger.Error("failed to record incomplete cleanup", "error", serr)
			}
			m.emit("cleanup_failed", ws)
			return errors.NewWorkspaceError("directory removed but branch could not be deleted; run cleanup again", err).
				WithOwner(owner).
				WithBranch(ws.Branch).
				WithRepoState(errors.RepoPartiallyApplied)
		}
	}

	if err := m.registry.Remove(ws.ID); err != nil {
		return wrap("failed to update workspace registry", err, owner).WithRepoState(errors.RepoFullyApplied)
	}
	logger.Info("workspace removed", "path", ws.Path, "branch", ws.Branch, "forced", force)
	m.emit("cleaned", ws)
	return nil
}

// unmerged reports whether the workspace branch carries commits beyond its
// base that the main working tree's HEAD does not contain. A merged
// workspace, or one whose cleanup already removed the directory, has
// nothing left to lose.
func (m *Manager) unmerged(ctx context.Context, root Repo, ws *Workspace) (bool, error) {
	if ws.State == StateMerged || ws.State == StateIncomplete {
		return false, nil
	}
	tip, ok, err := root.ResolveCommit(ctx, ws.Branch)
	if err != nil || !ok {
		return false, err
	}
	if tip == ws.BaseSHA {
		return false, nil
	}
	merged, err := root.IsAncestor(ctx, tip, "HEAD")
	if err != nil {
		return false, err
	}
	return !merged, nil
}

func (m *Manager) conflicted(owner string) (*Workspace, error) {
	ws, err := m.registry.Find(owner)
	if err != nil {
		return nil, err
	}
	if ws.State != StateConflicted {
		return nil, errors.NewWorkspaceError(fmt.Sprintf("workspace is %s; no merge to continue or abort", ws.State), errors.ErrInvalidTransition).
			WithOwner(owner).
			WithRepoState(errors.RepoUnchanged)
	}
	return ws, nil
}

func (m *Manager) lock(ctx context.Context, owner string) (*filelock.Lock, error) {
	lock, err := filelock.AcquireWait(ctx, m.stateDir, MainlineLock, owner, m.lockPoll, m.lockTimeout, m.logger)
	if err != nil {
		return nil, errors.NewWorkspaceError("failed to acquire the mainline lock", err).
			WithOwner(owner).
			WithRepoState(errors.RepoUnchanged)
	}
	return lock, nil
}

// halt records a merge stopped on conflicts and reports them.
func (m *Manager) halt(ctx context.Context, root Repo, ws *Workspace, cause error) error {
	bg := context.WithoutCancel(ctx)
	paths, err := root.ConflictingFiles(bg)
	if err != nil {
		m.logger.WithWorkspace(ws.Owner).Warn("failed to list conflicting files", "error", err)
	}
	diff, err := root.WorkingDiff(bg)
	if err != nil {
		m.logger.WithWorkspace(ws.Owner).Warn("failed to read conflict diff", "error", err)
	}

	ws.ConflictPaths = paths
	if err := m.setState(ws, StateConflicted); err != nil {
		return err
	}
	m.logger.WithWorkspace(ws.Owner).Warn("workspace merge conflicted", "branch", ws.Branch, "conflicts", paths)
	m.emit("conflicted", ws)

	msg := "merge halted on conflicts; resolve and continue, or abort"
	if diff != "" {
		msg += "\n" + diff
	}
	return errors.NewWorkspaceError(msg, errors.Join(errors.ErrMergeConflict, cause)).
		WithOwner(ws.Owner).
		WithBranch(ws.Branch).
		WithConflicts(paths).
		WithRepoState(errors.RepoPartiallyApplied)
}

func (m *Manager) finishMerge(ws *Workspace, commit string) error {
	ws.MergeCommit = commit
	ws.ConflictPaths = nil
	if err := m.setState(ws, StateMerged); err != nil {
		return err
	}
	m.emit("merged", ws)
	return nil
}

func (m *Manager) setState(ws *Workspace, s State) error {
	ws.State = s
	ws.UpdatedAt = m.now().UTC()
	if err := m.registry.Put(ws); err != nil {
		return wrap("failed to update workspace registry", err, ws.Owner)
	}
	return nil
}

func (m *Manager) emit(event string, ws *Workspace) {
	if m.observer != nil {
		m.observer(event, ws)
	}
}

func (m *Manager) suggestBranch(ctx context.Context, repo Repo, branch string) string {
	for i := 2; i < maxSuggestions; i++ {
		cand := fmt.Sprintf("%s-%d", branch, i)
		if exists, err := repo.BranchExists(ctx, cand); err == nil && !exists {
			return cand
		}
	}
	return ""
}

func (m *Manager) suggestOwner(owner string) string {
	all, _ := m.registry.Load()
	taken := make(map[string]bool, len(all))
	for _, ws := range all {
		taken[ws.Owner] = true
	}
	for i := 2; i < maxSuggestions; i++ {
		cand := fmt.Sprintf("%s-%d", owner, i)
		if taken[cand] {
			continue
		}
		if _, err := os.Stat(filepath.Join(m.dir, Slug(cand))); os.IsNotExist(err) {
			return cand
		}
	}
	return ""
}

func mergeMessage(ws *Workspace, into string) string {
	return fmt.Sprintf("Merge workspace %s (%s) into %s", ws.Owner, ws.Branch, into)
}

func wrap(msg string, err error, owner string) *errors.WorkspaceError {
	return errors.NewWorkspaceError(msg, err).WithOwner(owner).WithRepoState(errors.RepoUnchanged)
}

// Slug turns an owner into a directory and branch component: lower case
// letters, digits, dots, dashes and underscores.
func Slug(owner string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(owner)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.Trim(b.String(), "-.")
}
