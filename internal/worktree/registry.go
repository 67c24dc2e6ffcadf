package worktree

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/filelock"
)

// RegistryFileName is the workspace registry file inside the state directory.
const RegistryFileName = "workspaces.json"

// State is the lifecycle state of a workspace.
type State string

const (
	// StateActive means the workspace exists and is in use.
	StateActive State = "active"
	// StateConflicted means merging the workspace halted on conflicts in
	// the main working tree.
	StateConflicted State = "conflicted"
	// StateMerged means the workspace branch was merged into the main line.
	StateMerged State = "merged"
	// StateIncomplete means cleanup removed the directory but not the
	// branch. Running cleanup again finishes it.
	StateIncomplete State = "incomplete"
	// StateOrphaned is reported by List for an active workspace whose
	// owner process is gone or whose directory vanished. It is never stored.
	StateOrphaned State = "orphaned"
)

// Workspace is an isolated working directory and the branch checked out in
// it, owned by one agent.
type Workspace struct {
	ID     string `json:"id"`
	Owner  string `json:"owner"`
	Path   string `json:"path"`
	Branch string `json:"branch"`
	// Base is the ref the branch was started from and BaseSHA the commit
	// it resolved to.
	Base    string `json:"base"`
	BaseSHA string `json:"base_sha"`
	// PID is the owner process. An active workspace whose owner died is
	// listed as orphaned.
	PID           int       `json:"pid"`
	State         State     `json:"state"`
	MergeCommit   string    `json:"merge_commit,omitempty"`
	ConflictPaths []string  `json:"conflict_paths,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type registryFile struct {
	Workspaces []*Workspace `json:"workspaces"`
}

// Registry persists workspaces in a JSON file guarded by a flock on its
// directory, so separate processes can create workspaces concurrently.
type Registry struct {
	dir string
}

// NewRegistry returns a registry keeping its file in dir.
func NewRegistry(dir string) *Registry {
	return &Registry{dir: dir}
}

// Path returns the registry file path.
func (r *Registry) Path() string {
	return filepath.Join(r.dir, RegistryFileName)
}

// Load returns every recorded workspace, oldest first.
func (r *Registry) Load() ([]*Workspace, error) {
	var out []*Workspace
	err := filelock.With(r.dir, func() error {
		var err error
		out, err = r.read()
		return err
	})
	return out, err
}

// Find returns the workspace of owner. It fails with
// errors.ErrWorkspaceNotFound when the owner has none.
func (r *Registry) Find(owner string) (*Workspace, error) {
	all, err := r.Load()
	if err != nil {
		return nil, err
	}
	for _, ws := range all {
		if ws.Owner == owner {
			return ws, nil
		}
	}
	return nil, errors.NewWorkspaceError("no workspace recorded for owner", errors.ErrWorkspaceNotFound).
		WithOwner(owner).
		WithRepoState(errors.RepoUnchanged)
}

// Update runs fn on the recorded workspaces under the registry lock and
// writes back what it returns.
func (r *Registry) Update(fn func([]*Workspace) ([]*Workspace, error)) error {
	return filelock.With(r.dir, func() error {
		all, err := r.read()
		if err != nil {
			return err
		}
		all, err = fn(all)
		if err != nil {
			return err
		}
		return r.write(all)
	})
}

// Put records ws, replacing the entry with the same id.
func (r *Registry) Put(ws *Workspace) error {
	return r.Update(func(all []*Workspace) ([]*Workspace, error) {
		for i, cur := range all {
			if cur.ID == ws.ID {
				all[i] = ws
				return all, nil
			}
		}
		return append(all, ws), nil
	})
}

// Remove drops the entry with id.
func (r *Registry) Remove(id string) error {
	return r.Update(func(all []*Workspace) ([]*Workspace, error) {
		kept := all[:0]
		for _, ws := range all {
			if ws.ID != id {
				kept = append(kept, ws)
			}
		}
		return kept, nil
	})
}

func (r *Registry) read() ([]*Workspace, error) {
	data, err := os.ReadFile(r.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read workspace registry: %w", err)
	}
	var f registryFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal workspace registry: %w", err)
	}
	sort.SliceStable(f.Workspaces, func(i, j int) bool {
		return f.Workspaces[i].CreatedAt.Before(f.Workspaces[j].CreatedAt)
	})
	return f.Workspaces, nil
}

func (r *Registry) write(all []*Workspace) error {
	data, err := json.MarshalIndent(registryFile{Workspaces: all}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal workspace registry: %w", err)
	}
	return filelock.WriteFileAtomic(r.Path(), data)
}
