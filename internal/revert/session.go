package revert

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/filelock"
)

// SessionFileName is the session file inside the state directory.
const SessionFileName = "revert-session.json"

// State is the state of a revert session.
type State string

// Session states
const (
	StatePlanned    State = "planned"
	StateReverting  State = "reverting"
	StateConflicted State = "conflicted"
	StateCompleted  State = "completed"
	StateAborted    State = "aborted"
)

// Active reports whether a session in this state still owns the
// repository.
func (s State) Active() bool {
	return s == StatePlanned || s == StateReverting || s == StateConflicted
}

// Step is one commit in a session's queue.
type Step struct {
	SHA      string   `json:"sha"`
	Subject  string   `json:"subject"`
	Mainline int      `json:"mainline,omitempty"`
	ItemIDs  []string `json:"item_ids,omitempty"`
}

// Session is a persisted revert in progress. The revert plan is not kept;
// only what is needed to continue, abort and reconcile.
type Session struct {
	ID       string `json:"id"`
	TrackID  string `json:"track_id"`
	TargetID string `json:"target_id"`
	State    State  `json:"state"`
	// StartHead is HEAD before the first commit was reverted; abort
	// restores it.
	StartHead string `json:"start_head"`
	// Head is HEAD after the last step the session observed.
	Head  string `json:"head"`
	Queue []Step `json:"queue"`
	// Applied lists the queued commits reverted so far, in order.
	Applied []string `json:"applied,omitempty"`
	// Reverts lists the revert commits created, parallel to Applied.
	Reverts []string `json:"reverts,omitempty"`
	// Items lists the target and its descendants.
	Items []string `json:"items"`
	// Covered lists every stored ref the plan accounted for.
	Covered       []string  `json:"covered"`
	ConflictPaths []string  `json:"conflict_paths,omitempty"`
	Reconcile     string    `json:"reconcile_commit,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Remaining returns the steps not yet applied.
func (s *Session) Remaining() []Step {
	if len(s.Applied) >= len(s.Queue) {
		return nil
	}
	return s.Queue[len(s.Applied):]
}

// Current returns the step the session is halted on or will apply next.
func (s *Session) Current() (Step, bool) {
	rest := s.Remaining()
	if len(rest) == 0 {
		return Step{}, false
	}
	return rest[0], true
}

// RemainingSHAs returns the shas of Remaining.
func (s *Session) RemainingSHAs() []string {
	var out []string
	for _, st := range s.Remaining() {
		out = append(out, st.SHA)
	}
	return out
}

// SessionStore persists the session of one repository.
type SessionStore struct {
	dir string
}

// NewSessionStore returns a store keeping its file in dir.
func NewSessionStore(dir string) *SessionStore {
	return &SessionStore{dir: dir}
}

// Path returns the session file path.
func (s *SessionStore) Path() string {
	return filepath.Join(s.dir, SessionFileName)
}

// Load reads the session. It returns errors.ErrNoSession when there is none.
func (s *SessionStore) Load() (*Session, error) {
	var sess *Session
	err := filelock.With(s.dir, func() error {
		data, err := os.ReadFile(s.Path())
		if err != nil {
			if os.IsNotExist(err) {
				return errors.ErrNoSession
			}
			return fmt.Errorf("read session file: %w", err)
		}
		sess = &Session{}
		if err := json.Unmarshal(data, sess); err != nil {
			return fmt.Errorf("unmarshal session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Save writes the session atomically.
func (s *SessionStore) Save(sess *Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return filelock.With(s.dir, func() error {
		return filelock.WriteFileAtomic(s.Path(), data)
	})
}

// Clear removes the session file.
func (s *SessionStore) Clear() error {
	return filelock.With(s.dir, func() error {
		if err := os.Remove(s.Path()); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove session file: %w", err)
		}
		return nil
	})
}
