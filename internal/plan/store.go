package plan

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"

	"github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/filelock"
	"github.com/Iron-Ham/conductor/internal/logging"
)

// DefaultRetries is how many times Update reloads and retries after a
// concurrent modification.
const DefaultRetries = 3

// Store owns one track's plan document and metadata record. Every mutation
// verifies that neither file changed on disk since the last load before it
// writes, so concurrent edits from another process are never overwritten.
//
// A Store is not safe for concurrent use by multiple goroutines.
type Store struct {
	planPath string
	metaPath string
	regPath  string
	trackID  string
	logger   *logging.Logger
	now      func() time.Time
	retries  int

	tree  *Tree
	meta  *Metadata
	token string
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the logger used for store events.
func WithStoreLogger(l *logging.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used for metadata timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// WithRetries sets how many attempts Update makes.
func WithRetries(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.retries = n
		}
	}
}

// WithRegistry makes every write also update the track's marker in the
// track registry at path. A missing registry, or one without an entry for
// the track, is left alone.
func WithRegistry(path string) StoreOption {
	return func(s *Store) {
		s.regPath = path
	}
}

// NewStore creates a store for the plan document at planPath and the
// metadata record at metaPath. trackID names the track when the plan's
// heading does not.
func NewStore(planPath, metaPath, trackID string, opts ...StoreOption) *Store {
	s := &Store{
		planPath: planPath,
		metaPath: metaPath,
		trackID:  trackID,
		logger:   logging.NopLogger(),
		now:      time.Now,
		retries:  DefaultRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlanPath returns the plan document path.
func (s *Store) PlanPath() string { return s.planPath }

// MetadataPath returns the metadata record path.
func (s *Store) MetadataPath() string { return s.metaPath }

// Files lists the files a write may have changed that exist on disk: the
// plan document, the metadata record and the track registry.
func (s *Store) Files() []string {
	files := []string{s.planPath}
	for _, p := range []string{s.metaPath, s.regPath} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			files = append(files, p)
		}
	}
	return files
}

// TrackID returns the id of the loaded track, or the id the store was
// created with before the first load.
func (s *Store) TrackID() string {
	if s.tree != nil && s.tree.Root != nil && s.tree.Root.ID != "" {
		return s.tree.Root.ID
	}
	return s.trackID
}

// Tree returns the tree from the last load or write, or nil before Load.
// Callers must not mutate it; use Apply or Update.
func (s *Store) Tree() *Tree { return s.tree }

// Metadata returns the metadata from the last load or write.
func (s *Store) Metadata() *Metadata { return s.meta }

// Token returns the content hash the store expects to find on disk.
func (s *Store) Token() string { return s.token }

// Load reads the plan document and metadata record. A missing metadata
// file is treated as empty.
func (s *Store) Load() (*Tree, error) {
	planData, metaData, err := s.read()
	if err != nil {
		return nil, err
	}
	tree, err := Parse(planData, s.trackID)
	if err != nil {
		var pe *errors.PlanError
		if errors.As(err, &pe) {
			pe.WithPath(s.planPath)
		}
		return nil, err
	}
	meta, err := ParseMetadata(metaData, tree.Root.ID)
	if err != nil {
		return nil, errors.NewPlanError("metadata record is not valid JSON", errors.Join(errors.ErrMalformedPlan, err)).WithPath(s.metaPath)
	}
	if tree.Root.line == nil {
		if rec := meta.Record(tree.Root.ID); rec != nil && rec.Status.Valid() {
			tree.Root.Status = rec.Status
		}
	}

	s.tree, s.meta = tree, meta
	s.token = contentToken(planData, metaData)
	s.logger.Debug("plan loaded", "plan", s.planPath, "items", len(tree.index), "token", s.token[:12])
	return tree, nil
}

// SetStatus changes an item's status and writes the plan.
func (s *Store) SetStatus(id string, status Status) error {
	return s.Apply(func(tx *Tx) error {
		return tx.SetStatus(id, status)
	})
}

// Unblock clears a blocked item and writes the plan.
func (s *Store) Unblock(id string, status Status) error {
	return s.Apply(func(tx *Tx) error {
		return tx.Unblock(id, status)
	})
}

// RecordCommit appends sha to an item's commit refs and writes the plan.
// Recording a sha that is already present changes nothing.
func (s *Store) RecordCommit(id, sha string, kind CommitKind, message string) error {
	return s.Apply(func(tx *Tx) error {
		return tx.RecordCommit(id, sha, kind, message)
	})
}

// Save writes the current tree back to disk after the concurrency check.
// With no pending mutation the written plan is byte-identical to the one
// loaded.
func (s *Store) Save() error {
	if s.tree == nil {
		return errors.NewPlanError("store has not been loaded", errors.ErrInvalidInput).WithPath(s.planPath)
	}
	if err := s.verify(); err != nil {
		return err
	}
	return s.write(s.tree, s.meta)
}

// Apply runs fn against a copy of the current state and writes the result.
// It fails with errors.ErrConcurrentModification if either file changed on
// disk since the last load; the in-memory state is left untouched when fn
// or the write fails.
func (s *Store) Apply(fn func(*Tx) error) error {
	if s.tree == nil {
		if _, err := s.Load(); err != nil {
			return err
		}
	}
	if err := s.verify(); err != nil {
		return err
	}

	tx := &Tx{tree: s.tree.Clone(), meta: s.meta.Clone(), now: s.now().UTC()}
	if err := fn(tx); err != nil {
		return err
	}
	if !tx.changed {
		return nil
	}
	return s.write(tx.tree, tx.meta)
}

// Update is Apply with reload-and-retry on concurrent modification.
func (s *Store) Update(fn func(*Tx) error) error {
	var err error
	for attempt := 1; attempt <= s.retries; attempt++ {
		err = s.Apply(fn)
		if !errors.Is(err, errors.ErrConcurrentModification) {
			return err
		}
		s.logger.Warn("plan changed on disk, reloading", "plan", s.planPath, "attempt", attempt)
		if _, lerr := s.Load(); lerr != nil {
			return lerr
		}
	}
	return err
}

func (s *Store) read() ([]byte, []byte, error) {
	planData, err := os.ReadFile(s.planPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errors.NewPlanError("plan document does not exist", errors.Join(errors.ErrItemNotFound, err)).WithPath(s.planPath)
		}
		return nil, nil, errors.NewPlanError("failed to read plan document", err).WithPath(s.planPath)
	}
	metaData, err := os.ReadFile(s.metaPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, nil, errors.NewPlanError("failed to read metadata record", err).WithPath(s.metaPath)
	}
	return planData, metaData, nil
}

func (s *Store) verify() error {
	planData, metaData, err := s.read()
	if err != nil {
		return err
	}
	if contentToken(planData, metaData) != s.token {
		return errors.NewPlanError("plan changed on disk since it was loaded", errors.ErrConcurrentModification).
			WithPath(s.planPath).
			WithRetryable(true)
	}
	return nil
}

func (s *Store) write(tree *Tree, meta *Metadata) error {
	planData := tree.Render()
	metaData, err := meta.Marshal()
	if err != nil {
		return errors.NewPlanError("failed to encode metadata record", err).WithPath(s.metaPath)
	}
	if err := writeFileAtomic(s.planPath, planData); err != nil {
		return errors.NewPlanError("failed to write plan document", err).WithPath(s.planPath)
	}
	if err := writeFileAtomic(s.metaPath, metaData); err != nil {
		return errors.NewPlanError("failed to write metadata record", err).WithPath(s.metaPath)
	}

	tree.flush()
	s.tree, s.meta = tree, meta
	s.token = contentToken(planData, metaData)
	s.logger.Debug("plan written", "plan", s.planPath, "token", s.token[:12])
	return s.syncRegistry(tree.Root)
}

// syncRegistry copies the track's status into its registry entry. The
// registry is shared by every track and is not covered by the token.
func (s *Store) syncRegistry(root *Item) error {
	if s.regPath == "" || root == nil {
		return nil
	}
	data, err := os.ReadFile(s.regPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.NewPlanError("failed to read track registry", err).WithPath(s.regPath)
	}
	out, found, err := SetRegistryStatus(data, root.ID, root.Status)
	if err != nil {
		return errors.NewPlanError("track registry is malformed", err).WithPath(s.regPath)
	}
	if !found || bytes.Equal(out, data) {
		return nil
	}
	if err := writeFileAtomic(s.regPath, out); err != nil {
		return errors.NewPlanError("failed to write track registry", err).WithPath(s.regPath)
	}
	s.logger.Debug("registry updated", "registry", s.regPath, "track_id", root.ID, "status", string(root.Status))
	return nil
}

// contentToken hashes both files; the plan is length-prefixed so bytes
// cannot move between the two without changing the token.
func contentToken(planData, metaData []byte) string {
	h := blake3.New()
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(planData)))
	_, _ = h.Write(n[:])
	_, _ = h.Write(planData)
	_, _ = h.Write(metaData)
	return hex.EncodeToString(h.Sum(nil))
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	return filelock.WriteFileAtomic(path, data)
}

// -----------------------------------------------------------------------------
// Transactions
// -----------------------------------------------------------------------------

// Tx is a set of mutations applied together by Store.Apply. Each method
// keeps the metadata record in step with the tree.
type Tx struct {
	tree    *Tree
	meta    *Metadata
	now     time.Time
	changed bool
}

// Tree returns the tree being mutated.
func (tx *Tx) Tree() *Tree { return tx.tree }

// Metadata returns the metadata being mutated.
func (tx *Tx) Metadata() *Metadata { return tx.meta }

// SetStatus changes an item's status.
func (tx *Tx) SetStatus(id string, status Status) error {
	before, err := tx.statusOf(id)
	if err != nil {
		return err
	}
	if err := tx.tree.SetStatus(id, status); err != nil {
		return err
	}
	if before != status {
		tx.syncStatus()
	}
	return nil
}

// Unblock clears a blocked item.
func (tx *Tx) Unblock(id string, status Status) error {
	if err := tx.tree.Unblock(id, status); err != nil {
		return err
	}
	tx.syncStatus()
	return nil
}

// RecordCommit appends sha to an item's refs and remembers its kind and
// message. An already-present sha is a no-op.
func (tx *Tx) RecordCommit(id, sha string, kind CommitKind, message string) error {
	added, err := tx.tree.AddCommit(id, sha)
	if err != nil {
		return err
	}
	if !added {
		return nil
	}
	it, _ := tx.tree.Item(id)
	rec := tx.meta.ensure(it, tx.now)
	if kind == "" {
		kind = CommitImplementation
	}
	rec.Commits = append(rec.Commits, CommitEntry{SHA: sha, Kind: kind, Message: message})
	rec.UpdatedAt = tx.now
	tx.changed = true
	return nil
}

// RemoveCommit drops sha from an item's refs and metadata.
func (tx *Tx) RemoveCommit(id, sha string) (bool, error) {
	removed, err := tx.tree.RemoveCommit(id, sha)
	if err != nil || !removed {
		return removed, err
	}
	if rec := tx.meta.Record(id); rec != nil {
		kept := rec.Commits[:0]
		for _, c := range rec.Commits {
			if !SameSHA(c.SHA, sha) {
				kept = append(kept, c)
			}
		}
		rec.Commits = kept
		rec.UpdatedAt = tx.now
	}
	tx.changed = true
	return true, nil
}

// SetCheckpoint records (or, with an empty sha, clears) a phase checkpoint.
func (tx *Tx) SetCheckpoint(phaseID, sha string) error {
	it, ok := tx.tree.Item(phaseID)
	prev := ""
	if ok {
		prev = it.CheckpointRef
	}
	if err := tx.tree.SetCheckpoint(phaseID, sha); err != nil {
		return err
	}
	if prev == sha {
		return nil
	}
	rec := tx.meta.ensure(it, tx.now)
	rec.CheckpointRef = sha
	rec.UpdatedAt = tx.now
	tx.changed = true
	return nil
}

// Reset returns an item to pending and reopens complete ancestors.
func (tx *Tx) Reset(id string) error {
	if err := tx.tree.Reset(id); err != nil {
		return err
	}
	tx.syncStatus()
	return nil
}

func (tx *Tx) statusOf(id string) (Status, error) {
	it, err := tx.tree.lookupID(id)
	if err != nil {
		return "", err
	}
	return it.Status, nil
}

// syncStatus copies every item's status into its metadata record, stamping
// records whose status changed.
func (tx *Tx) syncStatus() {
	for _, it := range tx.tree.Items() {
		rec := tx.meta.Record(it.ID)
		if rec != nil && rec.Status == it.Status {
			continue
		}
		if rec == nil && it.line != nil && !it.line.dirty {
			continue
		}
		rec = tx.meta.ensure(it, tx.now)
		rec.Status = it.Status
		rec.UpdatedAt = tx.now
		tx.changed = true
	}
	if tx.tree.Dirty() {
		tx.changed = true
	}
}
