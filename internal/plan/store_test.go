package plan

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/conductor/internal/errors"
)

var fixedNow = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func setupStore(t *testing.T, doc, meta string) (*Store, string) {
	t.Helper()

	dir := t.TempDir()
	planPath := filepath.Join(dir, "plan.md")
	metaPath := filepath.Join(dir, "metadata.json")
	if err := os.WriteFile(planPath, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	if meta != "" {
		if err := os.WriteFile(metaPath, []byte(meta), 0644); err != nil {
			t.Fatal(err)
		}
	}
	s := NewStore(planPath, metaPath, "auth_20250101", WithClock(func() time.Time { return fixedNow }))
	if _, err := s.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return s, dir
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestStore_SaveRoundTrip(t *testing.T) {
	s, _ := setupStore(t, sampleDoc, "")

	if err := s.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if got := readFile(t, s.PlanPath()); got != sampleDoc {
		t.Errorf("plan changed by Save()\n got: %q\nwant: %q", got, sampleDoc)
	}
	if _, err := os.Stat(s.MetadataPath()); err != nil {
		t.Errorf("metadata record not written: %v", err)
	}
}

func TestStore_SetStatusWritesBothFiles(t *testing.T) {
	s, _ := setupStore(t, sampleDoc, "")
	before := s.Token()

	if err := s.SetStatus("p2.t2", StatusInProgress); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}

	plan := readFile(t, s.PlanPath())
	if !strings.Contains(plan, "- [~] Task: Logout endpoint\n") {
		t.Errorf("plan not updated:\n%s", plan)
	}
	if s.Token() == before {
		t.Error("token should change after a write")
	}

	meta, err := ParseMetadata([]byte(readFile(t, s.MetadataPath())), "")
	if err != nil {
		t.Fatal(err)
	}
	rec := meta.Record("p2.t2")
	if rec == nil {
		t.Fatal("no metadata record for p2.t2")
	}
	if rec.Status != StatusInProgress || !rec.UpdatedAt.Equal(fixedNow) || rec.Kind != KindTask {
		t.Errorf("record = %+v", rec)
	}
	if meta.TrackID != "auth_20250101" {
		t.Errorf("TrackID = %q", meta.TrackID)
	}
}

func TestStore_ConcurrentModification(t *testing.T) {
	a, dir := setupStore(t, sampleDoc, "")
	b := NewStore(filepath.Join(dir, "plan.md"), filepath.Join(dir, "metadata.json"), "auth_20250101")
	if _, err := b.Load(); err != nil {
		t.Fatal(err)
	}

	if err := a.SetStatus("p2.t2", StatusInProgress); err != nil {
		t.Fatalf("a.SetStatus() error = %v", err)
	}

	err := b.SetStatus("p2.t1", StatusBlocked)
	if !errors.Is(err, errors.ErrConcurrentModification) {
		t.Fatalf("b.SetStatus() = %v, want concurrent modification", err)
	}
	if !errors.IsRetryable(err) {
		t.Error("concurrent modification should be retryable")
	}
	if errors.StateOf(err) != errors.RepoUnchanged {
		t.Errorf("StateOf() = %v, want unchanged", errors.StateOf(err))
	}
	if it, _ := b.Tree().Item("p2.t1"); it.Status != StatusInProgress {
		t.Errorf("failed mutation leaked into memory: %s", it.Status)
	}
	if strings.Contains(readFile(t, b.PlanPath()), "[!]") {
		t.Error("failed mutation reached disk")
	}

	err = b.Update(func(tx *Tx) error {
		return tx.SetStatus("p2.t1", StatusBlocked)
	})
	if err != nil {
		t.Fatalf("b.Update() error = %v", err)
	}
	plan := readFile(t, b.PlanPath())
	if !strings.Contains(plan, "- [!] Task: Login endpoint\n") || !strings.Contains(plan, "- [~] Task: Logout endpoint\n") {
		t.Errorf("expected both changes on disk:\n%s", plan)
	}
}

func TestStore_MetadataEditIsDetected(t *testing.T) {
	s, _ := setupStore(t, sampleDoc, `{"track_id": "auth_20250101", "items": {}}`)

	if err := os.WriteFile(s.MetadataPath(), []byte(`{"track_id": "auth_20250101", "items": {}, "x": 1}`), 0644); err != nil {
		t.Fatal(err)
	}
	err := s.SetStatus("p2.t2", StatusInProgress)
	if !errors.Is(err, errors.ErrConcurrentModification) {
		t.Errorf("SetStatus() = %v, want concurrent modification", err)
	}
}

func TestStore_RecordCommitIdempotent(t *testing.T) {
	s, _ := setupStore(t, sampleDoc, "")

	if err := s.RecordCommit("p2.t1", "d4e5f6a", CommitImplementation, "feat(auth): login"); err != nil {
		t.Fatal(err)
	}
	plan := readFile(t, s.PlanPath())
	token := s.Token()

	if err := s.RecordCommit("p2.t1", "d4e5f6a", CommitImplementation, "feat(auth): login"); err != nil {
		t.Fatal(err)
	}
	if s.Token() != token || readFile(t, s.PlanPath()) != plan {
		t.Error("recording an existing sha changed the files")
	}

	rec := s.Metadata().Record("p2.t1")
	if rec == nil || len(rec.Commits) != 1 {
		t.Fatalf("record = %+v", rec)
	}
	if rec.Commits[0].Message != "feat(auth): login" || rec.Commits[0].Kind != CommitImplementation {
		t.Errorf("commit entry = %+v", rec.Commits[0])
	}
	if !strings.Contains(plan, "- [~] Task: Login endpoint [d4e5f6a]\n") {
		t.Errorf("plan = %s", plan)
	}
}

func TestStore_ApplyFailureLeavesDisk(t *testing.T) {
	s, _ := setupStore(t, sampleDoc, "")

	err := s.Apply(func(tx *Tx) error {
		if err := tx.SetStatus("p2.t2", StatusInProgress); err != nil {
			return err
		}
		return tx.SetStatus("p2", StatusComplete)
	})
	if !errors.Is(err, errors.ErrInvalidTransition) {
		t.Fatalf("Apply() = %v, want invalid transition", err)
	}
	if got := readFile(t, s.PlanPath()); got != sampleDoc {
		t.Error("partial transaction reached disk")
	}
	if it, _ := s.Tree().Item("p2.t2"); it.Status != StatusPending {
		t.Errorf("partial transaction reached memory: %s", it.Status)
	}
}

func TestStore_RemoveCommitAndReset(t *testing.T) {
	meta := `{
  "track_id": "auth_20250101",
  "owner": "team-a",
  "items": {
    "p1.t2": {"id": "p1.t2", "kind": "task", "status": "complete", "description": "seed it",
              "commits": [{"sha": "b2c3d4e", "kind": "implementation", "message": "seed"},
                          {"sha": "c3d4e5f", "kind": "plan_update", "message": "conductor(plan): seed"}]}
  }
}`
	s, _ := setupStore(t, sampleDoc, meta)

	err := s.Apply(func(tx *Tx) error {
		for _, sha := range []string{"b2c3d4e", "c3d4e5f"} {
			if _, err := tx.RemoveCommit("p1.t2", sha); err != nil {
				return err
			}
		}
		return tx.Reset("p1.t2")
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	plan := readFile(t, s.PlanPath())
	if !strings.Contains(plan, "- [ ] Task: Seed data\n") || !strings.Contains(plan, "## [~] Phase 1: Schema [checkpoint: 9f8e7d6]\n") {
		t.Errorf("plan = %s", plan)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(readFile(t, s.MetadataPath())), &raw); err != nil {
		t.Fatal(err)
	}
	if string(raw["owner"]) != `"team-a"` {
		t.Errorf("unknown key not preserved: %s", raw["owner"])
	}
	rec := s.Metadata().Record("p1.t2")
	if rec.Status != StatusPending || len(rec.Commits) != 0 || rec.Description != "seed it" {
		t.Errorf("record = %+v", rec)
	}
	if p1 := s.Metadata().Record("p1"); p1 == nil || p1.Status != StatusInProgress {
		t.Errorf("p1 record = %+v", p1)
	}
}

func TestStore_SetCheckpoint(t *testing.T) {
	s, _ := setupStore(t, "## [ ] Phase 1: A\n- [x] Task: B\n", "")

	err := s.Apply(func(tx *Tx) error {
		if err := tx.SetCheckpoint("p1", "abcdef1"); err != nil {
			return err
		}
		return tx.SetStatus("p1", StatusComplete)
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, s.PlanPath()); got != "## [x] Phase 1: A [checkpoint: abcdef1]\n- [x] Task: B\n" {
		t.Errorf("plan = %q", got)
	}
	if rec := s.Metadata().Record("p1"); rec.CheckpointRef != "abcdef1" {
		t.Errorf("record = %+v", rec)
	}
	if err := s.Apply(func(tx *Tx) error { return tx.SetCheckpoint("p1.t1", "abcdef1") }); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("checkpoint on a task = %v, want invalid input", err)
	}
}

func TestStore_LoadErrors(t *testing.T) {
	t.Run("missing plan", func(t *testing.T) {
		dir := t.TempDir()
		s := NewStore(filepath.Join(dir, "plan.md"), filepath.Join(dir, "metadata.json"), "x")
		_, err := s.Load()
		if !errors.Is(err, errors.ErrItemNotFound) || !errors.Is(err, os.ErrNotExist) {
			t.Errorf("Load() = %v", err)
		}
	})

	t.Run("malformed plan carries path", func(t *testing.T) {
		dir := t.TempDir()
		planPath := filepath.Join(dir, "plan.md")
		if err := os.WriteFile(planPath, []byte("## Phase 1: A\n"), 0644); err != nil {
			t.Fatal(err)
		}
		_, err := NewStore(planPath, filepath.Join(dir, "metadata.json"), "x").Load()
		var pe *errors.PlanError
		if !errors.As(err, &pe) || pe.Path != planPath || pe.Line != 1 {
			t.Errorf("Load() = %v", err)
		}
	})

	t.Run("bad metadata", func(t *testing.T) {
		dir := t.TempDir()
		planPath := filepath.Join(dir, "plan.md")
		metaPath := filepath.Join(dir, "metadata.json")
		_ = os.WriteFile(planPath, []byte(sampleDoc), 0644)
		_ = os.WriteFile(metaPath, []byte("{not json"), 0644)
		_, err := NewStore(planPath, metaPath, "x").Load()
		if !errors.Is(err, errors.ErrMalformedPlan) {
			t.Errorf("Load() = %v, want malformed plan", err)
		}
	})
}

func TestStore_TrackStatusWithoutHeading(t *testing.T) {
	meta := `{"track_id": "t", "items": {"t": {"id": "t", "kind": "track", "status": "in_progress"}}}`
	s, _ := setupStore(t, "# Plan\n## [ ] Phase 1: A\n", meta)
	s.trackID = "t"
	tree, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if tree.Root.ID != "t" || tree.Root.Status != StatusInProgress {
		t.Errorf("root = %s %s", tree.Root.ID, tree.Root.Status)
	}
}

func TestStore_SyncsRegistry(t *testing.T) {
	dir := t.TempDir()
	planPath := filepath.Join(dir, "plan.md")
	regPath := filepath.Join(dir, "tracks.md")
	if err := os.WriteFile(planPath, []byte(sampleDoc), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(regPath, []byte(sampleRegistry), 0644); err != nil {
		t.Fatal(err)
	}
	s := NewStore(planPath, filepath.Join(dir, "metadata.json"), "", WithRegistry(regPath))
	if _, err := s.Load(); err != nil {
		t.Fatal(err)
	}

	// a task change leaves the track status and the registry alone
	if err := s.SetStatus("p2.t2", StatusInProgress); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, regPath); got != sampleRegistry {
		t.Errorf("registry rewritten without a track change:\n%s", got)
	}

	if err := s.SetStatus("auth_20250101", StatusBlocked); err != nil {
		t.Fatal(err)
	}
	got := readFile(t, regPath)
	if !strings.Contains(got, "## [!] Track: Add auth\n") {
		t.Errorf("registry marker not updated:\n%s", got)
	}
	if !strings.Contains(got, "- [x] **Track: Fix login bug**") {
		t.Errorf("other entries changed:\n%s", got)
	}

	files := s.Files()
	if len(files) != 3 || files[2] != regPath {
		t.Errorf("Files() = %v", files)
	}
}

func TestStore_FilesSkipsMissing(t *testing.T) {
	s, dir := setupStore(t, sampleDoc, "")
	s.regPath = filepath.Join(dir, "tracks.md")

	if files := s.Files(); len(files) != 1 || files[0] != s.PlanPath() {
		t.Errorf("Files() = %v, want only the plan", files)
	}
}

func TestStore_UpdateRetryLimit(t *testing.T) {
	a, dir := setupStore(t, sampleDoc, "")
	b := NewStore(filepath.Join(dir, "plan.md"), filepath.Join(dir, "metadata.json"), "auth_20250101", WithRetries(1))
	if _, err := b.Load(); err != nil {
		t.Fatal(err)
	}
	if err := a.SetStatus("p2.t2", StatusInProgress); err != nil {
		t.Fatal(err)
	}

	calls := 0
	err := b.Update(func(tx *Tx) error {
		calls++
		return tx.SetStatus("p2.t1", StatusBlocked)
	})
	if !errors.Is(err, errors.ErrConcurrentModification) {
		t.Fatalf("Update() = %v, want concurrent modification with a single attempt", err)
	}
	if calls != 0 {
		t.Errorf("fn ran %d times against a stale plan", calls)
	}
	if strings.Contains(readFile(t, b.PlanPath()), "[!]") {
		t.Error("stale update reached disk")
	}

	// the failed attempt reloaded, so the next one goes through
	if err := b.Update(func(tx *Tx) error { return tx.SetStatus("p2.t1", StatusBlocked) }); err != nil {
		t.Fatalf("Update() after reload error = %v", err)
	}
}
