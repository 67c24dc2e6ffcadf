package plan

import (
	"encoding/json"
	"fmt"
	"time"
)

// CommitKind classifies a commit recorded against a work item.
type CommitKind string

// Commit kinds
const (
	CommitImplementation      CommitKind = "implementation"
	CommitPlanUpdate          CommitKind = "plan_update"
	CommitCheckpoint          CommitKind = "checkpoint"
	CommitTrackCreation       CommitKind = "track_creation"
	CommitMerge               CommitKind = "merge"
	CommitCherryPickDuplicate CommitKind = "cherry_pick_duplicate"
)

// ParseCommitKind converts a user-supplied kind name. An empty string
// means implementation.
func ParseCommitKind(s string) (CommitKind, error) {
	switch k := CommitKind(s); k {
	case "":
		return CommitImplementation, nil
	case CommitImplementation, CommitPlanUpdate, CommitCheckpoint, CommitTrackCreation, CommitMerge, CommitCherryPickDuplicate:
		return k, nil
	}
	return "", fmt.Errorf("unknown commit kind %q", s)
}

// CommitEntry is what the metadata record remembers about a commit. The
// message survives history rewrites and is the search key for ghost
// resolution.
type CommitEntry struct {
	SHA     string     `json:"sha"`
	Kind    CommitKind `json:"kind,omitempty"`
	Message string     `json:"message,omitempty"`
}

// Record is the metadata of one work item.
type Record struct {
	ID            string        `json:"id"`
	Kind          Kind          `json:"kind"`
	Status        Status        `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Description   string        `json:"description,omitempty"`
	Commits       []CommitEntry `json:"commits,omitempty"`
	CheckpointRef string        `json:"checkpoint_ref,omitempty"`
}

// Commit returns the entry for sha, matching abbreviated forms.
func (r *Record) Commit(sha string) (CommitEntry, bool) {
	for _, c := range r.Commits {
		if SameSHA(c.SHA, sha) {
			return c, true
		}
	}
	return CommitEntry{}, false
}

// Metadata is a track's metadata.json. Top-level keys other than
// track_id and items are carried through unchanged.
type Metadata struct {
	TrackID string
	Items   map[string]*Record

	extra map[string]json.RawMessage
}

// NewMetadata returns empty metadata for a track.
func NewMetadata(trackID string) *Metadata {
	return &Metadata{TrackID: trackID, Items: make(map[string]*Record)}
}

// ParseMetadata decodes metadata.json. Empty input yields empty metadata.
func ParseMetadata(data []byte, trackID string) (*Metadata, error) {
	m := NewMetadata(trackID)
	if len(data) == 0 {
		return m, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if v, ok := raw["track_id"]; ok {
		if err := json.Unmarshal(v, &m.TrackID); err != nil {
			return nil, fmt.Errorf("decode metadata track_id: %w", err)
		}
		delete(raw, "track_id")
	}
	if v, ok := raw["items"]; ok {
		if err := json.Unmarshal(v, &m.Items); err != nil {
			return nil, fmt.Errorf("decode metadata items: %w", err)
		}
		delete(raw, "items")
	}
	if m.Items == nil {
		m.Items = make(map[string]*Record)
	}
	for id, rec := range m.Items {
		if rec == nil {
			delete(m.Items, id)
			continue
		}
		if rec.ID == "" {
			rec.ID = id
		}
	}
	if len(raw) > 0 {
		m.extra = raw
	}
	return m, nil
}

// Marshal encodes the metadata as indented JSON with sorted keys.
func (m *Metadata) Marshal() ([]byte, error) {
	out := make(map[string]any, len(m.extra)+2)
	for k, v := range m.extra {
		out[k] = v
	}
	out["track_id"] = m.TrackID
	out["items"] = m.Items
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return append(data, '\n'), nil
}

// Clone returns a deep copy of the metadata.
func (m *Metadata) Clone() *Metadata {
	c := NewMetadata(m.TrackID)
	for id, rec := range m.Items {
		cp := *rec
		cp.Commits = append([]CommitEntry(nil), rec.Commits...)
		c.Items[id] = &cp
	}
	if m.extra != nil {
		c.extra = make(map[string]json.RawMessage, len(m.extra))
		for k, v := range m.extra {
			c.extra[k] = v
		}
	}
	return c
}

// Record returns the record of an item, or nil.
func (m *Metadata) Record(id string) *Record {
	return m.Items[id]
}

// ensure returns the record of it, creating one stamped now if missing.
func (m *Metadata) ensure(it *Item, now time.Time) *Record {
	rec, ok := m.Items[it.ID]
	if !ok {
		rec = &Record{ID: it.ID, Kind: it.Kind, Status: it.Status, CreatedAt: now, UpdatedAt: now}
		m.Items[it.ID] = rec
	}
	return rec
}
