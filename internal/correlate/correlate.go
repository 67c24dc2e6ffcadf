// Package correlate resolves the commit refs recorded on work items against
// the live commit graph.
//
// A ref that no longer names a commit reachable from a branch, tag or HEAD
// (history was rewritten) is a ghost.
// Ghosts go through a chain of strategies; a ghost bound to a replacement
// carries a confidence annotation and is never applied silently, and a
// ghost no strategy can bind is reported as unresolved.
package correlate

import (
	"context"
	"fmt"
	"time"

	"github.com/Iron-Ham/conductor/internal/git"
	"github.com/Iron-Ham/conductor/internal/logging"
	"github.com/Iron-Ham/conductor/internal/plan"
)

// Graph is the read-only view of the commit graph the correlator uses.
// *git.Client implements it.
type Graph interface {
	ResolveCommit(ctx context.Context, ref string) (string, bool, error)
	Reachable(ctx context.Context, sha string) (bool, error)
	CommitInfo(ctx context.Context, sha string) (git.Commit, error)
	Log(ctx context.Context, opts git.LogOptions) ([]git.Commit, error)
}

// Ref is one commit reference stored on a work item, with the context the
// metadata record keeps about it.
type Ref struct {
	ItemID string
	SHA    string
	// Kind is the recorded classification, empty when unknown.
	Kind plan.CommitKind
	// Message is the recorded commit message, the ghost search key.
	Message string
	// Title is the item title, the search key of last resort.
	Title string
}

// Record is a resolved commit.
type Record struct {
	SHA     string
	Subject string
	Message string
	Parents []string
	Time    time.Time
	// Kind is the recorded classification, empty when unknown.
	Kind plan.CommitKind
	// ItemIDs lists the work items that reference the commit.
	ItemIDs []string
	// Refs are the stored forms that resolved to this commit.
	Refs []string
	// Confidence is ConfidenceExact unless the commit replaced a ghost.
	Confidence Confidence
}

// IsMerge reports whether the commit has more than one parent.
func (r Record) IsMerge() bool {
	return len(r.Parents) > 1
}

// Ghost is a stored ref that no longer resolves.
type Ghost struct {
	ItemID  string
	SHA     string
	Message string
	// Replacement is the commit the ghost was bound to, empty when
	// unresolved.
	Replacement string
	Confidence  Confidence
	Strategy    string
	Candidates  []string
}

// Resolved reports whether the ghost was bound to a replacement.
func (g Ghost) Resolved() bool {
	return g.Replacement != ""
}

// Resolution is the outcome of resolving a set of refs.
type Resolution struct {
	Records []Record
	Ghosts  []Ghost
}

// Unresolved returns the ghosts no strategy could bind.
func (r *Resolution) Unresolved() []Ghost {
	var out []Ghost
	for _, g := range r.Ghosts {
		if !g.Resolved() {
			out = append(out, g)
		}
	}
	return out
}

// Record returns the record for sha.
func (r *Resolution) Record(sha string) (Record, bool) {
	for _, rec := range r.Records {
		if plan.SameSHA(rec.SHA, sha) {
			return rec, true
		}
	}
	return Record{}, false
}

// Observer is notified of each ref outcome: "exact", "rebound" or
// "unresolved".
type Observer func(outcome string)

// Correlator resolves work item commit refs against a Graph.
type Correlator struct {
	graph      Graph
	strategies []Strategy
	logger     *logging.Logger
	observer   Observer
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithStrategies replaces the resolution chain.
func WithStrategies(s ...Strategy) Option {
	return func(c *Correlator) {
		c.strategies = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Correlator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver sets a callback for resolution outcomes.
func WithObserver(o Observer) Option {
	return func(c *Correlator) {
		c.observer = o
	}
}

// New creates a Correlator using DefaultStrategies with no search limit.
func New(graph Graph, opts ...Option) *Correlator {
	c := &Correlator{
		graph:      graph,
		strategies: DefaultStrategies(0),
		logger:     logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RefsOf collects the commit refs and phase checkpoint refs of items in
// order, with the kind and message recorded in meta. meta may be nil.
func RefsOf(items []*plan.Item, meta *plan.Metadata) []Ref {
	var refs []Ref
	for _, it := range items {
		var rec *plan.Record
		if meta != nil {
			rec = meta.Record(it.ID)
		}
		ref := func(sha string, kind plan.CommitKind) Ref {
			r := Ref{ItemID: it.ID, SHA: sha, Kind: kind, Title: it.Title}
			if rec != nil {
				if entry, ok := rec.Commit(sha); ok {
					r.Message = entry.Message
					if entry.Kind != "" {
						r.Kind = entry.Kind
					}
				}
			}
			return r
		}
		for _, sha := range it.CommitRefs {
			refs = append(refs, ref(sha, ""))
		}
		if it.CheckpointRef != "" {
			refs = append(refs, ref(it.CheckpointRef, plan.CommitCheckpoint))
		}
	}
	return refs
}

// Resolve resolves every ref of items. Running it twice against an
// unchanged graph yields the same Resolution.
func (c *Correlator) Resolve(ctx context.Context, items []*plan.Item, meta *plan.Metadata) (*Resolution, error) {
	return c.ResolveRefs(ctx, RefsOf(items, meta))
}

// ResolveRefs resolves refs in order. Several refs naming the same commit
// produce one Record.
func (c *Correlator) ResolveRefs(ctx context.Context, refs []Ref) (*Resolution, error) {
	res := &Resolution{}
	index := make(map[string]int)

	for _, ref := range refs {
		sha, strategy, out, err := c.bind(ctx, ref)
		if err != nil {
			return nil, err
		}

		if out.Confidence != ConfidenceExact {
			if sha == "" {
				strategy = "unresolved"
			}
			g := Ghost{
				ItemID:      ref.ItemID,
				SHA:         ref.SHA,
				Message:     ref.Message,
				Replacement: sha,
				Confidence:  out.Confidence,
				Strategy:    strategy,
				Candidates:  out.Candidates,
			}
			res.Ghosts = append(res.Ghosts, g)
			if sha == "" {
				c.observe("unresolved")
				c.logger.Warn("unresolved commit ref",
					"item", ref.ItemID, "sha", ref.SHA, "candidates", len(out.Candidates))
				continue
			}
			c.observe("rebound")
			c.logger.Info("ghost commit ref rebound",
				"item", ref.ItemID, "sha", ref.SHA, "replacement", sha, "confidence", string(out.Confidence))
		} else {
			c.observe("exact")
		}

		if i, ok := index[sha]; ok {
			rec := &res.Records[i]
			rec.ItemIDs = appendUnique(rec.ItemIDs, ref.ItemID)
			rec.Refs = appendUnique(rec.Refs, ref.SHA)
			if rec.Kind == "" {
				rec.Kind = ref.Kind
			}
			continue
		}

		info, err := c.graph.CommitInfo(ctx, sha)
		if err != nil {
			return nil, fmt.Errorf("read commit %s: %w", sha, err)
		}
		index[sha] = len(res.Records)
		res.Records = append(res.Records, Record{
			SHA:        info.SHA,
			Subject:    info.Subject,
			Message:    info.Message(),
			Parents:    info.Parents,
			Time:       info.Time,
			Kind:       ref.Kind,
			ItemIDs:    []string{ref.ItemID},
			Refs:       []string{ref.SHA},
			Confidence: out.Confidence,
		})
	}
	return res, nil
}

// bind runs the strategy chain. It returns the bound sha (empty when none
// bound), the deciding strategy ("" when none) and the last outcome.
func (c *Correlator) bind(ctx context.Context, ref Ref) (string, string, Outcome, error) {
	var last Outcome
	for _, s := range c.strategies {
		out, err := s.Resolve(ctx, c.graph, ref)
		if err != nil {
			return "", "", Outcome{}, fmt.Errorf("%s resolution of %s: %w", s.Name(), ref.SHA, err)
		}
		if out.SHA != "" {
			return out.SHA, s.Name(), out, nil
		}
		if len(out.Candidates) > 0 || out.Confidence != "" {
			last = out
		}
	}
	if last.Confidence == "" {
		last.Confidence = ConfidenceNone
	}
	return "", "", last, nil
}

func (c *Correlator) observe(outcome string) {
	if c.observer != nil {
		c.observer(outcome)
	}
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
