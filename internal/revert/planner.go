// Package revert computes and applies git-aware reverts of work items.
//
// The Planner turns a work item into an ordered list of commits to undo;
// the Executor applies that list one commit at a time as a persisted
// session that can halt on a conflict and later continue or abort; the
// reconcile step resets the plan document once every commit is undone.
package revert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Iron-Ham/conductor/internal/config"
	"github.com/Iron-Ham/conductor/internal/correlate"
	"github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/fingerprint"
	"github.com/Iron-Ham/conductor/internal/git"
	"github.com/Iron-Ham/conductor/internal/logging"
	"github.com/Iron-Ham/conductor/internal/plan"
)

// History is the commit graph the planner reads. *git.Client implements it.
type History interface {
	correlate.Graph
	TopoOrder(ctx context.Context, shas []string) ([]string, error)
	Patch(ctx context.Context, sha string) (string, error)
}

// Source says how a commit came to be in a plan.
type Source string

// Commit sources
const (
	// SourceRef is a commit recorded on an item of the target.
	SourceRef Source = "ref"
	// SourceGhost replaces a recorded commit that no longer exists.
	SourceGhost Source = "ghost"
	// SourcePlanUpdate is a plan update found by searching the plan's history.
	SourcePlanUpdate Source = "plan_update"
	// SourceTrackDir touched the track directory.
	SourceTrackDir Source = "track_dir"
	// SourceRegistry added the track to the registry.
	SourceRegistry Source = "registry"
)

// WarningKind classifies a plan warning.
type WarningKind string

// Warning kinds
const (
	WarnMerge          WarningKind = "merge"
	WarnCherryPick     WarningKind = "cherry_pick_duplicate"
	WarnReboundGhost   WarningKind = "rebound_ghost"
	WarnConfirmedGhost WarningKind = "confirmed_ghost"
	WarnSkippedGhost   WarningKind = "skipped_ghost"
	WarnRelated        WarningKind = "related_commit"
)

// Warning is something about a plan a human must confirm before it runs.
type Warning struct {
	Kind    WarningKind
	SHA     string
	ItemID  string
	Message string
}

// Entry is one commit in a revert plan.
type Entry struct {
	SHA     string
	Subject string
	Parents []string
	Time    time.Time
	Kind    plan.CommitKind
	// ItemIDs lists the work items that recorded the commit.
	ItemIDs []string
	// Refs are the stored forms (possibly abbreviated or ghost shas) that
	// map to this commit.
	Refs       []string
	Confidence correlate.Confidence
	Source     Source
	// Mainline is the parent number to revert a merge against; zero for
	// regular commits.
	Mainline int
	// DuplicateOf names the older commit carrying the same change.
	DuplicateOf string
	// Skip leaves the commit out of the revert queue.
	Skip bool
}

// Short returns the abbreviated sha.
func (e Entry) Short() string {
	return short(e.SHA)
}

// Plan is the ordered set of commits to undo for a work item, newest first.
type Plan struct {
	TrackID    string
	TargetID   string
	TargetKind plan.Kind
	// Items lists the target and its descendants.
	Items    []string
	Entries  []Entry
	Warnings []Warning
	Ghosts   []correlate.Ghost
	// Skipped lists ghost refs the caller confirmed as having nothing to
	// revert.
	Skipped []string
	// Rebound lists the ghosts a strategy bound to a replacement that the
	// caller has not confirmed.
	Rebound []correlate.Ghost
}

// Queue returns the entries that will be reverted, in order.
func (p *Plan) Queue() []Entry {
	var out []Entry
	for _, e := range p.Entries {
		if !e.Skip {
			out = append(out, e)
		}
	}
	return out
}

// Covered returns every stored ref the plan accounts for: reverted and
// skipped commits, their stored forms and skipped ghosts.
func (p *Plan) Covered() []string {
	var out []string
	for _, e := range p.Entries {
		out = appendUnique(out, e.SHA)
		for _, r := range e.Refs {
			out = appendUnique(out, r)
		}
	}
	for _, s := range p.Skipped {
		out = appendUnique(out, s)
	}
	return out
}

// NeedsConfirmation reports whether the plan carries warnings.
func (p *Plan) NeedsConfirmation() bool {
	return len(p.Warnings) > 0
}

// Paths are the repository-relative locations searched for commits that
// were not recorded on an item.
type Paths struct {
	Plan     string
	TrackDir string
	Registry string
}

// Target is the work item to revert together with the plan it lives in.
type Target struct {
	Tree  *plan.Tree
	Meta  *plan.Metadata
	Item  *plan.Item
	Paths Paths
}

// PlanOptions carries the caller's decisions about ghost refs.
type PlanOptions struct {
	// ConfirmedGhosts maps an unresolved ghost sha to its confirmed
	// replacement; an empty replacement confirms there is nothing to revert.
	ConfirmedGhosts map[string]string
}

// Planner computes revert plans.
type Planner struct {
	history     History
	correlator  *correlate.Correlator
	classifier  *Classifier
	mainline    int
	planUpdates bool
	logger      *logging.Logger
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithCorrelator replaces the default correlator.
func WithCorrelator(c *correlate.Correlator) PlannerOption {
	return func(p *Planner) {
		p.correlator = c
	}
}

// WithClassifier replaces the default commit classifier.
func WithClassifier(c *Classifier) PlannerOption {
	return func(p *Planner) {
		p.classifier = c
	}
}

// WithMainline sets the parent number merges are reverted against.
func WithMainline(n int) PlannerOption {
	return func(p *Planner) {
		if n > 0 {
			p.mainline = n
		}
	}
}

// WithPlanUpdates controls the search for related plan-update commits.
func WithPlanUpdates(enabled bool) PlannerOption {
	return func(p *Planner) {
		p.planUpdates = enabled
	}
}

// WithPlannerLogger sets the logger.
func WithPlannerLogger(l *logging.Logger) PlannerOption {
	return func(p *Planner) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPlanner creates a Planner with the default conventions.
func NewPlanner(history History, opts ...PlannerOption) *Planner {
	p := &Planner{
		history:     history,
		mainline:    1,
		planUpdates: true,
		logger:      logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.correlator == nil {
		p.correlator = correlate.New(history, correlate.WithLogger(p.logger))
	}
	if p.classifier == nil {
		cl, err := NewClassifier(config.Default().Conventions)
		if err != nil {
			panic(fmt.Sprintf("default conventions: %v", err))
		}
		p.classifier = cl
	}
	return p
}

// Plan computes the commits to undo for target. It fails with
// errors.ErrUnresolvedHistory when a recorded commit no longer exists and
// the caller has not confirmed what replaces it.
func (p *Planner) Plan(ctx context.Context, target Target, opts PlanOptions) (*Plan, error) {
	if target.Tree == nil || target.Item == nil {
		return nil, errors.NewHistoryError("no revert target", errors.ErrInvalidInput)
	}
	logger := p.logger.WithTrack(target.Tree.Root.ID).With("target", target.Item.ID)

	items := append([]*plan.Item{target.Item}, target.Item.Descendants()...)
	out := &Plan{
		TrackID:    target.Tree.Root.ID,
		TargetID:   target.Item.ID,
		TargetKind: target.Item.Kind,
	}
	for _, it := range items {
		out.Items = append(out.Items, it.ID)
	}

	// 1. recorded refs
	res, err := p.correlator.ResolveRefs(ctx, correlate.RefsOf(items, target.Meta))
	if err != nil {
		return nil, errors.NewHistoryError("failed to resolve recorded commits", err).WithItem(target.Item.ID)
	}
	out.Ghosts = res.Ghosts

	b := newBuilder()
	for _, rec := range res.Records {
		src := SourceRef
		if rec.Confidence != correlate.ConfidenceExact {
			src = SourceGhost
		}
		b.add(Entry{
			SHA:        rec.SHA,
			Subject:    rec.Subject,
			Parents:    rec.Parents,
			Time:       rec.Time,
			Kind:       rec.Kind,
			ItemIDs:    rec.ItemIDs,
			Refs:       rec.Refs,
			Confidence: rec.Confidence,
			Source:     src,
		})
	}

	// 2. ghosts
	var missing []string
	for _, g := range res.Ghosts {
		repl, confirmed := lookupConfirmed(opts.ConfirmedGhosts, g.SHA)
		if g.Resolved() && confirmed {
			if repl == "" || !plan.SameSHA(repl, g.Replacement) {
				return nil, errors.NewHistoryError(
					fmt.Sprintf("recorded commit %s was matched to %s; only that replacement can be confirmed", g.SHA, short(g.Replacement)),
					errors.ErrInvalidInput,
				).WithItem(g.ItemID).WithGhosts(g.SHA)
			}
			out.Warnings = append(out.Warnings, Warning{
				Kind:    WarnConfirmedGhost,
				SHA:     g.Replacement,
				ItemID:  g.ItemID,
				Message: fmt.Sprintf("recorded commit %s no longer exists; reverting confirmed replacement %s", g.SHA, short(g.Replacement)),
			})
			continue
		}
		if g.Resolved() {
			out.Rebound = append(out.Rebound, g)
			out.Warnings = append(out.Warnings, Warning{
				Kind:   WarnReboundGhost,
				SHA:    g.Replacement,
				ItemID: g.ItemID,
				Message: fmt.Sprintf("recorded commit %s no longer exists; matched %s by %s (%s confidence)",
					g.SHA, short(g.Replacement), g.Strategy, g.Confidence),
			})
			continue
		}
		if !confirmed {
			missing = append(missing, g.SHA)
			continue
		}
		if repl == "" {
			out.Skipped = appendUnique(out.Skipped, g.SHA)
			out.Warnings = append(out.Warnings, Warning{
				Kind:    WarnSkippedGhost,
				SHA:     g.SHA,
				ItemID:  g.ItemID,
				Message: fmt.Sprintf("recorded commit %s no longer exists; confirmed as nothing to revert", g.SHA),
			})
			continue
		}
		e, err := p.confirmed(ctx, g, repl)
		if err != nil {
			return nil, err
		}
		b.add(e)
		out.Warnings = append(out.Warnings, Warning{
			Kind:    WarnConfirmedGhost,
			SHA:     e.SHA,
			ItemID:  g.ItemID,
			Message: fmt.Sprintf("recorded commit %s no longer exists; reverting confirmed replacement %s", g.SHA, e.Short()),
		})
	}
	if len(missing) > 0 {
		logger.Warn("revert blocked by unresolved history", "ghosts", missing)
		return nil, errors.NewHistoryError(
			fmt.Sprintf("%d recorded commit(s) no longer exist and need confirmation", len(missing)),
			errors.ErrUnresolvedHistory,
		).WithItem(target.Item.ID).WithGhosts(missing...)
	}

	// 3. commits that were never recorded on an item
	related, err := p.related(ctx, target, items)
	if err != nil {
		return nil, err
	}
	for _, e := range related {
		known := b.has(e.SHA)
		b.add(e)
		if !known && e.Source == SourcePlanUpdate {
			out.Warnings = append(out.Warnings, Warning{
				Kind:    WarnRelated,
				SHA:     e.SHA,
				Message: fmt.Sprintf("plan update %s %q was found by message search", e.Short(), e.Subject),
			})
		}
	}

	// 4. classify and flag merges
	for _, e := range b.entries {
		if e.Kind == "" {
			e.Kind = p.classifier.Classify(e.Subject)
		}
		if len(e.Parents) > 1 {
			e.Kind = plan.CommitMerge
			e.Mainline = p.mainline
			out.Warnings = append(out.Warnings, Warning{
				Kind: WarnMerge,
				SHA:  e.SHA,
				Message: fmt.Sprintf("%s is a merge commit with %d parents; it will be reverted against parent %d",
					e.Short(), len(e.Parents), e.Mainline),
			})
		}
	}

	// 5. newest first
	ordered, err := p.history.TopoOrder(ctx, b.order)
	if err != nil {
		return nil, errors.NewHistoryError("failed to order commits", err).WithItem(target.Item.ID)
	}
	for _, sha := range ordered {
		out.Entries = append(out.Entries, *b.bySHA[sha])
	}

	// 6. cherry-pick duplicates: the older commit stays, newer copies are skipped
	if err := p.markDuplicates(ctx, out); err != nil {
		return nil, err
	}

	logger.Info("revert plan computed",
		"commits", len(out.Entries), "queued", len(out.Queue()), "warnings", len(out.Warnings))
	return out, nil
}

func (p *Planner) confirmed(ctx context.Context, g correlate.Ghost, repl string) (Entry, error) {
	full, ok, err := p.history.ResolveCommit(ctx, repl)
	if err != nil {
		return Entry{}, errors.NewHistoryError("failed to resolve confirmed replacement", err).WithItem(g.ItemID)
	}
	if !ok {
		return Entry{}, errors.NewHistoryError(
			fmt.Sprintf("confirmed replacement %s for %s does not exist", repl, g.SHA),
			errors.ErrInvalidInput,
		).WithItem(g.ItemID).WithGhosts(g.SHA)
	}
	info, err := p.history.CommitInfo(ctx, full)
	if err != nil {
		return Entry{}, errors.NewHistoryError("failed to read confirmed replacement", err).WithItem(g.ItemID)
	}
	return Entry{
		SHA:        info.SHA,
		Subject:    info.Subject,
		Parents:    info.Parents,
		Time:       info.Time,
		ItemIDs:    []string{g.ItemID},
		Refs:       []string{g.SHA},
		Confidence: correlate.ConfidenceExact,
		Source:     SourceGhost,
	}, nil
}

// related finds bookkeeping commits that belong to the target without
// being recorded on it.
func (p *Planner) related(ctx context.Context, target Target, items []*plan.Item) ([]Entry, error) {
	var out []Entry
	collect := func(opts git.LogOptions, src Source, keep func(git.Commit) (plan.CommitKind, bool)) error {
		commits, err := p.history.Log(ctx, opts)
		if err != nil {
			return errors.NewHistoryError(fmt.Sprintf("failed to search history for %s commits", src), err).WithItem(target.Item.ID)
		}
		for _, c := range commits {
			kind, ok := keep(c)
			if !ok {
				continue
			}
			out = append(out, Entry{
				SHA:        c.SHA,
				Subject:    c.Subject,
				Parents:    c.Parents,
				Time:       c.Time,
				Kind:       kind,
				Confidence: correlate.ConfidenceExact,
				Source:     src,
			})
		}
		return nil
	}

	if target.Item.Kind == plan.KindTrack {
		if target.Paths.TrackDir != "" {
			err := collect(git.LogOptions{Paths: []string{target.Paths.TrackDir}}, SourceTrackDir,
				func(c git.Commit) (plan.CommitKind, bool) { return "", true })
			if err != nil {
				return nil, err
			}
		}
		if target.Paths.Registry != "" {
			err := collect(git.LogOptions{Pickaxe: target.Tree.Root.ID, Paths: []string{target.Paths.Registry}}, SourceRegistry,
				func(c git.Commit) (plan.CommitKind, bool) { return plan.CommitTrackCreation, true })
			if err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	if !p.planUpdates || target.Paths.Plan == "" {
		return nil, nil
	}
	for _, it := range items {
		if it.Kind != plan.KindPhase && it.Kind != plan.KindTask {
			continue
		}
		if strings.TrimSpace(it.Title) == "" {
			continue
		}
		title := it.Title
		err := collect(git.LogOptions{Grep: title, FixedStrings: true, Paths: []string{target.Paths.Plan}}, SourcePlanUpdate,
			func(c git.Commit) (plan.CommitKind, bool) {
				kind := p.classifier.Classify(c.Subject)
				return kind, kind == plan.CommitPlanUpdate && mentions(c.Subject, title)
			})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *Planner) markDuplicates(ctx context.Context, out *Plan) error {
	seen := make(map[string]string)
	for i := len(out.Entries) - 1; i >= 0; i-- {
		e := &out.Entries[i]
		if e.Mainline > 0 {
			continue
		}
		patch, err := p.history.Patch(ctx, e.SHA)
		if err != nil {
			return errors.NewHistoryError(fmt.Sprintf("failed to read patch of %s", e.Short()), err)
		}
		fp, err := fingerprint.Of(patch)
		if err != nil {
			p.logger.Warn("patch fingerprint failed", "sha", e.SHA, "error", err)
			continue
		}
		if fp == "" {
			continue
		}
		first, dup := seen[fp]
		if !dup {
			seen[fp] = e.SHA
			continue
		}
		e.Kind = plan.CommitCherryPickDuplicate
		e.DuplicateOf = first
		e.Skip = true
		out.Warnings = append(out.Warnings, Warning{
			Kind: WarnCherryPick,
			SHA:  e.SHA,
			Message: fmt.Sprintf("%s carries the same change as %s; only %s will be reverted",
				e.Short(), short(first), short(first)),
		})
	}
	return nil
}

// builder collects entries by sha, merging duplicates.
type builder struct {
	bySHA   map[string]*Entry
	order   []string
	entries []*Entry
}

func newBuilder() *builder {
	return &builder{bySHA: make(map[string]*Entry)}
}

func (b *builder) has(sha string) bool {
	_, ok := b.bySHA[sha]
	return ok
}

func (b *builder) add(e Entry) {
	if cur, ok := b.bySHA[e.SHA]; ok {
		for _, id := range e.ItemIDs {
			cur.ItemIDs = appendUnique(cur.ItemIDs, id)
		}
		for _, r := range e.Refs {
			cur.Refs = appendUnique(cur.Refs, r)
		}
		if e.Source == SourceRegistry {
			cur.Kind = plan.CommitTrackCreation
		}
		return
	}
	cp := e
	b.bySHA[e.SHA] = &cp
	b.order = append(b.order, e.SHA)
	b.entries = append(b.entries, &cp)
}

func lookupConfirmed(m map[string]string, sha string) (string, bool) {
	if repl, ok := m[sha]; ok {
		return repl, true
	}
	for k, repl := range m {
		if plan.SameSHA(k, sha) {
			return repl, true
		}
	}
	return "", false
}

func mentions(subject, title string) bool {
	return strings.Contains(strings.ToLower(subject), strings.ToLower(title))
}

func short(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
