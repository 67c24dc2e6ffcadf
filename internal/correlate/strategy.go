package correlate

import (
	"context"
	"strings"

	"github.com/Iron-Ham/conductor/internal/git"
)

// Confidence annotates how a commit ref was matched to a live commit.
type Confidence string

// Confidence levels, strongest first
const (
	// ConfidenceExact means the stored sha names a reachable commit.
	ConfidenceExact Confidence = "exact"
	// ConfidenceHigh means a unique commit carries the recorded message verbatim.
	ConfidenceHigh Confidence = "high"
	// ConfidenceMedium means a unique commit carries the recorded subject line.
	ConfidenceMedium Confidence = "medium"
	// ConfidenceLow means a unique commit subject mentions the item title.
	ConfidenceLow Confidence = "low"
	// ConfidenceNone means no single commit could be found.
	ConfidenceNone Confidence = "none"
)

// Outcome is a strategy's answer for one ref. An empty SHA means the
// strategy could not bind the ref; Candidates lists what it considered.
type Outcome struct {
	SHA        string
	Confidence Confidence
	Candidates []string
}

// Strategy binds a stored commit ref to a live commit.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, g Graph, ref Ref) (Outcome, error)
}

// ExactStrategy accepts a ref whose sha still names a commit that some
// branch, tag or HEAD contains. An orphaned object left behind by a rewrite
// is not accepted.
type ExactStrategy struct{}

// Name implements Strategy.
func (ExactStrategy) Name() string { return "exact" }

// Resolve implements Strategy.
func (ExactStrategy) Resolve(ctx context.Context, g Graph, ref Ref) (Outcome, error) {
	full, ok, err := g.ResolveCommit(ctx, ref.SHA)
	if err != nil || !ok {
		return Outcome{}, err
	}
	live, err := g.Reachable(ctx, full)
	if err != nil || !live {
		return Outcome{}, err
	}
	return Outcome{SHA: full, Confidence: ConfidenceExact}, nil
}

// MessageStrategy searches all history for a commit carrying the message
// recorded for the ref, falling back to the item title. Only a unique
// match binds; several matches are reported as candidates.
type MessageStrategy struct {
	// Limit caps the number of commits searched; zero searches everything.
	Limit int
}

// Name implements Strategy.
func (MessageStrategy) Name() string { return "message" }

// Resolve implements Strategy.
func (s MessageStrategy) Resolve(ctx context.Context, g Graph, ref Ref) (Outcome, error) {
	key, fromTitle := ref.Message, false
	if strings.TrimSpace(key) == "" {
		key, fromTitle = ref.Title, true
	}
	subject := strings.TrimSpace(firstLine(key))
	if subject == "" {
		return Outcome{}, nil
	}

	commits, err := g.Log(ctx, git.LogOptions{
		All:          true,
		Grep:         subject,
		FixedStrings: true,
		Limit:        s.Limit,
	})
	if err != nil {
		return Outcome{}, err
	}

	var matches []git.Commit
	for _, c := range commits {
		if fromTitle {
			if strings.Contains(strings.ToLower(c.Subject), strings.ToLower(subject)) {
				matches = append(matches, c)
			}
			continue
		}
		if c.Subject == subject {
			matches = append(matches, c)
		}
	}

	out := Outcome{Confidence: ConfidenceNone}
	for _, m := range matches {
		out.Candidates = append(out.Candidates, m.SHA)
	}
	if len(matches) != 1 {
		return out, nil
	}

	out.SHA = matches[0].SHA
	switch {
	case fromTitle:
		out.Confidence = ConfidenceLow
	case strings.TrimSpace(matches[0].Message()) == strings.TrimSpace(key):
		out.Confidence = ConfidenceHigh
	default:
		out.Confidence = ConfidenceMedium
	}
	return out, nil
}

// DefaultStrategies is the resolution chain: exact sha, then message search.
// A ref neither binds is an unresolved ghost.
func DefaultStrategies(searchLimit int) []Strategy {
	return []Strategy{ExactStrategy{}, MessageStrategy{Limit: searchLimit}}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
