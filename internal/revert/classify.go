package revert

import (
	"fmt"
	"regexp"

	"github.com/Iron-Ham/conductor/internal/config"
	"github.com/Iron-Ham/conductor/internal/plan"
)

// Classifier assigns a commit kind from the message conventions the plan
// workflow uses for its own commits.
type Classifier struct {
	planUpdate    []*regexp.Regexp
	checkpoint    []*regexp.Regexp
	trackCreation []*regexp.Regexp
}

// NewClassifier compiles the configured conventions.
func NewClassifier(c config.ConventionsConfig) (*Classifier, error) {
	compile := func(name string, exprs []string) ([]*regexp.Regexp, error) {
		out := make([]*regexp.Regexp, 0, len(exprs))
		for _, expr := range exprs {
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("conventions.%s: %w", name, err)
			}
			out = append(out, re)
		}
		return out, nil
	}

	var (
		cl  Classifier
		err error
	)
	if cl.planUpdate, err = compile("plan_update", c.PlanUpdate); err != nil {
		return nil, err
	}
	if cl.checkpoint, err = compile("checkpoint", c.Checkpoint); err != nil {
		return nil, err
	}
	if cl.trackCreation, err = compile("track_creation", c.TrackCreation); err != nil {
		return nil, err
	}
	return &cl, nil
}

// Classify returns the kind a subject line denotes. Subjects that match no
// convention are implementation commits.
func (c *Classifier) Classify(subject string) plan.CommitKind {
	switch {
	case matchAny(c.checkpoint, subject):
		return plan.CommitCheckpoint
	case matchAny(c.trackCreation, subject):
		return plan.CommitTrackCreation
	case matchAny(c.planUpdate, subject):
		return plan.CommitPlanUpdate
	}
	return plan.CommitImplementation
}

func matchAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
