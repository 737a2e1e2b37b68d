// Package filtering runs postings through the scoring stages: a keyword quick
// filter followed by the AI judgment. Every posting leaves with a decision.
package filtering

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/job-sift/internal/ai"
	"github.com/spigell/job-sift/internal/metrics"
	"github.com/spigell/job-sift/internal/posting"
	"github.com/spigell/job-sift/internal/profile"
)

// Filter represents a single stage applied to the results of a run.
// Stages only touch results that are still undecided.
type Filter interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Apply(ctx context.Context, deps Deps, results []Result) ([]Result, Step, error)
}

// Deps aggregates dependencies shared across all filtering steps.
type Deps struct {
	Logger  *zap.Logger
	Matcher *profile.Matcher
	Scorer  ai.Scorer
	Metrics *metrics.Metrics
	// Workers bounds concurrent scorer calls.
	Workers int
}

// Step describes the result of executing a filtering step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
	Details map[string]string
}

// statusProvider is implemented by filters that can supply detailed status information.
type statusProvider interface {
	Status() Status
}

// DefaultSteps returns the stages in the order they must run.
func DefaultSteps() []Filter {
	return []Filter{NewQuickFilter(), NewAIFit()}
}

// DisableByName marks a filter with the provided name as disabled while keeping it in the list.
func DisableByName(steps []Filter, name, reason string) {
	for _, step := range steps {
		if step.Name() == name {
			step.Disable(reason)
		}
	}
}

// Run executes the supplied filters sequentially over postings and returns one
// result per posting in input order. Postings that passed the quick filter but
// were never scored end up ai-unavailable.
func Run(ctx context.Context, deps Deps, steps []Filter, postings []posting.Canonical) ([]Result, error) {
	if deps.Matcher == nil {
		return nil, fmt.Errorf("profile matcher is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	results := make([]Result, len(postings))
	for i, p := range postings {
		results[i] = Result{Posting: p}
	}

	for _, step := range steps {
		if !step.IsEnabled() {
			deps.Logger.Info("filter disabled", zap.String("name", step.Name()))
			continue
		}

		next, info, err := step.Apply(ctx, deps, results)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}

		deps.Logger.Info("filter step",
			zap.String("name", step.Name()),
			zap.Int("initial", info.Initial),
			zap.Int("dropped", info.Dropped),
			zap.Int("left", info.Left),
		)

		results = next
	}

	for i := range results {
		r := &results[i]
		if r.pending() {
			r.QuickFilter = AIUnavailable
			r.Decision = QuickFiltered
			r.Reason = "ai scoring disabled"
		}
		deps.Metrics.ObserveDecision(string(r.Decision))
	}

	return results, nil
}

// Describe returns status entries for the provided filters.
func Describe(steps []Filter) []Status {
	statuses := make([]Status, 0, len(steps))
	for _, step := range steps {
		if reporter, ok := step.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    step.Name(),
			Enabled: step.IsEnabled(),
		})
	}
	return statuses
}
