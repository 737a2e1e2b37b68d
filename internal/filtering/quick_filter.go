package filtering

import (
	"context"

	"go.uber.org/zap"

	"github.com/spigell/job-sift/internal/logger"
	"github.com/spigell/job-sift/internal/posting"
	"github.com/spigell/job-sift/internal/profile"
)

const QuickFilterName = "quick_filter"

// QuickFilter applies the cheap keyword rules in order; the first hit wins.
func QuickFilter(p posting.Canonical, m *profile.Matcher) (Outcome, string) {
	if kw, ok := m.TitleExclusion(p.Title); ok {
		return RejectedTitle, "title contains: " + kw
	}
	if kw, ok := m.DescriptionExclusion(p.Description); ok {
		return RejectedDescription, "description contains: " + kw
	}
	if m.RequiresMustHave() && !m.HasMustHave(p.Title, p.Description) {
		return RejectedMissingMustHave, "none of the must-have keywords found"
	}
	return Passed, ""
}

type quickFilter struct {
	disabled bool
	reason   string
}

// NewQuickFilter creates the keyword step that runs before any AI call.
func NewQuickFilter() Filter {
	return &quickFilter{}
}

func (f *quickFilter) Name() string { return QuickFilterName }

func (f *quickFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *quickFilter) IsEnabled() bool { return !f.disabled }

func (f *quickFilter) Status() Status {
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason}
}

func (f *quickFilter) Apply(_ context.Context, deps Deps, results []Result) ([]Result, Step, error) {
	step := Step{}
	for i := range results {
		r := &results[i]
		if !r.pending() || r.QuickFilter != "" {
			continue
		}
		step.Initial++

		p := r.Posting
		r.Flags = deps.Matcher.Flags(p.Title, p.Description)

		outcome, reason := QuickFilter(p, deps.Matcher)
		r.QuickFilter = outcome
		deps.Metrics.ObserveOutcome(string(outcome))

		if outcome != Passed {
			r.Decision = QuickFiltered
			r.Reason = reason
			step.Dropped++
			deps.Logger.Debug("posting quick-filtered",
				append(logger.PostingFields(p.IdentityKey, p.Title, p.Company),
					zap.String("outcome", string(outcome)),
					zap.String("reason", reason),
				)...,
			)
			continue
		}
		step.Left++
	}

	return results, step, nil
}
