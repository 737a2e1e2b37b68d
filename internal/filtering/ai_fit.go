package filtering

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/job-sift/internal/ai"
	"github.com/spigell/job-sift/internal/logger"
	"github.com/spigell/job-sift/internal/posting"
	"github.com/spigell/job-sift/internal/profile"
)

const (
	AIFitName      = "ai_fit"
	DefaultWorkers = 4
)

// Score asks the scorer about a posting that passed the quick filter and
// blends the answer with the profile keyword weights. A scorer failure yields
// an ai-unavailable result without a score.
func Score(ctx context.Context, p posting.Canonical, m *profile.Matcher, scorer ai.Scorer) Result {
	r, _ := score(ctx, p, m, scorer)
	return r
}

func score(ctx context.Context, p posting.Canonical, m *profile.Matcher, scorer ai.Scorer) (Result, *ai.Failure) {
	prof := m.Profile()
	result := Result{
		Posting:     p,
		QuickFilter: Passed,
		Flags:       m.Flags(p.Title, p.Description),
	}

	assessment, err := scorer.Evaluate(ctx, p, prof)
	if err == nil && (assessment == nil || assessment.Score < ai.MinScore || assessment.Score > ai.MaxScore) {
		err = &ai.Failure{Kind: ai.MalformedResponse, Err: errors.New("assessment score out of range")}
	}
	if err != nil {
		failure := ai.Classify("", err)
		return unavailable(result, failure), failure
	}

	aiScore := assessment.Score
	rationale := assessment.Rationale
	adjustment, matched := m.Adjustment(p.Title, p.Description)
	final := clamp(aiScore+adjustment, ai.MinScore, ai.MaxScore)

	result.AIScore = &aiScore
	result.AIRationale = &rationale
	result.Adjustment = adjustment
	result.MatchedKeywords = matched
	result.FinalScore = &final

	if final >= prof.MinScore {
		result.Decision = Matched
	} else {
		result.Decision = AIRejected
		result.Reason = "final score below minimum"
	}
	return result, nil
}

func unavailable(r Result, failure *ai.Failure) Result {
	r.QuickFilter = AIUnavailable
	r.Decision = QuickFiltered
	r.Error = failure.Error()
	r.Reason = "scorer " + string(failure.Kind)
	return r
}

type aiFitFilter struct {
	disabled bool
	reason   string
}

// NewAIFit creates the AI scoring step.
func NewAIFit() Filter {
	return &aiFitFilter{}
}

func (f *aiFitFilter) Name() string { return AIFitName }

func (f *aiFitFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *aiFitFilter) IsEnabled() bool { return !f.disabled }

func (f *aiFitFilter) Status() Status {
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason}
}

// Apply scores every passed posting on a bounded pool. One failing posting
// never stops the others. Postings not yet scored when ctx ends become
// ai-unavailable.
func (f *aiFitFilter) Apply(ctx context.Context, deps Deps, results []Result) ([]Result, Step, error) {
	if deps.Scorer == nil {
		deps.Logger.Info("ai scorer is not configured; skipping ai_fit filter")
		return results, Step{}, nil
	}

	workers := deps.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	var g errgroup.Group
	g.SetLimit(workers)

	var scored []int
	for i := range results {
		// an empty outcome means the quick filter was disabled
		if !results[i].pending() || (results[i].QuickFilter != Passed && results[i].QuickFilter != "") {
			continue
		}
		scored = append(scored, i)

		g.Go(func() error {
			p := results[i].Posting
			fields := logger.PostingFields(p.IdentityKey, p.Title, p.Company)

			if err := ctx.Err(); err != nil {
				results[i] = unavailable(results[i], &ai.Failure{Kind: ai.Timeout, Err: err})
				deps.Metrics.ObserveScorer(string(ai.Timeout), 0)
				return nil
			}

			started := time.Now()
			r, failure := score(ctx, p, deps.Matcher, deps.Scorer)
			took := time.Since(started)

			switch {
			case failure != nil:
				deps.Metrics.ObserveScorer(string(failure.Kind), took)
				deps.Logger.Warn("AI evaluation failed", append(fields,
					zap.String("kind", string(failure.Kind)),
					zap.Error(failure.Err),
				)...)
			case r.Decision == Matched:
				deps.Metrics.ObserveScorer("ok", took)
				deps.Logger.Info("posting matched", append(fields,
					zap.Int("ai_score", *r.AIScore),
					zap.Int("final_score", *r.FinalScore),
				)...)
			default:
				deps.Metrics.ObserveScorer("ok", took)
				deps.Logger.Info("posting rejected by AI", append(fields,
					zap.Int("ai_score", *r.AIScore),
					zap.Int("final_score", *r.FinalScore),
					zap.String("rationale", *r.AIRationale),
				)...)
			}

			results[i] = r
			return nil
		})
	}
	_ = g.Wait()

	step := Step{Initial: len(scored)}
	for _, i := range scored {
		if results[i].Decision == Matched {
			step.Left++
		}
	}
	step.Dropped = step.Initial - step.Left

	return results, step, nil
}
