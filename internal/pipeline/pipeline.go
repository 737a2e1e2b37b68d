// Package pipeline wires the stages together: collection feeds the store and
// scoring turns the store into a report.
package pipeline

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/job-sift/internal/ai"
	"github.com/spigell/job-sift/internal/fetch"
	"github.com/spigell/job-sift/internal/filtering"
	"github.com/spigell/job-sift/internal/logger"
	"github.com/spigell/job-sift/internal/metrics"
	"github.com/spigell/job-sift/internal/posting"
	"github.com/spigell/job-sift/internal/profile"
	"github.com/spigell/job-sift/internal/report"
	"github.com/spigell/job-sift/internal/source"
	"github.com/spigell/job-sift/internal/store"
)

type Pipeline struct {
	Store   *store.Store
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	Fetch        fetch.Config
	FetchOptions []fetch.Option

	now   func() time.Time
	merge func([]posting.Canonical) (store.MergeReport, error)
}

func New(st *store.Store, log *zap.Logger, m *metrics.Metrics) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{Store: st, Logger: log, Metrics: m, now: time.Now}
}

func (p *Pipeline) mergeBatch(batch []posting.Canonical) (store.MergeReport, error) {
	if p.merge != nil {
		return p.merge(batch)
	}
	return p.Store.Merge(batch)
}

func (p *Pipeline) clock() time.Time {
	if p.now == nil {
		return time.Now()
	}
	return p.now()
}

// CollectSummary describes one collection run.
type CollectSummary struct {
	Outcomes map[string]fetch.Outcome
	Merge    store.MergeReport
	Dropped  posting.DropReport
}

// FailedSources lists sources that ended in failure, sorted.
func (s CollectSummary) FailedSources() []string {
	var failed []string
	for _, o := range fetch.Failed(s.Outcomes) {
		failed = append(failed, o.Source)
	}
	slices.Sort(failed)
	return failed
}

// Collect fetches every source and merges each result into the store as soon
// as that source finishes. Source failures are reported in the summary; a
// merge conflict is returned as an error because it means the store can no
// longer be trusted: the remaining sources are cancelled and nothing else is
// merged.
func (p *Pipeline) Collect(ctx context.Context, sources []source.Source, criteria source.Criteria) (CollectSummary, error) {
	collectCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		summary  CollectSummary
		mergeErr error
	)
	summary.Dropped.BySource = make(map[string]int)

	sink := func(o fetch.Outcome) {
		if o.Failure != nil || len(o.Postings) == 0 {
			return
		}

		batch, dropped := posting.NormalizeBatch(o.Postings)

		mu.Lock()
		defer mu.Unlock()

		summary.Dropped.Total += dropped.Total
		for src, n := range dropped.BySource {
			summary.Dropped.BySource[src] += n
		}
		p.Metrics.ObserveDropped(dropped.BySource)

		if mergeErr != nil {
			p.Logger.Warn("skipping merge after store failure", logger.SourceFields(o.Source)...)
			return
		}

		merged, err := p.mergeBatch(batch)
		if err != nil {
			mergeErr = fmt.Errorf("merge %s: %w", o.Source, err)
			cancel()
			return
		}
		summary.Merge.Add(merged)
		p.Metrics.ObserveMerge(merged.Added, merged.Updated, merged.Unchanged, p.Store.Len())

		p.Logger.Info("source merged", append(logger.SourceFields(o.Source),
			zap.Int("added", merged.Added),
			zap.Int("updated", merged.Updated),
			zap.Int("unchanged", merged.Unchanged),
			zap.Int("dropped", dropped.Total),
		)...)
	}

	opts := append(slices.Clone(p.FetchOptions), fetch.WithSink(sink), fetch.WithMetrics(p.Metrics))
	summary.Outcomes = fetch.New(p.Fetch, p.Logger, opts...).Run(collectCtx, sources, criteria)

	if mergeErr != nil {
		return summary, mergeErr
	}

	p.Logger.Info("collection finished",
		zap.Int("sources", len(summary.Outcomes)),
		zap.Strings("failed", summary.FailedSources()),
		zap.Int("added", summary.Merge.Added),
		zap.Int("updated", summary.Merge.Updated),
		zap.Int("dropped", summary.Dropped.Total),
		zap.Int("store_size", p.Store.Len()),
	)
	return summary, nil
}

// ScoreConfig carries what a scoring run needs besides the store.
type ScoreConfig struct {
	Profile profile.Profile
	// Scorer may be nil; every passed posting then ends up ai-unavailable.
	Scorer  ai.Scorer
	Workers int
	// Steps defaults to filtering.DefaultSteps.
	Steps []filtering.Filter
}

// Score runs every stored posting through the filtering stages and consolidates the results.
func (p *Pipeline) Score(ctx context.Context, cfg ScoreConfig) (report.Report, error) {
	if err := cfg.Profile.Validate(); err != nil {
		return report.Report{}, fmt.Errorf("profile: %w", err)
	}

	steps := cfg.Steps
	if steps == nil {
		steps = filtering.DefaultSteps()
	}

	postings := p.Store.All()
	p.Logger.Info("scoring postings", zap.Int("count", len(postings)), zap.String("profile", cfg.Profile.Fingerprint()))

	results, err := filtering.Run(ctx, filtering.Deps{
		Logger:  p.Logger,
		Matcher: profile.NewMatcher(cfg.Profile),
		Scorer:  cfg.Scorer,
		Metrics: p.Metrics,
		Workers: cfg.Workers,
	}, steps, postings)
	if err != nil {
		return report.Report{}, err
	}

	rep := report.Consolidate(results)
	rep.RunID = report.NewRunID()
	rep.GeneratedAt = p.clock().UTC()

	matched, rejected, filtered := rep.Counts()
	p.Logger.Info("scoring finished",
		zap.String("run_id", rep.RunID),
		zap.Int("matched", matched),
		zap.Int("ai_rejected", rejected),
		zap.Int("quick_filtered", filtered),
	)
	return rep, nil
}
