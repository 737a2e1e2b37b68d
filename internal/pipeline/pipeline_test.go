package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/spigell/job-sift/internal/ai"
	"github.com/spigell/job-sift/internal/fetch"
	"github.com/spigell/job-sift/internal/filtering"
	"github.com/spigell/job-sift/internal/metrics"
	"github.com/spigell/job-sift/internal/posting"
	"github.com/spigell/job-sift/internal/profile"
	"github.com/spigell/job-sift/internal/retry"
	"github.com/spigell/job-sift/internal/source"
	"github.com/spigell/job-sift/internal/store"
)

type staticSource struct {
	name  string
	raws  []posting.Raw
	fails bool
}

func (s staticSource) Name() string { return s.name }

func (s staticSource) Fetch(ctx context.Context, _ source.Criteria, pacer source.Pacer) ([]posting.Raw, error) {
	if err := pacer.Wait(ctx); err != nil {
		return nil, err
	}
	if s.fails {
		return nil, source.Permanentf(s.name, "malformed payload")
	}
	return s.raws, nil
}

type titleScorer struct {
	mu     sync.Mutex
	scores map[string]int
	seen   []string
}

func (s *titleScorer) Evaluate(_ context.Context, p posting.Canonical, _ profile.Profile) (*ai.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, p.Title)
	return &ai.Assessment{Score: s.scores[p.Title], Rationale: "stub", Model: "stub"}, nil
}

func testPipeline(t *testing.T) (*Pipeline, *metrics.Metrics) {
	t.Helper()
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	m := metrics.New()
	p := New(store.New(store.WithClock(func() time.Time { return now })), nil, m)
	p.Fetch = fetch.Config{MaxConcurrency: 2, Timeout: 5 * time.Second, Retry: retry.Policy{MaxAttempts: 1}}
	p.FetchOptions = []fetch.Option{fetch.WithClock(func() time.Time { return now })}
	p.now = func() time.Time { return now }
	return p, m
}

func TestEndToEnd(t *testing.T) {
	p, m := testPipeline(t)

	sources := []source.Source{
		staticSource{name: "board", raws: []posting.Raw{
			{Title: "Engineering Lead", Company: "Acme", URL: "https://acme.io/jobs/lead", Description: "agile team, no hardware"},
			{Title: "Intern Engineer", Company: "Acme", URL: "https://acme.io/jobs/intern"},
			{Title: "", Company: "", URL: ""},
		}},
		staticSource{name: "broken", fails: true},
	}

	summary, err := p.Collect(context.Background(), sources, source.Criteria{})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if summary.Merge.Added != 2 || summary.Dropped.Total != 1 {
		t.Fatalf("unexpected collect summary: %+v", summary)
	}
	if diff := cmp.Diff([]string{"broken"}, summary.FailedSources()); diff != "" {
		t.Fatalf("unexpected failed sources (-want +got):\n%s", diff)
	}

	prof := profile.Profile{
		ExcludeInTitle: []string{"intern"},
		MustHave:       []string{"lead"},
		Positive:       map[string]int{"agile": 5},
		Negative:       map[string]int{"hardware": 5},
		MinScore:       6,
	}
	scorer := &titleScorer{scores: map[string]int{"Engineering Lead": 7}}

	rep, err := p.Score(context.Background(), ScoreConfig{Profile: prof, Scorer: scorer})
	if err != nil {
		t.Fatalf("score: %v", err)
	}

	if len(rep.Matched) != 1 || len(rep.QuickFiltered) != 1 || len(rep.AIRejected) != 0 {
		t.Fatalf("unexpected partitions: %d/%d/%d", len(rep.Matched), len(rep.AIRejected), len(rep.QuickFiltered))
	}

	a := rep.Matched[0]
	if *a.AIScore != 7 || a.Adjustment != 0 || *a.FinalScore != 7 || a.Decision != filtering.Matched {
		t.Fatalf("unexpected result for lead posting: %+v", a)
	}
	if diff := cmp.Diff([]string{"agile", "hardware"}, a.MatchedKeywords); diff != "" {
		t.Fatalf("unexpected matched keywords (-want +got):\n%s", diff)
	}

	b := rep.QuickFiltered[0]
	if b.QuickFilter != filtering.RejectedTitle || b.AIScore != nil {
		t.Fatalf("unexpected result for intern posting: %+v", b)
	}
	if diff := cmp.Diff([]string{"Engineering Lead"}, scorer.seen); diff != "" {
		t.Fatalf("intern posting must never be scored (-want +got):\n%s", diff)
	}

	if rep.RunID == "" || rep.SummaryBySource["board"][filtering.Matched] != 1 {
		t.Fatalf("unexpected report metadata: %q %v", rep.RunID, rep.SummaryBySource)
	}

	if got := testutil.ToFloat64(m.Decisions.WithLabelValues("matched")); got != 1 {
		t.Fatalf("expected matched decision metric, got %v", got)
	}
	if got := testutil.ToFloat64(m.FetchFailures.WithLabelValues("broken", "permanent")); got != 1 {
		t.Fatalf("expected failure metric, got %v", got)
	}
}

func TestCollectIsIdempotent(t *testing.T) {
	p, _ := testPipeline(t)
	sources := []source.Source{
		staticSource{name: "a", raws: []posting.Raw{{Title: "Go Engineer", Company: "Acme", URL: "https://acme.io/jobs/1?utm_source=a"}}},
		staticSource{name: "b", raws: []posting.Raw{{Title: "Go Engineer (Remote)", Company: "Acme Inc", URL: "http://www.acme.io/jobs/1/"}}},
	}

	first, err := p.Collect(context.Background(), sources, source.Criteria{})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if p.Store.Len() != 1 || first.Merge.Added != 1 {
		t.Fatalf("expected the same job from both sources to merge, got len %d and %+v", p.Store.Len(), first.Merge)
	}

	second, err := p.Collect(context.Background(), sources, source.Criteria{})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if second.Merge.Added != 0 || second.Merge.Updated != 0 {
		t.Fatalf("re-collecting with a fixed clock must not change the store: %+v", second.Merge)
	}

	stored := p.Store.All()[0]
	if diff := cmp.Diff([]string{"a", "b"}, stored.Sources); diff != "" {
		t.Fatalf("unexpected sources (-want +got):\n%s", diff)
	}
}

func TestScoreRejectsInvalidProfile(t *testing.T) {
	p, _ := testPipeline(t)

	_, err := p.Score(context.Background(), ScoreConfig{Profile: profile.Profile{MinScore: 11}})
	if err == nil || !strings.Contains(err.Error(), "min-score") {
		t.Fatalf("expected profile validation error, got %v", err)
	}
}

func TestCollectStopsOnMergeFailure(t *testing.T) {
	p, _ := testPipeline(t)

	var merges int
	p.merge = func([]posting.Canonical) (store.MergeReport, error) {
		merges++
		return store.MergeReport{}, &store.MergeConflictError{Key: "url:acme.io/jobs/1", Reason: "two records claim one identity"}
	}

	var cancelled atomic.Bool
	sources := []source.Source{
		staticSource{name: "board", raws: []posting.Raw{
			{Title: "Go Engineer", Company: "Acme", URL: "https://acme.io/jobs/1"},
		}},
		funcSource{name: "slow", fetch: func(ctx context.Context) ([]posting.Raw, error) {
			<-ctx.Done()
			cancelled.Store(true)
			return nil, ctx.Err()
		}},
	}

	started := time.Now()
	summary, err := p.Collect(context.Background(), sources, source.Criteria{})

	var conflict *store.MergeConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected a merge conflict, got %v", err)
	}
	if !strings.Contains(err.Error(), "merge board") {
		t.Fatalf("expected the failing source in the error, got %v", err)
	}
	if took := time.Since(started); took > 2*time.Second {
		t.Fatalf("collect must stop right after the failure, took %s", took)
	}
	if !cancelled.Load() {
		t.Fatalf("remaining sources must be cancelled")
	}
	if merges != 1 {
		t.Fatalf("expected a single merge attempt, got %d", merges)
	}
	if f := summary.Outcomes["slow"].Failure; f == nil {
		t.Fatalf("cancelled source must be reported as failed")
	}
}

type funcSource struct {
	name  string
	fetch func(ctx context.Context) ([]posting.Raw, error)
}

func (s funcSource) Name() string { return s.name }

func (s funcSource) Fetch(ctx context.Context, _ source.Criteria, _ source.Pacer) ([]posting.Raw, error) {
	return s.fetch(ctx)
}
