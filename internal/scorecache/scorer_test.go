package scorecache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/spigell/job-sift/internal/ai"
	"github.com/spigell/job-sift/internal/metrics"
	"github.com/spigell/job-sift/internal/posting"
	"github.com/spigell/job-sift/internal/profile"
)

type countingScorer struct {
	calls atomic.Int32
	score int
	err   error
}

func (s *countingScorer) Evaluate(context.Context, posting.Canonical, profile.Profile) (*ai.Assessment, error) {
	n := s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	// every fresh call looks different, like a real model would
	return &ai.Assessment{Score: s.score, Rationale: "call " + string(rune('0'+n)), Model: "stub"}, nil
}

type failingCache struct{}

func (failingCache) Get(context.Context, Key) (*ai.Assessment, bool, error) {
	return nil, false, errors.New("cache down")
}

func (failingCache) Put(context.Context, Key, *ai.Assessment) error {
	return errors.New("cache down")
}

func cachedPosting() posting.Canonical {
	return posting.Canonical{
		IdentityKey: "url:abc",
		Title:       "Go Engineer",
		Company:     "Acme",
		Description: "Go and Kubernetes",
	}
}

func TestScorerReturnsIdenticalAssessmentOnHit(t *testing.T) {
	inner := &countingScorer{score: 8}
	cache := NewMemory()
	scorer := NewScorer(inner, cache, "stub", nil, metrics.New())
	prof := profile.Default()

	first, err := scorer.Evaluate(context.Background(), cachedPosting(), prof)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := scorer.Evaluate(context.Background(), cachedPosting(), prof)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("cache hit differs from original (-first +second):\n%s", diff)
	}
	if inner.calls.Load() != 1 {
		t.Fatalf("expected one backend call, got %d", inner.calls.Load())
	}
}

func TestScorerMissesWhenInputsChange(t *testing.T) {
	inner := &countingScorer{score: 6}
	scorer := NewScorer(inner, NewMemory(), "stub", nil, nil)
	prof := profile.Default()

	if _, err := scorer.Evaluate(context.Background(), cachedPosting(), prof); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	edited := cachedPosting()
	edited.Description = "Go, Kubernetes and Terraform"
	if _, err := scorer.Evaluate(context.Background(), edited, prof); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stricter := prof
	stricter.MinScore = 9
	if _, err := scorer.Evaluate(context.Background(), cachedPosting(), stricter); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if inner.calls.Load() != 3 {
		t.Fatalf("expected 3 backend calls, got %d", inner.calls.Load())
	}
}

func TestScorerDoesNotCacheFailures(t *testing.T) {
	inner := &countingScorer{err: &ai.Failure{Kind: ai.Unavailable, Err: errors.New("down")}}
	cache := NewMemory()
	scorer := NewScorer(inner, cache, "stub", nil, nil)

	if _, err := scorer.Evaluate(context.Background(), cachedPosting(), profile.Default()); err == nil {
		t.Fatal("expected failure to propagate")
	}
	if cache.Len() != 0 {
		t.Fatalf("failures must not be cached")
	}
}

func TestScorerSurvivesCacheErrors(t *testing.T) {
	inner := &countingScorer{score: 7}
	scorer := NewScorer(inner, failingCache{}, "stub", nil, nil)

	got, err := scorer.Evaluate(context.Background(), cachedPosting(), profile.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Score != 7 {
		t.Fatalf("expected backend score, got %d", got.Score)
	}
}

func TestContentHashIgnoresSourcesAndTimes(t *testing.T) {
	a := cachedPosting()
	b := cachedPosting()
	b.Sources = []string{"wwr"}
	b.LastSeen = b.LastSeen.AddDate(0, 0, 1)

	if ContentHash(a) != ContentHash(b) {
		t.Fatalf("content hash should only cover scored fields")
	}
}
