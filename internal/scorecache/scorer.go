package scorecache

import (
	"context"

	"go.uber.org/zap"

	"github.com/spigell/job-sift/internal/ai"
	"github.com/spigell/job-sift/internal/logger"
	"github.com/spigell/job-sift/internal/metrics"
	"github.com/spigell/job-sift/internal/posting"
	"github.com/spigell/job-sift/internal/profile"
)

// Scorer serves assessments from a Cache and falls back to the wrapped scorer.
// Cache errors are logged and never fail an evaluation.
type Scorer struct {
	inner   ai.Scorer
	cache   Cache
	model   string
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewScorer(inner ai.Scorer, cache Cache, model string, log *zap.Logger, m *metrics.Metrics) *Scorer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scorer{inner: inner, cache: cache, model: model, logger: log, metrics: m}
}

func (s *Scorer) Evaluate(ctx context.Context, p posting.Canonical, prof profile.Profile) (*ai.Assessment, error) {
	key := KeyFor(p, prof.Fingerprint(), s.model)
	fields := logger.PostingFields(p.IdentityKey, p.Title, p.Company)

	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("score cache lookup failed", append(fields, zap.Error(err))...)
	}
	s.metrics.ObserveCache(ok)
	if ok {
		s.logger.Debug("score cache hit", append(fields, zap.Int("score", cached.Score))...)
		return cached, nil
	}

	assessment, err := s.inner.Evaluate(ctx, p, prof)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Put(ctx, key, assessment); err != nil {
		s.logger.Warn("score cache store failed", append(fields, zap.Error(err))...)
	}
	return assessment, nil
}
