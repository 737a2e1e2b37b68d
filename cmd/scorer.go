package cmd

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/job-sift/internal/ai"
	"github.com/spigell/job-sift/internal/ai/claude"
	"github.com/spigell/job-sift/internal/ai/gemini"
	"github.com/spigell/job-sift/internal/logger"
	"github.com/spigell/job-sift/internal/metrics"
	"github.com/spigell/job-sift/internal/retry"
	"github.com/spigell/job-sift/internal/scorecache"
	"github.com/spigell/job-sift/internal/secrets"
)

const (
	cacheMemory = "memory"
	cacheRedis  = "redis"
)

// newScorer builds the configured AI scorer. A nil scorer with a nil error
// means scoring is disabled. The returned cleanup must always be called.
func newScorer(ctx context.Context, cfg *AIConfig, cacheCfg *CacheConfig, log *zap.Logger, m *metrics.Metrics) (ai.Scorer, func(), error) {
	noop := func() {}
	if cfg == nil || !cfg.Enabled {
		return nil, noop, nil
	}

	generator, provider, err := newGenerator(ctx, cfg, log)
	if err != nil {
		return nil, noop, err
	}

	return wrapScorer(ctx, generator, provider, cfg, cacheCfg, log, m)
}

// prepareScorer builds the scorer once per process so that a memory cache
// outlives a single run. --no-ai or a setup error yield a nil scorer.
func prepareScorer(ctx context.Context, env *environment, opts scoreOptions) (ai.Scorer, func()) {
	if opts.noAI {
		return nil, func() {}
	}

	scorer, cleanup, err := newScorer(ctx, env.config.AI, env.config.Cache, env.logger, env.metrics)
	if err != nil {
		// Keep going: every passed posting is reported as ai-unavailable.
		env.logger.Warn("skipping AI scoring", zap.Error(err))
		return nil, cleanup
	}
	return scorer, cleanup
}

func wrapScorer(ctx context.Context, generator ai.Generator, provider string, cfg *AIConfig, cacheCfg *CacheConfig, log *zap.Logger, m *metrics.Metrics) (ai.Scorer, func(), error) {
	noop := func() {}

	scorerLog := logger.WithCommonFields(log, provider, generator.Model())

	var scorer ai.Scorer = ai.NewPromptScorer(generator, provider, scorerLog, cfg.MaxLogLength)

	cache, cleanup, err := newCache(ctx, cacheCfg)
	if err != nil {
		return nil, noop, err
	}
	if cache != nil {
		scorerLog.Info("score cache enabled", zap.String("backend", cacheCfg.Backend))
		scorer = scorecache.NewScorer(scorer, cache, generator.Model(), scorerLog, m)
	}

	return scorer, cleanup, nil
}

func newGenerator(ctx context.Context, cfg *AIConfig, log *zap.Logger) (ai.Generator, string, error) {
	policy := retry.Default()
	if cfg.Retry != nil {
		policy = *cfg.Retry
	}

	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	switch provider {
	case "", gemini.Provider:
		g := cfg.Gemini
		if g == nil {
			g = &GeminiConfig{}
		}

		apiKey, err := secrets.Load(secrets.Source{
			Name:  "gemini api key",
			File:  g.APIKeyFile,
			Env:   "GEMINI_API_KEY",
			Value: g.APIKey,
		})
		if err != nil {
			return nil, "", fmt.Errorf("%w (set ai.gemini.api-key-file or JOBSIFT_GEMINI_API_KEY_FILE)", err)
		}

		generator, err := gemini.NewGenerator(ctx, apiKey, g.Model,
			gemini.WithRetry(policy),
			gemini.WithLogger(log.With(zap.String(logger.FieldProvider, gemini.Provider))),
		)
		if err != nil {
			return nil, "", err
		}
		return generator, gemini.Provider, nil
	case claude.Provider:
		c := cfg.Claude
		if c == nil {
			c = &ClaudeConfig{}
		}

		apiKey, err := secrets.Load(secrets.Source{
			Name:  "anthropic api key",
			File:  c.APIKeyFile,
			Env:   "ANTHROPIC_API_KEY",
			Value: c.APIKey,
		})
		if err != nil {
			return nil, "", fmt.Errorf("%w (set ai.claude.api-key-file or JOBSIFT_ANTHROPIC_API_KEY_FILE)", err)
		}

		opts := []claude.Option{
			claude.WithRetry(policy),
			claude.WithLogger(log.With(zap.String(logger.FieldProvider, claude.Provider))),
		}
		if c.MaxTokens > 0 {
			opts = append(opts, claude.WithMaxTokens(c.MaxTokens))
		}

		generator, err := claude.NewGenerator(apiKey, c.Model, opts...)
		if err != nil {
			return nil, "", err
		}
		return generator, claude.Provider, nil
	default:
		return nil, "", fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
}

func newCache(ctx context.Context, cfg *CacheConfig) (scorecache.Cache, func(), error) {
	noop := func() {}
	if cfg == nil {
		return nil, noop, nil
	}

	switch strings.TrimSpace(strings.ToLower(cfg.Backend)) {
	case "":
		return nil, noop, nil
	case cacheMemory:
		return scorecache.NewMemory(), noop, nil
	case cacheRedis:
		redisCfg := cfg.Redis
		password, err := secrets.Optional(secrets.Source{
			Name:  "redis password",
			File:  cfg.PasswordFile,
			Value: redisCfg.Password,
		})
		if err != nil {
			return nil, noop, err
		}
		redisCfg.Password = password

		cache, err := scorecache.Dial(ctx, redisCfg)
		if err != nil {
			return nil, noop, fmt.Errorf("connecting to score cache: %w", err)
		}
		return cache, func() { _ = cache.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
}
