// Package fetch runs every selected source concurrently and gathers what each
// of them returned. A failing source never affects the others.
package fetch

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/job-sift/internal/logger"
	"github.com/spigell/job-sift/internal/metrics"
	"github.com/spigell/job-sift/internal/posting"
	"github.com/spigell/job-sift/internal/retry"
	"github.com/spigell/job-sift/internal/source"
)

const (
	DefaultMaxConcurrency = 4
	DefaultTimeout        = 5 * time.Minute
	DefaultDelay          = 2 * time.Second
)

// Config tunes a collection run.
type Config struct {
	MaxConcurrency int           `mapstructure:"max-concurrency"`
	Timeout        time.Duration `mapstructure:"timeout"`
	// DefaultDelay paces sources that do not configure their own delay.
	DefaultDelay time.Duration `mapstructure:"default-delay"`
	Retry        retry.Policy  `mapstructure:"retry"`
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.DefaultDelay < 0 {
		c.DefaultDelay = 0
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry = retry.Default()
	}
	return c
}

// Outcome is what one source produced. Failure is nil on success.
type Outcome struct {
	Source   string
	Postings []posting.Raw
	Failure  *source.Failure
	Attempts int
	Duration time.Duration
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithSink registers a callback invoked as soon as a source finishes. It is
// called from the worker goroutines and must be safe for concurrent use.
func WithSink(sink func(Outcome)) Option {
	return func(o *Orchestrator) {
		o.sink = sink
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithClock overrides the time source used to stamp postings.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

type Orchestrator struct {
	cfg     Config
	logger  *zap.Logger
	sink    func(Outcome)
	metrics *metrics.Metrics
	now     func() time.Time
}

func New(cfg Config, log *zap.Logger, opts ...Option) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}

	o := &Orchestrator{
		cfg:    cfg.withDefaults(),
		logger: log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run fetches every source with at most MaxConcurrency in flight and returns
// one outcome per source name. Sources still running when the overall timeout
// fires are reported as timeout failures; their siblings keep their results.
func (o *Orchestrator) Run(ctx context.Context, sources []source.Source, criteria source.Criteria) map[string]Outcome {
	runCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	outcomes := make(map[string]Outcome, len(sources))
	results := make(chan Outcome, len(sources))

	var g errgroup.Group
	g.SetLimit(o.cfg.MaxConcurrency)

	seen := make(map[string]struct{}, len(sources))
	for _, src := range sources {
		name := src.Name()
		if _, dup := seen[name]; dup {
			o.logger.Warn("skipping duplicate source", logger.SourceFields(name)...)
			continue
		}
		seen[name] = struct{}{}

		g.Go(func() error {
			outcome := o.fetchOne(runCtx, src, criteria)
			if o.sink != nil {
				o.sink(outcome)
			}
			results <- outcome
			return nil
		})
	}

	_ = g.Wait()
	close(results)

	for outcome := range results {
		outcomes[outcome.Source] = outcome
	}
	return outcomes
}

func (o *Orchestrator) fetchOne(ctx context.Context, src source.Source, criteria source.Criteria) Outcome {
	name := src.Name()
	log := o.logger.With(logger.SourceFields(name)...)

	delay := o.cfg.DefaultDelay
	if t, ok := src.(source.Throttled); ok && t.Delay() > 0 {
		delay = t.Delay()
	}
	pacer := source.NewPacer(delay)

	policy := o.cfg.Retry
	policy.Retryable = func(err error) bool {
		var failure *source.Failure
		if errors.As(err, &failure) {
			return failure.Retryable()
		}
		return source.Classify(name, err).Retryable()
	}

	started := o.now()
	var raws []posting.Raw
	attempts, err := policy.Do(ctx, func(ctx context.Context) error {
		got, err := src.Fetch(ctx, criteria, pacer)
		if err != nil {
			log.Debug("source attempt failed", zap.Error(err))
			return err
		}
		raws = got
		return nil
	})

	outcome := Outcome{
		Source:   name,
		Attempts: attempts,
		Duration: o.now().Sub(started),
	}

	if err != nil {
		failure := source.Classify(name, err)
		if ctx.Err() != nil {
			failure = &source.Failure{Source: name, Kind: source.Timeout, Err: err}
		}
		outcome.Failure = failure

		log.Warn("source failed",
			zap.String("kind", string(failure.Kind)),
			zap.Int("attempts", attempts),
			zap.Error(failure.Err),
		)
		o.metrics.ObserveFetch(name, attempts, 0, string(failure.Kind), outcome.Duration)
		return outcome
	}

	scrapedAt := o.now().UTC()
	for i := range raws {
		if raws[i].Source == "" {
			raws[i].Source = name
		}
		if raws[i].ScrapedAt.IsZero() {
			raws[i].ScrapedAt = scrapedAt
		}
	}
	outcome.Postings = raws

	log.Info("source fetched",
		zap.Int("postings", len(raws)),
		zap.Int("attempts", attempts),
		zap.Duration("took", outcome.Duration),
	)
	o.metrics.ObserveFetch(name, attempts, len(raws), "", outcome.Duration)
	return outcome
}

// Failed returns the outcomes that ended in failure.
func Failed(outcomes map[string]Outcome) []Outcome {
	var failed []Outcome
	for _, o := range outcomes {
		if o.Failure != nil {
			failed = append(failed, o)
		}
	}
	return failed
}
