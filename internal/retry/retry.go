// Package retry provides a reusable retry policy with exponential backoff and jitter.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/spigell/job-sift/internal/utils"
)

// ErrAttemptsExhausted wraps the last error once every attempt has failed.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

var (
	wait       = utils.WaitFor
	randomUnit = rand.Float64
)

// Policy describes how an operation is retried.
type Policy struct {
	// MaxAttempts includes the first call.
	MaxAttempts int           `mapstructure:"max-attempts"`
	BaseDelay   time.Duration `mapstructure:"base-delay"`
	MaxDelay    time.Duration `mapstructure:"max-delay"`
	// Multiplier defaults to 2.
	Multiplier float64 `mapstructure:"multiplier"`
	// Jitter spreads each delay uniformly over +/- the given fraction.
	Jitter float64 `mapstructure:"jitter"`
	// Retryable decides whether an error is worth another attempt.
	// Nil means every error except context cancellation is retried.
	Retryable func(error) bool `mapstructure:"-" json:"-"`
}

// Default returns a policy with three attempts starting at one second.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2,
		Jitter:      0.2,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Jitter > 1 {
		p.Jitter = 1
	}
	return p
}

// Backoff returns the un-jittered delay that follows the given failed attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

func (p Policy) jittered(d time.Duration) time.Duration {
	if p.Jitter == 0 || d == 0 {
		return d
	}
	spread := float64(d) * p.Jitter * (2*randomUnit() - 1)
	return time.Duration(math.Max(0, float64(d)+spread))
}

func (p Policy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// run out or ctx is done. It returns how many attempts were made.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	p = p.normalized()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				return attempt - 1, err
			}
			return attempt - 1, fmt.Errorf("%w: %w", err, lastErr)
		}

		err := fn(ctx)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if !p.retryable(err) {
			return attempt, err
		}

		if attempt == p.MaxAttempts {
			break
		}

		if werr := wait(ctx, p.jittered(p.Backoff(attempt))); werr != nil {
			return attempt, fmt.Errorf("%w: %w", werr, lastErr)
		}
	}

	return p.MaxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, p.MaxAttempts, lastErr)
}
