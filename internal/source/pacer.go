package source

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RatePacer allows one request per delay with no burst, shared by every
// goroutine working for the same source.
type RatePacer struct {
	limiter *rate.Limiter
}

// NewPacer returns a pacer releasing one request per delay. A non-positive delay disables pacing.
func NewPacer(delay time.Duration) *RatePacer {
	if delay <= 0 {
		return &RatePacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &RatePacer{limiter: rate.NewLimiter(rate.Every(delay), 1)}
}

// Wait blocks until the next request may be sent or ctx is done.
func (p *RatePacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
