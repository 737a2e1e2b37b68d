package source

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ForEach runs fn for indices [0, n) on at most workers goroutines. It stops
// at the first error. Callers that fetch per item share the source pacer
// inside fn, so the pool never raises the request rate.
func ForEach(ctx context.Context, workers, n int, fn func(ctx context.Context, i int) error) error {
	if workers <= 0 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return fn(gctx, i)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
