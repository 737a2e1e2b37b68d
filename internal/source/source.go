// Package source defines the contract job boards are fetched through and the
// shared plumbing adapters use: pacing, HTTP access, failure classification
// and the registry resolved at startup.
package source

import (
	"context"
	"time"

	"github.com/spigell/job-sift/internal/posting"
)

// Criteria narrows what a source is asked for. Adapters use what they can
// express and ignore the rest.
type Criteria struct {
	Keywords   []string `mapstructure:"keywords"`
	Location   string   `mapstructure:"location"`
	MaxResults int      `mapstructure:"max-results"`
}

// Pacer gates every request made to one source.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Source fetches raw postings from one job board. Every request it makes must
// go through the pacer it is handed. Errors should be *Failure values; other
// errors are classified by the caller.
type Source interface {
	Name() string
	Fetch(ctx context.Context, criteria Criteria, pacer Pacer) ([]posting.Raw, error)
}

// Throttled is implemented by sources that configure their own inter-request delay.
type Throttled interface {
	Delay() time.Duration
}
