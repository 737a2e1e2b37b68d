// Package ai defines how postings are scored against a profile by a language
// model and the failure taxonomy scorer backends report.
package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/spigell/job-sift/internal/posting"
	"github.com/spigell/job-sift/internal/profile"
)

const (
	MinScore = 1
	MaxScore = 10
)

// Assessment is a scorer verdict on one posting.
type Assessment struct {
	Score     int    `json:"score"`
	Rationale string `json:"rationale"`
	Model     string `json:"model"`
	Raw       string `json:"raw,omitempty"`
}

// Scorer rates how well a posting fits a profile.
type Scorer interface {
	Evaluate(ctx context.Context, p posting.Canonical, prof profile.Profile) (*Assessment, error)
}

// Generator sends a prompt to a model and returns its text answer.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	Model() string
}

type FailureKind string

const (
	Unavailable       FailureKind = "unavailable"
	MalformedResponse FailureKind = "malformed-response"
	Timeout           FailureKind = "timeout"
)

// Failure is a classified scorer error.
type Failure struct {
	Kind  FailureKind
	Model string
	Err   error
}

func (f *Failure) Error() string {
	if f.Model != "" {
		return fmt.Sprintf("scorer %s: %s: %v", f.Model, f.Kind, f.Err)
	}
	return fmt.Sprintf("scorer: %s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Classify turns any scorer error into a *Failure. Context errors become
// timeouts and everything unknown is treated as an unavailable backend.
func Classify(model string, err error) *Failure {
	if err == nil {
		return nil
	}

	var failure *Failure
	if errors.As(err, &failure) {
		return failure
	}

	kind := Unavailable
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		kind = Timeout
	}
	return &Failure{Kind: kind, Model: model, Err: err}
}

func malformed(model string, format string, args ...any) *Failure {
	return &Failure{Kind: MalformedResponse, Model: model, Err: fmt.Errorf(format, args...)}
}
