package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

// FailureKind drives retry eligibility.
type FailureKind string

const (
	Transient FailureKind = "transient"
	Permanent FailureKind = "permanent"
	Timeout   FailureKind = "timeout"
)

// Failure is a classified source error.
type Failure struct {
	Source string
	Kind   FailureKind
	// Status is the HTTP status when the failure came from a response.
	Status int
	Err    error
}

func (f *Failure) Error() string {
	if f.Status != 0 {
		return fmt.Sprintf("source %s: %s failure (status %d): %v", f.Source, f.Kind, f.Status, f.Err)
	}
	return fmt.Sprintf("source %s: %s failure: %v", f.Source, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Retryable reports whether another attempt may succeed.
func (f *Failure) Retryable() bool {
	return f.Kind == Transient || f.Kind == Timeout
}

// StatusFailure classifies a non-2xx response.
func StatusFailure(source string, status int) *Failure {
	kind := Permanent
	switch {
	case status == http.StatusRequestTimeout,
		status == http.StatusTooEarly,
		status == http.StatusTooManyRequests:
		kind = Transient
	case status >= 500 && status != http.StatusNotImplemented && status != http.StatusHTTPVersionNotSupported:
		kind = Transient
	}

	return &Failure{
		Source: source,
		Kind:   kind,
		Status: status,
		Err:    fmt.Errorf("unexpected status %d %s", status, http.StatusText(status)),
	}
}

// Permanentf builds a non-retryable failure, typically for malformed payloads.
func Permanentf(source, format string, args ...any) *Failure {
	return &Failure{Source: source, Kind: Permanent, Err: fmt.Errorf(format, args...)}
}

// Classify turns any error into a *Failure. Existing failures are returned as is.
func Classify(source string, err error) *Failure {
	if err == nil {
		return nil
	}

	var failure *Failure
	if errors.As(err, &failure) {
		if failure.Source == "" {
			failure.Source = source
		}
		return failure
	}

	kind := Permanent
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = Timeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = Timeout
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		kind = Transient
	}

	return &Failure{Source: source, Kind: kind, Err: err}
}
