package ingest

import (
	"context"
	"errors"
	"net"
)

// Sentinel errors used to classify source and anchoring failures. Wrap them
// with fmt.Errorf("...: %w", ...) so callers can test with errors.Is.
var (
	// ErrUnauthorized means the remote API rejected our credentials. The
	// cycle ends and is not retried until the next scheduled run.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRateLimited means the remote API asked us to back off.
	ErrRateLimited = errors.New("rate limited")
	// ErrTransient covers network errors, timeouts and 5xx responses.
	ErrTransient = errors.New("transient failure")
	// ErrNotFound is returned by read queries when no record matches.
	ErrNotFound = errors.New("not found")
)

// Failure kinds reported in cycle results.
const (
	FailureUnauthorized = "unauthorized"
	FailureRateLimited  = "rate_limited"
	FailureTransient    = "transient"
	FailureUnknown      = "unknown"
)

// FailureKind maps an error to its reportable kind. Timeouts and context
// deadline expiry count as transient.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return FailureUnauthorized
	case errors.Is(err, ErrRateLimited):
		return FailureRateLimited
	case errors.Is(err, ErrTransient), errors.Is(err, context.DeadlineExceeded), isTimeout(err):
		return FailureTransient
	default:
		return FailureUnknown
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
