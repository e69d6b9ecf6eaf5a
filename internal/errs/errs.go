// Package errs defines the failure classes the pipeline distinguishes.
//
// Adapter failures (unavailable, rejected, unsupported) are recovered into
// report provenance. Only assembly and persistence failures reach callers.
package errs

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrProviderRejected    = errors.New("provider rejected request")
	ErrUnsupported         = errors.New("unsupported in strict provider mode")
	ErrAssemblyFatal       = errors.New("report assembly failed")
	ErrPersistence         = errors.New("persistence failure")
)

// maxBodyLen bounds the response body kept on a RejectedError.
const maxBodyLen = 512

// RejectedError carries the diagnostics of a non-transient provider failure.
type RejectedError struct {
	Provider string
	Status   int
	Body     string
}

func (e *RejectedError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s rejected: %s", e.Provider, e.Body)
	}
	return fmt.Sprintf("%s rejected with status %d: %s", e.Provider, e.Status, e.Body)
}

// Unavailable marks cause as a transient provider failure that outlived its retries.
func Unavailable(provider string, attempts int, cause error) error {
	if cause == nil {
		cause = errors.New("no response")
	}
	err := errors.Wrapf(cause, "%s unavailable after %d attempts", provider, attempts)
	return errors.Mark(err, ErrProviderUnavailable)
}

// Rejected builds a non-transient provider failure.
func Rejected(provider string, status int, body []byte) error {
	b := string(body)
	if len(b) > maxBodyLen {
		b = b[:maxBodyLen]
	}
	return errors.Mark(&RejectedError{Provider: provider, Status: status, Body: b}, ErrProviderRejected)
}

// Malformed marks a response that could not be decoded as rejected.
func Malformed(provider string, cause error) error {
	err := errors.Wrapf(cause, "%s returned a malformed response", provider)
	return errors.Mark(err, ErrProviderRejected)
}

// Unsupported reports that a provider has no strict-compatible source.
func Unsupported(provider, reason string) error {
	return errors.Mark(errors.Newf("%s: %s", provider, reason), ErrUnsupported)
}

// AssemblyFatal marks the single fatal assembly path.
func AssemblyFatal(team string, cause error) error {
	err := errors.Wrapf(cause, "no game data for %s", team)
	return errors.Mark(err, ErrAssemblyFatal)
}

// Persistence marks a failed write to the sink.
func Persistence(cause error) error {
	return errors.Mark(errors.Wrap(cause, "failed to persist report"), ErrPersistence)
}

func IsUnavailable(err error) bool { return errors.Is(err, ErrProviderUnavailable) }
func IsRejected(err error) bool    { return errors.Is(err, ErrProviderRejected) }
func IsUnsupported(err error) bool { return errors.Is(err, ErrUnsupported) }
func IsFatal(err error) bool       { return errors.Is(err, ErrAssemblyFatal) }
func IsPersistence(err error) bool { return errors.Is(err, ErrPersistence) }

// Kind returns a short label for logs and metric labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case IsFatal(err):
		return "assembly_fatal"
	case IsPersistence(err):
		return "persistence_failure"
	case IsUnsupported(err):
		return "unsupported"
	case IsUnavailable(err):
		return "provider_unavailable"
	case IsRejected(err):
		return "provider_rejected"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "unknown"
	}
}
