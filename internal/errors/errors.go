// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrRepositoryNotFound is returned when a local repository record does not exist.
	ErrRepositoryNotFound = errors.New("repository not found")
	// ErrUserNotFound is returned when a local user record does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrNoToken is returned when a user has no stored provider access token.
	ErrNoToken = errors.New("user has no provider access token")
	// ErrSyncInProgress is returned when another pass already holds the repository.
	ErrSyncInProgress = errors.New("repository sync already in progress")
)

// ErrInvalidRepoFormat is returned when a repository string is not in 'owner/name' format.
type ErrInvalidRepoFormat struct {
	Repo string
}

func (e *ErrInvalidRepoFormat) Error() string {
	return fmt.Sprintf("invalid repository format: %q, expected 'owner/name'", e.Repo)
}

// Kind classifies a failed provider call.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindRateLimited  Kind = "rate_limited"
	KindTransient    Kind = "transient"
	KindOther        Kind = "other"
)

// ProviderError is the typed failure returned by every provider call.
type ProviderError struct {
	Kind    Kind
	Status  int
	Op      string
	Message string
	// RetryAt is when the provider said the call may be retried, if known.
	RetryAt time.Time
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Op, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may retry the call with backoff.
func (e *ProviderError) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindTransient
}

// KindForStatus maps an HTTP status code to a provider error kind.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusForbidden:
		return KindForbidden
	case status >= 500:
		return KindTransient
	default:
		return KindOther
	}
}

// IsKind reports whether err is a ProviderError of the given kind.
func IsKind(err error, kind Kind) bool {
	var pErr *ProviderError
	if errors.As(err, &pErr) {
		return pErr.Kind == kind
	}
	return false
}

// IsRetryable reports whether err is a retryable ProviderError.
func IsRetryable(err error) bool {
	var pErr *ProviderError
	return errors.As(err, &pErr) && pErr.Retryable()
}

// ValidationError describes malformed local input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}
