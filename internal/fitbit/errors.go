package fitbit

import (
	"errors"
	"fmt"
)

// Typed fetch failures. Callers branch with errors.Is.
var (
	// ErrRateLimited signals HTTP 429 from the vendor; the caller should
	// back off rather than retry immediately.
	ErrRateLimited = errors.New("vendor rate limit exceeded")

	// ErrAuthExpired signals that the token refresh failed; the user must
	// re-authorize before any further fetch can succeed.
	ErrAuthExpired = errors.New("vendor authorization expired")

	// ErrUnavailable signals a timeout or connection failure; retryable.
	ErrUnavailable = errors.New("vendor api unavailable")
)

// APIError carries an unexpected non-2xx vendor response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vendor api returned status %d: %s", e.StatusCode, e.Body)
}
