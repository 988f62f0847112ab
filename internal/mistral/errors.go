package mistral

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrRateLimitExceeded is returned once the retry budget for 429
	// responses is spent. Its text is shown to users as-is.
	ErrRateLimitExceeded = errors.New("Mistral API rate limit exceeded. Service tier capacity exceeded for this model. Please try again later or consider upgrading your Mistral API plan.")

	// ErrMissingAPIKey is returned by New when no API key is configured.
	ErrMissingAPIKey = errors.New("missing Mistral API key: set MISTRAL_API_KEY")
)

// HTTPStatusError is a non-2xx provider response.
type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "mistral status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("mistral %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("mistral %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

// RateLimitError reports an operation that stayed rate limited through every
// attempt. It matches ErrRateLimitExceeded with errors.Is.
type RateLimitError struct {
	Operation string
	Attempts  int
	Err       error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%v (%s gave up after %d attempts)", ErrRateLimitExceeded, e.Operation, e.Attempts)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimitExceeded }

// IsRateLimited reports whether err signals an HTTP 429. A status error is
// judged by its code alone; the error text is only consulted for errors
// that carry no status.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests
	}
	return strings.Contains(err.Error(), "429")
}
