package llm

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrEmptyResponse = errors.New("model returned no choices")
	ErrNoEndpoint    = errors.New("no endpoint configured for model")
)

// APIError is a non-2xx reply from a chat-completion endpoint.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("translation API error: %d", e.StatusCode)
	}
	return fmt.Sprintf("translation API error: %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the call is worth retrying. Only rate limiting is.
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsTransient reports whether err carries a transient classification.
func IsTransient(err error) bool {
	var t interface{ Transient() bool }
	return errors.As(err, &t) && t.Transient()
}
