package client

import (
	"errors"
	"fmt"
	"net/http"

	sessionservice "qr-access-control/internal/session/service"
)

// HTTPError represents a non-2xx HTTP response from the API.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps session route statuses onto the issuer's sentinel errors so a rotation
// controller can tell a lost ticket from a transient failure.
func (e *HTTPError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return sessionservice.ErrTicketNotFound
	case http.StatusConflict:
		return sessionservice.ErrTicketNotActive
	}
	return nil
}

// IsStatus returns true if err (or any wrapped error) is an HTTPError with the given status code.
func IsStatus(err error, code int) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == code
	}
	return false
}
