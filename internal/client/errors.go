package client

import (
	"errors"
	"fmt"
)

// ErrNotConfigured is returned by optional clients that have no credentials.
var ErrNotConfigured = errors.New("client not configured")

// APIError is a non-2xx answer from an upstream HTTP API
type APIError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Body)
}
