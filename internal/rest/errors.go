package rest

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized means the bearer token is missing, expired or revoked.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound means the counterpart or resource does not exist.
	ErrNotFound = errors.New("not found")
)

// APIError is a non-2xx backend response that maps to no sentinel.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: status %d", e.Status)
	}
	return fmt.Sprintf("backend: status %d: %s", e.Status, e.Message)
}
