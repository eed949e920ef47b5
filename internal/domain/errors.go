// internal/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned by adapters when the API responds with HTTP 401.
// Callers can check for it using errors.Is to trigger token refresh or re-auth.
var ErrUnauthorized = errors.New("unauthorized")

// ErrUnknownProvider is returned when a job names a provider nobody registered.
var ErrUnknownProvider = errors.New("unknown provider")

// AdapterError wraps a failure reported by a BuildAdapter for one job.
type AdapterError struct {
	Op  string // submit, poll or cancel
	Job string
	Err error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Job, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}
