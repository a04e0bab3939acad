package remote

import (
	"errors"
	"fmt"
	"net/http"
	"os"
)

// ErrNotFound is returned when a blob or container does not exist.
//
// Implementations return errors satisfying `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// ErrConflict is returned when the store rejects an operation because of
// a conflicting resource state, such as a lease held by another caller.
var ErrConflict = errors.New("remote: conflict")

// StatusError reports a non-success response from the remote store.
type StatusError struct {
	Method     string
	Resource   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote: %s %s: status %d", e.Method, e.Resource, e.StatusCode)
	}
	return fmt.Sprintf("remote: %s %s: status %d: %s", e.Method, e.Resource, e.StatusCode, e.Message)
}

// Unwrap maps well-known statuses onto sentinel errors so that callers can
// use errors.Is without inspecting status codes.
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	}
	return nil
}

// IsConflict reports whether err is a conflict response.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
