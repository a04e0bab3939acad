package blobdir

import (
	"fmt"

	"github.com/hupe1980/blobdir/remote"
)

// ErrNotFound is returned when a remote blob does not exist.
// It satisfies `errors.Is(err, os.ErrNotExist)`.
var ErrNotFound = remote.ErrNotFound

// FileNotFoundError reports a failed attempt to open an input for a name
// that could not be resolved in the remote store.
//
// The underlying cause can be accessed via errors.Unwrap.
type FileNotFoundError struct {
	Name  string
	cause error
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("file not found: %s: %v", e.Name, e.cause)
}

func (e *FileNotFoundError) Unwrap() error { return e.cause }

// PublishError reports a failed publish step on output close. Stage is
// "upload" for the content PUT and "metadata" for the metadata PUT. When
// the metadata stage fails the remote object holds fresh content with
// stale or absent metadata; the local cache file is left intact.
type PublishError struct {
	Name  string
	Stage string
	cause error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s: %s failed: %v", e.Name, e.Stage, e.cause)
}

func (e *PublishError) Unwrap() error { return e.cause }

// CloneError reports a failed duplication of an input's local handle.
// A failed clone never yields a partially usable stream.
type CloneError struct {
	Name  string
	cause error
}

func (e *CloneError) Error() string {
	return fmt.Sprintf("clone input %s: %v", e.Name, e.cause)
}

func (e *CloneError) Unwrap() error { return e.cause }
