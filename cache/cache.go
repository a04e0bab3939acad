package cache

import (
	"io"
	"os"
	"time"
)

// ErrNotFound is returned when a cached file does not exist.
//
// Implementations return errors satisfying `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// Store is the local cache capability consumed by the directory core.
// One file per storage key, holding the decompressed logical content.
// Implementations must be safe for concurrent use on distinct names;
// per-name serialization is the caller's job.
type Store interface {
	// Create creates or truncates the named file and opens it for writing.
	Create(name string) (File, error)

	// Open opens the named file for reading. Every call returns an
	// independent cursor over the same content.
	Open(name string) (File, error)

	// Delete removes the named file.
	Delete(name string) error

	// List returns the names of all cached files.
	List() ([]string, error)

	// Length returns the byte length of the named file.
	Length(name string) (int64, error)

	// ModTime returns the modification time of the named file.
	ModTime(name string) (time.Time, error)

	// Touch sets the modification time of the named file.
	Touch(name string, t time.Time) error
}

// File is one open handle with its own cursor.
type File interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer

	// Name returns the storage key the handle was opened under.
	Name() string

	// Sync flushes buffered content to stable storage.
	Sync() error
}
