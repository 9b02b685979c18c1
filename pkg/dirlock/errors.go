package dirlock

import (
	"errors"
	"fmt"
)

var (
	// ErrNotDirectory is matched by errors from Open when the path does not
	// resolve to an existing directory.
	ErrNotDirectory = errors.New("not a directory")
	// ErrClosed is returned by Batch on a Dir that has been closed.
	ErrClosed = errors.New("dirlock: use of closed directory handle")
)

// NotDirectoryError reports that Open was given a path that does not exist
// or is not a directory.
type NotDirectoryError struct {
	Path string
	Err  error // underlying stat or resolution failure, if any
}

func (e *NotDirectoryError) Error() string {
	return fmt.Sprintf("%s is not a directory", e.Path)
}

func (e *NotDirectoryError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrNotDirectory) hold for any NotDirectoryError.
func (e *NotDirectoryError) Is(target error) bool {
	return target == ErrNotDirectory
}

// LockError is an I/O failure on the lock file. Op is "open" during Open,
// "lock" or "unlock" during Batch, and "close" when the last handle closes.
type LockError struct {
	Op   string
	Path string
	Err  error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("dirlock %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *LockError) Unwrap() error { return e.Err }

// ActionError carries the error returned by a batch action. It adds no text
// of its own, and errors.Is and errors.As see through it to the original.
type ActionError struct {
	Err error
}

func (e *ActionError) Error() string { return e.Err.Error() }

func (e *ActionError) Unwrap() error { return e.Err }

var errNoLockName = errors.New("filesystem root has no sibling lock file")
