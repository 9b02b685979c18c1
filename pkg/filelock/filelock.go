// Package filelock provides advisory file locking on a long-lived lock file.
// A File keeps its descriptor open between Lock and Unlock calls so that the
// same lock target can be taken and released many times.
package filelock

import (
	"errors"
	"fmt"
	"os"
)

// ErrLocked is returned by non-blocking acquisition when another holder
// already owns the lock.
var ErrLocked = errors.New("lock is held by another process")

// File is an open lock file. The zero value and a nil *File are closed.
type File struct {
	file *os.File
	path string
}

// Open opens the lock file at path, creating it if needed. The lock is not
// taken; call Lock or TryLock.
func Open(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	return &File{file: f, path: path}, nil
}

// Acquire opens the file at path and takes an exclusive advisory lock
// without blocking. If another holder owns the lock, the returned error
// wraps ErrLocked. Close releases the lock.
func Acquire(path string) (*File, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}

	ok, err := f.TryLock()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if !ok {
		_ = f.Close()
		return nil, fmt.Errorf("acquire lock: %w", ErrLocked)
	}

	return f, nil
}

// Path returns the lock file path.
func (f *File) Path() string {
	if f == nil {
		return ""
	}
	return f.path
}

// Lock takes the exclusive lock, blocking until no other holder owns it.
func (f *File) Lock() error {
	if f == nil || f.file == nil {
		return fmt.Errorf("acquire lock: %w", os.ErrClosed)
	}

	if err := lockFile(f.file); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}

	return nil
}

// TryLock takes the exclusive lock if it is free and reports whether it did.
func (f *File) TryLock() (bool, error) {
	if f == nil || f.file == nil {
		return false, fmt.Errorf("acquire lock: %w", os.ErrClosed)
	}

	ok, err := tryLockFile(f.file)
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}

	return ok, nil
}

// Unlock releases the lock. The file stays open.
func (f *File) Unlock() error {
	if f == nil || f.file == nil {
		return fmt.Errorf("unlock: %w", os.ErrClosed)
	}

	if err := unlockFile(f.file); err != nil {
		return fmt.Errorf("unlock: %w", err)
	}

	return nil
}

// Close closes the lock file, which also drops any lock held through it.
// The file itself is left on disk. It is safe to call Close on a nil File
// and to call it more than once.
func (f *File) Close() error {
	if f == nil || f.file == nil {
		return nil
	}

	err := f.file.Close()
	f.file = nil
	if err != nil {
		return fmt.Errorf("close lock file: %w", err)
	}

	return nil
}
