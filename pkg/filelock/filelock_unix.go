//go:build !windows

package filelock

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// lockFile takes an exclusive flock(2) lock, blocking while another open
// file description holds it.
func lockFile(f *os.File) error {
	return ignoringEINTR(func() error {
		return unix.Flock(int(f.Fd()), unix.LOCK_EX)
	})
}

func tryLockFile(f *os.File) (bool, error) {
	err := ignoringEINTR(func() error {
		return unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	})
	if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}

func unlockFile(f *os.File) error {
	return ignoringEINTR(func() error {
		return unix.Flock(int(f.Fd()), unix.LOCK_UN)
	})
}

func ignoringEINTR(fn func() error) error {
	for {
		err := fn()
		if !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}
