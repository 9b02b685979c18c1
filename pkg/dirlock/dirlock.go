// Package dirlock serializes access to a directory across goroutines and
// across processes on the same machine.
//
// A Dir guards a directory with two layers: a sync.Mutex shared by every
// clone of the Dir, and an advisory lock on a sibling lock file ("a/b" is
// guarded by "a/b.lock") that excludes other processes and other Dirs opened
// on the same path. Batch takes the mutex, then the file lock, runs the
// caller's action, and releases both in reverse order on every exit path.
//
//	d, err := dirlock.Open("/var/lib/app/cache")
//	if err != nil {
//		return err
//	}
//	defer d.Close()
//
//	n, err := dirlock.Batch(d, func(root string) (int, error) {
//		entries, err := os.ReadDir(root)
//		return len(entries), err
//	})
//
// Acquisition blocks without timeout or cancellation. Calling Batch on a Dir
// (or one of its clones) from inside its own action deadlocks. The lock is
// advisory and local: it does not stop processes that ignore it, and gives
// no guarantees on network filesystems.
package dirlock

import (
	"runtime"
	"sync/atomic"

	"dirlock/pkg/filelock"
	"dirlock/pkg/safepath"
)

// Dir is a handle to a locked directory. Handles returned by Clone share the
// same mutex and lock file descriptor. The lock file is closed when the last
// handle is closed or garbage collected.
type Dir struct {
	state   *state
	closed  *atomic.Bool
	cleanup runtime.Cleanup
}

type handleRef struct {
	state  *state
	closed *atomic.Bool
}

// Open returns a Dir for the directory at path. The path is made absolute
// and its symlinks are resolved, so aliases of one directory share a lock
// file. Open fails with an error matching ErrNotDirectory if path is not an
// existing directory, in which case no lock file is created, and with a
// *LockError if the lock file cannot be opened or created.
func Open(path string, opts ...Option) (*Dir, error) {
	o := newOptions(opts)

	v, err := safepath.New(path)
	if err != nil {
		return nil, &NotDirectoryError{Path: path, Err: err}
	}
	root := v.Root()

	lockPath := LockPath(root)
	if lockPath == "" {
		return nil, &LockError{Op: "open", Path: root, Err: errNoLockName}
	}

	flock, err := filelock.Open(lockPath)
	if err != nil {
		return nil, &LockError{Op: "open", Path: lockPath, Err: err}
	}

	s := newState(root, lockPath, flock, o)
	s.logger.Debug().Str("lock", lockPath).Msg("lock file opened")

	return newDir(s), nil
}

func newDir(s *state) *Dir {
	d := &Dir{state: s, closed: new(atomic.Bool)}
	d.cleanup = runtime.AddCleanup(d, releaseHandle, handleRef{state: s, closed: d.closed})

	return d
}

func releaseHandle(h handleRef) {
	if h.closed.CompareAndSwap(false, true) {
		_ = h.state.release()
	}
}

// Path returns the canonical directory path passed to actions.
func (d *Dir) Path() string {
	return d.state.root
}

// LockPath returns the path of the lock file guarding the directory.
func (d *Dir) LockPath() string {
	return d.state.lockPath
}

// Clone returns a new handle sharing d's lock state. Cloning a closed handle
// returns a closed handle.
func (d *Dir) Clone() *Dir {
	if d.closed.Load() || !d.state.retain() {
		closed := &Dir{state: d.state, closed: new(atomic.Bool)}
		closed.closed.Store(true)
		return closed
	}

	return newDir(d.state)
}

// Close releases this handle. The lock file is closed once every handle
// sharing it has been closed; a batch running at that moment completes
// first. Close is idempotent.
func (d *Dir) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	d.cleanup.Stop()

	return d.state.release()
}

// Do runs action with exclusive access to the directory. See Batch.
func (d *Dir) Do(action func(root string) error) error {
	if d.closed.Load() {
		d.state.observer.BatchFinished(OutcomeClosed, 0)
		return ErrClosed
	}

	err := d.state.run(action)
	runtime.KeepAlive(d)

	return err
}

// Batch runs action with exclusive access to d's directory and returns its
// result. While action runs, no other batch on d or its clones, and no batch
// on another Dir for the same path in this or another process, is running.
//
// If action fails, the error is an *ActionError wrapping the action's error
// unmodified. If the lock cannot be taken, action does not run and the
// error is a *LockError. If the lock cannot be released, the result is
// discarded and a *LockError is returned, joined with the action's error
// when both failed.
func Batch[R any](d *Dir, action func(root string) (R, error)) (R, error) {
	var result R
	err := d.Do(func(root string) error {
		r, err := action(root)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		var zero R
		return zero, err
	}

	return result, nil
}
