package dirlock

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// locker is the OS-level lock held for the duration of one batch.
// *filelock.File implements it.
type locker interface {
	Lock() error
	Unlock() error
	Close() error
}

// state is shared by every Dir cloned from the same Open call.
type state struct {
	root     string
	lockPath string
	logger   zerolog.Logger
	observer Observer

	refs atomic.Int64

	// mu serializes batches of this state and guards flock and closed.
	// It is always taken before the OS lock and released after it.
	mu     sync.Mutex
	flock  locker
	closed bool
}

func newState(root, lockPath string, flock locker, o options) *state {
	s := &state{
		root:     root,
		lockPath: lockPath,
		logger:   o.logger.With().Str("component", "dirlock").Str("dir", root).Logger(),
		observer: o.observer,
		flock:    flock,
	}
	s.refs.Store(1)

	return s
}

// retain adds a reference unless the state has already been released.
func (s *state) retain() bool {
	for {
		n := s.refs.Load()
		if n <= 0 {
			return false
		}
		if s.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// release drops a reference and closes the lock file with the last one.
// A batch in progress finishes first.
func (s *state) release() error {
	if s.refs.Add(-1) != 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if err := s.flock.Close(); err != nil {
		s.logger.Error().Err(err).Str("lock", s.lockPath).Msg("close lock file")
		return &LockError{Op: "close", Path: s.lockPath, Err: err}
	}
	s.logger.Debug().Msg("lock file closed")

	return nil
}

// run executes action while holding the in-process mutex and the OS lock.
// Both are released by deferred calls, OS lock first, so an early return or
// a panic in action leaks neither.
func (s *state) run(action func(root string) error) (err error) {
	logger := s.logger.With().Str("batch", uuid.NewString()).Logger()

	s.observer.WaitStarted()
	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.observer.WaitFinished(time.Since(start), false)
		s.observer.BatchFinished(OutcomeClosed, 0)
		return ErrClosed
	}

	if lockErr := s.flock.Lock(); lockErr != nil {
		s.observer.WaitFinished(time.Since(start), false)
		s.observer.BatchFinished(OutcomeLockError, 0)
		logger.Error().Err(lockErr).Str("lock", s.lockPath).Msg("acquire lock")
		return &LockError{Op: "lock", Path: s.lockPath, Err: lockErr}
	}

	wait := time.Since(start)
	s.observer.WaitFinished(wait, true)
	logger.Debug().Dur("wait", wait).Msg("lock acquired")
	acquired := time.Now()
	returned := false

	defer func() {
		hold := time.Since(acquired)
		if !returned {
			logger.Error().Msg("batch action panicked")
		}

		if unlockErr := s.flock.Unlock(); unlockErr != nil {
			logger.Error().Err(unlockErr).Str("lock", s.lockPath).Msg("release lock")
			lockErr := &LockError{Op: "unlock", Path: s.lockPath, Err: unlockErr}
			if err != nil {
				err = errors.Join(lockErr, err)
			} else {
				err = lockErr
			}
		} else {
			logger.Debug().Dur("hold", hold).Msg("lock released")
		}

		outcome := outcomeOf(err)
		if !returned && outcome == OutcomeOK {
			outcome = OutcomeActionError
		}
		s.observer.BatchFinished(outcome, hold)
	}()

	actionErr := action(s.root)
	returned = true
	if actionErr != nil {
		return &ActionError{Err: actionErr}
	}

	return nil
}

func outcomeOf(err error) Outcome {
	var lockErr *LockError
	switch {
	case err == nil:
		return OutcomeOK
	case errors.As(err, &lockErr):
		return OutcomeLockError
	default:
		return OutcomeActionError
	}
}
