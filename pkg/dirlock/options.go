package dirlock

import (
	"time"

	"github.com/rs/zerolog"
)

// Outcome classifies how a batch ended.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeActionError Outcome = "action_error"
	OutcomeLockError   Outcome = "lock_error"
	OutcomeClosed      Outcome = "closed"
)

// Observer receives timing reports for batches. Calls for one batch are
// made from the goroutine running it: WaitStarted, then WaitFinished, then
// BatchFinished. Implementations must be safe for concurrent use.
type Observer interface {
	// WaitStarted is called before the batch starts waiting for the lock.
	WaitStarted()
	// WaitFinished reports how long the batch waited and whether it got the
	// lock.
	WaitFinished(wait time.Duration, acquired bool)
	// BatchFinished reports the outcome and how long the lock was held.
	BatchFinished(outcome Outcome, hold time.Duration)
}

type nopObserver struct{}

func (nopObserver) WaitStarted() {}
func (nopObserver) WaitFinished(time.Duration, bool) {}
func (nopObserver) BatchFinished(Outcome, time.Duration) {}

// Option configures Open.
type Option func(*options)

type options struct {
	logger   zerolog.Logger
	observer Observer
}

func newOptions(opts []Option) options {
	o := options{
		logger:   zerolog.Nop(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// WithLogger sets the logger used for lock lifecycle events. Acquire and
// release are logged at debug level.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithObserver sets the Observer notified about every batch.
func WithObserver(observer Observer) Option {
	return func(o *options) {
		if observer != nil {
			o.observer = observer
		}
	}
}
