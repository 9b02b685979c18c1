// Package progress provides a heartbeat reporter for long blocking waits.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// DefaultInterval is the heartbeat period used when none is configured.
const DefaultInterval = 5 * time.Second

// Reporter periodically writes "<label>... <elapsed> elapsed" lines until
// stopped.
type Reporter struct {
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Start begins reporting to w every interval. A non-positive interval uses
// DefaultInterval.
func Start(w io.Writer, label string, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}

	r := &Reporter{
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	startTime := time.Now()
	ticker := time.NewTicker(interval)

	go func() {
		defer close(r.doneCh)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				elapsed := time.Since(startTime).Round(time.Second)
				_, _ = fmt.Fprintf(w, "%s... %s elapsed\n", label, elapsed)
			case <-r.stopCh:
				return
			}
		}
	}()

	return r
}

// Stop ends reporting and waits for the reporter goroutine to exit. It is
// safe to call more than once and on a nil Reporter.
func (r *Reporter) Stop() {
	if r == nil {
		return
	}

	r.stopOnce.Do(func() {
		close(r.stopCh)
		<-r.doneCh
	})
}
