// Package metrics provides Prometheus metrics for directory lock batches.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"dirlock/pkg/dirlock"
)

// Collector records batch metrics. It implements dirlock.Observer.
type Collector struct {
	// batches counts finished batches by outcome.
	batches *prometheus.CounterVec
	// wait tracks time spent waiting for both lock layers.
	wait *prometheus.HistogramVec
	// hold tracks how long the OS lock was held.
	hold prometheus.Histogram
	// waiting is the number of batches currently waiting for the lock.
	waiting prometheus.Gauge
}

var _ dirlock.Observer = (*Collector)(nil)

// New creates a Collector and registers its metrics with reg. A nil reg
// creates unregistered metrics.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		batches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dirlock_batches_total",
				Help: "Total directory lock batches by outcome",
			},
			[]string{"outcome"},
		),
		wait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dirlock_lock_wait_seconds",
				Help:    "Time spent waiting for the directory lock in seconds",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30, 120},
			},
			[]string{"acquired"},
		),
		hold: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dirlock_lock_hold_seconds",
				Help:    "Time the directory lock was held by a batch in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		waiting: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dirlock_batches_waiting",
				Help: "Current number of batches waiting for the directory lock",
			},
		),
	}
}

// WaitStarted implements dirlock.Observer.
func (c *Collector) WaitStarted() {
	c.waiting.Inc()
}

// WaitFinished implements dirlock.Observer.
func (c *Collector) WaitFinished(wait time.Duration, acquired bool) {
	c.waiting.Dec()

	label := "false"
	if acquired {
		label = "true"
	}
	c.wait.WithLabelValues(label).Observe(wait.Seconds())
}

// BatchFinished implements dirlock.Observer.
func (c *Collector) BatchFinished(outcome dirlock.Outcome, hold time.Duration) {
	c.batches.WithLabelValues(string(outcome)).Inc()
	if outcome == dirlock.OutcomeOK || outcome == dirlock.OutcomeActionError {
		c.hold.Observe(hold.Seconds())
	}
}

// WriteTextfile writes the metrics gathered from g to path in the text
// exposition format read by the node_exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}

	return nil
}
