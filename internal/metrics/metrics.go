// Package metrics exports dispatch counters through Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joeycumines/hostbridge/internal/dispatch"
)

const namespace = "hostbridge"

// Collector implements dispatch.Observer. Labels are limited to the target
// kind and outcome; command names come from scripts and are unbounded.
type Collector struct {
	started  *prometheus.CounterVec
	settled  *prometheus.CounterVec
	pending  *prometheus.GaugeVec
	duration *prometheus.HistogramVec
}

// NewCollector creates the collectors and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_started_total",
			Help:      "Dispatches accepted by a router.",
		}, []string{"kind"}),
		settled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_settled_total",
			Help:      "Dispatches settled, by outcome (resolved or the error kind).",
		}, []string{"kind", "outcome"}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatches_pending",
			Help:      "Dispatches started but not yet settled.",
		}, []string{"kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time from dispatch to settlement.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"kind"}),
	}
	for _, col := range []prometheus.Collector{c.started, c.settled, c.pending, c.duration} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// DispatchStarted implements dispatch.Observer.
func (c *Collector) DispatchStarted(kind dispatch.TargetKind, _ string) {
	c.started.WithLabelValues(kind.String()).Inc()
	c.pending.WithLabelValues(kind.String()).Inc()
}

// DispatchSettled implements dispatch.Observer.
func (c *Collector) DispatchSettled(kind dispatch.TargetKind, _ string, err error, elapsed time.Duration) {
	outcome := "resolved"
	if err != nil {
		outcome = dispatch.KindOf(err).String()
	}
	c.settled.WithLabelValues(kind.String(), outcome).Inc()
	c.pending.WithLabelValues(kind.String()).Dec()
	c.duration.WithLabelValues(kind.String()).Observe(elapsed.Seconds())
}
