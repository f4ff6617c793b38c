// Package metrics exposes Prometheus collectors for the notification engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector records engine activity. It satisfies notifications.Observer.
type Collector struct {
	submissions   *prometheus.CounterVec
	attempts      *prometheus.CounterVec
	sinkLatency   *prometheus.HistogramVec
	schedulerSize prometheus.Gauge
	unreadChanges *prometheus.CounterVec
}

// New registers the collectors with reg. Use prometheus.DefaultRegisterer
// in production and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notify",
			Name:      "submissions_total",
			Help:      "Submitted notifications by outcome (accepted, suppressed, skipped, rejected).",
		}, []string{"outcome"}),
		attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notify",
			Name:      "delivery_attempts_total",
			Help:      "Delivery attempts by channel and resulting state.",
		}, []string{"channel", "state"}),
		sinkLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "notify",
			Name:      "sink_latency_seconds",
			Help:      "Channel sink call latency in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}, []string{"channel"}),
		schedulerSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "notify",
			Name:      "scheduler_queue_depth",
			Help:      "Notifications waiting in the priority scheduler.",
		}),
		unreadChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notify",
			Name:      "read_state_changes_total",
			Help:      "Read-state transitions by operation.",
		}, []string{"op"}),
	}
}

func (c *Collector) ObserveSubmission(outcome string) {
	c.submissions.WithLabelValues(outcome).Inc()
}

func (c *Collector) ObserveAttempt(channel, state string, latency time.Duration) {
	c.attempts.WithLabelValues(channel, state).Inc()
	if latency > 0 {
		c.sinkLatency.WithLabelValues(channel).Observe(latency.Seconds())
	}
}

func (c *Collector) ObserveQueueDepth(n int) {
	c.schedulerSize.Set(float64(n))
}

func (c *Collector) ObserveReadState(op string, n int) {
	if n > 0 {
		c.unreadChanges.WithLabelValues(op).Add(float64(n))
	}
}
