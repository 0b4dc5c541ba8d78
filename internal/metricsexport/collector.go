// Package metricsexport adapts the breaker registry and stats sink into
// a Prometheus collector, grounded on the pack's own
// autobreaker/examples/prometheus collector: one custom
// prometheus.Collector that reads live state on every scrape rather
// than maintaining its own shadow counters.
package metricsexport

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/orbitpay/switchboard/internal/breaker"
	"github.com/orbitpay/switchboard/internal/stats"
)

// stateValue encodes a breaker.State as the gauge value Prometheus
// dashboards expect (0=closed, 1=half-open, 2=open).
func stateValue(s breaker.State) float64 {
	switch s {
	case breaker.Closed:
		return 0
	case breaker.HalfOpen:
		return 1
	case breaker.Open:
		return 2
	default:
		return -1
	}
}

// Collector exports the live breaker registry and stats sink as
// Prometheus metrics. It holds no counters of its own: Collect reads
// breaker.Registry.List and stats.Sink.Snapshot fresh on every scrape.
type Collector struct {
	registry *breaker.Registry
	sink     stats.Sink

	stateDesc       *prometheus.Desc
	successRateDesc *prometheus.Desc
	windowTotalDesc *prometheus.Desc
	windowFailDesc  *prometheus.Desc

	attemptsDesc  *prometheus.Desc
	successesDesc *prometheus.Desc
	failuresDesc  *prometheus.Desc
}

// New constructs a Collector over registry and sink.
func New(registry *breaker.Registry, sink stats.Sink) *Collector {
	return &Collector{
		registry: registry,
		sink:     sink,

		stateDesc: prometheus.NewDesc(
			"switchboard_breaker_state",
			"Circuit breaker state per processor (0=closed, 1=half_open, 2=open)",
			[]string{"processor"}, nil,
		),
		successRateDesc: prometheus.NewDesc(
			"switchboard_breaker_window_success_rate",
			"Success rate over the current rolling window",
			[]string{"processor"}, nil,
		),
		windowTotalDesc: prometheus.NewDesc(
			"switchboard_breaker_window_samples",
			"Total health-counting samples currently in the rolling window",
			[]string{"processor"}, nil,
		),
		windowFailDesc: prometheus.NewDesc(
			"switchboard_breaker_window_failures",
			"Failed samples currently in the rolling window",
			[]string{"processor"}, nil,
		),
		attemptsDesc: prometheus.NewDesc(
			"switchboard_processor_attempts_total",
			"Total charge attempts routed to a processor",
			[]string{"processor"}, nil,
		),
		successesDesc: prometheus.NewDesc(
			"switchboard_processor_successes_total",
			"Total successful charges on a processor",
			[]string{"processor"}, nil,
		),
		failuresDesc: prometheus.NewDesc(
			"switchboard_processor_failures_total",
			"Total non-successful charge outcomes on a processor",
			[]string{"processor"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.stateDesc
	ch <- c.successRateDesc
	ch <- c.windowTotalDesc
	ch <- c.windowFailDesc
	ch <- c.attemptsDesc
	ch <- c.successesDesc
	ch <- c.failuresDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	now := time.Now()
	for _, r := range c.registry.List(now) {
		ch <- prometheus.MustNewConstMetric(c.stateDesc, prometheus.GaugeValue, stateValue(r.State), r.Name)
		ch <- prometheus.MustNewConstMetric(c.successRateDesc, prometheus.GaugeValue, r.SuccessRate, r.Name)
		ch <- prometheus.MustNewConstMetric(c.windowTotalDesc, prometheus.GaugeValue, float64(r.TotalCallsInWindow), r.Name)
		ch <- prometheus.MustNewConstMetric(c.windowFailDesc, prometheus.GaugeValue, float64(r.FailedCallsInWindow), r.Name)
	}

	report := c.sink.Snapshot(context.Background())
	for name, pc := range report.ByProcessor {
		ch <- prometheus.MustNewConstMetric(c.attemptsDesc, prometheus.CounterValue, float64(pc.Attempts), name)
		ch <- prometheus.MustNewConstMetric(c.successesDesc, prometheus.CounterValue, float64(pc.Successes), name)
		ch <- prometheus.MustNewConstMetric(c.failuresDesc, prometheus.CounterValue, float64(pc.Failures), name)
	}
}
