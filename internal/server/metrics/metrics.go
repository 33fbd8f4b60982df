// Package metrics собирает метрики pull/push для Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "boardsync"

// Collector is a prometheus.Collector with sync protocol metrics.
type Collector struct {
	pulls           *prometheus.CounterVec
	pullDuration    prometheus.Histogram
	patchSize       prometheus.Histogram
	mutations       *prometheus.CounterVec
	cvrsExpired     prometheus.Counter
	pokeSubscribers prometheus.Gauge
}

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		pulls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "pulls_total",
				Help:      "The number of processed pulls by outcome.",
			}, []string{"outcome"},
		),
		pullDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "pull_duration_seconds",
				Help:      "The time taken to process a pull.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),
		patchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "patch_ops",
				Help:      "The number of operations in a pull patch.",
				Buckets:   []float64{0, 1, 10, 100, 1000, 10000},
			},
		),
		mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "mutations_total",
				Help:      "The number of pushed mutations by outcome.",
			}, []string{"outcome"},
		),
		cvrsExpired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "cvrs_expired_total",
				Help:      "The number of CVRs removed by the TTL sweeper.",
			},
		),
		pokeSubscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "poke_subscribers",
				Help:      "The number of open poke websocket connections.",
			},
		),
	}
}

// ObservePull records one pull.
func (c *Collector) ObservePull(outcome string, patchOps int, elapsed time.Duration) {
	c.pulls.WithLabelValues(outcome).Inc()
	c.pullDuration.Observe(elapsed.Seconds())
	if patchOps > 0 {
		c.patchSize.Observe(float64(patchOps))
	}
}

// ObserveMutation records one mutation outcome.
func (c *Collector) ObserveMutation(outcome string) {
	c.mutations.WithLabelValues(outcome).Inc()
}

// CVRsExpired records CVRs removed by the sweeper.
func (c *Collector) CVRsExpired(n int) {
	c.cvrsExpired.Add(float64(n))
}

// PokeConnected tracks poke subscribers; pass -1 on disconnect.
func (c *Collector) PokeConnected(delta int) {
	c.pokeSubscribers.Add(float64(delta))
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.pulls.Describe(ch)
	c.pullDuration.Describe(ch)
	c.patchSize.Describe(ch)
	c.mutations.Describe(ch)
	c.cvrsExpired.Describe(ch)
	c.pokeSubscribers.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.pulls.Collect(ch)
	c.pullDuration.Collect(ch)
	c.patchSize.Collect(ch)
	c.mutations.Collect(ch)
	c.cvrsExpired.Collect(ch)
	c.pokeSubscribers.Collect(ch)
}
