// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector bundles the prometheus metrics of the core: job throughput per
// step and phase, monitor loop activity, and fusion volume.
type Collector struct {
	jobsSubmitted     *prometheus.CounterVec
	jobsFailed        *prometheus.CounterVec
	monitorIterations *prometheus.CounterVec
	fusedRows         *prometheus.CounterVec
	fusionDuration    prometheus.Histogram

	registry *prometheus.Registry
}

// NewCollector creates a collector with its own registry, so independent
// submissions in one process never collide on metric registration.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()
	factory := func(name, help string, labels ...string) *prometheus.CounterVec {
		vec := prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help},
			labels,
		)
		registry.MustRegister(vec)
		return vec
	}

	c := &Collector{registry: registry}
	c.jobsSubmitted = factory(
		"jobs_submitted_total",
		"Total number of jobs registered with the execution engine",
		"step", "phase",
	)
	c.jobsFailed = factory(
		"jobs_failed_total",
		"Total number of jobs that reached a failed terminal state",
		"step", "phase",
	)
	c.monitorIterations = factory(
		"monitor_iterations_total",
		"Total number of monitor poll iterations",
		"step",
	)
	c.fusedRows = factory(
		"fused_rows_total",
		"Total number of dataset rows copied during fusion",
		"category",
	)
	c.fusionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fusion_duration_seconds",
		Help:      "Duration of dataset fusion passes in seconds",
		Buckets:   prometheus.DefBuckets,
	})
	registry.MustRegister(c.fusionDuration)

	return c
}

// Registry returns the underlying registry for exposition.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// JobSubmitted counts one job handed to the engine.
func (c *Collector) JobSubmitted(step, phase string) {
	c.jobsSubmitted.WithLabelValues(step, phase).Inc()
}

// JobFailed counts one job that failed terminally.
func (c *Collector) JobFailed(step, phase string) {
	c.jobsFailed.WithLabelValues(step, phase).Inc()
}

// MonitorIteration counts one poll iteration of the monitor loop.
func (c *Collector) MonitorIteration(step string) {
	c.monitorIterations.WithLabelValues(step).Inc()
}

// RowsFused counts dataset rows copied into a fused output file.
func (c *Collector) RowsFused(category string, n int) {
	c.fusedRows.WithLabelValues(category).Add(float64(n))
}

// FusionFinished records the duration of one fusion pass.
func (c *Collector) FusionFinished(seconds float64) {
	c.fusionDuration.Observe(seconds)
}
