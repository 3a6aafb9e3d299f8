// Package metrics exposes Prometheus-compatible instrumentation for the
// task workflow engine's runner pool and scheduler.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the metrics exposed for a running engine, all
// namespaced "wfengine_".
//
//  1. runner_pool_busy / runner_pool_idle (gauge): current occupancy of
//     the runner pool.
//  2. runner_pool_pending (gauge): acquirers queued waiting for a runner.
//  3. task_latency_ms (histogram): dispatch-to-completion duration per
//     task type.
//  4. workflows_aborted_total (counter): workflows aborted, by reason.
//  5. tasks_failed_total (counter): tasks that reported a runner error.
type Collector struct {
	mu sync.RWMutex

	poolBusy    prometheus.Gauge
	poolIdle    prometheus.Gauge
	poolPending prometheus.Gauge

	taskLatency *prometheus.HistogramVec
	aborted     *prometheus.CounterVec
	failed      *prometheus.CounterVec

	enabled bool
}

// NewCollector registers the engine's metrics with registry. Passing nil
// uses prometheus.DefaultRegisterer.
func NewCollector(registry prometheus.Registerer) *Collector {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	c := &Collector{enabled: true}

	c.poolBusy = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "wfengine",
		Name:      "runner_pool_busy",
		Help:      "Current number of runners executing a task",
	})
	c.poolIdle = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "wfengine",
		Name:      "runner_pool_idle",
		Help:      "Current number of idle runners available for dispatch",
	})
	c.poolPending = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "wfengine",
		Name:      "runner_pool_pending",
		Help:      "Current number of acquirers queued waiting for a free runner",
	})
	c.taskLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "wfengine",
		Name:      "task_latency_ms",
		Help:      "Task dispatch-to-completion duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
	}, []string{"task_type", "status"})
	c.aborted = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wfengine",
		Name:      "workflows_aborted_total",
		Help:      "Workflow runs aborted, by reason",
	}, []string{"reason"})
	c.failed = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wfengine",
		Name:      "tasks_failed_total",
		Help:      "Tasks that reported a runner error",
	}, []string{"task_type"})

	return c
}

// RecordTaskLatency observes one task's dispatch-to-completion duration.
func (c *Collector) RecordTaskLatency(taskType string, d time.Duration, status string) {
	if !c.enabled {
		return
	}
	c.taskLatency.WithLabelValues(taskType, status).Observe(float64(d.Milliseconds()))
}

// SetPoolOccupancy updates the runner pool gauges from a single snapshot.
func (c *Collector) SetPoolOccupancy(busy, idle, pending int) {
	if !c.enabled {
		return
	}
	c.poolBusy.Set(float64(busy))
	c.poolIdle.Set(float64(idle))
	c.poolPending.Set(float64(pending))
}

// IncrementAborted records one workflow abort for the given reason.
func (c *Collector) IncrementAborted(reason string) {
	if !c.enabled {
		return
	}
	c.aborted.WithLabelValues(reason).Inc()
}

// IncrementFailed records one task failure for the given task type.
func (c *Collector) IncrementFailed(taskType string) {
	if !c.enabled {
		return
	}
	c.failed.WithLabelValues(taskType).Inc()
}
