// Copyright 2024 The P4VFS-Go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics instruments the hydration pipeline and sync engine with
// Prometheus counters and histograms. Every method is nil-safe: a nil
// *Metrics (the result of New with enabled=false) drops every observation
// at zero cost, so callers never need their own enabled/disabled branch.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector the service populates.
type Metrics struct {
	registry *prometheus.Registry

	hydrations        *prometheus.CounterVec
	hydrationDuration *prometheus.HistogramVec
	hydrationBytes    prometheus.Counter
	poolAllocations   *prometheus.CounterVec
	poolFaults        prometheus.Counter
	poolSize          prometheus.Gauge
	syncFiles         *prometheus.CounterVec
	syncDuration      prometheus.Histogram
	workerQueueDepth  prometheus.Gauge
}

// New builds the metrics registry. It returns nil when enabled is false so
// every instrumentation call site can call methods on the result
// unconditionally.
func New(enabled bool) *Metrics {
	if !enabled {
		return nil
	}

	reg := prometheus.NewRegistry()
	return &Metrics{
		registry: reg,
		hydrations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "p4vfs_hydrations_total",
				Help: "Total number of placeholder hydration attempts by outcome",
			},
			[]string{"outcome"}, // "resident", "removed", "retry_symlink", "error"
		),
		hydrationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "p4vfs_hydration_duration_seconds",
				Help:    "Time spent resolving a single placeholder's residency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"}, // "copy", "move", "stream"
		),
		hydrationBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "p4vfs_hydration_bytes_total",
				Help: "Total bytes fetched from the depot during hydration",
			},
		),
		poolAllocations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "p4vfs_session_pool_allocations_total",
				Help: "Total depot session pool allocations by result",
			},
			[]string{"result"}, // "reused", "created", "failed"
		),
		poolFaults: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "p4vfs_session_pool_faults_total",
				Help: "Total sessions discarded from the pool after a fault",
			},
		),
		poolSize: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "p4vfs_session_pool_size",
				Help: "Current number of idle sessions held in the pool",
			},
		),
		syncFiles: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "p4vfs_sync_files_total",
				Help: "Total files processed by the virtual sync engine by outcome",
			},
			[]string{"outcome"}, // "resident", "placeholder", "skipped", "conflict"
		),
		syncDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "p4vfs_sync_duration_seconds",
				Help:    "Wall-clock time of a single virtual sync operation",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
		),
		workerQueueDepth: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "p4vfs_worker_queue_depth",
				Help: "Current number of queued service tasks awaiting a worker",
			},
		),
	}
}

// Handler returns the HTTP handler exposing the registry in Prometheus text
// format, for mounting under the configured metrics address. Returns nil
// when m is nil.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return nil
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHydration(method, outcome string, duration time.Duration, bytes int64) {
	if m == nil {
		return
	}
	m.hydrations.WithLabelValues(outcome).Inc()
	m.hydrationDuration.WithLabelValues(method).Observe(duration.Seconds())
	if bytes > 0 {
		m.hydrationBytes.Add(float64(bytes))
	}
}

func (m *Metrics) ObservePoolAllocation(result string) {
	if m == nil {
		return
	}
	m.poolAllocations.WithLabelValues(result).Inc()
}

func (m *Metrics) ObservePoolFault() {
	if m == nil {
		return
	}
	m.poolFaults.Inc()
}

func (m *Metrics) SetPoolSize(n int) {
	if m == nil {
		return
	}
	m.poolSize.Set(float64(n))
}

func (m *Metrics) ObserveSyncFile(outcome string) {
	if m == nil {
		return
	}
	m.syncFiles.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSyncDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.syncDuration.Observe(d.Seconds())
}

func (m *Metrics) SetWorkerQueueDepth(n int) {
	if m == nil {
		return
	}
	m.workerQueueDepth.Set(float64(n))
}
