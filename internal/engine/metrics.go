package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	modeRead  = "read"
	modeWrite = "write"
)

// Metrics holds the coordinator's Prometheus collectors.
//
// Each Metrics owns its registry so several coordinators (tests, harness
// scenarios) can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	acquisitions *prometheus.CounterVec
	releases     *prometheus.CounterVec
	operations   *prometheus.CounterVec
	deleteWaits  prometheus.Counter
	records      prometheus.Gauge
	lockWait     *prometheus.HistogramVec
}

// NewMetrics creates and registers the coordinator collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// Lock transitions, labeled by mode ("read" or "write").
		acquisitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chash_lock_acquisitions_total",
				Help: "Number of lock acquisitions by command tasks",
			},
			[]string{"mode"},
		),
		releases: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chash_lock_releases_total",
				Help: "Number of lock releases by command tasks",
			},
			[]string{"mode"},
		),

		// Outcomes: inserted, updated, found, not_found, deleted, interrupted.
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chash_operations_total",
				Help: "Completed operations by kind and outcome",
			},
			[]string{"op", "outcome"},
		),
		deleteWaits: factory.NewCounter(prometheus.CounterOpts{
			Name: "chash_delete_waits_total",
			Help: "Number of times a delete waited for an insert",
		}),
		records: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chash_records",
			Help: "Number of records currently in the store",
		}),

		// Time spent blocked before the lock was granted.
		lockWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chash_lock_wait_seconds",
				Help:    "Time spent waiting to acquire the lock",
				Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1, 10},
			},
			[]string{"mode"},
		),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the current metrics in the Prometheus text format,
// suitable for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) observeAcquire(mode string, waited time.Duration) {
	m.acquisitions.WithLabelValues(mode).Inc()
	m.lockWait.WithLabelValues(mode).Observe(waited.Seconds())
}

func (m *Metrics) observeRelease(mode string) {
	m.releases.WithLabelValues(mode).Inc()
}

func (m *Metrics) observeOp(op, outcome string) {
	m.operations.WithLabelValues(op, outcome).Inc()
}
