package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	operationsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitalsync",
			Name:      "operations_processed_total",
			Help:      "Operations dispatched successfully, by type.",
		},
		[]string{"type"},
	)

	operationsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitalsync",
			Name:      "operations_failed_total",
			Help:      "Failed dispatch attempts, by type and error kind.",
		},
		[]string{"type", "kind"},
	)

	operationsAbandoned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitalsync",
			Name:      "operations_abandoned_total",
			Help:      "Operations moved to the permanently-failed set, by type.",
		},
		[]string{"type"},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vitalsync",
			Name:      "queue_depth",
			Help:      "Operations currently pending.",
		},
	)

	batchesUploaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitalsync",
			Name:      "sync_batches_total",
			Help:      "Uploaded metric batches, by category and result.",
		},
		[]string{"category", "result"},
	)

	syncCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitalsync",
			Name:      "sync_cycles_total",
			Help:      "Completed sync cycles, by final state.",
		},
		[]string{"state"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			operationsProcessed,
			operationsFailed,
			operationsAbandoned,
			queueDepth,
			batchesUploaded,
			syncCycles,
		)
	})
}

// IncProcessed increments the success counter for an operation type.
func IncProcessed(opType string) {
	operationsProcessed.WithLabelValues(opType).Inc()
}

// IncFailed increments the failure counter for a type and error kind.
func IncFailed(opType, kind string) {
	operationsFailed.WithLabelValues(opType, kind).Inc()
}

// IncAbandoned increments the permanently-failed counter for a type.
func IncAbandoned(opType string) {
	operationsAbandoned.WithLabelValues(opType).Inc()
}

// SetQueueDepth records the current pending-set size.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// IncBatch increments the batch counter for a category and result.
func IncBatch(category, result string) {
	batchesUploaded.WithLabelValues(category, result).Inc()
}

// IncSyncCycle increments the cycle counter for a final state.
func IncSyncCycle(state string) {
	syncCycles.WithLabelValues(state).Inc()
}
