package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RelayMetrics holds the Prometheus metrics for the ingestion relay.
type RelayMetrics struct {
	ChunksAssembledTotal prometheus.Counter
	QueueDepth           prometheus.Gauge

	BulkFlushesTotal    *prometheus.CounterVec
	BulkDocsTotal       prometheus.Counter
	BulkDocsFailedTotal prometheus.Counter

	ObserversConnected    prometheus.Gauge
	EventsPublishedTotal  *prometheus.CounterVec
	ObserversDroppedTotal prometheus.Counter
}

// NewRelayMetrics registers the relay metric set against the given registerer.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	factory := promauto.With(reg)

	return &RelayMetrics{
		ChunksAssembledTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_chunks_assembled_total",
			Help: "Transcript chunks assembled from raw fragments",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_write_buffer_depth",
			Help: "Chunks currently queued for bulk persistence",
		}),
		BulkFlushesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_bulk_flushes_total",
			Help: "Bulk writes issued to the storage sink",
		}, []string{"status"}),
		BulkDocsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_bulk_docs_total",
			Help: "Documents submitted in bulk writes",
		}),
		BulkDocsFailedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_bulk_docs_failed_total",
			Help: "Documents rejected by the storage sink and dropped",
		}),
		ObserversConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_observers_connected",
			Help: "Dashboard observers currently connected",
		}),
		EventsPublishedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_events_published_total",
			Help: "Events published to the fan-out channel",
		}, []string{"type"}),
		ObserversDroppedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_observers_dropped_total",
			Help: "Observers removed after a failed or blocked send",
		}),
	}
}

// NewTestMetrics returns a metric set on a throwaway registry.
func NewTestMetrics() *RelayMetrics {
	return NewRelayMetrics(prometheus.NewRegistry())
}
