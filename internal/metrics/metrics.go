// Package metrics holds the process-wide prometheus collectors. They are
// registered on the default registry and served by the broadcast server on
// /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "iqscope"

var (
	// FeedBatches counts feed calls by result (accepted, dropped, ignored).
	FeedBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_batches_total",
		Help:      "Sample batches handed to the engine, by result.",
	}, []string{"result"})

	// Samples counts samples accepted into source histories.
	Samples = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "samples_total",
		Help:      "Samples accepted into source histories.",
	})

	// Captures counts published buffers by origin: live or replay.
	Captures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "captures_total",
		Help:      "Published trace buffers, by origin.",
	}, []string{"origin"})

	// CaptureOutcomes counts captures that were deferred or abandoned.
	CaptureOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "capture_outcomes_total",
		Help:      "Captures that could not be published immediately.",
	}, []string{"outcome"})

	// ExtractSeconds observes the time spent extracting one capture.
	ExtractSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "extract_seconds",
		Help:      "Time spent extracting and publishing one capture.",
		Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
	})

	// QueueDrops counts items dropped by non-blocking queues, by queue name.
	QueueDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queue_drops_total",
		Help:      "Items dropped because a consumer queue was full.",
	}, []string{"queue"})

	// Clients is the number of connected renderer clients.
	Clients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_clients",
		Help:      "Connected websocket renderer clients.",
	})
)
