package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crosspost",
			Subsystem: "dispatch",
			Name:      "requests_total",
			Help:      "Post intents handled, by mode and outcome",
		},
		[]string{"mode", "status"},
	)

	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crosspost",
			Subsystem: "worker",
			Name:      "deliveries_total",
			Help:      "Queue deliveries handled by the worker, by outcome",
		},
		[]string{"outcome"},
	)

	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "crosspost",
			Subsystem: "worker",
			Name:      "delivery_duration_seconds",
			Help:      "Time spent delivering a due job",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 180, 600},
		},
	)

	PublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crosspost",
			Subsystem: "platform",
			Name:      "publish_total",
			Help:      "Platform publish attempts",
		},
		[]string{"platform", "status"},
	)

	MediaUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crosspost",
			Subsystem: "platform",
			Name:      "media_uploads_total",
			Help:      "Platform media uploads",
		},
		[]string{"platform", "kind", "status"},
	)

	ChunkRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "crosspost",
			Subsystem: "platform",
			Name:      "chunk_retries_total",
			Help:      "Chunk APPEND attempts beyond the first",
		},
	)

	ArchivePrunedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "crosspost",
			Subsystem: "storage",
			Name:      "archive_pruned_total",
			Help:      "Dead-letter archive entries removed by retention",
		},
	)
)

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func RecordDispatch(mode string, err error) {
	DispatchTotal.WithLabelValues(mode, status(err)).Inc()
}

func RecordJob(outcome string, elapsed time.Duration) {
	JobsTotal.WithLabelValues(outcome).Inc()
	if elapsed > 0 {
		JobDuration.Observe(elapsed.Seconds())
	}
}

func RecordPublish(platform string, err error) {
	PublishTotal.WithLabelValues(platform, status(err)).Inc()
}

func RecordMediaUpload(platform, kind string, err error) {
	MediaUploadsTotal.WithLabelValues(platform, kind, status(err)).Inc()
}

func RecordChunkRetry() {
	ChunkRetriesTotal.Inc()
}

func RecordArchivePruned(n int) {
	ArchivePrunedTotal.Add(float64(n))
}
