package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "streamswarm"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, route and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "path"})

	UploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uploads_total",
		Help:      "Upload attempts by result.",
	}, []string{"result"})

	UploadBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upload_bytes_total",
		Help:      "Total bytes of accepted uploads.",
	})

	VideosProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "videos_processed_total",
		Help:      "Processing runs by terminal status.",
	}, []string{"status"})

	ProcessingStageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "processing_stage_duration_seconds",
		Help:      "Duration of processing stages (segment, manifest, total) in seconds.",
		Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 900, 1800},
	}, []string{"stage"})

	ChunksProducedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chunks_produced_total",
		Help:      "Total number of chunk files catalogued.",
	})

	ChunkBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chunk_bytes_total",
		Help:      "Total bytes of chunk files catalogued.",
	})

	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "processing_queue_depth",
		Help:      "Number of videos waiting for a processing worker.",
	})

	InFlightVideos = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "processing_in_flight",
		Help:      "Number of videos currently queued or being processed.",
	})

	WatcherTrackedFiles = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "watcher_tracked_files",
		Help:      "Number of files awaiting the size stability check.",
	})

	WatcherHandoffsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "watcher_handoffs_total",
		Help:      "Stable files handed to processing by result.",
	}, []string{"result"})

	WSClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_clients",
		Help:      "Connected status WebSocket clients.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		UploadsTotal,
		UploadBytesTotal,
		VideosProcessedTotal,
		ProcessingStageDuration,
		ChunksProducedTotal,
		ChunkBytesTotal,
		QueueDepth,
		InFlightVideos,
		WatcherTrackedFiles,
		WatcherHandoffsTotal,
		WSClients,
	)
}
