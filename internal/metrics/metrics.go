package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Websocket metrics
var (
	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_ws_connections_active",
			Help: "Number of open websocket connections",
		},
	)

	WSMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_ws_messages_received_total",
			Help: "Inbound websocket messages by type",
		},
		[]string{"type"},
	)

	WSMessageHandlingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_ws_message_handling_seconds",
			Help:    "Time spent handling an inbound message",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"type"},
	)

	WSMessageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_ws_message_errors_total",
			Help: "Inbound messages that ended in an error response, by status",
		},
		[]string{"type", "status"},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Thumbnail pipeline metrics
var (
	PipelineQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_pipeline_queue_depth",
			Help: "Thumbnail jobs waiting for a worker",
		},
	)

	PipelineQueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_pipeline_queue_capacity",
			Help: "Configured thumbnail queue capacity",
		},
	)

	PipelineWorkersBusy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_pipeline_workers_busy",
			Help: "Workers currently processing a job",
		},
	)

	PipelineJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_pipeline_jobs_total",
			Help: "Thumbnail jobs by outcome",
		},
		[]string{"status"}, // success, unsupported, error, rejected
	)

	PipelineStageTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_pipeline_stage_total",
			Help: "Images that reached each pipeline stage",
		},
		[]string{"stage"},
	)

	ResizeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_resize_duration_seconds",
			Help:    "Time to produce one thumbnail tier",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"tier", "backend"},
	)

	ThumbnailDecodeByFormat = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_thumbnail_decode_by_format_total",
			Help: "Decoded source images by detected format",
		},
		[]string{"format"},
	)
)

// Ordering metrics
var (
	OrderAssignmentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_order_assignments_total",
			Help: "Order values handed out",
		},
	)

	OrderRecountsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_order_recounts_total",
			Help: "Folder recounts by outcome",
		},
		[]string{"status"},
	)

	OrderRecountDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gallery_order_recount_duration_seconds",
			Help:    "Time to renumber one folder",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	OrderCountersTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_order_counters",
			Help: "Folders with an in-memory order counter",
		},
	)
)

// Delivery metrics
var (
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_sessions_active",
			Help: "Registered client sessions",
		},
	)

	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_deliveries_total",
			Help: "Outbound messages by type and outcome",
		},
		[]string{"type", "status"}, // success, exhausted, closed
	)

	DeliveryRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_delivery_retries_total",
			Help: "Send attempts after the first, by message type",
		},
		[]string{"type"},
	)

	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_delivery_duration_seconds",
			Help:    "Time from first attempt to final outcome",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 1, 5, 30},
		},
		[]string{"type"},
	)

	FanoutRecipients = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gallery_fanout_recipients",
			Help:    "Sessions matched by one thumbnail notification",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
	)
)

// Upload metrics
var (
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_uploaded_images_total",
			Help: "Images accepted for processing by source",
		},
		[]string{"source"}, // batch, zip
	)

	UploadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gallery_upload_image_bytes",
			Help:    "Size of uploaded images",
			Buckets: prometheus.ExponentialBuckets(16*1024, 4, 8),
		},
	)
)

// Gallery content metrics, refreshed by Collector
var (
	GalleryImagesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_images",
			Help: "Stored images",
		},
	)

	GalleryPendingImages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_images_pending",
			Help: "Stored images without an assigned order",
		},
	)

	GalleryThumbnailsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gallery_thumbnails",
			Help: "Stored thumbnails by tier",
		},
		[]string{"tier"},
	)

	GalleryFoldersTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_folders",
			Help: "Stored folders, excluding the root",
		},
	)

	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gallery_app_info",
			Help: "Build information; value is always 1",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the configured memory limit",
		},
	)

	MemoryThrottled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_memory_throttled",
			Help: "1 while thumbnail generation waits for memory to recover",
		},
	)

	MemoryThrottleEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_memory_throttle_events_total",
			Help: "Times generation was paused for memory pressure",
		},
	)
)
