package metrics

// Label values pre-populated by InitializeMetrics.
var (
	Tiers          = []string{"SMALL", "MEDIUM", "BIG"}
	ResizeBackends = []string{"imaging", "vips", "nfnt"}
	JobStatuses    = []string{"success", "unsupported", "error", "rejected"}
	Stages         = []string{"ingested", "generating", "ordered", "notified", "failed", "removed"}
	DeliveryStatus = []string{"success", "exhausted", "closed"}
)

// InitializeMetrics pre-populates expected label combinations so that every
// series is exported from the first Prometheus scrape.
func InitializeMetrics(messageTypes []string) {
	for _, tier := range Tiers {
		GalleryThumbnailsTotal.WithLabelValues(tier)
		for _, backend := range ResizeBackends {
			ResizeDuration.WithLabelValues(tier, backend)
		}
	}

	for _, s := range JobStatuses {
		PipelineJobsTotal.WithLabelValues(s)
	}
	for _, s := range Stages {
		PipelineStageTotal.WithLabelValues(s)
	}
	for _, format := range []string{"jpeg", "png", "gif", "webp", "bmp", "unknown"} {
		ThumbnailDecodeByFormat.WithLabelValues(format)
	}

	OrderRecountsTotal.WithLabelValues("success")
	OrderRecountsTotal.WithLabelValues("error")

	UploadsTotal.WithLabelValues("batch")
	UploadsTotal.WithLabelValues("zip")

	for _, mt := range messageTypes {
		WSMessagesReceived.WithLabelValues(mt)
		WSMessageHandlingDuration.WithLabelValues(mt)
		DeliveryRetries.WithLabelValues(mt)
		DeliveryDuration.WithLabelValues(mt)
		for _, s := range DeliveryStatus {
			DeliveriesTotal.WithLabelValues(mt, s)
		}
	}
}
