package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitializeMetricsPopulatesLabels(t *testing.T) {
	InitializeMetrics([]string{"GET_THUMBNAILS", "PING"})

	tests := []struct {
		name  string
		count int
		min   int
	}{
		{"gallery_pipeline_jobs_total", testutil.CollectAndCount(PipelineJobsTotal), len(JobStatuses)},
		{"gallery_pipeline_stage_total", testutil.CollectAndCount(PipelineStageTotal), len(Stages)},
		{"gallery_resize_duration_seconds", testutil.CollectAndCount(ResizeDuration), len(Tiers) * len(ResizeBackends)},
		{"gallery_deliveries_total", testutil.CollectAndCount(DeliveriesTotal), 2 * len(DeliveryStatus)},
		{"gallery_uploaded_images_total", testutil.CollectAndCount(UploadsTotal), 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.count < tt.min {
				t.Errorf("%s has %d series, want at least %d", tt.name, tt.count, tt.min)
			}
		})
	}
}
