package metrics

import (
	"context"
	"time"

	"thumbnail-gallery/internal/logging"
)

// StatsProvider reports gallery content counts.
type StatsProvider interface {
	Stats(ctx context.Context) (Stats, error)
}

// Stats holds the current gallery statistics
type Stats struct {
	Images        int
	PendingImages int
	Folders       int
	// Thumbnails is keyed by tier name.
	Thumbnails map[string]int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
	done          chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the collection loop and waits for it to exit.
func (c *Collector) Stop() {
	close(c.stopChan)
	<-c.done
}

func (c *Collector) collectLoop() {
	defer close(c.done)
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := c.statsProvider.Stats(ctx)
	if err != nil {
		logging.Warn("Metrics collection failed: %v", err)
		return
	}

	GalleryImagesTotal.Set(float64(stats.Images))
	GalleryPendingImages.Set(float64(stats.PendingImages))
	GalleryFoldersTotal.Set(float64(stats.Folders))
	for _, tier := range Tiers {
		GalleryThumbnailsTotal.WithLabelValues(tier).Set(float64(stats.Thumbnails[tier]))
	}

	logging.Debug("Metrics collected: images=%d, pending=%d, folders=%d",
		stats.Images, stats.PendingImages, stats.Folders)
}
