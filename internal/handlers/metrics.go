package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricsScrapeLimit bounds concurrent scrapes; a scrape walks every
// gallery_* collector.
const metricsScrapeLimit = 4

// MetricsHandler serves the default registry, in OpenMetrics format when
// the scraper asks for it.
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.InstrumentMetricHandler(prometheus.DefaultRegisterer,
		promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			EnableOpenMetrics:   true,
			MaxRequestsInFlight: metricsScrapeLimit,
		}))
}
