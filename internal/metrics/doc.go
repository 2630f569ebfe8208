// Package metrics provides Prometheus instrumentation for the gallery server.
//
// All metrics are registered with promauto at package init and prefixed with
// "gallery_". Call [InitializeMetrics] once at startup so labelled series are
// exported from the first scrape.
//
// # Metric Categories
//
//   - HTTP: request totals, durations and in-flight requests for the health
//     and websocket upgrade endpoints.
//   - Websocket: open connections, inbound messages and handling time by type.
//   - Database: query totals and durations by operation, open connections.
//   - Pipeline: queue depth and capacity, busy workers, job outcomes, stage
//     transitions and per-tier resize time.
//   - Ordering: order assignments, folder recounts and tracked counters.
//   - Delivery: active sessions, outbound message outcomes, retries and
//     fan-out width.
//   - Memory: heap usage ratio and resize throttling.
//   - Content: images, pending images, folders and thumbnails per tier,
//     refreshed periodically by [Collector].
//
// The metrics server is started from main on METRICS_PORT and serves
// promhttp.Handler at /metrics.
package metrics
