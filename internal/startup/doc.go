// Package startup handles configuration loading and startup/shutdown logging.
//
// # Configuration
//
// [LoadConfig] first loads a .env file from the working directory when one
// exists, then reads the environment:
//
//   - PORT: websocket and health server port (default: 8080)
//   - METRICS_PORT: Prometheus metrics server port (default: 9090)
//   - METRICS_ENABLED: enable or disable the metrics server (default: true)
//   - DATABASE_DRIVER: sqlite3 or postgres (default: sqlite3)
//   - DATABASE_DIR: directory holding gallery.db for sqlite3 (default: /database)
//   - DATABASE_URL: connection URL, required for postgres
//   - RESIZE_BACKEND: imaging, vips or nfnt (default: imaging)
//   - PIPELINE_WORKERS: thumbnail workers, 0 sizes from GOMAXPROCS (default: 0)
//   - QUEUE_CAPACITY: pending thumbnail jobs before uploads are rejected (default: 256)
//   - SEND_MAX_ATTEMPTS: delivery attempts per outbound message (default: 3)
//   - SEND_MIN_BACKOFF / SEND_MAX_BACKOFF: retry backoff bounds (default: 1s / 10s)
//   - PING_DELAY: delay between a PONG and the next PING (default: 30s)
//   - MAX_MESSAGE_BYTES: inbound websocket message limit (default: 64MiB)
//   - STATS_INTERVAL: gallery statistics refresh interval (default: 1m)
//   - LOG_LEVEL: debug, info, warn or error (default: info)
//   - LOG_HEALTH_CHECKS: log health probe requests (default: true)
package startup
