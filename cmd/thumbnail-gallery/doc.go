// Package main provides the entry point for the thumbnail gallery server.
//
// The server stores uploaded images in SQL, generates three thumbnail tiers
// per image in a bounded worker pool and streams results to browsers over a
// websocket.
//
// # Application Lifecycle
//
//  1. Memory Configuration: sets GOMEMLIMIT from MEMORY_LIMIT and MEMORY_RATIO
//  2. Configuration Loading: reads .env and environment variables
//  3. Database Initialization: sqlite3 (default) or postgres
//  4. Component Initialization:
//     - Resizer: imaging, nfnt or libvips, chosen by RESIZE_BACKEND
//     - Memory Monitor: pauses resizing while heap usage is high
//     - Order Service: seeds per-folder display order counters
//     - Thumbnail Pipeline: fixed workers over a fail-fast queue
//     - Metrics Collector: refreshes gallery gauges every STATS_INTERVAL
//  5. HTTP Server Setup: routes, access log and metrics middleware
//  6. Graceful Shutdown: SIGINT/SIGTERM
//
// # Background Services
//
//   - Missing thumbnail scan: regenerates absent tiers once at startup
//   - Pipeline workers: resize, order, persist and announce thumbnails
//   - Metrics Collector
//   - Memory Monitor
//
// # HTTP Server
//
//  1. Main Server (default port 8080):
//     - /ws: gallery protocol
//     - /health, /healthz, /livez, /readyz
//     - /version
//
//  2. Metrics Server (default port 9090, optional):
//     - /metrics
//     - /health
//
// # Graceful Shutdown
//
//  1. Stop accepting HTTP requests
//  2. Close websocket connections
//  3. Drain the thumbnail queue
//  4. Stop the metrics collector and memory monitor
//  5. Shut down the metrics server
//  6. Close the database
package main
