// Package handlers provides the HTTP surface of the gallery server.
//
// It includes:
//   - The websocket endpoint carrying the gallery protocol
//   - Health, liveness and readiness probes
//   - Version and build information
//   - The Prometheus metrics handler
package handlers
