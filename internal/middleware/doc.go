// Package middleware provides HTTP middleware for the gallery server.
//
// Logger writes a W3C extended access log. Websocket requests are logged
// when the session closes, carrying the connection id and message count
// that the websocket handler records through [AccessFrom].
//
// Metrics records Prometheus request counters and latencies with a bounded
// set of path labels. Both wrappers pass http.Hijacker through so the
// websocket endpoint can upgrade behind them.
package middleware
