package middleware

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"thumbnail-gallery/internal/logging"
)

// responseWriter records what the access log needs about a response.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
	upgraded     time.Time
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// Hijack hands the connection to a websocket upgrade and marks the start of
// the session.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return hijack(rw.ResponseWriter, func() {
		rw.statusCode = http.StatusSwitchingProtocols
		rw.wroteHeader = true
		rw.upgraded = time.Now()
	})
}

func hijack(w http.ResponseWriter, onSuccess func()) (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("%T does not support hijacking", w)
	}
	conn, buf, err := h.Hijack()
	if err == nil {
		onSuccess()
	}
	return conn, buf, err
}

// Access collects details a handler adds to its request's access log line.
type Access struct {
	mu       sync.Mutex
	connID   string
	messages int64
}

type accessKey struct{}

// AccessFrom returns the access record of the request ctx belongs to, or
// nil outside the Logger middleware. A nil *Access ignores all calls.
func AccessFrom(ctx context.Context) *Access {
	a, _ := ctx.Value(accessKey{}).(*Access)
	return a
}

// SetConnection names the websocket connection served by the request.
func (a *Access) SetConnection(id string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.connID = id
	a.mu.Unlock()
}

// CountMessage records one inbound websocket message.
func (a *Access) CountMessage() {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.messages++
	a.mu.Unlock()
}

func (a *Access) snapshot() (string, int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connID, a.messages
}

// LoggingConfig selects which requests reach the access log.
type LoggingConfig struct {
	SkipPaths       []string
	LogHealthChecks bool
}

// DefaultLoggingConfig logs every request.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{LogHealthChecks: true}
}

var probePaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/livez":   true,
	"/readyz":  true,
}

func (c LoggingConfig) skip(path string) bool {
	if !c.LogHealthChecks && probePaths[path] {
		return true
	}
	for _, p := range c.SkipPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Logger writes one W3C extended log line per request. A websocket request
// is logged when its session ends, with the connection id, the number of
// messages received and the session duration as time-taken.
//
// Fields: date time c-ip cs-method cs-uri-stem sc-status sc-bytes
// time-taken x-conn-id x-messages cs(User-Agent)
func Logger(config LoggingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config.skip(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			access := &Access{}
			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), accessKey{}, access)))

			logging.Printf("%s", accessLine(time.Now().UTC(), r, rw, access, start))
		})
	}
}

func accessLine(now time.Time, r *http.Request, rw *responseWriter, access *Access, start time.Time) string {
	connID, messages := access.snapshot()
	taken := now.Sub(start)
	if !rw.upgraded.IsZero() {
		taken = now.Sub(rw.upgraded)
	}

	conn, count := "-", "-"
	if connID != "" {
		conn = sanitizeLogField(connID)
		count = strconv.FormatInt(messages, 10)
	}

	return fmt.Sprintf("%s %s %s %s %s %d %d %d %s %s %s",
		now.Format("2006-01-02"),
		now.Format("15:04:05"),
		orDash(sanitizeLogField(clientIP(r))),
		orDash(sanitizeLogField(r.Method)),
		orDash(sanitizeLogField(r.URL.Path)),
		rw.statusCode,
		rw.bytesWritten,
		taken.Milliseconds(),
		conn,
		count,
		quoteW3C(orDash(sanitizeLogField(r.Header.Get("User-Agent")))),
	)
}

// sanitizeLogField turns line breaks into spaces and drops other control
// characters except tab.
func sanitizeLogField(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r':
			return ' '
		case r == '\t':
			return r
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, s)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func quoteW3C(s string) string {
	if !strings.ContainsAny(s, " \t\"") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// peer address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
