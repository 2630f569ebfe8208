package handlers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"thumbnail-gallery/internal/gallery"
	"thumbnail-gallery/internal/logging"
	"thumbnail-gallery/internal/metrics"
	"thumbnail-gallery/internal/middleware"
	"thumbnail-gallery/internal/protocol"
	"thumbnail-gallery/internal/session"
)

var wsLog = logging.Component("ws")

var upgrader = websocket.Upgrader{
	ReadBufferSize:    64 << 10,
	WriteBufferSize:   64 << 10,
	CheckOrigin:       func(*http.Request) bool { return true },
	EnableCompression: true,
}

// wsConn serializes writes to one websocket connection.
type wsConn struct {
	id           string
	ws           *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed atomic.Bool
}

func (c *wsConn) ID() string     { return c.id }
func (c *wsConn) IsClosed() bool { return c.closed.Load() }

func (c *wsConn) Send(ctx context.Context, payload []byte) error {
	if c.closed.Load() {
		return net.ErrClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.writeTimeout)
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *wsConn) close() {
	if c.closed.Swap(true) {
		return
	}
	c.mu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.mu.Unlock()
	_ = c.ws.Close()
}

// pinger sends a PING after a delay. Each PONG restarts the delay.
type pinger struct {
	mu    sync.Mutex
	timer *time.Timer
	delay time.Duration
	done  bool
}

func startPinger(delay time.Duration, ping func()) *pinger {
	p := &pinger{delay: delay}
	p.timer = time.AfterFunc(delay, ping)
	return p
}

func (p *pinger) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.done {
		p.timer.Reset(p.delay)
	}
}

func (p *pinger) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = true
	p.timer.Stop()
}

// WebSocket upgrades the request and serves the gallery protocol until the
// client disconnects. Every inbound message is handled on its own goroutine.
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		wsLog.Warnf("upgrade failed: %v", err)
		return
	}
	if h.opts.MaxMessageBytes > 0 {
		ws.SetReadLimit(h.opts.MaxMessageBytes)
	}

	conn := &wsConn{id: uuid.NewString(), ws: ws, writeTimeout: h.opts.WriteTimeout}
	access := middleware.AccessFrom(r.Context())
	access.SetConnection(conn.id)
	sess := h.sessions.Add(conn, session.DefaultView)
	metrics.WSConnectionsActive.Inc()
	wsLog.Infof("%s connected from %s", conn.id, r.RemoteAddr)

	ctx, cancel := context.WithCancel(context.Background())
	var inflight sync.WaitGroup
	defer func() {
		cancel()
		inflight.Wait()
		h.sessions.Remove(conn.id)
		conn.close()
		metrics.WSConnectionsActive.Dec()
		wsLog.Infof("%s disconnected", conn.id)
	}()

	h.send(ctx, sess, protocol.Info(protocol.StatusOK, "Connection established"))

	ping := startPinger(h.opts.PingDelay, func() {
		if current, ok := h.sessions.Get(conn.id); ok {
			h.send(ctx, current, protocol.Ping())
		}
	})
	defer ping.stop()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, net.ErrClosed) {
				wsLog.Debugf("%s read: %v", conn.id, err)
			}
			return
		}

		access.CountMessage()
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			h.dispatch(ctx, conn.id, raw, ping)
		}()
	}
}

func (h *Handlers) dispatch(ctx context.Context, connID string, raw []byte, ping *pinger) {
	sess, ok := h.sessions.Get(connID)
	if !ok {
		return
	}

	start := time.Now()
	req, err := protocol.Parse(raw)
	label := messageLabel(req, err)
	metrics.WSMessagesReceived.WithLabelValues(label).Inc()
	defer func() {
		metrics.WSMessageHandlingDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}()

	if err == nil {
		if _, isPong := req.(protocol.PongRequest); isPong {
			ping.reset()
		}
		err = h.gallery.Handle(ctx, sess, req)
	}
	if err == nil {
		return
	}

	status := gallery.StatusFor(err)
	metrics.WSMessageErrors.WithLabelValues(label, strconv.Itoa(status)).Inc()
	if status == protocol.StatusServiceUnavailable || ctx.Err() != nil {
		wsLog.Warnf("%s %s: %v", connID, label, err)
	} else {
		wsLog.Debugf("%s %s: %v", connID, label, err)
	}
	h.gallery.Respond(ctx, sess, err)
}

func (h *Handlers) send(ctx context.Context, sess session.Session, msg protocol.Message) {
	payload, err := protocol.Marshal(msg)
	if err != nil {
		wsLog.Errorf("marshal %s: %v", msg.MessageType(), err)
		return
	}
	if err := sess.Conn.Send(ctx, payload); err != nil {
		wsLog.Debugf("%s send %s: %v", sess.ID(), msg.MessageType(), err)
	}
}

// messageLabel bounds the metric label set to the known inbound types.
func messageLabel(req protocol.Request, err error) string {
	var t protocol.Type
	switch {
	case req != nil:
		t = req.MessageType()
	case err != nil:
		var verr *protocol.ValidationError
		if errors.As(err, &verr) {
			t = verr.Type
		}
	}
	for _, known := range protocol.InboundTypes {
		if t == known {
			return string(t)
		}
	}
	return "unknown"
}

// CloseConnections closes every open websocket. http.Server.Shutdown does
// not track hijacked connections.
func (h *Handlers) CloseConnections() int {
	closed := 0
	for _, sess := range h.sessions.Snapshot() {
		if c, ok := sess.Conn.(*wsConn); ok {
			c.close()
			closed++
		}
	}
	return closed
}
