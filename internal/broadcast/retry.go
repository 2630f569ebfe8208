package broadcast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"thumbnail-gallery/internal/metrics"
	"thumbnail-gallery/internal/protocol"
	"thumbnail-gallery/internal/session"
)

// ErrRetriesExhausted matches every *RetriesExhaustedError.
var ErrRetriesExhausted = errors.New("delivery retries exhausted")

// RetriesExhaustedError reports a message that could not be written to a
// connection within the configured attempts.
type RetriesExhaustedError struct {
	ConnID   string
	Type     protocol.Type
	Attempts int
	Err      error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("send %s to %s: gave up after %d attempts: %v", e.Type, e.ConnID, e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Err }

func (e *RetriesExhaustedError) Is(target error) bool { return target == ErrRetriesExhausted }

// RetryConfig configures delivery retries.
type RetryConfig struct {
	// MaxAttempts is the total number of writes tried, including the first.
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryConfig returns the production delivery policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		MinBackoff:  time.Second,
		MaxBackoff:  10 * time.Second,
	}
}

// Send writes msg to one session. A closed connection is skipped without
// error. Failed writes are retried with exponential backoff until the
// attempts run out, the connection closes or ctx ends.
func (b *Broadcaster) Send(ctx context.Context, sess session.Session, msg protocol.Message) error {
	msgType := string(msg.MessageType())
	start := time.Now()
	defer func() {
		metrics.DeliveryDuration.WithLabelValues(msgType).Observe(time.Since(start).Seconds())
	}()

	if sess.Conn.IsClosed() {
		metrics.DeliveriesTotal.WithLabelValues(msgType, "closed").Inc()
		log.Debugf("skipping %s to closed connection %s", msgType, sess.ID())
		return nil
	}

	payload, err := protocol.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msgType, err)
	}

	cfg := b.retry
	backoff := cfg.MinBackoff
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = sess.Conn.Send(ctx, payload)
		if lastErr == nil {
			if attempt > 1 {
				log.Infof("%s to %s succeeded on attempt %d", msgType, sess.ID(), attempt)
			}
			metrics.DeliveriesTotal.WithLabelValues(msgType, "success").Inc()
			return nil
		}

		if sess.Conn.IsClosed() {
			metrics.DeliveriesTotal.WithLabelValues(msgType, "closed").Inc()
			log.Debugf("connection %s closed during %s delivery", sess.ID(), msgType)
			return nil
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		metrics.DeliveryRetries.WithLabelValues(msgType).Inc()
		log.Debugf("%s to %s failed (attempt %d/%d), retrying in %v: %v",
			msgType, sess.ID(), attempt, cfg.MaxAttempts, backoff, lastErr)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("send %s to %s: %w", msgType, sess.ID(), ctx.Err())
		case <-timer.C:
		}

		backoff *= 2
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	metrics.DeliveriesTotal.WithLabelValues(msgType, "exhausted").Inc()
	return &RetriesExhaustedError{
		ConnID:   sess.ID(),
		Type:     msg.MessageType(),
		Attempts: cfg.MaxAttempts,
		Err:      lastErr,
	}
}
