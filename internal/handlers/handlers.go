package handlers

import (
	"sync/atomic"
	"time"

	"thumbnail-gallery/internal/database"
	"thumbnail-gallery/internal/gallery"
	"thumbnail-gallery/internal/pipeline"
	"thumbnail-gallery/internal/session"
	"thumbnail-gallery/internal/startup"
)

// Options tunes the websocket endpoint.
type Options struct {
	// PingDelay is the wait before each PING.
	PingDelay time.Duration
	// MaxMessageBytes limits inbound frames; 0 means no limit.
	MaxMessageBytes int64
	// WriteTimeout bounds one frame write when the caller has no deadline.
	WriteTimeout time.Duration
}

// OptionsFromConfig maps server configuration to handler options.
func OptionsFromConfig(cfg *startup.Config) Options {
	return Options{
		PingDelay:       cfg.PingDelay,
		MaxMessageBytes: cfg.MaxMessageBytes,
		WriteTimeout:    10 * time.Second,
	}
}

type Handlers struct {
	db       *database.Database
	gallery  *gallery.Gallery
	sessions *session.Registry
	pipe     *pipeline.Pipeline
	opts     Options

	started time.Time
	ready   atomic.Bool
}

func New(db *database.Database, g *gallery.Gallery, sessions *session.Registry, pipe *pipeline.Pipeline, opts Options) *Handlers {
	if opts.PingDelay <= 0 {
		opts.PingDelay = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	return &Handlers{
		db:       db,
		gallery:  g,
		sessions: sessions,
		pipe:     pipe,
		opts:     opts,
		started:  time.Now(),
	}
}

// SetReady marks startup work (order seeding, missing thumbnail scan) done.
func (h *Handlers) SetReady(ready bool) {
	h.ready.Store(ready)
}
