package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"thumbnail-gallery/internal/broadcast"
	"thumbnail-gallery/internal/database"
	"thumbnail-gallery/internal/gallery"
	"thumbnail-gallery/internal/handlers"
	"thumbnail-gallery/internal/logging"
	"thumbnail-gallery/internal/media"
	"thumbnail-gallery/internal/memory"
	"thumbnail-gallery/internal/metrics"
	"thumbnail-gallery/internal/middleware"
	"thumbnail-gallery/internal/ordering"
	"thumbnail-gallery/internal/pipeline"
	"thumbnail-gallery/internal/protocol"
	"thumbnail-gallery/internal/session"
	"thumbnail-gallery/internal/startup"
	"thumbnail-gallery/internal/workers"
)

const (
	shutdownTimeout   = 30 * time.Second
	readHeaderTimeout = 15 * time.Second
	idleTimeout       = 60 * time.Second
)

// dbStatsAdapter refreshes connection pool gauges alongside gallery counts.
type dbStatsAdapter struct {
	db *database.Database
}

func (a dbStatsAdapter) Stats(ctx context.Context) (metrics.Stats, error) {
	a.db.UpdateDBMetrics()
	return a.db.Stats(ctx)
}

type components struct {
	handlers  *handlers.Handlers
	pipeline  *pipeline.Pipeline
	monitor   *memory.Monitor
	collector *metrics.Collector
}

func main() {
	startTime := time.Now()
	memLimit := memory.ConfigureFromEnv()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	metrics.InitializeMetrics(protocol.MetricLabels())
	build := startup.GetBuildInfo()
	metrics.AppInfo.WithLabelValues(build.Version, build.Commit, build.GoVersion).Set(1)

	ctx := context.Background()

	dbStart := time.Now()
	db, err := database.Open(ctx, database.Options{
		Driver: config.DatabaseDriver,
		Path:   config.DatabasePath,
		URL:    config.DatabaseURL,
	})
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	defer db.Close()
	startup.LogDatabaseInit(db.Driver(), time.Since(dbStart))

	if config.ResizeBackend == "vips" {
		media.InitVips(workers.ForCPU(0))
		defer media.ShutdownVips()
	}
	resizer, err := media.NewResizer(config.ResizeBackend)
	if err != nil {
		startup.LogFatal("Failed to initialize resizer: %v", err)
	}

	monitorConfig := memory.DefaultMonitorConfig()
	if memLimit.Configured {
		monitorConfig.LimitBytes = memLimit.GoMemLimit
	}
	monitor := memory.NewMonitor(monitorConfig)
	monitor.Start()

	sessions := session.NewRegistry()
	bcast := broadcast.New(sessions, db, broadcast.RetryConfig{
		MaxAttempts: config.SendMaxAttempts,
		MinBackoff:  config.SendMinBackoff,
		MaxBackoff:  config.SendMaxBackoff,
	})

	orders := ordering.New(db)
	if err := orders.Initialize(ctx); err != nil {
		startup.LogFatal("Failed to initialize image orders: %v", err)
	}

	workerCount := workers.Resolve(config.PipelineWorkers, 0)
	pipe := pipeline.New(pipeline.Config{
		Workers:       workerCount,
		QueueCapacity: config.QueueCapacity,
		Throttle:      monitor,
	}, db, orders, bcast, media.Timed(resizer))
	pipe.OnFailure = func(imageID int64, err error) {
		logging.Warn("Thumbnail generation failed for image %d: %v", imageID, err)
	}
	startup.LogPipelineInit(workerCount, config.QueueCapacity, resizer.Name())
	pipe.Start()

	g := gallery.New(gallery.Config{
		UploadConcurrency:    workers.ForIO(16),
		MaxArchiveEntryBytes: config.MaxArchiveEntryBytes,
	}, db, orders, pipe, bcast, sessions)
	h := handlers.New(db, g, sessions, pipe, handlers.OptionsFromConfig(config))

	go func() {
		n, err := pipe.GenerateMissingThumbnails(ctx)
		if err != nil {
			logging.Error("Missing thumbnail scan failed: %v", err)
		} else if n > 0 {
			logging.Info("Generated thumbnails for %d images missing tiers", n)
		}
		h.SetReady(true)
	}()

	collector := metrics.NewCollector(dbStatsAdapter{db}, config.StatsInterval)
	collector.Start()

	router := setupRouter(h)
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.Logger(loggingConfig)(middleware.Metrics(middleware.DefaultMetricsConfig())(router))

	srv := newServer(":"+config.Port, handler)

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsSrv = newMetricsServer(":"+config.MetricsPort, h)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	done := make(chan struct{})
	go handleShutdown(srv, metricsSrv, components{
		handlers:  h,
		pipeline:  pipe,
		monitor:   monitor,
		collector: collector,
	}, done)

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}
	<-done
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/ws", h.WebSocket).Methods("GET")

	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	return r
}

func newServer(addr string, handler http.Handler) *http.Server {
	// No read or write timeout: websocket connections are long-lived.
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
}

func newMetricsServer(addr string, h *handlers.Handlers) *http.Server {
	m := http.NewServeMux()
	m.Handle("/metrics", h.MetricsHandler())
	m.HandleFunc("/health", h.LivenessCheck)

	return &http.Server{
		Addr:              addr,
		Handler:           m,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       idleTimeout,
	}
}

func handleShutdown(srv, metricsSrv *http.Server, c components, done chan<- struct{}) {
	defer close(done)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownStep("Closing websocket connections")
	n := c.handlers.CloseConnections()
	startup.LogShutdownStepComplete(fmt.Sprintf("Closed %d websocket connections", n))

	startup.LogShutdownStep("Draining thumbnail pipeline")
	c.pipeline.Stop()
	startup.LogShutdownStepComplete("Thumbnail pipeline stopped")

	c.collector.Stop()
	c.monitor.Stop()

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownComplete()
}
