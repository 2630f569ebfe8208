package startup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"thumbnail-gallery/internal/logging"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Supported DATABASE_DRIVER values.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	LogHealthChecks bool

	DatabaseDriver string
	DatabaseDir    string
	DatabaseURL    string
	// DatabasePath is the sqlite file; empty for postgres.
	DatabasePath string

	ResizeBackend   string
	PipelineWorkers int
	QueueCapacity   int

	SendMaxAttempts int
	SendMinBackoff  time.Duration
	SendMaxBackoff  time.Duration

	PingDelay       time.Duration
	MaxMessageBytes int64
	// MaxArchiveEntryBytes bounds one decompressed zip entry.
	MaxArchiveEntryBytes int64
	StatsInterval        time.Duration
}

// LoadConfig loads an optional .env file, then reads and validates
// configuration from environment variables.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.Warn("Failed to load .env file: %v", err)
	}

	printBanner()
	logSystemInfo()

	logSection("CONFIGURATION")

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		MetricsPort:     getEnv("METRICS_PORT", "9090"),
		MetricsEnabled:  getEnvBool("METRICS_ENABLED", true),
		LogHealthChecks: getEnvBool("LOG_HEALTH_CHECKS", true),
		DatabaseDriver:  strings.ToLower(getEnv("DATABASE_DRIVER", DriverSQLite)),
		DatabaseDir:     getEnv("DATABASE_DIR", "/database"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		ResizeBackend:   strings.ToLower(getEnv("RESIZE_BACKEND", "imaging")),
		PipelineWorkers: getEnvInt("PIPELINE_WORKERS", 0),
		QueueCapacity:   getEnvInt("QUEUE_CAPACITY", 256),
		SendMaxAttempts: getEnvInt("SEND_MAX_ATTEMPTS", 3),
		SendMinBackoff:  getEnvDuration("SEND_MIN_BACKOFF", time.Second),
		SendMaxBackoff:  getEnvDuration("SEND_MAX_BACKOFF", 10*time.Second),
		PingDelay:       getEnvDuration("PING_DELAY", 30*time.Second),
		MaxMessageBytes: int64(getEnvInt("MAX_MESSAGE_BYTES", 64<<20)),
		StatsInterval:   getEnvDuration("STATS_INTERVAL", time.Minute),
	}
	cfg.MaxArchiveEntryBytes = int64(getEnvInt("MAX_ARCHIVE_ENTRY_BYTES", int(cfg.MaxMessageBytes)))

	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		logging.SetLevel(logging.ParseLevel(lvl))
	}

	logging.Info("  PORT:                %s", cfg.Port)
	logging.Info("  METRICS_PORT:        %s", cfg.MetricsPort)
	logging.Info("  METRICS_ENABLED:     %v", cfg.MetricsEnabled)
	logging.Info("  DATABASE_DRIVER:     %s", cfg.DatabaseDriver)
	logging.Info("  DATABASE_DIR:        %s", cfg.DatabaseDir)
	logging.Info("  DATABASE_URL:        %s", redactURL(cfg.DatabaseURL))
	logging.Info("  RESIZE_BACKEND:      %s", cfg.ResizeBackend)
	logging.Info("  PIPELINE_WORKERS:    %d", cfg.PipelineWorkers)
	logging.Info("  QUEUE_CAPACITY:      %d", cfg.QueueCapacity)
	logging.Info("  SEND_MAX_ATTEMPTS:   %d", cfg.SendMaxAttempts)
	logging.Info("  SEND_MIN_BACKOFF:    %v", cfg.SendMinBackoff)
	logging.Info("  SEND_MAX_BACKOFF:    %v", cfg.SendMaxBackoff)
	logging.Info("  PING_DELAY:          %v", cfg.PingDelay)
	logging.Info("  MAX_MESSAGE_BYTES:   %d", cfg.MaxMessageBytes)
	logging.Info("  MAX_ARCHIVE_ENTRY:   %d", cfg.MaxArchiveEntryBytes)
	logging.Info("  LOG_HEALTH_CHECKS:   %v", cfg.LogHealthChecks)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.DatabaseDriver == DriverSQLite {
		logSection("DIRECTORY SETUP")
		dir, err := filepath.Abs(cfg.DatabaseDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
		}
		cfg.DatabaseDir = dir
		logging.Info("  Database directory (absolute): %s", dir)

		if err := ensureDirectory(dir); err != nil {
			return nil, fmt.Errorf("database directory error: %w", err)
		}
		if err := testWriteAccess(dir); err != nil {
			return nil, fmt.Errorf("database directory is not writable: %w", err)
		}
		logging.Info("  [OK] Database directory is writable")
		cfg.DatabasePath = filepath.Join(dir, "gallery.db")
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DatabaseDriver {
	case DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DATABASE_DRIVER=%s", DriverPostgres)
		}
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}

	switch c.ResizeBackend {
	case "imaging", "vips", "nfnt":
	default:
		return fmt.Errorf("unsupported RESIZE_BACKEND %q", c.ResizeBackend)
	}

	if c.QueueCapacity < 1 {
		return fmt.Errorf("QUEUE_CAPACITY must be positive, got %d", c.QueueCapacity)
	}
	if c.MaxArchiveEntryBytes < 1 {
		return fmt.Errorf("MAX_ARCHIVE_ENTRY_BYTES must be positive, got %d", c.MaxArchiveEntryBytes)
	}
	if c.SendMaxAttempts < 1 {
		return fmt.Errorf("SEND_MAX_ATTEMPTS must be positive, got %d", c.SendMaxAttempts)
	}
	if c.SendMaxBackoff < c.SendMinBackoff {
		logging.Warn("  SEND_MAX_BACKOFF below SEND_MIN_BACKOFF, clamping to %v", c.SendMinBackoff)
		c.SendMaxBackoff = c.SendMinBackoff
	}
	return nil
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(driver string, duration time.Duration) {
	logSection("DATABASE INITIALIZATION")
	logging.Info("  [OK] %s database initialized in %v", driver, duration)
}

// LogPipelineInit logs thumbnail pipeline sizing.
func LogPipelineInit(workers, capacity int, backend string) {
	logSection("THUMBNAIL PIPELINE")
	logging.Info("  Workers:        %d", workers)
	logging.Info("  Queue capacity: %d", capacity)
	logging.Info("  Resize backend: %s", backend)
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs registered routes at debug level.
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	logSection("HTTP SERVER SETUP")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}
		sort.Slice(routes, func(i, j int) bool { return routes[i].Path < routes[j].Path })

		logging.Debug("  Registered routes (%d total):", len(routes))
		for _, route := range routes {
			logging.Debug("    %-6s %s", route.Method, route.Path)
		}
	}

	if logHealthChecks {
		logging.Info("  Health check logging: ON")
	} else {
		logging.Info("  Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logSection("SERVER STARTED")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("  Websocket:       ws://0.0.0.0:%s/ws", config.Port)
	logging.Info("  Health:          http://0.0.0.0:%s/healthz", config.Port)
	if config.MetricsEnabled {
		logging.Info("  Metrics:         http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("  Metrics:         DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logSection(fmt.Sprintf("SHUTDOWN INITIATED (received %s)", signal))
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...any) {
	logging.Fatal(format, args...)
}

func logSection(title string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("%s", title)
	logging.Info("------------------------------------------------------------")
}

func printBanner() {
	fmt.Println(`
------------------------------------------------------------
  thumbnail-gallery
------------------------------------------------------------`)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
}

func logSystemInfo() {
	logSection("SYSTEM INFORMATION")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))
	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}
}

func ensureDirectory(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

// redactURL hides the password portion of a connection URL.
func redactURL(raw string) string {
	if raw == "" {
		return "(unset)"
	}
	at := strings.LastIndex(raw, "@")
	scheme := strings.Index(raw, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return raw
	}
	creds := raw[scheme+3 : at]
	if colon := strings.Index(creds, ":"); colon >= 0 {
		creds = creds[:colon] + ":****"
	}
	return raw[:scheme+3] + creds + raw[at:]
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed < 0 {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
