package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"thumbnail-gallery/internal/logging"
	"thumbnail-gallery/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// txTimeout bounds multi-statement transactions such as folder renumbering.
const txTimeout = 30 * time.Second

// Options selects and locates the backing database.
type Options struct {
	// Driver is "sqlite3" or "postgres".
	Driver string
	// Path is the sqlite database file. Its directory must exist.
	Path string
	// URL is the postgres connection string.
	URL string
}

// Database stores images, thumbnails and folders.
type Database struct {
	db      *sql.DB
	dialect dialect
	// mu serializes writers; sqlite allows one writer at a time and a
	// deferred transaction that upgrades to a write lock can fail with
	// SQLITE_BUSY instead of waiting.
	mu sync.RWMutex
}

// Open connects to the database described by opts and ensures the schema.
func Open(ctx context.Context, opts Options) (*Database, error) {
	var (
		d       dialect
		connStr string
	)

	switch opts.Driver {
	case "", "sqlite3":
		d = sqliteDialect
		logging.Info("Database path: %s", opts.Path)
		connStr = fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on", opts.Path)
	case "postgres":
		d = postgresDialect
		connStr = opts.URL
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	db, err := sql.Open(d.name, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	database := &Database{db: db, dialect: d}

	if err := database.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully (%s)", d.name)
	return database, nil
}

func (d *Database) initialize(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("initialize_schema", start, err) }()

	for _, stmt := range d.dialect.schema {
		if _, err = d.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Driver returns the SQL driver name in use.
func (d *Database) Driver() string {
	return d.dialect.name
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Ping checks that the database is reachable.
func (d *Database) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return d.db.PingContext(ctx)
}

// UpdateDBMetrics updates database connection metrics
func (d *Database) UpdateDBMetrics() {
	metrics.DBConnectionsOpen.Set(float64(d.db.Stats().OpenConnections))
}

// withTx runs fn in a transaction under the writer lock. fn's error rolls
// the transaction back.
func (d *Database) withTx(ctx context.Context, operation string, fn func(tx *sql.Tx) error) (err error) {
	start := time.Now()
	defer func() { recordQuery(operation, start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", operation, err)
	}

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			err = errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}
	return tx.Commit()
}

func (d *Database) exec(ctx context.Context, operation, query string, args ...any) (res sql.Result, err error) {
	start := time.Now()
	defer func() { recordQuery(operation, start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	return d.db.ExecContext(ctx, d.dialect.rebind(query), args...)
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	status := "success"
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrConflict) {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func nullableOrder(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
