package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Registers the sqlite driver

	"github.com/conorfennell/phrasebook/internal/config"
)

const driverName = "sqlite"

func init() {
	sqlx.BindDriver(driverName, sqlx.QUESTION)
}

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn   *sqlx.DB
	logger *zap.Logger
}

// Open creates a new database connection and ensures the schema exists.
// Every failure is reported as ErrStoreUnavailable.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (*DB, error) {
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)", cfg.Path, cfg.BusyTimeout.Milliseconds())
	conn, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", ErrStoreUnavailable, err)
	}
	// SQLite has a single writer, and ":memory:" databases are per connection.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: failed to connect to database: %w", ErrStoreUnavailable, err)
	}

	db := &DB{conn: conn, logger: logger}
	if err := db.ensureSchema(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: failed to apply schema: %w", ErrStoreUnavailable, err)
	}
	logger.Info("database ready", zap.String("path", cfg.Path))
	return db, nil
}

// NewDB wraps an already open connection without touching its schema.
func NewDB(conn *sql.DB, logger *zap.Logger) *DB {
	return &DB{conn: sqlx.NewDb(conn, driverName), logger: logger}
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn exposes the connection for reads that need no transaction.
func (db *DB) Conn() *sqlx.DB {
	return db.conn
}

// ensureSchema creates each schema object missing from sqlite_master.
func (db *DB) ensureSchema(ctx context.Context) error {
	for _, obj := range schema {
		var n int
		err := db.conn.GetContext(ctx, &n,
			`SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?`, obj.kind, obj.name)
		if err != nil {
			return fmt.Errorf("failed to look up %s %s: %w", obj.kind, obj.name, err)
		}
		if n > 0 {
			continue
		}
		if _, err := db.conn.ExecContext(ctx, obj.ddl); err != nil {
			return fmt.Errorf("failed to create %s %s: %w", obj.kind, obj.name, err)
		}
		db.logger.Debug("created schema object", zap.String("kind", obj.kind), zap.String("name", obj.name))
	}
	return nil
}

// WithTx runs fn inside a single transaction. If fn fails or the commit
// fails, nothing fn wrote is kept and the error wraps ErrTransactionAborted.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrTransactionAborted, err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		return fmt.Errorf("%w: %w", ErrTransactionAborted, err)
	}

	if err := tx.Commit(); err != nil {
		// A failed COMMIT can leave SQLite's transaction open on the pooled
		// connection; roll it back so the writes are discarded.
		if _, rbErr := db.conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK"); rbErr != nil {
			db.logger.Debug("rollback after failed commit", zap.Error(rbErr))
		}
		return fmt.Errorf("%w: commit: %w", ErrTransactionAborted, err)
	}
	return nil
}

// Counts returns the number of rows in each table.
func (db *DB) Counts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, obj := range schema {
		if obj.kind != "table" {
			continue
		}
		var n int
		if err := db.conn.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+obj.name); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", obj.name, err)
		}
		counts[obj.name] = n
	}
	return counts, nil
}

// Manager owns the single process-wide connection. Initialize opens it once;
// later calls return the same handle.
type Manager struct {
	cfg    config.StoreConfig
	logger *zap.Logger

	mu sync.Mutex
	db *DB
}

func NewManager(cfg config.StoreConfig, logger *zap.Logger) *Manager {
	return &Manager{cfg: cfg, logger: logger}
}

// Initialize returns the live connection, opening it on first use. A failure
// is returned as is and not retried.
func (m *Manager) Initialize(ctx context.Context) (*DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db != nil {
		return m.db, nil
	}
	db, err := Open(ctx, m.cfg, m.logger)
	if err != nil {
		m.logger.Error("store unavailable", zap.String("path", m.cfg.Path), zap.Error(err))
		return nil, err
	}
	m.db = db
	return db, nil
}

// Close releases the connection if one was opened.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	return err
}
