// Package database opens the pooled SQL handle shared by every job and hands
// out scoped sessions on top of it. Three drivers are compiled in: sqlite
// (modernc.org/sqlite, pure Go), mysql and postgres.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver registration
	_ "github.com/lib/pq"              // PostgreSQL driver registration
	_ "modernc.org/sqlite"             // SQLite driver registration
)

// Supported driver names.
const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

const (
	defaultPoolSize    = 20
	defaultMaxIdle     = 5
	defaultBusyTimeout = 5000
)

// Config configures the connection pool.
type Config struct {
	// Driver is one of sqlite, mysql, postgres. Defaults to sqlite.
	Driver string `yaml:"driver"`

	// DSN is the driver-specific data source. For sqlite it is a file path.
	DSN string `yaml:"dsn"`

	// PoolSize caps open connections. Defaults to 20.
	PoolSize int `yaml:"pool_size"`

	// MaxIdle caps idle connections kept in the pool. Defaults to 5.
	MaxIdle int `yaml:"max_idle"`

	// ConnMaxLifetime recycles connections older than this. Zero keeps them.
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`

	// BusyTimeout is the sqlite lock wait in milliseconds. Defaults to 5000.
	BusyTimeout int `yaml:"busy_timeout"`
}

// Defaults fills zero values.
func (c *Config) Defaults() {
	if c.Driver == "" {
		c.Driver = DriverSQLite
	}
	if c.PoolSize <= 0 {
		c.PoolSize = defaultPoolSize
	}
	if c.MaxIdle <= 0 {
		c.MaxIdle = defaultMaxIdle
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = defaultBusyTimeout
	}
}

// Validate checks the configuration without opening anything.
func (c *Config) Validate() error {
	var errs []error
	switch c.Driver {
	case DriverSQLite, DriverMySQL, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("database: unsupported driver %q", c.Driver))
	}
	if c.DSN == "" {
		errs = append(errs, errors.New("database: dsn is required"))
	}
	if c.BusyTimeout < 0 {
		errs = append(errs, fmt.Errorf("database: busy_timeout must be non-negative, got %d", c.BusyTimeout))
	}
	return errors.Join(errs...)
}

// SessionFactory hands out scoped sessions from a shared pool.
// It is safe for concurrent use.
type SessionFactory struct {
	db     *sql.DB
	driver string
}

// Open creates the pool and verifies the database is reachable.
func Open(ctx context.Context, cfg Config) (*SessionFactory, error) {
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dsn := cfg.DSN
	if cfg.Driver == DriverSQLite {
		var err error
		if dsn, err = sqliteDSN(cfg.DSN, cfg.BusyTimeout); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", cfg.Driver, err)
	}

	db.SetMaxOpenConns(cfg.PoolSize)
	db.SetMaxIdleConns(min(cfg.MaxIdle, cfg.PoolSize))
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database: ping %s: %w", cfg.Driver, err)
	}

	return &SessionFactory{db: db, driver: cfg.Driver}, nil
}

// New wraps an already opened pool.
func New(db *sql.DB, driver string) *SessionFactory {
	return &SessionFactory{db: db, driver: driver}
}

// sqliteDSN turns a file path into a modernc DSN carrying the pragmas every
// pooled connection needs. DSNs already in URI form pass through.
func sqliteDSN(path string, busyTimeout int) (string, error) {
	if strings.HasPrefix(path, "file:") || path == ":memory:" {
		return path, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", fmt.Errorf("database: create directory %s: %w", dir, err)
		}
	}
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout))
	q.Add("_pragma", "journal_mode(WAL)")
	return "file:" + path + "?" + q.Encode(), nil
}

// Driver returns the configured driver name.
func (f *SessionFactory) Driver() string { return f.driver }

// DB exposes the pool for callers that manage their own statements.
func (f *SessionFactory) DB() *sql.DB { return f.db }

// Stats returns the pool statistics.
func (f *SessionFactory) Stats() sql.DBStats { return f.db.Stats() }

// Ping checks the database is reachable.
func (f *SessionFactory) Ping(ctx context.Context) error {
	if err := f.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database: ping: %w", err)
	}
	return nil
}

// Open reserves one connection from the pool. The caller must Close the
// session to hand the connection back.
func (f *SessionFactory) Open(ctx context.Context) (*Session, error) {
	conn, err := f.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("database: acquire session: %w", err)
	}
	return &Session{conn: conn}, nil
}

// WithSession runs fn on a session scoped to the call.
func (f *SessionFactory) WithSession(ctx context.Context, fn func(*Session) error) error {
	s, err := f.Open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// WithTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (f *SessionFactory) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("database: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("database: rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("database: commit: %w", err)
	}
	return nil
}

// Close closes the pool.
func (f *SessionFactory) Close() error {
	return f.db.Close()
}

// Session is one pooled connection reserved for a single job invocation.
type Session struct {
	conn *sql.Conn
}

// ExecContext executes a statement on the session connection.
func (s *Session) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.conn.ExecContext(ctx, query, args...)
}

// QueryContext runs a query on the session connection.
func (s *Session) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.conn.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query on the session connection.
func (s *Session) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return s.conn.QueryRowContext(ctx, query, args...)
}

// BeginTx starts a transaction bound to the session connection.
func (s *Session) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return s.conn.BeginTx(ctx, opts)
}

// Close returns the connection to the pool.
func (s *Session) Close() error {
	return s.conn.Close()
}
