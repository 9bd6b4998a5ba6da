// Package cache provides the process-wide key/value cache handed to jobs.
// Entries live in a SQLite table so they survive restarts and can be shared
// with other processes reading the same file.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	_ "modernc.org/sqlite" // SQLite driver registration
)

const (
	defaultTTL         = 10 * time.Minute
	defaultBusyTimeout = 5000
)

// Cache is the handle jobs use. Implementations are safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) (int64, error)
	Purge(ctx context.Context) (int64, error)
	Stat(ctx context.Context) (Stats, error)
}

// Stats is a point-in-time view of cache usage.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Sets    int64 `json:"sets"`
	Entries int64 `json:"entries"`
}

// HitRatio returns hits / (hits + misses), or 0 with no lookups.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Config configures the SQLite cache.
type Config struct {
	// Path is the database file. Defaults to {DataDir}/cache.db.
	Path string `yaml:"path"`

	// DefaultTTL applies when Set is called with a zero ttl. Defaults to 10m.
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// Defaults fills zero values.
func (c *Config) Defaults(dataDir string) {
	if c.Path == "" {
		c.Path = filepath.Join(dataDir, "cache.db")
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = defaultTTL
	}
}

// Store is a Cache backed by SQLite.
type Store struct {
	db    *sql.DB
	ttl   time.Duration
	clock clockwork.Clock

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
}

// Compile-time interface check.
var _ Cache = (*Store)(nil)

// Open opens (and migrates) the cache database at cfg.Path.
func Open(ctx context.Context, cfg Config, clock clockwork.Clock) (*Store, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.Path == "" {
		return nil, errors.New("cache: path is required")
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = defaultTTL
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("cache: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", cfg.Path, err)
	}

	// SQLite handles one writer at a time; limit pool to 1 connection
	// so PRAGMAs apply consistently.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache: enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache: set busy_timeout: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, ttl: cfg.DefaultTTL, clock: clock}, nil
}

// Get returns the value for key. Expired entries count as misses.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM cache_entries WHERE key = ? AND expires_at > ?",
		key, s.clock.Now().UnixNano(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		s.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %q: %w", key, err)
	}
	s.hits.Add(1)
	return value, true, nil
}

// Set stores value under key for ttl (DefaultTTL when zero).
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, s.clock.Now().Add(ttl).UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("cache: set %q: %w", key, err)
	}
	s.sets.Add(1)
	return nil
}

// Delete removes keys and returns how many existed.
func (s *Store) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE key IN ("+placeholders+")", args...)
	if err != nil {
		return 0, fmt.Errorf("cache: delete: %w", err)
	}
	return res.RowsAffected()
}

// Purge removes expired entries and returns how many were dropped.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM cache_entries WHERE expires_at <= ?", s.clock.Now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("cache: purge: %w", err)
	}
	return res.RowsAffected()
}

// Stat returns hit counters and the number of live entries.
func (s *Store) Stat(ctx context.Context) (Stats, error) {
	st := Stats{
		Hits:   s.hits.Load(),
		Misses: s.misses.Load(),
		Sets:   s.sets.Load(),
	}
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM cache_entries WHERE expires_at > ?", s.clock.Now().UnixNano(),
	).Scan(&st.Entries)
	if err != nil {
		return st, fmt.Errorf("cache: stat: %w", err)
	}
	return st, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
