package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mikey/phishguard/internal/core"
)

// SQLiteCache is a SQLite implementation of core.CacheRepository.
// Timestamps are stored as unix nanoseconds; expires_at = 0 never expires.
type SQLiteCache struct {
	db       *sql.DB
	opts     Options
	logger   *zap.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewSQLiteCache creates a new SQLite cache
func NewSQLiteCache(dbPath string, logger *zap.Logger, opts Options) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// one writer avoids "database is locked" under concurrent Set
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS phish_cache (
			cache_key TEXT PRIMARY KEY,
			result TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_phish_cache_created_at ON phish_cache(created_at)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	cache := &SQLiteCache{
		db:     db,
		opts:   opts,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	if opts.CleanupFreq > 0 {
		go runCleanupTask(opts.CleanupFreq, cache.stopCh, cache.Cleanup, logger)
	}

	return cache, nil
}

// Get retrieves the result stored under key
func (c *SQLiteCache) Get(ctx context.Context, key string) (*core.RiskResult, error) {
	var data []byte
	err := c.db.QueryRowContext(ctx, `
		SELECT result
		FROM phish_cache
		WHERE cache_key = ? AND (expires_at = 0 OR expires_at > ?)
	`, key, time.Now().UnixNano()).Scan(&data)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to query cache: %w", err)
	}

	return decodeResult(data)
}

// Set stores result under key
func (c *SQLiteCache) Set(ctx context.Context, key string, result *core.RiskResult) error {
	data, err := encodeResult(result)
	if err != nil {
		return err
	}

	now := time.Now()
	var expiresAt int64
	if exp := c.opts.expiry(now); !exp.IsZero() {
		expiresAt = exp.UnixNano()
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO phish_cache (cache_key, result, created_at, expires_at)
		VALUES (?, ?, ?, ?)
	`, key, string(data), now.UnixNano(), expiresAt)

	if err != nil {
		return fmt.Errorf("failed to insert cache entry: %w", err)
	}

	return nil
}

// Delete removes a cache entry
func (c *SQLiteCache) Delete(ctx context.Context, key string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM phish_cache WHERE cache_key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}

	return nil
}

// Cleanup removes expired entries and then the oldest entries beyond MaxEntries
func (c *SQLiteCache) Cleanup(ctx context.Context) error {
	result, err := c.db.ExecContext(ctx, `
		DELETE FROM phish_cache
		WHERE expires_at != 0 AND expires_at <= ?
	`, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to clean up expired entries: %w", err)
	}
	expired, _ := result.RowsAffected()

	result, err = c.db.ExecContext(ctx, `
		DELETE FROM phish_cache
		WHERE cache_key IN (
			SELECT cache_key FROM phish_cache
			ORDER BY created_at DESC
			LIMIT -1 OFFSET ?
		)
	`, c.opts.maxEntries())
	if err != nil {
		return fmt.Errorf("failed to trim cache: %w", err)
	}
	trimmed, _ := result.RowsAffected()

	c.logger.Debug("Cleaned up cache entries",
		zap.Int64("expired_count", expired),
		zap.Int64("trimmed_count", trimmed))
	return nil
}

// Stop stops the background cleanup task and closes the database connection
func (c *SQLiteCache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close SQLite database", zap.Error(err))
		}
	})
}
