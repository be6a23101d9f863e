package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/mikey/phishguard/internal/core"
)

// MySQLCache is a MySQL implementation of core.CacheRepository
type MySQLCache struct {
	db       *sql.DB
	opts     Options
	logger   *zap.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMySQLCache creates a new MySQL cache
func NewMySQLCache(dsn string, logger *zap.Logger, opts Options) (*MySQLCache, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS phish_cache (
			cache_key CHAR(64) PRIMARY KEY,
			result MEDIUMTEXT NOT NULL,
			created_at BIGINT NOT NULL,
			expires_at BIGINT NOT NULL,
			INDEX idx_phish_cache_created_at (created_at)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	cache := &MySQLCache{
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
func (c *MySQLCache) Get(ctx context.Context, key string) (*core.RiskResult, error) {
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
func (c *MySQLCache) Set(ctx context.Context, key string, result *core.RiskResult) error {
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
		INSERT INTO phish_cache (cache_key, result, created_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			result = VALUES(result),
			created_at = VALUES(created_at),
			expires_at = VALUES(expires_at)
	`, key, string(data), now.UnixNano(), expiresAt)

	if err != nil {
		return fmt.Errorf("failed to insert cache entry: %w", err)
	}

	return nil
}

// Delete removes a cache entry
func (c *MySQLCache) Delete(ctx context.Context, key string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM phish_cache WHERE cache_key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}

	return nil
}

// Cleanup removes expired entries and then the oldest entries beyond MaxEntries
func (c *MySQLCache) Cleanup(ctx context.Context) error {
	result, err := c.db.ExecContext(ctx, `
		DELETE FROM phish_cache
		WHERE expires_at != 0 AND expires_at <= ?
	`, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to clean up expired entries: %w", err)
	}
	expired, _ := result.RowsAffected()

	// MySQL rejects LIMIT inside IN subqueries, so find the cutoff first
	var cutoff int64
	err = c.db.QueryRowContext(ctx, `
		SELECT created_at FROM phish_cache
		ORDER BY created_at DESC
		LIMIT 1 OFFSET ?
	`, c.opts.maxEntries()).Scan(&cutoff)
	if errors.Is(err, sql.ErrNoRows) {
		c.logger.Debug("Cleaned up expired cache entries", zap.Int64("expired_count", expired))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to find cache trim cutoff: %w", err)
	}

	result, err = c.db.ExecContext(ctx, `DELETE FROM phish_cache WHERE created_at <= ?`, cutoff)
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
func (c *MySQLCache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close MySQL database", zap.Error(err))
		}
	})
}
