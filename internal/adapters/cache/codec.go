package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/phishguard/internal/core"
)

// Options configures every cache backend
type Options struct {
	// TTL of an entry; zero keeps entries for the life of the cache
	TTL time.Duration
	// MaxEntries bounds the number of stored results
	MaxEntries int
	// CleanupFreq is the interval of the background cleanup; zero disables it
	CleanupFreq time.Duration
}

// DefaultMaxEntries is used when Options.MaxEntries is not positive
const DefaultMaxEntries = 10000

func (o Options) maxEntries() int {
	if o.MaxEntries <= 0 {
		return DefaultMaxEntries
	}
	return o.MaxEntries
}

// expiry returns the expiration instant of an entry written at now, or the
// zero time when entries never expire
func (o Options) expiry(now time.Time) time.Time {
	if o.TTL <= 0 {
		return time.Time{}
	}
	return now.Add(o.TTL)
}

func encodeResult(result *core.RiskResult) ([]byte, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cached result: %w", err)
	}
	return data, nil
}

func decodeResult(data []byte) (*core.RiskResult, error) {
	var result core.RiskResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode cached result: %w", err)
	}
	return &result, nil
}

// runCleanupTask calls cleanup every freq until stopCh is closed
func runCleanupTask(freq time.Duration, stopCh <-chan struct{}, cleanup func(context.Context) error, logger *zap.Logger) {
	ticker := time.NewTicker(freq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := cleanup(context.Background()); err != nil {
				logger.Error("Failed to clean up cache", zap.Error(err))
			}
		case <-stopCh:
			return
		}
	}
}
