package cache

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/phishguard/internal/core"
)

func sampleResult() *core.RiskResult {
	return &core.RiskResult{
		Score:   0.52,
		Status:  core.StatusLowRisk,
		Reasons: []string{"URL uses an IP address instead of a domain name", "URL is using HTTP (not HTTPS)"},
		Meta: &core.ResultMeta{
			RuleScore:     0.52,
			RuleStatus:    core.StatusLowRisk,
			MLProbability: 0.61,
			RuleWeight:    0.6,
			MLWeight:      0.4,
		},
	}
}

func newMemory(t *testing.T, opts Options) *MemoryCache {
	t.Helper()
	c, err := NewMemoryCache(zap.NewNop(), opts)
	require.NoError(t, err)
	t.Cleanup(c.Stop)
	return c
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := newMemory(t, Options{})
	ctx := context.Background()

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, core.ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k", sampleResult()))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, sampleResult(), got)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, core.ErrCacheMiss)
}

func TestMemoryCacheReturnsCopies(t *testing.T) {
	c := newMemory(t, Options{})
	ctx := context.Background()

	original := sampleResult()
	require.NoError(t, c.Set(ctx, "k", original))
	original.Reasons[0] = "mutated after Set"

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	got.Reasons[1] = "mutated after Get"
	got.Meta.RuleScore = 0

	again, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, sampleResult(), again)
}

func TestMemoryCacheIsBounded(t *testing.T) {
	c := newMemory(t, Options{MaxEntries: 3})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("k%d", i), sampleResult()))
	}
	assert.Equal(t, 3, c.Len())

	_, err := c.Get(ctx, "k0")
	assert.ErrorIs(t, err, core.ErrCacheMiss)
	_, err = c.Get(ctx, "k4")
	assert.NoError(t, err)
}

func TestMemoryCacheTTL(t *testing.T) {
	c := newMemory(t, Options{TTL: time.Minute})
	ctx := context.Background()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "a", sampleResult()))
	now = now.Add(30 * time.Second)
	require.NoError(t, c.Set(ctx, "b", sampleResult()))

	_, err := c.Get(ctx, "a")
	require.NoError(t, err)

	now = now.Add(31 * time.Second)
	_, err = c.Get(ctx, "a")
	assert.ErrorIs(t, err, core.ErrCacheMiss)

	now = now.Add(time.Minute)
	require.NoError(t, c.Cleanup(ctx))
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCacheWithoutTTLNeverExpires(t *testing.T) {
	c := newMemory(t, Options{})
	ctx := context.Background()

	now := time.Now()
	c.now = func() time.Time { return now }
	require.NoError(t, c.Set(ctx, "k", sampleResult()))

	now = now.Add(24 * 365 * time.Hour)
	require.NoError(t, c.Cleanup(ctx))
	_, err := c.Get(ctx, "k")
	assert.NoError(t, err)
}

func TestMemoryCacheConcurrentWriters(t *testing.T) {
	c := newMemory(t, Options{MaxEntries: 64})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", j%8)
				assert.NoError(t, c.Set(ctx, key, sampleResult()))
				if got, err := c.Get(ctx, key); err == nil {
					assert.Equal(t, 0.52, got.Score)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, c.Len())
}

func TestMemoryCacheStopIsIdempotent(t *testing.T) {
	c, err := NewMemoryCache(zap.NewNop(), Options{TTL: time.Second, CleanupFreq: time.Millisecond})
	require.NoError(t, err)
	c.Stop()
	c.Stop()
}

func newSQLite(t *testing.T, opts Options) *SQLiteCache {
	t.Helper()
	c, err := NewSQLiteCache(filepath.Join(t.TempDir(), "cache.db"), zap.NewNop(), opts)
	require.NoError(t, err)
	t.Cleanup(c.Stop)
	return c
}

func TestSQLiteCacheRoundTrip(t *testing.T) {
	c := newSQLite(t, Options{})
	ctx := context.Background()

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, core.ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k", sampleResult()))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, sampleResult(), got)

	// overwrite keeps a single row
	updated := sampleResult()
	updated.Score = 0.9
	require.NoError(t, c.Set(ctx, "k", updated))
	got, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 0.9, got.Score)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, core.ErrCacheMiss)
}

func TestSQLiteCacheExpiry(t *testing.T) {
	c := newSQLite(t, Options{TTL: time.Nanosecond})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", sampleResult()))
	time.Sleep(time.Millisecond)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, core.ErrCacheMiss)

	require.NoError(t, c.Cleanup(ctx))
	var count int
	require.NoError(t, c.db.QueryRow(`SELECT COUNT(*) FROM phish_cache`).Scan(&count))
	assert.Zero(t, count)
}

func TestSQLiteCacheCleanupTrimsOldest(t *testing.T) {
	c := newSQLite(t, Options{MaxEntries: 2})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("k%d", i), sampleResult()))
		time.Sleep(time.Millisecond)
	}
	require.NoError(t, c.Cleanup(ctx))

	for _, key := range []string{"k0", "k1"} {
		_, err := c.Get(ctx, key)
		assert.ErrorIs(t, err, core.ErrCacheMiss, key)
	}
	for _, key := range []string{"k2", "k3"} {
		_, err := c.Get(ctx, key)
		assert.NoError(t, err, key)
	}
}
