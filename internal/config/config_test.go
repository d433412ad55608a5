package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()
}

func TestDefaults(t *testing.T) {
	resetViper(t)

	assert.Equal(t, DefaultQuotaCeiling, QuotaCeiling())
	assert.Equal(t, DefaultMaxRetries, MaxRetries())
	assert.Equal(t, DefaultRequestTimeout, RequestTimeout())
	assert.Equal(t, "./bookfetch.db", CacheDBFile())
	assert.Equal(t, DefaultCacheTTL, CacheTTL())
	assert.Equal(t, DefaultCacheMaxSize, CacheMaxSize())
	assert.Equal(t, "LRU", EvictionPolicy())
	assert.Equal(t, DefaultRetentionDays, UsageRetentionDays())
	assert.Empty(t, APIKey(), "no default API key")
}

func TestOverrides(t *testing.T) {
	resetViper(t)

	viper.Set("kakao.api_key", "secret")
	viper.Set("kakao.quota_ceiling", 1000)
	viper.Set("cache.ttl", "1h")
	viper.Set("cache.max_size", 50)

	assert.Equal(t, "secret", APIKey())
	assert.Equal(t, 1000, QuotaCeiling())
	assert.Equal(t, time.Hour, CacheTTL())
	assert.Equal(t, 50, CacheMaxSize())
}

func TestEvictionPolicyNormalization(t *testing.T) {
	resetViper(t)

	viper.Set("cache.eviction", "lfu")
	assert.Equal(t, "LFU", EvictionPolicy())

	viper.Set("cache.eviction", "fifo")
	assert.Equal(t, "LRU", EvictionPolicy(), "unknown policies fall back to LRU")
}

func TestInvalidDurationFallsBack(t *testing.T) {
	resetViper(t)

	viper.Set("kakao.request_timeout", "not-a-duration")
	assert.Equal(t, DefaultRequestTimeout, RequestTimeout())

	viper.Set("cache.ttl", "")
	assert.Equal(t, DefaultCacheTTL, CacheTTL())
}

func TestNonPositiveSizesFallBack(t *testing.T) {
	resetViper(t)

	viper.Set("cache.max_size", 0)
	assert.Equal(t, DefaultCacheMaxSize, CacheMaxSize())

	viper.Set("usage.retention_days", -1)
	assert.Equal(t, DefaultRetentionDays, UsageRetentionDays())
}
