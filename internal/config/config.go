// Package config exposes typed accessors over the viper configuration.
package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Defaults for the book API subsystem. The quota ceiling is the daily cap
// imposed by the Kakao developer terms.
const (
	DefaultQuotaCeiling   = 300000
	DefaultCacheTTL       = 24 * time.Hour
	DefaultCacheMaxSize   = 500
	DefaultMaxRetries     = 3
	DefaultRequestTimeout = 10 * time.Second
	DefaultRetentionDays  = 30
)

// SetDefaults registers the config defaults with viper. Called once from the
// CLI bootstrap before any config reads.
func SetDefaults() {
	viper.SetDefault("kakao.quota_ceiling", DefaultQuotaCeiling)
	viper.SetDefault("kakao.max_retries", DefaultMaxRetries)
	viper.SetDefault("kakao.request_timeout", "10s")
	viper.SetDefault("cache.dbfile", "./bookfetch.db")
	viper.SetDefault("cache.ttl", "24h")
	viper.SetDefault("cache.max_size", DefaultCacheMaxSize)
	viper.SetDefault("cache.eviction", "LRU")
	viper.SetDefault("usage.retention_days", DefaultRetentionDays)
}

// APIKey returns the Kakao REST API key. Required for any upstream call.
func APIKey() string {
	return viper.GetString("kakao.api_key")
}

// QuotaCeiling returns the daily upstream call cap.
func QuotaCeiling() int {
	return viper.GetInt("kakao.quota_ceiling")
}

// MaxRetries returns the retry cap for transient upstream failures.
func MaxRetries() int {
	return viper.GetInt("kakao.max_retries")
}

// RequestTimeout returns the per-attempt HTTP timeout.
func RequestTimeout() time.Duration {
	return durationOr("kakao.request_timeout", DefaultRequestTimeout)
}

// CacheDBFile returns the path of the SQLite database backing the persistent
// cache tier and the usage aggregates.
func CacheDBFile() string {
	return viper.GetString("cache.dbfile")
}

// CacheTTL returns the default time-to-live for cached API responses.
func CacheTTL() time.Duration {
	return durationOr("cache.ttl", DefaultCacheTTL)
}

// CacheMaxSize returns the memory-tier entry capacity.
func CacheMaxSize() int {
	if n := viper.GetInt("cache.max_size"); n > 0 {
		return n
	}
	return DefaultCacheMaxSize
}

// EvictionPolicy returns "LRU" or "LFU". Unknown values fall back to LRU.
func EvictionPolicy() string {
	policy := strings.ToUpper(viper.GetString("cache.eviction"))
	if policy != "LFU" {
		return "LRU"
	}
	return policy
}

// UsageRetentionDays returns how long usage aggregates are kept.
func UsageRetentionDays() int {
	if n := viper.GetInt("usage.retention_days"); n > 0 {
		return n
	}
	return DefaultRetentionDays
}

func durationOr(key string, fallback time.Duration) time.Duration {
	raw := viper.GetString(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("Invalid duration in config, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return d
}
