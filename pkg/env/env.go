// Package env consolidates all environment variable reading for the application.
// Config overrides are applied only at startup (see config.Load).
package env

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variable names (single source of truth)
const (
	ListenAddr          = "ANISTREAM_ADDR"
	BaseURL             = "ANISTREAM_BASE_URL"
	LogLevel            = "LOG_LEVEL"
	ConfigPath          = "ANISTREAM_CONFIG"
	CacheTTLSeconds     = "CACHE_TTL_SECONDS"
	StreamCacheSeconds  = "STREAM_CACHE_TTL_SECONDS"
	ProviderTimeoutMS   = "PROVIDER_TIMEOUT_MS"
	ProviderMaxAttempts = "PROVIDER_MAX_ATTEMPTS"
	ProviderRetryMS     = "PROVIDER_RETRY_DELAY_MS"
	BreakerThreshold    = "BREAKER_FAILURE_THRESHOLD"
	BreakerResetMS      = "BREAKER_RESET_TIMEOUT_MS"
	ProxyTimeoutSeconds = "PROXY_TIMEOUT_SECONDS"
	ProviderPrefix      = "PROVIDER_" // PROVIDER_<NAME>_URL defines a REST provider
)

// String returns the env var value or def when unset/empty.
func String(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

// Int returns the env var parsed as int, or def on unset or parse failure.
func Int(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// DurationMS returns the env var (milliseconds) as a Duration, or def.
func DurationMS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return time.Duration(n) * time.Millisecond
}

// DurationSec returns the env var (seconds) as a Duration, or def.
func DurationSec(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return time.Duration(n) * time.Second
}
