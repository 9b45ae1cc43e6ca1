package config

import (
	"encoding/json"
	"os"
	"sort"
	"strings"
	"time"

	"anistream/pkg/env"
	"anistream/pkg/logger"
)

// ProviderConfig describes one upstream provider adapter API. Rank orders
// the fallback chain; rank 1 is tried first.
type ProviderConfig struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	APIKey string `json:"api_key"`
	Rank   int    `json:"rank"`
}

// Config holds application configuration
type Config struct {
	ListenAddr string `json:"listen_addr"`
	BaseURL    string `json:"base_url"`
	LogLevel   string `json:"log_level"`

	// Caching
	CacheTTLSeconds       int `json:"cache_ttl_seconds"`
	StreamCacheTTLSeconds int `json:"stream_cache_ttl_seconds"`

	// Reliability wrapper
	ProviderTimeoutMS       int `json:"provider_timeout_ms"`
	ProviderMaxAttempts     int `json:"provider_max_attempts"`
	ProviderRetryDelayMS    int `json:"provider_retry_delay_ms"`
	BreakerFailureThreshold int `json:"breaker_failure_threshold"`
	BreakerResetTimeoutMS   int `json:"breaker_reset_timeout_ms"`

	// Stream proxy
	ProxyTimeoutSeconds int `json:"proxy_timeout_seconds"`

	// Upstream providers, rank order
	Providers []ProviderConfig `json:"providers"`

	// Internal - where was this config loaded from?
	LoadedPath string `json:"-"`
}

// Load is intended for startup only. It loads configuration from the JSON
// config file, applies environment variable overrides once, then saves the
// merged config. Priority: environment variables > config file > defaults.
func Load() (*Config, error) {
	configPath := env.String(env.ConfigPath, "config.json")

	cfg := &Config{
		ListenAddr:              ":7100",
		BaseURL:                 "http://localhost:7100",
		LogLevel:                "INFO",
		CacheTTLSeconds:         300,
		StreamCacheTTLSeconds:   120,
		ProviderTimeoutMS:       15000,
		ProviderMaxAttempts:     3,
		ProviderRetryDelayMS:    1000,
		BreakerFailureThreshold: 5,
		BreakerResetTimeoutMS:   30000,
		ProxyTimeoutSeconds:     30,
		LoadedPath:              configPath,
	}

	if err := cfg.LoadFile(configPath); err != nil {
		if os.IsNotExist(err) {
			logger.Info("No config found, creating new one", "path", configPath)
		} else {
			logger.Warn("Failed to load config, using defaults", "path", configPath, "err", err)
		}
	} else {
		logger.Info("Loaded configuration", "path", configPath)
	}

	cfg.applyEnvOverrides()
	cfg.mergeEnvProviders()
	cfg.sortProviders()

	if err := cfg.Save(); err != nil {
		logger.Warn("Failed to save config on startup", "err", err)
	}

	if len(cfg.Providers) == 0 {
		logger.Warn("No providers configured. Add some to the config file or set PROVIDER_<NAME>_URL")
	}

	return cfg, nil
}

// LoadFile overrides config with values from a JSON file
func (c *Config) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return json.NewDecoder(file).Decode(c)
}

// Save saves the current configuration to the file it was loaded from
func (c *Config) Save() error {
	path := c.LoadedPath
	if path == "" {
		path = "config.json"
	}
	return c.SaveFile(path)
}

// SaveFile saves the current configuration to a JSON file
func (c *Config) SaveFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(c)
}

// applyEnvOverrides reads each recognized env var over the loaded values.
// Duration-valued vars go through env.DurationMS/DurationSec, which reject
// negative inputs instead of poisoning timeouts.
func (c *Config) applyEnvOverrides() {
	c.ListenAddr = env.String(env.ListenAddr, c.ListenAddr)
	c.BaseURL = env.String(env.BaseURL, c.BaseURL)
	c.LogLevel = env.String(env.LogLevel, c.LogLevel)
	c.CacheTTLSeconds = seconds(env.DurationSec(env.CacheTTLSeconds, c.CacheTTL()))
	c.StreamCacheTTLSeconds = seconds(env.DurationSec(env.StreamCacheSeconds, c.StreamCacheTTL()))
	c.ProviderTimeoutMS = millis(env.DurationMS(env.ProviderTimeoutMS, c.ProviderTimeout()))
	c.ProviderMaxAttempts = env.Int(env.ProviderMaxAttempts, c.ProviderMaxAttempts)
	c.ProviderRetryDelayMS = millis(env.DurationMS(env.ProviderRetryMS, c.ProviderRetryDelay()))
	c.BreakerFailureThreshold = env.Int(env.BreakerThreshold, c.BreakerFailureThreshold)
	c.BreakerResetTimeoutMS = millis(env.DurationMS(env.BreakerResetMS, c.BreakerResetTimeout()))
	c.ProxyTimeoutSeconds = seconds(env.DurationSec(env.ProxyTimeoutSeconds, c.ProxyTimeout()))
}

func millis(d time.Duration) int { return int(d / time.Millisecond) }

func seconds(d time.Duration) int { return int(d / time.Second) }

// mergeEnvProviders adds providers declared as PROVIDER_<NAME>_URL (plus an
// optional PROVIDER_<NAME>_API_KEY and PROVIDER_<NAME>_RANK). An env provider
// with the same name as a file provider replaces it.
func (c *Config) mergeEnvProviders() {
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, env.ProviderPrefix) || !strings.HasSuffix(key, "_URL") {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(key, env.ProviderPrefix), "_URL")
		if name == "" || strings.TrimSpace(value) == "" {
			continue
		}
		pc := ProviderConfig{
			Name:   strings.ToLower(name),
			URL:    strings.TrimSpace(value),
			APIKey: env.String(env.ProviderPrefix+name+"_API_KEY", ""),
			Rank:   env.Int(env.ProviderPrefix+name+"_RANK", 0),
		}
		replaced := false
		for i := range c.Providers {
			if c.Providers[i].Name == pc.Name {
				c.Providers[i] = pc
				replaced = true
				break
			}
		}
		if !replaced {
			c.Providers = append(c.Providers, pc)
		}
	}
}

// sortProviders orders by explicit rank, zero-rank entries last in their
// declared order, and re-numbers ranks 1..n.
func (c *Config) sortProviders() {
	sort.SliceStable(c.Providers, func(i, j int) bool {
		ri, rj := c.Providers[i].Rank, c.Providers[j].Rank
		if ri == 0 {
			return false
		}
		if rj == 0 {
			return true
		}
		return ri < rj
	})
	for i := range c.Providers {
		c.Providers[i].Rank = i + 1
	}
}

func (c *Config) CacheTTL() time.Duration { return time.Duration(c.CacheTTLSeconds) * time.Second }

func (c *Config) StreamCacheTTL() time.Duration {
	return time.Duration(c.StreamCacheTTLSeconds) * time.Second
}

func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutMS) * time.Millisecond
}

func (c *Config) ProviderRetryDelay() time.Duration {
	return time.Duration(c.ProviderRetryDelayMS) * time.Millisecond
}

func (c *Config) BreakerResetTimeout() time.Duration {
	return time.Duration(c.BreakerResetTimeoutMS) * time.Millisecond
}

func (c *Config) ProxyTimeout() time.Duration {
	return time.Duration(c.ProxyTimeoutSeconds) * time.Second
}
