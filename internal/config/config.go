// Package config loads configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all dataset-viewer configuration.
type Config struct {
	// Logging
	LogLevel  string
	LogFormat string

	// Connection store (optional, empty disables persistence)
	DatabaseURL string

	// Transport
	HTTPTimeout   time.Duration
	RetryAttempts int

	// Streaming viewer
	ChunkSize            int64 // bytes fetched per "load more"
	InitialLoadThreshold int64 // files above this are loaded progressively

	// Full-file search sampling
	SearchSampleSize int64
	SearchMaxSamples int
	SearchMaxMatches int

	// Directory listing cache
	DirCacheTTL        time.Duration
	DirCacheMaxEntries int

	// Downloads
	DownloadDir string
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:             envOr("LOG_LEVEL", "info"),
		LogFormat:            envOr("LOG_FORMAT", "json"),
		DatabaseURL:          envOr("DATABASE_URL", ""),
		HTTPTimeout:          envDuration("DSV_HTTP_TIMEOUT", 30*time.Second),
		RetryAttempts:        envInt("DSV_RETRY_ATTEMPTS", 3),
		ChunkSize:            envInt64("DSV_CHUNK_SIZE", 1024*1024),
		InitialLoadThreshold: envInt64("DSV_INITIAL_LOAD_THRESHOLD", 1024*1024),
		SearchSampleSize:     envInt64("DSV_SEARCH_SAMPLE_SIZE", 512*1024),
		SearchMaxSamples:     envInt("DSV_SEARCH_MAX_SAMPLES", 50),
		SearchMaxMatches:     envInt("DSV_SEARCH_MAX_MATCHES", 500),
		DirCacheTTL:          envDuration("DSV_DIR_CACHE_TTL", 30*time.Second),
		DirCacheMaxEntries:   envInt("DSV_DIR_CACHE_MAX_ENTRIES", 256),
		DownloadDir:          envOr("DSV_DOWNLOAD_DIR", "."),
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
