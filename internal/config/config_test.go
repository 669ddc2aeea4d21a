package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel: got %q, want info", cfg.LogLevel)
	}
	if cfg.ChunkSize != 1024*1024 {
		t.Errorf("ChunkSize: got %d, want 1 MiB", cfg.ChunkSize)
	}
	if cfg.InitialLoadThreshold != 1024*1024 {
		t.Errorf("InitialLoadThreshold: got %d, want 1 MiB", cfg.InitialLoadThreshold)
	}
	if cfg.SearchSampleSize != 512*1024 {
		t.Errorf("SearchSampleSize: got %d, want 512 KiB", cfg.SearchSampleSize)
	}
	if cfg.SearchMaxSamples != 50 {
		t.Errorf("SearchMaxSamples: got %d, want 50", cfg.SearchMaxSamples)
	}
	if cfg.SearchMaxMatches != 500 {
		t.Errorf("SearchMaxMatches: got %d, want 500", cfg.SearchMaxMatches)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Errorf("HTTPTimeout: got %v, want 30s", cfg.HTTPTimeout)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DSV_CHUNK_SIZE", "2048")
	t.Setenv("DSV_HTTP_TIMEOUT", "5s")
	t.Setenv("DSV_SEARCH_MAX_SAMPLES", "7")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ChunkSize != 2048 {
		t.Errorf("ChunkSize: got %d, want 2048", cfg.ChunkSize)
	}
	if cfg.HTTPTimeout != 5*time.Second {
		t.Errorf("HTTPTimeout: got %v, want 5s", cfg.HTTPTimeout)
	}
	if cfg.SearchMaxSamples != 7 {
		t.Errorf("SearchMaxSamples: got %d, want 7", cfg.SearchMaxSamples)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel: got %q, want debug", cfg.LogLevel)
	}
}

func TestLoad_BadValuesFallBack(t *testing.T) {
	t.Setenv("DSV_CHUNK_SIZE", "not-a-number")
	t.Setenv("DSV_HTTP_TIMEOUT", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ChunkSize != 1024*1024 {
		t.Errorf("ChunkSize: got %d, want default", cfg.ChunkSize)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Errorf("HTTPTimeout: got %v, want default", cfg.HTTPTimeout)
	}
}
