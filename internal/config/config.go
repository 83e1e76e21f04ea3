// Package config provides configuration loading and validation for the server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config collects the environment-driven settings for the server and the
// sweeper. Secrets are always env-only.
type Config struct {
	Port        int    // PORT
	DatabaseURL string // DATABASE_URL (required)

	// Enrichment service
	EnrichTriggerURL string // ENRICH_TRIGGER_URL (required for serve)
	CallbackSecret   string // CALLBACK_SECRET (required): shared secret for webhook auth
	PublicBaseURL    string // PUBLIC_BASE_URL (required): externally reachable base URL

	// Artifact storage
	BlobBucket     string // BLOB_BUCKET (required)
	FileSigningKey string // FILE_SIGNING_KEY: empty disables capability URLs (fail closed)

	// Job reaping
	JobTimeout    time.Duration // JOB_TIMEOUT, default 30m
	SweepInterval time.Duration // SWEEP_INTERVAL, default 5m
}

// FromEnv reads configuration from the environment.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:             8080,
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		EnrichTriggerURL: os.Getenv("ENRICH_TRIGGER_URL"),
		CallbackSecret:   os.Getenv("CALLBACK_SECRET"),
		PublicBaseURL:    os.Getenv("PUBLIC_BASE_URL"),
		BlobBucket:       os.Getenv("BLOB_BUCKET"),
		FileSigningKey:   os.Getenv("FILE_SIGNING_KEY"),
		JobTimeout:       30 * time.Minute,
		SweepInterval:    5 * time.Minute,
	}

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Port = port
	}
	if v := os.Getenv("JOB_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid JOB_TIMEOUT %q: %w", v, err)
		}
		cfg.JobTimeout = d
	}
	if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SWEEP_INTERVAL %q: %w", v, err)
		}
		cfg.SweepInterval = d
	}

	return cfg, nil
}

// Validate checks the invariants that hold for any command.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config error: DATABASE_URL is required")
	}
	if c.JobTimeout <= 0 {
		return fmt.Errorf("config error: JOB_TIMEOUT must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("config error: SWEEP_INTERVAL must be positive")
	}
	return nil
}

// ValidateServe checks the additional settings the serve command needs.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.EnrichTriggerURL == "" {
		return fmt.Errorf("config error: ENRICH_TRIGGER_URL is required")
	}
	if c.CallbackSecret == "" {
		return fmt.Errorf("config error: CALLBACK_SECRET is required")
	}
	if c.PublicBaseURL == "" {
		return fmt.Errorf("config error: PUBLIC_BASE_URL is required")
	}
	if c.BlobBucket == "" {
		return fmt.Errorf("config error: BLOB_BUCKET is required")
	}
	return nil
}
