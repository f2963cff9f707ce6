// Package config provides configuration management for the search client.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/opd-ai/go-emb25/pkg/bm25"
)

// Config represents the search client configuration
type Config struct {
	// Server settings
	ServerURL      string        // Base URL of the index server (required)
	RequestTimeout time.Duration // Per-request deadline (default: 30s)
	DialTimeout    time.Duration // Connection establishment deadline (default: 10s)

	// Retry behavior
	MaxRetries        int           // Retry attempts per request (default: 3)
	RetryInitialDelay time.Duration // First backoff delay (default: 500ms)
	RetryMaxDelay     time.Duration // Backoff cap (default: 15s)

	// Circuit breaker
	BreakerMaxFailures int           // Failures since the breaker last closed before opening (default: 5)
	BreakerTimeout     time.Duration // Open-state cooldown (default: 30s)

	// Optional SOCKS5 proxy for all server traffic, e.g. "socks5://127.0.0.1:9050"
	SocksProxy string

	// Ranking parameters
	BM25K1 float64 // default: 1.2
	BM25B  float64 // default: 0.75

	// Ingest limits
	MaxDocumentSize int // Largest document accepted for sealing, bytes (default: 1MiB)

	// Persistent state database path; empty keeps state in memory only
	StatePath string

	// Logging
	LogLevel string // Log level: debug, info, warn, error (default: info)
}

// DefaultConfig returns a configuration with sensible defaults. The server
// URL must still be filled in by the caller.
func DefaultConfig() *Config {
	return &Config{
		RequestTimeout:     30 * time.Second,
		DialTimeout:        10 * time.Second,
		MaxRetries:         3,
		RetryInitialDelay:  500 * time.Millisecond,
		RetryMaxDelay:      15 * time.Second,
		BreakerMaxFailures: 5,
		BreakerTimeout:     30 * time.Second,
		BM25K1:             bm25.DefaultK1,
		BM25B:              bm25.DefaultB,
		MaxDocumentSize:    1 << 20,
		LogLevel:           "info",
	}
}

// Validate checks the configuration for inconsistencies
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("ServerURL is required")
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("invalid ServerURL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("ServerURL scheme must be http or https, got %q", u.Scheme)
	}

	if c.SocksProxy != "" {
		p, err := url.Parse(c.SocksProxy)
		if err != nil {
			return fmt.Errorf("invalid SocksProxy: %w", err)
		}
		if p.Scheme != "socks5" {
			return fmt.Errorf("SocksProxy scheme must be socks5, got %q", p.Scheme)
		}
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("RequestTimeout must be positive, got %v", c.RequestTimeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("MaxRetries must not be negative, got %d", c.MaxRetries)
	}
	if c.BM25K1 < 0 {
		return fmt.Errorf("BM25K1 must not be negative, got %v", c.BM25K1)
	}
	if c.BM25B < 0 || c.BM25B > 1 {
		return fmt.Errorf("BM25B must be in [0, 1], got %v", c.BM25B)
	}
	if c.MaxDocumentSize <= 0 {
		return fmt.Errorf("MaxDocumentSize must be positive, got %d", c.MaxDocumentSize)
	}

	return nil
}
