// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds all server configuration. It is read once at startup and
// immutable afterwards.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// IPFS daemon
	IPFSAPIAddr string
	RPCTimeout  time.Duration

	// MFS namespace the server is confined to.
	MFSRoot string

	// URL prefix the WebDAV handler is mounted under.
	DavPrefix string
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:  envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr: envOr("METRICS_ADDR", ":9090"),
		LogLevel:    envOr("LOG_LEVEL", "info"),
		LogFormat:   envOr("LOG_FORMAT", "json"),
		IPFSAPIAddr: envOr("IPFS_API_ADDR", "localhost:5001"),
		RPCTimeout:  envDuration("RPC_TIMEOUT", 30*time.Second),
		MFSRoot:     envOr("MFS_ROOT", "/"),
		DavPrefix:   envOr("DAV_PREFIX", ""),
	}

	if !strings.HasPrefix(cfg.MFSRoot, "/") {
		return nil, fmt.Errorf("MFS_ROOT must be absolute, got %q", cfg.MFSRoot)
	}
	for _, seg := range strings.Split(cfg.MFSRoot, "/") {
		if seg == ".." {
			return nil, fmt.Errorf("MFS_ROOT must not contain parent segments, got %q", cfg.MFSRoot)
		}
	}
	if cfg.DavPrefix != "" && !strings.HasPrefix(cfg.DavPrefix, "/") {
		return nil, fmt.Errorf("DAV_PREFIX must start with /, got %q", cfg.DavPrefix)
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
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
