// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package config loads and validates the server's YAML configuration file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig is the full configuration for the burrow-server binary.
type ServerConfig struct {
	Server       ServerListen       `yaml:"server"`
	TLS          TLSServer          `yaml:"tls"`
	Logging      LoggingInfo        `yaml:"logging"`
	Housekeeping HousekeepingConfig `yaml:"housekeeping"`
	Dump         DumpConfig         `yaml:"dump"`
	Archive      ArchiveConfig      `yaml:"archive"`
}

// ServerListen controls the TCP accept loop.
type ServerListen struct {
	Listen         string `yaml:"listen"`          // default: "0.0.0.0:6379"
	MaxConnections int    `yaml:"max_connections"` // default: 250
	ThrottleBps    string `yaml:"throttle_bps"`    // per-connection write rate cap; "" disables
	ThrottleBpsRaw int64  `yaml:"-"`
}

// TLSServer optionally wraps the listener in TLS. When Enabled is false the
// server listens in plaintext, which is the default so the service behaves
// like a stock Redis-compatible port out of the box.
type TLSServer struct {
	Enabled    bool   `yaml:"enabled"`
	CACert     string `yaml:"ca_cert"`     // optional: enables mutual TLS when set
	ServerCert string `yaml:"server_cert"`
	ServerKey  string `yaml:"server_key"`
}

// LoggingInfo contains logging configuration.
type LoggingInfo struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// HousekeepingConfig schedules the periodic read-only keyspace sweep that
// reports compaction statistics.
type HousekeepingConfig struct {
	Schedule string `yaml:"schedule"` // cron expression, default "@every 1m"
}

// DumpConfig controls point-in-time keyspace export.
type DumpConfig struct {
	Directory   string `yaml:"directory"`   // default: "./dumps"
	Compression string `yaml:"compression"` // gzip|zstd (default: zstd)
}

// ArchiveConfig controls uploading dump archives to object storage.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
	Region  string `yaml:"region"`
	Prefix  string `yaml:"prefix"`
}

// LoadServerConfig reads and validates the YAML configuration file at path.
func LoadServerConfig(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading server config: %w", err)
	}

	var cfg ServerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing server config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating server config: %w", err)
	}

	return &cfg, nil
}

func (c *ServerConfig) validate() error {
	if c.Server.Listen == "" {
		c.Server.Listen = "0.0.0.0:6379"
	}
	if c.Server.MaxConnections <= 0 {
		c.Server.MaxConnections = 250
	}
	if c.Server.ThrottleBps != "" {
		parsed, err := ParseByteSize(c.Server.ThrottleBps)
		if err != nil {
			return fmt.Errorf("server.throttle_bps: %w", err)
		}
		c.Server.ThrottleBpsRaw = parsed
	}

	if c.TLS.Enabled {
		if c.TLS.ServerCert == "" {
			return fmt.Errorf("tls.server_cert is required when tls.enabled is true")
		}
		if c.TLS.ServerKey == "" {
			return fmt.Errorf("tls.server_key is required when tls.enabled is true")
		}
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Housekeeping.Schedule == "" {
		c.Housekeeping.Schedule = "@every 1m"
	}

	if c.Dump.Directory == "" {
		c.Dump.Directory = "./dumps"
	}
	if c.Dump.Compression == "" {
		c.Dump.Compression = "zstd"
	}
	c.Dump.Compression = strings.ToLower(strings.TrimSpace(c.Dump.Compression))
	if c.Dump.Compression != "gzip" && c.Dump.Compression != "zstd" {
		return fmt.Errorf("dump.compression must be gzip or zstd, got %q", c.Dump.Compression)
	}

	if c.Archive.Enabled {
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required when archive.enabled is true")
		}
		if c.Archive.Region == "" {
			return fmt.Errorf("archive.region is required when archive.enabled is true")
		}
	}

	return nil
}

// HousekeepingInterval reports whether the configured schedule is a simple
// "@every <duration>" entry, and if so its interval. robfig/cron also
// understands this form natively; this is only used by callers that want
// to log the plain interval without parsing a cron expression themselves.
func (c HousekeepingConfig) HousekeepingInterval() (time.Duration, bool) {
	const prefix = "@every "
	if !strings.HasPrefix(c.Schedule, prefix) {
		return 0, false
	}
	d, err := time.ParseDuration(strings.TrimPrefix(c.Schedule, prefix))
	if err != nil {
		return 0, false
	}
	return d, true
}
