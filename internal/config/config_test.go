// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadServerConfig_Defaults(t *testing.T) {
	cfgPath := writeTempConfig(t, "server:\n  listen: \"\"\n")
	cfg, err := LoadServerConfig(cfgPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Listen != "0.0.0.0:6379" {
		t.Errorf("expected default listen 0.0.0.0:6379, got %q", cfg.Server.Listen)
	}
	if cfg.Server.MaxConnections != 250 {
		t.Errorf("expected default max_connections 250, got %d", cfg.Server.MaxConnections)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("expected default logging info/json, got %q/%q", cfg.Logging.Level, cfg.Logging.Format)
	}
	if cfg.Housekeeping.Schedule != "@every 1m" {
		t.Errorf("expected default housekeeping schedule, got %q", cfg.Housekeeping.Schedule)
	}
	if cfg.Dump.Directory != "./dumps" || cfg.Dump.Compression != "zstd" {
		t.Errorf("expected default dump settings, got %+v", cfg.Dump)
	}
}

func TestLoadServerConfig_CustomListenAndMaxConnections(t *testing.T) {
	content := `
server:
  listen: "127.0.0.1:7000"
  max_connections: 10
`
	cfgPath := writeTempConfig(t, content)
	cfg, err := LoadServerConfig(cfgPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Listen != "127.0.0.1:7000" {
		t.Errorf("got %q", cfg.Server.Listen)
	}
	if cfg.Server.MaxConnections != 10 {
		t.Errorf("got %d", cfg.Server.MaxConnections)
	}
}

func TestLoadServerConfig_ThrottleBps(t *testing.T) {
	content := `
server:
  throttle_bps: "1mb"
`
	cfgPath := writeTempConfig(t, content)
	cfg, err := LoadServerConfig(cfgPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ThrottleBpsRaw != 1024*1024 {
		t.Errorf("expected 1mb in bytes, got %d", cfg.Server.ThrottleBpsRaw)
	}
}

func TestLoadServerConfig_ThrottleBpsInvalid(t *testing.T) {
	cfgPath := writeTempConfig(t, "server:\n  throttle_bps: \"not-a-size\"\n")
	if _, err := LoadServerConfig(cfgPath); err == nil {
		t.Fatal("expected error for invalid throttle_bps")
	}
}

func TestLoadServerConfig_TLSEnabledRequiresCertAndKey(t *testing.T) {
	cfgPath := writeTempConfig(t, "tls:\n  enabled: true\n")
	if _, err := LoadServerConfig(cfgPath); err == nil {
		t.Fatal("expected error for tls.enabled without cert/key")
	}

	content := `
tls:
  enabled: true
  server_cert: /tmp/cert.pem
  server_key: /tmp/key.pem
`
	cfgPath = writeTempConfig(t, content)
	cfg, err := LoadServerConfig(cfgPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.TLS.Enabled {
		t.Error("expected tls.enabled true")
	}
}

func TestLoadServerConfig_InvalidDumpCompression(t *testing.T) {
	cfgPath := writeTempConfig(t, "dump:\n  compression: \"lz4\"\n")
	if _, err := LoadServerConfig(cfgPath); err == nil {
		t.Fatal("expected error for unsupported dump.compression")
	}
}

func TestLoadServerConfig_ArchiveEnabledRequiresBucketAndRegion(t *testing.T) {
	cfgPath := writeTempConfig(t, "archive:\n  enabled: true\n")
	if _, err := LoadServerConfig(cfgPath); err == nil {
		t.Fatal("expected error for archive.enabled without bucket/region")
	}

	content := `
archive:
  enabled: true
  bucket: my-bucket
  region: us-east-1
`
	cfgPath = writeTempConfig(t, content)
	cfg, err := LoadServerConfig(cfgPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Archive.Bucket != "my-bucket" || cfg.Archive.Region != "us-east-1" {
		t.Errorf("got %+v", cfg.Archive)
	}
}

func TestHousekeepingInterval_EveryForm(t *testing.T) {
	c := HousekeepingConfig{Schedule: "@every 30s"}
	d, ok := c.HousekeepingInterval()
	if !ok || d != 30*time.Second {
		t.Fatalf("got %v, %v", d, ok)
	}

	c = HousekeepingConfig{Schedule: "0 2 * * *"}
	if _, ok := c.HousekeepingInterval(); ok {
		t.Fatal("expected false for a standard cron expression")
	}
}

func TestLoadServerConfig_FileNotFound(t *testing.T) {
	if _, err := LoadServerConfig("/nonexistent/path/server.yaml"); err == nil {
		t.Fatal("expected error for non-existent file")
	}
}

func TestLoadServerConfig_InvalidYAML(t *testing.T) {
	cfgPath := writeTempConfig(t, "{{invalid yaml}}")
	if _, err := LoadServerConfig(cfgPath); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}
