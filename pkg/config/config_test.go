package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config invalid: %v", err)
	}
	if cfg.CacheCapacity != DefaultCacheCapacity {
		t.Errorf("Expected cache capacity %d, got %d", DefaultCacheCapacity, cfg.CacheCapacity)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gatekeepr.yaml")
	content := `
client_socket_path: /tmp/gk.sock
admin_socket_path: /tmp/gk-admin.sock
database_dir: /tmp/gk-db
cache_capacity: 42
log_level: debug
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ClientSocketPath != "/tmp/gk.sock" {
		t.Errorf("Unexpected client socket path %q", cfg.ClientSocketPath)
	}
	if cfg.CacheCapacity != 42 {
		t.Errorf("Expected capacity 42, got %d", cfg.CacheCapacity)
	}
	// Unset fields keep their defaults
	if cfg.MonitorBufferSize != DefaultMonitorBufferSize {
		t.Errorf("Expected default monitor buffer, got %d", cfg.MonitorBufferSize)
	}
}

func TestLoadRejectsSameSockets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gatekeepr.yaml")
	content := `
client_socket_path: /tmp/same.sock
admin_socket_path: /tmp/same.sock
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if _, err := Load(path); !errors.IsErrorCode(err, errors.ErrInvalidConfig) {
		t.Errorf("Expected invalid-config error, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/gatekeepr.yaml"); !errors.IsErrorCode(err, errors.ErrInvalidConfig) {
		t.Errorf("Expected invalid-config error, got %v", err)
	}
}
