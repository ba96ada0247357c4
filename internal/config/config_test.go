package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Daemon.Host != "127.0.0.1" {
		t.Errorf("expected default host 127.0.0.1, got %s", cfg.Daemon.Host)
	}
	if cfg.Daemon.Port != 7431 {
		t.Errorf("expected default port 7431, got %d", cfg.Daemon.Port)
	}
	if cfg.Cache.Type != "memory" {
		t.Errorf("expected default cache type memory, got %s", cfg.Cache.Type)
	}
	if cfg.Cache.Eviction != "lru" {
		t.Errorf("expected default eviction lru, got %s", cfg.Cache.Eviction)
	}
	if !cfg.MCP.EnableHTTP || !cfg.MCP.EnableWebsocket || !cfg.MCP.EnableUnixSocket {
		t.Error("expected all MCP transports enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate cleanly: %v", err)
	}
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") should succeed on defaults: %v", err)
	}
	if cfg.Daemon.Port != 7431 {
		t.Errorf("expected default port, got %d", cfg.Daemon.Port)
	}
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load("/nonexistent/rhema.yaml")
	if err != nil {
		t.Fatalf("missing config file should fall back to defaults: %v", err)
	}
	if cfg.Daemon.Port != 7431 {
		t.Errorf("expected default port, got %d", cfg.Daemon.Port)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rhema.yaml")
	content := `
daemon:
  host: "0.0.0.0"
  port: 9000
cache:
  type: disk
  eviction: lfu
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Daemon.Host != "0.0.0.0" {
		t.Errorf("expected host override, got %s", cfg.Daemon.Host)
	}
	if cfg.Daemon.Port != 9000 {
		t.Errorf("expected port override, got %d", cfg.Daemon.Port)
	}
	if cfg.Cache.Type != "disk" {
		t.Errorf("expected cache type override, got %s", cfg.Cache.Type)
	}
	if cfg.Cache.Eviction != "lfu" {
		t.Errorf("expected eviction override, got %s", cfg.Cache.Eviction)
	}
}

func TestLoad_UnknownSectionRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rhema.yaml")
	content := "bogus:\n  thing: 1\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected rejection for unknown config section")
	}
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rhema.yaml")
	content := "daemon:\n  bogus_option: 1\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected rejection for unknown config key")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rhema.yaml")
	if err := os.WriteFile(path, []byte("{not: valid: yaml:"), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error for invalid YAML")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("RHEMA_DAEMON_PORT", "5050")
	t.Setenv("RHEMA_DAEMON_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Daemon.Port != 5050 {
		t.Errorf("expected env override port 5050, got %d", cfg.Daemon.Port)
	}
	if cfg.Daemon.LogLevel != "debug" {
		t.Errorf("expected env override log level debug, got %s", cfg.Daemon.LogLevel)
	}
}

func TestValidate_RejectsOutOfRangePort(t *testing.T) {
	cfg := Defaults()
	cfg.Daemon.Port = 99999
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected rejection of out-of-range port")
	}
}

func TestValidate_RejectsInvalidLogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.Daemon.LogLevel = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected rejection of invalid log level")
	}
}

func TestValidate_RejectsInvalidCacheType(t *testing.T) {
	cfg := Defaults()
	cfg.Cache.Type = "nvme"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected rejection of invalid cache type")
	}
}

func TestValidate_RequiresAPIKeyWhenAuthRequired(t *testing.T) {
	cfg := Defaults()
	cfg.Security.AuthRequired = true
	cfg.Security.APIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected rejection when auth_required is true without an api_key")
	}
}

func TestValidate_RejectsAllTransportsDisabled(t *testing.T) {
	cfg := Defaults()
	cfg.MCP.EnableHTTP = false
	cfg.MCP.EnableWebsocket = false
	cfg.MCP.EnableUnixSocket = false
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected rejection when no MCP transport is enabled")
	}
}

func TestValidate_RejectsZeroMaxConcurrentAgents(t *testing.T) {
	cfg := Defaults()
	cfg.Kernel.MaxConcurrentAgents = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected rejection of kernel.max_concurrent_agents=0")
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := Defaults()
	cfg.ApplyOverrides(CLIOverrides{Port: 6000, LogLevel: "warn"})

	if cfg.Daemon.Port != 6000 {
		t.Errorf("expected CLI override port 6000, got %d", cfg.Daemon.Port)
	}
	if cfg.Daemon.LogLevel != "warn" {
		t.Errorf("expected CLI override log level warn, got %s", cfg.Daemon.LogLevel)
	}
	if cfg.Daemon.Host != "127.0.0.1" {
		t.Errorf("unset override fields should leave defaults intact, got host %s", cfg.Daemon.Host)
	}
}
