// Package config loads the daemon's configuration: compiled-in defaults,
// overridden by an optional YAML file, overridden by RHEMA_-prefixed
// environment variables, overridden by CLI flags applied last by the
// caller (see cmd/rhemad). Unknown file keys and out-of-range values are
// rejected rather than silently ignored.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/fugue-ai/rhema/internal/rerrors"
)

// DaemonConfig controls the daemon process itself and its MCP listeners'
// shared resource limits.
type DaemonConfig struct {
	Host               string `yaml:"host" env:"RHEMA_DAEMON_HOST"`
	Port               int    `yaml:"port" env:"RHEMA_DAEMON_PORT"`
	UnixSocket         string `yaml:"unix_socket" env:"RHEMA_DAEMON_UNIX_SOCKET"`
	Workers            int    `yaml:"workers" env:"RHEMA_DAEMON_WORKERS"`
	MaxConnections     int    `yaml:"max_connections" env:"RHEMA_DAEMON_MAX_CONNECTIONS"`
	ConnectionTimeoutS int    `yaml:"connection_timeout_s" env:"RHEMA_DAEMON_CONNECTION_TIMEOUT_S"`
	LogLevel           string `yaml:"log_level" env:"RHEMA_DAEMON_LOG_LEVEL"`
	LogFormat          string `yaml:"log_format" env:"RHEMA_DAEMON_LOG_FORMAT"`
}

// CacheConfig controls the multi-tier cache.
type CacheConfig struct {
	Type         string `yaml:"type" env:"RHEMA_CACHE_TYPE"`
	MaxSizeBytes int64  `yaml:"max_size_bytes" env:"RHEMA_CACHE_MAX_SIZE_BYTES"`
	TTLS         int    `yaml:"ttl_s" env:"RHEMA_CACHE_TTL_S"`
	Eviction     string `yaml:"eviction" env:"RHEMA_CACHE_EVICTION"`
}

// SecurityConfig controls MCP auth, CORS and rate limiting.
type SecurityConfig struct {
	AuthRequired      bool     `yaml:"auth_required" env:"RHEMA_SECURITY_AUTH_REQUIRED"`
	APIKey            string   `yaml:"api_key" env:"RHEMA_SECURITY_API_KEY"`
	AllowedOrigins    []string `yaml:"allowed_origins" env:"RHEMA_SECURITY_ALLOWED_ORIGINS"`
	RateLimitRequests int      `yaml:"rate_limit_requests" env:"RHEMA_SECURITY_RATE_LIMIT_REQUESTS"`
	RateLimitWindowS  int      `yaml:"rate_limit_window_s" env:"RHEMA_SECURITY_RATE_LIMIT_WINDOW_S"`
}

// MCPConfig toggles which MCP transports the daemon exposes.
type MCPConfig struct {
	EnableWebsocket  bool `yaml:"enable_websocket" env:"RHEMA_MCP_ENABLE_WEBSOCKET"`
	EnableHTTP       bool `yaml:"enable_http" env:"RHEMA_MCP_ENABLE_HTTP"`
	EnableUnixSocket bool `yaml:"enable_unix_socket" env:"RHEMA_MCP_ENABLE_UNIX_SOCKET"`
}

// WatcherConfig controls the filesystem watcher that invalidates cache
// entries and re-validates context documents on change.
type WatcherConfig struct {
	Enabled     bool     `yaml:"enabled" env:"RHEMA_WATCHER_ENABLED"`
	WatchDirs   []string `yaml:"watch_dirs" env:"RHEMA_WATCHER_WATCH_DIRS"`
	DebounceMs  int      `yaml:"debounce_ms" env:"RHEMA_WATCHER_DEBOUNCE_MS"`
}

// KernelConfig exposes the coordination kernel's bounded-liveness knobs
// (§5): every one of these must have a finite default so no operation or
// agent can block indefinitely.
type KernelConfig struct {
	MaxConcurrentAgents      int `yaml:"max_concurrent_agents" env:"RHEMA_KERNEL_MAX_CONCURRENT_AGENTS"`
	MaxBlockTimeS            int `yaml:"max_block_time_s" env:"RHEMA_KERNEL_MAX_BLOCK_TIME_S"`
	MaxRetryAttempts         int `yaml:"max_retry_attempts" env:"RHEMA_KERNEL_MAX_RETRY_ATTEMPTS"`
	HeartbeatTimeoutS        int `yaml:"heartbeat_timeout_s" env:"RHEMA_KERNEL_HEARTBEAT_TIMEOUT_S"`
	SafetyValidationTimeoutS int `yaml:"safety_validation_timeout_s" env:"RHEMA_KERNEL_SAFETY_VALIDATION_TIMEOUT_S"`
	MaxScopeDepth            int `yaml:"max_scope_depth" env:"RHEMA_KERNEL_MAX_SCOPE_DEPTH"`
}

// Config is the full daemon configuration surface.
type Config struct {
	Env      Environment
	Daemon   DaemonConfig   `yaml:"daemon"`
	Cache    CacheConfig    `yaml:"cache"`
	Security SecurityConfig `yaml:"security"`
	MCP      MCPConfig      `yaml:"mcp"`
	Watcher  WatcherConfig  `yaml:"watcher"`
	Kernel   KernelConfig   `yaml:"kernel"`
}

// Defaults returns the compiled-in default configuration.
func Defaults() *Config {
	return &Config{
		Env: Env(),
		Daemon: DaemonConfig{
			Host:               "127.0.0.1",
			Port:               7431,
			Workers:            4,
			MaxConnections:     256,
			ConnectionTimeoutS: 30,
			LogLevel:           "info",
			LogFormat:          "text",
		},
		Cache: CacheConfig{
			Type:         "memory",
			MaxSizeBytes: 64 << 20,
			TTLS:         300,
			Eviction:     "lru",
		},
		Security: SecurityConfig{
			AuthRequired:      false,
			AllowedOrigins:    []string{"*"},
			RateLimitRequests: 100,
			RateLimitWindowS:  60,
		},
		MCP: MCPConfig{
			EnableWebsocket:  true,
			EnableHTTP:       true,
			EnableUnixSocket: true,
		},
		Watcher: WatcherConfig{
			Enabled:    true,
			DebounceMs: 200,
		},
		Kernel: KernelConfig{
			MaxConcurrentAgents:      32,
			MaxBlockTimeS:            30,
			MaxRetryAttempts:         5,
			HeartbeatTimeoutS:        15,
			SafetyValidationTimeoutS: 2,
			MaxScopeDepth:            64,
		},
	}
}

// knownKeys enumerates every top-level and nested key the file loader
// recognizes. A file key outside this set is a SchemaViolation.
var knownKeys = map[string]map[string]bool{
	"daemon": {
		"host": true, "port": true, "unix_socket": true, "workers": true,
		"max_connections": true, "connection_timeout_s": true,
		"log_level": true, "log_format": true,
	},
	"cache": {
		"type": true, "max_size_bytes": true, "ttl_s": true, "eviction": true,
	},
	"security": {
		"auth_required": true, "api_key": true, "allowed_origins": true,
		"rate_limit_requests": true, "rate_limit_window_s": true,
	},
	"mcp": {
		"enable_websocket": true, "enable_http": true, "enable_unix_socket": true,
	},
	"watcher": {
		"enabled": true, "watch_dirs": true, "debounce_ms": true,
	},
	"kernel": {
		"max_concurrent_agents": true, "max_block_time_s": true,
		"max_retry_attempts": true, "heartbeat_timeout_s": true,
		"safety_validation_timeout_s": true, "max_scope_depth": true,
	},
}

// Load builds a Config by layering, in increasing precedence: compiled-in
// defaults, an optional .env file for the process environment, the YAML
// config file at path (if non-empty and present), then RHEMA_-prefixed
// environment variables. CLI flags are applied by the caller afterward via
// ApplyOverrides. Returns a *rerrors.Error with Code SchemaViolation on any
// rejected key or value, ParseError on malformed YAML, and IOError when the
// file exists but cannot be read.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // optional; missing .env is not an error

	cfg := Defaults()

	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := envdecode.Decode(cfg); err != nil {
		// envdecode errors when none of the tagged fields are set in the
		// environment; treat that as "no overrides" rather than a failure.
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, rerrors.Wrap(rerrors.CodeSchemaViolation, "decoding environment overrides", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return rerrors.Wrap(rerrors.CodeIOError, "reading config file", err)
	}

	var tree map[string]map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return rerrors.Wrap(rerrors.CodeParseError, "parsing config file", err)
	}

	for section, fields := range tree {
		allowed, ok := knownKeys[section]
		if !ok {
			return rerrors.New(rerrors.CodeSchemaViolation, fmt.Sprintf("unknown config section %q", section)).
				WithDetails("section", section)
		}
		for key := range fields {
			if !allowed[key] {
				return rerrors.New(rerrors.CodeSchemaViolation, fmt.Sprintf("unknown config option %s.%s", section, key)).
					WithDetails("section", section).WithDetails("key", key)
			}
		}
	}

	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return rerrors.Wrap(rerrors.CodeParseError, "parsing config file", err)
	}

	return nil
}

// Validate rejects out-of-range values. It never mutates cfg.
func (c *Config) Validate() error {
	if c.Daemon.Port < 0 || c.Daemon.Port > 65535 {
		return rerrors.New(rerrors.CodeSchemaViolation, "daemon.port out of range").WithDetails("port", c.Daemon.Port)
	}
	if c.Daemon.Workers < 1 {
		return rerrors.New(rerrors.CodeSchemaViolation, "daemon.workers must be >= 1").WithDetails("workers", c.Daemon.Workers)
	}
	if c.Daemon.MaxConnections < 1 {
		return rerrors.New(rerrors.CodeSchemaViolation, "daemon.max_connections must be >= 1")
	}
	switch strings.ToLower(c.Daemon.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return rerrors.New(rerrors.CodeSchemaViolation, "daemon.log_level invalid").WithDetails("log_level", c.Daemon.LogLevel)
	}

	switch strings.ToLower(c.Cache.Type) {
	case "memory", "disk", "hybrid":
	default:
		return rerrors.New(rerrors.CodeSchemaViolation, "cache.type invalid").WithDetails("type", c.Cache.Type)
	}
	switch strings.ToLower(c.Cache.Eviction) {
	case "lru", "lfu", "adaptive":
	default:
		return rerrors.New(rerrors.CodeSchemaViolation, "cache.eviction invalid").WithDetails("eviction", c.Cache.Eviction)
	}
	if c.Cache.MaxSizeBytes < 0 {
		return rerrors.New(rerrors.CodeSchemaViolation, "cache.max_size_bytes must be >= 0")
	}
	if c.Cache.TTLS < 0 {
		return rerrors.New(rerrors.CodeSchemaViolation, "cache.ttl_s must be >= 0")
	}

	if c.Security.RateLimitRequests < 0 {
		return rerrors.New(rerrors.CodeSchemaViolation, "security.rate_limit_requests must be >= 0")
	}
	if c.Security.RateLimitWindowS < 0 {
		return rerrors.New(rerrors.CodeSchemaViolation, "security.rate_limit_window_s must be >= 0")
	}
	if c.Security.AuthRequired && c.Security.APIKey == "" {
		return rerrors.New(rerrors.CodeSchemaViolation, "security.api_key is required when security.auth_required is true")
	}

	if !c.MCP.EnableWebsocket && !c.MCP.EnableHTTP && !c.MCP.EnableUnixSocket {
		return rerrors.New(rerrors.CodeSchemaViolation, "mcp: at least one transport must be enabled")
	}

	if c.Watcher.DebounceMs < 0 {
		return rerrors.New(rerrors.CodeSchemaViolation, "watcher.debounce_ms must be >= 0")
	}

	if c.Kernel.MaxConcurrentAgents < 1 {
		return rerrors.New(rerrors.CodeSchemaViolation, "kernel.max_concurrent_agents must be >= 1")
	}
	if c.Kernel.MaxBlockTimeS < 1 {
		return rerrors.New(rerrors.CodeSchemaViolation, "kernel.max_block_time_s must be >= 1")
	}
	if c.Kernel.MaxRetryAttempts < 0 {
		return rerrors.New(rerrors.CodeSchemaViolation, "kernel.max_retry_attempts must be >= 0")
	}
	if c.Kernel.HeartbeatTimeoutS < 1 {
		return rerrors.New(rerrors.CodeSchemaViolation, "kernel.heartbeat_timeout_s must be >= 1")
	}
	if c.Kernel.MaxScopeDepth < 1 {
		return rerrors.New(rerrors.CodeSchemaViolation, "kernel.max_scope_depth must be >= 1")
	}

	return nil
}

// ApplyOverrides applies CLI flag overrides, the highest-precedence layer.
// Only non-empty / non-zero values in overrides are applied; zero values
// mean "flag not passed".
func (c *Config) ApplyOverrides(overrides CLIOverrides) {
	if overrides.Host != "" {
		c.Daemon.Host = overrides.Host
	}
	if overrides.Port != 0 {
		c.Daemon.Port = overrides.Port
	}
	if overrides.UnixSocket != "" {
		c.Daemon.UnixSocket = overrides.UnixSocket
	}
	if overrides.LogLevel != "" {
		c.Daemon.LogLevel = overrides.LogLevel
	}
}

// CLIOverrides holds the subset of config reachable via command-line flags.
type CLIOverrides struct {
	Host       string
	Port       int
	UnixSocket string
	LogLevel   string
}
