// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, duration parsing and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func validConfig() Config {
	return Config{
		Server:   ServerConfig{HTTPAddr: "127.0.0.1:8080"},
		Database: DatabaseConfig{Path: "./test.db"},
		Auth:     AuthConfig{JWTSecret: testSecret},
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, "parley.yaml", `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "./test.db"

auth:
  jwt_secret: "`+testSecret+`"
  token_ttl: "2h"

realtime:
  write_timeout: "5s"
  pong_timeout: "30s"
  ping_interval: "20s"
  send_buffer: 32
  max_message_size: 4096
  allowed_origins:
    - "https://chat.example"

relay:
  nats_url: "nats://127.0.0.1:4222"
  subject_prefix: "chat.rooms"

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
  path: "/internal/metrics"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Auth.TokenTTL != 2*time.Hour {
		t.Errorf("Auth.TokenTTL = %v, want %v", cfg.Auth.TokenTTL, 2*time.Hour)
	}
	if cfg.Realtime.WriteTimeout != 5*time.Second {
		t.Errorf("Realtime.WriteTimeout = %v, want %v", cfg.Realtime.WriteTimeout, 5*time.Second)
	}
	if cfg.Realtime.PongTimeout != 30*time.Second {
		t.Errorf("Realtime.PongTimeout = %v, want %v", cfg.Realtime.PongTimeout, 30*time.Second)
	}
	if cfg.Realtime.PingInterval != 20*time.Second {
		t.Errorf("Realtime.PingInterval = %v, want %v", cfg.Realtime.PingInterval, 20*time.Second)
	}
	if cfg.Realtime.SendBuffer != 32 {
		t.Errorf("Realtime.SendBuffer = %d, want 32", cfg.Realtime.SendBuffer)
	}
	if cfg.Realtime.MaxMessageSize != 4096 {
		t.Errorf("Realtime.MaxMessageSize = %d, want 4096", cfg.Realtime.MaxMessageSize)
	}
	if len(cfg.Realtime.AllowedOrigins) != 1 || cfg.Realtime.AllowedOrigins[0] != "https://chat.example" {
		t.Errorf("Realtime.AllowedOrigins = %v, want [https://chat.example]", cfg.Realtime.AllowedOrigins)
	}
	if cfg.Relay.NATSURL != "nats://127.0.0.1:4222" {
		t.Errorf("Relay.NATSURL = %q", cfg.Relay.NATSURL)
	}
	if cfg.Relay.SubjectPrefix != "chat.rooms" {
		t.Errorf("Relay.SubjectPrefix = %q", cfg.Relay.SubjectPrefix)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want debug/json", cfg.Logging)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/internal/metrics" {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "parley.toml", `
[server]
http_addr = "127.0.0.1:9000"

[database]
path = "/var/lib/parley/parley.db"

[auth]
jwt_secret = "`+testSecret+`"

[realtime]
pong_timeout = "45s"
allowed_origins = ["*"]

[metrics]
enabled = true
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:9000" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "127.0.0.1:9000")
	}
	if cfg.Database.Path != "/var/lib/parley/parley.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Realtime.PongTimeout != 45*time.Second {
		t.Errorf("Realtime.PongTimeout = %v, want %v", cfg.Realtime.PongTimeout, 45*time.Second)
	}
	if len(cfg.Realtime.AllowedOrigins) != 1 || cfg.Realtime.AllowedOrigins[0] != "*" {
		t.Errorf("Realtime.AllowedOrigins = %v, want [*]", cfg.Realtime.AllowedOrigins)
	}
	if cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Metrics.Path = %q, want default %q", cfg.Metrics.Path, DefaultMetricsPath)
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, "parley.yaml", `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "`+testSecret+`"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.TokenTTL != DefaultTokenTTL {
		t.Errorf("Auth.TokenTTL = %v, want %v", cfg.Auth.TokenTTL, DefaultTokenTTL)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = true, want false")
	}
	if cfg.Relay.NATSURL != "" {
		t.Errorf("Relay.NATSURL = %q, want empty", cfg.Relay.NATSURL)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("PARLEY_TEST_SECRET", testSecret)
	t.Setenv("PARLEY_TEST_NATS", "nats://nats:4222")

	configPath := writeConfig(t, "parley.yaml", `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "${PARLEY_TEST_SECRET}"
relay:
  nats_url: "${PARLEY_TEST_NATS}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.JWTSecret != testSecret {
		t.Errorf("Auth.JWTSecret = %q, want expanded secret", cfg.Auth.JWTSecret)
	}
	if cfg.Relay.NATSURL != "nats://nats:4222" {
		t.Errorf("Relay.NATSURL = %q, want %q", cfg.Relay.NATSURL, "nats://nats:4222")
	}
}

func TestLoad_EnvVarExpansion_UnsetSecret(t *testing.T) {
	configPath := writeConfig(t, "parley.yaml", `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "${PARLEY_TEST_UNSET_SECRET}"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for empty secret, got nil")
	}
	if !strings.Contains(err.Error(), "auth.jwt_secret is required") {
		t.Errorf("Load() error = %q, want jwt_secret error", err.Error())
	}
}

func TestLoad_DBPathOverride(t *testing.T) {
	t.Setenv("PARLEY_DB_PATH", "/tmp/override.db")

	configPath := writeConfig(t, "parley.yaml", `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "`+testSecret+`"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/override.db")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/parley.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "parley.yaml", "server:\n  http_addr: [unclosed\n")

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid YAML, got nil")
	}
	if !strings.Contains(err.Error(), "parsing config file") {
		t.Errorf("Load() error = %q, want parse error", err.Error())
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	configPath := writeConfig(t, "parley.toml", "[server\nhttp_addr = 1\n")

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid TOML, got nil")
	}
	if !strings.Contains(err.Error(), "parsing config file") {
		t.Errorf("Load() error = %q, want parse error", err.Error())
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	tests := []struct {
		name  string
		field string
		yaml  string
	}{
		{"token ttl", "auth.token_ttl", "auth:\n  jwt_secret: \"" + testSecret + "\"\n  token_ttl: \"forever\"\n"},
		{"write timeout", "realtime.write_timeout", "auth:\n  jwt_secret: \"" + testSecret + "\"\nrealtime:\n  write_timeout: \"10\"\n"},
		{"pong timeout", "realtime.pong_timeout", "auth:\n  jwt_secret: \"" + testSecret + "\"\nrealtime:\n  pong_timeout: \"soon\"\n"},
		{"ping interval", "realtime.ping_interval", "auth:\n  jwt_secret: \"" + testSecret + "\"\nrealtime:\n  ping_interval: \"x1s\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, "parley.yaml", "server:\n  http_addr: \":8080\"\ndatabase:\n  path: \"./test.db\"\n"+tt.yaml)

			_, err := Load(configPath)
			if err == nil {
				t.Fatal("Load() expected error for invalid duration, got nil")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Load() error = %q, want mention of %s", err.Error(), tt.field)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("FOO", "bar")
	t.Setenv("BAZ", "qux")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "single env var", input: "${FOO}", expected: "bar"},
		{name: "env var with surrounding text", input: "prefix-${FOO}-suffix", expected: "prefix-bar-suffix"},
		{name: "multiple env vars", input: "${FOO}/${BAZ}", expected: "bar/qux"},
		{name: "no env vars", input: "no-vars-here", expected: "no-vars-here"},
		{name: "unset env var", input: "${UNSET_VAR}", expected: ""},
		{name: "empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := expandEnvVars(tt.input)
			if result != tt.expected {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(*Config)
		wantErrSubstr string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:          "missing http addr",
			mutate:        func(c *Config) { c.Server.HTTPAddr = "" },
			wantErrSubstr: "server.http_addr is required",
		},
		{
			name: "tailscale allows empty http addr",
			mutate: func(c *Config) {
				c.Server.HTTPAddr = ""
				c.Tailscale = TailscaleConfig{Enabled: true, Hostname: "parley"}
			},
		},
		{
			name:          "tailscale requires hostname",
			mutate:        func(c *Config) { c.Tailscale = TailscaleConfig{Enabled: true} },
			wantErrSubstr: "tailscale.hostname is required",
		},
		{
			name:          "missing database path",
			mutate:        func(c *Config) { c.Database.Path = "" },
			wantErrSubstr: "database.path is required",
		},
		{
			name:          "short secret",
			mutate:        func(c *Config) { c.Auth.JWTSecret = "short" },
			wantErrSubstr: "at least 32 bytes",
		},
		{
			name:          "negative ttl",
			mutate:        func(c *Config) { c.Auth.TokenTTL = -time.Second },
			wantErrSubstr: "auth.token_ttl",
		},
		{
			name:          "negative send buffer",
			mutate:        func(c *Config) { c.Realtime.SendBuffer = -1 },
			wantErrSubstr: "realtime.send_buffer",
		},
		{
			name:          "negative message size",
			mutate:        func(c *Config) { c.Realtime.MaxMessageSize = -1 },
			wantErrSubstr: "realtime.max_message_size",
		},
		{
			name: "ping not shorter than pong",
			mutate: func(c *Config) {
				c.Realtime.PingInterval = time.Minute
				c.Realtime.PongTimeout = time.Minute
			},
			wantErrSubstr: "realtime.ping_interval",
		},
		{
			name:          "wildcard subject prefix",
			mutate:        func(c *Config) { c.Relay.SubjectPrefix = "parley.>" },
			wantErrSubstr: "relay.subject_prefix",
		},
		{
			name:          "unknown log format",
			mutate:        func(c *Config) { c.Logging.Format = "xml" },
			wantErrSubstr: "logging.format",
		},
		{
			name: "relative metrics path",
			mutate: func(c *Config) {
				c.Metrics = MetricsConfig{Enabled: true, Path: "metrics"}
			},
			wantErrSubstr: "metrics.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErrSubstr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErrSubstr)
			}
			if !strings.Contains(err.Error(), tt.wantErrSubstr) {
				t.Errorf("Validate() error = %q, want error containing %q", err.Error(), tt.wantErrSubstr)
			}
		})
	}
}
