// Package config handles configuration loading for parley.
//
// # Configuration File
//
// The CLI looks for the file in this order:
//
//  1. Path from the PARLEY_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/parley/parley.yaml
//  3. ~/.config/parley/parley.yaml
//
// Files ending in .toml are decoded as TOML; everything else is YAML. Both
// formats use the same keys.
//
// # Environment Variable Expansion
//
// Values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${PARLEY_JWT_SECRET}"
//
// PARLEY_DB_PATH, when set, replaces database.path.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
//	database:
//	  path: "/var/lib/parley/parley.db"
//
//	auth:
//	  jwt_secret: "${PARLEY_JWT_SECRET}"  # at least 32 bytes
//	  token_ttl: "24h"                    # lifetime of CLI-minted tokens
//
//	realtime:
//	  write_timeout: "10s"
//	  pong_timeout: "60s"
//	  ping_interval: "54s"                # must be shorter than pong_timeout
//	  send_buffer: 64                     # queued frames per connection
//	  max_message_size: 65536
//	  allowed_origins: ["https://chat.example.com"]
//
//	relay:
//	  nats_url: "nats://127.0.0.1:4222"   # empty keeps fan-out in-process
//	  subject_prefix: "parley.group"
//
//	tailscale:
//	  enabled: false
//	  hostname: "parley"
//	  auth_key: "${TS_AUTHKEY}"
//	  https: true
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// Durations use time.ParseDuration syntax. Load validates the result and
// reports the first problem it finds.
package config
