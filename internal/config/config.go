// Package config provides hierarchical configuration loading for WireChat.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the client and the reference
// server.
type Config struct {
	Client    Client    `yaml:"client"`
	Server    Server    `yaml:"server"`
	Postgres  Postgres  `yaml:"postgres"`
	NATS      NATS      `yaml:"nats"`
	Cache     Cache     `yaml:"cache"`
	Breaker   Breaker   `yaml:"breaker"`
	Logging   Logging   `yaml:"logging"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Client holds connection/session configuration for the chat client.
type Client struct {
	URL           string        `yaml:"url"`            // WebSocket endpoint, e.g. ws://localhost:8080/ws
	DialTimeout   time.Duration `yaml:"dial_timeout"`   // Per-attempt dial timeout
	MaxRetries    int           `yaml:"max_retries"`    // Reconnect attempts before giving up
	RetryInterval time.Duration `yaml:"retry_interval"` // Fixed delay between reconnect attempts
	Heartbeat     time.Duration `yaml:"heartbeat"`      // Keepalive ping interval
	Provider      string        `yaml:"provider"`       // Default completion provider
	Model         string        `yaml:"model"`          // Default completion model
}

// Server holds HTTP server configuration for the reference server.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Postgres holds PostgreSQL connection configuration. An empty DSN selects
// the in-memory store.
type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	HealthCheck     time.Duration `yaml:"health_check"`
}

// NATS holds NATS JetStream configuration. An empty URL selects the
// in-process queue.
type NATS struct {
	URL string `yaml:"url"`
}

// Cache holds conversation-directory cache configuration.
type Cache struct {
	MaxSizeMB int64         `yaml:"max_size_mb"`
	ListTTL   time.Duration `yaml:"list_ttl"`
}

// Breaker holds circuit breaker configuration for queue publishes.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Telemetry holds OpenTelemetry export configuration.
type Telemetry struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"` // OTLP gRPC endpoint, e.g. localhost:4317
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Client: Client{
			URL:           "ws://localhost:8080/ws",
			DialTimeout:   10 * time.Second,
			MaxRetries:    5,
			RetryInterval: 2 * time.Second,
			Heartbeat:     15 * time.Second,
			Provider:      "openai",
			Model:         "gpt-4o",
		},
		Server: Server{
			Port:       "8080",
			CORSOrigin: "http://localhost:3000",
		},
		Postgres: Postgres{
			MaxConns:        10,
			MinConns:        2,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 10 * time.Minute,
			HealthCheck:     time.Minute,
		},
		Cache: Cache{
			MaxSizeMB: 32,
			ListTTL:   30 * time.Second,
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Logging: Logging{
			Level:   "info",
			Service: "wirechat",
		},
		Telemetry: Telemetry{
			Endpoint: "localhost:4317",
		},
	}
}
