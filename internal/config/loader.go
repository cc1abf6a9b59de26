package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "wirechat.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Client.URL, "WIRECHAT_URL")
	setDuration(&cfg.Client.DialTimeout, "WIRECHAT_DIAL_TIMEOUT")
	setInt(&cfg.Client.MaxRetries, "WIRECHAT_MAX_RETRIES")
	setDuration(&cfg.Client.RetryInterval, "WIRECHAT_RETRY_INTERVAL")
	setDuration(&cfg.Client.Heartbeat, "WIRECHAT_HEARTBEAT")
	setString(&cfg.Client.Provider, "WIRECHAT_PROVIDER")
	setString(&cfg.Client.Model, "WIRECHAT_MODEL")

	setString(&cfg.Server.Port, "WIRECHAT_PORT")
	setString(&cfg.Server.CORSOrigin, "WIRECHAT_CORS_ORIGIN")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "WIRECHAT_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "WIRECHAT_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "WIRECHAT_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "WIRECHAT_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "WIRECHAT_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")

	setInt64(&cfg.Cache.MaxSizeMB, "WIRECHAT_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.ListTTL, "WIRECHAT_CACHE_LIST_TTL")

	setInt(&cfg.Breaker.MaxFailures, "WIRECHAT_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "WIRECHAT_BREAKER_TIMEOUT")

	setString(&cfg.Logging.Level, "WIRECHAT_LOG_LEVEL")
	setString(&cfg.Logging.Service, "WIRECHAT_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "WIRECHAT_LOG_ASYNC")

	setBool(&cfg.Telemetry.Enabled, "WIRECHAT_OTEL_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "WIRECHAT_OTEL_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Client.URL == "" {
		return errors.New("client.url is required")
	}
	if cfg.Client.MaxRetries < 0 {
		return errors.New("client.max_retries must be >= 0")
	}
	if cfg.Client.RetryInterval <= 0 {
		return errors.New("client.retry_interval must be > 0")
	}
	if cfg.Client.Heartbeat <= 0 {
		return errors.New("client.heartbeat must be > 0")
	}
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
