package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Client.URL != "ws://localhost:8080/ws" {
		t.Errorf("expected default client url, got %s", cfg.Client.URL)
	}
	if cfg.Client.MaxRetries != 5 {
		t.Errorf("expected max_retries 5, got %d", cfg.Client.MaxRetries)
	}
	if cfg.Client.RetryInterval != 2*time.Second {
		t.Errorf("expected retry_interval 2s, got %v", cfg.Client.RetryInterval)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Breaker.Timeout != 30*time.Second {
		t.Errorf("expected breaker timeout 30s, got %v", cfg.Breaker.Timeout)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
client:
  url: "wss://chat.example.com/ws"
  max_retries: 3
  heartbeat: 5s
server:
  port: "9090"
logging:
  level: "debug"
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Client.URL != "wss://chat.example.com/ws" {
		t.Errorf("expected overridden url, got %s", cfg.Client.URL)
	}
	if cfg.Client.MaxRetries != 3 {
		t.Errorf("expected max_retries 3, got %d", cfg.Client.MaxRetries)
	}
	if cfg.Client.Heartbeat != 5*time.Second {
		t.Errorf("expected heartbeat 5s, got %v", cfg.Client.Heartbeat)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	// Unchanged fields keep defaults
	if cfg.Client.RetryInterval != 2*time.Second {
		t.Errorf("expected default retry_interval, got %v", cfg.Client.RetryInterval)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	if err := loadYAML(&cfg, "/nonexistent/path.yaml"); err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("WIRECHAT_URL", "ws://env.example.com/ws")
	t.Setenv("WIRECHAT_MAX_RETRIES", "9")
	t.Setenv("WIRECHAT_RETRY_INTERVAL", "500ms")
	t.Setenv("WIRECHAT_LOG_LEVEL", "warn")
	t.Setenv("WIRECHAT_OTEL_ENABLED", "true")

	loadEnv(&cfg)

	if cfg.Client.URL != "ws://env.example.com/ws" {
		t.Errorf("expected env url, got %s", cfg.Client.URL)
	}
	if cfg.Client.MaxRetries != 9 {
		t.Errorf("expected max_retries 9, got %d", cfg.Client.MaxRetries)
	}
	if cfg.Client.RetryInterval != 500*time.Millisecond {
		t.Errorf("expected retry_interval 500ms, got %v", cfg.Client.RetryInterval)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Logging.Level)
	}
	if !cfg.Telemetry.Enabled {
		t.Error("expected telemetry enabled")
	}
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	if err := validate(&cfg); err != nil {
		t.Fatalf("defaults should validate, got %v", err)
	}

	bad := Defaults()
	bad.Client.URL = ""
	if err := validate(&bad); err == nil {
		t.Fatal("expected error for empty client.url")
	}

	bad = Defaults()
	bad.Client.RetryInterval = 0
	if err := validate(&bad); err == nil {
		t.Fatal("expected error for zero retry_interval")
	}

	bad = Defaults()
	bad.Client.MaxRetries = -1
	if err := validate(&bad); err == nil {
		t.Fatal("expected error for negative max_retries")
	}
}
