// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "teforward.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
provider:
  base_url: "https://api.example.com/v7"
collector:
  url: "https://splunk.internal:8088/services/collector/event"
  host: "probe-01"
  tls_skip_verify: false
tests: ["111", "222"]
thresholds:
  health_score: 0.9
  max_result_age: 5m
log:
  format: json
`)

	t.Setenv("TEFORWARD_PROVIDER_TOKEN", "te-token")
	t.Setenv("TEFORWARD_COLLECTOR_TOKEN", "hec-token")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Provider.BaseURL != "https://api.example.com/v7" {
		t.Errorf("Provider.BaseURL = %q, want %q", cfg.Provider.BaseURL, "https://api.example.com/v7")
	}
	if !cfg.Provider.TLSSkipVerify {
		t.Error("Provider.TLSSkipVerify = false, want default true")
	}
	if cfg.Collector.TLSSkipVerify {
		t.Error("Collector.TLSSkipVerify = true, want false from file")
	}
	if cfg.Collector.Host != "probe-01" {
		t.Errorf("Collector.Host = %q, want %q", cfg.Collector.Host, "probe-01")
	}
	if cfg.Collector.Scheme != "Splunk" {
		t.Errorf("Collector.Scheme = %q, want default Splunk", cfg.Collector.Scheme)
	}
	if cfg.Thresholds.HealthScore != 0.9 {
		t.Errorf("HealthScore = %v, want 0.9", cfg.Thresholds.HealthScore)
	}
	if cfg.Thresholds.APITransactionMs != 1000 {
		t.Errorf("APITransactionMs = %v, want default 1000", cfg.Thresholds.APITransactionMs)
	}
	if cfg.Thresholds.MaxResultAge != 5*time.Minute {
		t.Errorf("MaxResultAge = %v, want 5m", cfg.Thresholds.MaxResultAge)
	}
	if cfg.Provider.Token != "te-token" {
		t.Errorf("Provider.Token = %q, want %q", cfg.Provider.Token, "te-token")
	}
	if cfg.Sink.Token != "hec-token" {
		t.Errorf("Sink.Token = %q, want collector token fallback", cfg.Sink.Token)
	}
	if len(cfg.AllowList()) != 2 {
		t.Errorf("AllowList size = %d, want 2", len(cfg.AllowList()))
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, `
collector:
  url: "https://splunk.internal:8088/services/collector/event"
tests: ["111"]
`)

	t.Setenv("TEFORWARD_TESTS", " 7, 8 ,,9 ")
	t.Setenv("TEFORWARD_COLLECTOR_HOST", "env-host")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.Tests) != 3 || cfg.Tests[0] != "7" || cfg.Tests[2] != "9" {
		t.Errorf("Tests = %v, want [7 8 9]", cfg.Tests)
	}
	if cfg.Collector.Host != "env-host" {
		t.Errorf("Collector.Host = %q, want %q", cfg.Collector.Host, "env-host")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error without collector.url")
	}

	cfg.Collector.URL = "https://splunk.internal:8088/services/collector/event"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "TEFORWARD_COLLECTOR_TOKEN") {
		t.Errorf("Validate without collector token = %v, want token error", err)
	}

	cfg.Collector.Token = "hec-token"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate hec: %v", err)
	}

	cfg.Output = OutputKafka
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for kafka without brokers")
	}

	cfg.Kafka = KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "te-events"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate kafka: %v", err)
	}

	cfg.Output = "syslog"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown output")
	}
}
