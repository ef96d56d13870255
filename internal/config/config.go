// internal/config/config.go
package config

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	OutputHEC   = "hec"
	OutputKafka = "kafka"
)

// Config for the forwarder and the development collector
type Config struct {
	Provider   ProviderConfig  `yaml:"provider"`
	Collector  CollectorConfig `yaml:"collector"`
	Output     string          `yaml:"output"` // hec or kafka
	Kafka      KafkaConfig     `yaml:"kafka"`
	Tests      []string        `yaml:"tests"` // allow-list of test IDs
	Thresholds Thresholds      `yaml:"thresholds"`
	Log        LogConfig       `yaml:"log"`
	Sink       SinkConfig      `yaml:"sink"`
}

// ProviderConfig for the monitoring API
type ProviderConfig struct {
	BaseURL       string `yaml:"base_url"`
	TLSSkipVerify bool   `yaml:"tls_skip_verify"`
	Token         string `yaml:"-"` // from env only
}

// CollectorConfig for the HTTP event collector we forward to
type CollectorConfig struct {
	URL           string `yaml:"url"`
	Scheme        string `yaml:"scheme"`
	SourceType    string `yaml:"sourcetype"`
	Host          string `yaml:"host"`
	TLSSkipVerify bool   `yaml:"tls_skip_verify"`
	Token         string `yaml:"-"` // from env only
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Thresholds used by the evaluator
type Thresholds struct {
	HealthScore      float64       `yaml:"health_score"`
	APITransactionMs float64       `yaml:"api_transaction_ms"`
	MaxResultAge     time.Duration `yaml:"max_result_age"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// SinkConfig for the development collector
type SinkConfig struct {
	ListenAddr      string `yaml:"listen_addr"`
	DBPath          string `yaml:"db_path"`
	MaxPayloadBytes int64  `yaml:"max_payload_bytes"`
	TLSCert         string `yaml:"tls_cert"`
	TLSKey          string `yaml:"tls_key"`
	Token           string `yaml:"-"` // from env, falls back to the collector token
}

// Default returns the configuration used for keys missing from the file
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{
			BaseURL:       "https://api.thousandeyes.com/v7",
			TLSSkipVerify: true,
		},
		Collector: CollectorConfig{
			Scheme:        "Splunk",
			SourceType:    "te:test",
			Host:          "ubuntu-te",
			TLSSkipVerify: true,
		},
		Output: OutputHEC,
		Thresholds: Thresholds{
			HealthScore:      0.95,
			APITransactionMs: 1000,
			MaxResultAge:     10 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Sink: SinkConfig{
			ListenAddr:      ":8088",
			DBPath:          "teforward-sink.db",
			MaxPayloadBytes: 1 << 20,
		},
	}
}

// Load reads config from a YAML file with env overrides.
// An empty path means defaults plus env only. A .env file in the working
// directory is loaded first if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "parse config")
		}
	}

	// Env overrides
	if token := os.Getenv("TEFORWARD_PROVIDER_TOKEN"); token != "" {
		cfg.Provider.Token = token
	}
	if token := os.Getenv("TEFORWARD_COLLECTOR_TOKEN"); token != "" {
		cfg.Collector.Token = token
	}
	if host := os.Getenv("TEFORWARD_COLLECTOR_HOST"); host != "" {
		cfg.Collector.Host = host
	}
	if ids := os.Getenv("TEFORWARD_TESTS"); ids != "" {
		cfg.Tests = splitCSV(ids)
	}
	if token := os.Getenv("TEFORWARD_SINK_TOKEN"); token != "" {
		cfg.Sink.Token = token
	}
	if cfg.Sink.Token == "" {
		cfg.Sink.Token = cfg.Collector.Token
	}

	return cfg, nil
}

// Validate checks what the forwarder needs before a run
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Provider.BaseURL) == "" {
		return errors.New("provider.base_url is required")
	}

	switch c.Output {
	case OutputHEC:
		if strings.TrimSpace(c.Collector.URL) == "" {
			return errors.New("collector.url is required for hec output")
		}
		if c.Collector.Token == "" {
			return errors.New("TEFORWARD_COLLECTOR_TOKEN is required for hec output")
		}
	case OutputKafka:
		if len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" {
			return errors.New("kafka.brokers and kafka.topic are required for kafka output")
		}
	default:
		return errors.Newf("unknown output %q", c.Output)
	}

	return nil
}

// AllowList returns the configured test IDs as a set
func (c *Config) AllowList() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Tests))
	for _, id := range c.Tests {
		id = strings.TrimSpace(id)
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
