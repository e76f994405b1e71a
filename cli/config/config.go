// Package config provides configuration management for the chronicle CLI.
//
// Settings come from chronicle.yaml, found by walking up from the working
// directory, and are then overridden by CHRONICLE_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the default config file name
const ConfigFileName = "chronicle.yaml"

// Database drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverPQ       = "pq"
)

// Payload codecs.
const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// Publisher kinds.
const (
	PublishNone    = "none"
	PublishKafka   = "kafka"
	PublishWebhook = "webhook"
)

// Config represents the chronicle CLI configuration
type Config struct {
	// Version of the config file format
	Version string `yaml:"version"`

	Database  DatabaseConfig  `yaml:"database"`
	Publish   PublishConfig   `yaml:"publish"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// DatabaseConfig contains event store connection settings
type DatabaseConfig struct {
	// Driver is one of memory, sqlite, postgres (pgx) or pq (lib/pq).
	Driver string `yaml:"driver" env:"CHRONICLE_DATABASE_DRIVER"`

	// URL is the connection string for postgres and pq, or the file path for sqlite.
	URL string `yaml:"url,omitempty" env:"CHRONICLE_DATABASE_URL"`

	// Schema is the postgres schema holding the events table.
	Schema string `yaml:"schema" env:"CHRONICLE_DATABASE_SCHEMA"`

	// Table is the events table name.
	Table string `yaml:"table" env:"CHRONICLE_DATABASE_TABLE"`

	// Codec is the payload encoding, json or msgpack. Existing streams must
	// keep the codec they were written with.
	Codec string `yaml:"codec" env:"CHRONICLE_DATABASE_CODEC"`
}

// PublishConfig selects where events appended through the CLI are published.
type PublishConfig struct {
	Kind         string   `yaml:"kind" env:"CHRONICLE_PUBLISH_KIND"`
	KafkaBrokers []string `yaml:"kafka_brokers,omitempty" env:"CHRONICLE_PUBLISH_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `yaml:"kafka_topic,omitempty" env:"CHRONICLE_PUBLISH_KAFKA_TOPIC"`
	WebhookURL   string   `yaml:"webhook_url,omitempty" env:"CHRONICLE_PUBLISH_WEBHOOK_URL"`
}

// LogConfig controls CLI logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" env:"CHRONICLE_LOG_LEVEL"`

	// Format is text or json.
	Format string `yaml:"format" env:"CHRONICLE_LOG_FORMAT"`
}

// TelemetryConfig controls tracing.
type TelemetryConfig struct {
	Trace       bool   `yaml:"trace" env:"CHRONICLE_TRACE"`
	ServiceName string `yaml:"service_name" env:"CHRONICLE_SERVICE_NAME"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		Database: DatabaseConfig{
			Driver: DriverPostgres,
			Schema: "chronicle",
			Table:  "events",
			Codec:  CodecJSON,
		},
		Publish: PublishConfig{
			Kind: PublishNone,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "chronicle",
		},
	}
}

// LoadFile loads configuration from a specific file path. Fields missing
// from the file keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// ApplyEnv overrides fields from CHRONICLE_* environment variables.
// Unset variables leave the current value in place.
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Resolve loads the configuration the CLI runs with. An explicit path must
// exist. Without one, chronicle.yaml is searched for from dir upwards and
// defaults are used when none is found. Environment overrides apply last.
func Resolve(path, dir string) (*Config, string, error) {
	var (
		cfg *Config
		err error
	)

	switch {
	case path != "":
		cfg, err = LoadFile(path)
		if err != nil {
			return nil, "", err
		}
	default:
		var found string
		found, cfg, err = FindConfig(dir)
		switch {
		case err == nil:
			path = filepath.Join(found, ConfigFileName)
		case os.IsNotExist(err):
			cfg = DefaultConfig()
		default:
			return nil, "", err
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// SaveFile saves the configuration to a specific file path
func (c *Config) SaveFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// FindConfig searches for a config file starting from dir and going up
func FindConfig(dir string) (string, *Config, error) {
	current := dir
	for {
		configPath := filepath.Join(current, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			cfg, err := LoadFile(configPath)
			if err != nil {
				return "", nil, err
			}
			return current, cfg, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", nil, os.ErrNotExist
		}
		current = parent
	}
}

// Validate validates the configuration
func (c *Config) Validate() []string {
	var errors []string

	drivers := []string{DriverMemory, DriverSQLite, DriverPostgres, DriverPQ}
	switch {
	case c.Database.Driver == "":
		errors = append(errors, "database.driver is required")
	case !slices.Contains(drivers, c.Database.Driver):
		errors = append(errors, "database.driver must be one of memory, sqlite, postgres, pq")
	case c.Database.Driver != DriverMemory && c.Database.URL == "":
		errors = append(errors, fmt.Sprintf("database.url is required for %s driver", c.Database.Driver))
	}

	if !slices.Contains([]string{"", CodecJSON, CodecMsgpack}, c.Database.Codec) {
		errors = append(errors, "database.codec must be json or msgpack")
	}

	switch c.Publish.Kind {
	case "", PublishNone:
	case PublishKafka:
		if len(c.Publish.KafkaBrokers) == 0 {
			errors = append(errors, "publish.kafka_brokers is required for kafka")
		}
		if c.Publish.KafkaTopic == "" {
			errors = append(errors, "publish.kafka_topic is required for kafka")
		}
	case PublishWebhook:
		if c.Publish.WebhookURL == "" {
			errors = append(errors, "publish.webhook_url is required for webhook")
		}
	default:
		errors = append(errors, "publish.kind must be none, kafka or webhook")
	}

	if !slices.Contains([]string{"", "debug", "info", "warn", "error"}, c.Log.Level) {
		errors = append(errors, "log.level must be one of debug, info, warn, error")
	}
	if !slices.Contains([]string{"", "text", "json"}, c.Log.Format) {
		errors = append(errors, "log.format must be text or json")
	}

	return errors
}
