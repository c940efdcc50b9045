// Package flowconfig loads the durable-execution runtime's configuration
// from a YAML file, with environment-variable expansion and in-code
// defaults. Unknown keys are rejected so typos fail at load time instead of
// silently falling back to a default.
package flowconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultRegion is used when Region is unset.
const DefaultRegion = "us-east-1"

// DefaultMaxLogSize is the per-row log capacity when MaxLogSize is unset or
// zero. Exposed as a runtime setting rather than a compile-time constant so
// operators can tune row size against their backend's item-size limits
// without a rebuild.
const DefaultMaxLogSize = 10

// TelemetryKind selects which telemetry.Sink implementation the runtime
// wires up.
type TelemetryKind string

const (
	TelemetryNone    TelemetryKind = "none"
	TelemetryRedis   TelemetryKind = "redis"
	TelemetryArchive TelemetryKind = "archive"
)

// RedisConfig configures the notifyredis telemetry sink.
type RedisConfig struct {
	URL     string `yaml:"url"`
	Channel string `yaml:"channel"`
}

// ArchiveConfig configures the archive telemetry sink.
type ArchiveConfig struct {
	// Dataset is the Lode dataset id events are archived under.
	Dataset string `yaml:"dataset"`
	// Root is the filesystem root for a local/FS-backed dataset. Mutually
	// exclusive with Bucket; if both are empty, archive.New rejects the
	// config.
	Root string `yaml:"root"`
	// Bucket is the S3 bucket for a cloud-backed dataset.
	Bucket string `yaml:"bucket"`
	// Prefix is the key prefix within Bucket.
	Prefix string `yaml:"prefix"`
	// Region is the AWS region for the S3-backed dataset.
	Region string `yaml:"region"`
	// Endpoint overrides the S3 endpoint, for S3-compatible providers or
	// local testing (e.g. MinIO).
	Endpoint string `yaml:"endpoint"`
}

// TelemetryConfig selects and configures one telemetry.Sink backend.
type TelemetryConfig struct {
	Kind    TelemetryKind `yaml:"kind"`
	Redis   RedisConfig   `yaml:"redis"`
	Archive ArchiveConfig `yaml:"archive"`
}

// Config is the full durable-execution runtime configuration, loaded from
// YAML with environment-variable overrides.
type Config struct {
	// Region is the target AWS region for kv/dynamo (default "us-east-1").
	Region string `yaml:"region"`
	// EndpointURL overrides the DynamoDB endpoint, for local testing
	// against DynamoDB Local or a similar emulator.
	EndpointURL string `yaml:"endpoint_url"`
	// MaxLogSize is the per-row log capacity (default 10).
	MaxLogSize int64 `yaml:"max_log_size"`
	// Telemetry selects and configures the best-effort step-event sink.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// applyDefaults fills in zero-valued fields with the documented defaults.
func (c *Config) applyDefaults() {
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.MaxLogSize == 0 {
		c.MaxLogSize = DefaultMaxLogSize
	}
	if c.Telemetry.Kind == "" {
		c.Telemetry.Kind = TelemetryNone
	}
}

// Load reads a YAML config file at path, expands ${VAR} / ${VAR:-default}
// environment references, unmarshals into a Config, and fills in defaults.
// Unknown YAML keys are rejected to catch typos early.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("flowconfig: config file not found: %s", path)
		}
		return nil, fmt.Errorf("flowconfig: cannot read config file %q: %w", path, err)
	}

	expanded := ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("flowconfig: invalid YAML in %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a Config with every field at its documented default,
// used when no config file is supplied (e.g. local smoke-testing via
// cmd/flowstatectl against memkv).
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
