package flowconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "flowstate.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
region: eu-west-1
endpoint_url: http://localhost:8000
max_log_size: 25
telemetry:
  kind: redis
  redis:
    url: redis://localhost:6379
    channel: flowstate:steps
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Region != "eu-west-1" {
		t.Errorf("Region = %q, want %q", cfg.Region, "eu-west-1")
	}
	if cfg.MaxLogSize != 25 {
		t.Errorf("MaxLogSize = %d, want 25", cfg.MaxLogSize)
	}
	if cfg.Telemetry.Kind != TelemetryRedis {
		t.Errorf("Telemetry.Kind = %q, want %q", cfg.Telemetry.Kind, TelemetryRedis)
	}
	if cfg.Telemetry.Redis.URL != "redis://localhost:6379" {
		t.Errorf("Telemetry.Redis.URL = %q, want the configured URL", cfg.Telemetry.Redis.URL)
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `region: ""`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Region != DefaultRegion {
		t.Errorf("Region = %q, want default %q", cfg.Region, DefaultRegion)
	}
	if cfg.MaxLogSize != DefaultMaxLogSize {
		t.Errorf("MaxLogSize = %d, want default %d", cfg.MaxLogSize, DefaultMaxLogSize)
	}
	if cfg.Telemetry.Kind != TelemetryNone {
		t.Errorf("Telemetry.Kind = %q, want %q", cfg.Telemetry.Kind, TelemetryNone)
	}
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "region: us-east-1\nnot_a_real_key: true\n")

	if _, err := Load(path); err == nil {
		t.Error("Load() error = nil, want an error for an unknown key")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() error = nil, want an error for a missing file")
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("FLOWSTATE_REGION", "ap-southeast-1")
	path := writeConfig(t, "region: ${FLOWSTATE_REGION}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Region != "ap-southeast-1" {
		t.Errorf("Region = %q, want %q", cfg.Region, "ap-southeast-1")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Region != DefaultRegion || cfg.MaxLogSize != DefaultMaxLogSize || cfg.Telemetry.Kind != TelemetryNone {
		t.Errorf("Default() = %+v, want all-default Config", cfg)
	}
}
