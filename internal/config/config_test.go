package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Storage.Driver != "sqlite" {
		t.Fatalf("storage.driver=%q, want sqlite", cfg.Storage.Driver)
	}
	if cfg.Storage.Path != "./data/nowlens.db" {
		t.Fatalf("storage.path=%q, want ./data/nowlens.db", cfg.Storage.Path)
	}
	if cfg.Instance.TimeoutSeconds != 30 {
		t.Fatalf("instance.timeout_seconds=%d, want 30", cfg.Instance.TimeoutSeconds)
	}
	if cfg.Instance.Timeout() != 30*time.Second {
		t.Fatalf("instance timeout=%v, want 30s", cfg.Instance.Timeout())
	}
	if cfg.Observability.OTel.Enabled {
		t.Fatalf("observability.otel.enabled=%v, want false", cfg.Observability.OTel.Enabled)
	}
	if cfg.Observability.OTel.Endpoint != "localhost:4318" {
		t.Fatalf("observability.otel.endpoint=%q, want %q", cfg.Observability.OTel.Endpoint, "localhost:4318")
	}
	if cfg.Observability.OTel.ServiceName != "nowlens" {
		t.Fatalf("observability.otel.service_name=%q, want %q", cfg.Observability.OTel.ServiceName, "nowlens")
	}
	if cfg.Summarizer.Enabled {
		t.Fatalf("summarizer.enabled=%v, want false", cfg.Summarizer.Enabled)
	}
	if cfg.Summarizer.Model != "gpt-4o-mini" {
		t.Fatalf("summarizer.model=%q, want gpt-4o-mini", cfg.Summarizer.Model)
	}
}

func TestLoadAppliesYAMLAndEnvOverrides(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nowlens.yaml")
	configYAML := `instance:
  url: https://yaml.service-now.com
  username: yaml-user
  timeout_seconds: 15
storage:
  driver: sqlite
  path: /tmp/custom.db
observability:
  otel:
    enabled: false
    endpoint: localhost:4318
    insecure: true
    service_name: yaml-nowlens
    traces_enabled: true
    metrics_enabled: true
    sampling_ratio: 0.25
    export_timeout_ms: 2000
    metric_export_interval_ms: 15000
summarizer:
  enabled: false
  model: yaml-model
`
	if err := os.WriteFile(configPath, []byte(configYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("NOWLENS_USERNAME", "env-user")
	t.Setenv("NOWLENS_PASSWORD", "env-secret")
	t.Setenv("NOWLENS_TIMEOUT_SECONDS", "45")
	t.Setenv("NOWLENS_STORAGE_PATH", "/tmp/env.db")
	t.Setenv("NOWLENS_SUMMARIZER_MODEL", "env-model")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_SERVICE_NAME", "env-nowlens")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Instance.URL != "https://yaml.service-now.com" {
		t.Fatalf("instance.url=%q, want yaml value", cfg.Instance.URL)
	}
	if cfg.Instance.Username != "env-user" {
		t.Fatalf("instance.username=%q, want env-user (env overrides yaml)", cfg.Instance.Username)
	}
	if cfg.Instance.Password != "env-secret" {
		t.Fatalf("instance.password=%q, want env-secret", cfg.Instance.Password)
	}
	if cfg.Instance.TimeoutSeconds != 45 {
		t.Fatalf("instance.timeout_seconds=%d, want 45", cfg.Instance.TimeoutSeconds)
	}
	if cfg.Storage.Path != "/tmp/env.db" {
		t.Fatalf("storage.path=%q, want /tmp/env.db", cfg.Storage.Path)
	}
	if cfg.Summarizer.Model != "env-model" {
		t.Fatalf("summarizer.model=%q, want env-model", cfg.Summarizer.Model)
	}
	if !cfg.Observability.OTel.Enabled {
		t.Fatalf("observability.otel.enabled=%v, want true after OTEL env", cfg.Observability.OTel.Enabled)
	}
	if cfg.Observability.OTel.Endpoint != "collector:4318" {
		t.Fatalf("observability.otel.endpoint=%q, want collector:4318", cfg.Observability.OTel.Endpoint)
	}
	if cfg.Observability.OTel.ServiceName != "env-nowlens" {
		t.Fatalf("observability.otel.service_name=%q, want env-nowlens", cfg.Observability.OTel.ServiceName)
	}
	if cfg.Observability.OTel.SamplingRatio != 0.75 {
		t.Fatalf("observability.otel.sampling_ratio=%v, want 0.75", cfg.Observability.OTel.SamplingRatio)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nowlens.yaml")
	configYAML := `instance:
  url: https://yaml.service-now.com
  totally_unknown: true
`
	if err := os.WriteFile(configPath, []byte(configYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("Load() accepted a config with unknown fields")
	}
}

func TestLoadRejectsMultiDocumentYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nowlens.yaml")
	configYAML := `instance:
  url: https://one.service-now.com
---
instance:
  url: https://two.service-now.com
`
	if err := os.WriteFile(configPath, []byte(configYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil || !strings.Contains(err.Error(), "multiple yaml documents") {
		t.Fatalf("Load() error=%v, want multi-document rejection", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:   "defaults pass",
			mutate: func(cfg *Config) {},
		},
		{
			name: "sqlite requires path",
			mutate: func(cfg *Config) {
				cfg.Storage.Path = ""
			},
			wantErr: "storage.path",
		},
		{
			name: "postgres requires dsn",
			mutate: func(cfg *Config) {
				cfg.Storage.Driver = "postgres"
			},
			wantErr: "storage.dsn",
		},
		{
			name: "unknown driver",
			mutate: func(cfg *Config) {
				cfg.Storage.Driver = "mysql"
			},
			wantErr: "storage.driver",
		},
		{
			name: "zero timeout",
			mutate: func(cfg *Config) {
				cfg.Instance.TimeoutSeconds = 0
			},
			wantErr: "timeout_seconds",
		},
		{
			name: "otel sampling ratio out of range",
			mutate: func(cfg *Config) {
				cfg.Observability.OTel.Enabled = true
				cfg.Observability.OTel.SamplingRatio = 1.5
			},
			wantErr: "sampling_ratio",
		},
		{
			name: "summarizer requires api key",
			mutate: func(cfg *Config) {
				cfg.Summarizer.Enabled = true
			},
			wantErr: "summarizer.api_key",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tc.mutate(&cfg)

			err := Validate(cfg)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Validate() error=%v, want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidateInstance(t *testing.T) {
	t.Parallel()

	valid := InstanceConfig{
		URL:      "https://example.service-now.com",
		Username: "analyst",
		Password: "secret",
	}
	if err := ValidateInstance(valid); err != nil {
		t.Fatalf("ValidateInstance() error: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(cfg *InstanceConfig)
		wantErr string
	}{
		{
			name:    "missing url",
			mutate:  func(cfg *InstanceConfig) { cfg.URL = "" },
			wantErr: "instance.url",
		},
		{
			name:    "url without scheme",
			mutate:  func(cfg *InstanceConfig) { cfg.URL = "example.service-now.com" },
			wantErr: "scheme and host",
		},
		{
			name:    "missing username",
			mutate:  func(cfg *InstanceConfig) { cfg.Username = "" },
			wantErr: "instance.username",
		},
		{
			name:    "missing password",
			mutate:  func(cfg *InstanceConfig) { cfg.Password = "" },
			wantErr: "password",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid
			tc.mutate(&cfg)
			err := ValidateInstance(cfg)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("ValidateInstance() error=%v, want substring %q", err, tc.wantErr)
			}
		})
	}
}
