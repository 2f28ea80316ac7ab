package config

import (
	"testing"
	"time"
)

func TestLoadReadsObservabilitySettings(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LOG_LEVEL", " WARN ")
	t.Setenv("LOG_FORMAT", "console")
	t.Setenv("OTEL_ENABLED", "yes")
	t.Setenv("OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTLP_PROTOCOL", "HTTP")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.5")
	t.Setenv("ROLLUP_WORKER_POLL_INTERVAL", "30s")

	cfg := Load()
	if cfg.Log.Level != "warn" || cfg.Log.Format != "console" {
		t.Fatalf("unexpected log config %+v", cfg.Log)
	}
	want := TracingConfig{Enabled: true, Endpoint: "collector:4318", Protocol: "http", SamplingRatio: 0.5}
	if cfg.Tracing != want {
		t.Fatalf("expected tracing %+v, got %+v", want, cfg.Tracing)
	}
	if cfg.Worker.PollInterval != 30*time.Second {
		t.Fatalf("expected poll interval 30s, got %s", cfg.Worker.PollInterval)
	}
	if cfg.Debug() {
		t.Fatalf("production at warn level must not be debug")
	}
}

func TestLoadFallsBackOnBadValues(t *testing.T) {
	t.Setenv("OTEL_SAMPLING_RATIO", "lots")
	t.Setenv("OTEL_ENABLED", "maybe")
	t.Setenv("ROLLUP_WORKER_MAX_PERIODS", "many")

	cfg := Load()
	if cfg.Tracing.SamplingRatio != 0.1 || cfg.Tracing.Enabled {
		t.Fatalf("expected tracing defaults, got %+v", cfg.Tracing)
	}
	if cfg.Worker.MaxPeriodsPerRun != 31 {
		t.Fatalf("expected default max periods, got %d", cfg.Worker.MaxPeriodsPerRun)
	}
}

func TestDebug(t *testing.T) {
	cases := []struct {
		env   string
		level string
		want  bool
	}{
		{"production", "debug", true},
		{"production", "info", false},
		{"Local", "info", true},
		{"staging", "error", false},
	}
	for _, tc := range cases {
		cfg := Config{Environment: tc.env, Log: LogConfig{Level: tc.level}}
		if got := cfg.Debug(); got != tc.want {
			t.Fatalf("%s/%s: expected %v, got %v", tc.env, tc.level, tc.want, got)
		}
	}
}
