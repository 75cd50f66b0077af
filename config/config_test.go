package config

import "testing"

func TestModelForFallsBack(t *testing.T) {
	r := LLMRoutingConfig{Planning: "plan-model", Fallback: "fallback-model"}
	if got := r.ModelFor("planning"); got != "plan-model" {
		t.Fatalf("expected routed model, got %q", got)
	}
	if got := r.ModelFor("synthesis"); got != "fallback-model" {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{User: "u", Password: "p", Host: "db", Port: "5433", DBName: "deepdive"}
	want := "postgres://u:p@db:5433/deepdive?sslmode=disable"
	if got := p.DSN(); got != want {
		t.Fatalf("DSN() = %q, want %q", got, want)
	}
	p = PostgresConfig{URL: "postgres://explicit"}
	if got := p.DSN(); got != "postgres://explicit" {
		t.Fatalf("explicit URL must win, got %q", got)
	}
}

func TestRedisAddrDefaults(t *testing.T) {
	r := RedisConfig{}
	if got := r.Addr(); got != "localhost:6379" {
		t.Fatalf("Addr() = %q", got)
	}
}

func TestLoadConfigDefaultsWithoutFile(t *testing.T) {
	// No config file exists anywhere on the search path; first runs must
	// still come up on defaults and env overrides alone.
	cfg := LoadConfig("")
	if cfg.Server.Address != ":10002" {
		t.Fatalf("server.address default = %q", cfg.Server.Address)
	}
	if cfg.Pipeline.MaxConcurrentRuns != 4 {
		t.Fatalf("pipeline.max_concurrent_runs default = %d", cfg.Pipeline.MaxConcurrentRuns)
	}
	if !cfg.Telemetry.Enabled {
		t.Fatalf("telemetry must default to enabled")
	}
}

func TestPipelineValidate(t *testing.T) {
	if err := (PipelineConfig{MaxConcurrentRuns: -1}).Validate(); err == nil {
		t.Fatalf("negative max_concurrent_runs must be rejected")
	}
	if err := (PipelineConfig{MaxConcurrentRuns: 4}).Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}
