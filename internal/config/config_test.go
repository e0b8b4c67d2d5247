package config

import (
	"testing"
	"time"
)

func TestLoad_RequiresTableOutsideDevMode(t *testing.T) {
	t.Setenv("DYNAMO_TABLE", "")
	t.Setenv("DEV_MODE", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when DYNAMO_TABLE is unset")
	}

	t.Setenv("DEV_MODE", "true")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error in dev mode, got %v", err)
	}
	if !cfg.DevMode {
		t.Error("DevMode = false, want true")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DYNAMO_TABLE", "kin-users")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
	if cfg.ParamPrefix != "/kin/" {
		t.Errorf("ParamPrefix = %q, want /kin/", cfg.ParamPrefix)
	}
	if cfg.ReadTimeout != 15*time.Second {
		t.Errorf("ReadTimeout = %v", cfg.ReadTimeout)
	}
	if cfg.RateLimitBurst != 20 {
		t.Errorf("RateLimitBurst = %d", cfg.RateLimitBurst)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DYNAMO_TABLE", "kin-users")
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("RATE_LIMIT_PER_SECOND", "2.5")
	t.Setenv("SERVER_READ_TIMEOUT", "5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.ServerPort != "9000" {
		t.Errorf("ServerPort = %q", cfg.ServerPort)
	}
	if cfg.RateLimitPerSecond != 2.5 {
		t.Errorf("RateLimitPerSecond = %v", cfg.RateLimitPerSecond)
	}
	if cfg.ReadTimeout != 5*time.Second {
		t.Errorf("ReadTimeout = %v", cfg.ReadTimeout)
	}
}
