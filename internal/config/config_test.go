package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/greenhouse")
	t.Setenv("AUTH_JWT_SECRET", "test-secret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("expected default addr, got %s", cfg.HTTPAddr)
	}
	if cfg.TokenTTL != 7*24*time.Hour {
		t.Fatalf("expected 7d token ttl, got %s", cfg.TokenTTL)
	}
	if cfg.Commands.CompletionMode != CompletionModeLegacy {
		t.Fatalf("expected legacy completion mode, got %s", cfg.Commands.CompletionMode)
	}
	if cfg.DeviceAuth.RequireToken {
		t.Fatal("expected weak device auth by default")
	}
	if cfg.Commands.PendingExpiry != 0 || cfg.Commands.Retention != 0 {
		t.Fatal("expected janitor disabled by default")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("COMMANDS_COMPLETION_MODE", "claim")
	t.Setenv("DEVICE_AUTH_REQUIRE_TOKEN", "true")
	t.Setenv("COMMANDS_PENDING_EXPIRY", "30m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Commands.CompletionMode != CompletionModeClaim {
		t.Fatalf("expected claim mode, got %s", cfg.Commands.CompletionMode)
	}
	if !cfg.DeviceAuth.RequireToken {
		t.Fatal("expected token enforcement on")
	}
	if cfg.Commands.PendingExpiry != 30*time.Minute {
		t.Fatalf("expected 30m expiry, got %s", cfg.Commands.PendingExpiry)
	}
}

func TestLoad_YamlThenEnvPrecedence(t *testing.T) {
	setRequiredEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "http_addr: \":9090\"\ncommands:\n  completion_mode: claim\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HTTP_ADDR", ":7070")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":7070" {
		t.Fatalf("expected env to win over yaml, got %s", cfg.HTTPAddr)
	}
	if cfg.Commands.CompletionMode != CompletionModeClaim {
		t.Fatalf("expected yaml completion mode, got %s", cfg.Commands.CompletionMode)
	}
}

func TestValidate_Rejections(t *testing.T) {
	base := func() Config {
		cfg := defaults()
		cfg.DatabaseURL = "postgres://localhost/greenhouse"
		cfg.JWTSecret = "secret"
		return cfg
	}

	cfg := base()
	cfg.DatabaseURL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing database url")
	}

	cfg = base()
	cfg.JWTSecret = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing jwt secret")
	}

	cfg = base()
	cfg.Commands.CompletionMode = "optimistic"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for bad completion mode")
	}

	cfg = base()
	cfg.TokenTTL = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero token ttl")
	}
}
