package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/leaddesk")
	t.Setenv("LEADDESK_JWT_SECRET", "test-secret")
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load() without DATABASE_URL should fail")
	}
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	setRequired(t)
	t.Setenv("LEADDESK_JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load() without LEADDESK_JWT_SECRET should fail")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("API_ADDR", "")
	t.Setenv("LEADDESK_ACCESS_TTL_SECONDS", "")
	t.Setenv("LEADDESK_REFRESH_TTL_SECONDS", "")
	t.Setenv("LEADDESK_MIGRATIONS_DIR", "")
	t.Setenv("LEADDESK_CORS_ORIGIN", "")
	t.Setenv("COMPOSE_MODEL", "")
	t.Setenv("SMTP_PORT", "")
	t.Setenv("SMTP_FROM_NAME", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":8790" {
		t.Fatalf("Addr = %q", cfg.Addr)
	}
	if cfg.AccessTTL != time.Hour {
		t.Fatalf("AccessTTL = %v", cfg.AccessTTL)
	}
	if cfg.RefreshTTL != 30*24*time.Hour {
		t.Fatalf("RefreshTTL = %v", cfg.RefreshTTL)
	}
	if cfg.MigrationsDir != "./db/migrations" {
		t.Fatalf("MigrationsDir = %q", cfg.MigrationsDir)
	}
	if cfg.CORSOrigin != "*" {
		t.Fatalf("CORSOrigin = %q", cfg.CORSOrigin)
	}
	if cfg.ComposeModel != "grok-3" {
		t.Fatalf("ComposeModel = %q", cfg.ComposeModel)
	}
	if cfg.SMTPPort != "587" || cfg.SMTPFromName != "LeadDesk" {
		t.Fatalf("SMTP defaults = %q/%q", cfg.SMTPPort, cfg.SMTPFromName)
	}
}

func TestLoadReadsOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("API_ADDR", ":9000")
	t.Setenv("LEADDESK_ACCESS_TTL_SECONDS", "900")
	t.Setenv("LEADDESK_CORS_ORIGIN", "https://crm.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":9000" {
		t.Fatalf("Addr = %q", cfg.Addr)
	}
	if cfg.AccessTTL != 15*time.Minute {
		t.Fatalf("AccessTTL = %v", cfg.AccessTTL)
	}
	if cfg.CORSOrigin != "https://crm.example.com" {
		t.Fatalf("CORSOrigin = %q", cfg.CORSOrigin)
	}
}

func TestLoadIgnoresMalformedTTL(t *testing.T) {
	setRequired(t)
	t.Setenv("LEADDESK_ACCESS_TTL_SECONDS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AccessTTL != time.Hour {
		t.Fatalf("AccessTTL = %v, want the default", cfg.AccessTTL)
	}
}
