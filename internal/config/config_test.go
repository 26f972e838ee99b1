package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("IDHUB_JWT_SECRET", "test-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.Addr)
	}
	if cfg.Issuer != "idhub" {
		t.Fatalf("unexpected issuer: %s", cfg.Issuer)
	}
	if cfg.DefaultRole != "USER" {
		t.Fatalf("unexpected default role: %s", cfg.DefaultRole)
	}
	if cfg.AccessTTL != 30*time.Minute {
		t.Fatalf("unexpected access ttl: %v", cfg.AccessTTL)
	}
	if cfg.RefreshTTL != 7*24*time.Hour {
		t.Fatalf("unexpected refresh ttl: %v", cfg.RefreshTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("IDHUB_JWT_SECRET", "test-secret")
	t.Setenv("IDHUB_ADDR", ":9090")
	t.Setenv("IDHUB_ACCESS_TTL", "15m")
	t.Setenv("IDHUB_REFRESH_TTL", "48h")
	t.Setenv("IDHUB_REDIS_DB", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("unexpected addr: %s", cfg.Addr)
	}
	if cfg.AccessTTL != 15*time.Minute || cfg.RefreshTTL != 48*time.Hour {
		t.Fatalf("ttl overrides not applied: %v %v", cfg.AccessTTL, cfg.RefreshTTL)
	}
	if cfg.RedisDB != 3 {
		t.Fatalf("unexpected redis db: %d", cfg.RedisDB)
	}
}

func TestLoadRejectsBadConfig(t *testing.T) {
	t.Setenv("IDHUB_JWT_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing secret")
	}

	t.Setenv("IDHUB_JWT_SECRET", "test-secret")
	t.Setenv("IDHUB_ACCESS_TTL", "not-a-duration")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid duration")
	}

	t.Setenv("IDHUB_ACCESS_TTL", "1h")
	t.Setenv("IDHUB_REFRESH_TTL", "30m")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error when refresh ttl does not exceed access ttl")
	}
}
