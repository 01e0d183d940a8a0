package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LINE_CHANNEL_ACCESS_TOKEN", "token")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "3000" {
		t.Errorf("Port = %q, want 3000", cfg.Port)
	}
	if cfg.StepDelay != 1500*time.Millisecond {
		t.Errorf("StepDelay = %v, want 1.5s", cfg.StepDelay)
	}
	if cfg.IntroCooldown != 20*time.Second {
		t.Errorf("IntroCooldown = %v, want 20s", cfg.IntroCooldown)
	}
	if cfg.DedupTTL != 60*time.Second {
		t.Errorf("DedupTTL = %v, want 60s", cfg.DedupTTL)
	}
	if cfg.VerifiesSignature() {
		t.Error("signature verification enabled without a secret")
	}
	if cfg.PersistsSessions() {
		t.Error("persistence enabled without DB_PATH")
	}
}

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("LINE_CHANNEL_ACCESS_TOKEN", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load accepted an empty channel token")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LINE_CHANNEL_ACCESS_TOKEN", "token")
	t.Setenv("LINE_CHANNEL_SECRET", "secret")
	t.Setenv("PORT", "8080")
	t.Setenv("DB_PATH", "./data/sessions.db")
	t.Setenv("STEP_DELAY_MS", "500")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.StepDelay != 500*time.Millisecond {
		t.Errorf("StepDelay = %v", cfg.StepDelay)
	}
	if !cfg.VerifiesSignature() {
		t.Error("signature verification disabled despite secret")
	}
	if !cfg.PersistsSessions() {
		t.Error("persistence disabled despite DB_PATH")
	}
}

func TestGetEnvIntIgnoresGarbage(t *testing.T) {
	t.Setenv("STEP_DELAY_MS", "not-a-number")
	t.Setenv("LINE_CHANNEL_ACCESS_TOKEN", "token")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.StepDelay != 1500*time.Millisecond {
		t.Errorf("StepDelay = %v, want fallback 1.5s", cfg.StepDelay)
	}
}
