package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DefaultLanguage != "en" {
		t.Errorf("DefaultLanguage = %q, want en", cfg.DefaultLanguage)
	}
	if len(cfg.Languages) != 5 {
		t.Errorf("Languages = %v, want 5 entries", cfg.Languages)
	}
	if cfg.TTLPolicy.Taxonomy != 24*time.Hour {
		t.Errorf("Taxonomy TTL = %v, want 24h", cfg.TTLPolicy.Taxonomy)
	}
	if cfg.VoteRule.Capacity != 60 || cfg.VoteRule.Window != time.Minute {
		t.Errorf("VoteRule = %+v, want 60 per minute", cfg.VoteRule)
	}
	if cfg.PurgeSecret != "" {
		t.Errorf("PurgeSecret = %q, want unset by default", cfg.PurgeSecret)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LANGUAGES", "en, tr")
	t.Setenv("DEFAULT_LANGUAGE", "tr")
	t.Setenv("TTL_LISTING", "90s")
	t.Setenv("RATE_VOTE_CAPACITY", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Languages) != 2 || cfg.Languages[1] != "tr" {
		t.Errorf("Languages = %v, want [en tr]", cfg.Languages)
	}
	if cfg.DefaultLanguage != "tr" {
		t.Errorf("DefaultLanguage = %q, want tr", cfg.DefaultLanguage)
	}
	if cfg.TTLPolicy.Listing != 90*time.Second {
		t.Errorf("Listing TTL = %v, want 90s", cfg.TTLPolicy.Listing)
	}
	if cfg.VoteRule.Capacity != 5 {
		t.Errorf("VoteRule.Capacity = %d, want 5", cfg.VoteRule.Capacity)
	}
}

func TestLoad_DefaultLanguageMustBeSupported(t *testing.T) {
	t.Setenv("LANGUAGES", "de,fr")
	t.Setenv("DEFAULT_LANGUAGE", "en")

	if _, err := Load(); err == nil {
		t.Error("Load() = nil error, want default-language validation failure")
	}
}

func TestLoad_RejectsBadOrigin(t *testing.T) {
	t.Setenv("PUBLIC_ORIGIN", "not a url")

	if _, err := Load(); err == nil {
		t.Error("Load() = nil error, want origin validation failure")
	}
}
