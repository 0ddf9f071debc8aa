package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("MANAGER_PIN", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.ManagerPIN != "" {
		t.Fatalf("expected empty MANAGER_PIN when unset, got %q", cfg.ManagerPIN)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BATCH_CACHE_TTL_SECONDS", "")
	t.Setenv("STRICT_BATCH_STOCK", "")
	t.Setenv("DEFAULT_COMPANY_ID", "")
	t.Setenv("COMPANY_CODE", "")

	cfg := Load()
	if cfg.BatchCacheTTLSeconds != 300 {
		t.Fatalf("expected default TTL 300, got %d", cfg.BatchCacheTTLSeconds)
	}
	if cfg.StrictBatchStock {
		t.Fatalf("expected tolerant stock policy by default")
	}
	if cfg.CompanyID != "main-company" || cfg.CompanyCode != "INV" {
		t.Fatalf("unexpected company defaults %q/%q", cfg.CompanyID, cfg.CompanyCode)
	}
}

func TestLoadParsesStrictFlag(t *testing.T) {
	t.Setenv("STRICT_BATCH_STOCK", "true")

	cfg := Load()
	if !cfg.StrictBatchStock {
		t.Fatalf("expected strict stock policy")
	}
}
