package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadFallsBackOnBadNumbers(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL_HOURS", "zero")
	t.Setenv("DASHBOARD_TTL_SECONDS", "-4")
	t.Setenv("LOW_STOCK_THRESHOLD", "")
	t.Setenv("EXPIRY_WINDOW_DAYS", "0")

	cfg := Load()
	if cfg.AccessTokenTTLHours != 24 {
		t.Fatalf("expected token TTL fallback 24, got %d", cfg.AccessTokenTTLHours)
	}
	if cfg.DashboardTTLSeconds != 30 {
		t.Fatalf("expected dashboard TTL fallback 30, got %d", cfg.DashboardTTLSeconds)
	}
	if cfg.LowStockThreshold != 5 {
		t.Fatalf("expected low stock fallback 5, got %d", cfg.LowStockThreshold)
	}
	if cfg.ExpiryWindowDays != 30 {
		t.Fatalf("expected expiry window fallback 30, got %d", cfg.ExpiryWindowDays)
	}
}

func TestAddress(t *testing.T) {
	t.Setenv("PORT", "9191")
	cfg := Load()
	if got := cfg.Address(); got != ":9191" {
		t.Fatalf("expected :9191, got %q", got)
	}
}
