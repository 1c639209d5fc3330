package config

import (
	"testing"
	"time"
)

func TestLoadConfigRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error without JWT_SECRET")
	}
}

func TestLoadConfigDefaultsAndOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("APP_ENV", "dev")
	t.Setenv("PAYMENT_CURRENCY", "ghs")
	t.Setenv("REAPER_INTERVAL", "30")
	t.Setenv("PAYMENT_RECONCILE_AFTER", "6h")
	t.Setenv("NOTIFICATION_WORKERS", "4")
	t.Setenv("REAPER_ENABLED", "off")
	t.Setenv("PAYSTACK_SECRET_KEY", "")
	t.Setenv("GATEWAY_TIMEOUT", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.AppEnv != "development" {
		t.Fatalf("expected development, got %q", cfg.AppEnv)
	}
	if cfg.PaymentCurrency != "GHS" {
		t.Fatalf("expected GHS, got %q", cfg.PaymentCurrency)
	}
	if cfg.ReaperInterval != 30*time.Second {
		t.Fatalf("expected 30s, got %s", cfg.ReaperInterval)
	}
	if cfg.PaymentReconcileAfter != 6*time.Hour {
		t.Fatalf("expected 6h, got %s", cfg.PaymentReconcileAfter)
	}
	if cfg.NotificationWorkers != 4 {
		t.Fatalf("expected 4 workers, got %d", cfg.NotificationWorkers)
	}
	if cfg.ReaperEnabled {
		t.Fatal("expected reaper disabled")
	}
	if cfg.GatewayTimeout != 15*time.Second {
		t.Fatalf("expected default gateway timeout, got %s", cfg.GatewayTimeout)
	}
	if cfg.PaymentsEnabled() {
		t.Fatal("payments should be disabled without a secret key")
	}
}

func TestGetEnvDurationFallsBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_DURATION", "soon")
	if got := getEnvDuration("SOME_DURATION", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %s", got)
	}
}

func TestDocsEnabledOnlyInDevelopment(t *testing.T) {
	cases := []struct {
		cfg  *Config
		want bool
	}{
		{nil, false},
		{&Config{AppEnv: "development", EnableDocs: true}, true},
		{&Config{AppEnv: "production", EnableDocs: true}, false},
		{&Config{AppEnv: "development", EnableDocs: false}, false},
	}

	for _, tc := range cases {
		if got := tc.cfg.DocsEnabled(); got != tc.want {
			t.Errorf("DocsEnabled(%+v) = %v, want %v", tc.cfg, got, tc.want)
		}
	}
}
