package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("BOOKING_MAX_RETRIES", "")
	t.Setenv("HTTP_TIMEOUT", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	t.Setenv("EMAIL_PROVIDER", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.BookingMaxRetries != 2 {
		t.Fatalf("expected default max retries 2, got %d", cfg.BookingMaxRetries)
	}
	if cfg.HTTPTimeout != 15*time.Second {
		t.Fatalf("expected default http timeout, got %s", cfg.HTTPTimeout)
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Fatalf("expected no CORS origins by default, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.EmailProvider != "stub" {
		t.Fatalf("expected stub email provider, got %s", cfg.EmailProvider)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("APPOINTMENTS_BASE_URL", "https://appointments.example")
	t.Setenv("PURCHASE_BASE_URL", "https://wallet.example")
	t.Setenv("SERVICES_BASE_URL", "https://catalog.example")
	t.Setenv("BOOKING_MAX_RETRIES", "4")
	t.Setenv("BOOKING_BACKOFF", "1s")
	t.Setenv("DEFAULT_CURRENCY", "usd")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("BOOKING_RATE_LIMIT_RPS", "2.5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example, ,https://admin.example")
	t.Setenv("EMAIL_PROVIDER", " SendGrid ")
	t.Setenv("SENDGRID_FROM_EMAIL", "alerts@carebook.example")
	t.Setenv("ADMIN_JWT_SECRET", "s3cret")
	t.Setenv("ADMIN_JWT_AUDIENCE", "carebook-admin")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.AppointmentsBaseURL != "https://appointments.example" {
		t.Fatalf("unexpected appointments url %s", cfg.AppointmentsBaseURL)
	}
	if cfg.PurchaseBaseURL != "https://wallet.example" {
		t.Fatalf("unexpected purchase url %s", cfg.PurchaseBaseURL)
	}
	if cfg.ServicesBaseURL != "https://catalog.example" {
		t.Fatalf("unexpected services url %s", cfg.ServicesBaseURL)
	}
	if cfg.BookingMaxRetries != 4 {
		t.Fatalf("expected max retries override, got %d", cfg.BookingMaxRetries)
	}
	if cfg.BookingBackoff != time.Second {
		t.Fatalf("expected backoff override, got %s", cfg.BookingBackoff)
	}
	if cfg.DefaultCurrency != "USD" {
		t.Fatalf("expected upper-cased currency, got %s", cfg.DefaultCurrency)
	}
	if !cfg.RedisTLS {
		t.Fatalf("expected redis tls enabled")
	}
	if cfg.BookingRateLimitRPS != 2.5 {
		t.Fatalf("expected rate override, got %v", cfg.BookingRateLimitRPS)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://admin.example" {
		t.Fatalf("unexpected CORS origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.EmailProvider != "sendgrid" {
		t.Fatalf("expected normalized provider, got %q", cfg.EmailProvider)
	}
	if cfg.EmailFromAddress != "alerts@carebook.example" {
		t.Fatalf("expected legacy SENDGRID_FROM_EMAIL to populate sender, got %q", cfg.EmailFromAddress)
	}
	if cfg.AdminJWTSecret != "s3cret" || cfg.AdminJWTAudience != "carebook-admin" {
		t.Fatalf("unexpected admin jwt settings %q %q", cfg.AdminJWTSecret, cfg.AdminJWTAudience)
	}
}

func TestEmailFromAddressPrefersGenericName(t *testing.T) {
	t.Setenv("EMAIL_FROM_ADDRESS", "support@carebook.example")
	t.Setenv("SENDGRID_FROM_EMAIL", "legacy@carebook.example")
	cfg := Load()
	if cfg.EmailFromAddress != "support@carebook.example" {
		t.Fatalf("expected EMAIL_FROM_ADDRESS to win, got %q", cfg.EmailFromAddress)
	}
}

func TestInvalidDurationFallsBack(t *testing.T) {
	t.Setenv("BOOKING_BACKOFF", "soon")
	cfg := Load()
	if cfg.BookingBackoff != 250*time.Millisecond {
		t.Fatalf("expected default backoff, got %s", cfg.BookingBackoff)
	}
}
