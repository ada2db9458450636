package bootstrap

import (
	"fmt"
	"time"

	"github.com/wolfman30/carebook/internal/backend"
	"github.com/wolfman30/carebook/internal/billing"
	"github.com/wolfman30/carebook/internal/booking"
	"github.com/wolfman30/carebook/internal/catalog"
	appconfig "github.com/wolfman30/carebook/internal/config"
	"github.com/wolfman30/carebook/internal/observability/metrics"
	"github.com/wolfman30/carebook/internal/scheduling"
	"github.com/wolfman30/carebook/pkg/logging"
)

const (
	// defaultCallTimeout matches the backend client default.
	defaultCallTimeout   = 15 * time.Second
	bookingDeadlineSlack = 15 * time.Second
)

// BookingRetryPolicy is the saga retry policy from config.
func BookingRetryPolicy(cfg *appconfig.Config) booking.RetryPolicy {
	return booking.RetryPolicy{
		MaxRetries: cfg.BookingMaxRetries,
		Backoff:    cfg.BookingBackoff,
	}
}

// BookingDeadline bounds one booking request end to end: both saga steps at
// their worst case plus slack for the support case and its email.
func BookingDeadline(cfg *appconfig.Config) time.Duration {
	callTimeout := cfg.HTTPTimeout
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return 2*BookingRetryPolicy(cfg).StepBudget(callTimeout) + bookingDeadlineSlack
}

// BuildBookingService wires the three backend clients into a booking.Service.
// Each client gets its own base URL; the call timeout is shared.
func BuildBookingService(cfg *appconfig.Config, m *metrics.BookingMetrics, cases booking.CaseOpener, logger *logging.Logger) (*booking.Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	backendCfg := func(baseURL string) backend.Config {
		return backend.Config{
			BaseURL:  baseURL,
			Timeout:  cfg.HTTPTimeout,
			Logger:   logger,
			Observer: m,
		}
	}

	catalogClient, err := catalog.NewClient(backendCfg(cfg.ServicesBaseURL))
	if err != nil {
		return nil, fmt.Errorf("bootstrap: catalog client: %w", err)
	}
	schedulingClient, err := scheduling.NewClient(backendCfg(cfg.AppointmentsBaseURL))
	if err != nil {
		return nil, fmt.Errorf("bootstrap: scheduling client: %w", err)
	}
	billingClient, err := billing.NewClient(backendCfg(cfg.PurchaseBaseURL))
	if err != nil {
		return nil, fmt.Errorf("bootstrap: billing client: %w", err)
	}

	logger.Info("booking backends configured",
		"services_base_url", cfg.ServicesBaseURL,
		"appointments_base_url", cfg.AppointmentsBaseURL,
		"purchase_base_url", cfg.PurchaseBaseURL,
		"max_retries", cfg.BookingMaxRetries,
	)

	return booking.NewService(booking.ServiceConfig{
		Catalog:         catalogClient,
		Appointments:    schedulingClient,
		Purchases:       billingClient,
		Cases:           cases,
		Observer:        m,
		Policy:          BookingRetryPolicy(cfg),
		DefaultCurrency: cfg.DefaultCurrency,
		Logger:          logger,
	}), nil
}
