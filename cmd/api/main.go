package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/carebook/internal/api/router"
	appbootstrap "github.com/wolfman30/carebook/internal/app/bootstrap"
	appconfig "github.com/wolfman30/carebook/internal/config"
	"github.com/wolfman30/carebook/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/carebook/internal/http/middleware"
	"github.com/wolfman30/carebook/internal/observability/metrics"
	"github.com/wolfman30/carebook/internal/support"
	"github.com/wolfman30/carebook/pkg/logging"
)

const minShutdownTimeout = 30 * time.Second

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting carebook API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, cleanup, err := buildServer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build server", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	// Graceful shutdown with timeout. In-flight bookings keep their purchase
	// step running until it returns, so wait out a full booking.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// shutdownTimeout never cuts off a booking that started before the signal.
func shutdownTimeout(cfg *appconfig.Config) time.Duration {
	return max(appbootstrap.BookingDeadline(cfg), minShutdownTimeout)
}

// setupMetrics builds a private registry so tests do not collide on the
// default one.
func setupMetrics() (http.Handler, *metrics.BookingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewBookingMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}

// buildServer wires every dependency. The returned cleanup releases
// background resources and is safe to call once.
func buildServer(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*http.Server, func(), error) {
	metricsHandler, bookingMetrics := setupMetrics()

	redisClient := appbootstrap.BuildRedisClient(ctx, cfg, logger, true)
	caseStore := appbootstrap.BuildCaseStore(redisClient, logger)
	guard := appbootstrap.BuildSubmissionGuard(redisClient, cfg, logger)

	emailSender, provider, err := appbootstrap.BuildEmailSender(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if cfg.SupportEmail == "" {
		logger.Warn("SUPPORT_EMAIL not set; support cases are logged but not emailed")
	}
	logger.Info("support alerts configured", "email_provider", provider)
	recorder := support.NewRecorder(caseStore, emailSender, cfg.SupportEmail, logger)

	bookingService, err := appbootstrap.BuildBookingService(cfg, bookingMetrics, recorder, logger)
	if err != nil {
		return nil, nil, err
	}

	var limiter *httpmiddleware.RateLimiter
	if cfg.BookingRateLimitRPS > 0 {
		limiter = httpmiddleware.NewRateLimiter(cfg.BookingRateLimitRPS, cfg.BookingRateLimitBurst)
	}
	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; admin routes disabled")
	}

	// Setup router
	routerCfg := &router.Config{
		Logger:             logger,
		BookingHandler:     handlers.NewBookingHandler(bookingService, guard, bookingMetrics, logger),
		SupportHandler:     handlers.NewSupportHandler(recorder, logger),
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		BookingRateLimiter: limiter,
		AdminAuth: httpmiddleware.AdminJWTConfig{
			Secret:   cfg.AdminJWTSecret,
			Audience: cfg.AdminJWTAudience,
			Leeway:   30 * time.Second,
		},
	}

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router.New(routerCfg),
		ReadTimeout: 15 * time.Second,
		// Each booking may span two backend steps with retries and backoff.
		WriteTimeout: appbootstrap.BookingDeadline(cfg),
		IdleTimeout:  60 * time.Second,
	}

	cleanup := func() {
		if limiter != nil {
			limiter.Close()
		}
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("failed to close redis client", "error", err)
			}
		}
	}
	return srv, cleanup, nil
}
