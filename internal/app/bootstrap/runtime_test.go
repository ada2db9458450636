package bootstrap

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/carebook/internal/booking"
	appconfig "github.com/wolfman30/carebook/internal/config"
	"github.com/wolfman30/carebook/internal/notify"
	"github.com/wolfman30/carebook/internal/observability/metrics"
	"github.com/wolfman30/carebook/internal/support"
	"github.com/wolfman30/carebook/pkg/logging"
)

func quietLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, "error")
}

func TestBuildRedisClientDisabled(t *testing.T) {
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{}, quietLogger(), true))
	assert.Nil(t, BuildRedisClient(context.Background(), nil, quietLogger(), true))
}

func TestBuildRedisClientVerifies(t *testing.T) {
	mr := miniredis.RunT(t)
	// Addr is unavailable once the server is closed.
	addr := mr.Addr()

	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: addr}, quietLogger(), true)
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })

	mr.Close()
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: addr}, quietLogger(), true))
}

func TestBuildStoresFallBackToMemory(t *testing.T) {
	assert.IsType(t, &support.MemoryCaseStore{}, BuildCaseStore(nil, quietLogger()))
	assert.IsType(t, &booking.MemorySubmissionGuard{}, BuildSubmissionGuard(nil, &appconfig.Config{}, quietLogger()))

	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, quietLogger(), false)
	t.Cleanup(func() { _ = client.Close() })
	assert.IsType(t, &support.RedisCaseStore{}, BuildCaseStore(client, quietLogger()))
	assert.IsType(t, &booking.RedisSubmissionGuard{}, BuildSubmissionGuard(client, &appconfig.Config{SubmitLockTTL: time.Minute}, quietLogger()))
}

func TestBuildEmailSender(t *testing.T) {
	tests := []struct {
		name         string
		cfg          appconfig.Config
		wantProvider string
		wantType     any
		wantErr      bool
	}{
		{name: "default stub", cfg: appconfig.Config{}, wantProvider: notify.ProviderStub, wantType: &notify.StubEmailSender{}},
		{name: "sendgrid", cfg: appconfig.Config{EmailProvider: "sendgrid", SendGridAPIKey: "SG.key", EmailFromAddress: "alerts@carebook.example"}, wantProvider: notify.ProviderSendGrid, wantType: &notify.SendGridSender{}},
		{name: "sendgrid without key", cfg: appconfig.Config{EmailProvider: "sendgrid"}, wantProvider: notify.ProviderStub, wantType: &notify.StubEmailSender{}},
		{name: "unknown", cfg: appconfig.Config{EmailProvider: "pigeon"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender, provider, err := BuildEmailSender(context.Background(), &tt.cfg, quietLogger())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantProvider, provider)
			assert.IsType(t, tt.wantType, sender)
		})
	}
}

func TestBuildEmailSenderSES(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	cfg := &appconfig.Config{
		EmailProvider:       "ses",
		AWSRegion:           "us-east-1",
		AWSAccessKeyID:      "test",
		AWSSecretAccessKey:  "test",
		AWSEndpointOverride: "http://localhost:4566",
		EmailFromAddress:    "alerts@carebook.example",
	}
	sender, provider, err := BuildEmailSender(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, notify.ProviderSES, provider)
	assert.IsType(t, &notify.SESSender{}, sender)
}

func TestBookingDeadline(t *testing.T) {
	cfg := &appconfig.Config{
		HTTPTimeout:       15 * time.Second,
		BookingMaxRetries: 2,
		BookingBackoff:    250 * time.Millisecond,
	}
	step := 45*time.Second + 750*time.Millisecond
	assert.Equal(t, 2*step+15*time.Second, BookingDeadline(cfg))

	// An unset timeout falls back to the client default.
	assert.Equal(t, 2*15*time.Second+15*time.Second, BookingDeadline(&appconfig.Config{}))
}

func TestBuildBookingServiceRequiresBaseURLs(t *testing.T) {
	_, err := BuildBookingService(&appconfig.Config{}, nil, nil, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog")
}

func TestBuildBookingServiceBooksThroughBackends(t *testing.T) {
	catalogSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"svc_1","name":"Consultation","price":150,"currency":"USD"}]}`))
	}))
	t.Cleanup(catalogSrv.Close)
	appointmentSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"appt_1","status":"confirmed"}`))
	}))
	t.Cleanup(appointmentSrv.Close)
	purchaseSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"pur_1","status":"completed"}`))
	}))
	t.Cleanup(purchaseSrv.Close)

	reg := prometheus.NewRegistry()
	m := metrics.NewBookingMetrics(reg)
	cfg := &appconfig.Config{
		ServicesBaseURL:     catalogSrv.URL,
		AppointmentsBaseURL: appointmentSrv.URL,
		PurchaseBaseURL:     purchaseSrv.URL,
		HTTPTimeout:         2 * time.Second,
		BookingMaxRetries:   1,
		BookingBackoff:      time.Millisecond,
		DefaultCurrency:     "USD",
	}
	recorder := support.NewRecorder(support.NewMemoryCaseStore(), nil, "", quietLogger())

	svc, err := BuildBookingService(cfg, m, recorder, quietLogger())
	require.NoError(t, err)

	listing, err := svc.FindService(context.Background(), "svc_1")
	require.NoError(t, err)
	assert.Equal(t, int64(15000), listing.PriceCents)

	result := svc.Book(context.Background(), booking.SelectionFromListing(
		"pat_1", *listing, booking.Slot{Start: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}, ""))
	require.Equal(t, booking.OutcomeBooked, result.Outcome, result.ReasonText())

	expected := `
# HELP carebook_booking_results_total Booking attempts by terminal outcome
# TYPE carebook_booking_results_total counter
carebook_booking_results_total{outcome="booked"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "carebook_booking_results_total"))
	count, err := testutil.GatherAndCount(reg, "carebook_backend_calls_total")
	require.NoError(t, err)
	// catalog, scheduling and billing each made one successful call.
	assert.Equal(t, 3, count)
}
