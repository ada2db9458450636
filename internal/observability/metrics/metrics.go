package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BookingMetrics exposes counters/histograms for the booking saga and the
// backend calls it makes.
type BookingMetrics struct {
	bookingsTotal      *prometheus.CounterVec
	bookingDuration    *prometheus.HistogramVec
	retriesTotal       *prometheus.CounterVec
	backendCallsTotal  *prometheus.CounterVec
	backendLatency     *prometheus.HistogramVec
	submitRejectsTotal prometheus.Counter
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carebook",
			Subsystem: "booking",
			Name:      "results_total",
			Help:      "Booking attempts by terminal outcome",
		}, []string{"outcome"}),
		bookingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "carebook",
			Subsystem: "booking",
			Name:      "duration_seconds",
			Help:      "Wall time of one booking attempt including retries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carebook",
			Subsystem: "booking",
			Name:      "step_retries_total",
			Help:      "Retries of a saga step after a transport failure",
		}, []string{"step"}),
		backendCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carebook",
			Subsystem: "backend",
			Name:      "calls_total",
			Help:      "Backend HTTP calls by service and result class",
		}, []string{"service", "result"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "carebook",
			Subsystem: "backend",
			Name:      "call_latency_seconds",
			Help:      "Latency of backend HTTP calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service"}),
		submitRejectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "carebook",
			Subsystem: "booking",
			Name:      "duplicate_submits_total",
			Help:      "Booking submissions refused because one was already in flight",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.bookingDuration, m.retriesTotal, m.backendCallsTotal, m.backendLatency, m.submitRejectsTotal)
	return m
}

func (m *BookingMetrics) ObserveBooking(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
	m.bookingDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *BookingMetrics) ObserveRetry(step string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(step).Inc()
}

// ObserveBackendCall records one call. An empty kind means success.
func (m *BookingMetrics) ObserveBackendCall(service, kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "ok"
	}
	m.backendCallsTotal.WithLabelValues(service, kind).Inc()
	m.backendLatency.WithLabelValues(service).Observe(elapsed.Seconds())
}

func (m *BookingMetrics) ObserveDuplicateSubmit() {
	if m == nil {
		return
	}
	m.submitRejectsTotal.Inc()
}
