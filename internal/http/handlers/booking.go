package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/wolfman30/carebook/internal/backend"
	"github.com/wolfman30/carebook/internal/billing"
	"github.com/wolfman30/carebook/internal/booking"
	"github.com/wolfman30/carebook/internal/catalog"
	"github.com/wolfman30/carebook/internal/scheduling"
	"github.com/wolfman30/carebook/pkg/logging"
)

// BookingService is satisfied by *booking.Service.
type BookingService interface {
	ListServices(ctx context.Context) ([]catalog.ServiceListing, error)
	FindService(ctx context.Context, id string) (*catalog.ServiceListing, error)
	Book(ctx context.Context, sel booking.Selection) *booking.Result
}

// DuplicateSubmitObserver counts refused double submissions.
type DuplicateSubmitObserver interface {
	ObserveDuplicateSubmit()
}

// BookingHandler serves the patient-facing catalog and booking endpoints.
type BookingHandler struct {
	service  BookingService
	guard    booking.SubmissionGuard
	observer DuplicateSubmitObserver
	logger   *logging.Logger
}

// NewBookingHandler creates a booking handler. A nil guard falls back to an
// in-process one.
func NewBookingHandler(service BookingService, guard booking.SubmissionGuard, observer DuplicateSubmitObserver, logger *logging.Logger) *BookingHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if guard == nil {
		guard = booking.NewMemorySubmissionGuard()
	}
	return &BookingHandler{
		service:  service,
		guard:    guard,
		observer: observer,
		logger:   logger,
	}
}

type createBookingRequest struct {
	PatientID   string `json:"patient_id"`
	ServiceID   string `json:"service_id"`
	SlotStart   string `json:"slot_start"`
	SlotEnd     string `json:"slot_end,omitempty"`
	Notes       string `json:"notes,omitempty"`
	AmountCents int64  `json:"amount_cents,omitempty"`
	Currency    string `json:"currency,omitempty"`
}

type bookingResponse struct {
	Outcome       booking.Outcome               `json:"outcome"`
	Message       string                        `json:"message"`
	Appointment   *scheduling.AppointmentRecord `json:"appointment,omitempty"`
	Purchase      *billing.PurchaseRecord       `json:"purchase,omitempty"`
	SupportCaseID string                        `json:"support_case_id,omitempty"`
	ErrorKind     string                        `json:"error_kind,omitempty"`
}

type servicesResponse struct {
	Services []catalog.ServiceListing `json:"services"`
}

// ListServices returns the bookable services.
// GET /api/services
func (h *BookingHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	listings, err := h.service.ListServices(r.Context())
	if err != nil {
		h.logger.Error("list services failed", "error", err, "kind", backend.Classify(err))
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Error: "service catalog is unavailable",
			Kind:  string(backend.Classify(err)),
		})
		return
	}
	if listings == nil {
		listings = []catalog.ServiceListing{}
	}
	writeJSON(w, http.StatusOK, servicesResponse{Services: listings})
}

// CreateBooking runs one booking attempt and reports its outcome.
// POST /api/bookings
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	start, err := booking.ParseSlotTime(req.SlotStart)
	if err != nil {
		jsonError(w, "invalid slot_start", http.StatusBadRequest)
		return
	}
	end, err := booking.ParseSlotTime(req.SlotEnd)
	if err != nil {
		jsonError(w, "invalid slot_end", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	release, err := h.guard.Acquire(ctx, req.PatientID)
	switch {
	case errors.Is(err, booking.ErrSubmissionInFlight):
		if h.observer != nil {
			h.observer.ObserveDuplicateSubmit()
		}
		jsonError(w, "a booking for this patient is already in progress", http.StatusTooManyRequests)
		return
	case err != nil:
		// Lock store unavailable: proceed without double-submit protection.
		h.logger.Warn("submission guard unavailable", "error", err, "patient_id", req.PatientID)
		release = func() {}
	}
	defer release()

	sel := booking.Selection{
		PatientID:   strings.TrimSpace(req.PatientID),
		ServiceID:   strings.TrimSpace(req.ServiceID),
		AmountCents: req.AmountCents,
		Currency:    strings.TrimSpace(req.Currency),
		Slot:        booking.Slot{Start: start, End: end},
		Notes:       strings.TrimSpace(req.Notes),
	}
	if sel.AmountCents == 0 {
		// Reject before the catalog lookup so an invalid request makes no
		// network call.
		if err := sel.ValidateAppointment(); err != nil {
			h.writeResult(w, &booking.Result{Outcome: booking.OutcomeAppointmentFailed, Reason: err})
			return
		}
		listing, err := h.service.FindService(ctx, sel.ServiceID)
		switch {
		case errors.Is(err, booking.ErrServiceNotFound):
			jsonError(w, "unknown service_id", http.StatusUnprocessableEntity)
			return
		case err != nil:
			h.logger.Error("price lookup failed", "error", err, "service_id", sel.ServiceID)
			writeJSON(w, http.StatusBadGateway, errorResponse{
				Error: "service catalog is unavailable",
				Kind:  string(backend.Classify(err)),
			})
			return
		}
		sel.AmountCents = listing.PriceCents
		if sel.Currency == "" {
			sel.Currency = listing.Currency
		}
	}

	h.writeResult(w, h.service.Book(ctx, sel))
}

func (h *BookingHandler) writeResult(w http.ResponseWriter, result *booking.Result) {
	writeJSON(w, statusForResult(result), bookingResponse{
		Outcome:       result.Outcome,
		Message:       result.Message(),
		Appointment:   result.Appointment,
		Purchase:      result.Purchase,
		SupportCaseID: result.CaseID,
		ErrorKind:     string(backend.Classify(result.Reason)),
	})
}

func statusForResult(result *booking.Result) int {
	switch result.Outcome {
	case booking.OutcomeBooked:
		return http.StatusCreated
	case booking.OutcomeAmbiguous:
		return http.StatusAccepted
	case booking.OutcomePurchaseFailed:
		return http.StatusConflict
	case booking.OutcomeNetworkError:
		return http.StatusGatewayTimeout
	case booking.OutcomeAppointmentFailed:
		if backend.Classify(result.Reason) == backend.KindInvalidRequest {
			return http.StatusUnprocessableEntity
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
