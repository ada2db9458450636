package booking

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/carebook/internal/backend"
	"github.com/wolfman30/carebook/internal/billing"
	"github.com/wolfman30/carebook/internal/catalog"
	"github.com/wolfman30/carebook/internal/scheduling"
)

// ErrAlreadyUsed is returned when an Orchestrator is run a second time.
var ErrAlreadyUsed = errors.New("booking: orchestrator already used")

// State is a step of the booking saga.
type State string

const (
	StateIdle                State = "idle"
	StateCreatingAppointment State = "creating_appointment"
	StateCreatingPurchase    State = "creating_purchase"
	StateBooked              State = "booked"
	StateAppointmentFailed   State = "appointment_failed"
	StatePurchaseFailed      State = "purchase_failed"
	StateAmbiguous           State = "ambiguous"
	StateNetworkError        State = "network_error"
)

// Terminal reports whether no further transition can happen from s.
func (s State) Terminal() bool {
	switch s {
	case StateBooked, StateAppointmentFailed, StatePurchaseFailed, StateAmbiguous, StateNetworkError:
		return true
	}
	return false
}

// Outcome tags a Result.
type Outcome string

const (
	// OutcomeBooked: appointment and purchase both exist.
	OutcomeBooked Outcome = "booked"
	// OutcomeAppointmentFailed: no appointment was created, no purchase attempted.
	OutcomeAppointmentFailed Outcome = "appointment_failed"
	// OutcomePurchaseFailed: the appointment exists but payment definitely did not go through.
	OutcomePurchaseFailed Outcome = "purchase_failed"
	// OutcomeAmbiguous: the appointment exists and the purchase outcome is unknown.
	OutcomeAmbiguous Outcome = "ambiguous"
	// OutcomeNetworkError: the caller gave up while the appointment call was failing at the transport level.
	OutcomeNetworkError Outcome = "network_error"
)

// Slot is the start and optional end of the requested appointment window.
type Slot struct {
	Start time.Time
	End   time.Time
}

var slotLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseSlotTime accepts RFC 3339 with or without seconds. Times without an
// offset are read as UTC.
func ParseSlotTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range slotLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("booking: unrecognized slot time %q", raw)
}

// Selection is what the patient picked: one service and one slot.
type Selection struct {
	PatientID   string
	ServiceID   string
	AmountCents int64
	Currency    string
	Slot        Slot
	Notes       string
}

// SelectionFromListing builds a Selection priced from a catalog entry.
func SelectionFromListing(patientID string, listing catalog.ServiceListing, slot Slot, notes string) Selection {
	return Selection{
		PatientID:   patientID,
		ServiceID:   listing.ID,
		AmountCents: listing.PriceCents,
		Currency:    listing.Currency,
		Slot:        slot,
		Notes:       notes,
	}
}

// ValidateAppointment checks the fields the appointment step needs. Callers
// that price a selection from the catalog run it before the lookup.
func (s Selection) ValidateAppointment() error {
	switch {
	case strings.TrimSpace(s.PatientID) == "":
		return backend.Required("patient_id")
	case strings.TrimSpace(s.ServiceID) == "":
		return backend.Required("service_id")
	case s.Slot.Start.IsZero():
		return backend.Required("slot_start")
	case !s.Slot.End.IsZero() && !s.Slot.End.After(s.Slot.Start):
		return &backend.ValidationError{Field: "slot_end", Reason: "must be after slot_start"}
	}
	return nil
}

// Validate rejects selections that cannot complete both steps, so that no
// appointment is created for a booking whose purchase is bound to fail.
func (s Selection) Validate() error {
	if err := s.ValidateAppointment(); err != nil {
		return err
	}
	switch {
	case s.AmountCents <= 0:
		return &backend.ValidationError{Field: "amount_cents", Reason: "must be positive"}
	case strings.TrimSpace(s.Currency) == "":
		return backend.Required("currency")
	}
	return nil
}

func (s Selection) appointmentRequest() scheduling.AppointmentRequest {
	return scheduling.AppointmentRequest{
		PatientID: s.PatientID,
		ServiceID: s.ServiceID,
		Window:    scheduling.Window{Start: s.Slot.Start, End: s.Slot.End},
		Notes:     s.Notes,
	}
}

func (s Selection) purchaseRequest(appointmentID, idempotencyKey string) billing.PurchaseRequest {
	return billing.PurchaseRequest{
		PatientID:      s.PatientID,
		ServiceID:      s.ServiceID,
		AppointmentID:  appointmentID,
		AmountCents:    s.AmountCents,
		Currency:       strings.ToUpper(s.Currency),
		IdempotencyKey: idempotencyKey,
	}
}

// Result is the single outcome of one booking attempt.
type Result struct {
	Outcome     Outcome
	Appointment *scheduling.AppointmentRecord
	Purchase    *billing.PurchaseRecord
	// Reason is the cause for every outcome except OutcomeBooked.
	Reason error
	// RawBody is the unparseable billing body behind an ambiguous outcome.
	RawBody string

	AppointmentAttempts int
	PurchaseAttempts    int
	// CaseID is the support case opened for a half-completed booking.
	CaseID string
}

// NeedsAttention reports whether an appointment was left without a confirmed
// purchase. Such results must be shown to the patient and to support.
func (r Result) NeedsAttention() bool {
	return r.Outcome == OutcomePurchaseFailed || r.Outcome == OutcomeAmbiguous
}

// ReasonText is Reason.Error() or "".
func (r Result) ReasonText() string {
	if r.Reason == nil {
		return ""
	}
	return r.Reason.Error()
}

// Message is the patient-facing summary. Each outcome reads differently:
// a failed purchase still holds an appointment, and an ambiguous one asks the
// patient to verify before paying again.
func (r Result) Message() string {
	switch r.Outcome {
	case OutcomeBooked:
		return "Your appointment is booked and paid."
	case OutcomeAppointmentFailed:
		if backend.Classify(r.Reason) == backend.KindInvalidRequest {
			return "We could not book this appointment. Please check the selected service and time."
		}
		if backend.IsAmbiguous(r.Reason) {
			return "We could not confirm your appointment and it may have been reserved. Please check your appointments or contact support before booking again."
		}
		return "We could not book this appointment. Nothing was reserved or charged; please try again."
	case OutcomePurchaseFailed:
		return "Your appointment was reserved, but the payment did not go through. Please retry the payment or contact support; your slot is being held."
	case OutcomeAmbiguous:
		return "Your appointment was reserved, but we could not confirm the payment. Please do not pay again; check your wallet history or contact support to verify."
	case OutcomeNetworkError:
		return "We lost the connection while booking. Please check your appointments before trying again."
	default:
		return ""
	}
}
