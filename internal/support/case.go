// Package support tracks bookings that were left half-completed: an
// appointment exists but its payment failed or could not be confirmed.
// There is no cancellation call on the scheduling side, so every such case
// goes to an operator.
package support

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCaseNotFound    = errors.New("support: case not found")
	ErrAlreadyResolved = errors.New("support: case already resolved")
)

// Kind says why a case was opened.
type Kind string

const (
	// KindPurchaseFailed: the appointment exists and billing definitely refused payment.
	KindPurchaseFailed Kind = "purchase_failed"
	// KindAmbiguous: the appointment exists and the payment outcome is unknown.
	KindAmbiguous Kind = "ambiguous"
	// KindAppointmentUnverified: scheduling answered 2xx with a body we could not read,
	// so an appointment may exist without us knowing its id.
	KindAppointmentUnverified Kind = "appointment_unverified"
)

// Status of a case.
type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
)

// Case is one orphaned or unverified booking awaiting an operator.
type Case struct {
	ID            string     `json:"id"`
	Kind          Kind       `json:"kind"`
	Status        Status     `json:"status"`
	PatientID     string     `json:"patient_id"`
	ServiceID     string     `json:"service_id"`
	AppointmentID string     `json:"appointment_id,omitempty"`
	PurchaseID    string     `json:"purchase_id,omitempty"`
	AmountCents   int64      `json:"amount_cents,omitempty"`
	Currency      string     `json:"currency,omitempty"`
	Reason        string     `json:"reason"`
	RawBody       string     `json:"raw_body,omitempty"`
	Resolution    string     `json:"resolution,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

// ListOptions filters List. Limit <= 0 means DefaultListLimit.
type ListOptions struct {
	Limit    int
	OpenOnly bool
}

const DefaultListLimit = 50

// CaseStore persists cases. List returns newest first.
type CaseStore interface {
	Open(ctx context.Context, c Case) error
	Get(ctx context.Context, id string) (*Case, error)
	List(ctx context.Context, opts ListOptions) ([]Case, error)
	Resolve(ctx context.Context, id, note string, at time.Time) (*Case, error)
}

func (o ListOptions) limit() int {
	if o.Limit <= 0 {
		return DefaultListLimit
	}
	return o.Limit
}
