// Package billing registers purchases with the wallet/billing backend.
//
// The billing backend is known to answer 2xx with an empty or non-JSON body.
// Those answers do not say whether the purchase was recorded, so CreatePurchase
// surfaces them as backend.ErrEmptyResponse and *backend.MalformedResponseError
// instead of guessing. Callers must treat both as "unknown, verify out of band".
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/wolfman30/carebook/internal/backend"
	"github.com/wolfman30/carebook/pkg/logging"
)

const purchasePath = "/service/purchase"

// Client submits purchase creation requests. It never retries.
type Client struct {
	transport *backend.Client
	logger    *logging.Logger
}

// NewClient builds a billing client over the given transport config.
func NewClient(cfg backend.Config) (*Client, error) {
	if cfg.Service == "" {
		cfg.Service = "billing"
	}
	transport, err := backend.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{transport: transport, logger: logger}, nil
}

// CreatePurchase validates req and registers it. Outcomes:
//   - record, nil: the backend acknowledged the purchase
//   - *backend.ValidationError: nothing was sent
//   - *backend.RejectedError / *backend.NetworkError: the purchase was not recorded
//   - backend.ErrEmptyResponse / *backend.MalformedResponseError: unknown
func (c *Client) CreatePurchase(ctx context.Context, req PurchaseRequest) (*PurchaseRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("billing: %w", err)
	}

	resp, err := c.transport.Do(ctx, backend.Request{
		Method:         http.MethodPost,
		Path:           purchasePath,
		Body:           req,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, fmt.Errorf("billing: create purchase: %w", err)
	}

	raw := resp.Body
	if len(bytes.TrimSpace(raw)) == 0 {
		c.logger.Warn("billing: empty success body",
			"status", resp.StatusCode,
			"appointment_id", req.AppointmentID,
			"patient_id", req.PatientID,
		)
		return nil, fmt.Errorf("billing: status %d: %w", resp.StatusCode, backend.ErrEmptyResponse)
	}

	record, err := decodeRecord(raw)
	if err != nil {
		c.logger.Warn("billing: unparseable success body",
			"status", resp.StatusCode,
			"appointment_id", req.AppointmentID,
			"error", err,
		)
		return nil, &backend.MalformedResponseError{Service: "billing", RawBody: string(raw), Err: err}
	}
	switch record.AppointmentID {
	case "":
		record.AppointmentID = req.AppointmentID
	case req.AppointmentID:
	default:
		c.logger.Warn("billing: purchase recorded against another appointment",
			"purchase_id", record.ID,
			"appointment_id", req.AppointmentID,
			"reported_appointment_id", record.AppointmentID,
		)
		return nil, &backend.MalformedResponseError{
			Service: "billing",
			RawBody: string(raw),
			Err:     fmt.Errorf("appointment id mismatch: got %q want %q", record.AppointmentID, req.AppointmentID),
		}
	}
	c.logger.Info("purchase created",
		"purchase_id", record.ID,
		"appointment_id", record.AppointmentID,
		"status", record.Status,
	)
	return record, nil
}

// Validate checks the required fields.
func (r PurchaseRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.PatientID) == "":
		return backend.Required("patientId")
	case strings.TrimSpace(r.ServiceID) == "":
		return backend.Required("serviceId")
	case strings.TrimSpace(r.AppointmentID) == "":
		return backend.Required("appointmentId")
	case r.AmountCents <= 0:
		return &backend.ValidationError{Field: "amount", Reason: "must be positive"}
	case strings.TrimSpace(r.Currency) == "":
		return backend.Required("currency")
	}
	return nil
}

func decodeRecord(raw []byte) (*PurchaseRecord, error) {
	var env purchaseEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	payload := env.purchaseResponse
	if env.Data != nil {
		payload = *env.Data
	}
	id := payload.ID
	if id == "" {
		id = payload.PurchaseID
	}
	if id == "" {
		id = payload.LegacyID
	}
	if id == "" {
		return nil, errors.New("missing purchase id")
	}
	status := payload.Status
	if status == "" {
		status = StatusPending
	}
	return &PurchaseRecord{ID: id, Status: status, AppointmentID: payload.AppointmentID}, nil
}
