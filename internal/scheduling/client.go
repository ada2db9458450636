// Package scheduling creates appointments on the scheduling backend.
package scheduling

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

const appointmentsPath = "/api/appointments"

// Client submits appointment creation requests. A created appointment cannot
// be undone through this client.
type Client struct {
	transport *backend.Client
	logger    *logging.Logger
}

// NewClient builds a scheduling client over the given transport config.
func NewClient(cfg backend.Config) (*Client, error) {
	if cfg.Service == "" {
		cfg.Service = "scheduling"
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

// CreateAppointment validates req and registers it with the backend. It
// returns *backend.ValidationError without calling out, *backend.RejectedError
// on non-2xx and *backend.NetworkError on transport failure. It never retries.
func (c *Client) CreateAppointment(ctx context.Context, req AppointmentRequest) (*AppointmentRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("scheduling: %w", err)
	}

	resp, err := c.transport.Do(ctx, backend.Request{
		Method: http.MethodPost,
		Path:   appointmentsPath,
		Body:   req,
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling: create appointment: %w", err)
	}

	record, err := decodeRecord(resp.Body, req)
	if err != nil {
		return nil, &backend.MalformedResponseError{Service: "scheduling", RawBody: string(resp.Body), Err: err}
	}
	c.logger.Info("appointment created",
		"appointment_id", record.ID,
		"patient_id", record.PatientID,
		"service_id", record.ServiceID,
		"status", record.Status,
	)
	return record, nil
}

// Validate checks the required fields.
func (r AppointmentRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.PatientID) == "":
		return backend.Required("patientId")
	case strings.TrimSpace(r.ServiceID) == "":
		return backend.Required("serviceId")
	case r.Window.Start.IsZero():
		return backend.Required("window.start")
	case !r.Window.End.IsZero() && !r.Window.End.After(r.Window.Start):
		return &backend.ValidationError{Field: "window.end", Reason: "must be after window.start"}
	}
	return nil
}

// decodeRecord parses a created appointment, echoing request fields the
// backend omitted. The body must carry an identifier.
func decodeRecord(body []byte, req AppointmentRequest) (*AppointmentRecord, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty body")
	}
	var env appointmentEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, err
	}
	payload := env.appointmentResponse
	if env.Data != nil {
		payload = *env.Data
	}

	id := payload.ID
	if id == "" {
		id = payload.AppointmentID
	}
	if id == "" {
		id = payload.LegacyID
	}
	if id == "" {
		return nil, errors.New("missing appointment id")
	}

	record := &AppointmentRecord{
		ID:        id,
		Status:    payload.Status,
		PatientID: payload.PatientID,
		ServiceID: payload.ServiceID,
		Notes:     payload.Notes,
		Window:    req.Window,
	}
	if record.Status == "" {
		record.Status = StatusPending
	}
	if record.PatientID == "" {
		record.PatientID = req.PatientID
	}
	if record.ServiceID == "" {
		record.ServiceID = req.ServiceID
	}
	if record.Notes == "" {
		record.Notes = req.Notes
	}
	if payload.Window != nil && !payload.Window.Start.IsZero() {
		record.Window = *payload.Window
	}
	return record, nil
}
