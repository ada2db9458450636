package scheduling

import "time"

// AppointmentStatus is the scheduling backend's view of an appointment.
type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusRejected  AppointmentStatus = "rejected"
)

// Window is the requested time range. End may be zero for open-ended slots.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end,omitzero"`
}

// AppointmentRequest is the input for CreateAppointment.
type AppointmentRequest struct {
	PatientID string `json:"patientId"`
	ServiceID string `json:"serviceId"`
	Window    Window `json:"window"`
	Notes     string `json:"notes,omitempty"`
}

// AppointmentRecord is a created appointment. Read-only after creation.
type AppointmentRecord struct {
	ID        string            `json:"id"`
	Status    AppointmentStatus `json:"status"`
	PatientID string            `json:"patientId"`
	ServiceID string            `json:"serviceId"`
	Window    Window            `json:"window"`
	Notes     string            `json:"notes,omitempty"`
}

type appointmentResponse struct {
	ID            string            `json:"id"`
	LegacyID      string            `json:"_id"`
	AppointmentID string            `json:"appointmentId"`
	Status        AppointmentStatus `json:"status"`
	PatientID     string            `json:"patientId"`
	ServiceID     string            `json:"serviceId"`
	Window        *Window           `json:"window"`
	Notes         string            `json:"notes"`
}

type appointmentEnvelope struct {
	Data *appointmentResponse `json:"data"`
	appointmentResponse
}
