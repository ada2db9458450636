package billing

// PurchaseStatus is the billing backend's view of a purchase.
type PurchaseStatus string

const (
	StatusPending   PurchaseStatus = "pending"
	StatusCompleted PurchaseStatus = "completed"
	StatusFailed    PurchaseStatus = "failed"
)

// PurchaseRequest registers payment for a booked appointment.
// AppointmentID must reference an appointment the scheduling backend created.
type PurchaseRequest struct {
	PatientID     string `json:"patientId"`
	ServiceID     string `json:"serviceId"`
	AppointmentID string `json:"appointmentId"`
	AmountCents   int64  `json:"amount"`
	Currency      string `json:"currency"`

	// IdempotencyKey groups retries of one logical purchase. Sent as a header.
	IdempotencyKey string `json:"-"`
}

// PurchaseRecord is a purchase the billing backend acknowledged.
type PurchaseRecord struct {
	ID            string         `json:"id"`
	Status        PurchaseStatus `json:"status"`
	AppointmentID string         `json:"appointmentId"`
}

type purchaseResponse struct {
	ID            string         `json:"id"`
	LegacyID      string         `json:"_id"`
	PurchaseID    string         `json:"purchaseId"`
	Status        PurchaseStatus `json:"status"`
	AppointmentID string         `json:"appointmentId"`
}

type purchaseEnvelope struct {
	Data *purchaseResponse `json:"data"`
	purchaseResponse
}
