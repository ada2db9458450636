package support

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/carebook/internal/notify"
	"github.com/wolfman30/carebook/pkg/logging"
)

var recorderTracer = otel.Tracer("carebook.internal.support.recorder")

// Recorder opens cases and alerts the support inbox.
type Recorder struct {
	store  CaseStore
	email  notify.EmailSender
	to     string
	logger *logging.Logger
	now    func() time.Time
}

// NewRecorder creates a Recorder. email and to are optional; without them
// cases are stored and logged only.
func NewRecorder(store CaseStore, email notify.EmailSender, to string, logger *logging.Logger) *Recorder {
	if logger == nil {
		logger = logging.Default()
	}
	if store == nil {
		store = NewMemoryCaseStore()
	}
	return &Recorder{
		store:  store,
		email:  email,
		to:     strings.TrimSpace(to),
		logger: logger,
		now:    time.Now,
	}
}

// Open stores c as a new open case and notifies support. A notification
// failure is logged and does not fail the call.
func (r *Recorder) Open(ctx context.Context, c Case) (*Case, error) {
	ctx, span := recorderTracer.Start(ctx, "support.case.open")
	defer span.End()
	span.SetAttributes(
		attribute.String("support.case.kind", string(c.Kind)),
		attribute.String("carebook.appointment_id", c.AppointmentID),
	)

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.now().UTC()
	}
	c.Status = StatusOpen

	if err := r.store.Open(ctx, c); err != nil {
		span.RecordError(err)
		return nil, err
	}

	r.logger.Warn("support case opened",
		"case_id", c.ID,
		"kind", c.Kind,
		"patient_id", c.PatientID,
		"appointment_id", c.AppointmentID,
		"reason", c.Reason,
	)

	if err := r.notify(ctx, c); err != nil {
		r.logger.Error("failed to notify support", "error", err, "case_id", c.ID)
	}
	return &c, nil
}

func (r *Recorder) List(ctx context.Context, opts ListOptions) ([]Case, error) {
	return r.store.List(ctx, opts)
}

// Resolve closes a case with an operator note.
func (r *Recorder) Resolve(ctx context.Context, id, note string) (*Case, error) {
	c, err := r.store.Resolve(ctx, id, strings.TrimSpace(note), r.now())
	if err != nil {
		return nil, err
	}
	r.logger.Info("support case resolved", "case_id", c.ID, "kind", c.Kind)
	return c, nil
}

func (r *Recorder) notify(ctx context.Context, c Case) error {
	if r.email == nil || r.to == "" {
		return nil
	}
	subject, body := FormatAlert(c)
	return r.email.Send(ctx, notify.EmailMessage{
		To:      r.to,
		ToName:  "Support",
		Subject: subject,
		Body:    body,
	})
}

// FormatAlert renders the support email for a case.
func FormatAlert(c Case) (subject, body string) {
	switch c.Kind {
	case KindAmbiguous:
		subject = "[Action required] Unconfirmed payment for appointment " + c.AppointmentID
	case KindPurchaseFailed:
		subject = "[Action required] Payment failed for appointment " + c.AppointmentID
	case KindAppointmentUnverified:
		subject = "[Check] Unverified appointment for patient " + c.PatientID
	default:
		subject = "[Support] Booking case " + c.ID
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Case ID: %s\n", c.ID))
	sb.WriteString(fmt.Sprintf("Kind: %s\n", c.Kind))
	sb.WriteString(fmt.Sprintf("Created: %s\n\n", c.CreatedAt.Format(time.RFC1123)))
	sb.WriteString(fmt.Sprintf("Patient: %s\n", c.PatientID))
	sb.WriteString(fmt.Sprintf("Service: %s\n", c.ServiceID))
	if c.AppointmentID != "" {
		sb.WriteString(fmt.Sprintf("Appointment: %s\n", c.AppointmentID))
	}
	if c.PurchaseID != "" {
		sb.WriteString(fmt.Sprintf("Purchase: %s\n", c.PurchaseID))
	}
	if c.AmountCents > 0 {
		sb.WriteString(fmt.Sprintf("Amount: %.2f %s\n", float64(c.AmountCents)/100, c.Currency))
	}

	sb.WriteString("\n--- Reason ---\n")
	sb.WriteString(c.Reason)
	sb.WriteString("\n")

	if c.RawBody != "" {
		sb.WriteString("\n--- Raw billing response ---\n")
		sb.WriteString(c.RawBody)
		sb.WriteString("\n")
	}

	sb.WriteString("\n--- Recommended Action ---\n")
	sb.WriteString(recommendedAction(c.Kind))
	sb.WriteString("\n")
	return subject, sb.String()
}

func recommendedAction(kind Kind) string {
	switch kind {
	case KindAmbiguous:
		return "1. Look up the purchase in billing by appointment id\n2. If it exists, confirm with the patient\n3. If not, ask the patient to retry payment"
	case KindPurchaseFailed:
		return "1. Contact the patient to retry payment\n2. Release the appointment in scheduling if they decline"
	case KindAppointmentUnverified:
		return "1. Search scheduling for an appointment for this patient and service\n2. Remove any duplicate before the patient books again"
	default:
		return "Review the booking manually."
	}
}
