package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/carebook/internal/backend"
	"github.com/wolfman30/carebook/internal/billing"
	"github.com/wolfman30/carebook/internal/scheduling"
	"github.com/wolfman30/carebook/internal/support"
	"github.com/wolfman30/carebook/pkg/logging"
)

var tracer = otel.Tracer("carebook.internal.booking")

const (
	stepAppointment = "appointment"
	stepPurchase    = "purchase"

	defaultMaxBackoff = 5 * time.Second
)

// AppointmentCreator is satisfied by *scheduling.Client.
type AppointmentCreator interface {
	CreateAppointment(ctx context.Context, req scheduling.AppointmentRequest) (*scheduling.AppointmentRecord, error)
}

// PurchaseCreator is satisfied by *billing.Client.
type PurchaseCreator interface {
	CreatePurchase(ctx context.Context, req billing.PurchaseRequest) (*billing.PurchaseRecord, error)
}

// CaseOpener receives half-completed bookings. Satisfied by *support.Recorder.
type CaseOpener interface {
	Open(ctx context.Context, c support.Case) (*support.Case, error)
}

// Observer receives saga metrics. Satisfied by *metrics.BookingMetrics.
type Observer interface {
	ObserveBooking(outcome string, elapsed time.Duration)
	ObserveRetry(step string)
}

// RetryPolicy bounds retries of transport failures. Each step gets up to
// MaxRetries extra attempts; the n-th retry waits Backoff * 2^n, capped at
// MaxBackoff.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	maxBackoff := p.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	if p.Backoff <= 0 {
		return 0
	}
	if attempt > 30 {
		return maxBackoff
	}
	delay := p.Backoff * time.Duration(1<<attempt)
	if delay > maxBackoff || delay <= 0 {
		delay = maxBackoff
	}
	return delay
}

// StepBudget is the longest one saga step can take when every call runs to
// callTimeout: MaxRetries+1 calls plus the backoff between them.
func (p RetryPolicy) StepBudget(callTimeout time.Duration) time.Duration {
	retries := max(p.MaxRetries, 0)
	budget := time.Duration(retries+1) * callTimeout
	for attempt := 0; attempt < retries; attempt++ {
		budget += p.delay(attempt)
	}
	return budget
}

// Dependencies wires an Orchestrator. Appointments and Purchases are required.
type Dependencies struct {
	Appointments AppointmentCreator
	Purchases    PurchaseCreator
	Policy       RetryPolicy
	Cases        CaseOpener
	Observer     Observer
	Logger       *logging.Logger
}

// Orchestrator runs one booking saga: appointment first, then a purchase
// that references it. An Orchestrator is single-use.
type Orchestrator struct {
	appointments AppointmentCreator
	purchases    PurchaseCreator
	policy       RetryPolicy
	cases        CaseOpener
	observer     Observer
	logger       *logging.Logger

	sleep  func(ctx context.Context, d time.Duration) error
	newKey func() string
	now    func() time.Time

	mu          sync.Mutex
	used        bool
	state       State
	transitions []State
}

// NewOrchestrator creates an idle orchestrator.
func NewOrchestrator(deps Dependencies) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	policy := deps.Policy
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	return &Orchestrator{
		appointments: deps.Appointments,
		purchases:    deps.Purchases,
		policy:       policy,
		cases:        deps.Cases,
		observer:     deps.Observer,
		logger:       logger,
		sleep:        sleepContext,
		newKey:       uuid.NewString,
		now:          time.Now,
		state:        StateIdle,
		transitions:  []State{StateIdle},
	}
}

// State returns the current saga state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Transitions returns every state the saga has entered, in order.
func (o *Orchestrator) Transitions() []State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]State(nil), o.transitions...)
}

// Run executes the saga for sel and returns its single Result. A second call
// returns ErrAlreadyUsed; the Result is otherwise always non-nil and the
// error nil, whatever the backends did.
//
// Cancelling ctx is honoured only until the appointment exists. From then on
// the purchase step runs to a terminal state regardless.
func (o *Orchestrator) Run(ctx context.Context, sel Selection) (*Result, error) {
	o.mu.Lock()
	if o.used {
		o.mu.Unlock()
		return nil, ErrAlreadyUsed
	}
	o.used = true
	o.mu.Unlock()

	started := o.now()
	ctx, span := tracer.Start(ctx, "booking.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("carebook.patient_id", sel.PatientID),
		attribute.String("carebook.service_id", sel.ServiceID),
	)

	result := o.run(ctx, sel)

	span.SetAttributes(
		attribute.String("booking.outcome", string(result.Outcome)),
		attribute.Int("booking.appointment_attempts", result.AppointmentAttempts),
		attribute.Int("booking.purchase_attempts", result.PurchaseAttempts),
	)
	if result.Outcome != OutcomeBooked {
		span.SetStatus(codes.Error, string(result.Outcome))
		if result.Reason != nil {
			span.RecordError(result.Reason)
		}
	}
	if o.observer != nil {
		o.observer.ObserveBooking(string(result.Outcome), o.now().Sub(started))
	}

	logArgs := []any{
		"outcome", result.Outcome,
		"patient_id", sel.PatientID,
		"service_id", sel.ServiceID,
		"appointment_attempts", result.AppointmentAttempts,
		"purchase_attempts", result.PurchaseAttempts,
	}
	if result.Appointment != nil {
		logArgs = append(logArgs, "appointment_id", result.Appointment.ID)
	}
	if result.Purchase != nil {
		logArgs = append(logArgs, "purchase_id", result.Purchase.ID)
	}
	if result.Reason != nil {
		logArgs = append(logArgs, "error", result.Reason)
	}
	switch result.Outcome {
	case OutcomeBooked:
		o.logger.Info("booking completed", logArgs...)
	case OutcomePurchaseFailed, OutcomeAmbiguous:
		o.logger.Error("booking left appointment without confirmed payment", logArgs...)
	default:
		o.logger.Warn("booking failed", logArgs...)
	}
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, sel Selection) *Result {
	if err := sel.Validate(); err != nil {
		return o.finish(StateAppointmentFailed, &Result{
			Outcome: OutcomeAppointmentFailed,
			Reason:  fmt.Errorf("booking: %w", err),
		})
	}
	if o.appointments == nil || o.purchases == nil {
		return o.finish(StateAppointmentFailed, &Result{
			Outcome: OutcomeAppointmentFailed,
			Reason:  errors.New("booking: orchestrator missing backend clients"),
		})
	}

	o.transition(StateCreatingAppointment)
	var appointment *scheduling.AppointmentRecord
	apptReq := sel.appointmentRequest()
	attempts, err := o.withRetry(ctx, stepAppointment, func(ctx context.Context) error {
		record, err := o.appointments.CreateAppointment(ctx, apptReq)
		if err != nil {
			return err
		}
		appointment = record
		return nil
	})
	if err != nil {
		return o.appointmentFailed(ctx, sel, attempts, err)
	}
	if appointment == nil || appointment.ID == "" {
		// Never purchase without an appointment id in hand.
		return o.appointmentFailed(ctx, sel, attempts,
			&backend.MalformedResponseError{Service: "scheduling", Err: errors.New("appointment id missing")})
	}
	if appointment.Status == scheduling.StatusRejected {
		return o.finish(StateAppointmentFailed, &Result{
			Outcome:             OutcomeAppointmentFailed,
			Appointment:         appointment,
			Reason:              fmt.Errorf("booking: appointment %s rejected by scheduling", appointment.ID),
			AppointmentAttempts: attempts,
		})
	}

	// The appointment exists remotely. Caller cancellation no longer applies.
	purchaseCtx := context.WithoutCancel(ctx)
	o.transition(StateCreatingPurchase)

	var purchase *billing.PurchaseRecord
	purchaseReq := sel.purchaseRequest(appointment.ID, o.newKey())
	purchaseAttempts, err := o.withRetry(purchaseCtx, stepPurchase, func(ctx context.Context) error {
		record, err := o.purchases.CreatePurchase(ctx, purchaseReq)
		if err != nil {
			return err
		}
		purchase = record
		return nil
	})

	result := &Result{
		Appointment:         appointment,
		Purchase:            purchase,
		AppointmentAttempts: attempts,
		PurchaseAttempts:    purchaseAttempts,
	}
	switch {
	case err == nil && purchase.Status == billing.StatusFailed:
		result.Outcome = OutcomePurchaseFailed
		result.Reason = fmt.Errorf("booking: purchase %s reported failed by billing", purchase.ID)
		o.openCase(purchaseCtx, sel, result, support.KindPurchaseFailed)
		return o.finish(StatePurchaseFailed, result)
	case err == nil:
		result.Outcome = OutcomeBooked
		return o.finish(StateBooked, result)
	case backend.IsAmbiguous(err), backend.Classify(err) == backend.KindUnknown:
		result.Outcome = OutcomeAmbiguous
		result.Reason = fmt.Errorf("booking: purchase outcome unknown: %w", err)
		var malformed *backend.MalformedResponseError
		if errors.As(err, &malformed) {
			result.RawBody = malformed.RawBody
		}
		o.openCase(purchaseCtx, sel, result, support.KindAmbiguous)
		return o.finish(StateAmbiguous, result)
	default:
		result.Outcome = OutcomePurchaseFailed
		result.Reason = fmt.Errorf("booking: purchase failed: %w", err)
		o.openCase(purchaseCtx, sel, result, support.KindPurchaseFailed)
		return o.finish(StatePurchaseFailed, result)
	}
}

func (o *Orchestrator) appointmentFailed(ctx context.Context, sel Selection, attempts int, err error) *Result {
	result := &Result{AppointmentAttempts: attempts}
	if backend.IsRetriable(err) && ctx.Err() != nil {
		result.Outcome = OutcomeNetworkError
		result.Reason = fmt.Errorf("booking: appointment abandoned: %w", errors.Join(err, context.Cause(ctx)))
		return o.finish(StateNetworkError, result)
	}

	result.Outcome = OutcomeAppointmentFailed
	result.Reason = fmt.Errorf("booking: appointment failed: %w", err)
	if backend.IsAmbiguous(err) {
		o.openCase(context.WithoutCancel(ctx), sel, result, support.KindAppointmentUnverified)
	}
	return o.finish(StateAppointmentFailed, result)
}

// withRetry calls fn until it succeeds, fails with a non-transport error, or
// MaxRetries retries are spent. It returns the number of calls made.
func (o *Orchestrator) withRetry(ctx context.Context, step string, fn func(context.Context) error) (int, error) {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return attempt + 1, nil
		}
		if !backend.IsRetriable(err) || attempt >= o.policy.MaxRetries || ctx.Err() != nil {
			return attempt + 1, err
		}

		o.logger.Warn("booking step retry",
			"step", step,
			"attempt", attempt+1,
			"max_retries", o.policy.MaxRetries,
			"error", err,
		)
		if o.observer != nil {
			o.observer.ObserveRetry(step)
		}
		if sleepErr := o.sleep(ctx, o.policy.delay(attempt)); sleepErr != nil {
			return attempt + 1, err
		}
	}
}

func (o *Orchestrator) openCase(ctx context.Context, sel Selection, result *Result, kind support.Kind) {
	if o.cases == nil {
		return
	}
	c := support.Case{
		Kind:        kind,
		PatientID:   sel.PatientID,
		ServiceID:   sel.ServiceID,
		AmountCents: sel.AmountCents,
		Currency:    sel.Currency,
		Reason:      result.ReasonText(),
		RawBody:     result.RawBody,
	}
	if result.Appointment != nil {
		c.AppointmentID = result.Appointment.ID
	}
	if result.Purchase != nil {
		c.PurchaseID = result.Purchase.ID
	}
	opened, err := o.cases.Open(ctx, c)
	if err != nil {
		o.logger.Error("failed to open support case",
			"error", err,
			"kind", kind,
			"appointment_id", c.AppointmentID,
		)
		return
	}
	result.CaseID = opened.ID
}

func (o *Orchestrator) transition(to State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = to
	o.transitions = append(o.transitions, to)
}

func (o *Orchestrator) finish(to State, result *Result) *Result {
	o.transition(to)
	return result
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
