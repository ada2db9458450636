package support

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/carebook/internal/notify"
)

type captureSender struct {
	sent []notify.EmailMessage
	err  error
}

func (c *captureSender) Send(_ context.Context, msg notify.EmailMessage) error {
	c.sent = append(c.sent, msg)
	return c.err
}

type failingStore struct{ MemoryCaseStore }

func (f *failingStore) Open(context.Context, Case) error { return errors.New("store down") }

func fixedRecorder(store CaseStore, sender notify.EmailSender, to string) *Recorder {
	r := NewRecorder(store, sender, to, nil)
	r.now = func() time.Time { return time.Date(2024, 6, 1, 10, 5, 0, 0, time.UTC) }
	return r
}

func TestRecorder_OpenAssignsIDAndNotifies(t *testing.T) {
	store := NewMemoryCaseStore()
	sender := &captureSender{}
	r := fixedRecorder(store, sender, "support@example.com")

	c, err := r.Open(context.Background(), Case{
		Kind:          KindAmbiguous,
		PatientID:     "pat_1",
		ServiceID:     "svc_1",
		AppointmentID: "appt_9",
		Reason:        "billing: malformed response",
		RawBody:       "not json",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, StatusOpen, c.Status)
	assert.Equal(t, time.Date(2024, 6, 1, 10, 5, 0, 0, time.UTC), c.CreatedAt)

	stored, err := store.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "appt_9", stored.AppointmentID)

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "support@example.com", msg.To)
	assert.Contains(t, msg.Subject, "appt_9")
	assert.Contains(t, msg.Body, "not json")
	assert.Contains(t, msg.Body, c.ID)
}

func TestRecorder_NotificationFailureDoesNotFailOpen(t *testing.T) {
	sender := &captureSender{err: errors.New("smtp down")}
	r := fixedRecorder(NewMemoryCaseStore(), sender, "support@example.com")

	c, err := r.Open(context.Background(), Case{Kind: KindPurchaseFailed, AppointmentID: "appt_1"})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Len(t, sender.sent, 1)
}

func TestRecorder_NoRecipientSkipsEmail(t *testing.T) {
	sender := &captureSender{}
	r := fixedRecorder(NewMemoryCaseStore(), sender, "  ")

	_, err := r.Open(context.Background(), Case{Kind: KindPurchaseFailed, AppointmentID: "appt_1"})
	require.NoError(t, err)
	assert.Empty(t, sender.sent)
}

func TestRecorder_StoreFailure(t *testing.T) {
	sender := &captureSender{}
	r := fixedRecorder(&failingStore{}, sender, "support@example.com")

	_, err := r.Open(context.Background(), Case{Kind: KindAmbiguous})
	assert.Error(t, err)
	assert.Empty(t, sender.sent)
}

func TestRecorder_Resolve(t *testing.T) {
	r := fixedRecorder(NewMemoryCaseStore(), nil, "")
	c, err := r.Open(context.Background(), Case{Kind: KindAmbiguous, AppointmentID: "appt_1"})
	require.NoError(t, err)

	resolved, err := r.Resolve(context.Background(), c.ID, "  refunded  ")
	require.NoError(t, err)
	assert.Equal(t, "refunded", resolved.Resolution)

	open, err := r.List(context.Background(), ListOptions{OpenOnly: true})
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestFormatAlert(t *testing.T) {
	tests := []struct {
		kind    Kind
		subject string
		action  string
	}{
		{KindAmbiguous, "Unconfirmed payment", "Look up the purchase"},
		{KindPurchaseFailed, "Payment failed", "retry payment"},
		{KindAppointmentUnverified, "Unverified appointment", "Search scheduling"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			subject, body := FormatAlert(Case{
				ID:            "c1",
				Kind:          tt.kind,
				PatientID:     "pat_1",
				AppointmentID: "appt_9",
				AmountCents:   150000,
				Currency:      "IDR",
				Reason:        "boom",
			})
			assert.Contains(t, subject, tt.subject)
			assert.Contains(t, body, tt.action)
			assert.Contains(t, body, "Amount: 1500.00 IDR")
			assert.False(t, strings.Contains(body, "Raw billing response"))
		})
	}
}
