package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/carebook/internal/support"
)

func newSupportRouter(t *testing.T) (http.Handler, *support.Recorder) {
	t.Helper()
	recorder := support.NewRecorder(support.NewMemoryCaseStore(), nil, "", testLogger())
	h := NewSupportHandler(recorder, testLogger())

	r := chi.NewRouter()
	r.Get("/admin/support/cases", h.ListCases)
	r.Post("/admin/support/cases/{caseID}/resolve", h.ResolveCase)
	return r, recorder
}

func openCase(t *testing.T, recorder *support.Recorder, id, appointmentID string, createdAt time.Time) {
	t.Helper()
	_, err := recorder.Open(context.Background(), support.Case{
		ID:            id,
		Kind:          support.KindAmbiguous,
		PatientID:     "pat_1",
		AppointmentID: appointmentID,
		AmountCents:   15000,
		Currency:      "USD",
		CreatedAt:     createdAt,
	})
	require.NoError(t, err)
}

func TestSupportListCases(t *testing.T) {
	router, recorder := newSupportRouter(t)
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	openCase(t, recorder, "case_old", "appt_1", base)
	openCase(t, recorder, "case_new", "appt_2", base.Add(time.Minute))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/support/cases", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Cases []support.Case `json:"cases"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Cases, 2)
	assert.Equal(t, "case_new", out.Cases[0].ID)
	assert.Equal(t, "case_old", out.Cases[1].ID)
}

func TestSupportListCasesLimitAndStatus(t *testing.T) {
	router, recorder := newSupportRouter(t)
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	openCase(t, recorder, "case_a", "appt_1", base)
	openCase(t, recorder, "case_b", "appt_2", base.Add(time.Minute))
	_, err := recorder.Resolve(context.Background(), "case_a", "refunded")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/support/cases", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "case_b")
	assert.NotContains(t, rec.Body.String(), "case_a")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/support/cases?status=all&limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Cases []support.Case `json:"cases"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Cases, 1)
	assert.Equal(t, "case_b", out.Cases[0].ID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/support/cases?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSupportResolveCase(t *testing.T) {
	router, recorder := newSupportRouter(t)
	openCase(t, recorder, "case_1", "appt_9", time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))

	resolve := func(id, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/admin/support/cases/"+id+"/resolve", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := resolve("case_1", `{"note":"purchase pur_5 confirmed with billing"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resolved support.Case
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resolved))
	assert.Equal(t, support.StatusResolved, resolved.Status)
	assert.Equal(t, "purchase pur_5 confirmed with billing", resolved.Resolution)
	assert.NotNil(t, resolved.ResolvedAt)

	assert.Equal(t, http.StatusConflict, resolve("case_1", `{"note":"again"}`).Code)
	assert.Equal(t, http.StatusNotFound, resolve("case_missing", `{"note":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, resolve("case_1", `{"note":"   "}`).Code)
}
