package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	httpmiddleware "github.com/wolfman30/carebook/internal/http/middleware"
	"github.com/wolfman30/carebook/internal/support"
	"github.com/wolfman30/carebook/pkg/logging"
)

const maxCaseListLimit = 200

// SupportCases is satisfied by *support.Recorder.
type SupportCases interface {
	List(ctx context.Context, opts support.ListOptions) ([]support.Case, error)
	Resolve(ctx context.Context, id, note string) (*support.Case, error)
}

// SupportHandler is the operator view over half-completed bookings.
type SupportHandler struct {
	cases  SupportCases
	logger *logging.Logger
}

func NewSupportHandler(cases SupportCases, logger *logging.Logger) *SupportHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &SupportHandler{cases: cases, logger: logger}
}

type resolveCaseRequest struct {
	Note string `json:"note"`
}

// ListCases returns cases newest first.
// GET /admin/support/cases?status=open&limit=50
func (h *SupportHandler) ListCases(w http.ResponseWriter, r *http.Request) {
	opts := support.ListOptions{OpenOnly: r.URL.Query().Get("status") != "all"}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		opts.Limit = min(limit, maxCaseListLimit)
	}

	cases, err := h.cases.List(r.Context(), opts)
	if err != nil {
		h.logger.Error("list support cases failed", "error", err)
		jsonError(w, "failed to list cases", http.StatusInternalServerError)
		return
	}
	if cases == nil {
		cases = []support.Case{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cases": cases})
}

// ResolveCase closes a case with an operator note.
// POST /admin/support/cases/{caseID}/resolve
func (h *SupportHandler) ResolveCase(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")
	if caseID == "" {
		jsonError(w, "missing caseID", http.StatusBadRequest)
		return
	}
	var req resolveCaseRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Note) == "" {
		jsonError(w, "note is required", http.StatusBadRequest)
		return
	}

	resolved, err := h.cases.Resolve(r.Context(), caseID, req.Note)
	switch {
	case errors.Is(err, support.ErrCaseNotFound):
		jsonError(w, "case not found", http.StatusNotFound)
		return
	case errors.Is(err, support.ErrAlreadyResolved):
		jsonError(w, "case already resolved", http.StatusConflict)
		return
	case err != nil:
		h.logger.Error("resolve support case failed", "error", err, "case_id", caseID)
		jsonError(w, "failed to resolve case", http.StatusInternalServerError)
		return
	}

	h.logger.Info("support case resolved by operator",
		"case_id", caseID,
		"operator", httpmiddleware.AdminSubject(r.Context()),
	)
	writeJSON(w, http.StatusOK, resolved)
}
