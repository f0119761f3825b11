// internal/handlers/admin/audit_handler.go
package admin

import (
	"net/http"
	"strconv"
	"time"

	"blogware/internal/models"
	"blogware/internal/repositories"
	"blogware/internal/response"
	"blogware/internal/services"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// AuditHandler serves the administrative audit trail endpoints.
type AuditHandler struct {
	audits services.AuditService
	logger *zap.Logger
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(audits services.AuditService, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		audits: audits,
		logger: logger,
	}
}

// ListAudits handles GET /api/admin/audits
func (h *AuditHandler) ListAudits(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := repositories.AuditFilter{
		Actor:    query.Get("actor"),
		Module:   query.Get("module"),
		Outcome:  query.Get("outcome"),
		ClientIP: query.Get("client_ip"),
	}

	if since := query.Get("since"); since != "" {
		parsed, err := time.Parse(time.RFC3339, since)
		if err != nil {
			response.WriteError(w, services.NewValidationError("since must be RFC3339", err))
			return
		}
		filter.Since = &parsed
	}
	if until := query.Get("until"); until != "" {
		parsed, err := time.Parse(time.RFC3339, until)
		if err != nil {
			response.WriteError(w, services.NewValidationError("until must be RFC3339", err))
			return
		}
		filter.Until = &parsed
	}

	records, meta, err := h.audits.ListAudits(r.Context(), filter, paginationFromQuery(r))
	if err != nil {
		response.WriteError(w, err)
		return
	}

	if records == nil {
		records = []*models.AuditRecord{}
	}
	response.WriteList(w, http.StatusOK, records, meta)
}

// GetAudit handles GET /api/admin/audits/{id}
func (h *AuditHandler) GetAudit(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.WriteError(w, services.NewValidationError("invalid audit id", err))
		return
	}

	record, err := h.audits.GetAudit(r.Context(), id)
	if err != nil {
		response.WriteError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, record)
}
