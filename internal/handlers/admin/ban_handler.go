// internal/handlers/admin/ban_handler.go
package admin

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"blogware/internal/middleware"
	"blogware/internal/models"
	"blogware/internal/response"
	"blogware/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// BanHandler serves the administrative ban endpoints.
type BanHandler struct {
	bans     services.BanService
	validate *validator.Validate
	logger   *zap.Logger
}

// NewBanHandler creates a new ban handler
func NewBanHandler(bans services.BanService, logger *zap.Logger) *BanHandler {
	return &BanHandler{
		bans:     bans,
		validate: validator.New(),
		logger:   logger,
	}
}

// createBanRequest is the manual ban payload.
type createBanRequest struct {
	Subject     string `json:"subject" validate:"required,max=255"`
	SubjectKind string `json:"subject_kind" validate:"omitempty,oneof=user anonymous"`
	Reason      string `json:"reason" validate:"required,max=1000"`
	ReasonCode  string `json:"reason_code" validate:"omitempty,max=64"`
	Duration    string `json:"duration" validate:"required"`
}

// CreateBan handles POST /api/admin/bans
func (h *BanHandler) CreateBan(w http.ResponseWriter, r *http.Request) {
	var req createBanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteError(w, services.NewValidationError("invalid request body", err))
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		response.WriteError(w, services.NewValidationError(err.Error(), err))
		return
	}

	duration, err := time.ParseDuration(req.Duration)
	if err != nil || duration <= 0 {
		response.WriteError(w, services.NewValidationError("duration must be a positive duration string", err))
		return
	}

	record, err := h.bans.Ban(r.Context(), &services.BanRequest{
		Subject:     req.Subject,
		SubjectKind: req.SubjectKind,
		Reason:      req.Reason,
		ReasonCode:  req.ReasonCode,
		Duration:    duration,
	})
	if err != nil {
		response.WriteError(w, err)
		return
	}

	middleware.GetRequestLogger(r.Context()).Info("Manual ban created",
		zap.String("subject", req.Subject),
		zap.Int64("ban_id", record.ID),
	)

	response.WriteJSON(w, http.StatusCreated, record)
}

// ListBans handles GET /api/admin/bans
func (h *BanHandler) ListBans(w http.ResponseWriter, r *http.Request) {
	params := paginationFromQuery(r)
	activeOnly := r.URL.Query().Get("active") == "true"

	bans, meta, err := h.bans.ListBans(r.Context(), params, activeOnly)
	if err != nil {
		response.WriteError(w, err)
		return
	}

	if bans == nil {
		bans = []*models.BanRecord{}
	}
	response.WriteList(w, http.StatusOK, bans, meta)
}

// GetBan handles GET /api/admin/bans/{id}
func (h *BanHandler) GetBan(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.WriteError(w, services.NewValidationError("invalid ban id", err))
		return
	}

	record, err := h.bans.GetBan(r.Context(), id)
	if err != nil {
		response.WriteError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, record)
}

// DeleteBan handles DELETE /api/admin/bans/{id}
func (h *BanHandler) DeleteBan(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.WriteError(w, services.NewValidationError("invalid ban id", err))
		return
	}

	if err := h.bans.Unban(r.Context(), id); err != nil {
		response.WriteError(w, err)
		return
	}

	middleware.GetRequestLogger(r.Context()).Info("Ban lifted by admin",
		zap.Int64("ban_id", id),
	)

	response.WriteJSON(w, http.StatusOK, map[string]interface{}{"unbanned": id})
}

// paginationFromQuery reads limit and offset query parameters.
func paginationFromQuery(r *http.Request) models.PaginationParams {
	params := models.PaginationParams{}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		params.Limit = limit
	}
	if offset, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil {
		params.Offset = offset
	}
	return params
}
