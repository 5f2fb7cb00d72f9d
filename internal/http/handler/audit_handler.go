package handler

import (
	"net/http"
	"strconv"

	"github.com/clearbill/billing-api/internal/domain"
	"github.com/clearbill/billing-api/internal/service"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AuditHandler struct {
	auditService *service.AuditLogService
	logger       *zap.Logger
}

func NewAuditHandler(auditService *service.AuditLogService, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		auditService: auditService,
		logger:       logger,
	}
}

// List godoc
// @Summary List audit log entries
// @Description Paginated audit trail, newest first. Admin only.
// @Tags Audit
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Items per page (max 500)" default(50)
// @Param userId query string false "Filter by acting user" format(uuid)
// @Param action query string false "Filter by action, e.g. LOGIN_AS_CLIENT"
// @Success 200 {object} domain.PaginatedResponse{data=[]domain.AuditLogDTO}
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Security BearerAuth
// @Router /audit-logs [get]
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))

	var userID *uuid.UUID
	if raw := r.URL.Query().Get("userId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid userId filter")
			return
		}
		userID = &id
	}

	var action *domain.AuditAction
	if raw := r.URL.Query().Get("action"); raw != "" {
		a := domain.AuditAction(raw)
		action = &a
	}

	result, err := h.auditService.List(r.Context(), userID, action, page, pageSize)
	if err != nil {
		h.logger.Error("failed to list audit logs", zap.Error(err))
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}
