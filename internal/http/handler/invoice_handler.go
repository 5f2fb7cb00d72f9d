package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/clearbill/billing-api/internal/domain"
	"github.com/clearbill/billing-api/internal/repository"
	"github.com/clearbill/billing-api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type InvoiceHandler struct {
	invoiceService *service.InvoiceService
	logger         *zap.Logger
}

func NewInvoiceHandler(invoiceService *service.InvoiceService, logger *zap.Logger) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceService: invoiceService,
		logger:         logger,
	}
}

// List godoc
// @Summary List invoices
// @Description Get paginated invoices. Client accounts only ever see their own invoices.
// @Tags Invoices
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Items per page (max 200)" default(20)
// @Param status query string false "Filter by status" Enums(DRAFT, SENT, PAID, OVERDUE, CANCELLED)
// @Param userId query string false "Filter by owning user (admin only)" format(uuid)
// @Param search query string false "Case-insensitive match on invoice number"
// @Success 200 {object} domain.PaginatedResponse{data=[]domain.InvoiceDTO}
// @Failure 401 {object} domain.APIError
// @Security BearerAuth
// @Router /invoices [get]
func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))

	filter := repository.InvoiceFilter{
		Search: r.URL.Query().Get("search"),
	}
	if status := r.URL.Query().Get("status"); status != "" {
		s := domain.InvoiceStatus(status)
		if !s.IsValid() {
			respondWithError(w, http.StatusBadRequest, "Invalid status filter")
			return
		}
		filter.Status = &s
	}
	if userID := r.URL.Query().Get("userId"); userID != "" {
		id, err := uuid.Parse(userID)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid userId filter")
			return
		}
		filter.UserID = &id
	}

	result, err := h.invoiceService.List(r.Context(), filter, page, pageSize)
	if err != nil {
		h.logger.Error("failed to list invoices", zap.Error(err))
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// Stats godoc
// @Summary Invoice statistics
// @Description Aggregated counts and totals. Client accounts get their own figures only.
// @Tags Invoices
// @Produce json
// @Param userId query string false "Filter by owning user (admin only)" format(uuid)
// @Success 200 {object} domain.InvoiceStatsDTO
// @Failure 401 {object} domain.APIError
// @Security BearerAuth
// @Router /invoices/stats [get]
func (h *InvoiceHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var userID *uuid.UUID
	if raw := r.URL.Query().Get("userId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid userId filter")
			return
		}
		userID = &id
	}

	stats, err := h.invoiceService.Stats(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to compute invoice stats", zap.Error(err))
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// NextNumber godoc
// @Summary Next invoice number
// @Tags Invoices
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 401 {object} domain.APIError
// @Security BearerAuth
// @Router /invoices/next-number [get]
func (h *InvoiceHandler) NextNumber(w http.ResponseWriter, r *http.Request) {
	number, err := h.invoiceService.NextNumber(r.Context())
	if err != nil {
		h.logger.Error("failed to determine next invoice number", zap.Error(err))
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"nextNumber": number})
}

// GetByID godoc
// @Summary Get invoice by ID
// @Tags Invoices
// @Produce json
// @Param id path string true "Invoice ID" format(uuid)
// @Success 200 {object} domain.InvoiceDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Router /invoices/{id} [get]
func (h *InvoiceHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid invoice ID format")
		return
	}

	invoice, err := h.invoiceService.GetByID(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, invoice)
}

// Create godoc
// @Summary Create invoice
// @Description Create an invoice with computed totals and a generated sequential number
// @Tags Invoices
// @Accept json
// @Produce json
// @Param request body domain.CreateInvoiceRequest true "Invoice data"
// @Success 201 {object} domain.InvoiceDTO
// @Failure 400 {object} domain.APIError
// @Failure 409 {object} domain.APIError "Duplicate invoice number"
// @Security BearerAuth
// @Router /invoices [post]
func (h *InvoiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validate.Struct(req); err != nil {
		respondValidationError(w, err)
		return
	}

	invoice, err := h.invoiceService.Create(r.Context(), &req)
	if err != nil {
		h.logger.Error("failed to create invoice", zap.Error(err))
		respondServiceError(w, err)
		return
	}

	w.Header().Set("Location", "/api/v1/invoices/"+invoice.ID.String())
	respondJSON(w, http.StatusCreated, invoice)
}

// Update godoc
// @Summary Update invoice
// @Description Update an invoice. Items can only be replaced while the invoice is a draft.
// @Tags Invoices
// @Accept json
// @Produce json
// @Param id path string true "Invoice ID" format(uuid)
// @Param request body domain.UpdateInvoiceRequest true "Invoice data"
// @Success 200 {object} domain.InvoiceDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError "Not admin, or items edited on a non-draft"
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Router /invoices/{id} [patch]
func (h *InvoiceHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid invoice ID format")
		return
	}

	var req domain.UpdateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validate.Struct(req); err != nil {
		respondValidationError(w, err)
		return
	}

	invoice, err := h.invoiceService.Update(r.Context(), id, &req)
	if err != nil {
		h.logger.Error("failed to update invoice", zap.Error(err))
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, invoice)
}

// UpdateStatus godoc
// @Summary Update invoice status
// @Description Transition the invoice lifecycle state. PAID stamps paidAt and paidAmount.
// @Tags Invoices
// @Accept json
// @Produce json
// @Param id path string true "Invoice ID" format(uuid)
// @Param request body domain.UpdateInvoiceStatusRequest true "Target status"
// @Success 200 {object} domain.InvoiceDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError "Transition not allowed"
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Router /invoices/{id}/status [patch]
func (h *InvoiceHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid invoice ID format")
		return
	}

	var req domain.UpdateInvoiceStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validate.Struct(req); err != nil {
		respondValidationError(w, err)
		return
	}

	invoice, err := h.invoiceService.UpdateStatus(r.Context(), id, &req)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, invoice)
}

// Delete godoc
// @Summary Delete invoice
// @Tags Invoices
// @Produce json
// @Param id path string true "Invoice ID" format(uuid)
// @Success 204 "No Content"
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Router /invoices/{id} [delete]
func (h *InvoiceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid invoice ID format")
		return
	}

	if err := h.invoiceService.Delete(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Send godoc
// @Summary Send invoice
// @Description Render the invoice as a PDF and email it. The invoice transitions to SENT.
// @Tags Invoices
// @Accept json
// @Produce json
// @Param id path string true "Invoice ID" format(uuid)
// @Param request body domain.SendDocumentRequest false "Delivery options"
// @Success 200 {object} domain.SendDocumentResponse
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 502 {object} domain.APIError "Invoice saved but not delivered"
// @Security BearerAuth
// @Router /invoices/{id}/send [post]
func (h *InvoiceHandler) Send(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid invoice ID format")
		return
	}

	var req domain.SendDocumentRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if err := validate.Struct(req); err != nil {
			respondValidationError(w, err)
			return
		}
	}

	resp, err := h.invoiceService.Send(r.Context(), r, id, &req)
	if err != nil {
		h.logger.Error("failed to send invoice", zap.Error(err))
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}
