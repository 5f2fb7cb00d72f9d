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

type QuoteHandler struct {
	quoteService *service.QuoteService
	logger       *zap.Logger
}

func NewQuoteHandler(quoteService *service.QuoteService, logger *zap.Logger) *QuoteHandler {
	return &QuoteHandler{
		quoteService: quoteService,
		logger:       logger,
	}
}

// List godoc
// @Summary List quotes
// @Description Get paginated quotes. Client accounts only ever see their own quotes.
// @Tags Quotes
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Items per page (max 200)" default(20)
// @Param status query string false "Filter by status" Enums(DRAFT, SENT, ACCEPTED, DECLINED, CONVERTED)
// @Param userId query string false "Filter by owning user (admin only)" format(uuid)
// @Param search query string false "Case-insensitive match on quote number"
// @Success 200 {object} domain.PaginatedResponse{data=[]domain.QuoteDTO}
// @Failure 401 {object} domain.APIError
// @Security BearerAuth
// @Router /quotes [get]
func (h *QuoteHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))

	filter := repository.QuoteFilter{
		Search: r.URL.Query().Get("search"),
	}
	if status := r.URL.Query().Get("status"); status != "" {
		s := domain.QuoteStatus(status)
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

	result, err := h.quoteService.List(r.Context(), filter, page, pageSize)
	if err != nil {
		h.logger.Error("failed to list quotes", zap.Error(err))
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// NextNumber godoc
// @Summary Next quote number
// @Tags Quotes
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 401 {object} domain.APIError
// @Security BearerAuth
// @Router /quotes/next-number [get]
func (h *QuoteHandler) NextNumber(w http.ResponseWriter, r *http.Request) {
	number, err := h.quoteService.NextNumber(r.Context())
	if err != nil {
		h.logger.Error("failed to determine next quote number", zap.Error(err))
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"nextNumber": number})
}

// GetByID godoc
// @Summary Get quote by ID
// @Tags Quotes
// @Produce json
// @Param id path string true "Quote ID" format(uuid)
// @Success 200 {object} domain.QuoteDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Router /quotes/{id} [get]
func (h *QuoteHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid quote ID format")
		return
	}

	quote, err := h.quoteService.GetByID(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, quote)
}

// Create godoc
// @Summary Create quote
// @Description Create a quote with computed totals and a generated sequential number
// @Tags Quotes
// @Accept json
// @Produce json
// @Param request body domain.CreateQuoteRequest true "Quote data"
// @Success 201 {object} domain.QuoteDTO
// @Failure 400 {object} domain.APIError
// @Failure 409 {object} domain.APIError "Duplicate quote number"
// @Security BearerAuth
// @Router /quotes [post]
func (h *QuoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateQuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validate.Struct(req); err != nil {
		respondValidationError(w, err)
		return
	}

	quote, err := h.quoteService.Create(r.Context(), &req)
	if err != nil {
		h.logger.Error("failed to create quote", zap.Error(err))
		respondServiceError(w, err)
		return
	}

	w.Header().Set("Location", "/api/v1/quotes/"+quote.ID.String())
	respondJSON(w, http.StatusCreated, quote)
}

// Update godoc
// @Summary Update quote
// @Description Update a quote. Items can only be replaced while the quote is a draft.
// @Tags Quotes
// @Accept json
// @Produce json
// @Param id path string true "Quote ID" format(uuid)
// @Param request body domain.UpdateQuoteRequest true "Quote data"
// @Success 200 {object} domain.QuoteDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError "Not admin, already converted, or items edited on a non-draft"
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Router /quotes/{id} [patch]
func (h *QuoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid quote ID format")
		return
	}

	var req domain.UpdateQuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validate.Struct(req); err != nil {
		respondValidationError(w, err)
		return
	}

	quote, err := h.quoteService.Update(r.Context(), id, &req)
	if err != nil {
		h.logger.Error("failed to update quote", zap.Error(err))
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, quote)
}

// UpdateStatus godoc
// @Summary Update quote status
// @Description Transition the quote lifecycle state. CONVERTED cannot be set directly.
// @Tags Quotes
// @Accept json
// @Produce json
// @Param id path string true "Quote ID" format(uuid)
// @Param request body domain.UpdateQuoteStatusRequest true "Target status"
// @Success 200 {object} domain.QuoteDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError "Transition not allowed"
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Router /quotes/{id}/status [patch]
func (h *QuoteHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid quote ID format")
		return
	}

	var req domain.UpdateQuoteStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validate.Struct(req); err != nil {
		respondValidationError(w, err)
		return
	}

	quote, err := h.quoteService.UpdateStatus(r.Context(), id, &req)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, quote)
}

// Delete godoc
// @Summary Delete quote
// @Tags Quotes
// @Produce json
// @Param id path string true "Quote ID" format(uuid)
// @Success 204 "No Content"
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Router /quotes/{id} [delete]
func (h *QuoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid quote ID format")
		return
	}

	if err := h.quoteService.Delete(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Send godoc
// @Summary Send quote
// @Description Render the quote as a PDF and email it. The quote transitions to SENT.
// @Tags Quotes
// @Accept json
// @Produce json
// @Param id path string true "Quote ID" format(uuid)
// @Param request body domain.SendDocumentRequest false "Delivery options"
// @Success 200 {object} domain.SendDocumentResponse
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 502 {object} domain.APIError "Quote saved but not delivered"
// @Security BearerAuth
// @Router /quotes/{id}/send [post]
func (h *QuoteHandler) Send(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid quote ID format")
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

	resp, err := h.quoteService.Send(r.Context(), r, id, &req)
	if err != nil {
		h.logger.Error("failed to send quote", zap.Error(err))
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// Convert godoc
// @Summary Convert quote to invoice
// @Description Create a draft invoice from the quote and mark the quote CONVERTED. One-way.
// @Tags Quotes
// @Produce json
// @Param id path string true "Quote ID" format(uuid)
// @Success 201 {object} domain.ConvertQuoteResponse
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError "Quote already converted"
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Router /quotes/{id}/convert-to-invoice [post]
func (h *QuoteHandler) Convert(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid quote ID format")
		return
	}

	resp, err := h.quoteService.ConvertToInvoice(r.Context(), r, id)
	if err != nil {
		h.logger.Error("failed to convert quote", zap.Error(err))
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, resp)
}
