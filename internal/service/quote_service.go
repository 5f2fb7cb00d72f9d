package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/clearbill/billing-api/internal/auth"
	"github.com/clearbill/billing-api/internal/billing"
	"github.com/clearbill/billing-api/internal/domain"
	"github.com/clearbill/billing-api/internal/mailer"
	"github.com/clearbill/billing-api/internal/mapper"
	"github.com/clearbill/billing-api/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type QuoteService struct {
	quoteRepo   *repository.QuoteRepository
	invoiceRepo *repository.InvoiceRepository
	clientRepo  *repository.ClientRepository
	userRepo    *repository.UserRepository
	numbers     *DocumentNumberService
	renderer    DocumentRenderer
	mail        EmailSender
	archive     DocumentArchiver
	audit       *AuditLogService
	logger      *zap.Logger
}

func NewQuoteService(
	quoteRepo *repository.QuoteRepository,
	invoiceRepo *repository.InvoiceRepository,
	clientRepo *repository.ClientRepository,
	userRepo *repository.UserRepository,
	numbers *DocumentNumberService,
	renderer DocumentRenderer,
	mail EmailSender,
	archive DocumentArchiver,
	audit *AuditLogService,
	logger *zap.Logger,
) *QuoteService {
	return &QuoteService{
		quoteRepo:   quoteRepo,
		invoiceRepo: invoiceRepo,
		clientRepo:  clientRepo,
		userRepo:    userRepo,
		numbers:     numbers,
		renderer:    renderer,
		mail:        mail,
		archive:     archive,
		audit:       audit,
		logger:      logger,
	}
}

// NextNumber returns the number the next created quote would receive
func (s *QuoteService) NextNumber(ctx context.Context) (string, error) {
	return s.numbers.NextQuoteNumber(ctx)
}

func (s *QuoteService) Create(ctx context.Context, req *domain.CreateQuoteRequest) (*domain.QuoteDTO, error) {
	userCtx, ok := auth.FromContext(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}

	ownerID, err := s.resolveOwner(ctx, userCtx, req.UserID, req.ClientID)
	if err != nil {
		return nil, err
	}

	items, totals, err := buildQuoteItems(req.Items, req.TaxRate, req.GlobalDiscount, req.IsReverseCharge)
	if err != nil {
		return nil, err
	}

	issueDate := time.Now().UTC()
	if req.IssueDate != nil {
		issueDate = *req.IssueDate
	}

	quote := &domain.Quote{
		UserID:          ownerID,
		ClientID:        req.ClientID,
		IssueDate:       issueDate,
		ValidUntil:      req.ValidUntil,
		ServiceStart:    req.ServiceStart,
		ServiceEnd:      req.ServiceEnd,
		Status:          domain.QuoteStatusDraft,
		Subtotal:        totals.Subtotal,
		TaxRate:         totals.TaxRate,
		TaxAmount:       totals.TaxAmount,
		Total:           totals.Total,
		GlobalDiscount:  req.GlobalDiscount,
		IsReverseCharge: req.IsReverseCharge,
		Notes:           req.Notes,
		Items:           items,
	}
	if req.IsReverseCharge {
		quote.ReverseChargeNote = billing.ReverseChargeNote
	}

	if err := s.createNumbered(ctx, quote, req.Number); err != nil {
		return nil, err
	}

	s.logger.Info("quote created",
		zap.String("quote_id", quote.ID.String()),
		zap.String("number", quote.Number),
		zap.String("user_id", ownerID.String()))

	return s.GetByID(ctx, quote.ID)
}

func (s *QuoteService) createNumbered(ctx context.Context, quote *domain.Quote, customNumber string) error {
	if customNumber != "" {
		quote.Number = customNumber
		if err := s.quoteRepo.Create(ctx, quote); err != nil {
			if repository.IsUniqueViolation(err) {
				return fmt.Errorf("quote number %s already exists: %w", customNumber, ErrConflict)
			}
			return fmt.Errorf("failed to create quote: %w", err)
		}
		return nil
	}

	for attempt := 0; attempt < 2; attempt++ {
		number, err := s.numbers.NextQuoteNumber(ctx)
		if err != nil {
			return err
		}
		quote.Number = number

		err = s.quoteRepo.Create(ctx, quote)
		if err == nil {
			return nil
		}
		if repository.IsUniqueViolation(err) && attempt == 0 {
			s.logger.Warn("quote number collision, retrying",
				zap.String("number", number))
			continue
		}
		return fmt.Errorf("failed to create quote: %w", err)
	}
	return fmt.Errorf("failed to create quote: %w", ErrConflict)
}

func (s *QuoteService) resolveOwner(ctx context.Context, userCtx *auth.UserContext, requestedUserID, clientID *uuid.UUID) (uuid.UUID, error) {
	if requestedUserID != nil {
		if !userCtx.IsAdmin() {
			return uuid.Nil, fmt.Errorf("only admins may create documents for other users: %w", ErrPermissionDenied)
		}
		if _, err := s.userRepo.GetByID(ctx, *requestedUserID); err != nil {
			return uuid.Nil, fmt.Errorf("user not found: %w", ErrNotFound)
		}
		return *requestedUserID, nil
	}

	if clientID != nil {
		client, err := s.clientRepo.GetByID(ctx, *clientID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("client not found: %w", ErrNotFound)
		}
		if client.UserID != nil {
			return *client.UserID, nil
		}
	}

	if userCtx.UserID != uuid.Nil {
		return userCtx.UserID, nil
	}

	return uuid.Nil, fmt.Errorf("no owning user could be resolved: %w", ErrInvalidInput)
}

func (s *QuoteService) GetByID(ctx context.Context, id uuid.UUID) (*domain.QuoteDTO, error) {
	quote, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	dto := mapper.ToQuoteDTO(quote)
	return &dto, nil
}

func (s *QuoteService) load(ctx context.Context, id uuid.UUID) (*domain.Quote, error) {
	quote, err := s.quoteRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("quote not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}

	if userCtx, ok := auth.FromContext(ctx); ok && !userCtx.IsAdmin() && quote.UserID != userCtx.UserID {
		return nil, fmt.Errorf("quote belongs to another user: %w", ErrPermissionDenied)
	}

	return quote, nil
}

// List returns quotes visible to the caller, with server-side scoping for
// CLIENT callers.
func (s *QuoteService) List(ctx context.Context, filter repository.QuoteFilter, page, pageSize int) (*domain.PaginatedResponse, error) {
	userCtx, ok := auth.FromContext(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}
	if !userCtx.IsAdmin() {
		filter.UserID = &userCtx.UserID
	}

	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 200 {
		pageSize = 200
	}
	if page < 1 {
		page = 1
	}

	quotes, total, err := s.quoteRepo.List(ctx, filter, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list quotes: %w", err)
	}

	dtos := make([]domain.QuoteDTO, len(quotes))
	for i := range quotes {
		dtos[i] = mapper.ToQuoteDTO(&quotes[i])
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return &domain.PaginatedResponse{
		Data:       dtos,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

func (s *QuoteService) Update(ctx context.Context, id uuid.UUID, req *domain.UpdateQuoteRequest) (*domain.QuoteDTO, error) {
	userCtx, ok := auth.FromContext(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}
	if !userCtx.IsAdmin() {
		return nil, fmt.Errorf("only admins may update documents: %w", ErrPermissionDenied)
	}

	quote, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if quote.Status == domain.QuoteStatusConverted {
		return nil, fmt.Errorf("quote %s has already been converted: %w", quote.Number, ErrAlreadyConverted)
	}
	if len(req.Items) > 0 && quote.Status != domain.QuoteStatusDraft {
		return nil, fmt.Errorf("items of a %s quote cannot be edited: %w", quote.Status, ErrNotDraft)
	}

	if req.ClientID != nil {
		if _, err := s.clientRepo.GetByID(ctx, *req.ClientID); err != nil {
			return nil, fmt.Errorf("client not found: %w", ErrNotFound)
		}
		quote.ClientID = req.ClientID
	}
	if req.IssueDate != nil {
		quote.IssueDate = *req.IssueDate
	}
	if req.ValidUntil != nil {
		quote.ValidUntil = req.ValidUntil
	}
	if req.ServiceStart != nil {
		quote.ServiceStart = req.ServiceStart
	}
	if req.ServiceEnd != nil {
		quote.ServiceEnd = req.ServiceEnd
	}
	if req.Notes != nil {
		quote.Notes = *req.Notes
	}
	if req.GlobalDiscount != nil {
		quote.GlobalDiscount = *req.GlobalDiscount
	}
	if req.IsReverseCharge != nil {
		quote.IsReverseCharge = *req.IsReverseCharge
		if quote.IsReverseCharge {
			quote.ReverseChargeNote = billing.ReverseChargeNote
		} else {
			quote.ReverseChargeNote = ""
		}
	}

	rate := quote.TaxRate
	if req.TaxRate != nil {
		rate = *req.TaxRate
	}
	taxChanged := req.TaxRate != nil || req.GlobalDiscount != nil || req.IsReverseCharge != nil

	if len(req.Items) > 0 {
		items, totals, err := buildQuoteItems(req.Items, &rate, quote.GlobalDiscount, quote.IsReverseCharge)
		if err != nil {
			return nil, err
		}
		quote.Subtotal = totals.Subtotal
		quote.TaxRate = totals.TaxRate
		quote.TaxAmount = totals.TaxAmount
		quote.Total = totals.Total

		if err := s.quoteRepo.ReplaceItems(ctx, quote, items); err != nil {
			return nil, fmt.Errorf("failed to replace quote items: %w", err)
		}
	} else {
		if taxChanged {
			// Line totals stay as stored; only the document-level figures
			// depend on rate, discount and reverse charge.
			totals := billing.Compute(quoteLines(quote.Items), quote.GlobalDiscount, rate, quote.IsReverseCharge)
			quote.Subtotal = totals.Subtotal
			quote.TaxRate = totals.TaxRate
			quote.TaxAmount = totals.TaxAmount
			quote.Total = totals.Total
		}
		if err := s.quoteRepo.Update(ctx, quote); err != nil {
			return nil, fmt.Errorf("failed to update quote: %w", err)
		}
	}

	return s.GetByID(ctx, id)
}

// quoteLines converts stored items back into calculator input
func quoteLines(items []domain.QuoteItem) []billing.Line {
	lines := make([]billing.Line, len(items))
	for i, item := range items {
		lines[i] = billing.Line{
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Discount:  item.Discount,
		}
	}
	return lines
}

// UpdateStatus transitions the quote lifecycle state
func (s *QuoteService) UpdateStatus(ctx context.Context, id uuid.UUID, req *domain.UpdateQuoteStatusRequest) (*domain.QuoteDTO, error) {
	userCtx, ok := auth.FromContext(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}
	if !userCtx.IsAdmin() {
		return nil, fmt.Errorf("only admins may update documents: %w", ErrPermissionDenied)
	}

	if !req.Status.IsValid() {
		return nil, fmt.Errorf("invalid quote status %q: %w", req.Status, ErrInvalidInput)
	}

	quote, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if !canTransitionQuote(quote.Status, req.Status) {
		return nil, fmt.Errorf("cannot transition quote from %s to %s: %w",
			quote.Status, req.Status, ErrInvalidStatusTransition)
	}
	quote.Status = req.Status

	if err := s.quoteRepo.Update(ctx, quote); err != nil {
		return nil, fmt.Errorf("failed to update quote status: %w", err)
	}

	return s.GetByID(ctx, id)
}

// canTransitionQuote encodes the quote state machine:
// DRAFT -> SENT -> ACCEPTED|DECLINED. CONVERTED is terminal and only
// reachable through ConvertToInvoice.
func canTransitionQuote(from, to domain.QuoteStatus) bool {
	if from == domain.QuoteStatusConverted {
		return false
	}
	if from == to {
		return true
	}
	switch to {
	case domain.QuoteStatusSent:
		return from == domain.QuoteStatusDraft
	case domain.QuoteStatusAccepted, domain.QuoteStatusDeclined:
		return from == domain.QuoteStatusSent
	}
	return false
}

func (s *QuoteService) Delete(ctx context.Context, id uuid.UUID) error {
	userCtx, ok := auth.FromContext(ctx)
	if !ok {
		return ErrUnauthorized
	}
	if !userCtx.IsAdmin() {
		return fmt.Errorf("only admins may delete documents: %w", ErrPermissionDenied)
	}

	if _, err := s.load(ctx, id); err != nil {
		return err
	}

	if err := s.quoteRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete quote: %w", err)
	}

	s.logger.Info("quote deleted", zap.String("quote_id", id.String()))
	return nil
}

// Send renders the quote as a PDF and emails it to the recipient
func (s *QuoteService) Send(ctx context.Context, r *http.Request, id uuid.UUID, req *domain.SendDocumentRequest) (*domain.SendDocumentResponse, error) {
	quote, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if quote.Client == nil {
		return nil, fmt.Errorf("quote has no client link: %w", ErrNotFound)
	}

	recipient := req.Recipient
	if recipient == "" {
		recipient = quote.Client.Email
	}
	if recipient == "" {
		return nil, fmt.Errorf("no recipient email available: %w", ErrInvalidInput)
	}

	pdfBytes, err := s.renderer.RenderQuote(quote)
	if err != nil {
		return nil, fmt.Errorf("failed to render quote %s: %v: %w", quote.Number, err, ErrDelivery)
	}

	s.archivePDF(ctx, "quotes/"+quote.Number+".pdf", pdfBytes)

	subject := fmt.Sprintf("Angebot %s", quote.Number)
	body := req.Message
	if body == "" {
		body = fmt.Sprintf("Sehr geehrte Damen und Herren,\n\nanbei erhalten Sie das Angebot %s.\n\nMit freundlichen Grüßen", quote.Number)
	}
	attachment := quote.Number + ".pdf"

	if err := s.mail.Send(ctx, mailer.Message{
		To:             recipient,
		Subject:        subject,
		Body:           body,
		AttachmentName: attachment,
		Attachment:     pdfBytes,
	}); err != nil {
		return nil, fmt.Errorf("failed to deliver quote %s: %v: %w", quote.Number, err, ErrDelivery)
	}

	if req.SendCopy && quote.User != nil && quote.User.Email != "" {
		if err := s.mail.Send(ctx, mailer.Message{
			To:             quote.User.Email,
			Subject:        "[Copy] " + subject,
			Body:           body,
			AttachmentName: attachment,
			Attachment:     pdfBytes,
		}); err != nil {
			s.logger.Warn("failed to send copy to sender",
				zap.String("number", quote.Number),
				zap.Error(err))
		}
	}

	if quote.Status == domain.QuoteStatusDraft {
		quote.Status = domain.QuoteStatusSent
		if err := s.quoteRepo.Update(ctx, quote); err != nil {
			return nil, fmt.Errorf("failed to mark quote as sent: %w", err)
		}
	}

	s.auditAction(ctx, r, domain.AuditActionQuoteSent, map[string]interface{}{
		"quoteId":   quote.ID.String(),
		"number":    quote.Number,
		"recipient": recipient,
	})

	status := "sent"
	if !s.mail.Enabled() {
		status = "skipped"
	}
	return &domain.SendDocumentResponse{
		Sent:      s.mail.Enabled(),
		Recipient: recipient,
		Status:    status,
	}, nil
}

func (s *QuoteService) archivePDF(ctx context.Context, path string, data []byte) {
	if s.archive == nil {
		return
	}
	if _, err := s.archive.Save(ctx, path, "application/pdf", bytes.NewReader(data)); err != nil {
		s.logger.Warn("failed to archive document", zap.String("path", path), zap.Error(err))
	}
}

func (s *QuoteService) auditAction(ctx context.Context, r *http.Request, action domain.AuditAction, details map[string]interface{}) {
	entry := LogEntry{
		Action:  action,
		Details: details,
	}
	if userCtx, ok := auth.FromContext(ctx); ok {
		entry.UserID = &userCtx.UserID
		entry.UserEmail = userCtx.Email
	}
	s.audit.Log(ctx, r, entry)
}

// ConvertToInvoice creates an invoice from a quote. The quote's client,
// items, totals and reverse-charge flags are copied verbatim; the invoice
// gets a fresh number and a default due date 30 days out. Conversion is
// one-way: a CONVERTED quote is rejected.
func (s *QuoteService) ConvertToInvoice(ctx context.Context, r *http.Request, id uuid.UUID) (*domain.ConvertQuoteResponse, error) {
	userCtx, ok := auth.FromContext(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}
	if !userCtx.IsAdmin() {
		return nil, fmt.Errorf("only admins may convert quotes: %w", ErrPermissionDenied)
	}

	quote, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if quote.Status == domain.QuoteStatusConverted {
		return nil, fmt.Errorf("quote %s has already been converted: %w", quote.Number, ErrAlreadyConverted)
	}

	number, err := s.numbers.NextInvoiceNumber(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	dueDate := now.AddDate(0, 0, 30)

	invoice := &domain.Invoice{
		Number:            number,
		UserID:            quote.UserID,
		ClientID:          quote.ClientID,
		IssueDate:         now,
		DueDate:           &dueDate,
		ServiceStart:      quote.ServiceStart,
		ServiceEnd:        quote.ServiceEnd,
		Status:            domain.InvoiceStatusDraft,
		Subtotal:          quote.Subtotal,
		TaxRate:           quote.TaxRate,
		TaxAmount:         quote.TaxAmount,
		Total:             quote.Total,
		GlobalDiscount:    quote.GlobalDiscount,
		IsReverseCharge:   quote.IsReverseCharge,
		ReverseChargeNote: quote.ReverseChargeNote,
		Notes:             quote.Notes,
	}
	for _, item := range quote.Items {
		invoice.Items = append(invoice.Items, domain.InvoiceItem{
			Position:    item.Position,
			ProductName: item.ProductName,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitName:    item.UnitName,
			UnitPrice:   item.UnitPrice,
			TaxRate:     item.TaxRate,
			Discount:    item.Discount,
			Total:       item.Total,
		})
	}

	if err := s.quoteRepo.ConvertToInvoice(ctx, quote, invoice); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, fmt.Errorf("invoice number %s already exists: %w", number, ErrConflict)
		}
		return nil, fmt.Errorf("failed to convert quote: %w", err)
	}

	s.auditAction(ctx, r, domain.AuditActionQuoteConvertedToInvoice, map[string]interface{}{
		"quoteId":       quote.ID.String(),
		"quoteNumber":   quote.Number,
		"invoiceId":     invoice.ID.String(),
		"invoiceNumber": invoice.Number,
	})

	s.logger.Info("quote converted to invoice",
		zap.String("quote_number", quote.Number),
		zap.String("invoice_number", invoice.Number))

	quoteDTO, err := s.GetByID(ctx, quote.ID)
	if err != nil {
		return nil, err
	}
	reloaded, err := s.invoiceRepo.GetByID(ctx, invoice.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload invoice: %w", err)
	}
	invoiceDTO := mapper.ToInvoiceDTO(reloaded)

	return &domain.ConvertQuoteResponse{
		Quote:   quoteDTO,
		Invoice: &invoiceDTO,
	}, nil
}

// buildQuoteItems validates line items and computes document totals
func buildQuoteItems(reqs []domain.DocumentItemRequest, taxRate *decimal.Decimal, globalDiscount decimal.Decimal, reverseCharge bool) ([]domain.QuoteItem, *billing.Totals, error) {
	lines, err := toBillingLines(reqs)
	if err != nil {
		return nil, nil, err
	}

	rate := billing.DefaultTaxRate
	if taxRate != nil {
		rate = *taxRate
	}
	totals := billing.Compute(lines, globalDiscount, rate, reverseCharge)

	items := make([]domain.QuoteItem, len(reqs))
	for i, req := range reqs {
		items[i] = domain.QuoteItem{
			Position:    i + 1,
			ProductName: req.ProductName,
			Description: req.Description,
			Quantity:    req.Quantity,
			UnitName:    req.UnitName,
			UnitPrice:   req.UnitPrice,
			TaxRate:     req.TaxRate,
			Discount:    req.Discount,
			Total:       totals.LineTotals[i],
		}
	}
	return items, &totals, nil
}
