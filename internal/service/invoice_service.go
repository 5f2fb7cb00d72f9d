package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
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

// DocumentRenderer turns a loaded document into a PDF byte buffer
type DocumentRenderer interface {
	RenderInvoice(invoice *domain.Invoice) ([]byte, error)
	RenderQuote(quote *domain.Quote) ([]byte, error)
}

// EmailSender delivers outgoing mail. Enabled reports whether a transport
// is configured; a disabled sender drops messages without error.
type EmailSender interface {
	Enabled() bool
	Send(ctx context.Context, msg mailer.Message) error
}

// DocumentArchiver stores a copy of every sent document
type DocumentArchiver interface {
	Save(ctx context.Context, path string, contentType string, data io.Reader) (int64, error)
}

type InvoiceService struct {
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

func NewInvoiceService(
	invoiceRepo *repository.InvoiceRepository,
	clientRepo *repository.ClientRepository,
	userRepo *repository.UserRepository,
	numbers *DocumentNumberService,
	renderer DocumentRenderer,
	mail EmailSender,
	archive DocumentArchiver,
	audit *AuditLogService,
	logger *zap.Logger,
) *InvoiceService {
	return &InvoiceService{
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

// NextNumber returns the number the next created invoice would receive
func (s *InvoiceService) NextNumber(ctx context.Context) (string, error) {
	return s.numbers.NextInvoiceNumber(ctx)
}

// Create creates an invoice with computed totals and a generated number.
// The owning user is resolved from the request, the client's linked user, or
// the acting user, in that order.
func (s *InvoiceService) Create(ctx context.Context, req *domain.CreateInvoiceRequest) (*domain.InvoiceDTO, error) {
	userCtx, ok := auth.FromContext(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}

	ownerID, err := s.resolveOwner(ctx, userCtx, req.UserID, req.ClientID)
	if err != nil {
		return nil, err
	}

	items, totals, err := buildInvoiceItems(req.Items, req.TaxRate, req.GlobalDiscount, req.IsReverseCharge)
	if err != nil {
		return nil, err
	}

	issueDate := time.Now().UTC()
	if req.IssueDate != nil {
		issueDate = *req.IssueDate
	}

	invoice := &domain.Invoice{
		UserID:          ownerID,
		ClientID:        req.ClientID,
		IssueDate:       issueDate,
		DueDate:         req.DueDate,
		ServiceStart:    req.ServiceStart,
		ServiceEnd:      req.ServiceEnd,
		Status:          domain.InvoiceStatusDraft,
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
		invoice.ReverseChargeNote = billing.ReverseChargeNote
	}

	if err := s.createNumbered(ctx, invoice, req.Number); err != nil {
		return nil, err
	}

	s.logger.Info("invoice created",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("number", invoice.Number),
		zap.String("user_id", ownerID.String()))

	return s.GetByID(ctx, invoice.ID)
}

// createNumbered persists the invoice, generating a number unless the caller
// supplied one. A duplicate generated number (two creates racing on the same
// sequence read) is retried once against the unique constraint.
func (s *InvoiceService) createNumbered(ctx context.Context, invoice *domain.Invoice, customNumber string) error {
	if customNumber != "" {
		invoice.Number = customNumber
		if err := s.invoiceRepo.Create(ctx, invoice); err != nil {
			if repository.IsUniqueViolation(err) {
				return fmt.Errorf("invoice number %s already exists: %w", customNumber, ErrConflict)
			}
			return fmt.Errorf("failed to create invoice: %w", err)
		}
		return nil
	}

	for attempt := 0; attempt < 2; attempt++ {
		number, err := s.numbers.NextInvoiceNumber(ctx)
		if err != nil {
			return err
		}
		invoice.Number = number

		err = s.invoiceRepo.Create(ctx, invoice)
		if err == nil {
			return nil
		}
		if repository.IsUniqueViolation(err) && attempt == 0 {
			s.logger.Warn("invoice number collision, retrying",
				zap.String("number", number))
			continue
		}
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return fmt.Errorf("failed to create invoice: %w", ErrConflict)
}

// resolveOwner determines the user an invoice belongs to
func (s *InvoiceService) resolveOwner(ctx context.Context, userCtx *auth.UserContext, requestedUserID, clientID *uuid.UUID) (uuid.UUID, error) {
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

func (s *InvoiceService) GetByID(ctx context.Context, id uuid.UUID) (*domain.InvoiceDTO, error) {
	invoice, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	dto := mapper.ToInvoiceDTO(invoice)
	return &dto, nil
}

// load fetches an invoice and enforces ownership for CLIENT callers
func (s *InvoiceService) load(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	invoice, err := s.invoiceRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("invoice not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	if userCtx, ok := auth.FromContext(ctx); ok && !userCtx.IsAdmin() && invoice.UserID != userCtx.UserID {
		return nil, fmt.Errorf("invoice belongs to another user: %w", ErrPermissionDenied)
	}

	return invoice, nil
}

// List returns invoices visible to the caller. CLIENT callers are always
// scoped to their own documents regardless of the requested filter.
func (s *InvoiceService) List(ctx context.Context, filter repository.InvoiceFilter, page, pageSize int) (*domain.PaginatedResponse, error) {
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

	invoices, total, err := s.invoiceRepo.List(ctx, filter, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}

	dtos := make([]domain.InvoiceDTO, len(invoices))
	for i := range invoices {
		dtos[i] = mapper.ToInvoiceDTO(&invoices[i])
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

// Update modifies an invoice. Only supplied fields are touched. Items may
// only be replaced while the invoice is still a draft; the replace is
// wholesale, never a merge. A change to the tax rate, global discount or
// reverse-charge flag recomputes totals even without an item replacement.
func (s *InvoiceService) Update(ctx context.Context, id uuid.UUID, req *domain.UpdateInvoiceRequest) (*domain.InvoiceDTO, error) {
	userCtx, ok := auth.FromContext(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}
	if !userCtx.IsAdmin() {
		return nil, fmt.Errorf("only admins may update documents: %w", ErrPermissionDenied)
	}

	invoice, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if len(req.Items) > 0 && invoice.Status != domain.InvoiceStatusDraft {
		return nil, fmt.Errorf("items of a %s invoice cannot be edited: %w", invoice.Status, ErrNotDraft)
	}

	if req.ClientID != nil {
		if _, err := s.clientRepo.GetByID(ctx, *req.ClientID); err != nil {
			return nil, fmt.Errorf("client not found: %w", ErrNotFound)
		}
		invoice.ClientID = req.ClientID
	}
	if req.IssueDate != nil {
		invoice.IssueDate = *req.IssueDate
	}
	if req.DueDate != nil {
		invoice.DueDate = req.DueDate
	}
	if req.ServiceStart != nil {
		invoice.ServiceStart = req.ServiceStart
	}
	if req.ServiceEnd != nil {
		invoice.ServiceEnd = req.ServiceEnd
	}
	if req.Notes != nil {
		invoice.Notes = *req.Notes
	}
	if req.GlobalDiscount != nil {
		invoice.GlobalDiscount = *req.GlobalDiscount
	}
	if req.IsReverseCharge != nil {
		invoice.IsReverseCharge = *req.IsReverseCharge
		if invoice.IsReverseCharge {
			invoice.ReverseChargeNote = billing.ReverseChargeNote
		} else {
			invoice.ReverseChargeNote = ""
		}
	}

	rate := invoice.TaxRate
	if req.TaxRate != nil {
		rate = *req.TaxRate
	}
	taxChanged := req.TaxRate != nil || req.GlobalDiscount != nil || req.IsReverseCharge != nil

	if len(req.Items) > 0 {
		items, totals, err := buildInvoiceItems(req.Items, &rate, invoice.GlobalDiscount, invoice.IsReverseCharge)
		if err != nil {
			return nil, err
		}
		invoice.Subtotal = totals.Subtotal
		invoice.TaxRate = totals.TaxRate
		invoice.TaxAmount = totals.TaxAmount
		invoice.Total = totals.Total

		if err := s.invoiceRepo.ReplaceItems(ctx, invoice, items); err != nil {
			return nil, fmt.Errorf("failed to replace invoice items: %w", err)
		}
	} else {
		if taxChanged {
			// Line totals stay as stored; only the document-level figures
			// depend on rate, discount and reverse charge.
			totals := billing.Compute(invoiceLines(invoice.Items), invoice.GlobalDiscount, rate, invoice.IsReverseCharge)
			invoice.Subtotal = totals.Subtotal
			invoice.TaxRate = totals.TaxRate
			invoice.TaxAmount = totals.TaxAmount
			invoice.Total = totals.Total
		}
		if err := s.invoiceRepo.Update(ctx, invoice); err != nil {
			return nil, fmt.Errorf("failed to update invoice: %w", err)
		}
	}

	return s.GetByID(ctx, id)
}

// invoiceLines converts stored items back into calculator input
func invoiceLines(items []domain.InvoiceItem) []billing.Line {
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

// UpdateStatus transitions the invoice lifecycle state. A transition to PAID
// stamps paidAt and paidAmount when not already paid.
func (s *InvoiceService) UpdateStatus(ctx context.Context, id uuid.UUID, req *domain.UpdateInvoiceStatusRequest) (*domain.InvoiceDTO, error) {
	userCtx, ok := auth.FromContext(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}
	if !userCtx.IsAdmin() {
		return nil, fmt.Errorf("only admins may update documents: %w", ErrPermissionDenied)
	}

	if !req.Status.IsValid() {
		return nil, fmt.Errorf("invalid invoice status %q: %w", req.Status, ErrInvalidInput)
	}

	invoice, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if !canTransitionInvoice(invoice.Status, req.Status) {
		return nil, fmt.Errorf("cannot transition invoice from %s to %s: %w",
			invoice.Status, req.Status, ErrInvalidStatusTransition)
	}

	if req.Status == domain.InvoiceStatusPaid && invoice.Status != domain.InvoiceStatusPaid {
		now := time.Now().UTC()
		invoice.PaidAt = &now
		amount := invoice.Total
		if req.PaidAmount != nil {
			amount = *req.PaidAmount
		}
		invoice.PaidAmount = &amount
	}
	invoice.Status = req.Status

	if err := s.invoiceRepo.Update(ctx, invoice); err != nil {
		return nil, fmt.Errorf("failed to update invoice status: %w", err)
	}

	return s.GetByID(ctx, id)
}

// canTransitionInvoice encodes the invoice state machine:
// DRAFT -> SENT -> PAID, DRAFT|SENT -> OVERDUE, OVERDUE -> PAID,
// and any non-terminal state -> CANCELLED.
func canTransitionInvoice(from, to domain.InvoiceStatus) bool {
	if from == to {
		return true
	}
	switch to {
	case domain.InvoiceStatusSent:
		return from == domain.InvoiceStatusDraft
	case domain.InvoiceStatusPaid:
		return from == domain.InvoiceStatusSent || from == domain.InvoiceStatusOverdue
	case domain.InvoiceStatusOverdue:
		return from == domain.InvoiceStatusDraft || from == domain.InvoiceStatusSent
	case domain.InvoiceStatusCancelled:
		// PAID is terminal, a paid invoice is never cancelled
		return from != domain.InvoiceStatusPaid
	}
	return false
}

// Delete removes an invoice and its items
func (s *InvoiceService) Delete(ctx context.Context, id uuid.UUID) error {
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

	if err := s.invoiceRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete invoice: %w", err)
	}

	s.logger.Info("invoice deleted", zap.String("invoice_id", id.String()))
	return nil
}

// Send renders the invoice as a PDF and emails it to the recipient. The
// invoice transitions to SENT on success. Render or delivery failures after
// the invoice exists surface as ErrDelivery so the caller knows the document
// was persisted but not delivered.
func (s *InvoiceService) Send(ctx context.Context, r *http.Request, id uuid.UUID, req *domain.SendDocumentRequest) (*domain.SendDocumentResponse, error) {
	invoice, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice.Client == nil {
		return nil, fmt.Errorf("invoice has no client link: %w", ErrNotFound)
	}

	recipient := req.Recipient
	if recipient == "" {
		recipient = invoice.Client.Email
	}
	if recipient == "" {
		return nil, fmt.Errorf("no recipient email available: %w", ErrInvalidInput)
	}

	pdfBytes, err := s.renderer.RenderInvoice(invoice)
	if err != nil {
		return nil, fmt.Errorf("failed to render invoice %s: %v: %w", invoice.Number, err, ErrDelivery)
	}

	s.archivePDF(ctx, "invoices/"+invoice.Number+".pdf", pdfBytes)

	subject := fmt.Sprintf("Rechnung %s", invoice.Number)
	body := req.Message
	if body == "" {
		body = fmt.Sprintf("Sehr geehrte Damen und Herren,\n\nanbei erhalten Sie die Rechnung %s.\n\nMit freundlichen Grüßen", invoice.Number)
	}
	attachment := invoice.Number + ".pdf"

	if err := s.mail.Send(ctx, mailer.Message{
		To:             recipient,
		Subject:        subject,
		Body:           body,
		AttachmentName: attachment,
		Attachment:     pdfBytes,
	}); err != nil {
		return nil, fmt.Errorf("failed to deliver invoice %s: %v: %w", invoice.Number, err, ErrDelivery)
	}

	if req.SendCopy && invoice.User != nil && invoice.User.Email != "" {
		if err := s.mail.Send(ctx, mailer.Message{
			To:             invoice.User.Email,
			Subject:        "[Copy] " + subject,
			Body:           body,
			AttachmentName: attachment,
			Attachment:     pdfBytes,
		}); err != nil {
			s.logger.Warn("failed to send copy to sender",
				zap.String("number", invoice.Number),
				zap.Error(err))
		}
	}

	if invoice.Status == domain.InvoiceStatusDraft {
		invoice.Status = domain.InvoiceStatusSent
		if err := s.invoiceRepo.Update(ctx, invoice); err != nil {
			return nil, fmt.Errorf("failed to mark invoice as sent: %w", err)
		}
	}

	s.auditSent(ctx, r, invoice, recipient)

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

func (s *InvoiceService) archivePDF(ctx context.Context, path string, data []byte) {
	if s.archive == nil {
		return
	}
	if _, err := s.archive.Save(ctx, path, "application/pdf", bytes.NewReader(data)); err != nil {
		s.logger.Warn("failed to archive document", zap.String("path", path), zap.Error(err))
	}
}

func (s *InvoiceService) auditSent(ctx context.Context, r *http.Request, invoice *domain.Invoice, recipient string) {
	entry := LogEntry{
		Action: domain.AuditActionInvoiceSent,
		Details: map[string]interface{}{
			"invoiceId": invoice.ID.String(),
			"number":    invoice.Number,
			"recipient": recipient,
		},
	}
	if userCtx, ok := auth.FromContext(ctx); ok {
		entry.UserID = &userCtx.UserID
		entry.UserEmail = userCtx.Email
	}
	s.audit.Log(ctx, r, entry)
}

// Stats aggregates invoice counts and totals. CLIENT callers only ever see
// their own figures; admins see all unless they filter by user.
func (s *InvoiceService) Stats(ctx context.Context, userID *uuid.UUID) (*domain.InvoiceStatsDTO, error) {
	userCtx, ok := auth.FromContext(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}
	if !userCtx.IsAdmin() {
		userID = &userCtx.UserID
	}

	stats, err := s.invoiceRepo.GetInvoiceStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute invoice stats: %w", err)
	}

	return &domain.InvoiceStatsDTO{
		TotalCount:        stats.TotalCount,
		DraftCount:        stats.ByStatus[domain.InvoiceStatusDraft],
		SentCount:         stats.ByStatus[domain.InvoiceStatusSent],
		PaidCount:         stats.ByStatus[domain.InvoiceStatusPaid],
		OverdueCount:      stats.ByStatus[domain.InvoiceStatusOverdue],
		TotalRevenue:      stats.TotalRevenue,
		OutstandingAmount: stats.OutstandingAmount,
	}, nil
}

// MarkOverdue flags every SENT invoice whose due date has passed. Called by
// the nightly sweep job.
func (s *InvoiceService) MarkOverdue(ctx context.Context) (int64, error) {
	count, err := s.invoiceRepo.MarkOverdue(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to mark overdue invoices: %w", err)
	}
	if count > 0 {
		s.logger.Info("marked invoices overdue", zap.Int64("count", count))
	}
	return count, nil
}

// buildInvoiceItems validates line items and computes document totals
func buildInvoiceItems(reqs []domain.DocumentItemRequest, taxRate *decimal.Decimal, globalDiscount decimal.Decimal, reverseCharge bool) ([]domain.InvoiceItem, *billing.Totals, error) {
	lines, err := toBillingLines(reqs)
	if err != nil {
		return nil, nil, err
	}

	rate := billing.DefaultTaxRate
	if taxRate != nil {
		rate = *taxRate
	}
	totals := billing.Compute(lines, globalDiscount, rate, reverseCharge)

	items := make([]domain.InvoiceItem, len(reqs))
	for i, req := range reqs {
		items[i] = domain.InvoiceItem{
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

// toBillingLines validates item inputs: a non-positive quantity or a
// negative unit price is a caller error.
func toBillingLines(reqs []domain.DocumentItemRequest) ([]billing.Line, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("at least one item is required: %w", ErrInvalidInput)
	}
	lines := make([]billing.Line, len(reqs))
	for i, req := range reqs {
		if !req.Quantity.IsPositive() {
			return nil, fmt.Errorf("item %d: quantity must be positive: %w", i+1, ErrInvalidInput)
		}
		if req.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("item %d: unit price must not be negative: %w", i+1, ErrInvalidInput)
		}
		if req.Discount.IsNegative() || req.Discount.GreaterThan(decimal.NewFromInt(100)) {
			return nil, fmt.Errorf("item %d: discount must be between 0 and 100: %w", i+1, ErrInvalidInput)
		}
		lines[i] = billing.Line{
			Quantity:  req.Quantity,
			UnitPrice: req.UnitPrice,
			Discount:  req.Discount,
		}
	}
	return lines, nil
}
