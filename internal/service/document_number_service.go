package service

import (
	"context"
	"fmt"
	"time"

	"github.com/clearbill/billing-api/internal/domain"
	"go.uber.org/zap"
)

// NumberSource yields the last issued document number for a prefix.
// Implemented by the invoice and quote repositories.
type NumberSource interface {
	LastNumber(ctx context.Context, prefix string) (string, error)
}

// DocumentNumberService derives sequential human-readable document numbers,
// scoped per calendar year per document type.
//
// Format: {PREFIX}-{YEAR}-{SEQUENCE}
// Example: INV-2025-0007, QUO-2025-0103
//
// The read-then-increment is not locked; the unique constraint on the number
// column is the backstop, and callers retry once on a conflict.
type DocumentNumberService struct {
	invoices NumberSource
	quotes   NumberSource
	logger   *zap.Logger
	now      func() time.Time
}

// NewDocumentNumberService creates a new DocumentNumberService
func NewDocumentNumberService(invoices, quotes NumberSource, logger *zap.Logger) *DocumentNumberService {
	return &DocumentNumberService{
		invoices: invoices,
		quotes:   quotes,
		logger:   logger,
		now:      time.Now,
	}
}

// NextInvoiceNumber returns the next invoice number for the current year
func (s *DocumentNumberService) NextInvoiceNumber(ctx context.Context) (string, error) {
	return s.next(ctx, s.invoices, domain.InvoiceNumberPrefix)
}

// NextQuoteNumber returns the next quote number for the current year
func (s *DocumentNumberService) NextQuoteNumber(ctx context.Context) (string, error) {
	return s.next(ctx, s.quotes, domain.QuoteNumberPrefix)
}

func (s *DocumentNumberService) next(ctx context.Context, source NumberSource, prefix string) (string, error) {
	year := s.now().Year()
	yearPrefix := fmt.Sprintf("%s-%d-", prefix, year)

	last, err := source.LastNumber(ctx, yearPrefix)
	if err != nil {
		s.logger.Error("failed to read last document number",
			zap.String("prefix", yearPrefix),
			zap.Error(err))
		return "", fmt.Errorf("failed to generate document number: %w", err)
	}

	seq := 1
	if last != "" {
		if _, _, lastSeq, ok := domain.ParseDocumentNumber(last); ok {
			seq = lastSeq + 1
		} else {
			s.logger.Warn("last document number has unexpected format, restarting sequence",
				zap.String("number", last))
		}
	}

	number := domain.FormatDocumentNumber(prefix, year, seq)

	s.logger.Info("generated document number",
		zap.String("number", number),
		zap.Int("year", year),
		zap.Int("sequence", seq))

	return number, nil
}
