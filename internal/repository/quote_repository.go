package repository

import (
	"context"
	"strings"
	"time"

	"github.com/clearbill/billing-api/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// QuoteFilter narrows List queries. A nil UserID means no owner filter.
type QuoteFilter struct {
	UserID *uuid.UUID
	Status *domain.QuoteStatus
	Search string
}

type QuoteRepository struct {
	db *gorm.DB
}

func NewQuoteRepository(db *gorm.DB) *QuoteRepository {
	return &QuoteRepository{db: db}
}

func (r *QuoteRepository) Create(ctx context.Context, quote *domain.Quote) error {
	return r.db.WithContext(ctx).Create(quote).Error
}

func (r *QuoteRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Quote, error) {
	var quote domain.Quote
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("quote_items.position ASC")
		}).
		Preload("Client").
		Preload("User").
		Where("id = ?", id).
		First(&quote).Error
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

func (r *QuoteRepository) Update(ctx context.Context, quote *domain.Quote) error {
	return r.db.WithContext(ctx).Omit("Items", "Client", "User").Save(quote).Error
}

func (r *QuoteRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&domain.QuoteItem{}, "quote_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Quote{}, "id = ?", id).Error
	})
}

func (r *QuoteRepository) List(ctx context.Context, filter QuoteFilter, page, pageSize int) ([]domain.Quote, int64, error) {
	var quotes []domain.Quote
	var total int64

	query := r.db.WithContext(ctx).Model(&domain.Quote{})

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Search != "" {
		query = query.Where("LOWER(number) LIKE ?", "%"+strings.ToLower(filter.Search)+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("quote_items.position ASC")
		}).
		Preload("Client").
		Offset(offset).Limit(pageSize).
		Order("created_at DESC").
		Find(&quotes).Error

	return quotes, total, err
}

// LastNumber returns the most recently created quote number with the given
// prefix (e.g. "QUO-2025-"), or empty string when none exists.
func (r *QuoteRepository) LastNumber(ctx context.Context, prefix string) (string, error) {
	var quote domain.Quote
	err := r.db.WithContext(ctx).
		Select("number").
		Where("number LIKE ?", prefix+"%").
		Order("created_at DESC").
		First(&quote).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", nil
		}
		return "", err
	}
	return quote.Number, nil
}

// ReplaceItems swaps the quote's items wholesale and writes the recomputed
// totals in the same transaction.
func (r *QuoteRepository) ReplaceItems(ctx context.Context, quote *domain.Quote, items []domain.QuoteItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&domain.QuoteItem{}, "quote_id = ?", quote.ID).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].QuoteID = quote.ID
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		return tx.Omit("Items", "Client", "User").Save(quote).Error
	})
}

// ConvertToInvoice persists the new invoice and stamps the quote as CONVERTED
// in one transaction, so a quote can never point at an invoice that was not
// written.
func (r *QuoteRepository) ConvertToInvoice(ctx context.Context, quote *domain.Quote, invoice *domain.Invoice) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(invoice).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		quote.Status = domain.QuoteStatusConverted
		quote.ConvertedToInvoiceID = &invoice.ID
		quote.ConvertedAt = &now
		return tx.Omit("Items", "Client", "User").Save(quote).Error
	})
}
