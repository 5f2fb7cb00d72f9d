package repository

import (
	"context"
	"strings"
	"time"

	"github.com/clearbill/billing-api/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InvoiceFilter narrows List queries. A nil UserID means no owner filter.
type InvoiceFilter struct {
	UserID *uuid.UUID
	Status *domain.InvoiceStatus
	Search string
}

type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// Create persists the invoice together with its items in one transaction.
func (r *InvoiceRepository) Create(ctx context.Context, invoice *domain.Invoice) error {
	return r.db.WithContext(ctx).Create(invoice).Error
}

func (r *InvoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("invoice_items.position ASC")
		}).
		Preload("Client").
		Preload("User").
		Where("id = ?", id).
		First(&invoice).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *InvoiceRepository) Update(ctx context.Context, invoice *domain.Invoice) error {
	return r.db.WithContext(ctx).Omit("Items", "Client", "User").Save(invoice).Error
}

func (r *InvoiceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&domain.InvoiceItem{}, "invoice_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Invoice{}, "id = ?", id).Error
	})
}

func (r *InvoiceRepository) List(ctx context.Context, filter InvoiceFilter, page, pageSize int) ([]domain.Invoice, int64, error) {
	var invoices []domain.Invoice
	var total int64

	query := r.db.WithContext(ctx).Model(&domain.Invoice{})

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
			return db.Order("invoice_items.position ASC")
		}).
		Preload("Client").
		Offset(offset).Limit(pageSize).
		Order("created_at DESC").
		Find(&invoices).Error

	return invoices, total, err
}

// LastNumber returns the most recently created invoice number with the given
// prefix (e.g. "INV-2025-"), or empty string when none exists.
func (r *InvoiceRepository) LastNumber(ctx context.Context, prefix string) (string, error) {
	var invoice domain.Invoice
	err := r.db.WithContext(ctx).
		Select("number").
		Where("number LIKE ?", prefix+"%").
		Order("created_at DESC").
		First(&invoice).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", nil
		}
		return "", err
	}
	return invoice.Number, nil
}

// ReplaceItems swaps the invoice's items wholesale and writes the recomputed
// totals in the same transaction. Items never outlive a recalculation.
func (r *InvoiceRepository) ReplaceItems(ctx context.Context, invoice *domain.Invoice, items []domain.InvoiceItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&domain.InvoiceItem{}, "invoice_id = ?", invoice.ID).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].InvoiceID = invoice.ID
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		return tx.Omit("Items", "Client", "User").Save(invoice).Error
	})
}

// MarkOverdue flips SENT invoices whose due date lies before the cutoff to
// OVERDUE. Returns the number of rows changed.
func (r *InvoiceRepository) MarkOverdue(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.Invoice{}).
		Where("status = ? AND due_date IS NOT NULL AND due_date < ?", domain.InvoiceStatusSent, cutoff).
		Update("status", domain.InvoiceStatusOverdue)
	return res.RowsAffected, res.Error
}
