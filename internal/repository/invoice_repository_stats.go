package repository

// Statistics and aggregation methods for the InvoiceRepository.

import (
	"context"
	"fmt"

	"github.com/clearbill/billing-api/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InvoiceStats holds aggregated invoice statistics
type InvoiceStats struct {
	TotalCount        int64
	ByStatus          map[domain.InvoiceStatus]int64
	TotalRevenue      decimal.Decimal // sum of PAID totals
	OutstandingAmount decimal.Decimal // sum of SENT and OVERDUE totals
}

// GetInvoiceStats returns aggregated statistics, optionally scoped to one owner.
func (r *InvoiceRepository) GetInvoiceStats(ctx context.Context, userID *uuid.UUID) (*InvoiceStats, error) {
	stats := &InvoiceStats{
		ByStatus:          make(map[domain.InvoiceStatus]int64),
		TotalRevenue:      decimal.Zero,
		OutstandingAmount: decimal.Zero,
	}

	baseQuery := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&domain.Invoice{})
		if userID != nil {
			q = q.Where("user_id = ?", *userID)
		}
		return q
	}

	if err := baseQuery().Count(&stats.TotalCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count invoices: %w", err)
	}

	type statusCount struct {
		Status domain.InvoiceStatus
		Count  int64
	}
	var counts []statusCount
	if err := baseQuery().
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("failed to count invoices by status: %w", err)
	}
	for _, c := range counts {
		stats.ByStatus[c.Status] = c.Count
	}

	var revenue decimal.NullDecimal
	if err := baseQuery().
		Where("status = ?", domain.InvoiceStatusPaid).
		Select("SUM(total)").
		Scan(&revenue).Error; err != nil {
		return nil, fmt.Errorf("failed to sum paid totals: %w", err)
	}
	if revenue.Valid {
		stats.TotalRevenue = revenue.Decimal
	}

	var outstanding decimal.NullDecimal
	if err := baseQuery().
		Where("status IN ?", []domain.InvoiceStatus{domain.InvoiceStatusSent, domain.InvoiceStatusOverdue}).
		Select("SUM(total)").
		Scan(&outstanding).Error; err != nil {
		return nil, fmt.Errorf("failed to sum outstanding totals: %w", err)
	}
	if outstanding.Valid {
		stats.OutstandingAmount = outstanding.Decimal
	}

	return stats, nil
}
