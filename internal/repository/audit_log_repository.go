package repository

import (
	"context"

	"github.com/clearbill/billing-api/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditLogRepository persists the append-only audit trail. There is
// deliberately no update or delete method.
type AuditLogRepository struct {
	db *gorm.DB
}

func NewAuditLogRepository(db *gorm.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

func (r *AuditLogRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *AuditLogRepository) List(ctx context.Context, userID *uuid.UUID, action *domain.AuditAction, page, pageSize int) ([]domain.AuditLog, int64, error) {
	var entries []domain.AuditLog
	var total int64

	query := r.db.WithContext(ctx).Model(&domain.AuditLog{})
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}
	if action != nil {
		query = query.Where("action = ?", *action)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Offset(offset).Limit(pageSize).Order("created_at DESC").Find(&entries).Error

	return entries, total, err
}

// CountByAction is used by tests and admin views to verify audit coverage.
func (r *AuditLogRepository) CountByAction(ctx context.Context, action domain.AuditAction) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.AuditLog{}).
		Where("action = ?", action).
		Count(&count).Error
	return count, err
}
