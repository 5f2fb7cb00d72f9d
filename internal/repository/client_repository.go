package repository

import (
	"context"
	"strings"

	"github.com/clearbill/billing-api/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ClientRepository struct {
	db *gorm.DB
}

func NewClientRepository(db *gorm.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

func (r *ClientRepository) Create(ctx context.Context, client *domain.Client) error {
	return r.db.WithContext(ctx).Create(client).Error
}

func (r *ClientRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Client, error) {
	var client domain.Client
	err := r.db.WithContext(ctx).Preload("User").Where("id = ?", id).First(&client).Error
	if err != nil {
		return nil, err
	}
	return &client, nil
}

func (r *ClientRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Client, error) {
	var client domain.Client
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&client).Error
	if err != nil {
		return nil, err
	}
	return &client, nil
}

func (r *ClientRepository) GetByClientNumber(ctx context.Context, number int) (*domain.Client, error) {
	var client domain.Client
	err := r.db.WithContext(ctx).Where("client_number = ?", number).First(&client).Error
	if err != nil {
		return nil, err
	}
	return &client, nil
}

func (r *ClientRepository) Update(ctx context.Context, client *domain.Client) error {
	return r.db.WithContext(ctx).Save(client).Error
}

func (r *ClientRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&domain.Client{}, "id = ?", id).Error
}

func (r *ClientRepository) List(ctx context.Context, page, pageSize int, search string) ([]domain.Client, int64, error) {
	var clients []domain.Client
	var total int64

	query := r.db.WithContext(ctx).Model(&domain.Client{})

	if search != "" {
		searchPattern := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", searchPattern, searchPattern)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Preload("User").Offset(offset).Limit(pageSize).Order("client_number ASC").Find(&clients).Error

	return clients, total, err
}

// MaxClientNumber returns the highest assigned client number, 0 when none exist.
func (r *ClientRepository) MaxClientNumber(ctx context.Context) (int, error) {
	var max *int
	err := r.db.WithContext(ctx).Model(&domain.Client{}).
		Select("MAX(client_number)").Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

func (r *ClientRepository) ExistsByClientNumber(ctx context.Context, number int) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Client{}).
		Where("client_number = ?", number).
		Count(&count).Error
	return count > 0, err
}

func (r *ClientRepository) ExistsByUserID(ctx context.Context, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Client{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count > 0, err
}
