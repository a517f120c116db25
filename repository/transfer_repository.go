package repository

import (
	"context"

	"payments-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TransferRepository interface {
	// Create inserts a new transfer record; a second record for the same
	// order violates the unique index and returns gorm.ErrDuplicatedKey.
	Create(ctx context.Context, record *models.TransferRecord) error
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.TransferRecord, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
	FindRetryable(ctx context.Context, limit int) ([]models.TransferRecord, error)
}

type gormTransferRepo struct {
	db *gorm.DB
}

func NewGormTransferRepo(db *gorm.DB) TransferRepository {
	return &gormTransferRepo{db: db}
}

func (r *gormTransferRepo) Create(ctx context.Context, record *models.TransferRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *gormTransferRepo) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.TransferRecord, error) {
	var record models.TransferRecord
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *gormTransferRepo) Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&models.TransferRecord{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// FindRetryable lists transfers awaiting another attempt, oldest first. Used
// by the boot-time sweep so retries survive a process restart.
func (r *gormTransferRepo) FindRetryable(ctx context.Context, limit int) ([]models.TransferRecord, error) {
	var records []models.TransferRecord
	err := r.db.WithContext(ctx).
		Where("state IN ?", []string{models.TransferPending, models.TransferFailedRetryable}).
		Order("updated_at ASC").
		Limit(limit).
		Find(&records).Error
	return records, err
}
