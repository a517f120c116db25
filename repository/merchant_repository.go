package repository

import (
	"context"
	"time"

	"payments-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MerchantRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.MerchantAccount, error)
	UpdateTier(ctx context.Context, id uuid.UUID, tier string, expiresAt *time.Time) error
	SetPayoutAccount(ctx context.Context, id uuid.UUID, payoutAccountID string) error
	SetPayoutReady(ctx context.Context, id uuid.UUID, ready bool) error
}

type gormMerchantRepo struct {
	db *gorm.DB
}

func NewGormMerchantRepo(db *gorm.DB) MerchantRepository {
	return &gormMerchantRepo{db: db}
}

func (r *gormMerchantRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.MerchantAccount, error) {
	var merchant models.MerchantAccount
	if err := r.db.WithContext(ctx).First(&merchant, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &merchant, nil
}

func (r *gormMerchantRepo) UpdateTier(ctx context.Context, id uuid.UUID, tier string, expiresAt *time.Time) error {
	return r.db.WithContext(ctx).Model(&models.MerchantAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"tier":            tier,
			"tier_expires_at": expiresAt,
			"updated_at":      time.Now(),
		}).Error
}

func (r *gormMerchantRepo) SetPayoutAccount(ctx context.Context, id uuid.UUID, payoutAccountID string) error {
	return r.db.WithContext(ctx).Model(&models.MerchantAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"payout_account_id":    payoutAccountID,
			"payout_account_ready": false, // unverified until the next status check
		}).Error
}

func (r *gormMerchantRepo) SetPayoutReady(ctx context.Context, id uuid.UUID, ready bool) error {
	return r.db.WithContext(ctx).Model(&models.MerchantAccount{}).
		Where("id = ?", id).
		Update("payout_account_ready", ready).Error
}
