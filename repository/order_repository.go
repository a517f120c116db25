package repository

import (
	"context"
	"errors"
	"time"

	"payments-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrInvalidTransition is returned when an order status update would violate
// the one-directional status machine.
var ErrInvalidTransition = errors.New("invalid order status transition")

// OrderRepository defines the interface for order data access.
type OrderRepository interface {
	// Create inserts the order and its line items as one transaction.
	// A unique-constraint violation is returned as gorm.ErrDuplicatedKey.
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByExternalObjectID(ctx context.Context, externalObjectID string) (*models.Order, error)
	FindByMerchant(ctx context.Context, merchantID uuid.UUID, page, limit int) ([]models.Order, int64, error)
	CountForMerchantSince(ctx context.Context, merchantID uuid.UUID, since time.Time) (int64, error)
	// UpdateStatus applies a guarded status transition; ErrInvalidTransition
	// if the order is not currently in `from`.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to string, at time.Time) error
}

type gormOrderRepo struct {
	db *gorm.DB
}

func NewGormOrderRepo(db *gorm.DB) OrderRepository {
	return &gormOrderRepo{db: db}
}

func (r *gormOrderRepo) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *gormOrderRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Preload("LineItems").First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *gormOrderRepo) FindByExternalObjectID(ctx context.Context, externalObjectID string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Preload("LineItems").
		Where("external_object_id = ?", externalObjectID).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *gormOrderRepo) FindByMerchant(ctx context.Context, merchantID uuid.UUID, page, limit int) ([]models.Order, int64, error) {
	var orders []models.Order
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Order{}).Where("merchant_id = ?", merchantID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Preload("LineItems").
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *gormOrderRepo) CountForMerchantSince(ctx context.Context, merchantID uuid.UUID, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("merchant_id = ? AND created_at >= ?", merchantID, since).
		Count(&count).Error
	return count, err
}

func (r *gormOrderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string, at time.Time) error {
	updates := map[string]interface{}{"status": to, "updated_at": at}
	switch to {
	case models.OrderStatusPaid:
		updates["paid_at"] = at
	case models.OrderStatusFulfilled:
		updates["fulfilled_at"] = at
	case models.OrderStatusCancelled:
		updates["cancelled_at"] = at
	}

	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return nil
}
