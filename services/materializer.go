package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payments-service/models"
	"payments-service/notifier"
	"payments-service/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Materializer turns a validated payment event into a durable Order: buyer
// upsert, order-number allocation, transactional insert, then best-effort
// notification. The whole call is safe to retry; every step is idempotent or
// guarded by the unique index on external_object_id.
type Materializer struct {
	orders    repository.OrderRepository
	customers repository.CustomerRepository
	merchants repository.MerchantRepository
	notif     notifier.Notifier
	logger    *zap.Logger
	now       func() time.Time
}

func NewMaterializer(
	orders repository.OrderRepository,
	customers repository.CustomerRepository,
	merchants repository.MerchantRepository,
	notif notifier.Notifier,
	logger *zap.Logger,
) *Materializer {
	return &Materializer{
		orders:    orders,
		customers: customers,
		merchants: merchants,
		notif:     notif,
		logger:    logger,
		now:       time.Now,
	}
}

// Materialize persists the order for a captured payment. created is false
// when another delivery of the same externalObjectID got there first; the
// existing order is returned in that case.
func (m *Materializer) Materialize(ctx context.Context, intent models.OrderIntent, breakdown models.PriceBreakdown, externalObjectID, currency string) (order *models.Order, created bool, err error) {
	merchantID, err := uuid.Parse(intent.MerchantID)
	if err != nil {
		return nil, false, fmt.Errorf("invalid merchant id %q: %w", intent.MerchantID, err)
	}
	merchant, err := m.merchants.FindByID(ctx, merchantID)
	if err != nil {
		return nil, false, fmt.Errorf("merchant %s not found: %w", merchantID, err)
	}

	customer, err := m.upsertCustomer(ctx, intent)
	if err != nil {
		return nil, false, err
	}

	now := m.now()
	order = &models.Order{
		ID:               uuid.New(),
		ExternalObjectID: externalObjectID,
		MerchantID:       merchant.ID,
		CustomerID:       customer.ID,
		Status:           models.OrderStatusPaid,
		Currency:         currency,
		FulfillmentMode:  intent.FulfillmentMode,
		Breakdown:        breakdown,
		PaidAt:           &now,
	}
	for _, li := range intent.LineItems {
		order.LineItems = append(order.LineItems, models.OrderLineItem{
			ID:                  uuid.New(),
			OrderID:             order.ID,
			ProductID:           li.ProductID,
			Quantity:            li.Quantity,
			UnitPriceMinorUnits: li.UnitPriceMinorUnits,
		})
	}

	order.OrderNumber, err = m.nextOrderNumber(ctx, merchant, now)
	if err != nil {
		return nil, false, err
	}

	// Two inserts at most: the sequential number, then a collision-proof
	// fallback. A duplicate on external_object_id at either point means a
	// concurrent delivery already materialized this payment.
	for attempt := 0; attempt < 2; attempt++ {
		insertErr := m.orders.Create(ctx, order)
		if insertErr == nil {
			m.notifyCreated(ctx, order, customer, merchant)
			return order, true, nil
		}
		if !errors.Is(insertErr, gorm.ErrDuplicatedKey) {
			return nil, false, insertErr
		}

		existing, findErr := m.orders.FindByExternalObjectID(ctx, externalObjectID)
		if findErr == nil {
			m.logger.Info("Duplicate payment delivery, order already materialized",
				zap.String("external_object_id", externalObjectID),
				zap.String("order_number", existing.OrderNumber),
			)
			return existing, false, nil
		}
		if !errors.Is(findErr, gorm.ErrRecordNotFound) {
			return nil, false, findErr
		}

		// Order-number collision under concurrent creation: fall back to a
		// suffix taken from the order's own ID, which cannot collide.
		order.OrderNumber = fmt.Sprintf("%s-%s-%s",
			merchant.Code, now.Format("060102"), order.ID.String()[:8])
	}

	return nil, false, fmt.Errorf("failed to insert order for %s after number fallback", externalObjectID)
}

// nextOrderNumber allocates a human-readable per-merchant-per-day number,
// e.g. MER-240806-003.
func (m *Materializer) nextOrderNumber(ctx context.Context, merchant *models.MerchantAccount, now time.Time) (string, error) {
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	count, err := m.orders.CountForMerchantSince(ctx, merchant.ID, startOfDay)
	if err != nil {
		return "", fmt.Errorf("order number allocation: %w", err)
	}
	return fmt.Sprintf("%s-%s-%03d", merchant.Code, now.Format("060102"), count+1), nil
}

// upsertCustomer finds or creates the buyer by phone. Identity fields that
// conflict with a different existing customer are kept as they are; silently
// merging fields across unrelated accounts is a correctness hazard, not a
// convenience.
func (m *Materializer) upsertCustomer(ctx context.Context, intent models.OrderIntent) (*models.Customer, error) {
	customer, err := m.customers.FindByPhone(ctx, intent.BuyerPhone)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fresh := &models.Customer{
			ID:       uuid.New(),
			Phone:    intent.BuyerPhone,
			Name:     intent.BuyerName,
			Address:  intent.BuyerAddress,
			City:     intent.BuyerCity,
			Postcode: intent.BuyerPostcode,
		}
		if email, ok := m.claimableEmail(ctx, intent.BuyerEmail, fresh.ID); ok {
			fresh.Email = email
		}
		createErr := m.customers.Create(ctx, fresh)
		if createErr == nil {
			return fresh, nil
		}
		if errors.Is(createErr, gorm.ErrDuplicatedKey) {
			// Lost a creation race on the phone number; the winner's record
			// is the buyer.
			return m.customers.FindByPhone(ctx, intent.BuyerPhone)
		}
		return nil, createErr
	}
	if err != nil {
		return nil, err
	}

	changed := false
	if intent.BuyerName != "" && customer.Name != intent.BuyerName {
		customer.Name = intent.BuyerName
		changed = true
	}
	if intent.BuyerAddress != "" && customer.Address != intent.BuyerAddress {
		customer.Address = intent.BuyerAddress
		customer.City = intent.BuyerCity
		customer.Postcode = intent.BuyerPostcode
		changed = true
	}
	if intent.BuyerEmail != "" && customer.Email != intent.BuyerEmail {
		if email, ok := m.claimableEmail(ctx, intent.BuyerEmail, customer.ID); ok {
			customer.Email = email
			changed = true
		}
	}
	if changed {
		if err := m.customers.Update(ctx, customer); err != nil {
			return nil, err
		}
	}
	return customer, nil
}

// claimableEmail reports whether email may be assigned to the customer with
// ownerID. An email held by a different customer stays where it is.
func (m *Materializer) claimableEmail(ctx context.Context, email string, ownerID uuid.UUID) (string, bool) {
	if email == "" {
		return "", false
	}
	other, err := m.customers.FindByEmail(ctx, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return email, true
	}
	if err != nil {
		m.logger.Warn("Email ownership lookup failed, leaving email unset", zap.Error(err))
		return "", false
	}
	if other.ID == ownerID {
		return email, true
	}
	m.logger.Warn("Email already belongs to another customer, keeping existing owner",
		zap.String("email", email),
		zap.String("owner_id", other.ID.String()),
	)
	return "", false
}

// notifyCreated fires the order-created notifications. Failures are logged
// and never affect the financial record.
func (m *Materializer) notifyCreated(ctx context.Context, order *models.Order, customer *models.Customer, merchant *models.MerchantAccount) {
	if m.notif == nil {
		return
	}
	if err := m.notif.NotifyOrderCreated(ctx, order, customer); err != nil {
		m.logger.Warn("Order-created notification failed",
			zap.String("order_number", order.OrderNumber),
			zap.Error(err),
		)
	}
	if err := m.notif.NotifyMerchant(ctx, order, merchant); err != nil {
		m.logger.Warn("Merchant notification failed",
			zap.String("order_number", order.OrderNumber),
			zap.Error(err),
		)
	}
}
