package services

import (
	"context"
	"errors"

	"payments-service/repository"

	"gorm.io/gorm"
)

// Decision is the outcome of an idempotency reservation.
type Decision int

const (
	Proceed Decision = iota
	AlreadyHandled
)

// IdempotencyGuard answers "has this external payment already produced a
// durable side effect?". The lookup here is advisory; the authoritative
// guard is the unique index on orders.external_object_id, which the
// materializer enforces at insert time. Two simultaneous deliveries of the
// same event can both see Proceed and exactly one insert will win.
type IdempotencyGuard struct {
	orders repository.OrderRepository
}

func NewIdempotencyGuard(orders repository.OrderRepository) *IdempotencyGuard {
	return &IdempotencyGuard{orders: orders}
}

func (g *IdempotencyGuard) Reserve(ctx context.Context, externalObjectID string) (Decision, error) {
	_, err := g.orders.FindByExternalObjectID(ctx, externalObjectID)
	if err == nil {
		return AlreadyHandled, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Proceed, nil
	}
	return Proceed, err
}
