package notifier

import (
	"context"

	"payments-service/models"
)

// Notifier delivers order confirmations. Calls are one-way from the
// pipeline's perspective; a failed notification never fails the order.
type Notifier interface {
	NotifyOrderCreated(ctx context.Context, order *models.Order, customer *models.Customer) error
	NotifyMerchant(ctx context.Context, order *models.Order, merchant *models.MerchantAccount) error
}

// Noop is used when no notification channel is configured.
type Noop struct{}

func (Noop) NotifyOrderCreated(context.Context, *models.Order, *models.Customer) error {
	return nil
}

func (Noop) NotifyMerchant(context.Context, *models.Order, *models.MerchantAccount) error {
	return nil
}
