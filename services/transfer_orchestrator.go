package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"payments-service/models"
	"payments-service/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxBackoff = 30 * time.Second

	// Unmet preconditions (account not onboarded, payment not captured) are
	// not transfer failures; they resolve on their own timescale, so they are
	// rechecked on a fixed, much longer schedule and never consume the
	// transfer attempt budget.
	readinessRecheck = 5 * time.Minute
)

// TransferOrchestrator settles an order's merchant payout: it moves exactly
// Breakdown.MerchantPayout from the platform balance to the merchant's own
// payout account. Preconditions (payment captured, payout account ready) are
// checked fresh on every attempt, never trusted from a cache. Failed attempts
// are retried as separately scheduled units with bounded exponential backoff;
// exhausting the attempt budget is the pipeline's one deliberately fatal
// outcome and is surfaced for an operator.
type TransferOrchestrator struct {
	transfers   repository.TransferRepository
	orders      repository.OrderRepository
	merchants   repository.MerchantRepository
	payments    PaymentStatusChecker
	accounts    PayoutAccountChecker
	transferAPI FundsTransferrer
	logger      *zap.Logger

	maxAttempts int
	baseBackoff time.Duration
	schedule    func(d time.Duration, fn func())
}

func NewTransferOrchestrator(
	transfers repository.TransferRepository,
	orders repository.OrderRepository,
	merchants repository.MerchantRepository,
	payments PaymentStatusChecker,
	accounts PayoutAccountChecker,
	transferAPI FundsTransferrer,
	maxAttempts int,
	baseBackoff time.Duration,
	logger *zap.Logger,
) *TransferOrchestrator {
	return &TransferOrchestrator{
		transfers:   transfers,
		orders:      orders,
		merchants:   merchants,
		payments:    payments,
		accounts:    accounts,
		transferAPI: transferAPI,
		logger:      logger,
		maxAttempts: maxAttempts,
		baseBackoff: baseBackoff,
		schedule: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
	}
}

// Settle runs one settlement attempt for the order. Business failures are
// recorded on the TransferRecord, not returned as errors; the returned error
// is reserved for infrastructure faults (repository unavailability).
func (o *TransferOrchestrator) Settle(ctx context.Context, order *models.Order) (*models.TransferRecord, error) {
	rec, err := o.ensureRecord(ctx, order)
	if err != nil {
		return nil, err
	}

	switch rec.State {
	case models.TransferSucceeded, models.TransferFailedPermanent:
		return rec, nil
	}

	merchant, err := o.merchants.FindByID(ctx, order.MerchantID)
	if err != nil {
		return nil, err
	}

	if merchant.PayoutAccountID == nil || *merchant.PayoutAccountID == "" {
		return o.recordUnready(ctx, rec, order, "payout account not onboarded")
	}

	captured, err := o.payments.PaymentCaptured(order.ExternalObjectID)
	if err != nil {
		return o.recordUnready(ctx, rec, order, fmt.Sprintf("capture check failed: %v", err))
	}
	if !captured {
		return o.recordUnready(ctx, rec, order, "payment not captured")
	}

	ready, missing, err := o.accounts.CheckPayoutAccountReady(*merchant.PayoutAccountID)
	if err != nil {
		return o.recordUnready(ctx, rec, order, fmt.Sprintf("payout account check failed: %v", err))
	}
	if updErr := o.merchants.SetPayoutReady(ctx, merchant.ID, ready); updErr != nil {
		o.logger.Warn("Failed to persist payout readiness", zap.Error(updErr))
	}
	if !ready {
		// Attempting a transfer to an unready account is an error class we
		// prevent, not catch: the transfer API is not called at all here.
		return o.recordUnready(ctx, rec, order,
			"payout account not ready: "+strings.Join(missing, ", "))
	}

	// The idempotency key is derived from the order ID, so a retried call
	// after a network timeout cannot double-transfer.
	transferID, err := o.transferAPI.TransferFunds(
		*merchant.PayoutAccountID,
		rec.AmountMinorUnits,
		order.Currency,
		"order-transfer-"+order.ID.String(),
	)
	if err != nil {
		return o.recordFailure(ctx, rec, order, fmt.Sprintf("transfer failed: %v", err))
	}

	updates := map[string]interface{}{
		"state":         models.TransferSucceeded,
		"transfer_id":   transferID,
		"attempt_count": rec.AttemptCount + 1,
		"last_error":    "",
	}
	if err := o.transfers.Update(ctx, rec.ID, updates); err != nil {
		return nil, err
	}
	rec.State = models.TransferSucceeded
	rec.TransferID = transferID
	rec.AttemptCount++
	rec.LastError = ""

	o.logger.Info("Transfer settled",
		zap.String("order_id", order.ID.String()),
		zap.String("transfer_id", transferID),
		zap.Int64("amount_minor_units", rec.AmountMinorUnits),
	)
	return rec, nil
}

// ResumePending re-schedules settlement for transfers left unfinished by a
// previous run. Once the provider has accepted a transfer we track it to
// completion; assume-and-forget is not an option.
func (o *TransferOrchestrator) ResumePending(ctx context.Context, limit int) error {
	records, err := o.transfers.FindRetryable(ctx, limit)
	if err != nil {
		return err
	}
	for _, rec := range records {
		order, err := o.orders.FindByID(ctx, rec.OrderID)
		if err != nil {
			o.logger.Error("Cannot resume transfer, order lookup failed",
				zap.String("order_id", rec.OrderID.String()),
				zap.Error(err),
			)
			continue
		}
		ord := order
		o.schedule(o.backoff(rec.AttemptCount), func() {
			if _, err := o.Settle(context.Background(), ord); err != nil {
				o.logger.Error("Resumed settlement attempt failed",
					zap.String("order_id", ord.ID.String()),
					zap.Error(err),
				)
			}
		})
	}
	return nil
}

func (o *TransferOrchestrator) ensureRecord(ctx context.Context, order *models.Order) (*models.TransferRecord, error) {
	rec, err := o.transfers.FindByOrderID(ctx, order.ID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	rec = &models.TransferRecord{
		OrderID:          order.ID,
		MerchantID:       order.MerchantID,
		AmountMinorUnits: order.Breakdown.MerchantPayout,
		Currency:         order.Currency,
		State:            models.TransferPending,
	}
	createErr := o.transfers.Create(ctx, rec)
	if createErr == nil {
		return rec, nil
	}
	if errors.Is(createErr, gorm.ErrDuplicatedKey) {
		// Concurrent settlement of the same order; one record per order.
		return o.transfers.FindByOrderID(ctx, order.ID)
	}
	return nil, createErr
}

// recordUnready marks the transfer retryable because a precondition is unmet.
// The attempt counter is untouched; it is reserved for the transfer call
// itself, and a merchant mid-onboarding must not burn through it into the
// permanent state. A recheck is scheduled on the readiness interval.
func (o *TransferOrchestrator) recordUnready(ctx context.Context, rec *models.TransferRecord, order *models.Order, reason string) (*models.TransferRecord, error) {
	rec.State = models.TransferFailedRetryable
	rec.LastError = reason

	updates := map[string]interface{}{
		"state":      rec.State,
		"last_error": rec.LastError,
	}
	if err := o.transfers.Update(ctx, rec.ID, updates); err != nil {
		return nil, err
	}

	o.logger.Warn("Transfer preconditions unmet, recheck scheduled",
		zap.String("order_id", order.ID.String()),
		zap.Duration("recheck_in", readinessRecheck),
		zap.String("reason", reason),
	)
	ord := order
	o.schedule(readinessRecheck, func() {
		if _, err := o.Settle(context.Background(), ord); err != nil {
			o.logger.Error("Scheduled settlement attempt failed",
				zap.String("order_id", ord.ID.String()),
				zap.Error(err),
			)
		}
	})
	return rec, nil
}

// recordFailure increments the attempt counter for a failed transfer call,
// persists the failure state and schedules the next attempt unless the budget
// is exhausted.
func (o *TransferOrchestrator) recordFailure(ctx context.Context, rec *models.TransferRecord, order *models.Order, reason string) (*models.TransferRecord, error) {
	rec.AttemptCount++
	rec.LastError = reason

	if rec.AttemptCount >= o.maxAttempts {
		rec.State = models.TransferFailedPermanent
	} else {
		rec.State = models.TransferFailedRetryable
	}

	updates := map[string]interface{}{
		"state":         rec.State,
		"attempt_count": rec.AttemptCount,
		"last_error":    rec.LastError,
	}
	if err := o.transfers.Update(ctx, rec.ID, updates); err != nil {
		return nil, err
	}

	if rec.State == models.TransferFailedPermanent {
		// The order stays paid but unsettled; nothing is rolled back.
		o.logger.Error("Transfer permanently failed, operator attention required",
			zap.String("order_id", order.ID.String()),
			zap.String("order_number", order.OrderNumber),
			zap.Int("attempts", rec.AttemptCount),
			zap.String("last_error", reason),
		)
		return rec, nil
	}

	delay := o.backoff(rec.AttemptCount)
	o.logger.Warn("Transfer attempt failed, retry scheduled",
		zap.String("order_id", order.ID.String()),
		zap.Int("attempt", rec.AttemptCount),
		zap.Duration("retry_in", delay),
		zap.String("reason", reason),
	)
	ord := order
	o.schedule(delay, func() {
		if _, err := o.Settle(context.Background(), ord); err != nil {
			o.logger.Error("Scheduled settlement attempt failed",
				zap.String("order_id", ord.ID.String()),
				zap.Error(err),
			)
		}
	})
	return rec, nil
}

// backoff returns 1x, 2x, 4x... the base delay, capped.
func (o *TransferOrchestrator) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := o.baseBackoff << uint(attempt-1)
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}
