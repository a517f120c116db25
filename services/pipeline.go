package services

import (
	"context"
	"fmt"
	"time"

	"payments-service/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Pipeline is the single entry point for recognized payment events after the
// dispatcher has acknowledged them. Captured payments flow through guard ->
// materializer -> orchestrator; plan purchases go to the tier reconciler.
type Pipeline struct {
	guard        *IdempotencyGuard
	materializer *Materializer
	tiers        *TierReconciler
	orchestrator *TransferOrchestrator
	fees         FeeConfig
	logger       *zap.Logger
	now          func() time.Time
}

func NewPipeline(
	guard *IdempotencyGuard,
	materializer *Materializer,
	tiers *TierReconciler,
	orchestrator *TransferOrchestrator,
	fees FeeConfig,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		guard:        guard,
		materializer: materializer,
		tiers:        tiers,
		orchestrator: orchestrator,
		fees:         fees,
		logger:       logger,
		now:          time.Now,
	}
}

// HandleEvent processes one queued payment event. A nil return means the
// event is fully handled or intentionally dropped (duplicate delivery,
// data-quality reject); the provider was already acknowledged, so those are
// logged, never retried. A non-nil return means transient infrastructure
// failure and the message should be redelivered.
func (p *Pipeline) HandleEvent(ctx context.Context, evt models.PaymentEvent) error {
	switch evt.Type {
	case models.EventPaymentCaptured:
		return p.handleCaptured(ctx, evt)
	case models.EventPlanPurchased:
		return p.handlePlanPurchased(ctx, evt)
	default:
		p.logger.Info("Dropping event of unrecognized type", zap.String("type", evt.Type))
		return nil
	}
}

func (p *Pipeline) handleCaptured(ctx context.Context, evt models.PaymentEvent) error {
	decision, err := p.guard.Reserve(ctx, evt.ExternalObjectID)
	if err != nil {
		return fmt.Errorf("idempotency lookup: %w", err)
	}
	if decision == AlreadyHandled {
		p.logger.Info("Duplicate delivery, skipping",
			zap.String("external_object_id", evt.ExternalObjectID),
			zap.String("external_event_id", evt.ExternalEventID),
		)
		return nil
	}

	intent, err := DecodeOrderIntent(evt.Metadata)
	if err != nil {
		// The buyer has been charged and the provider considers its job
		// done; acknowledge and surface as a data-quality incident.
		p.logger.Error("Data-quality incident: captured payment with invalid metadata",
			zap.String("external_object_id", evt.ExternalObjectID),
			zap.Error(err),
		)
		return nil
	}

	breakdown, err := ComputeBreakdown(intent.ProductSubtotal(), intent.DeliveryCostMinorUnits, p.fees)
	if err != nil {
		p.logger.Error("Data-quality incident: fee breakdown rejected",
			zap.String("external_object_id", evt.ExternalObjectID),
			zap.Error(err),
		)
		return nil
	}
	if evt.AmountMinorUnits != 0 && breakdown.TotalChargedToBuyer != evt.AmountMinorUnits {
		// Metadata is the source of truth; a mismatch with the charged
		// amount is recorded for review but does not block the order.
		p.logger.Warn("Charged amount differs from metadata-derived total",
			zap.String("external_object_id", evt.ExternalObjectID),
			zap.Int64("charged", evt.AmountMinorUnits),
			zap.Int64("computed", breakdown.TotalChargedToBuyer),
		)
	}

	order, created, err := p.materializer.Materialize(ctx, intent, breakdown, evt.ExternalObjectID, evt.Currency)
	if err != nil {
		return fmt.Errorf("materialize order for %s: %w", evt.ExternalObjectID, err)
	}
	if !created {
		return nil
	}

	if _, err := p.orchestrator.Settle(ctx, order); err != nil {
		// Settlement failures are recorded on the TransferRecord and
		// retried on their own schedule; only infrastructure faults land
		// here, and the order itself is already durable.
		p.logger.Error("Settlement attempt failed",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
	}
	return nil
}

func (p *Pipeline) handlePlanPurchased(ctx context.Context, evt models.PaymentEvent) error {
	merchantID, err := uuid.Parse(evt.Metadata[metaMerchantID])
	if err != nil {
		p.logger.Error("Data-quality incident: plan purchase without valid merchant id",
			zap.String("external_object_id", evt.ExternalObjectID),
			zap.Error(err),
		)
		return nil
	}
	planID := evt.Metadata[metaPlanID]

	if _, err := p.tiers.ApplyPlanPurchase(ctx, merchantID, planID, p.now()); err != nil {
		p.logger.Error("Plan purchase could not be applied",
			zap.String("merchant_id", merchantID.String()),
			zap.String("plan_id", planID),
			zap.Error(err),
		)
	}
	return nil
}
