package services

import (
	"context"
	"fmt"
	"time"

	"payments-service/models"
	"payments-service/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TierReconciler owns all tier transitions on MerchantAccount. The
// event-driven path only ever upgrades or renews: a payment event can never
// imply a downgrade, because downgrades are not paid events. Downgrade is a
// separate, explicit, user-initiated operation.
type TierReconciler struct {
	merchants           repository.MerchantRepository
	billingPeriodMonths int
	logger              *zap.Logger
}

func NewTierReconciler(merchants repository.MerchantRepository, billingPeriodMonths int, logger *zap.Logger) *TierReconciler {
	return &TierReconciler{
		merchants:           merchants,
		billingPeriodMonths: billingPeriodMonths,
		logger:              logger,
	}
}

// ApplyPlanPurchase reacts to a paid plan-purchase event. Re-applying the
// current, unexpired tier is a no-op returning the current state. A plan
// ranked below the merchant's current unexpired tier is ignored here.
func (r *TierReconciler) ApplyPlanPurchase(ctx context.Context, merchantID uuid.UUID, planID string, now time.Time) (*models.MerchantAccount, error) {
	planRank, ok := models.TierRank[planID]
	if !ok {
		return nil, fmt.Errorf("unknown plan %q", planID)
	}
	if planID == models.TierFree {
		return nil, fmt.Errorf("plan %q is not purchasable", planID)
	}

	merchant, err := r.merchants.FindByID(ctx, merchantID)
	if err != nil {
		return nil, err
	}

	currentActive := merchant.TierExpiresAt != nil && merchant.TierExpiresAt.After(now)

	if currentActive && merchant.Tier == planID {
		// Duplicate delivery of the purchase event.
		return merchant, nil
	}
	if currentActive && planRank < models.TierRank[merchant.Tier] {
		r.logger.Warn("Ignoring plan purchase below current tier",
			zap.String("merchant_id", merchantID.String()),
			zap.String("current_tier", merchant.Tier),
			zap.String("plan_id", planID),
		)
		return merchant, nil
	}

	expiresAt := now.AddDate(0, r.billingPeriodMonths, 0)
	if err := r.merchants.UpdateTier(ctx, merchantID, planID, &expiresAt); err != nil {
		return nil, err
	}
	merchant.Tier = planID
	merchant.TierExpiresAt = &expiresAt

	r.logger.Info("Merchant tier updated",
		zap.String("merchant_id", merchantID.String()),
		zap.String("tier", planID),
		zap.Time("expires_at", expiresAt),
	)
	return merchant, nil
}

// Downgrade is the explicit, synchronous path for lowering a tier. It is the
// only way a tier can go down; targeting a higher tier than the current one
// is rejected (upgrades are paid).
func (r *TierReconciler) Downgrade(ctx context.Context, merchantID uuid.UUID, planID string, now time.Time) (*models.MerchantAccount, error) {
	planRank, ok := models.TierRank[planID]
	if !ok {
		return nil, fmt.Errorf("unknown plan %q", planID)
	}

	merchant, err := r.merchants.FindByID(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	if planRank > models.TierRank[merchant.Tier] {
		return nil, fmt.Errorf("cannot downgrade from %s to higher tier %s", merchant.Tier, planID)
	}
	if merchant.Tier == planID {
		return merchant, nil
	}

	var expiresAt *time.Time
	if planID != models.TierFree {
		// Keep the remaining paid period when stepping down between paid tiers.
		expiresAt = merchant.TierExpiresAt
	}
	if err := r.merchants.UpdateTier(ctx, merchantID, planID, expiresAt); err != nil {
		return nil, err
	}
	merchant.Tier = planID
	merchant.TierExpiresAt = expiresAt

	r.logger.Info("Merchant tier downgraded",
		zap.String("merchant_id", merchantID.String()),
		zap.String("tier", planID),
	)
	return merchant, nil
}
