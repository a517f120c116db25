package services

import (
	"fmt"

	"payments-service/models"
)

// FeeConfig holds the platform's fee-splitting parameters. Rates are basis
// points applied to the product subtotal; the fixed fee is minor units and is
// charged to the buyer only.
type FeeConfig struct {
	BuyerRateBps    int
	MerchantRateBps int
	FixedFee        int64
}

const bpsDenominator = 10000

// ComputeBreakdown calculates the full price split for an order. Pure, no
// I/O. All arithmetic is in integer minor units; percentage fees round
// half-up and any rounding remainder lands in the buyer service fee, so the
// reconciliation identities on models.PriceBreakdown hold exactly:
//
//	TotalChargedToBuyer == MerchantPayout + PlatformRetained
//
// on every input, never approximately.
func ComputeBreakdown(productSubtotal, deliveryFee int64, cfg FeeConfig) (models.PriceBreakdown, error) {
	if productSubtotal < 0 {
		return models.PriceBreakdown{}, fmt.Errorf("product subtotal must be non-negative, got %d", productSubtotal)
	}
	if deliveryFee < 0 {
		return models.PriceBreakdown{}, fmt.Errorf("delivery fee must be non-negative, got %d", deliveryFee)
	}
	if cfg.FixedFee < 0 {
		return models.PriceBreakdown{}, fmt.Errorf("fixed fee must be non-negative, got %d", cfg.FixedFee)
	}
	if cfg.BuyerRateBps < 0 || cfg.BuyerRateBps >= bpsDenominator {
		return models.PriceBreakdown{}, fmt.Errorf("buyer fee rate out of range: %d bps", cfg.BuyerRateBps)
	}
	if cfg.MerchantRateBps < 0 || cfg.MerchantRateBps >= bpsDenominator {
		return models.PriceBreakdown{}, fmt.Errorf("merchant fee rate out of range: %d bps", cfg.MerchantRateBps)
	}

	buyerServiceFee := roundHalfUpBps(productSubtotal, cfg.BuyerRateBps) + cfg.FixedFee
	merchantServiceFee := roundHalfUpBps(productSubtotal, cfg.MerchantRateBps)

	b := models.PriceBreakdown{
		ProductSubtotal:    productSubtotal,
		DeliveryFee:        deliveryFee,
		BuyerServiceFee:    buyerServiceFee,
		MerchantServiceFee: merchantServiceFee,
	}
	b.TotalChargedToBuyer = productSubtotal + deliveryFee + buyerServiceFee
	b.MerchantPayout = productSubtotal - merchantServiceFee
	b.PlatformRetained = b.TotalChargedToBuyer - b.MerchantPayout
	return b, nil
}

// roundHalfUpBps applies a basis-point rate with round-half-up. amount and
// the result are minor units; amount is non-negative.
func roundHalfUpBps(amount int64, bps int) int64 {
	return (amount*int64(bps) + bpsDenominator/2) / bpsDenominator
}
