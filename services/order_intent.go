package services

import (
	"encoding/json"
	"fmt"

	"payments-service/models"

	"github.com/shopspring/decimal"
)

// Metadata keys written by the checkout flow when the charge is created.
// The payment provider has no concept of our domain objects, so this map is
// the only source of truth for what was purchased.
const (
	metaPurchaseType    = "purchase_type" // "order" (default) or "plan"
	metaMerchantID      = "merchant_id"
	metaPlanID          = "plan_id"
	metaBuyerName       = "buyer_name"
	metaBuyerPhone      = "buyer_phone"
	metaBuyerEmail      = "buyer_email"
	metaBuyerAddress    = "buyer_address"
	metaBuyerCity       = "buyer_city"
	metaBuyerPostcode   = "buyer_postcode"
	metaDeliveryCost    = "delivery_cost"
	metaFulfillmentMode = "fulfillment_mode"
	metaItems           = "items"
)

// PurchaseTypePlan marks a charge as a subscription plan purchase.
const PurchaseTypePlan = "plan"

type metadataItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"` // decimal string in major units, e.g. "6.00"
}

// DecodeOrderIntent validates and decodes a captured payment's metadata into
// an OrderIntent. Numeric fields must parse as non-negative decimals with at
// most 2 fractional digits; anything else is rejected outright, never
// coerced.
func DecodeOrderIntent(metadata map[string]string) (models.OrderIntent, error) {
	var intent models.OrderIntent

	intent.MerchantID = metadata[metaMerchantID]
	if intent.MerchantID == "" {
		return intent, fmt.Errorf("metadata missing %s", metaMerchantID)
	}
	intent.BuyerPhone = metadata[metaBuyerPhone]
	if intent.BuyerPhone == "" {
		return intent, fmt.Errorf("metadata missing %s", metaBuyerPhone)
	}
	intent.BuyerName = metadata[metaBuyerName]
	intent.BuyerEmail = metadata[metaBuyerEmail]
	intent.BuyerAddress = metadata[metaBuyerAddress]
	intent.BuyerCity = metadata[metaBuyerCity]
	intent.BuyerPostcode = metadata[metaBuyerPostcode]

	switch mode := metadata[metaFulfillmentMode]; mode {
	case "delivery", "pickup":
		intent.FulfillmentMode = mode
	case "":
		intent.FulfillmentMode = "delivery"
	default:
		return intent, fmt.Errorf("unknown fulfillment mode %q", mode)
	}

	deliveryCost, err := parseMinorUnits(metadata[metaDeliveryCost])
	if err != nil {
		return intent, fmt.Errorf("invalid %s: %w", metaDeliveryCost, err)
	}
	intent.DeliveryCostMinorUnits = deliveryCost

	rawItems := metadata[metaItems]
	if rawItems == "" {
		return intent, fmt.Errorf("metadata missing %s", metaItems)
	}
	var items []metadataItem
	if err := json.Unmarshal([]byte(rawItems), &items); err != nil {
		return intent, fmt.Errorf("invalid %s: %w", metaItems, err)
	}
	if len(items) == 0 {
		return intent, fmt.Errorf("%s must contain at least one line item", metaItems)
	}

	for i, item := range items {
		if item.ProductID == "" {
			return intent, fmt.Errorf("item %d missing product_id", i)
		}
		if item.Quantity <= 0 {
			return intent, fmt.Errorf("item %d has non-positive quantity %d", i, item.Quantity)
		}
		unitPrice, err := parseMinorUnits(item.UnitPrice)
		if err != nil {
			return intent, fmt.Errorf("item %d unit_price: %w", i, err)
		}
		intent.LineItems = append(intent.LineItems, models.IntentLineItem{
			ProductID:           item.ProductID,
			Quantity:            item.Quantity,
			UnitPriceMinorUnits: unitPrice,
		})
	}

	return intent, nil
}

// parseMinorUnits converts a major-unit decimal string ("6.00") into minor
// units. Empty means zero. Rejects negatives and more than 2 fractional
// digits.
func parseMinorUnits(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("not a decimal: %q", raw)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("negative amount: %q", raw)
	}
	if d.Exponent() < -2 {
		return 0, fmt.Errorf("more than 2 fractional digits: %q", raw)
	}
	minor := d.Shift(2)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("more than 2 fractional digits: %q", raw)
	}
	return minor.IntPart(), nil
}
