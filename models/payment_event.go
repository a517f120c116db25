package models

import "time"

// Payment event types as classified by the webhook dispatcher.
const (
	EventPaymentCaptured = "payment_captured"
	EventPlanPurchased   = "plan_purchased"
	EventUnknown         = "unknown"
)

// PaymentEvent is the internal envelope queued between the webhook dispatcher
// and the reconciliation worker. ExternalEventID is unique per delivery
// attempt only; ExternalObjectID is unique per logical payment and is the
// idempotency key for everything downstream. Metadata is the opaque key-value
// map from the original charge request and is the only source of truth for
// what was purchased.
type PaymentEvent struct {
	ExternalEventID  string            `json:"external_event_id"`
	ExternalObjectID string            `json:"external_object_id"`
	Type             string            `json:"type"`
	AmountMinorUnits int64             `json:"amount_minor_units"`
	Currency         string            `json:"currency"`
	Metadata         map[string]string `json:"metadata"`
	ReceivedAt       time.Time         `json:"received_at"` // UTC
}

// IntentLineItem is one validated line of an OrderIntent.
type IntentLineItem struct {
	ProductID           string `json:"product_id"`
	Quantity            int    `json:"quantity"`
	UnitPriceMinorUnits int64  `json:"unit_price_minor_units"`
}

// OrderIntent is the decoded, validated contents of a PaymentEvent's
// metadata. Every monetary field has already been checked to be a
// non-negative finite decimal with at most 2 fractional digits.
type OrderIntent struct {
	MerchantID             string           `json:"merchant_id"`
	BuyerName              string           `json:"buyer_name"`
	BuyerPhone             string           `json:"buyer_phone"`
	BuyerEmail             string           `json:"buyer_email"`
	BuyerAddress           string           `json:"buyer_address"`
	BuyerCity              string           `json:"buyer_city"`
	BuyerPostcode          string           `json:"buyer_postcode"`
	LineItems              []IntentLineItem `json:"line_items"`
	DeliveryCostMinorUnits int64            `json:"delivery_cost_minor_units"`
	FulfillmentMode        string           `json:"fulfillment_mode"`
}

// ProductSubtotal is the sum of quantity * unit price across line items.
func (oi OrderIntent) ProductSubtotal() int64 {
	var total int64
	for _, li := range oi.LineItems {
		total += int64(li.Quantity) * li.UnitPriceMinorUnits
	}
	return total
}
