package models

import (
	"time"

	"github.com/google/uuid"
)

// Order statuses. Transitions are one-directional: pending -> paid ->
// fulfilled. Cancelled and fulfilled are terminal. Orders are never deleted;
// cancelled orders are kept for audit.
const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusFulfilled = "fulfilled"
	OrderStatusCancelled = "cancelled"
)

// Merchant subscription tiers, lowest to highest.
const (
	TierFree     = "free"
	TierStandard = "standard"
	TierPremium  = "premium"
)

// TierRank orders tiers for upgrade/downgrade comparison. Unknown tiers are
// absent from the map.
var TierRank = map[string]int{
	TierFree:     0,
	TierStandard: 1,
	TierPremium:  2,
}

// Transfer states. failed-retryable transfers are picked up again by the
// orchestrator's backoff schedule; failed-permanent requires an operator.
const (
	TransferPending         = "pending"
	TransferSucceeded       = "succeeded"
	TransferFailedRetryable = "failed-retryable"
	TransferFailedPermanent = "failed-permanent"
)

// Customer is a buyer record. Phone is the stable identity on this platform;
// email is secondary and must never be silently moved between customers.
type Customer struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Phone     string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"phone"`
	Name      string    `gorm:"type:varchar(255)" json:"name"`
	Email     string    `gorm:"type:varchar(255);index" json:"email"`
	Address   string    `gorm:"type:varchar(512)" json:"address"`
	City      string    `gorm:"type:varchar(128)" json:"city"`
	Postcode  string    `gorm:"type:varchar(16)" json:"postcode"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// PriceBreakdown is the full fee split for an order, in minor units.
// Invariants (enforced by the fee calculator, exact to the penny):
//
//	TotalChargedToBuyer == ProductSubtotal + DeliveryFee + BuyerServiceFee
//	MerchantPayout      == ProductSubtotal - MerchantServiceFee
//	PlatformRetained    == BuyerServiceFee + MerchantServiceFee + DeliveryFee
//	TotalChargedToBuyer == MerchantPayout + PlatformRetained
type PriceBreakdown struct {
	ProductSubtotal     int64 `json:"product_subtotal"`
	DeliveryFee         int64 `json:"delivery_fee"`
	BuyerServiceFee     int64 `json:"buyer_service_fee"`
	MerchantServiceFee  int64 `json:"merchant_service_fee"`
	TotalChargedToBuyer int64 `json:"total_charged_to_buyer"`
	PlatformRetained    int64 `json:"platform_retained"`
	MerchantPayout      int64 `json:"merchant_payout"`
}

// Order is the durable record materialized from a captured payment.
// ExternalObjectID carries the unique index that makes the whole pipeline
// idempotent under at-least-once webhook delivery.
type Order struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	OrderNumber      string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_number"`
	ExternalObjectID string          `gorm:"type:varchar(255);uniqueIndex;not null" json:"external_object_id"`
	MerchantID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"merchant_id"`
	CustomerID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"customer_id"`
	Status           string          `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	Currency         string          `gorm:"type:varchar(10);not null" json:"currency"`
	FulfillmentMode  string          `gorm:"type:varchar(20)" json:"fulfillment_mode"`
	Breakdown        PriceBreakdown  `gorm:"embedded" json:"breakdown"`
	LineItems        []OrderLineItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"line_items"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	FulfilledAt      *time.Time      `json:"fulfilled_at,omitempty"`
	CancelledAt      *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type OrderLineItem struct {
	ID                  uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID             uuid.UUID `gorm:"type:uuid;not null;index" json:"order_id"`
	ProductID           string    `gorm:"type:varchar(64);not null" json:"product_id"`
	Quantity            int       `gorm:"not null" json:"quantity"`
	UnitPriceMinorUnits int64     `gorm:"not null" json:"unit_price_minor_units"`
}

// MerchantAccount holds the single authoritative copy of a merchant's tier
// and payout-account state. PayoutAccountReady is refreshed from the provider
// before every transfer attempt, never trusted from here.
type MerchantAccount struct {
	ID                 uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Code               string     `gorm:"type:varchar(8);uniqueIndex;not null" json:"code"`
	Name               string     `gorm:"type:varchar(255)" json:"name"`
	Tier               string     `gorm:"type:varchar(20);not null;default:'free'" json:"tier"`
	TierExpiresAt      *time.Time `json:"tier_expires_at,omitempty"`
	PayoutAccountID    *string    `gorm:"type:varchar(255)" json:"payout_account_id,omitempty"`
	PayoutAccountReady bool       `gorm:"not null;default:false" json:"payout_account_ready"`
	NotifyPhone        string     `gorm:"type:varchar(32)" json:"notify_phone"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TransferRecord tracks settlement of one order's merchant payout. Exactly
// one record exists per order (unique index on OrderID); it is the only
// entity with an explicit retry counter.
type TransferRecord struct {
	ID               uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID          uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"order_id"`
	MerchantID       uuid.UUID `gorm:"type:uuid;not null;index" json:"merchant_id"`
	AmountMinorUnits int64     `gorm:"not null" json:"amount_minor_units"`
	Currency         string    `gorm:"type:varchar(10);not null" json:"currency"`
	State            string    `gorm:"type:varchar(20);not null;default:'pending'" json:"state"`
	AttemptCount     int       `gorm:"not null;default:0" json:"attempt_count"`
	LastError        string    `gorm:"type:varchar(1024)" json:"last_error"`
	TransferID       string    `gorm:"type:varchar(255)" json:"transfer_id"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
