package services

import (
	"bytes"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/account"
	"github.com/stripe/stripe-go/v80/paymentintent"
	"github.com/stripe/stripe-go/v80/transfer"
	"github.com/stripe/stripe-go/v80/webhook"
)

// Collaborator interfaces used by the transfer orchestrator. StripeService
// implements all three; tests substitute fakes.

type PaymentStatusChecker interface {
	// PaymentCaptured reports whether the funds for this payment intent are
	// actually captured on the provider side.
	PaymentCaptured(externalObjectID string) (bool, error)
}

type PayoutAccountChecker interface {
	// CheckPayoutAccountReady returns whether the receiving account satisfies
	// all provider-side requirements, and which requirements are missing.
	CheckPayoutAccountReady(payoutAccountID string) (bool, []string, error)
}

type FundsTransferrer interface {
	// TransferFunds moves amount (minor units) to the destination account.
	// idempotencyKey must be stable across retries so a retried call after a
	// network timeout cannot double-transfer.
	TransferFunds(destinationAccountID string, amountMinorUnits int64, currency, idempotencyKey string) (string, error)
}

type StripeService struct {
	SecretKey  string
	WebhookKey string
}

func NewStripeService(secretKey, webhookKey string) *StripeService {
	stripe.Key = secretKey
	return &StripeService{SecretKey: secretKey, WebhookKey: webhookKey}
}

// ParseWebhook verifies the Stripe-Signature header against the raw body and
// decodes the event envelope. Verification failure means the payload never
// reaches business logic.
func (s *StripeService) ParseWebhook(r *http.Request) (stripe.Event, error) {
	var event stripe.Event
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return event, err
	}
	r.Body = io.NopCloser(bytes.NewBuffer(payload))
	sigHeader := r.Header.Get("Stripe-Signature")
	return webhook.ConstructEvent(payload, sigHeader, s.WebhookKey)
}

func (s *StripeService) PaymentCaptured(externalObjectID string) (bool, error) {
	pi, err := paymentintent.Get(externalObjectID, nil)
	if err != nil {
		return false, err
	}
	return pi.Status == stripe.PaymentIntentStatusSucceeded && pi.AmountReceived > 0, nil
}

func (s *StripeService) CheckPayoutAccountReady(payoutAccountID string) (bool, []string, error) {
	acct, err := account.GetByID(payoutAccountID, nil)
	if err != nil {
		return false, nil, err
	}

	var missing []string
	if acct.Requirements != nil {
		missing = append(missing, acct.Requirements.CurrentlyDue...)
	}
	ready := acct.PayoutsEnabled && len(missing) == 0
	return ready, missing, nil
}

func (s *StripeService) TransferFunds(destinationAccountID string, amountMinorUnits int64, currency, idempotencyKey string) (string, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(amountMinorUnits),
		Currency:    stripe.String(currency),
		Destination: stripe.String(destinationAccountID),
	}
	params.SetIdempotencyKey(idempotencyKey)

	t, err := transfer.New(params)
	if err != nil {
		return "", err
	}
	return t.ID, nil
}
