package notifier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"payments-service/models"
)

// TwilioNotifier sends SMS confirmations through the Twilio REST API.
type TwilioNotifier struct {
	accountSID string
	authToken  string
	fromNumber string
	httpClient *http.Client
}

func NewTwilioNotifier() (*TwilioNotifier, error) {
	sid := os.Getenv("TWILIO_ACCOUNT_SID")
	token := os.Getenv("TWILIO_AUTH_TOKEN")
	from := os.Getenv("TWILIO_FROM_NUMBER")

	if sid == "" {
		return nil, fmt.Errorf("TWILIO_ACCOUNT_SID not set")
	}
	if token == "" {
		return nil, fmt.Errorf("TWILIO_AUTH_TOKEN not set")
	}
	if from == "" {
		return nil, fmt.Errorf("TWILIO_FROM_NUMBER not set")
	}

	return &TwilioNotifier{
		accountSID: sid,
		authToken:  token,
		fromNumber: from,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (t *TwilioNotifier) NotifyOrderCreated(ctx context.Context, order *models.Order, customer *models.Customer) error {
	msg := fmt.Sprintf("Order %s confirmed. Total %s. Thank you!",
		order.OrderNumber, formatAmount(order.Breakdown.TotalChargedToBuyer, order.Currency))
	return t.sendSMS(ctx, customer.Phone, msg)
}

func (t *TwilioNotifier) NotifyMerchant(ctx context.Context, order *models.Order, merchant *models.MerchantAccount) error {
	if merchant.NotifyPhone == "" {
		return nil
	}
	msg := fmt.Sprintf("New order %s: payout %s once settled.",
		order.OrderNumber, formatAmount(order.Breakdown.MerchantPayout, order.Currency))
	return t.sendSMS(ctx, merchant.NotifyPhone, msg)
}

func (t *TwilioNotifier) sendSMS(ctx context.Context, to, msg string) error {
	apiURL := fmt.Sprintf(
		"https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json",
		t.accountSID,
	)

	formData := url.Values{}
	formData.Set("To", to)
	formData.Set("From", t.fromNumber)
	formData.Set("Body", msg)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL,
		strings.NewReader(formData.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("twilio request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("twilio error %s: %s", resp.Status, string(respBody))
	}
	return nil
}

func formatAmount(minorUnits int64, currency string) string {
	return fmt.Sprintf("%s%d.%02d", currencySymbol(currency), minorUnits/100, minorUnits%100)
}

func currencySymbol(currency string) string {
	switch strings.ToLower(currency) {
	case "gbp":
		return "£"
	case "usd":
		return "$"
	case "eur":
		return "€"
	default:
		return strings.ToUpper(currency) + " "
	}
}
