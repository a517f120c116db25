package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"payments-service/models"
	"payments-service/services"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"
)

type WebhookParser interface {
	ParseWebhook(r *http.Request) (stripe.Event, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event models.PaymentEvent) error
}

// WebhookController is the single webhook entry point. It verifies
// authenticity, classifies the event and durably queues it for the
// reconciliation worker, acknowledging the provider without waiting for any
// business side effect. That keeps provider retry timing decoupled from
// internal processing latency.
type WebhookController struct {
	Stripe   WebhookParser
	Producer EventPublisher
	Logger   *zap.Logger
}

// HandlePaymentWebhook serves POST /webhooks/payments.
func (wc *WebhookController) HandlePaymentWebhook(c *gin.Context) {
	event, err := wc.Stripe.ParseWebhook(c.Request)
	if err != nil {
		// Hard authenticity boundary: unsigned or mis-signed payloads never
		// reach business logic.
		wc.Logger.Warn("Webhook signature verification failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	evt, recognized := wc.classify(event)
	if !recognized {
		// Acknowledge and drop: the provider delivers at-least-once and
		// treats anything but a 2xx as a reason to redeliver.
		wc.Logger.Info("Ignoring webhook event type",
			zap.String("event_type", string(event.Type)),
			zap.String("event_id", event.ID),
		)
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	if err := wc.Producer.Publish(c.Request.Context(), evt); err != nil {
		// The one truly unexpected internal fault on this path. Without the
		// durable queue entry we must not ack, or the event is lost.
		wc.Logger.Error("Failed to enqueue payment event",
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue event"})
		return
	}

	wc.Logger.Info("Webhook event queued",
		zap.String("event_type", evt.Type),
		zap.String("external_object_id", evt.ExternalObjectID),
	)
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// classify maps the provider's envelope onto the pipeline's event types.
// Only captured payments are interesting; the metadata's purchase_type key
// distinguishes a plan purchase from an order payment.
func (wc *WebhookController) classify(event stripe.Event) (models.PaymentEvent, bool) {
	if event.Type != "payment_intent.succeeded" {
		return models.PaymentEvent{}, false
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		wc.Logger.Error("Failed to unmarshal payment intent from webhook",
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
		return models.PaymentEvent{}, false
	}

	evtType := models.EventPaymentCaptured
	if pi.Metadata["purchase_type"] == services.PurchaseTypePlan {
		evtType = models.EventPlanPurchased
	}

	return models.PaymentEvent{
		ExternalEventID:  event.ID,
		ExternalObjectID: pi.ID,
		Type:             evtType,
		AmountMinorUnits: pi.Amount,
		Currency:         string(pi.Currency),
		Metadata:         pi.Metadata,
		ReceivedAt:       time.Now().UTC(),
	}, true
}
