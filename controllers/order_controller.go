package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"payments-service/middleware"
	"payments-service/models"
	"payments-service/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Merchant-facing payout status. Distinct from the order status: an order can
// be paid with its payout still pending or permanently failed.
const (
	payoutPending  = "payout_pending"
	payoutComplete = "payout_complete"
	payoutFailed   = "payout_failed"
)

type OrderController struct {
	Orders    repository.OrderRepository
	Transfers repository.TransferRepository
	Logger    *zap.Logger
}

type orderView struct {
	models.Order
	PayoutStatus string `json:"payout_status"`
}

// ListOrders returns the merchant's orders, each with its payout status.
func (oc *OrderController) ListOrders(c *gin.Context) {
	merchantID, ok := oc.merchantID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	orders, total, err := oc.Orders.FindByMerchant(c.Request.Context(), merchantID, page, limit)
	if err != nil {
		oc.Logger.Error("Failed to list orders", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch orders"})
		return
	}

	views := make([]orderView, 0, len(orders))
	for i := range orders {
		views = append(views, orderView{
			Order:        orders[i],
			PayoutStatus: oc.payoutStatus(c, orders[i].ID),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"orders": views,
		"total":  total,
		"page":   page,
		"limit":  limit,
	})
}

func (oc *OrderController) GetOrder(c *gin.Context) {
	merchantID, ok := oc.merchantID(c)
	if !ok {
		return
	}
	order, ok := oc.ownedOrder(c, merchantID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, orderView{Order: *order, PayoutStatus: oc.payoutStatus(c, order.ID)})
}

// FulfillOrder marks a paid order fulfilled. Fulfillment and settlement are
// tracked separately, but an order only becomes fulfillable once its transfer
// has succeeded.
func (oc *OrderController) FulfillOrder(c *gin.Context) {
	merchantID, ok := oc.merchantID(c)
	if !ok {
		return
	}
	order, ok := oc.ownedOrder(c, merchantID)
	if !ok {
		return
	}

	rec, err := oc.Transfers.FindByOrderID(c.Request.Context(), order.ID)
	if err != nil || rec.State != models.TransferSucceeded {
		c.JSON(http.StatusConflict, gin.H{"error": "order is not settled yet"})
		return
	}

	if err := oc.Orders.UpdateStatus(c.Request.Context(), order.ID, models.OrderStatusPaid, models.OrderStatusFulfilled, time.Now()); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			c.JSON(http.StatusConflict, gin.H{"error": "order cannot be fulfilled from its current status"})
			return
		}
		oc.Logger.Error("Failed to fulfill order", zap.String("order_id", order.ID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update order"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.OrderStatusFulfilled})
}

// CancelOrder cancels a pending or paid order. Cancelled orders are retained
// for audit; captured payments are never reversed automatically.
func (oc *OrderController) CancelOrder(c *gin.Context) {
	merchantID, ok := oc.merchantID(c)
	if !ok {
		return
	}
	order, ok := oc.ownedOrder(c, merchantID)
	if !ok {
		return
	}

	if order.Status == models.OrderStatusFulfilled || order.Status == models.OrderStatusCancelled {
		c.JSON(http.StatusConflict, gin.H{"error": "order cannot be cancelled from its current status"})
		return
	}
	if err := oc.Orders.UpdateStatus(c.Request.Context(), order.ID, order.Status, models.OrderStatusCancelled, time.Now()); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			c.JSON(http.StatusConflict, gin.H{"error": "order cannot be cancelled from its current status"})
			return
		}
		oc.Logger.Error("Failed to cancel order", zap.String("order_id", order.ID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update order"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.OrderStatusCancelled})
}

func (oc *OrderController) payoutStatus(c *gin.Context, orderID uuid.UUID) string {
	rec, err := oc.Transfers.FindByOrderID(c.Request.Context(), orderID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			oc.Logger.Warn("Transfer lookup failed", zap.String("order_id", orderID.String()), zap.Error(err))
		}
		return payoutPending
	}
	switch rec.State {
	case models.TransferSucceeded:
		return payoutComplete
	case models.TransferFailedPermanent:
		return payoutFailed
	default:
		return payoutPending
	}
}

func (oc *OrderController) merchantID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(middleware.GetMerchantID(c))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid merchant id"})
		return uuid.Nil, false
	}
	return id, true
}

func (oc *OrderController) ownedOrder(c *gin.Context, merchantID uuid.UUID) (*models.Order, bool) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return nil, false
	}
	order, err := oc.Orders.FindByID(c.Request.Context(), orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return nil, false
		}
		oc.Logger.Error("Order lookup failed", zap.String("order_id", orderID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch order"})
		return nil, false
	}
	if order.MerchantID != merchantID {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return nil, false
	}
	return order, true
}
