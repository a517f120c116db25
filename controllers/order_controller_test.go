package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"payments-service/middleware"
	"payments-service/models"
	"payments-service/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubOrderRepo struct {
	orders map[uuid.UUID]*models.Order
}

func (r *stubOrderRepo) Create(_ context.Context, order *models.Order) error {
	r.orders[order.ID] = order
	return nil
}

func (r *stubOrderRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	if o, ok := r.orders[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubOrderRepo) FindByExternalObjectID(_ context.Context, externalObjectID string) (*models.Order, error) {
	for _, o := range r.orders {
		if o.ExternalObjectID == externalObjectID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubOrderRepo) FindByMerchant(_ context.Context, merchantID uuid.UUID, _, _ int) ([]models.Order, int64, error) {
	var out []models.Order
	for _, o := range r.orders {
		if o.MerchantID == merchantID {
			out = append(out, *o)
		}
	}
	return out, int64(len(out)), nil
}

func (r *stubOrderRepo) CountForMerchantSince(_ context.Context, merchantID uuid.UUID, _ time.Time) (int64, error) {
	var count int64
	for _, o := range r.orders {
		if o.MerchantID == merchantID {
			count++
		}
	}
	return count, nil
}

func (r *stubOrderRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to string, _ time.Time) error {
	o, ok := r.orders[id]
	if !ok || o.Status != from {
		return repository.ErrInvalidTransition
	}
	o.Status = to
	return nil
}

type stubTransferRepo struct {
	byOrder map[uuid.UUID]*models.TransferRecord
}

func (r *stubTransferRepo) Create(_ context.Context, rec *models.TransferRecord) error {
	r.byOrder[rec.OrderID] = rec
	return nil
}

func (r *stubTransferRepo) FindByOrderID(_ context.Context, orderID uuid.UUID) (*models.TransferRecord, error) {
	if rec, ok := r.byOrder[orderID]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubTransferRepo) Update(_ context.Context, id uuid.UUID, updates map[string]interface{}) error {
	for _, rec := range r.byOrder {
		if rec.ID == id {
			if v, ok := updates["state"]; ok {
				rec.State = v.(string)
			}
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *stubTransferRepo) FindRetryable(_ context.Context, _ int) ([]models.TransferRecord, error) {
	return nil, nil
}

func newOrderRouter(orders *stubOrderRepo, transfers *stubTransferRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	oc := &OrderController{Orders: orders, Transfers: transfers, Logger: zap.NewNop()}
	r := gin.New()
	g := r.Group("/orders")
	g.Use(middleware.AuthMiddleware())
	g.GET("", oc.ListOrders)
	g.GET("/:id", oc.GetOrder)
	g.POST("/:id/fulfill", oc.FulfillOrder)
	g.POST("/:id/cancel", oc.CancelOrder)
	return r
}

func merchantRequest(method, path string, merchantID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("X-Merchant-ID", merchantID.String())
	return req
}

func storedOrder(merchantID uuid.UUID, status string) *models.Order {
	return &models.Order{
		ID:               uuid.New(),
		OrderNumber:      "MER-260831-001",
		ExternalObjectID: "pi_" + uuid.NewString()[:8],
		MerchantID:       merchantID,
		Status:           status,
		Currency:         "gbp",
	}
}

func TestListOrders_ReportsPayoutStatus(t *testing.T) {
	merchantID := uuid.New()
	settled := storedOrder(merchantID, models.OrderStatusPaid)
	stuck := storedOrder(merchantID, models.OrderStatusPaid)
	fresh := storedOrder(merchantID, models.OrderStatusPaid)

	orders := &stubOrderRepo{orders: map[uuid.UUID]*models.Order{
		settled.ID: settled, stuck.ID: stuck, fresh.ID: fresh,
	}}
	transfers := &stubTransferRepo{byOrder: map[uuid.UUID]*models.TransferRecord{
		settled.ID: {ID: uuid.New(), OrderID: settled.ID, State: models.TransferSucceeded},
		stuck.ID:   {ID: uuid.New(), OrderID: stuck.ID, State: models.TransferFailedPermanent},
	}}
	router := newOrderRouter(orders, transfers)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, merchantRequest(http.MethodGet, "/orders", merchantID))
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Orders []struct {
			ID           uuid.UUID `json:"id"`
			PayoutStatus string    `json:"payout_status"`
		} `json:"orders"`
		Total int64 `json:"total"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(3), resp.Total)

	statuses := make(map[uuid.UUID]string)
	for _, o := range resp.Orders {
		statuses[o.ID] = o.PayoutStatus
	}
	assert.Equal(t, "payout_complete", statuses[settled.ID])
	assert.Equal(t, "payout_failed", statuses[stuck.ID])
	assert.Equal(t, "payout_pending", statuses[fresh.ID])
}

func TestListOrders_RequiresMerchantHeader(t *testing.T) {
	router := newOrderRouter(
		&stubOrderRepo{orders: map[uuid.UUID]*models.Order{}},
		&stubTransferRepo{byOrder: map[uuid.UUID]*models.TransferRecord{}},
	)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetOrder_OtherMerchantsOrderIsNotFound(t *testing.T) {
	owner := uuid.New()
	order := storedOrder(owner, models.OrderStatusPaid)
	router := newOrderRouter(
		&stubOrderRepo{orders: map[uuid.UUID]*models.Order{order.ID: order}},
		&stubTransferRepo{byOrder: map[uuid.UUID]*models.TransferRecord{}},
	)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, merchantRequest(http.MethodGet, "/orders/"+order.ID.String(), uuid.New()))

	// Existence of another merchant's order is not disclosed.
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFulfillOrder_RequiresSettledTransfer(t *testing.T) {
	merchantID := uuid.New()
	order := storedOrder(merchantID, models.OrderStatusPaid)
	orders := &stubOrderRepo{orders: map[uuid.UUID]*models.Order{order.ID: order}}
	transfers := &stubTransferRepo{byOrder: map[uuid.UUID]*models.TransferRecord{
		order.ID: {ID: uuid.New(), OrderID: order.ID, State: models.TransferFailedRetryable},
	}}
	router := newOrderRouter(orders, transfers)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, merchantRequest(http.MethodPost, "/orders/"+order.ID.String()+"/fulfill", merchantID))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, models.OrderStatusPaid, orders.orders[order.ID].Status)

	transfers.byOrder[order.ID].State = models.TransferSucceeded
	w = httptest.NewRecorder()
	router.ServeHTTP(w, merchantRequest(http.MethodPost, "/orders/"+order.ID.String()+"/fulfill", merchantID))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.OrderStatusFulfilled, orders.orders[order.ID].Status)
}

func TestCancelOrder_TerminalStatusesStayPut(t *testing.T) {
	merchantID := uuid.New()
	fulfilled := storedOrder(merchantID, models.OrderStatusFulfilled)
	pending := storedOrder(merchantID, models.OrderStatusPending)
	orders := &stubOrderRepo{orders: map[uuid.UUID]*models.Order{
		fulfilled.ID: fulfilled, pending.ID: pending,
	}}
	router := newOrderRouter(orders, &stubTransferRepo{byOrder: map[uuid.UUID]*models.TransferRecord{}})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, merchantRequest(http.MethodPost, "/orders/"+fulfilled.ID.String()+"/cancel", merchantID))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, models.OrderStatusFulfilled, orders.orders[fulfilled.ID].Status)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, merchantRequest(http.MethodPost, "/orders/"+pending.ID.String()+"/cancel", merchantID))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.OrderStatusCancelled, orders.orders[pending.ID].Status)
}
