package controllers

import (
	"errors"
	"net/http"
	"time"

	"payments-service/middleware"
	"payments-service/repository"
	"payments-service/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type MerchantController struct {
	Merchants repository.MerchantRepository
	Tiers     *services.TierReconciler
	Logger    *zap.Logger
}

func (mc *MerchantController) GetAccount(c *gin.Context) {
	merchantID, ok := mc.merchantID(c)
	if !ok {
		return
	}
	merchant, err := mc.Merchants.FindByID(c.Request.Context(), merchantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "merchant not found"})
			return
		}
		mc.Logger.Error("Merchant lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch account"})
		return
	}
	c.JSON(http.StatusOK, merchant)
}

// SetPayoutAccount records the merchant's onboarded payout account id.
// Readiness is not assumed; it is verified against the provider before every
// transfer attempt.
func (mc *MerchantController) SetPayoutAccount(c *gin.Context) {
	merchantID, ok := mc.merchantID(c)
	if !ok {
		return
	}

	var req struct {
		PayoutAccountID string `json:"payout_account_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := mc.Merchants.SetPayoutAccount(c.Request.Context(), merchantID, req.PayoutAccountID); err != nil {
		mc.Logger.Error("Failed to set payout account", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update account"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"payout_account_id": req.PayoutAccountID})
}

// Downgrade is the explicit, user-initiated tier downgrade. Downgrades never
// come from payment events.
func (mc *MerchantController) Downgrade(c *gin.Context) {
	merchantID, ok := mc.merchantID(c)
	if !ok {
		return
	}

	var req struct {
		PlanID string `json:"plan_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	merchant, err := mc.Tiers.Downgrade(c.Request.Context(), merchantID, req.PlanID, time.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, merchant)
}

func (mc *MerchantController) merchantID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(middleware.GetMerchantID(c))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid merchant id"})
		return uuid.Nil, false
	}
	return id, true
}
