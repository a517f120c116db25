package routes

import (
	"payments-service/controllers"
	"payments-service/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, wc *controllers.WebhookController, oc *controllers.OrderController, mc *controllers.MerchantController) {
	// Provider webhook (no auth; authenticity comes from the signature).
	r.POST("/webhooks/payments", wc.HandlePaymentWebhook)

	orders := r.Group("/orders")
	orders.Use(middleware.AuthMiddleware())
	orders.GET("", oc.ListOrders)
	orders.GET("/:id", oc.GetOrder)
	orders.POST("/:id/fulfill", oc.FulfillOrder)
	orders.POST("/:id/cancel", oc.CancelOrder)

	account := r.Group("/account")
	account.Use(middleware.AuthMiddleware())
	account.GET("", mc.GetAccount)
	account.POST("/payout-account", mc.SetPayoutAccount)
	account.POST("/downgrade", mc.Downgrade)
}
