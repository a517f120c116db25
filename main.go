package main

import (
	"context"
	"log"
	"strings"
	"time"

	"payments-service/config"
	"payments-service/controllers"
	"payments-service/database"
	"payments-service/kafka"
	"payments-service/models"
	"payments-service/notifier"
	"payments-service/repository"
	"payments-service/routes"
	"payments-service/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("[PaymentsService] No .env file found, using system environment")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("[PaymentsService] ❌ Failed to load config:", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("[PaymentsService] ❌ Failed to initialize logger:", err)
	}
	defer logger.Sync()

	db, err := database.ConnectPostgres(cfg, logger,
		&models.Customer{},
		&models.Order{},
		&models.OrderLineItem{},
		&models.MerchantAccount{},
		&models.TransferRecord{},
	)
	if err != nil {
		log.Fatal("[PaymentsService] ❌ Failed to connect to DB:", err)
	}

	orderRepo := repository.NewGormOrderRepo(db)
	customerRepo := repository.NewGormCustomerRepo(db)
	merchantRepo := repository.NewGormMerchantRepo(db)
	transferRepo := repository.NewGormTransferRepo(db)

	stripeSvc := services.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookKey)

	var notif notifier.Notifier
	if tw, err := notifier.NewTwilioNotifier(); err != nil {
		logger.Warn("SMS notifications disabled", zap.Error(err))
		notif = notifier.Noop{}
	} else {
		notif = tw
	}

	fees := services.FeeConfig{
		BuyerRateBps:    cfg.BuyerFeeRateBps,
		MerchantRateBps: cfg.MerchantFeeRateBps,
		FixedFee:        cfg.FixedFeeMinorUnits,
	}

	guard := services.NewIdempotencyGuard(orderRepo)
	materializer := services.NewMaterializer(orderRepo, customerRepo, merchantRepo, notif, logger)
	tiers := services.NewTierReconciler(merchantRepo, cfg.BillingPeriodMonths, logger)
	orchestrator := services.NewTransferOrchestrator(
		transferRepo, orderRepo, merchantRepo,
		stripeSvc, stripeSvc, stripeSvc,
		cfg.MaxTransferAttempts,
		time.Duration(cfg.TransferBackoffSeconds)*time.Second,
		logger,
	)
	pipeline := services.NewPipeline(guard, materializer, tiers, orchestrator, fees, logger)

	brokers := strings.Split(cfg.KafkaBrokers, ",")
	producer := kafka.NewPaymentEventProducer(brokers, cfg.PaymentEventsTopic, logger)
	defer producer.Close()

	consumer := services.NewEventConsumer(brokers, cfg.PaymentEventsTopic, cfg.ConsumerGroup, pipeline, logger)
	go consumer.Start()
	defer consumer.Close()

	// Pick up transfers interrupted by the previous run.
	if err := orchestrator.ResumePending(context.Background(), 100); err != nil {
		logger.Error("Failed to resume pending transfers", zap.Error(err))
	}

	r := gin.New()
	r.Use(gin.Recovery())

	wc := &controllers.WebhookController{Stripe: stripeSvc, Producer: producer, Logger: logger}
	oc := &controllers.OrderController{Orders: orderRepo, Transfers: transferRepo, Logger: logger}
	mc := &controllers.MerchantController{Merchants: merchantRepo, Tiers: tiers, Logger: logger}
	routes.RegisterRoutes(r, wc, oc, mc)

	log.Println("[PaymentsService] ✅ Running on port", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("[PaymentsService] ❌ Server failed:", err)
	}
}
