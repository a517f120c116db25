package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Port               string
	PostgresUser       string
	PostgresPassword   string
	PostgresDB         string
	PostgresHost       string
	PostgresPort       string
	PostgresSSLMode    string
	PostgresTimeZone   string
	StripeSecretKey    string
	StripeWebhookKey   string
	KafkaBrokers       string // comma-separated
	PaymentEventsTopic string
	ConsumerGroup      string

	// Fee configuration. Rates are basis points (550 = 5.5%), the fixed fee
	// is minor units and charged to the buyer only.
	BuyerFeeRateBps    int
	MerchantFeeRateBps int
	FixedFeeMinorUnits int64

	// Transfer retry policy.
	MaxTransferAttempts    int
	TransferBackoffSeconds int

	// Subscription billing period in calendar months.
	BillingPeriodMonths int
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:               getEnv("PORT", "8087"),
		PostgresUser:       os.Getenv("POSTGRES_USER"),
		PostgresPassword:   os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:         os.Getenv("POSTGRES_DB"),
		PostgresHost:       os.Getenv("POSTGRES_HOST"),
		PostgresPort:       getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:    getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone:   getEnv("POSTGRES_TIMEZONE", "Europe/London"),
		StripeSecretKey:    os.Getenv("STRIPE_API_KEY"),
		StripeWebhookKey:   os.Getenv("STRIPE_WEBHOOK_SECRET"),
		KafkaBrokers:       getEnv("KAFKA_BROKERS", "localhost:9092"),
		PaymentEventsTopic: getEnv("PAYMENT_EVENTS_TOPIC", "payment-events"),
		ConsumerGroup:      getEnv("PAYMENT_EVENTS_GROUP", "payments-reconciler-group"),

		BuyerFeeRateBps:    getEnvInt("BUYER_FEE_RATE_BPS", 550),
		MerchantFeeRateBps: getEnvInt("MERCHANT_FEE_RATE_BPS", 330),
		FixedFeeMinorUnits: int64(getEnvInt("FIXED_FEE_MINOR_UNITS", 50)),

		MaxTransferAttempts:    getEnvInt("MAX_TRANSFER_ATTEMPTS", 5),
		TransferBackoffSeconds: getEnvInt("TRANSFER_BACKOFF_SECONDS", 1),

		BillingPeriodMonths: getEnvInt("BILLING_PERIOD_MONTHS", 1),
	}

	if cfg.PostgresUser == "" || cfg.PostgresPassword == "" || cfg.PostgresDB == "" || cfg.PostgresHost == "" ||
		cfg.StripeSecretKey == "" || cfg.StripeWebhookKey == "" {
		return nil, fmt.Errorf("missing required environment variables")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}
