// Package config loads cart-service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fjod/marketcart/cart-service/internal/pricing"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

type Config struct {
	Env      string `validate:"oneof=dev test prod"`
	LogLevel string

	HTTPAddr       string        `validate:"required"`
	RequestTimeout time.Duration `validate:"gt=0"`

	MongoURI string        `validate:"required"`
	MongoDB  string        `validate:"required"`
	CartTTL  time.Duration `validate:"gt=0"`

	RedisAddr     string `validate:"required,hostname_port"`
	RedisPassword string
	CacheTTL      time.Duration `validate:"gt=0"`

	KafkaBrokers []string `validate:"dive,hostname_port"`

	CatalogURL     string        `validate:"required,url"`
	CatalogTimeout time.Duration `validate:"gt=0"`

	IdleCartTTL time.Duration `validate:"gt=0"`

	Pricing Pricing
}

// Pricing is the single source of cart charges and rates.
type Pricing struct {
	DeliveryCharge        decimal.Decimal
	FreeDeliveryThreshold decimal.Decimal
	PlatformFeeRate       decimal.Decimal
	GSTRate               decimal.Decimal
}

func (p Pricing) ToPricing() pricing.Config {
	return pricing.Config{
		DeliveryCharge:        p.DeliveryCharge,
		FreeDeliveryThreshold: p.FreeDeliveryThreshold,
		PlatformFeeRate:       p.PlatformFeeRate,
		GSTRate:               p.GSTRate,
	}
}

// Load reads the environment, applying defaults, and validates the result.
func Load() (Config, error) {
	var errs []string
	dec := func(key, def string) decimal.Decimal {
		v, err := decimal.NewFromString(getEnv(key, def))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
		return v
	}
	dur := func(key, def string) time.Duration {
		v, err := time.ParseDuration(getEnv(key, def))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
		return v
	}

	cfg := Config{
		Env:            getEnv("APP_ENV", "prod"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		RequestTimeout: dur("REQUEST_TIMEOUT", "10s"),
		MongoURI:       getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:        getEnv("MONGO_DB_NAME", "cartdb"),
		CartTTL:        dur("CART_TTL", "2160h"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		CacheTTL:       dur("CACHE_TTL", "15m"),
		KafkaBrokers:   splitList(getEnv("KAFKA_BROKERS", "")),
		CatalogURL:     getEnv("CATALOG_URL", "http://localhost:8081"),
		CatalogTimeout: dur("CATALOG_TIMEOUT", "3s"),
		IdleCartTTL:    dur("IDLE_CART_TTL", "30m"),
		Pricing: Pricing{
			DeliveryCharge:        dec("DELIVERY_CHARGE", "75"),
			FreeDeliveryThreshold: dec("FREE_DELIVERY_THRESHOLD", "200"),
			PlatformFeeRate:       dec("PLATFORM_FEE_RATE", "0.03"),
			GSTRate:               dec("GST_RATE", "0.05"),
		},
	}
	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}

	if err := NewValidator().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func NewValidator() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterStructValidation(pricingStructValidation, Pricing{})
	return v
}

// pricingStructValidation keeps charges non-negative and rates within [0, 1].
func pricingStructValidation(sl validatorv10.StructLevel) {
	p := sl.Current().Interface().(Pricing)
	one := decimal.NewFromInt(1)

	if p.DeliveryCharge.IsNegative() {
		sl.ReportError(p.DeliveryCharge, "delivery_charge", "DeliveryCharge", "gte_zero", "")
	}
	if p.FreeDeliveryThreshold.IsNegative() {
		sl.ReportError(p.FreeDeliveryThreshold, "free_delivery_threshold", "FreeDeliveryThreshold", "gte_zero", "")
	}
	if p.PlatformFeeRate.IsNegative() || p.PlatformFeeRate.GreaterThan(one) {
		sl.ReportError(p.PlatformFeeRate, "platform_fee_rate", "PlatformFeeRate", "rate", "")
	}
	if p.GSTRate.IsNegative() || p.GSTRate.GreaterThan(one) {
		sl.ReportError(p.GSTRate, "gst_rate", "GSTRate", "rate", "")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
