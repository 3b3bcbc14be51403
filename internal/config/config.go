package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var AppEnv Config

type Config struct {
	MongoURI       string
	DBName         string
	JWTSecret      string
	AccessTokenTTL time.Duration

	// Payment gateway simulation knobs.
	PaymentDelay       time.Duration
	PaymentSuccessRate float64

	// Order creation ceilings.
	MaxLinesPerOrder   int
	MaxQuantityPerLine int
	MaxOrderAmount     string

	// Pricing rule overrides; empty values fall back to the built-in table.
	DefaultTaxRate        string
	FlatShippingRate      string
	FreeShippingThreshold string
}

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not loaded:", err)
	}
	AppEnv = Config{
		MongoURI:       getEnvOrDefault("MONGO_URI", ""),
		DBName:         getEnvOrDefault("DB_NAME", "storefront"),
		JWTSecret:      getEnvOrDefault("JWT_SECRET", ""),
		AccessTokenTTL: getDurationEnv("ACCESS_TOKEN_TTL", 20, time.Minute),

		PaymentDelay:       getDurationEnv("PAYMENT_DELAY_MS", 500, time.Millisecond),
		PaymentSuccessRate: getFloatEnv("PAYMENT_SUCCESS_RATE", 0.9),

		MaxLinesPerOrder:   getIntEnv("MAX_LINES_PER_ORDER", 50),
		MaxQuantityPerLine: getIntEnv("MAX_QTY_PER_LINE", 99),
		MaxOrderAmount:     getEnvOrDefault("MAX_ORDER_AMOUNT", "10000.00"),

		DefaultTaxRate:        getEnvOrDefault("DEFAULT_TAX_RATE", ""),
		FlatShippingRate:      getEnvOrDefault("FLAT_SHIPPING_RATE", ""),
		FreeShippingThreshold: getEnvOrDefault("FREE_SHIPPING_THRESHOLD", ""),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue int, unit time.Duration) time.Duration {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return time.Duration(parsed) * unit
		}
	}
	return time.Duration(defaultValue) * unit
}

func getIntEnv(key string, defaultValue int) int {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil && parsed >= 0 && parsed <= 1 {
			return parsed
		}
	}
	return defaultValue
}
