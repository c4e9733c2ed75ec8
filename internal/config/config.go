package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Payment  PaymentConfig
	Pricing  PricingConfig
	Auth     AuthConfig
	Orders   OrdersConfig
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

func (d DatabaseConfig) ConnectionString() string {
	return "host=" + d.Host +
		" port=" + strconv.Itoa(d.Port) +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.Name +
		" sslmode=" + d.SSLMode
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	TTL      time.Duration
}

type KafkaConfig struct {
	Brokers     []string
	OrdersTopic string
}

// PaymentConfig describes the external card-payment provider.
type PaymentConfig struct {
	BaseURL     string
	SecretKey   string
	RedirectURL string
	Timeout     time.Duration
	MaxRetries  int
}

// PricingConfig holds the single authoritative pricing rule set.
// Amounts are minor currency units; the tax rate is in basis points.
type PricingConfig struct {
	Currency              string
	FlatShippingFee       int64
	FreeShippingThreshold int64
	TaxRateBasisPoints    int64
}

type AuthConfig struct {
	JWTSecret string
}

// OrdersConfig controls order housekeeping.
type OrdersConfig struct {
	PendingTTL    time.Duration
	ReaperEnabled bool
	ReaperPeriod  time.Duration
	SuccessURL    string
	FailureURL    string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnvInt("SERVER_PORT", 8082),
			ReadTimeout:  time.Duration(getEnvInt("SERVER_READ_TIMEOUT", 30)) * time.Second,
			WriteTimeout: time.Duration(getEnvInt("SERVER_WRITE_TIMEOUT", 30)) * time.Second,
		},
		Database: DatabaseConfig{
			Host:         getEnvString("DB_HOST", "localhost"),
			Port:         getEnvInt("DB_PORT", 5432),
			User:         getEnvString("DB_USER", "vendora"),
			Password:     getEnvString("DB_PASSWORD", "vendora"),
			Name:         getEnvString("DB_NAME", "vendora_orders"),
			SSLMode:      getEnvString("DB_SSLMODE", "disable"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		Redis: RedisConfig{
			Host:     getEnvString("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      time.Duration(getEnvInt("REDIS_TTL", 300)) * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:     getEnvStringSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			OrdersTopic: getEnvString("KAFKA_ORDERS_TOPIC", "vendora.orders"),
		},
		Payment: PaymentConfig{
			BaseURL:     getEnvString("PAYMENT_PROVIDER_URL", "https://api.payments.example.com/v3"),
			SecretKey:   getEnvString("PAYMENT_SECRET_KEY", ""),
			RedirectURL: getEnvString("PAYMENT_REDIRECT_URL", "http://localhost:8082/payment-callback"),
			Timeout:     time.Duration(getEnvInt("PAYMENT_TIMEOUT", 30)) * time.Second,
			MaxRetries:  getEnvInt("PAYMENT_MAX_RETRIES", 3),
		},
		Pricing: PricingConfig{
			Currency:              getEnvString("PRICING_CURRENCY", "RWF"),
			FlatShippingFee:       getEnvInt64("PRICING_FLAT_SHIPPING_FEE", 1500),
			FreeShippingThreshold: getEnvInt64("PRICING_FREE_SHIPPING_THRESHOLD", 50000),
			TaxRateBasisPoints:    getEnvInt64("PRICING_TAX_RATE_BPS", 1800),
		},
		Auth: AuthConfig{
			JWTSecret: getEnvString("JWT_SECRET", "dev-secret"),
		},
		Orders: OrdersConfig{
			PendingTTL:    time.Duration(getEnvInt("ORDERS_PENDING_TTL", 3600)) * time.Second,
			ReaperEnabled: getEnvBool("ORDERS_REAPER_ENABLED", true),
			ReaperPeriod:  time.Duration(getEnvInt("ORDERS_REAPER_PERIOD", 300)) * time.Second,
			SuccessURL:    getEnvString("ORDERS_SUCCESS_URL", "http://localhost:3000/order-success"),
			FailureURL:    getEnvString("ORDERS_FAILURE_URL", "http://localhost:3000/payment-failed"),
		},
	}
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
