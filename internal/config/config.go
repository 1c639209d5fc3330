package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port      string
	DBUrl     string
	JWTSecret string
	AppEnv    string
	LogLevel  string

	EnableDocs bool

	PaystackBaseURL    string
	PaystackSecretKey  string
	PaymentCallbackURL string
	PaymentCurrency    string
	GatewayTimeout     time.Duration

	RabbitMQURL           string
	NotificationQueueSize int
	NotificationWorkers   int

	ReaperEnabled         bool
	ReaperInterval        time.Duration
	PaymentReconcileAfter time.Duration
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found")
	}

	jwtSecret, exists := os.LookupEnv("JWT_SECRET")
	if !exists || jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		DBUrl:     getEnv("DB_URL", ""),
		JWTSecret: jwtSecret,
		AppEnv:    normalizeEnv(getEnv("APP_ENV", "production")),
		LogLevel:  getEnv("LOG_LEVEL", "info"),

		EnableDocs: getEnvBool("ENABLE_API_DOCS", false),

		PaystackBaseURL:    getEnv("PAYSTACK_BASE_URL", "https://api.paystack.co"),
		PaystackSecretKey:  getEnv("PAYSTACK_SECRET_KEY", ""),
		PaymentCallbackURL: getEnv("PAYMENT_CALLBACK_URL", ""),
		PaymentCurrency:    strings.ToUpper(getEnv("PAYMENT_CURRENCY", "NGN")),
		GatewayTimeout:     getEnvDuration("GATEWAY_TIMEOUT", 15*time.Second),

		RabbitMQURL:           getEnv("RABBITMQ_URL", ""),
		NotificationQueueSize: getEnvInt("NOTIFICATION_QUEUE_SIZE", 256),
		NotificationWorkers:   getEnvInt("NOTIFICATION_WORKERS", 2),

		ReaperEnabled:         getEnvBool("REAPER_ENABLED", true),
		ReaperInterval:        getEnvDuration("REAPER_INTERVAL", 5*time.Minute),
		PaymentReconcileAfter: getEnvDuration("PAYMENT_RECONCILE_AFTER", 24*time.Hour),
	}

	if cfg.ReaperEnabled && cfg.ReaperInterval <= 0 {
		return nil, fmt.Errorf("REAPER_INTERVAL must be positive")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}

	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvDuration accepts Go duration strings ("90s", "24h") or a bare number
// of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return fallback
	}
	value = strings.TrimSpace(value)
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}

func (c *Config) PaymentsEnabled() bool {
	return c != nil && c.PaystackSecretKey != ""
}

func (c *Config) DocsEnabled() bool {
	return c != nil && c.EnableDocs && c.AppEnv == "development"
}
