package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port      string
	AppEnv    string
	LogLevel  string
	LogFormat string
	// StorageDriver selects the repository implementation: postgres or memory.
	StorageDriver string
	DBUrl         string
	AutoMigrate   bool
	FrontendURL   string
	// Auth
	JWTSecret     string
	JWKSURL       string
	AutoProvision bool
	// Redis/Upstash Configuration
	RedisURL      string
	RedisPassword string
	// Payments (Stripe)
	StripeSecretKey     string
	StripeWebhookSecret string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string
	PlanStandardAmount  int
	PlanPremiumAmount   int
	PlanStandardPriceID string
	PlanPremiumPriceID  string
	PlanDurationDays    int
	PlanCurrency        string
	PaymentTimeout      time.Duration
	WebhookEventTTL     time.Duration
	// Notifications
	EmailProvider   string
	EmailFrom       string
	AdminEmail      string
	SMTPHost        string
	SMTPPort        string
	SMTPUsername    string
	SMTPPassword    string
	SESRegion       string
	NotifyTimeout   time.Duration
	NotifyWorkers   int
	NotifyQueueSize int
	// Document storage (S3 or Wasabi)
	S3Provider        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string
	S3PublicBaseURL   string
	UploadURLTTL      time.Duration
	UploadsPerDay     int
	// Rate Limiting Configuration
	RateLimitWindowSeconds   int
	RateLimitGlobalThreshold int
	RateLimitWriteThreshold  int
}

func LoadConfig() (*Config, error) {
	// Only effective locally; production injects the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		AppEnv:        getEnv("APP_ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		StorageDriver: strings.ToLower(getEnv("STORAGE_DRIVER", "postgres")),
		DBUrl:         getEnv("DATABASE_URL", ""),
		AutoMigrate:   getEnvBool("AUTO_MIGRATE", false),
		FrontendURL:   strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
		// Auth
		JWTSecret:     getEnv("JWT_SECRET", ""),
		JWKSURL:       getEnv("JWKS_URL", ""),
		AutoProvision: getEnvBool("AUTO_PROVISION_ACCOUNTS", true),
		// Redis
		RedisURL:      getEnv("REDIS_URL", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		// Payments
		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		CheckoutSuccessURL:  getEnv("CHECKOUT_SUCCESS_URL", ""),
		CheckoutCancelURL:   getEnv("CHECKOUT_CANCEL_URL", ""),
		PlanStandardAmount:  getEnvInt("PLAN_STANDARD_AMOUNT", 49900),
		PlanPremiumAmount:   getEnvInt("PLAN_PREMIUM_AMOUNT", 99900),
		PlanStandardPriceID: getEnv("PLAN_STANDARD_PRICE_ID", ""),
		PlanPremiumPriceID:  getEnv("PLAN_PREMIUM_PRICE_ID", ""),
		PlanDurationDays:    getEnvInt("PLAN_DURATION_DAYS", 365),
		PlanCurrency:        getEnv("PLAN_CURRENCY", "gbp"),
		PaymentTimeout:      getEnvDuration("PAYMENT_TIMEOUT", 10*time.Second),
		WebhookEventTTL:     getEnvDuration("WEBHOOK_EVENT_TTL", 7*24*time.Hour),
		// Notifications
		EmailProvider:   strings.ToLower(getEnv("EMAIL_PROVIDER", "log")),
		EmailFrom:       getEnv("EMAIL_FROM", "noreply@softhire.co.uk"),
		AdminEmail:      getEnv("ADMIN_EMAIL", ""),
		SMTPHost:        getEnv("SMTP_HOST", "smtp-relay.brevo.com"),
		SMTPPort:        getEnv("SMTP_PORT", "587"),
		SMTPUsername:    getEnv("SMTP_USERNAME", ""),
		SMTPPassword:    getEnv("SMTP_PASSWORD", ""),
		SESRegion:       getEnv("SES_REGION", "eu-west-2"),
		NotifyTimeout:   getEnvDuration("NOTIFY_TIMEOUT", 30*time.Second),
		NotifyWorkers:   getEnvInt("NOTIFY_WORKERS", 2),
		NotifyQueueSize: getEnvInt("NOTIFY_QUEUE_SIZE", 100),
		// Document storage
		S3Provider:        strings.ToLower(getEnv("S3_PROVIDER", "aws")),
		S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
		S3Region:          getEnv("S3_REGION", "eu-west-2"),
		S3Bucket:          getEnv("S3_BUCKET", ""),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3PublicBaseURL:   getEnv("S3_PUBLIC_BASE_URL", ""),
		UploadURLTTL:      getEnvDuration("UPLOAD_URL_TTL", 15*time.Minute),
		UploadsPerDay:     getEnvInt("UPLOADS_PER_DAY", 50),
		// Rate Limiting Configuration (with sensible defaults)
		RateLimitWindowSeconds:   getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitGlobalThreshold: getEnvInt("RATE_LIMIT_GLOBAL_THRESHOLD", 100),
		RateLimitWriteThreshold:  getEnvInt("RATE_LIMIT_WRITE_THRESHOLD", 30),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case "postgres":
		if c.DBUrl == "" {
			return errors.New("DATABASE_URL is required when STORAGE_DRIVER=postgres")
		}
	case "memory":
	default:
		return errors.New("STORAGE_DRIVER must be postgres or memory")
	}
	if c.JWTSecret == "" && c.JWKSURL == "" {
		return errors.New("one of JWT_SECRET or JWKS_URL is required")
	}
	switch c.EmailProvider {
	case "smtp", "ses", "log":
	default:
		return errors.New("EMAIL_PROVIDER must be smtp, ses or log")
	}
	if c.PlanDurationDays <= 0 {
		return errors.New("PLAN_DURATION_DAYS must be positive")
	}
	if c.RateLimitWindowSeconds < 1 {
		return errors.New("RATE_LIMIT_WINDOW_SECONDS must be at least 1")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt returns an integer environment variable or fallback if not set/invalid
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool returns a boolean environment variable or fallback if not set/invalid
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("15m") or whole seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}
