package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; only DATABASE_URL is required.
// Provider credentials are optional at load time: an unconfigured provider
// makes the endpoints that need it fail fast instead of the process.
type Config struct {
	// Server
	HTTPPort        string        `envconfig:"HTTP_PORT" default:"8080" validate:"required,numeric"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"5s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	AllowedOrigins  []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Database
	DatabaseURL     string `envconfig:"DATABASE_URL" validate:"required"`
	DBMaxConns      int32  `envconfig:"DB_MAX_CONNS" default:"10" validate:"gte=1"`
	DBMinConns      int32  `envconfig:"DB_MIN_CONNS" default:"1" validate:"gte=0"`
	RunMigrations   bool   `envconfig:"RUN_MIGRATIONS" default:"true"`
	ListenQuoteLive bool   `envconfig:"LISTEN_QUOTE_LIVE" default:"true"`

	// Redis backs the job lock; empty falls back to an in-process lock.
	RedisURL string        `envconfig:"REDIS_URL"`
	LockTTL  time.Duration `envconfig:"JOB_LOCK_TTL" default:"10m"`

	// Email provider: "resend" (HTTP API) or "ses".
	EmailProvider   string        `envconfig:"EMAIL_PROVIDER" default:"resend" validate:"oneof=resend ses"`
	ResendAPIKey    string        `envconfig:"RESEND_API_KEY"`
	ResendBaseURL   string        `envconfig:"RESEND_BASE_URL" default:"https://api.resend.com" validate:"url"`
	AWSRegion       string        `envconfig:"AWS_REGION" default:"us-east-1"`
	EmailFrom       string        `envconfig:"EMAIL_FROM" default:"Daily Quotes <quotes@example.com>"`
	SiteURL         string        `envconfig:"SITE_URL" default:"https://example.com" validate:"url"`
	ProviderTimeout time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"10s"`

	// WhatsApp Cloud API
	WhatsAppToken            string `envconfig:"WHATSAPP_ACCESS_TOKEN"`
	WhatsAppPhoneNumberID    string `envconfig:"WHATSAPP_PHONE_NUMBER_ID"`
	WhatsAppBaseURL          string `envconfig:"WHATSAPP_BASE_URL" default:"https://graph.facebook.com/v19.0" validate:"url"`
	WhatsAppQuoteTemplate    string `envconfig:"WHATSAPP_QUOTE_TEMPLATE" default:"daily_quote"`
	WhatsAppVerifyTemplate   string `envconfig:"WHATSAPP_VERIFY_TEMPLATE" default:"verification_code"`
	WhatsAppTemplateLanguage string `envconfig:"WHATSAPP_TEMPLATE_LANGUAGE" default:"en_US"`

	// Rate limiting: maximum sends per second per channel
	EmailRateLimit    int `envconfig:"EMAIL_RATE_LIMIT" default:"10" validate:"gte=1"`
	WhatsAppRateLimit int `envconfig:"WHATSAPP_RATE_LIMIT" default:"20" validate:"gte=1"`

	// Dispatch
	BatchSize      int `envconfig:"BATCH_SIZE" default:"50" validate:"gte=1,lte=500"`
	RetryBatchSize int `envconfig:"RETRY_BATCH_SIZE" default:"200" validate:"gte=1"`

	// Background worker poll intervals; zero disables the worker.
	ScheduledInterval time.Duration `envconfig:"SCHEDULED_INTERVAL" default:"1m"`
	QueueInterval     time.Duration `envconfig:"QUEUE_INTERVAL" default:"30s"`
	RetryInterval     time.Duration `envconfig:"RETRY_INTERVAL" default:"1m"`
}

// Load reads .env (if present) and the environment into a validated Config.
func Load() (*Config, error) {
	// godotenv never overrides variables that are already set.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// EmailConfigured reports whether the selected email provider has credentials.
// SES resolves credentials through the default AWS chain, so only Resend
// needs an explicit key.
func (c *Config) EmailConfigured() bool {
	if c.EmailProvider == "ses" {
		return true
	}
	return c.ResendAPIKey != ""
}

// WhatsAppConfigured reports whether WhatsApp sends can be attempted.
func (c *Config) WhatsAppConfigured() bool {
	return c.WhatsAppToken != "" && c.WhatsAppPhoneNumberID != ""
}
