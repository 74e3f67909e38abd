package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	DispatchModeQueue  = "queue"
	DispatchModeInline = "inline"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL"`

	NotificationDispatchMode    string `env:"NOTIFICATION_DISPATCH_MODE,default=queue"`
	NotificationMaxRetries      int    `env:"NOTIFICATION_MAX_RETRIES,default=3"`
	NotificationEmailEnabled    bool   `env:"NOTIFICATION_EMAIL_ENABLED,default=true"`
	NotificationWhatsAppEnabled bool   `env:"NOTIFICATION_WHATSAPP_ENABLED,default=true"`
	NotificationWebhookSecret   string `env:"NOTIFICATION_WEBHOOK_SECRET"`

	WhatsAppAPIURL   string `env:"WHATSAPP_API_URL"`
	WhatsAppInstance string `env:"WHATSAPP_INSTANCE,default=federacao"`
	WhatsAppAPIKey   string `env:"WHATSAPP_API_KEY"`

	EmailFrom string `env:"EMAIL_FROM,default=no-reply@federacao.local"`
	AWSRegion string `env:"AWS_REGION,default=us-east-1"`

	PublicBaseURL           string `env:"NEXT_PUBLIC_BASE_URL,default=http://localhost:3000"`
	MembershipDefaultAmount string `env:"MEMBERSHIP_DEFAULT_AMOUNT,default=150.00"`
	ProtocolPrefix          string `env:"PROTOCOL_PREFIX,default=FED"`
	PagSeguroAPIURL         string `env:"PAGSEGURO_API_URL,default=https://sandbox.api.pagseguro.com"`

	RateLimitPerSec         int `env:"RATE_LIMIT_PER_SEC,default=100"`
	RateLimitWhatsAppPerSec int `env:"RATE_LIMIT_WHATSAPP_PER_SEC,default=2"`

	DBMaxOpenConns           int `env:"DB_MAX_OPEN_CONNS,default=25"`
	DBMaxIdleConns           int `env:"DB_MAX_IDLE_CONNS,default=5"`
	DBConnMaxLifetimeMinutes int `env:"DB_CONN_MAX_LIFETIME_MINUTES,default=60"`

	WorkerConcurrency int    `env:"WORKER_CONCURRENCY,default=5"`
	APIPort           int    `env:"API_PORT,default=8080"`
	LogLevel          string `env:"LOG_LEVEL,default=info"`
}

// Load reads an optional .env file, then the process environment. Variables
// already set in the environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.NotificationDispatchMode = strings.ToLower(strings.TrimSpace(cfg.NotificationDispatchMode))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.NotificationDispatchMode {
	case DispatchModeQueue:
		if c.RabbitMQURL == "" {
			return fmt.Errorf("invalid config: RABBITMQ_URL is required when NOTIFICATION_DISPATCH_MODE=queue")
		}
	case DispatchModeInline:
	default:
		return fmt.Errorf("invalid config: unknown NOTIFICATION_DISPATCH_MODE %q", c.NotificationDispatchMode)
	}
	if c.NotificationMaxRetries < 1 {
		return fmt.Errorf("invalid config: NOTIFICATION_MAX_RETRIES must be at least 1")
	}
	if _, err := c.DefaultAmount(); err != nil {
		return err
	}
	if strings.TrimSpace(c.ProtocolPrefix) == "" {
		return fmt.Errorf("invalid config: PROTOCOL_PREFIX must not be empty")
	}
	return nil
}

// DefaultAmount is the membership fee applied when a request omits it.
func (c *Config) DefaultAmount() (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(c.MembershipDefaultAmount))
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("invalid config: MEMBERSHIP_DEFAULT_AMOUNT %q must be a positive decimal", c.MembershipDefaultAmount)
	}
	return amount, nil
}

// WhatsAppConfigured reports whether the Evolution API credentials are set.
func (c *Config) WhatsAppConfigured() bool {
	return c.WhatsAppAPIURL != "" && c.WhatsAppAPIKey != ""
}
