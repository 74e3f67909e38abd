// Package app builds the process-wide object graph shared by the API server
// and the fedctl admin CLI.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/kursadbilgin/federation-engine/internal/config"
	"github.com/kursadbilgin/federation-engine/internal/domain"
	"github.com/kursadbilgin/federation-engine/internal/gateway"
	"github.com/kursadbilgin/federation-engine/internal/gateway/mercadopago"
	"github.com/kursadbilgin/federation-engine/internal/gateway/pagseguro"
	"github.com/kursadbilgin/federation-engine/internal/handler"
	"github.com/kursadbilgin/federation-engine/internal/infra/postgresql"
	infraredis "github.com/kursadbilgin/federation-engine/internal/infra/redis"
	"github.com/kursadbilgin/federation-engine/internal/observability"
	"github.com/kursadbilgin/federation-engine/internal/provider"
	"github.com/kursadbilgin/federation-engine/internal/queue"
	"github.com/kursadbilgin/federation-engine/internal/repository"
	"github.com/kursadbilgin/federation-engine/internal/service"
	"github.com/kursadbilgin/federation-engine/internal/whatsapp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds the long-lived services. Build it once per process and Close it
// on shutdown.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	DB    *gorm.DB
	SQLDB *sql.DB
	Redis *redis.Client

	rabbit    *queue.RabbitMQ
	publisher queue.Publisher
	consumer  queue.Consumer

	Gateways      *gateway.Service
	WhatsApp      *whatsapp.Client
	Channels      *provider.Router
	Notifications *service.NotificationService
	Worker        *service.WorkerService
	RetryScanner  *service.RetryScanner
	Transactions  *service.TransactionService
	Protocols     *service.ProtocolService
	Memberships   *service.MembershipService
	Webhooks      *service.PaymentWebhookService
}

// New connects to Postgres, Redis and, in queue mode, RabbitMQ, then wires
// every service. On error, whatever was opened is closed again.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *App, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{Config: cfg, Logger: logger, Metrics: observability.NewMetrics()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.DB, err = postgresql.NewPostgres(cfg.DatabaseDSN, postgresql.PoolConfigFrom(cfg), logger.Named("gorm"))
	if err != nil {
		return nil, fmt.Errorf("postgres initialization failed: %w", err)
	}
	a.SQLDB, err = a.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres underlying db init failed: %w", err)
	}

	a.Redis, err = infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis initialization failed: %w", err)
	}

	if err := a.wireGateways(); err != nil {
		return nil, err
	}
	if err := a.wireNotifications(ctx); err != nil {
		return nil, err
	}
	if err := a.wireMemberships(); err != nil {
		return nil, err
	}

	return a, nil
}

func (a *App) wireGateways() error {
	gateways, err := gateway.NewService(
		repository.NewGormGatewayConfigRepo(a.DB),
		map[domain.GatewayProvider]gateway.Factory{
			domain.GatewayMercadoPago: mercadopago.NewFactory(),
			domain.GatewayPagSeguro:   pagseguro.NewFactory(a.Config.PagSeguroAPIURL),
		},
		a.Logger.Named("gateway"),
	)
	if err != nil {
		return err
	}
	gateways.SetWebhookBaseURL(a.Config.PublicBaseURL)
	gateways.SetMetrics(a.Metrics)
	a.Gateways = gateways
	return nil
}

func (a *App) wireNotifications(ctx context.Context) error {
	cfg := a.Config
	logger := a.Logger

	wa, err := whatsapp.New(whatsapp.Config{
		BaseURL:  cfg.WhatsAppAPIURL,
		Instance: cfg.WhatsAppInstance,
		APIKey:   cfg.WhatsAppAPIKey,
	}, logger.Named("whatsapp"))
	if err != nil {
		return fmt.Errorf("whatsapp client init failed: %w", err)
	}
	a.WhatsApp = wa

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return fmt.Errorf("failed to load aws config: %w", err)
	}
	email, err := provider.NewEmailProvider(ses.NewFromConfig(awsCfg), cfg.EmailFrom)
	if err != nil {
		return err
	}
	whatsappProvider, err := provider.NewWhatsAppProvider(wa)
	if err != nil {
		return err
	}
	webhook, err := provider.NewWebhookProvider(cfg.NotificationWebhookSecret)
	if err != nil {
		return err
	}

	a.Channels = provider.NewRouter().
		Register(domain.ChannelEmail, email, cfg.NotificationEmailEnabled).
		Register(domain.ChannelWhatsApp, whatsappProvider, cfg.NotificationWhatsAppEnabled).
		Register(domain.ChannelWebhook, webhook, true)

	rateLimiter, err := infraredis.NewRedisRateLimiter(a.Redis, cfg.RateLimitPerSec, map[string]int{
		domain.ChannelWhatsApp.String(): cfg.RateLimitWhatsAppPerSec,
	})
	if err != nil {
		return err
	}

	notifications := repository.NewGormNotificationRepo(a.DB)
	attempts := repository.NewGormAttemptRepo(a.DB)
	logs := repository.NewGormLogRepo(a.DB)
	transactor := repository.NewGormTransactor(a.DB)

	if cfg.NotificationDispatchMode == config.DispatchModeQueue {
		a.rabbit, err = queue.NewRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			return fmt.Errorf("rabbitmq initialization failed: %w", err)
		}
		a.publisher = queue.NewRabbitMQPublisher(a.rabbit)
		a.consumer = queue.NewRabbitMQConsumer(a.rabbit, cfg.WorkerConcurrency, logger.Named("consumer"))
	}

	worker, err := service.NewWorkerService(
		notifications,
		attempts,
		logs,
		transactor,
		a.consumer,
		a.Channels,
		rateLimiter,
		cfg.WorkerConcurrency,
		logger.Named("worker"),
	)
	if err != nil {
		return err
	}
	worker.SetMetrics(a.Metrics)
	a.Worker = worker

	var dispatcher service.Dispatcher = service.NewInlineDispatcher(worker)
	if a.publisher != nil {
		dispatcher = service.NewQueueDispatcher(a.publisher)
	}

	a.Notifications, err = service.NewNotificationService(
		notifications,
		attempts,
		logs,
		transactor,
		dispatcher,
		cfg.NotificationMaxRetries,
		logger.Named("notifications"),
	)
	if err != nil {
		return err
	}

	a.RetryScanner, err = service.NewRetryScanner(notifications, dispatcher, 0, 0, logger.Named("retry-scanner"))
	return err
}

func (a *App) wireMemberships() error {
	cfg := a.Config
	logger := a.Logger
	transactor := repository.NewGormTransactor(a.DB)

	var err error
	a.Transactions, err = service.NewTransactionService(repository.NewGormTransactionRepo(a.DB), logger.Named("transactions"))
	if err != nil {
		return err
	}

	sequence, err := infraredis.NewProtocolSequence(a.Redis)
	if err != nil {
		return err
	}
	a.Protocols, err = service.NewProtocolService(sequence, repository.NewGormProtocolRepo(a.DB), cfg.ProtocolPrefix)
	if err != nil {
		return err
	}

	amount, err := cfg.DefaultAmount()
	if err != nil {
		return err
	}
	a.Memberships, err = service.NewMembershipService(service.MembershipDependencies{
		Athletes:     repository.NewGormAthleteRepo(a.DB),
		Transactor:   transactor,
		Transactions: a.Transactions,
		Protocols:    a.Protocols,
		Payments:     a.Gateways,
		Notifier:     a.Notifications,
		WhatsApp:     a.WhatsApp,
		Channels:     a.Channels,
		Metrics:      a.Metrics,
	}, service.MembershipConfig{
		DefaultAmount: amount,
		PortalURL:     cfg.PublicBaseURL,
	}, logger.Named("memberships"))
	if err != nil {
		return err
	}

	deduper, err := infraredis.NewEventDeduper(a.Redis, 0)
	if err != nil {
		return err
	}
	a.Webhooks, err = service.NewPaymentWebhookService(a.Gateways, a.Transactions, a.Memberships, deduper, logger.Named("webhooks"))
	if err != nil {
		return err
	}
	a.Webhooks.SetMetrics(a.Metrics)
	return nil
}

// QueueMode reports whether notifications are delivered by queue workers.
func (a *App) QueueMode() bool {
	return a.consumer != nil
}

// ReadinessChecks probes every backing service this process depends on.
func (a *App) ReadinessChecks() map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"postgres": handler.PostgresCheck(a.SQLDB),
		"redis":    handler.RedisCheck(a.Redis),
	}
	if a.rabbit != nil {
		checks["rabbitmq"] = a.rabbit.Ping
	}
	return checks
}

// Close releases every connection New opened. It is safe on a partially
// built App.
func (a *App) Close() {
	var errs []error
	if a.rabbit != nil {
		errs = append(errs, a.rabbit.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.SQLDB != nil {
		errs = append(errs, a.SQLDB.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.Logger.Warn("error while closing resources", zap.Error(err))
	}
}
