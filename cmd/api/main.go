package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/kursadbilgin/federation-engine/internal/app"
	"github.com/kursadbilgin/federation-engine/internal/config"
	"github.com/kursadbilgin/federation-engine/internal/handler"
	"github.com/kursadbilgin/federation-engine/internal/infra/postgresql/migrations"
	"github.com/kursadbilgin/federation-engine/internal/observability"
	"github.com/kursadbilgin/federation-engine/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("application wiring failed", zap.Error(err))
	}
	defer a.Close()

	if err := migrations.Migrate(a.DB); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	server, err := newServer(a)
	if err != nil {
		logger.Fatal("http server setup failed", zap.Error(err))
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.APIPort)
		logger.Info("federation-engine api started",
			zap.Int("port", cfg.APIPort),
			zap.String("dispatchMode", cfg.NotificationDispatchMode),
		)
		return server.Listen(addr)
	})
	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down http server")
		return server.ShutdownWithTimeout(shutdownTimeout)
	})
	if a.QueueMode() {
		g.Go(func() error {
			return a.Worker.Start(groupCtx)
		})
	}
	g.Go(func() error {
		return a.RetryScanner.Start(groupCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("federation-engine api stopped with error", zap.Error(err))
		return
	}
	logger.Info("federation-engine api stopped")
}

func newServer(a *app.App) (*fiber.App, error) {
	server := fiber.New(fiber.Config{
		AppName:               "federation-engine",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(a.Logger.Named("http")),
	})
	server.Use(requestid.New())
	server.Use(a.Metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(server, a.Metrics, a.ReadinessChecks())
	if err := handler.RegisterNotificationRoutes(server, a.Notifications); err != nil {
		return nil, err
	}
	if err := handler.RegisterMembershipRoutes(server, a.Memberships); err != nil {
		return nil, err
	}
	if err := handler.RegisterPaymentRoutes(server, a.Gateways, a.Webhooks); err != nil {
		return nil, err
	}
	if err := handler.RegisterWhatsAppRoutes(server, a.WhatsApp); err != nil {
		return nil, err
	}
	return server, nil
}
