package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kursadbilgin/federation-engine/internal/domain"
	"github.com/kursadbilgin/federation-engine/internal/observability"
	"go.uber.org/zap"
)

// ConfigSource lists the active gateway configurations, newest edit first.
type ConfigSource interface {
	ListActive(ctx context.Context, provider *domain.GatewayProvider) ([]domain.GatewayConfig, error)
}

type cachedGateway struct {
	key     string
	gateway Gateway
}

// Service resolves the active gateway configuration and delegates to a cached
// adapter built for it. Safe for concurrent use.
type Service struct {
	configs   ConfigSource
	factories map[domain.GatewayProvider]Factory
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time

	webhookBaseURL string

	mu    sync.Mutex
	cache map[string]cachedGateway
}

func NewService(
	configs ConfigSource,
	factories map[domain.GatewayProvider]Factory,
	logger *zap.Logger,
) (*Service, error) {
	if configs == nil {
		return nil, fmt.Errorf("gateway config source is required")
	}
	if len(factories) == 0 {
		return nil, fmt.Errorf("at least one gateway factory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		configs:   configs,
		factories: factories,
		logger:    logger,
		now:       time.Now,
		cache:     make(map[string]cachedGateway),
	}, nil
}

func (s *Service) SetMetrics(metrics *observability.Metrics) {
	s.metrics = metrics
}

// observe records the latency and outcome of one adapter call started at
// start.
func (s *Service) observe(provider domain.GatewayProvider, operation string, start time.Time, err error) {
	s.metrics.ObserveGatewayCall(provider.String(), operation, s.now().Sub(start), err)
}

// ActiveGateway returns the adapter of the single active configuration. A nil
// provider accepts any provider.
func (s *Service) ActiveGateway(ctx context.Context, provider *domain.GatewayProvider) (Gateway, *domain.GatewayConfig, error) {
	configs, err := s.configs.ListActive(ctx, provider)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load gateway configuration: %w", err)
	}
	if len(configs) == 0 {
		return nil, nil, ErrNoActiveGateway
	}
	if len(configs) > 1 {
		s.logger.Warn("multiple active gateway configurations, using most recently updated",
			zap.Int("count", len(configs)),
			zap.String("configId", configs[0].ID),
		)
	}

	cfg := configs[0]
	if cfg.Credentials == nil || strings.TrimSpace(cfg.Credentials.AccessToken) == "" {
		return nil, nil, ErrCredentialsNotConfigured
	}

	gw, err := s.adapterFor(cfg)
	if err != nil {
		return nil, nil, err
	}
	return gw, &cfg, nil
}

func (s *Service) adapterFor(cfg domain.GatewayConfig) (Gateway, error) {
	key := cfg.CacheKey()

	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.cache[cfg.ID]; ok && cached.key == key {
		return cached.gateway, nil
	}

	factory, ok := s.factories[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}
	gw, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s gateway: %w", cfg.Provider, err)
	}

	s.cache[cfg.ID] = cachedGateway{key: key, gateway: gw}
	s.logger.Info("payment gateway adapter built",
		zap.String("provider", cfg.Provider.String()),
		zap.String("configId", cfg.ID),
		zap.Bool("sandbox", cfg.Sandbox),
	)
	return gw, nil
}

// SetWebhookBaseURL makes CreatePayment point provider notifications at
// this service when the input carries no notification URL.
func (s *Service) SetWebhookBaseURL(baseURL string) {
	s.webhookBaseURL = strings.TrimSpace(baseURL)
}

// InvalidateCache drops every cached adapter.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]cachedGateway)
}

func (s *Service) CreatePayment(ctx context.Context, provider *domain.GatewayProvider, input CreatePaymentInput) (*PaymentResult, domain.GatewayProvider, error) {
	if err := input.Validate(); err != nil {
		return nil, "", err
	}

	gw, _, err := s.ActiveGateway(ctx, provider)
	if err != nil {
		return nil, "", err
	}

	if input.NotificationURL == "" && s.webhookBaseURL != "" {
		input.NotificationURL = WebhookURL(s.webhookBaseURL, gw.Provider())
	}

	start := s.now()
	result, err := gw.CreatePayment(ctx, input)
	s.observe(gw.Provider(), "create_payment", start, err)
	if err != nil {
		return nil, gw.Provider(), err
	}
	return result, gw.Provider(), nil
}

func (s *Service) GetPayment(ctx context.Context, provider domain.GatewayProvider, externalID string) (*PaymentDetails, error) {
	gw, _, err := s.ActiveGateway(ctx, &provider)
	if err != nil {
		return nil, err
	}
	start := s.now()
	details, err := gw.GetPayment(ctx, externalID)
	s.observe(gw.Provider(), "get_payment", start, err)
	return details, err
}

// GetPaymentStatus asks the active gateway, optionally restricted to
// provider, for the current status of a payment.
func (s *Service) GetPaymentStatus(ctx context.Context, provider *domain.GatewayProvider, externalID string) (domain.PaymentStatus, error) {
	gw, _, err := s.ActiveGateway(ctx, provider)
	if err != nil {
		return "", err
	}
	start := s.now()
	status, err := gw.GetPaymentStatus(ctx, externalID)
	s.observe(gw.Provider(), "get_payment_status", start, err)
	return status, err
}

func (s *Service) RefundPayment(ctx context.Context, provider domain.GatewayProvider, externalID string) (*PaymentResult, error) {
	gw, _, err := s.ActiveGateway(ctx, &provider)
	if err != nil {
		return nil, err
	}
	start := s.now()
	result, err := gw.RefundPayment(ctx, externalID)
	s.observe(gw.Provider(), "refund_payment", start, err)
	return result, err
}

func (s *Service) ValidateWebhook(ctx context.Context, provider domain.GatewayProvider, req WebhookRequest) (bool, error) {
	gw, _, err := s.ActiveGateway(ctx, &provider)
	if err != nil {
		return false, err
	}
	return gw.ValidateWebhook(req), nil
}

func (s *Service) ParseWebhookData(ctx context.Context, provider domain.GatewayProvider, req WebhookRequest) (*WebhookData, error) {
	gw, _, err := s.ActiveGateway(ctx, &provider)
	if err != nil {
		return nil, err
	}
	return gw.ParseWebhookData(req)
}
