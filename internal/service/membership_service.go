package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/federation-engine/internal/domain"
	"github.com/kursadbilgin/federation-engine/internal/gateway"
	"github.com/kursadbilgin/federation-engine/internal/observability"
	"github.com/kursadbilgin/federation-engine/internal/repository"
	"github.com/kursadbilgin/federation-engine/internal/templates"
	"github.com/kursadbilgin/federation-engine/internal/whatsapp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentGateway is the part of gateway.Service used by memberships.
type PaymentGateway interface {
	CreatePayment(ctx context.Context, provider *domain.GatewayProvider, input gateway.CreatePaymentInput) (*gateway.PaymentResult, domain.GatewayProvider, error)
	RefundPayment(ctx context.Context, provider domain.GatewayProvider, externalID string) (*gateway.PaymentResult, error)
}

type TransactionStore interface {
	Create(ctx context.Context, t *domain.PaymentTransaction) error
	FindLatestPaidForAthlete(ctx context.Context, athleteID string) (*domain.PaymentTransaction, error)
}

type ProtocolIssuer interface {
	NextNumber(ctx context.Context) (string, error)
	Issue(ctx context.Context, number string, transactionID *string, entityType string, entityID string) (*domain.Protocol, error)
	FindLatestForEntity(ctx context.Context, entityType, entityID string) (*domain.Protocol, error)
}

type NotificationSender interface {
	Send(ctx context.Context, notification *domain.Notification) (*domain.Notification, error)
}

type ConnectionChecker interface {
	CheckConnectionStatus(ctx context.Context) (whatsapp.ConnectionStatus, error)
}

// ChannelRegistry reports which notification channels are switched on.
type ChannelRegistry interface {
	Enabled(channel domain.Channel) bool
}

type MembershipDependencies struct {
	Athletes     repository.AthleteRepository
	Transactor   repository.Transactor
	Transactions TransactionStore
	Protocols    ProtocolIssuer
	Payments     PaymentGateway
	Notifier     NotificationSender
	WhatsApp     ConnectionChecker
	Channels     ChannelRegistry
	Metrics      *observability.Metrics
}

type MembershipConfig struct {
	DefaultAmount decimal.Decimal
	// PortalURL is the athlete-facing site, used for return links and templates.
	PortalURL string
}

// MembershipService creates membership payments and activates athletes.
// Notifications are best-effort and never fail the membership operation.
type MembershipService struct {
	athletes     repository.AthleteRepository
	transactor   repository.Transactor
	transactions TransactionStore
	protocols    ProtocolIssuer
	payments     PaymentGateway
	notifier     NotificationSender
	whatsapp     ConnectionChecker
	channels     ChannelRegistry
	metrics      *observability.Metrics
	cfg          MembershipConfig
	logger       *zap.Logger
	now          func() time.Time
}

type CreateMembershipInput struct {
	UserID        string
	Amount        *decimal.Decimal
	PaymentMethod domain.PaymentMethod
	Provider      *domain.GatewayProvider
}

type CreateMembershipResult struct {
	Payment        gateway.PaymentResult
	Provider       domain.GatewayProvider
	ProtocolNumber string
	TransactionID  string
	EmailQueued    bool
}

// ActivationResult reports the activated athlete. The Queued flags mean the
// notification was stored for delivery, not that it reached the recipient.
type ActivationResult struct {
	Athlete        domain.Athlete
	ProtocolNumber string
	IsRenewal      bool
	EmailQueued    bool
	WhatsAppStatus whatsapp.ConnectionStatus
	WhatsAppQueued bool
}

func NewMembershipService(deps MembershipDependencies, cfg MembershipConfig, logger *zap.Logger) (*MembershipService, error) {
	switch {
	case deps.Athletes == nil:
		return nil, fmt.Errorf("athlete repository is required")
	case deps.Transactor == nil:
		return nil, fmt.Errorf("transactor is required")
	case deps.Transactions == nil:
		return nil, fmt.Errorf("transaction store is required")
	case deps.Protocols == nil:
		return nil, fmt.Errorf("protocol issuer is required")
	case deps.Payments == nil:
		return nil, fmt.Errorf("payment gateway is required")
	case deps.Notifier == nil:
		return nil, fmt.Errorf("notification sender is required")
	}
	if !cfg.DefaultAmount.IsPositive() {
		return nil, fmt.Errorf("default membership amount must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &MembershipService{
		athletes:     deps.Athletes,
		transactor:   deps.Transactor,
		transactions: deps.Transactions,
		protocols:    deps.Protocols,
		payments:     deps.Payments,
		notifier:     deps.Notifier,
		whatsapp:     deps.WhatsApp,
		channels:     deps.Channels,
		metrics:      deps.Metrics,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
	}, nil
}

// CreateMembership starts a paid membership for the athlete of userID. The
// transaction and protocol rows are stored atomically; if that fails after
// the gateway accepted the payment, the payment is refunded.
func (s *MembershipService) CreateMembership(ctx context.Context, input CreateMembershipInput) (*CreateMembershipResult, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	if !input.PaymentMethod.IsValid() {
		return nil, fmt.Errorf("%w: invalid payment method %q", domain.ErrValidation, input.PaymentMethod)
	}

	athlete, err := s.athletes.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	amount := s.cfg.DefaultAmount
	if input.Amount != nil {
		amount = *input.Amount
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be greater than zero", domain.ErrValidation)
	}

	year := s.now().Year()
	description := fmt.Sprintf("Filiação %d - %s", year, athlete.Name)
	paymentInput := gateway.CreatePaymentInput{
		Amount:        amount,
		Currency:      gateway.DefaultCurrency,
		Description:   description,
		PaymentMethod: input.PaymentMethod,
		Customer: gateway.Customer{
			Name:     athlete.Name,
			Email:    athlete.Email,
			Document: athlete.Document,
			Phone:    phoneOf(athlete),
		},
		ReturnURL: s.returnURL(),
	}
	if err := paymentInput.ValidatePayment(); err != nil {
		return nil, err
	}

	number, err := s.protocols.NextNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve protocol number: %w", err)
	}
	paymentInput.Reference = number

	logger := observability.WithContextLogger(s.logger, ctx).With(
		zap.String("userId", userID),
		zap.String("protocol", number),
	)

	payment, provider, err := s.payments.CreatePayment(ctx, input.Provider, paymentInput)
	if err != nil {
		return nil, err
	}
	s.metrics.IncPaymentCreated(provider.String(), input.PaymentMethod.String())

	externalID := payment.ExternalID
	transaction := &domain.PaymentTransaction{
		AthleteID:     athlete.ID,
		UserID:        athlete.UserID,
		Provider:      provider,
		Amount:        amount,
		Currency:      gateway.DefaultCurrency,
		Status:        domain.PaymentStatusPending,
		PaymentMethod: input.PaymentMethod,
		ExternalID:    &externalID,
		Protocol:      number,
		Description:   description,
		Metadata: map[string]any{
			"type":      domain.EntityTypeMembership,
			"athleteId": athlete.ID,
			"userId":    athlete.UserID,
			"year":      year,
		},
	}
	if payment.PaymentURL != "" {
		paymentURL := payment.PaymentURL
		transaction.PaymentURL = &paymentURL
	}

	err = s.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.transactions.Create(ctx, transaction); err != nil {
			return fmt.Errorf("failed to store payment transaction: %w", err)
		}
		if _, err := s.protocols.Issue(ctx, number, &transaction.ID, domain.EntityTypeAthlete, athlete.ID); err != nil {
			return fmt.Errorf("failed to store protocol: %w", err)
		}
		return nil
	})
	if err != nil {
		s.compensate(ctx, logger, provider, externalID)
		return nil, err
	}
	s.metrics.IncProtocolIssued()

	logger.Info("membership payment created",
		zap.String("provider", provider.String()),
		zap.String("externalId", externalID),
		zap.String("transactionId", transaction.ID),
	)

	emailQueued := s.notify(ctx, logger, domain.TypeMembershipCreated, domain.ChannelEmail, athlete.Email, templates.Data{
		Name:           athlete.Name,
		ProtocolNumber: number,
		Amount:         amount.StringFixed(2),
		PaymentURL:     payment.PaymentURL,
		Year:           year,
		PortalURL:      s.cfg.PortalURL,
	}, map[string]any{"userId": athlete.UserID, "protocol": number})

	return &CreateMembershipResult{
		Payment:        *payment,
		Provider:       provider,
		ProtocolNumber: number,
		TransactionID:  transaction.ID,
		EmailQueued:    emailQueued,
	}, nil
}

// ActivateMembership marks the athlete active for the current year. The row
// is locked for the update, so concurrent activations are serialized.
// RegistrationYear and IsRenewal are recomputed on every call.
// MembershipCurrent reports whether the athlete already holds an active
// membership for the current year.
func (s *MembershipService) MembershipCurrent(ctx context.Context, userID string) (bool, error) {
	athlete, err := s.athletes.GetByUserID(ctx, strings.TrimSpace(userID))
	if err != nil {
		return false, err
	}
	return athlete.ActiveFor(s.now().Year()), nil
}

func (s *MembershipService) ActivateMembership(ctx context.Context, userID string) (*ActivationResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}

	var athlete *domain.Athlete
	var protocolNumber string
	err := s.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		locked, err := s.athletes.LockByUserID(ctx, userID)
		if err != nil {
			return err
		}

		locked.Activate(s.now())
		if err := s.athletes.UpdateMembership(ctx, locked); err != nil {
			return fmt.Errorf("failed to update membership: %w", err)
		}

		number, err := s.latestProtocol(ctx, locked)
		if err != nil {
			return err
		}

		athlete = locked
		protocolNumber = number
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncMembershipActivated(athlete.IsRenewal)

	logger := observability.WithContextLogger(s.logger, ctx).With(
		zap.String("userId", userID),
		zap.String("protocol", protocolNumber),
	)
	logger.Info("membership activated", zap.Bool("renewal", athlete.IsRenewal))

	result := &ActivationResult{
		Athlete:        *athlete,
		ProtocolNumber: protocolNumber,
		IsRenewal:      athlete.IsRenewal,
	}

	data := templates.Data{
		Name:           athlete.Name,
		ProtocolNumber: protocolNumber,
		Year:           s.now().Year(),
		IsRenewal:      athlete.IsRenewal,
		PortalURL:      s.cfg.PortalURL,
	}
	metadata := map[string]any{"userId": athlete.UserID, "protocol": protocolNumber}

	result.EmailQueued = s.notify(ctx, logger, domain.TypeMembershipActivated, domain.ChannelEmail, athlete.Email, data, metadata)

	if !athlete.HasPhone() || s.whatsapp == nil || !s.channelEnabled(domain.ChannelWhatsApp) {
		return result, nil
	}

	status, err := s.whatsapp.CheckConnectionStatus(ctx)
	result.WhatsAppStatus = status
	switch {
	case err != nil:
		logger.Warn("whatsapp connection check failed, skipping confirmation", zap.Error(err))
	case status != whatsapp.StatusConnected:
		logger.Info("whatsapp not connected, skipping confirmation", zap.String("status", string(status)))
	default:
		result.WhatsAppQueued = s.notify(ctx, logger, domain.TypeMembershipActivated, domain.ChannelWhatsApp, *athlete.Phone, data, metadata)
	}

	return result, nil
}

// latestProtocol prefers the protocol of the latest paid transaction and
// falls back to the latest stored protocol. It is empty when neither exists.
func (s *MembershipService) latestProtocol(ctx context.Context, athlete *domain.Athlete) (string, error) {
	paid, err := s.transactions.FindLatestPaidForAthlete(ctx, athlete.ID)
	if err != nil {
		return "", fmt.Errorf("failed to look up paid transaction: %w", err)
	}
	if paid != nil && paid.Protocol != "" {
		return paid.Protocol, nil
	}

	protocol, err := s.protocols.FindLatestForEntity(ctx, domain.EntityTypeAthlete, athlete.ID)
	if err != nil {
		return "", fmt.Errorf("failed to look up protocol: %w", err)
	}
	if protocol == nil {
		return "", nil
	}
	return protocol.Number, nil
}

func (s *MembershipService) notify(
	ctx context.Context,
	logger *zap.Logger,
	notificationType domain.NotificationType,
	channel domain.Channel,
	recipient string,
	data templates.Data,
	metadata map[string]any,
) bool {
	if strings.TrimSpace(recipient) == "" {
		logger.Warn("no recipient for notification",
			zap.String("type", notificationType.String()),
			zap.String("channel", channel.String()),
		)
		return false
	}

	message, err := templates.Render(notificationType, channel, data)
	if err != nil {
		logger.Error("failed to render notification", zap.String("type", notificationType.String()), zap.Error(err))
		return false
	}

	_, err = s.notifier.Send(ctx, &domain.Notification{
		Type:      notificationType,
		Channel:   channel,
		Priority:  domain.PriorityHigh,
		Recipient: recipient,
		Subject:   message.Subject,
		Content:   message.Body,
		Metadata:  metadata,
	})
	if err != nil {
		logger.Warn("failed to send notification",
			zap.String("type", notificationType.String()),
			zap.String("channel", channel.String()),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (s *MembershipService) compensate(ctx context.Context, logger *zap.Logger, provider domain.GatewayProvider, externalID string) {
	refund, err := s.payments.RefundPayment(context.WithoutCancel(ctx), provider, externalID)
	if err != nil {
		logger.Error("failed to refund payment after storage failure, manual reconciliation required",
			zap.String("provider", provider.String()),
			zap.String("externalId", externalID),
			zap.Error(err),
		)
		return
	}
	logger.Warn("payment refunded after storage failure",
		zap.String("provider", provider.String()),
		zap.String("externalId", externalID),
		zap.String("status", refund.Status.String()),
	)
}

func (s *MembershipService) channelEnabled(channel domain.Channel) bool {
	if s.channels == nil {
		return true
	}
	return s.channels.Enabled(channel)
}

func (s *MembershipService) returnURL() string {
	if s.cfg.PortalURL == "" {
		return ""
	}
	return strings.TrimRight(s.cfg.PortalURL, "/") + "/filiacao/retorno"
}

func phoneOf(athlete *domain.Athlete) string {
	if !athlete.HasPhone() {
		return ""
	}
	return strings.TrimSpace(*athlete.Phone)
}
