package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/federation-engine/internal/domain"
	"github.com/kursadbilgin/federation-engine/internal/gateway"
	"github.com/kursadbilgin/federation-engine/internal/observability"
	"go.uber.org/zap"
)

// WebhookGateway is the part of gateway.Service used for inbound events.
type WebhookGateway interface {
	ValidateWebhook(ctx context.Context, provider domain.GatewayProvider, req gateway.WebhookRequest) (bool, error)
	ParseWebhookData(ctx context.Context, provider domain.GatewayProvider, req gateway.WebhookRequest) (*gateway.WebhookData, error)
	GetPayment(ctx context.Context, provider domain.GatewayProvider, externalID string) (*gateway.PaymentDetails, error)
}

// EventDeduper detects redelivered provider events.
type EventDeduper interface {
	FirstSeen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

type TransactionStatusUpdater interface {
	UpdateStatusByExternalID(ctx context.Context, provider domain.GatewayProvider, externalID string, status domain.PaymentStatus, paidAt *time.Time) (*StatusChange, error)
	UpdateStatusByReference(ctx context.Context, reference string, status domain.PaymentStatus, paidAt *time.Time) (*StatusChange, error)
}

type MembershipActivator interface {
	ActivateMembership(ctx context.Context, userID string) (*ActivationResult, error)
	MembershipCurrent(ctx context.Context, userID string) (bool, error)
}

type WebhookOutcome string

const (
	WebhookProcessed WebhookOutcome = "processed"
	WebhookDuplicate WebhookOutcome = "duplicate"
	WebhookIgnored   WebhookOutcome = "ignored"
	WebhookRejected  WebhookOutcome = "rejected"
	WebhookFailed    WebhookOutcome = "failed"
)

type WebhookResult struct {
	Outcome       WebhookOutcome
	ExternalID    string
	TransactionID string
	Status        domain.PaymentStatus
	Activated     bool
}

// PaymentWebhookService applies gateway notifications to transactions and
// activates memberships once paid.
type PaymentWebhookService struct {
	gateways     WebhookGateway
	transactions TransactionStatusUpdater
	memberships  MembershipActivator
	deduper      EventDeduper
	metrics      *observability.Metrics
	logger       *zap.Logger
}

func NewPaymentWebhookService(
	gateways WebhookGateway,
	transactions TransactionStatusUpdater,
	memberships MembershipActivator,
	deduper EventDeduper,
	logger *zap.Logger,
) (*PaymentWebhookService, error) {
	if gateways == nil {
		return nil, fmt.Errorf("gateway service is required")
	}
	if transactions == nil {
		return nil, fmt.Errorf("transaction service is required")
	}
	if memberships == nil {
		return nil, fmt.Errorf("membership service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PaymentWebhookService{
		gateways:     gateways,
		transactions: transactions,
		memberships:  memberships,
		deduper:      deduper,
		logger:       logger,
	}, nil
}

func (s *PaymentWebhookService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// HandleWebhook validates, parses and applies one provider notification.
// Unknown transactions are acknowledged and ignored. Storage and activation
// failures are returned so the provider redelivers.
func (s *PaymentWebhookService) HandleWebhook(
	ctx context.Context,
	provider domain.GatewayProvider,
	req gateway.WebhookRequest,
) (*WebhookResult, error) {
	result, err := s.handle(ctx, provider, req)
	outcome := WebhookFailed
	if result != nil {
		outcome = result.Outcome
	}
	s.metrics.IncWebhookEvent(provider.String(), string(outcome))
	return result, err
}

func (s *PaymentWebhookService) handle(
	ctx context.Context,
	provider domain.GatewayProvider,
	req gateway.WebhookRequest,
) (*WebhookResult, error) {
	valid, err := s.gateways.ValidateWebhook(ctx, provider, req)
	if err != nil {
		return nil, err
	}
	if !valid {
		return &WebhookResult{Outcome: WebhookRejected}, gateway.ErrInvalidWebhookSignature
	}

	data, err := s.gateways.ParseWebhookData(ctx, provider, req)
	if err != nil {
		return nil, err
	}

	logger := observability.WithContextLogger(s.logger, ctx).With(
		zap.String("provider", provider.String()),
		zap.String("externalId", data.ExternalID),
		zap.String("event", data.EventType),
	)

	var paidAt *time.Time
	if !data.StatusKnown {
		details, err := s.gateways.GetPayment(ctx, provider, data.ExternalID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve payment status: %w", err)
		}
		data.Status = details.Status
		data.RawStatus = details.RawStatus
		if details.Reference != "" {
			data.Reference = details.Reference
		}
		paidAt = details.PaidAt
	}

	result := &WebhookResult{ExternalID: data.ExternalID, Status: data.Status}

	key := data.DedupeKey(provider)
	if s.deduper != nil {
		first, err := s.deduper.FirstSeen(ctx, key)
		if err != nil {
			logger.Warn("webhook dedupe unavailable, processing event", zap.Error(err))
		} else if !first {
			logger.Info("duplicate webhook event ignored")
			result.Outcome = WebhookDuplicate
			return result, nil
		}
	}

	var change *StatusChange
	if data.Reference != "" {
		change, err = s.transactions.UpdateStatusByReference(ctx, data.Reference, data.Status, paidAt)
	} else {
		change, err = s.transactions.UpdateStatusByExternalID(ctx, provider, data.ExternalID, data.Status, paidAt)
	}
	if errors.Is(err, domain.ErrNotFound) {
		logger.Warn("webhook for unknown transaction ignored", zap.String("reference", data.Reference))
		result.Outcome = WebhookIgnored
		return result, nil
	}
	if err != nil {
		s.forget(ctx, logger, key)
		return &WebhookResult{Outcome: WebhookFailed}, fmt.Errorf("failed to update transaction: %w", err)
	}

	transaction := change.Transaction
	result.TransactionID = transaction.ID
	result.Outcome = WebhookProcessed

	logger.Info("payment status applied",
		zap.String("transactionId", transaction.ID),
		zap.String("from", change.Previous.String()),
		zap.String("to", transaction.Status.String()),
		zap.Bool("changed", change.Changed),
	)

	if transaction.Status != domain.PaymentStatusPaid || transaction.EntityType() != domain.EntityTypeMembership {
		return result, nil
	}

	// An unchanged PAID status still activates when an earlier attempt failed.
	if !change.Changed {
		current, err := s.memberships.MembershipCurrent(ctx, transaction.UserID)
		if err != nil {
			s.forget(ctx, logger, key)
			result.Outcome = WebhookFailed
			return result, fmt.Errorf("failed to check membership: %w", err)
		}
		if current {
			return result, nil
		}
	}

	if _, err := s.memberships.ActivateMembership(ctx, transaction.UserID); err != nil {
		logger.Error("membership activation failed after payment",
			zap.String("transactionId", transaction.ID),
			zap.String("userId", transaction.UserID),
			zap.Error(err),
		)
		s.forget(ctx, logger, key)
		result.Outcome = WebhookFailed
		return result, fmt.Errorf("failed to activate membership: %w", err)
	}
	result.Activated = true

	return result, nil
}

func (s *PaymentWebhookService) forget(ctx context.Context, logger *zap.Logger, key string) {
	if s.deduper == nil {
		return
	}
	if err := s.deduper.Forget(context.WithoutCancel(ctx), key); err != nil {
		logger.Warn("failed to forget webhook event", zap.Error(err))
	}
}
