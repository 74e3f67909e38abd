package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/federation-engine/internal/domain"
	"github.com/kursadbilgin/federation-engine/internal/gateway"
	"github.com/kursadbilgin/federation-engine/internal/repository"
	"go.uber.org/zap"
)

// TransactionService owns payment transaction rows and their status.
type TransactionService struct {
	transactions repository.TransactionRepository
	logger       *zap.Logger
	now          func() time.Time
}

// StatusChange reports the outcome of a status update.
type StatusChange struct {
	Transaction *domain.PaymentTransaction
	Previous    domain.PaymentStatus
	Changed     bool
}

func NewTransactionService(transactions repository.TransactionRepository, logger *zap.Logger) (*TransactionService, error) {
	if transactions == nil {
		return nil, fmt.Errorf("transaction repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TransactionService{
		transactions: transactions,
		logger:       logger,
		now:          time.Now,
	}, nil
}

func (s *TransactionService) Create(ctx context.Context, t *domain.PaymentTransaction) error {
	if t == nil {
		return fmt.Errorf("%w: transaction is required", domain.ErrValidation)
	}

	t.ID = strings.TrimSpace(t.ID)
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Currency == "" {
		t.Currency = gateway.DefaultCurrency
	}
	if t.Status == "" {
		t.Status = domain.PaymentStatusPending
	}
	if err := t.Validate(); err != nil {
		return err
	}

	return s.transactions.Create(ctx, t)
}

func (s *TransactionService) GetByID(ctx context.Context, id string) (*domain.PaymentTransaction, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: transaction id is required", domain.ErrValidation)
	}
	return s.transactions.GetByID(ctx, strings.TrimSpace(id))
}

func (s *TransactionService) UpdateStatusByExternalID(
	ctx context.Context,
	provider domain.GatewayProvider,
	externalID string,
	status domain.PaymentStatus,
	paidAt *time.Time,
) (*StatusChange, error) {
	current, err := s.transactions.GetByExternalID(ctx, provider, strings.TrimSpace(externalID))
	if err != nil {
		return nil, err
	}
	return s.applyStatus(ctx, current, status, paidAt)
}

// UpdateStatusByReference looks the transaction up by its protocol number,
// which is the reference sent to the gateway.
func (s *TransactionService) UpdateStatusByReference(
	ctx context.Context,
	reference string,
	status domain.PaymentStatus,
	paidAt *time.Time,
) (*StatusChange, error) {
	current, err := s.transactions.GetByProtocol(ctx, strings.TrimSpace(reference))
	if err != nil {
		return nil, err
	}
	return s.applyStatus(ctx, current, status, paidAt)
}

// FindLatestPaidForAthlete returns nil without error when the athlete never paid.
func (s *TransactionService) FindLatestPaidForAthlete(ctx context.Context, athleteID string) (*domain.PaymentTransaction, error) {
	t, err := s.transactions.FindLatestPaidByAthlete(ctx, athleteID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return t, err
}

func (s *TransactionService) applyStatus(
	ctx context.Context,
	current *domain.PaymentTransaction,
	status domain.PaymentStatus,
	paidAt *time.Time,
) (*StatusChange, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: invalid payment status %q", domain.ErrValidation, status)
	}

	change := &StatusChange{Transaction: current, Previous: current.Status}
	if !transitionAllowed(current.Status, status) {
		if current.Status != status {
			s.logger.Warn("ignoring payment status regression",
				zap.String("transactionId", current.ID),
				zap.String("from", current.Status.String()),
				zap.String("to", status.String()),
			)
		}
		return change, nil
	}

	if status == domain.PaymentStatusPaid {
		if paidAt == nil {
			at := s.now().UTC()
			paidAt = &at
		}
	} else {
		paidAt = current.PaidAt
	}

	if err := s.transactions.UpdateStatus(ctx, current.ID, status, paidAt); err != nil {
		return nil, fmt.Errorf("failed to update transaction status: %w", err)
	}

	updated := *current
	updated.Status = status
	updated.PaidAt = paidAt
	change.Transaction = &updated
	change.Changed = true
	return change, nil
}

// transitionAllowed keeps final states final, except that a paid transaction
// may still be refunded.
func transitionAllowed(from, to domain.PaymentStatus) bool {
	if from == to {
		return false
	}
	if !from.IsFinal() {
		return true
	}
	return from == domain.PaymentStatusPaid && to == domain.PaymentStatusRefunded
}
