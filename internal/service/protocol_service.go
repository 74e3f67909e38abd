package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/federation-engine/internal/domain"
	"github.com/kursadbilgin/federation-engine/internal/repository"
)

// SequenceSource returns the next value of a per-year counter.
type SequenceSource interface {
	Next(ctx context.Context, year int) (int64, error)
}

// ProtocolService issues protocol numbers and stores protocol rows.
type ProtocolService struct {
	sequence  SequenceSource
	protocols repository.ProtocolRepository
	prefix    string
	now       func() time.Time
}

func NewProtocolService(sequence SequenceSource, protocols repository.ProtocolRepository, prefix string) (*ProtocolService, error) {
	if sequence == nil {
		return nil, fmt.Errorf("protocol sequence is required")
	}
	if protocols == nil {
		return nil, fmt.Errorf("protocol repository is required")
	}
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		return nil, fmt.Errorf("protocol prefix is required")
	}

	return &ProtocolService{
		sequence:  sequence,
		protocols: protocols,
		prefix:    prefix,
		now:       time.Now,
	}, nil
}

// NextNumber reserves a number such as FED-2026-000042. Reserved numbers
// that are never stored leave gaps.
func (s *ProtocolService) NextNumber(ctx context.Context) (string, error) {
	year := s.now().Year()
	seq, err := s.sequence.Next(ctx, year)
	if err != nil {
		return "", err
	}
	return domain.FormatProtocolNumber(s.prefix, year, seq), nil
}

// Issue stores a protocol for a reserved number.
func (s *ProtocolService) Issue(
	ctx context.Context,
	number string,
	transactionID *string,
	entityType string,
	entityID string,
) (*domain.Protocol, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, fmt.Errorf("%w: protocol number is required", domain.ErrValidation)
	}
	if strings.TrimSpace(entityType) == "" || strings.TrimSpace(entityID) == "" {
		return nil, fmt.Errorf("%w: protocol entity is required", domain.ErrValidation)
	}

	protocol := &domain.Protocol{
		ID:            uuid.NewString(),
		Number:        number,
		TransactionID: transactionID,
		EntityType:    entityType,
		EntityID:      entityID,
		Kind:          domain.ProtocolKindPayment,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.protocols.Create(ctx, protocol); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("%w: protocol %s already issued", domain.ErrConflict, number)
		}
		return nil, err
	}
	return protocol, nil
}

func (s *ProtocolService) GetByNumber(ctx context.Context, number string) (*domain.Protocol, error) {
	return s.protocols.GetByNumber(ctx, strings.TrimSpace(number))
}

// FindLatestForEntity returns nil without error when the entity has no protocol.
func (s *ProtocolService) FindLatestForEntity(ctx context.Context, entityType, entityID string) (*domain.Protocol, error) {
	protocol, err := s.protocols.FindLatestForEntity(ctx, entityType, entityID)
	if errors.Is(err, domain.ErrProtocolNotFound) {
		return nil, nil
	}
	return protocol, err
}
