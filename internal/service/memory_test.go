package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kursadbilgin/federation-engine/internal/domain"
	"github.com/kursadbilgin/federation-engine/internal/gateway"
	"github.com/kursadbilgin/federation-engine/internal/repository"
	"github.com/kursadbilgin/federation-engine/internal/whatsapp"
)

type memoryAthleteRepo struct {
	mu       sync.Mutex
	athletes map[string]domain.Athlete
	locks    int
}

func newMemoryAthleteRepo(athletes ...domain.Athlete) *memoryAthleteRepo {
	repo := &memoryAthleteRepo{athletes: make(map[string]domain.Athlete)}
	for _, a := range athletes {
		repo.athletes[a.UserID] = a
	}
	return repo
}

func (r *memoryAthleteRepo) Create(ctx context.Context, a *domain.Athlete) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.athletes[a.UserID] = *a
	return nil
}

func (r *memoryAthleteRepo) GetByUserID(ctx context.Context, userID string) (*domain.Athlete, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.athletes[userID]
	if !ok {
		return nil, domain.ErrAthleteNotFound
	}
	return &a, nil
}

func (r *memoryAthleteRepo) LockByUserID(ctx context.Context, userID string) (*domain.Athlete, error) {
	r.mu.Lock()
	r.locks++
	r.mu.Unlock()
	return r.GetByUserID(ctx, userID)
}

func (r *memoryAthleteRepo) UpdateMembership(ctx context.Context, a *domain.Athlete) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.athletes[a.UserID]; !ok {
		return domain.ErrAthleteNotFound
	}
	r.athletes[a.UserID] = *a
	return nil
}

var _ repository.AthleteRepository = (*memoryAthleteRepo)(nil)

type memoryTransactionRepo struct {
	mu           sync.Mutex
	transactions []domain.PaymentTransaction
	createErr    error
	updateErr    error
}

func (r *memoryTransactionRepo) Create(ctx context.Context, t *domain.PaymentTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	t.CreatedAt = time.Unix(1_700_000_000+int64(len(r.transactions)), 0).UTC()
	r.transactions = append(r.transactions, *t)
	return nil
}

func (r *memoryTransactionRepo) find(match func(t domain.PaymentTransaction) bool) (*domain.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.transactions) - 1; i >= 0; i-- {
		if match(r.transactions[i]) {
			t := r.transactions[i]
			return &t, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memoryTransactionRepo) GetByID(ctx context.Context, id string) (*domain.PaymentTransaction, error) {
	return r.find(func(t domain.PaymentTransaction) bool { return t.ID == id })
}

func (r *memoryTransactionRepo) GetByExternalID(ctx context.Context, provider domain.GatewayProvider, externalID string) (*domain.PaymentTransaction, error) {
	return r.find(func(t domain.PaymentTransaction) bool {
		return t.Provider == provider && t.ExternalID != nil && *t.ExternalID == externalID
	})
}

func (r *memoryTransactionRepo) GetByProtocol(ctx context.Context, protocol string) (*domain.PaymentTransaction, error) {
	return r.find(func(t domain.PaymentTransaction) bool { return t.Protocol == protocol })
}

func (r *memoryTransactionRepo) UpdateStatus(ctx context.Context, id string, status domain.PaymentStatus, paidAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	for i := range r.transactions {
		if r.transactions[i].ID == id {
			r.transactions[i].Status = status
			r.transactions[i].PaidAt = paidAt
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *memoryTransactionRepo) FindLatestPaidByAthlete(ctx context.Context, athleteID string) (*domain.PaymentTransaction, error) {
	return r.find(func(t domain.PaymentTransaction) bool {
		return t.AthleteID == athleteID && t.Status == domain.PaymentStatusPaid
	})
}

var _ repository.TransactionRepository = (*memoryTransactionRepo)(nil)

type memoryProtocolRepo struct {
	mu        sync.Mutex
	protocols []domain.Protocol
	createErr error
}

func (r *memoryProtocolRepo) Create(ctx context.Context, p *domain.Protocol) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	for _, existing := range r.protocols {
		if existing.Number == p.Number {
			return domain.ErrConflict
		}
	}
	r.protocols = append(r.protocols, *p)
	return nil
}

func (r *memoryProtocolRepo) GetByNumber(ctx context.Context, number string) (*domain.Protocol, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.protocols {
		if p.Number == number {
			return &p, nil
		}
	}
	return nil, domain.ErrProtocolNotFound
}

func (r *memoryProtocolRepo) FindLatestForEntity(ctx context.Context, entityType, entityID string) (*domain.Protocol, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	matches := make([]domain.Protocol, 0)
	for _, p := range r.protocols {
		if p.EntityType == entityType && p.EntityID == entityID {
			matches = append(matches, p)
		}
	}
	if len(matches) == 0 {
		return nil, domain.ErrProtocolNotFound
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })
	return &matches[0], nil
}

var _ repository.ProtocolRepository = (*memoryProtocolRepo)(nil)

type counterSequence struct {
	mu   sync.Mutex
	next map[int]int64
	err  error
}

func (s *counterSequence) Next(ctx context.Context, year int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	if s.next == nil {
		s.next = make(map[int]int64)
	}
	s.next[year]++
	return s.next[year], nil
}

type fakePaymentGateway struct {
	createPaymentFn func(ctx context.Context, provider *domain.GatewayProvider, input gateway.CreatePaymentInput) (*gateway.PaymentResult, domain.GatewayProvider, error)
	refunded        []string
	refundErr       error
}

func (f *fakePaymentGateway) CreatePayment(ctx context.Context, provider *domain.GatewayProvider, input gateway.CreatePaymentInput) (*gateway.PaymentResult, domain.GatewayProvider, error) {
	if f.createPaymentFn != nil {
		return f.createPaymentFn(ctx, provider, input)
	}
	return &gateway.PaymentResult{
		ExternalID: "pref-1",
		Status:     domain.PaymentStatusPending,
		PaymentURL: "https://pay.example.com/pref-1",
	}, domain.GatewayMercadoPago, nil
}

func (f *fakePaymentGateway) RefundPayment(ctx context.Context, provider domain.GatewayProvider, externalID string) (*gateway.PaymentResult, error) {
	f.refunded = append(f.refunded, externalID)
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	return &gateway.PaymentResult{ExternalID: externalID, Status: domain.PaymentStatusRefunded}, nil
}

// recordingNotifier captures sent notifications.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
	err  map[domain.Channel]error
}

func (r *recordingNotifier) Send(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.err[n.Channel]; err != nil {
		return nil, err
	}
	r.sent = append(r.sent, *n)
	return n, nil
}

func (r *recordingNotifier) byChannel(channel domain.Channel) []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Notification, 0)
	for _, n := range r.sent {
		if n.Channel == channel {
			out = append(out, n)
		}
	}
	return out
}

type fakeConnectionChecker struct {
	status whatsapp.ConnectionStatus
	err    error
	calls  int
}

func (f *fakeConnectionChecker) CheckConnectionStatus(ctx context.Context) (whatsapp.ConnectionStatus, error) {
	f.calls++
	return f.status, f.err
}

type staticChannels map[domain.Channel]bool

func (c staticChannels) Enabled(channel domain.Channel) bool {
	return c[channel]
}
