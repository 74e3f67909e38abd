package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the provider-independent state of a payment.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusPaid       PaymentStatus = "PAID"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusCancelled  PaymentStatus = "CANCELLED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
	PaymentStatusExpired    PaymentStatus = "EXPIRED"
)

func (s PaymentStatus) String() string { return string(s) }

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusProcessing, PaymentStatusPaid, PaymentStatusFailed,
		PaymentStatusCancelled, PaymentStatusRefunded, PaymentStatusExpired:
		return true
	}
	return false
}

// IsFinal reports whether no further provider transition is expected.
func (s PaymentStatus) IsFinal() bool {
	switch s {
	case PaymentStatusPaid, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusRefunded, PaymentStatusExpired:
		return true
	}
	return false
}

func ParsePaymentStatusFromString(s string) (PaymentStatus, error) {
	st := PaymentStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid payment status %q", ErrValidation, s)
	}
	return st, nil
}

type PaymentMethod string

const (
	PaymentMethodCreditCard PaymentMethod = "CREDIT_CARD"
	PaymentMethodDebitCard  PaymentMethod = "DEBIT_CARD"
	PaymentMethodPix        PaymentMethod = "PIX"
	PaymentMethodBoleto     PaymentMethod = "BOLETO"
)

func (m PaymentMethod) String() string { return string(m) }

func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCreditCard, PaymentMethodDebitCard, PaymentMethodPix, PaymentMethodBoleto:
		return true
	}
	return false
}

func ParsePaymentMethodFromString(s string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToUpper(strings.TrimSpace(s)))
	if !m.IsValid() {
		return "", fmt.Errorf("%w: invalid payment method %q", ErrValidation, s)
	}
	return m, nil
}

// GatewayProvider identifies a payment provider.
type GatewayProvider string

const (
	GatewayMercadoPago GatewayProvider = "MERCADO_PAGO"
	GatewayPagSeguro   GatewayProvider = "PAGSEGURO"
)

func (p GatewayProvider) String() string { return string(p) }

func (p GatewayProvider) IsValid() bool {
	switch p {
	case GatewayMercadoPago, GatewayPagSeguro:
		return true
	}
	return false
}

// ParseGatewayProviderFromString accepts the enum value as well as the
// lower-case slugs used in webhook URLs ("mercadopago", "pagseguro").
func ParseGatewayProviderFromString(s string) (GatewayProvider, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	switch strings.NewReplacer("-", "", "_", "").Replace(normalized) {
	case "MERCADOPAGO":
		return GatewayMercadoPago, nil
	case "PAGSEGURO":
		return GatewayPagSeguro, nil
	}
	return "", fmt.Errorf("%w: invalid gateway provider %q", ErrValidation, s)
}

// GatewayCredentials holds the secrets of one provider account.
type GatewayCredentials struct {
	AccessToken   string `json:"access_token"`
	PublicKey     string `json:"public_key,omitempty"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// GatewayConfig is an operator-managed provider configuration. At most one
// configuration is expected to be active at a time.
type GatewayConfig struct {
	ID          string
	Provider    GatewayProvider
	Name        string
	Active      bool
	Sandbox     bool
	Credentials *GatewayCredentials
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CacheKey changes whenever the configuration is edited.
func (c *GatewayConfig) CacheKey() string {
	return fmt.Sprintf("%s:%d", c.ID, c.UpdatedAt.UnixNano())
}

// Entity linkage stored in a transaction's metadata.
const (
	EntityTypeMembership = "MEMBERSHIP"
	EntityTypeAthlete    = "ATHLETE"
)

// PaymentTransaction records one payment attempt made through a gateway.
type PaymentTransaction struct {
	ID            string
	AthleteID     string
	UserID        string
	Provider      GatewayProvider
	Amount        decimal.Decimal
	Currency      string
	Status        PaymentStatus
	PaymentMethod PaymentMethod
	ExternalID    *string
	Protocol      string
	Description   string
	PaymentURL    *string
	Metadata      map[string]any
	PaidAt        *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// EntityType returns the linkage type recorded in metadata, if any.
func (t *PaymentTransaction) EntityType() string {
	if t.Metadata == nil {
		return ""
	}
	v, _ := t.Metadata["type"].(string)
	return v
}

func (t *PaymentTransaction) Validate() error {
	if t.AthleteID == "" {
		return fmt.Errorf("%w: athlete id is required", ErrValidation)
	}
	if !t.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than zero", ErrValidation)
	}
	if !t.Provider.IsValid() {
		return fmt.Errorf("%w: invalid provider %q", ErrValidation, t.Provider)
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("%w: invalid payment status %q", ErrValidation, t.Status)
	}
	if !t.PaymentMethod.IsValid() {
		return fmt.Errorf("%w: invalid payment method %q", ErrValidation, t.PaymentMethod)
	}
	return nil
}
