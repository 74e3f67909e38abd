// Package mercadopago implements gateway.Gateway with the official Mercado
// Pago SDK. Payments are created as Checkout Pro preferences.
package mercadopago

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kursadbilgin/federation-engine/internal/domain"
	"github.com/kursadbilgin/federation-engine/internal/gateway"
	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"
	"github.com/mercadopago/sdk-go/pkg/refund"
	"github.com/shopspring/decimal"
)

var _ gateway.Gateway = (*Adapter)(nil)

// paymentTypes are Mercado Pago payment type ids; every type other than the
// requested one is excluded from the checkout.
var paymentTypes = map[domain.PaymentMethod]string{
	domain.PaymentMethodCreditCard: "credit_card",
	domain.PaymentMethodDebitCard:  "debit_card",
	domain.PaymentMethodPix:        "bank_transfer",
	domain.PaymentMethodBoleto:     "ticket",
}

type Adapter struct {
	preferences   preference.Client
	payments      payment.Client
	refunds       refund.Client
	webhookSecret string
	sandbox       bool
}

// New builds an adapter for one account. opts are passed to the SDK config,
// e.g. config.WithHTTPClient in tests.
func New(credentials domain.GatewayCredentials, sandbox bool, opts ...config.Option) (*Adapter, error) {
	if strings.TrimSpace(credentials.AccessToken) == "" {
		return nil, gateway.ErrCredentialsNotConfigured
	}

	cfg, err := config.New(credentials.AccessToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create mercado pago config: %w", err)
	}

	return &Adapter{
		preferences:   preference.NewClient(cfg),
		payments:      payment.NewClient(cfg),
		refunds:       refund.NewClient(cfg),
		webhookSecret: credentials.WebhookSecret,
		sandbox:       sandbox,
	}, nil
}

// NewFactory returns the gateway.Factory registered for MERCADO_PAGO.
func NewFactory(opts ...config.Option) gateway.Factory {
	return func(cfg domain.GatewayConfig) (gateway.Gateway, error) {
		if cfg.Credentials == nil {
			return nil, gateway.ErrCredentialsNotConfigured
		}
		return New(*cfg.Credentials, cfg.Sandbox, opts...)
	}
}

func (a *Adapter) Provider() domain.GatewayProvider { return domain.GatewayMercadoPago }

func (a *Adapter) CreatePayment(ctx context.Context, input gateway.CreatePaymentInput) (*gateway.PaymentResult, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	request := preference.Request{
		Items: []preference.ItemRequest{
			{
				Title:      input.Description,
				Quantity:   1,
				UnitPrice:  input.Amount.InexactFloat64(),
				CurrencyID: input.Currency,
			},
		},
		Payer: &preference.PayerRequest{
			Name:  input.Customer.Name,
			Email: input.Customer.Email,
		},
		ExternalReference: input.Reference,
		NotificationURL:   input.NotificationURL,
		PaymentMethods:    excludedTypesFor(input.PaymentMethod),
	}
	if input.ReturnURL != "" {
		request.AutoReturn = "approved"
		request.BackURLs = &preference.BackURLsRequest{
			Success: input.ReturnURL + "?status=success",
			Failure: input.ReturnURL + "?status=failure",
			Pending: input.ReturnURL + "?status=pending",
		}
	}

	result, err := a.preferences.Create(ctx, request)
	if err != nil {
		return nil, a.wrap("create payment", err)
	}

	paymentURL := result.InitPoint
	if a.sandbox && result.SandboxInitPoint != "" {
		paymentURL = result.SandboxInitPoint
	}

	return &gateway.PaymentResult{
		ExternalID: result.ID,
		Status:     domain.PaymentStatusPending,
		RawStatus:  "pending",
		PaymentURL: paymentURL,
	}, nil
}

func excludedTypesFor(method domain.PaymentMethod) *preference.PaymentMethodsRequest {
	keep := paymentTypes[method]

	excluded := make([]preference.ExcludedPaymentTypeRequest, 0, len(paymentTypes))
	for _, id := range paymentTypes {
		if id != keep {
			excluded = append(excluded, preference.ExcludedPaymentTypeRequest{ID: id})
		}
	}
	sort.Slice(excluded, func(i, j int) bool { return excluded[i].ID < excluded[j].ID })

	return &preference.PaymentMethodsRequest{ExcludedPaymentTypes: excluded}
}

// GetPayment accepts a payment id, or a preference id for which the most
// recent payment is looked up by external reference.
func (a *Adapter) GetPayment(ctx context.Context, externalID string) (*gateway.PaymentDetails, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, fmt.Errorf("%w: external id is required", domain.ErrValidation)
	}

	if id, err := strconv.Atoi(externalID); err == nil {
		result, err := a.payments.Get(ctx, id)
		if err != nil {
			return nil, a.wrap("get payment", err)
		}
		return detailsFromPayment(result), nil
	}

	latest, reference, err := a.latestForPreference(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return &gateway.PaymentDetails{
			ExternalID: externalID,
			Reference:  reference,
			Status:     domain.PaymentStatusPending,
		}, nil
	}

	details := detailsFromPayment(latest)
	details.ExternalID = externalID
	return details, nil
}

// latestForPreference returns nil when the checkout has not been paid yet.
func (a *Adapter) latestForPreference(ctx context.Context, preferenceID string) (*payment.Response, string, error) {
	pref, err := a.preferences.Get(ctx, preferenceID)
	if err != nil {
		return nil, "", a.wrap("get preference", err)
	}

	page, err := a.payments.Search(ctx, payment.SearchRequest{
		Filters: map[string]string{
			"external_reference": pref.ExternalReference,
			"sort":               "date_created",
			"criteria":           "desc",
		},
		Limit: 1,
	})
	if err != nil {
		return nil, "", a.wrap("search payments", err)
	}
	if len(page.Results) == 0 {
		return nil, pref.ExternalReference, nil
	}
	return &page.Results[0], pref.ExternalReference, nil
}

func detailsFromPayment(p *payment.Response) *gateway.PaymentDetails {
	details := &gateway.PaymentDetails{
		ExternalID: strconv.Itoa(p.ID),
		Reference:  p.ExternalReference,
		Status:     MapStatus(p.Status),
		RawStatus:  p.Status,
		Amount:     decimal.NewFromFloat(p.TransactionAmount),
	}
	if !p.DateApproved.IsZero() {
		paidAt := p.DateApproved.UTC()
		details.PaidAt = &paidAt
	}
	return details
}

func (a *Adapter) GetPaymentStatus(ctx context.Context, externalID string) (domain.PaymentStatus, error) {
	details, err := a.GetPayment(ctx, externalID)
	if err != nil {
		return "", err
	}
	return details.Status, nil
}

// RefundPayment issues a full refund. A preference that was never paid has
// nothing to refund and is reported as cancelled.
func (a *Adapter) RefundPayment(ctx context.Context, externalID string) (*gateway.PaymentResult, error) {
	externalID = strings.TrimSpace(externalID)

	paymentID, err := strconv.Atoi(externalID)
	if err != nil {
		latest, _, lookupErr := a.latestForPreference(ctx, externalID)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if latest == nil {
			return &gateway.PaymentResult{
				ExternalID: externalID,
				Status:     domain.PaymentStatusCancelled,
				RawStatus:  "no_payment",
			}, nil
		}
		paymentID = latest.ID
	}

	result, err := a.refunds.Create(ctx, paymentID)
	if err != nil {
		return nil, a.wrap("refund payment", err)
	}

	return &gateway.PaymentResult{
		ExternalID: strconv.Itoa(paymentID),
		Status:     domain.PaymentStatusRefunded,
		RawStatus:  result.Status,
	}, nil
}

type notification struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

func (n notification) dataID() string {
	raw := strings.TrimSpace(string(n.Data.ID))
	if unquoted, err := strconv.Unquote(raw); err == nil {
		return unquoted
	}
	return raw
}

func (a *Adapter) ValidateWebhook(req gateway.WebhookRequest) bool {
	dataID := req.Query.Get("data.id")
	if dataID == "" {
		var body notification
		if err := json.Unmarshal(req.Body, &body); err == nil {
			dataID = body.dataID()
		}
	}
	return validSignature(req.Headers.Get("x-signature"), req.Headers.Get("x-request-id"), dataID, a.webhookSecret)
}

// ParseWebhookData extracts the payment id. Mercado Pago notifications do not
// carry the status, so StatusKnown is always false.
func (a *Adapter) ParseWebhookData(req gateway.WebhookRequest) (*gateway.WebhookData, error) {
	var body notification
	if err := json.Unmarshal(req.Body, &body); err != nil {
		return nil, fmt.Errorf("%w: invalid mercado pago notification: %v", domain.ErrValidation, err)
	}

	id := body.dataID()
	if id == "" {
		id = req.Query.Get("data.id")
	}
	if id == "" {
		return nil, fmt.Errorf("%w: mercado pago notification without data.id", domain.ErrValidation)
	}

	eventType := body.Type
	if body.Action != "" {
		eventType = body.Action
	}

	return &gateway.WebhookData{
		EventType:  eventType,
		ExternalID: id,
	}, nil
}

func (a *Adapter) wrap(operation string, err error) error {
	return &gateway.GatewayError{
		Provider:  domain.GatewayMercadoPago,
		Operation: operation,
		Cause:     err,
	}
}
