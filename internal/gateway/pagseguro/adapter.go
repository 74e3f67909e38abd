// Package pagseguro implements gateway.Gateway against the PagSeguro Orders
// and Checkout APIs.
package pagseguro

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/federation-engine/internal/domain"
	"github.com/kursadbilgin/federation-engine/internal/gateway"
)

const (
	defaultTimeout = 20 * time.Second
	boletoDueDays  = 3
	qrCodeValidFor = 24 * time.Hour

	orderPrefix    = "ORDE_"
	checkoutPrefix = "CHEC_"
)

var _ gateway.Gateway = (*Adapter)(nil)

type Adapter struct {
	client       *resty.Client
	webhookToken string
	now          func() time.Time
}

func New(baseURL string, credentials domain.GatewayCredentials) (*Adapter, error) {
	client := resty.New()
	client.SetTimeout(defaultTimeout)
	client.SetRetryCount(0)

	return NewWithClient(baseURL, credentials, client)
}

func NewWithClient(baseURL string, credentials domain.GatewayCredentials, client *resty.Client) (*Adapter, error) {
	if strings.TrimSpace(credentials.AccessToken) == "" {
		return nil, gateway.ErrCredentialsNotConfigured
	}
	trimmedURL := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedURL == "" {
		return nil, fmt.Errorf("pagseguro base url is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultTimeout)
	}
	client.SetRetryCount(0)
	client.SetBaseURL(trimmedURL)
	client.SetAuthToken(credentials.AccessToken)
	client.SetHeader("Accept", "application/json")

	return &Adapter{
		client:       client,
		webhookToken: credentials.WebhookSecret,
		now:          time.Now,
	}, nil
}

// NewFactory returns the gateway.Factory registered for PAGSEGURO.
func NewFactory(baseURL string) gateway.Factory {
	return func(cfg domain.GatewayConfig) (gateway.Gateway, error) {
		if cfg.Credentials == nil {
			return nil, gateway.ErrCredentialsNotConfigured
		}
		return New(baseURL, *cfg.Credentials)
	}
}

func (a *Adapter) Provider() domain.GatewayProvider { return domain.GatewayPagSeguro }

// CreatePayment opens an order for PIX and BOLETO, and a hosted checkout for
// card payments since no card data is collected here.
func (a *Adapter) CreatePayment(ctx context.Context, input gateway.CreatePaymentInput) (*gateway.PaymentResult, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	switch input.PaymentMethod {
	case domain.PaymentMethodCreditCard, domain.PaymentMethodDebitCard:
		return a.createCheckout(ctx, input)
	default:
		return a.createOrder(ctx, input)
	}
}

func (a *Adapter) createOrder(ctx context.Context, input gateway.CreatePaymentInput) (*gateway.PaymentResult, error) {
	total := amountFromDecimal(input.Amount, input.Currency)

	request := orderRequest{
		ReferenceID: input.Reference,
		Customer:    customerFrom(input.Customer),
		Items:       itemsFrom(input),
	}
	if input.NotificationURL != "" {
		request.NotificationURLs = []string{input.NotificationURL}
	}

	switch input.PaymentMethod {
	case domain.PaymentMethodPix:
		request.QRCodes = []qrCodeRequest{{
			Amount:         amount{Value: total.Value},
			ExpirationDate: a.now().Add(qrCodeValidFor).Format(time.RFC3339),
		}}
	case domain.PaymentMethodBoleto:
		request.Charges = []chargeRequest{{
			ReferenceID: input.Reference,
			Description: input.Description,
			Amount:      total,
			PaymentMethod: paymentMethodRequest{
				Type: "BOLETO",
				Boleto: &boletoRequest{
					DueDate: a.now().AddDate(0, 0, boletoDueDays).Format(time.DateOnly),
					Holder: holder{
						Name:  input.Customer.Name,
						TaxID: onlyDigits(input.Customer.Document),
						Email: input.Customer.Email,
					},
				},
			},
		}}
	}

	var created order
	if err := a.do(ctx, "create payment", http.MethodPost, "/orders", request, &created); err != nil {
		return nil, err
	}

	result := &gateway.PaymentResult{
		ExternalID: created.ID,
		Status:     domain.PaymentStatusPending,
		RawStatus:  statusWaiting,
	}
	if c := created.firstCharge(); c != nil {
		result.Status = MapStatus(c.Status)
		result.RawStatus = c.Status
		result.PaymentURL = boletoURL(c.Links)
	}
	if len(created.QRCodes) > 0 {
		result.PaymentURL = findLink(created.QRCodes[0].Links, "QRCODE.PNG")
	}
	return result, nil
}

func (a *Adapter) createCheckout(ctx context.Context, input gateway.CreatePaymentInput) (*gateway.PaymentResult, error) {
	request := checkoutRequest{
		ReferenceID:    input.Reference,
		Customer:       customerFrom(input.Customer),
		Items:          itemsFrom(input),
		PaymentMethods: []checkoutMethod{{Type: string(input.PaymentMethod)}},
		RedirectURL:    input.ReturnURL,
	}
	if input.NotificationURL != "" {
		request.NotificationURLs = []string{input.NotificationURL}
		request.PaymentNotificationURLs = []string{input.NotificationURL}
	}

	var created checkout
	if err := a.do(ctx, "create payment", http.MethodPost, "/checkouts", request, &created); err != nil {
		return nil, err
	}

	return &gateway.PaymentResult{
		ExternalID: created.ID,
		Status:     domain.PaymentStatusPending,
		RawStatus:  created.Status,
		PaymentURL: findLink(created.Links, "PAY"),
	}, nil
}

func (a *Adapter) GetPayment(ctx context.Context, externalID string) (*gateway.PaymentDetails, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, fmt.Errorf("%w: external id is required", domain.ErrValidation)
	}

	switch {
	case strings.HasPrefix(externalID, orderPrefix):
		o, err := a.getOrder(ctx, externalID)
		if err != nil {
			return nil, err
		}
		return detailsFromOrder(externalID, o), nil

	case strings.HasPrefix(externalID, checkoutPrefix):
		var c checkout
		if err := a.do(ctx, "get checkout", http.MethodGet, "/checkouts/"+externalID, nil, &c); err != nil {
			return nil, err
		}
		if len(c.Orders) == 0 {
			return &gateway.PaymentDetails{
				ExternalID: externalID,
				Reference:  c.ReferenceID,
				Status:     domain.PaymentStatusPending,
				RawStatus:  statusWaiting,
			}, nil
		}
		o, err := a.getOrder(ctx, c.Orders[0].ID)
		if err != nil {
			return nil, err
		}
		return detailsFromOrder(externalID, o), nil

	default:
		var c charge
		if err := a.do(ctx, "get payment", http.MethodGet, "/charges/"+externalID, nil, &c); err != nil {
			return nil, err
		}
		return detailsFromCharge(externalID, c.ReferenceID, &c), nil
	}
}

func (a *Adapter) getOrder(ctx context.Context, id string) (*order, error) {
	var o order
	if err := a.do(ctx, "get order", http.MethodGet, "/orders/"+id, nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func detailsFromOrder(externalID string, o *order) *gateway.PaymentDetails {
	c := o.firstCharge()
	if c == nil {
		details := &gateway.PaymentDetails{
			ExternalID: externalID,
			Reference:  o.ReferenceID,
			Status:     domain.PaymentStatusPending,
			RawStatus:  statusWaiting,
		}
		var total int64
		for _, it := range o.Items {
			total += it.UnitAmount * int64(it.Quantity)
		}
		details.Amount = amount{Value: total}.decimal()
		return details
	}

	reference := o.ReferenceID
	if reference == "" {
		reference = c.ReferenceID
	}
	return detailsFromCharge(externalID, reference, c)
}

func detailsFromCharge(externalID, reference string, c *charge) *gateway.PaymentDetails {
	details := &gateway.PaymentDetails{
		ExternalID: externalID,
		Reference:  reference,
		Status:     MapStatus(c.Status),
		RawStatus:  c.Status,
		Amount:     c.Amount.decimal(),
	}
	if c.PaidAt != nil && !c.PaidAt.IsZero() {
		paidAt := c.PaidAt.UTC()
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

// RefundPayment cancels the full charge amount. An order or checkout without a
// charge has nothing to refund and is reported as cancelled.
func (a *Adapter) RefundPayment(ctx context.Context, externalID string) (*gateway.PaymentResult, error) {
	target, err := a.resolveCharge(ctx, strings.TrimSpace(externalID))
	if err != nil {
		return nil, err
	}
	if target == nil {
		return &gateway.PaymentResult{
			ExternalID: externalID,
			Status:     domain.PaymentStatusCancelled,
			RawStatus:  "NO_CHARGE",
		}, nil
	}

	body := map[string]amount{"amount": {Value: target.Amount.Value}}

	var cancelled charge
	if err := a.do(ctx, "refund payment", http.MethodPost, "/charges/"+target.ID+"/cancel", body, &cancelled); err != nil {
		return nil, err
	}

	return &gateway.PaymentResult{
		ExternalID: externalID,
		Status:     domain.PaymentStatusRefunded,
		RawStatus:  cancelled.Status,
	}, nil
}

func (a *Adapter) resolveCharge(ctx context.Context, externalID string) (*charge, error) {
	switch {
	case strings.HasPrefix(externalID, orderPrefix):
		o, err := a.getOrder(ctx, externalID)
		if err != nil {
			return nil, err
		}
		return o.firstCharge(), nil

	case strings.HasPrefix(externalID, checkoutPrefix):
		var c checkout
		if err := a.do(ctx, "get checkout", http.MethodGet, "/checkouts/"+externalID, nil, &c); err != nil {
			return nil, err
		}
		if len(c.Orders) == 0 {
			return nil, nil
		}
		o, err := a.getOrder(ctx, c.Orders[0].ID)
		if err != nil {
			return nil, err
		}
		return o.firstCharge(), nil

	default:
		var c charge
		if err := a.do(ctx, "get payment", http.MethodGet, "/charges/"+externalID, nil, &c); err != nil {
			return nil, err
		}
		return &c, nil
	}
}

// ValidateWebhook checks x-authenticity-token against sha256(token + "-" +
// body). Without a configured token every notification is accepted.
func (a *Adapter) ValidateWebhook(req gateway.WebhookRequest) bool {
	if a.webhookToken == "" {
		return true
	}

	received := strings.ToLower(strings.TrimSpace(req.Headers.Get("x-authenticity-token")))
	if received == "" {
		return false
	}

	sum := sha256.Sum256([]byte(a.webhookToken + "-" + string(req.Body)))
	expected := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(received), []byte(expected)) == 1
}

func (a *Adapter) ParseWebhookData(req gateway.WebhookRequest) (*gateway.WebhookData, error) {
	var payload order
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return nil, fmt.Errorf("%w: invalid pagseguro notification: %v", domain.ErrValidation, err)
	}
	if payload.ID == "" {
		return nil, fmt.Errorf("%w: pagseguro notification without order id", domain.ErrValidation)
	}

	data := &gateway.WebhookData{
		EventType:  "order",
		ExternalID: payload.ID,
		Reference:  payload.ReferenceID,
	}
	if c := payload.firstCharge(); c != nil {
		data.EventType = "charge"
		data.Status = MapStatus(c.Status)
		data.RawStatus = c.Status
		data.StatusKnown = true
		if data.Reference == "" {
			data.Reference = c.ReferenceID
		}
	}
	return data, nil
}

// do issues one request and decodes a 2xx JSON body into out.
func (a *Adapter) do(ctx context.Context, operation, method, path string, body, out any) error {
	request := a.client.R().SetContext(ctx)
	if body != nil {
		request.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	response, err := request.Execute(method, path)
	if err != nil {
		return &gateway.GatewayError{
			Provider:  domain.GatewayPagSeguro,
			Operation: operation,
			Message:   "request failed",
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return &gateway.GatewayError{
			Provider:   domain.GatewayPagSeguro,
			Operation:  operation,
			StatusCode: statusCode,
			Message:    errorMessage(response.Body()),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(response.Body(), out); err != nil {
		return &gateway.GatewayError{
			Provider:   domain.GatewayPagSeguro,
			Operation:  operation,
			StatusCode: statusCode,
			Message:    "malformed response",
			Cause:      err,
		}
	}
	return nil
}

func errorMessage(body []byte) string {
	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.ErrorMessages) > 0 {
		descriptions := make([]string, 0, len(parsed.ErrorMessages))
		for _, m := range parsed.ErrorMessages {
			descriptions = append(descriptions, m.Description)
		}
		return strings.Join(descriptions, "; ")
	}
	return strings.TrimSpace(string(body))
}

func customerFrom(c gateway.Customer) customer {
	out := customer{
		Name:  c.Name,
		Email: c.Email,
		TaxID: onlyDigits(c.Document),
	}
	digits := onlyDigits(c.Phone)
	if len(digits) >= 12 {
		digits = strings.TrimPrefix(digits, "55")
	}
	if len(digits) == 10 || len(digits) == 11 {
		out.Phones = []phone{{Country: "55", Area: digits[:2], Number: digits[2:], Type: "MOBILE"}}
	}
	return out
}

func itemsFrom(input gateway.CreatePaymentInput) []item {
	return []item{{
		ReferenceID: input.Reference,
		Name:        input.Description,
		Quantity:    1,
		UnitAmount:  amountFromDecimal(input.Amount, "").Value,
	}}
}

func boletoURL(links []link) string {
	for _, l := range links {
		if l.Media == "application/pdf" {
			return l.Href
		}
	}
	return ""
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

