package pagseguro

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/federation-engine/internal/domain"
	"github.com/kursadbilgin/federation-engine/internal/gateway"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	adapter, err := NewWithClient(server.URL, domain.GatewayCredentials{AccessToken: "ps-token"}, resty.New())
	require.NoError(t, err)
	adapter.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	return adapter
}

func validInput(method domain.PaymentMethod) gateway.CreatePaymentInput {
	return gateway.CreatePaymentInput{
		Amount:        decimal.RequireFromString("150.50"),
		Description:   "Filiação 2026",
		Reference:     "FED-2026-000007",
		PaymentMethod: method,
		Customer: gateway.Customer{
			Name:     "Bruno Lima",
			Email:    "bruno@example.com",
			Document: "123.456.789-09",
			Phone:    "(62) 99424-2329",
		},
		NotificationURL: "https://api.example.com/v1/payments/webhooks/pagseguro",
		ReturnURL:       "https://federacao.example.com/filiacao",
	}
}

func TestMapStatus(t *testing.T) {
	t.Parallel()

	tests := map[string]domain.PaymentStatus{
		"WAITING":     domain.PaymentStatusPending,
		"IN_ANALYSIS": domain.PaymentStatusProcessing,
		"AUTHORIZED":  domain.PaymentStatusProcessing,
		"PAID":        domain.PaymentStatusPaid,
		"DECLINED":    domain.PaymentStatusFailed,
		"CANCELED":    domain.PaymentStatusCancelled,
		"":            domain.PaymentStatusPending,
		"CHARGEBACK":  domain.PaymentStatusPending,
	}

	for raw, want := range tests {
		assert.Equal(t, want, MapStatus(raw), raw)
	}
}

func TestNewWithClientValidation(t *testing.T) {
	t.Parallel()

	_, err := NewWithClient("https://api", domain.GatewayCredentials{}, resty.New())
	assert.ErrorIs(t, err, gateway.ErrCredentialsNotConfigured)

	_, err = NewWithClient(" ", domain.GatewayCredentials{AccessToken: "x"}, resty.New())
	assert.Error(t, err)

	_, err = NewWithClient("https://api", domain.GatewayCredentials{AccessToken: "x"}, nil)
	assert.Error(t, err)
}

func TestCreatePaymentPix(t *testing.T) {
	t.Parallel()

	var captured orderRequest
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)
		assert.Equal(t, "Bearer ps-token", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"ORDE_1","reference_id":"FED-2026-000007","qr_codes":[{"id":"QRCO_1","text":"000201...","links":[{"rel":"QRCODE.PNG","href":"https://pix.example/qr.png"}]}]}`))
	})

	result, err := adapter.CreatePayment(context.Background(), validInput(domain.PaymentMethodPix))
	require.NoError(t, err)

	assert.Equal(t, "ORDE_1", result.ExternalID)
	assert.Equal(t, domain.PaymentStatusPending, result.Status)
	assert.Equal(t, "https://pix.example/qr.png", result.PaymentURL)

	assert.Equal(t, "FED-2026-000007", captured.ReferenceID)
	assert.Equal(t, "12345678909", captured.Customer.TaxID)
	require.Len(t, captured.Customer.Phones, 1)
	assert.Equal(t, "62", captured.Customer.Phones[0].Area)
	require.Len(t, captured.QRCodes, 1)
	assert.Equal(t, int64(15050), captured.QRCodes[0].Amount.Value)
	assert.Empty(t, captured.Charges)
	assert.Equal(t, []string{"https://api.example.com/v1/payments/webhooks/pagseguro"}, captured.NotificationURLs)
}

func TestCreatePaymentBoleto(t *testing.T) {
	t.Parallel()

	var captured orderRequest
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"ORDE_2","charges":[{"id":"CHAR_2","status":"WAITING","links":[{"rel":"SELF","href":"https://boleto.example/2.pdf","media":"application/pdf"}]}]}`))
	})

	result, err := adapter.CreatePayment(context.Background(), validInput(domain.PaymentMethodBoleto))
	require.NoError(t, err)

	assert.Equal(t, "ORDE_2", result.ExternalID)
	assert.Equal(t, "WAITING", result.RawStatus)
	assert.Equal(t, "https://boleto.example/2.pdf", result.PaymentURL)

	require.Len(t, captured.Charges, 1)
	assert.Equal(t, "BOLETO", captured.Charges[0].PaymentMethod.Type)
	require.NotNil(t, captured.Charges[0].PaymentMethod.Boleto)
	assert.Equal(t, "2026-03-13", captured.Charges[0].PaymentMethod.Boleto.DueDate)
}

func TestCreatePaymentCardUsesCheckout(t *testing.T) {
	t.Parallel()

	var captured checkoutRequest
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/checkouts", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"CHEC_3","status":"ACTIVE","links":[{"rel":"SELF","href":"https://api/checkouts/CHEC_3"},{"rel":"PAY","href":"https://pagseguro.example/pay/CHEC_3"}]}`))
	})

	result, err := adapter.CreatePayment(context.Background(), validInput(domain.PaymentMethodCreditCard))
	require.NoError(t, err)

	assert.Equal(t, "CHEC_3", result.ExternalID)
	assert.Equal(t, "https://pagseguro.example/pay/CHEC_3", result.PaymentURL)
	assert.Equal(t, []checkoutMethod{{Type: "CREDIT_CARD"}}, captured.PaymentMethods)
	assert.Equal(t, "https://federacao.example.com/filiacao", captured.RedirectURL)
}

func TestCreatePaymentProviderError(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error_messages":[{"code":"40002","description":"invalid tax_id","parameter_name":"customer.tax_id"}]}`))
	})

	_, err := adapter.CreatePayment(context.Background(), validInput(domain.PaymentMethodPix))
	require.Error(t, err)

	var gwErr *gateway.GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusBadRequest, gwErr.StatusCode)
	assert.Equal(t, "invalid tax_id", gwErr.Message)
	assert.Equal(t, "pagseguro create payment failed: status=400: invalid tax_id", gwErr.Error())
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "joins error descriptions",
			body: `{"error_messages":[{"code":"40002","description":"invalid tax_id"},{"code":"40001","description":"amount required"}]}`,
			want: "invalid tax_id; amount required",
		},
		{name: "empty error list falls back to body", body: `{"error_messages":[]}`, want: `{"error_messages":[]}`},
		{name: "plain text body", body: "  upstream unavailable\n", want: "upstream unavailable"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, errorMessage([]byte(tc.body)))
		})
	}
}

func TestCreatePaymentMalformedResponse(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	})

	_, err := adapter.CreatePayment(context.Background(), validInput(domain.PaymentMethodPix))

	var gwErr *gateway.GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, "malformed response", gwErr.Message)
}

func TestCreatePaymentValidatesFirst(t *testing.T) {
	t.Parallel()

	called := false
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	input := validInput(domain.PaymentMethodPix)
	input.Customer.Document = ""

	_, err := adapter.CreatePayment(context.Background(), input)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.False(t, called)
}

func TestGetPayment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		externalID string
		routes     map[string]string
		wantStatus domain.PaymentStatus
		wantRef    string
		wantPaid   bool
	}{
		{
			name:       "order without charge is pending",
			externalID: "ORDE_1",
			routes: map[string]string{
				"/orders/ORDE_1": `{"id":"ORDE_1","reference_id":"FED-2026-000007","items":[{"name":"x","quantity":1,"unit_amount":15050}]}`,
			},
			wantStatus: domain.PaymentStatusPending,
			wantRef:    "FED-2026-000007",
		},
		{
			name:       "paid order",
			externalID: "ORDE_1",
			routes: map[string]string{
				"/orders/ORDE_1": `{"id":"ORDE_1","reference_id":"FED-2026-000007","charges":[{"id":"CHAR_1","status":"PAID","amount":{"value":15050},"paid_at":"2026-03-10T13:00:00-03:00"}]}`,
			},
			wantStatus: domain.PaymentStatusPaid,
			wantRef:    "FED-2026-000007",
			wantPaid:   true,
		},
		{
			name:       "checkout resolves its order",
			externalID: "CHEC_3",
			routes: map[string]string{
				"/checkouts/CHEC_3": `{"id":"CHEC_3","reference_id":"FED-2026-000008","orders":[{"id":"ORDE_9"}]}`,
				"/orders/ORDE_9":    `{"id":"ORDE_9","reference_id":"FED-2026-000008","charges":[{"id":"CHAR_9","status":"DECLINED","amount":{"value":100}}]}`,
			},
			wantStatus: domain.PaymentStatusFailed,
			wantRef:    "FED-2026-000008",
		},
		{
			name:       "checkout without order",
			externalID: "CHEC_4",
			routes: map[string]string{
				"/checkouts/CHEC_4": `{"id":"CHEC_4","reference_id":"FED-2026-000009"}`,
			},
			wantStatus: domain.PaymentStatusPending,
			wantRef:    "FED-2026-000009",
		},
		{
			name:       "charge id",
			externalID: "CHAR_5",
			routes: map[string]string{
				"/charges/CHAR_5": `{"id":"CHAR_5","reference_id":"FED-2026-000010","status":"IN_ANALYSIS","amount":{"value":15050}}`,
			},
			wantStatus: domain.PaymentStatusProcessing,
			wantRef:    "FED-2026-000010",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				body, ok := tt.routes[r.URL.Path]
				if !ok {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(body))
			})

			details, err := adapter.GetPayment(context.Background(), tt.externalID)
			require.NoError(t, err)

			assert.Equal(t, tt.externalID, details.ExternalID)
			assert.Equal(t, tt.wantStatus, details.Status)
			assert.Equal(t, tt.wantRef, details.Reference)
			assert.Equal(t, tt.wantPaid, details.PaidAt != nil)
		})
	}
}

func TestGetPaymentNotFound(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := adapter.GetPaymentStatus(context.Background(), "CHAR_missing")

	var gwErr *gateway.GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusNotFound, gwErr.StatusCode)
	assert.Equal(t, "get payment", gwErr.Operation)
}

func TestRefundPayment(t *testing.T) {
	t.Parallel()

	var cancelBody map[string]amount
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/orders/ORDE_1":
			_, _ = w.Write([]byte(`{"id":"ORDE_1","charges":[{"id":"CHAR_1","status":"PAID","amount":{"value":15050}}]}`))
		case "/charges/CHAR_1/cancel":
			assert.Equal(t, http.MethodPost, r.Method)
			body, _ := io.ReadAll(r.Body)
			assert.NoError(t, json.Unmarshal(body, &cancelBody))
			_, _ = w.Write([]byte(`{"id":"CHAR_1","status":"CANCELED"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	result, err := adapter.RefundPayment(context.Background(), "ORDE_1")
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusRefunded, result.Status)
	assert.Equal(t, "CANCELED", result.RawStatus)
	assert.Equal(t, int64(15050), cancelBody["amount"].Value)
}

func TestRefundPaymentWithoutCharge(t *testing.T) {
	t.Parallel()

	cancelCalled := false
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders/ORDE_1" {
			cancelCalled = true
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"ORDE_1"}`))
	})

	result, err := adapter.RefundPayment(context.Background(), "ORDE_1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCancelled, result.Status)
	assert.False(t, cancelCalled)
}

func TestValidateWebhook(t *testing.T) {
	t.Parallel()

	body := []byte(`{"id":"ORDE_1"}`)
	sum := sha256.Sum256([]byte("wh-token-" + string(body)))
	signature := hex.EncodeToString(sum[:])

	withToken, err := NewWithClient("https://api", domain.GatewayCredentials{AccessToken: "x", WebhookSecret: "wh-token"}, resty.New())
	require.NoError(t, err)

	assert.True(t, withToken.ValidateWebhook(gateway.WebhookRequest{
		Headers: http.Header{"X-Authenticity-Token": {signature}},
		Body:    body,
	}))
	assert.False(t, withToken.ValidateWebhook(gateway.WebhookRequest{
		Headers: http.Header{"X-Authenticity-Token": {signature}},
		Body:    []byte(`{"id":"ORDE_2"}`),
	}))
	assert.False(t, withToken.ValidateWebhook(gateway.WebhookRequest{Headers: http.Header{}, Body: body}))

	withoutToken, err := NewWithClient("https://api", domain.GatewayCredentials{AccessToken: "x"}, resty.New())
	require.NoError(t, err)
	assert.True(t, withoutToken.ValidateWebhook(gateway.WebhookRequest{Headers: http.Header{}, Body: body}))
}

func TestParseWebhookData(t *testing.T) {
	t.Parallel()

	adapter, err := NewWithClient("https://api", domain.GatewayCredentials{AccessToken: "x"}, resty.New())
	require.NoError(t, err)

	data, err := adapter.ParseWebhookData(gateway.WebhookRequest{
		Body: []byte(`{"id":"ORDE_1","reference_id":"FED-2026-000007","charges":[{"id":"CHAR_1","status":"PAID"}]}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "ORDE_1", data.ExternalID)
	assert.Equal(t, "FED-2026-000007", data.Reference)
	assert.Equal(t, domain.PaymentStatusPaid, data.Status)
	assert.True(t, data.StatusKnown)

	data, err = adapter.ParseWebhookData(gateway.WebhookRequest{Body: []byte(`{"id":"ORDE_1"}`)})
	require.NoError(t, err)
	assert.False(t, data.StatusKnown)

	_, err = adapter.ParseWebhookData(gateway.WebhookRequest{Body: []byte(`{}`)})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
