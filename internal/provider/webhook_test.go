package provider

import (
	"context"
	"crypto/hmac"
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
)

func webhookNotification(url string) domain.Notification {
	return domain.Notification{
		ID:        "notif-1",
		Type:      domain.TypePaymentConfirmed,
		Channel:   domain.ChannelWebhook,
		Priority:  domain.PriorityNormal,
		Recipient: url,
		Subject:   "Pagamento confirmado",
		Content:   "hello",
		Metadata:  map[string]any{"protocol": "FED-2026-000001"},
	}
}

func TestWebhookProviderSendSuccess(t *testing.T) {
	t.Parallel()

	var (
		gotBody      webhookPayload
		gotSignature string
		rawBody      []byte
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}

		rawBody, _ = io.ReadAll(r.Body)
		if err := json.Unmarshal(rawBody, &gotBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		gotSignature = r.Header.Get(SignatureHeader)

		w.Header().Set("X-Request-ID", "provider-msg-1")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	p, err := NewWebhookProvider("shared-secret")
	if err != nil {
		t.Fatalf("NewWebhookProvider() error = %v", err)
	}

	resp, err := p.Send(context.Background(), webhookNotification(server.URL))
	if err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("StatusCode = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}
	if resp.MessageID != "provider-msg-1" {
		t.Fatalf("MessageID = %q, want %q", resp.MessageID, "provider-msg-1")
	}
	if gotBody.ID != "notif-1" || gotBody.Type != "PAYMENT_CONFIRMED" || gotBody.Content != "hello" {
		t.Fatalf("payload = %+v", gotBody)
	}
	if gotBody.Metadata["protocol"] != "FED-2026-000001" {
		t.Fatalf("payload metadata = %v", gotBody.Metadata)
	}
	if want := Sign("shared-secret", rawBody); gotSignature != want {
		t.Fatalf("signature = %q, want %q", gotSignature, want)
	}
}

func TestWebhookProviderWithoutSecretIsUnsigned(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get(SignatureHeader); got != "" {
			t.Errorf("signature header = %q, want empty", got)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p, err := NewWebhookProvider("")
	if err != nil {
		t.Fatalf("NewWebhookProvider() error = %v", err)
	}

	if _, err := p.Send(context.Background(), webhookNotification(server.URL)); err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}
}

func TestSign(t *testing.T) {
	t.Parallel()

	body := []byte(`{"a":1}`)
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write(body)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	if got := Sign("secret", body); got != want {
		t.Fatalf("Sign() = %q, want %q", got, want)
	}
	if Sign("other", body) == want {
		t.Fatal("Sign() ignores the secret")
	}
}

func TestWebhookProviderSendStatusClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		statusCode    int
		wantTransient bool
	}{
		{name: "too many requests is transient", statusCode: http.StatusTooManyRequests, wantTransient: true},
		{name: "bad request is permanent", statusCode: http.StatusBadRequest, wantTransient: false},
		{name: "internal server error is transient", statusCode: http.StatusInternalServerError, wantTransient: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
				_, _ = w.Write([]byte("provider failed"))
			}))
			defer server.Close()

			p, err := NewWebhookProvider("secret")
			if err != nil {
				t.Fatalf("NewWebhookProvider() error = %v", err)
			}

			_, err = p.Send(context.Background(), webhookNotification(server.URL))
			if err == nil {
				t.Fatal("expected error")
			}

			if got := IsTransient(err); got != tc.wantTransient {
				t.Fatalf("IsTransient() = %v, want %v", got, tc.wantTransient)
			}

			var providerErr *ProviderError
			if !errors.As(err, &providerErr) {
				t.Fatalf("expected ProviderError, got %T", err)
			}
			if providerErr.StatusCode != tc.statusCode {
				t.Fatalf("ProviderError.StatusCode = %d, want %d", providerErr.StatusCode, tc.statusCode)
			}
		})
	}
}

func TestWebhookProviderSendTimeoutIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := resty.New()
	client.SetTimeout(30 * time.Millisecond)

	p, err := NewWebhookProviderWithClient("secret", client)
	if err != nil {
		t.Fatalf("NewWebhookProviderWithClient() error = %v", err)
	}

	_, err = p.Send(context.Background(), webhookNotification(server.URL))
	if err == nil {
		t.Fatal("expected timeout error")
	}

	if !IsTransient(err) {
		t.Fatalf("IsTransient() = false, want true (err=%v)", err)
	}
}

func TestWebhookProviderRejectsInvalidNotification(t *testing.T) {
	t.Parallel()

	p, err := NewWebhookProvider("secret")
	if err != nil {
		t.Fatalf("NewWebhookProvider() error = %v", err)
	}

	_, err = p.Send(context.Background(), webhookNotification("ftp://example.com"))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Send() error = %v, want ErrValidation", err)
	}
	if IsTransient(err) {
		t.Fatal("validation failure must be permanent")
	}
}
