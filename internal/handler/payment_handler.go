package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/federation-engine/internal/domain"
	"github.com/kursadbilgin/federation-engine/internal/gateway"
	"github.com/kursadbilgin/federation-engine/internal/service"
)

type PaymentStatusReader interface {
	GetPaymentStatus(ctx context.Context, provider *domain.GatewayProvider, externalID string) (domain.PaymentStatus, error)
}

type WebhookProcessor interface {
	HandleWebhook(ctx context.Context, provider domain.GatewayProvider, req gateway.WebhookRequest) (*service.WebhookResult, error)
}

type PaymentHandler struct {
	payments PaymentStatusReader
	webhooks WebhookProcessor
}

func NewPaymentHandler(payments PaymentStatusReader, webhooks WebhookProcessor) (*PaymentHandler, error) {
	if payments == nil {
		return nil, fmt.Errorf("payment gateway service is required")
	}
	if webhooks == nil {
		return nil, fmt.Errorf("webhook processor is required")
	}
	return &PaymentHandler{payments: payments, webhooks: webhooks}, nil
}

func RegisterPaymentRoutes(router fiber.Router, payments PaymentStatusReader, webhooks WebhookProcessor) error {
	h, err := NewPaymentHandler(payments, webhooks)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/payments/:externalId/status", h.GetPaymentStatus)
	v1.Post("/payments/webhooks/:provider", h.ReceiveWebhook)

	return nil
}

func (h *PaymentHandler) GetPaymentStatus(c *fiber.Ctx) error {
	externalID := strings.TrimSpace(c.Params("externalId"))
	if externalID == "" {
		return toHTTPError(fmt.Errorf("%w: external id is required", domain.ErrValidation))
	}

	var provider *domain.GatewayProvider
	if raw := strings.TrimSpace(c.Query("provider")); raw != "" {
		p, err := domain.ParseGatewayProviderFromString(raw)
		if err != nil {
			return toHTTPError(err)
		}
		provider = &p
	}

	status, err := h.payments.GetPaymentStatus(requestContext(c), provider, externalID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"externalId": externalID,
		"status":     status.String(),
	})
}

// ReceiveWebhook answers 2xx for every event that needs no redelivery and an
// error status otherwise, so the provider retries.
func (h *PaymentHandler) ReceiveWebhook(c *fiber.Ctx) error {
	provider, err := domain.ParseGatewayProviderFromString(c.Params("provider"))
	if err != nil {
		return toHTTPError(err)
	}

	req, err := webhookRequestFrom(c)
	if err != nil {
		return toHTTPError(err)
	}

	result, err := h.webhooks.HandleWebhook(requestContext(c), provider, req)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"outcome":   string(result.Outcome),
		"activated": result.Activated,
	})
}

func webhookRequestFrom(c *fiber.Ctx) (gateway.WebhookRequest, error) {
	headers := make(http.Header)
	for name, values := range c.GetReqHeaders() {
		for _, value := range values {
			headers.Add(name, value)
		}
	}

	query, err := url.ParseQuery(string(c.Request().URI().QueryString()))
	if err != nil {
		return gateway.WebhookRequest{}, fmt.Errorf("%w: invalid query string", domain.ErrValidation)
	}

	return gateway.WebhookRequest{
		Headers: headers,
		Query:   query,
		Body:    append([]byte(nil), c.Body()...),
	}, nil
}
