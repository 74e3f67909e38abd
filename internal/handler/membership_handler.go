package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/federation-engine/internal/domain"
	"github.com/kursadbilgin/federation-engine/internal/service"
	"github.com/shopspring/decimal"
)

type MembershipService interface {
	CreateMembership(ctx context.Context, input service.CreateMembershipInput) (*service.CreateMembershipResult, error)
	ActivateMembership(ctx context.Context, userID string) (*service.ActivationResult, error)
}

type MembershipHandler struct {
	service MembershipService
}

func NewMembershipHandler(service MembershipService) (*MembershipHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("membership service is required")
	}
	return &MembershipHandler{service: service}, nil
}

func RegisterMembershipRoutes(router fiber.Router, service MembershipService) error {
	h, err := NewMembershipHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/memberships", h.CreateMembership)
	v1.Post("/memberships/:userId/activate", h.ActivateMembership)

	return nil
}

type createMembershipRequest struct {
	UserID        string           `json:"userId"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	PaymentMethod string           `json:"paymentMethod"`
	Provider      string           `json:"provider,omitempty"`
}

type createMembershipResponse struct {
	TransactionID  string `json:"transactionId"`
	ProtocolNumber string `json:"protocolNumber"`
	Provider       string `json:"provider"`
	ExternalID     string `json:"externalId"`
	Status         string `json:"status"`
	PaymentURL     string `json:"paymentUrl,omitempty"`
	EmailQueued    bool   `json:"emailQueued"`
}

type activationResponse struct {
	UserID           string `json:"userId"`
	Active           bool   `json:"active"`
	RegistrationYear *int   `json:"registrationYear,omitempty"`
	IsRenewal        bool   `json:"isRenewal"`
	ProtocolNumber   string `json:"protocolNumber,omitempty"`
	EmailQueued      bool   `json:"emailQueued"`
	WhatsAppStatus   string `json:"whatsappStatus,omitempty"`
	WhatsAppQueued   bool   `json:"whatsappQueued"`
}

func (h *MembershipHandler) CreateMembership(c *fiber.Ctx) error {
	var req createMembershipRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	method, err := domain.ParsePaymentMethodFromString(req.PaymentMethod)
	if err != nil {
		return toHTTPError(err)
	}

	input := service.CreateMembershipInput{
		UserID:        strings.TrimSpace(req.UserID),
		Amount:        req.Amount,
		PaymentMethod: method,
	}
	if strings.TrimSpace(req.Provider) != "" {
		provider, err := domain.ParseGatewayProviderFromString(req.Provider)
		if err != nil {
			return toHTTPError(err)
		}
		input.Provider = &provider
	}

	result, err := h.service.CreateMembership(requestContext(c), input)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(createMembershipResponse{
		TransactionID:  result.TransactionID,
		ProtocolNumber: result.ProtocolNumber,
		Provider:       result.Provider.String(),
		ExternalID:     result.Payment.ExternalID,
		Status:         result.Payment.Status.String(),
		PaymentURL:     result.Payment.PaymentURL,
		EmailQueued:    result.EmailQueued,
	})
}

func (h *MembershipHandler) ActivateMembership(c *fiber.Ctx) error {
	result, err := h.service.ActivateMembership(requestContext(c), strings.TrimSpace(c.Params("userId")))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(activationResponse{
		UserID:           result.Athlete.UserID,
		Active:           result.Athlete.Active,
		RegistrationYear: result.Athlete.RegistrationYear,
		IsRenewal:        result.IsRenewal,
		ProtocolNumber:   result.ProtocolNumber,
		EmailQueued:      result.EmailQueued,
		WhatsAppStatus:   string(result.WhatsAppStatus),
		WhatsAppQueued:   result.WhatsAppQueued,
	})
}
