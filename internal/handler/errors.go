package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/federation-engine/internal/domain"
	"github.com/kursadbilgin/federation-engine/internal/gateway"
	"github.com/kursadbilgin/federation-engine/internal/whatsapp"
)

func toHTTPError(err error) error {
	var gatewayErr *gateway.GatewayError
	var whatsappErr *whatsapp.APIError

	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, gateway.ErrUnsupportedProvider):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, gateway.ErrInvalidWebhookSignature):
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, gateway.ErrNoActiveGateway), errors.Is(err, gateway.ErrCredentialsNotConfigured):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	case errors.As(err, &gatewayErr), errors.As(err, &whatsappErr):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	default:
		return err
	}
}
