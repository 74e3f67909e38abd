package handler

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/federation-engine/internal/whatsapp"
)

type WhatsAppStatusChecker interface {
	CheckConnectionStatus(ctx context.Context) (whatsapp.ConnectionStatus, error)
}

func RegisterWhatsAppRoutes(router fiber.Router, checker WhatsAppStatusChecker) error {
	if checker == nil {
		return fmt.Errorf("whatsapp client is required")
	}
	router.Group("/v1").Get("/whatsapp/status", WhatsAppStatusHandler(checker))
	return nil
}

// WhatsAppStatusHandler reports the instance state. A failed check is still a
// 200 with status "error" and the failure message.
func WhatsAppStatusHandler(checker WhatsAppStatusChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		status, err := checker.CheckConnectionStatus(requestContext(c))
		body := fiber.Map{"status": string(status)}
		if err != nil {
			body["error"] = err.Error()
		}
		return c.Status(fiber.StatusOK).JSON(body)
	}
}
