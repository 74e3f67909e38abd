package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newErrorApp(t *testing.T, err error) (*fiber.App, *observer.ObservedLogs) {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.New(core))})
	app.Get("/boom", func(c *fiber.Ctx) error { return err })
	return app, logs
}

func decodeError(t *testing.T, body io.Reader) string {
	t.Helper()

	var payload map[string]string
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return payload["error"]
}

func TestErrorHandler_FiberError(t *testing.T) {
	t.Parallel()

	app, logs := newErrorApp(t, fiber.NewError(fiber.StatusConflict, "already exists"))

	req := httptest.NewRequest(fiber.MethodGet, "/boom", nil)
	req.Header.Set(fiber.HeaderXRequestID, "req-42")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusConflict)
	}
	if got := decodeError(t, resp.Body); got != "already exists" {
		t.Fatalf("error = %q, want %q", got, "already exists")
	}

	entries := logs.FilterMessage("request rejected").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 warn entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("level = %s, want warn", entries[0].Level)
	}
	if got := entries[0].ContextMap()["correlationId"]; got != "req-42" {
		t.Fatalf("correlationId = %v, want req-42", got)
	}
}

func TestErrorHandler_WrappedFiberError(t *testing.T) {
	t.Parallel()

	wrapped := errors.Join(fiber.NewError(fiber.StatusNotFound, "notification not found"))
	app, _ := newErrorApp(t, wrapped)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/boom", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusNotFound)
	}
}

func TestErrorHandler_UnmappedErrorHidesCause(t *testing.T) {
	t.Parallel()

	app, logs := newErrorApp(t, errors.New("pq: connection refused"))

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/boom", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusInternalServerError)
	}
	if got := decodeError(t, resp.Body); got != "internal server error" {
		t.Fatalf("error = %q, want generic message", got)
	}

	entries := logs.FilterMessage("request error").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 error entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.ErrorLevel {
		t.Fatalf("level = %s, want error", entries[0].Level)
	}
	if got := entries[0].ContextMap()["error"]; got != "pq: connection refused" {
		t.Fatalf("logged error = %v", got)
	}
}

func TestErrorHandler_NilLogger(t *testing.T) {
	t.Parallel()

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(nil)})
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("boom") })

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/boom", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusInternalServerError)
	}
}
