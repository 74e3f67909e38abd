package handler

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/federation-engine/internal/observability"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const readinessTimeout = 2 * time.Second

// ReadinessCheck reports whether one dependency is reachable.
type ReadinessCheck func(ctx context.Context) error

func PostgresCheck(sqlDB *sql.DB) ReadinessCheck {
	return sqlDB.PingContext
}

func RedisCheck(rdb redis.UniversalClient) ReadinessCheck {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}

// RegisterHealthRoutes mounts liveness, readiness over checks and, when
// metrics is set, the Prometheus scrape endpoint.
func RegisterHealthRoutes(app fiber.Router, metrics *observability.Metrics, checks map[string]ReadinessCheck) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(checks))
	if metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	}
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

// ReadyzHandler runs every check concurrently under one timeout. Any failing
// check makes the service not ready.
func ReadyzHandler(checks map[string]ReadinessCheck) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
		defer cancel()

		var (
			mu      sync.Mutex
			results = make(fiber.Map, len(checks))
			ready   = true
		)

		var g errgroup.Group
		for name, check := range checks {
			name, check := name, check
			g.Go(func() error {
				status := "ok"
				if err := check(ctx); err != nil {
					status = "down"
				}

				mu.Lock()
				results[name] = status
				if status != "ok" {
					ready = false
				}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		status := "ready"
		statusCode := fiber.StatusOK
		if !ready {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": results,
		})
	}
}
