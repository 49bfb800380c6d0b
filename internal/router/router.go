package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-review-api/internal/config"
	"github.com/noah-isme/gema-review-api/internal/handler"
	"github.com/noah-isme/gema-review-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ReviewHandler *handler.ReviewHandler
	HealthChecks  map[string]handler.DependencyCheck
	JWTMiddleware fiber.Handler
	// DisableMetrics skips the Prometheus scrape endpoint.
	DisableMetrics bool
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthChecks))

	if !deps.DisableMetrics {
		app.Get("/metrics", observability.MetricsHandler())
	}

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.ReviewHandler != nil {
		reviews := app.Group("/api/v2/reviews", jwtMiddleware)
		deps.ReviewHandler.Register(reviews)
	}
}
