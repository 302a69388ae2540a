package http

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/geofield/internal/pkg/logging"
)

// RequestIDLogMiddleware stores a logger tagged with the fiber request ID in
// the request's user context. Usecases reached from the handler log through it.
func RequestIDLogMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rid, _ := c.Locals("requestid").(string); rid != "" {
			l := slog.Default().With("request_id", rid)
			c.SetUserContext(logging.WithContext(c.UserContext(), l))
		}
		return c.Next()
	}
}

// LoggerFromCtx returns the request logger, or the default logger.
func LoggerFromCtx(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, nil)
}
