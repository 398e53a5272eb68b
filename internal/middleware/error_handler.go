package middleware

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"durableagent/internal/domain"
	"durableagent/internal/session"
	"durableagent/internal/step"
)

// ErrorHandler is Fiber's global fallback: it only sees errors a route
// handler returned without already writing its own JSON response (routing
// misses, panics the recover middleware rewraps, an error a handler forgot
// to map). Route handlers classify their own domain errors via
// internal/handler.handleError; this applies the same sentinel taxonomy
// (spec.md §7) one level up so a miss there still degrades to the right
// status instead of an undifferentiated 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var verr *session.ValidationError
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &verr):
		code, message = fiber.StatusBadRequest, verr.Error()
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, step.ErrSessionNotFound):
		code, message = fiber.StatusNotFound, "session not found"
	case errors.Is(err, domain.ErrConflict):
		code, message = fiber.StatusConflict, "session is not waiting for human input"
	case errors.Is(err, domain.ErrStoreUnavailable):
		code, message = fiber.StatusServiceUnavailable, "backend temporarily unavailable"
	case errors.As(err, &fiberErr):
		code, message = fiberErr.Code, fiberErr.Message
	default:
		slog.Error("unhandled request error", "error", err, "path", c.Path())
	}

	return c.Status(code).JSON(fiber.Map{
		"error": message,
		"code":  code,
	})
}
