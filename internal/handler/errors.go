// Package handler implements the HTTP/SSE transport surface (§6): one file
// per resource, mirroring meridian's handler layout (chat.go, document.go,
// folder.go, ...), wired to the Fiber app the same way
// cmd/server/main.go wires the teacher's handlers.
package handler

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"durableagent/internal/domain"
	"durableagent/internal/session"
	"durableagent/internal/step"
)

// mapErrorToHTTP maps the error-kind taxonomy of spec.md §7 to an HTTP
// status and a safe message, the same classification
// internal/middleware.ErrorHandler applies for *fiber.Error but extended
// to the domain sentinels this service introduces.
func mapErrorToHTTP(err error) (int, string) {
	var verr *session.ValidationError
	switch {
	case errors.As(err, &verr):
		return fiber.StatusBadRequest, verr.Error()
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, step.ErrSessionNotFound):
		return fiber.StatusNotFound, "session not found"
	case errors.Is(err, domain.ErrConflict):
		return fiber.StatusConflict, "session is not waiting for human input"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return fiber.StatusServiceUnavailable, "backend temporarily unavailable"
	default:
		return fiber.StatusInternalServerError, "internal error"
	}
}

// handleError writes the mapped status/message as JSON and logs anything
// that isn't a well-known client-facing classification.
func handleError(c *fiber.Ctx, logger *slog.Logger, err error) error {
	code, msg := mapErrorToHTTP(err)
	if code == fiber.StatusInternalServerError {
		logger.Error("unhandled request error", "error", err, "path", c.Path())
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}
