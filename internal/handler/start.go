package handler

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"durableagent/internal/coordinator"
)

// StartHandler serves POST /start.
type StartHandler struct {
	coordinator *coordinator.Coordinator
	logger      *slog.Logger
}

// NewStartHandler builds a StartHandler.
func NewStartHandler(c *coordinator.Coordinator, logger *slog.Logger) *StartHandler {
	return &StartHandler{coordinator: c, logger: logger}
}

// Start handles POST /start.
func (h *StartHandler) Start(c *fiber.Ctx) error {
	var req coordinator.StartRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed request body"})
	}
	if err := h.coordinator.StartSession(c.Context(), req); err != nil {
		return handleError(c, h.logger, err)
	}
	return c.SendStatus(fiber.StatusOK)
}
