package handler

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"durableagent/internal/coordinator"
)

// InterventionHandler serves POST/GET /human-intervention.
type InterventionHandler struct {
	coordinator *coordinator.Coordinator
	logger      *slog.Logger
}

// NewInterventionHandler builds an InterventionHandler.
func NewInterventionHandler(c *coordinator.Coordinator, logger *slog.Logger) *InterventionHandler {
	return &InterventionHandler{coordinator: c, logger: logger}
}

// Create handles POST /human-intervention.
func (h *InterventionHandler) Create(c *fiber.Ctx) error {
	var req coordinator.InterventionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed request body"})
	}
	if req.SessionID == "" || !req.Action.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "sessionId and a valid action are required"})
	}

	if err := h.coordinator.ProcessIntervention(c.Context(), req); err != nil {
		return handleError(c, h.logger, err)
	}
	return c.SendStatus(fiber.StatusOK)
}

// List handles GET /human-intervention?sessionId=...|userId=...
func (h *InterventionHandler) List(c *fiber.Ctx) error {
	sessionID := c.Query("sessionId")
	userID := c.Query("userId")

	pending, err := h.coordinator.ListPending(c.Context(), sessionID, userID)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"pending": pending})
}
