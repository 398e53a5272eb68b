package handler

import (
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"durableagent/internal/coordinator"
)

// SessionHandler serves POST/GET/DELETE /session.
type SessionHandler struct {
	coordinator *coordinator.Coordinator
	logger      *slog.Logger
}

// NewSessionHandler builds a SessionHandler.
func NewSessionHandler(c *coordinator.Coordinator, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{coordinator: c, logger: logger}
}

// Create handles POST /session.
func (h *SessionHandler) Create(c *fiber.Ctx) error {
	var req coordinator.CreateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed request body"})
	}

	res, err := h.coordinator.CreateSession(c.Context(), req)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return c.Status(fiber.StatusOK).JSON(res)
}

// GetStatus handles GET /session?sessionId=...&includeHistory=...&historyLimit=...
func (h *SessionHandler) GetStatus(c *fiber.Ctx) error {
	sessionID := c.Query("sessionId")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "sessionId is required"})
	}
	includeHistory := c.Query("includeHistory") == "true"
	historyLimit, _ := strconv.Atoi(c.Query("historyLimit"))

	res, err := h.coordinator.GetStatus(c.Context(), sessionID, includeHistory, historyLimit)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return c.Status(fiber.StatusOK).JSON(res)
}

// Delete handles DELETE /session?sessionId=...
func (h *SessionHandler) Delete(c *fiber.Ctx) error {
	sessionID := c.Query("sessionId")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "sessionId is required"})
	}
	if err := h.coordinator.DeleteSession(c.Context(), sessionID); err != nil {
		return handleError(c, h.logger, err)
	}
	return c.SendStatus(fiber.StatusOK)
}
