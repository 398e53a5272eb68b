package handler

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"durableagent/internal/session"
	"durableagent/internal/step"
)

// StepHandler serves the queue callback endpoint, POST/GET /execute-step.
type StepHandler struct {
	engine *step.Engine
	logger *slog.Logger
}

// NewStepHandler builds a StepHandler.
func NewStepHandler(e *step.Engine, logger *slog.Logger) *StepHandler {
	return &StepHandler{engine: e, logger: logger}
}

// executeStepRequest is the wire shape of the queue callback body (spec.md §6).
type executeStepRequest struct {
	SessionID        string                `json:"sessionId"`
	StepIndex        int                   `json:"stepIndex"`
	Context          session.RuntimeContext `json:"context"`
	ForceComplete    bool                  `json:"forceComplete"`
	HumanInput       string                `json:"humanInput"`
	ApprovedToolCall *session.ToolCall     `json:"approvedToolCall"`
	RejectionReason  string                `json:"rejectionReason"`
	Priority         session.Priority      `json:"priority"`
}

// Execute handles POST /execute-step.
func (h *StepHandler) Execute(c *fiber.Ctx) error {
	var req executeStepRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed request body"})
	}
	if req.SessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "sessionId is required"})
	}

	task := session.QueuedTask{
		SessionID:     req.SessionID,
		StepIndex:     req.StepIndex,
		Context:       req.Context,
		Priority:      req.Priority,
		ForceComplete: req.ForceComplete,
	}
	if req.HumanInput != "" || req.ApprovedToolCall != nil || req.RejectionReason != "" {
		task.Intervention = &session.InterventionPayload{
			ApprovedToolCall: req.ApprovedToolCall,
			RejectionReason:  req.RejectionReason,
			HumanInput:       req.HumanInput,
		}
	}

	summary, err := h.engine.ExecuteStep(c.Context(), task)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return c.Status(fiber.StatusOK).JSON(summary)
}

// Health handles GET /execute-step, a trivial liveness check for the
// queue callback URL (queue providers often probe it before first use).
func (h *StepHandler) Health(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
