package handler

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"durableagent/internal/coordinator"
	"durableagent/internal/session"
	"durableagent/internal/step"
)

// Register mounts every route of spec.md §6 onto app.
func Register(app *fiber.App, coord *coordinator.Coordinator, engine *step.Engine, stream session.EventStream, store session.StateStore, logger *slog.Logger) {
	sessionH := NewSessionHandler(coord, logger)
	stepH := NewStepHandler(engine, logger)
	interventionH := NewInterventionHandler(coord, logger)
	streamH := NewStreamHandler(stream, store, logger)
	startH := NewStartHandler(coord, logger)

	app.Post("/session", sessionH.Create)
	app.Get("/session", sessionH.GetStatus)
	app.Delete("/session", sessionH.Delete)

	app.Post("/start", startH.Start)

	app.Post("/execute-step", stepH.Execute)
	app.Get("/execute-step", stepH.Health)

	app.Post("/human-intervention", interventionH.Create)
	app.Get("/human-intervention", interventionH.List)

	app.Get("/stream", streamH.Stream)
}
