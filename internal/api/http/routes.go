package httpapi

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/mkravets/weather-sync/internal/syncer"
	"github.com/mkravets/weather-sync/internal/weather"
)

var validate = validator.New()

// RegisterRoutes wires the presentation-facing HTTP handlers into the Fiber
// app. Handlers forward intents into the orchestrator and return the state it
// currently holds; domain failures surface through the state's lastError, not
// through HTTP status codes.
func RegisterRoutes(app *fiber.App, orch *syncer.Orchestrator) {
	v1 := app.Group("/api/v1")

	v1.Get("/state", func(c *fiber.Ctx) error {
		return c.JSON(orch.State())
	})

	v1.Post("/search", func(c *fiber.Ctx) error {
		var req searchRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if req.Unit != "" {
			unit, _ := weather.ParseUnit(req.Unit)
			orch.ChangeUnit(unit)
		}
		// Empty place is the orchestrator's call, not a 400: it answers with
		// lastError = "empty input".
		orch.Search(c.Context(), req.Place)
		return c.JSON(orch.State())
	})

	v1.Post("/unit", func(c *fiber.Ctx) error {
		var req unitRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		unit, _ := weather.ParseUnit(req.Unit)
		orch.ChangeUnit(unit)
		return c.JSON(orch.State())
	})

	v1.Post("/favorites", func(c *fiber.Ctx) error {
		var req noteRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		orch.AddFavorite(c.Context(), req.Note)
		return c.JSON(orch.State())
	})

	v1.Patch("/favorites/:id", func(c *fiber.Ctx) error {
		var req noteRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		orch.UpdateFavoriteNote(c.Context(), c.Params("id"), req.Note)
		return c.JSON(orch.State())
	})

	v1.Delete("/favorites/:id", func(c *fiber.Ctx) error {
		orch.DeleteFavorite(c.Context(), c.Params("id"))
		return c.JSON(orch.State())
	})

	v1.Post("/favorites/refresh", func(c *fiber.Ctx) error {
		orch.RefreshFavoriteWeather(c.Context())
		return c.JSON(orch.State())
	})
}

type searchRequest struct {
	Place string `json:"place"`
	Unit  string `json:"unit" validate:"omitempty,oneof=metric imperial"`
}

type unitRequest struct {
	Unit string `json:"unit" validate:"required,oneof=metric imperial"`
}

type noteRequest struct {
	Note string `json:"note"`
}
