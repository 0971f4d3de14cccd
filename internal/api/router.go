package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/teodevgroup/teo-sub005/internal/apperr"
	"github.com/teodevgroup/teo-sub005/internal/instrument"
)

type ErrorResponse struct {
	Error *apperr.Error `json:"error"`
}

// NewApp builds the Fiber application serving h.
func NewApp(h *Handler, log *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          ErrorHandler(log),
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(instrument.Middleware(instrument.NewLogInstrumenter(log)))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	RegisterRoutes(app, h)
	return app
}

func RegisterRoutes(app *fiber.App, h *Handler) {
	api := app.Group("/api")

	api.Post("/:model", h.Create)
	api.Post("/:model/update", h.Update)
	api.Post("/:model/upsert", h.Upsert)
	api.Post("/:model/delete", h.Delete)
	api.Post("/:model/findUnique", h.FindUnique)
	api.Post("/:model/findMany", h.FindMany)
}

// ErrorHandler renders engine errors with their kind's status and anything
// else as an internal error.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if appErr, ok := apperr.As(err); ok {
			return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(ErrorResponse{Error: &apperr.Error{
				Code:    "HTTP_ERROR",
				Status:  fiberErr.Code,
				Message: fiberErr.Message,
			}})
		}

		log.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("trace_id", instrument.GetTraceID(c.UserContext())),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: &apperr.Error{
			Code:    "INTERNAL_ERROR",
			Status:  fiber.StatusInternalServerError,
			Message: "Internal server error",
		}})
	}
}
