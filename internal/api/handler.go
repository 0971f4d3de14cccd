package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/teodevgroup/teo-sub005/internal/apperr"
	"github.com/teodevgroup/teo-sub005/internal/engine"
)

// Handler exposes the engine's top-level operations over JSON.
type Handler struct {
	engine *engine.Engine
}

func NewHandler(e *engine.Engine) *Handler {
	return &Handler{engine: e}
}

type writeBody struct {
	Where  map[string]any `json:"where"`
	Data   map[string]any `json:"data"`
	Create map[string]any `json:"create"`
	Update map[string]any `json:"update"`
}

type readBody struct {
	Where   map[string]any `json:"where"`
	Include []string       `json:"include"`
}

// Create handles POST /api/:model
func (h *Handler) Create(c *fiber.Ctx) error {
	model, err := h.resolveModel(c)
	if err != nil {
		return err
	}
	var body map[string]any
	if err := decode(c, &body); err != nil {
		return err
	}
	record, err := h.engine.Create(c.UserContext(), model, body)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": record})
}

// Update handles POST /api/:model/update
func (h *Handler) Update(c *fiber.Ctx) error {
	model, err := h.resolveModel(c)
	if err != nil {
		return err
	}
	var body writeBody
	if err := decode(c, &body); err != nil {
		return err
	}
	record, err := h.engine.Update(c.UserContext(), model, body.Where, orEmpty(body.Data))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": record})
}

// Upsert handles POST /api/:model/upsert
func (h *Handler) Upsert(c *fiber.Ctx) error {
	model, err := h.resolveModel(c)
	if err != nil {
		return err
	}
	var body writeBody
	if err := decode(c, &body); err != nil {
		return err
	}
	record, err := h.engine.Upsert(c.UserContext(), model, body.Where, orEmpty(body.Create), orEmpty(body.Update))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": record})
}

// Delete handles POST /api/:model/delete
func (h *Handler) Delete(c *fiber.Ctx) error {
	model, err := h.resolveModel(c)
	if err != nil {
		return err
	}
	var body writeBody
	if err := decode(c, &body); err != nil {
		return err
	}
	record, err := h.engine.Delete(c.UserContext(), model, body.Where)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": record})
}

// FindUnique handles POST /api/:model/findUnique
func (h *Handler) FindUnique(c *fiber.Ctx) error {
	model, err := h.resolveModel(c)
	if err != nil {
		return err
	}
	var body readBody
	if err := decode(c, &body); err != nil {
		return err
	}
	record, err := h.engine.FindUnique(c.UserContext(), model, body.Where, body.Include)
	if err != nil {
		return err
	}
	if record == nil {
		return apperr.ObjectNotFound(model, body.Where)
	}
	return c.JSON(fiber.Map{"data": record})
}

// FindMany handles POST /api/:model/findMany
func (h *Handler) FindMany(c *fiber.Ctx) error {
	model, err := h.resolveModel(c)
	if err != nil {
		return err
	}
	var body readBody
	if err := decode(c, &body); err != nil {
		return err
	}
	records, err := h.engine.FindMany(c.UserContext(), model, body.Where, body.Include)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": records, "meta": fiber.Map{"total": len(records)}})
}

func (h *Handler) resolveModel(c *fiber.Ctx) (string, error) {
	name := c.Params("model")
	if h.engine.Graph().Model(name) == nil {
		return "", fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("Unknown model: %s", name))
	}
	return name, nil
}

// decode reads the JSON body keeping numbers as json.Number, so integer
// fields keep full precision until the schema coerces them. An empty body
// decodes to the zero value.
func decode(c *fiber.Ctx, v any) error {
	body := c.Body()
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return apperr.InvalidInput(fmt.Sprintf("Invalid JSON body: %v", err))
	}
	return nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
