package main

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/dmorgan81/imageedit/internal/audit"
	"github.com/dmorgan81/imageedit/internal/edit"
	"github.com/dmorgan81/imageedit/internal/log"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Editor interface {
	Handle(ctx context.Context, req edit.Request) (*edit.Response, error)
}

type server struct {
	editor Editor
	audits *audit.SQLiteStore
}

func setupRoutes(app *fiber.App, editor Editor, audits *audit.SQLiteStore) {
	s := &server{editor: editor, audits: audits}

	app.Post("/image-edit", s.imageEdit)
	app.Get("/edits/:id", s.getEdit)
	app.Get("/health", s.health)
}

func (s *server) imageEdit(c *fiber.Ctx) error {
	body := bytes.TrimSpace(c.Body())
	if len(body) == 0 {
		return badRequest(c, "Missing body in request")
	}

	var req edit.Request
	if err := json.Unmarshal(body, &req); err != nil {
		return badRequest(c, "Invalid JSON in request body")
	}

	resp, err := s.editor.Handle(c.UserContext(), req)
	if err != nil {
		status, body := edit.ErrorResponseFor(err, uuid.NewString())
		return c.Status(status).JSON(body)
	}
	return c.JSON(resp)
}

func (s *server) getEdit(c *fiber.Ctx) error {
	rec, err := s.audits.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		errorID := uuid.NewString()
		log.FromContextOrDiscard(c.UserContext()).Error("audit lookup failed", "error_id", errorID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(edit.ErrorResponse{ErrorID: errorID, Message: "internal error"})
	}
	if rec == nil {
		return c.Status(fiber.StatusNotFound).JSON(edit.ErrorResponse{ErrorID: uuid.NewString(), Message: "edit not found"})
	}
	return c.JSON(rec)
}

func (s *server) health(c *fiber.Ctx) error {
	n, err := s.audits.Count(c.UserContext())
	if err != nil {
		errorID := uuid.NewString()
		log.FromContextOrDiscard(c.UserContext()).Error("health check failed", "error_id", errorID, "error", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded", "error_id": errorID})
	}
	return c.JSON(fiber.Map{"status": "ok", "audit_records": n})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(edit.ErrorResponse{
		ErrorID:   uuid.NewString(),
		ErrorType: edit.KindValidation,
		Message:   message,
	})
}
