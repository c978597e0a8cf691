package server

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/baassist/pkg/llm"
	"github.com/papercomputeco/baassist/pkg/prompts"
)

type promptBody struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

type renderBody struct {
	Vars    map[string]string `json:"vars"`
	Context string            `json:"context"`
}

func (s *Server) handleListPrompts(c *fiber.Ctx) error {
	return c.JSON(s.prompts.List())
}

func (s *Server) handleGetPrompt(c *fiber.Ctx) error {
	p, err := s.prompts.Get(c.Params("id"))
	if err != nil {
		return s.promptError(c, err)
	}
	return c.JSON(p)
}

func (s *Server) handleCreatePrompt(c *fiber.Ctx) error {
	var body promptBody
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
	}

	p, err := s.prompts.Create(body.Name, body.Text)
	if err != nil {
		return s.promptError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

func (s *Server) handleUpdatePrompt(c *fiber.Ctx) error {
	var body promptBody
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
	}

	p, err := s.prompts.Update(prompts.Prompt{ID: c.Params("id"), Name: body.Name, Text: body.Text})
	if err != nil {
		return s.promptError(c, err)
	}
	return c.JSON(p)
}

func (s *Server) handleDeletePrompt(c *fiber.Ctx) error {
	if err := s.prompts.Delete(c.Params("id")); err != nil {
		return s.promptError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleRenderPrompt fills a template so the client can send it to chat.
func (s *Server) handleRenderPrompt(c *fiber.Ctx) error {
	var body renderBody
	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
		}
	}

	text, err := s.prompts.Render(c.Params("id"), body.Vars, body.Context)
	if err != nil {
		return s.promptError(c, err)
	}
	return c.JSON(fiber.Map{"text": text})
}

func (s *Server) promptError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, prompts.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "prompt not found"})
	case errors.Is(err, prompts.ErrInvalid):
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: err.Error()})
	default:
		s.logger.Error("prompt store failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to save prompts"})
	}
}
