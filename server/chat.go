package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/baassist/pkg/llm"
	"github.com/papercomputeco/baassist/pkg/merkle"
	"github.com/papercomputeco/baassist/pkg/ollama"
	"github.com/papercomputeco/baassist/pkg/sse"
)

// handleChat streams a model reply to a conversation as content events,
// then success. Completed turns are recorded as transcripts.
func (s *Server) handleChat(c *fiber.Ctx) error {
	var body llm.ChatBody
	parseErr := json.Unmarshal(c.Body(), &body)

	return s.stream(c, "chat", func(ctx context.Context, st *sse.Stream) {
		if parseErr != nil {
			s.fail(st, "invalid request body")
			return
		}
		if err := llm.ValidateMessages(body.Messages); err != nil {
			s.fail(st, err.Error())
			return
		}
		body.Messages = llm.WithoutBlank(body.Messages)
		s.runChat(ctx, st, body)
	})
}

func (s *Server) runChat(ctx context.Context, st *sse.Stream, body llm.ChatBody) {
	startTime := time.Now()

	s.logger.Debug("received chat request",
		zap.Int("message_count", len(body.Messages)),
		zap.Int("max_tokens", body.MaxTokens),
	)

	res, err := s.llm.Chat(ctx, body.Messages, body.MaxTokens, func(fragment string) {
		s.send(st, sse.Content{Content: fragment})
	})
	if !s.finish(st, "chat", res, err) {
		return
	}

	s.logger.Debug("chat complete",
		zap.String("reply_preview", truncate(res.Text, 100)),
		zap.Duration("duration", time.Since(startTime)),
	)

	// The client already has its answer; a storage failure is only logged.
	headHash, err := s.storeConversationTurn(context.Background(), llm.ConversationTurn{
		Model:    s.config.LLM.Model,
		Messages: body.Messages,
		Reply:    llm.Message{Role: llm.RoleAssistant, Content: res.Text},
	})
	if err != nil {
		s.logger.Error("failed to store conversation", zap.Error(err))
	} else {
		s.logger.Info("conversation stored", zap.String("head_hash", truncate(headHash, 16)))
	}
}

// handleGenerate streams a completion of a single prompt.
func (s *Server) handleGenerate(c *fiber.Ctx) error {
	var body llm.GenerateBody
	parseErr := json.Unmarshal(c.Body(), &body)

	return s.stream(c, "generate", func(ctx context.Context, st *sse.Stream) {
		if parseErr != nil {
			s.fail(st, "invalid request body")
			return
		}
		if strings.TrimSpace(body.Prompt) == "" {
			s.fail(st, "prompt required")
			return
		}

		res, err := s.llm.Generate(ctx, body.Prompt, body.MaxTokens, func(fragment string) {
			s.send(st, sse.Content{Content: fragment})
		})
		s.finish(st, "generate", res, err)
	})
}

// finish ends a generation stream and reports whether it succeeded. A
// generation stopped while its client is still connected ends with success
// and whatever text arrived; a disconnected client gets nothing.
func (s *Server) finish(st *sse.Stream, name string, res *ollama.Completion, err error) bool {
	switch {
	case errors.Is(err, ollama.ErrEmptyInput):
		s.fail(st, "prompt required")
		return false
	case err != nil:
		s.logger.Error("generation failed", zap.String("stream", name), zap.Error(err))
		s.fail(st, err.Error())
		return false
	case res.Aborted:
		s.logger.Info("generation aborted", zap.String("stream", name), zap.Int("chunks", res.Chunks))
		s.stopped(st)
		return false
	}

	s.send(st, sse.Success{})
	return true
}

// handleStop aborts every generation this server has in flight.
func (s *Server) handleStop(c *fiber.Ctx) error {
	n := s.tracker.StopAll()
	s.logger.Info("stop requested", zap.Int("aborted", n))
	return c.JSON(fiber.Map{"aborted": n})
}

// storeConversationTurn records a turn in the transcript DAG and returns the
// hash of the reply node. Each request message becomes a node linked to the
// previous one, the first being a root. Resending a history produces the
// same hashes, so only a new reply adds a node, branching from the shared
// prefix when the model answers differently.
func (s *Server) storeConversationTurn(ctx context.Context, turn llm.ConversationTurn) (string, error) {
	var parent *merkle.Node

	for _, msg := range turn.Messages {
		node := merkle.NewNode(merkle.Bucket{
			Type:    merkle.TypeMessage,
			Role:    msg.Role,
			Content: msg.Content,
			Model:   turn.Model,
		}, parent)

		isNew, err := s.storer.Put(ctx, node)
		if err != nil {
			return "", fmt.Errorf("storing message node: %w", err)
		}

		s.logger.Debug("stored message in DAG",
			zap.String("hash", truncate(node.Hash, 16)),
			zap.String("role", msg.Role),
			zap.Bool("new", isNew),
		)
		parent = node
	}

	reply := merkle.NewNode(merkle.Bucket{
		Type:    merkle.TypeReply,
		Role:    turn.Reply.Role,
		Content: turn.Reply.Content,
		Model:   turn.Model,
	}, parent)
	if _, err := s.storer.Put(ctx, reply); err != nil {
		return "", fmt.Errorf("storing reply node: %w", err)
	}

	return reply.Hash, nil
}
