package server

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/baassist/pkg/llm"
	"github.com/papercomputeco/baassist/pkg/merkle"
)

// storeError answers a failed Storer call: 404 for a missing node, 500
// otherwise.
func (s *Server) storeError(c *fiber.Ctx, op string, err error) error {
	if merkle.IsNotFound(err) {
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "node not found"})
	}
	s.logger.Error("transcript store failed", zap.String("op", op), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to " + op})
}

// handleDAGStats returns transcript counts.
func (s *Server) handleDAGStats(c *fiber.Ctx) error {
	ctx := c.Context()

	nodes, err := s.storer.List(ctx)
	if err != nil {
		return s.storeError(c, "list nodes", err)
	}
	roots, err := s.storer.Roots(ctx)
	if err != nil {
		return s.storeError(c, "get roots", err)
	}
	leaves, err := s.storer.Leaves(ctx)
	if err != nil {
		return s.storeError(c, "get leaves", err)
	}

	return c.JSON(map[string]any{
		"total_nodes": len(nodes),
		"root_count":  len(roots),
		"leaf_count":  len(leaves),
	})
}

func (s *Server) handleGetNode(c *fiber.Ctx) error {
	node, err := s.storer.Get(c.Context(), c.Params("hash"))
	if err != nil {
		return s.storeError(c, "get node", err)
	}
	return c.JSON(node)
}

// IngestResponse counts the outcome of a POST /dag/nodes batch.
type IngestResponse struct {
	New       int `json:"new"`
	Duplicate int `json:"duplicate"`
	Errors    int `json:"errors"`
}

// handleIngestNodes stores transcript nodes pushed from another instance.
// Nodes whose hash does not match their content are counted as errors and
// skipped.
func (s *Server) handleIngestNodes(c *fiber.Ctx) error {
	var nodes []*merkle.Node
	if err := json.Unmarshal(c.Body(), &nodes); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
	}

	var result IngestResponse
	for _, n := range nodes {
		if n == nil || !n.Verify() {
			result.Errors++
			continue
		}
		isNew, err := s.storer.Put(c.Context(), n)
		switch {
		case err != nil:
			s.logger.Warn("failed to ingest node", zap.String("hash", n.Hash), zap.Error(err))
			result.Errors++
		case isNew:
			result.New++
		default:
			result.Duplicate++
		}
	}

	s.logger.Info("ingested transcript nodes",
		zap.Int("new", result.New),
		zap.Int("duplicate", result.Duplicate),
		zap.Int("errors", result.Errors),
	)
	return c.JSON(result)
}

// HistoryResponse is one conversation, oldest message first.
type HistoryResponse struct {
	Messages []HistoryMessage `json:"messages"`
	HeadHash string           `json:"head_hash"`
	Depth    int              `json:"depth"`
}

type HistoryMessage struct {
	Hash       string  `json:"hash"`
	ParentHash *string `json:"parent_hash,omitempty"`
	Type       string  `json:"type"`
	Role       string  `json:"role"`
	Content    string  `json:"content"`
	Model      string  `json:"model,omitempty"`
}

// handleListHistories returns one history per leaf, i.e. per conversation
// branch.
func (s *Server) handleListHistories(c *fiber.Ctx) error {
	ctx := c.Context()

	leaves, err := s.storer.Leaves(ctx)
	if err != nil {
		return s.storeError(c, "get leaves", err)
	}

	histories := make([]HistoryResponse, 0, len(leaves))
	for _, leaf := range leaves {
		history, err := s.buildHistory(ctx, leaf.Hash)
		if err != nil {
			s.logger.Warn("failed to build history for leaf", zap.String("hash", leaf.Hash), zap.Error(err))
			continue
		}
		histories = append(histories, *history)
	}

	return c.JSON(map[string]any{
		"count":     len(histories),
		"histories": histories,
	})
}

func (s *Server) handleGetHistory(c *fiber.Ctx) error {
	history, err := s.buildHistory(c.Context(), c.Params("hash"))
	if err != nil {
		return s.storeError(c, "build history", err)
	}
	return c.JSON(history)
}

func (s *Server) buildHistory(ctx context.Context, hash string) (*HistoryResponse, error) {
	path, err := s.storer.Descendants(ctx, hash)
	if err != nil {
		return nil, err
	}

	messages := make([]HistoryMessage, len(path))
	for i, node := range path {
		messages[i] = HistoryMessage{
			Hash:       node.Hash,
			ParentHash: node.ParentHash,
			Type:       node.Bucket.Type,
			Role:       node.Bucket.Role,
			Content:    node.Bucket.Content,
			Model:      node.Bucket.Model,
		}
	}

	return &HistoryResponse{
		Messages: messages,
		HeadHash: hash,
		Depth:    len(messages),
	}, nil
}
