package server

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/baassist/pkg/llm"
)

// comicCount bounds the random comic number.
const comicCount = 2990

// handleComic relays a random xkcd comic, shown while the model warms up.
func (s *Server) handleComic(c *fiber.Ctx) error {
	url := fmt.Sprintf(s.config.ComicURL, rand.IntN(comicCount)+1)

	req, err := http.NewRequestWithContext(c.UserContext(), http.MethodGet, url, nil)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "internal error"})
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Warn("comic request failed", zap.String("url", url), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: "comic request failed"})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || resp.StatusCode != http.StatusOK || !json.Valid(body) {
		s.logger.Warn("comic unavailable", zap.String("url", url), zap.Int("status", resp.StatusCode), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: "comic unavailable"})
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(body)
}
