// Package server is the baassist HTTP API. Long-running operations (chat,
// generation, repository analysis) answer with an event stream; everything
// else is plain JSON.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/baassist/pkg/analyzer"
	"github.com/papercomputeco/baassist/pkg/gitquery"
	applog "github.com/papercomputeco/baassist/pkg/logger"
	"github.com/papercomputeco/baassist/pkg/merkle"
	"github.com/papercomputeco/baassist/pkg/ollama"
	"github.com/papercomputeco/baassist/pkg/prompts"
)

// Server owns the HTTP app and every per-process dependency. In particular
// it owns the request tracker, so stopping generation affects only the
// requests this server started.
type Server struct {
	config     Config
	logger     *zap.Logger
	storer     merkle.Storer
	tracker    *ollama.Tracker
	llm        *ollama.Client
	analyzer   *analyzer.Analyzer
	prompts    *prompts.Store
	httpClient *http.Client
	openRepo   func(path string) (*gitquery.Repo, error)
	app        *fiber.App
}

// New creates a Server.
func New(config Config, logger *zap.Logger) (*Server, error) {
	logger = applog.OrNop(logger)
	config = config.withDefaults()

	var storer merkle.Storer
	if config.DBPath != "" {
		s, err := merkle.NewSQLiteStorer(config.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite storer: %w", err)
		}
		storer = s
		logger.Info("using SQLite transcript storage", zap.String("path", config.DBPath))
	} else {
		storer = merkle.NewMemoryStorer()
		logger.Info("using in-memory transcript storage")
	}

	library, err := prompts.NewStore(config.PromptsFile, logger)
	if err != nil {
		storer.Close()
		return nil, err
	}

	tracker := ollama.NewTracker(logger)
	client := ollama.NewClient(config.LLM, tracker, logger)

	s := &Server{
		config:     config,
		logger:     logger,
		storer:     storer,
		tracker:    tracker,
		llm:        client,
		analyzer:   analyzer.New(client, config.Analyzer, logger),
		prompts:    library,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		openRepo:   gitquery.Open,
	}
	s.app = s.routes()

	return s, nil
}

func (s *Server) routes() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "ok"})
	})

	api := app.Group("/api")
	api.Post("/chat", s.handleChat)
	api.Post("/generate", s.handleGenerate)
	api.Post("/stop", s.handleStop)
	api.Get("/repo/stats", s.handleRepoStats)
	api.Get("/repo/features", s.handleRepoFeatures)
	api.Get("/comic", s.handleComic)

	api.Get("/prompts", s.handleListPrompts)
	api.Post("/prompts", s.handleCreatePrompt)
	api.Get("/prompts/:id", s.handleGetPrompt)
	api.Put("/prompts/:id", s.handleUpdatePrompt)
	api.Delete("/prompts/:id", s.handleDeletePrompt)
	api.Post("/prompts/:id/render", s.handleRenderPrompt)

	app.Get("/dag/stats", s.handleDAGStats)
	app.Post("/dag/nodes", s.handleIngestNodes)
	app.Get("/dag/node/:hash", s.handleGetNode)
	app.Get("/dag/history", s.handleListHistories)
	app.Get("/dag/history/:hash", s.handleGetHistory)

	if s.config.StaticDir != "" {
		app.Static("/", s.config.StaticDir)
	}

	return app
}

// Run starts the server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting baassist server",
		zap.String("listen", s.config.ListenAddr),
		zap.String("llm_endpoint", s.config.LLM.Endpoint),
		zap.String("model", s.config.LLM.Model),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting baassist server", zap.String("listen", ln.Addr().String()))
	return s.app.Listener(ln)
}

// Shutdown aborts every generation in flight and stops accepting
// connections.
func (s *Server) Shutdown(ctx context.Context) error {
	if n := s.tracker.StopAll(); n > 0 {
		s.logger.Info("aborted in-flight generations", zap.Int("count", n))
	}
	return s.app.ShutdownWithContext(ctx)
}

// Close releases the transcript store.
func (s *Server) Close() error {
	return s.storer.Close()
}

// Tracker returns the tracker of this server's LLM requests.
func (s *Server) Tracker() *ollama.Tracker { return s.tracker }

// Prompts returns the prompt library.
func (s *Server) Prompts() *prompts.Store { return s.prompts }

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
