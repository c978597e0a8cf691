package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/baassist/pkg/llm"
)

const readSize = 4096

// Completion is the outcome of one streamed request.
type Completion struct {
	// Text is every fragment concatenated in arrival order.
	Text string

	// Aborted is set when the request was cancelled. Cancellation is not an
	// error: Text holds whatever arrived before it, often nothing.
	Aborted bool

	// Chunks is the number of fragments delivered to the callback.
	Chunks int

	// Attempts is the number of HTTP requests made.
	Attempts int
}

// Client talks to an Ollama-compatible server.
type Client struct {
	config     Config
	tracker    *Tracker
	logger     *zap.Logger
	httpClient *http.Client
}

// NewClient creates a Client. Requests are registered with tracker so its
// owner can abort them; a nil tracker gets a private one.
func NewClient(config Config, tracker *Tracker, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracker == nil {
		tracker = NewTracker(logger)
	}
	config = config.withDefaults()

	return &Client{
		config:     config,
		tracker:    tracker,
		logger:     logger,
		httpClient: newHTTPClient(config.HeaderTimeout),
	}
}

// newHTTPClient has no overall timeout: a generation may stream for as long
// as the model keeps producing tokens.
func newHTTPClient(headerTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = headerTimeout
	return &http.Client{Transport: transport}
}

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.config }

// Tracker returns the tracker requests are registered with.
func (c *Client) Tracker() *Tracker { return c.tracker }

// Chat streams a reply to messages from api/chat.
func (c *Client) Chat(ctx context.Context, messages []llm.Message, maxTokens int, onChunk ChunkFunc) (*Completion, error) {
	if len(messages) == 0 {
		return nil, ErrEmptyInput
	}
	maxTokens = c.maxTokens(maxTokens)

	return c.do(ctx, "api/chat", ModeChat, onChunk, llm.ChatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Stream:      c.config.Streaming,
		Temperature: c.config.Temperature,
		MaxTokens:   maxTokens,
		NumCtx:      c.config.NumCtx,
		Options:     llm.NewOptions(c.config.Temperature, maxTokens, c.config.NumCtx),
	})
}

// Generate streams a completion of prompt from api/generate.
func (c *Client) Generate(ctx context.Context, prompt string, maxTokens int, onChunk ChunkFunc) (*Completion, error) {
	prompt = SanitizePrompt(prompt)
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyInput
	}
	maxTokens = c.maxTokens(maxTokens)

	return c.do(ctx, "api/generate", ModeGenerate, onChunk, llm.GenerateRequest{
		Model:       c.config.Model,
		Prompt:      prompt,
		Stream:      c.config.Streaming,
		Temperature: c.config.Temperature,
		MaxTokens:   maxTokens,
		NumCtx:      c.config.NumCtx,
		Options:     llm.NewOptions(c.config.Temperature, maxTokens, c.config.NumCtx),
	})
}

func (c *Client) maxTokens(n int) int {
	if n <= 0 {
		return c.config.MaxTokens
	}
	return n
}

// do runs the request with retries. A failed attempt is retried after
// RetryDelay*attempt, but only while no fragment has reached onChunk:
// once text has been delivered a retry would deliver it twice.
func (c *Client) do(ctx context.Context, path string, mode Mode, onChunk ChunkFunc, payload any) (*Completion, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", mode, err)
	}

	ctx, release := c.tracker.Track(ctx)
	defer release()

	chunks := 0
	deliver := func(s string) {
		chunks++
		if onChunk != nil {
			onChunk(s)
		}
	}

	startTime := time.Now()
	var lastErr error

	for attempt := 1; attempt <= c.config.RetryAttempts; attempt++ {
		text, err := c.stream(ctx, path, mode, body, deliver)
		if err == nil {
			c.logger.Debug("llm request complete",
				zap.String("mode", mode.String()),
				zap.Int("chunks", chunks),
				zap.Int("attempts", attempt),
				zap.Duration("duration", time.Since(startTime)),
			)
			return &Completion{Text: text, Chunks: chunks, Attempts: attempt}, nil
		}

		if ctx.Err() != nil {
			c.logger.Info("llm request aborted", zap.String("mode", mode.String()), zap.Int("chunks", chunks))
			return &Completion{Text: text, Aborted: true, Chunks: chunks, Attempts: attempt}, nil
		}

		lastErr = err
		if chunks > 0 || attempt == c.config.RetryAttempts {
			break
		}

		delay := c.config.RetryDelay * time.Duration(attempt)
		c.logger.Warn("llm request failed, retrying",
			zap.String("mode", mode.String()),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.logger.Info("llm request aborted", zap.String("mode", mode.String()))
			return &Completion{Aborted: true, Attempts: attempt}, nil
		case <-timer.C:
		}
	}

	c.logger.Error("llm request failed", zap.String("mode", mode.String()), zap.Error(lastErr))
	return nil, lastErr
}

// stream performs a single HTTP request and feeds the body through a
// Reassembler. It returns the text accumulated so far even on error.
func (c *Client) stream(ctx context.Context, path string, mode Mode, body []byte, onChunk ChunkFunc) (string, error) {
	url := strings.TrimRight(c.config.Endpoint, "/") + "/" + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("forwarding request to upstream", zap.String("url", url), zap.Int("body_size", len(body)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	releaseReader := c.tracker.TrackReader(resp.Body)
	defer releaseReader()

	r := NewReassembler(mode, onChunk)
	buf := make([]byte, readSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 && r.Feed(buf[:n]) {
			break
		}
		if errors.Is(err, io.EOF) {
			r.Flush()
			break
		}
		if err != nil {
			return r.Text(), fmt.Errorf("read upstream stream: %w", err)
		}
	}

	if err := r.Err(); err != nil {
		return r.Text(), err
	}
	return r.Text(), nil
}
