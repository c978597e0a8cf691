// Package ollama is a streaming client for Ollama-compatible text generation
// servers. It reassembles newline-delimited JSON chunks into text, retries
// failed requests and lets its owner abort every request in flight.
package ollama

import "time"

// Config is the upstream model server configuration.
type Config struct {
	// Endpoint is the base URL, e.g. "http://localhost:11434/".
	Endpoint string `toml:"endpoint"`

	// Model name sent with every request.
	Model string `toml:"model"`

	Temperature float64 `toml:"temperature"`

	// RetryAttempts is the total number of attempts per request.
	RetryAttempts int `toml:"retry_attempts"`

	// RetryDelay is multiplied by the attempt number between attempts.
	RetryDelay time.Duration `toml:"retry_delay"`

	// MaxTokens is used when a caller passes no limit.
	MaxTokens int `toml:"max_tokens"`

	// NumCtx is the context window requested from the model.
	NumCtx int `toml:"num_ctx"`

	// Language the model is asked to answer in by prompt builders.
	Language string `toml:"language"`

	Streaming bool `toml:"streaming"`

	// HeaderTimeout bounds the wait for response headers. Once the body
	// starts streaming only cancellation ends it.
	HeaderTimeout time.Duration `toml:"header_timeout"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Endpoint:      "http://localhost:11434/",
		Model:         "llama3.2:3b",
		Temperature:   0.3,
		RetryAttempts: 3,
		RetryDelay:    time.Second,
		MaxTokens:     4096,
		NumCtx:        131072,
		Language:      "English",
		Streaming:     true,
		// Loading a model on a small local machine can take minutes.
		HeaderTimeout: 5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Endpoint == "" {
		c.Endpoint = d.Endpoint
	}
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 1
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.Language == "" {
		c.Language = d.Language
	}
	if c.HeaderTimeout <= 0 {
		c.HeaderTimeout = d.HeaderTimeout
	}
	return c
}
