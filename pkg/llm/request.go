package llm

// ChatRequest is the body sent to the upstream api/chat endpoint.
// Temperature, MaxTokens and NumCtx are repeated at the top level for servers
// that read them there; Options carries the same values for Ollama.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	NumCtx      int       `json:"num_ctx,omitempty"`
	Options     *Options  `json:"options,omitempty"`
}

// GenerateRequest is the body sent to the upstream api/generate endpoint.
type GenerateRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	Stream      bool     `json:"stream"`
	Temperature float64  `json:"temperature"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	NumCtx      int      `json:"num_ctx,omitempty"`
	Options     *Options `json:"options,omitempty"`
}

// ChatBody is what browsers POST to /api/chat.
type ChatBody struct {
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"maxTokens,omitempty"`
}

// GenerateBody is what browsers POST to /api/generate.
type GenerateBody struct {
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"maxTokens,omitempty"`
}
