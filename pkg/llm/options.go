package llm

// Options contains model inference parameters in Ollama's "options" object.
type Options struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"` // Max tokens to generate
	NumCtx      *int     `json:"num_ctx,omitempty"`     // Context window size
}

// NewOptions builds Options from plain values, leaving zero values unset.
func NewOptions(temperature float64, maxTokens, numCtx int) *Options {
	o := &Options{Temperature: &temperature}
	if maxTokens > 0 {
		o.NumPredict = &maxTokens
	}
	if numCtx > 0 {
		o.NumCtx = &numCtx
	}
	return o
}
