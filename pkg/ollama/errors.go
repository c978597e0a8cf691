package ollama

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned for an empty prompt or message list.
var ErrEmptyInput = errors.New("prompt or messages required")

// StatusError reports a non-2xx reply from the upstream server.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned HTTP %d", e.Code)
	}
	return fmt.Sprintf("upstream returned HTTP %d: %s", e.Code, e.Body)
}

// UpstreamError is an {"error": ...} object found inside a response stream.
type UpstreamError struct {
	Message string
}

func (e *UpstreamError) Error() string {
	return "upstream error: " + e.Message
}
