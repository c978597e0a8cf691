// Package llm holds the wire types exchanged with an Ollama-compatible
// text generation server and the request bodies accepted by baassist.
package llm

// ErrorResponse is the JSON body of non-streaming error replies, and the shape
// upstream servers use for errors embedded in a stream.
type ErrorResponse struct {
	Error string `json:"error"`
}
