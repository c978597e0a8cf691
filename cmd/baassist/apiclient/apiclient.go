// Package apiclient calls a running baassist server from the command line.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/papercomputeco/baassist/pkg/sse"
)

// DefaultServer is where commands look for the server.
const DefaultServer = "http://localhost:8080"

// ErrIncomplete is returned when a stream ends without success or error.
var ErrIncomplete = errors.New("event stream ended before completion")

// Stream sends a request and passes every non-terminal event to fn. An error
// event is returned as an error. body is JSON-encoded when non-nil.
func Stream(ctx context.Context, method, url string, body any, fn func(sse.Event)) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not encode request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not reach server: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var (
		streamErr error
		finished  bool
	)
	err = sse.ReadResponse(resp, func(ev sse.Event) bool {
		switch e := ev.(type) {
		case sse.Error:
			streamErr = errors.New(e.Message)
			finished = true
			return false
		case sse.Success:
			finished = true
			return false
		}
		fn(ev)
		return true
	})
	switch {
	case err != nil:
		return err
	case streamErr != nil:
		return streamErr
	case !finished:
		return ErrIncomplete
	}
	return nil
}

// URL joins a server base URL and a path.
func URL(server, path string) string {
	return strings.TrimRight(server, "/") + path
}
