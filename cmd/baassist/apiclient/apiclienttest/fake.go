// Package apiclienttest serves canned event streams to command tests.
package apiclienttest

import (
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/papercomputeco/baassist/pkg/sse"
)

// Request is what a fake server saw.
type Request struct {
	Method string
	Path   string
	Query  string
	Body   []byte
}

// NewServer replays events as an event stream to every request. When seen
// is non-nil each request is sent on it before the events are written.
func NewServer(events []sse.Event, seen chan<- Request) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if seen != nil {
			seen <- Request{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: body}
		}

		sse.SetHeaders(w.Header().Set)
		_, _ = io.WriteString(w, ":\n\n")
		for _, ev := range events {
			data, err := sse.Encode(ev)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			_, _ = io.WriteString(w, "data: "+string(data)+"\n\n")
		}
	}))
}
