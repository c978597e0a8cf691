package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/baassist/cmd/baassist/apiclient/apiclienttest"
	"github.com/papercomputeco/baassist/pkg/sse"
)

var _ = Describe("Stream", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	collect := func(srv *httptest.Server, body any) ([]sse.Event, error) {
		var got []sse.Event
		err := Stream(ctx, http.MethodPost, URL(srv.URL+"/", "/api/chat"), body, func(ev sse.Event) {
			got = append(got, ev)
		})
		return got, err
	}

	It("delivers events up to success", func() {
		srv := apiclienttest.NewServer([]sse.Event{
			sse.Content{Content: "He"},
			sse.Content{Content: "llo"},
			sse.Success{},
		}, nil)
		defer srv.Close()

		got, err := collect(srv, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal([]sse.Event{sse.Content{Content: "He"}, sse.Content{Content: "llo"}}))
	})

	It("returns an error event as an error", func() {
		srv := apiclienttest.NewServer([]sse.Event{
			sse.Content{Content: "partial"},
			sse.Error{Message: "model unavailable"},
		}, nil)
		defer srv.Close()

		got, err := collect(srv, nil)
		Expect(err).To(MatchError("model unavailable"))
		Expect(got).To(HaveLen(1))
	})

	It("treats a stopped generation as a clean end", func() {
		srv := apiclienttest.NewServer([]sse.Event{
			sse.Content{Content: "half"},
			sse.Success{Message: "stopped"},
		}, nil)
		defer srv.Close()

		got, err := collect(srv, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal([]sse.Event{sse.Content{Content: "half"}}))
	})

	It("reports a stream that ends without a terminal event", func() {
		srv := apiclienttest.NewServer([]sse.Event{sse.Content{Content: "cut"}}, nil)
		defer srv.Close()

		_, err := collect(srv, nil)
		Expect(err).To(MatchError(ErrIncomplete))
	})

	It("sends the body as JSON", func() {
		seen := make(chan apiclienttest.Request, 1)
		srv := apiclienttest.NewServer([]sse.Event{sse.Success{}}, seen)
		defer srv.Close()

		_, err := collect(srv, map[string]string{"prompt": "hi"})
		Expect(err).NotTo(HaveOccurred())

		var req apiclienttest.Request
		Eventually(seen).Should(Receive(&req))
		Expect(req.Path).To(Equal("/api/chat"))

		var body map[string]string
		Expect(json.Unmarshal(req.Body, &body)).To(Succeed())
		Expect(body).To(HaveKeyWithValue("prompt", "hi"))
	})

	It("reports non-200 responses", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusNotFound)
		}))
		defer srv.Close()

		_, err := collect(srv, nil)
		Expect(err).To(MatchError(ContainSubstring("server returned 404: nope")))
	})
})
