package ollama_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/baassist/pkg/llm"
	"github.com/papercomputeco/baassist/pkg/ollama"
)

func testConfig(url string) ollama.Config {
	cfg := ollama.DefaultConfig()
	cfg.Endpoint = url + "/"
	cfg.RetryDelay = time.Millisecond
	return cfg
}

// chatLine encodes one api/chat stream line.
func chatLine(content string, done bool) string {
	data, err := json.Marshal(llm.ChatChunk{
		Model:     "m",
		CreatedAt: time.Now().UTC(),
		Message:   llm.Message{Role: llm.RoleAssistant, Content: content},
		Done:      done,
	})
	Expect(err).NotTo(HaveOccurred())
	return string(data)
}

// generateLine encodes one api/generate stream line.
func generateLine(response string, done bool) string {
	data, err := json.Marshal(llm.GenerateChunk{
		Model:     "m",
		CreatedAt: time.Now().UTC(),
		Response:  response,
		Done:      done,
	})
	Expect(err).NotTo(HaveOccurred())
	return string(data)
}

func writeLines(w http.ResponseWriter, lines ...string) {
	for _, l := range lines {
		fmt.Fprintln(w, l)
		w.(http.Flusher).Flush()
	}
}

var _ = Describe("Client", func() {
	var (
		ctx     context.Context
		tracker *ollama.Tracker
		hits    atomic.Int32
	)

	BeforeEach(func() {
		ctx = context.Background()
		tracker = ollama.NewTracker(nil)
		hits.Store(0)
	})

	Describe("Chat", func() {
		It("streams fragments and returns the full text", func() {
			var received llm.ChatRequest
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				Expect(r.URL.Path).To(Equal("/api/chat"))
				body, _ := io.ReadAll(r.Body)
				Expect(json.Unmarshal(body, &received)).To(Succeed())
				writeLines(w, chatLine("He", false), chatLine("llo", true))
			}))
			defer srv.Close()

			client := ollama.NewClient(testConfig(srv.URL), tracker, nil)
			var fragments []string
			completion, err := client.Chat(ctx, []llm.Message{{Role: "user", Content: "hi"}}, 0, func(s string) {
				fragments = append(fragments, s)
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(completion.Text).To(Equal("Hello"))
			Expect(completion.Aborted).To(BeFalse())
			Expect(completion.Attempts).To(Equal(1))
			Expect(fragments).To(Equal([]string{"He", "llo"}))

			Expect(received.Model).To(Equal("llama3.2:3b"))
			Expect(received.Stream).To(BeTrue())
			Expect(received.MaxTokens).To(Equal(4096))
			Expect(received.Messages).To(Equal([]llm.Message{{Role: "user", Content: "hi"}}))
			Expect(tracker.Active()).To(Equal(0))
			Expect(tracker.Readers()).To(Equal(0))
		})

		It("rejects an empty message list without calling upstream", func() {
			client := ollama.NewClient(testConfig("http://127.0.0.1:1"), tracker, nil)
			_, err := client.Chat(ctx, nil, 0, nil)
			Expect(err).To(MatchError(ollama.ErrEmptyInput))
		})
	})

	Describe("Generate", func() {
		It("reads the response field and sends num_ctx", func() {
			var received llm.GenerateRequest
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/api/generate"))
				Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())
				writeLines(w, generateLine("fea", false), generateLine("tures", false), generateLine("", true))
			}))
			defer srv.Close()

			client := ollama.NewClient(testConfig(srv.URL), tracker, nil)
			completion, err := client.Generate(ctx, "list\x00 features", 128, nil)

			Expect(err).NotTo(HaveOccurred())
			Expect(completion.Text).To(Equal("features"))
			Expect(received.Prompt).To(Equal("list features"))
			Expect(received.MaxTokens).To(Equal(128))
			Expect(received.NumCtx).To(Equal(131072))
			Expect(*received.Options.NumPredict).To(Equal(128))
		})

		It("rejects a blank prompt", func() {
			client := ollama.NewClient(testConfig("http://127.0.0.1:1"), tracker, nil)
			_, err := client.Generate(ctx, " \x01 ", 0, nil)
			Expect(err).To(MatchError(ollama.ErrEmptyInput))
		})
	})

	Describe("retries", func() {
		It("retries failed attempts and then succeeds", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if hits.Add(1) < 3 {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				writeLines(w, `{"response":"ok"}`)
			}))
			defer srv.Close()

			client := ollama.NewClient(testConfig(srv.URL), tracker, nil)
			completion, err := client.Generate(ctx, "p", 0, nil)

			Expect(err).NotTo(HaveOccurred())
			Expect(completion.Text).To(Equal("ok"))
			Expect(completion.Attempts).To(Equal(3))
		})

		It("gives up after the configured attempts with a status error", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				http.Error(w, "boom", http.StatusInternalServerError)
			}))
			defer srv.Close()

			client := ollama.NewClient(testConfig(srv.URL), tracker, nil)
			completion, err := client.Chat(ctx, []llm.Message{{Role: "user", Content: "hi"}}, 0, nil)

			Expect(completion).To(BeNil())
			var statusErr *ollama.StatusError
			Expect(err).To(BeAssignableToTypeOf(statusErr))
			Expect(err.Error()).To(ContainSubstring("HTTP 500"))
			Expect(hits.Load()).To(Equal(int32(3)))
		})

		It("does not retry once text has been delivered", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				writeLines(w, `{"message":{"content":"partial"}}`, `{"error":"out of memory"}`)
			}))
			defer srv.Close()

			client := ollama.NewClient(testConfig(srv.URL), tracker, nil)
			var fragments []string
			_, err := client.Chat(ctx, []llm.Message{{Role: "user", Content: "hi"}}, 0, func(s string) {
				fragments = append(fragments, s)
			})

			Expect(err).To(MatchError(ContainSubstring("out of memory")))
			Expect(fragments).To(Equal([]string{"partial"}))
			Expect(hits.Load()).To(Equal(int32(1)))
		})
	})

	Describe("cancellation", func() {
		var (
			srv     *httptest.Server
			release chan struct{}
		)

		BeforeEach(func() {
			release = make(chan struct{})
			srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				writeLines(w, `{"message":{"content":"first"},"done":false}`)
				select {
				case <-r.Context().Done():
				case <-release:
				}
			}))
		})

		AfterEach(func() {
			close(release)
			srv.Close()
		})

		chatInBackground := func(ctx context.Context, client *ollama.Client) (<-chan *ollama.Completion, <-chan error, <-chan string) {
			results := make(chan *ollama.Completion, 1)
			errs := make(chan error, 1)
			fragments := make(chan string, 8)
			go func() {
				defer GinkgoRecover()
				c, err := client.Chat(ctx, []llm.Message{{Role: "user", Content: "hi"}}, 0, func(s string) {
					fragments <- s
				})
				results <- c
				errs <- err
			}()
			return results, errs, fragments
		}

		It("treats StopAll as an aborted success and empties the tracker", func() {
			client := ollama.NewClient(testConfig(srv.URL), tracker, nil)
			results, errs, fragments := chatInBackground(ctx, client)

			Eventually(fragments).Should(Receive(Equal("first")))
			Expect(tracker.Active()).To(Equal(1))
			Expect(tracker.StopAll()).To(Equal(1))

			var completion *ollama.Completion
			Eventually(results).Should(Receive(&completion))
			Expect(<-errs).NotTo(HaveOccurred())
			Expect(completion.Aborted).To(BeTrue())
			Expect(tracker.Active()).To(Equal(0))
			Expect(tracker.Readers()).To(Equal(0))
			Expect(hits.Load()).To(Equal(int32(1)))
		})

		It("treats caller cancellation the same way and never retries it", func() {
			client := ollama.NewClient(testConfig(srv.URL), tracker, nil)
			cctx, cancel := context.WithCancel(ctx)
			results, errs, fragments := chatInBackground(cctx, client)

			Eventually(fragments).Should(Receive())
			cancel()

			var completion *ollama.Completion
			Eventually(results).Should(Receive(&completion))
			Expect(<-errs).NotTo(HaveOccurred())
			Expect(completion.Aborted).To(BeTrue())
			Expect(hits.Load()).To(Equal(int32(1)))
			Expect(tracker.Active()).To(Equal(0))
		})
	})

	Describe("timeouts", func() {
		It("keeps reading a stream that outlasts the header timeout", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for i := 0; i < 6; i++ {
					writeLines(w, chatLine("x", false))
					time.Sleep(100 * time.Millisecond)
				}
				writeLines(w, chatLine("", true))
			}))
			defer srv.Close()

			cfg := testConfig(srv.URL)
			cfg.HeaderTimeout = 300 * time.Millisecond
			client := ollama.NewClient(cfg, tracker, nil)

			completion, err := client.Chat(ctx, []llm.Message{{Role: "user", Content: "hi"}}, 0, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(completion.Text).To(Equal("xxxxxx"))
			Expect(completion.Aborted).To(BeFalse())
		})

		It("fails an upstream that never sends headers", func() {
			release := make(chan struct{})
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				select {
				case <-release:
				case <-r.Context().Done():
				}
			}))
			defer srv.Close()
			defer close(release)

			cfg := testConfig(srv.URL)
			cfg.HeaderTimeout = 50 * time.Millisecond
			cfg.RetryAttempts = 1
			client := ollama.NewClient(cfg, tracker, nil)

			_, err := client.Generate(ctx, "p", 0, nil)
			Expect(err).To(MatchError(ContainSubstring("upstream request")))
			Expect(hits.Load()).To(Equal(int32(1)))
		})
	})

	It("is safe to use from many goroutines", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeLines(w, `{"response":"x"}`)
		}))
		defer srv.Close()

		client := ollama.NewClient(testConfig(srv.URL), tracker, nil)
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				c, err := client.Generate(ctx, "p", 0, nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(c.Text).To(Equal("x"))
			}()
		}
		wg.Wait()
		Expect(tracker.Active()).To(Equal(0))
	})
})
