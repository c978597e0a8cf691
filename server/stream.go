package server

import (
	"bufio"
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/papercomputeco/baassist/pkg/sse"
)

// streamFunc produces the events of one response. ctx is cancelled when the
// client goes away.
type streamFunc func(ctx context.Context, st *sse.Stream)

// stream answers c with an event stream fed by fn. fn runs in fasthttp's body
// writer after the handler has returned, so it must not touch c.
func (s *Server) stream(c *fiber.Ctx, name string, fn streamFunc) error {
	sse.SetHeaders(c.Set)
	c.Status(fiber.StatusOK)

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		ctx, st, done := s.attach(w)
		defer done()

		s.logger.Debug("event stream opened", zap.String("stream", name))
		fn(ctx, st)
		s.logger.Debug("event stream finished", zap.String("stream", name), zap.Bool("client_alive", st.Alive()))
	}))

	return nil
}

// attach starts a Stream on w whose cleanup cancels the returned context.
// done closes the stream.
func (s *Server) attach(w sse.FlushWriter) (context.Context, *sse.Stream, func()) {
	ctx, cancel := context.WithCancel(context.Background())

	st := sse.NewStream(w, sse.WithKeepAlive(s.config.KeepAlive), sse.WithLogger(s.logger))
	st.OnCleanup(cancel)

	return ctx, st, func() {
		st.Close()
		cancel()
	}
}

// send writes ev, dropping it if the client is gone. The stream's cleanup
// has already cancelled the work in that case.
func (s *Server) send(st *sse.Stream, ev sse.Event) {
	if err := st.Send(ev); err != nil {
		s.logger.Debug("event dropped", zap.String("event", string(ev.Kind())), zap.Error(err))
	}
}

// fail sends a terminal error event.
func (s *Server) fail(st *sse.Stream, msg string) {
	s.send(st, sse.Error{Message: msg})
}

// stopped ends the stream of a cancelled operation with success, unless the
// client has already gone.
func (s *Server) stopped(st *sse.Stream) {
	if st.Alive() {
		s.send(st, sse.Success{Message: "stopped"})
	}
}
