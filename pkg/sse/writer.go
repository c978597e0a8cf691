package sse

import (
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrClosed is returned by Send once the stream has closed, either because
	// the client went away or because Close was called.
	ErrClosed = errors.New("sse: stream closed")

	// ErrTerminated is returned by Send after a success or error event.
	ErrTerminated = errors.New("sse: stream already terminated")
)

// DefaultKeepAlive is the interval between keep-alive comment frames.
const DefaultKeepAlive = 30 * time.Second

var (
	openFrame      = []byte(":\n\n")
	keepAliveFrame = []byte(": keepalive\n\n")
	dataPrefix     = []byte("data: ")
	frameEnd       = []byte("\n\n")
)

// SetHeaders applies the event-stream response headers through set, which is
// typically fiber's Ctx.Set or http.Header.Set.
func SetHeaders(set func(key, value string)) {
	set("Content-Type", "text/event-stream")
	set("Cache-Control", "no-cache")
	set("Connection", "keep-alive")
	set("X-Accel-Buffering", "no") // nginx
}

// FlushWriter is the destination of a Stream. *bufio.Writer satisfies it.
type FlushWriter interface {
	io.Writer
	Flush() error
}

// Option configures a Stream.
type Option func(*Stream)

// WithKeepAlive sets the keep-alive interval. Zero or negative disables it.
func WithKeepAlive(d time.Duration) Option {
	return func(s *Stream) { s.keepAlive = d }
}

// WithLogger sets the logger used for swallowed transport errors.
func WithLogger(l *zap.Logger) Option {
	return func(s *Stream) {
		if l != nil {
			s.logger = l
		}
	}
}

// Stream writes events to a long-lived response.
//
// A failed write means the client is gone: the stream closes itself and runs
// every registered cleanup exactly once. Send never panics; after close it
// returns ErrClosed. Writes from Send and from the keep-alive ticker are
// serialized.
type Stream struct {
	w         FlushWriter
	logger    *zap.Logger
	keepAlive time.Duration

	mu         sync.Mutex
	closed     bool
	terminated bool
	cleanups   []func()

	done        chan struct{}
	cleanupDone chan struct{}
	wg          sync.WaitGroup
}

// NewStream attaches a Stream to w. Response headers must already be set.
// An empty comment frame is written and flushed straight away so the headers
// reach the client before the first event.
func NewStream(w FlushWriter, opts ...Option) *Stream {
	s := &Stream{
		w:           w,
		logger:      zap.NewNop(),
		keepAlive:   DefaultKeepAlive,
		done:        make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.write(openFrame, false, false); err != nil {
		return s
	}

	if s.keepAlive > 0 {
		s.wg.Add(1)
		go s.keepAliveLoop()
	}

	return s
}

// Send writes ev as a single data frame and flushes it.
func (s *Stream) Send(ev Event) error {
	payload, err := Encode(ev)
	if err != nil {
		return err
	}

	frame := make([]byte, 0, len(dataPrefix)+len(payload)+len(frameEnd))
	frame = append(frame, dataPrefix...)
	frame = append(frame, payload...)
	frame = append(frame, frameEnd...)

	return s.write(frame, true, IsTerminal(ev))
}

// OnCleanup registers fn to run when the stream closes. Callbacks run once,
// in registration order; a panicking callback does not stop the others.
// Registering on a closed stream runs fn immediately.
func (s *Stream) OnCleanup(fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.runCleanup(fn)
		return
	}
	s.cleanups = append(s.cleanups, fn)
	s.mu.Unlock()
}

// Close ends the stream, runs cleanups and stops the keep-alive ticker.
// It is safe to call more than once but must not be called from a cleanup.
func (s *Stream) Close() {
	s.shutdown()
	<-s.cleanupDone
	s.wg.Wait()
}

// Done is closed when the stream closes.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Alive reports whether events can still be written.
func (s *Stream) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *Stream) write(frame []byte, isEvent, terminal bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if isEvent && s.terminated {
		s.mu.Unlock()
		return ErrTerminated
	}

	_, err := s.w.Write(frame)
	if err == nil {
		err = s.w.Flush()
	}
	if err == nil && terminal {
		s.terminated = true
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Debug("event stream write failed, closing", zap.Error(err))
		s.shutdown()
		return ErrClosed
	}
	return nil
}

func (s *Stream) keepAliveLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.write(keepAliveFrame, false, false); err != nil {
				return
			}
		}
	}
}

func (s *Stream) shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cleanups := s.cleanups
	s.cleanups = nil
	close(s.done)
	s.mu.Unlock()

	for _, fn := range cleanups {
		s.runCleanup(fn)
	}
	close(s.cleanupDone)
}

func (s *Stream) runCleanup(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("event stream cleanup panicked", zap.Any("panic", r))
		}
	}()
	fn()
}
