package ollama

import (
	"context"
	"io"
	"sync"

	"go.uber.org/zap"
)

// Tracker holds the requests and response readers currently in flight so
// that all of them can be aborted at once. One Tracker is owned by each server
// instance and shared by every client it creates.
type Tracker struct {
	logger *zap.Logger

	mu       sync.Mutex
	nextID   uint64
	requests map[uint64]context.CancelFunc
	readers  map[uint64]io.Closer
}

// NewTracker creates an empty Tracker.
func NewTracker(logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		logger:   logger,
		requests: make(map[uint64]context.CancelFunc),
		readers:  make(map[uint64]io.Closer),
	}
}

// Track derives a cancellable context for one request. The returned release
// func must be called when the request ends; it also cancels the context.
func (t *Tracker) Track(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.requests[id] = cancel
	t.mu.Unlock()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.requests, id)
			t.mu.Unlock()
			cancel()
		})
	}
}

// TrackReader records an open response body until release is called.
func (t *Tracker) TrackReader(r io.Closer) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.readers[id] = r
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.readers, id)
		t.mu.Unlock()
	}
}

// StopAll aborts every tracked request and closes every tracked reader.
// It returns the number of requests aborted; with nothing in flight it is a
// no-op that returns zero.
func (t *Tracker) StopAll() int {
	t.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(t.requests))
	for id, cancel := range t.requests {
		cancels = append(cancels, cancel)
		delete(t.requests, id)
	}
	readers := make([]io.Closer, 0, len(t.readers))
	for id, r := range t.readers {
		readers = append(readers, r)
		delete(t.readers, id)
	}
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	for _, r := range readers {
		if err := r.Close(); err != nil {
			t.logger.Debug("error closing upstream reader", zap.Error(err))
		}
	}

	if len(cancels) > 0 {
		t.logger.Info("stopped in-flight llm requests", zap.Int("requests", len(cancels)))
	}
	return len(cancels)
}

// Active is the number of requests in flight.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requests)
}

// Readers is the number of open response bodies.
func (t *Tracker) Readers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.readers)
}
