package history

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

const (
	sendTimeout = 5 * time.Second
	queueSize   = 256
)

// Recorder fans events out to every sink from a background goroutine, so
// Record never waits on a sink. Delivery is best effort: sink errors are
// logged, and events are dropped when the queue is full.
type Recorder struct {
	sinks  []Sink
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	queue  chan Event
	done   chan struct{}
}

// NewRecorder returns a Recorder; a nil *Recorder is valid and drops events.
// Close must be called to flush queued events and stop the delivery goroutine.
func NewRecorder(logger *slog.Logger, sinks ...Sink) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{sinks: sinks, logger: logger}
	if len(sinks) > 0 {
		r.queue = make(chan Event, queueSize)
		r.done = make(chan struct{})
		go r.run()
	}
	return r
}

// Record stamps OccurredAt when unset and queues e for delivery.
func (r *Recorder) Record(e Event) {
	if r == nil || r.queue == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- e:
	default:
		r.logger.Warn("history queue full, event dropped", "kind", e.Kind, "type", e.Type)
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		r.send(e)
	}
}

func (r *Recorder) send(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	for _, s := range r.sinks {
		if err := s.Send(ctx, e); err != nil {
			r.logger.Warn("history sink failed", "kind", e.Kind, "type", e.Type, "error", err)
		}
	}
}

// Close delivers the queued events, then closes every sink that implements
// io.Closer. Events recorded after Close are dropped.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	if r.queue != nil {
		close(r.queue)
	}
	r.mu.Unlock()
	if r.done != nil {
		<-r.done
	}

	var first error
	for _, s := range r.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
