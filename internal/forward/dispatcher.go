package forward

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	queueSize   = 256
	maxAttempts = 3
	sinkTimeout = 30 * time.Second
)

// defaultBackoff holds the delays before the second and third attempts.
var defaultBackoff = [maxAttempts]time.Duration{
	0,
	2 * time.Second,
	10 * time.Second,
}

// Dispatcher queues events and hands each one to every sink from a single
// background worker.
type Dispatcher struct {
	sinks   []Sink
	logger  *slog.Logger
	queue   chan *Event
	wg      sync.WaitGroup

	// mu orders sends on queue against closing done.
	mu     sync.Mutex
	closed bool
	done   chan struct{}

	backoff [maxAttempts]time.Duration // per-instance; tests override
}

// NewDispatcher creates a Dispatcher and starts its worker.
func NewDispatcher(logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		sinks:   sinks,
		logger:  logger,
		queue:   make(chan *Event, queueSize),
		done:    make(chan struct{}),
		backoff: defaultBackoff,
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Enqueue adds an event to the queue without blocking. It returns false and
// drops the event if the queue is full or the dispatcher is closed.
func (d *Dispatcher) Enqueue(e *Event) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- e:
		return true
	default:
		d.logger.Warn("forward queue full, dropping event",
			"kind", e.Kind, "message_id", e.MessageID())
		return false
	}
}

// Close stops accepting events, delivers what is already queued and waits for
// the worker to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.done)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case e := <-d.queue:
			d.Dispatch(context.Background(), e)
		case <-d.done:
			for {
				select {
				case e := <-d.queue:
					d.Dispatch(context.Background(), e)
				default:
					return
				}
			}
		}
	}
}

// Dispatch hands e to every sink synchronously, retrying failed sinks. It
// returns the number of sinks that gave up.
func (d *Dispatcher) Dispatch(ctx context.Context, e *Event) int {
	failed := 0
	for _, s := range d.sinks {
		if !d.deliver(ctx, s, e) {
			failed++
		}
	}
	return failed
}

func (d *Dispatcher) deliver(ctx context.Context, s Sink, e *Event) bool {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if wait := d.backoff[attempt]; wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return false
			case <-t.C:
			}
		}

		sctx, cancel := context.WithTimeout(ctx, sinkTimeout)
		err := s.Forward(sctx, e)
		cancel()
		if err == nil {
			return true
		}
		d.logger.Warn("forward failed",
			"sink", s.Name(), "kind", e.Kind, "message_id", e.MessageID(),
			"attempt", attempt+1, "error", err)
	}
	d.logger.Error("forward exhausted retries",
		"sink", s.Name(), "kind", e.Kind, "message_id", e.MessageID())
	return false
}
