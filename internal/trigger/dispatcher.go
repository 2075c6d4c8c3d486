package trigger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/thewrongjames/steamwhistle/internal/docstore"
)

// Event is what a write trigger receives: the committed change plus the
// placeholder values captured from the document path.
type Event struct {
	docstore.Change
	Params map[string]string
}

// Handler reacts to one document write. Returned errors are logged and the
// invocation is not retried.
type Handler func(ctx context.Context, ev Event) error

type route struct {
	name    string
	pattern Pattern
	handler Handler
}

type invocation struct {
	route route
	event Event
}

// Dispatcher fans committed document changes out to registered write
// triggers. Invocations run on a fixed pool of workers, each under its own
// deadline. It implements docstore.ChangeSink.
type Dispatcher struct {
	size    int
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.RWMutex
	routes  []route
	stopped bool
	stop    chan struct{}

	jobs     chan invocation
	inflight sync.WaitGroup
	senders  sync.WaitGroup
}

// NewDispatcher creates a dispatcher with size workers. A non-positive
// timeout disables the per-invocation deadline.
func NewDispatcher(size int, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if size <= 0 {
		size = 1
	}
	return &Dispatcher{
		size:    size,
		timeout: timeout,
		logger:  logger,
		jobs:    make(chan invocation, size*16),
		stop:    make(chan struct{}),
	}
}

// OnWrite registers handler for creates, updates and deletes of documents
// matching pattern.
func (d *Dispatcher) OnWrite(name string, pattern Pattern, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.routes = append(d.routes, route{name: name, pattern: pattern, handler: handler})
}

// Start launches the worker goroutines. Once ctx is cancelled, queued
// invocations are dropped and later publishes are ignored.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.size; i++ {
		go d.worker(ctx, i)
	}
	go d.shutdown(ctx)
}

// shutdown releases every invocation that will never run once ctx ends.
func (d *Dispatcher) shutdown(ctx context.Context) {
	<-ctx.Done()

	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	close(d.stop)

	// No new sends can start now; let pending hand-offs settle first.
	d.senders.Wait()

	dropped := 0
	for {
		select {
		case <-d.jobs:
			d.inflight.Done()
			dropped++
		default:
			if dropped > 0 {
				d.logger.Warn("dropped queued trigger invocations on shutdown", zap.Int("count", dropped))
			}
			return
		}
	}
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	d.logger.Debug("trigger worker started", zap.Int("worker", id))
	for {
		select {
		case inv := <-d.jobs:
			d.run(ctx, inv)
		case <-ctx.Done():
			d.logger.Debug("trigger worker shutting down", zap.Int("worker", id))
			return
		}
	}
}

// Publish queues one invocation per matching trigger. It never blocks the
// writer: when the queue is full the hand-off happens on its own goroutine.
func (d *Dispatcher) Publish(change docstore.Change) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		d.logger.Debug("dispatcher stopped, ignoring change", zap.String("path", change.Path))
		return
	}

	for _, r := range d.routes {
		params, ok := r.pattern.Match(change.Path)
		if !ok {
			continue
		}
		inv := invocation{route: r, event: Event{Change: change, Params: params}}
		d.inflight.Add(1)
		select {
		case d.jobs <- inv:
		default:
			d.senders.Add(1)
			go d.handOff(inv)
		}
	}
}

func (d *Dispatcher) handOff(inv invocation) {
	defer d.senders.Done()
	select {
	case d.jobs <- inv:
	case <-d.stop:
		d.inflight.Done()
	}
}

// Wait blocks until every queued or running invocation has finished,
// including invocations caused by writes made from inside triggers.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

func (d *Dispatcher) run(ctx context.Context, inv invocation) {
	defer d.inflight.Done()

	log := d.logger.With(
		zap.String("trigger", inv.route.name),
		zap.String("path", inv.event.Path),
		zap.String("event_id", inv.event.EventID),
	)

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	err := d.invoke(ctx, inv)
	if err != nil {
		log.Error("trigger invocation failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
		return
	}
	log.Debug("trigger invocation complete", zap.Duration("duration", time.Since(start)))
}

func (d *Dispatcher) invoke(ctx context.Context, inv invocation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("trigger panicked: %v", r)
		}
	}()
	return inv.route.handler(ctx, inv.event)
}
