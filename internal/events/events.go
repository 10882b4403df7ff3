// Package events carries relay outcomes from the control loop to slower
// consumers.
//
// The loop calls Emit, which never blocks: when the queue is full the
// event is counted and discarded. Run delivers queued events, each tagged
// with a UUID, to every Sink in order.
package events

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/coin-pulser/internal/logger"
	"github.com/sweeney/coin-pulser/internal/logic"
)

// DefaultQueueSize is the number of events buffered between loop and sinks.
const DefaultQueueSize = 64

// drainTimeout bounds delivery of queued events after shutdown begins.
const drainTimeout = 2 * time.Second

// Record is an Event with its delivery ID.
type Record struct {
	ID string
	logic.Event
}

// Sink consumes records. Handle runs on the dispatcher goroutine.
type Sink interface {
	Name() string
	Handle(ctx context.Context, r Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc struct {
	Label string
	Fn    func(ctx context.Context, r Record) error
}

func (s SinkFunc) Name() string { return s.Label }

func (s SinkFunc) Handle(ctx context.Context, r Record) error { return s.Fn(ctx, r) }

// Dispatcher fans events out to sinks.
type Dispatcher struct {
	queue chan logic.Event
	sinks []Sink
	log   *logger.Logger

	dropped atomic.Uint64

	// OnDrop, if set, is called from Emit for each discarded event.
	OnDrop func()

	newID func() string
}

// NewDispatcher creates a dispatcher. size <= 0 uses DefaultQueueSize.
func NewDispatcher(size int, log *logger.Logger, sinks ...Sink) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Dispatcher{
		queue: make(chan logic.Event, size),
		sinks: sinks,
		log:   log,
		newID: uuid.NewString,
	}
}

// Emit queues e without blocking. It reports false if e was discarded.
func (d *Dispatcher) Emit(e logic.Event) bool {
	select {
	case d.queue <- e:
		return true
	default:
		d.dropped.Add(1)
		if d.OnDrop != nil {
			d.OnDrop()
		}
		return false
	}
}

// Dropped returns the number of events discarded by Emit.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Run delivers events until ctx is cancelled, then flushes what is
// already queued. Cancelling ctx stops the loop but never aborts a
// delivery: sinks always see a live context.
func (d *Dispatcher) Run(ctx context.Context) {
	live := context.WithoutCancel(ctx)
	for {
		select {
		case e := <-d.queue:
			d.deliver(live, e)
		case <-ctx.Done():
			d.flush()
			return
		}
	}
}

func (d *Dispatcher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case e := <-d.queue:
			d.deliver(ctx, e)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e logic.Event) {
	r := Record{ID: d.newID(), Event: e}
	for _, s := range d.sinks {
		if err := s.Handle(ctx, r); err != nil {
			d.log.Warnw("event_sink_failed", "sink", s.Name(), "event_id", r.ID, "type", r.Type, "err", err)
		}
	}
}
