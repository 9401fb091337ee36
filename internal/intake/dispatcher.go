// Package intake applies observed browser events to the tab registry.
package intake

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"mediasniff/internal/classifier"
	"mediasniff/internal/domain"
	"mediasniff/internal/storage"
)

// ErrStopped is returned by Do once the dispatch loop has exited.
var ErrStopped = errors.New("dispatcher stopped")

// Sink accepts events from an observation source.
type Sink interface {
	Submit(ctx context.Context, ev domain.Event) error
}

// Dispatcher queues events and applies them to a Registry from a single
// goroutine, so each event is fully handled before the next one starts.
type Dispatcher struct {
	reg     storage.Registry
	events  chan domain.Event
	stopped chan struct{}
	log     logrus.FieldLogger
}

// NewDispatcher creates a dispatcher with room for buffer pending events.
func NewDispatcher(reg storage.Registry, buffer int, logger logrus.FieldLogger) *Dispatcher {
	if buffer < 1 {
		buffer = 1
	}
	return &Dispatcher{
		reg:     reg,
		events:  make(chan domain.Event, buffer),
		stopped: make(chan struct{}),
		log:     logger.WithField("component", "dispatcher"),
	}
}

// Submit queues ev. It blocks while the queue is full and gives up when ctx
// is done.
func (d *Dispatcher) Submit(ctx context.Context, ev domain.Event) error {
	if ev == nil {
		return nil
	}
	select {
	case d.events <- ev:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("submit %T for tab %d: %w", ev, ev.TabID(), ctx.Err())
	}
}

// QueryFunc reads or changes the registry from inside the dispatch loop.
type QueryFunc func(ctx context.Context, reg storage.Registry) error

// query runs a QueryFunc in order with the observed events.
type query struct {
	tab  domain.TabID
	fn   QueryFunc
	done chan error
}

func (q query) TabID() domain.TabID { return q.tab }

// Do runs fn on the dispatch goroutine after every event submitted before it
// and waits for the result. If ctx ends first, fn may still run later.
func (d *Dispatcher) Do(ctx context.Context, tabID domain.TabID, fn QueryFunc) error {
	q := query{tab: tabID, fn: fn, done: make(chan error, 1)}
	if err := d.Submit(ctx, q); err != nil {
		return err
	}
	select {
	case err := <-q.done:
		return err
	case <-d.stopped:
		return ErrStopped
	case <-ctx.Done():
		return fmt.Errorf("query for tab %d: %w", tabID, ctx.Err())
	}
}

// Run processes events until ctx is cancelled. It must be called at most once.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.stopped)
	d.log.Info("Dispatcher started")
	for {
		select {
		case <-ctx.Done():
			d.log.Info("Dispatcher stopped")
			return
		case ev := <-d.events:
			if err := d.Apply(ctx, ev); err != nil {
				d.log.WithError(err).WithField("tab_id", ev.TabID()).Warn("Failed to apply event")
			}
		}
	}
}

// Apply handles a single event synchronously.
func (d *Dispatcher) Apply(ctx context.Context, ev domain.Event) error {
	switch e := ev.(type) {
	case query:
		err := e.fn(ctx, d.reg)
		e.done <- err
		return err
	case domain.RequestStarted:
		if classifier.MatchesExtension(e.URL) {
			return d.reg.Record(ctx, e.Tab, e.URL)
		}
	case domain.HeadersReceived:
		if classifier.MatchesContentType(e.Headers) {
			return d.reg.Record(ctx, e.Tab, e.URL)
		}
	case domain.PageMedia:
		for _, link := range e.Links {
			if err := d.reg.Record(ctx, e.Tab, link); err != nil {
				return err
			}
		}
		if len(e.Links) > 0 {
			d.log.WithFields(logrus.Fields{
				"tab_id": e.Tab,
				"count":  len(e.Links),
			}).Debug("Added media links from page")
		}
	case domain.TabClosed:
		return d.reg.Evict(ctx, e.Tab)
	default:
		d.log.WithField("type", fmt.Sprintf("%T", ev)).Debug("Ignoring unknown event")
	}
	return nil
}
