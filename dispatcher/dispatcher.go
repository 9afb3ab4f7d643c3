// Package dispatcher implements the backbone's cooperative event
// multiplexer (spec §4.6): one handler per topic, a single loop selecting
// across all five topic receivers, and an explicit shutdown protocol.
package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/ionflux/tradecore/bus"
	"github.com/ionflux/tradecore/telemetry"
)

var errShutdown = errors.New("dispatcher: shutdown requested")

// Handler processes one event drained from its topic. An error return
// propagates to the dispatcher's caller and, under the default policy,
// terminates the loop (spec §4.6: "an error return from a handler
// propagates and terminates the loop unless the implementation chooses to
// demote to a log-and-continue policy").
type Handler func(ctx context.Context, event bus.Event) error

// ErrorPolicy selects what the dispatcher does when a Handler returns an
// error.
type ErrorPolicy uint8

const (
	// PolicyPropagate stops the dispatcher loop and returns the handler's
	// error to Run's caller. This is the default (spec §9 Open Questions:
	// "dispatcher handler error policy defaults to propagate").
	PolicyPropagate ErrorPolicy = iota
	// PolicyLogAndContinue logs the handler's error and keeps draining.
	PolicyLogAndContinue
)

// topicOrder fixes the priority used when more than one topic has a
// ready event in the same drain pass: risk (control-plane) first, then
// the order-lifecycle chain, then signals, then raw market data. The spec
// leaves cross-topic order unspecified; this order is a documented policy
// choice, not a correctness requirement (spec §4.6: "across topics, order
// is unspecified").
var topicOrder = [5]bus.EventKind{bus.KindRisk, bus.KindExecution, bus.KindOrder, bus.KindSignal, bus.KindMarket}

// Controller is the shutdown handle: Stop sets a flag and wakes the
// dispatcher loop so it exits after the current iteration (spec §4.6
// "Shutdown protocol: a dedicated flag+notifier pair").
type Controller struct {
	stop    chan struct{}
	stopped bool
}

// NewController creates an un-stopped Controller.
func NewController() *Controller {
	return &Controller{stop: make(chan struct{})}
}

// Stop requests shutdown. Safe to call more than once.
func (c *Controller) Stop() {
	if c.stopped {
		return
	}
	c.stopped = true
	close(c.stop)
}

// Dispatcher owns one Receiver per topic and at most one Handler per
// topic, registered at build time (spec §4.6: "Accepts at most one
// handler per topic").
type Dispatcher struct {
	b          *bus.Bus
	handlers   [5]Handler
	policy     ErrorPolicy
	controller *Controller
	log        *telemetry.Logger
}

// New creates a Dispatcher over b with the given error policy.
func New(b *bus.Bus, policy ErrorPolicy, log *telemetry.Logger) *Dispatcher {
	return &Dispatcher{b: b, policy: policy, controller: NewController(), log: log}
}

// Controller returns the shutdown handle for this dispatcher.
func (d *Dispatcher) Controller() *Controller {
	return d.controller
}

// Register installs the handler for kind. Registering a second handler
// for the same kind replaces the first — the spec's "at most one handler
// per topic" is enforced by construction (a single slot per kind), not by
// rejecting the call.
func (d *Dispatcher) Register(kind bus.EventKind, h Handler) {
	d.handlers[kind] = h
}

// Run drives the single cooperative loop until ctx is cancelled, the
// controller is stopped, or (under PolicyPropagate) a handler returns an
// error. Within a single topic, events are delivered to the handler in
// FIFO order (spec §4.6 "Ordering").
func (d *Dispatcher) Run(ctx context.Context) error {
	receivers := [5]bus.Receiver{
		bus.KindMarket:    d.b.Receiver(bus.KindMarket),
		bus.KindSignal:    d.b.Receiver(bus.KindSignal),
		bus.KindOrder:     d.b.Receiver(bus.KindOrder),
		bus.KindExecution: d.b.Receiver(bus.KindExecution),
		bus.KindRisk:      d.b.Receiver(bus.KindRisk),
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.controller.stop:
			return nil
		default:
		}

		event, kind, ok := d.pollOnce(receivers)
		if !ok {
			// Nothing ready across any topic right now: block on whichever
			// topic produces next, or on shutdown/cancellation.
			var err error
			event, kind, err = d.blockForNext(ctx, receivers)
			if errors.Is(err, errShutdown) {
				return nil
			}
			if err != nil {
				return err
			}
		}

		handler := d.handlers[kind]
		if handler == nil {
			continue
		}
		if err := handler(ctx, event); err != nil {
			if d.policy == PolicyPropagate {
				return fmt.Errorf("dispatcher: handler for %s: %w", kind, err)
			}
			d.log.Errorw("handler error, continuing", "topic", kind, "error", err)
		}
	}
}

// pollOnce does one non-blocking priority-ordered pass over every topic,
// mirroring the teacher's tryProcessNextSignalWithEffects priority-select
// idiom generalized from three hardcoded signal channels to the bus's
// five EventKind topics.
func (d *Dispatcher) pollOnce(receivers [5]bus.Receiver) (bus.Event, bus.EventKind, bool) {
	for _, kind := range topicOrder {
		select {
		case e, ok := <-receivers[kind].Chan():
			if ok {
				return e, kind, true
			}
		default:
		}
	}
	return nil, 0, false
}

// blockForNext waits for the next event across any topic when a full
// priority pass found nothing ready, so the loop doesn't spin.
func (d *Dispatcher) blockForNext(ctx context.Context, receivers [5]bus.Receiver) (bus.Event, bus.EventKind, error) {
	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	case <-d.controller.stop:
		return nil, 0, errShutdown
	case e := <-receivers[bus.KindRisk].Chan():
		return e, bus.KindRisk, nil
	case e := <-receivers[bus.KindExecution].Chan():
		return e, bus.KindExecution, nil
	case e := <-receivers[bus.KindOrder].Chan():
		return e, bus.KindOrder, nil
	case e := <-receivers[bus.KindSignal].Chan():
		return e, bus.KindSignal, nil
	case e := <-receivers[bus.KindMarket].Chan():
		return e, bus.KindMarket, nil
	}
}
