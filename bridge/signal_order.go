// Package bridge implements the core's four bridges between bus topics
// and external collaborators (spec §4.7): Signal→Order, Order→Execution,
// Execution→Portfolio, and default Risk logging. Every bridge publishes
// its output as a metadata child of its input, preserving correlation
// lineage across the chain.
package bridge

import (
	"context"
	"time"

	"github.com/ionflux/tradecore/bus"
	"github.com/ionflux/tradecore/external"
	"github.com/ionflux/tradecore/telemetry"
)

// SignalToOrder submits a strategy's signal to the external order manager
// and publishes the resulting order onto the order topic (spec §4.7
// "Signal→Order").
type SignalToOrder struct {
	orders external.OrderManager
	sender bus.Sender
	log    *telemetry.Logger
}

// NewSignalToOrder wires an OrderManager to the bus's order topic.
func NewSignalToOrder(orders external.OrderManager, sender bus.Sender, log *telemetry.Logger) *SignalToOrder {
	return &SignalToOrder{orders: orders, sender: sender, log: log}
}

// Handle is a dispatcher.Handler for the signal topic.
func (b *SignalToOrder) Handle(ctx context.Context, event bus.Event) error {
	sigEvent, ok := event.(*bus.SignalEvent)
	if !ok {
		return nil
	}
	payload := sigEvent.Payload
	sig := payload.Signal

	orderID, err := b.orders.SubmitOrder(ctx, sig.Symbol, sig.OrderType, sig.Side, sig.Quantity, sig.LimitPrice, sig.HasLimit, payload.AccountID)
	if err != nil {
		b.log.Errorw("order submission rejected", "symbol", sig.Symbol, "error", err)
		return bus.NewUpstreamError("submit_order", err)
	}

	order, err := b.orders.GetOrder(ctx, orderID)
	if err != nil {
		b.log.Errorw("failed to fetch submitted order", "order_id", orderID, "error", err)
		return bus.NewUpstreamError("get_order", err)
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	meta := sigEvent.Metadata.Child(bus.Source{Module: "bridge.signal_order"}, payload.Priority)
	orderEvent := &bus.OrderEvent{Metadata: meta, Payload: &order}
	_, err = b.sender.Publish(ctx, orderEvent, bus.Blocking, 0)
	return err
}
