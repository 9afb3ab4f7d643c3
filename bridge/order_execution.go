package bridge

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ionflux/tradecore/bus"
	"github.com/ionflux/tradecore/external"
	"github.com/ionflux/tradecore/telemetry"
)

// OrderToExecution routes a validated order to an exchange connector and
// publishes the resulting fills as a single Execution (spec §4.7
// "Order→Execution": "translates the exchange response... into an
// Execution"; spec §3: "Execution events mutate the portfolio snapshot
// exactly once"). One connector is addressed per venue; callers wire a
// bridge per exchange they route to.
type OrderToExecution struct {
	venue  string
	conn   external.ExchangeConnector
	sender bus.Sender
	log    *telemetry.Logger
}

// NewOrderToExecution wires a named ExchangeConnector to the bus's
// execution topic.
func NewOrderToExecution(venue string, conn external.ExchangeConnector, sender bus.Sender, log *telemetry.Logger) *OrderToExecution {
	return &OrderToExecution{venue: venue, conn: conn, sender: sender, log: log}
}

// Handle is a dispatcher.Handler for the order topic.
func (b *OrderToExecution) Handle(ctx context.Context, event bus.Event) error {
	orderEvent, ok := event.(*bus.OrderEvent)
	if !ok {
		return nil
	}
	order := orderEvent.Payload

	exchangeOrder, err := b.conn.PlaceOrder(ctx, order.Symbol, order.Side, order.Type, order.Quantity, order.Price, order.HasPrice)
	if err != nil {
		b.log.Errorw("place_order failed", "order_id", order.ID, "error", err)
		return bus.NewUpstreamError("place_order", err)
	}

	execution := &bus.Execution{
		OrderID:   order.ID,
		Symbol:    order.Symbol,
		Side:      order.Side,
		Quantity:  order.Quantity,
		FillPrice: fillPrice(exchangeOrder, order),
		Venue:     b.venue,
		Fees:      totalFees(exchangeOrder.Fills),
		Timestamp: time.Unix(0, exchangeOrder.Timestamp).UTC(),
	}
	meta := orderEvent.Metadata.Child(bus.Source{Module: "bridge.order_execution"}, bus.PriorityHigh)
	executionEvent := &bus.ExecutionEvent{Metadata: meta, Payload: execution}
	_, err = b.sender.Publish(ctx, executionEvent, bus.Blocking, 0)
	return err
}

// fillPrice resolves the single price an aggregated Execution reports,
// preferring the exchange's resting price, then the order's own limit
// price, then the first fill's price, falling back to zero when none of
// those are available.
func fillPrice(exchangeOrder external.ExchangeOrder, order bus.Order) decimal.Decimal {
	if exchangeOrder.HasPrice {
		return exchangeOrder.Price
	}
	if order.HasPrice {
		return order.Price
	}
	if len(exchangeOrder.Fills) > 0 {
		return exchangeOrder.Fills[0].Price
	}
	return decimal.Zero
}

// totalFees sums the fee reported by every fill into the aggregated
// Execution's single fee figure.
func totalFees(fills []external.Fill) decimal.Decimal {
	total := decimal.Zero
	for _, fill := range fills {
		total = total.Add(fill.Fee)
	}
	return total
}
