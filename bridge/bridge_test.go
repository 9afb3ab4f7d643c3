package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ionflux/tradecore/bus"
	"github.com/ionflux/tradecore/external"
	"github.com/ionflux/tradecore/telemetry"
)

type fakeOrderManager struct {
	submitted []string
}

func (f *fakeOrderManager) SubmitOrder(ctx context.Context, symbol string, orderType bus.OrderType, side bus.Side, quantity decimal.Decimal, limitPrice decimal.Decimal, hasLimitPrice bool, accountID string) (string, error) {
	id := "ord-1"
	f.submitted = append(f.submitted, id)
	return id, nil
}

func (f *fakeOrderManager) GetOrder(ctx context.Context, orderID string) (bus.Order, error) {
	return bus.Order{
		ID:        orderID,
		Symbol:    "BTC-USD",
		Side:      bus.Buy,
		Type:      bus.Market,
		Quantity:  decimal.RequireFromString("0.01"),
		Status:    bus.OrderOpen,
		AccountID: "acct-1",
		CreatedAt: time.Now().UTC(),
	}, nil
}

type fakeExchangeConnector struct {
	fills []external.Fill
}

func (fakeExchangeConnector) ExchangeID() string { return "coinbase" }

func (f fakeExchangeConnector) PlaceOrder(ctx context.Context, symbol string, side bus.Side, orderType bus.OrderType, quantity decimal.Decimal, price decimal.Decimal, hasPrice bool) (external.ExchangeOrder, error) {
	fills := f.fills
	if fills == nil {
		fills = []external.Fill{
			{Price: decimal.RequireFromString("50000"), Size: quantity, Fee: decimal.RequireFromString("0.1")},
		}
	}
	return external.ExchangeOrder{
		ID:        "exch-1",
		Status:    bus.OrderFilled,
		Fills:     fills,
		Timestamp: time.Now().UnixNano(),
	}, nil
}

func (fakeExchangeConnector) StartMarketStream(ctx context.Context, symbols []string) (<-chan external.StreamEvent, error) {
	return make(chan external.StreamEvent), nil
}

type fakePortfolio struct {
	updates []bus.Execution
}

func (f *fakePortfolio) UpdateFromExecution(ctx context.Context, execution bus.Execution) error {
	f.updates = append(f.updates, execution)
	return nil
}

func testLogger() *telemetry.Logger {
	return telemetry.NewDevelopmentLogger("test")
}

// TestSignalToOrderHappyPath covers the signal-to-order path: a signal
// event produces an order event carrying the signal's metadata lineage.
func TestSignalToOrderHappyPath(t *testing.T) {
	b := bus.NewBus(bus.DefaultCapacities())
	orders := &fakeOrderManager{}
	bridgeHandler := NewSignalToOrder(orders, b.Sender(bus.KindOrder), testLogger())

	parentMeta := bus.New(bus.Source{Module: "strategy.mean-reversion"}, bus.PriorityNormal)
	sigEvent := &bus.SignalEvent{
		Metadata: parentMeta,
		Payload: &bus.SignalEventPayload{
			StrategyID: uuid.New(),
			AccountID:  "acct-1",
			Priority:   bus.PriorityNormal,
			Signal: bus.StrategySignal{
				Exchange:  "coinbase",
				Symbol:    "BTC-USD",
				Side:      bus.Buy,
				OrderType: bus.Market,
				Quantity:  decimal.RequireFromString("0.01"),
			},
		},
	}

	ctx := context.Background()
	if err := bridgeHandler.Handle(ctx, sigEvent); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	receiver := b.Receiver(bus.KindOrder)
	event, err := receiver.TryRecv()
	if err != nil {
		t.Fatalf("expected an order event, got error: %v", err)
	}
	orderEvent, ok := event.(*bus.OrderEvent)
	if !ok {
		t.Fatalf("expected *bus.OrderEvent, got %T", event)
	}
	if orderEvent.Metadata.CorrelationID != parentMeta.CorrelationID {
		t.Fatalf("expected lineage to carry parent correlation id")
	}
	if orderEvent.Metadata.ParentSpanID != parentMeta.SpanID {
		t.Fatalf("expected lineage to mark the signal's span as parent")
	}
	if orderEvent.Payload.Symbol != "BTC-USD" {
		t.Fatalf("unexpected order payload: %+v", orderEvent.Payload)
	}
}

// TestExecutionUpdatesPortfolio covers the order-execution-to-portfolio
// path end to end: an order event produces an execution, and the
// execution updates the portfolio.
func TestExecutionUpdatesPortfolio(t *testing.T) {
	b := bus.NewBus(bus.DefaultCapacities())
	orderToExec := NewOrderToExecution("coinbase", fakeExchangeConnector{}, b.Sender(bus.KindExecution), testLogger())
	portfolio := &fakePortfolio{}
	execToPortfolio := NewExecutionToPortfolio(portfolio, testLogger())

	orderMeta := bus.New(bus.Source{Module: "bridge.signal_order"}, bus.PriorityNormal)
	orderEvent := &bus.OrderEvent{
		Metadata: orderMeta,
		Payload: &bus.Order{
			ID:       "ord-1",
			Symbol:   "BTC-USD",
			Side:     bus.Buy,
			Type:     bus.Market,
			Quantity: decimal.RequireFromString("0.01"),
			Status:   bus.OrderOpen,
		},
	}

	ctx := context.Background()
	if err := orderToExec.Handle(ctx, orderEvent); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	receiver := b.Receiver(bus.KindExecution)
	event, err := receiver.TryRecv()
	if err != nil {
		t.Fatalf("expected an execution event, got error: %v", err)
	}
	execEvent, ok := event.(*bus.ExecutionEvent)
	if !ok {
		t.Fatalf("expected *bus.ExecutionEvent, got %T", event)
	}

	if err := execToPortfolio.Handle(ctx, execEvent); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(portfolio.updates) != 1 {
		t.Fatalf("expected one portfolio update, got %d", len(portfolio.updates))
	}
	if !portfolio.updates[0].Quantity.Equal(decimal.RequireFromString("0.01")) {
		t.Fatalf("unexpected execution quantity: %s", portfolio.updates[0].Quantity)
	}
}

// TestOrderToExecutionAggregatesMultipleFillsIntoOneExecution covers a
// multi-fill order: the bridge must publish exactly one Execution, with
// fees summed across fills and the order's own quantity reported, not a
// per-fill total.
func TestOrderToExecutionAggregatesMultipleFillsIntoOneExecution(t *testing.T) {
	b := bus.NewBus(bus.DefaultCapacities())
	connector := fakeExchangeConnector{
		fills: []external.Fill{
			{Price: decimal.RequireFromString("50000"), Size: decimal.RequireFromString("0.006"), Fee: decimal.RequireFromString("0.05")},
			{Price: decimal.RequireFromString("50010"), Size: decimal.RequireFromString("0.004"), Fee: decimal.RequireFromString("0.03")},
		},
	}
	orderToExec := NewOrderToExecution("coinbase", connector, b.Sender(bus.KindExecution), testLogger())

	orderMeta := bus.New(bus.Source{Module: "bridge.signal_order"}, bus.PriorityNormal)
	orderEvent := &bus.OrderEvent{
		Metadata: orderMeta,
		Payload: &bus.Order{
			ID:       "ord-2",
			Symbol:   "BTC-USD",
			Side:     bus.Buy,
			Type:     bus.Market,
			Quantity: decimal.RequireFromString("0.01"),
			Status:   bus.OrderOpen,
		},
	}

	ctx := context.Background()
	if err := orderToExec.Handle(ctx, orderEvent); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	receiver := b.Receiver(bus.KindExecution)
	event, err := receiver.TryRecv()
	if err != nil {
		t.Fatalf("expected an execution event, got error: %v", err)
	}
	execEvent, ok := event.(*bus.ExecutionEvent)
	if !ok {
		t.Fatalf("expected *bus.ExecutionEvent, got %T", event)
	}
	if !execEvent.Payload.Quantity.Equal(decimal.RequireFromString("0.01")) {
		t.Fatalf("expected order quantity to flow through unchanged, got %s", execEvent.Payload.Quantity)
	}
	if !execEvent.Payload.Fees.Equal(decimal.RequireFromString("0.08")) {
		t.Fatalf("expected fees summed across fills, got %s", execEvent.Payload.Fees)
	}
	if !execEvent.Payload.FillPrice.Equal(decimal.RequireFromString("50000")) {
		t.Fatalf("expected fill price from the first fill (no resting/limit price set), got %s", execEvent.Payload.FillPrice)
	}

	if _, err := receiver.TryRecv(); err == nil {
		t.Fatalf("expected exactly one execution event for a multi-fill order, got a second")
	}
}
