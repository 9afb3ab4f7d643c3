// Package external declares the contracts the core trading backbone
// consumes from collaborators that live outside this module's scope: the
// order manager, the exchange connector, and the portfolio. Only the
// interfaces are specified here — implementations (REST clients, database
// adapters, mock arbitrage endpoints) are explicitly out of scope per the
// system's purpose and live in a separate service layer.
package external

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/ionflux/tradecore/bus"
)

// OrderManager validates and tracks orders on behalf of an account. The
// Signal→Order bridge calls SubmitOrder; a validation/risk/fee/internal
// failure is surfaced to the bridge as a bus.KindUpstream error.
type OrderManager interface {
	SubmitOrder(ctx context.Context, symbol string, orderType bus.OrderType, side bus.Side, quantity decimal.Decimal, limitPrice decimal.Decimal, hasLimitPrice bool, accountID string) (orderID string, err error)
	GetOrder(ctx context.Context, orderID string) (bus.Order, error)
}

// ExchangeOrder is the connector's response to PlaceOrder: the exchange's
// own order id, an optional resting price, any immediate fills, lifecycle
// status and the exchange's timestamp for the action.
type ExchangeOrder struct {
	ID        string
	Price     decimal.Decimal
	HasPrice  bool
	Fills     []Fill
	Status    bus.OrderStatus
	Timestamp int64 // unix nanoseconds, exchange clock
}

// Fill is one partial or full execution reported inline with PlaceOrder's
// response.
type Fill struct {
	Price decimal.Decimal
	Size  decimal.Decimal
	Fee   decimal.Decimal
}

// StreamEventKind discriminates ExchangeConnector's market stream.
type StreamEventKind uint8

const (
	StreamTick StreamEventKind = iota
	StreamOrderUpdate
	StreamError
	StreamOther
)

// StreamEvent is one message from an exchange connector's market stream
// (spec §4.8): a Tick, an OrderUpdate, an Error, or an ignored Other.
type StreamEvent struct {
	Kind   StreamEventKind
	Symbol string
	Tick   bus.Tick
	Err    error
}

// ExchangeConnector is the abstraction surface for a trading venue. Wire
// formats (REST/WebSocket, exchange-specific JSON/binary frames) are the
// connector implementation's concern; only this interface is in scope
// here. A reference normalizer for Coinbase-shape feeds lives in this
// module's feed package (spec §4.4) but does not itself implement this
// interface — it is the ingestion half of the market-data pipeline, not an
// order-routing connector.
type ExchangeConnector interface {
	ExchangeID() string
	PlaceOrder(ctx context.Context, symbol string, side bus.Side, orderType bus.OrderType, quantity decimal.Decimal, price decimal.Decimal, hasPrice bool) (ExchangeOrder, error)
	StartMarketStream(ctx context.Context, symbols []string) (<-chan StreamEvent, error)
}

// Portfolio is the shared position/PnL state mutated by the
// Execution→Portfolio bridge. Implementations MUST protect concurrent
// access themselves (spec §5: "protected by a reader/writer lock;
// executions take the writer lock").
type Portfolio interface {
	UpdateFromExecution(ctx context.Context, execution bus.Execution) error
}
