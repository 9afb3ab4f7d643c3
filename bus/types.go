package bus

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side is a buy/sell direction shared by signals, orders and executions.
type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Sell {
		return "sell"
	}
	return "buy"
}

// OrderType enumerates the order shapes a strategy may request.
type OrderType uint8

const (
	Market OrderType = iota
	Limit
	Stop
	StopLimit
	Iceberg
	TWAP
	VWAP
)

func (t OrderType) String() string {
	switch t {
	case Market:
		return "market"
	case Limit:
		return "limit"
	case Stop:
		return "stop"
	case StopLimit:
		return "stop_limit"
	case Iceberg:
		return "iceberg"
	case TWAP:
		return "twap"
	case VWAP:
		return "vwap"
	default:
		return "unknown"
	}
}

// OrderStatus is the external order manager's lifecycle state for an Order.
type OrderStatus uint8

const (
	OrderPending OrderStatus = iota
	OrderOpen
	OrderFilled
	OrderPartiallyFilled
	OrderCancelled
	OrderRejected
)

func (s OrderStatus) String() string {
	switch s {
	case OrderPending:
		return "pending"
	case OrderOpen:
		return "open"
	case OrderFilled:
		return "filled"
	case OrderPartiallyFilled:
		return "partially_filled"
	case OrderCancelled:
		return "cancelled"
	case OrderRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// OrderBookLevel is a single price/size pair on one side of a book.
type OrderBookLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Tick is a best-bid/ask/last/volume snapshot for a trading pair.
type Tick struct {
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Last      decimal.Decimal
	Volume24h decimal.Decimal
	Timestamp time.Time
}

// PayloadKind discriminates MarketPayload's closed variant set.
type PayloadKind uint8

const (
	PayloadTick PayloadKind = iota
	PayloadSnapshot
	PayloadDelta
)

// MarketPayload is the closed, exhaustively-matched variant carried by a
// MarketEvent: exactly one of Tick, Snapshot or Delta is meaningful,
// selected by Kind.
type MarketPayload struct {
	Kind PayloadKind
	Pair string

	// PayloadTick
	Tick Tick

	// PayloadSnapshot
	Bids  []OrderBookLevel
	Asks  []OrderBookLevel
	Depth int

	// PayloadDelta
	BidUpdates []OrderBookLevel
	AskUpdates []OrderBookLevel
	Sequence   uint64
}

// StrategySignal is a strategy's trading decision, independent of account
// routing (that's carried alongside it in SignalEventPayload).
type StrategySignal struct {
	Exchange    string
	Symbol      string
	Side        Side
	OrderType   OrderType
	Quantity    decimal.Decimal
	LimitPrice  decimal.Decimal // meaningful only for price-bearing order types
	HasLimit    bool
	Confidence  float64 // in [0,1]
	Metadata    map[string]string
}

// SignalEventPayload is the payload carried by a SignalEvent.
type SignalEventPayload struct {
	StrategyID uuid.UUID
	AccountID  string
	Priority   Priority
	Signal     StrategySignal
}

// Order is the external order manager's representation of a submitted
// order (spec §3, "Order (from external collaborator)").
type Order struct {
	ID          string
	Symbol      string
	Side        Side
	Type        OrderType
	Quantity    decimal.Decimal
	Price       decimal.Decimal
	HasPrice    bool
	Status      OrderStatus
	AccountID   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Execution is the single result of one placed order, built by the
// Order→Execution bridge from every fill the exchange connector reported.
type Execution struct {
	OrderID   string
	Symbol    string
	Side      Side
	Quantity  decimal.Decimal
	FillPrice decimal.Decimal
	Venue     string
	Fees      decimal.Decimal
	Timestamp time.Time
}

// RiskActionKind is RiskAction's closed variant tag.
type RiskActionKind uint8

const (
	RiskHaltAll RiskActionKind = iota
	RiskResume
	RiskAdjustExposure
	RiskAdvisory
)

// RiskAction is the control-plane directive carried by a RiskEvent.
type RiskAction struct {
	Kind   RiskActionKind
	Factor float64 // meaningful only for RiskAdjustExposure, in [0,1]
	Reason string  // meaningful for RiskHaltAll/RiskResume/RiskAdvisory
}
