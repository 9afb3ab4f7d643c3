package sandbox

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ionflux/tradecore/bus"
)

// toStrategySignal decodes the wire-level fields a strategy module wrote
// (decimal amounts and enum variants as lowercase strings, matching
// bus.Side/bus.OrderType's own String() output) into a bus.StrategySignal.
func (s wasmStrategySignal) toStrategySignal() (bus.StrategySignal, error) {
	side, err := parseSide(s.Side)
	if err != nil {
		return bus.StrategySignal{}, err
	}
	orderType, err := parseOrderType(s.OrderType)
	if err != nil {
		return bus.StrategySignal{}, err
	}
	quantity, err := decimal.NewFromString(s.Quantity)
	if err != nil {
		return bus.StrategySignal{}, fmt.Errorf("quantity: %w", err)
	}

	exchange := ""
	if s.Exchange != nil {
		exchange = *s.Exchange
	}

	var limit decimal.Decimal
	hasLimit := s.LimitPrice != nil
	if hasLimit {
		limit, err = decimal.NewFromString(*s.LimitPrice)
		if err != nil {
			return bus.StrategySignal{}, fmt.Errorf("limit_price: %w", err)
		}
	}

	return bus.StrategySignal{
		Exchange:   exchange,
		Symbol:     s.Symbol,
		Side:       side,
		OrderType:  orderType,
		Quantity:   quantity,
		LimitPrice: limit,
		HasLimit:   hasLimit,
		Confidence: s.Confidence,
	}, nil
}

func parseSide(s string) (bus.Side, error) {
	switch strings.ToLower(s) {
	case "buy":
		return bus.Buy, nil
	case "sell":
		return bus.Sell, nil
	default:
		return 0, fmt.Errorf("side: unknown value %q", s)
	}
}

func parseOrderType(s string) (bus.OrderType, error) {
	switch strings.ToLower(s) {
	case "market":
		return bus.Market, nil
	case "limit":
		return bus.Limit, nil
	case "stop":
		return bus.Stop, nil
	case "stop_limit":
		return bus.StopLimit, nil
	case "iceberg":
		return bus.Iceberg, nil
	case "twap":
		return bus.TWAP, nil
	case "vwap":
		return bus.VWAP, nil
	default:
		return 0, fmt.Errorf("order_type: unknown value %q", s)
	}
}
