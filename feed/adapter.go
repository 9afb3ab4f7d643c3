package feed

import (
	"strings"

	"github.com/ionflux/tradecore/bus"
	"github.com/ionflux/tradecore/external"
)

// StreamAdapter maps an external.ExchangeConnector's market stream onto
// MarketEvents (spec §4.8). It is a thin translation layer, distinct from
// Normalizer: a connector's StreamEvent is already a decoded Tick (or an
// OrderUpdate/Error/Other the adapter doesn't carry as market data),
// whereas Normalizer parses raw exchange wire bytes.
type StreamAdapter struct {
	venue string
}

// NewStreamAdapter creates an adapter attributing every constructed event
// to source "exchange.<venue>".
func NewStreamAdapter(venue string) *StreamAdapter {
	return &StreamAdapter{venue: venue}
}

// Adapt maps one external.StreamEvent to a MarketEvent. Only StreamTick
// produces an event; StreamOrderUpdate and StreamOther are not market
// data and are ignored here (callers route OrderUpdate events elsewhere);
// StreamError is returned as an upstream error.
func (a *StreamAdapter) Adapt(ev external.StreamEvent) (*bus.MarketEvent, error) {
	switch ev.Kind {
	case external.StreamTick:
		payload := &bus.MarketPayload{
			Kind: bus.PayloadTick,
			Pair: derivePair(ev.Symbol),
			Tick: ev.Tick,
		}
		meta := bus.New(bus.Source{Module: "exchange." + a.venue}, bus.PriorityHigh)
		return &bus.MarketEvent{Metadata: meta, Payload: payload}, nil
	case external.StreamError:
		return nil, bus.NewUpstreamError("exchange stream error", ev.Err)
	default:
		return nil, nil
	}
}

// derivePair splits a connector's symbol on its delimiter into a
// "BASE-QUOTE"-shaped pair string; an unrecognized shape maps to "?"
// (spec §4.8: "deriving a trading pair from the symbol (splitting on
// delimiter; unknown → \"?\")").
func derivePair(symbol string) string {
	for _, delim := range []string{"-", "/", "_"} {
		if base, quote, ok := strings.Cut(symbol, delim); ok && base != "" && quote != "" {
			return base + "-" + quote
		}
	}
	return "?"
}
