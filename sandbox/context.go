package sandbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ionflux/tradecore/bus"
)

// MaxMarketSnapshots bounds how many market payloads a single
// StrategyContext carries, keeping the serialized context a fixed
// upper-bound size regardless of how many pairs a strategy subscribes to
// (spec §4.5: the context is "a small, fixed-shape snapshot", not an
// unbounded feed replay). Callers with more live pairs than this should
// pick the most relevant subset themselves.
const MaxMarketSnapshots = 16

// StrategyContext is the input to one evaluate() call: the account and
// evaluation identifiers, the evaluation's wall-clock timestamp, and up
// to MaxMarketSnapshots current market snapshots.
type StrategyContext struct {
	AccountID    string
	EvaluationID uuid.UUID
	Timestamp    time.Time
	Markets      []bus.MarketPayload // truncated to MaxMarketSnapshots on encode
}

// wireMarketSnapshot is the JSON shape one market snapshot takes on the
// wire, mirroring _examples/original_source/crates/strategy-engine/src/
// traits.rs's MarketSnapshot{symbol,bid,ask,last,timestamp}.
type wireMarketSnapshot struct {
	Symbol    string    `json:"symbol"`
	Bid       string    `json:"bid"`
	Ask       string    `json:"ask"`
	Last      string    `json:"last"`
	Timestamp time.Time `json:"timestamp"`
}

// wireStrategyContext is the JSON shape StrategyContext takes on the
// wire, mirroring the original's SerializableContext. Decimal amounts
// travel as strings so no precision is lost crossing the host/guest
// boundary, the same reason bus/frame.go never encodes a decimal as a
// float.
type wireStrategyContext struct {
	AccountID    string               `json:"account_id"`
	EvaluationID uuid.UUID            `json:"evaluation_id"`
	Timestamp    time.Time            `json:"timestamp"`
	Snapshots    []wireMarketSnapshot `json:"snapshots"`
}

// encode serializes c to the JSON bytes a module's evaluate(ptr,len)
// export receives, the same serde_json::to_vec step the original takes
// before handing the bytes to the module's memory.
func (c StrategyContext) encode() ([]byte, error) {
	markets := c.Markets
	if len(markets) > MaxMarketSnapshots {
		markets = markets[:MaxMarketSnapshots]
	}
	snapshots := make([]wireMarketSnapshot, len(markets))
	for i, m := range markets {
		snapshots[i] = wireMarketSnapshot{
			Symbol:    m.Pair,
			Bid:       m.Tick.Bid.String(),
			Ask:       m.Tick.Ask.String(),
			Last:      m.Tick.Last.String(),
			Timestamp: m.Tick.Timestamp,
		}
	}
	return json.Marshal(wireStrategyContext{
		AccountID:    c.AccountID,
		EvaluationID: c.EvaluationID,
		Timestamp:    c.Timestamp,
		Snapshots:    snapshots,
	})
}

// DecodeStrategyContext reverses encode, for tests and reference modules
// that want to inspect what the host handed them rather than operate on
// raw bytes.
func DecodeStrategyContext(raw []byte) (StrategyContext, error) {
	var wire wireStrategyContext
	if err := json.Unmarshal(raw, &wire); err != nil {
		return StrategyContext{}, err
	}
	markets := make([]bus.MarketPayload, len(wire.Snapshots))
	for i, s := range wire.Snapshots {
		markets[i] = bus.MarketPayload{
			Kind: bus.PayloadTick,
			Pair: s.Symbol,
			Tick: bus.Tick{Bid: mustDecimal(s.Bid), Ask: mustDecimal(s.Ask), Last: mustDecimal(s.Last), Timestamp: s.Timestamp},
		}
	}
	return StrategyContext{AccountID: wire.AccountID, EvaluationID: wire.EvaluationID, Timestamp: wire.Timestamp, Markets: markets}, nil
}

// mustDecimal parses s, falling back to zero on malformed input rather
// than panicking — DecodeStrategyContext exists for tests and debugging
// tools, not the hot evaluation path, so a best-effort zero is preferable
// to aborting the whole decode over one bad field.
func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
