// Package book maintains per-instrument Level 2 order book state: a
// price→size mapping per side with best-price queries and delta emission.
// Grounded on 0xtitan6-polymarket-mm's internal/market.Book (an
// RWMutex-guarded snapshot holder with derived BestBidAsk), adapted from a
// replace-the-whole-snapshot model to the per-level delta semantics spec
// §4.3 requires: applying (price, 0) removes a level, applying (price,
// size>0) sets it, and each applied update emits a single-level delta.
package book

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/ionflux/tradecore/bus"
)

// Side is re-exported from bus so callers only need one Side type across
// the backbone.
type Side = bus.Side

const (
	Buy  = bus.Buy
	Sell = bus.Sell
)

// Update is a single (side, price, size, sequence) instruction applied to
// a book. size == 0 removes the level; size > 0 sets it.
type Update struct {
	Side     Side
	Price    decimal.Decimal
	Size     decimal.Decimal
	Sequence uint64
}

// Book is the exclusive owner of L2 state for one trading pair. It is not
// safe to share a Book across more than one normalizer goroutine for
// writes, but reads (Best, Snapshot) are safe to call concurrently (spec
// §3 "Ownership": "exclusively owned by the normalizer for a given
// instrument").
type Book struct {
	mu   sync.RWMutex
	pair string

	bids map[string]decimal.Decimal // key: Price.String() for exact comparisons
	asks map[string]decimal.Decimal

	bidDepthHint int
	askDepthHint int
}

// New creates an empty book for pair.
func New(pair string) *Book {
	return &Book{
		pair: pair,
		bids: make(map[string]decimal.Decimal),
		asks: make(map[string]decimal.Decimal),
	}
}

// Pair returns the instrument this book tracks.
func (b *Book) Pair() string { return b.pair }

// Apply applies u to the book and returns the single-level delta event
// payload it produces (spec §4.3: "applying an update emits an
// OrderBookDelta carrying only the changed side's single level").
func (b *Book) Apply(u Update) bus.MarketPayload {
	b.mu.Lock()
	defer b.mu.Unlock()

	level := bus.OrderBookLevel{Price: u.Price, Size: u.Size}
	side := b.sideMap(u.Side)
	key := u.Price.String()

	if u.Size.IsZero() {
		delete(side, key)
	} else {
		side[key] = u.Size
	}
	b.updateDepthHint(u.Side)

	payload := bus.MarketPayload{
		Kind:     bus.PayloadDelta,
		Pair:     b.pair,
		Sequence: u.Sequence,
	}
	if u.Side == Buy {
		payload.BidUpdates = []bus.OrderBookLevel{level}
	} else {
		payload.AskUpdates = []bus.OrderBookLevel{level}
	}
	return payload
}

func (b *Book) sideMap(side Side) map[string]decimal.Decimal {
	if side == Buy {
		return b.bids
	}
	return b.asks
}

// updateDepthHint must be called with mu held.
func (b *Book) updateDepthHint(side Side) {
	if side == Buy {
		if n := len(b.bids); n > b.bidDepthHint {
			b.bidDepthHint = n
		}
		return
	}
	if n := len(b.asks); n > b.askDepthHint {
		b.askDepthHint = n
	}
}

// Best returns the best price on side: the maximum price for Buy, the
// minimum price for Sell. ok is false when that side is empty.
func (b *Book) Best(side Side) (price decimal.Decimal, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	levels := b.bids
	if side == Sell {
		levels = b.asks
	}
	if len(levels) == 0 {
		return decimal.Decimal{}, false
	}

	first := true
	for key := range levels {
		p, err := decimal.NewFromString(key)
		if err != nil {
			continue // unreachable: keys are always written via Price.String()
		}
		if first {
			price = p
			first = false
			continue
		}
		if side == Buy && p.GreaterThan(price) {
			price = p
		} else if side == Sell && p.LessThan(price) {
			price = p
		}
	}
	if first {
		return decimal.Decimal{}, false
	}
	return price, true
}

// Levels returns the current levels on side, in no particular order (spec
// §3: "vectors sorted arbitrarily by implementation but consumers must not
// assume ordering"). Zero-size levels never appear (spec §4.3).
func (b *Book) Levels(side Side) []bus.OrderBookLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()

	levels := b.bids
	if side == Sell {
		levels = b.asks
	}
	out := make([]bus.OrderBookLevel, 0, len(levels))
	for key, size := range levels {
		p, err := decimal.NewFromString(key)
		if err != nil {
			continue
		}
		out = append(out, bus.OrderBookLevel{Price: p, Size: size})
	}
	return out
}

// DepthHint returns the maximum number of simultaneously-held levels ever
// observed on side, for consumers sizing fixed-capacity snapshot buffers.
func (b *Book) DepthHint(side Side) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if side == Buy {
		return b.bidDepthHint
	}
	return b.askDepthHint
}

// Snapshot returns a full OrderBookSnapshot payload for the book's current
// state, e.g. for an initial subscriber handshake.
func (b *Book) Snapshot() bus.MarketPayload {
	bids := b.Levels(Buy)
	asks := b.Levels(Sell)
	depth := len(bids)
	if len(asks) > depth {
		depth = len(asks)
	}
	return bus.MarketPayload{
		Kind:  bus.PayloadSnapshot,
		Pair:  b.pair,
		Bids:  bids,
		Asks:  asks,
		Depth: depth,
	}
}
