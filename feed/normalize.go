package feed

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ionflux/tradecore/book"
	"github.com/ionflux/tradecore/bus"
)

// envelope peeks at the one field every Coinbase-shape message carries,
// mirroring the teacher/pack's dispatch-by-envelope-field idiom
// (0xtitan6-polymarket-mm's dispatchMessage peeks "event_type" the same
// way).
type envelope struct {
	Type      string `json:"type"`
	ProductID string `json:"product_id"`
}

type tickerMessage struct {
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
	BestBid   string `json:"best_bid"`
	BestAsk   string `json:"best_ask"`
	Volume24h string `json:"volume_24h"`
	Time      string `json:"time"`
}

type snapshotMessage struct {
	ProductID string     `json:"product_id"`
	Bids      [][]string `json:"bids"` // [price, size]
	Asks      [][]string `json:"asks"`
}

type l2UpdateMessage struct {
	ProductID string     `json:"product_id"`
	Changes   [][]string `json:"changes"` // [side, price, size]
	Time      string     `json:"time"`
}

// Normalizer parses Coinbase-shape exchange frames into bus.MarketEvent,
// one Normalizer per venue (spec §4.4 "Normalizer (per exchange)"). It
// keeps one book.Book per pair so that l2update and snapshot messages can
// reuse the order book's level-apply/delta logic (C3) rather than
// duplicating it.
type Normalizer struct {
	venue string

	mu    sync.Mutex
	books map[string]*book.Book
	seqs  map[string]*uint64 // per-pair local monotonic sequence
}

// NewNormalizer creates a Normalizer for a named venue, used as the
// metadata source "exchange.<venue>" on every constructed event.
func NewNormalizer(venue string) *Normalizer {
	return &Normalizer{
		venue: venue,
		books: make(map[string]*book.Book),
		seqs:  make(map[string]*uint64),
	}
}

// Normalize parses one raw text/binary frame into zero or more
// MarketEvents. Malformed frames return a nil slice and a non-nil error;
// callers are expected to log and skip per spec §4.4 failure semantics
// ("Malformed frames: logged, skipped; stream continues").
func (n *Normalizer) Normalize(raw RawFrame) ([]*bus.MarketEvent, error) {
	if raw.Kind != FrameText && raw.Kind != FrameBinary {
		return nil, nil
	}

	var env envelope
	if err := json.Unmarshal(raw.Data, &env); err != nil {
		return nil, fmt.Errorf("normalize: not json: %w", err)
	}

	switch env.Type {
	case "ticker":
		return n.normalizeTicker(raw.Data)
	case "snapshot":
		return n.normalizeSnapshot(raw.Data)
	case "l2update":
		return n.normalizeL2Update(raw.Data)
	default:
		return nil, nil
	}
}

func (n *Normalizer) source() bus.Source {
	return bus.Source{Module: "exchange." + n.venue}
}

func (n *Normalizer) newEvent(payload *bus.MarketPayload) *bus.MarketEvent {
	meta := bus.New(n.source(), bus.PriorityHigh)
	return &bus.MarketEvent{Metadata: meta, Payload: payload}
}

func (n *Normalizer) normalizeTicker(data []byte) ([]*bus.MarketEvent, error) {
	var msg tickerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("normalize ticker: %w", err)
	}
	last, err := decimal.NewFromString(msg.Price)
	if err != nil {
		return nil, fmt.Errorf("normalize ticker price: %w", err)
	}
	bid, _ := decimal.NewFromString(msg.BestBid)
	ask, _ := decimal.NewFromString(msg.BestAsk)
	volume, _ := decimal.NewFromString(msg.Volume24h)
	ts := parseTimeOrNow(msg.Time)

	payload := &bus.MarketPayload{
		Kind: bus.PayloadTick,
		Pair: msg.ProductID,
		Tick: bus.Tick{Bid: bid, Ask: ask, Last: last, Volume24h: volume, Timestamp: ts},
	}
	return []*bus.MarketEvent{n.newEvent(payload)}, nil
}

func (n *Normalizer) normalizeSnapshot(data []byte) ([]*bus.MarketEvent, error) {
	var msg snapshotMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("normalize snapshot: %w", err)
	}
	b := n.bookFor(msg.ProductID)

	var events []*bus.MarketEvent
	for _, lvl := range msg.Bids {
		if ev, err := n.applyLevel(b, msg.ProductID, book.Buy, lvl); err == nil {
			events = append(events, ev)
		}
	}
	for _, lvl := range msg.Asks {
		if ev, err := n.applyLevel(b, msg.ProductID, book.Sell, lvl); err == nil {
			events = append(events, ev)
		}
	}
	return events, nil
}

func (n *Normalizer) normalizeL2Update(data []byte) ([]*bus.MarketEvent, error) {
	var msg l2UpdateMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("normalize l2update: %w", err)
	}
	b := n.bookFor(msg.ProductID)

	var events []*bus.MarketEvent
	for _, change := range msg.Changes {
		if len(change) != 3 {
			continue
		}
		side := book.Buy
		if change[0] == "sell" {
			side = book.Sell
		}
		ev, err := n.applyLevel(b, msg.ProductID, side, change[1:])
		if err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// applyLevel applies one [price, size] level to the pair's book and wraps
// the resulting delta as a MarketEvent, assigning the pair's next
// sequence number (exchange-supplied sequencing isn't present in any of
// these three Coinbase message shapes, so a local per-pair monotonic
// counter is used throughout — spec §4.4: "derived from the exchange
// where available, else a local monotonic counter").
func (n *Normalizer) applyLevel(b *book.Book, pair string, side book.Side, priceSize []string) (*bus.MarketEvent, error) {
	if len(priceSize) != 2 {
		return nil, fmt.Errorf("normalize: malformed level %v", priceSize)
	}
	price, err := decimal.NewFromString(priceSize[0])
	if err != nil {
		return nil, fmt.Errorf("normalize: price: %w", err)
	}
	size, err := decimal.NewFromString(priceSize[1])
	if err != nil {
		return nil, fmt.Errorf("normalize: size: %w", err)
	}
	seq := n.nextSequence(pair)
	delta := b.Apply(book.Update{Side: side, Price: price, Size: size, Sequence: seq})
	return n.newEvent(&delta), nil
}

func (n *Normalizer) bookFor(pair string) *book.Book {
	n.mu.Lock()
	defer n.mu.Unlock()
	b, ok := n.books[pair]
	if !ok {
		b = book.New(pair)
		n.books[pair] = b
	}
	return b
}

func (n *Normalizer) nextSequence(pair string) uint64 {
	n.mu.Lock()
	counter, ok := n.seqs[pair]
	if !ok {
		var c uint64
		counter = &c
		n.seqs[pair] = counter
	}
	n.mu.Unlock()
	return atomic.AddUint64(counter, 1)
}

func parseTimeOrNow(raw string) time.Time {
	if raw == "" {
		return time.Now().UTC()
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Now().UTC()
	}
	return ts
}
