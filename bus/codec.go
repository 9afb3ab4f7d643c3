package bus

import (
	"bytes"
	"sort"
	"strconv"
	"time"
)

// --- MarketEvent ---

// ToFrame encodes e into a Frame for transport.
func (e MarketEvent) ToFrame() Frame {
	var buf bytes.Buffer
	buf.WriteByte(byte(e.Payload.Kind))
	writeString(&buf, e.Payload.Pair)
	switch e.Payload.Kind {
	case PayloadTick:
		writeDecimal(&buf, e.Payload.Tick.Bid)
		writeDecimal(&buf, e.Payload.Tick.Ask)
		writeDecimal(&buf, e.Payload.Tick.Last)
		writeDecimal(&buf, e.Payload.Tick.Volume24h)
		writeInt64(&buf, e.Payload.Tick.Timestamp.UnixNano())
	case PayloadSnapshot:
		writeLevels(&buf, e.Payload.Bids)
		writeLevels(&buf, e.Payload.Asks)
		writeUint64(&buf, uint64(e.Payload.Depth))
	case PayloadDelta:
		writeLevels(&buf, e.Payload.BidUpdates)
		writeLevels(&buf, e.Payload.AskUpdates)
		writeUint64(&buf, e.Payload.Sequence)
	}
	return Frame{Kind: KindMarket, Metadata: e.Metadata, Payload: buf.Bytes()}
}

// MarketEventFromFrame decodes f into a MarketEvent, returning a
// KindMismatch error if f was not encoded as a market event.
func MarketEventFromFrame(f Frame) (MarketEvent, error) {
	if err := expectKind(f, KindMarket); err != nil {
		return MarketEvent{}, err
	}
	r := bytes.NewReader(f.Payload)
	kindByte, err := r.ReadByte()
	if err != nil {
		return MarketEvent{}, deserializationError("market payload kind", err)
	}
	p := &MarketPayload{Kind: PayloadKind(kindByte)}
	if p.Pair, err = readString(r); err != nil {
		return MarketEvent{}, deserializationError("market payload pair", err)
	}
	switch p.Kind {
	case PayloadTick:
		if p.Tick.Bid, err = readDecimal(r); err != nil {
			return MarketEvent{}, deserializationError("tick bid", err)
		}
		if p.Tick.Ask, err = readDecimal(r); err != nil {
			return MarketEvent{}, deserializationError("tick ask", err)
		}
		if p.Tick.Last, err = readDecimal(r); err != nil {
			return MarketEvent{}, deserializationError("tick last", err)
		}
		if p.Tick.Volume24h, err = readDecimal(r); err != nil {
			return MarketEvent{}, deserializationError("tick volume", err)
		}
		nanos, err := readInt64(r)
		if err != nil {
			return MarketEvent{}, deserializationError("tick timestamp", err)
		}
		p.Tick.Timestamp = unixNanoUTC(nanos)
	case PayloadSnapshot:
		if p.Bids, err = readLevels(r); err != nil {
			return MarketEvent{}, deserializationError("snapshot bids", err)
		}
		if p.Asks, err = readLevels(r); err != nil {
			return MarketEvent{}, deserializationError("snapshot asks", err)
		}
		depth, err := readUint64(r)
		if err != nil {
			return MarketEvent{}, deserializationError("snapshot depth", err)
		}
		p.Depth = int(depth)
	case PayloadDelta:
		if p.BidUpdates, err = readLevels(r); err != nil {
			return MarketEvent{}, deserializationError("delta bid updates", err)
		}
		if p.AskUpdates, err = readLevels(r); err != nil {
			return MarketEvent{}, deserializationError("delta ask updates", err)
		}
		if p.Sequence, err = readUint64(r); err != nil {
			return MarketEvent{}, deserializationError("delta sequence", err)
		}
	}
	return MarketEvent{Metadata: f.Metadata, Payload: p}, nil
}

// --- SignalEvent ---

func (e SignalEvent) ToFrame() Frame {
	var buf bytes.Buffer
	writeUUID(&buf, e.Payload.StrategyID)
	writeString(&buf, e.Payload.AccountID)
	buf.WriteByte(byte(e.Payload.Priority))
	encodeSignal(&buf, e.Payload.Signal)
	return Frame{Kind: KindSignal, Metadata: e.Metadata, Payload: buf.Bytes()}
}

func SignalEventFromFrame(f Frame) (SignalEvent, error) {
	if err := expectKind(f, KindSignal); err != nil {
		return SignalEvent{}, err
	}
	r := bytes.NewReader(f.Payload)
	p := &SignalEventPayload{}
	var err error
	if p.StrategyID, err = readUUID(r); err != nil {
		return SignalEvent{}, deserializationError("signal strategy id", err)
	}
	if p.AccountID, err = readString(r); err != nil {
		return SignalEvent{}, deserializationError("signal account id", err)
	}
	var pr [1]byte
	if _, err := r.Read(pr[:]); err != nil {
		return SignalEvent{}, deserializationError("signal priority", err)
	}
	p.Priority = Priority(pr[0])
	if p.Signal, err = decodeSignal(r); err != nil {
		return SignalEvent{}, err
	}
	return SignalEvent{Metadata: f.Metadata, Payload: p}, nil
}

func encodeSignal(buf *bytes.Buffer, s StrategySignal) {
	writeString(buf, s.Exchange)
	writeString(buf, s.Symbol)
	buf.WriteByte(byte(s.Side))
	buf.WriteByte(byte(s.OrderType))
	writeDecimal(buf, s.Quantity)
	writeBool(buf, s.HasLimit)
	writeDecimal(buf, s.LimitPrice)
	writeUint64(buf, uint64(len(s.Metadata)))
	keys := make([]string, 0, len(s.Metadata))
	for k := range s.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys) // fixed key order keeps the encoding deterministic
	for _, k := range keys {
		writeString(buf, k)
		writeString(buf, s.Metadata[k])
	}
	// confidence encoded as its shortest decimal string representation to
	// keep the codec free of a separate float primitive.
	writeString(buf, decimalFromFloat(s.Confidence))
}

func decodeSignal(r *bytes.Reader) (StrategySignal, error) {
	var s StrategySignal
	var err error
	if s.Exchange, err = readString(r); err != nil {
		return s, deserializationError("signal exchange", err)
	}
	if s.Symbol, err = readString(r); err != nil {
		return s, deserializationError("signal symbol", err)
	}
	var sideByte, typeByte [1]byte
	if _, err := r.Read(sideByte[:]); err != nil {
		return s, deserializationError("signal side", err)
	}
	s.Side = Side(sideByte[0])
	if _, err := r.Read(typeByte[:]); err != nil {
		return s, deserializationError("signal order type", err)
	}
	s.OrderType = OrderType(typeByte[0])
	if s.Quantity, err = readDecimal(r); err != nil {
		return s, deserializationError("signal quantity", err)
	}
	if s.HasLimit, err = readBool(r); err != nil {
		return s, deserializationError("signal has_limit", err)
	}
	if s.LimitPrice, err = readDecimal(r); err != nil {
		return s, deserializationError("signal limit price", err)
	}
	n, err := readUint64(r)
	if err != nil {
		return s, deserializationError("signal metadata length", err)
	}
	if n > 0 {
		s.Metadata = make(map[string]string, n)
		for i := uint64(0); i < n; i++ {
			k, err := readString(r)
			if err != nil {
				return s, deserializationError("signal metadata key", err)
			}
			v, err := readString(r)
			if err != nil {
				return s, deserializationError("signal metadata value", err)
			}
			s.Metadata[k] = v
		}
	}
	confStr, err := readString(r)
	if err != nil {
		return s, deserializationError("signal confidence", err)
	}
	s.Confidence = floatFromDecimal(confStr)
	return s, nil
}

// --- OrderEvent ---

func (e OrderEvent) ToFrame() Frame {
	var buf bytes.Buffer
	o := e.Payload
	writeString(&buf, o.ID)
	writeString(&buf, o.Symbol)
	buf.WriteByte(byte(o.Side))
	buf.WriteByte(byte(o.Type))
	writeDecimal(&buf, o.Quantity)
	writeBool(&buf, o.HasPrice)
	writeDecimal(&buf, o.Price)
	buf.WriteByte(byte(o.Status))
	writeString(&buf, o.AccountID)
	writeInt64(&buf, o.CreatedAt.UnixNano())
	writeInt64(&buf, o.UpdatedAt.UnixNano())
	return Frame{Kind: KindOrder, Metadata: e.Metadata, Payload: buf.Bytes()}
}

func OrderEventFromFrame(f Frame) (OrderEvent, error) {
	if err := expectKind(f, KindOrder); err != nil {
		return OrderEvent{}, err
	}
	r := bytes.NewReader(f.Payload)
	o := &Order{}
	var err error
	if o.ID, err = readString(r); err != nil {
		return OrderEvent{}, deserializationError("order id", err)
	}
	if o.Symbol, err = readString(r); err != nil {
		return OrderEvent{}, deserializationError("order symbol", err)
	}
	var sideByte, typeByte, statusByte [1]byte
	if _, err := r.Read(sideByte[:]); err != nil {
		return OrderEvent{}, deserializationError("order side", err)
	}
	o.Side = Side(sideByte[0])
	if _, err := r.Read(typeByte[:]); err != nil {
		return OrderEvent{}, deserializationError("order type", err)
	}
	o.Type = OrderType(typeByte[0])
	if o.Quantity, err = readDecimal(r); err != nil {
		return OrderEvent{}, deserializationError("order quantity", err)
	}
	if o.HasPrice, err = readBool(r); err != nil {
		return OrderEvent{}, deserializationError("order has_price", err)
	}
	if o.Price, err = readDecimal(r); err != nil {
		return OrderEvent{}, deserializationError("order price", err)
	}
	if _, err := r.Read(statusByte[:]); err != nil {
		return OrderEvent{}, deserializationError("order status", err)
	}
	o.Status = OrderStatus(statusByte[0])
	if o.AccountID, err = readString(r); err != nil {
		return OrderEvent{}, deserializationError("order account id", err)
	}
	createdNanos, err := readInt64(r)
	if err != nil {
		return OrderEvent{}, deserializationError("order created_at", err)
	}
	o.CreatedAt = unixNanoUTC(createdNanos)
	updatedNanos, err := readInt64(r)
	if err != nil {
		return OrderEvent{}, deserializationError("order updated_at", err)
	}
	o.UpdatedAt = unixNanoUTC(updatedNanos)
	return OrderEvent{Metadata: f.Metadata, Payload: o}, nil
}

// --- ExecutionEvent ---

func (e ExecutionEvent) ToFrame() Frame {
	var buf bytes.Buffer
	x := e.Payload
	writeString(&buf, x.OrderID)
	writeString(&buf, x.Symbol)
	buf.WriteByte(byte(x.Side))
	writeDecimal(&buf, x.Quantity)
	writeDecimal(&buf, x.FillPrice)
	writeString(&buf, x.Venue)
	writeDecimal(&buf, x.Fees)
	writeInt64(&buf, x.Timestamp.UnixNano())
	return Frame{Kind: KindExecution, Metadata: e.Metadata, Payload: buf.Bytes()}
}

func ExecutionEventFromFrame(f Frame) (ExecutionEvent, error) {
	if err := expectKind(f, KindExecution); err != nil {
		return ExecutionEvent{}, err
	}
	r := bytes.NewReader(f.Payload)
	x := &Execution{}
	var err error
	if x.OrderID, err = readString(r); err != nil {
		return ExecutionEvent{}, deserializationError("execution order id", err)
	}
	if x.Symbol, err = readString(r); err != nil {
		return ExecutionEvent{}, deserializationError("execution symbol", err)
	}
	var sideByte [1]byte
	if _, err := r.Read(sideByte[:]); err != nil {
		return ExecutionEvent{}, deserializationError("execution side", err)
	}
	x.Side = Side(sideByte[0])
	if x.Quantity, err = readDecimal(r); err != nil {
		return ExecutionEvent{}, deserializationError("execution quantity", err)
	}
	if x.FillPrice, err = readDecimal(r); err != nil {
		return ExecutionEvent{}, deserializationError("execution fill price", err)
	}
	if x.Venue, err = readString(r); err != nil {
		return ExecutionEvent{}, deserializationError("execution venue", err)
	}
	if x.Fees, err = readDecimal(r); err != nil {
		return ExecutionEvent{}, deserializationError("execution fees", err)
	}
	nanos, err := readInt64(r)
	if err != nil {
		return ExecutionEvent{}, deserializationError("execution timestamp", err)
	}
	x.Timestamp = unixNanoUTC(nanos)
	return ExecutionEvent{Metadata: f.Metadata, Payload: x}, nil
}

// --- RiskEvent ---

func (e RiskEvent) ToFrame() Frame {
	var buf bytes.Buffer
	a := e.Payload
	buf.WriteByte(byte(a.Kind))
	writeString(&buf, decimalFromFloat(a.Factor))
	writeString(&buf, a.Reason)
	return Frame{Kind: KindRisk, Metadata: e.Metadata, Payload: buf.Bytes()}
}

func RiskEventFromFrame(f Frame) (RiskEvent, error) {
	if err := expectKind(f, KindRisk); err != nil {
		return RiskEvent{}, err
	}
	r := bytes.NewReader(f.Payload)
	a := &RiskAction{}
	kindByte, err := r.ReadByte()
	if err != nil {
		return RiskEvent{}, deserializationError("risk action kind", err)
	}
	a.Kind = RiskActionKind(kindByte)
	factorStr, err := readString(r)
	if err != nil {
		return RiskEvent{}, deserializationError("risk action factor", err)
	}
	a.Factor = floatFromDecimal(factorStr)
	if a.Reason, err = readString(r); err != nil {
		return RiskEvent{}, deserializationError("risk action reason", err)
	}
	return RiskEvent{Metadata: f.Metadata, Payload: a}, nil
}

// --- shared helpers ---

func unixNanoUTC(nanos int64) time.Time {
	return time.Unix(0, nanos).UTC()
}

// decimalFromFloat/floatFromDecimal round-trip a float64 through its
// shortest decimal string representation so the frame codec never needs a
// raw IEEE-754 primitive alongside the string-based decimal.Decimal codec.
func decimalFromFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func floatFromDecimal(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
