package bus

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestMetadataSequenceMonotonic(t *testing.T) {
	m1 := New(Source{Module: "test"}, PriorityNormal)
	m2 := New(Source{Module: "test"}, PriorityNormal)
	if !(m1.Sequence < m2.Sequence) {
		t.Fatalf("expected strictly increasing sequence, got %d then %d", m1.Sequence, m2.Sequence)
	}
}

func TestMetadataChildPreservesCorrelation(t *testing.T) {
	root := New(Source{Module: "root"}, PriorityNormal)
	child := root.Child(Source{Module: "child"}, PriorityHigh)

	if child.CorrelationID != root.CorrelationID {
		t.Fatalf("correlation id not preserved: root=%s child=%s", root.CorrelationID, child.CorrelationID)
	}
	if child.ParentSpanID != root.SpanID {
		t.Fatalf("parent span id mismatch: want %s got %s", root.SpanID, child.ParentSpanID)
	}
	if child.SpanID == root.SpanID {
		t.Fatalf("child span id must differ from parent")
	}
}

func TestPublishFIFOSingleProducer(t *testing.T) {
	b := NewBus(Capacities{Market: 8, Signal: 8, Order: 8, Execution: 8, Risk: 8})
	sender := b.Sender(KindRisk)
	receiver := b.Receiver(KindRisk)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		action := &RiskAction{Kind: RiskAdvisory, Reason: string(rune('a' + i))}
		meta := New(Source{Module: "test"}, PriorityNormal)
		if _, err := sender.Publish(ctx, RiskEvent{Metadata: meta, Payload: action}, Blocking, 0); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	for i := 0; i < 3; i++ {
		evt, err := receiver.Recv(ctx)
		if err != nil {
			t.Fatalf("recv %d: %v", i, err)
		}
		re := evt.(RiskEvent)
		if re.Payload.Reason != string(rune('a'+i)) {
			t.Fatalf("FIFO violated: want %c got %s", rune('a'+i), re.Payload.Reason)
		}
	}
}

func TestPublishTryModeFullReturnsErrFull(t *testing.T) {
	b := NewBus(Capacities{Market: 1, Signal: 1, Order: 1, Execution: 1, Risk: 1})
	sender := b.Sender(KindRisk)
	ctx := context.Background()

	action := &RiskAction{Kind: RiskHaltAll, Reason: "first"}
	meta := New(Source{Module: "test"}, PriorityCritical)
	if _, err := sender.Publish(ctx, RiskEvent{Metadata: meta, Payload: action}, Try, 0); err != nil {
		t.Fatalf("first publish should succeed: %v", err)
	}

	_, err := sender.Publish(ctx, RiskEvent{Metadata: meta, Payload: action}, Try, 0)
	if err == nil {
		t.Fatalf("expected ErrFull on second Try publish")
	}
	if be, ok := err.(*Error); !ok || be.Kind != KindChannelSend {
		t.Fatalf("expected ChannelSend error, got %v", err)
	}
}

func TestPublishTimeoutModeReturnsTimeout(t *testing.T) {
	b := NewBus(Capacities{Market: 1, Signal: 1, Order: 1, Execution: 1, Risk: 1})
	sender := b.Sender(KindRisk)
	ctx := context.Background()

	action := &RiskAction{Kind: RiskHaltAll}
	meta := New(Source{Module: "test"}, PriorityCritical)
	sender.Publish(ctx, RiskEvent{Metadata: meta, Payload: action}, Try, 0)

	start := time.Now()
	_, err := sender.Publish(ctx, RiskEvent{Metadata: meta, Payload: action}, Timeout, 20*time.Millisecond)
	elapsed := time.Since(start)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	be, ok := err.(*Error)
	if !ok || be.Kind != KindTimeout {
		t.Fatalf("expected Timeout kind, got %v", err)
	}
	if elapsed < 15*time.Millisecond {
		t.Fatalf("returned too early: %s", elapsed)
	}
}

func TestBackpressureIsPerTopic(t *testing.T) {
	b := NewBus(Capacities{Market: 1, Signal: 1024, Order: 1024, Execution: 1024, Risk: 1024})
	marketSender := b.Sender(KindMarket)
	signalSender := b.Sender(KindSignal)
	ctx := context.Background()

	meta := New(Source{Module: "test"}, PriorityNormal)
	tick := &MarketPayload{Kind: PayloadTick, Pair: "BTC-USD"}
	if _, err := marketSender.Publish(ctx, MarketEvent{Metadata: meta, Payload: tick}, Try, 0); err != nil {
		t.Fatalf("fill market topic: %v", err)
	}

	// Market topic is now full and nobody is draining it; the signal topic
	// must remain unaffected.
	for i := 0; i < 50; i++ {
		sig := &SignalEventPayload{AccountID: "acct", Signal: StrategySignal{Symbol: "BTC-USD"}}
		if _, err := signalSender.Publish(ctx, SignalEvent{Metadata: meta, Payload: sig}, Try, 0); err != nil {
			t.Fatalf("signal publish %d should not be blocked by full market topic: %v", i, err)
		}
	}
}

func TestFrameRoundTrip(t *testing.T) {
	meta := New(Source{Module: "risk"}, PriorityNormal)
	action := &RiskAction{Kind: RiskResume, Reason: "systems nominal"}
	evt := RiskEvent{Metadata: meta, Payload: action}

	frame := evt.ToFrame()
	encoded := frame.Encode()

	decoded, extra, err := DecodeFrame(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(extra) != 0 {
		t.Fatalf("unexpected trailing bytes: %d", len(extra))
	}

	roundTripped, err := RiskEventFromFrame(decoded)
	if err != nil {
		t.Fatalf("RiskEventFromFrame: %v", err)
	}
	if roundTripped.Metadata.CorrelationID != meta.CorrelationID {
		t.Fatalf("correlation id not preserved across frame round-trip")
	}
	if roundTripped.Payload.Kind != RiskResume {
		t.Fatalf("expected Resume action, got %v", roundTripped.Payload.Kind)
	}
	if roundTripped.Payload.Reason != "systems nominal" {
		t.Fatalf("reason not preserved: %q", roundTripped.Payload.Reason)
	}

	// encode(decode(encode(event))) must equal encode(event).
	reEncoded := roundTripped.ToFrame().Encode()
	if string(reEncoded) != string(encoded) {
		t.Fatalf("re-encoding decoded event did not reproduce original bytes")
	}
}

func TestFrameKindMismatch(t *testing.T) {
	meta := New(Source{Module: "risk"}, PriorityNormal)
	evt := RiskEvent{Metadata: meta, Payload: &RiskAction{Kind: RiskHaltAll}}
	frame := evt.ToFrame()

	_, err := SignalEventFromFrame(frame)
	if err == nil {
		t.Fatalf("expected KindMismatch error")
	}
	be, ok := err.(*Error)
	if !ok || be.Kind != KindMismatch {
		t.Fatalf("expected KindMismatch, got %v", err)
	}
	if be.Expected != KindSignal || be.Actual != KindRisk {
		t.Fatalf("unexpected mismatch fields: %+v", be)
	}
}

func TestMarketEventFrameRoundTripWithTrailingBytes(t *testing.T) {
	meta := New(Source{Module: "exchange.coinbase"}, PriorityHigh)
	payload := &MarketPayload{
		Kind: PayloadDelta,
		Pair: "BTC-USD",
		BidUpdates: []OrderBookLevel{
			{Price: decimal.NewFromFloat(100.00), Size: decimal.NewFromFloat(2.5)},
		},
		Sequence: 1,
	}
	evt := MarketEvent{Metadata: meta, Payload: payload}
	encoded := evt.ToFrame().Encode()
	encoded = append(encoded, 0xDE, 0xAD, 0xBE, 0xEF)

	decoded, extra, err := DecodeFrame(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(extra) != 4 {
		t.Fatalf("expected 4 trailing bytes, got %d", len(extra))
	}
	roundTripped, err := MarketEventFromFrame(decoded)
	if err != nil {
		t.Fatalf("MarketEventFromFrame: %v", err)
	}
	if roundTripped.Payload.Sequence != 1 || len(roundTripped.Payload.BidUpdates) != 1 {
		t.Fatalf("unexpected payload: %+v", roundTripped.Payload)
	}
}
