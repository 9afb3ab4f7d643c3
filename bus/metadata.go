// Package bus implements the event-driven trading backbone's bounded,
// priority-aware, multi-topic in-process event bus: typed envelopes with
// lineage metadata, a wire frame format, and per-kind bounded channels with
// three publish modes.
package bus

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// EventKind is the closed set of topics the bus owns one queue per.
type EventKind uint8

const (
	KindMarket EventKind = iota
	KindSignal
	KindOrder
	KindExecution
	KindRisk
)

func (k EventKind) String() string {
	switch k {
	case KindMarket:
		return "market"
	case KindSignal:
		return "signal"
	case KindOrder:
		return "order"
	case KindExecution:
		return "execution"
	case KindRisk:
		return "risk"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// Priority orders events for dispatch preference and control-plane urgency.
// Normal is the default.
type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("Priority(%d)", uint8(p))
	}
}

// sequenceCounter is the process-wide strictly monotonic sequence source.
// A single atomic counter, initialized at process start, is the only
// global mutable state this package needs (spec §9, "Global mutable
// state").
var sequenceCounter uint64

func nextSequence() uint64 {
	return atomic.AddUint64(&sequenceCounter, 1)
}

// Source identifies the module (and optional instance) that emitted an
// event, e.g. "exchange.coinbase" or "strategy.mean-reversion".
type Source struct {
	Module   string
	Instance string
}

func (s Source) String() string {
	if s.Instance == "" {
		return s.Module
	}
	return s.Module + "." + s.Instance
}

// Metadata is attached to every envelope on the bus. It is immutable once
// constructed; New, WithCorrelation and Child are the only ways to produce
// one, and each assigns a fresh, strictly increasing Sequence.
type Metadata struct {
	CorrelationID uuid.UUID
	SpanID        uuid.UUID
	ParentSpanID  uuid.UUID // zero value (uuid.Nil) when there is no parent
	Sequence      uint64
	Timestamp     time.Time
	Priority      Priority
	Source        Source
}

// New creates root metadata: a fresh correlation id and span id, no parent.
func New(source Source, priority Priority) Metadata {
	return Metadata{
		CorrelationID: uuid.New(),
		SpanID:        uuid.New(),
		Sequence:      nextSequence(),
		Timestamp:     time.Now().UTC(),
		Priority:      priority,
		Source:        source,
	}
}

// WithCorrelation creates root-shaped metadata (no parent span) that joins
// an existing lineage by correlation id, e.g. for a bridge reacting to an
// externally-supplied correlation.
func WithCorrelation(correlationID uuid.UUID, source Source, priority Priority) Metadata {
	return Metadata{
		CorrelationID: correlationID,
		SpanID:        uuid.New(),
		Sequence:      nextSequence(),
		Timestamp:     time.Now().UTC(),
		Priority:      priority,
		Source:        source,
	}
}

// Child derives metadata for the next hop in a processing lineage: the
// correlation id is preserved, ParentSpanID is set to this metadata's own
// SpanID, and a fresh SpanID and Sequence are assigned.
func (m Metadata) Child(source Source, priority Priority) Metadata {
	return Metadata{
		CorrelationID: m.CorrelationID,
		SpanID:        uuid.New(),
		ParentSpanID:  m.SpanID,
		Sequence:      nextSequence(),
		Timestamp:     time.Now().UTC(),
		Priority:      priority,
		Source:        source,
	}
}
