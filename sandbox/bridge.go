package sandbox

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ionflux/tradecore/bus"
	"github.com/ionflux/tradecore/telemetry"
)

// Bridge runs evaluations against a Sandbox and publishes every emitted
// signal onto the bus's signal topic (spec §4.6 "Core Bridge 2:
// Signal→..." starts from signals published this way). Each signal is
// wrapped in a child of the caller-supplied parent Metadata, with source
// "strategy.<name>" and the evaluation id as the source instance.
type Bridge struct {
	name      string
	accountID uuid.UUID
	sandbox   *Sandbox
	sender    bus.Sender
	log       *telemetry.Logger
}

// NewBridge wires a named strategy's Sandbox to the bus's signal topic.
func NewBridge(name string, accountID uuid.UUID, sb *Sandbox, sender bus.Sender, log *telemetry.Logger) *Bridge {
	return &Bridge{name: name, accountID: accountID, sandbox: sb, sender: sender, log: log}
}

// Evaluate runs one evaluation and publishes each emitted signal as a
// SignalEvent. A KindStrategyTimeout or KindSandbox failure is logged and
// returned to the caller without publishing anything, matching the spec's
// "discarded" contract for a deadline breach.
func (b *Bridge) Evaluate(ctx context.Context, evalCtx StrategyContext, parent bus.Metadata, priority bus.Priority) (Decision, error) {
	decision, err := b.sandbox.Evaluate(ctx, evalCtx)
	if err != nil {
		b.log.Warnw("strategy evaluation failed", "strategy", b.name, "error", err)
		return Decision{}, err
	}

	source := bus.Source{Module: fmt.Sprintf("strategy.%s", b.name), Instance: evalCtx.EvaluationID.String()}
	for _, sig := range decision.Signals {
		meta := parent.Child(source, priority)
		payload := &bus.SignalEventPayload{
			StrategyID: evalCtx.EvaluationID,
			AccountID:  b.accountID.String(),
			Priority:   priority,
			Signal:     sig,
		}
		evt := &bus.SignalEvent{Metadata: meta, Payload: payload}
		if _, err := b.sender.Publish(ctx, evt, bus.Blocking, 0); err != nil {
			b.log.Errorw("failed to publish strategy signal", "strategy", b.name, "error", err)
		}
	}
	for _, line := range decision.Logs {
		b.log.Infow("strategy log", "strategy", b.name, "line", line)
	}
	return decision, nil
}
