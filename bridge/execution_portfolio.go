package bridge

import (
	"context"

	"github.com/ionflux/tradecore/bus"
	"github.com/ionflux/tradecore/external"
	"github.com/ionflux/tradecore/telemetry"
)

// ExecutionToPortfolio mutates the shared portfolio once for every
// execution event (spec §4.7 "Execution→Portfolio"). Portfolio implementations own
// their own locking (spec §5: "protected by a reader/writer lock;
// executions take the writer lock").
type ExecutionToPortfolio struct {
	portfolio external.Portfolio
	log       *telemetry.Logger
}

// NewExecutionToPortfolio wires a Portfolio to the execution topic.
func NewExecutionToPortfolio(portfolio external.Portfolio, log *telemetry.Logger) *ExecutionToPortfolio {
	return &ExecutionToPortfolio{portfolio: portfolio, log: log}
}

// Handle is a dispatcher.Handler for the execution topic.
func (b *ExecutionToPortfolio) Handle(ctx context.Context, event bus.Event) error {
	execEvent, ok := event.(*bus.ExecutionEvent)
	if !ok {
		return nil
	}
	if err := b.portfolio.UpdateFromExecution(ctx, *execEvent.Payload); err != nil {
		b.log.Errorw("portfolio update failed", "order_id", execEvent.Payload.OrderID, "error", err)
		return bus.NewUpstreamError("update_from_execution", err)
	}
	return nil
}
