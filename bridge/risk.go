package bridge

import (
	"context"

	"github.com/ionflux/tradecore/bus"
	"github.com/ionflux/tradecore/telemetry"
)

// RiskLogger is the default risk topic handler: it emits structured
// diagnostics for every RiskAction (spec §4.7 "Risk logging: default
// handler emits structured diagnostics; other subsystems MAY subscribe to
// adjust exposure or halt executions"). It takes no enforcement action
// itself — a kill-switch/exposure-adjustment subscriber is a second,
// independent handler a host program may register alongside this one by
// composing handlers, since the dispatcher accepts only one handler slot
// per topic.
type RiskLogger struct {
	log *telemetry.Logger
}

// NewRiskLogger creates the default risk-topic diagnostics handler.
func NewRiskLogger(log *telemetry.Logger) *RiskLogger {
	return &RiskLogger{log: log}
}

// Handle is a dispatcher.Handler for the risk topic.
func (b *RiskLogger) Handle(ctx context.Context, event bus.Event) error {
	riskEvent, ok := event.(*bus.RiskEvent)
	if !ok {
		return nil
	}
	action := riskEvent.Payload
	switch action.Kind {
	case bus.RiskHaltAll:
		b.log.Errorw("risk: halt all", "reason", action.Reason)
	case bus.RiskResume:
		b.log.Infow("risk: resume", "reason", action.Reason)
	case bus.RiskAdjustExposure:
		b.log.Warnw("risk: adjust exposure", "factor", action.Factor)
	case bus.RiskAdvisory:
		b.log.Infow("risk: advisory", "reason", action.Reason)
	}
	return nil
}
