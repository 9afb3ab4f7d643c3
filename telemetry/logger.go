// Package telemetry provides the backbone's two logging tiers: a
// structured zap logger for component diagnostics (grounded on
// uhyunpark-hyperlicked, the one pack repo that wires zap directly), and a
// small buffered line logger for the strategy sandbox's captured
// evaluation output (adapted from the teacher's host/library/utils.Logger).
package telemetry

import (
	"go.uber.org/zap"
)

// Logger is the structured diagnostic logger shared across the feed,
// dispatcher and bridges.
type Logger = zap.SugaredLogger

// NewLogger builds a production zap logger with a "component" field
// pre-populated, matching the teacher/pack convention of scoping loggers
// per subsystem (e.g. 0xtitan6-polymarket-mm's logger.With("component", ...)).
func NewLogger(component string) *Logger {
	base, err := zap.NewProduction()
	if err != nil {
		base = zap.NewNop()
	}
	return base.Sugar().With("component", component)
}

// NewDevelopmentLogger builds a console-friendly logger for local runs and
// tests.
func NewDevelopmentLogger(component string) *Logger {
	base, err := zap.NewDevelopment()
	if err != nil {
		base = zap.NewNop()
	}
	return base.Sugar().With("component", component)
}
