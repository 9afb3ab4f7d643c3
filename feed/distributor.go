package feed

import (
	"context"
	"time"

	"github.com/ionflux/tradecore/bus"
	"github.com/ionflux/tradecore/telemetry"
)

// Distributor drains an Ingestor's frame channel through a Normalizer and
// publishes the resulting MarketEvents to the bus (spec §4.4
// "Distributor"). It owns no connection state of its own — the Ingestor
// and Normalizer it wraps are independently reusable.
type Distributor struct {
	frames     <-chan RawFrame
	normalizer *Normalizer
	sender     bus.Sender
	mode       bus.PublishMode
	timeout    time.Duration
	log        *telemetry.Logger
}

// NewDistributor wires an Ingestor's frame channel to a Normalizer and a
// bus.Sender. mode is the configurable publish mode (spec §4.4 default
// Blocking); timeout is only consulted when mode is bus.Timeout.
func NewDistributor(frames <-chan RawFrame, normalizer *Normalizer, sender bus.Sender, mode bus.PublishMode, timeout time.Duration, log *telemetry.Logger) *Distributor {
	return &Distributor{frames: frames, normalizer: normalizer, sender: sender, mode: mode, timeout: timeout, log: log}
}

// Run drains frames end to end until the channel closes, ctx is
// cancelled, or a dispatch failure stops the loop (spec §4.4: "if
// dispatch fails, stops the drain loop; the producer is expected to tear
// down the stream").
func (d *Distributor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-d.frames:
			if !ok {
				return
			}
			if raw.Kind == FrameClosed {
				return
			}
			if !d.handle(ctx, raw) {
				return
			}
		}
	}
}

// handle normalizes and publishes one frame. It returns false when a
// dispatch failure should stop the drain loop.
func (d *Distributor) handle(ctx context.Context, raw RawFrame) bool {
	events, err := d.normalizer.Normalize(raw)
	if err != nil {
		d.log.Debugw("skipping malformed frame", "error", err)
		return true
	}
	for _, ev := range events {
		result, err := d.sender.Publish(ctx, ev, d.mode, d.timeout)
		switch {
		case result == bus.Dropped:
			// Try mode found the topic full: documented policy is to log
			// and continue, not tear down the stream (spec §4.4 failure
			// semantics).
			d.log.Warnw("market event dropped under Try publish mode", "pair", ev.Payload.Pair)
		case err != nil:
			d.log.Warnw("market event dispatch failed, stopping distributor", "error", err)
			return false
		}
	}
	return true
}
