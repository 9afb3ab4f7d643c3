// Package feed implements the market-data ingestion pipeline: a
// reconnecting WebSocket worker per exchange feed, a Coinbase-shape
// normalizer, and a distributor that publishes normalized events onto the
// bus (spec §4.4).
package feed

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// BackoffConfig configures the ingestion worker's reconnect delay:
// delay = min(initial * multiplier^(attempt-1), max) + jitter.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     time.Duration // upper bound of the uniform jitter added to each delay
}

// DefaultBackoffConfig matches the doubling 1s→30s shape used across the
// pack's WebSocket clients, with a modest jitter ceiling added per spec
// §4.4 (the pack's own clients don't jitter at all).
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{Initial: time.Second, Max: 30 * time.Second, Multiplier: 2.0, Jitter: 250 * time.Millisecond}
}

// Backoff computes successive reconnect delays and resets after a
// successful connection, per spec §4.4 ("counter resets after a successful
// connection").
type Backoff struct {
	cfg     BackoffConfig
	attempt int
}

// NewBackoff creates a Backoff at attempt zero.
func NewBackoff(cfg BackoffConfig) *Backoff {
	return &Backoff{cfg: cfg}
}

// Next advances the attempt counter and returns the delay to wait before
// the next connection attempt.
func (b *Backoff) Next() time.Duration {
	b.attempt++
	base := float64(b.cfg.Initial) * math.Pow(b.cfg.Multiplier, float64(b.attempt-1))
	if base > float64(b.cfg.Max) {
		base = float64(b.cfg.Max)
	}
	return time.Duration(base) + b.jitter()
}

// Reset zeroes the attempt counter, called after a successful connect.
func (b *Backoff) Reset() {
	b.attempt = 0
}

// jitter draws a uniform random duration in [0, Jitter) from a
// cryptographically secure source, avoiding a thundering herd of
// reconnects sharing the same seed (spec §4.4: "jitter is drawn from a
// secure RNG").
func (b *Backoff) jitter() time.Duration {
	if b.cfg.Jitter <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(b.cfg.Jitter)))
	if err != nil {
		return 0
	}
	return time.Duration(n.Int64())
}
