package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ionflux/tradecore/telemetry"
)

// FrameKind discriminates the raw events an Ingestor surfaces to its
// normalizer (spec §4.4: "Text | Binary | Ping | Pong | Closed(graceful?)").
type FrameKind uint8

const (
	FrameText FrameKind = iota
	FrameBinary
	FramePing
	FramePong
	FrameClosed
)

// RawFrame is one event surfaced by an Ingestor, ahead of any
// exchange-specific normalization.
type RawFrame struct {
	Kind     FrameKind
	Data     []byte
	Graceful bool // meaningful only for FrameClosed
}

// SubscriptionFactory produces the frames sent immediately after a
// successful connect (spec §4.4: "sends a set of subscription frames
// produced by a caller-supplied factory").
type SubscriptionFactory func() [][]byte

// HeartbeatConfig enables a WebSocket Ping sent every Interval, whether or
// not frames have arrived in that window; if unset (Interval == 0) no
// heartbeat is sent.
type HeartbeatConfig struct {
	Interval    time.Duration
	PingPayload []byte
}

// IngestConfig bundles one Ingestor's connection policy.
type IngestConfig struct {
	URL         string
	Subscribe   SubscriptionFactory
	Backoff     BackoffConfig
	Heartbeat   HeartbeatConfig
	ReadTimeout time.Duration
}

// Ingestor is one exchange feed's WebSocket worker: it connects, replays
// the caller's subscription frames, watches for read stalls, optionally
// heartbeats, and reconnects with backoff on any error (spec §4.4
// "Ingestion worker").
type Ingestor struct {
	cfg    IngestConfig
	out    chan RawFrame
	log    *telemetry.Logger
	connMu sync.Mutex
	conn   *websocket.Conn
}

// NewIngestor creates an Ingestor with an unbounded-enough internal buffer
// sized by capacity; callers read frames via Frames().
func NewIngestor(cfg IngestConfig, capacity int, log *telemetry.Logger) *Ingestor {
	return &Ingestor{cfg: cfg, out: make(chan RawFrame, capacity), log: log}
}

// Frames returns the channel of surfaced raw frames.
func (ig *Ingestor) Frames() <-chan RawFrame {
	return ig.out
}

// Run drives the connect/read/reconnect loop until ctx is cancelled or the
// out channel's consumer stops draining it and the caller abandons Run by
// cancelling ctx (spec §4.4: "Stops when the consumer handle is dropped" —
// modeled here as context cancellation, since a Go channel has no drop
// signal of its own).
func (ig *Ingestor) Run(ctx context.Context) {
	defer close(ig.out)
	backoff := NewBackoff(ig.cfg.Backoff)

	for {
		if ctx.Err() != nil {
			return
		}
		err := ig.connectAndRead(ctx, backoff)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			backoff.Reset()
			continue
		}
		ig.log.Warnw("feed disconnected, reconnecting", "url", ig.cfg.URL, "error", err)
		delay := backoff.Next()
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (ig *Ingestor) connectAndRead(ctx context.Context, backoff *Backoff) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, ig.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	backoff.Reset()
	ig.connMu.Lock()
	ig.conn = conn
	ig.connMu.Unlock()
	defer func() {
		ig.connMu.Lock()
		conn.Close()
		ig.conn = nil
		ig.connMu.Unlock()
	}()

	if ig.cfg.Subscribe != nil {
		for _, frame := range ig.cfg.Subscribe() {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return fmt.Errorf("subscribe: %w", err)
			}
		}
	}

	conn.SetPongHandler(func(string) error {
		return nil
	})
	conn.SetPingHandler(func(data string) error {
		select {
		case ig.out <- RawFrame{Kind: FramePing, Data: []byte(data)}:
		default:
		}
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	var heartbeatCancel context.CancelFunc
	if ig.cfg.Heartbeat.Interval > 0 {
		var hbCtx context.Context
		hbCtx, heartbeatCancel = context.WithCancel(ctx)
		defer heartbeatCancel()
		go ig.heartbeatLoop(hbCtx, conn)
	}

	readTimeout := ig.cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		frameKind := FrameText
		if kind == websocket.BinaryMessage {
			frameKind = FrameBinary
		}
		select {
		case ig.out <- RawFrame{Kind: frameKind, Data: data}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// heartbeatLoop sends a Ping every Interval; the read loop's deadline
// (reset on every received frame) is the stall detector, so this loop's
// only job is keeping a quiet-but-healthy connection alive.
func (ig *Ingestor) heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(ig.cfg.Heartbeat.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ig.connMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, ig.cfg.Heartbeat.PingPayload, time.Now().Add(5*time.Second))
			ig.connMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
