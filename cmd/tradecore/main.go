// tradecore wires the event-driven trading backbone together: the bus,
// one market-data feed, and the dispatcher with the default risk-logging
// handler. The strategy sandbox bridge and the signal/order/execution
// bridges are not wired here. It loads configuration, starts every
// long-running component, and waits for SIGINT/SIGTERM to shut down
// cleanly.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/ionflux/tradecore/bridge"
	"github.com/ionflux/tradecore/bus"
	"github.com/ionflux/tradecore/config"
	"github.com/ionflux/tradecore/dispatcher"
	"github.com/ionflux/tradecore/feed"
	"github.com/ionflux/tradecore/telemetry"
)

func main() {
	log := telemetry.NewLogger("tradecore")

	cfgPath := "configs/config.yaml"
	if p := os.Getenv("TRADECORE_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Warnw("failed to load config file, using defaults", "path", cfgPath, "error", err)
		defaults := config.Defaults()
		cfg = &defaults
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalw("invalid config", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bus.NewBus(cfg.Bus.BusCapacities())

	disp := dispatcher.New(b, cfg.Dispatcher.ErrorPolicy(), telemetry.NewLogger("dispatcher"))
	disp.Register(bus.KindRisk, bridge.NewRiskLogger(telemetry.NewLogger("risk")).Handle)

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return disp.Run(gctx)
	})

	wireMarketFeed(gctx, group, cfg, b, log)

	go func() {
		<-gctx.Done()
		disp.Controller().Stop()
	}()

	if err := group.Wait(); err != nil && gctx.Err() == nil {
		log.Errorw("tradecore exited with error", "error", err)
		os.Exit(1)
	}
}

// wireMarketFeed starts one Coinbase-shape ingestor/normalizer/distributor
// chain feeding the bus's market topic, grounded on spec §4.4. The
// reference exchange URL and subscription payload here are hardcoded
// placeholders; config.Config has no field for either.
func wireMarketFeed(ctx context.Context, group *errgroup.Group, cfg *config.Config, b *bus.Bus, log *telemetry.Logger) {
	ingestCfg := feed.IngestConfig{
		URL: "wss://ws-feed.exchange.example/",
		Subscribe: func() [][]byte {
			return [][]byte{[]byte(`{"type":"subscribe","channels":["ticker","level2"]}`)}
		},
		Backoff:     cfg.Backoff.FeedBackoff(),
		Heartbeat:   feed.HeartbeatConfig{Interval: cfg.Heartbeat.Interval, PingPayload: []byte(cfg.Heartbeat.PingPayload)},
		ReadTimeout: cfg.ReadTimeout,
	}
	ingestor := feed.NewIngestor(ingestCfg, cfg.Bus.Market, telemetry.NewLogger("feed.ingest"))
	normalizer := feed.NewNormalizer("coinbase")
	distributor := feed.NewDistributor(ingestor.Frames(), normalizer, b.Sender(bus.KindMarket), config.Mode(cfg.Publish.DistributorDefault), 0, telemetry.NewLogger("feed.distribute"))

	group.Go(func() error {
		ingestor.Run(ctx)
		return nil
	})
	group.Go(func() error {
		distributor.Run(ctx)
		return nil
	})
}
