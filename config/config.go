// Package config defines the backbone's closed configuration set (spec
// §6): per-topic channel capacities, WebSocket backoff/heartbeat/read
// timeout, sandbox limits, and the dispatcher's handler error policy.
// Config is loaded from a YAML file with environment variable overrides,
// following the teacher/pack's viper-based convention.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ionflux/tradecore/bus"
	"github.com/ionflux/tradecore/dispatcher"
	"github.com/ionflux/tradecore/feed"
)

// Config is the top-level configuration, mapping directly onto the YAML
// file structure.
type Config struct {
	Bus        BusConfig        `mapstructure:"bus"`
	Backoff    BackoffConfig    `mapstructure:"backoff"`
	Heartbeat  HeartbeatConfig  `mapstructure:"heartbeat"`
	ReadTimeout time.Duration   `mapstructure:"read_timeout"`
	Sandbox    SandboxConfig    `mapstructure:"sandbox"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Publish    PublishConfig    `mapstructure:"publish"`
}

// BusConfig is the positive-integer capacity for each of the bus's five
// topics (spec §6: "Channel capacities: {market, signal, order, execution,
// risk} — positive integers").
type BusConfig struct {
	Market    int `mapstructure:"market"`
	Signal    int `mapstructure:"signal"`
	Order     int `mapstructure:"order"`
	Execution int `mapstructure:"execution"`
	Risk      int `mapstructure:"risk"`
}

// BackoffConfig is the ingestion worker's reconnect policy (spec §6:
// "WebSocket backoff: {initial, max, multiplier ≥ 1.0, jitter?}").
type BackoffConfig struct {
	Initial    time.Duration `mapstructure:"initial"`
	Max        time.Duration `mapstructure:"max"`
	Multiplier float64       `mapstructure:"multiplier"`
	Jitter     time.Duration `mapstructure:"jitter"`
}

// HeartbeatConfig is the ingestion worker's optional application-level
// ping (spec §6: "WebSocket heartbeat: {interval, ping_payload?}").
type HeartbeatConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	PingPayload string        `mapstructure:"ping_payload"`
}

// SandboxConfig bounds a strategy evaluation (spec §6: "Sandbox:
// {memory_limit_bytes, evaluation_timeout}").
type SandboxConfig struct {
	MemoryLimitBytes  uint32        `mapstructure:"memory_limit_bytes"`
	EvaluationTimeout time.Duration `mapstructure:"evaluation_timeout"`
}

// DispatcherConfig selects the dispatcher's handler error policy (spec
// §9 Open Questions, resolved to default "propagate").
type DispatcherConfig struct {
	HandlerErrorPolicy string `mapstructure:"handler_error_policy"` // "propagate" | "log_and_continue"
}

// PublishConfig is the default publish mode used by producers that don't
// pin their own (spec §9 Open Questions: default Blocking, except the
// distributor's advisory path which may be configured to Try).
type PublishConfig struct {
	Default            string `mapstructure:"default"`             // "blocking" | "try" | "timeout"
	DistributorDefault string `mapstructure:"distributor_default"` // per-producer override
}

// Defaults matches spec §4.2/§4.4/§4.5's documented defaults.
func Defaults() Config {
	return Config{
		Bus: BusConfig{Market: 16384, Signal: 4096, Order: 4096, Execution: 4096, Risk: 1024},
		Backoff: BackoffConfig{
			Initial:    time.Second,
			Max:        30 * time.Second,
			Multiplier: 2.0,
			Jitter:     250 * time.Millisecond,
		},
		Heartbeat:   HeartbeatConfig{Interval: 30 * time.Second},
		ReadTimeout: 90 * time.Second,
		Sandbox: SandboxConfig{
			MemoryLimitBytes:  16 << 20,
			EvaluationTimeout: 5 * time.Millisecond,
		},
		Dispatcher: DispatcherConfig{HandlerErrorPolicy: "propagate"},
		Publish:    PublishConfig{Default: "blocking", DistributorDefault: "blocking"},
	}
}

// Load reads configuration from a YAML file, applying TRADECORE_*
// environment variable overrides on top, and falling back to Defaults()
// for anything the file doesn't set.
func Load(path string) (*Config, error) {
	v := viper.New()
	cfg := Defaults()
	v.SetConfigFile(path)
	v.SetEnvPrefix("TRADECORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the closed configuration set's required invariants.
func (c *Config) Validate() error {
	if c.Bus.Market <= 0 || c.Bus.Signal <= 0 || c.Bus.Order <= 0 || c.Bus.Execution <= 0 || c.Bus.Risk <= 0 {
		return fmt.Errorf("bus: all topic capacities must be positive")
	}
	if c.Backoff.Multiplier < 1.0 {
		return fmt.Errorf("backoff.multiplier must be >= 1.0")
	}
	if c.Sandbox.MemoryLimitBytes == 0 {
		return fmt.Errorf("sandbox.memory_limit_bytes must be > 0")
	}
	if c.Sandbox.EvaluationTimeout <= 0 {
		return fmt.Errorf("sandbox.evaluation_timeout must be > 0")
	}
	switch c.Dispatcher.HandlerErrorPolicy {
	case "propagate", "log_and_continue":
	default:
		return fmt.Errorf("dispatcher.handler_error_policy must be propagate or log_and_continue, got %q", c.Dispatcher.HandlerErrorPolicy)
	}
	return nil
}

// BusCapacities converts BusConfig into the shape bus.NewBus expects.
func (c BusConfig) BusCapacities() bus.Capacities {
	return bus.Capacities{Market: c.Market, Signal: c.Signal, Order: c.Order, Execution: c.Execution, Risk: c.Risk}
}

// FeedBackoff converts BackoffConfig into the shape feed.NewBackoff expects.
func (c BackoffConfig) FeedBackoff() feed.BackoffConfig {
	return feed.BackoffConfig{Initial: c.Initial, Max: c.Max, Multiplier: c.Multiplier, Jitter: c.Jitter}
}

// ErrorPolicy converts the configured handler error policy string into a
// dispatcher.ErrorPolicy, defaulting to PolicyPropagate for an unrecognized
// value (Validate should already have rejected those).
func (c DispatcherConfig) ErrorPolicy() dispatcher.ErrorPolicy {
	if c.HandlerErrorPolicy == "log_and_continue" {
		return dispatcher.PolicyLogAndContinue
	}
	return dispatcher.PolicyPropagate
}

// Mode parses a publish mode string ("blocking" | "try" | "timeout") into
// a bus.PublishMode, defaulting to bus.Blocking for an unrecognized value.
func Mode(s string) bus.PublishMode {
	switch s {
	case "try":
		return bus.Try
	case "timeout":
		return bus.Timeout
	default:
		return bus.Blocking
	}
}
