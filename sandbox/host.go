package sandbox

import (
	"context"
	"encoding/json"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/ionflux/tradecore/bus"
	"github.com/ionflux/tradecore/telemetry"
)

// Host is the per-evaluation state the two host imports write into (spec
// §4.5 "Host imports"). A fresh Host is created per evaluation, reached
// from inside a host function via the Go context.Context threaded
// through wazero's Call, so logs and signals never leak between calls
// even though the underlying instance is reused.
type Host struct {
	log     *telemetry.EvalLog
	signals []bus.StrategySignal
}

func newHost() *Host {
	return &Host{log: telemetry.NewEvalLog()}
}

// Signals returns the signals buffered by emit_signal calls during one
// evaluation.
func (h *Host) Signals() []bus.StrategySignal {
	return h.signals
}

// Logs drains the log lines buffered by log calls during one evaluation.
func (h *Host) Logs() []string {
	return h.log.Drain()
}

type hostStateKey struct{}

// withHost attaches h to ctx so the host import functions below, which
// only receive the context wazero passes through Call, can recover the
// evaluation they belong to.
func withHost(ctx context.Context, h *Host) context.Context {
	return context.WithValue(ctx, hostStateKey{}, h)
}

func hostFromContext(ctx context.Context) *Host {
	h, _ := ctx.Value(hostStateKey{}).(*Host)
	return h
}

// instantiateHostModule binds the "host" module's two imports — log and
// emit_signal — into runtime. Every function reads its argument bytes out
// of the calling module's own linear memory, exactly as a real WASM
// import boundary requires (spec §4.5 "Host imports": "log(ptr,len)",
// "emit_signal(ptr,len)").
func instantiateHostModule(ctx context.Context, runtime wazero.Runtime) error {
	_, err := runtime.NewHostModuleBuilder("host").
		NewFunctionBuilder().WithFunc(hostLog).Export("log").
		NewFunctionBuilder().WithFunc(hostEmitSignal).Export("emit_signal").
		Instantiate(ctx)
	return err
}

func hostLog(ctx context.Context, mod api.Module, ptr, length uint32) {
	h := hostFromContext(ctx)
	if h == nil {
		return
	}
	data, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return
	}
	h.log.Append(string(data))
}

// wasmSignalInstruction is the JSON shape a strategy module writes into
// its own memory before calling emit_signal(ptr,len), mirroring
// _examples/original_source/crates/strategy-engine/src/traits.rs's
// WasmSignalInstruction (strategy_id/account_id/priority/signal),
// serialized with serde_json on the original's side, encoding/json here.
// Only Signal is trusted: strategy_id/account_id/priority are the
// untrusted module's own claims about its identity and are discarded —
// the Bridge that owns this Sandbox already knows which strategy and
// account it is evaluating for and supplies those when it publishes the
// signal, rather than letting sandboxed code assert its own attribution.
type wasmSignalInstruction struct {
	StrategyID string             `json:"strategy_id"`
	AccountID  string             `json:"account_id"`
	Priority   string             `json:"priority"`
	Signal     wasmStrategySignal `json:"signal"`
}

type wasmStrategySignal struct {
	Exchange   *string `json:"exchange"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	OrderType  string  `json:"order_type"`
	Quantity   string  `json:"quantity"`
	LimitPrice *string `json:"limit_price"`
	Confidence float64 `json:"confidence"`
}

func hostEmitSignal(ctx context.Context, mod api.Module, ptr, length uint32) {
	h := hostFromContext(ctx)
	if h == nil {
		return
	}
	data, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return
	}
	var instr wasmSignalInstruction
	if err := json.Unmarshal(data, &instr); err != nil {
		return
	}
	sig, err := instr.Signal.toStrategySignal()
	if err != nil {
		return
	}
	h.signals = append(h.signals, sig)
}
