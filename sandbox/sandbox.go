package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ionflux/tradecore/bus"
)

// Limits bounds one Sandbox's resource budget: the linear memory cap
// (spec §4.5 "memory_limit_bytes"), enforced at the wazero Runtime level
// by Module.Compile, and the wall-clock evaluation deadline (spec §4.5
// "evaluation_timeout", default 5ms), enforced here by cancelling the
// call's own context rather than measuring elapsed time after the fact.
type Limits struct {
	MemoryBytes        uint32
	EvaluationDeadline time.Duration
}

// DefaultLimits matches the spec's stated defaults.
func DefaultLimits() Limits {
	return Limits{MemoryBytes: 16 << 20, EvaluationDeadline: 5 * time.Millisecond}
}

// Sandbox runs one Module's evaluate() export against a StrategyContext,
// enforcing Limits and implementing the host ABI (spec §4.5 "evaluation
// protocol"). A Sandbox lazily instantiates the module on first use and
// reuses that instance across calls, the same way the original's
// WasmStrategyInstance keeps one Store alive rather than re-instantiating
// per evaluation; an instance that traps or times out is discarded and a
// fresh one takes its place on the next call. Evaluate is safe for
// concurrent use: calls are serialized on an internal mutex, since a
// single WASM instance cannot run two calls at once.
type Sandbox struct {
	module *Module
	limits Limits

	mu   sync.Mutex
	inst *instance
}

// New creates a Sandbox for module with the given resource limits.
func New(module *Module, limits Limits) *Sandbox {
	return &Sandbox{module: module, limits: limits}
}

// Decision is the result of one successful evaluation: the signals the
// strategy emitted and the log lines it produced, plus how long the call
// took. Elapsed is informational only; nothing downstream depends on it.
type Decision struct {
	Signals []bus.StrategySignal
	Logs    []string
	Elapsed time.Duration
}

// Evaluate runs one call: the context is serialized and written into the
// instance's own linear memory via its alloc export, evaluate(ptr,len) is
// invoked under a deadline derived from s.limits.EvaluationDeadline, and
// on success the buffered signals/logs are drained from the Host attached
// to the call context and returned as a Decision.
//
// Unlike _examples/original_source/crates/strategy-engine/src/sandbox.rs,
// which measures elapsed time only after the synchronous call already
// returns (a check that cannot stop a true infinite loop), the instance's
// module.Config is built WithCloseOnContextDone(true): when the deadline
// context is cancelled, wazero closes the running instance out from under
// the call, so an evaluation that never yields is genuinely aborted, not
// merely abandoned. A deadline breach returns a *bus.Error with Kind
// KindStrategyTimeout and buffered signals are discarded (spec §4.5: "the
// evaluation result, including any buffered signals, is discarded" on
// deadline breach); the forced-closed instance is never reused.
//
// A module export that traps (an out-of-bounds memory access, an
// unreachable instruction such as one a module executes after memory.grow
// past the configured limit returns -1) or returns a non-zero status
// surfaces as a *bus.Error with Kind KindSandbox.
func (s *Sandbox) Evaluate(ctx context.Context, evalCtx StrategyContext) (Decision, error) {
	if evalCtx.EvaluationID == uuid.Nil {
		evalCtx.EvaluationID = uuid.New()
	}

	payload, err := evalCtx.encode()
	if err != nil {
		return Decision{}, bus.NewSandboxError(fmt.Sprintf("module %q: encoding context", s.module.name), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inst == nil {
		inst, err := s.module.instantiate(ctx)
		if err != nil {
			return Decision{}, err
		}
		s.inst = inst
	}
	inst := s.inst

	callCtx, cancel := context.WithTimeout(ctx, s.limits.EvaluationDeadline)
	defer cancel()

	host := newHost()
	callCtx = withHost(callCtx, host)

	start := time.Now()
	decision, err := s.call(callCtx, inst, payload)
	elapsed := time.Since(start)

	if err != nil {
		s.inst = nil
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return Decision{}, bus.NewStrategyTimeoutError(fmt.Sprintf("module %q evaluation", s.module.name), elapsed)
		}
		return Decision{}, bus.NewSandboxError(fmt.Sprintf("module %q trapped", s.module.name), err)
	}

	decision.Elapsed = elapsed
	return decision, nil
}

// call performs the alloc/write/evaluate sequence against one instance.
// Any wazero-reported error here (a trap, or the module being force-closed
// by WithCloseOnContextDone) is returned unwrapped; Evaluate classifies it
// against the call context to tell a timeout from a genuine trap.
func (s *Sandbox) call(ctx context.Context, inst *instance, payload []byte) (Decision, error) {
	allocResult, err := inst.alloc.Call(ctx, uint64(len(payload)))
	if err != nil {
		return Decision{}, err
	}
	ptr := uint32(allocResult[0])

	if !inst.memory.Write(ptr, payload) {
		return Decision{}, fmt.Errorf("writing %d bytes at offset %d: out of bounds", len(payload), ptr)
	}

	evalResult, err := inst.evaluate.Call(ctx, uint64(ptr), uint64(len(payload)))
	if err != nil {
		return Decision{}, err
	}

	status := int32(evalResult[0])
	if status != 0 {
		return Decision{}, fmt.Errorf("evaluate returned status %d", status)
	}

	host := hostFromContext(ctx)
	return Decision{Signals: host.Signals(), Logs: host.Logs()}, nil
}
