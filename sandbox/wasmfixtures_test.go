package sandbox

// This file hand-assembles three tiny real WASM binaries used only by
// sandbox_test.go. There is no WAT-to-wasm compiler in reach (the
// original test suite leans on the Rust `wat` crate, which has no Go
// equivalent grounded in the example pack), so the modules are built
// directly in the WASM binary format from a handful of reusable
// encoding primitives. Every length-prefixed field below is computed
// from the actual byte slices via len() rather than hardcoded, so a
// transcription slip shows up as an invalid module rather than a
// silently wrong offset.

const (
	valI32 = 0x7f

	opEnd        = 0x0B
	opLocalGet   = 0x20
	opLocalSet   = 0x21
	opGlobalGet  = 0x23
	opGlobalSet  = 0x24
	opCall       = 0x10
	opI32Const   = 0x41
	opI32Add     = 0x6A
	opI32LtS     = 0x48
	opIf         = 0x04
	opLoop       = 0x03
	opBr         = 0x0C
	opUnreachable = 0x00
	opMemoryGrow  = 0x3F

	blockTypeVoid = 0x40
)

func uleb128(x uint32) []byte {
	var buf []byte
	for {
		b := byte(x & 0x7f)
		x >>= 7
		if x != 0 {
			buf = append(buf, b|0x80)
		} else {
			buf = append(buf, b)
			break
		}
	}
	return buf
}

func sleb128(x int64) []byte {
	var buf []byte
	more := true
	for more {
		b := byte(x & 0x7f)
		x >>= 7
		signBitSet := b&0x40 != 0
		if (x == 0 && !signBitSet) || (x == -1 && signBitSet) {
			more = false
		} else {
			b |= 0x80
		}
		buf = append(buf, b)
	}
	return buf
}

func wasmSection(id byte, content []byte) []byte {
	out := []byte{id}
	out = append(out, uleb128(uint32(len(content)))...)
	return append(out, content...)
}

func wasmName(s string) []byte {
	out := uleb128(uint32(len(s)))
	return append(out, []byte(s)...)
}

func wasmVec(count int, content []byte) []byte {
	out := uleb128(uint32(count))
	return append(out, content...)
}

func wasmFuncType(params, results []byte) []byte {
	out := []byte{0x60}
	out = append(out, wasmVec(len(params), params)...)
	out = append(out, wasmVec(len(results), results)...)
	return out
}

func wasmImport(module, field string, typeIdx uint32) []byte {
	out := wasmName(module)
	out = append(out, wasmName(field)...)
	out = append(out, 0x00) // import kind: func
	out = append(out, uleb128(typeIdx)...)
	return out
}

func wasmExport(name string, kind byte, idx uint32) []byte {
	out := wasmName(name)
	out = append(out, kind)
	out = append(out, uleb128(idx)...)
	return out
}

// wasmLocalDecls declares n extra i32 locals, one declaration group per
// local (count 1 each) for simplicity.
func wasmLocalDecls(n int) []byte {
	var entries []byte
	for i := 0; i < n; i++ {
		entries = append(entries, uleb128(1)...)
		entries = append(entries, valI32)
	}
	return wasmVec(n, entries)
}

func wasmFuncBody(locals, expr []byte) []byte {
	body := append(append([]byte{}, locals...), expr...)
	return append(uleb128(uint32(len(body))), body...)
}

func wasmDataSegment(offset int64, payload []byte) []byte {
	out := []byte{0x00} // active, memory 0
	out = append(out, opI32Const)
	out = append(out, sleb128(offset)...)
	out = append(out, opEnd)
	out = append(out, uleb128(uint32(len(payload)))...)
	return append(out, payload...)
}

// allocBody builds the shared bump-allocator alloc(size i32) -> i32:
// result := $next; $next += size; return result. Local index 0 is the
// size parameter, local index 1 is the extra "result" local declared
// below.
func allocBody() []byte {
	locals := wasmLocalDecls(1)
	expr := []byte{
		opGlobalGet, 0x00,
		opLocalSet, 0x01,
		opLocalGet, 0x01,
		opLocalGet, 0x00,
		opI32Add,
		opGlobalSet, 0x00,
		opLocalGet, 0x01,
		opEnd,
	}
	return wasmFuncBody(locals, expr)
}

// globalSectionBumpPointer declares the one mutable i32 global every
// fixture uses as its bump-allocator cursor, initialized to init.
func globalSectionBumpPointer(init int64) []byte {
	entry := []byte{valI32, 0x01, opI32Const}
	entry = append(entry, sleb128(init)...)
	entry = append(entry, opEnd)
	return wasmSection(6, wasmVec(1, entry))
}

// assembleModule wires the shared type/import/function/export scaffolding
// (identical across all three fixtures: two host imports, alloc and
// evaluate exports, one memory) around a module-specific memory section,
// global section, code section and optional data section.
func assembleModule(memSection, globalSec, codeSec, dataSec []byte) []byte {
	typeSec := wasmSection(1, wasmVec(3,
		append(append(
			wasmFuncType([]byte{valI32, valI32}, nil),
			wasmFuncType([]byte{valI32}, []byte{valI32})...),
			wasmFuncType([]byte{valI32, valI32}, []byte{valI32})...),
	))

	importSec := wasmSection(2, wasmVec(2,
		append(wasmImport("host", "log", 0), wasmImport("host", "emit_signal", 0)...),
	))

	// local funcs: index 2 = alloc (type 1), index 3 = evaluate (type 2)
	functionSec := wasmSection(3, wasmVec(2, append(uleb128(1), uleb128(2)...)))

	exportSec := wasmSection(7, wasmVec(3,
		append(append(
			wasmExport("memory", 0x02, 0),
			wasmExport("alloc", 0x00, 2)...),
			wasmExport("evaluate", 0x00, 3)...),
	))

	out := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
	out = append(out, typeSec...)
	out = append(out, importSec...)
	out = append(out, functionSec...)
	out = append(out, memSection...)
	out = append(out, globalSec...)
	out = append(out, exportSec...)
	out = append(out, codeSec...)
	if dataSec != nil {
		out = append(out, dataSec...)
	}
	return out
}

func wasmMemorySection(minPages uint32) []byte {
	return wasmSection(5, wasmVec(1, append([]byte{0x00}, uleb128(minPages)...)))
}

// echoWasmLog and echoWasmSignal are the fixed bytes the echo module's
// evaluate() emits, regardless of the context it's handed — enough to
// prove the host ABI's log/emit_signal round trip works without needing
// the hand-built module to parse JSON itself.
const echoWasmLog = "evaluated strategy"

const echoWasmSignalJSON = `{"strategy_id":"00000000-0000-0000-0000-000000000000","account_id":"sandbox-account","priority":"high","signal":{"exchange":null,"symbol":"BTC-USD","side":"buy","order_type":"market","quantity":"0.01","limit_price":null,"confidence":0.9}}`

// buildEchoWasm assembles a module whose evaluate() ignores its input and
// always logs echoWasmLog and emits echoWasmSignalJSON, proving the
// alloc/evaluate/log/emit_signal ABI round-trips real WASM bytes through
// wazero end to end.
func buildEchoWasm() []byte {
	const logOffset = 0
	sigOffset := int64(len(echoWasmLog)) + 16 // pad, no real need to pack tightly
	const bumpInit = 1024

	logBytes := []byte(echoWasmLog)
	sigBytes := []byte(echoWasmSignalJSON)

	dataSec := wasmSection(11, wasmVec(2,
		append(wasmDataSegment(logOffset, logBytes), wasmDataSegment(sigOffset, sigBytes)...),
	))

	evalExpr := []byte{opI32Const}
	evalExpr = append(evalExpr, sleb128(logOffset)...)
	evalExpr = append(evalExpr, opI32Const)
	evalExpr = append(evalExpr, sleb128(int64(len(logBytes)))...)
	evalExpr = append(evalExpr, opCall, 0x00)
	evalExpr = append(evalExpr, opI32Const)
	evalExpr = append(evalExpr, sleb128(sigOffset)...)
	evalExpr = append(evalExpr, opI32Const)
	evalExpr = append(evalExpr, sleb128(int64(len(sigBytes)))...)
	evalExpr = append(evalExpr, opCall, 0x01)
	evalExpr = append(evalExpr, opI32Const, 0x00)
	evalExpr = append(evalExpr, opEnd)
	evaluateBody := wasmFuncBody(wasmLocalDecls(0), evalExpr)

	codeSec := wasmSection(10, wasmVec(2, append(allocBody(), evaluateBody...)))

	return assembleModule(wasmMemorySection(2), globalSectionBumpPointer(bumpInit), codeSec, dataSec)
}

// buildOverAllocWasm assembles a module whose evaluate() ignores its
// input and tries to grow memory by far more than any sane configured
// limit allows; memory.grow returns -1 on failure per the WASM spec, and
// the module traps via unreachable rather than silently continuing, the
// same way a real strategy module that overruns its budget should fail
// loudly instead of corrupting state.
func buildOverAllocWasm() []byte {
	const bumpInit = 1024
	const growDelta = 1 << 20 // pages; astronomically larger than any configured cap

	evalExpr := []byte{opI32Const}
	evalExpr = append(evalExpr, sleb128(growDelta)...)
	evalExpr = append(evalExpr, opMemoryGrow, 0x00)
	evalExpr = append(evalExpr, opLocalSet, 0x02)
	evalExpr = append(evalExpr, opLocalGet, 0x02)
	evalExpr = append(evalExpr, opI32Const, 0x00)
	evalExpr = append(evalExpr, opI32LtS)
	evalExpr = append(evalExpr, opIf, blockTypeVoid)
	evalExpr = append(evalExpr, opUnreachable)
	evalExpr = append(evalExpr, opEnd)
	evalExpr = append(evalExpr, opI32Const, 0x00)
	evalExpr = append(evalExpr, opEnd)
	evaluateBody := wasmFuncBody(wasmLocalDecls(1), evalExpr)

	codeSec := wasmSection(10, wasmVec(2, append(allocBody(), evaluateBody...)))

	return assembleModule(wasmMemorySection(1), globalSectionBumpPointer(bumpInit), codeSec, nil)
}

// buildTimeoutWasm assembles a module whose evaluate() loops forever.
// wazero's WithCloseOnContextDone instruments loop back-edges with a
// context-cancellation check, so a deadline-bound caller genuinely
// aborts this call instead of waiting for it to return.
func buildTimeoutWasm() []byte {
	const bumpInit = 1024

	evalExpr := []byte{
		opLoop, blockTypeVoid,
		opBr, 0x00,
		opEnd,
		opI32Const, 0x00,
		opEnd,
	}
	evaluateBody := wasmFuncBody(wasmLocalDecls(0), evalExpr)

	codeSec := wasmSection(10, wasmVec(2, append(allocBody(), evaluateBody...)))

	return assembleModule(wasmMemorySection(2), globalSectionBumpPointer(bumpInit), codeSec, nil)
}
