package core_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmforge/wasmforge/core"
	"github.com/wasmforge/wasmforge/wasm"
)

// Small helpers for hand-assembling instruction byte streams. Tests in this
// file play the role of wasm-opcode-level fixtures: there is no text-format
// front end to parse these from (spec section 1's Non-goal on the textual
// form), so every wasm.Code body is built directly as a byte slice.

func u32(v uint32) []byte {
	var buf [5]byte
	n := 0
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf[n] = b
		n++
		if v == 0 {
			break
		}
	}
	return buf[:n]
}

func i32(v int32) []byte {
	return sleb(int64(v))
}

func i64(v int64) []byte {
	return sleb(v)
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			out = append(out, b)
			break
		}
		out = append(out, b|0x80)
	}
	return out
}

func code(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func op(b byte) []byte { return []byte{b} }

const (
	opUnreachable byte = 0x00
	opBlock       byte = 0x02
	opLoop        byte = 0x03
	opIf          byte = 0x04
	opElse        byte = 0x05
	opEnd         byte = 0x0b
	opBr          byte = 0x0c
	opBrIf        byte = 0x0d
	opBrTable     byte = 0x0e
	opReturn      byte = 0x0f
	opCall        byte = 0x10
	opDrop        byte = 0x1a
	opLocalGet    byte = 0x20
	opLocalSet    byte = 0x21
	opGlobalGet   byte = 0x23
	opGlobalSet   byte = 0x24
	opI32Const    byte = 0x41
	opI32Add      byte = 0x6a
	opI32Eqz      byte = 0x45
	blockTypeVoid byte = 0x40
	blockTypeI32  byte = 0x7f
)

func sig(params, results []wasm.ValueType) wasm.FunctionSig {
	return wasm.FunctionSig{Form: 0x60, ParamTypes: params, ReturnTypes: results}
}

func body(locals []wasm.LocalEntry, c []byte) wasm.Code {
	return wasm.Code{Locals: locals, Code: c}
}

// TestLowerEmptyModule is spec scenario S1: a module with no sections at all.
func TestLowerEmptyModule(t *testing.T) {
	env := core.NewEnvironment()
	mod, err := core.Lower(env, &wasm.Module{}, core.Options{})
	require.NoError(t, err)
	require.NotNil(t, mod)
	require.Equal(t, 0, len(mod.Funcs))
	require.Equal(t, core.InvalidIndex, mod.TableIndex)
	require.Equal(t, core.InvalidIndex, mod.MemoryIndex)
	require.Equal(t, core.InvalidIndex, mod.StartIndex)
	require.Equal(t, mod.IstreamStart, mod.IstreamEnd)
}

// identity function: S2. func (i32) -> i32 { local.get 0 }
func TestLowerIdentityFunction(t *testing.T) {
	wmod := &wasm.Module{
		Types: &wasm.TypeSection{
			Entries: []wasm.FunctionSig{sig([]wasm.ValueType{wasm.ValueTypeI32}, []wasm.ValueType{wasm.ValueTypeI32})},
		},
		Function: &wasm.FunctionSection{Types: []uint32{0}},
		Export: &wasm.ExportSection{
			Entries: []wasm.Export{{Name: "identity", Kind: wasm.ExternalFunction, Index: 0}},
		},
		Code: &wasm.CodeSection{
			Bodies: []wasm.Code{
				body(nil, code(op(opLocalGet), u32(0), op(opEnd))),
			},
		},
	}

	env := core.NewEnvironment()
	mod, err := core.Lower(env, wmod, core.Options{})
	require.NoError(t, err)

	exp, ok := mod.Exports["identity"]
	require.True(t, ok)
	require.Equal(t, core.ExportFunc, exp.Kind)

	fn := env.Funcs[exp.Index]
	require.False(t, fn.IsHost)
	require.NotEqual(t, core.InvalidIndex, fn.Offset)
	require.Equal(t, 1, fn.NumParams)
	require.Equal(t, 0, fn.NumLocals)

	var buf bytes.Buffer
	require.NoError(t, core.Disassemble(&buf, env.Istream, mod.IstreamStart, mod.IstreamEnd))
	require.Contains(t, buf.String(), "get_local")
	require.Contains(t, buf.String(), "return")
}

// add function: S3. func (i32, i32) -> i32 { local.get 0; local.get 1; i32.add }
func TestLowerAddFunction(t *testing.T) {
	wmod := &wasm.Module{
		Types: &wasm.TypeSection{
			Entries: []wasm.FunctionSig{sig([]wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, []wasm.ValueType{wasm.ValueTypeI32})},
		},
		Function: &wasm.FunctionSection{Types: []uint32{0}},
		Export: &wasm.ExportSection{
			Entries: []wasm.Export{{Name: "add", Kind: wasm.ExternalFunction, Index: 0}},
		},
		Code: &wasm.CodeSection{
			Bodies: []wasm.Code{
				body(nil, code(
					op(opLocalGet), u32(0),
					op(opLocalGet), u32(1),
					op(opI32Add),
					op(opEnd),
				)),
			},
		},
	}

	env := core.NewEnvironment()
	mod, err := core.Lower(env, wmod, core.Options{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, core.Disassemble(&buf, env.Istream, mod.IstreamStart, mod.IstreamEnd))
	require.Contains(t, buf.String(), "i32.add")
}

// unreachable polymorphism: S4. code after `unreachable` type-checks
// vacuously until the enclosing label closes.
func TestLowerUnreachablePolymorphism(t *testing.T) {
	wmod := &wasm.Module{
		Types: &wasm.TypeSection{
			Entries: []wasm.FunctionSig{sig(nil, []wasm.ValueType{wasm.ValueTypeI32})},
		},
		Function: &wasm.FunctionSection{Types: []uint32{0}},
		Code: &wasm.CodeSection{
			Bodies: []wasm.Code{
				// unreachable; i32.add -- pops/pushes vacuously, function
				// still "returns" an i32 despite never pushing a real one.
				body(nil, code(op(opUnreachable), op(opI32Add), op(opEnd))),
			},
		},
	}

	env := core.NewEnvironment()
	_, err := core.Lower(env, wmod, core.Options{})
	require.NoError(t, err)
}

// if/else arity mismatch: S5. the two branches must agree on result shape.
func TestLowerIfElseArityMismatch(t *testing.T) {
	wmod := &wasm.Module{
		Types: &wasm.TypeSection{
			Entries: []wasm.FunctionSig{sig(nil, []wasm.ValueType{wasm.ValueTypeI32})},
		},
		Function: &wasm.FunctionSection{Types: []uint32{0}},
		Code: &wasm.CodeSection{
			Bodies: []wasm.Code{
				// if (i32.const 1) { i32.const 1 } else {} -- then-branch
				// pushes an i32, else-branch pushes nothing: mismatch.
				body(nil, code(
					op(opI32Const), i32(1),
					op(opIf), op(blockTypeI32),
					op(opI32Const), i32(1),
					op(opElse),
					op(opEnd),
					op(opEnd),
				)),
			},
		},
	}

	env := core.NewEnvironment()
	_, err := core.Lower(env, wmod, core.Options{})
	require.Error(t, err)
	lerr, ok := err.(*core.LoweringError)
	require.True(t, ok)
	require.Equal(t, core.CategoryType, lerr.Category)
}

// br_table: S6. every arm must be reachable and dispatch through the
// inline entry table rather than a linear scan.
func TestLowerBrTable(t *testing.T) {
	wmod := &wasm.Module{
		Types: &wasm.TypeSection{
			Entries: []wasm.FunctionSig{sig([]wasm.ValueType{wasm.ValueTypeI32}, nil)},
		},
		Function: &wasm.FunctionSection{Types: []uint32{0}},
		Code: &wasm.CodeSection{
			Bodies: []wasm.Code{
				body(nil, code(
					op(opBlock), op(blockTypeVoid),
					op(opBlock), op(blockTypeVoid),
					op(opLocalGet), u32(0),
					op(opBrTable), u32(1), u32(0), u32(1),
					op(opEnd),
					op(opEnd),
					op(opEnd),
				)),
			},
		},
	}

	env := core.NewEnvironment()
	mod, err := core.Lower(env, wmod, core.Options{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, core.Disassemble(&buf, env.Istream, mod.IstreamStart, mod.IstreamEnd))
	require.Contains(t, buf.String(), "br_table n=1")
	require.Contains(t, buf.String(), "br_table_data")
}

// import linkage: S7. an immutable global exported by one module can be
// imported by another and used as its init-expr source. Rejection of a
// mutable-global export is covered by TestLowerExportMutableGlobalRejected.
func TestLowerImportLinkageGlobals(t *testing.T) {
	env := core.NewEnvironment()

	provider := &wasm.Module{
		Global: &wasm.GlobalSection{
			Globals: []wasm.Global{
				{Type: wasm.GlobalVar{Type: wasm.ValueTypeI32, Mutable: false}, Init: code(op(opI32Const), i32(42), op(opEnd))},
			},
		},
		Export: &wasm.ExportSection{
			Entries: []wasm.Export{{Name: "answer", Kind: wasm.ExternalGlobal, Index: 0}},
		},
	}
	_, err := core.Lower(env, provider, core.Options{Name: "provider"})
	require.NoError(t, err)

	consumer := &wasm.Module{
		Import: &wasm.ImportSection{
			Entries: []wasm.Import{
				{Module: "provider", Name: "answer", Type: wasm.GlobalVarImport{Type: wasm.GlobalVar{Type: wasm.ValueTypeI32, Mutable: false}}},
			},
		},
		Global: &wasm.GlobalSection{
			Globals: []wasm.Global{
				// get_global of the imported (immutable) global is legal in
				// another global's constant initializer.
				{Type: wasm.GlobalVar{Type: wasm.ValueTypeI32, Mutable: false}, Init: code(op(opGlobalGet), u32(0), op(opEnd))},
			},
		},
	}
	mod, err := core.Lower(env, consumer, core.Options{})
	require.NoError(t, err)
	require.Equal(t, 1, mod.NumGlobalImports)
}

func TestLowerExportMutableGlobalRejected(t *testing.T) {
	wmod := &wasm.Module{
		Global: &wasm.GlobalSection{
			Globals: []wasm.Global{
				{Type: wasm.GlobalVar{Type: wasm.ValueTypeI32, Mutable: true}, Init: code(op(opI32Const), i32(0), op(opEnd))},
			},
		},
		Export: &wasm.ExportSection{
			Entries: []wasm.Export{{Name: "mut", Kind: wasm.ExternalGlobal, Index: 0}},
		},
	}
	env := core.NewEnvironment()
	_, err := core.Lower(env, wmod, core.Options{})
	require.Error(t, err)
	lerr, ok := err.(*core.LoweringError)
	require.True(t, ok)
	require.Equal(t, core.CategoryLinking, lerr.Category)
}

// Environment transactionality: a failing Lower call must leave env
// exactly as it was, including closing any memory it allocated.
func TestLowerRollbackOnFailure(t *testing.T) {
	env := core.NewEnvironment()

	good := &wasm.Module{
		Memory: &wasm.MemorySection{Entries: []wasm.Memory{{Limits: wasm.ResizableLimits{Initial: 1}}}},
	}
	_, err := core.Lower(env, good, core.Options{Name: "good"})
	require.NoError(t, err)
	require.Equal(t, 1, len(env.Memories))
	require.Equal(t, 1, len(env.Modules))

	sigsBefore := len(env.Sigs)
	funcsBefore := len(env.Funcs)
	istreamBefore := len(env.Istream)

	bad := &wasm.Module{
		Memory: &wasm.MemorySection{Entries: []wasm.Memory{{Limits: wasm.ResizableLimits{Initial: 1}}}},
		Types: &wasm.TypeSection{
			Entries: []wasm.FunctionSig{sig(nil, nil)},
		},
		Function: &wasm.FunctionSection{Types: []uint32{0}},
		Code: &wasm.CodeSection{
			Bodies: []wasm.Code{
				// references an out-of-range local, forcing a failure deep
				// inside code lowering, after the second memory was already
				// allocated.
				body(nil, code(op(opLocalGet), u32(5), op(opEnd))),
			},
		},
	}
	_, err = core.Lower(env, bad, core.Options{Name: "bad"})
	require.Error(t, err)

	require.Equal(t, 1, len(env.Memories), "the second module's memory must be rolled back")
	require.Equal(t, 1, len(env.Modules), "the failed module must not be registered")
	require.Equal(t, sigsBefore, len(env.Sigs))
	require.Equal(t, funcsBefore, len(env.Funcs))
	require.Equal(t, istreamBefore, len(env.Istream))

	_, ok := env.LookupModule("bad")
	require.False(t, ok)
	_, ok = env.LookupModule("good")
	require.True(t, ok)
}

// Limits.Accepts implements spec section 6.2's compatibility algebra.
func TestLimitsAccepts(t *testing.T) {
	cases := []struct {
		name            string
		declared        core.Limits
		actual          core.Limits
		wantCompatible bool
	}{
		{"larger initial ok", core.Limits{Initial: 1}, core.Limits{Initial: 2}, true},
		{"smaller initial rejected", core.Limits{Initial: 2}, core.Limits{Initial: 1}, false},
		{"declared max, actual unbounded rejected", core.Limits{Initial: 1, HasMax: true, Maximum: 10}, core.Limits{Initial: 1}, false},
		{"declared max, actual smaller max ok", core.Limits{Initial: 1, HasMax: true, Maximum: 10}, core.Limits{Initial: 1, HasMax: true, Maximum: 5}, true},
		{"declared max, actual larger max rejected", core.Limits{Initial: 1, HasMax: true, Maximum: 10}, core.Limits{Initial: 1, HasMax: true, Maximum: 20}, false},
		{"declared unbounded accepts anything at least as large", core.Limits{Initial: 1}, core.Limits{Initial: 1, HasMax: true, Maximum: 1}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.wantCompatible, c.declared.Accepts(c.actual))
		})
	}
}

// A module declaring more than one table, or more than one memory, is
// rejected as structural (spec section 4's MVP restriction).
func TestLowerRejectsMultipleTables(t *testing.T) {
	wmod := &wasm.Module{
		Table: &wasm.TableSection{Entries: []wasm.Table{
			{ElementType: wasm.ElemTypeAnyFunc, Limits: wasm.ResizableLimits{Initial: 1}},
			{ElementType: wasm.ElemTypeAnyFunc, Limits: wasm.ResizableLimits{Initial: 1}},
		}},
	}
	env := core.NewEnvironment()
	_, err := core.Lower(env, wmod, core.Options{})
	require.Error(t, err)
	lerr, ok := err.(*core.LoweringError)
	require.True(t, ok)
	require.Equal(t, core.CategoryStructural, lerr.Category)
}

func TestLowerDuplicateExportRejected(t *testing.T) {
	wmod := &wasm.Module{
		Types:    &wasm.TypeSection{Entries: []wasm.FunctionSig{sig(nil, nil)}},
		Function: &wasm.FunctionSection{Types: []uint32{0, 0}},
		Code: &wasm.CodeSection{
			Bodies: []wasm.Code{
				body(nil, code(op(opEnd))),
				body(nil, code(op(opEnd))),
			},
		},
		Export: &wasm.ExportSection{
			Entries: []wasm.Export{
				{Name: "f", Kind: wasm.ExternalFunction, Index: 0},
				{Name: "f", Kind: wasm.ExternalFunction, Index: 1},
			},
		},
	}
	env := core.NewEnvironment()
	_, err := core.Lower(env, wmod, core.Options{})
	require.Error(t, err)
	lerr, ok := err.(*core.LoweringError)
	require.True(t, ok)
	require.Equal(t, core.CategoryStructural, lerr.Category)
}

func TestLowerCallAndForwardReference(t *testing.T) {
	// f0 calls f1, which is defined after it; func_fixups must resolve the
	// forward reference once f1's body is lowered.
	wmod := &wasm.Module{
		Types: &wasm.TypeSection{
			Entries: []wasm.FunctionSig{sig(nil, nil)},
		},
		Function: &wasm.FunctionSection{Types: []uint32{0, 0}},
		Code: &wasm.CodeSection{
			Bodies: []wasm.Code{
				body(nil, code(op(opCall), u32(1), op(opEnd))),
				body(nil, code(op(opEnd))),
			},
		},
	}
	env := core.NewEnvironment()
	mod, err := core.Lower(env, wmod, core.Options{})
	require.NoError(t, err)

	envIdx0, _ := mod.Funcs.Get(0)
	envIdx1, _ := mod.Funcs.Get(1)
	fn0 := env.Funcs[envIdx0]
	fn1 := env.Funcs[envIdx1]
	require.NotEqual(t, core.InvalidIndex, fn0.Offset)
	require.NotEqual(t, core.InvalidIndex, fn1.Offset)

	var buf bytes.Buffer
	require.NoError(t, core.Disassemble(&buf, env.Istream, mod.IstreamStart, mod.IstreamEnd))
	require.Contains(t, buf.String(), "call -> ")
}
