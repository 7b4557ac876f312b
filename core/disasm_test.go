package core_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmforge/wasmforge/core"
	"github.com/wasmforge/wasmforge/wasm"
)

func TestDisassembleConstsAndMemoryOps(t *testing.T) {
	const (
		opI32Load  byte = 0x28
		opI32Store byte = 0x36
	)

	wmod := &wasm.Module{
		Types:    &wasm.TypeSection{Entries: []wasm.FunctionSig{sig([]wasm.ValueType{wasm.ValueTypeI32}, nil)}},
		Function: &wasm.FunctionSection{Types: []uint32{0}},
		Memory:   &wasm.MemorySection{Entries: []wasm.Memory{{Limits: wasm.ResizableLimits{Initial: 1}}}},
		Code: &wasm.CodeSection{
			Bodies: []wasm.Code{
				body(nil, code(
					op(opLocalGet), u32(0),
					op(opI32Load), u32(0), u32(0), // align=0, offset=0
					op(opDrop),
					op(opI32Const), i32(7),
					op(opLocalGet), u32(0),
					op(opI32Store), u32(0), u32(0),
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

	out := buf.String()
	require.Contains(t, out, "i32.load memory=0 offset=0")
	require.Contains(t, out, "i32.const 7")
	require.Contains(t, out, "i32.store memory=0 offset=0")
	require.Contains(t, out, "drop")
}

func TestDisassembleOffsetPastEndErrors(t *testing.T) {
	var buf bytes.Buffer
	err := core.Disassemble(&buf, []byte{0x01}, 5, 6)
	require.Error(t, err)
}
