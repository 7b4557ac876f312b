package core_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmforge/wasmforge/core"
	"github.com/wasmforge/wasmforge/wasm"
)

func TestWriteStats(t *testing.T) {
	wmod := &wasm.Module{
		Types: &wasm.TypeSection{
			Entries: []wasm.FunctionSig{sig([]wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, []wasm.ValueType{wasm.ValueTypeI32})},
		},
		Function: &wasm.FunctionSection{Types: []uint32{0}},
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
	require.NoError(t, core.WriteStats(&buf, env, mod))

	out := buf.String()
	require.Contains(t, out, "funcidx")
	require.Contains(t, out, "i32 arith/compare")
	// one header row plus one data row for the single defined function.
	lines := bytes.Count(buf.Bytes(), []byte("\n"))
	require.Equal(t, 2, lines)
}
