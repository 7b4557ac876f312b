package core

import (
	"encoding/binary"

	"github.com/wasmforge/wasmforge/wasm/leb128"
)

// initValue is the single typed value an init-expr evaluates to.
type initValue struct {
	Type OperandType
	I32  int32
	I64  int64
	F32  uint32 // bits
	F64  uint64 // bits
}

// evalInitExpr evaluates a constant initializer expression's raw byte
// span (as captured by wasm's readInitExpr: one opcode, its immediate,
// and the trailing end byte) per spec section 4.3. Only i32/i64/f32/f64
// const and get_global referencing an immutable, already-linked import
// are legal; get_global against a defined (not-yet-initialized) global or
// a mutable global is an init-expr-shape error.
func evalInitExpr(env *Environment, mod *Module, expr []byte) (initValue, error) {
	if len(expr) == 0 {
		return initValue{}, errorf(CategoryInitExpr, InvalidOffset, "empty constant initializer expression")
	}

	op := wasmOpcode(expr[0])
	rest := expr[1:]

	switch op {
	case wasmOpI32Const:
		v, _, err := leb128.GetVarint32(rest)
		if err != nil {
			return initValue{}, errorf(CategoryInitExpr, InvalidOffset, "decoding i32.const init expr: %v", err)
		}
		return initValue{Type: TypeI32, I32: v}, nil

	case wasmOpI64Const:
		v, _, err := leb128.GetVarint64(rest)
		if err != nil {
			return initValue{}, errorf(CategoryInitExpr, InvalidOffset, "decoding i64.const init expr: %v", err)
		}
		return initValue{Type: TypeI64, I64: v}, nil

	case wasmOpF32Const:
		if len(rest) < 4 {
			return initValue{}, errorf(CategoryInitExpr, InvalidOffset, "truncated f32.const init expr")
		}
		return initValue{Type: TypeF32, F32: binary.LittleEndian.Uint32(rest[:4])}, nil

	case wasmOpF64Const:
		if len(rest) < 8 {
			return initValue{}, errorf(CategoryInitExpr, InvalidOffset, "truncated f64.const init expr")
		}
		return initValue{Type: TypeF64, F64: binary.LittleEndian.Uint64(rest[:8])}, nil

	case wasmOpGlobalGet:
		idx, _, err := leb128.GetVarUint32(rest)
		if err != nil {
			return initValue{}, errorf(CategoryInitExpr, InvalidOffset, "decoding get_global init expr: %v", err)
		}
		return evalGlobalGetInitExpr(env, mod, idx)

	default:
		return initValue{}, errorf(CategoryInitExpr, InvalidOffset, "opcode %#x is not valid in a constant initializer expression", byte(op))
	}
}

func evalGlobalGetInitExpr(env *Environment, mod *Module, localIdx uint32) (initValue, error) {
	if int(localIdx) >= mod.NumGlobalImports {
		return initValue{}, errorf(CategoryInitExpr, InvalidOffset, "get_global in a constant initializer expression must reference an imported global, got local index %d with %d imports", localIdx, mod.NumGlobalImports)
	}
	envIdx, ok := mod.Globals.Get(localIdx)
	if !ok {
		return initValue{}, errorf(CategoryBounds, InvalidOffset, "get_global init expr index %d out of range", localIdx)
	}
	g := env.Globals[envIdx]
	if g.Mutable {
		return initValue{}, errorf(CategoryInitExpr, InvalidOffset, "get_global in a constant initializer expression must reference an immutable global")
	}
	return valueFromGlobal(g), nil
}

func valueFromGlobal(g Global) initValue {
	switch v := g.Value.(type) {
	case int32:
		return initValue{Type: TypeI32, I32: v}
	case int64:
		return initValue{Type: TypeI64, I64: v}
	case uint32:
		return initValue{Type: TypeF32, F32: v}
	case uint64:
		return initValue{Type: TypeF64, F64: v}
	default:
		return initValue{Type: g.Type}
	}
}

func globalValue(v initValue) interface{} {
	switch v.Type {
	case TypeI32:
		return v.I32
	case TypeI64:
		return v.I64
	case TypeF32:
		return v.F32
	case TypeF64:
		return v.F64
	default:
		return nil
	}
}
