package core

import (
	"encoding/binary"
	"fmt"
	"io"
)

// wasmOpcodeNames gives the human-readable mnemonic for every value
// operator and load/store opcode, which keep their original wasmOpcode
// byte in the istream (spec section 6.5). Istream-only opcodes are named
// directly in the switch in disassembleOne, since there's no wasmOpcode
// counterpart to look up.
var wasmOpcodeNames = map[wasmOpcode]string{
	wasmOpUnreachable: "unreachable", wasmOpNop: "nop",
	wasmOpDrop: "drop", wasmOpSelect: "select",

	wasmOpI32Const: "i32.const", wasmOpI64Const: "i64.const",
	wasmOpF32Const: "f32.const", wasmOpF64Const: "f64.const",

	wasmOpI32Eqz: "i32.eqz", wasmOpI32Eq: "i32.eq", wasmOpI32Ne: "i32.ne",
	wasmOpI32LtS: "i32.lt_s", wasmOpI32LtU: "i32.lt_u", wasmOpI32GtS: "i32.gt_s", wasmOpI32GtU: "i32.gt_u",
	wasmOpI32LeS: "i32.le_s", wasmOpI32LeU: "i32.le_u", wasmOpI32GeS: "i32.ge_s", wasmOpI32GeU: "i32.ge_u",

	wasmOpI64Eqz: "i64.eqz", wasmOpI64Eq: "i64.eq", wasmOpI64Ne: "i64.ne",
	wasmOpI64LtS: "i64.lt_s", wasmOpI64LtU: "i64.lt_u", wasmOpI64GtS: "i64.gt_s", wasmOpI64GtU: "i64.gt_u",
	wasmOpI64LeS: "i64.le_s", wasmOpI64LeU: "i64.le_u", wasmOpI64GeS: "i64.ge_s", wasmOpI64GeU: "i64.ge_u",

	wasmOpF32Eq: "f32.eq", wasmOpF32Ne: "f32.ne", wasmOpF32Lt: "f32.lt", wasmOpF32Gt: "f32.gt", wasmOpF32Le: "f32.le", wasmOpF32Ge: "f32.ge",
	wasmOpF64Eq: "f64.eq", wasmOpF64Ne: "f64.ne", wasmOpF64Lt: "f64.lt", wasmOpF64Gt: "f64.gt", wasmOpF64Le: "f64.le", wasmOpF64Ge: "f64.ge",

	wasmOpI32Clz: "i32.clz", wasmOpI32Ctz: "i32.ctz", wasmOpI32Popcnt: "i32.popcnt",
	wasmOpI32Add: "i32.add", wasmOpI32Sub: "i32.sub", wasmOpI32Mul: "i32.mul",
	wasmOpI32DivS: "i32.div_s", wasmOpI32DivU: "i32.div_u", wasmOpI32RemS: "i32.rem_s", wasmOpI32RemU: "i32.rem_u",
	wasmOpI32And: "i32.and", wasmOpI32Or: "i32.or", wasmOpI32Xor: "i32.xor",
	wasmOpI32Shl: "i32.shl", wasmOpI32ShrS: "i32.shr_s", wasmOpI32ShrU: "i32.shr_u",
	wasmOpI32Rotl: "i32.rotl", wasmOpI32Rotr: "i32.rotr",

	wasmOpI64Clz: "i64.clz", wasmOpI64Ctz: "i64.ctz", wasmOpI64Popcnt: "i64.popcnt",
	wasmOpI64Add: "i64.add", wasmOpI64Sub: "i64.sub", wasmOpI64Mul: "i64.mul",
	wasmOpI64DivS: "i64.div_s", wasmOpI64DivU: "i64.div_u", wasmOpI64RemS: "i64.rem_s", wasmOpI64RemU: "i64.rem_u",
	wasmOpI64And: "i64.and", wasmOpI64Or: "i64.or", wasmOpI64Xor: "i64.xor",
	wasmOpI64Shl: "i64.shl", wasmOpI64ShrS: "i64.shr_s", wasmOpI64ShrU: "i64.shr_u",
	wasmOpI64Rotl: "i64.rotl", wasmOpI64Rotr: "i64.rotr",

	wasmOpF32Abs: "f32.abs", wasmOpF32Neg: "f32.neg", wasmOpF32Ceil: "f32.ceil", wasmOpF32Floor: "f32.floor",
	wasmOpF32Trunc: "f32.trunc", wasmOpF32Nearest: "f32.nearest", wasmOpF32Sqrt: "f32.sqrt",
	wasmOpF32Add: "f32.add", wasmOpF32Sub: "f32.sub", wasmOpF32Mul: "f32.mul", wasmOpF32Div: "f32.div",
	wasmOpF32Min: "f32.min", wasmOpF32Max: "f32.max", wasmOpF32Copysign: "f32.copysign",

	wasmOpF64Abs: "f64.abs", wasmOpF64Neg: "f64.neg", wasmOpF64Ceil: "f64.ceil", wasmOpF64Floor: "f64.floor",
	wasmOpF64Trunc: "f64.trunc", wasmOpF64Nearest: "f64.nearest", wasmOpF64Sqrt: "f64.sqrt",
	wasmOpF64Add: "f64.add", wasmOpF64Sub: "f64.sub", wasmOpF64Mul: "f64.mul", wasmOpF64Div: "f64.div",
	wasmOpF64Min: "f64.min", wasmOpF64Max: "f64.max", wasmOpF64Copysign: "f64.copysign",

	wasmOpI32WrapI64: "i32.wrap_i64",
	wasmOpI32TruncF32S: "i32.trunc_f32_s", wasmOpI32TruncF32U: "i32.trunc_f32_u",
	wasmOpI32TruncF64S: "i32.trunc_f64_s", wasmOpI32TruncF64U: "i32.trunc_f64_u",
	wasmOpI64ExtendI32S: "i64.extend_i32_s", wasmOpI64ExtendI32U: "i64.extend_i32_u",
	wasmOpI64TruncF32S: "i64.trunc_f32_s", wasmOpI64TruncF32U: "i64.trunc_f32_u",
	wasmOpI64TruncF64S: "i64.trunc_f64_s", wasmOpI64TruncF64U: "i64.trunc_f64_u",
	wasmOpF32ConvertI32S: "f32.convert_i32_s", wasmOpF32ConvertI32U: "f32.convert_i32_u",
	wasmOpF32ConvertI64S: "f32.convert_i64_s", wasmOpF32ConvertI64U: "f32.convert_i64_u",
	wasmOpF32DemoteF64: "f32.demote_f64",
	wasmOpF64ConvertI32S: "f64.convert_i32_s", wasmOpF64ConvertI32U: "f64.convert_i32_u",
	wasmOpF64ConvertI64S: "f64.convert_i64_s", wasmOpF64ConvertI64U: "f64.convert_i64_u",
	wasmOpF64PromoteF32: "f64.promote_f32",
	wasmOpI32ReinterpretF32: "i32.reinterpret_f32", wasmOpI64ReinterpretF64: "i64.reinterpret_f64",
	wasmOpF32ReinterpretI32: "f32.reinterpret_i32", wasmOpF64ReinterpretI64: "f64.reinterpret_i64",

	wasmOpI32Load: "i32.load", wasmOpI64Load: "i64.load", wasmOpF32Load: "f32.load", wasmOpF64Load: "f64.load",
	wasmOpI32Load8S: "i32.load8_s", wasmOpI32Load8U: "i32.load8_u", wasmOpI32Load16S: "i32.load16_s", wasmOpI32Load16U: "i32.load16_u",
	wasmOpI64Load8S: "i64.load8_s", wasmOpI64Load8U: "i64.load8_u", wasmOpI64Load16S: "i64.load16_s", wasmOpI64Load16U: "i64.load16_u",
	wasmOpI64Load32S: "i64.load32_s", wasmOpI64Load32U: "i64.load32_u",
	wasmOpI32Store: "i32.store", wasmOpI64Store: "i64.store", wasmOpF32Store: "f32.store", wasmOpF64Store: "f64.store",
	wasmOpI32Store8: "i32.store8", wasmOpI32Store16: "i32.store16",
	wasmOpI64Store8: "i64.store8", wasmOpI64Store16: "i64.store16", wasmOpI64Store32: "i64.store32",
}

func isLoadStoreOpcode(op wasmOpcode) bool {
	switch op {
	case wasmOpI32Load, wasmOpI64Load, wasmOpF32Load, wasmOpF64Load,
		wasmOpI32Load8S, wasmOpI32Load8U, wasmOpI32Load16S, wasmOpI32Load16U,
		wasmOpI64Load8S, wasmOpI64Load8U, wasmOpI64Load16S, wasmOpI64Load16U, wasmOpI64Load32S, wasmOpI64Load32U,
		wasmOpI32Store, wasmOpI64Store, wasmOpF32Store, wasmOpF64Store,
		wasmOpI32Store8, wasmOpI32Store16, wasmOpI64Store8, wasmOpI64Store16, wasmOpI64Store32:
		return true
	default:
		return false
	}
}

// Disassemble writes a textual listing of the istream span [start, end)
// to w, one instruction per line as "offset: mnemonic immediate...".
// Branch/call/local/global targets are printed as raw environment-global
// indices or absolute istream offsets; no function or local names are
// looked up.
func Disassemble(w io.Writer, istream []byte, start, end uint32) error {
	pos := start
	for pos < end {
		next, err := disassembleOne(w, istream, pos)
		if err != nil {
			return err
		}
		pos = next
	}
	return nil
}

func disassembleOne(w io.Writer, istream []byte, pos uint32) (uint32, error) {
	if int(pos) >= len(istream) {
		return 0, fmt.Errorf("core: disassemble: offset %d past end of istream", pos)
	}
	op := istream[pos]
	cur := pos + 1

	readU32 := func() uint32 {
		v := binary.LittleEndian.Uint32(istream[cur:])
		cur += 4
		return v
	}
	readU64 := func() uint64 {
		v := binary.LittleEndian.Uint64(istream[cur:])
		cur += 8
		return v
	}
	readU8 := func() uint8 {
		v := istream[cur]
		cur++
		return v
	}

	wop := wasmOpcode(op)
	if name, ok := wasmOpcodeNames[wop]; ok {
		switch {
		case wop == wasmOpI32Const:
			fmt.Fprintf(w, "%6d: %s %d\n", pos, name, int32(readU32()))
		case wop == wasmOpI64Const:
			fmt.Fprintf(w, "%6d: %s %d\n", pos, name, int64(readU64()))
		case wop == wasmOpF32Const:
			fmt.Fprintf(w, "%6d: %s 0x%08x\n", pos, name, readU32())
		case wop == wasmOpF64Const:
			fmt.Fprintf(w, "%6d: %s 0x%016x\n", pos, name, readU64())
		case isLoadStoreOpcode(wop):
			memIdx, offset := readU32(), readU32()
			fmt.Fprintf(w, "%6d: %s memory=%d offset=%d\n", pos, name, memIdx, offset)
		default:
			fmt.Fprintf(w, "%6d: %s\n", pos, name)
		}
		return cur, nil
	}

	switch istreamOp(op) {
	case istreamDropKeep:
		drop, keep := readU32(), readU8()
		fmt.Fprintf(w, "%6d: drop_keep drop=%d keep=%d\n", pos, drop, keep)
	case istreamBr:
		fmt.Fprintf(w, "%6d: br -> %d\n", pos, readU32())
	case istreamBrUnless:
		fmt.Fprintf(w, "%6d: br_unless -> %d\n", pos, readU32())
	case istreamBrTable:
		// The BR_TABLE_DATA header and its n+1 raw (target, drop, keep)
		// entries immediately follow in the istream and are never reached
		// by linear execution (BR_TABLE always jumps directly into one
		// entry), so the disassembler consumes them here rather than
		// looping back through the generic switch.
		n, tableOffset := readU32(), readU32()
		fmt.Fprintf(w, "%6d: br_table n=%d table=%d\n", pos, n, tableOffset)

		if istreamOp(readU8()) != istreamBrTableData {
			return 0, fmt.Errorf("core: disassemble: br_table at offset %d missing br_table_data header", pos)
		}
		entrySize := readU32()
		fmt.Fprintf(w, "%6d: br_table_data entry_size=%d\n", cur-5, entrySize)

		for i := uint32(0); i <= n; i++ {
			entryPos := cur
			target, drop, keep := readU32(), readU32(), readU8()
			fmt.Fprintf(w, "%6d:   [%d] drop=%d keep=%d -> %d\n", entryPos, i, drop, keep, target)
		}
	case istreamGetLocal:
		fmt.Fprintf(w, "%6d: get_local depth=%d\n", pos, readU32())
	case istreamSetLocal:
		fmt.Fprintf(w, "%6d: set_local depth=%d\n", pos, readU32())
	case istreamTeeLocal:
		fmt.Fprintf(w, "%6d: tee_local depth=%d\n", pos, readU32())
	case istreamGetGlobal:
		fmt.Fprintf(w, "%6d: get_global %d\n", pos, readU32())
	case istreamSetGlobal:
		fmt.Fprintf(w, "%6d: set_global %d\n", pos, readU32())
	case istreamCall:
		fmt.Fprintf(w, "%6d: call -> %d\n", pos, readU32())
	case istreamCallHost:
		fmt.Fprintf(w, "%6d: call_host %d\n", pos, readU32())
	case istreamCallIndirect:
		table, sig := readU32(), readU32()
		fmt.Fprintf(w, "%6d: call_indirect table=%d sig=%d\n", pos, table, sig)
	case istreamCurrentMemory:
		fmt.Fprintf(w, "%6d: current_memory %d\n", pos, readU32())
	case istreamGrowMemory:
		fmt.Fprintf(w, "%6d: grow_memory %d\n", pos, readU32())
	case istreamAlloca:
		fmt.Fprintf(w, "%6d: alloca %d\n", pos, readU32())
	case istreamReturn:
		fmt.Fprintf(w, "%6d: return\n", pos)
	default:
		return 0, fmt.Errorf("core: disassemble: unknown istream opcode %#x at offset %d", op, pos)
	}
	return cur, nil
}
