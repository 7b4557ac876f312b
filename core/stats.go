package core

import (
	"encoding/csv"
	"io"
	"strconv"
)

// FunctionStats is one defined function's istream shape: its signature
// arity, local count, and a breakdown of istream opcode frequencies,
// grouped the way a profiler cares about rather than one row per opcode.
type FunctionStats struct {
	FuncIndex        uint32
	In               int
	Out              int
	LocalCount       int
	InstructionCount int

	Branch       int
	Call         int
	CallIndirect int
	Local        int
	Global       int
	Load         int
	Store        int
	Memory       int
	Const        int
	I32Arith     int
	I64Arith     int
	F32Arith     int
	F64Arith     int
	Convert      int
	Other        int
}

// statsHeader names each FunctionStats column, in the order row() emits
// them.
var statsHeader = []string{
	"funcidx", "in", "out", "local count", "instruction count",
	"branch", "call", "call_indirect", "local access", "global access",
	"load", "store", "memory.size/grow", "const",
	"i32 arith/compare", "i64 arith/compare", "f32 arith/compare", "f64 arith/compare",
	"convert", "other",
}

func (s FunctionStats) row() []string {
	return []string{
		strconv.FormatUint(uint64(s.FuncIndex), 10),
		strconv.Itoa(s.In),
		strconv.Itoa(s.Out),
		strconv.Itoa(s.LocalCount),
		strconv.Itoa(s.InstructionCount),
		strconv.Itoa(s.Branch),
		strconv.Itoa(s.Call),
		strconv.Itoa(s.CallIndirect),
		strconv.Itoa(s.Local),
		strconv.Itoa(s.Global),
		strconv.Itoa(s.Load),
		strconv.Itoa(s.Store),
		strconv.Itoa(s.Memory),
		strconv.Itoa(s.Const),
		strconv.Itoa(s.I32Arith),
		strconv.Itoa(s.I64Arith),
		strconv.Itoa(s.F32Arith),
		strconv.Itoa(s.F64Arith),
		strconv.Itoa(s.Convert),
		strconv.Itoa(s.Other),
	}
}

// WriteStats writes one CSV row per defined function in mod, built from
// mod's own istream span, using the standard library's encoding/csv
// writer directly rather than a struct-tag-driven encoder.
func WriteStats(w io.Writer, env *Environment, mod *Module) error {
	csvWriter := csv.NewWriter(w)
	defer csvWriter.Flush()
	if err := csvWriter.Write(statsHeader); err != nil {
		return err
	}

	defined := make([]uint32, 0, len(mod.Funcs)-mod.NumFuncImports)
	for i := mod.NumFuncImports; i < len(mod.Funcs); i++ {
		envIdx, _ := mod.Funcs.Get(uint32(i))
		defined = append(defined, envIdx)
	}

	for i, envIdx := range defined {
		fn := env.Funcs[envIdx]
		sig := env.Sigs[fn.SigIndex]

		end := mod.IstreamEnd
		if i+1 < len(defined) {
			end = env.Funcs[defined[i+1]].Offset
		}

		row := FunctionStats{
			FuncIndex:  uint32(mod.NumFuncImports + i),
			In:         len(sig.Params),
			Out:        len(sig.Results),
			LocalCount: fn.NumLocals,
		}
		if err := accumulateStats(&row, env.Istream, fn.Offset, end); err != nil {
			return err
		}
		if err := csvWriter.Write(row.row()); err != nil {
			return err
		}
	}
	return nil
}

func accumulateStats(row *FunctionStats, istream []byte, start, end uint32) error {
	pos := start
	for pos < end {
		op := istream[pos]
		row.InstructionCount++

		wop := wasmOpcode(op)
		switch {
		case isLoadStoreOpcode(wop):
			row.Load, row.Store = bumpLoadStore(row, wop)
		case wop == wasmOpI32Const || wop == wasmOpI64Const || wop == wasmOpF32Const || wop == wasmOpF64Const:
			row.Const++
		case isArithOrCompare(wop, TypeI32):
			row.I32Arith++
		case isArithOrCompare(wop, TypeI64):
			row.I64Arith++
		case isArithOrCompare(wop, TypeF32):
			row.F32Arith++
		case isArithOrCompare(wop, TypeF64):
			row.F64Arith++
		case isConvert(wop):
			row.Convert++
		default:
			switch istreamOp(op) {
			case istreamBr, istreamBrUnless, istreamBrTable:
				row.Branch++
			case istreamCall, istreamCallHost:
				row.Call++
			case istreamCallIndirect:
				row.CallIndirect++
			case istreamGetLocal, istreamSetLocal, istreamTeeLocal:
				row.Local++
			case istreamGetGlobal, istreamSetGlobal:
				row.Global++
			case istreamCurrentMemory, istreamGrowMemory:
				row.Memory++
			default:
				row.Other++
			}
		}

		next, err := disassembleOne(discardWriter{}, istream, pos)
		if err != nil {
			return err
		}
		pos = next
	}
	return nil
}

// bumpLoadStore increments the appropriate counter based on whether op is
// a load or store opcode (the 0x28-0x35 range loads, 0x36-0x3e stores)
// and returns the updated pair.
func bumpLoadStore(row *FunctionStats, op wasmOpcode) (int, int) {
	if op <= wasmOpI64Load32U {
		return row.Load + 1, row.Store
	}
	return row.Load, row.Store + 1
}

func isArithOrCompare(op wasmOpcode, t OperandType) bool {
	so, ok := simpleOps[op]
	if !ok {
		return false
	}
	if len(so.Params) == 0 {
		return false
	}
	return so.Params[0] == t && !isConvert(op)
}

func isConvert(op wasmOpcode) bool {
	so, ok := simpleOps[op]
	if !ok {
		return false
	}
	if len(so.Params) != 1 || len(so.Results) != 1 {
		return false
	}
	return so.Params[0] != so.Results[0]
}

// discardWriter implements io.Writer by discarding everything, used to
// drive disassembleOne purely for its opcode-width-decoding side effect
// when accumulating statistics.
type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
