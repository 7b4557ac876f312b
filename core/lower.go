package core

import (
	"github.com/wasmforge/wasmforge/wasm"
	"github.com/wasmforge/wasmforge/wasm/leb128"
)

// simpleOp describes a pure value operator's fixed pop/push shape: no
// immediates, no memory/local/global access, no control-flow effect.
// These keep their original wasmOpcode byte as their istream opcode.
type simpleOp struct {
	Params  []OperandType
	Results []OperandType
}

var simpleOps map[wasmOpcode]simpleOp

func addOp(op wasmOpcode, params, results []OperandType) {
	simpleOps[op] = simpleOp{Params: params, Results: results}
}

func init() {
	simpleOps = map[wasmOpcode]simpleOp{}

	i32, i64, f32, f64 := TypeI32, TypeI64, TypeF32, TypeF64

	unary := func(t OperandType, ops ...wasmOpcode) {
		for _, op := range ops {
			addOp(op, []OperandType{t}, []OperandType{t})
		}
	}
	cmpUnary := func(t OperandType, ops ...wasmOpcode) {
		for _, op := range ops {
			addOp(op, []OperandType{t}, []OperandType{i32})
		}
	}
	binary := func(t OperandType, ops ...wasmOpcode) {
		for _, op := range ops {
			addOp(op, []OperandType{t, t}, []OperandType{t})
		}
	}
	cmpBinary := func(t OperandType, ops ...wasmOpcode) {
		for _, op := range ops {
			addOp(op, []OperandType{t, t}, []OperandType{i32})
		}
	}
	convert := func(from, to OperandType, ops ...wasmOpcode) {
		for _, op := range ops {
			addOp(op, []OperandType{from}, []OperandType{to})
		}
	}

	cmpUnary(i32, wasmOpI32Eqz)
	cmpBinary(i32, wasmOpI32Eq, wasmOpI32Ne, wasmOpI32LtS, wasmOpI32LtU, wasmOpI32GtS, wasmOpI32GtU, wasmOpI32LeS, wasmOpI32LeU, wasmOpI32GeS, wasmOpI32GeU)
	cmpUnary(i64, wasmOpI64Eqz)
	cmpBinary(i64, wasmOpI64Eq, wasmOpI64Ne, wasmOpI64LtS, wasmOpI64LtU, wasmOpI64GtS, wasmOpI64GtU, wasmOpI64LeS, wasmOpI64LeU, wasmOpI64GeS, wasmOpI64GeU)
	cmpBinary(f32, wasmOpF32Eq, wasmOpF32Ne, wasmOpF32Lt, wasmOpF32Gt, wasmOpF32Le, wasmOpF32Ge)
	cmpBinary(f64, wasmOpF64Eq, wasmOpF64Ne, wasmOpF64Lt, wasmOpF64Gt, wasmOpF64Le, wasmOpF64Ge)

	unary(i32, wasmOpI32Clz, wasmOpI32Ctz, wasmOpI32Popcnt)
	binary(i32, wasmOpI32Add, wasmOpI32Sub, wasmOpI32Mul, wasmOpI32DivS, wasmOpI32DivU, wasmOpI32RemS, wasmOpI32RemU,
		wasmOpI32And, wasmOpI32Or, wasmOpI32Xor, wasmOpI32Shl, wasmOpI32ShrS, wasmOpI32ShrU, wasmOpI32Rotl, wasmOpI32Rotr)

	unary(i64, wasmOpI64Clz, wasmOpI64Ctz, wasmOpI64Popcnt)
	binary(i64, wasmOpI64Add, wasmOpI64Sub, wasmOpI64Mul, wasmOpI64DivS, wasmOpI64DivU, wasmOpI64RemS, wasmOpI64RemU,
		wasmOpI64And, wasmOpI64Or, wasmOpI64Xor, wasmOpI64Shl, wasmOpI64ShrS, wasmOpI64ShrU, wasmOpI64Rotl, wasmOpI64Rotr)

	unary(f32, wasmOpF32Abs, wasmOpF32Neg, wasmOpF32Ceil, wasmOpF32Floor, wasmOpF32Trunc, wasmOpF32Nearest, wasmOpF32Sqrt)
	binary(f32, wasmOpF32Add, wasmOpF32Sub, wasmOpF32Mul, wasmOpF32Div, wasmOpF32Min, wasmOpF32Max, wasmOpF32Copysign)

	unary(f64, wasmOpF64Abs, wasmOpF64Neg, wasmOpF64Ceil, wasmOpF64Floor, wasmOpF64Trunc, wasmOpF64Nearest, wasmOpF64Sqrt)
	binary(f64, wasmOpF64Add, wasmOpF64Sub, wasmOpF64Mul, wasmOpF64Div, wasmOpF64Min, wasmOpF64Max, wasmOpF64Copysign)

	convert(i64, i32, wasmOpI32WrapI64)
	convert(f32, i32, wasmOpI32TruncF32S, wasmOpI32TruncF32U)
	convert(f64, i32, wasmOpI32TruncF64S, wasmOpI32TruncF64U)
	convert(i32, i64, wasmOpI64ExtendI32S, wasmOpI64ExtendI32U)
	convert(f32, i64, wasmOpI64TruncF32S, wasmOpI64TruncF32U)
	convert(f64, i64, wasmOpI64TruncF64S, wasmOpI64TruncF64U)
	convert(i32, f32, wasmOpF32ConvertI32S, wasmOpF32ConvertI32U)
	convert(i64, f32, wasmOpF32ConvertI64S, wasmOpF32ConvertI64U)
	convert(f64, f32, wasmOpF32DemoteF64)
	convert(i32, f64, wasmOpF64ConvertI32S, wasmOpF64ConvertI32U)
	convert(i64, f64, wasmOpF64ConvertI64S, wasmOpF64ConvertI64U)
	convert(f32, f64, wasmOpF64PromoteF32)
	convert(f32, i32, wasmOpI32ReinterpretF32)
	convert(f64, i64, wasmOpI64ReinterpretF64)
	convert(i32, f32, wasmOpF32ReinterpretI32)
	convert(i64, f64, wasmOpF64ReinterpretI64)
}

// naturalAlignment returns the byte width of a memory access, used to
// bound alignment_log2 (spec section 4.5: (1 << alignment_log2) must not
// exceed this).
func naturalAlignment(op wasmOpcode) uint32 {
	switch op {
	case wasmOpI32Load8S, wasmOpI32Load8U, wasmOpI64Load8S, wasmOpI64Load8U, wasmOpI32Store8, wasmOpI64Store8:
		return 1
	case wasmOpI32Load16S, wasmOpI32Load16U, wasmOpI64Load16S, wasmOpI64Load16U, wasmOpI32Store16, wasmOpI64Store16:
		return 2
	case wasmOpI32Load, wasmOpF32Load, wasmOpI64Load32S, wasmOpI64Load32U, wasmOpI32Store, wasmOpF32Store, wasmOpI64Store32:
		return 4
	case wasmOpI64Load, wasmOpF64Load, wasmOpI64Store, wasmOpF64Store:
		return 8
	default:
		return 1
	}
}

func loadType(op wasmOpcode) OperandType {
	switch op {
	case wasmOpI64Load, wasmOpI64Load8S, wasmOpI64Load8U, wasmOpI64Load16S, wasmOpI64Load16U, wasmOpI64Load32S, wasmOpI64Load32U:
		return TypeI64
	case wasmOpF32Load:
		return TypeF32
	case wasmOpF64Load:
		return TypeF64
	default:
		return TypeI32
	}
}

func storeType(op wasmOpcode) OperandType {
	switch op {
	case wasmOpI64Store, wasmOpI64Store8, wasmOpI64Store16, wasmOpI64Store32:
		return TypeI64
	case wasmOpF32Store:
		return TypeF32
	case wasmOpF64Store:
		return TypeF64
	default:
		return TypeI32
	}
}

// codeCursor is a position-based decoder over a function body's raw
// instruction bytes, using the slice-based leb128 decoders to avoid
// per-byte io.Reader overhead in the hot path.
type codeCursor struct {
	code []byte
	pos  int
}

func (c *codeCursor) readByte() (byte, error) {
	if c.pos >= len(c.code) {
		return 0, errorf(CategoryStructural, InvalidOffset, "unexpected end of function body")
	}
	b := c.code[c.pos]
	c.pos++
	return b, nil
}

func (c *codeCursor) readVarUint32() (uint32, error) {
	v, n, err := leb128.GetVarUint32(c.code[c.pos:])
	if err != nil {
		return 0, errorf(CategoryStructural, InvalidOffset, "decoding instruction immediate: %v", err)
	}
	c.pos += n
	return v, nil
}

func (c *codeCursor) readVarint32() (int32, error) {
	v, n, err := leb128.GetVarint32(c.code[c.pos:])
	if err != nil {
		return 0, errorf(CategoryStructural, InvalidOffset, "decoding instruction immediate: %v", err)
	}
	c.pos += n
	return v, nil
}

func (c *codeCursor) readVarint64() (int64, error) {
	v, n, err := leb128.GetVarint64(c.code[c.pos:])
	if err != nil {
		return 0, errorf(CategoryStructural, InvalidOffset, "decoding instruction immediate: %v", err)
	}
	c.pos += n
	return v, nil
}

func (c *codeCursor) readBytes(n int) ([]byte, error) {
	if c.pos+n > len(c.code) {
		return nil, errorf(CategoryStructural, InvalidOffset, "unexpected end of function body")
	}
	b := c.code[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *codeCursor) atEnd() bool {
	return c.pos >= len(c.code)
}

// blockSignature decodes a block/loop/if's result-type immediate: either
// 0x40 (empty) or a single value type byte (the MVP allows 0 or 1
// results).
func (c *codeCursor) blockSignature() ([]OperandType, error) {
	b, err := c.readByte()
	if err != nil {
		return nil, err
	}
	if b == 0x40 {
		return nil, nil
	}
	ot, ok := valueTypeByteToOperandType(b)
	if !ok {
		return nil, errorf(CategoryType, InvalidOffset, "invalid block result type %#x", b)
	}
	return []OperandType{ot}, nil
}

func valueTypeByteToOperandType(b byte) (OperandType, bool) {
	vt, ok := wasm.ValueType(0), false
	switch b {
	case 0x7f:
		vt, ok = wasm.ValueTypeI32, true
	case 0x7e:
		vt, ok = wasm.ValueTypeI64, true
	case 0x7d:
		vt, ok = wasm.ValueTypeF32, true
	case 0x7c:
		vt, ok = wasm.ValueTypeF64, true
	}
	if !ok {
		return 0, false
	}
	return operandTypeFromValueType(vt)
}

// funcLowerer holds the per-function-body state threaded through
// instruction lowering: the operand-type stack, label stack, and this
// function's local type list.
type funcLowerer struct {
	l         *lowering
	ots       *operandTypeStack
	ls        *labelStack
	locals    []OperandType
	numParams int
}

// installCode lowers every defined function's body, in declaration order,
// resolving each one's func_fixups slot as its offset becomes known
// (spec section 4.6).
func (l *lowering) installCode() error {
	if l.wmod.Code == nil {
		return nil
	}
	for i, body := range l.wmod.Code.Bodies {
		if err := l.lowerFunctionBody(i, body); err != nil {
			return err
		}
	}
	if !l.funcFixups.AllEmpty() {
		return errorf(CategoryStructural, InvalidOffset, "internal error: unresolved call fixups remain at module end")
	}
	return nil
}

func (l *lowering) lowerFunctionBody(definedIdx int, body wasm.Code) error {
	envIdx, ok := l.mod.Funcs.Get(uint32(l.mod.NumFuncImports + definedIdx))
	if !ok {
		return errorf(CategoryBounds, InvalidOffset, "internal error: defined function %d has no env index", definedIdx)
	}
	fn := l.env.Funcs[envIdx]
	sig := l.env.Sigs[fn.SigIndex]

	offset := l.e.Offset()
	l.funcFixups.ResolveAll(uint32(definedIdx), offset, l.e)

	locals := make([]OperandType, 0, len(sig.Params))
	locals = append(locals, sig.Params...)
	numLocalDecls := 0
	for _, decl := range body.Locals {
		ot, ok := operandTypeFromValueType(decl.Type)
		if !ok {
			return errorf(CategoryType, InvalidOffset, "local declares unsupported value type")
		}
		for i := uint32(0); i < decl.Count; i++ {
			locals = append(locals, ot)
		}
		numLocalDecls += int(decl.Count)
	}

	fn.Offset = offset
	fn.Locals = locals
	fn.NumParams = len(sig.Params)
	fn.NumLocals = numLocalDecls
	l.env.Funcs[envIdx] = fn

	fl := &funcLowerer{l: l, ots: &operandTypeStack{}, ls: newLabelStack(), locals: locals, numParams: len(sig.Params)}

	ls := fl.ls
	ls.Push(Label{Kind: LabelFunc, Results: sig.Results, TypeStackLimit: 0, Offset: InvalidIndex, FixupOffset: InvalidIndex})

	for range sig.Params {
		// Params arrive already on the conceptual stack, supplied by the
		// caller's own DROP_KEEP reconciliation at the call site.
	}
	for _, t := range sig.Params {
		fl.ots.Push(t)
	}
	for _, t := range locals[len(sig.Params):] {
		fl.ots.Push(t)
	}
	l.e.EmitOpcode(istreamAlloca)
	l.e.EmitU32(uint32(numLocalDecls))
	ls.Top().TypeStackLimit = fl.ots.Size()

	cursor := &codeCursor{code: body.Code}
	if err := fl.lowerInstructions(cursor); err != nil {
		return err
	}

	return nil
}

// lowerInstructions drives the per-opcode switch until the FUNC label is
// popped by its matching `end`.
func (fl *funcLowerer) lowerInstructions(c *codeCursor) error {
	for {
		op, err := c.readByte()
		if err != nil {
			return err
		}
		done, err := fl.lowerOne(c, wasmOpcode(op))
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// lowerOne lowers a single opcode. It returns done=true once the
// function's FUNC label has been popped by its `end`.
func (fl *funcLowerer) lowerOne(c *codeCursor, op wasmOpcode) (bool, error) {
	l := fl.l
	e := l.e
	ots := fl.ots
	ls := fl.ls

	if so, ok := simpleOps[op]; ok {
		for i := len(so.Params) - 1; i >= 0; i-- {
			if !ots.Check(so.Params[i]) {
				return false, errorf(CategoryType, InvalidOffset, "operand type mismatch for opcode %#x", byte(op))
			}
		}
		e.EmitU8(byte(op))
		for _, t := range so.Results {
			ots.Push(t)
		}
		return false, nil
	}

	switch op {
	case wasmOpNop:
		// no emission; nop contributes nothing to the istream.

	case wasmOpUnreachable:
		e.EmitU8(byte(wasmOpUnreachable))
		ots.PushAny(ls.Top().TypeStackLimit)

	case wasmOpDrop:
		if _, ok := ots.Pop(); !ok {
			return false, errorf(CategoryType, InvalidOffset, "drop requires a value on the operand stack")
		}
		e.EmitOpcode(istreamDrop)

	case wasmOpSelect:
		if !ots.Check(TypeI32) {
			return false, errorf(CategoryType, InvalidOffset, "select requires an i32 condition")
		}
		b, ok1 := ots.Pop()
		a, ok2 := ots.Pop()
		if !ok1 || !ok2 {
			return false, errorf(CategoryType, InvalidOffset, "select requires two operands")
		}
		if !ots.isAny() && a != b {
			return false, errorf(CategoryType, InvalidOffset, "select operands must share a type")
		}
		e.EmitU8(byte(wasmOpSelect))
		if a == TypeAny {
			a = b
		}
		ots.Push(a)

	case wasmOpBlock, wasmOpLoop, wasmOpIf:
		results, err := c.blockSignature()
		if err != nil {
			return false, err
		}
		if err := fl.beginStructured(op, results); err != nil {
			return false, err
		}

	case wasmOpElse:
		if err := fl.lowerElse(); err != nil {
			return false, err
		}

	case wasmOpEnd:
		done, err := fl.lowerEnd()
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}

	case wasmOpBr:
		depth, err := c.readVarUint32()
		if err != nil {
			return false, err
		}
		if err := fl.emitBr(depth); err != nil {
			return false, err
		}

	case wasmOpBrIf:
		depth, err := c.readVarUint32()
		if err != nil {
			return false, err
		}
		if err := fl.emitBrIf(depth); err != nil {
			return false, err
		}

	case wasmOpBrTable:
		if err := fl.emitBrTable(c); err != nil {
			return false, err
		}

	case wasmOpReturn:
		if err := fl.emitReturn(); err != nil {
			return false, err
		}

	case wasmOpCall:
		idx, err := c.readVarUint32()
		if err != nil {
			return false, err
		}
		if err := fl.emitCall(idx); err != nil {
			return false, err
		}

	case wasmOpCallIndirect:
		sigIdx, err := c.readVarUint32()
		if err != nil {
			return false, err
		}
		if _, err := c.readByte(); err != nil { // reserved table-index byte, must be 0 in the MVP
			return false, err
		}
		if err := fl.emitCallIndirect(sigIdx); err != nil {
			return false, err
		}

	case wasmOpLocalGet, wasmOpLocalSet, wasmOpLocalTee:
		idx, err := c.readVarUint32()
		if err != nil {
			return false, err
		}
		if err := fl.emitLocal(op, idx); err != nil {
			return false, err
		}

	case wasmOpGlobalGet, wasmOpGlobalSet:
		idx, err := c.readVarUint32()
		if err != nil {
			return false, err
		}
		if err := fl.emitGlobal(op, idx); err != nil {
			return false, err
		}

	case wasmOpI32Const:
		v, err := c.readVarint32()
		if err != nil {
			return false, err
		}
		e.EmitU8(byte(wasmOpI32Const))
		e.EmitU32(uint32(v))
		ots.Push(TypeI32)

	case wasmOpI64Const:
		v, err := c.readVarint64()
		if err != nil {
			return false, err
		}
		e.EmitU8(byte(wasmOpI64Const))
		e.EmitU64(uint64(v))
		ots.Push(TypeI64)

	case wasmOpF32Const:
		b, err := c.readBytes(4)
		if err != nil {
			return false, err
		}
		e.EmitU8(byte(wasmOpF32Const))
		e.env.Istream = append(e.env.Istream, b...)
		ots.Push(TypeF32)

	case wasmOpF64Const:
		b, err := c.readBytes(8)
		if err != nil {
			return false, err
		}
		e.EmitU8(byte(wasmOpF64Const))
		e.env.Istream = append(e.env.Istream, b...)
		ots.Push(TypeF64)

	case wasmOpI32Load, wasmOpI64Load, wasmOpF32Load, wasmOpF64Load,
		wasmOpI32Load8S, wasmOpI32Load8U, wasmOpI32Load16S, wasmOpI32Load16U,
		wasmOpI64Load8S, wasmOpI64Load8U, wasmOpI64Load16S, wasmOpI64Load16U, wasmOpI64Load32S, wasmOpI64Load32U:
		if err := fl.emitLoad(c, op); err != nil {
			return false, err
		}

	case wasmOpI32Store, wasmOpI64Store, wasmOpF32Store, wasmOpF64Store,
		wasmOpI32Store8, wasmOpI32Store16, wasmOpI64Store8, wasmOpI64Store16, wasmOpI64Store32:
		if err := fl.emitStore(c, op); err != nil {
			return false, err
		}

	case wasmOpMemorySize:
		if _, err := c.readByte(); err != nil { // reserved memory-index byte
			return false, err
		}
		if l.mod.MemoryIndex == InvalidIndex {
			return false, errorf(CategoryBounds, InvalidOffset, "memory.size requires a memory")
		}
		e.EmitOpcode(istreamCurrentMemory)
		e.EmitU32(l.mod.MemoryIndex)
		ots.Push(TypeI32)

	case wasmOpMemoryGrow:
		if _, err := c.readByte(); err != nil {
			return false, err
		}
		if l.mod.MemoryIndex == InvalidIndex {
			return false, errorf(CategoryBounds, InvalidOffset, "memory.grow requires a memory")
		}
		if !ots.Check(TypeI32) {
			return false, errorf(CategoryType, InvalidOffset, "memory.grow requires an i32 delta")
		}
		e.EmitOpcode(istreamGrowMemory)
		e.EmitU32(l.mod.MemoryIndex)
		ots.Push(TypeI32)

	default:
		return false, errorf(CategoryStructural, InvalidOffset, "unsupported opcode %#x", byte(op))
	}

	return false, nil
}

// beginStructured handles block/loop/if per spec section 4.5's
// Structured-control table.
func (fl *funcLowerer) beginStructured(op wasmOpcode, results []OperandType) error {
	e := fl.l.e
	ots := fl.ots
	ls := fl.ls

	switch op {
	case wasmOpBlock:
		ls.Push(Label{Kind: LabelBlock, Results: results, TypeStackLimit: ots.Size(), Offset: InvalidIndex, FixupOffset: InvalidIndex})

	case wasmOpLoop:
		ls.Push(Label{Kind: LabelLoop, Results: results, TypeStackLimit: ots.Size(), Offset: e.Offset(), FixupOffset: InvalidIndex})

	case wasmOpIf:
		if !ots.Check(TypeI32) {
			return errorf(CategoryType, InvalidOffset, "if requires an i32 condition")
		}
		e.EmitOpcode(istreamBrUnless)
		fixup := e.reserveU32()
		ls.Push(Label{Kind: LabelIf, Results: results, TypeStackLimit: ots.Size(), Offset: InvalidIndex, FixupOffset: fixup})
	}
	return nil
}

// lowerElse handles the `else` opcode, per spec section 4.5.
func (fl *funcLowerer) lowerElse() error {
	e := fl.l.e
	ots := fl.ots
	ls := fl.ls

	top := ls.Top()
	if top.Kind != LabelIf {
		return errorf(CategoryStructural, InvalidOffset, "else without a matching if")
	}
	if !ots.MatchesResults(top.TypeStackLimit, top.Results) {
		return errorf(CategoryType, InvalidOffset, "if branch does not produce the declared result type(s)")
	}

	e.EmitOpcode(istreamBr)
	brFixup := e.reserveU32()
	e.PatchU32(top.FixupOffset, e.Offset())

	top.Kind = LabelElse
	top.FixupOffset = brFixup
	ots.ResetToLimit(top.TypeStackLimit)
	return nil
}

// lowerEnd handles the `end` opcode, per spec section 4.5 and 4.6.
// Returns done=true when this was the FUNC label's end.
func (fl *funcLowerer) lowerEnd() (bool, error) {
	e := fl.l.e
	ots := fl.ots
	ls := fl.ls

	top := ls.Top()
	if !ots.MatchesResults(top.TypeStackLimit, top.Results) {
		return false, errorf(CategoryType, InvalidOffset, "block does not produce the declared result type(s)")
	}

	switch top.Kind {
	case LabelIf, LabelElse:
		e.PatchU32(top.FixupOffset, e.Offset())
	}

	if !ls.TopFixupsEmpty() {
		ls.ResolveBranchesToTop(e.Offset(), e)
	}

	if top.Kind == LabelFunc {
		return fl.endFunctionBody()
	}

	ots.ResetToLimit(top.TypeStackLimit)
	for _, t := range top.Results {
		ots.Push(t)
	}
	ls.Pop()
	return false, nil
}

// endFunctionBody implements spec section 4.6's end-of-function
// reconciliation and return-prologue emission.
func (fl *funcLowerer) endFunctionBody() (bool, error) {
	e := fl.l.e
	ots := fl.ots
	ls := fl.ls
	top := ls.Top()

	if ots.isAny() {
		ots.ResetToLimit(top.TypeStackLimit)
		for _, t := range top.Results {
			ots.Push(t)
		}
	}

	drop := uint32(ots.Size() - top.TypeStackLimit - len(top.Results))
	e.EmitDropKeep(drop, uint8(len(top.Results)))
	e.EmitOpcode(istreamReturn)
	ots.PushAny(top.TypeStackLimit)

	ls.Pop()
	return true, nil
}

// branchDropArity computes the (drop, arity) pair for a branch targeting
// `depth` frames from the top, per spec section 4.5.
func (fl *funcLowerer) branchDropArity(depth uint32) (*Label, uint32, uint8, error) {
	label, ok := fl.ls.At(depth)
	if !ok {
		return nil, 0, 0, errorf(CategoryBounds, InvalidOffset, "branch depth %d out of range", depth)
	}
	arity := len(label.Results)
	if label.Kind == LabelLoop {
		arity = 0
	}
	size := fl.ots.Size()
	if fl.ots.isAny() {
		size = label.TypeStackLimit + arity
	}
	drop := uint32(size - label.TypeStackLimit - arity)
	return label, drop, uint8(arity), nil
}

// emitBr lowers `br depth`.
func (fl *funcLowerer) emitBr(depth uint32) error {
	e := fl.l.e
	label, drop, arity, err := fl.branchDropArity(depth)
	if err != nil {
		return err
	}
	e.EmitDropKeep(drop, arity)
	e.EmitOpcode(istreamBr)
	fl.emitBranchTarget(depth, label)
	fl.ots.PushAny(fl.ls.Top().TypeStackLimit)
	return nil
}

// emitBranchTarget emits the 32-bit branch-target immediate, either the
// loop's recorded backward-entry offset or a fixup slot awaiting the
// label's `end`.
func (fl *funcLowerer) emitBranchTarget(depth uint32, label *Label) {
	e := fl.l.e
	if label.Kind == LabelLoop {
		e.EmitU32(label.Offset)
		return
	}
	if label.Offset != InvalidIndex {
		e.EmitU32(label.Offset)
		return
	}
	offset := e.reserveU32()
	fl.ls.AddBranchFixup(depth, offset)
}

// emitBrIf lowers `br_if depth`: pop the i32 condition, then emit a
// BR_UNLESS that skips over the real branch on the false path so the
// drop/keep reconciliation only happens when actually taken.
func (fl *funcLowerer) emitBrIf(depth uint32) error {
	e := fl.l.e
	ots := fl.ots
	if !ots.Check(TypeI32) {
		return errorf(CategoryType, InvalidOffset, "br_if requires an i32 condition")
	}
	label, drop, arity, err := fl.branchDropArity(depth)
	if err != nil {
		return err
	}

	e.EmitOpcode(istreamBrUnless)
	skipFixup := e.reserveU32()

	e.EmitDropKeep(drop, arity)
	e.EmitOpcode(istreamBr)
	fl.emitBranchTarget(depth, label)

	e.PatchU32(skipFixup, e.Offset())
	return nil
}

// emitBrTable lowers `br_table`, per spec section 4.5 and the istream
// encoding in section 6.5.
func (fl *funcLowerer) emitBrTable(c *codeCursor) error {
	e := fl.l.e
	ots := fl.ots
	if !ots.Check(TypeI32) {
		return errorf(CategoryType, InvalidOffset, "br_table requires an i32 index")
	}

	n, err := c.readVarUint32()
	if err != nil {
		return err
	}
	depths := make([]uint32, n+1)
	for i := range depths {
		d, err := c.readVarUint32()
		if err != nil {
			return err
		}
		depths[i] = d
	}

	e.EmitOpcode(istreamBrTable)
	e.EmitU32(n)
	tableOffsetSlot := e.reserveU32()
	e.EmitOpcode(istreamBrTableData)
	const entrySize = 9 // target:u32 drop:u32 keep:u8
	e.EmitU32(entrySize)

	e.PatchU32(tableOffsetSlot, e.Offset())
	for _, depth := range depths {
		label, drop, arity, err := fl.branchDropArity(depth)
		if err != nil {
			return err
		}
		fl.emitBranchTarget(depth, label)
		e.EmitU32(drop)
		e.EmitU8(arity)
	}

	fl.ots.PushAny(fl.ls.Top().TypeStackLimit)
	return nil
}

// emitReturn lowers `return`, per spec section 4.5.
func (fl *funcLowerer) emitReturn() error {
	e := fl.l.e
	ots := fl.ots
	funcLabel := fl.ls.labels[0]

	if !ots.MatchesResults(ots.Size()-len(funcLabel.Results), funcLabel.Results) && !ots.isAny() {
		return errorf(CategoryType, InvalidOffset, "return value(s) do not match function result type(s)")
	}

	size := ots.Size()
	if ots.isAny() {
		size = funcLabel.TypeStackLimit + len(funcLabel.Results)
	}
	drop := uint32(size - funcLabel.TypeStackLimit - len(funcLabel.Results))
	e.EmitDropKeep(drop, uint8(len(funcLabel.Results)))
	e.EmitOpcode(istreamReturn)
	ots.PushAny(fl.ls.Top().TypeStackLimit)
	return nil
}

// emitCall lowers a direct `call`, per spec section 4.5.
func (fl *funcLowerer) emitCall(localIdx uint32) error {
	l := fl.l
	e := l.e
	ots := fl.ots

	envIdx, ok := l.mod.Funcs.Get(localIdx)
	if !ok {
		return errorf(CategoryBounds, InvalidOffset, "call references out-of-range function index %d", localIdx)
	}
	fn := l.env.Funcs[envIdx]
	sig := l.env.Sigs[fn.SigIndex]

	for i := len(sig.Params) - 1; i >= 0; i-- {
		if !ots.Check(sig.Params[i]) {
			return errorf(CategoryType, InvalidOffset, "call argument type mismatch")
		}
	}

	if fn.IsHost {
		e.EmitOpcode(istreamCallHost)
		e.EmitU32(envIdx)
	} else {
		e.EmitOpcode(istreamCall)
		if fn.Offset != InvalidIndex {
			e.EmitU32(fn.Offset)
		} else {
			definedIdx := localIdx - uint32(l.mod.NumFuncImports)
			offset := e.reserveU32()
			l.funcFixups.Append(definedIdx, offset)
		}
	}

	for _, t := range sig.Results {
		ots.Push(t)
	}
	return nil
}

// emitCallIndirect lowers `call_indirect`, per spec section 4.5.
func (fl *funcLowerer) emitCallIndirect(localSigIdx uint32) error {
	l := fl.l
	e := l.e
	ots := fl.ots

	if l.mod.TableIndex == InvalidIndex {
		return errorf(CategoryBounds, InvalidOffset, "call_indirect requires a table")
	}
	envSigIdx, ok := l.mod.Sigs.Get(localSigIdx)
	if !ok {
		return errorf(CategoryBounds, InvalidOffset, "call_indirect references out-of-range signature index %d", localSigIdx)
	}
	sig := l.env.Sigs[envSigIdx]

	if !ots.Check(TypeI32) {
		return errorf(CategoryType, InvalidOffset, "call_indirect requires an i32 table index")
	}
	for i := len(sig.Params) - 1; i >= 0; i-- {
		if !ots.Check(sig.Params[i]) {
			return errorf(CategoryType, InvalidOffset, "call_indirect argument type mismatch")
		}
	}

	e.EmitOpcode(istreamCallIndirect)
	e.EmitU32(l.mod.TableIndex)
	e.EmitU32(envSigIdx)

	for _, t := range sig.Results {
		ots.Push(t)
	}
	return nil
}

// emitLocal lowers local.get/set/tee, addressing the local with the
// reverse-offset scheme in spec section 4.5.
func (fl *funcLowerer) emitLocal(op wasmOpcode, idx uint32) error {
	e := fl.l.e
	ots := fl.ots

	if int(idx) >= len(fl.locals) {
		return errorf(CategoryBounds, InvalidOffset, "local index %d out of range", idx)
	}
	t := fl.locals[idx]

	switch op {
	case wasmOpLocalGet:
		e.EmitOpcode(istreamGetLocal)
		e.EmitU32(uint32(ots.Size()) - idx)
		ots.Push(t)

	case wasmOpLocalSet:
		if !ots.Check(t) {
			return errorf(CategoryType, InvalidOffset, "local.set type mismatch")
		}
		e.EmitOpcode(istreamSetLocal)
		e.EmitU32(uint32(ots.Size())-idx)

	case wasmOpLocalTee:
		if !ots.isAny() {
			top, ok := ots.top()
			if !ok || top != t {
				return errorf(CategoryType, InvalidOffset, "local.tee type mismatch")
			}
		}
		e.EmitOpcode(istreamTeeLocal)
		e.EmitU32(uint32(ots.Size()) - idx)
	}
	return nil
}

// emitGlobal lowers global.get/set.
func (fl *funcLowerer) emitGlobal(op wasmOpcode, localIdx uint32) error {
	l := fl.l
	e := l.e
	ots := fl.ots

	envIdx, ok := l.mod.Globals.Get(localIdx)
	if !ok {
		return errorf(CategoryBounds, InvalidOffset, "global index %d out of range", localIdx)
	}
	g := l.env.Globals[envIdx]

	switch op {
	case wasmOpGlobalGet:
		e.EmitOpcode(istreamGetGlobal)
		e.EmitU32(envIdx)
		ots.Push(g.Type)

	case wasmOpGlobalSet:
		if !g.Mutable {
			return errorf(CategoryLinking, InvalidOffset, "global.set on an immutable global")
		}
		if !ots.Check(g.Type) {
			return errorf(CategoryType, InvalidOffset, "global.set type mismatch")
		}
		e.EmitOpcode(istreamSetGlobal)
		e.EmitU32(envIdx)
	}
	return nil
}

// emitLoad lowers a memory load, checking alignment and that a memory
// exists before popping the i32 address and pushing the loaded type.
func (fl *funcLowerer) emitLoad(c *codeCursor, op wasmOpcode) error {
	l := fl.l
	e := l.e
	ots := fl.ots

	align, offset, err := readMemImm(c)
	if err != nil {
		return err
	}
	if l.mod.MemoryIndex == InvalidIndex {
		return errorf(CategoryBounds, InvalidOffset, "load requires a memory")
	}
	if (uint32(1) << align) > naturalAlignment(op) {
		return errorf(CategoryBounds, InvalidOffset, "alignment %d exceeds natural alignment for opcode %#x", align, byte(op))
	}
	if !ots.Check(TypeI32) {
		return errorf(CategoryType, InvalidOffset, "load requires an i32 address")
	}

	e.EmitU8(byte(op))
	e.EmitU32(l.mod.MemoryIndex)
	e.EmitU32(offset)
	ots.Push(loadType(op))
	return nil
}

// emitStore lowers a memory store.
func (fl *funcLowerer) emitStore(c *codeCursor, op wasmOpcode) error {
	l := fl.l
	e := l.e
	ots := fl.ots

	align, offset, err := readMemImm(c)
	if err != nil {
		return err
	}
	if l.mod.MemoryIndex == InvalidIndex {
		return errorf(CategoryBounds, InvalidOffset, "store requires a memory")
	}
	if (uint32(1) << align) > naturalAlignment(op) {
		return errorf(CategoryBounds, InvalidOffset, "alignment %d exceeds natural alignment for opcode %#x", align, byte(op))
	}
	if !ots.Check(storeType(op)) {
		return errorf(CategoryType, InvalidOffset, "store value type mismatch")
	}
	if !ots.Check(TypeI32) {
		return errorf(CategoryType, InvalidOffset, "store requires an i32 address")
	}

	e.EmitU8(byte(op))
	e.EmitU32(l.mod.MemoryIndex)
	e.EmitU32(offset)
	return nil
}

func readMemImm(c *codeCursor) (align uint32, offset uint32, err error) {
	align, err = c.readVarUint32()
	if err != nil {
		return 0, 0, err
	}
	if align >= 32 {
		return 0, 0, errorf(CategoryBounds, InvalidOffset, "alignment_log2 %d out of range", align)
	}
	offset, err = c.readVarUint32()
	if err != nil {
		return 0, 0, err
	}
	return align, offset, nil
}
