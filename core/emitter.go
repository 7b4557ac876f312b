package core

import "encoding/binary"

// istreamEmitter is an append-only cursor over the shared environment's
// istream buffer, tracked by a 32-bit logical offset (the buffer never
// exceeds 4GiB in any realistic module, and 32-bit offsets keep fixup
// slots and branch targets the same width as every other istream
// immediate).
type istreamEmitter struct {
	env *Environment
}

// Offset returns the current end of the istream, i.e. where the next
// emitted byte will land.
func (e *istreamEmitter) Offset() uint32 {
	return uint32(len(e.env.Istream))
}

// EmitU8 appends a single byte.
func (e *istreamEmitter) EmitU8(v uint8) {
	e.env.Istream = append(e.env.Istream, v)
}

// EmitU32 appends v little-endian.
func (e *istreamEmitter) EmitU32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	e.env.Istream = append(e.env.Istream, buf[:]...)
}

// EmitU64 appends v little-endian.
func (e *istreamEmitter) EmitU64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	e.env.Istream = append(e.env.Istream, buf[:]...)
}

// EmitOpcode appends a single istream opcode byte.
func (e *istreamEmitter) EmitOpcode(op istreamOp) {
	e.EmitU8(uint8(op))
}

// PatchU32 overwrites a previously-emitted 32-bit slot at offset, e.g. a
// branch target or fixup slot whose value wasn't known when it was
// emitted.
func (e *istreamEmitter) PatchU32(offset uint32, v uint32) {
	binary.LittleEndian.PutUint32(e.env.Istream[offset:offset+4], v)
}

// reserveU32 emits a placeholder 32-bit slot (InvalidIndex) and returns
// its offset, for later PatchU32.
func (e *istreamEmitter) reserveU32() uint32 {
	offset := e.Offset()
	e.EmitU32(InvalidIndex)
	return offset
}

// EmitDropKeep is the primitive stack-shape reconciler described in spec
// section 4.1: it collapses the operand stack to floor+keep values.
// keep must be 0 or 1. Emits nothing if drop == 0; emits a bare DROP if
// drop == 1 and keep == 0; otherwise emits DROP_KEEP drop:u32 keep:u8.
func (e *istreamEmitter) EmitDropKeep(drop uint32, keep uint8) {
	switch {
	case drop == 0:
		return
	case drop == 1 && keep == 0:
		e.EmitOpcode(istreamDrop)
	default:
		e.EmitOpcode(istreamDropKeep)
		e.EmitU32(drop)
		e.EmitU8(keep)
	}
}
