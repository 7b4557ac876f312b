package core

// wasmOpcode is a binary-module instruction opcode, as read from the
// decoder. Only the MVP range 0x00-0xbf is defined; the post-MVP
// sign-extension (0xc0-0xc4) and 0xfc-prefixed TruncSat opcodes are out
// of scope here.
type wasmOpcode byte

const (
	wasmOpUnreachable  wasmOpcode = 0x00
	wasmOpNop          wasmOpcode = 0x01
	wasmOpBlock        wasmOpcode = 0x02
	wasmOpLoop         wasmOpcode = 0x03
	wasmOpIf           wasmOpcode = 0x04
	wasmOpElse         wasmOpcode = 0x05
	wasmOpEnd          wasmOpcode = 0x0b
	wasmOpBr           wasmOpcode = 0x0c
	wasmOpBrIf         wasmOpcode = 0x0d
	wasmOpBrTable      wasmOpcode = 0x0e
	wasmOpReturn       wasmOpcode = 0x0f
	wasmOpCall         wasmOpcode = 0x10
	wasmOpCallIndirect wasmOpcode = 0x11

	wasmOpDrop   wasmOpcode = 0x1a
	wasmOpSelect wasmOpcode = 0x1b

	wasmOpLocalGet  wasmOpcode = 0x20
	wasmOpLocalSet  wasmOpcode = 0x21
	wasmOpLocalTee  wasmOpcode = 0x22
	wasmOpGlobalGet wasmOpcode = 0x23
	wasmOpGlobalSet wasmOpcode = 0x24

	wasmOpI32Load    wasmOpcode = 0x28
	wasmOpI64Load    wasmOpcode = 0x29
	wasmOpF32Load    wasmOpcode = 0x2a
	wasmOpF64Load    wasmOpcode = 0x2b
	wasmOpI32Load8S  wasmOpcode = 0x2c
	wasmOpI32Load8U  wasmOpcode = 0x2d
	wasmOpI32Load16S wasmOpcode = 0x2e
	wasmOpI32Load16U wasmOpcode = 0x2f
	wasmOpI64Load8S  wasmOpcode = 0x30
	wasmOpI64Load8U  wasmOpcode = 0x31
	wasmOpI64Load16S wasmOpcode = 0x32
	wasmOpI64Load16U wasmOpcode = 0x33
	wasmOpI64Load32S wasmOpcode = 0x34
	wasmOpI64Load32U wasmOpcode = 0x35
	wasmOpI32Store   wasmOpcode = 0x36
	wasmOpI64Store   wasmOpcode = 0x37
	wasmOpF32Store   wasmOpcode = 0x38
	wasmOpF64Store   wasmOpcode = 0x39
	wasmOpI32Store8  wasmOpcode = 0x3a
	wasmOpI32Store16 wasmOpcode = 0x3b
	wasmOpI64Store8  wasmOpcode = 0x3c
	wasmOpI64Store16 wasmOpcode = 0x3d
	wasmOpI64Store32 wasmOpcode = 0x3e
	wasmOpMemorySize wasmOpcode = 0x3f
	wasmOpMemoryGrow wasmOpcode = 0x40

	wasmOpI32Const wasmOpcode = 0x41
	wasmOpI64Const wasmOpcode = 0x42
	wasmOpF32Const wasmOpcode = 0x43
	wasmOpF64Const wasmOpcode = 0x44

	wasmOpI32Eqz wasmOpcode = 0x45
	wasmOpI32Eq  wasmOpcode = 0x46
	wasmOpI32Ne  wasmOpcode = 0x47
	wasmOpI32LtS wasmOpcode = 0x48
	wasmOpI32LtU wasmOpcode = 0x49
	wasmOpI32GtS wasmOpcode = 0x4a
	wasmOpI32GtU wasmOpcode = 0x4b
	wasmOpI32LeS wasmOpcode = 0x4c
	wasmOpI32LeU wasmOpcode = 0x4d
	wasmOpI32GeS wasmOpcode = 0x4e
	wasmOpI32GeU wasmOpcode = 0x4f

	wasmOpI64Eqz wasmOpcode = 0x50
	wasmOpI64Eq  wasmOpcode = 0x51
	wasmOpI64Ne  wasmOpcode = 0x52
	wasmOpI64LtS wasmOpcode = 0x53
	wasmOpI64LtU wasmOpcode = 0x54
	wasmOpI64GtS wasmOpcode = 0x55
	wasmOpI64GtU wasmOpcode = 0x56
	wasmOpI64LeS wasmOpcode = 0x57
	wasmOpI64LeU wasmOpcode = 0x58
	wasmOpI64GeS wasmOpcode = 0x59
	wasmOpI64GeU wasmOpcode = 0x5a

	wasmOpF32Eq wasmOpcode = 0x5b
	wasmOpF32Ne wasmOpcode = 0x5c
	wasmOpF32Lt wasmOpcode = 0x5d
	wasmOpF32Gt wasmOpcode = 0x5e
	wasmOpF32Le wasmOpcode = 0x5f
	wasmOpF32Ge wasmOpcode = 0x60

	wasmOpF64Eq wasmOpcode = 0x61
	wasmOpF64Ne wasmOpcode = 0x62
	wasmOpF64Lt wasmOpcode = 0x63
	wasmOpF64Gt wasmOpcode = 0x64
	wasmOpF64Le wasmOpcode = 0x65
	wasmOpF64Ge wasmOpcode = 0x66

	wasmOpI32Clz    wasmOpcode = 0x67
	wasmOpI32Ctz    wasmOpcode = 0x68
	wasmOpI32Popcnt wasmOpcode = 0x69
	wasmOpI32Add    wasmOpcode = 0x6a
	wasmOpI32Sub    wasmOpcode = 0x6b
	wasmOpI32Mul    wasmOpcode = 0x6c
	wasmOpI32DivS   wasmOpcode = 0x6d
	wasmOpI32DivU   wasmOpcode = 0x6e
	wasmOpI32RemS   wasmOpcode = 0x6f
	wasmOpI32RemU   wasmOpcode = 0x70
	wasmOpI32And    wasmOpcode = 0x71
	wasmOpI32Or     wasmOpcode = 0x72
	wasmOpI32Xor    wasmOpcode = 0x73
	wasmOpI32Shl    wasmOpcode = 0x74
	wasmOpI32ShrS   wasmOpcode = 0x75
	wasmOpI32ShrU   wasmOpcode = 0x76
	wasmOpI32Rotl   wasmOpcode = 0x77
	wasmOpI32Rotr   wasmOpcode = 0x78

	wasmOpI64Clz    wasmOpcode = 0x79
	wasmOpI64Ctz    wasmOpcode = 0x7a
	wasmOpI64Popcnt wasmOpcode = 0x7b
	wasmOpI64Add    wasmOpcode = 0x7c
	wasmOpI64Sub    wasmOpcode = 0x7d
	wasmOpI64Mul    wasmOpcode = 0x7e
	wasmOpI64DivS   wasmOpcode = 0x7f
	wasmOpI64DivU   wasmOpcode = 0x80
	wasmOpI64RemS   wasmOpcode = 0x81
	wasmOpI64RemU   wasmOpcode = 0x82
	wasmOpI64And    wasmOpcode = 0x83
	wasmOpI64Or     wasmOpcode = 0x84
	wasmOpI64Xor    wasmOpcode = 0x85
	wasmOpI64Shl    wasmOpcode = 0x86
	wasmOpI64ShrS   wasmOpcode = 0x87
	wasmOpI64ShrU   wasmOpcode = 0x88
	wasmOpI64Rotl   wasmOpcode = 0x89
	wasmOpI64Rotr   wasmOpcode = 0x8a

	wasmOpF32Abs      wasmOpcode = 0x8b
	wasmOpF32Neg      wasmOpcode = 0x8c
	wasmOpF32Ceil     wasmOpcode = 0x8d
	wasmOpF32Floor    wasmOpcode = 0x8e
	wasmOpF32Trunc    wasmOpcode = 0x8f
	wasmOpF32Nearest  wasmOpcode = 0x90
	wasmOpF32Sqrt     wasmOpcode = 0x91
	wasmOpF32Add      wasmOpcode = 0x92
	wasmOpF32Sub      wasmOpcode = 0x93
	wasmOpF32Mul      wasmOpcode = 0x94
	wasmOpF32Div      wasmOpcode = 0x95
	wasmOpF32Min      wasmOpcode = 0x96
	wasmOpF32Max      wasmOpcode = 0x97
	wasmOpF32Copysign wasmOpcode = 0x98

	wasmOpF64Abs      wasmOpcode = 0x99
	wasmOpF64Neg      wasmOpcode = 0x9a
	wasmOpF64Ceil     wasmOpcode = 0x9b
	wasmOpF64Floor    wasmOpcode = 0x9c
	wasmOpF64Trunc    wasmOpcode = 0x9d
	wasmOpF64Nearest  wasmOpcode = 0x9e
	wasmOpF64Sqrt     wasmOpcode = 0x9f
	wasmOpF64Add      wasmOpcode = 0xa0
	wasmOpF64Sub      wasmOpcode = 0xa1
	wasmOpF64Mul      wasmOpcode = 0xa2
	wasmOpF64Div      wasmOpcode = 0xa3
	wasmOpF64Min      wasmOpcode = 0xa4
	wasmOpF64Max      wasmOpcode = 0xa5
	wasmOpF64Copysign wasmOpcode = 0xa6

	wasmOpI32WrapI64        wasmOpcode = 0xa7
	wasmOpI32TruncF32S      wasmOpcode = 0xa8
	wasmOpI32TruncF32U      wasmOpcode = 0xa9
	wasmOpI32TruncF64S      wasmOpcode = 0xaa
	wasmOpI32TruncF64U      wasmOpcode = 0xab
	wasmOpI64ExtendI32S     wasmOpcode = 0xac
	wasmOpI64ExtendI32U     wasmOpcode = 0xad
	wasmOpI64TruncF32S      wasmOpcode = 0xae
	wasmOpI64TruncF32U      wasmOpcode = 0xaf
	wasmOpI64TruncF64S      wasmOpcode = 0xb0
	wasmOpI64TruncF64U      wasmOpcode = 0xb1
	wasmOpF32ConvertI32S    wasmOpcode = 0xb2
	wasmOpF32ConvertI32U    wasmOpcode = 0xb3
	wasmOpF32ConvertI64S    wasmOpcode = 0xb4
	wasmOpF32ConvertI64U    wasmOpcode = 0xb5
	wasmOpF32DemoteF64      wasmOpcode = 0xb6
	wasmOpF64ConvertI32S    wasmOpcode = 0xb7
	wasmOpF64ConvertI32U    wasmOpcode = 0xb8
	wasmOpF64ConvertI64S    wasmOpcode = 0xb9
	wasmOpF64ConvertI64U    wasmOpcode = 0xba
	wasmOpF64PromoteF32     wasmOpcode = 0xbb
	wasmOpI32ReinterpretF32 wasmOpcode = 0xbc
	wasmOpI64ReinterpretF64 wasmOpcode = 0xbd
	wasmOpF32ReinterpretI32 wasmOpcode = 0xbe
	wasmOpF64ReinterpretI64 wasmOpcode = 0xbf
)

// istreamOp is an opcode in the produced istream (spec section 6.5).
// Pure value operators (arithmetic, comparison, conversion, eqz, drop,
// select, unreachable) carry no immediates and keep their original
// wasmOpcode byte value in the istream — the VM can dispatch on them
// exactly as read. The four const opcodes and every load/store also keep
// their original wasmOpcode byte, followed by their istream immediates.
// Opcodes whose istream encoding differs from their binary encoding
// (every structured-control and branch/call/local/global op,
// current_memory and grow_memory, plus the drop-keep reconciler and
// ALLOCA, which have no binary-format counterpart at all) get a dedicated
// byte at 0xe0 and above, well clear of the 0x00-0xbf binary opcode range
// so the two spaces never collide.
type istreamOp byte

const (
	istreamDropKeep       istreamOp = 0xe0 + iota // drop:u32 keep:u8
	istreamBr                                     // target:u32
	istreamBrUnless                               // target:u32
	istreamBrTable                                 // n:u32 table_offset:u32 DATA opcode data_size:u32, then n+1 entries
	istreamBrTableData                             // marks the inline (target:u32 drop:u32 keep:u8) entry table of a BR_TABLE
	istreamGetLocal                                // depth:u32
	istreamSetLocal                                // depth:u32
	istreamTeeLocal                                // depth:u32
	istreamGetGlobal                               // env_global_index:u32
	istreamSetGlobal                               // env_global_index:u32
	istreamCall                                    // target_offset:u32
	istreamCallHost                                // env_func_index:u32
	istreamCallIndirect                            // table_index:u32 env_sig_index:u32
	istreamCurrentMemory                           // memory_index:u32
	istreamGrowMemory                              // memory_index:u32
	istreamAlloca                                  // local_count:u32
	istreamReturn
)

// istreamDrop is DROP with no immediate. It reuses wasmOpDrop's byte
// since, like the arithmetic ops, it carries no immediate that would
// differ between the binary and istream encodings.
const istreamDrop = istreamOp(wasmOpDrop)

// loadStoreImm is the (memory_index, offset) immediate pair every load
// and store instruction carries in the istream, whatever its specific
// width/sign variant (spec section 6.5); current_memory and grow_memory
// carry only the memory_index.
// The specific load/store variant is still distinguished by keeping the
// original wasmOpcode byte as the istream opcode, since each variant's
// pop/push shape and not its immediate shape is what differs.
type loadStoreImm struct {
	MemoryIndex uint32
	Offset      uint32
}
