package core

import "github.com/wasmforge/wasmforge/wasm"

// InvalidIndex marks a table slot, branch target, or function offset that
// has not yet been resolved.
const InvalidIndex = ^uint32(0)

// PageSize is the size, in bytes, of one unit of linear memory growth.
const PageSize = 65536

// OperandType is an abstract value on the validator's operand-type stack:
// one of the four Wasm value types, or the synthetic Any used to model
// statically-unreachable code.
type OperandType int8

const (
	TypeI32 OperandType = iota
	TypeI64
	TypeF32
	TypeF64
	TypeAny
)

func (t OperandType) String() string {
	switch t {
	case TypeI32:
		return "i32"
	case TypeI64:
		return "i64"
	case TypeF32:
		return "f32"
	case TypeF64:
		return "f64"
	case TypeAny:
		return "any"
	default:
		return "unknown"
	}
}

// operandTypeFromValueType converts a decoded wasm.ValueType (as found in
// signatures, locals, and globals) into the validator's OperandType.
func operandTypeFromValueType(t wasm.ValueType) (OperandType, bool) {
	switch t {
	case wasm.ValueTypeI32:
		return TypeI32, true
	case wasm.ValueTypeI64:
		return TypeI64, true
	case wasm.ValueTypeF32:
		return TypeF32, true
	case wasm.ValueTypeF64:
		return TypeF64, true
	default:
		return 0, false
	}
}

// Signature is an ordered parameter and result type list. The MVP
// restricts result count to 0 or 1.
type Signature struct {
	Params  []OperandType
	Results []OperandType
}

// Equals reports whether two signatures have identical parameter and
// result type lists. call_indirect validates signature equality this way,
// by deep structural match rather than by environment index, since two
// modules may declare structurally identical signatures independently.
func (s Signature) Equals(other Signature) bool {
	if len(s.Params) != len(other.Params) || len(s.Results) != len(other.Results) {
		return false
	}
	for i, t := range s.Params {
		if other.Params[i] != t {
			return false
		}
	}
	for i, t := range s.Results {
		if other.Results[i] != t {
			return false
		}
	}
	return true
}

// Function is either a host function (bound by a delegate, outside the
// istream) or a defined function (lowered into the istream by this
// module).
type Function struct {
	SigIndex uint32

	IsHost bool

	// Host-only fields.
	HostModule string
	HostField  string

	// Defined-only fields. Offset is InvalidIndex until the function's
	// body has been lowered (func_fixups accumulate call sites until then).
	Offset     uint32
	Locals     []OperandType // params followed by local-decl types, in declaration order
	NumParams  int
	NumLocals  int // total local count, i.e. len(Locals) - NumParams
}

// Global is a typed, optionally mutable global variable slot.
type Global struct {
	Type    OperandType
	Mutable bool

	// Value holds the constant-initializer result for defined globals.
	// A global imported from a registered module has no entry of its own:
	// the importer's index map points at the exporter's entry. A host
	// import appends the Global its delegate returns.
	Value interface{}
}

// Limits mirrors wasm.ResizableLimits for tables and memories but is
// re-expressed here so core doesn't leak the decoder's wire-format type
// into validator/linker code that only cares about initial/max/has-max.
type Limits struct {
	Initial uint32
	Maximum uint32
	HasMax  bool
}

func limitsFromWASM(l wasm.ResizableLimits) Limits {
	return Limits{Initial: l.Initial, Maximum: l.Maximum, HasMax: l.HasMax()}
}

// Accepts implements the import-limit compatibility algebra from spec
// section 6.2: actual.initial >= declared.initial, and if declared has a
// max, actual must also have one that's no larger.
func (declared Limits) Accepts(actual Limits) bool {
	if actual.Initial < declared.Initial {
		return false
	}
	if declared.HasMax {
		return actual.HasMax && actual.Maximum <= declared.Maximum
	}
	return true
}

// Table is an indirect-call table: a vector of function indices, sized to
// its initial limit and filled with InvalidIndex until elements are
// installed.
type Table struct {
	Limits  Limits
	Entries []uint32
}

// newTable allocates a table pre-filled with InvalidIndex, per spec
// section 4.4's Table/Memory rule.
func newTable(limits Limits) *Table {
	entries := make([]uint32, limits.Initial)
	for i := range entries {
		entries[i] = InvalidIndex
	}
	return &Table{Limits: limits, Entries: entries}
}

// Module is the result of lowering one binary module: its own index
// spaces (as IndexMaps into the shared Environment), its istream span,
// and its name-indexed exports.
type Module struct {
	IsHost bool

	Funcs   IndexMap
	Globals IndexMap
	Sigs    IndexMap

	// TableIndex and MemoryIndex are env-global indices, or InvalidIndex
	// if the module declares neither (the MVP allows at most one of
	// each).
	TableIndex  uint32
	MemoryIndex uint32

	// StartIndex is the env-global function index of the start function,
	// or InvalidIndex if none was declared.
	StartIndex uint32

	NumFuncImports   int
	NumGlobalImports int

	Exports map[string]Export

	IstreamStart uint32
	IstreamEnd   uint32

	// Customs carries custom sections (including the name section) through
	// unmodified, for diagnostic tools to consume. Not part of the
	// decode/validate/lower concern itself (spec section 1's scope), but
	// cheap to preserve since the decoder already hands them over.
	Customs []CustomSection
}

// CustomSection is a custom section's name and raw payload, passed
// through from the decoder unmodified.
type CustomSection struct {
	Name string
	Data []byte
}

// ExportKind identifies what an export entry refers to.
type ExportKind uint8

const (
	ExportFunc ExportKind = iota
	ExportTable
	ExportMemory
	ExportGlobal
)

// Export is a name-indexed binding to an environment-global index.
type Export struct {
	Kind  ExportKind
	Index uint32
}

// IndexMap translates module-local indices (imports, in declaration
// order, followed by definitions) to environment-global indices.
type IndexMap []uint32

func (m IndexMap) Get(i uint32) (uint32, bool) {
	if int(i) >= len(m) {
		return 0, false
	}
	return m[i], true
}
