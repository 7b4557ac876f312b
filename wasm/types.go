
package wasm

import (
	"fmt"
	"io"

	"github.com/wasmforge/wasmforge/wasm/leb128"
)

// Marshaler is implemented by types that can encode themselves to the
// WebAssembly binary format.
type Marshaler interface {
	MarshalWASM(w io.Writer) error
}

// Unmarshaler is implemented by types that can decode themselves from the
// WebAssembly binary format.
type Unmarshaler interface {
	UnmarshalWASM(r io.Reader) error
}

// ValueType represents the type of a value in the Wasm value space, encoded
// as its binary opcode byte.
type ValueType int8

const (
	ValueTypeI32       ValueType = -0x01 // 0x7f
	ValueTypeI64       ValueType = -0x02 // 0x7e
	ValueTypeF32       ValueType = -0x03 // 0x7d
	ValueTypeF64       ValueType = -0x04 // 0x7c
	ValueTypeV128      ValueType = -0x05 // 0x7b
	ValueTypeFuncref   ValueType = -0x10 // 0x70
	ValueTypeExternref ValueType = -0x11 // 0x6f

	// ValueTypeT is a synthetic placeholder that matches no encoded value
	// type byte.
	ValueTypeT ValueType = 0
)

func (t ValueType) String() string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	case ValueTypeV128:
		return "v128"
	case ValueTypeFuncref:
		return "funcref"
	case ValueTypeExternref:
		return "externref"
	default:
		return "unknown"
	}
}

func (t *ValueType) UnmarshalWASM(r io.Reader) error {
	b, err := readByte(r)
	if err != nil {
		return err
	}
	v, ok := valueTypeFromByte(b)
	if !ok {
		return fmt.Errorf("wasm: invalid value type %#x", b)
	}
	*t = v
	return nil
}

func (t ValueType) MarshalWASM(w io.Writer) error {
	b, ok := valueTypeToByte(t)
	if !ok {
		return fmt.Errorf("wasm: invalid value type %v", t)
	}
	_, err := w.Write([]byte{b})
	return err
}

func valueTypeFromByte(b byte) (ValueType, bool) {
	switch b {
	case 0x7f:
		return ValueTypeI32, true
	case 0x7e:
		return ValueTypeI64, true
	case 0x7d:
		return ValueTypeF32, true
	case 0x7c:
		return ValueTypeF64, true
	case 0x7b:
		return ValueTypeV128, true
	case 0x70:
		return ValueTypeFuncref, true
	case 0x6f:
		return ValueTypeExternref, true
	default:
		return 0, false
	}
}

func valueTypeToByte(t ValueType) (byte, bool) {
	switch t {
	case ValueTypeI32:
		return 0x7f, true
	case ValueTypeI64:
		return 0x7e, true
	case ValueTypeF32:
		return 0x7d, true
	case ValueTypeF64:
		return 0x7c, true
	case ValueTypeV128:
		return 0x7b, true
	case ValueTypeFuncref:
		return 0x70, true
	case ValueTypeExternref:
		return 0x6f, true
	default:
		return 0, false
	}
}

// External identifies the kind of an import or export entry.
type External uint8

const (
	ExternalFunction External = 0
	ExternalTable    External = 1
	ExternalMemory   External = 2
	ExternalGlobal   External = 3

	// Aliases matching the teacher's ExternalKind* naming used elsewhere
	// in the pack's reference files.
	ExternalKindFunc   = ExternalFunction
	ExternalKindTable  = ExternalTable
	ExternalKindMemory = ExternalMemory
	ExternalKindGlobal = ExternalGlobal
)

func (k *External) UnmarshalWASM(r io.Reader) error {
	b, err := readByte(r)
	if err != nil {
		return err
	}
	*k = External(b)
	return nil
}

func (k External) MarshalWASM(w io.Writer) error {
	_, err := w.Write([]byte{byte(k)})
	return err
}

// FunctionSig is a function signature: ordered parameter types and ordered
// result types. The MVP restricts result count to 0 or 1.
type FunctionSig struct {
	Form        byte // always 0x60, the "func" type constructor tag
	ParamTypes  []ValueType
	ReturnTypes []ValueType
}

// Equals reports whether two signatures have identical parameter and result
// type lists.
func (f FunctionSig) Equals(other FunctionSig) bool {
	if len(f.ParamTypes) != len(other.ParamTypes) || len(f.ReturnTypes) != len(other.ReturnTypes) {
		return false
	}
	for i, t := range f.ParamTypes {
		if other.ParamTypes[i] != t {
			return false
		}
	}
	for i, t := range f.ReturnTypes {
		if other.ReturnTypes[i] != t {
			return false
		}
	}
	return true
}

func (f *FunctionSig) UnmarshalWASM(r io.Reader) error {
	form, err := readByte(r)
	if err != nil {
		return err
	}
	f.Form = form

	paramCount, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}
	f.ParamTypes = make([]ValueType, paramCount)
	for i := range f.ParamTypes {
		b, err := readByte(r)
		if err != nil {
			return err
		}
		t, ok := valueTypeFromByte(b)
		if !ok {
			return fmt.Errorf("wasm: invalid param type %#x", b)
		}
		f.ParamTypes[i] = t
	}

	resultCount, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}
	f.ReturnTypes = make([]ValueType, resultCount)
	for i := range f.ReturnTypes {
		b, err := readByte(r)
		if err != nil {
			return err
		}
		t, ok := valueTypeFromByte(b)
		if !ok {
			return fmt.Errorf("wasm: invalid result type %#x", b)
		}
		f.ReturnTypes[i] = t
	}
	return nil
}

func (f FunctionSig) MarshalWASM(w io.Writer) error {
	if _, err := w.Write([]byte{0x60}); err != nil {
		return err
	}
	if _, err := leb128.WriteVarUint32(w, uint32(len(f.ParamTypes))); err != nil {
		return err
	}
	for _, t := range f.ParamTypes {
		if err := t.MarshalWASM(w); err != nil {
			return err
		}
	}
	if _, err := leb128.WriteVarUint32(w, uint32(len(f.ReturnTypes))); err != nil {
		return err
	}
	for _, t := range f.ReturnTypes {
		if err := t.MarshalWASM(w); err != nil {
			return err
		}
	}
	return nil
}

// ResizableLimits describes the initial and optional maximum size of a
// table or memory.
type ResizableLimits struct {
	Flags   uint32 // bit 0 set iff Maximum is present
	Initial uint32
	Maximum uint32
}

func (l *ResizableLimits) UnmarshalWASM(r io.Reader) error {
	flags, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}
	l.Flags = flags

	l.Initial, err = leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}

	if l.Flags&0x1 != 0 {
		l.Maximum, err = leb128.ReadVarUint32(r)
		if err != nil {
			return err
		}
	}
	return nil
}

func (l ResizableLimits) MarshalWASM(w io.Writer) error {
	if _, err := leb128.WriteVarUint32(w, l.Flags); err != nil {
		return err
	}
	if _, err := leb128.WriteVarUint32(w, l.Initial); err != nil {
		return err
	}
	if l.Flags&0x1 != 0 {
		if _, err := leb128.WriteVarUint32(w, l.Maximum); err != nil {
			return err
		}
	}
	return nil
}

// HasMax reports whether the limits declare a maximum size.
func (l ResizableLimits) HasMax() bool {
	return l.Flags&0x1 != 0
}

// ElemType identifies the element type of a table. The MVP only has
// anyfunc/funcref.
type ElemType int8

const ElemTypeAnyFunc ElemType = ElemType(ValueTypeFuncref)

// Table describes a table of opaque references.
type Table struct {
	ElementType ElemType
	Limits      ResizableLimits
}

func (t *Table) UnmarshalWASM(r io.Reader) error {
	b, err := readByte(r)
	if err != nil {
		return err
	}
	et, ok := valueTypeFromByte(b)
	if !ok {
		return fmt.Errorf("wasm: invalid table element type %#x", b)
	}
	t.ElementType = ElemType(et)
	return t.Limits.UnmarshalWASM(r)
}

func (t Table) MarshalWASM(w io.Writer) error {
	if err := ValueType(t.ElementType).MarshalWASM(w); err != nil {
		return err
	}
	return t.Limits.MarshalWASM(w)
}

// Memory describes a linear memory, sized in 64KiB pages.
type Memory struct {
	Limits ResizableLimits
}

func (m *Memory) UnmarshalWASM(r io.Reader) error {
	return m.Limits.UnmarshalWASM(r)
}

func (m Memory) MarshalWASM(w io.Writer) error {
	return m.Limits.MarshalWASM(w)
}

// GlobalVar describes the value type and mutability of a global.
type GlobalVar struct {
	Type    ValueType
	Mutable bool
}

func (g *GlobalVar) UnmarshalWASM(r io.Reader) error {
	b, err := readByte(r)
	if err != nil {
		return err
	}
	t, ok := valueTypeFromByte(b)
	if !ok {
		return fmt.Errorf("wasm: invalid global type %#x", b)
	}
	g.Type = t

	mut, err := readByte(r)
	if err != nil {
		return err
	}
	g.Mutable = mut != 0
	return nil
}

func (g GlobalVar) MarshalWASM(w io.Writer) error {
	if err := g.Type.MarshalWASM(w); err != nil {
		return err
	}
	mut := byte(0)
	if g.Mutable {
		mut = 1
	}
	_, err := w.Write([]byte{mut})
	return err
}

func readByte(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}
