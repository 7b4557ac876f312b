package wasm

import (
	"io"

	"github.com/wasmforge/wasmforge/wasm/leb128"
)

// ImportDesc is implemented by the four per-kind import descriptors
// (FuncImport, TableImport, MemoryImport, GlobalVarImport).
type ImportDesc interface {
	Kind() External
	Marshaler
	isImport()
}

// Import describes one entry of the import section: the two-part name
// under which it's resolved, and a kind-specific descriptor of what's
// being imported.
type Import struct {
	Module string
	Name   string

	// Type holds a FuncImport, TableImport, MemoryImport, or
	// GlobalVarImport, matching Type.Kind().
	Type ImportDesc
}

type FuncImport struct {
	Type uint32
}

func (FuncImport) isImport() {}
func (FuncImport) Kind() External {
	return ExternalFunction
}
func (f FuncImport) MarshalWASM(w io.Writer) error {
	_, err := leb128.WriteVarUint32(w, uint32(f.Type))
	return err
}

type TableImport struct {
	Type Table
}

func (TableImport) isImport() {}
func (TableImport) Kind() External {
	return ExternalTable
}
func (t TableImport) MarshalWASM(w io.Writer) error {
	return t.Type.MarshalWASM(w)
}

type MemoryImport struct {
	Type Memory
}

func (MemoryImport) isImport() {}
func (MemoryImport) Kind() External {
	return ExternalMemory
}
func (t MemoryImport) MarshalWASM(w io.Writer) error {
	return t.Type.MarshalWASM(w)
}

type GlobalVarImport struct {
	Type GlobalVar
}

func (GlobalVarImport) isImport() {}
func (GlobalVarImport) Kind() External {
	return ExternalGlobal
}
func (t GlobalVarImport) MarshalWASM(w io.Writer) error {
	return t.Type.MarshalWASM(w)
}
