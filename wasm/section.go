
package wasm

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"sort"

	"github.com/wasmforge/wasmforge/wasm/leb128"
)

// Section is a generic WASM section interface.
type Section interface {
	// SectionID returns a section ID for WASM encoding. Should be unique across types.
	SectionID() SectionID
	// GetRawSection Returns an embedded RawSection pointer to populate generic fields.
	GetRawSection() *RawSection
	// ReadPayload reads a section payload, assuming the size was already read, and reader is limited to it.
	ReadPayload(r io.Reader) error
	// WritePayload writes a section payload without the size.
	// Caller should calculate written size and add it before the payload.
	WritePayload(w io.Writer) error
}

// SectionID is a 1-byte code that encodes the section code of both known and custom sections.
type SectionID uint8

const (
	SectionIDCustom   SectionID = 0
	SectionIDType     SectionID = 1
	SectionIDImport   SectionID = 2
	SectionIDFunction SectionID = 3
	SectionIDTable    SectionID = 4
	SectionIDMemory   SectionID = 5
	SectionIDGlobal   SectionID = 6
	SectionIDExport   SectionID = 7
	SectionIDStart    SectionID = 8
	SectionIDElement  SectionID = 9
	SectionIDCode     SectionID = 10
	SectionIDData     SectionID = 11
)

func (s SectionID) String() string {
	n, ok := map[SectionID]string{
		SectionIDCustom:   "custom",
		SectionIDType:     "type",
		SectionIDImport:   "import",
		SectionIDFunction: "function",
		SectionIDTable:    "table",
		SectionIDMemory:   "memory",
		SectionIDGlobal:   "global",
		SectionIDExport:   "export",
		SectionIDStart:    "start",
		SectionIDElement:  "element",
		SectionIDCode:     "code",
		SectionIDData:     "data",
	}[s]
	if !ok {
		return "unknown"
	}
	return n
}

// RawSection is a declared section in a WASM module.
type RawSection struct {
	Start int64
	End   int64

	ID    SectionID
	Bytes []byte
}

func (s *RawSection) SectionID() SectionID {
	return s.ID
}

func (s *RawSection) GetRawSection() *RawSection {
	return s
}

type InvalidSectionIDError SectionID

func (e InvalidSectionIDError) Error() string {
	return fmt.Sprintf("malformed section id")
}

type InvalidCodeIndexError int

func (e InvalidCodeIndexError) Error() string {
	return fmt.Sprintf("wasm: invalid index to code section: %d", int(e))
}

var ErrUnsupportedSection = errors.New("wasm: unsupported section")

type MissingSectionError SectionID

func (e MissingSectionError) Error() string {
	return fmt.Sprintf("wasm: missing section %s", SectionID(e).String())
}

type sectionsReader struct {
	lastSecOrder uint8 // previous non-custom sectionid
	m            *Module
}

func newSectionsReader(m *Module) *sectionsReader {
	return &sectionsReader{m: m}
}

func (s *sectionsReader) readSections(r *readPos) error {
	for {
		done, err := s.readSection(r)
		switch {
		case err != nil:
			return err
		case done:
			return nil
		}
	}
}

// reads a valid section from r. The first return value is true if and only if
// the module has been completely read.
func (sr *sectionsReader) readSection(r *readPos) (bool, error) {
	m := sr.m

	logger.Println("Reading section ID")
	id, err := r.ReadByte()
	if err == io.EOF {
		return true, nil
	} else if err != nil {
		return false, err
	}
	if id != uint8(SectionIDCustom) {
		if id <= sr.lastSecOrder {
			return false, fmt.Errorf("wasm: sections must occur at most once and in the prescribed order")
		}
		sr.lastSecOrder = id
	}

	s := RawSection{ID: SectionID(id)}

	logger.Println("Reading payload length")

	payloadDataLen, err := leb128.ReadVarUint32(r)
	if err != nil {
		return false, err
	}

	logger.Printf("Section payload length: %d", payloadDataLen)

	s.Start = r.CurPos

	sectionBytes := new(bytes.Buffer)

	sectionBytes.Grow(int(getInitialCap(payloadDataLen)))
	sectionReader := io.LimitReader(io.TeeReader(r, sectionBytes), int64(payloadDataLen))

	var sec Section
	switch s.ID {
	case SectionIDCustom:
		logger.Println("section custom")
		cs := &CustomSection{}
		m.Customs = append(m.Customs, cs)
		sec = cs
	case SectionIDType:
		logger.Println("section type")
		m.Types = &TypeSection{}
		sec = m.Types
	case SectionIDImport:
		logger.Println("section import")
		m.Import = &ImportSection{}
		sec = m.Import
	case SectionIDFunction:
		logger.Println("section function")
		m.Function = &FunctionSection{}
		sec = m.Function
	case SectionIDTable:
		logger.Println("section table")
		m.Table = &TableSection{}
		sec = m.Table
	case SectionIDMemory:
		logger.Println("section memory")
		m.Memory = &MemorySection{}
		sec = m.Memory
	case SectionIDGlobal:
		logger.Println("section global")
		m.Global = &GlobalSection{}
		sec = m.Global
	case SectionIDExport:
		logger.Println("section export")
		m.Export = &ExportSection{}
		sec = m.Export
	case SectionIDStart:
		logger.Println("section start")
		m.Start = &StartSection{}
		sec = m.Start
	case SectionIDElement:
		logger.Println("section element")
		m.Elements = &ElementSection{}
		sec = m.Elements
	case SectionIDCode:
		logger.Println("section code")
		m.Code = &CodeSection{}
		sec = m.Code
	case SectionIDData:
		logger.Println("section data")
		m.Data = &DataSection{}
		sec = m.Data
	default:
		return false, InvalidSectionIDError(s.ID)
	}
	err = sec.ReadPayload(sectionReader)
	if err != nil {
		logger.Println(err)
		return false, err
	}
	s.End = r.CurPos
	s.Bytes = sectionBytes.Bytes()
	*sec.GetRawSection() = s
	switch s.ID {
	case SectionIDCode:
		s := m.Code
		for i := range s.Bodies {
			s.Bodies[i].Module = m
		}
	}
	m.Sections = append(m.Sections, sec)
	return false, nil
}

var _ Section = (*CustomSection)(nil)

type CustomSection struct {
	RawSection
	Name string
	Data []byte
}

func (s *CustomSection) SectionID() SectionID {
	return SectionIDCustom
}

func (s *CustomSection) ReadPayload(r io.Reader) error {
	var err error
	s.Name, err = readUTF8StringUint(r)
	if err != nil {
		return err
	}
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return err
	}
	s.Data = data
	return nil
}

func (s *CustomSection) WritePayload(w io.Writer) error {
	if err := writeStringUint(w, s.Name); err != nil {
		return err
	}
	_, err := w.Write(s.Data)
	return err
}

var _ Section = (*TypeSection)(nil)

// TypeSection declares all function signatures that will be used in a module.
type TypeSection struct {
	RawSection
	Entries []FunctionSig
}

func (*TypeSection) SectionID() SectionID {
	return SectionIDType
}

func (s *TypeSection) ReadPayload(r io.Reader) error {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}

	s.Entries = make([]FunctionSig, 0, getInitialCap(count))
	for i := uint32(0); i < count; i++ {
		var sig FunctionSig
		if err := sig.UnmarshalWASM(r); err != nil {
			return err
		}
		s.Entries = append(s.Entries, sig)
	}
	return nil
}

func (s *TypeSection) WritePayload(w io.Writer) error {
	_, err := leb128.WriteVarUint32(w, uint32(len(s.Entries)))
	if err != nil {
		return err
	}
	for _, f := range s.Entries {
		if err = f.MarshalWASM(w); err != nil {
			return err
		}
	}
	return nil
}

type InvalidExternalError uint8

func (e InvalidExternalError) Error() string {
	return fmt.Sprintf("wasm: invalid external_kind value %d", uint8(e))
}

var _ Section = (*ImportSection)(nil)

// ImportSection declares all imports that will be used in the module.
type ImportSection struct {
	RawSection
	Entries []Import
}

func (*ImportSection) SectionID() SectionID {
	return SectionIDImport
}

func (s *ImportSection) ReadPayload(r io.Reader) error {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}

	s.Entries = make([]Import, 0, getInitialCap(count))
	for i := uint32(0); i < count; i++ {
		var entry Import
		if err := entry.UnmarshalWASM(r); err != nil {
			return err
		}
		s.Entries = append(s.Entries, entry)
	}
	return nil
}

func (s *ImportSection) WritePayload(w io.Writer) error {
	_, err := leb128.WriteVarUint32(w, uint32(len(s.Entries)))
	if err != nil {
		return err
	}
	for _, e := range s.Entries {
		err = writeImportEntry(w, e)
		if err != nil {
			return err
		}
	}
	return nil
}

func (i *Import) UnmarshalWASM(r io.Reader) error {
	var err error
	i.Module, err = readUTF8StringUint(r)
	if err != nil {
		return err
	}
	i.Name, err = readUTF8StringUint(r)
	if err != nil {
		return err
	}
	var kind External
	err = kind.UnmarshalWASM(r)
	if err != nil {
		return err
	}

	switch kind {
	case ExternalFunction:
		logger.Println("importing function")
		var t uint32
		t, err = leb128.ReadVarUint32(r)
		i.Type = FuncImport{t}
	case ExternalTable:
		logger.Println("importing table")
		var table Table

		err = table.UnmarshalWASM(r)
		if err == nil {
			i.Type = TableImport{table}
		}
	case ExternalMemory:
		logger.Println("importing memory")
		var mem Memory

		err = mem.UnmarshalWASM(r)
		if err == nil {
			i.Type = MemoryImport{mem}
		}
	case ExternalGlobal:
		logger.Println("importing global var")
		var gl GlobalVar

		err = gl.UnmarshalWASM(r)
		if err == nil {
			i.Type = GlobalVarImport{gl}
		}
	default:
		return InvalidExternalError(kind)
	}

	return err
}

func writeImportEntry(w io.Writer, i Import) error {
	if err := writeStringUint(w, i.Module); err != nil {
		return err
	}
	if err := writeStringUint(w, i.Name); err != nil {
		return err
	}
	if err := i.Type.Kind().MarshalWASM(w); err != nil {
		return err
	}
	return i.Type.MarshalWASM(w)
}

// FunctionSection declares the signature of all functions defined in the module (in the code section)
type FunctionSection struct {
	RawSection
	// Sequences of indices into (FunctionSignatues).Entries
	Types []uint32
}

func (*FunctionSection) SectionID() SectionID {
	return SectionIDFunction
}

func (s *FunctionSection) ReadPayload(r io.Reader) error {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}
	s.Types = make([]uint32, 0, getInitialCap(count))
	for i := uint32(0); i < count; i++ {
		t, err := leb128.ReadVarUint32(r)
		if err != nil {
			return err
		}
		s.Types = append(s.Types, t)
	}
	return nil
}

func (s *FunctionSection) WritePayload(w io.Writer) error {
	if _, err := leb128.WriteVarUint32(w, uint32(len(s.Types))); err != nil {
		return err
	}
	for _, t := range s.Types {
		if _, err := leb128.WriteVarUint32(w, uint32(t)); err != nil {
			return err
		}
	}
	return nil
}

// TableSection describes all tables declared by a module.
type TableSection struct {
	RawSection
	Entries []Table
}

func (*TableSection) SectionID() SectionID {
	return SectionIDTable
}

func (s *TableSection) ReadPayload(r io.Reader) error {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}

	s.Entries = make([]Table, 0, getInitialCap(count))
	for i := uint32(0); i < count; i++ {
		var entry Table
		if err = entry.UnmarshalWASM(r); err != nil {
			return err
		}
		s.Entries = append(s.Entries, entry)
	}
	return nil
}

func (s *TableSection) WritePayload(w io.Writer) error {
	if _, err := leb128.WriteVarUint32(w, uint32(len(s.Entries))); err != nil {
		return err
	}
	for _, e := range s.Entries {
		if err := e.MarshalWASM(w); err != nil {
			return err
		}
	}
	return nil
}

// MemorySection describes all linear memories used by a module.
type MemorySection struct {
	RawSection
	Entries []Memory
}

func (*MemorySection) SectionID() SectionID {
	return SectionIDMemory
}

func (s *MemorySection) ReadPayload(r io.Reader) error {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}
	s.Entries = make([]Memory, 0, getInitialCap(count))
	for i := uint32(0); i < count; i++ {
		var entry Memory
		if err = entry.UnmarshalWASM(r); err != nil {
			return err
		}
		s.Entries = append(s.Entries, entry)
	}
	return nil
}

func (s *MemorySection) WritePayload(w io.Writer) error {
	if _, err := leb128.WriteVarUint32(w, uint32(len(s.Entries))); err != nil {
		return err
	}
	for _, e := range s.Entries {
		if err := e.MarshalWASM(w); err != nil {
			return err
		}
	}
	return nil
}

// GlobalSection defines the value of all global variables declared in a module.
type GlobalSection struct {
	RawSection
	Globals []Global
}

func (*GlobalSection) SectionID() SectionID {
	return SectionIDGlobal
}

func (s *GlobalSection) ReadPayload(r io.Reader) error {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}

	s.Globals = make([]Global, 0, getInitialCap(count))
	logger.Printf("%d global entries\n", count)
	for i := uint32(0); i < count; i++ {
		var global Global
		if err = global.UnmarshalWASM(r); err != nil {
			return err
		}
		s.Globals = append(s.Globals, global)
	}
	return nil
}

func (s *GlobalSection) WritePayload(w io.Writer) error {
	if _, err := leb128.WriteVarUint32(w, uint32(len(s.Globals))); err != nil {
		return err
	}
	for _, g := range s.Globals {
		if err := g.MarshalWASM(w); err != nil {
			return err
		}
	}
	return nil
}

// Global declares a global variable.
type Global struct {
	Type GlobalVar // Type holds information about the value type and mutability of the variable
	Init []byte    // Init is an initializer expression that computes the initial value of the variable
}

func (g *Global) UnmarshalWASM(r io.Reader) error {
	err := g.Type.UnmarshalWASM(r)
	if err != nil {
		return err
	}

	// init_expr is delimited by opcode "end" (0x0b)
	g.Init, err = readInitExpr(r)
	return err
}

func (g *Global) MarshalWASM(w io.Writer) error {
	if err := g.Type.MarshalWASM(w); err != nil {
		return err
	}
	_, err := w.Write(g.Init)
	return err
}

// ExportSection declares the export section of a module
type ExportSection struct {
	RawSection
	Entries []Export
}

func (*ExportSection) SectionID() SectionID {
	return SectionIDExport
}

func (s *ExportSection) ReadPayload(r io.Reader) error {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}

	for i := uint32(0); i < count; i++ {
		var entry Export
		if err = entry.UnmarshalWASM(r); err != nil {
			return err
		}
		s.Entries = append(s.Entries, entry)
	}
	return nil
}

func (s *ExportSection) WritePayload(w io.Writer) error {
	if _, err := leb128.WriteVarUint32(w, uint32(len(s.Entries))); err != nil {
		return err
	}
	entries := make([]Export, 0, len(s.Entries))
	for _, e := range s.Entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		// If the Index # is the same, fall back to string comparing the field name.  This should ensure a
		// deterministic sort order for the exports occurs, when run on the same .wasm file multiple times
		if entries[i].Index == entries[j].Index {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].Index < entries[j].Index
	})
	for _, e := range entries {
		if err := e.MarshalWASM(w); err != nil {
			return err
		}
	}
	return nil
}

type DuplicateExportError string

func (e DuplicateExportError) Error() string {
	return fmt.Sprintf("Duplicate export entry: %s", string(e))
}

// Export represents an exported entry by the module
type Export struct {
	Name  string
	Kind  External
	Index uint32
}

func (e *Export) UnmarshalWASM(r io.Reader) error {
	var err error
	e.Name, err = readUTF8StringUint(r)
	if err != nil {
		return err
	}

	if err := e.Kind.UnmarshalWASM(r); err != nil {
		return err
	}

	e.Index, err = leb128.ReadVarUint32(r)

	return err
}

func (e *Export) MarshalWASM(w io.Writer) error {
	if err := writeStringUint(w, e.Name); err != nil {
		return err
	}
	if err := e.Kind.MarshalWASM(w); err != nil {
		return err
	}
	if _, err := leb128.WriteVarUint32(w, e.Index); err != nil {
		return err
	}
	return nil
}

// StartSection represents the start function section.
type StartSection struct {
	RawSection
	Index uint32 // The index of the start function into the global index space.
}

func (*StartSection) SectionID() SectionID {
	return SectionIDStart
}

func (s *StartSection) ReadPayload(r io.Reader) error {
	var err error
	s.Index, err = leb128.ReadVarUint32(r)
	return err
}

func (s *StartSection) WritePayload(w io.Writer) error {
	_, err := leb128.WriteVarUint32(w, s.Index)
	return err
}

// ElementSection describes the initial contents of a table's elements.
type ElementSection struct {
	RawSection
	Entries []ElementSegment
}

func (*ElementSection) SectionID() SectionID {
	return SectionIDElement
}

func (s *ElementSection) ReadPayload(r io.Reader) error {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}

	s.Entries = make([]ElementSegment, 0, getInitialCap(count))
	for i := uint32(0); i < count; i++ {
		var element ElementSegment
		if err = element.UnmarshalWASM(r); err != nil {
			return err
		}
		s.Entries = append(s.Entries, element)
	}
	return nil
}

func (s *ElementSection) WritePayload(w io.Writer) error {
	if _, err := leb128.WriteVarUint32(w, uint32(len(s.Entries))); err != nil {
		return err
	}
	for _, e := range s.Entries {
		if err := e.MarshalWASM(w); err != nil {
			return err
		}
	}
	return nil
}

// ElementSegment describes a group of repeated elements that begin at a specified offset
type ElementSegment struct {
	Index  uint32 // The index into the global table space, should always be 0 in the MVP.
	Offset []byte // initializer expression for computing the offset for placing elements, should return an i32 value
	Elems  []uint32
}

func (s *ElementSegment) UnmarshalWASM(r io.Reader) error {
	var err error

	if s.Index, err = leb128.ReadVarUint32(r); err != nil {
		return err
	}
	if s.Offset, err = readInitExpr(r); err != nil {
		return err
	}

	numElems, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}
	s.Elems = make([]uint32, 0, getInitialCap(numElems))
	for i := uint32(0); i < numElems; i++ {
		e, err := leb128.ReadVarUint32(r)
		if err != nil {
			return err
		}
		s.Elems = append(s.Elems, e)
	}

	return nil
}

func (s *ElementSegment) MarshalWASM(w io.Writer) error {
	if _, err := leb128.WriteVarUint32(w, s.Index); err != nil {
		return err
	}
	if _, err := w.Write(s.Offset); err != nil {
		return err
	}

	if _, err := leb128.WriteVarUint32(w, uint32(len(s.Elems))); err != nil {
		return err
	}
	for _, e := range s.Elems {
		if _, err := leb128.WriteVarUint32(w, e); err != nil {
			return err
		}
	}
	return nil
}

// CodeSection describes the body for every function declared inside a module.
type CodeSection struct {
	RawSection
	Bodies []Code
}

func (*CodeSection) SectionID() SectionID {
	return SectionIDCode
}

func (s *CodeSection) ReadPayload(r io.Reader) error {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}
	s.Bodies = make([]Code, 0, getInitialCap(count))
	logger.Printf("%d function bodies\n", count)

	for i := uint32(0); i < count; i++ {
		logger.Printf("Reading function %d\n", i)
		var body Code
		if err = body.UnmarshalWASM(r); err != nil {
			return err
		}
		s.Bodies = append(s.Bodies, body)
	}
	return nil
}

func (s *CodeSection) WritePayload(w io.Writer) error {
	if _, err := leb128.WriteVarUint32(w, uint32(len(s.Bodies))); err != nil {
		return err
	}
	for _, b := range s.Bodies {
		if err := b.MarshalWASM(w); err != nil {
			return err
		}
	}
	return nil
}

var ErrFunctionNoEnd = errors.New("Function body does not end with 0x0b (end)")

type Code struct {
	Module *Module // The parent module containing this function body, for execution purposes
	Locals []LocalEntry
	Code   []byte
}

func (f *Code) UnmarshalWASM(r io.Reader) error {
	bodySize, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}

	body, err := readBytes(r, bodySize)
	if err != nil {
		return err
	}

	bytesReader := bytes.NewBuffer(body)

	localCount, err := leb128.ReadVarUint32(bytesReader)
	if err != nil {
		return err
	}
	f.Locals = make([]LocalEntry, 0, getInitialCap(localCount))

	for i := uint32(0); i < localCount; i++ {
		var local LocalEntry
		if err = local.UnmarshalWASM(bytesReader); err != nil {
			return err
		}
		f.Locals = append(f.Locals, local)
	}

	logger.Printf("bodySize: %d, localCount: %d\n", bodySize, localCount)

	f.Code = bytesReader.Bytes()
	logger.Printf("Read %d bytes for function body", len(f.Code))

	return nil
}

func (f *Code) MarshalWASM(w io.Writer) error {
	body := new(bytes.Buffer)
	if _, err := leb128.WriteVarUint32(body, uint32(len(f.Locals))); err != nil {
		return err
	}
	for _, l := range f.Locals {
		if err := l.MarshalWASM(body); err != nil {
			return err
		}
	}
	if _, err := body.Write(f.Code); err != nil {
		return err
	}
	return writeBytesUint(w, body.Bytes())
}

type LocalEntry struct {
	Count uint32    // The total number of local variables of the given Type used in the function body
	Type  ValueType // The type of value stored by the variable
}

func (l *LocalEntry) UnmarshalWASM(r io.Reader) error {
	var err error

	l.Count, err = leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}

	err = l.Type.UnmarshalWASM(r)
	if err != nil {
		return err
	}

	return nil
}

func (l *LocalEntry) MarshalWASM(w io.Writer) error {
	if _, err := leb128.WriteVarUint32(w, l.Count); err != nil {
		return err
	}
	if err := l.Type.MarshalWASM(w); err != nil {
		return err
	}
	return nil
}

// DataSection describes the initial values of a module's linear memory
type DataSection struct {
	RawSection
	Entries []DataSegment
}

func (*DataSection) SectionID() SectionID {
	return SectionIDData
}

func (s *DataSection) ReadPayload(r io.Reader) error {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}
	s.Entries = make([]DataSegment, 0, getInitialCap(count))
	for i := uint32(0); i < count; i++ {
		var entry DataSegment
		if err = entry.UnmarshalWASM(r); err != nil {
			return err
		}
		s.Entries = append(s.Entries, entry)
	}
	return nil
}

func (s *DataSection) WritePayload(w io.Writer) error {
	if _, err := leb128.WriteVarUint32(w, uint32(len(s.Entries))); err != nil {
		return err
	}
	for _, e := range s.Entries {
		if err := e.MarshalWASM(w); err != nil {
			return err
		}
	}
	return nil
}

// DataSegment describes a group of repeated elements that begin at a specified offset in the linear memory
type DataSegment struct {
	Index  uint32 // The index into the global linear memory space, should always be 0 in the MVP.
	Offset []byte // initializer expression for computing the offset for placing elements, should return an i32 value
	Data   []byte
}

func (s *DataSegment) UnmarshalWASM(r io.Reader) error {
	var err error

	if s.Index, err = leb128.ReadVarUint32(r); err != nil {
		return err
	}
	if s.Offset, err = readInitExpr(r); err != nil {
		return err
	}
	s.Data, err = readBytesUint(r)
	return err
}

func (s *DataSegment) MarshalWASM(w io.Writer) error {
	if _, err := leb128.WriteVarUint32(w, s.Index); err != nil {
		return err
	}
	if _, err := w.Write(s.Offset); err != nil {
		return err
	}
	return writeBytesUint(w, s.Data)
}

// A list of well-known custom sections
const (
	CustomSectionName = "name"
)

var (
	_ Marshaler   = (*NameSection)(nil)
	_ Unmarshaler = (*NameSection)(nil)
)

const (
	subsectionIDModuleName    = byte(0)
	subsectionIDFunctionNames = byte(1)
	subsectionIDLocalNames    = byte(2)
)

// NameSection is a custom section that stores debug names for a module, its
// functions, and their locals.
// See https://www.w3.org/TR/wasm-core-1/#binary-namesec
type NameSection struct {
	ModuleName    string
	FunctionNames map[uint32]string
	LocalNames    map[uint32]map[uint32]string
}

func (s *NameSection) UnmarshalWASM(r io.Reader) error {
	for {
		idBuf := make([]byte, 1)
		if _, err := io.ReadFull(r, idBuf); err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}

		size, err := leb128.ReadVarUint32(r)
		if err != nil {
			return err
		}
		sub := io.LimitReader(r, int64(size))

		switch idBuf[0] {
		case subsectionIDModuleName:
			if s.ModuleName, err = readUTF8StringUint(sub); err != nil {
				return err
			}
		case subsectionIDFunctionNames:
			if s.FunctionNames, err = readFunctionNames(sub); err != nil {
				return err
			}
		case subsectionIDLocalNames:
			if s.LocalNames, err = readLocalNames(sub); err != nil {
				return err
			}
		default:
			if _, err := io.Copy(ioutil.Discard, sub); err != nil {
				return fmt.Errorf("skipping unknown name subsection %#x: %w", idBuf[0], err)
			}
		}
	}
}

func readFunctionNames(r io.Reader) (map[uint32]string, error) {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return nil, err
	}
	names := make(map[uint32]string, getInitialCap(count))
	for i := uint32(0); i < count; i++ {
		idx, err := leb128.ReadVarUint32(r)
		if err != nil {
			return nil, err
		}
		if names[idx], err = readUTF8StringUint(r); err != nil {
			return nil, err
		}
	}
	return names, nil
}

func readLocalNames(r io.Reader) (map[uint32]map[uint32]string, error) {
	funcCount, err := leb128.ReadVarUint32(r)
	if err != nil {
		return nil, err
	}
	result := make(map[uint32]map[uint32]string, getInitialCap(funcCount))
	for i := uint32(0); i < funcCount; i++ {
		funcIdx, err := leb128.ReadVarUint32(r)
		if err != nil {
			return nil, err
		}
		localCount, err := leb128.ReadVarUint32(r)
		if err != nil {
			return nil, err
		}
		locals := make(map[uint32]string, getInitialCap(localCount))
		for j := uint32(0); j < localCount; j++ {
			localIdx, err := leb128.ReadVarUint32(r)
			if err != nil {
				return nil, err
			}
			if locals[localIdx], err = readUTF8StringUint(r); err != nil {
				return nil, err
			}
		}
		result[funcIdx] = locals
	}
	return result, nil
}

func (s *NameSection) MarshalWASM(w io.Writer) error {
	if s.ModuleName != "" {
		if err := writeNameSubsection(w, subsectionIDModuleName, func(buf *bytes.Buffer) error {
			return writeStringUint(buf, s.ModuleName)
		}); err != nil {
			return err
		}
	}
	if len(s.FunctionNames) > 0 {
		if err := writeNameSubsection(w, subsectionIDFunctionNames, func(buf *bytes.Buffer) error {
			return writeFunctionNames(buf, s.FunctionNames)
		}); err != nil {
			return err
		}
	}
	if len(s.LocalNames) > 0 {
		if err := writeNameSubsection(w, subsectionIDLocalNames, func(buf *bytes.Buffer) error {
			return writeLocalNames(buf, s.LocalNames)
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeNameSubsection(w io.Writer, id byte, encode func(*bytes.Buffer) error) error {
	var buf bytes.Buffer
	if err := encode(&buf); err != nil {
		return err
	}
	if _, err := w.Write([]byte{id}); err != nil {
		return err
	}
	return writeBytesUint(w, buf.Bytes())
}

func writeFunctionNames(w io.Writer, names map[uint32]string) error {
	keys := sortedUint32Keys(names)
	if _, err := leb128.WriteVarUint32(w, uint32(len(keys))); err != nil {
		return err
	}
	for _, idx := range keys {
		if _, err := leb128.WriteVarUint32(w, idx); err != nil {
			return err
		}
		if err := writeStringUint(w, names[idx]); err != nil {
			return err
		}
	}
	return nil
}

func writeLocalNames(w io.Writer, funcs map[uint32]map[uint32]string) error {
	funcKeys := sortedUint32Keys(funcs)
	if _, err := leb128.WriteVarUint32(w, uint32(len(funcKeys))); err != nil {
		return err
	}
	for _, funcIdx := range funcKeys {
		if _, err := leb128.WriteVarUint32(w, funcIdx); err != nil {
			return err
		}
		if err := writeFunctionNames(w, funcs[funcIdx]); err != nil {
			return err
		}
	}
	return nil
}

func sortedUint32Keys[V any](m map[uint32]V) []uint32 {
	keys := make([]uint32, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
