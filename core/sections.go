package core

import "github.com/wasmforge/wasmforge/wasm"

// lowering threads per-module state through the section installers and
// the instruction lowerer: the environment being appended to, the
// decoded input module, the Module under construction, the istream
// cursor, and the two pass-2 segment queues (spec section 4.4's
// two-pass driver).
type lowering struct {
	env    *Environment
	wmod   *wasm.Module
	mod    *Module
	e      *istreamEmitter
	linker *importLinker

	// funcFixups is keyed by defined-function index (0-based among this
	// module's own defined functions, not the combined import+defined
	// local index space) — spec section 3's func_fixups.
	funcFixups *fixupTable

	pendingElems []pendingElem
	pendingData  []pendingData
}

type pendingElem struct {
	offset uint32
	funcs  []uint32
}

type pendingData struct {
	offset uint32
	bytes  []byte
}

func newLowering(env *Environment, wmod *wasm.Module) *lowering {
	mod := &Module{
		TableIndex:  InvalidIndex,
		MemoryIndex: InvalidIndex,
		StartIndex:  InvalidIndex,
		Exports:     map[string]Export{},
	}
	return &lowering{
		env:        env,
		wmod:       wmod,
		mod:        mod,
		e:          &istreamEmitter{env: env},
		linker:     &importLinker{env: env},
		funcFixups: newFixupTable(),
	}
}

// installTypes bulk-allocates environment signature slots for every
// declared signature and records the module-local -> env-global mapping.
func (l *lowering) installTypes() error {
	if l.wmod.Types == nil {
		return nil
	}
	base := uint32(len(l.env.Sigs))
	for _, sig := range l.wmod.Types.Entries {
		params, err := operandTypesFromValueTypes(sig.ParamTypes)
		if err != nil {
			return err
		}
		results, err := operandTypesFromValueTypes(sig.ReturnTypes)
		if err != nil {
			return err
		}
		l.env.Sigs = append(l.env.Sigs, Signature{Params: params, Results: results})
	}
	for i := range l.wmod.Types.Entries {
		l.mod.Sigs = append(l.mod.Sigs, base+uint32(i))
	}
	return nil
}

func operandTypesFromValueTypes(ts []wasm.ValueType) ([]OperandType, error) {
	out := make([]OperandType, len(ts))
	for i, t := range ts {
		ot, ok := operandTypeFromValueType(t)
		if !ok {
			return nil, errorf(CategoryType, InvalidOffset, "unsupported value type %s", t)
		}
		out[i] = ot
	}
	return out, nil
}

// installImports resolves every declared import in declaration order,
// against either a host delegate or a registered module's exports (spec
// section 4.2).
func (l *lowering) installImports() error {
	if l.wmod.Import == nil {
		return nil
	}
	for _, imp := range l.wmod.Import.Entries {
		switch t := imp.Type.(type) {
		case wasm.FuncImport:
			envSigIdx, ok := l.mod.Sigs.Get(t.Type)
			if !ok {
				return errorf(CategoryBounds, InvalidOffset, "import %s.%s: signature index %d out of range", imp.Module, imp.Name, t.Type)
			}
			sig := l.env.Sigs[envSigIdx]
			envIdx, err := l.linker.LinkFunc(imp.Module, imp.Name, sig)
			if err != nil {
				return err
			}
			l.mod.Funcs = append(l.mod.Funcs, envIdx)
			l.mod.NumFuncImports++

		case wasm.TableImport:
			if l.mod.TableIndex != InvalidIndex {
				return errorf(CategoryStructural, InvalidOffset, "module declares more than one table")
			}
			envIdx, err := l.linker.LinkTable(imp.Module, imp.Name, limitsFromWASM(t.Type.Limits))
			if err != nil {
				return err
			}
			l.mod.TableIndex = envIdx

		case wasm.MemoryImport:
			if l.mod.MemoryIndex != InvalidIndex {
				return errorf(CategoryStructural, InvalidOffset, "module declares more than one memory")
			}
			envIdx, err := l.linker.LinkMemory(imp.Module, imp.Name, limitsFromWASM(t.Type.Limits))
			if err != nil {
				return err
			}
			l.mod.MemoryIndex = envIdx

		case wasm.GlobalVarImport:
			ot, ok := operandTypeFromValueType(t.Type.Type)
			if !ok {
				return errorf(CategoryType, InvalidOffset, "import %s.%s: unsupported global type", imp.Module, imp.Name)
			}
			envIdx, err := l.linker.LinkGlobal(imp.Module, imp.Name, ot, t.Type.Mutable)
			if err != nil {
				return err
			}
			l.mod.Globals = append(l.mod.Globals, envIdx)
			l.mod.NumGlobalImports++

		default:
			return errorf(CategoryStructural, InvalidOffset, "unknown import kind")
		}
	}
	return nil
}

// installFunctions bulk-allocates environment function slots for every
// defined function and a matching func_fixups slot for each.
func (l *lowering) installFunctions() error {
	if l.wmod.Function == nil {
		return nil
	}
	for _, typeIdx := range l.wmod.Function.Types {
		envSigIdx, ok := l.mod.Sigs.Get(typeIdx)
		if !ok {
			return errorf(CategoryBounds, InvalidOffset, "function declares out-of-range signature index %d", typeIdx)
		}
		envIdx := uint32(len(l.env.Funcs))
		l.env.Funcs = append(l.env.Funcs, Function{SigIndex: envSigIdx, Offset: InvalidIndex})
		l.mod.Funcs = append(l.mod.Funcs, envIdx)
	}
	return nil
}

// installTable allocates the module's single table, if declared locally
// (as opposed to imported).
func (l *lowering) installTable() error {
	if l.wmod.Table == nil || len(l.wmod.Table.Entries) == 0 {
		return nil
	}
	if l.mod.TableIndex != InvalidIndex {
		return errorf(CategoryStructural, InvalidOffset, "module declares more than one table")
	}
	if len(l.wmod.Table.Entries) > 1 {
		return errorf(CategoryStructural, InvalidOffset, "module declares more than one table")
	}
	l.mod.TableIndex = l.env.allocTable(limitsFromWASM(l.wmod.Table.Entries[0].Limits))
	return nil
}

// installMemory allocates the module's single memory, if declared
// locally.
func (l *lowering) installMemory() error {
	if l.wmod.Memory == nil || len(l.wmod.Memory.Entries) == 0 {
		return nil
	}
	if l.mod.MemoryIndex != InvalidIndex {
		return errorf(CategoryStructural, InvalidOffset, "module declares more than one memory")
	}
	if len(l.wmod.Memory.Entries) > 1 {
		return errorf(CategoryStructural, InvalidOffset, "module declares more than one memory")
	}
	envIdx, err := l.env.allocMemory(limitsFromWASM(l.wmod.Memory.Entries[0].Limits))
	if err != nil {
		return err
	}
	l.mod.MemoryIndex = envIdx
	return nil
}

// installGlobals bulk-allocates environment global slots, evaluating each
// one's constant initializer and checking it against the declared type.
func (l *lowering) installGlobals() error {
	if l.wmod.Global == nil {
		return nil
	}
	for _, g := range l.wmod.Global.Globals {
		ot, ok := operandTypeFromValueType(g.Type.Type)
		if !ok {
			return errorf(CategoryType, InvalidOffset, "global declares unsupported value type")
		}
		init, err := evalInitExpr(l.env, l.mod, g.Init)
		if err != nil {
			return err
		}
		if init.Type != ot {
			return errorf(CategoryType, InvalidOffset, "global initializer type %s does not match declared type %s", init.Type, ot)
		}
		envIdx := uint32(len(l.env.Globals))
		l.env.Globals = append(l.env.Globals, Global{Type: ot, Mutable: g.Type.Mutable, Value: globalValue(init)})
		l.mod.Globals = append(l.mod.Globals, envIdx)
	}
	return nil
}

// installExports builds the module's name -> export binding, rejecting
// duplicate names and exports of mutable globals.
func (l *lowering) installExports() error {
	if l.wmod.Export == nil {
		return nil
	}
	for _, e := range l.wmod.Export.Entries {
		if _, exists := l.mod.Exports[e.Name]; exists {
			return errorf(CategoryStructural, InvalidOffset, "duplicate export %q", e.Name)
		}

		switch e.Kind {
		case wasm.ExternalFunction:
			envIdx, ok := l.mod.Funcs.Get(e.Index)
			if !ok {
				return errorf(CategoryBounds, InvalidOffset, "export %q: function index %d out of range", e.Name, e.Index)
			}
			l.mod.Exports[e.Name] = Export{Kind: ExportFunc, Index: envIdx}

		case wasm.ExternalTable:
			if l.mod.TableIndex == InvalidIndex {
				return errorf(CategoryBounds, InvalidOffset, "export %q: module has no table", e.Name)
			}
			l.mod.Exports[e.Name] = Export{Kind: ExportTable, Index: l.mod.TableIndex}

		case wasm.ExternalMemory:
			if l.mod.MemoryIndex == InvalidIndex {
				return errorf(CategoryBounds, InvalidOffset, "export %q: module has no memory", e.Name)
			}
			l.mod.Exports[e.Name] = Export{Kind: ExportMemory, Index: l.mod.MemoryIndex}

		case wasm.ExternalGlobal:
			envIdx, ok := l.mod.Globals.Get(e.Index)
			if !ok {
				return errorf(CategoryBounds, InvalidOffset, "export %q: global index %d out of range", e.Name, e.Index)
			}
			if l.env.Globals[envIdx].Mutable {
				return errorf(CategoryLinking, InvalidOffset, "export %q: mutable globals cannot be exported", e.Name)
			}
			l.mod.Exports[e.Name] = Export{Kind: ExportGlobal, Index: envIdx}

		default:
			return errorf(CategoryStructural, InvalidOffset, "export %q: unknown export kind", e.Name)
		}
	}
	return nil
}

// installStart resolves the start function, requiring it take no
// parameters and return no results.
func (l *lowering) installStart() error {
	if l.wmod.Start == nil {
		return nil
	}
	envIdx, ok := l.mod.Funcs.Get(l.wmod.Start.Index)
	if !ok {
		return errorf(CategoryBounds, InvalidOffset, "start function index %d out of range", l.wmod.Start.Index)
	}
	fn := l.env.Funcs[envIdx]
	sig := l.env.Sigs[fn.SigIndex]
	if len(sig.Params) != 0 || len(sig.Results) != 0 {
		return errorf(CategoryType, InvalidOffset, "start function must take no parameters and return no results")
	}
	l.mod.StartIndex = envIdx
	return nil
}

// installElementSegmentsPass1 validates every element segment's offset
// and function indices, queuing the table writes for pass 2 without
// mutating the table yet (spec section 4.4).
func (l *lowering) installElementSegmentsPass1() error {
	if l.wmod.Elements == nil {
		return nil
	}
	for _, seg := range l.wmod.Elements.Entries {
		if l.mod.TableIndex == InvalidIndex {
			return errorf(CategoryBounds, InvalidOffset, "element segment requires a table")
		}
		offv, err := evalInitExpr(l.env, l.mod, seg.Offset)
		if err != nil {
			return err
		}
		if offv.Type != TypeI32 {
			return errorf(CategoryType, InvalidOffset, "element segment offset must be i32")
		}
		offset := uint32(offv.I32)

		table := l.env.Tables[l.mod.TableIndex]
		if uint64(offset)+uint64(len(seg.Elems)) > uint64(len(table.Entries)) {
			return errorf(CategoryBounds, InvalidOffset, "element segment at offset %d, length %d exceeds table of size %d", offset, len(seg.Elems), len(table.Entries))
		}

		mapped := make([]uint32, len(seg.Elems))
		for i, fi := range seg.Elems {
			envIdx, ok := l.mod.Funcs.Get(fi)
			if !ok {
				return errorf(CategoryBounds, InvalidOffset, "element segment references out-of-range function index %d", fi)
			}
			mapped[i] = envIdx
		}
		l.pendingElems = append(l.pendingElems, pendingElem{offset: offset, funcs: mapped})
	}
	return nil
}

// installDataSegmentsPass1 validates every data segment's bounds against
// its memory's current byte size, queuing the writes for pass 2.
func (l *lowering) installDataSegmentsPass1() error {
	if l.wmod.Data == nil {
		return nil
	}
	for _, seg := range l.wmod.Data.Entries {
		if l.mod.MemoryIndex == InvalidIndex {
			return errorf(CategoryBounds, InvalidOffset, "data segment requires a memory")
		}
		offv, err := evalInitExpr(l.env, l.mod, seg.Offset)
		if err != nil {
			return err
		}
		if offv.Type != TypeI32 {
			return errorf(CategoryType, InvalidOffset, "data segment offset must be i32")
		}
		offset := uint32(offv.I32)

		mem := l.env.Memories[l.mod.MemoryIndex]
		endAddress := uint64(offset) + uint64(len(seg.Data))
		if endAddress > uint64(len(mem.Bytes())) {
			return errorf(CategoryBounds, InvalidOffset, "data segment at offset %d, length %d exceeds memory of size %d", offset, len(seg.Data), len(mem.Bytes()))
		}
		l.pendingData = append(l.pendingData, pendingData{offset: offset, bytes: seg.Data})
	}
	return nil
}

// commitSegmentsPass2 writes every validated element and data segment
// into its target table/memory. Only reached once pass 1 (including all
// code lowering) has completed without error.
func (l *lowering) commitSegmentsPass2() {
	for _, pe := range l.pendingElems {
		table := l.env.Tables[l.mod.TableIndex]
		copy(table.Entries[pe.offset:], pe.funcs)
	}
	for _, pd := range l.pendingData {
		mem := l.env.Memories[l.mod.MemoryIndex]
		mem.WriteAt(pd.offset, pd.bytes) // bounds already checked in pass 1
	}
}

// installCustoms passes custom sections (including the name section)
// through unmodified.
func (l *lowering) installCustoms() {
	for _, c := range l.wmod.Customs {
		l.mod.Customs = append(l.mod.Customs, CustomSection{Name: c.Name, Data: c.Data})
	}
}
