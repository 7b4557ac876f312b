package core

import "fmt"

// HostImportDelegate resolves imports against a host module: one method
// per importable kind, each responsible for allocating (or locating) the
// environment entry the import should bind to and returning it fully
// populated, per spec section 6.3. A delegate method returning a non-nil
// error aborts the parse (category CategoryLinking).
type HostImportDelegate interface {
	ImportFunc(moduleName, fieldName string, sig Signature) (Function, error)
	ImportTable(moduleName, fieldName string, desired Limits) (*Table, error)
	ImportMemory(moduleName, fieldName string, desired Limits) (*Memory, error)
	ImportGlobal(moduleName, fieldName string, t OperandType, mutable bool) (Global, error)
}

// importLinker resolves each declared import against either a registered
// host delegate or a registered non-host module's exports, per spec
// section 4.2.
type importLinker struct {
	env *Environment
}

func (l *importLinker) isHost(moduleName string) (HostImportDelegate, bool) {
	d, ok := l.env.hostDelegates[moduleName]
	return d, ok
}

// LinkFunc resolves a function import, returning the environment-global
// function index it binds to.
func (l *importLinker) LinkFunc(moduleName, fieldName string, sig Signature) (uint32, error) {
	if delegate, ok := l.isHost(moduleName); ok {
		fn, err := delegate.ImportFunc(moduleName, fieldName, sig)
		if err != nil {
			return 0, errorf(CategoryLinking, InvalidOffset, "host import %s.%s: %v", moduleName, fieldName, err)
		}
		fn.IsHost = true
		fn.HostModule, fn.HostField = moduleName, fieldName
		idx := uint32(len(l.env.Funcs))
		l.env.Funcs = append(l.env.Funcs, fn)
		return idx, nil
	}

	_, export, err := l.resolveExport(moduleName, fieldName, ExportFunc)
	if err != nil {
		return 0, err
	}
	actual := l.env.Funcs[export.Index]
	actualSig := l.env.Sigs[actual.SigIndex]
	if !actualSig.Equals(sig) {
		return 0, errorf(CategoryType, InvalidOffset, "import %s.%s: function signature mismatch", moduleName, fieldName)
	}
	return export.Index, nil
}

// LinkTable resolves a table import, returning the environment-global
// table index it binds to.
func (l *importLinker) LinkTable(moduleName, fieldName string, desired Limits) (uint32, error) {
	if delegate, ok := l.isHost(moduleName); ok {
		t, err := delegate.ImportTable(moduleName, fieldName, desired)
		if err != nil {
			return 0, errorf(CategoryLinking, InvalidOffset, "host import %s.%s: %v", moduleName, fieldName, err)
		}
		idx := uint32(len(l.env.Tables))
		l.env.Tables = append(l.env.Tables, t)
		return idx, nil
	}

	_, export, err := l.resolveExport(moduleName, fieldName, ExportTable)
	if err != nil {
		return 0, err
	}
	actual := l.env.Tables[export.Index]
	if !desired.Accepts(actual.Limits) {
		return 0, errorf(CategoryBounds, InvalidOffset, "import %s.%s: table limits %+v do not satisfy declared limits %+v", moduleName, fieldName, actual.Limits, desired)
	}
	return export.Index, nil
}

// LinkMemory resolves a memory import, returning the environment-global
// memory index it binds to.
func (l *importLinker) LinkMemory(moduleName, fieldName string, desired Limits) (uint32, error) {
	if delegate, ok := l.isHost(moduleName); ok {
		m, err := delegate.ImportMemory(moduleName, fieldName, desired)
		if err != nil {
			return 0, errorf(CategoryLinking, InvalidOffset, "host import %s.%s: %v", moduleName, fieldName, err)
		}
		idx := uint32(len(l.env.Memories))
		l.env.Memories = append(l.env.Memories, m)
		return idx, nil
	}

	_, export, err := l.resolveExport(moduleName, fieldName, ExportMemory)
	if err != nil {
		return 0, err
	}
	actual := l.env.Memories[export.Index]
	min, max, hasMax := actual.Limits()
	actualLimits := Limits{Initial: min, Maximum: max, HasMax: hasMax}
	if !desired.Accepts(actualLimits) {
		return 0, errorf(CategoryBounds, InvalidOffset, "import %s.%s: memory limits %+v do not satisfy declared limits %+v", moduleName, fieldName, actualLimits, desired)
	}
	return export.Index, nil
}

// LinkGlobal resolves a global import, returning the environment-global
// global index it binds to.
func (l *importLinker) LinkGlobal(moduleName, fieldName string, t OperandType, mutable bool) (uint32, error) {
	if delegate, ok := l.isHost(moduleName); ok {
		g, err := delegate.ImportGlobal(moduleName, fieldName, t, mutable)
		if err != nil {
			return 0, errorf(CategoryLinking, InvalidOffset, "host import %s.%s: %v", moduleName, fieldName, err)
		}
		idx := uint32(len(l.env.Globals))
		l.env.Globals = append(l.env.Globals, g)
		return idx, nil
	}

	_, export, err := l.resolveExport(moduleName, fieldName, ExportGlobal)
	if err != nil {
		return 0, err
	}
	actual := l.env.Globals[export.Index]
	if actual.Type != t || actual.Mutable != mutable {
		return 0, errorf(CategoryType, InvalidOffset, "import %s.%s: global type/mutability mismatch", moduleName, fieldName)
	}
	return export.Index, nil
}

func (l *importLinker) resolveExport(moduleName, fieldName string, kind ExportKind) (*Module, Export, error) {
	mod, ok := l.env.LookupModule(moduleName)
	if !ok {
		return nil, Export{}, errorf(CategoryLinking, InvalidOffset, "unknown import module %q", moduleName)
	}
	export, ok := mod.Exports[fieldName]
	if !ok {
		return nil, Export{}, errorf(CategoryLinking, InvalidOffset, "module %q has no export %q", moduleName, fieldName)
	}
	if export.Kind != kind {
		return nil, Export{}, errorf(CategoryLinking, InvalidOffset, "import %s.%s: expected %s, export is %s", moduleName, fieldName, kindName(kind), kindName(export.Kind))
	}
	return mod, export, nil
}

func kindName(k ExportKind) string {
	switch k {
	case ExportFunc:
		return "func"
	case ExportTable:
		return "table"
	case ExportMemory:
		return "memory"
	case ExportGlobal:
		return "global"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}
