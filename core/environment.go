package core

import "fmt"

// Environment is the shared, cross-module state that Lower appends to: the
// signature/function/global/memory/table tables, the istream buffer, and
// the name-indexed registry of modules and their exports. It survives
// across multiple calls to Lower, the way a single process links multiple
// Wasm modules against one another over its lifetime.
type Environment struct {
	Sigs    []Signature
	Funcs   []Function
	Globals []Global
	Memories []*Memory
	Tables   []*Table
	Modules  []*Module

	Istream []byte

	// modulesByName indexes Modules by the name it was registered under,
	// for import resolution against non-host modules.
	modulesByName map[string]int

	// hostDelegates indexes host-import delegates by the module name
	// imports reference; a name present here is resolved via the
	// delegate's four methods (spec section 6.3) instead of an Exports
	// lookup.
	hostDelegates map[string]HostImportDelegate
}

// NewEnvironment creates an empty environment.
func NewEnvironment() *Environment {
	return &Environment{
		modulesByName: map[string]int{},
		hostDelegates: map[string]HostImportDelegate{},
	}
}

// RegisterModule binds a name to a module already appended to env.Modules,
// so that later Lower calls can import from it.
func (env *Environment) RegisterModule(name string, m *Module) {
	env.modulesByName[name] = len(env.Modules)
	env.Modules = append(env.Modules, m)
}

// RegisterHostModule binds a name to a host-import delegate. Imports
// whose module name matches are resolved by calling into delegate rather
// than by looking up an export on a registered Module.
func (env *Environment) RegisterHostModule(name string, delegate HostImportDelegate) {
	env.hostDelegates[name] = delegate
}

// LookupModule returns the registered module bound to name, if any.
func (env *Environment) LookupModule(name string) (*Module, bool) {
	i, ok := env.modulesByName[name]
	if !ok {
		return nil, false
	}
	return env.Modules[i], true
}

// mark is an immutable snapshot of every environment vector's length,
// taken before a Lower call begins appending, so a failed parse can be
// rolled back to exactly this point.
type mark struct {
	sigs, funcs, globals, memories, tables, modules int
	istream                                         int
	registeredNames                                 []string
}

// Mark snapshots the environment's current sizes.
func (env *Environment) Mark() mark {
	names := make([]string, 0, len(env.modulesByName))
	for name := range env.modulesByName {
		names = append(names, name)
	}
	return mark{
		sigs:             len(env.Sigs),
		funcs:            len(env.Funcs),
		globals:          len(env.Globals),
		memories:         len(env.Memories),
		tables:           len(env.Tables),
		modules:          len(env.Modules),
		istream:          len(env.Istream),
		registeredNames:  names,
	}
}

// Rollback truncates every environment vector back to the sizes recorded
// in m, undoing every append made since Mark was called. Any module name
// registered after the mark is also unregistered. This is the only
// atomic (all-or-nothing) boundary the environment offers; it is not a
// concurrency primitive.
func (env *Environment) Rollback(m mark) {
	for _, mem := range env.Memories[m.memories:] {
		if mem != nil {
			mem.Close()
		}
	}

	env.Sigs = env.Sigs[:m.sigs]
	env.Funcs = env.Funcs[:m.funcs]
	env.Globals = env.Globals[:m.globals]
	env.Memories = env.Memories[:m.memories]
	env.Tables = env.Tables[:m.tables]
	env.Modules = env.Modules[:m.modules]
	env.Istream = env.Istream[:m.istream]

	before := make(map[string]bool, len(m.registeredNames))
	for _, name := range m.registeredNames {
		before[name] = true
	}
	for name := range env.modulesByName {
		if !before[name] {
			delete(env.modulesByName, name)
		}
	}
}

// allocMemory appends a new memory with the given limits and returns its
// environment index.
func (env *Environment) allocMemory(limits Limits) (uint32, error) {
	mem, err := NewMemory(limits.Initial, limits.Maximum, limits.HasMax)
	if err != nil {
		return 0, fmt.Errorf("core: allocating memory: %w", err)
	}
	idx := uint32(len(env.Memories))
	env.Memories = append(env.Memories, mem)
	return idx, nil
}

// allocTable appends a new table with the given limits and returns its
// environment index.
func (env *Environment) allocTable(limits Limits) uint32 {
	idx := uint32(len(env.Tables))
	env.Tables = append(env.Tables, newTable(limits))
	return idx
}
