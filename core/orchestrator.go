package core

import (
	"github.com/wasmforge/wasmforge/wasm"
	"go.uber.org/zap"
)

// Options configures a single Lower call.
type Options struct {
	// Name registers the lowered module under this name, so that later
	// Lower calls can import from it. Empty means the module is not
	// registered (it can still be used directly via the returned Module).
	Name string
}

// Lower validates and lowers one decoded binary module against env,
// appending env's shared tables and returning the new Module on success.
// On any failure the environment is rolled back to exactly the state it
// was in when Lower was called (spec section 6.1's transactional
// guarantee) and the error is returned; env is left untouched.
func Lower(env *Environment, wmod *wasm.Module, opts Options) (mod *Module, err error) {
	log := Logger().With(zap.String("module", opts.Name))
	mark := env.Mark()
	defer func() {
		if err != nil {
			log.Error("lowering failed, rolling back", zap.Error(err))
			env.Rollback(mark)
			mod = nil
		}
	}()

	l := newLowering(env, wmod)
	mod = l.mod

	istreamStart := uint32(len(env.Istream))

	steps := []struct {
		name string
		run  func() error
	}{
		{"types", l.installTypes},
		{"imports", l.installImports},
		{"functions", l.installFunctions},
		{"table", l.installTable},
		{"memory", l.installMemory},
		{"globals", l.installGlobals},
		{"exports", l.installExports},
		{"start", l.installStart},
		{"elements", l.installElementSegmentsPass1},
		{"data", l.installDataSegmentsPass1},
		{"code", l.installCode},
	}
	for _, step := range steps {
		log.Debug("installing section", zap.String("step", step.name))
		if err := step.run(); err != nil {
			return nil, err
		}
	}

	l.commitSegmentsPass2()
	l.installCustoms()

	mod.IstreamStart = istreamStart
	mod.IstreamEnd = uint32(len(env.Istream))

	if opts.Name != "" {
		env.RegisterModule(opts.Name, mod)
	}

	return mod, nil
}
