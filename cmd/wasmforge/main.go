package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/pprof"

	"go.uber.org/zap"

	"github.com/wasmforge/wasmforge/core"
	"github.com/wasmforge/wasmforge/load"
)

var version = "<unknown>"

func main() {
	doMain(os.Stdout, os.Stderr, os.Exit)
}

// doMain is separated out for the purpose of unit testing.
func doMain(stdOut, stdErr io.Writer, exit func(code int)) {
	flag.CommandLine.SetOutput(stdErr)

	var help bool
	flag.BoolVar(&help, "h", false, "print usage")
	flag.Parse()

	if help || flag.NArg() == 0 {
		printUsage(stdErr)
		exit(0)
		return
	}

	subCmd := flag.Arg(0)
	switch subCmd {
	case "link":
		doLink(flag.Args()[1:], stdOut, stdErr, exit)
	case "dump":
		doDump(flag.Args()[1:], stdOut, stdErr, exit)
	case "version":
		fmt.Fprintln(stdOut, version)
		exit(0)
	default:
		fmt.Fprintln(stdErr, "invalid command")
		printUsage(stdErr)
		exit(1)
	}
}

func newLogger(verbose bool, stdErr io.Writer) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	cfg := zap.NewDevelopmentConfig()
	l, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(stdErr, "building logger: %v\n", err)
		return zap.NewNop()
	}
	return l
}

func doLink(args []string, stdOut, stdErr io.Writer, exit func(code int)) {
	flags := flag.NewFlagSet("link", flag.ContinueOnError)
	flags.SetOutput(stdErr)

	var help, verbose bool
	flags.BoolVar(&help, "h", false, "print usage")
	flags.BoolVar(&verbose, "v", false, "log each lowering step to stderr")

	var cpuProfile, memProfile string
	flags.StringVar(&cpuProfile, "cpu", "", "emit Go CPU profile data to this path")
	flags.StringVar(&memProfile, "mem", "", "emit Go memory profile data to this path")

	var name string
	flags.StringVar(&name, "name", "", "register the lowered module under this name for later imports")

	_ = flags.Parse(args)

	if help {
		printLinkUsage(stdErr, flags)
		exit(0)
		return
	}
	if flags.NArg() != 1 {
		fmt.Fprintln(stdErr, "expected exactly one argument: path to module")
		printLinkUsage(stdErr, flags)
		exit(1)
		return
	}

	stopProfiling := startProfiling(cpuProfile, memProfile, stdErr, exit)
	defer stopProfiling()

	core.SetLogger(newLogger(verbose, stdErr))

	wmod, err := load.LoadFile(flags.Arg(0))
	if err != nil {
		fmt.Fprintf(stdErr, "%v\n", err)
		exit(1)
		return
	}

	env := core.NewEnvironment()
	mod, err := core.Lower(env, wmod, core.Options{Name: name})
	if err != nil {
		fmt.Fprintf(stdErr, "%v\n", err)
		exit(1)
		return
	}

	numFuncs := len(mod.Funcs) - mod.NumFuncImports
	fmt.Fprintf(stdOut, "linked %d defined function(s), istream [%d, %d)\n", numFuncs, mod.IstreamStart, mod.IstreamEnd)
	exit(0)
}

func doDump(args []string, stdOut, stdErr io.Writer, exit func(code int)) {
	flags := flag.NewFlagSet("dump", flag.ContinueOnError)
	flags.SetOutput(stdErr)

	var help, stats, verbose bool
	flags.BoolVar(&help, "h", false, "print usage")
	flags.BoolVar(&stats, "s", false, "dump per-function istream statistics in CSV format")
	flags.BoolVar(&verbose, "v", false, "log each lowering step to stderr")

	_ = flags.Parse(args)

	if help {
		printDumpUsage(stdErr, flags)
		exit(0)
		return
	}
	if flags.NArg() != 1 {
		fmt.Fprintln(stdErr, "expected exactly one argument: path to module")
		printDumpUsage(stdErr, flags)
		exit(1)
		return
	}

	core.SetLogger(newLogger(verbose, stdErr))

	wmod, err := load.LoadFile(flags.Arg(0))
	if err != nil {
		fmt.Fprintf(stdErr, "%v\n", err)
		exit(1)
		return
	}

	env := core.NewEnvironment()
	mod, err := core.Lower(env, wmod, core.Options{})
	if err != nil {
		fmt.Fprintf(stdErr, "%v\n", err)
		exit(1)
		return
	}

	w := bufio.NewWriter(stdOut)
	defer w.Flush()

	if stats {
		err = core.WriteStats(w, env, mod)
	} else {
		err = core.Disassemble(w, env.Istream, mod.IstreamStart, mod.IstreamEnd)
	}
	if err != nil {
		fmt.Fprintf(stdErr, "%v\n", err)
		exit(1)
		return
	}
	exit(0)
}

func startProfiling(cpuProfile, memProfile string, stdErr io.Writer, exit func(code int)) func() {
	if cpuProfile != "" {
		f, err := os.Create(cpuProfile)
		if err != nil {
			fmt.Fprintf(stdErr, "%v\n", err)
			exit(1)
			return func() {}
		}
		pprof.StartCPUProfile(f)
	}
	return func() {
		if cpuProfile != "" {
			pprof.StopCPUProfile()
		}
		if memProfile != "" {
			f, err := os.Create(memProfile)
			if err != nil {
				fmt.Fprintf(stdErr, "%v\n", err)
				return
			}
			runtime.GC()
			pprof.WriteHeapProfile(f)
		}
	}
}

func printUsage(stdErr io.Writer) {
	fmt.Fprintln(stdErr, "wasmforge - decodes, links, and lowers WebAssembly binary modules to the istream interpreters consume")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:\n  wasmforge <command>")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Commands:")
	fmt.Fprintln(stdErr, "  link\t\tDecode, link, and lower a WebAssembly binary module")
	fmt.Fprintln(stdErr, "  dump\t\tDump a lowered module's istream or statistics")
	fmt.Fprintln(stdErr, "  version\tDisplays the version of wasmforge")
}

func printLinkUsage(stdErr io.Writer, flags *flag.FlagSet) {
	fmt.Fprintln(stdErr, "Usage:\n  wasmforge link <options> <path to wasm file>")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Options:")
	flags.PrintDefaults()
}

func printDumpUsage(stdErr io.Writer, flags *flag.FlagSet) {
	fmt.Fprintln(stdErr, "Usage:\n  wasmforge dump <options> <path to wasm file>")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Options:")
	flags.PrintDefaults()
}
