// symtrace runs an assembled program under the tracing JIT.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/symtrace/config"
	"github.com/chazu/symtrace/jit"
	"github.com/chazu/symtrace/pkg/bytecode"
	"github.com/chazu/symtrace/symbolic"
	"github.com/chazu/symtrace/vm"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	entry     string
	repeat    int
	dumpSIR   bool
	dumpDir   string
	dis       bool
	journal   string
	configDir string
	verbosity int
	strict    bool
	noJIT     bool
	set       map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (*options, []string, error) {
	o := &options{set: make(map[string]bool)}
	fs := flag.NewFlagSet("symtrace", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.entry, "entry", "main", "Function to run")
	fs.IntVar(&o.repeat, "repeat", 1, "Number of times to run the entry function")
	fs.BoolVar(&o.dumpSIR, "dump-sir", false, "Print the statement IR of every translation")
	fs.StringVar(&o.dumpDir, "dump-dir", "", "Write every translation's IR as CBOR into this directory")
	fs.BoolVar(&o.dis, "dis", false, "Disassemble the program and every translated code object")
	fs.StringVar(&o.journal, "journal", "", "Record cache events in this SQLite journal")
	fs.StringVar(&o.configDir, "config", "", "Directory holding symtrace.toml (default: search upward from the program)")
	fs.IntVar(&o.verbosity, "v", 0, "Log verbosity (-1 warnings, 0 notices, 1 info, 2 debug)")
	fs.BoolVar(&o.strict, "strict", false, "Fail on constructs that cannot be translated")
	fs.BoolVar(&o.noJIT, "no-jit", false, "Run every frame unmodified")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: symtrace [options] program.sta\n\n")
		fmt.Fprintf(stderr, "Assembles a program and runs its entry function under the tracing JIT.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  symtrace mlp.sta                       # Run main once\n")
		fmt.Fprintf(stderr, "  symtrace -repeat 3 -dump-sir mlp.sta   # Show the IR of each translation\n")
		fmt.Fprintf(stderr, "  symtrace -journal run.db mlp.sta       # Record cache decisions\n")
	}
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	if fs.NArg() != 1 {
		fs.Usage()
		return nil, nil, fmt.Errorf("expected one program, got %d", fs.NArg())
	}
	if o.repeat < 1 {
		return nil, nil, fmt.Errorf("-repeat must be at least 1")
	}
	return o, fs.Args(), nil
}

// loadConfig reads symtrace.toml and applies the environment and the
// flags on top of it, in that order.
func loadConfig(o *options, program string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if o.configDir != "" {
		cfg, err = config.Load(o.configDir)
	} else {
		cfg, err = config.FindAndLoad(filepath.Dir(program))
	}
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if o.set["v"] {
		cfg.Log.Verbosity = o.verbosity
	}
	if o.set["strict"] {
		cfg.Trace.Strict = o.strict
	}
	if o.journal != "" {
		cfg.Journal.Path = o.journal
	}
	return cfg, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	o, rest, err := parseFlags(args, stderr)
	if err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	program := rest[0]

	cfg, err := loadConfig(o, program)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	commonlog.Configure(cfg.Log.Verbosity, nil)

	src, err := os.ReadFile(program)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	module, err := bytecode.Assemble(string(src))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s: %v\n", program, err)
		return 1
	}
	module.Name = filepath.Base(program)

	in := vm.NewInterpreter()
	in.Out = stdout
	if err := in.Load(module); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	j, err := jit.New(cfg, jit.WithProgram(module.Name))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer j.Close()
	j.Enabled = !o.noJIT
	j.Install(in)

	if o.dis {
		fmt.Fprintln(stdout, "== program")
		fmt.Fprint(stdout, bytecode.DisassembleModule(module))
	}

	for i := 0; i < o.repeat; i++ {
		result, err := in.Run(o.entry)
		if err != nil {
			fmt.Fprintf(stderr, "Error: run %d: %v\n", i+1, err)
			return 1
		}
		if result != nil {
			fmt.Fprintf(stdout, "run %d: %s\n", i+1, vm.Repr(result))
		}
	}

	if err := report(stdout, j, o); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func report(w io.Writer, j *jit.JIT, o *options) error {
	translations := j.Translations()
	for i, tr := range translations {
		if o.dumpSIR {
			fmt.Fprintf(w, "== translation %d of %s", i+1, tr.Code)
			if tr.BreakAt >= 0 {
				fmt.Fprintf(w, " (breaks at %d)", tr.BreakAt)
			}
			fmt.Fprintln(w)
			fmt.Fprint(w, tr.IR.String())
		}
		if o.dis && tr.Result != nil {
			fmt.Fprintf(w, "== translated %s\n", tr.Code)
			fmt.Fprint(w, tr.Result.Disassemble())
		}
		if o.dumpDir != "" {
			if err := dumpIR(o.dumpDir, i, tr); err != nil {
				return err
			}
		}
	}

	stats := j.Stats()
	fmt.Fprintln(w, "== stats")
	fmt.Fprintf(w, "translations: %d  hits: %d  misses: %d  skips: %d  bail-outs: %d\n",
		stats.Cache.Translations, stats.Cache.Hits, stats.Cache.Misses, stats.Cache.Skips, stats.Cache.BailOuts)
	fmt.Fprintf(w, "code objects: %d profiled, %d hot, %d cached  activations: %d\n",
		stats.ProfiledCodes, stats.HotCodes, stats.Cache.Entries, stats.Activations)
	fmt.Fprintf(w, "compile cache: %d hits, %d misses\n", stats.CompileHits, stats.CompileMisses)

	if jr := j.Journal(); jr != nil {
		s, err := jr.Summary()
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "== journal")
		fmt.Fprint(w, s.String())
	}
	return nil
}

func dumpIR(dir string, index int, tr jit.Translation) error {
	data, err := symbolic.MarshalIR(tr.IR)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("%03d-%s.sir", index+1, strings.ReplaceAll(tr.Code, string(filepath.Separator), "_"))
	return os.WriteFile(filepath.Join(dir, name), data, 0o644)
}
