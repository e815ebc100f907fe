// Package jit connects the interpreter's frame hook to the translation
// cache. Code is translated once the profiler sees it become hot.
package jit

import (
	"sync"

	"github.com/tliron/commonlog"

	"github.com/chazu/symtrace/config"
	"github.com/chazu/symtrace/executor"
	"github.com/chazu/symtrace/journal"
	"github.com/chazu/symtrace/pkg/bytecode"
	"github.com/chazu/symtrace/symbolic"
	"github.com/chazu/symtrace/vm"
)

var log = commonlog.GetLogger("symtrace.jit")

// Translation is one successful translation, kept for inspection.
type Translation struct {
	Code    string
	BreakAt int
	IR      *symbolic.StatementIR
	Result  *bytecode.Code
}

// JIT owns the profiler, the cache and the optional journal of one run.
type JIT struct {
	cfg        *config.Config
	profiler   *vm.Profiler
	cache      *executor.Cache
	journal    *journal.Journal
	program    string
	translator executor.Translator
	observers  []func(executor.Event)

	mu           sync.Mutex
	translations []Translation

	// Enabled is the master switch. A disabled JIT runs every frame
	// unmodified.
	Enabled bool
}

// Option configures a JIT.
type Option func(*JIT)

// WithProgram names the program in the journal.
func WithProgram(name string) Option {
	return func(j *JIT) { j.program = name }
}

// WithObserver registers a function called for every cache decision.
func WithObserver(fn func(executor.Event)) Option {
	return func(j *JIT) { j.observers = append(j.observers, fn) }
}

// WithTranslator replaces the translation function of the cache.
func WithTranslator(t executor.Translator) Option {
	return func(j *JIT) { j.translator = t }
}

// New builds a JIT from cfg, opening the journal if one is configured. A
// nil cfg means config.Default().
func New(cfg *config.Config, opts ...Option) (*JIT, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	j := &JIT{
		cfg:      cfg,
		profiler: vm.NewProfiler(cfg.Trace.HotThreshold),
		Enabled:  true,
	}
	for _, o := range opts {
		o(j)
	}

	if cfg.Journal.Path != "" {
		jr, err := journal.Open(cfg.Journal.Path, j.program)
		if err != nil {
			return nil, err
		}
		j.journal = jr
	}

	j.profiler.OnHot = func(code *bytecode.Code, profile *vm.CodeProfile) {
		log.Infof("%s is hot after %d activations", code.Name, profile.InvocationCount)
	}

	cacheOpts := []executor.Option{
		executor.WithOptions(executor.Options{
			MaxInlineDepth: cfg.Trace.MaxInlineDepth,
			BreakGraph:     cfg.Trace.BreakGraph,
			Strict:         cfg.Trace.Strict,
		}),
		executor.WithObserver(j.observe),
	}
	if j.translator != nil {
		cacheOpts = append(cacheOpts, executor.WithTranslator(j.translator))
	}
	j.cache = executor.NewCache(cacheOpts...)
	return j, nil
}

func (j *JIT) observe(ev executor.Event) {
	if ev.Kind == executor.EventTranslate {
		j.mu.Lock()
		j.translations = append(j.translations, Translation{Code: ev.Code, BreakAt: ev.BreakAt, IR: ev.IR, Result: ev.Translated})
		j.mu.Unlock()
	}
	if j.journal != nil {
		j.journal.Observe(ev)
	}
	for _, fn := range j.observers {
		fn(ev)
	}
}

// Install makes the JIT the frame hook of in.
func (j *JIT) Install(in *vm.Interpreter) {
	in.SetFrameHook(j.Hook)
}

// Hook is the frame hook. Skipped and cold code runs unmodified.
func (j *JIT) Hook(frame *vm.Frame) (*bytecode.Code, error) {
	if !j.Enabled {
		return nil, nil
	}
	code := frame.OriginalCode()
	if j.cfg.Skipped(code.Name) {
		return nil, nil
	}
	if !j.profiler.RecordInvocation(code) {
		return nil, nil
	}
	return j.cache.LookupOrTranslate(frame)
}

// Cache returns the translation cache.
func (j *JIT) Cache() *executor.Cache {
	return j.cache
}

// Journal returns the journal, or nil if none is configured.
func (j *JIT) Journal() *journal.Journal {
	return j.journal
}

// Translations returns the translations made so far, oldest first.
func (j *JIT) Translations() []Translation {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Translation(nil), j.translations...)
}

// Stats holds JIT statistics.
type Stats struct {
	Cache         executor.Stats
	ProfiledCodes int
	HotCodes      int
	Activations   uint64
	CompileHits   int
	CompileMisses int
}

// Stats returns JIT statistics.
func (j *JIT) Stats() Stats {
	p := j.profiler.Stats()
	hits, misses := symbolic.CompileCacheStats()
	return Stats{
		Cache:         j.cache.Stats(),
		ProfiledCodes: p.TotalCodes,
		HotCodes:      p.HotCodes,
		Activations:   p.TotalInvocations,
		CompileHits:   hits,
		CompileMisses: misses,
	}
}

// Reset clears all translations and resets statistics.
func (j *JIT) Reset() {
	j.cache.Clear()
	j.profiler.Reset()
	symbolic.ClearCompileCache()
	j.mu.Lock()
	j.translations = nil
	j.mu.Unlock()
}

// Close closes the journal.
func (j *JIT) Close() error {
	if j.journal != nil {
		return j.journal.Close()
	}
	return nil
}
