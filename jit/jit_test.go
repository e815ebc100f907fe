package jit

import (
	"path/filepath"
	"testing"

	"github.com/chazu/symtrace/config"
	"github.com/chazu/symtrace/executor"
	"github.com/chazu/symtrace/pkg/bytecode"
	"github.com/chazu/symtrace/pkg/meta"
	"github.com/chazu/symtrace/vm"
)

const scaleSrc = `
global factor = 2.0

func scale(x)
    LOAD_FAST x
    LOAD_GLOBAL factor
    BINARY_MULTIPLY
    LOAD_CONST 1
    BINARY_ADD
    RETURN_VALUE
end
`

func setup(t *testing.T, cfg *config.Config, opts ...Option) (*JIT, *vm.Interpreter) {
	t.Helper()
	m, err := bytecode.Assemble(scaleSrc)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	in := vm.NewInterpreter()
	if err := in.Load(m); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	j, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	j.Install(in)
	return j, in
}

func runScale(t *testing.T, in *vm.Interpreter, value float64) *vm.Tensor {
	t.Helper()
	got, err := in.Run("scale", vm.Full(meta.New(meta.Float32, 2), value))
	if err != nil {
		t.Fatalf("scale failed: %v", err)
	}
	tensor, ok := got.(*vm.Tensor)
	if !ok {
		t.Fatalf("Expected a tensor, got %s", vm.Repr(got))
	}
	return tensor
}

func TestTranslatesOnceHot(t *testing.T) {
	cfg := config.Default()
	cfg.Trace.HotThreshold = 3
	j, in := setup(t, cfg)

	for i := 1; i <= 2; i++ {
		runScale(t, in, float64(i))
		if n := len(j.Translations()); n != 0 {
			t.Fatalf("Expected no translation before the threshold, got %d after %d calls", n, i)
		}
	}
	got := runScale(t, in, 3)
	if got.Data[0] != 7 || got.Data[1] != 7 {
		t.Errorf("Expected [7 7], got %s", got)
	}

	translations := j.Translations()
	if len(translations) != 1 {
		t.Fatalf("Expected 1 translation, got %d", len(translations))
	}
	tr := translations[0]
	if tr.Code != "scale" || tr.IR == nil || tr.Result == nil {
		t.Errorf("Unexpected translation %+v", tr)
	}
	if len(tr.IR.Statements) != 2 {
		t.Errorf("Expected 2 statements, got:\n%s", tr.IR)
	}

	runScale(t, in, 4)
	stats := j.Stats()
	if stats.Cache.Translations != 1 || stats.Cache.Hits != 1 {
		t.Errorf("Expected 1 translation and 1 hit, got %+v", stats.Cache)
	}
	if stats.HotCodes != 1 || stats.Activations != 4 {
		t.Errorf("Unexpected profiler stats %+v", stats)
	}
}

func TestSkippedCodeRunsUnmodified(t *testing.T) {
	cfg := config.Default()
	cfg.Trace.Skip = []string{"scale"}
	j, in := setup(t, cfg)

	for i := 0; i < 3; i++ {
		runScale(t, in, 1)
	}
	if n := len(j.Translations()); n != 0 {
		t.Errorf("Expected skipped code to stay untranslated, got %d translations", n)
	}
	if stats := j.Stats(); stats.Cache.Entries != 0 || stats.ProfiledCodes != 0 {
		t.Errorf("Skipped code should not reach the profiler or the cache, got %+v", stats)
	}
}

func TestDisabled(t *testing.T) {
	j, in := setup(t, nil)
	j.Enabled = false
	runScale(t, in, 1)
	if stats := j.Stats(); stats.Activations != 0 {
		t.Errorf("Expected a disabled JIT to record nothing, got %+v", stats)
	}
}

func TestObserverAndTranslator(t *testing.T) {
	calls := 0
	bailOut := func(frame *vm.Frame, _ executor.Options) (executor.Result, error) {
		calls++
		return executor.Result{Outcome: executor.BailedOut, Reason: "not today", BreakAt: -1}, nil
	}
	var kinds []executor.EventKind
	j, in := setup(t, nil,
		WithTranslator(bailOut),
		WithObserver(func(ev executor.Event) { kinds = append(kinds, ev.Kind) }),
	)

	for i := 0; i < 3; i++ {
		if got := runScale(t, in, 1); got.Data[0] != 3 {
			t.Errorf("Expected the eager result 3, got %s", got)
		}
	}
	if calls != 1 {
		t.Errorf("Expected one translation attempt, got %d", calls)
	}
	want := []executor.EventKind{executor.EventBailOut, executor.EventSkip, executor.EventSkip}
	if len(kinds) != len(want) {
		t.Fatalf("Expected events %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("Event %d: expected %s, got %s", i, want[i], kinds[i])
		}
	}
	if n := len(j.Translations()); n != 0 {
		t.Errorf("Bail-outs are not translations, got %d", n)
	}
}

func TestJournalRecordsSession(t *testing.T) {
	cfg := config.Default()
	cfg.Journal.Path = filepath.Join(t.TempDir(), "journal.db")
	j, in := setup(t, cfg, WithProgram("scale.sta"))

	runScale(t, in, 1)
	runScale(t, in, 2)

	if j.Journal() == nil {
		t.Fatal("Expected a journal")
	}
	s, err := j.Journal().Summary()
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if len(s.Codes) != 1 {
		t.Fatalf("Expected one code in the journal, got %+v", s.Codes)
	}
	if c := s.Codes[0]; c.Code != "scale" || c.Translations != 1 || c.Hits != 1 {
		t.Errorf("Unexpected journal summary %+v", c)
	}
	irs, err := j.Journal().Translations("scale")
	if err != nil || len(irs) != 1 {
		t.Errorf("Expected the IR in the journal, got %d, %v", len(irs), err)
	}
}

func TestReset(t *testing.T) {
	j, in := setup(t, nil)
	runScale(t, in, 1)
	j.Reset()

	stats := j.Stats()
	if stats.Cache.Translations != 0 || stats.Cache.Entries != 0 || stats.ProfiledCodes != 0 {
		t.Errorf("Expected empty stats after Reset, got %+v", stats)
	}
	if n := len(j.Translations()); n != 0 {
		t.Errorf("Expected no translations after Reset, got %d", n)
	}

	runScale(t, in, 1)
	if n := len(j.Translations()); n != 1 {
		t.Errorf("Expected a fresh translation after Reset, got %d", n)
	}
}
