package journal

import (
	"path/filepath"
	"testing"

	"github.com/chazu/symtrace/executor"
	"github.com/chazu/symtrace/symbolic"
)

func openTemp(t *testing.T) (*Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path, "test.sta")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j, path
}

func sampleIR() *symbolic.StatementIR {
	ir := symbolic.NewStatementIR("SIR_0")
	x := symbolic.Symbol{Name: "var_0"}
	y := symbolic.Symbol{Name: "var_1"}
	ir.AddStatement(&symbolic.Statement{
		Kind:    symbolic.StatementAPI,
		Name:    "relu",
		Inputs:  []symbolic.Operand{symbolic.Sym(x)},
		Outputs: []symbolic.Symbol{y},
	})
	ir.Inputs = []symbolic.Symbol{x}
	ir.Outputs = []symbolic.Symbol{y}
	return ir
}

func TestJournalSummary(t *testing.T) {
	j, _ := openTemp(t)
	events := []executor.Event{
		{Kind: executor.EventTranslate, Code: "f", BreakAt: -1, IR: sampleIR()},
		{Kind: executor.EventHit, Code: "f", BreakAt: -1},
		{Kind: executor.EventHit, Code: "f", BreakAt: -1},
		{Kind: executor.EventBailOut, Code: "g", Reason: "data-dependent control flow", BreakAt: -1},
		{Kind: executor.EventSkip, Code: "g", Reason: "data-dependent control flow", BreakAt: -1},
	}
	for _, ev := range events {
		if err := j.Record(ev); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	s, err := j.Summary()
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if s.Events != 5 {
		t.Errorf("Expected 5 events, got %d", s.Events)
	}
	if len(s.Codes) != 2 {
		t.Fatalf("Expected 2 codes, got %+v", s.Codes)
	}
	f, g := s.Codes[0], s.Codes[1]
	if f.Code != "f" || f.Translations != 1 || f.Hits != 2 {
		t.Errorf("Unexpected summary for f: %+v", f)
	}
	if g.Code != "g" || g.BailOuts != 1 || g.Skips != 1 {
		t.Errorf("Unexpected summary for g: %+v", g)
	}
	if len(g.Reasons) != 1 || g.Reasons[0] != "data-dependent control flow" {
		t.Errorf("Expected one bail-out reason, got %v", g.Reasons)
	}
}

func TestJournalStoresIR(t *testing.T) {
	j, _ := openTemp(t)
	j.Observe(executor.Event{Kind: executor.EventTranslate, Code: "f", BreakAt: -1, IR: sampleIR()})
	j.Observe(executor.Event{Kind: executor.EventTranslate, Code: "other", BreakAt: -1, IR: sampleIR()})

	irs, err := j.Translations("f")
	if err != nil {
		t.Fatalf("Translations failed: %v", err)
	}
	if len(irs) != 1 {
		t.Fatalf("Expected 1 IR, got %d", len(irs))
	}
	if got, want := irs[0].String(), sampleIR().String(); got != want {
		t.Errorf("IR did not survive the journal:\n%s\nwant:\n%s", got, want)
	}
}

func TestJournalSessionsAreSeparate(t *testing.T) {
	first, path := openTemp(t)
	first.Record(executor.Event{Kind: executor.EventHit, Code: "f", BreakAt: -1})

	second, err := Open(path, "test.sta")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer second.Close()
	if second.Session() == first.Session() {
		t.Error("Expected a new session id")
	}
	s, err := second.Summary()
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if s.Events != 0 {
		t.Errorf("Expected an empty new session, got %d events", s.Events)
	}
}
