package executor

import (
	"slices"
	"testing"

	"github.com/chazu/symtrace/pkg/bytecode"
	"github.com/chazu/symtrace/pkg/meta"
	"github.com/chazu/symtrace/symbolic"
	"github.com/chazu/symtrace/vm"
)

func localTensor(g *FunctionGraph, name string, shape ...int) *TensorVariable {
	v := NewTensorVariable(meta.New(meta.Float32, shape...), g, &LocalTracker{Name: name})
	g.AddGlobalGuardedVariable(v)
	return v
}

func constVar(g *FunctionGraph, v any) Variable {
	return NewConstant(v, g, &ConstTracker{Value: v})
}

func TestRestoreMemoUndoesEverything(t *testing.T) {
	g := NewFunctionGraph()
	x := localTensor(g, "x", 2)
	list := NewListVariable([]Variable{x}, false, g, derived(x))
	d, err := NewDictVariable([]any{"a"}, []Variable{x}, g, derived(x))
	if err != nil {
		t.Fatalf("NewDictVariable failed: %v", err)
	}
	cell := newOwnedCell("c", g, x)

	memo := g.SaveMemo()

	y, err := g.RecordAPI("relu", []Variable{x}, nil)
	if err != nil {
		t.Fatalf("RecordAPI failed: %v", err)
	}
	list.Append(y)
	list.SetItem(int64(0), y)
	d.Set("b", y)
	d.Set("a", y)
	cell.Set(y)
	g.AddGlobalGuardedVariable(localTensor(g, "z", 3))

	for i := 0; i < 2; i++ {
		g.RestoreMemo(memo)

		if n := len(g.IR().Statements); n != 0 {
			t.Errorf("restore %d: expected no statements, got %d", i, n)
		}
		items, _ := list.Items()
		if len(items) != 1 || items[0] != x {
			t.Errorf("restore %d: expected list [x], got %v", i, items)
		}
		if d.Len() != 1 {
			t.Errorf("restore %d: expected 1 dict entry, got %d", i, d.Len())
		}
		if a, _, _ := d.Get("a"); a != x {
			t.Errorf("restore %d: expected d[a] = x, got %v", i, a)
		}
		if got, _ := cell.Get(); got != x {
			t.Errorf("restore %d: expected cell to hold x, got %v", i, got)
		}
		if _, text := g.GuardFn(); len(text) != 1 {
			t.Errorf("restore %d: expected only the guard on x, got %v", i, text)
		}
	}

	// Symbols handed out after the memo are handed out again.
	again, err := g.RecordAPI("relu", []Variable{x}, nil)
	if err != nil {
		t.Fatalf("RecordAPI failed: %v", err)
	}
	if g.symbols[again.ID()] != g.symbols[y.ID()] {
		t.Errorf("Expected the same symbol after restore, got %v and %v", g.symbols[again.ID()], g.symbols[y.ID()])
	}
}

func TestFinalizeProducesValidIR(t *testing.T) {
	g := NewFunctionGraph()
	x := localTensor(g, "x", 2, 3)
	w := localTensor(g, "w", 3, 4)

	h, err := g.RecordAPI("matmul", []Variable{x, w}, nil)
	if err != nil {
		t.Fatalf("RecordAPI failed: %v", err)
	}
	r, err := g.RecordMethod("relu", h.(*TensorVariable), nil, nil)
	if err != nil {
		t.Fatalf("RecordMethod failed: %v", err)
	}
	s, err := g.RecordMethod("sum", r.(*TensorVariable), nil, map[string]Variable{"axis": constVar(g, int64(0))})
	if err != nil {
		t.Fatalf("RecordMethod failed: %v", err)
	}
	if got := s.(*TensorVariable).Meta().Shape; !slices.Equal(got, []int{4}) {
		t.Errorf("Expected sum over axis 0 to have shape [4], got %v", got)
	}

	cg := bytecode.NewCodeGen(&bytecode.Code{Name: "f", ArgNames: []string{"x", "w"}}, "f")
	out := NewListVariable([]Variable{s, h}, true, g, derived(s, h))
	if err := g.Finalize(cg, out); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	ir := g.IR()
	if err := ir.Validate(); err != nil {
		t.Errorf("Finalized IR is invalid: %v", err)
	}
	defined := make(map[symbolic.Symbol]bool)
	for _, in := range ir.Inputs {
		defined[in] = true
	}
	for i, stmt := range ir.Statements {
		for _, sym := range stmt.Symbols() {
			if !defined[sym] {
				t.Errorf("statement %d reads %s before it is produced", i, sym)
			}
		}
		for _, o := range stmt.Outputs {
			defined[o] = true
		}
	}
	if len(ir.Inputs) != 2 || len(ir.Outputs) != 2 {
		t.Errorf("Expected 2 inputs and 2 outputs, got %v and %v", ir.Inputs, ir.Outputs)
	}
}

func TestFinalizedCodeRuns(t *testing.T) {
	g := NewFunctionGraph()
	x := localTensor(g, "x", 2)
	y, err := g.RecordAPI("multiply", []Variable{x, constVar(g, 3.0)}, nil)
	if err != nil {
		t.Fatalf("RecordAPI failed: %v", err)
	}
	n := constVar(g, int64(7))
	out := NewListVariable([]Variable{y, n, x}, true, g, derived(y, n, x))

	cg := bytecode.NewCodeGen(&bytecode.Code{Name: "f", ArgNames: []string{"x"}}, "f")
	if err := g.Finalize(cg, out); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	cg.GenReturn()

	in := vm.NewInterpreter()
	xv := tensorOf(2, 2)
	got, err := in.Execute(&vm.Frame{Code: cg.Build(), Globals: in.Globals, Builtins: in.Builtins, Locals: map[string]any{"x": xv}})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	tuple, ok := got.(*vm.Tuple)
	if !ok || len(tuple.Items) != 3 {
		t.Fatalf("Expected a 3-tuple, got %v", got)
	}
	if !tuple.Items[0].(*vm.Tensor).Equal(tensorOf(6, 2)) {
		t.Errorf("Expected x*3 = [6 6], got %v", tuple.Items[0])
	}
	if tuple.Items[1] != int64(7) {
		t.Errorf("Expected 7, got %v", tuple.Items[1])
	}
	if tuple.Items[2] != xv {
		t.Errorf("Expected x itself, got %v", tuple.Items[2])
	}
}

func TestReconstructRoundTrip(t *testing.T) {
	inner, _ := vm.DictOf("k", int64(1))
	layer := vm.NewLinear("fc", 2, 2)
	locals := map[string]any{
		"xs":    vm.NewList(int64(1), "two", tensorOf(3, 1)),
		"pair":  vm.NewTuple(inner, 2.5),
		"layer": layer,
		"r":     &vm.Range{Start: 0, Stop: 5, Step: 2},
	}
	frame := &vm.Frame{Code: &bytecode.Code{Name: "f"}, Globals: vm.NewDict(), Builtins: vm.Builtins(), Locals: locals}

	for name, want := range locals {
		t.Run(name, func(t *testing.T) {
			g := NewFunctionGraph()
			v, err := Wrap(want, g, &LocalTracker{Name: name})
			if err != nil {
				t.Fatalf("Wrap failed: %v", err)
			}
			cg := bytecode.NewCodeGen(frame.Code, "f")
			if err := v.Reconstruct(cg); err != nil {
				t.Fatalf("Reconstruct failed: %v", err)
			}
			cg.GenReturn()
			in := vm.NewInterpreter()
			got, err := in.Execute(&vm.Frame{Code: cg.Build(), Globals: frame.Globals, Builtins: frame.Builtins, Locals: locals})
			if err != nil {
				t.Fatalf("Execute failed: %v", err)
			}
			if !vm.Identical(got, want) && !vm.Equal(got, want) {
				t.Errorf("Expected %v, got %v", vm.Repr(want), vm.Repr(got))
			}
			check, _ := v.MakeCheck()
			if check != nil && !check(got) {
				t.Errorf("Check rejects the reconstructed value %v", vm.Repr(got))
			}
		})
	}
}

func TestReconstructDerivedContainers(t *testing.T) {
	g := NewFunctionGraph()
	a := constVar(g, int64(1))
	b := constVar(g, "b")
	list := NewListVariable([]Variable{a, b}, false, g, derived(a, b))
	d, err := NewDictVariable([]any{"list", int64(2)}, []Variable{list, a}, g, derived(list, a))
	if err != nil {
		t.Fatalf("NewDictVariable failed: %v", err)
	}

	cg := bytecode.NewCodeGen(&bytecode.Code{Name: "f"}, "f")
	if err := d.Reconstruct(cg); err != nil {
		t.Fatalf("Reconstruct failed: %v", err)
	}
	cg.GenReturn()
	in := vm.NewInterpreter()
	got, err := in.Execute(&vm.Frame{Code: cg.Build(), Globals: in.Globals, Builtins: in.Builtins, Locals: map[string]any{}})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	want, _ := vm.DictOf("list", vm.NewList(int64(1), "b"), int64(2), int64(1))
	if !vm.Equal(got, want) {
		t.Errorf("Expected %s, got %s", vm.Repr(want), vm.Repr(got))
	}
}

func TestGuardOrderIsTopological(t *testing.T) {
	in, _ := load(t, `
func f(d)
    LOAD_FAST d
    LOAD_CONST "inner"
    BINARY_SUBSCR
    LOAD_CONST 0
    BINARY_SUBSCR
    RETURN_VALUE
end
`)
	inner := vm.NewList(tensorOf(1, 2))
	d, _ := vm.DictOf("inner", inner)
	res := translate(t, frameOf(t, in, "f", d))

	want := []string{"local d", `(local d)["inner"]`, `((local d)["inner"])[0]`}
	if len(res.GuardText) != len(want) {
		t.Fatalf("Expected %d guards, got %v", len(want), res.GuardText)
	}
	for i, prefix := range want {
		if len(res.GuardText[i]) < len(prefix) || res.GuardText[i][:len(prefix)] != prefix {
			t.Errorf("guard %d: expected %q first, got %q", i, prefix, res.GuardText[i])
		}
	}
}

func TestGuardRejectsMissingLocal(t *testing.T) {
	g := NewFunctionGraph()
	localTensor(g, "x", 2)
	guard, _ := g.GuardFn()
	if guard(&vm.Frame{Locals: map[string]any{}}) {
		t.Error("Guard should fail when the local is gone")
	}
	if !guard(&vm.Frame{Locals: map[string]any{"x": tensorOf(0, 2)}}) {
		t.Error("Guard should hold for a matching local")
	}
}

func TestGuardCoversIRInputs(t *testing.T) {
	g := NewFunctionGraph()
	x := NewTensorVariable(meta.New(meta.Float32, 2), g, &LocalTracker{Name: "x"})
	if _, err := g.RecordAPI("relu", []Variable{x}, nil); err != nil {
		t.Fatalf("RecordAPI failed: %v", err)
	}
	guard, text := g.GuardFn()
	if len(text) != 1 || !guardLine(text, "local x", "[2]") {
		t.Errorf("Expected a guard on the input x, got %v", text)
	}
	if guard(&vm.Frame{Locals: map[string]any{"x": tensorOf(0, 3, 3)}}) {
		t.Error("Guard should reject an input of another shape")
	}
	if !guard(&vm.Frame{Locals: map[string]any{"x": tensorOf(5, 2)}}) {
		t.Error("Guard should hold for an input of the same shape")
	}
}

func TestRestoreMemoDropsGlobalStores(t *testing.T) {
	g := NewFunctionGraph()
	g.StoreGlobal("a", constVar(g, int64(1)))
	memo := g.SaveMemo()
	g.StoreGlobal("a", constVar(g, int64(2)))
	g.StoreGlobal("b", constVar(g, int64(3)))

	g.RestoreMemo(memo)
	if len(g.globalStores) != 1 {
		t.Fatalf("Expected one store after restore, got %v", g.globalStores)
	}
	if v, _ := constValue(g.globalStores[0].value); v != int64(1) {
		t.Errorf("Expected a = 1 after restore, got %v", v)
	}

	cg := bytecode.NewCodeGen(&bytecode.Code{Name: "f"}, "f")
	if err := g.Finalize(cg); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if !cg.Build().Uses(bytecode.OpStoreGlobal) {
		t.Error("Expected the finalized code to assign a")
	}
}
