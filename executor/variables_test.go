package executor

import (
	"errors"
	"math"
	"testing"

	"github.com/chazu/symtrace/vm"
)

func TestWrapKinds(t *testing.T) {
	d, _ := vm.DictOf("a", int64(1))
	fn := &vm.Function{Name: "f", Globals: vm.NewDict()}
	tests := []struct {
		value any
		want  Kind
	}{
		{nil, KindNone},
		{true, KindBool},
		{int64(3), KindInt},
		{3, KindInt},
		{2.5, KindFloat},
		{"s", KindString},
		{&vm.Range{Stop: 3, Step: 1}, KindRange},
		{vm.NewList(int64(1)), KindList},
		{vm.NewTuple(), KindTuple},
		{d, KindDict},
		{tensorOf(0, 2), KindTensor},
		{fn, KindFunction},
		{vm.NewLinear("fc", 2, 2), KindLayer},
		{vm.TModule(), KindModule},
		{struct{}{}, KindObject},
	}
	g := NewFunctionGraph()
	for _, tt := range tests {
		v, err := Wrap(tt.value, g, &LocalTracker{Name: "v"})
		if err != nil {
			t.Fatalf("Wrap(%v) failed: %v", tt.value, err)
		}
		if v.Kind() != tt.want {
			t.Errorf("Wrap(%s): expected kind %s, got %s", vm.TypeName(tt.value), tt.want, v.Kind())
		}
	}
}

func TestWrapRejectsMisuse(t *testing.T) {
	g := NewFunctionGraph()
	c := constVar(g, int64(1))
	if _, err := Wrap(c, g, derived()); !IsInnerError(err) {
		t.Errorf("Wrapping a variable should be an inner error, got %v", err)
	}
	if _, err := Wrap(int64(1), g, nil); !IsInnerError(err) {
		t.Errorf("Wrapping without a tracker should be an inner error, got %v", err)
	}
}

func TestListVariableErrors(t *testing.T) {
	g := NewFunctionGraph()
	list := NewListVariable([]Variable{constVar(g, int64(1))}, false, g, derived())
	tuple := NewListVariable([]Variable{constVar(g, int64(1))}, true, g, derived())
	owned, err := Wrap(vm.NewList(int64(1)), g, &LocalTracker{Name: "xs"})
	if err != nil {
		t.Fatalf("Wrap failed: %v", err)
	}

	hostKind := func(err error) string {
		if he, ok := vm.IsHostError(err); ok {
			return he.Kind
		}
		return ""
	}

	if _, err := list.GetItem(int64(5)); hostKind(err) != vm.IndexError {
		t.Errorf("Expected IndexError, got %v", err)
	}
	if _, err := list.GetItem("a"); hostKind(err) != vm.TypeError {
		t.Errorf("Expected TypeError for a string index, got %v", err)
	}
	if v, err := list.GetItem(int64(-1)); err != nil || v.(*ConstantVariable).Value() != int64(1) {
		t.Errorf("Expected a negative index to read the last item, got %v, %v", v, err)
	}
	if err := list.SetItem(int64(3), constVar(g, int64(2))); hostKind(err) != vm.IndexError {
		t.Errorf("Expected IndexError on assignment, got %v", err)
	}
	if err := tuple.SetItem(int64(0), constVar(g, int64(2))); hostKind(err) != vm.TypeError {
		t.Errorf("Expected TypeError assigning into a tuple, got %v", err)
	}
	if _, err := list.GetItem(constVar(g, int64(0))); !IsInnerError(err) {
		t.Errorf("Indexing with a variable should be an inner error, got %v", err)
	}

	var ue *UnsupportedError
	if err := owned.(*ListVariable).Append(constVar(g, int64(2))); !errors.As(err, &ue) {
		t.Errorf("Mutating a frame list should be unsupported, got %v", err)
	}
}

func TestDictVariableErrors(t *testing.T) {
	g := NewFunctionGraph()
	d, err := NewDictVariable([]any{"a"}, []Variable{constVar(g, int64(1))}, g, derived())
	if err != nil {
		t.Fatalf("NewDictVariable failed: %v", err)
	}
	if _, err := d.Lookup("missing"); err == nil {
		t.Error("Expected KeyError for a missing key")
	} else if he, ok := vm.IsHostError(err); !ok || he.Kind != vm.KeyError {
		t.Errorf("Expected KeyError, got %v", err)
	}
	if err := d.Set(vm.NewList(), constVar(g, int64(1))); err == nil {
		t.Error("Expected an unhashable key to fail")
	}

	if err := d.Set("b", constVar(g, int64(2))); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if keys := d.Keys(); len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("Expected insertion order [a b], got %v", keys)
	}

	raw, _ := vm.DictOf("k", int64(1))
	owned, err := Wrap(raw, g, &LocalTracker{Name: "d"})
	if err != nil {
		t.Fatalf("Wrap failed: %v", err)
	}
	var ue *UnsupportedError
	if err := owned.(*DictVariable).Set("k", constVar(g, int64(2))); !errors.As(err, &ue) {
		t.Errorf("Mutating a frame dict should be unsupported, got %v", err)
	}
}

func TestLazyItemsAreGuarded(t *testing.T) {
	g := NewFunctionGraph()
	raw, _ := vm.DictOf("w", tensorOf(1, 2, 2), "b", tensorOf(0, 2))
	d, err := Wrap(raw, g, &LocalTracker{Name: "params"})
	if err != nil {
		t.Fatalf("Wrap failed: %v", err)
	}
	g.AddGlobalGuardedVariable(d)
	if _, _, err := d.(*DictVariable).Get("w"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	_, text := g.GuardFn()
	if len(text) != 2 {
		t.Fatalf("Expected guards on the dict and the read item only, got %v", text)
	}
	if text[1] != `(local params)["w"] is tensor Meta(shape=[2, 2], dtype=float32)` {
		t.Errorf("Unexpected item guard %q", text[1])
	}
}

func TestCellVariable(t *testing.T) {
	g := NewFunctionGraph()
	loads := 0
	external := newExternalCell("n", g, func() (Variable, error) {
		loads++
		return constVar(g, int64(4)), nil
	})
	for i := 0; i < 2; i++ {
		v, err := external.Get()
		if err != nil || v.(*ConstantVariable).Value() != int64(4) {
			t.Fatalf("Get: %v, %v", v, err)
		}
	}
	if loads != 1 {
		t.Errorf("Expected the external cell to load once, got %d", loads)
	}
	var ue *UnsupportedError
	if err := external.Set(constVar(g, int64(5))); !errors.As(err, &ue) {
		t.Errorf("Writing an external cell should be unsupported, got %v", err)
	}

	empty := newOwnedCell("m", g, nil)
	if _, err := empty.Get(); err == nil {
		t.Error("Expected a NameError for an empty cell")
	} else if he, ok := vm.IsHostError(err); !ok || he.Kind != vm.NameError {
		t.Errorf("Expected NameError, got %v", err)
	}
}

func TestTensorMetaAttributes(t *testing.T) {
	g := NewFunctionGraph()
	x := localTensor(g, "x", 2, 3)

	shape, ok, err := x.MetaAttr("shape")
	if err != nil || !ok {
		t.Fatalf("MetaAttr(shape): %v, %v", ok, err)
	}
	if shape.Kind() != KindTuple || !IsDerived(shape.Tracker()) {
		t.Errorf("Expected a derived tuple, got %v", shape)
	}
	first, err := shape.(*ListVariable).GetItem(int64(0))
	if err != nil || first.(*ConstantVariable).Value() != int64(2) {
		t.Errorf("Expected shape[0] = 2, got %v, %v", first, err)
	}
	if _, ok, _ := x.MetaAttr("data"); ok {
		t.Error("data is not a metadata attribute")
	}
}

func TestNaNConstantGuardMatchesNaN(t *testing.T) {
	src := `
func scale(x, k)
    LOAD_FAST x
    LOAD_FAST k
    BINARY_MULTIPLY
    RETURN_VALUE
end
`
	in, _ := load(t, src)
	nan := math.NaN()
	res := translate(t, frameOf(t, in, "scale", tensorOf(1, 2), nan))
	if res.Outcome != Compiled {
		t.Fatalf("Expected compiled, got %s", res)
	}
	if !res.Guard(frameOf(t, in, "scale", tensorOf(2, 2), math.NaN())) {
		t.Error("Guard should hold for another NaN")
	}
	if res.Guard(frameOf(t, in, "scale", tensorOf(2, 2), 1.0)) {
		t.Error("Guard should reject a number")
	}

	cache := NewCache()
	_, jit := newPair(t, src, cache)
	for i := 0; i < 3; i++ {
		if _, err := jit.Run("scale", tensorOf(1, 2), nan); err != nil {
			t.Fatalf("scale failed: %v", err)
		}
	}
	if stats := cache.Stats(); stats.Translations != 1 || stats.Hits != 2 {
		t.Errorf("Expected one translation for NaN, got %+v", stats)
	}
}
