package executor

import (
	"fmt"
	"maps"
	"slices"
	"sort"

	"github.com/chazu/symtrace/pkg/bytecode"
	"github.com/chazu/symtrace/pkg/meta"
	"github.com/chazu/symtrace/symbolic"
	"github.com/chazu/symtrace/vm"
)

// OutName is the local that holds an artifact output in generated code.
func OutName(sym symbolic.Symbol) string {
	return "___SIR_out_" + sym.Name
}

// FunctionGraph accumulates the statements of one trace together with the
// variables that must be guarded before the result is reused.
type FunctionGraph struct {
	ctx *symbolic.Context

	innerOut     map[int]bool
	globalGuards []Variable
	guarded      map[int]bool
	symbols      map[int]symbolic.Symbol
	symVars      map[symbolic.Symbol]Variable
	nextSym      int
	globalStores []globalStore

	undo []func()
}

// globalStore is an assignment to a global made by traced code, repeated
// by the translated code once the artifact has run.
type globalStore struct {
	name  string
	value Variable
}

// NewFunctionGraph returns an empty graph.
func NewFunctionGraph() *FunctionGraph {
	return &FunctionGraph{
		ctx:      symbolic.NewContext(),
		innerOut: make(map[int]bool),
		guarded:  make(map[int]bool),
		symbols:  make(map[int]symbolic.Symbol),
		symVars:  make(map[symbolic.Symbol]Variable),
	}
}

// IR returns the statements recorded so far.
func (g *FunctionGraph) IR() *symbolic.StatementIR {
	return g.ctx.TOS()
}

// recordMutation registers how to undo a change made to a traced value, so
// restoring a memo also restores containers and cells.
func (g *FunctionGraph) recordMutation(undo func()) {
	g.undo = append(g.undo, undo)
}

// AddGlobalGuardedVariable marks v as read from the frame. Its check (and
// those of the values it was read through) become part of the guard.
func (g *FunctionGraph) AddGlobalGuardedVariable(v Variable) {
	if v == nil || IsDerived(v.Tracker()) || g.guarded[v.ID()] {
		return
	}
	g.guarded[v.ID()] = true
	g.globalGuards = append(g.globalGuards, v)
}

// StoreGlobal records that the traced code assigns v to the global name.
// Only the last assignment to a name is kept.
func (g *FunctionGraph) StoreGlobal(name string, v Variable) {
	for i := range g.globalStores {
		if g.globalStores[i].name == name {
			g.globalStores[i].value = v
			return
		}
	}
	g.globalStores = append(g.globalStores, globalStore{name: name, value: v})
}

// ---------------------------------------------------------------------------
// Memo: snapshot and rollback
// ---------------------------------------------------------------------------

// Memo is a snapshot of a graph taken with SaveMemo.
type Memo struct {
	innerOut     map[int]bool
	globalGuards []Variable
	guarded      map[int]bool
	symbols      map[int]symbolic.Symbol
	symVars      map[symbolic.Symbol]Variable
	nextSym      int
	globalStores []globalStore
	ir           *symbolic.StatementIR
	mutations    int
}

// SaveMemo snapshots the graph. Sets are copied shallowly; the IR is
// copied deeply.
func (g *FunctionGraph) SaveMemo() *Memo {
	return &Memo{
		innerOut:     maps.Clone(g.innerOut),
		globalGuards: append([]Variable(nil), g.globalGuards...),
		guarded:      maps.Clone(g.guarded),
		symbols:      maps.Clone(g.symbols),
		symVars:      maps.Clone(g.symVars),
		nextSym:      g.nextSym,
		globalStores: slices.Clone(g.globalStores),
		ir:           g.ctx.TOS().Clone(),
		mutations:    len(g.undo),
	}
}

// RestoreMemo rolls the graph back to m, undoing every mutation recorded
// since. A memo may be restored more than once.
func (g *FunctionGraph) RestoreMemo(m *Memo) {
	for len(g.undo) > m.mutations {
		last := len(g.undo) - 1
		g.undo[last]()
		g.undo = g.undo[:last]
	}
	g.innerOut = maps.Clone(m.innerOut)
	g.globalGuards = append([]Variable(nil), m.globalGuards...)
	g.guarded = maps.Clone(m.guarded)
	g.symbols = maps.Clone(m.symbols)
	g.symVars = maps.Clone(m.symVars)
	g.nextSym = m.nextSym
	g.globalStores = slices.Clone(m.globalStores)
	g.ctx.ReplaceTOS(m.ir.Clone())
}

// ---------------------------------------------------------------------------
// Recording operations
// ---------------------------------------------------------------------------

func (g *FunctionGraph) symbolOf(v Variable) symbolic.Symbol {
	if sym, ok := g.symbols[v.ID()]; ok {
		return sym
	}
	sym := symbolic.Symbol{Name: fmt.Sprintf("var_%d", g.nextSym)}
	g.nextSym++
	g.symbols[v.ID()] = sym
	g.symVars[sym] = v
	return sym
}

// operand converts a traced value into a statement operand.
func (g *FunctionGraph) operand(v Variable) (symbolic.Operand, error) {
	switch x := v.(type) {
	case *TensorVariable:
		return symbolic.Sym(g.symbolOf(x)), nil
	case *ConstantVariable:
		op, err := symbolic.Lit(x.value)
		if err != nil {
			return symbolic.Operand{}, unsupportedf("%s as an operand", vm.TypeName(x.value))
		}
		return op, nil
	case *ListVariable:
		items, err := x.Items()
		if err != nil {
			return symbolic.Operand{}, err
		}
		ops := make([]symbolic.Operand, len(items))
		for i, item := range items {
			if ops[i], err = g.operand(item); err != nil {
				return symbolic.Operand{}, err
			}
		}
		if x.tuple {
			return symbolic.Tuple(ops...), nil
		}
		return symbolic.List(ops...), nil
	}
	return symbolic.Operand{}, unsupportedf("%s as an operand", v)
}

// metaValue converts a traced value into the form meta inference expects.
func metaValue(v Variable) (any, error) {
	switch x := v.(type) {
	case *TensorVariable:
		return x.meta, nil
	case *ConstantVariable:
		return x.value, nil
	case *ListVariable:
		items, err := x.Items()
		if err != nil {
			return nil, err
		}
		out := make([]any, len(items))
		for i, item := range items {
			if out[i], err = metaValue(item); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	return nil, unsupportedf("%s as an operand", v)
}

type recordedOperands struct {
	inputs []symbolic.Operand
	kwargs map[string]symbolic.Operand
	margs  []any
	mkw    map[string]any
	deps   []Variable
}

func (g *FunctionGraph) collectOperands(args []Variable, kwargs map[string]Variable) (*recordedOperands, error) {
	r := &recordedOperands{}
	for _, a := range args {
		op, err := g.operand(a)
		if err != nil {
			return nil, err
		}
		m, err := metaValue(a)
		if err != nil {
			return nil, err
		}
		r.inputs = append(r.inputs, op)
		r.margs = append(r.margs, m)
		r.deps = append(r.deps, a)
	}
	if len(kwargs) > 0 {
		r.kwargs = make(map[string]symbolic.Operand, len(kwargs))
		r.mkw = make(map[string]any, len(kwargs))
		names := make([]string, 0, len(kwargs))
		for name := range kwargs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			op, err := g.operand(kwargs[name])
			if err != nil {
				return nil, err
			}
			m, err := metaValue(kwargs[name])
			if err != nil {
				return nil, err
			}
			r.kwargs[name] = op
			r.mkw[name] = m
			r.deps = append(r.deps, kwargs[name])
		}
	}
	return r, nil
}

func inferMeta(name string, margs []any, mkw map[string]any) (meta.MetaInfo, error) {
	restore := vm.DisableHook()
	defer restore()
	return vm.InferMetaOf(name, margs, mkw)
}

func (g *FunctionGraph) newOutput(m meta.MetaInfo, deps []Variable) (*TensorVariable, symbolic.Symbol) {
	out := NewTensorVariable(m, g, derived(deps...))
	g.innerOut[out.ID()] = true
	return out, g.symbolOf(out)
}

// RecordAPI records a call of a T module operation and returns its result.
func (g *FunctionGraph) RecordAPI(name string, args []Variable, kwargs map[string]Variable) (Variable, error) {
	if _, ok := vm.LookupAPI(name); !ok {
		return nil, vm.NewHostError(vm.AttributeError, "module 'T' has no attribute '%s'", name)
	}
	ops, err := g.collectOperands(args, kwargs)
	if err != nil {
		return nil, err
	}
	m, err := inferMeta(name, ops.margs, ops.mkw)
	if err != nil {
		return nil, err
	}
	out, sym := g.newOutput(m, ops.deps)
	g.ctx.CallAPI(name, ops.inputs, ops.kwargs, sym)
	log.Debugf("record api %s -> %s %s", name, sym, m)
	return out, nil
}

// RecordMethod records a tensor method call on self.
func (g *FunctionGraph) RecordMethod(name string, self *TensorVariable, args []Variable, kwargs map[string]Variable) (Variable, error) {
	api, ok := vm.TensorMethods[name]
	if !ok {
		return nil, vm.NewHostError(vm.AttributeError, "'Tensor' object has no attribute '%s'", name)
	}
	ops, err := g.collectOperands(append([]Variable{self}, args...), kwargs)
	if err != nil {
		return nil, err
	}
	m, err := inferMeta(api, ops.margs, ops.mkw)
	if err != nil {
		return nil, err
	}
	out, sym := g.newOutput(m, ops.deps)
	g.ctx.CallMethod(name, ops.inputs, ops.kwargs, sym)
	log.Debugf("record method %s -> %s %s", name, sym, m)
	return out, nil
}

// RecordLayer records the application of a layer to x.
func (g *FunctionGraph) RecordLayer(layer *LayerVariable, x Variable) (Variable, error) {
	t, ok := x.(*TensorVariable)
	if !ok {
		return nil, unsupportedf("layer %s applied to %s", layer.layer.Name, x)
	}
	g.AddGlobalGuardedVariable(layer)
	restore := vm.DisableHook()
	m, err := layer.layer.InferMeta(t.meta)
	restore()
	if err != nil {
		return nil, err
	}
	out, sym := g.newOutput(m, []Variable{layer, t})
	g.ctx.CallLayer(layer.layer, []symbolic.Operand{symbolic.Sym(g.symbolOf(t))}, sym)
	log.Debugf("record layer %s -> %s %s", layer.layer.Name, sym, m)
	return out, nil
}

// CollectInputVariables returns the variables behind the IR's inputs, in
// the order the IR reads them.
func (g *FunctionGraph) CollectInputVariables() ([]Variable, error) {
	syms := g.IR().AnalyzeInputs()
	vars := make([]Variable, len(syms))
	for i, sym := range syms {
		v, ok := g.symVars[sym]
		if !ok {
			return nil, innerErrorf("input %s has no variable", sym)
		}
		if g.innerOut[v.ID()] {
			return nil, innerErrorf("input %s is produced inside the graph", sym)
		}
		vars[i] = v
	}
	return vars, nil
}

// ---------------------------------------------------------------------------
// Finalize
// ---------------------------------------------------------------------------

// leaves appends the derived tensors reachable from v.
func leaves(v Variable, seen map[int]bool, dst []*TensorVariable) ([]*TensorVariable, error) {
	if seen[v.ID()] {
		return dst, nil
	}
	seen[v.ID()] = true
	switch x := v.(type) {
	case *TensorVariable:
		if IsDerived(x.tracker) {
			dst = append(dst, x)
		}
	case *ListVariable:
		if !IsDerived(x.tracker) {
			return dst, nil
		}
		items, err := x.Items()
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if dst, err = leaves(item, seen, dst); err != nil {
				return nil, err
			}
		}
	case *DictVariable:
		if !IsDerived(x.tracker) {
			return dst, nil
		}
		values, err := x.Values()
		if err != nil {
			return nil, err
		}
		for _, item := range values {
			if dst, err = leaves(item, seen, dst); err != nil {
				return nil, err
			}
		}
	case *MethodVariable:
		return leaves(x.self, seen, dst)
	}
	return dst, nil
}

// Finalize completes the IR with outputs that keep every given variable
// alive, then emits code that runs the compiled artifact, stores its
// outputs, repeats the global assignments of the trace and pushes each of
// the given variables in order.
func (g *FunctionGraph) Finalize(cg *bytecode.CodeGen, outputs ...Variable) error {
	seen := make(map[int]bool)
	var live []*TensorVariable
	var err error
	for _, v := range outputs {
		if live, err = leaves(v, seen, live); err != nil {
			return err
		}
	}
	for _, s := range g.globalStores {
		if live, err = leaves(s.value, seen, live); err != nil {
			return err
		}
	}
	liveSyms := make([]symbolic.Symbol, 0, len(live))
	for _, t := range live {
		sym, ok := g.symbols[t.ID()]
		if !ok {
			return innerErrorf("%s has no symbol", t)
		}
		liveSyms = append(liveSyms, sym)
	}

	ir := g.IR()
	ir.Inputs = ir.AnalyzeInputs()
	ir.Outputs = ir.AnalyzeOutputs(liveSyms)
	if len(ir.Outputs) != len(liveSyms) {
		return innerErrorf("%d live tensors but %d outputs in %s", len(liveSyms), len(ir.Outputs), ir.Name)
	}
	if err := ir.Validate(); err != nil {
		return innerErrorf("%v", err)
	}

	if len(ir.Statements) > 0 && len(ir.Outputs) > 0 {
		artifact, err := symbolic.CompileCached(ir.Clone())
		if err != nil {
			return innerErrorf("compile %s: %v", ir.Name, err)
		}
		inputs, err := g.CollectInputVariables()
		if err != nil {
			return err
		}
		cg.GenLoadConst(artifact)
		for _, in := range inputs {
			if err := in.Reconstruct(cg); err != nil {
				return err
			}
		}
		cg.GenBuildTuple(len(inputs))
		cg.GenCallFunction(1)
		cg.GenUnpackSequence(len(ir.Outputs))
		for _, sym := range ir.Outputs {
			cg.GenStoreFast(OutName(sym))
		}
		log.Infof("finalized %s: %d statements, %d inputs, %d outputs", ir.Name, len(ir.Statements), len(ir.Inputs), len(ir.Outputs))
	}

	for _, s := range g.globalStores {
		if err := s.value.Reconstruct(cg); err != nil {
			return err
		}
		cg.GenStoreGlobal(s.name)
	}

	for _, v := range outputs {
		if err := v.Reconstruct(cg); err != nil {
			return err
		}
	}
	return nil
}
