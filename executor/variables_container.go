package executor

import (
	"fmt"

	"github.com/chazu/symtrace/pkg/bytecode"
	"github.com/chazu/symtrace/vm"
)

// ---------------------------------------------------------------------------
// ListVariable: lists and tuples
// ---------------------------------------------------------------------------

// ListVariable is a list or tuple. Elements of a container that came from
// the frame are wrapped on first access, each with a tracker indexing into
// the container, and the wrapped element is kept so later reads see the
// same variable.
type ListVariable struct {
	base
	tuple bool
	raw   []any
	items []Variable
}

// NewListVariable returns a container built during tracing.
func NewListVariable(items []Variable, tuple bool, g *FunctionGraph, t Tracker) *ListVariable {
	return &ListVariable{base: newBase(g, t), tuple: tuple, items: items}
}

func newListFromRaw(raw []any, tuple bool, g *FunctionGraph, t Tracker) *ListVariable {
	return &ListVariable{
		base:  newBase(g, t),
		tuple: tuple,
		raw:   raw,
		items: make([]Variable, len(raw)),
	}
}

func (v *ListVariable) Kind() Kind {
	if v.tuple {
		return KindTuple
	}
	return KindList
}

func (v *ListVariable) typeName() string {
	if v.tuple {
		return "tuple"
	}
	return "list"
}

// Len returns the number of elements.
func (v *ListVariable) Len() int {
	return len(v.items)
}

// GetItem returns the element at index key, wrapping it if needed. The key
// must be a plain integer, never a variable.
func (v *ListVariable) GetItem(key any) (Variable, error) {
	if _, ok := key.(Variable); ok {
		return nil, innerErrorf("%s indexed with a variable", v)
	}
	i, _, isFloat, ok := intKey(key)
	if !ok || isFloat {
		return nil, vm.NewHostError(vm.TypeError, "%s indices must be integers, not %s", v.typeName(), vm.TypeName(key))
	}
	if i < 0 {
		i += int64(len(v.items))
	}
	if i < 0 || i >= int64(len(v.items)) {
		return nil, vm.NewHostError(vm.IndexError, "%s index out of range", v.typeName())
	}
	return v.at(int(i))
}

func (v *ListVariable) at(i int) (Variable, error) {
	if v.items[i] == nil {
		item, err := Wrap(v.raw[i], v.graph, itemTracker(v, int64(i)))
		if err != nil {
			return nil, err
		}
		v.items[i] = item
		v.graph.AddGlobalGuardedVariable(item)
	}
	return v.items[i], nil
}

// Items returns every element, wrapping those not yet accessed.
func (v *ListVariable) Items() ([]Variable, error) {
	for i := range v.items {
		if _, err := v.at(i); err != nil {
			return nil, err
		}
	}
	return append([]Variable(nil), v.items...), nil
}

func (v *ListVariable) checkMutable() error {
	if v.tuple {
		return vm.NewHostError(vm.TypeError, "'tuple' object does not support item assignment")
	}
	if !IsDerived(v.tracker) {
		return unsupportedf("mutation of a list owned by the frame")
	}
	return nil
}

// SetItem replaces an element. Both operands follow the container rules:
// the key is a plain integer and the value is a variable.
func (v *ListVariable) SetItem(key any, value any) error {
	item, ok := value.(Variable)
	if !ok {
		return innerErrorf("raw %T stored into %s", value, v)
	}
	if _, ok := key.(Variable); ok {
		return innerErrorf("%s indexed with a variable", v)
	}
	if err := v.checkMutable(); err != nil {
		return err
	}
	i, _, isFloat, ok := intKey(key)
	if !ok || isFloat {
		return vm.NewHostError(vm.TypeError, "list indices must be integers, not %s", vm.TypeName(key))
	}
	if i < 0 {
		i += int64(len(v.items))
	}
	if i < 0 || i >= int64(len(v.items)) {
		return vm.NewHostError(vm.IndexError, "list assignment index out of range")
	}
	old := v.items[i]
	v.items[i] = item
	v.graph.recordMutation(func() { v.items[i] = old })
	return nil
}

// Append adds an element to a list built during tracing.
func (v *ListVariable) Append(value any) error {
	item, ok := value.(Variable)
	if !ok {
		return innerErrorf("raw %T appended to %s", value, v)
	}
	if err := v.checkMutable(); err != nil {
		return err
	}
	old := v.items
	v.items = append(v.items[:len(v.items):len(v.items)], item)
	v.graph.recordMutation(func() { v.items = old })
	return nil
}

func (v *ListVariable) MakeCheck() (Check, string) {
	tuple, n := v.tuple, len(v.items)
	return func(got any) bool {
		switch x := got.(type) {
		case *vm.List:
			return !tuple && len(x.Items) == n
		case *vm.Tuple:
			return tuple && len(x.Items) == n
		}
		return false
	}, fmt.Sprintf("is %s of length %d", v.typeName(), n)
}

func (v *ListVariable) Reconstruct(cg *bytecode.CodeGen) error {
	if !IsDerived(v.tracker) {
		return v.tracker.GenInstructions(cg)
	}
	items, err := v.Items()
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := item.Reconstruct(cg); err != nil {
			return err
		}
	}
	if v.tuple {
		cg.GenBuildTuple(len(items))
	} else {
		cg.GenBuildList(len(items))
	}
	return nil
}

func (v *ListVariable) String() string {
	return fmt.Sprintf("ListVariable(%s of %d, %s)", v.typeName(), len(v.items), v.tracker)
}

func intKey(key any) (int64, float64, bool, bool) {
	switch k := key.(type) {
	case bool:
		if k {
			return 1, 1, false, true
		}
		return 0, 0, false, true
	case int64:
		return k, float64(k), false, true
	case float64:
		return int64(k), k, true, true
	}
	return 0, 0, false, false
}

// ---------------------------------------------------------------------------
// DictVariable
// ---------------------------------------------------------------------------

// DictVariable is a dict. Keys are plain hashable values, values are wrapped
// on first access like list elements.
type DictVariable struct {
	base
	raw     *vm.Dict
	keys    []any
	entries map[any]Variable
}

// NewDictVariable returns a dict built during tracing.
func NewDictVariable(keys []any, values []Variable, g *FunctionGraph, t Tracker) (*DictVariable, error) {
	d := &DictVariable{base: newBase(g, t), entries: make(map[any]Variable, len(keys))}
	for i, k := range keys {
		if err := d.put(k, values[i]); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func newDictFromRaw(raw *vm.Dict, g *FunctionGraph, t Tracker) *DictVariable {
	return &DictVariable{
		base:    newBase(g, t),
		raw:     raw,
		keys:    raw.Keys(),
		entries: make(map[any]Variable, raw.Len()),
	}
}

func (v *DictVariable) Kind() Kind { return KindDict }

// Len returns the number of entries.
func (v *DictVariable) Len() int {
	return len(v.keys)
}

// Keys returns the keys in insertion order.
func (v *DictVariable) Keys() []any {
	return append([]any(nil), v.keys...)
}

// Get returns the value for key. A variable key is a tracer bug.
func (v *DictVariable) Get(key any) (Variable, bool, error) {
	if _, ok := key.(Variable); ok {
		return nil, false, innerErrorf("%s indexed with a variable", v)
	}
	hk, err := vm.HashKey(key)
	if err != nil {
		return nil, false, err
	}
	if item, ok := v.entries[hk]; ok {
		return item, true, nil
	}
	if v.raw == nil {
		return nil, false, nil
	}
	raw, ok := v.raw.Get(key)
	if !ok {
		return nil, false, nil
	}
	item, err := Wrap(raw, v.graph, itemTracker(v, key))
	if err != nil {
		return nil, false, err
	}
	v.entries[hk] = item
	v.graph.AddGlobalGuardedVariable(item)
	return item, true, nil
}

// Lookup is Get that raises KeyError for a missing key.
func (v *DictVariable) Lookup(key any) (Variable, error) {
	item, ok, err := v.Get(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, vm.NewHostError(vm.KeyError, "%s", vm.Repr(key))
	}
	return item, nil
}

// Values returns every value in key order.
func (v *DictVariable) Values() ([]Variable, error) {
	values := make([]Variable, len(v.keys))
	for i, k := range v.keys {
		item, _, err := v.Get(k)
		if err != nil {
			return nil, err
		}
		values[i] = item
	}
	return values, nil
}

// Set stores value under key in a dict built during tracing.
func (v *DictVariable) Set(key any, value any) error {
	item, ok := value.(Variable)
	if !ok {
		return innerErrorf("raw %T stored into %s", value, v)
	}
	if _, ok := key.(Variable); ok {
		return innerErrorf("%s indexed with a variable", v)
	}
	if !IsDerived(v.tracker) {
		return unsupportedf("mutation of a dict owned by the frame")
	}
	hk, err := vm.HashKey(key)
	if err != nil {
		return err
	}
	oldKeys := v.keys
	old, had := v.entries[hk]
	if err := v.put(key, item); err != nil {
		return err
	}
	v.graph.recordMutation(func() {
		v.keys = oldKeys
		if had {
			v.entries[hk] = old
		} else {
			delete(v.entries, hk)
		}
	})
	return nil
}

func (v *DictVariable) put(key any, item Variable) error {
	hk, err := vm.HashKey(key)
	if err != nil {
		return err
	}
	if _, ok := v.entries[hk]; !ok {
		v.keys = append(v.keys[:len(v.keys):len(v.keys)], key)
	}
	v.entries[hk] = item
	return nil
}

func (v *DictVariable) MakeCheck() (Check, string) {
	keys := v.Keys()
	return func(got any) bool {
		d, ok := got.(*vm.Dict)
		if !ok || d.Len() != len(keys) {
			return false
		}
		for i, k := range d.Keys() {
			if vm.TypeName(k) != vm.TypeName(keys[i]) || !vm.Equal(k, keys[i]) {
				return false
			}
		}
		return true
	}, fmt.Sprintf("is dict with keys %s", vm.Repr(vm.NewTuple(keys...)))
}

func (v *DictVariable) Reconstruct(cg *bytecode.CodeGen) error {
	if !IsDerived(v.tracker) {
		return v.tracker.GenInstructions(cg)
	}
	for _, k := range v.keys {
		item, _, err := v.Get(k)
		if err != nil {
			return err
		}
		cg.GenLoadConst(k)
		if err := item.Reconstruct(cg); err != nil {
			return err
		}
	}
	cg.GenBuildMap(len(v.keys))
	return nil
}

func (v *DictVariable) String() string {
	return fmt.Sprintf("DictVariable(%d keys, %s)", len(v.keys), v.tracker)
}
