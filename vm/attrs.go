package vm

import (
	"sort"
)

func noAttribute(v any, name string) error {
	return NewHostError(AttributeError, "'%s' object has no attribute '%s'", TypeName(v), name)
}

// GetAttr implements obj.name.
func GetAttr(obj any, name string) (any, error) {
	switch x := obj.(type) {
	case *Tensor:
		return tensorAttr(x, name)
	case *List:
		if fn, ok := listMethods[name]; ok {
			return &BoundMethod{Self: x, Name: name, Fn: fn}, nil
		}
	case *Dict:
		if fn, ok := dictMethods[name]; ok {
			return &BoundMethod{Self: x, Name: name, Fn: fn}, nil
		}
	case *Function:
		switch name {
		case "__name__":
			return x.Name, nil
		case "__code__":
			return x.Code, nil
		case "__globals__":
			return x.Globals, nil
		case "__defaults__":
			if len(x.Defaults) == 0 {
				return nil, nil
			}
			return NewTuple(x.Defaults...), nil
		case "__closure__":
			if len(x.Closure) == 0 {
				return nil, nil
			}
			cells := make([]any, len(x.Closure))
			for i, c := range x.Closure {
				cells[i] = c
			}
			return NewTuple(cells...), nil
		}
	case *Cell:
		if name == "cell_contents" {
			if !x.Set {
				return nil, NewHostError(ValueError, "Cell is empty")
			}
			return x.Value, nil
		}
	case *Module:
		if v, ok := x.Attrs[name]; ok {
			return v, nil
		}
		return nil, NewHostError(AttributeError, "module '%s' has no attribute '%s'", x.Name, name)
	case *Object:
		if v, ok := x.Attrs[name]; ok {
			return v, nil
		}
	case *Layer:
		switch name {
		case "weight":
			return x.Weight, nil
		case "bias":
			return x.Bias, nil
		case "name":
			return x.Name, nil
		case "forward":
			return &BoundMethod{Self: x, Name: name, Fn: func(_ *Interpreter, self any, args []any, _ map[string]any) (any, error) {
				if len(args) != 1 {
					return nil, typeErrorf("forward() takes exactly one argument")
				}
				return self.(*Layer).Forward(args[0])
			}}, nil
		}
	case *Range:
		switch name {
		case "start":
			return x.Start, nil
		case "stop":
			return x.Stop, nil
		case "step":
			return x.Step, nil
		}
	case *BoundMethod:
		switch name {
		case "__self__":
			return x.Self, nil
		case "__name__":
			return x.Name, nil
		}
	}
	return nil, noAttribute(obj, name)
}

// SetAttr implements obj.name = value.
func SetAttr(obj any, name string, value any) error {
	switch x := obj.(type) {
	case *Object:
		x.Attrs[name] = value
		return nil
	case *Layer:
		t, ok := value.(*Tensor)
		switch {
		case !ok:
		case name == "weight":
			x.Weight = t
			return nil
		case name == "bias":
			x.Bias = t
			return nil
		}
	}
	return noAttribute(obj, name)
}

// ---------------------------------------------------------------------------
// Tensor attributes
// ---------------------------------------------------------------------------

// TensorAttrs lists tensor attributes that are plain metadata.
var TensorAttrs = []string{"shape", "dtype", "ndim", "stop_gradient", "size"}

// TensorMetaAttr returns a metadata attribute of a tensor description.
func TensorMetaAttr(t *Tensor, name string) (any, bool) {
	m := t.Meta
	switch name {
	case "shape":
		dims := make([]any, len(m.Shape))
		for i, d := range m.Shape {
			dims[i] = int64(d)
		}
		return NewTuple(dims...), true
	case "dtype":
		return string(m.DType), true
	case "ndim":
		return int64(m.Rank()), true
	case "stop_gradient":
		return m.StopGradient, true
	case "size":
		return int64(m.NumElements()), true
	}
	return nil, false
}

func tensorAttr(t *Tensor, name string) (any, error) {
	if v, ok := TensorMetaAttr(t, name); ok {
		return v, nil
	}
	if api, ok := TensorMethods[name]; ok {
		return &BoundMethod{Self: t, Name: name, Fn: func(_ *Interpreter, self any, args []any, kwargs map[string]any) (any, error) {
			return CallAPI(api, append([]any{self}, args...), kwargs)
		}}, nil
	}
	switch name {
	case "item":
		return &BoundMethod{Self: t, Name: name, Fn: func(_ *Interpreter, self any, _ []any, _ map[string]any) (any, error) {
			return self.(*Tensor).Item()
		}}, nil
	case "tolist":
		return &BoundMethod{Self: t, Name: name, Fn: func(_ *Interpreter, self any, _ []any, _ map[string]any) (any, error) {
			return tensorToList(self.(*Tensor)), nil
		}}, nil
	}
	return nil, noAttribute(t, name)
}

func tensorToList(t *Tensor) any {
	var build func(dim, offset int) any
	build = func(dim, offset int) any {
		if dim == t.Meta.Rank() {
			return t.scalar(t.Data[offset])
		}
		stride := product(t.Meta.Shape[dim+1:])
		items := make([]any, t.Meta.Shape[dim])
		for i := range items {
			items[i] = build(dim+1, offset+i*stride)
		}
		return NewList(items...)
	}
	return build(0, 0)
}

// ---------------------------------------------------------------------------
// Container methods
// ---------------------------------------------------------------------------

type methodFn = func(in *Interpreter, self any, args []any, kwargs map[string]any) (any, error)

func arity(name string, args []any, min, max int) error {
	if len(args) < min || len(args) > max {
		return typeErrorf("%s() takes %d to %d arguments (%d given)", name, min, max, len(args))
	}
	return nil
}

var listMethods = map[string]methodFn{
	"append": func(_ *Interpreter, self any, args []any, _ map[string]any) (any, error) {
		if err := arity("append", args, 1, 1); err != nil {
			return nil, err
		}
		l := self.(*List)
		l.Items = append(l.Items, args[0])
		return nil, nil
	},
	"extend": func(in *Interpreter, self any, args []any, _ map[string]any) (any, error) {
		if err := arity("extend", args, 1, 1); err != nil {
			return nil, err
		}
		items, err := Collect(in, args[0])
		if err != nil {
			return nil, err
		}
		l := self.(*List)
		l.Items = append(l.Items, items...)
		return nil, nil
	},
	"pop": func(_ *Interpreter, self any, args []any, _ map[string]any) (any, error) {
		if err := arity("pop", args, 0, 1); err != nil {
			return nil, err
		}
		l := self.(*List)
		if len(l.Items) == 0 {
			return nil, NewHostError(IndexError, "pop from empty list")
		}
		var key any = int64(-1)
		if len(args) == 1 {
			key = args[0]
		}
		i, err := normalizeIndex("pop", key, len(l.Items))
		if err != nil {
			return nil, err
		}
		v := l.Items[i]
		l.Items = append(l.Items[:i], l.Items[i+1:]...)
		return v, nil
	},
	"copy": func(_ *Interpreter, self any, args []any, _ map[string]any) (any, error) {
		return NewList(append([]any(nil), self.(*List).Items...)...), nil
	},
}

var dictMethods = map[string]methodFn{
	"get": func(_ *Interpreter, self any, args []any, _ map[string]any) (any, error) {
		if err := arity("get", args, 1, 2); err != nil {
			return nil, err
		}
		if _, err := HashKey(args[0]); err != nil {
			return nil, err
		}
		if v, ok := self.(*Dict).Get(args[0]); ok {
			return v, nil
		}
		if len(args) == 2 {
			return args[1], nil
		}
		return nil, nil
	},
	"keys": func(_ *Interpreter, self any, _ []any, _ map[string]any) (any, error) {
		return NewList(self.(*Dict).Keys()...), nil
	},
	"values": func(_ *Interpreter, self any, _ []any, _ map[string]any) (any, error) {
		return NewList(self.(*Dict).Values()...), nil
	},
	"items": func(_ *Interpreter, self any, _ []any, _ map[string]any) (any, error) {
		d := self.(*Dict)
		items := make([]any, 0, d.Len())
		for _, k := range d.Keys() {
			v, _ := d.Get(k)
			items = append(items, NewTuple(k, v))
		}
		return NewList(items...), nil
	},
	"update": func(_ *Interpreter, self any, args []any, kwargs map[string]any) (any, error) {
		if err := arity("update", args, 0, 1); err != nil {
			return nil, err
		}
		d := self.(*Dict)
		if len(args) == 1 {
			other, ok := args[0].(*Dict)
			if !ok {
				return nil, typeErrorf("update() argument must be a dict, not %s", TypeName(args[0]))
			}
			d.Update(other)
		}
		for _, k := range sortedKeys(kwargs) {
			_ = d.Set(k, kwargs[k])
		}
		return nil, nil
	},
	"pop": func(_ *Interpreter, self any, args []any, _ map[string]any) (any, error) {
		if err := arity("pop", args, 1, 2); err != nil {
			return nil, err
		}
		d := self.(*Dict)
		v, ok := d.Get(args[0])
		if !ok {
			if len(args) == 2 {
				return args[1], nil
			}
			return nil, NewHostError(KeyError, "%s", Repr(args[0]))
		}
		d.Delete(args[0])
		return v, nil
	},
	"copy": func(_ *Interpreter, self any, _ []any, _ map[string]any) (any, error) {
		return self.(*Dict).Copy(), nil
	},
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
