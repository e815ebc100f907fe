package vm

// Iterator is the state of a running for loop.
type Iterator interface {
	Next(in *Interpreter) (value any, ok bool, err error)
}

// SeqIter walks a list or tuple by position, observing appends to a list.
type SeqIter struct {
	Seq any
	Pos int
}

func (it *SeqIter) Next(*Interpreter) (any, bool, error) {
	items, _ := sequenceItems(it.Seq)
	if it.Pos >= len(items) {
		return nil, false, nil
	}
	v := items[it.Pos]
	it.Pos++
	return v, true, nil
}

// RangeIter walks a range.
type RangeIter struct {
	Range *Range
	Pos   int64
}

func (it *RangeIter) Next(*Interpreter) (any, bool, error) {
	if it.Pos >= it.Range.Len() {
		return nil, false, nil
	}
	v := it.Range.At(it.Pos)
	it.Pos++
	return v, true, nil
}

// DictIter walks a snapshot of a dict's keys.
type DictIter struct {
	Dict *Dict
	Keys []any
	Pos  int
}

func (it *DictIter) Next(*Interpreter) (any, bool, error) {
	if it.Dict.Len() != len(it.Keys) {
		return nil, false, NewHostError(ValueError, "dictionary changed size during iteration")
	}
	if it.Pos >= len(it.Keys) {
		return nil, false, nil
	}
	v := it.Keys[it.Pos]
	it.Pos++
	return v, true, nil
}

// TensorIter walks the leading dimension of a tensor.
type TensorIter struct {
	Tensor *Tensor
	Pos    int
}

func (it *TensorIter) Next(*Interpreter) (any, bool, error) {
	if it.Tensor.Meta.Rank() == 0 {
		return nil, false, typeErrorf("iteration over a 0-d tensor")
	}
	if it.Pos >= it.Tensor.Meta.Shape[0] {
		return nil, false, nil
	}
	v, err := CallAPI("getitem", []any{it.Tensor, int64(it.Pos)}, nil)
	if err != nil {
		return nil, false, err
	}
	it.Pos++
	return v, true, nil
}

// CallableIter calls a function until it returns the sentinel, the
// iterator built by iter(fn, sentinel).
type CallableIter struct {
	Fn       any
	Sentinel any
	done     bool
}

func (it *CallableIter) Next(in *Interpreter) (any, bool, error) {
	if it.done {
		return nil, false, nil
	}
	v, err := in.Call(it.Fn, nil, nil)
	if err != nil {
		return nil, false, err
	}
	if Equal(v, it.Sentinel) {
		it.done = true
		return nil, false, nil
	}
	return v, true, nil
}

// GetIter returns an iterator over v.
func GetIter(v any) (Iterator, error) {
	switch x := v.(type) {
	case Iterator:
		return x, nil
	case *List, *Tuple:
		return &SeqIter{Seq: x}, nil
	case string:
		runes := []rune(x)
		items := make([]any, len(runes))
		for i, r := range runes {
			items[i] = string(r)
		}
		return &SeqIter{Seq: NewTuple(items...)}, nil
	case *Range:
		return &RangeIter{Range: x}, nil
	case *Dict:
		return &DictIter{Dict: x, Keys: x.Keys()}, nil
	case *Tensor:
		return &TensorIter{Tensor: x}, nil
	}
	return nil, typeErrorf("'%s' object is not iterable", TypeName(v))
}

// Collect drains an iterable into a slice.
func Collect(in *Interpreter, v any) ([]any, error) {
	if items, ok := sequenceItems(v); ok {
		return append([]any(nil), items...), nil
	}
	it, err := GetIter(v)
	if err != nil {
		return nil, err
	}
	var out []any
	for {
		x, ok, err := it.Next(in)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, x)
	}
}
