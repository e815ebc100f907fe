package vm

import (
	"math"
	"strings"
)

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

// numeric returns v as int64 or float64 and whether it is a number at all.
// Bools count as ints.
func numeric(v any) (i int64, f float64, isFloat, ok bool) {
	switch x := v.(type) {
	case bool:
		if x {
			return 1, 1, false, true
		}
		return 0, 0, false, true
	case int64:
		return x, float64(x), false, true
	case float64:
		return 0, x, true, true
	}
	return 0, 0, false, false
}

func unsupportedOperands(sym string, a, b any) error {
	return typeErrorf("unsupported operand type(s) for %s: '%s' and '%s'", sym, TypeName(a), TypeName(b))
}

// BinaryOp applies a binary operator given by its symbol.
func BinaryOp(sym string, a, b any) (any, error) {
	_, aTensor := a.(*Tensor)
	_, bTensor := b.(*Tensor)
	if aTensor || bTensor {
		name, ok := BinaryOpNames[sym]
		if !ok {
			return nil, unsupportedOperands(sym, a, b)
		}
		if _, _, _, ok := numeric(a); !ok && !aTensor {
			return nil, unsupportedOperands(sym, a, b)
		}
		if _, _, _, ok := numeric(b); !ok && !bTensor {
			return nil, unsupportedOperands(sym, a, b)
		}
		return CallAPI(name, []any{a, b}, nil)
	}

	ai, af, aFloat, aNum := numeric(a)
	bi, bf, bFloat, bNum := numeric(b)
	if aNum && bNum {
		if aFloat || bFloat {
			return floatOp(sym, af, bf, a, b)
		}
		return intOp(sym, ai, bi, a, b)
	}

	switch sym {
	case "+":
		switch x := a.(type) {
		case string:
			if y, ok := b.(string); ok {
				return x + y, nil
			}
		case *List:
			if y, ok := b.(*List); ok {
				return NewList(append(append([]any{}, x.Items...), y.Items...)...), nil
			}
		case *Tuple:
			if y, ok := b.(*Tuple); ok {
				return NewTuple(append(append([]any{}, x.Items...), y.Items...)...), nil
			}
		}
	case "*":
		if n, ok := b.(int64); ok {
			return repeat(a, n, sym, b)
		}
		if n, ok := a.(int64); ok {
			return repeat(b, n, sym, a)
		}
	}
	return nil, unsupportedOperands(sym, a, b)
}

func repeat(seq any, n int64, sym string, other any) (any, error) {
	n = max(n, 0)
	switch x := seq.(type) {
	case string:
		return strings.Repeat(x, int(n)), nil
	case *List:
		var items []any
		for i := int64(0); i < n; i++ {
			items = append(items, x.Items...)
		}
		return NewList(items...), nil
	case *Tuple:
		var items []any
		for i := int64(0); i < n; i++ {
			items = append(items, x.Items...)
		}
		return NewTuple(items...), nil
	}
	return nil, unsupportedOperands(sym, seq, other)
}

func intOp(sym string, a, b int64, av, bv any) (any, error) {
	switch sym {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return nil, NewHostError(ZeroDivisionError, "division by zero")
		}
		return float64(a) / float64(b), nil
	case "//":
		if b == 0 {
			return nil, NewHostError(ZeroDivisionError, "integer division or modulo by zero")
		}
		q := a / b
		if (a%b != 0) && ((a < 0) != (b < 0)) {
			q--
		}
		return q, nil
	case "%":
		if b == 0 {
			return nil, NewHostError(ZeroDivisionError, "integer division or modulo by zero")
		}
		r := a % b
		if r != 0 && ((r < 0) != (b < 0)) {
			r += b
		}
		return r, nil
	case "**":
		if b < 0 {
			return math.Pow(float64(a), float64(b)), nil
		}
		result := int64(1)
		for i := int64(0); i < b; i++ {
			result *= a
		}
		return result, nil
	}
	return nil, unsupportedOperands(sym, av, bv)
}

func floatOp(sym string, a, b float64, av, bv any) (any, error) {
	switch sym {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return nil, NewHostError(ZeroDivisionError, "float division by zero")
		}
		return a / b, nil
	case "//":
		if b == 0 {
			return nil, NewHostError(ZeroDivisionError, "float floor division by zero")
		}
		return math.Floor(a / b), nil
	case "%":
		if b == 0 {
			return nil, NewHostError(ZeroDivisionError, "float modulo")
		}
		return a - math.Floor(a/b)*b, nil
	case "**":
		return math.Pow(a, b), nil
	}
	return nil, unsupportedOperands(sym, av, bv)
}

// UnaryOp applies "-" or "not".
func UnaryOp(sym string, v any) (any, error) {
	switch sym {
	case "not":
		t, err := Truthy(v)
		if err != nil {
			return nil, err
		}
		return !t, nil
	case "-":
		if _, ok := v.(*Tensor); ok {
			return CallAPI("neg", []any{v}, nil)
		}
		i, f, isFloat, ok := numeric(v)
		switch {
		case !ok:
			return nil, typeErrorf("bad operand type for unary -: '%s'", TypeName(v))
		case isFloat:
			return -f, nil
		default:
			return -i, nil
		}
	}
	return nil, typeErrorf("unknown unary operator %s", sym)
}

// ---------------------------------------------------------------------------
// Comparison and truth
// ---------------------------------------------------------------------------

// Compare applies a comparison operator.
func Compare(sym string, a, b any) (any, error) {
	_, aTensor := a.(*Tensor)
	_, bTensor := b.(*Tensor)
	if aTensor || bTensor {
		return BinaryOp(sym, a, b)
	}
	switch sym {
	case "==":
		return Equal(a, b), nil
	case "!=":
		return !Equal(a, b), nil
	}
	c, err := order(sym, a, b)
	if err != nil {
		return nil, err
	}
	switch sym {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	case ">=":
		return c >= 0, nil
	}
	return nil, typeErrorf("unknown comparison %s", sym)
}

// order returns -1, 0 or 1, or a TypeError for unorderable operands.
func order(sym string, a, b any) (int, error) {
	_, af, _, aNum := numeric(a)
	_, bf, _, bNum := numeric(b)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		}
		return 0, nil
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.Compare(as, bs), nil
		}
	}
	aItems, aSeq := sequenceItems(a)
	bItems, bSeq := sequenceItems(b)
	if aSeq && bSeq && TypeName(a) == TypeName(b) {
		for i := 0; i < len(aItems) && i < len(bItems); i++ {
			if Equal(aItems[i], bItems[i]) {
				continue
			}
			return order(sym, aItems[i], bItems[i])
		}
		switch {
		case len(aItems) < len(bItems):
			return -1, nil
		case len(aItems) > len(bItems):
			return 1, nil
		}
		return 0, nil
	}
	return 0, typeErrorf("'%s' not supported between instances of '%s' and '%s'", sym, TypeName(a), TypeName(b))
}

func sequenceItems(v any) ([]any, bool) {
	switch x := v.(type) {
	case *List:
		return x.Items, true
	case *Tuple:
		return x.Items, true
	}
	return nil, false
}

// Equal implements == for non-tensor values.
func Equal(a, b any) bool {
	_, af, _, aNum := numeric(a)
	_, bf, _, bNum := numeric(b)
	if aNum && bNum {
		return af == bf
	}
	switch x := a.(type) {
	case nil:
		return b == nil
	case string:
		y, ok := b.(string)
		return ok && x == y
	case *List, *Tuple:
		if TypeName(a) != TypeName(b) {
			return false
		}
		ai, _ := sequenceItems(a)
		bi, _ := sequenceItems(b)
		if len(ai) != len(bi) {
			return false
		}
		for i := range ai {
			if !Equal(ai[i], bi[i]) {
				return false
			}
		}
		return true
	case *Dict:
		y, ok := b.(*Dict)
		if !ok || x.Len() != y.Len() {
			return false
		}
		for _, k := range x.Keys() {
			xv, _ := x.Get(k)
			yv, ok := y.Get(k)
			if !ok || !Equal(xv, yv) {
				return false
			}
		}
		return true
	case *Range:
		y, ok := b.(*Range)
		return ok && *x == *y
	}
	return Identical(a, b)
}

// Identical implements the is operator.
func Identical(a, b any) (same bool) {
	defer func() {
		// Uncomparable dynamic types are never identical.
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

// Truthy returns the truth value of v. Tensors with more than one element
// are ambiguous.
func Truthy(v any) (bool, error) {
	switch x := v.(type) {
	case nil:
		return false, nil
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case float64:
		return x != 0, nil
	case string:
		return x != "", nil
	case *List:
		return len(x.Items) > 0, nil
	case *Tuple:
		return len(x.Items) > 0, nil
	case *Dict:
		return x.Len() > 0, nil
	case *Range:
		return x.Len() > 0, nil
	case *Tensor:
		if len(x.Data) != 1 {
			return false, NewHostError(ValueError, "the truth value of a tensor with more than one element is ambiguous")
		}
		return x.Data[0] != 0, nil
	}
	return true, nil
}

// Contains implements the in operator.
func Contains(container, item any) (bool, error) {
	switch c := container.(type) {
	case *List:
		return containsItem(c.Items, item), nil
	case *Tuple:
		return containsItem(c.Items, item), nil
	case *Dict:
		if _, err := HashKey(item); err != nil {
			return false, err
		}
		return c.Has(item), nil
	case string:
		s, ok := item.(string)
		if !ok {
			return false, typeErrorf("'in <string>' requires string as left operand, not %s", TypeName(item))
		}
		return strings.Contains(c, s), nil
	case *Range:
		i, ok := item.(int64)
		if !ok {
			return false, nil
		}
		for k := int64(0); k < c.Len(); k++ {
			if c.At(k) == i {
				return true, nil
			}
		}
		return false, nil
	}
	return false, typeErrorf("argument of type '%s' is not iterable", TypeName(container))
}

func containsItem(items []any, item any) bool {
	for _, x := range items {
		if Identical(x, item) || Equal(x, item) {
			return true
		}
	}
	return false
}

// Len implements len().
func Len(v any) (int64, error) {
	switch x := v.(type) {
	case string:
		return int64(len([]rune(x))), nil
	case *List:
		return int64(len(x.Items)), nil
	case *Tuple:
		return int64(len(x.Items)), nil
	case *Dict:
		return int64(x.Len()), nil
	case *Range:
		return x.Len(), nil
	case *Tensor:
		if x.Meta.Rank() == 0 {
			return 0, typeErrorf("len() of a 0-d tensor")
		}
		return int64(x.Meta.Shape[0]), nil
	}
	return 0, typeErrorf("object of type '%s' has no len()", TypeName(v))
}

// ---------------------------------------------------------------------------
// Subscription
// ---------------------------------------------------------------------------

func normalizeIndex(kind string, key any, n int) (int, error) {
	i, _, isFloat, ok := numeric(key)
	if !ok || isFloat {
		return 0, typeErrorf("%s indices must be integers, not %s", kind, TypeName(key))
	}
	if i < 0 {
		i += int64(n)
	}
	if i < 0 || i >= int64(n) {
		return 0, NewHostError(IndexError, "%s index out of range", kind)
	}
	return int(i), nil
}

// GetItem implements container[key].
func GetItem(container, key any) (any, error) {
	switch c := container.(type) {
	case *List:
		i, err := normalizeIndex("list", key, len(c.Items))
		if err != nil {
			return nil, err
		}
		return c.Items[i], nil
	case *Tuple:
		i, err := normalizeIndex("tuple", key, len(c.Items))
		if err != nil {
			return nil, err
		}
		return c.Items[i], nil
	case *Dict:
		return c.Lookup(key)
	case string:
		runes := []rune(c)
		i, err := normalizeIndex("string", key, len(runes))
		if err != nil {
			return nil, err
		}
		return string(runes[i]), nil
	case *Range:
		i, err := normalizeIndex("range object", key, int(c.Len()))
		if err != nil {
			return nil, err
		}
		return c.At(int64(i)), nil
	case *Tensor:
		return CallAPI("getitem", []any{c, key}, nil)
	}
	return nil, typeErrorf("'%s' object is not subscriptable", TypeName(container))
}

// SetItem implements container[key] = value.
func SetItem(container, key, value any) error {
	switch c := container.(type) {
	case *List:
		i, err := normalizeIndex("list assignment", key, len(c.Items))
		if err != nil {
			return err
		}
		c.Items[i] = value
		return nil
	case *Dict:
		return c.Set(key, value)
	}
	return typeErrorf("'%s' object does not support item assignment", TypeName(container))
}
