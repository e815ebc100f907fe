package symbolic

import (
	"fmt"
	"strconv"
	"strings"
)

// Symbol names one value inside a StatementIR. Symbols never hold runtime
// values; two symbols are the same value exactly when their names match.
type Symbol struct {
	Name string `cbor:"1,keyasint"`
}

func (s Symbol) String() string {
	return s.Name
}

// OperandKind tags the form of a statement operand.
type OperandKind uint8

const (
	OperandSymbol OperandKind = iota
	OperandNone
	OperandBool
	OperandInt
	OperandFloat
	OperandString
	OperandList
	OperandTuple
)

// Operand is one input of a statement: a symbol, a literal, or a list or
// tuple of operands. Literals are kept in typed fields so an IR survives an
// encoding round trip unchanged.
type Operand struct {
	Kind  OperandKind `cbor:"1,keyasint"`
	Sym   Symbol      `cbor:"2,keyasint,omitempty"`
	Bool  bool        `cbor:"3,keyasint,omitempty"`
	Int   int64       `cbor:"4,keyasint,omitempty"`
	Float float64     `cbor:"5,keyasint,omitempty"`
	Str   string      `cbor:"6,keyasint,omitempty"`
	Items []Operand   `cbor:"7,keyasint,omitempty"`
}

// Sym returns an operand referring to a symbol.
func Sym(s Symbol) Operand {
	return Operand{Kind: OperandSymbol, Sym: s}
}

// Lit returns a literal operand for a scalar value.
func Lit(v any) (Operand, error) {
	switch x := v.(type) {
	case nil:
		return Operand{Kind: OperandNone}, nil
	case bool:
		return Operand{Kind: OperandBool, Bool: x}, nil
	case int64:
		return Operand{Kind: OperandInt, Int: x}, nil
	case int:
		return Operand{Kind: OperandInt, Int: int64(x)}, nil
	case float64:
		return Operand{Kind: OperandFloat, Float: x}, nil
	case string:
		return Operand{Kind: OperandString, Str: x}, nil
	}
	return Operand{}, fmt.Errorf("symbolic: %T cannot be a literal operand", v)
}

// List returns a list operand.
func List(items ...Operand) Operand {
	return Operand{Kind: OperandList, Items: items}
}

// Tuple returns a tuple operand.
func Tuple(items ...Operand) Operand {
	return Operand{Kind: OperandTuple, Items: items}
}

// Symbols appends every symbol referenced by the operand, depth first.
func (o Operand) Symbols(dst []Symbol) []Symbol {
	switch o.Kind {
	case OperandSymbol:
		return append(dst, o.Sym)
	case OperandList, OperandTuple:
		for _, item := range o.Items {
			dst = item.Symbols(dst)
		}
	}
	return dst
}

// Clone returns a deep copy.
func (o Operand) Clone() Operand {
	if len(o.Items) > 0 {
		items := make([]Operand, len(o.Items))
		for i, item := range o.Items {
			items[i] = item.Clone()
		}
		o.Items = items
	}
	return o
}

func (o Operand) String() string {
	switch o.Kind {
	case OperandSymbol:
		return o.Sym.Name
	case OperandNone:
		return "None"
	case OperandBool:
		if o.Bool {
			return "True"
		}
		return "False"
	case OperandInt:
		return strconv.FormatInt(o.Int, 10)
	case OperandFloat:
		return strconv.FormatFloat(o.Float, 'g', -1, 64)
	case OperandString:
		return strconv.Quote(o.Str)
	case OperandList, OperandTuple:
		parts := make([]string, len(o.Items))
		for i, item := range o.Items {
			parts[i] = item.String()
		}
		if o.Kind == OperandList {
			return "[" + strings.Join(parts, ", ") + "]"
		}
		if len(parts) == 1 {
			return "(" + parts[0] + ",)"
		}
		return "(" + strings.Join(parts, ", ") + ")"
	}
	return "?"
}
