// Package meta describes tensors without their data and infers the
// description of an operation's result from the descriptions of its inputs.
package meta

import (
	"fmt"
	"slices"
	"strings"
)

// DType is the element type of a tensor.
type DType string

const (
	Bool    DType = "bool"
	Int64   DType = "int64"
	Float32 DType = "float32"
	Float64 DType = "float64"
)

// rank orders dtypes for promotion.
func (d DType) rank() int {
	switch d {
	case Bool:
		return 0
	case Int64:
		return 1
	case Float32:
		return 2
	case Float64:
		return 3
	}
	return -1
}

// IsFloat reports whether d is a floating point type.
func (d DType) IsFloat() bool {
	return d == Float32 || d == Float64
}

// Valid reports whether d names a known dtype.
func (d DType) Valid() bool {
	return d.rank() >= 0
}

// Promote returns the common type of a and b.
func Promote(a, b DType) DType {
	if a.rank() >= b.rank() {
		return a
	}
	return b
}

// Dynamic marks a dimension whose size is only known at run time.
const Dynamic = -1

// MetaInfo is the abstract description of a tensor.
type MetaInfo struct {
	Shape        []int `cbor:"1,keyasint"`
	DType        DType `cbor:"2,keyasint"`
	StopGradient bool  `cbor:"3,keyasint"`
}

// New returns a MetaInfo with the given dtype and shape that tracks gradients.
func New(dtype DType, shape ...int) MetaInfo {
	if shape == nil {
		shape = []int{}
	}
	return MetaInfo{Shape: shape, DType: dtype}
}

// Equal reports structural equality.
func (m MetaInfo) Equal(o MetaInfo) bool {
	return m.DType == o.DType && m.StopGradient == o.StopGradient && slices.Equal(m.Shape, o.Shape)
}

// Rank returns the number of dimensions.
func (m MetaInfo) Rank() int {
	return len(m.Shape)
}

// IsDynamic reports whether any dimension is unknown.
func (m MetaInfo) IsDynamic() bool {
	return slices.Contains(m.Shape, Dynamic)
}

// NumElements returns the element count, or Dynamic if it is not known.
func (m MetaInfo) NumElements() int {
	n := 1
	for _, d := range m.Shape {
		if d == Dynamic {
			return Dynamic
		}
		n *= d
	}
	return n
}

// WithStopGradient returns a copy with the stop-gradient flag set.
func (m MetaInfo) WithStopGradient(stop bool) MetaInfo {
	m.Shape = slices.Clone(m.Shape)
	m.StopGradient = stop
	return m
}

// Clone returns a deep copy.
func (m MetaInfo) Clone() MetaInfo {
	m.Shape = slices.Clone(m.Shape)
	return m
}

func (m MetaInfo) String() string {
	dims := make([]string, len(m.Shape))
	for i, d := range m.Shape {
		if d == Dynamic {
			dims[i] = "?"
		} else {
			dims[i] = fmt.Sprint(d)
		}
	}
	s := fmt.Sprintf("Meta(shape=[%s], dtype=%s", strings.Join(dims, ", "), m.DType)
	if m.StopGradient {
		s += ", stop_gradient"
	}
	return s + ")"
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// InferError reports operands that the operation cannot accept.
type InferError struct {
	Op  string
	Msg string
}

func (e *InferError) Error() string {
	return fmt.Sprintf("meta: %s: %s", e.Op, e.Msg)
}

func inferErrorf(op, format string, args ...any) error {
	return &InferError{Op: op, Msg: fmt.Sprintf(format, args...)}
}
