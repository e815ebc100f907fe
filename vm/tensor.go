package vm

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/chazu/symtrace/pkg/meta"
)

// Tensor is a dense row-major array. Integer and bool tensors store their
// elements as whole float64 values.
type Tensor struct {
	Meta meta.MetaInfo
	Data []float64
}

// NewTensor returns a tensor with the given metadata and data.
func NewTensor(m meta.MetaInfo, data []float64) (*Tensor, error) {
	if m.IsDynamic() {
		return nil, NewHostError(ValueError, "concrete tensor cannot have dynamic shape %v", m.Shape)
	}
	if n := m.NumElements(); n != len(data) {
		return nil, NewHostError(ValueError, "shape %v needs %d elements, got %d", m.Shape, n, len(data))
	}
	return &Tensor{Meta: m, Data: normalizeData(m.DType, data)}, nil
}

// MustTensor is NewTensor for tests and static data.
func MustTensor(m meta.MetaInfo, data []float64) *Tensor {
	t, err := NewTensor(m, data)
	if err != nil {
		panic(err)
	}
	return t
}

// Full returns a tensor filled with value.
func Full(m meta.MetaInfo, value float64) *Tensor {
	data := make([]float64, m.NumElements())
	for i := range data {
		data[i] = value
	}
	return &Tensor{Meta: m, Data: normalizeData(m.DType, data)}
}

func normalizeData(dtype meta.DType, data []float64) []float64 {
	switch dtype {
	case meta.Int64:
		for i, v := range data {
			data[i] = math.Trunc(v)
		}
	case meta.Bool:
		for i, v := range data {
			if v != 0 {
				data[i] = 1
			} else {
				data[i] = 0
			}
		}
	case meta.Float32:
		for i, v := range data {
			data[i] = float64(float32(v))
		}
	}
	return data
}

// Shape returns the tensor shape.
func (t *Tensor) Shape() []int {
	return t.Meta.Shape
}

// Item returns the single element of a one-element tensor as a scalar.
func (t *Tensor) Item() (any, error) {
	if len(t.Data) != 1 {
		return nil, NewHostError(ValueError, "only one element tensors can be converted to scalars, got shape %v", t.Meta.Shape)
	}
	return t.scalar(t.Data[0]), nil
}

func (t *Tensor) scalar(v float64) any {
	switch t.Meta.DType {
	case meta.Bool:
		return v != 0
	case meta.Int64:
		return int64(v)
	}
	return v
}

// Equal reports whether two tensors have equal metadata and data.
func (t *Tensor) Equal(o *Tensor) bool {
	return t.Meta.Equal(o.Meta) && slices.Equal(t.Data, o.Data)
}

func (t *Tensor) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Tensor(shape=%v, dtype=%s", t.Meta.Shape, t.Meta.DType))
	if t.Meta.StopGradient {
		sb.WriteString(", stop_gradient=True")
	}
	sb.WriteString(", data=")
	sb.WriteString(t.format(0, 0))
	sb.WriteString(")")
	return sb.String()
}

func (t *Tensor) format(dim, offset int) string {
	if dim == t.Meta.Rank() {
		return Str(t.scalar(t.Data[offset]))
	}
	stride := 1
	for _, d := range t.Meta.Shape[dim+1:] {
		stride *= d
	}
	parts := make([]string, t.Meta.Shape[dim])
	for i := range parts {
		parts[i] = t.format(dim+1, offset+i*stride)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// strides returns row-major strides for shape.
func strides(shape []int) []int {
	s := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= shape[i]
	}
	return s
}

// broadcastIndex maps a flat index of the output shape onto a flat index of
// an operand broadcast to that shape.
func broadcastIndex(flat int, out, in []int) int {
	outStrides := strides(out)
	inStrides := strides(in)
	idx := 0
	offset := len(out) - len(in)
	for d := range out {
		coord := (flat / outStrides[d]) % out[d]
		if d < offset {
			continue
		}
		id := d - offset
		if in[id] != 1 {
			idx += coord * inStrides[id]
		}
	}
	return idx
}

// ---------------------------------------------------------------------------
// Tensor construction from nested sequences
// ---------------------------------------------------------------------------

// TensorFromData builds a tensor from a scalar or nested lists/tuples.
func TensorFromData(data any, dtype meta.DType) (*Tensor, error) {
	var shape []int
	var flat []float64
	inferred := meta.Bool
	var walk func(v any, depth int) error
	walk = func(v any, depth int) error {
		var items []any
		switch x := v.(type) {
		case *List:
			items = x.Items
		case *Tuple:
			items = x.Items
		case *Tensor:
			return NewHostError(TypeError, "nested tensors are not supported")
		default:
			if depth != len(shape) {
				return NewHostError(ValueError, "ragged nested sequence")
			}
			f, d, ok := toFloat(v)
			if !ok {
				return typeErrorf("cannot build a tensor from %s", TypeName(v))
			}
			inferred = meta.Promote(inferred, d)
			flat = append(flat, f)
			return nil
		}
		if depth == len(shape) {
			if len(flat) > 0 {
				return NewHostError(ValueError, "ragged nested sequence")
			}
			shape = append(shape, len(items))
		} else if depth > len(shape) || shape[depth] != len(items) {
			return NewHostError(ValueError, "ragged nested sequence")
		}
		for _, item := range items {
			if err := walk(item, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(data, 0); err != nil {
		return nil, err
	}
	if dtype == "" {
		dtype = inferred
	}
	if shape == nil {
		shape = []int{}
	}
	return NewTensor(meta.MetaInfo{Shape: shape, DType: dtype}, flat)
}

// toFloat converts a scalar to float64, reporting the dtype it stands for.
func toFloat(v any) (float64, meta.DType, bool) {
	switch x := v.(type) {
	case bool:
		if x {
			return 1, meta.Bool, true
		}
		return 0, meta.Bool, true
	case int64:
		return float64(x), meta.Int64, true
	case int:
		return float64(x), meta.Int64, true
	case float64:
		return x, meta.Float32, true
	}
	return 0, "", false
}
